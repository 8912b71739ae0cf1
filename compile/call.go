// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package compile

import (
	"github.com/go-interpreter/wasmjit/rt"
	"github.com/go-interpreter/wasmjit/wasm"
)

// Argument-register load templates for the call shuffle, each followed
// by a 4-byte %rsp displacement.
var gpArgLoads = [maxGPArgRegs][]byte{
	{0x48, 0x8b, 0xbc, 0x24}, // mov N(%rsp), %rdi
	{0x48, 0x8b, 0xb4, 0x24}, // mov N(%rsp), %rsi
	{0x48, 0x8b, 0x94, 0x24}, // mov N(%rsp), %rdx
	{0x48, 0x8b, 0x8c, 0x24}, // mov N(%rsp), %rcx
	{0x4c, 0x8b, 0x84, 0x24}, // mov N(%rsp), %r8
	{0x4c, 0x8b, 0x8c, 0x24}, // mov N(%rsp), %r9
}

var ssef32ArgLoads = [maxSSEArgRegs][]byte{
	{0xf3, 0x0f, 0x10, 0x84, 0x24}, // movss N(%rsp), %xmm0
	{0xf3, 0x0f, 0x10, 0x8c, 0x24}, // movss N(%rsp), %xmm1
	{0xf3, 0x0f, 0x10, 0x94, 0x24}, // movss N(%rsp), %xmm2
	{0xf3, 0x0f, 0x10, 0x9c, 0x24}, // movss N(%rsp), %xmm3
	{0xf3, 0x0f, 0x10, 0xa4, 0x24}, // movss N(%rsp), %xmm4
	{0xf3, 0x0f, 0x10, 0xac, 0x24}, // movss N(%rsp), %xmm5
	{0xf3, 0x0f, 0x10, 0xb4, 0x24}, // movss N(%rsp), %xmm6
	{0xf3, 0x0f, 0x10, 0xbc, 0x24}, // movss N(%rsp), %xmm7
}

var ssef64ArgLoads = [maxSSEArgRegs][]byte{
	{0xf2, 0x0f, 0x10, 0x84, 0x24}, // movsd N(%rsp), %xmm0
	{0xf2, 0x0f, 0x10, 0x8c, 0x24}, // movsd N(%rsp), %xmm1
	{0xf2, 0x0f, 0x10, 0x94, 0x24}, // movsd N(%rsp), %xmm2
	{0xf2, 0x0f, 0x10, 0x9c, 0x24}, // movsd N(%rsp), %xmm3
	{0xf2, 0x0f, 0x10, 0xa4, 0x24}, // movsd N(%rsp), %xmm4
	{0xf2, 0x0f, 0x10, 0xac, 0x24}, // movsd N(%rsp), %xmm5
	{0xf2, 0x0f, 0x10, 0xb4, 0x24}, // movsd N(%rsp), %xmm6
	{0xf2, 0x0f, 0x10, 0xbc, 0x24}, // movsd N(%rsp), %xmm7
}

// compileCall emits a direct call: resolve the callee's FuncInst
// through a Func relocation, chase its compiled-code pointer and hand
// off to the ABI shuffle with the address in %rax.
func (c *compiler) compileCall(fidx uint32) error {
	if int(fidx) >= len(c.mod.FuncTypes) {
		panic("compile: call function index out of range")
	}
	ft := c.mod.FuncTypes[fidx]
	depth := c.frame.nFrameLocals + c.sstack.valueSlots()

	c.emitAddressOf(movImm64RAX, RelocFunc, fidx)
	// mov compiled_code(%rax), %rax
	c.out.bytes([]byte{0x48, 0x8b, 0x40, byte(rt.FuncInstCompiledCodeOffset)})

	return c.emitCallShuffle(ft, depth)
}

// compileCallIndirect pops the table index, calls the runtime's
// indirect-call resolver with the table instance, expected type and
// index in the first three argument registers, and continues into the
// ABI shuffle with the returned compiled-code address in %rax. The
// helper type-checks the target and traps on mismatch before
// returning.
func (c *compiler) compileCallIndirect(typeidx uint32) error {
	if int(typeidx) >= len(c.funcTypes) {
		panic("compile: call_indirect type index out of range")
	}
	ft := c.funcTypes[typeidx]

	c.sstack.popValue(wasm.ValueTypeI32)
	// The selector is about to leave the physical stack too, so it is
	// not part of the depth the alignment parity is computed from.
	depth := c.frame.nFrameLocals + c.sstack.valueSlots()

	c.emitAddressOf(movImm64RDI, RelocTable, 0)
	c.emitAddressOf(movImm64RSI, RelocType, typeidx)
	c.out.byte(0x5a) // pop %rdx — the table index
	c.emitAddressOf(movImm64RAX, RelocResolveIndirectCall, 0)

	pad := depth%2 == 1
	if pad {
		c.out.bytes([]byte{0x48, 0x83, 0xec, 0x08}) // sub $8, %rsp
	}
	c.out.bytes([]byte{0xff, 0xd0}) // call *%rax
	if pad {
		c.out.bytes([]byte{0x48, 0x83, 0xc4, 0x08}) // add $8, %rsp
	}

	return c.emitCallShuffle(ft, depth)
}

// emitCallShuffle marshals the callee's arguments — the top len(Params)
// operand-stack cells — into the System V AMD64 convention, keeps %rsp
// 16-byte aligned at the call site, calls through %rax and publishes
// the result back onto the operand stack.
//
// depth is the number of 8-byte cells between %rbp and %rsp at entry
// (frame locals plus live operand slots); its parity decides whether an
// extra pad cell is needed.
func (c *compiler) emitCallShuffle(ft wasm.FuncType, depth int) error {
	nIn := len(ft.Params)
	if int64(nIn+depth+2)*8 > maxInt32 {
		return OverflowError("call argument area exceeds 32-bit offsets")
	}

	// First pass: classify arguments into register and stack classes.
	nGP, nSSE, nStackArgs := 0, 0, 0
	var stackArgs []int
	for i, vt := range ft.Params {
		switch {
		case isGPType(vt) && nGP < maxGPArgRegs:
			nGP++
		case !isGPType(vt) && nSSE < maxSSEArgRegs:
			nSSE++
		default:
			stackArgs = append(stackArgs, i)
			nStackArgs++
		}
	}

	aligned := 0
	if (depth+nStackArgs)%2 == 1 {
		aligned = 1
		c.out.bytes([]byte{0x48, 0x83, 0xec, 0x08}) // sub $8, %rsp
	}

	// The arguments must already sit on top of the operand stack in
	// declaration order; anything else is an upstream validator bug.
	base := c.sstack.len() - nIn
	for i, vt := range ft.Params {
		elt := c.sstack.elts[base+i]
		if elt.kind != stackValue || elt.vtype != vt {
			panic(StackTypeError{Expected: vt.String(), Got: "mismatched call operand"})
		}
	}

	// Register arguments, in declaration order. Argument i lives
	// 8*(nIn-1-i) bytes above the pre-pad stack top.
	nGP, nSSE = 0, 0
	for i, vt := range ft.Params {
		off := uint32(nIn-1-i+aligned) * 8
		switch {
		case isGPType(vt) && nGP < maxGPArgRegs:
			c.out.bytes(gpArgLoads[nGP])
			c.out.imm32(off)
			nGP++
		case vt == wasm.ValueTypeF32 && nSSE < maxSSEArgRegs:
			c.out.bytes(ssef32ArgLoads[nSSE])
			c.out.imm32(off)
			nSSE++
		case vt == wasm.ValueTypeF64 && nSSE < maxSSEArgRegs:
			c.out.bytes(ssef64ArgLoads[nSSE])
			c.out.imm32(off)
			nSSE++
		}
	}

	// Overflow arguments go on the stack rightmost-first so the
	// leftmost ends up at the lowest address, where the callee's
	// frame layout expects it.
	nPushed := 0
	for k := len(stackArgs) - 1; k >= 0; k-- {
		i := stackArgs[k]
		c.out.bytes([]byte{0xff, 0xb4, 0x24}) // push N(%rsp)
		c.out.imm32(uint32(nIn-1-i+nPushed+aligned) * 8)
		nPushed++
	}

	c.out.bytes([]byte{0xff, 0xd0}) // call *%rax

	// Reclaim the argument cells, the pushed copies and the pad.
	c.out.bytes([]byte{0x48, 0x81, 0xc4}) // add $8*(nStack+nIn+aligned), %rsp
	c.out.imm32(uint32(nStackArgs+nIn+aligned) * 8)

	c.sstack.truncate(c.sstack.len() - nIn)

	if ft.NumOutputs() == 1 {
		out := ft.Results[0]
		if out == wasm.ValueTypeF32 || out == wasm.ValueTypeF64 {
			c.out.bytes([]byte{0x66, 0x48, 0x0f, 0x7e, 0xc0}) // movq %xmm0, %rax
		}
		c.out.byte(0x50) // push %rax
		c.sstack.pushValue(out)
	}
	return nil
}
