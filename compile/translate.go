// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package compile

import (
	"math"

	"github.com/go-interpreter/wasmjit/ast"
	"github.com/go-interpreter/wasmjit/rt"
	"github.com/go-interpreter/wasmjit/wasm"
)

// movabs templates: 10-byte load of a 64-bit immediate into a scratch
// or argument register. The immediate is a placeholder the loader
// patches through a relocation.
var (
	movImm64RAX = []byte{0x48, 0xb8} // movq $imm64, %rax
	movImm64RSI = []byte{0x48, 0xbe} // movq $imm64, %rsi
	movImm64RDI = []byte{0x48, 0xbf} // movq $imm64, %rdi
)

var addrPlaceholder = []byte{0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90}

// emitAddressOf emits a movabs of a placeholder 64-bit immediate and
// records the relocation the loader uses to overwrite it with the
// absolute address of the Index'th instance of kind.
func (c *compiler) emitAddressOf(mov []byte, kind RelocKind, idx uint32) {
	c.out.bytes(mov)
	c.relocs.add(kind, c.out.offset(), idx)
	c.out.bytes(addrPlaceholder)
}

func (c *compiler) compileLocal(instr *ast.Instr) {
	if int(instr.LocalIndex) >= len(c.frame.locals) {
		panic("compile: local index out of range")
	}
	md := c.frame.locals[instr.LocalIndex]

	switch instr.Op {
	case ast.OpGetLocal:
		c.sstack.pushValue(md.valType)
		c.out.bytes([]byte{0xff, 0xb5}) // push N(%rbp)
		c.out.imm32(uint32(md.fpOffset))
	case ast.OpSetLocal:
		c.sstack.popValue(md.valType)
		c.out.bytes([]byte{0x8f, 0x85}) // pop N(%rbp)
		c.out.imm32(uint32(md.fpOffset))
	case ast.OpTeeLocal:
		if got := c.sstack.peekType(); got != md.valType {
			panic(StackTypeError{Expected: md.valType.String(), Got: got.String()})
		}
		c.out.bytes([]byte{0x48, 0x8b, 0x04, 0x24}) // mov (%rsp), %rax
		c.out.bytes([]byte{0x48, 0x89, 0x85})       // mov %rax, N(%rbp)
		c.out.imm32(uint32(md.fpOffset))
	}
}

func (c *compiler) compileGlobal(instr *ast.Instr) {
	if int(instr.GlobalIndex) >= len(c.mod.GlobalTypes) {
		panic("compile: global index out of range")
	}
	vt := c.mod.GlobalTypes[instr.GlobalIndex].Type

	switch instr.Op {
	case ast.OpGetGlobal:
		c.emitAddressOf(movImm64RAX, RelocGlobal, instr.GlobalIndex)
		switch vt {
		case wasm.ValueTypeI32, wasm.ValueTypeF32:
			// mov value(%rax), %eax — zero-extends the 4-byte cell.
			c.out.bytes([]byte{0x8b, 0x40, byte(rt.GlobalInstValueOffset)})
		default:
			// mov value(%rax), %rax
			c.out.bytes([]byte{0x48, 0x8b, 0x40, byte(rt.GlobalInstValueOffset)})
		}
		c.out.byte(0x50) // push %rax
		c.sstack.pushValue(vt)
	case ast.OpSetGlobal:
		c.out.byte(0x5a) // pop %rdx
		c.sstack.popValue(vt)
		c.emitAddressOf(movImm64RAX, RelocGlobal, instr.GlobalIndex)
		switch vt {
		case wasm.ValueTypeI32, wasm.ValueTypeF32:
			// mov %edx, value(%rax)
			c.out.bytes([]byte{0x89, 0x50, byte(rt.GlobalInstValueOffset)})
		default:
			// mov %rdx, value(%rax)
			c.out.bytes([]byte{0x48, 0x89, 0x50, byte(rt.GlobalInstValueOffset)})
		}
	}
}

func (c *compiler) compileConst(instr *ast.Instr) {
	switch instr.Op {
	case ast.OpI32Const:
		if instr.I32&0x80000000 == 0 {
			c.out.byte(0x68) // push $imm32
			c.out.imm32(instr.I32)
		} else {
			// push $imm32 sign-extends; route negative bit patterns
			// through %eax so the stored cell stays zero-extended.
			c.out.byte(0xb8) // mov $imm32, %eax
			c.out.imm32(instr.I32)
			c.out.byte(0x50) // push %rax
		}
		c.sstack.pushValue(wasm.ValueTypeI32)
	case ast.OpI64Const:
		c.out.bytes(movImm64RAX)
		c.out.imm64(instr.I64)
		c.out.byte(0x50) // push %rax
		c.sstack.pushValue(wasm.ValueTypeI64)
	case ast.OpF64Const:
		// IEEE-754 binary64 bit pattern, copied verbatim.
		c.out.bytes(movImm64RAX)
		c.out.imm64(math.Float64bits(instr.F64))
		c.out.byte(0x50) // push %rax
		c.sstack.pushValue(wasm.ValueTypeF64)
	}
}
