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

// compileMemAccess emits one linear-memory load or store. Every access
// is bounds-checked against the memory instance's size field before
// the data pointer is touched; a failed check traps with int $4 for
// the host's signal handler to translate.
//
// The default formulation biases the effective address by 4 and
// addresses the access at -4(data,ea'), so a single comparison against
// size covers the access: ea' <= size permits reading up to the last
// in-bounds byte of a 4-byte access. With Config.StrictBoundsCheck the
// bias is the access width and the comparison is unsigned, trapping
// exactly when ea + width > size.
func (c *compiler) compileMemAccess(instr *ast.Instr) error {
	var width uint32
	var isStore bool
	var storeType wasm.ValueType

	switch instr.Op {
	case ast.OpI32Load8S:
		width = 1
	case ast.OpI32Load:
		width = 4
	case ast.OpI64Load, ast.OpF64Load:
		width = 8
	case ast.OpI32Store8:
		width, isStore, storeType = 1, true, wasm.ValueTypeI32
	case ast.OpI32Store16:
		width, isStore, storeType = 2, true, wasm.ValueTypeI32
	case ast.OpI32Store:
		width, isStore, storeType = 4, true, wasm.ValueTypeI32
	case ast.OpI64Store:
		width, isStore, storeType = 8, true, wasm.ValueTypeI64
	case ast.OpF64Store:
		width, isStore, storeType = 8, true, wasm.ValueTypeF64
	}

	if isStore {
		c.sstack.popValue(storeType)
		c.out.byte(0x5f) // pop %rdi — the value
	}

	c.sstack.popValue(wasm.ValueTypeI32)
	c.out.byte(0x5e) // pop %rsi — the address

	delta := uint32(4)
	trapJcc := byte(0x7e) // jle — signed, size-vs-ea' tolerance at the top
	if c.cfg.StrictBoundsCheck {
		delta = width
		trapJcc = 0x76 // jbe — unsigned, ea + width > size traps
	}
	if instr.Mem.Offset > math.MaxUint32-delta {
		return OverflowError("memory offset overflows bounds-check immediate")
	}
	if ea := instr.Mem.Offset + delta; ea != 0 {
		c.out.bytes([]byte{0x48, 0x81, 0xc6}) // add $offset+delta, %rsi
		c.out.imm32(ea)
	}

	// Fetch the memory instance's size and compare.
	c.emitAddressOf(movImm64RAX, RelocMem, 0)
	c.out.bytes([]byte{0x48, 0x8b, 0x40, byte(rt.MemInstSizeOffset)}) // mov size(%rax), %rax
	c.out.bytes([]byte{0x48, 0x39, 0xc6})                             // cmp %rax, %rsi
	c.out.bytes([]byte{trapJcc, 0x02, 0xcd, 0x04})                    // jcc past; int $4

	// Fetch the data pointer.
	c.emitAddressOf(movImm64RAX, RelocMem, 0)
	c.out.bytes([]byte{0x48, 0x8b, 0x40, byte(rt.MemInstDataOffset)}) // mov data(%rax), %rax

	disp := byte(-int8(delta)) // access at -delta(data, ea')

	switch instr.Op {
	case ast.OpI32Load8S:
		c.out.bytes([]byte{0x0f, 0xbe, 0x44, 0x30, disp}) // movsbl -d(%rax,%rsi), %eax
		c.out.byte(0x50)                                  // push %rax
		c.sstack.pushValue(wasm.ValueTypeI32)
	case ast.OpI32Load:
		c.out.bytes([]byte{0x8b, 0x44, 0x30, disp}) // movl -d(%rax,%rsi), %eax
		c.out.byte(0x50)
		c.sstack.pushValue(wasm.ValueTypeI32)
	case ast.OpI64Load, ast.OpF64Load:
		// f64 loads use the 64-bit integer mov too; the value sits in
		// a general-purpose register until an SSE op needs it.
		c.out.bytes([]byte{0x48, 0x8b, 0x44, 0x30, disp}) // movq -d(%rax,%rsi), %rax
		c.out.byte(0x50)
		if instr.Op == ast.OpI64Load {
			c.sstack.pushValue(wasm.ValueTypeI64)
		} else {
			c.sstack.pushValue(wasm.ValueTypeF64)
		}
	case ast.OpI32Store8:
		c.out.bytes([]byte{0x40, 0x88, 0x7c, 0x30, disp}) // movb %dil, -d(%rax,%rsi)
	case ast.OpI32Store16:
		c.out.bytes([]byte{0x66, 0x89, 0x7c, 0x30, disp}) // movw %di, -d(%rax,%rsi)
	case ast.OpI32Store:
		c.out.bytes([]byte{0x89, 0x7c, 0x30, disp}) // movl %edi, -d(%rax,%rsi)
	case ast.OpI64Store, ast.OpF64Store:
		c.out.bytes([]byte{0x48, 0x89, 0x7c, 0x30, disp}) // movq %rdi, -d(%rax,%rsi)
	}
	return nil
}
