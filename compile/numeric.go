// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package compile

import (
	"github.com/go-interpreter/wasmjit/ast"
	"github.com/go-interpreter/wasmjit/wasm"
)

// compileNumeric handles the arithmetic, comparison and conversion
// opcodes. Binary operators share one shape: pop the right operand
// into a scratch register, rewrite the left operand in place at the
// stack-top memory cell, and fix up the static stack. Comparisons
// leave a 0/1 i32 via setCC.
func (c *compiler) compileNumeric(op ast.Opcode) error {
	switch op {
	case ast.OpI32Eqz:
		if got := c.sstack.peekType(); got != wasm.ValueTypeI32 {
			panic(StackTypeError{Expected: "i32", Got: got.String()})
		}
		c.out.bytes([]byte{0x31, 0xc0})             // xor %eax, %eax
		c.out.bytes([]byte{0x83, 0x3c, 0x24, 0x00}) // cmpl $0, (%rsp)
		c.out.bytes([]byte{0x0f, 0x94, 0xc0})       // sete %al
		c.out.bytes([]byte{0x89, 0x04, 0x24})       // mov %eax, (%rsp)

	case ast.OpI32Eq, ast.OpI32Ne, ast.OpI32LtS, ast.OpI32LtU, ast.OpI32GtS,
		ast.OpI32GtU, ast.OpI32LeS, ast.OpI32LeU, ast.OpI32GeS,
		ast.OpI64Eq, ast.OpI64Ne, ast.OpI64LtS, ast.OpI64GtU:
		return c.compileIntCmp(op)

	case ast.OpF64Eq, ast.OpF64Ne:
		return c.compileF64Cmp(op)

	case ast.OpI32Add, ast.OpI32Sub, ast.OpI32Mul, ast.OpI32And, ast.OpI32Or, ast.OpI32Xor,
		ast.OpI64Add, ast.OpI64Sub, ast.OpI64Mul, ast.OpI64And, ast.OpI64Or:
		return c.compileIntBinary(op)

	case ast.OpI32DivS, ast.OpI32DivU, ast.OpI32RemS, ast.OpI32RemU,
		ast.OpI64DivS, ast.OpI64DivU, ast.OpI64RemS, ast.OpI64RemU:
		return c.compileDivRem(op)

	case ast.OpI32Shl, ast.OpI32ShrS, ast.OpI32ShrU,
		ast.OpI64Shl, ast.OpI64ShrS, ast.OpI64ShrU:
		return c.compileShift(op)

	case ast.OpF64Neg:
		if got := c.sstack.peekType(); got != wasm.ValueTypeF64 {
			panic(StackTypeError{Expected: "f64", Got: got.String()})
		}
		// Flip the sign bit in place.
		c.out.bytes([]byte{0x48, 0x0f, 0xba, 0x3c, 0x24, 0x3f}) // btcq $63, (%rsp)

	case ast.OpF64Add, ast.OpF64Sub, ast.OpF64Mul:
		return c.compileF64Binary(op)

	case ast.OpI32WrapI64, ast.OpI32TruncSF64, ast.OpI32TruncUF64,
		ast.OpI64ExtendSI32, ast.OpI64ExtendUI32,
		ast.OpF64ConvertSI32, ast.OpF64ConvertUI32,
		ast.OpI64ReinterpretF64, ast.OpF64ReinterpretI64:
		return c.compileConversion(op)

	default:
		return UnsupportedOpcodeError(op)
	}
	return nil
}

func intCmpOperandType(op ast.Opcode) wasm.ValueType {
	switch op {
	case ast.OpI64Eq, ast.OpI64Ne, ast.OpI64LtS, ast.OpI64GtU:
		return wasm.ValueTypeI64
	}
	return wasm.ValueTypeI32
}

var setCC = map[ast.Opcode][]byte{
	ast.OpI32Eq:  {0x0f, 0x94, 0xc0}, // sete %al
	ast.OpI64Eq:  {0x0f, 0x94, 0xc0},
	ast.OpI32Ne:  {0x0f, 0x95, 0xc0}, // setne %al
	ast.OpI64Ne:  {0x0f, 0x95, 0xc0},
	ast.OpI32LtS: {0x0f, 0x9c, 0xc0}, // setl %al
	ast.OpI64LtS: {0x0f, 0x9c, 0xc0},
	ast.OpI32LtU: {0x0f, 0x92, 0xc0}, // setb %al
	ast.OpI32GtS: {0x0f, 0x9f, 0xc0}, // setg %al
	ast.OpI32GtU: {0x0f, 0x97, 0xc0}, // seta %al
	ast.OpI64GtU: {0x0f, 0x97, 0xc0},
	ast.OpI32LeS: {0x0f, 0x9e, 0xc0}, // setle %al
	ast.OpI32LeU: {0x0f, 0x96, 0xc0}, // setbe %al
	ast.OpI32GeS: {0x0f, 0x9d, 0xc0}, // setge %al
}

func (c *compiler) compileIntCmp(op ast.Opcode) error {
	vt := intCmpOperandType(op)
	wide := vt == wasm.ValueTypeI64
	c.sstack.popValue(vt)
	c.sstack.popValue(vt)

	c.out.byte(0x5f) // pop %rdi
	if wide {
		c.out.byte(0x48)
	}
	c.out.bytes([]byte{0x31, 0xc0}) // xor %(e|r)ax, %(e|r)ax
	if wide {
		c.out.byte(0x48)
	}
	c.out.bytes([]byte{0x39, 0x3c, 0x24}) // cmp %(e|r)di, (%rsp)
	c.out.bytes(setCC[op])
	if wide {
		c.out.byte(0x48)
	}
	c.out.bytes([]byte{0x89, 0x04, 0x24}) // mov %(e|r)ax, (%rsp)

	c.sstack.pushValue(wasm.ValueTypeI32)
	return nil
}

// compileF64Cmp lowers f64 eq/ne through ucomisd. The parity flag
// distinguishes the unordered (NaN) case: eq is 1 only for an ordered
// equal pair; ne is 1 for any unordered pair, so NaN != NaN holds.
func (c *compiler) compileF64Cmp(op ast.Opcode) error {
	c.sstack.popValue(wasm.ValueTypeF64)
	c.sstack.popValue(wasm.ValueTypeF64)

	c.out.bytes([]byte{0xf2, 0x0f, 0x10, 0x04, 0x24}) // movsd (%rsp), %xmm0
	c.out.bytes([]byte{0x48, 0x83, 0xc4, 0x08})       // add $8, %rsp
	c.out.bytes([]byte{0x31, 0xc0})                   // xor %eax, %eax
	if op == ast.OpF64Eq {
		c.out.bytes([]byte{0x31, 0xd2}) // xor %edx, %edx
	} else {
		c.out.bytes([]byte{0xba, 0x01, 0x00, 0x00, 0x00}) // mov $1, %edx
	}
	c.out.bytes([]byte{0x66, 0x0f, 0x2e, 0x04, 0x24}) // ucomisd (%rsp), %xmm0
	if op == ast.OpF64Eq {
		c.out.bytes([]byte{0x0f, 0x9b, 0xc0}) // setnp %al
	} else {
		c.out.bytes([]byte{0x0f, 0x9a, 0xc0}) // setp %al
	}
	c.out.bytes([]byte{0x0f, 0x45, 0xc2})       // cmovne %edx, %eax
	c.out.bytes([]byte{0x48, 0x89, 0x04, 0x24}) // mov %rax, (%rsp)

	c.sstack.pushValue(wasm.ValueTypeI32)
	return nil
}

func intBinaryOperandType(op ast.Opcode) wasm.ValueType {
	switch op {
	case ast.OpI64Add, ast.OpI64Sub, ast.OpI64Mul, ast.OpI64And, ast.OpI64Or:
		return wasm.ValueTypeI64
	}
	return wasm.ValueTypeI32
}

func (c *compiler) compileIntBinary(op ast.Opcode) error {
	vt := intBinaryOperandType(op)
	wide := vt == wasm.ValueTypeI64

	c.sstack.popValue(vt)
	c.out.byte(0x58) // pop %rax — the right operand
	if got := c.sstack.peekType(); got != vt {
		panic(StackTypeError{Expected: vt.String(), Got: got.String()})
	}

	if wide {
		c.out.byte(0x48)
	}
	switch op {
	case ast.OpI32Add, ast.OpI64Add:
		c.out.bytes([]byte{0x01, 0x04, 0x24}) // add %(e|r)ax, (%rsp)
	case ast.OpI32Sub, ast.OpI64Sub:
		c.out.bytes([]byte{0x29, 0x04, 0x24}) // sub %(e|r)ax, (%rsp)
	case ast.OpI32Mul, ast.OpI64Mul:
		c.out.bytes([]byte{0xf7, 0x24, 0x24}) // mul(l|q) (%rsp)
		if wide {
			c.out.byte(0x48)
		}
		c.out.bytes([]byte{0x89, 0x04, 0x24}) // mov %(e|r)ax, (%rsp)
	case ast.OpI32And, ast.OpI64And:
		c.out.bytes([]byte{0x21, 0x04, 0x24}) // and %(e|r)ax, (%rsp)
	case ast.OpI32Or, ast.OpI64Or:
		c.out.bytes([]byte{0x09, 0x04, 0x24}) // or %(e|r)ax, (%rsp)
	case ast.OpI32Xor:
		c.out.bytes([]byte{0x31, 0x04, 0x24}) // xor %eax, (%rsp)
	}
	return nil
}

func divRemOperandType(op ast.Opcode) wasm.ValueType {
	switch op {
	case ast.OpI64DivS, ast.OpI64DivU, ast.OpI64RemS, ast.OpI64RemU:
		return wasm.ValueTypeI64
	}
	return wasm.ValueTypeI32
}

func (c *compiler) compileDivRem(op ast.Opcode) error {
	vt := divRemOperandType(op)
	wide := vt == wasm.ValueTypeI64
	signed := op == ast.OpI32DivS || op == ast.OpI32RemS ||
		op == ast.OpI64DivS || op == ast.OpI64RemS
	rem := op == ast.OpI32RemS || op == ast.OpI32RemU ||
		op == ast.OpI64RemS || op == ast.OpI64RemU

	c.sstack.popValue(vt)
	if got := c.sstack.peekType(); got != vt {
		panic(StackTypeError{Expected: vt.String(), Got: got.String()})
	}

	c.out.byte(0x5f) // pop %rdi — the divisor
	if wide {
		c.out.byte(0x48)
	}
	c.out.bytes([]byte{0x8b, 0x04, 0x24}) // mov (%rsp), %(e|r)ax

	if signed {
		if wide {
			c.out.byte(0x48)
		}
		c.out.byte(0x99) // cdq | cqo
		if wide {
			c.out.byte(0x48)
		}
		c.out.bytes([]byte{0xf7, 0xff}) // idiv %(e|r)di
	} else {
		c.out.bytes([]byte{0x31, 0xd2}) // xor %edx, %edx
		if wide {
			c.out.byte(0x48)
		}
		c.out.bytes([]byte{0xf7, 0xf7}) // div %(e|r)di
	}

	if wide {
		c.out.byte(0x48)
	}
	if rem {
		c.out.bytes([]byte{0x89, 0x14, 0x24}) // mov %(e|r)dx, (%rsp)
	} else {
		c.out.bytes([]byte{0x89, 0x04, 0x24}) // mov %(e|r)ax, (%rsp)
	}
	return nil
}

func (c *compiler) compileShift(op ast.Opcode) error {
	vt := wasm.ValueTypeI32
	switch op {
	case ast.OpI64Shl, ast.OpI64ShrS, ast.OpI64ShrU:
		vt = wasm.ValueTypeI64
	}

	c.out.byte(0x59) // pop %rcx — the shift count
	c.sstack.popValue(vt)
	if got := c.sstack.peekType(); got != vt {
		panic(StackTypeError{Expected: vt.String(), Got: got.String()})
	}

	if vt == wasm.ValueTypeI64 {
		c.out.byte(0x48)
	}
	switch op {
	case ast.OpI32Shl, ast.OpI64Shl:
		c.out.bytes([]byte{0xd3, 0x24, 0x24}) // shl(l|q) %cl, (%rsp)
	case ast.OpI32ShrS, ast.OpI64ShrS:
		c.out.bytes([]byte{0xd3, 0x3c, 0x24}) // sar(l|q) %cl, (%rsp)
	case ast.OpI32ShrU, ast.OpI64ShrU:
		c.out.bytes([]byte{0xd3, 0x2c, 0x24}) // shr(l|q) %cl, (%rsp)
	}
	return nil
}

func (c *compiler) compileF64Binary(op ast.Opcode) error {
	c.sstack.popValue(wasm.ValueTypeF64)
	if got := c.sstack.peekType(); got != wasm.ValueTypeF64 {
		panic(StackTypeError{Expected: "f64", Got: got.String()})
	}

	c.out.bytes([]byte{0xf2, 0x0f, 0x10, 0x0c, 0x24}) // movsd (%rsp), %xmm1 — right operand
	c.out.bytes([]byte{0x48, 0x83, 0xc4, 0x08})       // add $8, %rsp
	c.out.bytes([]byte{0xf2, 0x0f, 0x10, 0x04, 0x24}) // movsd (%rsp), %xmm0 — left operand

	switch op {
	case ast.OpF64Add:
		c.out.bytes([]byte{0xf2, 0x0f, 0x58, 0xc1}) // addsd %xmm1, %xmm0
	case ast.OpF64Sub:
		c.out.bytes([]byte{0xf2, 0x0f, 0x5c, 0xc1}) // subsd %xmm1, %xmm0
	case ast.OpF64Mul:
		c.out.bytes([]byte{0xf2, 0x0f, 0x59, 0xc1}) // mulsd %xmm1, %xmm0
	}
	c.out.bytes([]byte{0xf2, 0x0f, 0x11, 0x04, 0x24}) // movsd %xmm0, (%rsp)
	return nil
}

func (c *compiler) compileConversion(op ast.Opcode) error {
	switch op {
	case ast.OpI32WrapI64:
		c.sstack.popValue(wasm.ValueTypeI64)
		c.out.bytes([]byte{0xb8, 0xff, 0xff, 0xff, 0xff}) // mov $0xffffffff, %eax
		c.out.bytes([]byte{0x48, 0x21, 0x04, 0x24})       // and %rax, (%rsp)
		c.sstack.pushValue(wasm.ValueTypeI32)

	case ast.OpI32TruncSF64:
		c.sstack.popValue(wasm.ValueTypeF64)
		c.out.bytes([]byte{0xf2, 0x0f, 0x2c, 0x04, 0x24}) // cvttsd2si (%rsp), %eax
		c.out.bytes([]byte{0x48, 0x89, 0x04, 0x24})       // mov %rax, (%rsp)
		c.sstack.pushValue(wasm.ValueTypeI32)

	case ast.OpI32TruncUF64:
		c.sstack.popValue(wasm.ValueTypeF64)
		// Convert through the 64-bit form so values in [2^31, 2^32)
		// survive, then keep the low 32 bits zero-extended.
		c.out.bytes([]byte{0xf2, 0x48, 0x0f, 0x2c, 0x04, 0x24}) // cvttsd2si (%rsp), %rax
		c.out.bytes([]byte{0x89, 0xc0})                         // mov %eax, %eax
		c.out.bytes([]byte{0x48, 0x89, 0x04, 0x24})             // mov %rax, (%rsp)
		c.sstack.pushValue(wasm.ValueTypeI32)

	case ast.OpI64ExtendSI32:
		c.sstack.popValue(wasm.ValueTypeI32)
		c.out.bytes([]byte{0x48, 0x63, 0x04, 0x24}) // movslq (%rsp), %rax
		c.out.bytes([]byte{0x48, 0x89, 0x04, 0x24}) // mov %rax, (%rsp)
		c.sstack.pushValue(wasm.ValueTypeI64)

	case ast.OpI64ExtendUI32:
		// i32 cells are stored zero-extended already; only the static
		// stack changes.
		c.sstack.popValue(wasm.ValueTypeI32)
		c.sstack.pushValue(wasm.ValueTypeI64)

	case ast.OpF64ConvertSI32:
		c.sstack.popValue(wasm.ValueTypeI32)
		c.out.bytes([]byte{0xf2, 0x0f, 0x2a, 0x04, 0x24}) // cvtsi2sdl (%rsp), %xmm0
		c.out.bytes([]byte{0xf2, 0x0f, 0x11, 0x04, 0x24}) // movsd %xmm0, (%rsp)
		c.sstack.pushValue(wasm.ValueTypeF64)

	case ast.OpF64ConvertUI32:
		c.sstack.popValue(wasm.ValueTypeI32)
		c.out.bytes([]byte{0x8b, 0x04, 0x24})             // mov (%rsp), %eax
		c.out.bytes([]byte{0xf2, 0x48, 0x0f, 0x2a, 0xc0}) // cvtsi2sd %rax, %xmm0
		c.out.bytes([]byte{0xf2, 0x0f, 0x11, 0x04, 0x24}) // movsd %xmm0, (%rsp)
		c.sstack.pushValue(wasm.ValueTypeF64)

	case ast.OpI64ReinterpretF64:
		// Same bits, same cell.
		c.sstack.popValue(wasm.ValueTypeF64)
		c.sstack.pushValue(wasm.ValueTypeI64)

	case ast.OpF64ReinterpretI64:
		c.sstack.popValue(wasm.ValueTypeI64)
		c.sstack.pushValue(wasm.ValueTypeF64)
	}
	return nil
}
