// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ast holds the instruction-tree data model the module parser
// hands to the compiler: a function body is a tree of Instr nodes,
// structured control constructs (block/loop/if) carrying their own
// nested instruction lists rather than the flattened, jump-rewritten
// form an interpreter might prefer.
package ast

// Opcode identifies a bytecode operation. The set here is closed and
// intentionally limited to the operators the compiler supports; an
// Opcode outside this set reaching the translator is a malformed-input
// error, not a new case to add silently.
type Opcode byte

const (
	OpUnreachable Opcode = 0x00
	OpNop         Opcode = 0x01
	OpBlock       Opcode = 0x02
	OpLoop        Opcode = 0x03
	OpIf          Opcode = 0x04
	OpBr          Opcode = 0x0c
	OpBrIf        Opcode = 0x0d
	OpBrTable     Opcode = 0x0e
	OpReturn      Opcode = 0x0f
	OpCall        Opcode = 0x10
	OpCallIndirect Opcode = 0x11
	OpDrop        Opcode = 0x1a

	OpGetLocal  Opcode = 0x20
	OpSetLocal  Opcode = 0x21
	OpTeeLocal  Opcode = 0x22
	OpGetGlobal Opcode = 0x23
	OpSetGlobal Opcode = 0x24

	OpI32Load    Opcode = 0x28
	OpI64Load    Opcode = 0x29
	OpF64Load    Opcode = 0x2b
	OpI32Load8S  Opcode = 0x2c
	OpI32Store   Opcode = 0x36
	OpI64Store   Opcode = 0x37
	OpF64Store   Opcode = 0x39
	OpI32Store8  Opcode = 0x3a
	OpI32Store16 Opcode = 0x3b

	OpI32Const Opcode = 0x41
	OpI64Const Opcode = 0x42
	OpF64Const Opcode = 0x44

	OpI32Eqz  Opcode = 0x45
	OpI32Eq   Opcode = 0x46
	OpI32Ne   Opcode = 0x47
	OpI32LtS  Opcode = 0x48
	OpI32LtU  Opcode = 0x49
	OpI32GtS  Opcode = 0x4a
	OpI32GtU  Opcode = 0x4b
	OpI32LeS  Opcode = 0x4c
	OpI32LeU  Opcode = 0x4d
	OpI32GeS  Opcode = 0x4e
	OpI64Eq   Opcode = 0x51
	OpI64Ne   Opcode = 0x52
	OpI64LtS  Opcode = 0x53
	OpI64GtU  Opcode = 0x56
	OpF64Eq   Opcode = 0x61
	OpF64Ne   Opcode = 0x62

	OpI32Add Opcode = 0x6a
	OpI32Sub Opcode = 0x6b
	OpI32Mul Opcode = 0x6c
	OpI32DivS Opcode = 0x6d
	OpI32DivU Opcode = 0x6e
	OpI32RemS Opcode = 0x6f
	OpI32RemU Opcode = 0x70
	OpI32And Opcode = 0x71
	OpI32Or  Opcode = 0x72
	OpI32Xor Opcode = 0x73
	OpI32Shl Opcode = 0x74
	OpI32ShrS Opcode = 0x75
	OpI32ShrU Opcode = 0x76

	OpI64Add Opcode = 0x7c
	OpI64Sub Opcode = 0x7d
	OpI64Mul Opcode = 0x7e
	OpI64DivS Opcode = 0x7f
	OpI64DivU Opcode = 0x80
	OpI64RemS Opcode = 0x81
	OpI64RemU Opcode = 0x82
	OpI64And Opcode = 0x83
	OpI64Or  Opcode = 0x84
	OpI64Shl Opcode = 0x86
	OpI64ShrS Opcode = 0x87
	OpI64ShrU Opcode = 0x88

	OpF64Neg Opcode = 0x9a
	OpF64Add Opcode = 0xa0
	OpF64Sub Opcode = 0xa1
	OpF64Mul Opcode = 0xa2

	OpI32WrapI64        Opcode = 0xa7
	OpI32TruncSF64      Opcode = 0xaa
	OpI32TruncUF64      Opcode = 0xab
	OpI64ExtendSI32     Opcode = 0xac
	OpI64ExtendUI32     Opcode = 0xad
	OpF64ConvertSI32    Opcode = 0xb7
	OpF64ConvertUI32    Opcode = 0xb8
	OpI64ReinterpretF64 Opcode = 0xbd
	OpF64ReinterpretI64 Opcode = 0xbf
)

var opcodeNames = map[Opcode]string{
	OpUnreachable: "unreachable", OpNop: "nop", OpBlock: "block", OpLoop: "loop", OpIf: "if",
	OpBr: "br", OpBrIf: "br_if", OpBrTable: "br_table", OpReturn: "return",
	OpCall: "call", OpCallIndirect: "call_indirect", OpDrop: "drop",
	OpGetLocal: "get_local", OpSetLocal: "set_local", OpTeeLocal: "tee_local",
	OpGetGlobal: "get_global", OpSetGlobal: "set_global",
	OpI32Load: "i32.load", OpI64Load: "i64.load", OpF64Load: "f64.load", OpI32Load8S: "i32.load8_s",
	OpI32Store: "i32.store", OpI64Store: "i64.store", OpF64Store: "f64.store",
	OpI32Store8: "i32.store8", OpI32Store16: "i32.store16",
	OpI32Const: "i32.const", OpI64Const: "i64.const", OpF64Const: "f64.const",
	OpI32Eqz: "i32.eqz", OpI32Eq: "i32.eq", OpI32Ne: "i32.ne", OpI32LtS: "i32.lt_s", OpI32LtU: "i32.lt_u",
	OpI32GtS: "i32.gt_s", OpI32GtU: "i32.gt_u", OpI32LeS: "i32.le_s", OpI32LeU: "i32.le_u", OpI32GeS: "i32.ge_s",
	OpI64Eq: "i64.eq", OpI64Ne: "i64.ne", OpI64LtS: "i64.lt_s", OpI64GtU: "i64.gt_u",
	OpF64Eq: "f64.eq", OpF64Ne: "f64.ne",
	OpI32Add: "i32.add", OpI32Sub: "i32.sub", OpI32Mul: "i32.mul",
	OpI32DivS: "i32.div_s", OpI32DivU: "i32.div_u", OpI32RemS: "i32.rem_s", OpI32RemU: "i32.rem_u",
	OpI32And: "i32.and", OpI32Or: "i32.or", OpI32Xor: "i32.xor",
	OpI32Shl: "i32.shl", OpI32ShrS: "i32.shr_s", OpI32ShrU: "i32.shr_u",
	OpI64Add: "i64.add", OpI64Sub: "i64.sub", OpI64Mul: "i64.mul",
	OpI64DivS: "i64.div_s", OpI64DivU: "i64.div_u", OpI64RemS: "i64.rem_s", OpI64RemU: "i64.rem_u",
	OpI64And: "i64.and", OpI64Or: "i64.or",
	OpI64Shl: "i64.shl", OpI64ShrS: "i64.shr_s", OpI64ShrU: "i64.shr_u",
	OpF64Neg: "f64.neg", OpF64Add: "f64.add", OpF64Sub: "f64.sub", OpF64Mul: "f64.mul",
	OpI32WrapI64: "i32.wrap_i64", OpI32TruncSF64: "i32.trunc_s_f64", OpI32TruncUF64: "i32.trunc_u_f64",
	OpI64ExtendSI32: "i64.extend_s_i32", OpI64ExtendUI32: "i64.extend_u_i32",
	OpF64ConvertSI32: "f64.convert_s_i32", OpF64ConvertUI32: "f64.convert_u_i32",
	OpI64ReinterpretF64: "i64.reinterpret_f64", OpF64ReinterpretI64: "f64.reinterpret_i64",
}

func (op Opcode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return "unknown"
}

// IsSupported reports whether the translator implements op. Anything
// else is a malformed-input error.
func (op Opcode) IsSupported() bool {
	_, ok := opcodeNames[op]
	return ok
}
