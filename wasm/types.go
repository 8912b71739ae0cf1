// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package wasm holds the value and type model shared between the
// (external) module parser and the compile package: value types,
// function signatures, and the per-module type tables the JIT needs to
// resolve globals, memories, tables, and callees. Reading these from a
// binary module is the parser's job and lives outside this module.
package wasm

import "fmt"

// ValueType represents the type of a value that can live on the
// operand stack or in a local/global slot. Every ValueType, regardless
// of its logical width, occupies exactly one 8-byte physical stack
// slot or frame cell; i32 and f32 values are stored zero-extended.
type ValueType int8

const (
	ValueTypeI32 ValueType = -0x01
	ValueTypeI64 ValueType = -0x02
	ValueTypeF32 ValueType = -0x03
	ValueTypeF64 ValueType = -0x04
)

var valueTypeStrMap = map[ValueType]string{
	ValueTypeI32: "i32",
	ValueTypeI64: "i64",
	ValueTypeF32: "f32",
	ValueTypeF64: "f64",
}

func (t ValueType) String() string {
	str, ok := valueTypeStrMap[t]
	if !ok {
		str = fmt.Sprintf("<unknown value_type %d>", int8(t))
	}
	return str
}

// Size returns the physical stack footprint of a value in bytes. It is
// always 8: the compiler never packs two WebAssembly-level values into
// one slot, even for i32/f32.
func (t ValueType) Size() int { return 8 }

// BlockType is the result-type signature of a structured block: either
// one ValueType or the empty (no-value) sentinel.
type BlockType ValueType

// BlockTypeEmpty is the "no result" block signature.
const BlockTypeEmpty BlockType = -0x40

func (b BlockType) String() string {
	if b == BlockTypeEmpty {
		return "<empty block>"
	}
	return ValueType(b).String()
}

// Arity reports how many values a block of this type leaves on the
// stack: 0 for BlockTypeEmpty, 1 otherwise. Multi-value blocks are
// not supported.
func (b BlockType) Arity() int {
	if b == BlockTypeEmpty {
		return 0
	}
	return 1
}

// FuncType describes a function signature: ordered input types plus at
// most one output type. A FuncType with more than one output is not
// constructible by NewFuncType.
type FuncType struct {
	Params  []ValueType
	Results []ValueType
}

// NewFuncType builds a FuncType, rejecting more than one result value.
func NewFuncType(params, results []ValueType) (FuncType, error) {
	if len(results) > 1 {
		return FuncType{}, InvalidResultCountError(len(results))
	}
	return FuncType{Params: params, Results: results}, nil
}

func (f FuncType) String() string {
	return fmt.Sprintf("<func %v -> %v>", f.Params, f.Results)
}

// NumOutputs returns the number of result values: 0 or 1 for a
// FuncType built by NewFuncType, possibly more for a struct literal.
func (f FuncType) NumOutputs() int { return len(f.Results) }

// InvalidResultCountError is returned when a FuncType is constructed
// with more than one result value; multi-value returns are not
// supported.
type InvalidResultCountError int

func (e InvalidResultCountError) Error() string {
	return fmt.Sprintf("wasm: function type has %d results, core supports at most 1", int(e))
}

// GlobalType describes the type and mutability of a module-level global.
type GlobalType struct {
	Type    ValueType
	Mutable bool
}

// TableType describes a table in a module. Generated code only ever
// reaches table 0 through a Table relocation; multiple tables are a
// module-level concept the compiler does not reason about beyond
// sizing.
type TableType struct {
	Limits ResizableLimits
}

// MemType describes a linear memory. Only the memory instance's size
// and data fields matter to generated code; the declared limits here
// describe the module's memory section shape.
type MemType struct {
	Limits ResizableLimits
}

// ResizableLimits describes the initial/maximum size of a table or
// linear memory, in table-elements or wasm pages respectively.
type ResizableLimits struct {
	Initial uint32
	Maximum uint32
	HasMax  bool
}

// ModuleTypes collects the enclosing module's type tables that the
// compiler consults while translating a single function: the function
// signature of every function the module defines (indexed by function
// index, for direct calls), and the global/table/memory type tables
// (indexed by their respective index spaces).
type ModuleTypes struct {
	FuncTypes   []FuncType
	GlobalTypes []GlobalType
	TableTypes  []TableType
	MemTypes    []MemType
}
