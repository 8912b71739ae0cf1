// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ast

import "github.com/go-interpreter/wasmjit/wasm"

// MemArg carries the static offset immediate of a load/store
// instruction. Alignment hints are a validator-only concern and are
// not represented here.
type MemArg struct {
	Offset uint32
}

// Block carries the payload of a `block` or `loop` instruction: its
// result signature and nested instruction list.
type Block struct {
	Type         wasm.BlockType
	Instructions []Instr
}

// If carries the payload of an `if` instruction: its result signature
// and the then/else instruction lists. Else may be empty.
type If struct {
	Type wasm.BlockType
	Then []Instr
	Else []Instr
}

// BrTable carries the payload of a `br_table` instruction: a dense
// jump table of label indices plus the default (out-of-range) label.
type BrTable struct {
	LabelIndices []uint32
	DefaultIndex uint32
}

// Instr is one node in the function body's instruction tree. At most
// one of the payload fields is populated, selected by Op; pointer
// payloads stay nil for the ops that don't use them, so a translator
// bug reading the wrong payload fails loudly instead of reading
// garbage.
type Instr struct {
	Op Opcode

	Block   *Block   // OpBlock, OpLoop
	If      *If      // OpIf
	BrTable *BrTable // OpBrTable

	LabelIndex uint32 // OpBr, OpBrIf
	LocalIndex uint32 // OpGetLocal, OpSetLocal, OpTeeLocal
	GlobalIndex uint32 // OpGetGlobal, OpSetGlobal
	FuncIndex  uint32 // OpCall
	TypeIndex  uint32 // OpCallIndirect

	Mem MemArg // the memory-access opcodes

	I32 uint32 // OpI32Const
	I64 uint64 // OpI64Const
	F64 float64 // OpF64Const
}

// Local describes one run of declared locals sharing a value type, the
// form the wasm binary format's code section uses ("count locals of
// this type") rather than one entry per local.
type Local struct {
	Count   uint32
	Type    wasm.ValueType
}

// CodeSectionCode is a single function's body as handed to the core for
// compilation: its declared (non-parameter) locals and its instruction
// tree.
type CodeSectionCode struct {
	Locals       []Local
	Instructions []Instr
}

// NumDeclaredLocals returns the total count of declared (non-parameter)
// locals, expanding the run-length Locals list.
func (c CodeSectionCode) NumDeclaredLocals() int {
	n := 0
	for _, l := range c.Locals {
		n += int(l.Count)
	}
	return n
}
