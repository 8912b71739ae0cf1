// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rt pins the in-memory layouts that generated machine code
// dereferences directly. The compiler hard-codes the byte offsets
// exported below into mov instructions; the loader hands generated code
// absolute pointers to values of these types when it patches
// relocations. Changing a field offset on either side is a breaking
// ABI change.
package rt

import (
	"math"
	"unsafe"
)

// FuncInst is one callable function instance. Generated code reaches
// CompiledCode through a Func relocation to perform a direct call. Type
// is consulted only by the indirect-call helper, never by generated
// code, so it may move without breaking the codegen ABI.
type FuncInst struct {
	CompiledCode unsafe.Pointer
	Type         unsafe.Pointer
}

// MemInst is one linear memory instance. Generated bounds checks read
// Size; the following load or store goes through Data.
type MemInst struct {
	Size uint64
	Data unsafe.Pointer
}

// Value is one 8-byte global cell. All four value types share the cell
// the way a C union would: i32 and f32 occupy the low four bytes
// (little-endian), zero-extended.
type Value struct {
	Bits uint64
}

func (v *Value) SetI32(x uint32) { v.Bits = uint64(x) }
func (v *Value) SetI64(x uint64) { v.Bits = x }
func (v *Value) SetF64(f float64) { v.Bits = math.Float64bits(f) }

func (v *Value) I32() uint32   { return uint32(v.Bits) }
func (v *Value) I64() uint64   { return v.Bits }
func (v *Value) F64() float64  { return math.Float64frombits(v.Bits) }

// GlobalInst is one module global instance.
type GlobalInst struct {
	Val Value
	Mut bool
}

// TableInst is one table instance: a pointer to a dense array of
// *FuncInst and the element count. Generated code never dereferences a
// table itself; it passes the instance pointer to the indirect-call
// helper, which owns this layout.
type TableInst struct {
	Data  unsafe.Pointer
	Count uint64
}

// Offsets baked into generated instructions.
const (
	FuncInstCompiledCodeOffset = unsafe.Offsetof(FuncInst{}.CompiledCode)
	MemInstSizeOffset          = unsafe.Offsetof(MemInst{}.Size)
	MemInstDataOffset          = unsafe.Offsetof(MemInst{}.Data)
	GlobalInstValueOffset      = unsafe.Offsetof(GlobalInst{}.Val)
)
