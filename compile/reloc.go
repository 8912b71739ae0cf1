// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package compile

// RelocKind closes the set of things a Reloc can point at. The
// compiler never resolves these itself — an external loader owns the
// module's func/global/table/memory/type instances and patches each
// Reloc's code offset with an absolute pointer once they exist.
type RelocKind uint8

const (
	RelocFunc RelocKind = iota
	RelocGlobal
	RelocMem
	RelocTable
	RelocType
	RelocResolveIndirectCall
)

func (k RelocKind) String() string {
	switch k {
	case RelocFunc:
		return "func"
	case RelocGlobal:
		return "global"
	case RelocMem:
		return "mem"
	case RelocTable:
		return "table"
	case RelocType:
		return "type"
	case RelocResolveIndirectCall:
		return "resolve_indirect_call"
	default:
		return "unknown"
	}
}

// Reloc is one patch site: an 8-byte placeholder at CodeOffset that a
// loader must overwrite with the absolute address of the Index'th
// instance of the given kind. RelocResolveIndirectCall carries no
// meaningful Index; it names the single well-known indirect-call
// helper the loader provides.
type Reloc struct {
	Kind       RelocKind
	CodeOffset int
	Index      uint32
}

// RelocEntries accumulates every Reloc a function's translation emits,
// in code order, for the loader to walk once.
type RelocEntries struct {
	Entries []Reloc
}

func (t *RelocEntries) add(kind RelocKind, codeOffset int, index uint32) {
	t.Entries = append(t.Entries, Reloc{Kind: kind, CodeOffset: codeOffset, Index: index})
}
