// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package compile

// continuationID names a label slot's target, resolved to a concrete
// code offset only after the whole body has been translated.
type continuationID int

// funcExitCont is the sentinel continuation id `return` emits a branch
// to; the Function Driver resolves it to the epilogue's offset once
// code generation completes, instead of to a labelTable entry.
const funcExitCont continuationID = -1

// labelTable maps a continuationID (by its non-negative index) to the
// code offset of its landing site. Entries start unresolved (-1) and
// are filled in as block/loop/if translation completes; every entry
// must be resolved by the time branches are patched.
type labelTable struct {
	offsets []int
}

// alloc reserves a new label, returning its continuation id. Its
// offset is unresolved until resolve is called.
func (l *labelTable) alloc() continuationID {
	l.offsets = append(l.offsets, -1)
	return continuationID(len(l.offsets) - 1)
}

func (l *labelTable) resolve(id continuationID, offset int) {
	l.offsets[id] = offset
}

func (l *labelTable) offset(id continuationID) int {
	return l.offsets[id]
}

// branchPoint is one unresolved forward jump: the code offset of its
// 4-byte relative displacement operand, and the continuation it
// targets.
type branchPoint struct {
	operandOffset int
	continuation  continuationID
}

// branchTable collects every branchPoint emitted while translating a
// function body, for the Function Driver to patch once all labels and
// the epilogue offset are known.
type branchTable struct {
	points []branchPoint
}

func (b *branchTable) record(operandOffset int, cont continuationID) {
	b.points = append(b.points, branchPoint{operandOffset: operandOffset, continuation: cont})
}

// resolveAll patches every recorded branch's 4-byte displacement
// operand now that all labels are known. funcExitOffset is the code
// offset branches targeting funcExitCont land at — the driver passes
// the offset the epilogue is about to start at: `return` jumps straight
// into it, and a body that falls off its end runs into it directly.
func (b *branchTable) resolveAll(ob *outputBuffer, labels *labelTable, funcExitOffset int) error {
	for _, p := range b.points {
		target := funcExitOffset
		if p.continuation != funcExitCont {
			target = labels.offset(p.continuation)
		}
		if err := ob.patchRel32(p.operandOffset, p.operandOffset+4, target); err != nil {
			return err
		}
	}
	return nil
}
