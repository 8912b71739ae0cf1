// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package compile

import (
	"github.com/go-interpreter/wasmjit/ast"
	"github.com/go-interpreter/wasmjit/wasm"
)

// emitBranchPlaceholder emits a near unconditional jump with a
// placeholder displacement and records it for back-patching once the
// continuation's landing site is known.
func (c *compiler) emitBranchPlaceholder(cont continuationID) {
	c.branches.record(c.out.offset()+1, cont)
	c.out.bytes([]byte{0xe9, 0x90, 0x90, 0x90, 0x90}) // jmp <rel32>
}

// emitBrCode materializes a branch to the labelIdx'th enclosing label:
// relocate the branch's result values down to the label's stack height,
// drop the intervening cells and jump to the continuation.
//
// The copy is a descending string-move starting from the top-most
// result cell; moving downward in memory from the highest source
// address first means the source and destination ranges can overlap
// without trampling.
func (c *compiler) emitBrCode(labelIdx uint32) error {
	j := c.sstack.findLabel(labelIdx)
	arity := c.sstack.elts[j].label.arity

	shiftCells := c.sstack.valueSlotsAbove(j) - arity
	if shiftCells < 0 {
		panic("compile: branch arity exceeds stack values above label")
	}
	shift := int64(shiftCells) * 8
	if shift > maxInt32 {
		return OverflowError("branch stack shift does not fit in 32 bits")
	}

	if arity > 0 {
		c.out.bytes([]byte{0x48, 0x89, 0xe6}) // mov %rsp, %rsi
		if arity > 1 {
			c.out.bytes([]byte{0x48, 0x81, 0xc6}) // add $8*(arity-1), %rsi
			c.out.imm32(uint32(arity-1) * 8)
		}
		c.out.bytes([]byte{0x48, 0x89, 0xe7}) // mov %rsp, %rdi
		if d := int64(arity-1)*8 + shift; d != 0 {
			if d > maxInt32 {
				return OverflowError("branch copy displacement does not fit in 32 bits")
			}
			c.out.bytes([]byte{0x48, 0x81, 0xc7}) // add $d, %rdi
			c.out.imm32(uint32(d))
		}
		c.out.bytes([]byte{0x48, 0xc7, 0xc1}) // mov $arity, %rcx
		c.out.imm32(uint32(arity))
		c.out.byte(0xfd)                      // std
		c.out.bytes([]byte{0xf3, 0x48, 0xa5}) // rep movsq
		c.out.byte(0xfc)                      // cld
	}

	if shift != 0 {
		c.out.bytes([]byte{0x48, 0x81, 0xc4}) // add $shift, %rsp
		c.out.imm32(uint32(shift))
	}

	c.emitBranchPlaceholder(c.sstack.elts[j].label.continuationID)
	return nil
}

func (c *compiler) compileBlock(instr *ast.Instr) error {
	if c.nesting >= maxBlockNesting {
		return ErrNestingTooDeep
	}
	c.nesting++
	defer func() { c.nesting-- }()

	b := instr.Block
	arity := b.Type.Arity()
	cont := c.labels.alloc()
	stackIdx := c.sstack.len()
	c.sstack.pushLabel(arity, cont)

	start := c.out.offset()
	if err := c.compileInstructions(b.Instructions); err != nil {
		return err
	}
	c.sstack.shiftResultsOverLabel(stackIdx, arity)

	// Branches to a block land after it; branches to a loop re-enter
	// it from the top.
	if instr.Op == ast.OpLoop {
		c.labels.resolve(cont, start)
	} else {
		c.labels.resolve(cont, c.out.offset())
	}
	return nil
}

func (c *compiler) compileIf(n *ast.If) error {
	if c.nesting >= maxBlockNesting {
		return ErrNestingTooDeep
	}
	c.nesting++
	defer func() { c.nesting-- }()

	c.sstack.popValue(wasm.ValueTypeI32)
	c.out.byte(0x58)                      // pop %rax
	c.out.bytes([]byte{0x85, 0xc0})       // test %eax, %eax
	elseOperand := c.out.offset() + 2
	c.out.bytes([]byte{0x0f, 0x84, 0x90, 0x90, 0x90, 0x90}) // je <else>

	arity := n.Type.Arity()
	cont := c.labels.alloc()
	stackIdx := c.sstack.len()
	c.sstack.pushLabel(arity, cont)

	if err := c.compileInstructions(n.Then); err != nil {
		return err
	}

	if len(n.Else) > 0 {
		afterOperand := c.out.offset() + 1
		c.out.bytes([]byte{0xe9, 0x90, 0x90, 0x90, 0x90}) // jmp <after else>
		if err := c.out.patchRel32(elseOperand, elseOperand+4, c.out.offset()); err != nil {
			return err
		}
		if err := c.compileInstructions(n.Else); err != nil {
			return err
		}
		if err := c.out.patchRel32(afterOperand, afterOperand+4, c.out.offset()); err != nil {
			return err
		}
	} else {
		if err := c.out.patchRel32(elseOperand, elseOperand+4, c.out.offset()); err != nil {
			return err
		}
	}

	c.sstack.shiftResultsOverLabel(stackIdx, arity)
	c.labels.resolve(cont, c.out.offset())
	return nil
}

func (c *compiler) compileBrIf(labelIdx uint32) error {
	c.sstack.popValue(wasm.ValueTypeI32)
	c.out.byte(0x5e)                // pop %rsi
	c.out.bytes([]byte{0x85, 0xf6}) // test %esi, %esi

	jeOff := c.out.offset()
	c.out.bytes([]byte{0x74, 0x01}) // je <past branch code>

	if err := c.emitBrCode(labelIdx); err != nil {
		return err
	}

	disp := c.out.offset() - jeOff - 2
	if disp <= 0 || disp > 127 {
		return OverflowError("br_if skip displacement does not fit in 8 bits")
	}
	c.out.patchByte(jeOff+1, byte(disp))
	return nil
}

// compileBrTable emits a range check against the table size, a
// relative jump table and one branch fragment per label. Each entry in
// the table is the fragment's 4-byte offset from the table base; the
// trampoline adds it to the table address and jumps. Out-of-range
// selectors fall to the default fragment, emitted last.
func (c *compiler) compileBrTable(bt *ast.BrTable) error {
	c.sstack.popValue(wasm.ValueTypeI32)
	c.out.byte(0x58) // pop %rax

	n := len(bt.LabelIndices)
	c.out.bytes([]byte{0x48, 0x3d}) // cmp $n, %rax
	c.out.imm32(uint32(n))

	c.out.bytes([]byte{0x0f, 0x83, 0x90, 0x90, 0x90, 0x90}) // jae <default>
	defaultOperand := c.out.offset() - 4

	// lea 9(%rip), %rdx — 9 bytes skips the three instructions below,
	// leaving %rdx at the table base.
	c.out.bytes([]byte{0x48, 0x8d, 0x15, 0x09, 0x00, 0x00, 0x00})
	c.out.bytes([]byte{0x48, 0x63, 0x04, 0x82}) // movslq (%rdx,%rax,4), %rax
	c.out.bytes([]byte{0x48, 0x01, 0xd0})       // add %rdx, %rax
	c.out.bytes([]byte{0xff, 0xe0})             // jmp *%rax

	tableOff := c.out.offset()
	for i := 0; i < n; i++ {
		c.out.bytes([]byte{0x90, 0x90, 0x90, 0x90})
	}

	endJumps := make([]int, n)
	for i, l := range bt.LabelIndices {
		c.out.patchImm32(tableOff+i*4, uint32(c.out.offset()-tableOff))
		if err := c.emitBrCode(l); err != nil {
			return err
		}
		c.out.bytes([]byte{0xe9, 0x90, 0x90, 0x90, 0x90}) // jmp <after table>
		endJumps[i] = c.out.offset()
	}

	if err := c.out.patchRel32(defaultOperand, defaultOperand+4, c.out.offset()); err != nil {
		return err
	}
	if err := c.emitBrCode(bt.DefaultIndex); err != nil {
		return err
	}

	for _, ej := range endJumps {
		if err := c.out.patchRel32(ej-4, ej, c.out.offset()); err != nil {
			return err
		}
	}
	return nil
}

// compileReturn copies the result values (at most one) down to sit
// just below the frame locals, points %rsp at them and jumps to the
// epilogue via the function-exit sentinel continuation.
func (c *compiler) compileReturn() error {
	nOut := c.fnType.NumOutputs()
	nfl := c.frame.nFrameLocals

	if nOut > 0 {
		c.out.bytes([]byte{0x48, 0x8d, 0x74, 0x24}) // lea 8*(nOut-1)(%rsp), %rsi
		c.out.imm8(int32(nOut-1) * 8)
		c.out.bytes([]byte{0x48, 0x8d, 0xbd}) // lea -8*(nfl+1)(%rbp), %rdi
		c.out.imm32(uint32(int32(-(nfl + 1) * 8)))
		c.out.bytes([]byte{0x48, 0xc7, 0xc1}) // mov $nOut, %rcx
		c.out.imm32(uint32(nOut))
		c.out.byte(0xfd)                      // std
		c.out.bytes([]byte{0xf3, 0x48, 0xa5}) // rep movsq
		c.out.byte(0xfc)                      // cld
	}

	c.out.bytes([]byte{0x48, 0x8d, 0xa5}) // lea -8*(nfl+nOut)(%rbp), %rsp
	c.out.imm32(uint32(int32(-(nfl + nOut) * 8)))

	c.emitBranchPlaceholder(funcExitCont)
	return nil
}
