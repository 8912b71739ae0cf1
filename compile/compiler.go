// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package compile translates one validated, already-parsed WebAssembly
// function body into directly-executable x86-64 machine code in a
// single streaming pass. The output is a contiguous byte buffer plus a
// relocation table naming the 8-byte immediates inside it that a loader
// must patch with runtime addresses of function, global, memory and
// table instances before the code can run.
//
// Generated code follows the System V AMD64 calling convention. Every
// operand-stack slot is one 8-byte cell on %rsp; i32 and f32 values are
// stored zero-extended, an invariant the wrap/extend and comparison
// emitters rely on. %rbp anchors the frame; %rax, %rcx, %rdx, %rsi and
// %rdi serve as fixed scratch registers. There is no register
// allocation beyond that.
package compile

import (
	"errors"

	"github.com/go-interpreter/wasmjit/ast"
	"github.com/go-interpreter/wasmjit/wasm"
)

// maxBlockNesting bounds recursion over nested block/loop/if bodies so
// a pathologically deep instruction tree fails softly instead of
// exhausting the goroutine stack.
const maxBlockNesting = 512

// ErrNestingTooDeep is returned when a function body nests structured
// control deeper than maxBlockNesting levels.
var ErrNestingTooDeep = errors.New("compile: control nesting exceeds supported depth")

// CompiledFunction is the result of compiling one function body: the
// machine code and the relocation sites the loader must patch before
// the code is runnable.
type CompiledFunction struct {
	Code   []byte
	Relocs []Reloc
}

type compiler struct {
	cfg       Config
	funcTypes []wasm.FuncType // type section, indexed by type index
	mod       *wasm.ModuleTypes
	fnType    wasm.FuncType
	frame     frameLayout

	out      outputBuffer
	labels   labelTable
	branches branchTable
	relocs   RelocEntries
	sstack   staticStack
	nesting  int
}

// CompileFunction translates a single function body. funcTypes is the
// module's type section (consulted by call_indirect); mod carries the
// per-index-space tables (function signatures by function index, global
// and memory types); fnType is the function's own signature; code is
// its declared locals and instruction tree.
//
// The input is assumed validated. Violations of validator-guaranteed
// invariants (a branch past the outermost label, an operand of the
// wrong type) indicate a bug upstream and surface as errors or panics
// rather than silently wrong code.
func CompileFunction(funcTypes []wasm.FuncType, mod *wasm.ModuleTypes, fnType wasm.FuncType, code *ast.CodeSectionCode, cfg Config) (cf *CompiledFunction, err error) {
	if fnType.NumOutputs() > 1 {
		return nil, ErrTooManyResults
	}

	c := &compiler{
		cfg:       cfg,
		funcTypes: funcTypes,
		mod:       mod,
		fnType:    fnType,
		frame:     layoutFrame(fnType.Params, code.Locals),
	}
	// Frame offsets and the stack-cleanup immediates after calls are
	// 32-bit; reject layouts whose arithmetic cannot fit.
	if int64(c.frame.nFrameLocals+len(fnType.Params)+2)*8 > maxInt32 {
		return nil, OverflowError("frame layout exceeds 32-bit offsets")
	}

	// The byte emitters report overflow and operand-type violations by
	// panicking with one of the package error types; unwind them into
	// the error return so a failed function never yields partial code.
	defer func() {
		switch r := recover().(type) {
		case nil:
		case OverflowError:
			cf, err = nil, r
		case StackTypeError:
			cf, err = nil, r
		default:
			panic(r)
		}
	}()

	c.emitPrologue()
	if err := c.compileInstructions(code.Instructions); err != nil {
		return nil, err
	}
	if err := c.branches.resolveAll(&c.out, &c.labels, c.out.offset()); err != nil {
		return nil, err
	}
	if err := c.emitEpilogue(); err != nil {
		return nil, err
	}
	return &CompiledFunction{Code: c.out.buf, Relocs: c.relocs.Entries}, nil
}

// Register spill templates for the prologue, indexed by how many
// arguments of the class have been spilled so far. Each is followed by
// a one-byte %rbp displacement.
var gpSpills = [maxGPArgRegs][]byte{
	{0x48, 0x89, 0x7d}, // mov %rdi, N(%rbp)
	{0x48, 0x89, 0x75}, // mov %rsi, N(%rbp)
	{0x48, 0x89, 0x55}, // mov %rdx, N(%rbp)
	{0x48, 0x89, 0x4d}, // mov %rcx, N(%rbp)
	{0x4c, 0x89, 0x45}, // mov %r8, N(%rbp)
	{0x4c, 0x89, 0x4d}, // mov %r9, N(%rbp)
}

var ssef32Spills = [maxSSEArgRegs][]byte{
	{0xf3, 0x0f, 0x11, 0x45}, // movss %xmm0, N(%rbp)
	{0xf3, 0x0f, 0x11, 0x4d}, // movss %xmm1, N(%rbp)
	{0xf3, 0x0f, 0x11, 0x55}, // movss %xmm2, N(%rbp)
	{0xf3, 0x0f, 0x11, 0x5d}, // movss %xmm3, N(%rbp)
	{0xf3, 0x0f, 0x11, 0x65}, // movss %xmm4, N(%rbp)
	{0xf3, 0x0f, 0x11, 0x6d}, // movss %xmm5, N(%rbp)
	{0xf3, 0x0f, 0x11, 0x75}, // movss %xmm6, N(%rbp)
	{0xf3, 0x0f, 0x11, 0x7d}, // movss %xmm7, N(%rbp)
}

var ssef64Spills = [maxSSEArgRegs][]byte{
	{0xf2, 0x0f, 0x11, 0x45}, // movsd %xmm0, N(%rbp)
	{0xf2, 0x0f, 0x11, 0x4d}, // movsd %xmm1, N(%rbp)
	{0xf2, 0x0f, 0x11, 0x55}, // movsd %xmm2, N(%rbp)
	{0xf2, 0x0f, 0x11, 0x5d}, // movsd %xmm3, N(%rbp)
	{0xf2, 0x0f, 0x11, 0x65}, // movsd %xmm4, N(%rbp)
	{0xf2, 0x0f, 0x11, 0x6d}, // movsd %xmm5, N(%rbp)
	{0xf2, 0x0f, 0x11, 0x75}, // movsd %xmm6, N(%rbp)
	{0xf2, 0x0f, 0x11, 0x7d}, // movsd %xmm7, N(%rbp)
}

// emitPrologue establishes the frame: save the caller's %rbp, anchor
// the new frame, reserve one 8-byte cell per frame local, spill the
// register-passed parameters into their slots and zero the declared
// locals.
func (c *compiler) emitPrologue() {
	c.out.byte(0x55)                         // push %rbp
	c.out.bytes([]byte{0x48, 0x89, 0xe5})    // mov %rsp, %rbp
	if c.cfg.EmitDebugBreak {
		c.out.byte(0xcc) // int3
	}
	if n := c.frame.nFrameLocals; n > 0 {
		c.out.bytes([]byte{0x48, 0x81, 0xec}) // sub $8*n, %rsp
		c.out.imm32(uint32(n) * 8)
	}

	nGP, nSSE := 0, 0
	for i, vt := range c.fnType.Params {
		md := c.frame.locals[i]
		if md.fpOffset > 0 {
			// Passed on the caller's stack; read in place.
			continue
		}
		if isGPType(vt) {
			c.out.bytes(gpSpills[nGP])
			nGP++
		} else if vt == wasm.ValueTypeF32 {
			c.out.bytes(ssef32Spills[nSSE])
			nSSE++
		} else {
			c.out.bytes(ssef64Spills[nSSE])
			nSSE++
		}
		c.out.imm8(md.fpOffset)
	}

	switch n := c.frame.nDeclared; {
	case n == 1:
		// movq $0, (%rsp)
		c.out.bytes([]byte{0x48, 0xc7, 0x04, 0x24, 0x00, 0x00, 0x00, 0x00})
	case n > 1:
		c.out.bytes([]byte{0x48, 0x89, 0xe7}) // mov %rsp, %rdi
		c.out.bytes([]byte{0x48, 0x31, 0xc0}) // xor %rax, %rax
		c.out.bytes([]byte{0x48, 0xc7, 0xc1}) // mov $n, %rcx
		c.out.imm32(uint32(n))
		c.out.byte(0xfc)                      // cld
		c.out.bytes([]byte{0xf3, 0x48, 0xab}) // rep stosq
	}
}

// emitEpilogue pops the result (if any) into its return register,
// releases the frame locals and returns. The static stack must hold
// exactly the declared result arity by the time the body falls
// through; anything else means the upstream validator let an
// unbalanced body past.
func (c *compiler) emitEpilogue() error {
	if c.fnType.NumOutputs() == 1 {
		if c.sstack.len() != 1 {
			return ErrStackUnbalancedReturn
		}
		res := c.fnType.Results[0]
		if c.sstack.peekType() != res {
			return ErrStackUnbalancedReturn
		}
		c.sstack.pop()
		if res == wasm.ValueTypeF32 || res == wasm.ValueTypeF64 {
			// Floating results travel in %xmm0 per the System V ABI.
			c.out.bytes([]byte{0xf2, 0x0f, 0x10, 0x04, 0x24}) // movsd (%rsp), %xmm0
			c.out.bytes([]byte{0x48, 0x83, 0xc4, 0x08})       // add $8, %rsp
		} else {
			c.out.byte(0x58) // pop %rax
		}
	} else if c.sstack.len() != 0 {
		return ErrStackUnbalancedReturn
	}

	if n := c.frame.nFrameLocals; n > 0 {
		c.out.bytes([]byte{0x48, 0x81, 0xc4}) // add $8*n, %rsp
		c.out.imm32(uint32(n) * 8)
	}
	c.out.byte(0x5d) // pop %rbp
	c.out.byte(0xc3) // retq
	return nil
}

func (c *compiler) compileInstructions(instrs []ast.Instr) error {
	for i := range instrs {
		if err := c.compileInstruction(&instrs[i]); err != nil {
			return err
		}
	}
	return nil
}

func (c *compiler) compileInstruction(instr *ast.Instr) error {
	switch instr.Op {
	case ast.OpUnreachable:
		c.out.bytes([]byte{0x0f, 0x0b}) // ud2
	case ast.OpNop:
	case ast.OpBlock, ast.OpLoop:
		return c.compileBlock(instr)
	case ast.OpIf:
		return c.compileIf(instr.If)
	case ast.OpBr:
		return c.emitBrCode(instr.LabelIndex)
	case ast.OpBrIf:
		return c.compileBrIf(instr.LabelIndex)
	case ast.OpBrTable:
		return c.compileBrTable(instr.BrTable)
	case ast.OpReturn:
		return c.compileReturn()
	case ast.OpCall:
		return c.compileCall(instr.FuncIndex)
	case ast.OpCallIndirect:
		return c.compileCallIndirect(instr.TypeIndex)
	case ast.OpDrop:
		c.out.bytes([]byte{0x48, 0x83, 0xc4, 0x08}) // add $8, %rsp
		c.sstack.pop()
	case ast.OpGetLocal, ast.OpSetLocal, ast.OpTeeLocal:
		c.compileLocal(instr)
	case ast.OpGetGlobal, ast.OpSetGlobal:
		c.compileGlobal(instr)
	case ast.OpI32Const, ast.OpI64Const, ast.OpF64Const:
		c.compileConst(instr)
	case ast.OpI32Load, ast.OpI64Load, ast.OpF64Load, ast.OpI32Load8S,
		ast.OpI32Store, ast.OpI64Store, ast.OpF64Store, ast.OpI32Store8, ast.OpI32Store16:
		return c.compileMemAccess(instr)
	default:
		return c.compileNumeric(instr.Op)
	}
	return nil
}
