// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package compile

import (
	"github.com/go-interpreter/wasmjit/ast"
	"github.com/go-interpreter/wasmjit/wasm"
)

// maxGPArgRegs and maxSSEArgRegs are the number of System V AMD64
// integer/pointer and SSE argument registers respectively.
const (
	maxGPArgRegs  = 6
	maxSSEArgRegs = 8
)

// localsMD is one local variable's (or parameter's) frame slot: its
// WebAssembly type and its %rbp-relative offset. Negative offsets are
// spill slots inside the callee's own frame; non-negative offsets
// above +8 are the caller's stack-passed arguments, read directly
// without being re-spilled.
type localsMD struct {
	valType  wasm.ValueType
	fpOffset int32
}

func isGPType(vt wasm.ValueType) bool {
	return vt == wasm.ValueTypeI32 || vt == wasm.ValueTypeI64
}

// frameLayout is the result of laying out one function's parameters
// and declared locals onto its frame: register-passed parameters are
// spilled to sequential slots below the saved frame pointer in
// argument order regardless of GP/SSE class; stack-passed overflow
// parameters are read in place from the caller's frame; declared
// locals (zero-initialized) occupy the remaining slots below the
// spilled parameters.
type frameLayout struct {
	locals       []localsMD // index 0..len(params)-1 are parameters, rest are declared locals
	nRegParams   int        // register-passed parameters, spilled into the frame
	nDeclared    int        // declared (non-parameter) locals
	nFrameLocals int        // total 8-byte slots the prologue must reserve: nRegParams + nDeclared
}

// layoutFrame computes a function's frame slot assignment from its
// parameter types and its declared-local counts.
func layoutFrame(params []wasm.ValueType, declared []ast.Local) frameLayout {
	var fl frameLayout
	fl.locals = make([]localsMD, 0, len(params))

	nGP, nSSE, nStack := 0, 0, 0
	for _, vt := range params {
		if isGPType(vt) {
			if nGP < maxGPArgRegs {
				fl.locals = append(fl.locals, localsMD{valType: vt, fpOffset: -int32(1+fl.nRegParams) * 8})
				nGP++
				fl.nRegParams++
				continue
			}
		} else {
			if nSSE < maxSSEArgRegs {
				fl.locals = append(fl.locals, localsMD{valType: vt, fpOffset: -int32(1+fl.nRegParams) * 8})
				nSSE++
				fl.nRegParams++
				continue
			}
		}
		// Overflow: read directly from the caller's frame. [rbp+0] is
		// the saved rbp, [rbp+8] the return address, [rbp+16] the
		// first stack-passed argument.
		fl.locals = append(fl.locals, localsMD{valType: vt, fpOffset: int32(nStack+2) * 8})
		nStack++
	}

	for _, l := range declared {
		for i := uint32(0); i < l.Count; i++ {
			fl.locals = append(fl.locals, localsMD{valType: l.Type, fpOffset: -int32(1+fl.nRegParams+fl.nDeclared) * 8})
			fl.nDeclared++
		}
	}

	fl.nFrameLocals = fl.nRegParams + fl.nDeclared
	return fl
}
