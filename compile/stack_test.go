// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package compile

import (
	"testing"

	"github.com/go-interpreter/wasmjit/wasm"
)

func TestStaticStackFindLabel(t *testing.T) {
	var s staticStack
	s.pushLabel(0, 0)
	s.pushValue(wasm.ValueTypeI32)
	s.pushLabel(1, 1)
	s.pushValue(wasm.ValueTypeI64)
	s.pushValue(wasm.ValueTypeF64)

	if got, want := s.findLabel(0), 2; got != want {
		t.Errorf("findLabel(0) = %d, want %d", got, want)
	}
	if got, want := s.findLabel(1), 0; got != want {
		t.Errorf("findLabel(1) = %d, want %d", got, want)
	}
}

func TestStaticStackValueSlots(t *testing.T) {
	var s staticStack
	s.pushValue(wasm.ValueTypeI32)
	s.pushLabel(0, 0)
	s.pushValue(wasm.ValueTypeI64)
	s.pushLabel(1, 1)
	s.pushValue(wasm.ValueTypeF64)

	if got, want := s.valueSlots(), 3; got != want {
		t.Errorf("valueSlots = %d, want %d", got, want)
	}
	// Above the outer label (index 1) sit one label and two values.
	if got, want := s.valueSlotsAbove(1), 2; got != want {
		t.Errorf("valueSlotsAbove(1) = %d, want %d", got, want)
	}
	if got, want := s.valueSlotsAbove(3), 1; got != want {
		t.Errorf("valueSlotsAbove(3) = %d, want %d", got, want)
	}
}

func TestStaticStackShiftResultsOverLabel(t *testing.T) {
	var s staticStack
	s.pushValue(wasm.ValueTypeI32) // survives below the label
	labelIdx := s.len()
	s.pushLabel(1, 0)
	s.pushValue(wasm.ValueTypeI64) // intermediate, discarded
	s.pushValue(wasm.ValueTypeF64) // block result

	s.shiftResultsOverLabel(labelIdx, 1)

	if got, want := s.len(), 2; got != want {
		t.Fatalf("len = %d, want %d", got, want)
	}
	if got := s.peekType(); got != wasm.ValueTypeF64 {
		t.Errorf("top = %s, want f64", got)
	}
	if got := s.elts[0].vtype; got != wasm.ValueTypeI32 {
		t.Errorf("bottom = %s, want i32", got)
	}
}

func TestStaticStackShiftZeroArity(t *testing.T) {
	var s staticStack
	labelIdx := s.len()
	s.pushLabel(0, 0)
	s.pushValue(wasm.ValueTypeI32)

	s.shiftResultsOverLabel(labelIdx, 0)
	if got, want := s.len(), 0; got != want {
		t.Errorf("len = %d, want %d", got, want)
	}
}
