// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package compile

import "github.com/go-interpreter/wasmjit/wasm"

// stackEltKind distinguishes a Value slot (occupies one physical
// 8-byte cell on %rsp) from a Label slot (a compile-time control
// marker occupying none).
type stackEltKind uint8

const (
	stackValue stackEltKind = iota
	stackLabel
)

// labelData is the payload of a Label slot: its block arity and the
// continuation id branches targeting it record into the Branch Table.
type labelData struct {
	arity          int
	continuationID continuationID
}

// stackElt is one entry of the static stack: the compile-time model of
// a single WebAssembly-level operand or control marker.
type stackElt struct {
	kind  stackEltKind
	vtype wasm.ValueType // valid iff kind == stackValue
	label labelData      // valid iff kind == stackLabel
}

// staticStack is the compile-time operand/control stack driving
// register and memory placement decisions for every opcode. A plain
// growable slice is all the structure it needs.
type staticStack struct {
	elts []stackElt
}

func (s *staticStack) pushValue(vt wasm.ValueType) {
	s.elts = append(s.elts, stackElt{kind: stackValue, vtype: vt})
}

func (s *staticStack) pushLabel(arity int, cont continuationID) {
	s.elts = append(s.elts, stackElt{kind: stackLabel, label: labelData{arity: arity, continuationID: cont}})
}

// peekType returns the ValueType of the top stack slot. It panics if
// the stack is empty or the top is a label: under a validated module
// this never happens.
func (s *staticStack) peekType() wasm.ValueType {
	top := s.elts[len(s.elts)-1]
	if top.kind != stackValue {
		panic("compile: peek of label slot as value")
	}
	return top.vtype
}

// pop removes the top slot (value or label) and returns it.
func (s *staticStack) pop() stackElt {
	top := s.elts[len(s.elts)-1]
	s.elts = s.elts[:len(s.elts)-1]
	return top
}

// popValue pops and type-checks a value slot, panicking with
// StackTypeError if the top doesn't hold a value of the expected type.
func (s *staticStack) popValue(want wasm.ValueType) wasm.ValueType {
	got := s.peekType()
	if got != want {
		panic(StackTypeError{Expected: want.String(), Got: got.String()})
	}
	s.pop()
	return got
}

func (s *staticStack) len() int { return len(s.elts) }

// truncate shrinks the stack to n elements, used after a block/if's
// inner instructions complete to restore the label slot's position.
func (s *staticStack) truncate(n int) { s.elts = s.elts[:n] }

// shiftResultsOverLabel finishes a structured block: the top `arity`
// result slots are copied down to sit where the label slot was, then
// the stack is truncated past them. This models a physical-stack fact
// that is true for free — label slots occupy no physical bytes, so
// the result values were already contiguous in memory; only the
// compile-time model needs adjusting.
func (s *staticStack) shiftResultsOverLabel(labelIdx, arity int) {
	copy(s.elts[labelIdx:], s.elts[len(s.elts)-arity:])
	s.truncate(labelIdx + arity)
}

// valueSlotsAbove counts how many Value slots sit above index j
// (exclusive), i.e. how many physical 8-byte cells separate %rsp from
// the stack height j represents. Label slots don't count: they are not
// physical.
func (s *staticStack) valueSlotsAbove(j int) int {
	n := 0
	for i := j + 1; i < len(s.elts); i++ {
		if s.elts[i].kind == stackValue {
			n++
		}
	}
	return n
}

// valueSlots counts the Value slots in the whole stack: the total
// number of live 8-byte operand cells between the frame locals and
// %rsp. Used for the 16-byte alignment parity at call sites.
func (s *staticStack) valueSlots() int {
	n := 0
	for i := range s.elts {
		if s.elts[i].kind == stackValue {
			n++
		}
	}
	return n
}

// findLabel walks the stack from the top down, skipping label markers,
// and returns the index of the Lth label from the top (L=0 is the
// innermost enclosing label).
func (s *staticStack) findLabel(l uint32) int {
	for j := len(s.elts) - 1; j >= 0; j-- {
		if s.elts[j].kind == stackLabel {
			if l == 0 {
				return j
			}
			l--
		}
	}
	panic("compile: branch target label index exceeds enclosing label depth")
}
