// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package compile

import (
	"errors"
	"fmt"

	"github.com/go-interpreter/wasmjit/ast"
)

// ErrTooManyResults is returned when a function type declares more than
// one result value; the compiler supports at most one.
var ErrTooManyResults = errors.New("compile: function type has more than one result")

// ErrStackUnbalancedReturn is returned when the static stack at a
// function's exit doesn't hold exactly the declared result arity —
// a validator bug upstream, since this core trusts a validated module.
var ErrStackUnbalancedReturn = errors.New("compile: static stack height at return does not match function result arity")

// UnsupportedOpcodeError is returned when the instruction translator
// encounters an opcode outside the set it implements.
type UnsupportedOpcodeError ast.Opcode

func (e UnsupportedOpcodeError) Error() string {
	return fmt.Sprintf("compile: unsupported opcode 0x%02x (%s)", byte(e), ast.Opcode(e))
}

// OverflowError is returned when layout arithmetic (a frame offset, a
// branch displacement, a stack-shift computation) would not fit in the
// signed 32-bit immediates generated code uses.
type OverflowError string

func (e OverflowError) Error() string { return "compile: " + string(e) }

// StackTypeError is returned when the static stack's slot type at the
// top does not match what an opcode declares it consumes. Under a
// validated module this never triggers; it exists so a translator bug
// fails loudly rather than silently emitting wrong code.
type StackTypeError struct {
	Expected string
	Got      string
}

func (e StackTypeError) Error() string {
	return fmt.Sprintf("compile: expected %s on stack, got %s", e.Expected, e.Got)
}
