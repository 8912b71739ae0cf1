// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package compile

import "unsafe"

// NativeCodeUnit represents compiled native code placed in executable
// memory. Addr exposes the entry point so a loader can both patch the
// unit's relocations in place and store the pointer into FuncInst
// records for direct and indirect calls.
type NativeCodeUnit interface {
	Addr() unsafe.Pointer
	// Invoke calls the unit with up to six integer-register arguments
	// per the System V convention and returns the raw %rax and %xmm0
	// values.
	Invoke(args [6]uint64) (ret uint64, fret uint64)
}

// PageAllocator copies machine code into memory pages that are mapped
// executable.
type PageAllocator interface {
	AllocateExec(code []byte) (NativeCodeUnit, error)
	Close() error
}
