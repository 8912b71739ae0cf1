// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package compile

import "unsafe"

// asmBlock is one function's worth of machine code inside an
// allocator-owned executable mapping.
type asmBlock struct {
	code []byte
}

func (b *asmBlock) Addr() unsafe.Pointer {
	return unsafe.Pointer(&b.code[0])
}

// Bytes returns the code in place, still writable, so a loader can
// patch relocation sites before first use.
func (b *asmBlock) Bytes() []byte {
	return b.code
}

func (b *asmBlock) Invoke(args [6]uint64) (ret uint64, fret uint64) {
	return jitcall(b.Addr(), &args[0])
}

// jitcall transfers control to System V AMD64 code: the six integer
// argument registers are loaded from args, the stack is aligned to 16
// bytes, and the raw %rax / %xmm0 results come back. Implemented in
// jitcall_amd64.s.
func jitcall(code unsafe.Pointer, args *uint64) (ret uint64, fret uint64)
