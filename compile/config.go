// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package compile

// Config controls per-compilation codegen behavior. There is no
// global state: every compile call takes its own Config.
type Config struct {
	// EmitDebugBreak, when true, emits a single-byte `int3` right
	// after frame establishment in every compiled function's
	// prologue, so a native debugger stops on function entry. The
	// zero value of Config compiles code with no breakpoint.
	EmitDebugBreak bool

	// StrictBoundsCheck selects the memory-access bounds-check
	// formulation. When false (default), every access is checked with
	// a fixed +4 bias and a signed compare against the memory size,
	// whatever the access width: 4-byte accesses are checked exactly,
	// 8-byte accesses may reach up to 4 bytes past the end of memory,
	// and 1- and 2-byte accesses within the top few bytes trap. When
	// true, the check is the exact unsigned `ea + width > size` trap
	// condition.
	StrictBoundsCheck bool
}
