// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package compile

import (
	mmap "github.com/edsrzf/mmap-go"
)

const (
	// minAllocSize is the granularity of the underlying mappings; a
	// block serves many small functions before a new one is mapped.
	minAllocSize = 32 * 1024
	// allocationAlignment keeps every unit's entry point aligned.
	allocationAlignment = 128
)

type mmapBlock struct {
	mapped    mmap.MMap
	consumed  uint32
	remaining uint32
}

// MMapAllocator hands out chunks of anonymous read-write-execute
// mappings. Allocations are bump-pointer within the current block;
// blocks are only reclaimed as a whole on Close.
type MMapAllocator struct {
	blocks []*mmapBlock
	last   *mmapBlock
}

func roundUpAllocation(n int) uint32 {
	return uint32((n + allocationAlignment - 1) &^ (allocationAlignment - 1))
}

// AllocateExec copies code into executable memory and returns the unit
// wrapping it. The returned memory stays writable so the caller can
// patch relocation sites in place.
func (a *MMapAllocator) AllocateExec(code []byte) (NativeCodeUnit, error) {
	need := roundUpAllocation(len(code))
	if a.last == nil || a.last.remaining < need {
		size := minAllocSize
		if int(need) > minAllocSize {
			size = int(need) + minAllocSize
		}
		m, err := mmap.MapRegion(nil, size, mmap.RDWR|mmap.EXEC, mmap.ANON, 0)
		if err != nil {
			return nil, err
		}
		a.last = &mmapBlock{mapped: m, remaining: uint32(size)}
		a.blocks = append(a.blocks, a.last)
	}

	off := a.last.consumed
	copy(a.last.mapped[off:], code)
	a.last.consumed += need
	a.last.remaining -= need
	return &asmBlock{code: a.last.mapped[off : int(off)+len(code)]}, nil
}

// Close unmaps every block. Units handed out earlier must not be
// invoked afterwards.
func (a *MMapAllocator) Close() error {
	var firstErr error
	for _, b := range a.blocks {
		if err := b.mapped.Unmap(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.blocks, a.last = nil, nil
	return firstErr
}
