// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package compile

import "encoding/binary"

// outputBuffer is the growable byte vector machine code is streamed
// into. It is push-only except for the in-place patches branch/label
// resolution performs once targets are known: no table here ever
// needs random-access growth, only append and overwrite-in-place.
type outputBuffer struct {
	buf []byte
}

// offset returns the position the next write will land at.
func (o *outputBuffer) offset() int { return len(o.buf) }

func (o *outputBuffer) bytes(b []byte) {
	o.buf = append(o.buf, b...)
}

func (o *outputBuffer) byte(b byte) {
	o.buf = append(o.buf, b)
}

// imm8 appends a signed byte immediate; values must fit in an int8.
func (o *outputBuffer) imm8(v int32) {
	if v > 127 || v < -128 {
		panic(OverflowError("imm8 out of range"))
	}
	o.buf = append(o.buf, byte(int8(v)))
}

func (o *outputBuffer) imm32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	o.buf = append(o.buf, b[:]...)
}

func (o *outputBuffer) imm64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	o.buf = append(o.buf, b[:]...)
}

// patchByte overwrites a single byte, used for the short-jump operand
// br_if fixes up after its branch code is emitted.
func (o *outputBuffer) patchByte(offset int, b byte) {
	o.buf[offset] = b
}

// patchImm32 overwrites the 4-byte little-endian value at offset.
func (o *outputBuffer) patchImm32(offset int, v uint32) {
	binary.LittleEndian.PutUint32(o.buf[offset:offset+4], v)
}

// patchRel32 computes the relative displacement from the end of a
// 4-byte operand at instrEnd to target, and writes it in place. It
// reports an OverflowError if the displacement doesn't fit in int32;
// an out-of-range displacement fails the whole function.
func (o *outputBuffer) patchRel32(operandOffset, instrEnd, target int) error {
	rel := int64(target) - int64(instrEnd)
	if rel > int64(maxInt32) || rel < int64(minInt32) {
		return OverflowError("branch displacement does not fit in 32 bits")
	}
	o.patchImm32(operandOffset, uint32(int32(rel)))
	return nil
}

const (
	maxInt32 = 1<<31 - 1
	minInt32 = -1 << 31
)
