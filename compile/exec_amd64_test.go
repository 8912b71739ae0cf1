// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package compile

import (
	"encoding/binary"
	"math"
	"runtime"
	"testing"
	"unsafe"

	"github.com/go-interpreter/wasmjit/ast"
	"github.com/go-interpreter/wasmjit/rt"
	"github.com/go-interpreter/wasmjit/wasm"
)

var (
	typeI64ToI64 = wasm.FuncType{
		Params:  []wasm.ValueType{wasm.ValueTypeI64},
		Results: []wasm.ValueType{wasm.ValueTypeI64},
	}
	typeI32I32ToI32 = wasm.FuncType{
		Params:  []wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeI32},
		Results: []wasm.ValueType{wasm.ValueTypeI32},
	}
	typeToI32 = wasm.FuncType{Results: []wasm.ValueType{wasm.ValueTypeI32}}
	typeToI64 = wasm.FuncType{Results: []wasm.ValueType{wasm.ValueTypeI64}}
	typeToF64 = wasm.FuncType{Results: []wasm.ValueType{wasm.ValueTypeF64}}
)

func execAllocator(t *testing.T) *MMapAllocator {
	t.Helper()
	if runtime.GOOS != "linux" {
		t.Skip("executable mappings are only exercised on linux")
	}
	a := &MMapAllocator{}
	t.Cleanup(func() { a.Close() })
	return a
}

// link copies a compiled function into executable memory and patches
// its relocation sites through resolve, standing in for the module
// loader.
func link(t *testing.T, a *MMapAllocator, cf *CompiledFunction, resolve func(Reloc) uintptr) *asmBlock {
	t.Helper()
	unit, err := a.AllocateExec(cf.Code)
	if err != nil {
		t.Fatalf("AllocateExec: %v", err)
	}
	b := unit.(*asmBlock)
	code := b.Bytes()
	for _, r := range cf.Relocs {
		if resolve == nil {
			t.Fatalf("unexpected reloc %+v with no resolver", r)
		}
		binary.LittleEndian.PutUint64(code[r.CodeOffset:], uint64(resolve(r)))
	}
	return b
}

func compileAndLink(t *testing.T, a *MMapAllocator, fnType wasm.FuncType, mod *wasm.ModuleTypes, resolve func(Reloc) uintptr, body ...ast.Instr) *asmBlock {
	t.Helper()
	return link(t, a, compileBody(t, fnType, mod, Config{}, body...), resolve)
}

func TestExecIdentityI32(t *testing.T) {
	a := execAllocator(t)
	fn := compileAndLink(t, a, typeI32ToI32, emptyModule(), nil,
		ast.Instr{Op: ast.OpGetLocal, LocalIndex: 0},
		ast.Instr{Op: ast.OpReturn},
	)
	ret, _ := fn.Invoke([6]uint64{42})
	if uint32(ret) != 42 {
		t.Errorf("identity(42) = %d, want 42", uint32(ret))
	}
}

// TestExecSumLoop computes sum(1..n) with a loop/br_if pair: the
// canonical workout for label continuations and conditional branches.
func TestExecSumLoop(t *testing.T) {
	a := execAllocator(t)
	body := []ast.Instr{
		{Op: ast.OpBlock, Block: &ast.Block{Type: wasm.BlockTypeEmpty, Instructions: []ast.Instr{
			{Op: ast.OpLoop, Block: &ast.Block{Type: wasm.BlockTypeEmpty, Instructions: []ast.Instr{
				{Op: ast.OpGetLocal, LocalIndex: 0},
				{Op: ast.OpI32Eqz},
				{Op: ast.OpBrIf, LabelIndex: 1},
				{Op: ast.OpGetLocal, LocalIndex: 1},
				{Op: ast.OpGetLocal, LocalIndex: 0},
				{Op: ast.OpI32Add},
				{Op: ast.OpSetLocal, LocalIndex: 1},
				{Op: ast.OpGetLocal, LocalIndex: 0},
				{Op: ast.OpI32Const, I32: 1},
				{Op: ast.OpI32Sub},
				{Op: ast.OpSetLocal, LocalIndex: 0},
				{Op: ast.OpBr, LabelIndex: 0},
			}}},
		}}},
		{Op: ast.OpGetLocal, LocalIndex: 1},
	}
	code := &ast.CodeSectionCode{
		Locals:       []ast.Local{{Count: 1, Type: wasm.ValueTypeI32}},
		Instructions: body,
	}
	cf, err := CompileFunction(nil, emptyModule(), typeI32ToI32, code, Config{})
	if err != nil {
		t.Fatalf("CompileFunction: %v", err)
	}
	fn := link(t, a, cf, nil)

	for _, tc := range []struct{ n, want uint32 }{{10, 55}, {0, 0}, {1, 1}, {100, 5050}} {
		ret, _ := fn.Invoke([6]uint64{uint64(tc.n)})
		if uint32(ret) != tc.want {
			t.Errorf("sum(%d) = %d, want %d", tc.n, uint32(ret), tc.want)
		}
	}
}

func TestExecIfElse(t *testing.T) {
	a := execAllocator(t)
	fn := compileAndLink(t, a, typeI32ToI32, emptyModule(), nil,
		ast.Instr{Op: ast.OpGetLocal, LocalIndex: 0},
		ast.Instr{Op: ast.OpIf, If: &ast.If{
			Type: wasm.BlockType(wasm.ValueTypeI32),
			Then: []ast.Instr{{Op: ast.OpI32Const, I32: 10}},
			Else: []ast.Instr{{Op: ast.OpI32Const, I32: 20}},
		}},
	)
	if ret, _ := fn.Invoke([6]uint64{1}); uint32(ret) != 10 {
		t.Errorf("if(1) = %d, want 10", uint32(ret))
	}
	if ret, _ := fn.Invoke([6]uint64{0}); uint32(ret) != 20 {
		t.Errorf("if(0) = %d, want 20", uint32(ret))
	}
}

func TestExecBrTable(t *testing.T) {
	a := execAllocator(t)
	body := []ast.Instr{
		{Op: ast.OpBlock, Block: &ast.Block{Type: wasm.BlockTypeEmpty, Instructions: []ast.Instr{
			{Op: ast.OpBlock, Block: &ast.Block{Type: wasm.BlockTypeEmpty, Instructions: []ast.Instr{
				{Op: ast.OpGetLocal, LocalIndex: 0},
				{Op: ast.OpBrTable, BrTable: &ast.BrTable{
					LabelIndices: []uint32{0, 1},
					DefaultIndex: 1,
				}},
			}}},
			{Op: ast.OpI32Const, I32: 10},
			{Op: ast.OpReturn},
		}}},
		{Op: ast.OpI32Const, I32: 20},
	}
	fn := compileAndLink(t, a, typeI32ToI32, emptyModule(), nil, body...)

	for _, tc := range []struct{ sel, want uint32 }{{0, 10}, {1, 20}, {2, 20}, {100, 20}} {
		ret, _ := fn.Invoke([6]uint64{uint64(tc.sel)})
		if uint32(ret) != tc.want {
			t.Errorf("br_table(%d) = %d, want %d", tc.sel, uint32(ret), tc.want)
		}
	}
}

func TestExecI32Binary(t *testing.T) {
	a := execAllocator(t)
	cases := []struct {
		name string
		op   ast.Opcode
		x, y uint32
		want uint32
	}{
		{"add", ast.OpI32Add, 3, 4, 7},
		{"sub", ast.OpI32Sub, 3, 4, 0xffffffff},
		{"mul", ast.OpI32Mul, 6, 7, 42},
		{"and", ast.OpI32And, 0xff00ff00, 0x0ff00ff0, 0x0f000f00},
		{"or", ast.OpI32Or, 0xf0f00000, 0x0f0f0000, 0xffff0000},
		{"xor", ast.OpI32Xor, 0xffffffff, 0x0000ffff, 0xffff0000},
		{"shl", ast.OpI32Shl, 1, 5, 32},
		{"shr_s", ast.OpI32ShrS, 0xfffffff8, 1, 0xfffffffc}, // -8 >> 1 = -4
		{"shr_u", ast.OpI32ShrU, 0x80000000, 31, 1},
		{"div_s", ast.OpI32DivS, 0xfffffff9, 2, 0xfffffffd}, // -7 / 2 = -3
		{"div_u", ast.OpI32DivU, 7, 2, 3},
		{"rem_s", ast.OpI32RemS, 0xfffffff9, 2, 0xffffffff}, // -7 % 2 = -1
		{"rem_u", ast.OpI32RemU, 7, 2, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fn := compileAndLink(t, a, typeI32I32ToI32, emptyModule(), nil,
				ast.Instr{Op: ast.OpGetLocal, LocalIndex: 0},
				ast.Instr{Op: ast.OpGetLocal, LocalIndex: 1},
				ast.Instr{Op: tc.op},
			)
			ret, _ := fn.Invoke([6]uint64{uint64(tc.x), uint64(tc.y)})
			if uint32(ret) != tc.want {
				t.Errorf("%s(%#x, %#x) = %#x, want %#x", tc.name, tc.x, tc.y, uint32(ret), tc.want)
			}
		})
	}
}

func TestExecI32Compare(t *testing.T) {
	a := execAllocator(t)
	cases := []struct {
		name string
		op   ast.Opcode
		x, y uint32
		want uint32
	}{
		{"eq", ast.OpI32Eq, 5, 5, 1},
		{"ne", ast.OpI32Ne, 5, 5, 0},
		{"lt_s", ast.OpI32LtS, 0xffffffff, 1, 1}, // -1 < 1
		{"lt_u", ast.OpI32LtU, 0xffffffff, 1, 0},
		{"gt_s", ast.OpI32GtS, 2, 1, 1},
		{"gt_u", ast.OpI32GtU, 1, 0xffffffff, 0},
		{"le_s", ast.OpI32LeS, 1, 1, 1},
		{"le_u", ast.OpI32LeU, 2, 1, 0},
		{"ge_s", ast.OpI32GeS, 0xffffffff, 0, 0}, // -1 >= 0 is false
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fn := compileAndLink(t, a, typeI32I32ToI32, emptyModule(), nil,
				ast.Instr{Op: ast.OpGetLocal, LocalIndex: 0},
				ast.Instr{Op: ast.OpGetLocal, LocalIndex: 1},
				ast.Instr{Op: tc.op},
			)
			ret, _ := fn.Invoke([6]uint64{uint64(tc.x), uint64(tc.y)})
			if uint32(ret) != tc.want {
				t.Errorf("%s(%#x, %#x) = %d, want %d", tc.name, tc.x, tc.y, uint32(ret), tc.want)
			}
		})
	}
}

func TestExecI64Binary(t *testing.T) {
	a := execAllocator(t)
	typ := wasm.FuncType{
		Params:  []wasm.ValueType{wasm.ValueTypeI64, wasm.ValueTypeI64},
		Results: []wasm.ValueType{wasm.ValueTypeI64},
	}
	cases := []struct {
		name string
		op   ast.Opcode
		x, y uint64
		want uint64
	}{
		{"add", ast.OpI64Add, 1 << 40, 1, 1<<40 + 1},
		{"sub", ast.OpI64Sub, 0, 1, 0xffffffffffffffff},
		{"mul", ast.OpI64Mul, 1 << 33, 4, 1 << 35},
		{"and", ast.OpI64And, 0xff, 0x0f, 0x0f},
		{"or", ast.OpI64Or, 0xf0, 0x0f, 0xff},
		{"shl", ast.OpI64Shl, 1, 40, 1 << 40},
		{"shr_s", ast.OpI64ShrS, 0x8000000000000000, 63, 0xffffffffffffffff},
		{"shr_u", ast.OpI64ShrU, 0x8000000000000000, 63, 1},
		{"div_s", ast.OpI64DivS, 0xfffffffffffffff9, 2, 0xfffffffffffffffd},
		{"div_u", ast.OpI64DivU, 1 << 40, 2, 1 << 39},
		{"rem_s", ast.OpI64RemS, 0xfffffffffffffff9, 2, 0xffffffffffffffff},
		{"rem_u", ast.OpI64RemU, (1 << 40) + 3, 2, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fn := compileAndLink(t, a, typ, emptyModule(), nil,
				ast.Instr{Op: ast.OpGetLocal, LocalIndex: 0},
				ast.Instr{Op: ast.OpGetLocal, LocalIndex: 1},
				ast.Instr{Op: tc.op},
			)
			ret, _ := fn.Invoke([6]uint64{tc.x, tc.y})
			if ret != tc.want {
				t.Errorf("%s(%#x, %#x) = %#x, want %#x", tc.name, tc.x, tc.y, ret, tc.want)
			}
		})
	}
}

func TestExecI64Compare(t *testing.T) {
	a := execAllocator(t)
	typ := wasm.FuncType{
		Params:  []wasm.ValueType{wasm.ValueTypeI64, wasm.ValueTypeI64},
		Results: []wasm.ValueType{wasm.ValueTypeI32},
	}
	cases := []struct {
		name string
		op   ast.Opcode
		x, y uint64
		want uint32
	}{
		{"eq", ast.OpI64Eq, 1 << 40, 1 << 40, 1},
		{"ne", ast.OpI64Ne, 1 << 40, 1<<40 + 1, 1},
		{"lt_s", ast.OpI64LtS, 0xffffffffffffffff, 1, 1}, // -1 < 1
		{"gt_u", ast.OpI64GtU, 0xffffffffffffffff, 1, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fn := compileAndLink(t, a, typ, emptyModule(), nil,
				ast.Instr{Op: ast.OpGetLocal, LocalIndex: 0},
				ast.Instr{Op: ast.OpGetLocal, LocalIndex: 1},
				ast.Instr{Op: tc.op},
			)
			ret, _ := fn.Invoke([6]uint64{tc.x, tc.y})
			if uint32(ret) != tc.want {
				t.Errorf("%s(%#x, %#x) = %d, want %d", tc.name, tc.x, tc.y, uint32(ret), tc.want)
			}
		})
	}
}

func TestExecTeeLocal(t *testing.T) {
	a := execAllocator(t)
	// tee_local writes through without popping: local 1 observes the
	// value and the original stays for the add.
	code := &ast.CodeSectionCode{
		Locals: []ast.Local{{Count: 1, Type: wasm.ValueTypeI32}},
		Instructions: []ast.Instr{
			{Op: ast.OpGetLocal, LocalIndex: 0},
			{Op: ast.OpTeeLocal, LocalIndex: 1},
			{Op: ast.OpGetLocal, LocalIndex: 1},
			{Op: ast.OpI32Add},
		},
	}
	cf, err := CompileFunction(nil, emptyModule(), typeI32ToI32, code, Config{})
	if err != nil {
		t.Fatalf("CompileFunction: %v", err)
	}
	fn := link(t, a, cf, nil)
	if ret, _ := fn.Invoke([6]uint64{21}); uint32(ret) != 42 {
		t.Errorf("tee+add(21) = %d, want 42", uint32(ret))
	}
}

func TestExecMemoryStoreLoad(t *testing.T) {
	a := execAllocator(t)
	data := make([]byte, 65536)
	mi := &rt.MemInst{Size: 65536, Data: unsafe.Pointer(&data[0])}
	resolve := func(r Reloc) uintptr {
		if r.Kind != RelocMem {
			t.Fatalf("unexpected reloc kind %s", r.Kind)
		}
		return uintptr(unsafe.Pointer(mi))
	}

	mod := &wasm.ModuleTypes{MemTypes: []wasm.MemType{{}}}
	fn := compileAndLink(t, a, typeToI32, mod, resolve,
		// Unaligned store at address 4, then load it back.
		ast.Instr{Op: ast.OpI32Const, I32: 4},
		ast.Instr{Op: ast.OpI32Const, I32: 0xdeadbeef},
		ast.Instr{Op: ast.OpI32Store},
		ast.Instr{Op: ast.OpI32Const, I32: 4},
		ast.Instr{Op: ast.OpI32Load},
	)
	ret, _ := fn.Invoke([6]uint64{})
	if uint32(ret) != 0xdeadbeef {
		t.Errorf("load = %#x, want 0xdeadbeef", uint32(ret))
	}
	if got := binary.LittleEndian.Uint32(data[4:]); got != 0xdeadbeef {
		t.Errorf("memory cell = %#x, want 0xdeadbeef", got)
	}
	runtime.KeepAlive(data)
}

func TestExecMemoryNarrowAccess(t *testing.T) {
	a := execAllocator(t)
	data := make([]byte, 65536)
	mi := &rt.MemInst{Size: 65536, Data: unsafe.Pointer(&data[0])}
	resolve := func(r Reloc) uintptr { return uintptr(unsafe.Pointer(mi)) }
	mod := &wasm.ModuleTypes{MemTypes: []wasm.MemType{{}}}

	// store8 of 0x180 keeps only the low byte; load8_s sign-extends
	// 0x80 back to -128.
	fn := compileAndLink(t, a, typeToI32, mod, resolve,
		ast.Instr{Op: ast.OpI32Const, I32: 9},
		ast.Instr{Op: ast.OpI32Const, I32: 0x180},
		ast.Instr{Op: ast.OpI32Store8},
		ast.Instr{Op: ast.OpI32Const, I32: 9},
		ast.Instr{Op: ast.OpI32Load8S},
	)
	ret, _ := fn.Invoke([6]uint64{})
	if int32(ret) != -128 {
		t.Errorf("load8_s = %d, want -128", int32(ret))
	}

	fn = compileAndLink(t, a, typeToI32, mod, resolve,
		ast.Instr{Op: ast.OpI32Const, I32: 20},
		ast.Instr{Op: ast.OpI32Const, I32: 0xcafe},
		ast.Instr{Op: ast.OpI32Store16},
		ast.Instr{Op: ast.OpI32Const, I32: 20},
		ast.Instr{Op: ast.OpI32Load},
	)
	ret, _ = fn.Invoke([6]uint64{})
	if uint32(ret) != 0xcafe {
		t.Errorf("load after store16 = %#x, want 0xcafe", uint32(ret))
	}
	runtime.KeepAlive(data)
}

func TestExecGlobals(t *testing.T) {
	a := execAllocator(t)
	gi := &rt.GlobalInst{Mut: true}
	gi.Val.SetI64(7)
	resolve := func(r Reloc) uintptr {
		if r.Kind != RelocGlobal || r.Index != 0 {
			t.Fatalf("unexpected reloc %+v", r)
		}
		return uintptr(unsafe.Pointer(gi))
	}
	mod := &wasm.ModuleTypes{GlobalTypes: []wasm.GlobalType{{Type: wasm.ValueTypeI64, Mutable: true}}}

	fn := compileAndLink(t, a, typeToI64, mod, resolve,
		ast.Instr{Op: ast.OpGetGlobal, GlobalIndex: 0},
		ast.Instr{Op: ast.OpI64Const, I64: 5},
		ast.Instr{Op: ast.OpI64Add},
		ast.Instr{Op: ast.OpSetGlobal, GlobalIndex: 0},
		ast.Instr{Op: ast.OpGetGlobal, GlobalIndex: 0},
	)
	ret, _ := fn.Invoke([6]uint64{})
	if ret != 12 {
		t.Errorf("global after add = %d, want 12", ret)
	}
	if gi.Val.I64() != 12 {
		t.Errorf("global instance = %d, want 12", gi.Val.I64())
	}
}

func TestExecF64Arithmetic(t *testing.T) {
	a := execAllocator(t)
	fn := compileAndLink(t, a, typeToF64, emptyModule(), nil,
		ast.Instr{Op: ast.OpF64Const, F64: 2.5},
		ast.Instr{Op: ast.OpF64Const, F64: 1.25},
		ast.Instr{Op: ast.OpF64Add},
		ast.Instr{Op: ast.OpF64Const, F64: 2.0},
		ast.Instr{Op: ast.OpF64Mul},
	)
	_, fret := fn.Invoke([6]uint64{})
	if got := math.Float64frombits(fret); got != 7.5 {
		t.Errorf("(2.5+1.25)*2.0 = %v, want 7.5", got)
	}

	// Subtraction order: 2.5 - 1.25, not the reverse.
	fn = compileAndLink(t, a, typeToF64, emptyModule(), nil,
		ast.Instr{Op: ast.OpF64Const, F64: 2.5},
		ast.Instr{Op: ast.OpF64Const, F64: 1.25},
		ast.Instr{Op: ast.OpF64Sub},
	)
	_, fret = fn.Invoke([6]uint64{})
	if got := math.Float64frombits(fret); got != 1.25 {
		t.Errorf("2.5-1.25 = %v, want 1.25", got)
	}

	fn = compileAndLink(t, a, typeToF64, emptyModule(), nil,
		ast.Instr{Op: ast.OpF64Const, F64: 1.5},
		ast.Instr{Op: ast.OpF64Neg},
	)
	_, fret = fn.Invoke([6]uint64{})
	if got := math.Float64frombits(fret); got != -1.5 {
		t.Errorf("neg(1.5) = %v, want -1.5", got)
	}
}

func TestExecF64NaNCompare(t *testing.T) {
	a := execAllocator(t)
	nan := math.NaN()

	fn := compileAndLink(t, a, typeToI32, emptyModule(), nil,
		ast.Instr{Op: ast.OpF64Const, F64: nan},
		ast.Instr{Op: ast.OpF64Const, F64: nan},
		ast.Instr{Op: ast.OpF64Eq},
	)
	if ret, _ := fn.Invoke([6]uint64{}); uint32(ret) != 0 {
		t.Errorf("eq(NaN, NaN) = %d, want 0", uint32(ret))
	}

	fn = compileAndLink(t, a, typeToI32, emptyModule(), nil,
		ast.Instr{Op: ast.OpF64Const, F64: nan},
		ast.Instr{Op: ast.OpF64Const, F64: nan},
		ast.Instr{Op: ast.OpF64Ne},
	)
	if ret, _ := fn.Invoke([6]uint64{}); uint32(ret) != 1 {
		t.Errorf("ne(NaN, NaN) = %d, want 1", uint32(ret))
	}

	fn = compileAndLink(t, a, typeToI32, emptyModule(), nil,
		ast.Instr{Op: ast.OpF64Const, F64: 3.25},
		ast.Instr{Op: ast.OpF64Const, F64: 3.25},
		ast.Instr{Op: ast.OpF64Eq},
	)
	if ret, _ := fn.Invoke([6]uint64{}); uint32(ret) != 1 {
		t.Errorf("eq(3.25, 3.25) = %d, want 1", uint32(ret))
	}
}

func TestExecConversionRoundTrips(t *testing.T) {
	a := execAllocator(t)

	// extend_u(wrap(x)) recovers the low 32 bits.
	fn := compileAndLink(t, a, typeI64ToI64, emptyModule(), nil,
		ast.Instr{Op: ast.OpGetLocal, LocalIndex: 0},
		ast.Instr{Op: ast.OpI32WrapI64},
		ast.Instr{Op: ast.OpI64ExtendUI32},
	)
	const x = 0xdeadbeef12345678
	ret, _ := fn.Invoke([6]uint64{x})
	if ret != x&0xffffffff {
		t.Errorf("extend_u(wrap(%#x)) = %#x, want %#x", uint64(x), ret, uint64(x&0xffffffff))
	}

	// reinterpret round-trips bitwise.
	fn = compileAndLink(t, a, typeToI64, emptyModule(), nil,
		ast.Instr{Op: ast.OpF64Const, F64: 1.5},
		ast.Instr{Op: ast.OpI64ReinterpretF64},
	)
	ret, _ = fn.Invoke([6]uint64{})
	if ret != math.Float64bits(1.5) {
		t.Errorf("reinterpret(1.5) = %#x, want %#x", ret, math.Float64bits(1.5))
	}

	fn = compileAndLink(t, a, typeToF64, emptyModule(), nil,
		ast.Instr{Op: ast.OpI64Const, I64: math.Float64bits(6.25)},
		ast.Instr{Op: ast.OpF64ReinterpretI64},
	)
	_, fret := fn.Invoke([6]uint64{})
	if got := math.Float64frombits(fret); got != 6.25 {
		t.Errorf("reinterpret bits = %v, want 6.25", got)
	}
}

func TestExecConversions(t *testing.T) {
	a := execAllocator(t)

	fn := compileAndLink(t, a, typeI32ToI32, emptyModule(), nil,
		ast.Instr{Op: ast.OpGetLocal, LocalIndex: 0},
		ast.Instr{Op: ast.OpF64ConvertSI32},
		ast.Instr{Op: ast.OpI32TruncSF64},
	)
	ret, _ := fn.Invoke([6]uint64{0xffffffd6}) // -42
	if int32(ret) != -42 {
		t.Errorf("trunc_s(convert_s(-42)) = %d, want -42", int32(ret))
	}

	fn = compileAndLink(t, a, typeToI32, emptyModule(), nil,
		ast.Instr{Op: ast.OpF64Const, F64: 3e9},
		ast.Instr{Op: ast.OpI32TruncUF64},
	)
	ret, _ = fn.Invoke([6]uint64{})
	if uint32(ret) != 3000000000 {
		t.Errorf("trunc_u(3e9) = %d, want 3000000000", uint32(ret))
	}

	fn = compileAndLink(t, a, typeToF64, emptyModule(), nil,
		ast.Instr{Op: ast.OpI32Const, I32: 0xfffffffe}, // 4294967294 unsigned
		ast.Instr{Op: ast.OpF64ConvertUI32},
	)
	_, fret := fn.Invoke([6]uint64{})
	if got := math.Float64frombits(fret); got != 4294967294.0 {
		t.Errorf("convert_u(0xfffffffe) = %v, want 4294967294", got)
	}

	fn = compileAndLink(t, a, typeToI64, emptyModule(), nil,
		ast.Instr{Op: ast.OpI32Const, I32: 0xffffffff},
		ast.Instr{Op: ast.OpI64ExtendSI32},
	)
	ret, _ = fn.Invoke([6]uint64{})
	if ret != 0xffffffffffffffff {
		t.Errorf("extend_s(-1) = %#x, want all ones", ret)
	}
}

func TestExecDirectCall(t *testing.T) {
	a := execAllocator(t)
	mod := &wasm.ModuleTypes{FuncTypes: []wasm.FuncType{typeI32ToI32}}

	inc := compileAndLink(t, a, typeI32ToI32, emptyModule(), nil,
		ast.Instr{Op: ast.OpGetLocal, LocalIndex: 0},
		ast.Instr{Op: ast.OpI32Const, I32: 1},
		ast.Instr{Op: ast.OpI32Add},
	)
	incInst := &rt.FuncInst{CompiledCode: inc.Addr()}

	caller := compileAndLink(t, a, typeI32ToI32, mod,
		func(r Reloc) uintptr {
			if r.Kind != RelocFunc || r.Index != 0 {
				t.Fatalf("unexpected reloc %+v", r)
			}
			return uintptr(unsafe.Pointer(incInst))
		},
		ast.Instr{Op: ast.OpGetLocal, LocalIndex: 0},
		ast.Instr{Op: ast.OpCall, FuncIndex: 0},
	)
	ret, _ := caller.Invoke([6]uint64{7})
	if uint32(ret) != 8 {
		t.Errorf("call inc(7) = %d, want 8", uint32(ret))
	}
	runtime.KeepAlive(incInst)
}

// resolveIndirectStub is the machine-code body of a minimal
// _resolve_indirect_call: bounds-check the index against the table,
// type-check the target against the expected FuncType pointer and
// return its compiled code, trapping with int $4 on either failure.
var resolveIndirectStub = []byte{
	0x48, 0x3b, 0x57, 0x08, // cmp 0x8(%rdi), %rdx
	0x73, 0x11, // jae trap
	0x48, 0x8b, 0x07, // mov (%rdi), %rax
	0x48, 0x8b, 0x04, 0xd0, // mov (%rax,%rdx,8), %rax
	0x48, 0x3b, 0x70, 0x08, // cmp 0x8(%rax), %rsi
	0x75, 0x04, // jne trap
	0x48, 0x8b, 0x00, // mov (%rax), %rax
	0xc3,       // ret
	0xcd, 0x04, // int $4
}

func TestExecIndirectCall(t *testing.T) {
	a := execAllocator(t)

	inc := compileAndLink(t, a, typeI32ToI32, emptyModule(), nil,
		ast.Instr{Op: ast.OpGetLocal, LocalIndex: 0},
		ast.Instr{Op: ast.OpI32Const, I32: 1},
		ast.Instr{Op: ast.OpI32Add},
	)
	dec := compileAndLink(t, a, typeI32ToI32, emptyModule(), nil,
		ast.Instr{Op: ast.OpGetLocal, LocalIndex: 0},
		ast.Instr{Op: ast.OpI32Const, I32: 1},
		ast.Instr{Op: ast.OpI32Sub},
	)
	helper, err := a.AllocateExec(resolveIndirectStub)
	if err != nil {
		t.Fatalf("AllocateExec helper: %v", err)
	}

	var typeTag int
	insts := []*rt.FuncInst{
		{CompiledCode: inc.Addr(), Type: unsafe.Pointer(&typeTag)},
		{CompiledCode: dec.Addr(), Type: unsafe.Pointer(&typeTag)},
	}
	table := &rt.TableInst{Data: unsafe.Pointer(&insts[0]), Count: 2}

	funcTypes := []wasm.FuncType{typeI32ToI32}
	mod := &wasm.ModuleTypes{TableTypes: []wasm.TableType{{}}}
	body := []ast.Instr{
		{Op: ast.OpGetLocal, LocalIndex: 0},
		{Op: ast.OpGetLocal, LocalIndex: 1},
		{Op: ast.OpCallIndirect, TypeIndex: 0},
	}
	cf, err := CompileFunction(funcTypes, mod, typeI32I32ToI32, &ast.CodeSectionCode{Instructions: body}, Config{})
	if err != nil {
		t.Fatalf("CompileFunction: %v", err)
	}
	caller := link(t, a, cf, func(r Reloc) uintptr {
		switch r.Kind {
		case RelocTable:
			return uintptr(unsafe.Pointer(table))
		case RelocType:
			return uintptr(unsafe.Pointer(&typeTag))
		case RelocResolveIndirectCall:
			return uintptr(helper.Addr())
		}
		t.Fatalf("unexpected reloc %+v", r)
		return 0
	})

	if ret, _ := caller.Invoke([6]uint64{7, 0}); uint32(ret) != 8 {
		t.Errorf("indirect[0](7) = %d, want 8", uint32(ret))
	}
	if ret, _ := caller.Invoke([6]uint64{7, 1}); uint32(ret) != 6 {
		t.Errorf("indirect[1](7) = %d, want 6", uint32(ret))
	}
	runtime.KeepAlive(insts)
	runtime.KeepAlive(table)
}

// TestExecFrameBalance drives a function whose body churns the operand
// stack hard enough that any prologue/epilogue imbalance would crash
// or corrupt the return value.
func TestExecFrameBalance(t *testing.T) {
	a := execAllocator(t)
	code := &ast.CodeSectionCode{
		Locals: []ast.Local{{Count: 3, Type: wasm.ValueTypeI32}},
		Instructions: []ast.Instr{
			{Op: ast.OpI32Const, I32: 1},
			{Op: ast.OpI32Const, I32: 2},
			{Op: ast.OpI32Const, I32: 3},
			{Op: ast.OpDrop},
			{Op: ast.OpDrop},
			{Op: ast.OpDrop},
			{Op: ast.OpGetLocal, LocalIndex: 1}, // zero-initialized
			{Op: ast.OpGetLocal, LocalIndex: 0},
			{Op: ast.OpI32Add},
		},
	}
	cf, err := CompileFunction(nil, emptyModule(), typeI32ToI32, code, Config{})
	if err != nil {
		t.Fatalf("CompileFunction: %v", err)
	}
	fn := link(t, a, cf, nil)
	if ret, _ := fn.Invoke([6]uint64{41}); uint32(ret) != 41 {
		t.Errorf("ret = %d, want 41 (locals must zero-initialize)", uint32(ret))
	}
}
