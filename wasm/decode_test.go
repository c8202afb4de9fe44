package wasm_test

import (
	"strings"
	"testing"

	"github.com/wasmbind/wasmbind/errors"
	"github.com/wasmbind/wasmbind/wasm"
)

func ptrTo[T any](v T) *T { return &v }

func TestParseMinimalModule(t *testing.T) {
	data := []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}
	m, err := wasm.ParseModule(data)
	if err != nil {
		t.Fatalf("ParseModule: %v", err)
	}
	if m == nil {
		t.Fatal("expected non-nil module")
	}
}

func TestParseInvalidMagic(t *testing.T) {
	data := []byte{0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00}
	_, err := wasm.ParseModule(data)
	if err == nil {
		t.Fatal("expected error for invalid magic")
	}
	if !errors.Is(err, errors.MalformedModule("")) {
		t.Errorf("expected malformed-module error, got %v", err)
	}
}

func TestParseInvalidVersion(t *testing.T) {
	data := []byte{0x00, 0x61, 0x73, 0x6D, 0x02, 0x00, 0x00, 0x00}
	_, err := wasm.ParseModule(data)
	if err == nil {
		t.Error("expected error for invalid version")
	}
}

func TestParseTruncatedHeader(t *testing.T) {
	data := []byte{0x00, 0x61, 0x73}
	_, err := wasm.ParseModule(data)
	if err == nil {
		t.Error("expected error for truncated header")
	}
}

func TestParseSectionOrdering(t *testing.T) {
	m := &wasm.Module{
		Types:    []wasm.FuncType{{Params: nil, Results: nil}},
		Funcs:    []uint32{0},
		Memories: []wasm.MemoryType{{Limits: wasm.Limits{Min: 1}}},
	}
	data := m.Encode()

	parsed, err := wasm.ParseModule(data)
	if err != nil {
		t.Fatalf("ParseModule: %v", err)
	}

	if len(parsed.Types) != 1 {
		t.Errorf("expected 1 type, got %d", len(parsed.Types))
	}
	if len(parsed.Funcs) != 1 {
		t.Errorf("expected 1 func, got %d", len(parsed.Funcs))
	}
	if len(parsed.Memories) != 1 {
		t.Errorf("expected 1 memory, got %d", len(parsed.Memories))
	}
}

func TestParseDataCountSection(t *testing.T) {
	count := uint32(2)
	m := &wasm.Module{
		Memories:  []wasm.MemoryType{{Limits: wasm.Limits{Min: 1}}},
		DataCount: &count,
		Data: []wasm.DataSegment{
			{Flags: 1, Init: []byte{1, 2, 3}},
			{Flags: 1, Init: []byte{4, 5, 6}},
		},
	}

	data := m.Encode()
	parsed, err := wasm.ParseModule(data)
	if err != nil {
		t.Fatalf("ParseModule: %v", err)
	}

	if parsed.DataCount == nil {
		t.Fatal("DataCount should not be nil")
	}
	if *parsed.DataCount != 2 {
		t.Errorf("expected DataCount=2, got %d", *parsed.DataCount)
	}
	if len(parsed.Data) != 2 {
		t.Errorf("expected 2 data segments, got %d", len(parsed.Data))
	}
}

func TestParseCustomSection(t *testing.T) {
	m := &wasm.Module{
		CustomSections: []wasm.CustomSection{
			{Name: "test", Data: []byte{1, 2, 3}},
		},
	}

	data := m.Encode()
	parsed, err := wasm.ParseModule(data)
	if err != nil {
		t.Fatalf("ParseModule: %v", err)
	}

	if len(parsed.CustomSections) != 1 {
		t.Fatalf("expected 1 custom section, got %d", len(parsed.CustomSections))
	}
	if parsed.CustomSections[0].Name != "test" {
		t.Errorf("expected name 'test', got %q", parsed.CustomSections[0].Name)
	}
}

func TestParseImports(t *testing.T) {
	m := &wasm.Module{
		Types: []wasm.FuncType{{Params: []wasm.ValType{wasm.ValI32}, Results: []wasm.ValType{wasm.ValI32}}},
		Imports: []wasm.Import{
			{Module: "env", Name: "add", Desc: wasm.ImportDesc{Kind: wasm.KindFunc, TypeIdx: 0}},
			{Module: "env", Name: "mem", Desc: wasm.ImportDesc{Kind: wasm.KindMemory, Memory: &wasm.MemoryType{Limits: wasm.Limits{Min: 1}}}},
		},
	}

	data := m.Encode()
	parsed, err := wasm.ParseModule(data)
	if err != nil {
		t.Fatalf("ParseModule: %v", err)
	}

	if len(parsed.Imports) != 2 {
		t.Fatalf("expected 2 imports, got %d", len(parsed.Imports))
	}
	if parsed.Imports[0].Module != "env" || parsed.Imports[0].Name != "add" {
		t.Errorf("unexpected import[0]: %+v", parsed.Imports[0])
	}
}

func TestParseExports(t *testing.T) {
	m := &wasm.Module{
		Types: []wasm.FuncType{{Params: nil, Results: nil}},
		Funcs: []uint32{0},
		Exports: []wasm.Export{
			{Name: "main", Kind: wasm.KindFunc, Idx: 0},
		},
	}

	data := m.Encode()
	parsed, err := wasm.ParseModule(data)
	if err != nil {
		t.Fatalf("ParseModule: %v", err)
	}

	if len(parsed.Exports) != 1 {
		t.Fatalf("expected 1 export, got %d", len(parsed.Exports))
	}
	if parsed.Exports[0].Name != "main" {
		t.Errorf("expected export name 'main', got %q", parsed.Exports[0].Name)
	}
}

func TestParseGlobals(t *testing.T) {
	m := &wasm.Module{
		Globals: []wasm.Global{
			{Type: wasm.GlobalType{ValType: wasm.ValI32, Mutable: true}, Init: []byte{wasm.OpI32Const, 0x2a, wasm.OpEnd}},
		},
	}

	data := m.Encode()
	parsed, err := wasm.ParseModule(data)
	if err != nil {
		t.Fatalf("ParseModule: %v", err)
	}

	if len(parsed.Globals) != 1 {
		t.Fatalf("expected 1 global, got %d", len(parsed.Globals))
	}
	if parsed.Globals[0].Type.ValType != wasm.ValI32 {
		t.Errorf("expected i32, got %v", parsed.Globals[0].Type.ValType)
	}
	if !parsed.Globals[0].Type.Mutable {
		t.Error("expected mutable global")
	}
}

func TestParseStartSection(t *testing.T) {
	startIdx := uint32(0)
	m := &wasm.Module{
		Types: []wasm.FuncType{{Params: nil, Results: nil}},
		Funcs: []uint32{0},
		Code:  []wasm.FuncBody{{Locals: nil, Code: []byte{wasm.OpEnd}}},
		Start: &startIdx,
	}

	data := m.Encode()
	parsed, err := wasm.ParseModule(data)
	if err != nil {
		t.Fatalf("ParseModule: %v", err)
	}

	if parsed.Start == nil {
		t.Fatal("expected start function")
	}
	if *parsed.Start != 0 {
		t.Errorf("expected start=0, got %d", *parsed.Start)
	}
}

func TestParseTables(t *testing.T) {
	m := &wasm.Module{
		Tables: []wasm.TableType{
			{ElemType: wasm.ValFuncRef, Limits: wasm.Limits{Min: 10, Max: ptrTo(uint64(20))}},
		},
	}

	data := m.Encode()
	parsed, err := wasm.ParseModule(data)
	if err != nil {
		t.Fatalf("ParseModule: %v", err)
	}

	if len(parsed.Tables) != 1 {
		t.Fatalf("expected 1 table, got %d", len(parsed.Tables))
	}
	if parsed.Tables[0].ElemType != wasm.ValFuncRef {
		t.Errorf("expected funcref, got %v", parsed.Tables[0].ElemType)
	}
	if parsed.Tables[0].Limits.Min != 10 {
		t.Errorf("expected min=10, got %d", parsed.Tables[0].Limits.Min)
	}
}

func TestParseElements(t *testing.T) {
	m := &wasm.Module{
		Types:  []wasm.FuncType{{Params: nil, Results: nil}},
		Funcs:  []uint32{0},
		Tables: []wasm.TableType{{ElemType: wasm.ValFuncRef, Limits: wasm.Limits{Min: 1}}},
		Elements: []wasm.Element{
			{Flags: 0, Offset: []byte{wasm.OpI32Const, 0, wasm.OpEnd}, FuncIdxs: []uint32{0}},
		},
	}

	data := m.Encode()
	parsed, err := wasm.ParseModule(data)
	if err != nil {
		t.Fatalf("ParseModule: %v", err)
	}

	if len(parsed.Elements) != 1 {
		t.Fatalf("expected 1 element, got %d", len(parsed.Elements))
	}
}

func TestParseMemoryLimits(t *testing.T) {
	max := uint64(10)
	m := &wasm.Module{
		Memories: []wasm.MemoryType{
			{Limits: wasm.Limits{Min: 1, Max: &max}},
		},
	}

	data := m.Encode()
	parsed, err := wasm.ParseModule(data)
	if err != nil {
		t.Fatalf("ParseModule: %v", err)
	}

	if len(parsed.Memories) != 1 {
		t.Fatalf("expected 1 memory, got %d", len(parsed.Memories))
	}
	if parsed.Memories[0].Limits.Min != 1 {
		t.Errorf("expected min=1, got %d", parsed.Memories[0].Limits.Min)
	}
	if parsed.Memories[0].Limits.Max == nil || *parsed.Memories[0].Limits.Max != 10 {
		t.Errorf("expected max=10")
	}
}

func TestParseSectionOutOfOrder(t *testing.T) {
	// Build a module with sections out of order manually
	// Memory section (5) followed by Function section (3) - invalid order
	data := []byte{
		0x00, 0x61, 0x73, 0x6D, // magic
		0x01, 0x00, 0x00, 0x00, // version
		0x05, 0x03, 0x01, 0x00, 0x01, // memory section: 1 memory, no max, 1 page
		0x03, 0x02, 0x01, 0x00, // function section: 1 function with type 0
	}

	_, err := wasm.ParseModule(data)
	if err == nil {
		t.Error("expected error for out-of-order sections")
	}
}

func TestParseDuplicateSection(t *testing.T) {
	// Two type sections; the second violates canonical ordering
	data := []byte{
		0x00, 0x61, 0x73, 0x6D, // magic
		0x01, 0x00, 0x00, 0x00, // version
		0x01, 0x04, // type section, size 4
		0x01, 0x60, 0x00, 0x00, // 1 func type () -> ()
		0x01, 0x04, // type section again
		0x01, 0x60, 0x00, 0x00,
	}

	_, err := wasm.ParseModule(data)
	if err == nil {
		t.Fatal("expected error for duplicate section")
	}
	if !strings.Contains(err.Error(), "out of order") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestParseTruncatedSectionSize(t *testing.T) {
	// Valid header, section ID but no size
	data := []byte{
		0x00, 0x61, 0x73, 0x6D,
		0x01, 0x00, 0x00, 0x00,
		0x01, // type section ID, no size
	}

	_, err := wasm.ParseModule(data)
	if err == nil {
		t.Error("expected error for truncated section size")
	}
}

func TestParseTruncatedSectionData(t *testing.T) {
	// Section claims 100 bytes but only has 2
	data := []byte{
		0x00, 0x61, 0x73, 0x6D,
		0x01, 0x00, 0x00, 0x00,
		0x01, 0x64, // type section, size=100
		0x01, 0x60, // only 2 bytes
	}

	_, err := wasm.ParseModule(data)
	if err == nil {
		t.Error("expected error for truncated section data")
	}
}

func TestParseSectionTrailingBytes(t *testing.T) {
	// Type section declares 6 bytes but the single func type only needs 4.
	// The leftover bytes would be dropped silently on re-encode.
	data := []byte{
		0x00, 0x61, 0x73, 0x6D,
		0x01, 0x00, 0x00, 0x00,
		0x01, 0x06, // type section, size=6
		0x01, 0x60, 0x00, 0x00, // 1 func type () -> ()
		0x00, 0x00, // trailing garbage
	}

	_, err := wasm.ParseModule(data)
	if err == nil {
		t.Fatal("expected error for trailing section bytes")
	}
	if !strings.Contains(err.Error(), "trailing bytes") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestParseInvalidTypeForm(t *testing.T) {
	// Type section with invalid type form (not 0x60)
	data := []byte{
		0x00, 0x61, 0x73, 0x6D,
		0x01, 0x00, 0x00, 0x00,
		0x01, 0x04, // type section, size=4
		0x01,       // 1 type
		0x99,       // invalid form (not 0x60)
		0x00, 0x00, // params/results
	}

	_, err := wasm.ParseModule(data)
	if err == nil {
		t.Error("expected error for invalid type form")
	}
}

func TestParseEmptyModule(t *testing.T) {
	// Just magic and version, no sections
	data := []byte{
		0x00, 0x61, 0x73, 0x6D,
		0x01, 0x00, 0x00, 0x00,
	}

	m, err := wasm.ParseModule(data)
	if err != nil {
		t.Fatalf("ParseModule: %v", err)
	}
	if m == nil {
		t.Fatal("expected non-nil module")
	}
}

func TestParseMultipleCustomSections(t *testing.T) {
	m := &wasm.Module{
		CustomSections: []wasm.CustomSection{
			{Name: "name", Data: []byte{1, 2, 3}},
			{Name: "debug", Data: []byte{4, 5, 6}},
			{Name: "sourcemap", Data: []byte{7, 8, 9}},
		},
	}

	data := m.Encode()
	parsed, err := wasm.ParseModule(data)
	if err != nil {
		t.Fatalf("ParseModule: %v", err)
	}

	if len(parsed.CustomSections) != 3 {
		t.Fatalf("expected 3 custom sections, got %d", len(parsed.CustomSections))
	}
}

func TestParseCodeWithLocals(t *testing.T) {
	m := &wasm.Module{
		Types: []wasm.FuncType{{Params: nil, Results: []wasm.ValType{wasm.ValI32}}},
		Funcs: []uint32{0},
		Code: []wasm.FuncBody{
			{
				Locals: []wasm.LocalEntry{
					{Count: 3, ValType: wasm.ValI32},
					{Count: 2, ValType: wasm.ValI64},
					{Count: 1, ValType: wasm.ValF32},
				},
				Code: []byte{wasm.OpI32Const, 42, wasm.OpEnd},
			},
		},
	}

	data := m.Encode()
	parsed, err := wasm.ParseModule(data)
	if err != nil {
		t.Fatalf("ParseModule: %v", err)
	}

	if len(parsed.Code) != 1 {
		t.Fatalf("expected 1 code body, got %d", len(parsed.Code))
	}
	if len(parsed.Code[0].Locals) != 3 {
		t.Errorf("expected 3 local entries, got %d", len(parsed.Code[0].Locals))
	}
	total := uint32(0)
	for _, l := range parsed.Code[0].Locals {
		total += l.Count
	}
	if total != 6 {
		t.Errorf("expected 6 total locals, got %d", total)
	}
}

func TestParseTagImport(t *testing.T) {
	m := &wasm.Module{
		Types: []wasm.FuncType{{Params: []wasm.ValType{wasm.ValI32}, Results: nil}},
		Imports: []wasm.Import{
			{
				Module: "env",
				Name:   "my_tag",
				Desc: wasm.ImportDesc{
					Kind: wasm.KindTag,
					Tag:  &wasm.TagType{Attribute: 0, TypeIdx: 0},
				},
			},
		},
	}

	data := m.Encode()
	parsed, err := wasm.ParseModule(data)
	if err != nil {
		t.Fatalf("ParseModule: %v", err)
	}

	if len(parsed.Imports) != 1 {
		t.Fatalf("expected 1 import, got %d", len(parsed.Imports))
	}
	if parsed.Imports[0].Desc.Kind != wasm.KindTag {
		t.Error("expected tag import")
	}
	if parsed.Imports[0].Desc.Tag.TypeIdx != 0 {
		t.Errorf("expected type index 0, got %d", parsed.Imports[0].Desc.Tag.TypeIdx)
	}
}

func TestParseTagSection(t *testing.T) {
	m := &wasm.Module{
		Types: []wasm.FuncType{{Params: []wasm.ValType{wasm.ValI32}, Results: nil}},
		Tags: []wasm.TagType{
			{Attribute: 0, TypeIdx: 0},
		},
	}

	data := m.Encode()
	parsed, err := wasm.ParseModule(data)
	if err != nil {
		t.Fatalf("ParseModule: %v", err)
	}

	if len(parsed.Tags) != 1 {
		t.Fatalf("expected 1 tag, got %d", len(parsed.Tags))
	}
	if parsed.Tags[0].Attribute != 0 {
		t.Errorf("expected attribute 0, got %d", parsed.Tags[0].Attribute)
	}
	if parsed.Tags[0].TypeIdx != 0 {
		t.Errorf("expected type index 0, got %d", parsed.Tags[0].TypeIdx)
	}
}

// GC type forms (struct, array, rec, sub) are recognized and rejected;
// the codec handles core modules only.

func TestParseGCStructTypeRejected(t *testing.T) {
	data := []byte{
		0x00, 0x61, 0x73, 0x6D, // magic
		0x01, 0x00, 0x00, 0x00, // version
		0x01, 0x02, // type section, size 2
		0x01, // 1 type
		0x5F, // struct marker
	}
	_, err := wasm.ParseModule(data)
	if err == nil {
		t.Fatal("expected error for GC struct type")
	}
	if !strings.Contains(err.Error(), "GC type form") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestParseGCArrayTypeRejected(t *testing.T) {
	data := []byte{
		0x00, 0x61, 0x73, 0x6D, // magic
		0x01, 0x00, 0x00, 0x00, // version
		0x01, 0x02, // type section, size 2
		0x01, // 1 type
		0x5E, // array marker
	}
	_, err := wasm.ParseModule(data)
	if err == nil {
		t.Fatal("expected error for GC array type")
	}
	if !strings.Contains(err.Error(), "GC type form") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestParseGCRecTypeRejected(t *testing.T) {
	data := []byte{
		0x00, 0x61, 0x73, 0x6D, // magic
		0x01, 0x00, 0x00, 0x00, // version
		0x01, 0x02, // type section, size 2
		0x01, // 1 type
		0x4E, // rec type marker
	}
	_, err := wasm.ParseModule(data)
	if err == nil {
		t.Fatal("expected error for GC rec type")
	}
	if !strings.Contains(err.Error(), "GC type form") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestParseGCSubTypeRejected(t *testing.T) {
	data := []byte{
		0x00, 0x61, 0x73, 0x6D, // magic
		0x01, 0x00, 0x00, 0x00, // version
		0x01, 0x03, // type section, size 3
		0x01, // 1 type
		0x50, // sub (non-final) marker
		0x00, // 0 parents
	}
	_, err := wasm.ParseModule(data)
	if err == nil {
		t.Fatal("expected error for GC sub type")
	}
	if !strings.Contains(err.Error(), "GC type form") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestParseTypedRefParamRejected(t *testing.T) {
	// (ref null ht) value types carry GC heap type immediates
	data := []byte{
		0x00, 0x61, 0x73, 0x6D, // magic
		0x01, 0x00, 0x00, 0x00, // version
		0x01, 0x04, // type section, size 4
		0x01, // 1 type
		0x60, // func type
		0x01, // 1 param
		0x63, // ref null
	}
	_, err := wasm.ParseModule(data)
	if err == nil {
		t.Fatal("expected error for typed ref param")
	}
	if !strings.Contains(err.Error(), "invalid value type") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestParseTableTypedRefRejected(t *testing.T) {
	data := []byte{
		0x00, 0x61, 0x73, 0x6D, // magic
		0x01, 0x00, 0x00, 0x00, // version
		0x04, 0x02, // table section, size 2
		0x01, // 1 table
		0x64, // ref (non-nullable)
	}
	_, err := wasm.ParseModule(data)
	if err == nil {
		t.Fatal("expected error for typed ref table")
	}
	if !strings.Contains(err.Error(), "invalid reference type") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestParseTableInitPrefixRejected(t *testing.T) {
	// 0x40 0x00 prefixes a table with an init expression (function references
	// proposal); tables here are plain funcref/externref only.
	data := []byte{
		0x00, 0x61, 0x73, 0x6D, // magic
		0x01, 0x00, 0x00, 0x00, // version
		0x04, 0x04, // table section, size 4
		0x01,       // 1 table
		0x40, 0x00, // init expr prefix
		0x70, // funcref
	}
	_, err := wasm.ParseModule(data)
	if err == nil {
		t.Error("expected error for table init prefix")
	}
}

func TestParseTypeFormTruncated(t *testing.T) {
	data := []byte{
		0x00, 0x61, 0x73, 0x6D, // magic
		0x01, 0x00, 0x00, 0x00, // version
		0x01, 0x01, // type section, size 1
		0x01, // 1 type (but no form byte)
	}
	_, err := wasm.ParseModule(data)
	if err == nil {
		t.Error("expected error: type form truncated")
	}
}

func TestParseTagTruncated(t *testing.T) {
	// Tag section with truncated data
	data := []byte{
		0x00, 0x61, 0x73, 0x6D, // magic
		0x01, 0x00, 0x00, 0x00, // version
		0x01, 0x04, // type section
		0x01, 0x60, 0x00, 0x00, // 1 func type () -> ()
		0x0D, 0x02, // tag section, size=2
		0x01, // 1 tag
		0x00, // attribute (but missing type idx)
	}
	_, err := wasm.ParseModule(data)
	if err == nil {
		t.Error("expected error for truncated tag")
	}
}

func TestParseLimitsMinExceedsMax(t *testing.T) {
	// Memory with min > max
	data := []byte{
		0x00, 0x61, 0x73, 0x6D, // magic
		0x01, 0x00, 0x00, 0x00, // version
		0x05, 0x04, // memory section, size=4
		0x01, // 1 memory
		0x01, // has max flag
		0x0A, // min=10
		0x05, // max=5 (less than min)
	}
	_, err := wasm.ParseModule(data)
	if err == nil {
		t.Error("expected error for min > max")
	}
}

func TestParseUnknownSectionID(t *testing.T) {
	data := []byte{
		0x00, 0x61, 0x73, 0x6D, // magic
		0x01, 0x00, 0x00, 0x00, // version
		0xFF, 0x01, // unknown section ID 0xFF, size 1
		0x00, // dummy data
	}
	_, err := wasm.ParseModule(data)
	if err == nil {
		t.Error("expected error for unknown section ID")
	}
}

func TestParseTruncatedCodeSection(t *testing.T) {
	data := []byte{
		0x00, 0x61, 0x73, 0x6D, // magic
		0x01, 0x00, 0x00, 0x00, // version
		0x01, 0x04, // type section
		0x01, 0x60, 0x00, 0x00, // 1 func type () -> ()
		0x03, 0x02, // function section
		0x01, 0x00, // 1 function, type 0
		0x0A, 0x04, // code section, size 4
		0x01, // 1 function
		0x03, // body size 3
		0x00, // 0 locals
		0x41, // i32.const (body truncated)
	}
	_, err := wasm.ParseModule(data)
	if err == nil {
		t.Error("expected error for truncated code section")
	}
}

func TestParseTruncatedTypeSection(t *testing.T) {
	data := []byte{
		0x00, 0x61, 0x73, 0x6D, // magic
		0x01, 0x00, 0x00, 0x00, // version
		0x01, 0x02, // type section, size 2
		0x02, // claims 2 types but only provides partial data
		0x60, // func type marker (incomplete)
	}
	_, err := wasm.ParseModule(data)
	if err == nil {
		t.Error("expected error for truncated type section")
	}
}

func TestParseTruncatedImportSection(t *testing.T) {
	data := []byte{
		0x00, 0x61, 0x73, 0x6D, // magic
		0x01, 0x00, 0x00, 0x00, // version
		0x02, 0x03, // import section, size 3
		0x01,       // 1 import
		0x01, 0x61, // module name "a" (but missing rest)
	}
	_, err := wasm.ParseModule(data)
	if err == nil {
		t.Error("expected error for truncated import section")
	}
}

func TestParseDuplicateExport(t *testing.T) {
	// Module with duplicate export names
	m := &wasm.Module{
		Types: []wasm.FuncType{{Params: nil, Results: nil}},
		Funcs: []uint32{0, 0},
		Code: []wasm.FuncBody{
			{Code: []byte{wasm.OpEnd}},
			{Code: []byte{wasm.OpEnd}},
		},
		Exports: []wasm.Export{
			{Name: "foo", Kind: wasm.KindFunc, Idx: 0},
			{Name: "foo", Kind: wasm.KindFunc, Idx: 1}, // duplicate name
		},
	}
	data := m.Encode()
	_, err := wasm.ParseModuleValidate(data)
	if err == nil {
		t.Error("expected validation error for duplicate export")
	}
}

func TestParseInvalidImportKind(t *testing.T) {
	data := []byte{
		0x00, 0x61, 0x73, 0x6D, // magic
		0x01, 0x00, 0x00, 0x00, // version
		0x01, 0x04, // type section
		0x01, 0x60, 0x00, 0x00, // 1 func type () -> ()
		0x02, 0x06, // import section, size 6
		0x01,       // 1 import
		0x01, 0x61, // module "a"
		0x01, 0x62, // name "b"
		0x05, // invalid import kind (should be 0-4)
	}
	_, err := wasm.ParseModule(data)
	if err == nil {
		t.Error("expected error for invalid import kind")
	}
}

func TestParseTruncatedGlobalSection(t *testing.T) {
	data := []byte{
		0x00, 0x61, 0x73, 0x6D, // magic
		0x01, 0x00, 0x00, 0x00, // version
		0x06, 0x03, // global section, size 3
		0x01, // 1 global
		0x7F, // i32
		0x00, // immutable (but missing init expr)
	}
	_, err := wasm.ParseModule(data)
	if err == nil {
		t.Error("expected error for truncated global section")
	}
}

func TestParseTruncatedElementSection(t *testing.T) {
	data := []byte{
		0x00, 0x61, 0x73, 0x6D, // magic
		0x01, 0x00, 0x00, 0x00, // version
		0x04, 0x04, // table section
		0x01, 0x70, 0x00, 0x10, // 1 table: funcref, min=16
		0x09, 0x02, // element section, size 2
		0x01, // 1 element
		0x00, // flags (active, table 0) - missing offset expr
	}
	_, err := wasm.ParseModule(data)
	if err == nil {
		t.Error("expected error for truncated element section")
	}
}

func TestParseTruncatedDataSection(t *testing.T) {
	data := []byte{
		0x00, 0x61, 0x73, 0x6D, // magic
		0x01, 0x00, 0x00, 0x00, // version
		0x05, 0x03, // memory section
		0x01, 0x00, 0x01, // 1 memory, min=1
		0x0B, 0x02, // data section, size 2
		0x01, // 1 data segment
		0x00, // flags (active, memory 0) - missing offset expr
	}
	_, err := wasm.ParseModule(data)
	if err == nil {
		t.Error("expected error for truncated data section")
	}
}

func TestParseTruncatedFuncTypeParams(t *testing.T) {
	// Type section with func type missing param types
	data := []byte{
		0x00, 0x61, 0x73, 0x6D, // magic
		0x01, 0x00, 0x00, 0x00, // version
		0x01, 0x03, // type section, size 3
		0x01, // 1 type
		0x60, // func type
		0x02, // 2 params (but no param data)
	}
	_, err := wasm.ParseModule(data)
	if err == nil {
		t.Error("expected error for truncated func type params")
	}
}

func TestParseTruncatedFuncTypeResults(t *testing.T) {
	// Type section with func type missing result types
	data := []byte{
		0x00, 0x61, 0x73, 0x6D, // magic
		0x01, 0x00, 0x00, 0x00, // version
		0x01, 0x04, // type section, size 4
		0x01, // 1 type
		0x60, // func type
		0x00, // 0 params
		0x02, // 2 results (but no result data)
	}
	_, err := wasm.ParseModule(data)
	if err == nil {
		t.Error("expected error for truncated func type results")
	}
}

func TestParseTruncatedFunctionSection(t *testing.T) {
	data := []byte{
		0x00, 0x61, 0x73, 0x6D, // magic
		0x01, 0x00, 0x00, 0x00, // version
		0x01, 0x04, // type section
		0x01, 0x60, 0x00, 0x00, // 1 func type () -> ()
		0x03, 0x01, // function section, size 1
		0x03, // claims 3 functions but has no indices
	}
	_, err := wasm.ParseModule(data)
	if err == nil {
		t.Error("expected error for truncated function section")
	}
}

func TestParseTruncatedExportSection(t *testing.T) {
	data := []byte{
		0x00, 0x61, 0x73, 0x6D, // magic
		0x01, 0x00, 0x00, 0x00, // version
		0x01, 0x04, // type section
		0x01, 0x60, 0x00, 0x00, // 1 func type
		0x03, 0x02, // function section
		0x01, 0x00, // 1 function, type 0
		0x07, 0x04, // export section, size 4
		0x01,       // 1 export
		0x01, 0x66, // name "f"
		0x00, // kind: function (but missing index)
	}
	_, err := wasm.ParseModule(data)
	if err == nil {
		t.Error("expected error for truncated export section")
	}
}

func TestParseTruncatedCustomSection(t *testing.T) {
	data := []byte{
		0x00, 0x61, 0x73, 0x6D, // magic
		0x01, 0x00, 0x00, 0x00, // version
		0x00, 0x03, // custom section, size 3
		0x05,       // name length 5 (but only 2 more bytes available)
		0x61, 0x62, // partial name "ab"
	}
	_, err := wasm.ParseModule(data)
	if err == nil {
		t.Error("expected error for truncated custom section")
	}
}

func TestParseTruncatedTableSection(t *testing.T) {
	data := []byte{
		0x00, 0x61, 0x73, 0x6D, // magic
		0x01, 0x00, 0x00, 0x00, // version
		0x04, 0x02, // table section, size 2
		0x01, // 1 table
		0x70, // funcref (but missing limits)
	}
	_, err := wasm.ParseModule(data)
	if err == nil {
		t.Error("expected error for truncated table section")
	}
}

func TestParseTruncatedStartSection(t *testing.T) {
	data := []byte{
		0x00, 0x61, 0x73, 0x6D, // magic
		0x01, 0x00, 0x00, 0x00, // version
		0x08, 0x00, // start section, size 0 (missing function index)
	}
	_, err := wasm.ParseModule(data)
	if err == nil {
		t.Error("expected error for truncated start section")
	}
}

func TestParseInvalidExportKind(t *testing.T) {
	data := []byte{
		0x00, 0x61, 0x73, 0x6D, // magic
		0x01, 0x00, 0x00, 0x00, // version
		0x07, 0x05, // export section, size 5
		0x01,       // 1 export
		0x01, 0x66, // name "f"
		0x05, // invalid export kind (should be 0-4)
		0x00, // index
	}
	_, err := wasm.ParseModule(data)
	if err == nil {
		t.Error("expected error for invalid export kind")
	}
}

// Target parseDataSection - invalid flags
func TestParseDataSectionInvalidFlags(t *testing.T) {
	data := []byte{
		0x00, 0x61, 0x73, 0x6D, // magic
		0x01, 0x00, 0x00, 0x00, // version
		0x05, 0x03, // memory section
		0x01, 0x00, 0x01, // 1 memory, 0-1 pages
		0x0B, 0x02, // data section, size 2
		0x01, // 1 segment
		0x05, // invalid flags (>2)
	}
	_, err := wasm.ParseModule(data)
	if err == nil {
		t.Error("expected error: invalid data segment flags")
	}
}

// Target parseDataSection - memIdx truncated (flags=2)
func TestParseDataSectionMemIdxTruncated(t *testing.T) {
	data := []byte{
		0x00, 0x61, 0x73, 0x6D, // magic
		0x01, 0x00, 0x00, 0x00, // version
		0x05, 0x03, // memory section
		0x01, 0x00, 0x01, // 1 memory
		0x0B, 0x02, // data section, size 2
		0x01, // 1 segment
		0x02, // flags=2 (active with memIdx, but memIdx missing)
	}
	_, err := wasm.ParseModule(data)
	if err == nil {
		t.Error("expected error: memIdx truncated")
	}
}

// Target parseDataSection - initLen truncated
func TestParseDataSectionInitLenTruncated(t *testing.T) {
	data := []byte{
		0x00, 0x61, 0x73, 0x6D, // magic
		0x01, 0x00, 0x00, 0x00, // version
		0x05, 0x03, // memory section
		0x01, 0x00, 0x01, // 1 memory
		0x0B, 0x05, // data section, size 5
		0x01,             // 1 segment
		0x00,             // flags=0 (active, memory 0)
		0x41, 0x00, 0x0B, // offset: i32.const 0, end
		// missing init length
	}
	_, err := wasm.ParseModule(data)
	if err == nil {
		t.Error("expected error: data init length truncated")
	}
}

// Target parseDataSection - init bytes truncated
func TestParseDataSectionInitBytesTruncated(t *testing.T) {
	data := []byte{
		0x00, 0x61, 0x73, 0x6D, // magic
		0x01, 0x00, 0x00, 0x00, // version
		0x05, 0x03, // memory section
		0x01, 0x00, 0x01, // 1 memory
		0x0B, 0x07, // data section, size 7
		0x01,             // 1 segment
		0x00,             // flags=0
		0x41, 0x00, 0x0B, // offset: i32.const 0, end
		0x05, // init length 5 (but only 1 byte follows)
		0xAA,
	}
	_, err := wasm.ParseModule(data)
	if err == nil {
		t.Error("expected error: data init bytes truncated")
	}
}

// Target parseDataSection - offset expr truncated mid-immediate
func TestParseDataSectionOffsetTruncated(t *testing.T) {
	data := []byte{
		0x00, 0x61, 0x73, 0x6D, // magic
		0x01, 0x00, 0x00, 0x00, // version
		0x05, 0x03, // memory section
		0x01, 0x00, 0x01, // 1 memory
		0x0B, 0x03, // data section, size 3
		0x01, // 1 segment
		0x00, // flags=0 (active)
		0x41, // i32.const (but no immediate or end)
	}
	_, err := wasm.ParseModule(data)
	if err == nil {
		t.Error("expected error: data offset truncated")
	}
}

// Target parseElementSection - invalid flags
func TestParseElementSectionInvalidFlags(t *testing.T) {
	data := []byte{
		0x00, 0x61, 0x73, 0x6D, // magic
		0x01, 0x00, 0x00, 0x00, // version
		0x04, 0x04, // table section
		0x01, 0x70, 0x00, 0x01, // 1 table
		0x09, 0x02, // element section, size 2
		0x01, // 1 element
		0x08, // invalid flags (>7)
	}
	_, err := wasm.ParseModule(data)
	if err == nil {
		t.Error("expected error: invalid element flags")
	}
}

// Target parseElementSection - table idx truncated (flags=2)
func TestParseElementSectionTableIdxTruncated(t *testing.T) {
	data := []byte{
		0x00, 0x61, 0x73, 0x6D, // magic
		0x01, 0x00, 0x00, 0x00, // version
		0x04, 0x04, // table section
		0x01, 0x70, 0x00, 0x01, // 1 table
		0x09, 0x02, // element section, size 2
		0x01, // 1 element
		0x02, // flags=2 (active, explicit table idx, but missing)
	}
	_, err := wasm.ParseModule(data)
	if err == nil {
		t.Error("expected error: element table idx truncated")
	}
}

// Target parseElementSection - elemkind truncated (flags=1)
func TestParseElementSectionElemKindTruncated(t *testing.T) {
	data := []byte{
		0x00, 0x61, 0x73, 0x6D, // magic
		0x01, 0x00, 0x00, 0x00, // version
		0x04, 0x04, // table section
		0x01, 0x70, 0x00, 0x01, // 1 table
		0x09, 0x02, // element section, size 2
		0x01, // 1 element
		0x01, // flags=1 (passive, with elemkind - but missing it)
	}
	_, err := wasm.ParseModule(data)
	if err == nil {
		t.Error("expected error: element elemkind truncated")
	}
}

// Target parseElementSection - vec count truncated
func TestParseElementSectionVecCountTruncated(t *testing.T) {
	data := []byte{
		0x00, 0x61, 0x73, 0x6D, // magic
		0x01, 0x00, 0x00, 0x00, // version
		0x04, 0x04, // table section
		0x01, 0x70, 0x00, 0x01, // 1 table
		0x09, 0x05, // element section, size 5
		0x01,             // 1 element
		0x00,             // flags=0 (active, table 0, no elemkind)
		0x41, 0x00, 0x0B, // offset: i32.const 0, end
		// missing vec count
	}
	_, err := wasm.ParseModule(data)
	if err == nil {
		t.Error("expected error: element vec count truncated")
	}
}

// Target parseElementSection - func idx truncated
func TestParseElementSectionFuncIdxTruncated(t *testing.T) {
	data := []byte{
		0x00, 0x61, 0x73, 0x6D, // magic
		0x01, 0x00, 0x00, 0x00, // version
		0x04, 0x04, // table section
		0x01, 0x70, 0x00, 0x01, // 1 table
		0x09, 0x06, // element section, size 6
		0x01,             // 1 element
		0x00,             // flags=0 (active)
		0x41, 0x00, 0x0B, // offset: i32.const 0, end
		0x02, // vec count = 2 (but no func indices)
	}
	_, err := wasm.ParseModule(data)
	if err == nil {
		t.Error("expected error: element func idx truncated")
	}
}

// Target parseElementSection - reftype truncated (flags=5)
func TestParseElementSectionRefTypeTruncated(t *testing.T) {
	data := []byte{
		0x00, 0x61, 0x73, 0x6D, // magic
		0x01, 0x00, 0x00, 0x00, // version
		0x04, 0x04, // table section
		0x01, 0x70, 0x00, 0x01, // 1 table
		0x09, 0x02, // element section, size 2
		0x01, // 1 element
		0x05, // flags=5 (passive, with exprs and reftype - but missing)
	}
	_, err := wasm.ParseModule(data)
	if err == nil {
		t.Error("expected error: element reftype truncated")
	}
}

// Target parseElementSection - expr truncated (flags=4)
func TestParseElementSectionExprTruncated(t *testing.T) {
	data := []byte{
		0x00, 0x61, 0x73, 0x6D, // magic
		0x01, 0x00, 0x00, 0x00, // version
		0x04, 0x04, // table section
		0x01, 0x70, 0x00, 0x01, // 1 table
		0x09, 0x06, // element section, size 6
		0x01,             // 1 element
		0x04,             // flags=4 (active, no explicit table, with exprs)
		0x41, 0x00, 0x0B, // offset: i32.const 0, end
		0x01, // vec count = 1
		// missing expr
	}
	_, err := wasm.ParseModule(data)
	if err == nil {
		t.Error("expected error: element expr truncated")
	}
}

// Target parseElementSection - offset expr truncated mid-immediate
func TestParseElementOffsetTruncated(t *testing.T) {
	data := []byte{
		0x00, 0x61, 0x73, 0x6D, // magic
		0x01, 0x00, 0x00, 0x00, // version
		0x04, 0x04, // table section
		0x01, 0x70, 0x00, 0x01, // 1 table
		0x09, 0x03, // element section, size 3
		0x01, // 1 element
		0x00, // flags: active table 0
		0x41, // i32.const (but no immediate or end)
	}
	_, err := wasm.ParseModule(data)
	if err == nil {
		t.Error("expected error: element offset truncated")
	}
}

// Target parseImportSection - import func type idx truncated
func TestParseImportFuncTypeIdxTruncated(t *testing.T) {
	data := []byte{
		0x00, 0x61, 0x73, 0x6D, // magic
		0x01, 0x00, 0x00, 0x00, // version
		0x01, 0x04, // type section
		0x01, 0x60, 0x00, 0x00, // 1 func type
		0x02, 0x06, // import section, size 6
		0x01,       // 1 import
		0x01, 0x61, // module "a"
		0x01, 0x62, // name "b"
		0x00, // kind: function (but no type idx)
	}
	_, err := wasm.ParseModule(data)
	if err == nil {
		t.Error("expected error: import func type idx truncated")
	}
}

// Target parseImportSection - import table limits truncated
func TestParseImportTableLimitsTruncated(t *testing.T) {
	data := []byte{
		0x00, 0x61, 0x73, 0x6D, // magic
		0x01, 0x00, 0x00, 0x00, // version
		0x02, 0x07, // import section, size 7
		0x01,       // 1 import
		0x01, 0x61, // module "a"
		0x01, 0x62, // name "b"
		0x01, // kind: table
		0x70, // funcref (but no limits)
	}
	_, err := wasm.ParseModule(data)
	if err == nil {
		t.Error("expected error: import table limits truncated")
	}
}

// Target parseImportSection - import memory limits truncated
func TestParseImportMemoryLimitsTruncated(t *testing.T) {
	data := []byte{
		0x00, 0x61, 0x73, 0x6D, // magic
		0x01, 0x00, 0x00, 0x00, // version
		0x02, 0x06, // import section, size 6
		0x01,       // 1 import
		0x01, 0x61, // module "a"
		0x01, 0x62, // name "b"
		0x02, // kind: memory (but no limits)
	}
	_, err := wasm.ParseModule(data)
	if err == nil {
		t.Error("expected error: import memory limits truncated")
	}
}

// Target parseImportSection - import global type truncated
func TestParseImportGlobalTypeTruncated(t *testing.T) {
	data := []byte{
		0x00, 0x61, 0x73, 0x6D, // magic
		0x01, 0x00, 0x00, 0x00, // version
		0x02, 0x06, // import section, size 6
		0x01,       // 1 import
		0x01, 0x61, // module "a"
		0x01, 0x62, // name "b"
		0x03, // kind: global (but no type)
	}
	_, err := wasm.ParseModule(data)
	if err == nil {
		t.Error("expected error: import global type truncated")
	}
}

// Target parseImportSection - import tag truncated
func TestParseImportTagTruncated(t *testing.T) {
	data := []byte{
		0x00, 0x61, 0x73, 0x6D, // magic
		0x01, 0x00, 0x00, 0x00, // version
		0x01, 0x04, // type section
		0x01, 0x60, 0x00, 0x00, // 1 func type
		0x02, 0x06, // import section, size 6
		0x01,       // 1 import
		0x01, 0x61, // module "a"
		0x01, 0x62, // name "b"
		0x04, // kind: tag (but no tag type)
	}
	_, err := wasm.ParseModule(data)
	if err == nil {
		t.Error("expected error: import tag truncated")
	}
}

// Target parseGlobalSection - global type truncated
func TestParseGlobalSectionTypeTruncated(t *testing.T) {
	data := []byte{
		0x00, 0x61, 0x73, 0x6D, // magic
		0x01, 0x00, 0x00, 0x00, // version
		0x06, 0x01, // global section, size 1
		0x01, // 1 global (but no type data)
	}
	_, err := wasm.ParseModule(data)
	if err == nil {
		t.Error("expected error: global type truncated")
	}
}

// Target readGlobalType - mutability truncated
func TestParseGlobalTypeMutabilityTruncated(t *testing.T) {
	data := []byte{
		0x00, 0x61, 0x73, 0x6D, // magic
		0x01, 0x00, 0x00, 0x00, // version
		0x06, 0x02, // global section, size 2
		0x01, // 1 global
		0x7F, // i32 (but no mutability byte)
	}
	_, err := wasm.ParseModule(data)
	if err == nil {
		t.Error("expected error: global mutability truncated")
	}
}

// Target readGlobalType - mutability out of range
func TestParseGlobalTypeMutabilityInvalid(t *testing.T) {
	data := []byte{
		0x00, 0x61, 0x73, 0x6D, // magic
		0x01, 0x00, 0x00, 0x00, // version
		0x06, 0x03, // global section, size 3
		0x01, // 1 global
		0x7F, // i32
		0x02, // mutability must be 0 or 1
	}
	_, err := wasm.ParseModule(data)
	if err == nil {
		t.Fatal("expected error: invalid mutability flag")
	}
	if !strings.Contains(err.Error(), "invalid mutability flag") {
		t.Errorf("unexpected error: %v", err)
	}
}

// Target readInitExpr - opcode outside the constant-expression grammar
func TestParseGlobalInitExprInvalidOpcode(t *testing.T) {
	data := []byte{
		0x00, 0x61, 0x73, 0x6D, // magic
		0x01, 0x00, 0x00, 0x00, // version
		0x06, 0x06, // global section, size 6
		0x01,       // 1 global
		0x7F,       // i32
		0x00,       // immutable
		0x20, 0x00, // local.get 0 (not a constant instruction)
		0x0B, // end
	}
	_, err := wasm.ParseModule(data)
	if err == nil {
		t.Fatal("expected error: invalid init expr opcode")
	}
	if !strings.Contains(err.Error(), "not valid in constant expression") {
		t.Errorf("unexpected error: %v", err)
	}
}

// Target copyInitExprImmediate - v128.const immediate truncated
func TestParseGlobalInitExprV128Truncated(t *testing.T) {
	data := []byte{
		0x00, 0x61, 0x73, 0x6D, // magic
		0x01, 0x00, 0x00, 0x00, // version
		0x06, 0x08, // global section, size 8
		0x01, // 1 global
		0x7B, // v128 type
		0x00, // immutable
		0xFD, // SIMD prefix
		0x0C, // v128.const opcode
		// needs 16 bytes for v128, but we'll provide fewer
		0x01, 0x02, 0x03,
	}
	_, err := wasm.ParseModule(data)
	if err == nil {
		t.Error("expected error: v128 bytes truncated")
	}
}

// Target readTableType - reftype truncated
func TestParseTableTypeRefTypeTruncated(t *testing.T) {
	data := []byte{
		0x00, 0x61, 0x73, 0x6D, // magic
		0x01, 0x00, 0x00, 0x00, // version
		0x04, 0x01, // table section, size 1
		0x01, // 1 table (but no ref type)
	}
	_, err := wasm.ParseModule(data)
	if err == nil {
		t.Error("expected error: table ref type truncated")
	}
}

// Target readTableType - limits min truncated
func TestParseTableTypeLimitsMinTruncated(t *testing.T) {
	data := []byte{
		0x00, 0x61, 0x73, 0x6D, // magic
		0x01, 0x00, 0x00, 0x00, // version
		0x04, 0x03, // table section, size 3
		0x01, // 1 table
		0x70, // funcref
		0x00, // limits flags: no max (but missing min)
	}
	_, err := wasm.ParseModule(data)
	if err == nil {
		t.Error("expected error: table limits min truncated")
	}
}

// Target readTableType - limits max truncated
func TestParseTableTypeLimitsMaxTruncated(t *testing.T) {
	data := []byte{
		0x00, 0x61, 0x73, 0x6D, // magic
		0x01, 0x00, 0x00, 0x00, // version
		0x04, 0x04, // table section, size 4
		0x01, // 1 table
		0x70, // funcref
		0x01, // limits flags: has max
		0x00, // min=0 (but missing max)
	}
	_, err := wasm.ParseModule(data)
	if err == nil {
		t.Error("expected error: table limits max truncated")
	}
}

// Target readLimits - limits flags truncated
func TestParseLimitsFlagsTruncated(t *testing.T) {
	data := []byte{
		0x00, 0x61, 0x73, 0x6D, // magic
		0x01, 0x00, 0x00, 0x00, // version
		0x05, 0x01, // memory section, size 1
		0x01, // 1 memory (but no limits)
	}
	_, err := wasm.ParseModule(data)
	if err == nil {
		t.Error("expected error: limits flags truncated")
	}
}

// Target readLimits - limits min truncated
func TestParseLimitsMinTruncated(t *testing.T) {
	data := []byte{
		0x00, 0x61, 0x73, 0x6D, // magic
		0x01, 0x00, 0x00, 0x00, // version
		0x05, 0x02, // memory section
		0x01, // 1 memory
		0x00, // limits flags=0 (but no min)
	}
	_, err := wasm.ParseModule(data)
	if err == nil {
		t.Error("expected error: limits min truncated")
	}
}

// Target readLimits - limits max truncated
func TestParseLimitsMaxTruncated(t *testing.T) {
	data := []byte{
		0x00, 0x61, 0x73, 0x6D, // magic
		0x01, 0x00, 0x00, 0x00, // version
		0x05, 0x03, // memory section
		0x01, // 1 memory
		0x01, // limits flags=1 (has max)
		0x00, // min=0 (but no max)
	}
	_, err := wasm.ParseModule(data)
	if err == nil {
		t.Error("expected error: limits max truncated")
	}
}

// Target parseExportSection - export name truncated
func TestParseExportSectionNameTruncated(t *testing.T) {
	data := []byte{
		0x00, 0x61, 0x73, 0x6D, // magic
		0x01, 0x00, 0x00, 0x00, // version
		0x07, 0x02, // export section, size 2
		0x01, // 1 export
		0x05, // name length 5 (but no name bytes)
	}
	_, err := wasm.ParseModule(data)
	if err == nil {
		t.Error("expected error: export name truncated")
	}
}

// Target parseExportSection - export kind truncated
func TestParseExportSectionKindTruncated(t *testing.T) {
	data := []byte{
		0x00, 0x61, 0x73, 0x6D, // magic
		0x01, 0x00, 0x00, 0x00, // version
		0x07, 0x03, // export section, size 3
		0x01,       // 1 export
		0x01, 0x66, // name "f" (but no kind)
	}
	_, err := wasm.ParseModule(data)
	if err == nil {
		t.Error("expected error: export kind truncated")
	}
}

// Target parseCodeSection - count truncated
func TestParseCodeSectionCountTruncated(t *testing.T) {
	data := []byte{
		0x00, 0x61, 0x73, 0x6D, // magic
		0x01, 0x00, 0x00, 0x00, // version
		0x01, 0x04, // type section
		0x01, 0x60, 0x00, 0x00, // 1 func type
		0x03, 0x02, // function section
		0x01, 0x00, // 1 function
		0x0A, 0x00, // code section, size 0 (no body count)
	}
	_, err := wasm.ParseModule(data)
	if err == nil {
		t.Error("expected error: code section count truncated")
	}
}

// Target parseCodeSection - body size truncated
func TestParseCodeSectionBodySizeTruncated(t *testing.T) {
	data := []byte{
		0x00, 0x61, 0x73, 0x6D, // magic
		0x01, 0x00, 0x00, 0x00, // version
		0x01, 0x04, // type section
		0x01, 0x60, 0x00, 0x00, // 1 func type
		0x03, 0x02, // function section
		0x01, 0x00, // 1 function
		0x0A, 0x01, // code section, size 1
		0x01, // 1 body (but no body size)
	}
	_, err := wasm.ParseModule(data)
	if err == nil {
		t.Error("expected error: code body size truncated")
	}
}

// Target parseCodeSection - local entry truncated inside body
func TestParseCodeLocalEntryTruncated(t *testing.T) {
	data := []byte{
		0x00, 0x61, 0x73, 0x6D, // magic
		0x01, 0x00, 0x00, 0x00, // version
		0x01, 0x04, // type section
		0x01, 0x60, 0x00, 0x00, // 1 func type
		0x03, 0x02, // function section
		0x01, 0x00, // 1 function
		0x0A, 0x03, // code section, size 3
		0x01, // 1 body
		0x01, // body size 1
		0x01, // 1 local entry (count and type missing)
	}
	_, err := wasm.ParseModule(data)
	if err == nil {
		t.Error("expected error: code local entry truncated")
	}
}

// Target parseCodeSection - local declares a bad value type
func TestParseCodeInvalidLocalType(t *testing.T) {
	data := []byte{
		0x00, 0x61, 0x73, 0x6D, // magic
		0x01, 0x00, 0x00, 0x00, // version
		0x01, 0x04, // type section
		0x01, 0x60, 0x00, 0x00, // 1 func type
		0x03, 0x02, // function section
		0x01, 0x00, // 1 function
		0x0A, 0x05, // code section, size 5
		0x01,             // 1 body
		0x03,             // body size 3
		0x01, 0x01, 0x99, // 1 local entry: count 1, invalid type 0x99
	}
	_, err := wasm.ParseModule(data)
	if err == nil {
		t.Fatal("expected error: invalid local type")
	}
	if !strings.Contains(err.Error(), "invalid value type") {
		t.Errorf("unexpected error: %v", err)
	}
}

// Target parseDataSection - flags truncated
func TestParseDataSectionFlagsTruncated(t *testing.T) {
	data := []byte{
		0x00, 0x61, 0x73, 0x6D, // magic
		0x01, 0x00, 0x00, 0x00, // version
		0x05, 0x03, // memory section
		0x01, 0x00, 0x01, // 1 memory, 0-1 pages
		0x0B, 0x01, // data section, size 1
		0x01, // 1 segment (but no flags)
	}
	_, err := wasm.ParseModule(data)
	if err == nil {
		t.Error("expected error: data segment flags truncated")
	}
}

// Target parseElementSection - count truncated
func TestParseElementSectionCountTruncated(t *testing.T) {
	data := []byte{
		0x00, 0x61, 0x73, 0x6D, // magic
		0x01, 0x00, 0x00, 0x00, // version
		0x04, 0x04, // table section
		0x01, 0x70, 0x00, 0x01, // 1 table
		0x09, 0x00, // element section, size 0 (no count)
	}
	_, err := wasm.ParseModule(data)
	if err == nil {
		t.Error("expected error: element count truncated")
	}
}

// Target parseDataCountSection - count truncated
func TestParseDataCountSectionTruncated(t *testing.T) {
	data := []byte{
		0x00, 0x61, 0x73, 0x6D, // magic
		0x01, 0x00, 0x00, 0x00, // version
		0x0C, 0x00, // data count section, size 0 (no count)
	}
	_, err := wasm.ParseModule(data)
	if err == nil {
		t.Error("expected error: data count truncated")
	}
}
