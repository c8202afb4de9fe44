package descriptor

import (
	"github.com/wasmbind/wasmbind/internal/binary"
	"github.com/wasmbind/wasmbind/wasm"
)

// Section accumulates metadata items for encoding. It is the authoring
// counterpart of Decode, used by compiler-side tooling and test fixtures.
type Section struct {
	Items []*Export
}

// NewSection returns an empty metadata section.
func NewSection() *Section {
	return &Section{}
}

// Function appends a standalone function item and returns it.
func (s *Section) Function(name string, vis Visibility, params []ValueKind, result *ValueKind) *Export {
	item := &Export{
		Name:       name,
		Kind:       KindFunction,
		Visibility: vis,
		Params:     params,
		Result:     result,
		Index:      len(s.Items),
	}
	s.Items = append(s.Items, item)
	return item
}

// Struct appends a struct definition item. Methods added through the
// returned builder are appended to the section and recorded in the
// definition's method list.
func (s *Section) Struct(name string, vis Visibility, id uint32) *StructBuilder {
	item := &Export{
		Name:       name,
		Kind:       KindStructDef,
		Visibility: vis,
		StructID:   id,
		Index:      len(s.Items),
	}
	s.Items = append(s.Items, item)
	return &StructBuilder{section: s, def: item}
}

// StructBuilder appends methods to a struct definition.
type StructBuilder struct {
	section *Section
	def     *Export
}

// Method appends a method item owned by the builder's struct.
func (b *StructBuilder) Method(name string, vis Visibility, params []ValueKind, result *ValueKind) *Export {
	item := &Export{
		Name:         name,
		Kind:         KindMethod,
		Visibility:   vis,
		Params:       params,
		Result:       result,
		OwningStruct: b.def.StructID,
		Index:        len(b.section.Items),
	}
	b.def.MethodIndices = append(b.def.MethodIndices, uint32(item.Index))
	b.section.Items = append(b.section.Items, item)
	return item
}

// Encode serializes the section to the wire layout understood by Decode.
func (s *Section) Encode() []byte {
	w := binary.NewWriter()
	w.WriteU32(uint32(len(s.Items)))
	for _, it := range s.Items {
		encodeItem(w, it)
	}
	return w.Bytes()
}

// CustomSection wraps the encoded section for inclusion in a module.
func (s *Section) CustomSection() wasm.CustomSection {
	return wasm.CustomSection{Name: SectionName, Data: s.Encode()}
}

func encodeItem(w *binary.Writer, it *Export) {
	w.Byte(byte(it.Kind))
	w.WriteName(it.Name)
	w.Byte(byte(it.Visibility))

	switch it.Kind {
	case KindFunction, KindMethod:
		w.WriteU32(uint32(len(it.Params)))
		for _, p := range it.Params {
			encodeKind(w, p)
		}
		if it.Result != nil {
			w.Byte(1)
			encodeKind(w, *it.Result)
		} else {
			w.Byte(0)
		}
		if it.Kind == KindMethod {
			w.WriteU32(it.OwningStruct)
		}
	case KindStructDef:
		w.WriteU32(it.StructID)
		w.WriteU32(uint32(len(it.MethodIndices)))
		for _, idx := range it.MethodIndices {
			w.WriteU32(idx)
		}
	}
}

func encodeKind(w *binary.Writer, k ValueKind) {
	w.Byte(byte(k.Tag))
	switch k.Tag {
	case TagNumber:
		w.Byte(k.Width)
		w.Byte(flagByte(k.Signed))
	case TagStringRef:
		w.Byte(flagByte(k.Owned))
	case TagHandle:
		w.WriteU32(k.StructID)
	case TagSlice:
		encodeKind(w, *k.Elem)
	}
}

func flagByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
