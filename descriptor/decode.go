package descriptor

import (
	"bytes"
	"fmt"

	"github.com/wasmbind/wasmbind/errors"
	"github.com/wasmbind/wasmbind/internal/binary"
	"github.com/wasmbind/wasmbind/wasm"
)

// maxKindDepth bounds Slice nesting so a corrupt section cannot drive the
// decoder into unbounded recursion.
const maxKindDepth = 32

// Extract locates the reserved metadata section and decodes it into a
// resolved Set. The module must carry exactly one section named
// SectionName.
func Extract(m *wasm.Module) (*Set, error) {
	var data []byte
	count := 0
	for i := range m.CustomSections {
		if m.CustomSections[i].Name == SectionName {
			count++
			data = m.CustomSections[i].Data
		}
	}
	if count == 0 {
		return nil, errors.MetadataParse(nil, "custom section %q not found", SectionName)
	}
	if count > 1 {
		return nil, errors.MetadataParse(nil, "custom section %q appears %d times", SectionName, count)
	}
	return Decode(data)
}

// Decode decodes raw metadata section bytes into a resolved Set.
func Decode(data []byte) (*Set, error) {
	r := binary.NewReader(bytes.NewReader(data))

	itemCount, err := r.ReadU32()
	if err != nil {
		return nil, wrapParse(r, err, "item count")
	}

	set := &Set{structs: make(map[uint32]*Struct)}
	for i := 0; i < int(itemCount); i++ {
		item, err := decodeItem(r, i)
		if err != nil {
			return nil, err
		}
		set.Items = append(set.Items, item)
	}

	if r.Len() > 0 {
		return nil, errors.MetadataParse(nil, "%d trailing bytes after last item", r.Len())
	}

	if err := set.resolve(); err != nil {
		return nil, err
	}
	return set, nil
}

func decodeItem(r *binary.Reader, index int) (*Export, error) {
	kindByte, err := r.ReadByte()
	if err != nil {
		return nil, wrapParse(r, err, fmt.Sprintf("item %d kind", index))
	}
	kind := ExportKind(kindByte)
	switch kind {
	case KindFunction, KindStructDef, KindMethod:
	default:
		return nil, errors.MetadataParse(nil, "item %d: unknown kind 0x%02x", index, kindByte)
	}

	name, err := r.ReadName()
	if err != nil {
		return nil, wrapParse(r, err, fmt.Sprintf("item %d name", index))
	}
	if name == "" {
		return nil, errors.MetadataParse(nil, "item %d: empty name", index)
	}

	visByte, err := r.ReadByte()
	if err != nil {
		return nil, wrapParse(r, err, name+" visibility")
	}
	if visByte > 1 {
		return nil, errors.MetadataParse([]string{name}, "invalid visibility 0x%02x", visByte)
	}

	item := &Export{
		Name:       name,
		Kind:       kind,
		Visibility: Visibility(visByte),
		Index:      index,
	}

	switch kind {
	case KindFunction, KindMethod:
		if err := decodeSignature(r, item); err != nil {
			return nil, err
		}
		if kind == KindMethod {
			owner, err := r.ReadU32()
			if err != nil {
				return nil, wrapParse(r, err, name+" owning struct id")
			}
			item.OwningStruct = owner
		}
	case KindStructDef:
		if err := decodeStructPayload(r, item); err != nil {
			return nil, err
		}
	}
	return item, nil
}

func decodeSignature(r *binary.Reader, item *Export) error {
	paramCount, err := r.ReadU32()
	if err != nil {
		return wrapParse(r, err, item.Name+" param count")
	}
	for p := 0; p < int(paramCount); p++ {
		k, err := decodeKind(r, item.Name, 0)
		if err != nil {
			return err
		}
		item.Params = append(item.Params, k)
	}

	hasReturn, err := r.ReadByte()
	if err != nil {
		return wrapParse(r, err, item.Name+" return flag")
	}
	switch hasReturn {
	case 0:
	case 1:
		k, err := decodeKind(r, item.Name, 0)
		if err != nil {
			return err
		}
		item.Result = &k
	default:
		return errors.MetadataParse([]string{item.Name}, "invalid return flag 0x%02x", hasReturn)
	}
	return nil
}

func decodeKind(r *binary.Reader, owner string, depth int) (ValueKind, error) {
	if depth > maxKindDepth {
		return ValueKind{}, errors.MetadataParse([]string{owner},
			"value kind nesting exceeds %d levels", maxKindDepth)
	}

	tag, err := r.ReadByte()
	if err != nil {
		return ValueKind{}, wrapParse(r, err, owner+" value kind tag")
	}

	switch Tag(tag) {
	case TagNumber:
		width, err := r.ReadByte()
		if err != nil {
			return ValueKind{}, wrapParse(r, err, owner+" number width")
		}
		signed, err := r.ReadByte()
		if err != nil {
			return ValueKind{}, wrapParse(r, err, owner+" number signedness")
		}
		switch width {
		case 8, 16, 32, 64:
		default:
			return ValueKind{}, errors.MetadataParse([]string{owner},
				"number width must be 8, 16, 32 or 64, got %d", width)
		}
		if signed > 1 {
			return ValueKind{}, errors.MetadataParse([]string{owner},
				"invalid signedness flag 0x%02x", signed)
		}
		return Number(width, signed == 1), nil
	case TagBoolean:
		return Boolean(), nil
	case TagStringRef:
		owned, err := r.ReadByte()
		if err != nil {
			return ValueKind{}, wrapParse(r, err, owner+" string ownership flag")
		}
		if owned > 1 {
			return ValueKind{}, errors.MetadataParse([]string{owner},
				"invalid ownership flag 0x%02x", owned)
		}
		return StringRef(owned == 1), nil
	case TagHandle:
		id, err := r.ReadU32()
		if err != nil {
			return ValueKind{}, wrapParse(r, err, owner+" handle struct id")
		}
		return Handle(id), nil
	case TagSlice:
		elem, err := decodeKind(r, owner, depth+1)
		if err != nil {
			return ValueKind{}, err
		}
		return Slice(elem), nil
	default:
		return ValueKind{}, errors.MetadataParse([]string{owner},
			"unknown value kind tag 0x%02x", tag)
	}
}

func decodeStructPayload(r *binary.Reader, item *Export) error {
	id, err := r.ReadU32()
	if err != nil {
		return wrapParse(r, err, item.Name+" struct id")
	}
	item.StructID = id

	methodCount, err := r.ReadU32()
	if err != nil {
		return wrapParse(r, err, item.Name+" method count")
	}
	for i := 0; i < int(methodCount); i++ {
		idx, err := r.ReadU32()
		if err != nil {
			return wrapParse(r, err, fmt.Sprintf("%s method index %d", item.Name, i))
		}
		item.MethodIndices = append(item.MethodIndices, idx)
	}
	return nil
}

// resolve runs the second pass: structs register by id, then methods and
// Handle references bind against them. References may point forward.
func (s *Set) resolve() error {
	for _, it := range s.Items {
		if it.Kind != KindStructDef {
			continue
		}
		if prev, dup := s.structs[it.StructID]; dup {
			return errors.MetadataParse([]string{it.Name},
				"struct id %d already declared by %q", it.StructID, prev.Name)
		}
		s.structs[it.StructID] = &Struct{
			ID:       it.StructID,
			Name:     it.Name,
			Exported: it.Visibility == Public,
			Index:    it.Index,
			Def:      it,
		}
	}

	for _, it := range s.Items {
		if it.Kind != KindMethod {
			continue
		}
		st, ok := s.structs[it.OwningStruct]
		if !ok {
			return errors.UnresolvedStruct(it.OwningStruct, it.Name)
		}
		it.Owner = st
	}

	// Method lists and method owner fields encode the same relationship
	// twice; both directions must agree.
	claimed := make(map[int]bool)
	for _, it := range s.Items {
		if it.Kind != KindStructDef {
			continue
		}
		st := s.structs[it.StructID]
		for _, idx := range it.MethodIndices {
			if int(idx) >= len(s.Items) {
				return errors.MetadataParse([]string{st.Name},
					"method index %d out of range (%d items)", idx, len(s.Items))
			}
			m := s.Items[idx]
			if m.Kind != KindMethod {
				return errors.MetadataParse([]string{st.Name},
					"method index %d refers to a %s item", idx, m.Kind)
			}
			if m.OwningStruct != st.ID {
				return errors.MetadataParse([]string{st.Name, m.Name},
					"method declares owner %d but is listed by struct %d", m.OwningStruct, st.ID)
			}
			if claimed[int(idx)] {
				return errors.MetadataParse([]string{st.Name, m.Name}, "method listed twice")
			}
			claimed[int(idx)] = true
			st.Methods = append(st.Methods, m)
		}
	}
	for _, it := range s.Items {
		if it.Kind == KindMethod && !claimed[it.Index] {
			return errors.MetadataParse([]string{it.Owner.Name, it.Name},
				"method is not listed by its struct")
		}
	}

	for _, it := range s.Items {
		for i := range it.Params {
			if err := s.resolveKind(&it.Params[i], it.Name); err != nil {
				return err
			}
		}
		if it.Result != nil {
			if err := s.resolveKind(it.Result, it.Name); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Set) resolveKind(k *ValueKind, referrer string) error {
	switch k.Tag {
	case TagHandle:
		if _, ok := s.structs[k.StructID]; !ok {
			return errors.UnresolvedStruct(k.StructID, referrer)
		}
	case TagSlice:
		return s.resolveKind(k.Elem, referrer)
	}
	return nil
}

func wrapParse(r *binary.Reader, cause error, what string) error {
	return errors.New(errors.PhaseExtract, errors.KindMetadataParse).
		Cause(cause).
		Detail("%s at offset %d", what, r.Position()).
		Build()
}
