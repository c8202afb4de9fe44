package descriptor

import (
	"fmt"
	"strings"

	"github.com/iancoleman/strcase"
	"go.bytecodealliance.org/wit"

	"github.com/wasmbind/wasmbind/errors"
)

// WitType maps a value kind onto the WIT type model. Handle kinds become
// owned references to a resource named after the target struct.
func WitType(k ValueKind, set *Set) (wit.Type, error) {
	switch k.Tag {
	case TagNumber:
		return witNumber(k)
	case TagBoolean:
		return wit.Bool{}, nil
	case TagStringRef:
		return wit.String{}, nil
	case TagHandle:
		st, ok := set.Struct(k.StructID)
		if !ok {
			return nil, errors.UnresolvedStruct(k.StructID, "wit mapping")
		}
		name := strcase.ToKebab(st.Name)
		resource := &wit.TypeDef{Name: &name, Kind: &wit.Resource{}}
		return &wit.TypeDef{Kind: &wit.Own{Type: resource}}, nil
	case TagSlice:
		elem, err := WitType(*k.Elem, set)
		if err != nil {
			return nil, err
		}
		return &wit.TypeDef{Kind: &wit.List{Type: elem}}, nil
	}
	return nil, errors.InvalidArgument(errors.PhaseExtract,
		"value kind %s has no WIT equivalent", k.Tag)
}

func witNumber(k ValueKind) (wit.Type, error) {
	switch k.Width {
	case 8:
		if k.Signed {
			return wit.S8{}, nil
		}
		return wit.U8{}, nil
	case 16:
		if k.Signed {
			return wit.S16{}, nil
		}
		return wit.U16{}, nil
	case 32:
		if k.Signed {
			return wit.S32{}, nil
		}
		return wit.U32{}, nil
	case 64:
		if k.Signed {
			return wit.S64{}, nil
		}
		return wit.U64{}, nil
	}
	return nil, errors.InvalidArgument(errors.PhaseExtract,
		"number width %d has no WIT equivalent", k.Width)
}

// WitSignature renders one item as a WIT-style function line, e.g.
// "greet: func(arg0: string) -> string".
func WitSignature(e *Export, set *Set) (string, error) {
	var b strings.Builder
	b.WriteString(strcase.ToKebab(e.Name))
	b.WriteString(": func(")
	for i, p := range e.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		t, err := WitType(p, set)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "arg%d: %s", i, witTypeName(t))
	}
	b.WriteByte(')')
	if e.Result != nil {
		t, err := WitType(*e.Result, set)
		if err != nil {
			return "", err
		}
		b.WriteString(" -> ")
		b.WriteString(witTypeName(t))
	}
	return b.String(), nil
}

// RenderWIT renders the public surface of a set as WIT-style text:
// standalone functions first, then a resource block per exported struct.
func RenderWIT(set *Set) (string, error) {
	var b strings.Builder
	for _, fn := range set.PublicFunctions() {
		line, err := WitSignature(fn, set)
		if err != nil {
			return "", err
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	for _, st := range set.PublicStructs() {
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "resource %s {\n", strcase.ToKebab(st.Name))
		for _, m := range st.PublicMethods() {
			line, err := WitSignature(m, set)
			if err != nil {
				return "", err
			}
			b.WriteString("  ")
			b.WriteString(line)
			b.WriteByte('\n')
		}
		b.WriteString("}\n")
	}
	return b.String(), nil
}

func witTypeName(t wit.Type) string {
	switch v := t.(type) {
	case wit.Bool:
		return "bool"
	case wit.U8:
		return "u8"
	case wit.S8:
		return "s8"
	case wit.U16:
		return "u16"
	case wit.S16:
		return "s16"
	case wit.U32:
		return "u32"
	case wit.S32:
		return "s32"
	case wit.U64:
		return "u64"
	case wit.S64:
		return "s64"
	case wit.String:
		return "string"
	case *wit.TypeDef:
		switch kind := v.Kind.(type) {
		case *wit.List:
			return "list<" + witTypeName(kind.Type) + ">"
		case *wit.Own:
			if kind.Type != nil && kind.Type.Name != nil {
				return "own<" + *kind.Type.Name + ">"
			}
			return "own<_>"
		case *wit.Resource:
			if v.Name != nil {
				return *v.Name
			}
			return "resource"
		}
	}
	return fmt.Sprintf("unknown(%T)", t)
}
