package descriptor

import (
	"fmt"
	"strings"

	"github.com/wasmbind/wasmbind/errors"
)

// SectionName is the reserved custom section carrying export metadata.
// The section is build-time information only; the rewriter drops it from
// shipped modules.
const SectionName = "wasmbind"

// Names of the support exports generated glue depends on, and of the host
// import namespace the glue provides.
const (
	SymbolAlloc  = "__wasmbind_alloc"
	SymbolFree   = "__wasmbind_free"
	SymbolStrLen = "__wasmbind_str_len"
	SymbolMemory = "memory"
	SymbolLog    = "__wasmbind_log"

	// HostModule is the import namespace the glue and the Go host expose
	// to the module (logging and future host callbacks).
	HostModule = "wasmbind"

	dropPrefix = "__wasmbind_drop_"
)

// ExportKind discriminates metadata items. Values match the wire encoding.
type ExportKind uint8

const (
	KindFunction  ExportKind = 0x01
	KindStructDef ExportKind = 0x02
	KindMethod    ExportKind = 0x03
)

var exportKindNames = [...]string{
	KindFunction:  "function",
	KindStructDef: "struct",
	KindMethod:    "method",
}

func (k ExportKind) String() string {
	if int(k) < len(exportKindNames) && exportKindNames[k] != "" {
		return exportKindNames[k]
	}
	return fmt.Sprintf("unknown(0x%02x)", uint8(k))
}

// Visibility controls whether an item crosses the host boundary. Internal
// items exist in the module but never appear in generated glue.
type Visibility uint8

const (
	Internal Visibility = 0x00
	Public   Visibility = 0x01
)

func (v Visibility) String() string {
	switch v {
	case Internal:
		return "internal"
	case Public:
		return "public"
	}
	return fmt.Sprintf("unknown(0x%02x)", uint8(v))
}

// Export is one decoded metadata item. Items are immutable once Extract
// returns; Owner is filled during the resolution pass and never changes
// afterwards.
type Export struct {
	Name       string
	Kind       ExportKind
	Visibility Visibility

	// Params lists the declared parameter kinds. For methods the receiver
	// is implicit and not part of Params.
	Params []ValueKind

	// Result is the return kind, nil for void.
	Result *ValueKind

	// OwningStruct is the declared owner id of a Method item.
	OwningStruct uint32

	// StructID is the declared id of a StructDef item.
	StructID uint32

	// MethodIndices lists the item indices of a StructDef's methods.
	MethodIndices []uint32

	// Owner is the resolved owning struct of a Method item.
	Owner *Struct

	// Index is the item's position in the metadata section.
	Index int
}

// Public reports whether the item is visible to generated glue.
func (e *Export) Public() bool {
	return e.Visibility == Public
}

// Symbol returns the name the module exports the item under. Functions
// export under their own name; methods are prefixed with the owning
// struct's name. Struct definitions have no symbol of their own.
func (e *Export) Symbol() string {
	switch e.Kind {
	case KindMethod:
		if e.Owner != nil {
			return e.Owner.Name + "_" + e.Name
		}
		return e.Name
	case KindStructDef:
		return ""
	default:
		return e.Name
	}
}

// TransfersOwnership reports whether any string argument's buffer passes
// to the module permanently, so the glue must skip the post-call free.
func (e *Export) TransfersOwnership() bool {
	for _, p := range e.Params {
		if p.Tag == TagStringRef && p.Owned {
			return true
		}
	}
	return false
}

// Signature renders the item's parameter and result kinds, e.g.
// "(string, u32) -> string".
func (e *Export) Signature() string {
	var b strings.Builder
	b.WriteByte('(')
	for i, p := range e.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.String())
	}
	b.WriteByte(')')
	if e.Result != nil {
		b.WriteString(" -> ")
		b.WriteString(e.Result.String())
	}
	return b.String()
}

// Struct is the resolved view of a StructDef item and its methods.
type Struct struct {
	ID   uint32
	Name string

	// Methods holds the struct's methods in method-list order.
	Methods []*Export

	// Exported mirrors the definition's visibility.
	Exported bool

	// Index is the definition item's position in the metadata section.
	Index int

	// Def is the StructDef item this view was resolved from.
	Def *Export
}

// Method returns the struct's method with the given name, or nil.
func (s *Struct) Method(name string) *Export {
	for _, m := range s.Methods {
		if m.Name == name {
			return m
		}
	}
	return nil
}

// PublicMethods returns the methods visible to generated glue, in
// method-list order.
func (s *Struct) PublicMethods() []*Export {
	out := make([]*Export, 0, len(s.Methods))
	for _, m := range s.Methods {
		if m.Public() {
			out = append(out, m)
		}
	}
	return out
}

// DropSymbol returns the name of the module's drop export for this struct.
func (s *Struct) DropSymbol() string {
	return dropPrefix + s.Name
}

// Set is the resolved contents of one module's metadata section.
type Set struct {
	// Items holds every metadata item in declaration order, including
	// Internal ones: the rewriter and inspection tooling see the full
	// surface, the glue generator only the Public views.
	Items []*Export

	structs map[uint32]*Struct
}

// Struct returns the struct declared with the given id.
func (s *Set) Struct(id uint32) (*Struct, bool) {
	st, ok := s.structs[id]
	return st, ok
}

// Structs returns every declared struct in declaration order.
func (s *Set) Structs() []*Struct {
	out := make([]*Struct, 0, len(s.structs))
	for _, it := range s.Items {
		if it.Kind == KindStructDef {
			out = append(out, s.structs[it.StructID])
		}
	}
	return out
}

// Public returns the Public items in declaration order.
func (s *Set) Public() []*Export {
	out := make([]*Export, 0, len(s.Items))
	for _, it := range s.Items {
		if it.Public() {
			out = append(out, it)
		}
	}
	return out
}

// PublicFunctions returns the Public standalone functions in declaration
// order.
func (s *Set) PublicFunctions() []*Export {
	out := make([]*Export, 0, len(s.Items))
	for _, it := range s.Items {
		if it.Kind == KindFunction && it.Public() {
			out = append(out, it)
		}
	}
	return out
}

// PublicStructs returns the exported structs in declaration order.
func (s *Set) PublicStructs() []*Struct {
	out := make([]*Struct, 0, len(s.structs))
	for _, st := range s.Structs() {
		if st.Exported {
			out = append(out, st)
		}
	}
	return out
}

// Function returns the standalone function with the given name, or nil.
func (s *Set) Function(name string) *Export {
	for _, it := range s.Items {
		if it.Kind == KindFunction && it.Name == name {
			return it
		}
	}
	return nil
}

// Validate enforces the semantic rules a resolved set must satisfy before
// code generation: export symbols are unique, struct names are unique, and
// a public method never belongs to an internal struct.
func (s *Set) Validate() error {
	symbols := make(map[string]string)
	for _, it := range s.Items {
		if it.Kind == KindStructDef {
			continue
		}
		sym := it.Symbol()
		if prev, dup := symbols[sym]; dup {
			return errors.MetadataParse([]string{it.Name},
				"export symbol %q already used by %q", sym, prev)
		}
		symbols[sym] = it.Name
	}

	names := make(map[string]uint32)
	for _, st := range s.Structs() {
		if prev, dup := names[st.Name]; dup {
			return errors.MetadataParse([]string{st.Name},
				"struct name already used by id %d", prev)
		}
		names[st.Name] = st.ID
	}

	for _, it := range s.Items {
		if it.Kind == KindMethod && it.Public() && !it.Owner.Exported {
			return errors.MetadataParse([]string{it.Owner.Name, it.Name},
				"public method on internal struct")
		}
	}
	return nil
}
