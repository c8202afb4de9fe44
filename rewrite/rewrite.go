// Package rewrite trims a module down to its shippable export surface.
// The output keeps exactly the metadata's public symbols plus the support
// exports generated glue depends on; internal name bindings disappear
// from the export section while their bodies stay reachable inside the
// module. The metadata custom section is build-time information and is
// dropped. No function body is altered and every other section
// round-trips unchanged.
package rewrite

import (
	"strings"

	"github.com/wasmbind/wasmbind/descriptor"
	"github.com/wasmbind/wasmbind/errors"
	"github.com/wasmbind/wasmbind/wasm"
)

// Trim returns the shippable form of m for the given metadata set. The
// result shares unmodified sections with the input; only the export list
// and the custom sections are rebuilt. The input module is not mutated.
//
// Every public symbol and every support export must be present in m with
// the right export kind, otherwise the rewrite fails and no module is
// produced.
func Trim(m *wasm.Module, set *descriptor.Set) (*wasm.Module, error) {
	keep, err := exportSurface(m, set)
	if err != nil {
		return nil, err
	}

	out := *m

	out.Exports = make([]wasm.Export, 0, len(keep))
	for _, e := range m.Exports {
		if keep[e.Name] {
			out.Exports = append(out.Exports, e)
		}
	}

	out.CustomSections = make([]wasm.CustomSection, 0, len(m.CustomSections))
	for _, cs := range m.CustomSections {
		if cs.Name == descriptor.SectionName {
			continue
		}
		out.CustomSections = append(out.CustomSections, cs)
	}

	return &out, nil
}

// exportSurface resolves the set of export names the trimmed module must
// carry and validates that m provides each with the expected kind. All
// missing names are reported in one error.
func exportSurface(m *wasm.Module, set *descriptor.Set) (map[string]bool, error) {
	required := make(map[string]byte)
	var order []string
	add := func(name string, kind byte) {
		if _, ok := required[name]; !ok {
			order = append(order, name)
		}
		required[name] = kind
	}

	for _, e := range set.Public() {
		if e.Kind == descriptor.KindStructDef {
			continue
		}
		add(e.Symbol(), wasm.KindFunc)
	}
	for _, st := range set.PublicStructs() {
		add(st.DropSymbol(), wasm.KindFunc)
	}
	add(descriptor.SymbolAlloc, wasm.KindFunc)
	add(descriptor.SymbolFree, wasm.KindFunc)
	add(descriptor.SymbolStrLen, wasm.KindFunc)
	add(descriptor.SymbolMemory, wasm.KindMemory)

	var missing []string
	for _, name := range order {
		exp := m.FindExport(name)
		if exp == nil {
			missing = append(missing, name)
			continue
		}
		if exp.Kind != required[name] {
			return nil, errors.New(errors.PhaseRewrite, errors.KindMalformedModule).
				Path(name).
				Detail("export %q is a %s, want a %s",
					name, exportKindName(exp.Kind), exportKindName(required[name])).
				Build()
		}
	}
	if len(missing) > 0 {
		return nil, errors.New(errors.PhaseRewrite, errors.KindMalformedModule).
			Detail("module does not export: %s", strings.Join(missing, ", ")).
			Build()
	}

	keep := make(map[string]bool, len(required))
	for name := range required {
		keep[name] = true
	}
	return keep, nil
}

func exportKindName(kind byte) string {
	switch kind {
	case wasm.KindFunc:
		return "function"
	case wasm.KindTable:
		return "table"
	case wasm.KindMemory:
		return "memory"
	case wasm.KindGlobal:
		return "global"
	case wasm.KindTag:
		return "tag"
	}
	return "unknown"
}
