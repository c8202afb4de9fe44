package glue

import (
	"fmt"
	"strings"

	"github.com/wasmbind/wasmbind/descriptor"
	"github.com/wasmbind/wasmbind/marshal"
	"github.com/wasmbind/wasmbind/profile"
)

// initSource is the TypeScript union init accepts for each loader. The
// file-read loader has no fetch path, so Response and plain URLs served
// over HTTP are out.
func initSource(p profile.Profile) string {
	if p.Loader == profile.LoaderFileRead {
		return "string | URL | BufferSource | WebAssembly.Module"
	}
	return "string | URL | Response | BufferSource | WebAssembly.Module"
}

// tsType resolves the declaration type for one value kind. The rule
// table carries the generic form; handles substitute the class name.
func (g *Generator) tsType(k descriptor.ValueKind, r marshal.Rule) (string, error) {
	switch {
	case k.Tag == descriptor.TagHandle:
		return g.structClass(k.StructID)
	case k.Tag == descriptor.TagSlice && k.Elem.Tag == descriptor.TagHandle:
		class, err := g.structClass(k.Elem.StructID)
		if err != nil {
			return "", err
		}
		return class + "[]", nil
	}
	return r.TSType, nil
}

func (g *Generator) tsSignature(e *descriptor.Export, rules *marshal.Rules) (string, error) {
	params := make([]string, len(e.Params))
	for i, p := range e.Params {
		t, err := g.tsType(p, rules.Params[i])
		if err != nil {
			return "", err
		}
		params[i] = fmt.Sprintf("arg%d: %s", i, t)
	}
	ret := "void"
	if e.Result != nil {
		t, err := g.tsType(*e.Result, *rules.Result)
		if err != nil {
			return "", err
		}
		ret = t
	}
	return fmt.Sprintf("(%s): %s", strings.Join(params, ", "), ret), nil
}

// typeDecls renders every declaration once; indent and export prefix
// the lines so the same body serves both module files and the script
// profile's global namespace.
func (g *Generator) typeDecls(indent, export string) (string, error) {
	var b strings.Builder

	fmt.Fprintf(&b, "%s%sclass NotInitializedError extends Error {}\n", indent, export)
	fmt.Fprintf(&b, "%s%sclass UseAfterFreeError extends Error {}\n", indent, export)
	fmt.Fprintf(&b, "%s%sclass TypeCoercionError extends TypeError {}\n", indent, export)
	fmt.Fprintf(&b, "%s%sclass InstantiationError extends Error {\n%s  cause: unknown;\n%s}\n\n",
		indent, export, indent, indent)

	for _, e := range g.Set.PublicFunctions() {
		sig, err := g.tsSignature(e, g.Rules[e.Symbol()])
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "%s%sfunction %s%s;\n", indent, export, funcName(e.Name), sig)
	}
	if len(g.Set.PublicFunctions()) > 0 {
		b.WriteString("\n")
	}

	for _, st := range g.Set.PublicStructs() {
		fmt.Fprintf(&b, "%s%sclass %s {\n", indent, export, className(st.Name))
		fmt.Fprintf(&b, "%s  private constructor();\n", indent)
		fmt.Fprintf(&b, "%s  dispose(): void;\n", indent)
		fmt.Fprintf(&b, "%s  [Symbol.dispose](): void;\n", indent)
		for _, m := range st.PublicMethods() {
			sig, err := g.tsSignature(m, g.Rules[m.Symbol()])
			if err != nil {
				return "", err
			}
			fmt.Fprintf(&b, "%s  %s%s;\n", indent, methodName(m.Name), sig)
		}
		fmt.Fprintf(&b, "%s}\n\n", indent)
	}
	return b.String(), nil
}

func (g *Generator) renderTypes() ([]byte, error) {
	name := g.moduleName()
	var b strings.Builder
	fmt.Fprintf(&b, "// Code generated by wasmbind. DO NOT EDIT.\n")
	fmt.Fprintf(&b, "// Declarations for %s (target: %s).\n\n", name, g.Profile.Tag)

	if !g.Profile.ESM {
		decls, err := g.typeDecls("  ", "")
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(&b, "declare namespace %s {\n", globalName(name))
		b.WriteString(decls)
		fmt.Fprintf(&b, "  function init(input: %s): Promise<typeof %s>;\n",
			initSource(g.Profile), globalName(name))
		b.WriteString("}\n")
		return []byte(b.String()), nil
	}

	decls, err := g.typeDecls("", "export ")
	if err != nil {
		return nil, err
	}
	b.WriteString(decls)

	b.WriteString("export interface InitOutput {\n")
	b.WriteString("  init: typeof init;\n")
	for _, e := range g.Set.PublicFunctions() {
		fmt.Fprintf(&b, "  %s: typeof %s;\n", funcName(e.Name), funcName(e.Name))
	}
	for _, st := range g.Set.PublicStructs() {
		fmt.Fprintf(&b, "  %s: typeof %s;\n", className(st.Name), className(st.Name))
	}
	for _, n := range errorClassNames {
		fmt.Fprintf(&b, "  %s: typeof %s;\n", n, n)
	}
	b.WriteString("}\n\n")

	fmt.Fprintf(&b, "export function init(input?: %s): Promise<InitOutput>;\n", initSource(g.Profile))
	b.WriteString("export default init;\n")
	return []byte(b.String()), nil
}
