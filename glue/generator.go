// Package glue emits the JavaScript binding layer for a module: an init
// state machine, one wrapper per public function, one class per exported
// struct, and the runtime helpers they share (handle table, memory views,
// string and slice marshalling, error classes). Output shape and loading
// strategy come from the target profile; everything else is identical
// across targets.
package glue

import (
	"strings"

	"github.com/iancoleman/strcase"
	"go.uber.org/zap"

	"github.com/wasmbind/wasmbind/descriptor"
	"github.com/wasmbind/wasmbind/errors"
	"github.com/wasmbind/wasmbind/marshal"
	"github.com/wasmbind/wasmbind/profile"
)

// Generator emits the glue for one resolved descriptor set.
type Generator struct {
	Set *descriptor.Set

	// Rules maps export symbols to marshalling rules, as produced by
	// marshal.RulesForSet.
	Rules map[string]*marshal.Rules

	Profile profile.Profile

	// ModuleName names the generated surface: the wasm artifact is
	// <ModuleName>_bg.wasm and the script profile's global is the
	// lowerCamel form of it.
	ModuleName string

	// EmitTypes adds a .d.ts declaration file to the artifact.
	EmitTypes bool

	Logger *zap.Logger
}

// Artifact is the generated source.
type Artifact struct {
	JS []byte

	// Types holds the declaration file, nil unless EmitTypes was set.
	Types []byte
}

// Generate renders the glue. The descriptor set must be resolved and
// validated and every public callable must have rules; anything else is
// a programming error surfaced as invalid_argument.
func (g *Generator) Generate() (*Artifact, error) {
	log := g.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if g.Set == nil {
		return nil, errors.InvalidArgument(errors.PhaseGenerate, "generator needs a descriptor set")
	}

	name := g.moduleName()

	funcs := g.Set.PublicFunctions()
	structs := g.Set.PublicStructs()
	for _, e := range funcs {
		if _, ok := g.Rules[e.Symbol()]; !ok {
			return nil, errors.InvalidArgument(errors.PhaseGenerate,
				"no marshalling rules for export %q", e.Symbol())
		}
	}
	for _, st := range structs {
		for _, m := range st.PublicMethods() {
			if _, ok := g.Rules[m.Symbol()]; !ok {
				return nil, errors.InvalidArgument(errors.PhaseGenerate,
					"no marshalling rules for export %q", m.Symbol())
			}
		}
	}

	var b strings.Builder
	writeHeader(&b, g.Profile, name)
	writeLoaderPrelude(&b, g.Profile, name)
	if !g.Profile.ESM {
		writeScriptOpen(&b)
	}
	writeErrorClasses(&b)
	writeSharedState(&b)
	writeHandleTable(&b)
	writeMemoryHelpers(&b)
	writeStringHelpers(&b)
	writeSliceHelpers(&b)
	writeRegistry(&b)
	writeHostImports(&b)
	writeInit(&b, g.Profile, name)

	for _, e := range funcs {
		log.Debug("emitting function wrapper",
			zap.String("export", e.Symbol()),
			zap.String("js", funcName(e.Name)))
		if err := g.writeFunction(&b, e); err != nil {
			return nil, err
		}
	}
	for _, st := range structs {
		log.Debug("emitting struct class",
			zap.String("struct", st.Name),
			zap.String("js", className(st.Name)),
			zap.Int("methods", len(st.PublicMethods())))
		if err := g.writeClass(&b, st); err != nil {
			return nil, err
		}
	}

	writeFooter(&b, g.Profile, name, funcs, structs)

	art := &Artifact{JS: []byte(b.String())}
	if g.EmitTypes {
		types, err := g.renderTypes()
		if err != nil {
			return nil, err
		}
		art.Types = types
	}

	log.Info("generated glue",
		zap.String("module", name),
		zap.String("target", g.Profile.Tag),
		zap.Int("functions", len(funcs)),
		zap.Int("structs", len(structs)),
		zap.Bool("types", g.EmitTypes))
	return art, nil
}

// WasmArtifactName returns the filename the loader snippets reference.
func WasmArtifactName(moduleName string) string {
	return moduleName + "_bg.wasm"
}

func (g *Generator) moduleName() string {
	if g.ModuleName == "" {
		return "module"
	}
	return g.ModuleName
}

func funcName(name string) string {
	return strcase.ToLowerCamel(name)
}

func methodName(name string) string {
	return strcase.ToLowerCamel(name)
}

func className(name string) string {
	return strcase.ToCamel(name)
}

func globalName(moduleName string) string {
	return strcase.ToLowerCamel(moduleName)
}

// structClass resolves the class name for a handle kind's target.
func (g *Generator) structClass(structID uint32) (string, error) {
	st, ok := g.Set.Struct(structID)
	if !ok {
		return "", errors.UnresolvedStruct(structID, "glue generator")
	}
	return className(st.Name), nil
}

var errorClassNames = []string{
	"NotInitializedError",
	"UseAfterFreeError",
	"TypeCoercionError",
	"InstantiationError",
}
