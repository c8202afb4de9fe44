package wasmbind

import (
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/wasmbind/wasmbind/descriptor"
	"github.com/wasmbind/wasmbind/errors"
	"github.com/wasmbind/wasmbind/glue"
	"github.com/wasmbind/wasmbind/marshal"
	"github.com/wasmbind/wasmbind/profile"
	"github.com/wasmbind/wasmbind/rewrite"
	"github.com/wasmbind/wasmbind/wasm"
)

// Config drives one Generate run.
type Config struct {
	// InputPath is the processed module carrying a wasmbind metadata
	// section.
	InputPath string

	// OutDir receives the artifacts; created if missing.
	OutDir string

	// Target selects the deployment profile. See profile.Tags for the
	// recognized values.
	Target string

	// ModuleName names the artifacts (<name>_bg.wasm, <name>.js and
	// optionally <name>.d.ts). Defaults to the input file's stem.
	ModuleName string

	// EmitTypes adds a TypeScript declaration file.
	EmitTypes bool

	// Logger receives progress diagnostics. Nil means silent.
	Logger *zap.Logger
}

// Validate checks the configuration without touching the filesystem.
func (c *Config) Validate() error {
	if c.InputPath == "" {
		return errors.InvalidArgument(errors.PhaseGenerate, "input path is required")
	}
	if c.OutDir == "" {
		return errors.InvalidArgument(errors.PhaseGenerate, "output directory is required")
	}
	_, err := profile.Select(c.Target)
	return err
}

func (c *Config) name() string {
	if c.ModuleName != "" {
		return c.ModuleName
	}
	base := filepath.Base(c.InputPath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Result reports what Generate wrote.
type Result struct {
	// ModulePath is the trimmed wasm artifact.
	ModulePath string

	// GluePath is the JS glue file.
	GluePath string

	// TypesPath is the declaration file; empty unless EmitTypes was set.
	TypesPath string

	// Set is the module's extracted descriptor surface, for callers that
	// report on it.
	Set *descriptor.Set
}

// Generate runs the full pipeline: parse the module, extract and validate
// its metadata, resolve marshalling rules, trim the module, render the
// glue, then write the artifacts. Nothing is written until every stage
// has succeeded, so a failing run leaves no partial output.
func Generate(cfg Config) (*Result, error) {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	prof, err := profile.Select(cfg.Target)
	if err != nil {
		return nil, err
	}
	name := cfg.name()

	raw, err := os.ReadFile(cfg.InputPath)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseParse, errors.KindIO, err, "read input module")
	}
	mod, err := wasm.ParseModuleValidate(raw)
	if err != nil {
		return nil, err
	}
	set, err := descriptor.Extract(mod)
	if err != nil {
		return nil, err
	}
	if err := set.Validate(); err != nil {
		return nil, err
	}
	rules, err := marshal.RulesForSet(set)
	if err != nil {
		return nil, err
	}
	trimmed, err := rewrite.Trim(mod, set)
	if err != nil {
		return nil, err
	}
	gen := &glue.Generator{
		Set:        set,
		Rules:      rules,
		Profile:    prof,
		ModuleName: name,
		EmitTypes:  cfg.EmitTypes,
		Logger:     log,
	}
	art, err := gen.Generate()
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.OutDir, 0o755); err != nil {
		return nil, errors.Wrap(errors.PhaseGenerate, errors.KindIO, err, "create output directory")
	}
	res := &Result{
		ModulePath: filepath.Join(cfg.OutDir, glue.WasmArtifactName(name)),
		GluePath:   filepath.Join(cfg.OutDir, name+".js"),
		Set:        set,
	}
	outputs := []struct {
		path string
		data []byte
	}{
		{res.ModulePath, trimmed.Encode()},
		{res.GluePath, art.JS},
	}
	if cfg.EmitTypes {
		res.TypesPath = filepath.Join(cfg.OutDir, name+".d.ts")
		outputs = append(outputs, struct {
			path string
			data []byte
		}{res.TypesPath, art.Types})
	}
	for i, out := range outputs {
		if err := writeFileAtomic(out.path, out.data); err != nil {
			for _, written := range outputs[:i] {
				os.Remove(written.path)
			}
			return nil, err
		}
	}

	log.Info("generated bindings",
		zap.String("input", cfg.InputPath),
		zap.String("module", res.ModulePath),
		zap.String("glue", res.GluePath),
		zap.String("target", prof.Tag),
		zap.Int("functions", len(set.PublicFunctions())),
		zap.Int("structs", len(set.PublicStructs())))
	return res, nil
}

// Inspect parses a module and returns its validated descriptor surface.
func Inspect(inputPath string) (*descriptor.Set, error) {
	raw, err := os.ReadFile(inputPath)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseParse, errors.KindIO, err, "read input module")
	}
	mod, err := wasm.ParseModuleValidate(raw)
	if err != nil {
		return nil, err
	}
	set, err := descriptor.Extract(mod)
	if err != nil {
		return nil, err
	}
	if err := set.Validate(); err != nil {
		return nil, err
	}
	return set, nil
}

// writeFileAtomic writes through a temp file in the target directory so a
// failed run never leaves a half-written artifact behind.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return errors.Wrap(errors.PhaseGenerate, errors.KindIO, err, "create artifact")
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return errors.Wrap(errors.PhaseGenerate, errors.KindIO, err, "write artifact")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return errors.Wrap(errors.PhaseGenerate, errors.KindIO, err, "write artifact")
	}
	if err := os.Chmod(name, 0o644); err != nil {
		os.Remove(name)
		return errors.Wrap(errors.PhaseGenerate, errors.KindIO, err, "write artifact")
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return errors.Wrap(errors.PhaseGenerate, errors.KindIO, err, "write artifact")
	}
	return nil
}
