package host

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wasmbind/wasmbind/descriptor"
	"github.com/wasmbind/wasmbind/errors"
	"github.com/wasmbind/wasmbind/handle"
	"github.com/wasmbind/wasmbind/marshal"
)

// Options tunes runtime construction.
type Options struct {
	// CacheDir enables wazero's on-disk compilation cache. Empty keeps
	// compilation in-memory only.
	CacheDir string

	// MemoryLimitPages caps guest memory growth in 64 KiB pages. Zero
	// keeps wazero's default limit.
	MemoryLimitPages uint32
}

// Runtime owns a wazero runtime plus the wasmbind host module. A single
// Runtime can load any number of instances; Close tears all of them down.
type Runtime struct {
	wazero wazero.Runtime
	cache  wazero.CompilationCache

	hostMu   sync.Mutex
	hostDone atomic.Bool
}

// New creates a runtime with default options.
func New(ctx context.Context) (*Runtime, error) {
	return NewWithOptions(ctx, Options{})
}

// NewWithOptions creates a runtime with the given options.
func NewWithOptions(ctx context.Context, opts Options) (*Runtime, error) {
	cfg := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if opts.MemoryLimitPages > 0 {
		cfg = cfg.WithMemoryLimitPages(opts.MemoryLimitPages)
	}

	var cache wazero.CompilationCache
	if opts.CacheDir != "" {
		var err error
		cache, err = wazero.NewCompilationCacheWithDir(opts.CacheDir)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseInstantiate, errors.KindIO, err, "open compilation cache")
		}
		cfg = cfg.WithCompilationCache(cache)
	}

	r := &Runtime{
		wazero: wazero.NewRuntimeWithConfig(ctx, cfg),
		cache:  cache,
	}
	Logger().Debug("created host runtime",
		zap.String("cache_dir", opts.CacheDir),
		zap.Uint32("memory_limit_pages", opts.MemoryLimitPages))
	return r, nil
}

// Load compiles module bytes against their descriptor set and returns an
// uninitialized instance. Marshalling rules for every public export are
// derived here, so a module with unsupported signatures fails before
// anything runs.
func (r *Runtime) Load(ctx context.Context, wasmBytes []byte, set *descriptor.Set) (*Instance, error) {
	if set == nil {
		return nil, errors.InvalidArgument(errors.PhaseInstantiate, "descriptor set is nil")
	}
	rules, err := marshal.RulesForSet(set)
	if err != nil {
		return nil, err
	}
	compiled, err := r.wazero.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, errors.Instantiation(err)
	}
	Logger().Debug("compiled module",
		zap.Int("wasm_bytes", len(wasmBytes)),
		zap.Int("exports", len(set.Public())))
	return &Instance{
		runtime:  r,
		compiled: compiled,
		set:      set,
		rules:    rules,
		handles:  handle.NewTable(),
		done:     make(chan struct{}),
	}, nil
}

// Close releases the wazero runtime and every instance loaded from it,
// then the compilation cache if one was configured.
func (r *Runtime) Close(ctx context.Context) error {
	if err := r.wazero.Close(ctx); err != nil {
		return errors.Wrap(errors.PhaseRuntime, errors.KindIO, err, "close runtime")
	}
	if r.cache != nil {
		if err := r.cache.Close(ctx); err != nil {
			return errors.Wrap(errors.PhaseRuntime, errors.KindIO, err, "close compilation cache")
		}
	}
	return nil
}

// ensureHostModule registers the wasmbind import namespace exactly once
// per runtime. Instantiation is racy against itself in wazero, so the
// check-then-register sequence is serialized.
func (r *Runtime) ensureHostModule(ctx context.Context) error {
	if r.hostDone.Load() {
		return nil
	}
	r.hostMu.Lock()
	defer r.hostMu.Unlock()
	if r.hostDone.Load() {
		return nil
	}
	if r.wazero.Module(descriptor.HostModule) == nil {
		_, err := r.wazero.NewHostModuleBuilder(descriptor.HostModule).
			NewFunctionBuilder().
			WithGoModuleFunction(api.GoModuleFunc(hostLog),
				[]api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, nil).
			Export(descriptor.SymbolLog).
			Instantiate(ctx)
		if err != nil {
			return err
		}
	}
	r.hostDone.Store(true)
	return nil
}

// hostLog backs __wasmbind_log(ptr, len). It copies a UTF-8 string out
// of guest memory and forwards it to the package logger. A bad pointer
// is reported and dropped, never fatal.
func hostLog(_ context.Context, mod api.Module, stack []uint64) {
	ptr := api.DecodeU32(stack[0])
	length := api.DecodeU32(stack[1])
	if length == 0 {
		return
	}
	data, ok := mod.Memory().Read(ptr, length)
	if !ok {
		Logger().Warn("guest log out of bounds",
			zap.Uint32("ptr", ptr),
			zap.Uint32("len", length))
		return
	}
	Logger().Info("guest", zap.ByteString("msg", data))
}
