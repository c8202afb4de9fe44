package host

import (
	"context"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wasmbind/wasmbind/descriptor"
	"github.com/wasmbind/wasmbind/errors"
	"github.com/wasmbind/wasmbind/handle"
	"github.com/wasmbind/wasmbind/marshal"
)

// State is an instance's lifecycle position. It only ever moves forward.
type State uint8

const (
	StateUninitialized State = iota
	StateInstantiating
	StateReady
	StateFailed
	StateClosed
)

var stateNames = [...]string{
	StateUninitialized: "uninitialized",
	StateInstantiating: "instantiating",
	StateReady:         "ready",
	StateFailed:        "failed",
	StateClosed:        "closed",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("unknown(%d)", uint8(s))
}

// Instance is one loaded module plus everything needed to call into it:
// compiled code, descriptor metadata, marshalling rules, cached export
// functions and the handle table backing *Object values.
//
// Calls may run from multiple goroutines, but the guest itself is not
// reentrant; callers that need parallelism should load one instance per
// worker.
type Instance struct {
	runtime  *Runtime
	compiled wazero.CompiledModule
	set      *descriptor.Set
	rules    map[string]*marshal.Rules
	handles  *handle.Table

	mu      sync.Mutex
	state   State
	failure error
	done    chan struct{}

	module api.Module
	funcs  map[string]api.Function
	alloc  api.Function
	free   api.Function
	strLen api.Function
}

// Set returns the descriptor metadata the instance was loaded with.
func (inst *Instance) Set() *descriptor.Set {
	return inst.set
}

// State reports the lifecycle state without blocking on instantiation.
func (inst *Instance) State() State {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return inst.state
}

// LiveHandles counts guest objects currently held by the host.
func (inst *Instance) LiveHandles() int {
	return inst.handles.Live()
}

// Init instantiates the module. The first caller performs the work;
// concurrent callers join the in-flight attempt and settle with the
// same outcome. Once failed, every later Init returns the recorded
// instantiation error.
func (inst *Instance) Init(ctx context.Context) error {
	inst.mu.Lock()
	switch inst.state {
	case StateReady:
		inst.mu.Unlock()
		return nil
	case StateFailed:
		err := inst.failure
		inst.mu.Unlock()
		return err
	case StateClosed:
		inst.mu.Unlock()
		return errors.InvalidArgument(errors.PhaseRuntime, "instance is closed")
	case StateInstantiating:
		done := inst.done
		inst.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return errors.Wrap(errors.PhaseInstantiate, errors.KindInstantiation, ctx.Err(), "wait for instantiation")
		}
		inst.mu.Lock()
		defer inst.mu.Unlock()
		switch inst.state {
		case StateReady:
			return nil
		case StateFailed:
			return inst.failure
		}
		return errors.InvalidArgument(errors.PhaseRuntime, "instance is closed")
	}

	inst.state = StateInstantiating
	inst.mu.Unlock()

	mod, funcs, err := inst.instantiate(ctx)

	inst.mu.Lock()
	defer inst.mu.Unlock()
	if err != nil {
		inst.state = StateFailed
		inst.failure = errors.Instantiation(err)
		close(inst.done)
		return inst.failure
	}
	inst.module = mod
	inst.funcs = funcs
	inst.alloc = funcs[descriptor.SymbolAlloc]
	inst.free = funcs[descriptor.SymbolFree]
	inst.strLen = funcs[descriptor.SymbolStrLen]
	inst.state = StateReady
	close(inst.done)
	Logger().Info("instance ready",
		zap.String("module", inst.compiled.Name()),
		zap.Int("exports", len(funcs)))
	return nil
}

// instantiate runs outside the state lock; only the winning Init caller
// gets here.
func (inst *Instance) instantiate(ctx context.Context) (api.Module, map[string]api.Function, error) {
	if err := inst.runtime.ensureHostModule(ctx); err != nil {
		return nil, nil, err
	}
	// Anonymous instantiation lets one descriptor set back any number of
	// live instances within the same runtime.
	mod, err := inst.runtime.wazero.InstantiateModule(ctx, inst.compiled, wazero.NewModuleConfig().WithName(""))
	if err != nil {
		return nil, nil, err
	}
	funcs, err := inst.bindExports(mod)
	if err != nil {
		_ = mod.Close(ctx)
		return nil, nil, err
	}
	return mod, funcs, nil
}

// bindExports resolves every export the descriptor set promises: the
// three support exports, each public function and method, and one drop
// export per public struct. A processed module always carries these, so
// a miss is an instantiation-time error rather than a nil call later.
func (inst *Instance) bindExports(mod api.Module) (map[string]api.Function, error) {
	if mod.Memory() == nil {
		return nil, errors.NotFound(errors.PhaseInstantiate, "export", descriptor.SymbolMemory)
	}
	funcs := make(map[string]api.Function)
	bind := func(sym string) error {
		if _, ok := funcs[sym]; ok {
			return nil
		}
		fn := mod.ExportedFunction(sym)
		if fn == nil {
			return errors.NotFound(errors.PhaseInstantiate, "export", sym)
		}
		funcs[sym] = fn
		return nil
	}
	for _, sym := range []string{descriptor.SymbolAlloc, descriptor.SymbolFree, descriptor.SymbolStrLen} {
		if err := bind(sym); err != nil {
			return nil, err
		}
	}
	for _, e := range inst.set.Public() {
		if e.Kind == descriptor.KindStructDef {
			continue
		}
		if err := bind(e.Symbol()); err != nil {
			return nil, err
		}
	}
	for _, st := range inst.set.PublicStructs() {
		if err := bind(st.DropSymbol()); err != nil {
			return nil, err
		}
	}
	return funcs, nil
}

func (inst *Instance) requireReady() error {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	if inst.state != StateReady {
		return errors.NotInitialized("instance")
	}
	return nil
}

// Call invokes a public function export by its metadata name, lowering
// arguments and lifting the result exactly as the generated JS glue
// does. Internal exports are not reachable through Call.
func (inst *Instance) Call(ctx context.Context, name string, args ...any) (any, error) {
	e := inst.set.Function(name)
	if e == nil || !e.Public() {
		return nil, errors.NotFound(errors.PhaseRuntime, "function", name)
	}
	return inst.invoke(ctx, e, nil, args)
}

// invoke is the shared call path for functions and methods. self carries
// the receiver rep for methods and is empty for plain functions.
func (inst *Instance) invoke(ctx context.Context, e *descriptor.Export, self []uint64, args []any) (any, error) {
	if err := inst.requireReady(); err != nil {
		return nil, err
	}

	display := e.Name
	if e.Kind == descriptor.KindMethod && e.Owner != nil {
		display = e.Owner.Name + "." + e.Name
	}
	if len(args) != len(e.Params) {
		return nil, errors.TypeCoercion([]string{display},
			fmt.Sprintf("%d arguments", len(args)),
			fmt.Sprintf("%d arguments", len(e.Params)))
	}

	sym := e.Symbol()
	rules := inst.rules[sym]
	fn := inst.funcs[sym]
	if rules == nil || fn == nil {
		return nil, errors.NotFound(errors.PhaseRuntime, "export", sym)
	}

	f := newFrame(inst)
	defer f.close(ctx)

	stack := make([]uint64, 0, len(self)+len(e.Params))
	stack = append(stack, self...)
	for i, p := range e.Params {
		path := []string{display, fmt.Sprintf("arg%d", i)}
		vals, err := inst.lower(ctx, f, path, p, rules.Params[i], args[i])
		if err != nil {
			return nil, err
		}
		stack = append(stack, vals...)
	}

	out, err := fn.Call(ctx, stack...)
	if err != nil {
		return nil, errors.Trap(sym, err)
	}
	if e.Result == nil {
		return nil, nil
	}
	if len(out) == 0 {
		return nil, errors.InvalidArgument(errors.PhaseRuntime, "export %q returned no value", sym)
	}
	return inst.lift(ctx, []string{display, "result"}, *e.Result, *rules.Result, out[0])
}

// guestAlloc asks the module for size bytes and validates the result.
func (inst *Instance) guestAlloc(ctx context.Context, size uint32) (uint32, error) {
	out, err := inst.alloc.Call(ctx, uint64(size))
	if err != nil {
		return 0, errors.AllocationFailed(size, err)
	}
	if len(out) == 0 {
		return 0, errors.AllocationFailed(size, nil)
	}
	ptr := api.DecodeU32(out[0])
	if ptr == 0 {
		return 0, errors.AllocationFailed(size, nil)
	}
	return ptr, nil
}

// guestFree returns a guest buffer. Failures on this path are logged and
// swallowed; the caller is usually already unwinding.
func (inst *Instance) guestFree(ctx context.Context, ptr, size uint32) {
	if size == 0 {
		return
	}
	if _, err := inst.free.Call(ctx, uint64(ptr), uint64(size)); err != nil {
		Logger().Debug("guest free failed",
			zap.Uint32("ptr", ptr),
			zap.Uint32("size", size),
			zap.Error(err))
	}
}

// Close releases the instance's wazero resources. Held objects become
// permanently unusable. In-flight calls must have completed; closing
// during instantiation is refused.
func (inst *Instance) Close(ctx context.Context) error {
	inst.mu.Lock()
	if inst.state == StateInstantiating {
		inst.mu.Unlock()
		return errors.InvalidArgument(errors.PhaseRuntime, "cannot close while instantiating")
	}
	alreadyClosed := inst.state == StateClosed
	mod := inst.module
	inst.module = nil
	inst.state = StateClosed
	inst.mu.Unlock()

	if alreadyClosed {
		return nil
	}
	if live := inst.handles.Live(); live > 0 {
		Logger().Warn("closing instance with live handles", zap.Int("handles", live))
	}
	var firstErr error
	if mod != nil {
		firstErr = mod.Close(ctx)
	}
	if err := inst.compiled.Close(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	if firstErr != nil {
		return errors.Wrap(errors.PhaseRuntime, errors.KindIO, firstErr, "close instance")
	}
	return nil
}
