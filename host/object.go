package host

import (
	"context"

	"github.com/wasmbind/wasmbind/descriptor"
	"github.com/wasmbind/wasmbind/errors"
	"github.com/wasmbind/wasmbind/handle"
)

// Object is the host-side wrapper around one guest struct instance. It
// is returned whenever a call lifts a handle result and stays valid
// until Dispose runs its drop export. Objects are not safe to share
// across instances.
type Object struct {
	inst *Instance
	st   *descriptor.Struct
	id   handle.Handle
}

// Struct returns the descriptor metadata for the object's type.
func (o *Object) Struct() *descriptor.Struct {
	return o.st
}

// Handle exposes the table slot backing this object. Diagnostic only.
func (o *Object) Handle() handle.Handle {
	return o.id
}

// Call invokes a public method with the object as receiver. The
// receiver is borrowed for the duration of the call, so a concurrent
// Dispose fails instead of racing the guest.
func (o *Object) Call(ctx context.Context, method string, args ...any) (any, error) {
	m := o.st.Method(method)
	if m == nil || !m.Public() {
		return nil, errors.NotFound(errors.PhaseRuntime, "method", o.st.Name+"."+method)
	}
	entry, err := o.inst.handles.Borrow(o.id)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = o.inst.handles.Release(o.id)
	}()
	return o.inst.invoke(ctx, m, []uint64{uint64(entry.Rep)}, args)
}

// Dispose frees the table slot and runs the struct's drop export. The
// first call wins; later calls (and any other use of the object) fail
// with a use-after-free error. An object with outstanding borrows
// cannot be disposed.
func (o *Object) Dispose(ctx context.Context) error {
	if err := o.inst.requireReady(); err != nil {
		return err
	}
	// The entry is zeroed once freed, so capture the rep first.
	entry, err := o.inst.handles.Get(o.id)
	if err != nil {
		return err
	}
	if err := o.inst.handles.Free(o.id); err != nil {
		return err
	}
	drop := o.inst.funcs[o.st.DropSymbol()]
	if drop == nil {
		return errors.NotFound(errors.PhaseRuntime, "export", o.st.DropSymbol())
	}
	if _, err := drop.Call(ctx, uint64(entry.Rep)); err != nil {
		return errors.Trap(o.st.DropSymbol(), err)
	}
	return nil
}
