// Package host embeds processed modules into Go programs.
//
// It is the server-side counterpart of the generated JS glue: a Runtime
// compiles module bytes with wazero, and every Instance loaded from it
// marshals Go values across the guest boundary using the same descriptor
// metadata the glue generator consumes. Strings are copied through the
// guest allocator, struct exports surface as *Object values backed by a
// handle table, and guest log lines arrive through the wasmbind host
// module.
//
// A minimal session:
//
//	rt, err := host.New(ctx)
//	if err != nil { ... }
//	defer rt.Close(ctx)
//
//	inst, err := rt.Load(ctx, wasmBytes, set)
//	if err != nil { ... }
//	if err := inst.Init(ctx); err != nil { ... }
//
//	out, err := inst.Call(ctx, "greet", "world")
package host
