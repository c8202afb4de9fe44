// Package wasmbind generates JavaScript bindings for WebAssembly modules
// that carry a "wasmbind" metadata section.
//
// A processed module declares its host-visible surface (functions,
// structs with methods, and the value kinds crossing the boundary) in a
// custom section. This library extracts that declaration, derives
// marshalling rules for it, trims the module down to its public surface,
// and renders glue JavaScript (plus an optional TypeScript declaration
// file) for a chosen deployment target. A wazero-backed host runtime runs
// the same modules from Go with identical marshalling semantics.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct
// responsibilities:
//
//	wasmbind/            Root package with the Generate pipeline facade
//	├── wasm/            Wasm binary decoding, encoding and validation
//	├── descriptor/      Metadata section extraction and resolution
//	├── marshal/         Value-kind marshalling rule table
//	├── rewrite/         Export trimming and metadata removal
//	├── glue/            JS and .d.ts emission
//	├── profile/         Deployment-target selection
//	├── handle/          Host-side handle table
//	├── host/            wazero-backed Go host runtime
//	└── errors/          Structured error types for diagnostics
//
// # Quick Start
//
// Generate bindings for a processed module:
//
//	res, err := wasmbind.Generate(wasmbind.Config{
//	    InputPath: "counter.wasm",
//	    OutDir:    "dist",
//	    Target:    "embedded-web",
//	    EmitTypes: true,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(res.GluePath) // "dist/counter.js"
//
// Or run the module from Go instead of a JS host:
//
//	rt, err := host.New(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	inst, err := rt.Load(ctx, wasmBytes, set)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := inst.Init(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := inst.Call(ctx, "greet", "World")
//	fmt.Println(result) // "Hello, World!"
//
// # Value Kinds
//
// The metadata section describes signatures with a closed set of kinds:
//
//   - Numbers: u8-u64, s8-s64 (64-bit integers surface as BigInt in JS)
//   - Booleans
//   - Strings: UTF-8, copied across the boundary, borrowed or owned
//   - Handles: opaque references to module-owned struct instances
//   - Slices: homogeneous sequences of the above (argument position only)
//
// # Thread Safety
//
// Generate is a pure pipeline and safe for concurrent use with distinct
// configs. In the host runtime, Runtime and Instance initialization are
// safe for concurrent use; calls into one Instance are synchronous and
// must be serialized by the caller, matching the single-threaded JS glue.
//
// # Memory Model
//
// Guest linear memory can grow during any call that allocates, which
// invalidates raw views into it. Both the generated glue and the Go host
// re-derive views after every boundary crossing rather than caching them
// across calls.
package wasmbind
