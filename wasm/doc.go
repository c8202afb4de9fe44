// Package wasm provides WebAssembly binary format parsing and encoding.
//
// This package implements a parser and encoder for core WebAssembly 2.0
// binary modules. Function bodies are carried as raw bytes and never
// rewritten: a parse/encode round trip reproduces every section
// byte-identically, including custom sections, which makes the package
// safe to use as the substrate for module rewriting.
//
// # Supported Features
//
//	WebAssembly 2.0:
//	  - Core value types (i32, i64, f32, f64, v128)
//	  - Functions, tables, memories, globals
//	  - Import/export of all definitions
//	  - Reference types (funcref, externref)
//	  - Bulk memory (data count section, passive segments)
//	  - Sign extension and saturating truncation opcodes
//	  - Multi-memory and Memory64 limits
//	  - Extended constant expressions
//	  - Exception handling tags (section framing only)
//
// GC type forms (structs, arrays, recursive groups) are rejected with a
// malformed-module error rather than silently misparsed.
//
// # Parsing
//
// Parse a WebAssembly module from binary:
//
//	data, _ := os.ReadFile("module.wasm")
//	module, err := wasm.ParseModule(data)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Parse with validation enabled:
//
//	module, err := wasm.ParseModuleValidate(data)
//
// All parse failures satisfy errors.Is against a malformed-module error,
// and carry the section name and byte offset of the failure.
//
// # Encoding
//
// Encode a module back to binary:
//
//	encoded := module.Encode()
//
// Sections are written in canonical order with custom sections at the end.
//
// # Module Structure
//
// A parsed module contains all sections:
//
//	module.Types      []FuncType    // Function signatures
//	module.Funcs      []uint32      // Type indices for functions
//	module.Tables     []TableType   // Table definitions
//	module.Memories   []MemoryType  // Memory definitions
//	module.Globals    []Global      // Global definitions
//	module.Imports    []Import      // Imported definitions
//	module.Exports    []Export      // Exported definitions
//	module.Code       []FuncBody    // Function bodies (raw bytes)
//	module.Data       []DataSegment // Data segments
//	module.Elements   []Element     // Element segments
//
// Custom sections are available by name via module.Custom(name) and can be
// dropped with module.RemoveCustom(name).
//
// # Validation
//
// Validate module structure:
//
//	if err := module.Validate(); err != nil {
//	    log.Printf("invalid module: %v", err)
//	}
//
// Validation checks:
//   - Type, function, table, memory, global and tag indices are in bounds
//   - Export names are unique
//   - The start function has an empty signature
//   - Code and function section counts agree
//   - Table and memory limits are valid
package wasm
