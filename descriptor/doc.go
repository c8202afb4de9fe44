// Package descriptor decodes and encodes the reserved "wasmbind" custom
// section: the list of exported items the upstream compiler embeds in a
// module to describe its host-facing surface.
//
// # Wire Layout
//
//	item_count:u32
//	item_count × {
//	    kind:u8          1=function 2=struct 3=method
//	    name:(len:u32, utf8)
//	    visibility:u8    0=internal 1=public
//	    payload          per kind
//	}
//
// Function and method payloads carry a signature (param count, a value-kind
// tag per parameter, an optional return kind); method payloads append the
// owning struct id. Struct payloads carry the struct id and the item
// indices of the struct's methods. All u32 fields are LEB128, consistent
// with the surrounding container format.
//
// # Two-Pass Resolution
//
// Declaration order is arbitrary: a method or Handle reference may name a
// struct declared later in the section. Decode therefore reads every item
// first and resolves struct references in a second pass. A reference to an
// id never declared fails extraction with an unresolved_struct error;
// corrupt bytes fail with metadata_parse.
//
// # Key Types
//
//	Export   - one decoded item (function, struct definition or method)
//	Struct   - resolved struct view: definition plus ordered methods
//	Set      - all items of one module, with public filtered views
//	Section  - authoring builder producing wire bytes (fixtures, tooling)
//
// Internal items stay in the Set so the rewriter and inspection tooling
// can see them; generated glue only ever receives the Public views.
package descriptor
