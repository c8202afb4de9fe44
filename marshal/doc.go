// Package marshal is the fixed rule table mapping descriptor value kinds
// to boundary-crossing strategies. Both the JS glue generator and the Go
// host runtime consult the same table so the two call paths agree.
//
// # Strategies
//
//	PassThrough  numbers and booleans, one core argument
//	StringCopy   UTF-8 bytes at ptr+len; allocated and freed by the glue
//	HandleRef    opaque u32 rep into the host handle table
//	SliceCopy    ptr+len over elements; contiguous copy when fixed-width
//
// Strings on the return path come back as a single pointer; the glue
// probes the length through the module's string-length export before
// decoding, then frees the buffer. Slices only cross as arguments.
//
// Any kind the table cannot place fails with an unsupported_value_kind
// error. RulesFor collects every offending signature element of an
// export into one UnsupportedError so diagnostics are exhaustive rather
// than first-error-only.
package marshal
