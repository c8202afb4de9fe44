package glue

import (
	"fmt"
	"strings"

	"github.com/wasmbind/wasmbind/profile"
)

// The runtime sections below are profile-independent. They are emitted
// into every artifact so generated wrappers can assume the helpers exist.

func writeHeader(b *strings.Builder, p profile.Profile, moduleName string) {
	fmt.Fprintf(b, "// Generated by wasmbind for %q, target %s. Do not edit.\n\n",
		moduleName, p.Tag)
}

// writeScriptOpen starts the classic-script IIFE. writeFooter closes it.
func writeScriptOpen(b *strings.Builder) {
	b.WriteString("(function () {\n\"use strict\";\n\n")
}

func writeErrorClasses(b *strings.Builder) {
	b.WriteString(`// Error surface
class NotInitializedError extends Error {
  constructor(what) {
    super(what + " is not initialized; call init() first");
    this.name = "NotInitializedError";
  }
}

class UseAfterFreeError extends Error {
  constructor(what) {
    super(what + " has been disposed");
    this.name = "UseAfterFreeError";
  }
}

class TypeCoercionError extends TypeError {
  constructor(where, got, want) {
    super(where + ": got " + got + ", want " + want);
    this.name = "TypeCoercionError";
  }
}

class InstantiationError extends Error {
  constructor(cause) {
    super("module instantiation failed: " + cause);
    this.name = "InstantiationError";
    this.cause = cause;
  }
}

`)
}

func writeSharedState(b *strings.Builder) {
	b.WriteString(`const _encoder = new TextEncoder();
const _decoder = new TextDecoder("utf-8", { fatal: true });

let _wasm = null;
let _state = "uninitialized"; // uninitialized | instantiating | ready | failed
let _inflight = null;
let _failure = null;

function _ready(what) {
  if (_state !== "ready") {
    throw new NotInitializedError(what);
  }
}

function _typeName(value) {
  if (value === null) {
    return "null";
  }
  const t = typeof value;
  if (t !== "object") {
    return t;
  }
  return value.constructor ? value.constructor.name : "object";
}

function _requireArity(where, args, want) {
  if (args.length !== want) {
    throw new TypeCoercionError(where, args.length + " arguments", want + " arguments");
  }
}

function _coerceNumber(where, value) {
  if (typeof value !== "number" || !Number.isFinite(value)) {
    throw new TypeCoercionError(where, _typeName(value), "number");
  }
  return value;
}

function _coerceBigInt(where, value) {
  if (typeof value !== "bigint") {
    throw new TypeCoercionError(where, _typeName(value), "bigint");
  }
  return value;
}

function _coerceBoolean(where, value) {
  if (typeof value !== "boolean") {
    throw new TypeCoercionError(where, _typeName(value), "boolean");
  }
  return value ? 1 : 0;
}

function _coerceString(where, value) {
  if (typeof value !== "string") {
    throw new TypeCoercionError(where, _typeName(value), "string");
  }
  return value;
}

`)
}

func writeHandleTable(b *strings.Builder) {
	b.WriteString(`// Handle table. Ids are 1-based; 0 is never valid. Entries keep one
// reference for the owning wrapper plus one per in-flight call; an id
// returns to the free list only when its entry is freed with no borrows.
const _handles = { slots: [], free: [] };

function _handleRegister(structId, rep) {
  const entry = { structId: structId, rep: rep, refs: 1, freed: false };
  if (_handles.free.length > 0) {
    const id = _handles.free.pop();
    _handles.slots[id - 1] = entry;
    return id;
  }
  _handles.slots.push(entry);
  return _handles.slots.length;
}

function _handleEntry(id, what) {
  const entry = _handles.slots[id - 1];
  if (id === 0 || entry === undefined || entry.freed || entry.refs === 0) {
    throw new UseAfterFreeError(what);
  }
  return entry;
}

function _handleBorrow(id, what) {
  const entry = _handleEntry(id, what);
  entry.refs++;
  return entry;
}

function _handleRelease(id) {
  const entry = _handles.slots[id - 1];
  if (entry !== undefined && entry.refs > 1) {
    entry.refs--;
  }
}

function _handleFree(id, what) {
  const entry = _handleEntry(id, what);
  if (entry.refs > 1) {
    throw new Error(what + " is in use and cannot be disposed");
  }
  const rep = entry.rep;
  entry.freed = true;
  entry.refs = 0;
  entry.rep = 0;
  _handles.free.push(id);
  return rep;
}

`)
}

func writeMemoryHelpers(b *strings.Builder) {
	b.WriteString(`// Memory views are cached and re-derived whenever the module's memory
// has grown, which detaches the old buffer.
let _bytes = null;
let _view = null;

function _mem() {
  const buffer = _wasm.exports.memory.buffer;
  if (_bytes === null || _bytes.buffer !== buffer) {
    _bytes = new Uint8Array(buffer);
    _view = new DataView(buffer);
  }
  return _bytes;
}

function _dataView() {
  _mem();
  return _view;
}

function _alloc(size) {
  return _wasm.exports.__wasmbind_alloc(size) >>> 0;
}

function _free(ptr, size) {
  _wasm.exports.__wasmbind_free(ptr, size);
}

`)
}

func writeStringHelpers(b *strings.Builder) {
	b.WriteString(`function _encodeString(value) {
  const bytes = _encoder.encode(value);
  if (bytes.length === 0) {
    return [0, 0];
  }
  const ptr = _alloc(bytes.length);
  _mem().subarray(ptr, ptr + bytes.length).set(bytes);
  return [ptr, bytes.length];
}

function _decodeString(ptr, len) {
  if (len === 0) {
    return "";
  }
  return _decoder.decode(_mem().subarray(ptr, ptr + len));
}

// _takeString decodes a returned string and frees its buffer. The module
// reports the length through the string-length probe.
function _takeString(ptr) {
  const len = _wasm.exports.__wasmbind_str_len(ptr) >>> 0;
  const text = _decodeString(ptr, len);
  if (len !== 0) {
    _free(ptr, len);
  }
  return text;
}

`)
}

func writeSliceHelpers(b *strings.Builder) {
	b.WriteString(`// Slice marshalling. Numeric slices copy as one block out of a typed
// array; everything else marshals one element at a time. Element buffers
// are always encoded before the record block is allocated so the views
// derived afterwards stay valid.
function _copyTypedSlice(where, values, Ctor) {
  if (!(values instanceof Ctor)) {
    throw new TypeCoercionError(where, _typeName(values), Ctor.name);
  }
  const byteLen = values.byteLength;
  if (byteLen === 0) {
    return [0, 0, 0];
  }
  const ptr = _alloc(byteLen);
  _mem().subarray(ptr, ptr + byteLen).set(new Uint8Array(values.buffer, values.byteOffset, byteLen));
  return [ptr, values.length, byteLen];
}

function _copyBoolSlice(where, values) {
  if (!Array.isArray(values)) {
    throw new TypeCoercionError(where, _typeName(values), "boolean[]");
  }
  if (values.length === 0) {
    return [0, 0];
  }
  const coerced = values.map(function (v) { return _coerceBoolean(where, v); });
  const ptr = _alloc(values.length);
  _mem().subarray(ptr, ptr + values.length).set(coerced);
  return [ptr, values.length];
}

function _copyStringSlice(where, values) {
  if (!Array.isArray(values)) {
    throw new TypeCoercionError(where, _typeName(values), "string[]");
  }
  const parts = values.map(function (v) { return _encodeString(_coerceString(where, v)); });
  if (values.length === 0) {
    return [0, 0, parts];
  }
  const ptr = _alloc(values.length * 8);
  const view = _dataView();
  for (let i = 0; i < parts.length; i++) {
    view.setUint32(ptr + i * 8, parts[i][0], true);
    view.setUint32(ptr + i * 8 + 4, parts[i][1], true);
  }
  return [ptr, values.length, parts];
}

function _freeStringSlice(ptr, count, parts) {
  for (const part of parts) {
    if (part[1] !== 0) {
      _free(part[0], part[1]);
    }
  }
  if (count !== 0) {
    _free(ptr, count * 8);
  }
}

function _copyHandleSlice(where, values, Ctor) {
  if (!Array.isArray(values)) {
    throw new TypeCoercionError(where, _typeName(values), Ctor.name + "[]");
  }
  const reps = values.map(function (v) { return Ctor._unwrap(v, where); });
  if (values.length === 0) {
    return [0, 0];
  }
  const ptr = _alloc(values.length * 4);
  const view = _dataView();
  for (let i = 0; i < reps.length; i++) {
    view.setUint32(ptr + i * 4, reps[i], true);
  }
  return [ptr, values.length];
}

function _releaseHandleSlice(values) {
  for (const v of values) {
    _handleRelease(v._id);
  }
}

function _copyNestedSlice(where, values, Ctor) {
  if (!Array.isArray(values)) {
    throw new TypeCoercionError(where, _typeName(values), Ctor.name + "[]");
  }
  const parts = values.map(function (v) { return _copyTypedSlice(where, v, Ctor); });
  if (values.length === 0) {
    return [0, 0, parts];
  }
  const ptr = _alloc(values.length * 8);
  const view = _dataView();
  for (let i = 0; i < parts.length; i++) {
    view.setUint32(ptr + i * 8, parts[i][0], true);
    view.setUint32(ptr + i * 8 + 4, parts[i][1], true);
  }
  return [ptr, values.length, parts];
}

function _freeNestedSlice(ptr, count, parts) {
  for (const part of parts) {
    if (part[2] !== 0) {
      _free(part[0], part[2]);
    }
  }
  if (count !== 0) {
    _free(ptr, count * 8);
  }
}

`)
}

func writeRegistry(b *strings.Builder) {
	b.WriteString(`// Safety net for wrappers the host forgot to dispose. Explicit dispose()
// unregisters first, so the drop export runs at most once per instance.
const _registry = typeof FinalizationRegistry === "function"
  ? new FinalizationRegistry(function (held) {
      if (_state !== "ready") {
        return;
      }
      try {
        const rep = _handleFree(held.id, held.what);
        _wasm.exports[held.drop](rep);
      } catch (_) {
        // already disposed
      }
    })
  : null;

`)
}

// writeHostImports emits the reserved import namespace the module may
// link against.
func writeHostImports(b *strings.Builder) {
	b.WriteString(`const _imports = {
  wasmbind: {
    __wasmbind_log: function (ptr, len) {
      // Logs emitted while the start function runs arrive before the
      // instance is stored; they are dropped.
      if (_wasm === null) {
        return;
      }
      console.log(_decodeString(ptr, len));
    },
  },
};

`)
}
