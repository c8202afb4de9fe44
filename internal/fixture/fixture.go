// Package fixture assembles small wasm modules with real metadata for
// tests and examples. Each module implements the allocator contract the
// toolchain expects: a bump allocator, a no-op free, and result strings
// carrying a u32 length header just below the returned pointer.
package fixture

import (
	"github.com/wasmbind/wasmbind/descriptor"
)

// heapBase leaves the low pages for data segments.
const heapBase = 4096

const helloOffset = 16

// Echo returns a module whose exports exercise function marshalling:
// strings in and out, a byte-slice checksum, plain numbers, and a call
// out through the wasmbind host module.
//
// Public exports: greet(string) -> string, checksum(slice<u8>) -> u64,
// add(u32, u32) -> u32, twice(s64) -> s64, yell(string), and two probes
// that read the first compound-slice record: first_len(slice<string>)
// and sub_count(slice<slice<u8>>), both -> u32. The internal __scratch
// export exists only to prove internal items stay invisible.
func Echo() []byte {
	b := newBuilder(2)
	b.addGlobal(valI32, true, heapBase)
	b.addData(helloOffset, []byte("Hello, "))

	logFn := b.importFunc(descriptor.HostModule, descriptor.SymbolLog, []byte{valI32, valI32}, nil)

	alloc := addSupport(b)

	locals, body := greetBody(alloc)
	b.exportFunc("greet", b.addFunc([]byte{valI32, valI32}, []byte{valI32}, locals, body))

	locals, body = checksumBody()
	b.exportFunc("checksum", b.addFunc([]byte{valI32, valI32}, []byte{valI64}, locals, body))

	a := newAsm()
	a.localGet(0)
	a.localGet(1)
	a.i32Add()
	b.exportFunc("add", b.addFunc([]byte{valI32, valI32}, []byte{valI32}, nil, a.bytes()))

	a = newAsm()
	a.localGet(0)
	a.i64Const(2)
	a.i64Mul()
	b.exportFunc("twice", b.addFunc([]byte{valI64}, []byte{valI64}, nil, a.bytes()))

	a = newAsm()
	a.localGet(0)
	a.localGet(1)
	a.call(logFn)
	b.exportFunc("yell", b.addFunc([]byte{valI32, valI32}, nil, nil, a.bytes()))

	b.exportFunc("first_len", b.addFunc([]byte{valI32, valI32}, []byte{valI32}, nil, recordProbe()))
	b.exportFunc("sub_count", b.addFunc([]byte{valI32, valI32}, []byte{valI32}, nil, recordProbe()))

	b.exportFunc("__scratch", b.addFunc(nil, nil, nil, nil))

	sec := descriptor.NewSection()
	ownedStr := descriptor.StringRef(true)
	u32 := descriptor.Number(32, false)
	u64 := descriptor.Number(64, false)
	s64 := descriptor.Number(64, true)
	sec.Function("greet", descriptor.Public,
		[]descriptor.ValueKind{descriptor.StringRef(false)}, &ownedStr)
	sec.Function("checksum", descriptor.Public,
		[]descriptor.ValueKind{descriptor.Slice(descriptor.Number(8, false))}, &u64)
	sec.Function("add", descriptor.Public,
		[]descriptor.ValueKind{descriptor.Number(32, false), descriptor.Number(32, false)}, &u32)
	sec.Function("twice", descriptor.Public,
		[]descriptor.ValueKind{descriptor.Number(64, true)}, &s64)
	sec.Function("yell", descriptor.Public,
		[]descriptor.ValueKind{descriptor.StringRef(false)}, nil)
	sec.Function("first_len", descriptor.Public,
		[]descriptor.ValueKind{descriptor.Slice(descriptor.StringRef(false))}, &u32)
	sec.Function("sub_count", descriptor.Public,
		[]descriptor.ValueKind{descriptor.Slice(descriptor.Slice(descriptor.Number(8, false)))}, &u32)
	sec.Function("__scratch", descriptor.Internal, nil, nil)
	cs := sec.CustomSection()
	b.addCustom(cs.Name, cs.Data)

	return b.build()
}

// Counter returns a module whose exports exercise struct marshalling:
// construction through a plain function, methods, a handle argument and
// the drop export. The live export counts undisposed counters so tests
// can observe drops.
//
// Public exports: new_counter(u32) -> Counter, peek(Counter) -> u32,
// live() -> u32, first_value(slice<Counter>) -> u32, and the counter
// struct with increment(u32) -> u32 and value() -> u32.
func Counter() []byte {
	b := newBuilder(2)
	b.addGlobal(valI32, true, heapBase) // heap
	b.addGlobal(valI32, true, 0)        // live counters

	alloc := addSupport(b)

	locals, body := newCounterBody(alloc)
	b.exportFunc("new_counter", b.addFunc([]byte{valI32}, []byte{valI32}, locals, body))

	a := newAsm()
	a.localGet(0)
	a.localGet(0)
	a.i32Load(0)
	a.localGet(1)
	a.i32Add()
	a.localTee(2)
	a.i32Store(0)
	a.localGet(2)
	b.exportFunc("counter_increment",
		b.addFunc([]byte{valI32, valI32}, []byte{valI32}, []localRun{{1, valI32}}, a.bytes()))

	b.exportFunc("counter_value", b.addFunc([]byte{valI32}, []byte{valI32}, nil, loadCell()))
	b.exportFunc("peek", b.addFunc([]byte{valI32}, []byte{valI32}, nil, loadCell()))

	a = newAsm()
	a.globalGet(1)
	b.exportFunc("live", b.addFunc(nil, []byte{valI32}, nil, a.bytes()))

	a = newAsm()
	a.localGet(1)
	a.i32Eqz()
	a.ifBlock(blockI32)
	a.i32Const(0)
	a.elseBranch()
	a.localGet(0)
	a.i32Load(0)
	a.i32Load(0)
	a.end()
	b.exportFunc("first_value", b.addFunc([]byte{valI32, valI32}, []byte{valI32}, nil, a.bytes()))

	a = newAsm()
	a.globalGet(1)
	a.i32Const(1)
	a.i32Sub()
	a.globalSet(1)
	b.exportFunc("__wasmbind_drop_counter", b.addFunc([]byte{valI32}, nil, nil, a.bytes()))

	sec := descriptor.NewSection()
	u32 := descriptor.Number(32, false)
	h := descriptor.Handle(1)
	sec.Function("new_counter", descriptor.Public,
		[]descriptor.ValueKind{descriptor.Number(32, false)}, &h)
	sec.Function("peek", descriptor.Public,
		[]descriptor.ValueKind{descriptor.Handle(1)}, &u32)
	sec.Function("live", descriptor.Public, nil, &u32)
	sec.Function("first_value", descriptor.Public,
		[]descriptor.ValueKind{descriptor.Slice(descriptor.Handle(1))}, &u32)
	st := sec.Struct("counter", descriptor.Public, 1)
	st.Method("increment", descriptor.Public,
		[]descriptor.ValueKind{descriptor.Number(32, false)}, &u32)
	st.Method("value", descriptor.Public, nil, &u32)
	cs := sec.CustomSection()
	b.addCustom(cs.Name, cs.Data)

	return b.build()
}

// addSupport installs the support exports every processed module
// carries: the bump allocator, a free that reclaims nothing, the
// header-based string length probe, and the memory export.
func addSupport(b *builder) (allocIdx uint32) {
	a := newAsm()
	a.globalGet(0)
	a.localSet(1)
	a.globalGet(0)
	a.localGet(0)
	a.i32Const(3)
	a.i32Add()
	a.i32Const(-4)
	a.i32And()
	a.i32Add()
	a.globalSet(0)
	a.localGet(1)
	allocIdx = b.addFunc([]byte{valI32}, []byte{valI32}, []localRun{{1, valI32}}, a.bytes())
	b.exportFunc(descriptor.SymbolAlloc, allocIdx)

	b.exportFunc(descriptor.SymbolFree, b.addFunc([]byte{valI32, valI32}, nil, nil, nil))

	a = newAsm()
	a.localGet(0)
	a.i32Eqz()
	a.ifBlock(blockI32)
	a.i32Const(0)
	a.elseBranch()
	a.localGet(0)
	a.i32Const(4)
	a.i32Sub()
	a.i32Load(0)
	a.end()
	b.exportFunc(descriptor.SymbolStrLen, b.addFunc([]byte{valI32}, []byte{valI32}, nil, a.bytes()))

	b.exportMemory(descriptor.SymbolMemory)
	return allocIdx
}

// greetBody builds "Hello, " + input + "!" with a length header so the
// string length probe can report it.
func greetBody(alloc uint32) ([]localRun, []byte) {
	a := newAsm()
	// out_len = len + 8
	a.localGet(1)
	a.i32Const(8)
	a.i32Add()
	a.localSet(2)
	// base = alloc(out_len + 4); header goes at base
	a.localGet(2)
	a.i32Const(4)
	a.i32Add()
	a.call(alloc)
	a.localSet(3)
	a.localGet(3)
	a.localGet(2)
	a.i32Store(0)
	// out = base + 4
	a.localGet(3)
	a.i32Const(4)
	a.i32Add()
	a.localSet(4)
	// prefix
	a.localGet(4)
	a.i32Const(helloOffset)
	a.i32Const(7)
	a.memoryCopy()
	// input
	a.localGet(4)
	a.i32Const(7)
	a.i32Add()
	a.localGet(0)
	a.localGet(1)
	a.memoryCopy()
	// trailing '!'
	a.localGet(4)
	a.i32Const(7)
	a.i32Add()
	a.localGet(1)
	a.i32Add()
	a.i32Const('!')
	a.i32Store8(0)
	a.localGet(4)
	return []localRun{{3, valI32}}, a.bytes()
}

// checksumBody sums the bytes of a slice into a u64.
func checksumBody() ([]localRun, []byte) {
	a := newAsm()
	a.block(blockVoid)
	a.loop(blockVoid)
	a.localGet(2)
	a.localGet(1)
	a.i32GeU()
	a.brIf(1)
	a.localGet(3)
	a.localGet(0)
	a.localGet(2)
	a.i32Add()
	a.i32Load8U(0)
	a.i64ExtendU()
	a.i64Add()
	a.localSet(3)
	a.localGet(2)
	a.i32Const(1)
	a.i32Add()
	a.localSet(2)
	a.br(0)
	a.end()
	a.end()
	a.localGet(3)
	return []localRun{{1, valI32}, {1, valI64}}, a.bytes()
}

// newCounterBody allocates a 4-byte cell, stores the start value and
// bumps the live count. The cell address doubles as the rep.
func newCounterBody(alloc uint32) ([]localRun, []byte) {
	a := newAsm()
	a.i32Const(4)
	a.call(alloc)
	a.localSet(1)
	a.localGet(1)
	a.localGet(0)
	a.i32Store(0)
	a.globalGet(1)
	a.i32Const(1)
	a.i32Add()
	a.globalSet(1)
	a.localGet(1)
	return []localRun{{1, valI32}}, a.bytes()
}

func loadCell() []byte {
	a := newAsm()
	a.localGet(0)
	a.i32Load(0)
	return a.bytes()
}

// recordProbe reads the second field of the first 8-byte record: the
// byte length of a string element, or the element count of a sub-slice.
func recordProbe() []byte {
	a := newAsm()
	a.localGet(1)
	a.i32Eqz()
	a.ifBlock(blockI32)
	a.i32Const(0)
	a.elseBranch()
	a.localGet(0)
	a.i32Load(4)
	a.end()
	return a.bytes()
}
