package fixture

import (
	"bytes"

	"github.com/wasmbind/wasmbind/internal/binary"
)

// Binary encoding constants for the handful of constructs the fixtures
// emit. Section ids and opcodes follow the core spec numbering.
const (
	secCustom   = 0x00
	secType     = 0x01
	secImport   = 0x02
	secFunction = 0x03
	secMemory   = 0x05
	secGlobal   = 0x06
	secExport   = 0x07
	secCode     = 0x0a
	secData     = 0x0b

	typeFunc = 0x60

	valI32 = 0x7f
	valI64 = 0x7e

	kindFunc   = 0x00
	kindMemory = 0x02
)

const (
	opBlock     = 0x02
	opLoop      = 0x03
	opIf        = 0x04
	opElse      = 0x05
	opEnd       = 0x0b
	opBr        = 0x0c
	opBrIf      = 0x0d
	opCall      = 0x10
	opLocalGet  = 0x20
	opLocalSet  = 0x21
	opLocalTee  = 0x22
	opGlobalGet = 0x23
	opGlobalSet = 0x24
	opI32Load   = 0x28
	opI32Load8U = 0x2d
	opI32Store  = 0x36
	opI32Store8 = 0x3a
	opI32Const  = 0x41
	opI64Const  = 0x42
	opI32Eqz    = 0x45
	opI32GeU    = 0x4f
	opI32Add    = 0x6a
	opI32Sub    = 0x6b
	opI32And    = 0x71
	opI64Add    = 0x7c
	opI64Mul    = 0x7e
	opI64ExtU   = 0xad
	opPrefixFC  = 0xfc

	blockVoid = 0x40
	blockI32  = 0x7f
)

type funcType struct {
	params  []byte
	results []byte
}

type imported struct {
	module string
	name   string
	typ    uint32
}

type function struct {
	typ    uint32
	locals []localRun
	body   []byte
}

// localRun declares count consecutive locals of one value type.
type localRun struct {
	count uint32
	typ   byte
}

type export struct {
	name string
	kind byte
	idx  uint32
}

type global struct {
	typ     byte
	mutable bool
	init    int32
}

type segment struct {
	offset int32
	data   []byte
}

type custom struct {
	name string
	data []byte
}

// builder assembles a module from parts. Imports and local functions
// share one index space with imports first, so importFunc calls must
// all happen before the first addFunc.
type builder struct {
	types   []funcType
	imports []imported
	funcs   []function
	memMin  uint32
	globals []global
	exports []export
	segs    []segment
	customs []custom
}

func newBuilder(memPages uint32) *builder {
	return &builder{memMin: memPages}
}

func (b *builder) typeIndex(params, results []byte) uint32 {
	for i, t := range b.types {
		if bytes.Equal(t.params, params) && bytes.Equal(t.results, results) {
			return uint32(i)
		}
	}
	b.types = append(b.types, funcType{params: params, results: results})
	return uint32(len(b.types) - 1)
}

func (b *builder) importFunc(module, name string, params, results []byte) uint32 {
	if len(b.funcs) != 0 {
		panic("fixture: imports must precede functions")
	}
	b.imports = append(b.imports, imported{module: module, name: name, typ: b.typeIndex(params, results)})
	return uint32(len(b.imports) - 1)
}

func (b *builder) addFunc(params, results []byte, locals []localRun, body []byte) uint32 {
	b.funcs = append(b.funcs, function{typ: b.typeIndex(params, results), locals: locals, body: body})
	return uint32(len(b.imports) + len(b.funcs) - 1)
}

func (b *builder) addGlobal(typ byte, mutable bool, init int32) uint32 {
	b.globals = append(b.globals, global{typ: typ, mutable: mutable, init: init})
	return uint32(len(b.globals) - 1)
}

func (b *builder) addData(offset int32, data []byte) {
	b.segs = append(b.segs, segment{offset: offset, data: data})
}

func (b *builder) exportFunc(name string, idx uint32) {
	b.exports = append(b.exports, export{name: name, kind: kindFunc, idx: idx})
}

func (b *builder) exportMemory(name string) {
	b.exports = append(b.exports, export{name: name, kind: kindMemory, idx: 0})
}

func (b *builder) addCustom(name string, data []byte) {
	b.customs = append(b.customs, custom{name: name, data: data})
}

func (b *builder) build() []byte {
	out := binary.NewWriter()
	out.WriteBytes([]byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00})

	if len(b.types) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(b.types)))
		for _, t := range b.types {
			sec.Byte(typeFunc)
			sec.WriteU32(uint32(len(t.params)))
			sec.WriteBytes(t.params)
			sec.WriteU32(uint32(len(t.results)))
			sec.WriteBytes(t.results)
		}
		writeSection(out, secType, sec.Bytes())
	}

	if len(b.imports) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(b.imports)))
		for _, im := range b.imports {
			sec.WriteName(im.module)
			sec.WriteName(im.name)
			sec.Byte(kindFunc)
			sec.WriteU32(im.typ)
		}
		writeSection(out, secImport, sec.Bytes())
	}

	if len(b.funcs) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(b.funcs)))
		for _, f := range b.funcs {
			sec.WriteU32(f.typ)
		}
		writeSection(out, secFunction, sec.Bytes())
	}

	{
		sec := binary.NewWriter()
		sec.WriteU32(1)
		sec.Byte(0x00) // min only
		sec.WriteU32(b.memMin)
		writeSection(out, secMemory, sec.Bytes())
	}

	if len(b.globals) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(b.globals)))
		for _, g := range b.globals {
			sec.Byte(g.typ)
			if g.mutable {
				sec.Byte(0x01)
			} else {
				sec.Byte(0x00)
			}
			sec.Byte(opI32Const)
			sec.WriteS32(g.init)
			sec.Byte(opEnd)
		}
		writeSection(out, secGlobal, sec.Bytes())
	}

	if len(b.exports) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(b.exports)))
		for _, e := range b.exports {
			sec.WriteName(e.name)
			sec.Byte(e.kind)
			sec.WriteU32(e.idx)
		}
		writeSection(out, secExport, sec.Bytes())
	}

	if len(b.funcs) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(b.funcs)))
		for _, f := range b.funcs {
			body := binary.NewWriter()
			body.WriteU32(uint32(len(f.locals)))
			for _, run := range f.locals {
				body.WriteU32(run.count)
				body.Byte(run.typ)
			}
			body.WriteBytes(f.body)
			body.Byte(opEnd)
			sec.WriteU32(uint32(body.Len()))
			sec.WriteBytes(body.Bytes())
		}
		writeSection(out, secCode, sec.Bytes())
	}

	if len(b.segs) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(b.segs)))
		for _, s := range b.segs {
			sec.WriteU32(0) // active, memory 0
			sec.Byte(opI32Const)
			sec.WriteS32(s.offset)
			sec.Byte(opEnd)
			sec.WriteU32(uint32(len(s.data)))
			sec.WriteBytes(s.data)
		}
		writeSection(out, secData, sec.Bytes())
	}

	for _, c := range b.customs {
		sec := binary.NewWriter()
		sec.WriteName(c.name)
		sec.WriteBytes(c.data)
		writeSection(out, secCustom, sec.Bytes())
	}

	return out.Bytes()
}

func writeSection(out *binary.Writer, id byte, content []byte) {
	out.Byte(id)
	out.WriteU32(uint32(len(content)))
	out.WriteBytes(content)
}

// asm accumulates one function body. Bodies exclude the closing end,
// which build frames in. Only the opcodes the fixtures need are here.
type asm struct {
	w *binary.Writer
}

func newAsm() *asm {
	return &asm{w: binary.NewWriter()}
}

func (a *asm) bytes() []byte { return a.w.Bytes() }

func (a *asm) localGet(i uint32)  { a.w.Byte(opLocalGet); a.w.WriteU32(i) }
func (a *asm) localSet(i uint32)  { a.w.Byte(opLocalSet); a.w.WriteU32(i) }
func (a *asm) localTee(i uint32)  { a.w.Byte(opLocalTee); a.w.WriteU32(i) }
func (a *asm) globalGet(i uint32) { a.w.Byte(opGlobalGet); a.w.WriteU32(i) }
func (a *asm) globalSet(i uint32) { a.w.Byte(opGlobalSet); a.w.WriteU32(i) }

func (a *asm) i32Const(v int32) { a.w.Byte(opI32Const); a.w.WriteS32(v) }
func (a *asm) i64Const(v int64) { a.w.Byte(opI64Const); a.w.WriteS64(v) }

func (a *asm) i32Add() { a.w.Byte(opI32Add) }
func (a *asm) i32Sub() { a.w.Byte(opI32Sub) }
func (a *asm) i32And() { a.w.Byte(opI32And) }
func (a *asm) i32Eqz() { a.w.Byte(opI32Eqz) }
func (a *asm) i32GeU() { a.w.Byte(opI32GeU) }
func (a *asm) i64Add() { a.w.Byte(opI64Add) }
func (a *asm) i64Mul() { a.w.Byte(opI64Mul) }

func (a *asm) i64ExtendU() { a.w.Byte(opI64ExtU) }

func (a *asm) i32Load(offset uint32) {
	a.w.Byte(opI32Load)
	a.w.WriteU32(2)
	a.w.WriteU32(offset)
}

func (a *asm) i32Load8U(offset uint32) {
	a.w.Byte(opI32Load8U)
	a.w.WriteU32(0)
	a.w.WriteU32(offset)
}

func (a *asm) i32Store(offset uint32) {
	a.w.Byte(opI32Store)
	a.w.WriteU32(2)
	a.w.WriteU32(offset)
}

func (a *asm) i32Store8(offset uint32) {
	a.w.Byte(opI32Store8)
	a.w.WriteU32(0)
	a.w.WriteU32(offset)
}

func (a *asm) call(f uint32) { a.w.Byte(opCall); a.w.WriteU32(f) }

func (a *asm) block(bt byte) { a.w.Byte(opBlock); a.w.Byte(bt) }
func (a *asm) loop(bt byte)  { a.w.Byte(opLoop); a.w.Byte(bt) }
func (a *asm) ifBlock(bt byte) {
	a.w.Byte(opIf)
	a.w.Byte(bt)
}
func (a *asm) elseBranch() { a.w.Byte(opElse) }
func (a *asm) end()        { a.w.Byte(opEnd) }

func (a *asm) br(label uint32)   { a.w.Byte(opBr); a.w.WriteU32(label) }
func (a *asm) brIf(label uint32) { a.w.Byte(opBrIf); a.w.WriteU32(label) }

// memoryCopy copies (dst, src, n) from the stack within memory 0.
func (a *asm) memoryCopy() {
	a.w.Byte(opPrefixFC)
	a.w.WriteU32(10)
	a.w.Byte(0x00)
	a.w.Byte(0x00)
}
