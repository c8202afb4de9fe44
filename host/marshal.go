package host

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wasmbind/wasmbind/descriptor"
	"github.com/wasmbind/wasmbind/errors"
	"github.com/wasmbind/wasmbind/handle"
	"github.com/wasmbind/wasmbind/marshal"
)

// frame tracks per-call temporaries: guest buffers to free once the call
// settles and handles borrowed for its duration. Cleanup runs in reverse
// order, mirroring the finally blocks in generated glue.
type frame struct {
	inst     *Instance
	frees    [][2]uint32
	borrowed []handle.Handle
}

func newFrame(inst *Instance) *frame {
	return &frame{inst: inst}
}

func (f *frame) freeLater(ptr, size uint32) {
	if size != 0 {
		f.frees = append(f.frees, [2]uint32{ptr, size})
	}
}

func (f *frame) borrow(h handle.Handle) (handle.Entry, error) {
	entry, err := f.inst.handles.Borrow(h)
	if err != nil {
		return handle.Entry{}, err
	}
	f.borrowed = append(f.borrowed, h)
	return entry, nil
}

func (f *frame) close(ctx context.Context) {
	for i := len(f.borrowed) - 1; i >= 0; i-- {
		if err := f.inst.handles.Release(f.borrowed[i]); err != nil {
			Logger().Debug("release after call failed", zap.Error(err))
		}
	}
	for i := len(f.frees) - 1; i >= 0; i-- {
		f.inst.guestFree(ctx, f.frees[i][0], f.frees[i][1])
	}
}

// lower converts one Go argument into its flat wasm words, recording any
// cleanup on the frame. This is the host-side mirror of the argument
// prologues in generated glue.
func (inst *Instance) lower(ctx context.Context, f *frame, path []string, k descriptor.ValueKind, r marshal.Rule, arg any) ([]uint64, error) {
	switch r.Strategy {
	case marshal.PassThrough:
		if k.Tag == descriptor.TagBoolean {
			b, ok := arg.(bool)
			if !ok {
				return nil, errors.TypeCoercion(path, typeName(arg), "bool")
			}
			if b {
				return []uint64{1}, nil
			}
			return []uint64{0}, nil
		}
		word, err := lowerNumber(path, k, arg)
		if err != nil {
			return nil, err
		}
		return []uint64{word}, nil

	case marshal.StringCopy:
		s, ok := arg.(string)
		if !ok {
			return nil, errors.TypeCoercion(path, typeName(arg), "string")
		}
		ptr, n, err := inst.pushString(ctx, s)
		if err != nil {
			return nil, err
		}
		if !k.Owned {
			f.freeLater(ptr, n)
		}
		return []uint64{uint64(ptr), uint64(n)}, nil

	case marshal.HandleRef:
		rep, err := inst.lowerHandle(f, path, k, arg)
		if err != nil {
			return nil, err
		}
		return []uint64{uint64(rep)}, nil

	case marshal.SliceCopy:
		ptr, count, err := inst.lowerSlice(ctx, f, path, k, arg)
		if err != nil {
			return nil, err
		}
		return []uint64{uint64(ptr), uint64(count)}, nil
	}
	return nil, errors.InvalidArgument(errors.PhaseRuntime, "no lowering for %s", k)
}

// lowerHandle borrows the receiver behind an *Object for the duration of
// the call and hands its rep to the guest.
func (inst *Instance) lowerHandle(f *frame, path []string, k descriptor.ValueKind, arg any) (uint32, error) {
	st, ok := inst.set.Struct(k.StructID)
	if !ok {
		return 0, errors.UnresolvedStruct(k.StructID, "host call")
	}
	obj, ok := arg.(*Object)
	if !ok || obj == nil {
		return 0, errors.TypeCoercion(path, typeName(arg), st.Name)
	}
	if obj.inst != inst {
		return 0, errors.TypeCoercion(path, "object from another instance", st.Name)
	}
	if obj.st.ID != k.StructID {
		return 0, errors.TypeCoercion(path, obj.st.Name, st.Name)
	}
	entry, err := f.borrow(obj.id)
	if err != nil {
		return 0, err
	}
	return entry.Rep, nil
}

// lowerNumber range-checks a Go integer against the declared kind and
// encodes it. Unlike JS glue there is no silent masking: a value that
// does not fit its declared width is a coercion error.
func lowerNumber(path []string, k descriptor.ValueKind, arg any) (uint64, error) {
	switch arg.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
	default:
		return 0, errors.TypeCoercion(path, typeName(arg), k.String())
	}
	if k.Signed {
		v, ok := toInt64(arg)
		if !ok || !fitsSigned(v, k.Width) {
			return 0, errors.TypeCoercion(path, fmt.Sprint(arg), k.String())
		}
		if k.Width < 64 {
			return api.EncodeI32(int32(v)), nil
		}
		return api.EncodeI64(v), nil
	}
	u, ok := toUint64(arg)
	if !ok || !fitsUnsigned(u, k.Width) {
		return 0, errors.TypeCoercion(path, fmt.Sprint(arg), k.String())
	}
	if k.Width < 64 {
		return api.EncodeU32(uint32(u)), nil
	}
	return u, nil
}

func toInt64(arg any) (int64, bool) {
	switch v := arg.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint:
		if uint64(v) > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		if v > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	}
	return 0, false
}

func toUint64(arg any) (uint64, bool) {
	switch v := arg.(type) {
	case int:
		if v < 0 {
			return 0, false
		}
		return uint64(v), true
	case int8:
		if v < 0 {
			return 0, false
		}
		return uint64(v), true
	case int16:
		if v < 0 {
			return 0, false
		}
		return uint64(v), true
	case int32:
		if v < 0 {
			return 0, false
		}
		return uint64(v), true
	case int64:
		if v < 0 {
			return 0, false
		}
		return uint64(v), true
	case uint:
		return uint64(v), true
	case uint8:
		return uint64(v), true
	case uint16:
		return uint64(v), true
	case uint32:
		return uint64(v), true
	case uint64:
		return v, true
	}
	return 0, false
}

func fitsSigned(v int64, width uint8) bool {
	if width >= 64 {
		return true
	}
	min := int64(-1) << (width - 1)
	max := int64(1)<<(width-1) - 1
	return v >= min && v <= max
}

func fitsUnsigned(u uint64, width uint8) bool {
	if width >= 64 {
		return true
	}
	return u <= uint64(1)<<width-1
}

// pushString copies s into guest memory through the module allocator.
// The empty string is the (0, 0) pair; nothing is allocated for it.
func (inst *Instance) pushString(ctx context.Context, s string) (uint32, uint32, error) {
	if len(s) == 0 {
		return 0, 0, nil
	}
	n := uint32(len(s))
	ptr, err := inst.guestAlloc(ctx, n)
	if err != nil {
		return 0, 0, err
	}
	if err := inst.mem().write(ptr, []byte(s)); err != nil {
		inst.guestFree(ctx, ptr, n)
		return 0, 0, err
	}
	return ptr, n, nil
}

// takeString assumes ownership of a guest string: probe its length, copy
// the bytes out, validate them, then return the buffer to the guest.
func (inst *Instance) takeString(ctx context.Context, path []string, ptr uint32) (string, error) {
	out, err := inst.strLen.Call(ctx, uint64(ptr))
	if err != nil {
		return "", errors.Trap(descriptor.SymbolStrLen, err)
	}
	if len(out) == 0 {
		return "", errors.InvalidArgument(errors.PhaseRuntime, "%s returned no value", descriptor.SymbolStrLen)
	}
	length := api.DecodeU32(out[0])
	if length == 0 {
		return "", nil
	}
	window, err := inst.mem().read(ptr, length)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(window) {
		return "", errors.InvalidUTF8(errors.PhaseRuntime, path, window)
	}
	s := string(window) // copies out of the window before the guest reuses it
	inst.guestFree(ctx, ptr, length)
	return s, nil
}

// lowerSlice copies a Go slice into guest memory using the same layouts
// the glue helpers emit: numeric and boolean slices as one packed block,
// strings and nested slices as (ptr, len) record pairs at 8-byte stride,
// handles as u32 reps at 4-byte stride. Element buffers are pushed
// before their record block. Returns the block pointer and the element
// count; empty slices pass a null pointer.
func (inst *Instance) lowerSlice(ctx context.Context, f *frame, path []string, k descriptor.ValueKind, arg any) (uint32, uint32, error) {
	elem := *k.Elem
	switch elem.Tag {
	case descriptor.TagNumber:
		buf, count, err := packNumeric(path, elem, arg)
		if err != nil {
			return 0, 0, err
		}
		return inst.pushBlock(ctx, f, buf, count)

	case descriptor.TagBoolean:
		v, ok := arg.([]bool)
		if !ok {
			return 0, 0, errors.TypeCoercion(path, typeName(arg), "[]bool")
		}
		buf := make([]byte, len(v))
		for i, b := range v {
			if b {
				buf[i] = 1
			}
		}
		return inst.pushBlock(ctx, f, buf, uint32(len(v)))

	case descriptor.TagStringRef:
		v, ok := arg.([]string)
		if !ok {
			return 0, 0, errors.TypeCoercion(path, typeName(arg), "[]string")
		}
		records := make([]byte, 8*len(v))
		for i, s := range v {
			ptr, n, err := inst.pushString(ctx, s)
			if err != nil {
				return 0, 0, err
			}
			// Elements of a slice are always borrowed by the guest.
			f.freeLater(ptr, n)
			binary.LittleEndian.PutUint32(records[8*i:], ptr)
			binary.LittleEndian.PutUint32(records[8*i+4:], n)
		}
		return inst.pushBlock(ctx, f, records, uint32(len(v)))

	case descriptor.TagHandle:
		v, ok := arg.([]*Object)
		if !ok {
			return 0, 0, errors.TypeCoercion(path, typeName(arg), k.String())
		}
		buf := make([]byte, 4*len(v))
		for i, obj := range v {
			rep, err := inst.lowerHandle(f, append(path, fmt.Sprintf("%d", i)), elem, obj)
			if err != nil {
				return 0, 0, err
			}
			binary.LittleEndian.PutUint32(buf[4*i:], rep)
		}
		return inst.pushBlock(ctx, f, buf, uint32(len(v)))

	case descriptor.TagSlice:
		subs, ok := nestedElems(arg)
		if !ok {
			return 0, 0, errors.TypeCoercion(path, typeName(arg), k.String())
		}
		inner := *elem.Elem
		records := make([]byte, 8*len(subs))
		for i, sub := range subs {
			buf, count, err := packNumeric(append(path, fmt.Sprintf("%d", i)), inner, sub)
			if err != nil {
				return 0, 0, err
			}
			ptr, _, err := inst.pushBlock(ctx, f, buf, count)
			if err != nil {
				return 0, 0, err
			}
			binary.LittleEndian.PutUint32(records[8*i:], ptr)
			binary.LittleEndian.PutUint32(records[8*i+4:], count)
		}
		return inst.pushBlock(ctx, f, records, uint32(len(subs)))
	}
	return 0, 0, errors.InvalidArgument(errors.PhaseRuntime, "no lowering for %s", k)
}

// pushBlock copies packed bytes into guest memory and schedules the
// buffer for release after the call.
func (inst *Instance) pushBlock(ctx context.Context, f *frame, buf []byte, count uint32) (uint32, uint32, error) {
	if len(buf) == 0 {
		return 0, count, nil
	}
	size := uint32(len(buf))
	ptr, err := inst.guestAlloc(ctx, size)
	if err != nil {
		return 0, 0, err
	}
	if err := inst.mem().write(ptr, buf); err != nil {
		inst.guestFree(ctx, ptr, size)
		return 0, 0, err
	}
	f.freeLater(ptr, size)
	return ptr, count, nil
}

// packNumeric encodes a Go numeric slice into the guest's little-endian
// element layout. The Go element type must match the declared kind
// exactly; there is no cross-width coercion inside slices.
func packNumeric(path []string, k descriptor.ValueKind, arg any) ([]byte, uint32, error) {
	switch k.Width {
	case 8:
		if k.Signed {
			v, ok := arg.([]int8)
			if !ok {
				return nil, 0, errors.TypeCoercion(path, typeName(arg), "[]int8")
			}
			buf := make([]byte, len(v))
			for i, x := range v {
				buf[i] = byte(x)
			}
			return buf, uint32(len(v)), nil
		}
		v, ok := arg.([]uint8)
		if !ok {
			return nil, 0, errors.TypeCoercion(path, typeName(arg), "[]uint8")
		}
		return append([]byte(nil), v...), uint32(len(v)), nil

	case 16:
		if k.Signed {
			v, ok := arg.([]int16)
			if !ok {
				return nil, 0, errors.TypeCoercion(path, typeName(arg), "[]int16")
			}
			buf := make([]byte, 2*len(v))
			for i, x := range v {
				binary.LittleEndian.PutUint16(buf[2*i:], uint16(x))
			}
			return buf, uint32(len(v)), nil
		}
		v, ok := arg.([]uint16)
		if !ok {
			return nil, 0, errors.TypeCoercion(path, typeName(arg), "[]uint16")
		}
		buf := make([]byte, 2*len(v))
		for i, x := range v {
			binary.LittleEndian.PutUint16(buf[2*i:], x)
		}
		return buf, uint32(len(v)), nil

	case 32:
		if k.Signed {
			v, ok := arg.([]int32)
			if !ok {
				return nil, 0, errors.TypeCoercion(path, typeName(arg), "[]int32")
			}
			buf := make([]byte, 4*len(v))
			for i, x := range v {
				binary.LittleEndian.PutUint32(buf[4*i:], uint32(x))
			}
			return buf, uint32(len(v)), nil
		}
		v, ok := arg.([]uint32)
		if !ok {
			return nil, 0, errors.TypeCoercion(path, typeName(arg), "[]uint32")
		}
		buf := make([]byte, 4*len(v))
		for i, x := range v {
			binary.LittleEndian.PutUint32(buf[4*i:], x)
		}
		return buf, uint32(len(v)), nil

	case 64:
		if k.Signed {
			v, ok := arg.([]int64)
			if !ok {
				return nil, 0, errors.TypeCoercion(path, typeName(arg), "[]int64")
			}
			buf := make([]byte, 8*len(v))
			for i, x := range v {
				binary.LittleEndian.PutUint64(buf[8*i:], uint64(x))
			}
			return buf, uint32(len(v)), nil
		}
		v, ok := arg.([]uint64)
		if !ok {
			return nil, 0, errors.TypeCoercion(path, typeName(arg), "[]uint64")
		}
		buf := make([]byte, 8*len(v))
		for i, x := range v {
			binary.LittleEndian.PutUint64(buf[8*i:], x)
		}
		return buf, uint32(len(v)), nil
	}
	return nil, 0, errors.InvalidArgument(errors.PhaseRuntime, "unsupported numeric width %d", k.Width)
}

// nestedElems widens a slice of numeric slices into per-element values
// without reflection. Only element types the rule table admits for
// nesting appear here.
func nestedElems(arg any) ([]any, bool) {
	switch v := arg.(type) {
	case [][]uint8:
		return widen(v), true
	case [][]int8:
		return widen(v), true
	case [][]uint16:
		return widen(v), true
	case [][]int16:
		return widen(v), true
	case [][]uint32:
		return widen(v), true
	case [][]int32:
		return widen(v), true
	case [][]uint64:
		return widen(v), true
	case [][]int64:
		return widen(v), true
	}
	return nil, false
}

func widen[T any](v []T) []any {
	out := make([]any, len(v))
	for i := range v {
		out[i] = v[i]
	}
	return out
}

// lift converts a raw wasm result word into its Go value, the mirror of
// the generated JS return path.
func (inst *Instance) lift(ctx context.Context, path []string, k descriptor.ValueKind, r marshal.Rule, raw uint64) (any, error) {
	switch r.Strategy {
	case marshal.PassThrough:
		if k.Tag == descriptor.TagBoolean {
			return api.DecodeU32(raw) != 0, nil
		}
		return liftNumber(k, raw), nil

	case marshal.StringCopy:
		return inst.takeString(ctx, path, api.DecodeU32(raw))

	case marshal.HandleRef:
		st, ok := inst.set.Struct(k.StructID)
		if !ok {
			return nil, errors.UnresolvedStruct(k.StructID, "host call")
		}
		id := inst.handles.Register(st.ID, api.DecodeU32(raw))
		return &Object{inst: inst, st: st, id: id}, nil
	}
	return nil, errors.InvalidArgument(errors.PhaseRuntime, "kind %s cannot be returned", k)
}

func liftNumber(k descriptor.ValueKind, raw uint64) any {
	if k.Signed {
		switch k.Width {
		case 8:
			return int8(raw)
		case 16:
			return int16(raw)
		case 32:
			return api.DecodeI32(raw)
		}
		return int64(raw)
	}
	switch k.Width {
	case 8:
		return uint8(raw)
	case 16:
		return uint16(raw)
	case 32:
		return api.DecodeU32(raw)
	}
	return raw
}

func typeName(v any) string {
	if v == nil {
		return "nil"
	}
	return fmt.Sprintf("%T", v)
}
