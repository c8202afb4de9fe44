package marshal

import (
	"fmt"

	"github.com/wasmbind/wasmbind/descriptor"
	"github.com/wasmbind/wasmbind/errors"
)

// Strategy selects how a value kind crosses the call boundary.
type Strategy uint8

const (
	// PassThrough moves the value as a single core argument with no
	// memory traffic. Numbers and booleans.
	PassThrough Strategy = iota

	// StringCopy writes UTF-8 bytes into guest memory and passes
	// pointer and length. The glue frees the buffer after the call
	// unless the callee takes ownership.
	StringCopy

	// HandleRef passes the opaque u32 representation of a struct
	// instance. No copy; identity is the handle table entry.
	HandleRef

	// SliceCopy writes elements into guest memory and passes pointer
	// and element count.
	SliceCopy
)

var strategyNames = [...]string{
	PassThrough: "pass_through",
	StringCopy:  "string_copy",
	HandleRef:   "handle_ref",
	SliceCopy:   "slice_copy",
}

func (s Strategy) String() string {
	if int(s) < len(strategyNames) {
		return strategyNames[s]
	}
	return fmt.Sprintf("unknown(%d)", uint8(s))
}

// Rule describes the boundary crossing for one value kind.
type Rule struct {
	// Elem is the resolved rule for a slice's element kind.
	Elem *Rule

	// JSType is the typeof result a host-side coercion check expects.
	// Handle kinds check instance identity instead and carry "object".
	JSType string

	// TSType is the declaration-file type. The table carries the
	// generic form; generators substitute class names for handles.
	TSType string

	// TypedArray names the contiguous host view for numeric kinds
	// (Uint8Array, BigInt64Array, ...). Empty for everything else.
	TypedArray string

	Strategy Strategy

	// FlatArgs is the number of core arguments the kind occupies on
	// the call path; pointer+length pairs occupy two. Every returnable
	// kind produces exactly one core result.
	FlatArgs int

	// ElemSize is the byte size of a fixed-width element.
	ElemSize int

	// ElemFixed marks a slice whose elements copy as one contiguous
	// block. Variable-width elements marshal one record at a time.
	ElemFixed bool

	// CanReturn marks kinds valid in result position.
	CanReturn bool
}

// Rules binds an export signature to its per-element rules.
type Rules struct {
	Params []Rule
	Result *Rule
}

// RuleFor resolves the rule for a single value kind. Kinds the table
// cannot place fail with an unsupported_value_kind error.
func RuleFor(k descriptor.ValueKind) (Rule, error) {
	return ruleFor(k, false)
}

func ruleFor(k descriptor.ValueKind, inSlice bool) (Rule, error) {
	switch k.Tag {
	case descriptor.TagNumber:
		return numberRule(k)

	case descriptor.TagBoolean:
		return Rule{
			Strategy:  PassThrough,
			FlatArgs:  1,
			JSType:    "boolean",
			TSType:    "boolean",
			ElemSize:  1,
			CanReturn: true,
		}, nil

	case descriptor.TagStringRef:
		if inSlice && k.Owned {
			return Rule{}, unsupported("owned string inside a slice")
		}
		return Rule{
			Strategy:  StringCopy,
			FlatArgs:  2,
			JSType:    "string",
			TSType:    "string",
			CanReturn: true,
		}, nil

	case descriptor.TagHandle:
		return Rule{
			Strategy:  HandleRef,
			FlatArgs:  1,
			JSType:    "object",
			TSType:    "object",
			CanReturn: true,
		}, nil

	case descriptor.TagSlice:
		elem, err := ruleFor(*k.Elem, true)
		if err != nil {
			return Rule{}, err
		}
		// A slice element that is itself a slice lowers to ptr+len
		// records, which only works when the inner elements form one
		// typed-array block.
		if inSlice && elem.TypedArray == "" {
			return Rule{}, unsupported("only numeric slices can nest inside a slice")
		}
		r := Rule{
			Strategy: SliceCopy,
			FlatArgs: 2,
			JSType:   "object",
			TSType:   elem.TSType + "[]",
			Elem:     &elem,
			ElemSize: elem.ElemSize,
		}
		// Fixed-width numeric elements copy straight out of a typed
		// array view. Everything else round-trips per element.
		if elem.TypedArray != "" {
			r.ElemFixed = true
			r.TSType = elem.TypedArray
		}
		return r, nil
	}
	return Rule{}, unsupported("no marshalling rule for %s", k.Tag)
}

func numberRule(k descriptor.ValueKind) (Rule, error) {
	r := Rule{
		Strategy:   PassThrough,
		FlatArgs:   1,
		JSType:     "number",
		TSType:     "number",
		TypedArray: typedArrayName(k.Width, k.Signed),
		ElemSize:   int(k.Width) / 8,
		CanReturn:  true,
	}
	switch k.Width {
	case 8, 16, 32:
	case 64:
		// 64-bit integers lose precision as JS numbers.
		r.JSType = "bigint"
		r.TSType = "bigint"
	default:
		return Rule{}, unsupported("number width %d is not marshallable", k.Width)
	}
	return r, nil
}

func typedArrayName(width uint8, signed bool) string {
	switch width {
	case 8:
		if signed {
			return "Int8Array"
		}
		return "Uint8Array"
	case 16:
		if signed {
			return "Int16Array"
		}
		return "Uint16Array"
	case 32:
		if signed {
			return "Int32Array"
		}
		return "Uint32Array"
	case 64:
		if signed {
			return "BigInt64Array"
		}
		return "BigUint64Array"
	}
	return ""
}

func unsupported(format string, args ...any) error {
	return errors.New(errors.PhaseMarshal, errors.KindUnsupportedValueKind).
		Detail(format, args...).
		Build()
}

// RulesFor resolves every signature element of an export. All offending
// kinds are collected into one UnsupportedError so a failing run reports
// the full extent of the problem.
func RulesFor(e *descriptor.Export) (*Rules, error) {
	var agg UnsupportedError
	rules := &Rules{}

	for i, p := range e.Params {
		r, err := RuleFor(p)
		if err != nil {
			agg.Add(errors.New(errors.PhaseMarshal, errors.KindUnsupportedValueKind).
				Path(e.Name, fmt.Sprintf("param %d", i)).
				Cause(err).
				Detail("kind %s is not marshallable", p).
				Build())
			continue
		}
		rules.Params = append(rules.Params, r)
	}

	if e.Result != nil {
		r, err := RuleFor(*e.Result)
		switch {
		case err != nil:
			agg.Add(errors.New(errors.PhaseMarshal, errors.KindUnsupportedValueKind).
				Path(e.Name, "result").
				Cause(err).
				Detail("kind %s is not marshallable", e.Result).
				Build())
		case !r.CanReturn:
			agg.Add(errors.New(errors.PhaseMarshal, errors.KindUnsupportedValueKind).
				Path(e.Name, "result").
				Detail("kind %s cannot be returned", e.Result).
				Build())
		default:
			rules.Result = &r
		}
	}

	if err := agg.Err(); err != nil {
		return nil, err
	}
	return rules, nil
}

// RulesForSet resolves rules for every public callable in a set, keyed
// by export symbol. Unsupported kinds across all exports are merged into
// one aggregate error; partial results are never returned.
func RulesForSet(set *descriptor.Set) (map[string]*Rules, error) {
	var agg UnsupportedError
	out := make(map[string]*Rules)

	for _, e := range set.Public() {
		if e.Kind == descriptor.KindStructDef {
			continue
		}
		r, err := RulesFor(e)
		if err != nil {
			agg.Add(err)
			continue
		}
		out[e.Symbol()] = r
	}

	if err := agg.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
