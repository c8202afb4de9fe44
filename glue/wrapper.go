package glue

import (
	"fmt"
	"strings"

	"github.com/wasmbind/wasmbind/descriptor"
	"github.com/wasmbind/wasmbind/errors"
	"github.com/wasmbind/wasmbind/marshal"
)

// argPlan is the three-phase lowering of one JS argument: prologue
// statements, call-site expressions, and cleanup for the finally block.
// Owned string buffers get no cleanup; the module frees them.
type argPlan struct {
	prologue []string
	args     []string
	cleanup  []string
}

func (g *Generator) planArg(where string, idx int, k descriptor.ValueKind, r marshal.Rule) (argPlan, error) {
	arg := fmt.Sprintf("arg%d", idx)

	switch r.Strategy {
	case marshal.PassThrough:
		switch {
		case k.Tag == descriptor.TagBoolean:
			return argPlan{args: []string{fmt.Sprintf("_coerceBoolean(%q, %s)", where, arg)}}, nil
		case r.JSType == "bigint":
			return argPlan{args: []string{fmt.Sprintf("_coerceBigInt(%q, %s)", where, arg)}}, nil
		default:
			return argPlan{args: []string{fmt.Sprintf("_coerceNumber(%q, %s)", where, arg)}}, nil
		}

	case marshal.StringCopy:
		ptr := fmt.Sprintf("_ptr%d", idx)
		ln := fmt.Sprintf("_len%d", idx)
		p := argPlan{
			prologue: []string{fmt.Sprintf("const [%s, %s] = _encodeString(_coerceString(%q, %s));",
				ptr, ln, where, arg)},
			args: []string{ptr, ln},
		}
		if !k.Owned {
			p.cleanup = []string{fmt.Sprintf("if (%s !== 0) _free(%s, %s);", ln, ptr, ln)}
		}
		return p, nil

	case marshal.HandleRef:
		class, err := g.structClass(k.StructID)
		if err != nil {
			return argPlan{}, err
		}
		h := fmt.Sprintf("_h%d", idx)
		return argPlan{
			prologue: []string{fmt.Sprintf("const %s = %s._unwrap(%s, %q);", h, class, arg, where)},
			args:     []string{h},
			cleanup:  []string{fmt.Sprintf("_handleRelease(%s._id);", arg)},
		}, nil

	case marshal.SliceCopy:
		return g.planSliceArg(where, idx, k, r)
	}
	return argPlan{}, errors.InvalidArgument(errors.PhaseGenerate,
		"no emitter for strategy %s", r.Strategy)
}

func (g *Generator) planSliceArg(where string, idx int, k descriptor.ValueKind, r marshal.Rule) (argPlan, error) {
	arg := fmt.Sprintf("arg%d", idx)
	ptr := fmt.Sprintf("_ptr%d", idx)
	ln := fmt.Sprintf("_len%d", idx)

	if r.ElemFixed {
		size := fmt.Sprintf("_size%d", idx)
		return argPlan{
			prologue: []string{fmt.Sprintf("const [%s, %s, %s] = _copyTypedSlice(%q, %s, %s);",
				ptr, ln, size, where, arg, r.Elem.TypedArray)},
			args:    []string{ptr, ln},
			cleanup: []string{fmt.Sprintf("if (%s !== 0) _free(%s, %s);", size, ptr, size)},
		}, nil
	}

	switch k.Elem.Tag {
	case descriptor.TagBoolean:
		return argPlan{
			prologue: []string{fmt.Sprintf("const [%s, %s] = _copyBoolSlice(%q, %s);", ptr, ln, where, arg)},
			args:     []string{ptr, ln},
			cleanup:  []string{fmt.Sprintf("if (%s !== 0) _free(%s, %s);", ln, ptr, ln)},
		}, nil

	case descriptor.TagStringRef:
		parts := fmt.Sprintf("_parts%d", idx)
		return argPlan{
			prologue: []string{fmt.Sprintf("const [%s, %s, %s] = _copyStringSlice(%q, %s);",
				ptr, ln, parts, where, arg)},
			args:    []string{ptr, ln},
			cleanup: []string{fmt.Sprintf("_freeStringSlice(%s, %s, %s);", ptr, ln, parts)},
		}, nil

	case descriptor.TagHandle:
		class, err := g.structClass(k.Elem.StructID)
		if err != nil {
			return argPlan{}, err
		}
		return argPlan{
			prologue: []string{fmt.Sprintf("const [%s, %s] = _copyHandleSlice(%q, %s, %s);",
				ptr, ln, where, arg, class)},
			args: []string{ptr, ln},
			cleanup: []string{
				fmt.Sprintf("_releaseHandleSlice(%s);", arg),
				fmt.Sprintf("if (%s !== 0) _free(%s, %s * 4);", ln, ptr, ln),
			},
		}, nil

	case descriptor.TagSlice:
		parts := fmt.Sprintf("_parts%d", idx)
		return argPlan{
			prologue: []string{fmt.Sprintf("const [%s, %s, %s] = _copyNestedSlice(%q, %s, %s);",
				ptr, ln, parts, where, arg, r.Elem.Elem.TypedArray)},
			args:    []string{ptr, ln},
			cleanup: []string{fmt.Sprintf("_freeNestedSlice(%s, %s, %s);", ptr, ln, parts)},
		}, nil
	}
	return argPlan{}, errors.InvalidArgument(errors.PhaseGenerate,
		"no slice emitter for element kind %s", k.Elem)
}

// resultLines renders the call statement and the unmarshalling of its
// result. call is the wasm invocation expression.
func (g *Generator) resultLines(call string, k *descriptor.ValueKind, r *marshal.Rule) ([]string, error) {
	if k == nil {
		return []string{call + ";"}, nil
	}
	ret := "const _ret = " + call + ";"

	switch r.Strategy {
	case marshal.PassThrough:
		if k.Tag == descriptor.TagBoolean {
			return []string{ret, "return _ret !== 0;"}, nil
		}
		return []string{ret, "return " + numberReturn(*k) + ";"}, nil
	case marshal.StringCopy:
		return []string{ret, "return _takeString(_ret >>> 0);"}, nil
	case marshal.HandleRef:
		class, err := g.structClass(k.StructID)
		if err != nil {
			return nil, err
		}
		return []string{ret, fmt.Sprintf("return %s._wrap(_ret >>> 0);", class)}, nil
	}
	return nil, errors.InvalidArgument(errors.PhaseGenerate,
		"kind %s cannot be unmarshalled from a result", k)
}

// numberReturn normalizes a raw i32/i64 result to the declared width.
func numberReturn(k descriptor.ValueKind) string {
	switch {
	case k.Width == 64 && k.Signed:
		return "BigInt.asIntN(64, _ret)"
	case k.Width == 64:
		return "BigInt.asUintN(64, _ret)"
	case k.Signed:
		switch k.Width {
		case 8:
			return "(_ret << 24) >> 24"
		case 16:
			return "(_ret << 16) >> 16"
		}
		return "_ret | 0"
	default:
		switch k.Width {
		case 8:
			return "_ret & 0xff"
		case 16:
			return "_ret & 0xffff"
		}
		return "_ret >>> 0"
	}
}

func (g *Generator) writeFunction(b *strings.Builder, e *descriptor.Export) error {
	name := funcName(e.Name)
	rules := g.Rules[e.Symbol()]

	params := make([]string, len(e.Params))
	for i := range params {
		params[i] = fmt.Sprintf("arg%d", i)
	}
	fmt.Fprintf(b, "function %s(%s) {\n", name, strings.Join(params, ", "))
	fmt.Fprintf(b, "  _ready(%q);\n", name)
	fmt.Fprintf(b, "  _requireArity(%q, arguments, %d);\n", name, len(e.Params))

	body, cleanup, err := g.callBody(b, name, e, rules, "  ", nil)
	if err != nil {
		return err
	}
	writeCall(b, "  ", body, cleanup)
	b.WriteString("}\n\n")
	return nil
}

// callBody emits argument prologues directly and returns the call+result
// lines along with the cleanup block. selfArg, when non-empty, is
// prepended to the wasm call's arguments.
func (g *Generator) callBody(b *strings.Builder, where string, e *descriptor.Export,
	rules *marshal.Rules, indent string, selfArg []string) ([]string, []string, error) {

	callArgs := append([]string{}, selfArg...)
	var cleanup []string
	for i, p := range e.Params {
		plan, err := g.planArg(where, i, p, rules.Params[i])
		if err != nil {
			return nil, nil, err
		}
		for _, line := range plan.prologue {
			fmt.Fprintf(b, "%s%s\n", indent, line)
		}
		callArgs = append(callArgs, plan.args...)
		cleanup = append(cleanup, plan.cleanup...)
	}

	call := fmt.Sprintf("_wasm.exports.%s(%s)", e.Symbol(), strings.Join(callArgs, ", "))
	body, err := g.resultLines(call, e.Result, rules.Result)
	if err != nil {
		return nil, nil, err
	}
	return body, cleanup, nil
}

// writeCall renders the call lines, inside try/finally when any argument
// needs cleanup.
func writeCall(b *strings.Builder, indent string, body, cleanup []string) {
	if len(cleanup) == 0 {
		for _, line := range body {
			fmt.Fprintf(b, "%s%s\n", indent, line)
		}
		return
	}
	fmt.Fprintf(b, "%stry {\n", indent)
	for _, line := range body {
		fmt.Fprintf(b, "%s  %s\n", indent, line)
	}
	fmt.Fprintf(b, "%s} finally {\n", indent)
	for _, line := range cleanup {
		fmt.Fprintf(b, "%s  %s\n", indent, line)
	}
	fmt.Fprintf(b, "%s}\n", indent)
}

func (g *Generator) writeClass(b *strings.Builder, st *descriptor.Struct) error {
	class := className(st.Name)

	fmt.Fprintf(b, `class %[1]s {
  #id;

  constructor(id) {
    if (typeof id !== "number" || id === 0) {
      throw new TypeCoercionError("%[1]s", "direct construction", "an instance from the module");
    }
    this.#id = id;
    if (_registry !== null) {
      _registry.register(this, { id: id, what: "%[1]s", drop: "%[2]s" }, this);
    }
  }

  static _wrap(rep) {
    return new %[1]s(_handleRegister(%[3]d, rep));
  }

  static _unwrap(value, where) {
    if (!(value instanceof %[1]s)) {
      throw new TypeCoercionError(where, _typeName(value), "%[1]s");
    }
    return value._borrow(where);
  }

  get _id() {
    return this.#id;
  }

  _borrow(where) {
    if (this.#id === 0) {
      throw new UseAfterFreeError(where);
    }
    return _handleBorrow(this.#id, where).rep;
  }

  dispose() {
    if (this.#id === 0) {
      return;
    }
    const rep = _handleFree(this.#id, "%[1]s");
    this.#id = 0;
    if (_registry !== null) {
      _registry.unregister(this);
    }
    _wasm.exports.%[2]s(rep);
  }
`, class, st.DropSymbol(), st.ID)

	for _, m := range st.PublicMethods() {
		if err := g.writeMethod(b, st, m); err != nil {
			return err
		}
	}

	b.WriteString("}\n\n")
	fmt.Fprintf(b, `if (typeof Symbol.dispose === "symbol") {
  %[1]s.prototype[Symbol.dispose] = %[1]s.prototype.dispose;
}

`, class)
	return nil
}

func (g *Generator) writeMethod(b *strings.Builder, st *descriptor.Struct, m *descriptor.Export) error {
	where := className(st.Name) + "." + methodName(m.Name)
	rules := g.Rules[m.Symbol()]

	params := make([]string, len(m.Params))
	for i := range params {
		params[i] = fmt.Sprintf("arg%d", i)
	}
	fmt.Fprintf(b, "\n  %s(%s) {\n", methodName(m.Name), strings.Join(params, ", "))
	fmt.Fprintf(b, "    _ready(%q);\n", where)
	fmt.Fprintf(b, "    _requireArity(%q, arguments, %d);\n", where, len(m.Params))
	fmt.Fprintf(b, "    const _self = this._borrow(%q);\n", where)

	body, cleanup, err := g.callBody(b, where, m, rules, "    ", []string{"_self"})
	if err != nil {
		return err
	}
	// The receiver's borrow is always returned, even when the call traps.
	cleanup = append(cleanup, "_handleRelease(this.#id);")
	writeCall(b, "    ", body, cleanup)
	b.WriteString("  }\n")
	return nil
}
