// Package evaluator implements the evaluate request: compiling an
// expression against a paused frame's locals/upvalues, falling back to
// bare-statement execution in repl context, and pinning composite watch
// results into a WatchTable slot (spec.md §4.8).
package evaluator

import (
	"encoding/json"
	"fmt"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/tidwall/sjson"

	"github.com/dshills/luadbg/internal/variable"
	"github.com/dshills/luadbg/internal/vm"
)

// Context is the DAP evaluate context a request arrived under. Only
// "watch" and "repl" change evaluation behavior; anything else ("hover",
// "clipboard", ...) is treated like a plain non-repl evaluate.
type Context string

const (
	ContextWatch Context = "watch"
	ContextRepl  Context = "repl"
)

// Result is the materialized outcome of an evaluate request.
type Result struct {
	Value              string
	VariablesReference variable.Reference
}

// Evaluator runs expressions against a VM's currently paused frame.
type Evaluator struct {
	vm     *vm.VM
	watch  *variable.WatchTable
	bridge *vm.Bridge
}

// New creates an Evaluator over vmRef and the WatchTable watch results
// pin into.
func New(vmRef *vm.VM, watch *variable.WatchTable) *Evaluator {
	return &Evaluator{vm: vmRef, watch: watch, bridge: vm.NewBridge(vmRef.L)}
}

// Evaluate runs expr against the frame at depth under evalCtx.
//
// It first tries compiling "return "+expr. If that fails to compile and
// evalCtx is repl, it falls back to the bare expression as a statement,
// reporting the fixed result "ok" on success. Any remaining failure
// surfaces the compiler's error message verbatim.
func (e *Evaluator) Evaluate(depth int, expr string, evalCtx Context) (Result, error) {
	f, err := e.vm.Frame(depth)
	if err != nil {
		return Result{}, err
	}

	restore := e.bindFrame(f)
	defer restore()

	results, err := e.run("return " + expr)
	if err != nil {
		if evalCtx != ContextRepl {
			return Result{}, err
		}
		if _, err2 := e.run(expr); err2 != nil {
			return Result{}, err2
		}
		return Result{Value: "ok"}, nil
	}

	return e.formatResults(results, evalCtx), nil
}

// EvaluateCondition evaluates expr in the frame at depth and reports the
// VM's own truthiness of the single result (everything but nil/false),
// rather than Evaluate's stringified Result — used by HookDriver to decide
// whether a conditional breakpoint fires (spec.md §4.6).
func (e *Evaluator) EvaluateCondition(depth int, expr string) (bool, error) {
	f, err := e.vm.Frame(depth)
	if err != nil {
		return false, err
	}
	restore := e.bindFrame(f)
	defer restore()

	results, err := e.run("return " + expr)
	if err != nil {
		return false, err
	}
	if len(results) == 0 {
		return false, nil
	}
	return lua.LVAsBool(results[0]), nil
}

// run compiles and executes code with lua.MultRet, returning every value
// the chunk produced.
func (e *Evaluator) run(code string) ([]lua.LValue, error) {
	L := e.vm.L
	base := L.GetTop()

	fn, err := L.LoadString(code)
	if err != nil {
		return nil, err
	}
	L.Push(fn)
	if err := L.PCall(0, lua.MultRet, nil); err != nil {
		return nil, err
	}

	n := L.GetTop() - base
	results := make([]lua.LValue, n)
	for i := 0; i < n; i++ {
		results[i] = L.Get(base + 1 + i)
	}
	L.SetTop(base)
	return results, nil
}

func (e *Evaluator) formatResults(results []lua.LValue, evalCtx Context) Result {
	switch len(results) {
	case 0:
		return Result{Value: "nil"}
	case 1:
		ref := variable.Reference(0)
		if evalCtx == ContextWatch {
			if tbl, ok := results[0].(*lua.LTable); ok {
				slot := e.watch.Add(results[0])
				ref = variable.Pack(variable.CategoryWatch, 0, int64(slot))
				return Result{Value: e.jsonify(tbl), VariablesReference: ref}
			}
		}
		return Result{Value: results[0].String(), VariablesReference: ref}
	default:
		parts := make([]string, len(results))
		for i, r := range results {
			parts[i] = r.String()
		}
		return Result{Value: strings.Join(parts, ", ")}
	}
}

// jsonify renders a watched table as a JSON object/array string for the
// evaluate response's display value, assembling it one key at a time with
// sjson rather than a single json.Marshal of the whole bridged value — a
// nested table whose own children fail to bridge cleanly (a cyclic
// reference, a function-valued field) still contributes its other keys
// instead of failing the whole render.
func (e *Evaluator) jsonify(t *lua.LTable) string {
	goVal := e.bridge.ToGoValue(t)

	switch v := goVal.(type) {
	case map[string]interface{}:
		raw := []byte("{}")
		for k, val := range v {
			enc, err := json.Marshal(val)
			if err != nil {
				continue
			}
			raw, err = sjson.SetRawBytes(raw, k, enc)
			if err != nil {
				continue
			}
		}
		return string(raw)
	case []interface{}:
		raw := []byte("[]")
		for i, val := range v {
			enc, err := json.Marshal(val)
			if err != nil {
				continue
			}
			raw, err = sjson.SetRawBytes(raw, fmt.Sprintf("%d", i), enc)
			if err != nil {
				continue
			}
		}
		return string(raw)
	default:
		enc, err := json.Marshal(v)
		if err != nil {
			return t.String()
		}
		return string(enc)
	}
}

// bindFrame temporarily installs a frame's locals and upvalues as
// globals so an expression compiled with no custom environment can
// reference them by name, and returns a restore func that undoes the
// substitution once evaluation completes. gopher-lua's LState has a
// single shared global table and no per-call lexical scoping hook, so
// this name-shadowing approach stands in for the original's frame-scoped
// environment; it is safe here because the VM is paused on exactly one
// frame at a time while a hook blocks it.
func (e *Evaluator) bindFrame(f *vm.Frame) (restore func()) {
	type saved struct {
		name string
		had  bool
		val  lua.LValue
	}
	g := e.vm.Globals()
	var shadowed []saved

	bind := func(name string, val lua.LValue) {
		if name == "" {
			return
		}
		prev := g.RawGetString(name)
		_, had := prev.(*lua.LNilType)
		shadowed = append(shadowed, saved{name: name, had: !had, val: prev})
		g.RawSetString(name, val)
	}

	for n := 1; ; n++ {
		name, val := f.Local(n)
		if name == "" {
			break
		}
		bind(name, val)
	}
	for n := f.NumUpvalues(); n >= 1; n-- {
		name, val := f.Upvalue(n)
		if name != "" {
			bind(name, val)
		}
	}

	return func() {
		for i := len(shadowed) - 1; i >= 0; i-- {
			s := shadowed[i]
			if s.had {
				g.RawSetString(s.name, s.val)
			} else {
				g.RawSetString(s.name, lua.LNil)
			}
		}
	}
}
