// Package variable materializes Lua call-frame state (locals, varargs,
// upvalues, globals, standard-library globals, and watch results) into
// the DAP scopes/variables/setVariable vocabulary, and implements the
// VariableReference bit-packing scheme that lets an opaque int64 round
// trip back to (category, frame depth, payload) on the next request.
package variable

import (
	"fmt"
	"sort"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/luadbg/internal/vm"
)

// Category is the low byte of a VariableReference: which collection a
// reference addresses.
type Category uint8

const (
	// CategoryInvalid marks reference 0, never a valid scope/variable ref.
	CategoryInvalid Category = iota
	// CategoryLocal addresses a frame's named locals.
	CategoryLocal
	// CategoryVararg addresses a variadic frame's extra arguments.
	CategoryVararg
	// CategoryUpvalue addresses a frame's function's upvalues.
	CategoryUpvalue
	// CategoryGlobal addresses the globals table minus standard-library keys.
	CategoryGlobal
	// CategoryStandard addresses the standard-library subset of globals.
	CategoryStandard
	// CategoryWatch addresses a pinned WatchTable slot.
	CategoryWatch
	// CategoryTable addresses a nested composite value (table, or a
	// function's closed-over upvalues reached through another composite).
	// Unlike the frame-scoped categories above, depth is unused here —
	// the payload alone indexes into the broker's table registry.
	CategoryTable
)

const mantissaMax = 1<<53 - 1

// Reference is a packed VariableReference: category in bits 0-7, frame
// depth in bits 8-15, payload in bits 16-62. Values are clamped to fit a
// JSON number's 53-bit mantissa, matching the original implementation's
// ensure_value_fits_in_mantissa guard.
type Reference int64

// Pack composes a Reference from its parts.
func Pack(cat Category, depth uint8, payload int64) Reference {
	ref := int64(cat) | int64(depth)<<8 | (payload << 16)
	if ref > mantissaMax {
		ref &= mantissaMax
	}
	return Reference(ref)
}

// Unpack decomposes a Reference into its parts.
func Unpack(ref Reference) (cat Category, depth uint8, payload int64) {
	v := int64(ref)
	cat = Category(v & 0xFF)
	depth = uint8((v >> 8) & 0xFF)
	payload = v >> 16
	return
}

// Variable is a single materialized name/value pair, DAP-shaped.
type Variable struct {
	Name               string
	Value              string
	Type               string
	VariablesReference Reference // 0 if the value has no children
}

// Scope is a single entry in a scopes response.
type Scope struct {
	Name               string
	VariablesReference Reference
	Expensive          bool
}

// standardGlobals is the set of names gopher-lua's base/table/string/math/
// io/os libraries install; Globals excludes these, Standard returns only
// these, matching the "globals minus standard-library keys" split in
// spec.md §4.3.
var standardGlobals = map[string]bool{
	"_G": true, "_VERSION": true, "assert": true, "collectgarbage": true,
	"dofile": true, "error": true, "getmetatable": true, "ipairs": true,
	"load": true, "loadstring": true, "next": true, "pairs": true,
	"pcall": true, "print": true, "rawequal": true, "rawget": true,
	"rawlen": true, "rawset": true, "select": true, "setmetatable": true,
	"tonumber": true, "tostring": true, "type": true, "unpack": true,
	"xpcall": true, "module": true, "require": true, "io": true, "os": true,
	"string": true, "table": true, "math": true, "coroutine": true, "debug": true,
}

// Broker materializes scopes/variables/setVariable against a VM and a
// WatchTable. A single Broker instance is shared for the debuggee's
// lifetime; its table registry is reset on every resume, since a
// reference into a paused frame's composite values is meaningless once
// the VM has moved on.
type Broker struct {
	vm     *vm.VM
	watch  *WatchTable
	bridge *vm.Bridge

	tables []lua.LValue // index 0 unused, mirrors WatchTable's reserved slot 0
}

// NewBroker creates a Broker over the given VM and WatchTable.
func NewBroker(v *vm.VM, w *WatchTable) *Broker {
	return &Broker{vm: v, watch: w, bridge: vm.NewBridge(v.L), tables: make([]lua.LValue, 1)}
}

// Reset clears the nested-table registry; call on every debuggee resume.
func (b *Broker) Reset() {
	b.tables = make([]lua.LValue, 1)
}

func (b *Broker) registerTable(v lua.LValue) int64 {
	b.tables = append(b.tables, v)
	return int64(len(b.tables) - 1)
}

// Scopes returns the fixed-order scope list for a frame: Locals, Var Args
// (only if variadic), Upvalues, Globals, Standard.
func (b *Broker) Scopes(depth int) ([]Scope, error) {
	f, err := b.vm.Frame(depth)
	if err != nil {
		return nil, err
	}
	d := uint8(depth)
	scopes := []Scope{
		{Name: "Locals", VariablesReference: Pack(CategoryLocal, d, 0)},
	}
	if f.IsVarArg() {
		scopes = append(scopes, Scope{Name: "Var Args", VariablesReference: Pack(CategoryVararg, d, 0)})
	}
	scopes = append(scopes,
		Scope{Name: "Upvalues", VariablesReference: Pack(CategoryUpvalue, d, 0)},
		Scope{Name: "Globals", VariablesReference: Pack(CategoryGlobal, d, 0)},
		Scope{Name: "Standard", VariablesReference: Pack(CategoryStandard, d, 0), Expensive: true},
	)
	return scopes, nil
}

// Variables materializes the collection addressed by ref.
func (b *Broker) Variables(ref Reference) ([]Variable, error) {
	cat, depth, payload := Unpack(ref)

	switch cat {
	case CategoryLocal:
		return b.frameVariables(int(depth), func(n int, f *vm.Frame) (string, lua.LValue) { return f.Local(n) }, 1)
	case CategoryVararg:
		return b.frameVariables(int(depth), func(n int, f *vm.Frame) (string, lua.LValue) { return f.Local(n) }, -1)
	case CategoryUpvalue:
		return b.upvalues(int(depth))
	case CategoryGlobal:
		return b.globals(false)
	case CategoryStandard:
		return b.globals(true)
	case CategoryWatch:
		v, ok := b.watch.Get(int(payload))
		if !ok {
			return nil, fmt.Errorf("watch slot %d not found", payload)
		}
		return b.compositeChildren(v)
	case CategoryTable:
		if payload <= 0 || int(payload) >= len(b.tables) {
			return nil, fmt.Errorf("table reference %d not found", payload)
		}
		return b.compositeChildren(b.tables[payload])
	default:
		return nil, fmt.Errorf("invalid variables reference %d", ref)
	}
}

// frameVariables walks getlocal starting at start, stepping by sign(start)
// (1 for named locals, -1 for varargs) until gopher-lua reports no more.
func (b *Broker) frameVariables(depth int, get func(n int, f *vm.Frame) (string, lua.LValue), start int) ([]Variable, error) {
	f, err := b.vm.Frame(depth)
	if err != nil {
		return nil, err
	}
	var out []Variable
	step := 1
	if start < 0 {
		step = -1
	}
	for n := start; ; n += step {
		name, val := get(n, f)
		if name == "" {
			break
		}
		out = append(out, b.toVariable(name, val))
	}
	return out, nil
}

func (b *Broker) upvalues(depth int) ([]Variable, error) {
	f, err := b.vm.Frame(depth)
	if err != nil {
		return nil, err
	}
	n := f.NumUpvalues()
	out := make([]Variable, 0, n)
	for i := 1; i <= n; i++ {
		name, val := f.Upvalue(i)
		if name == "" {
			continue
		}
		out = append(out, b.toVariable(name, val))
	}
	return out, nil
}

func (b *Broker) globals(standardOnly bool) ([]Variable, error) {
	g := b.vm.Globals()
	var out []Variable
	g.ForEach(func(k, v lua.LValue) {
		name, ok := k.(lua.LString)
		if !ok {
			return
		}
		isStd := standardGlobals[string(name)]
		if isStd != standardOnly {
			return
		}
		out = append(out, b.toVariable(string(name), v))
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// compositeChildren expands a table's key/value pairs, or a function's
// upvalues, into a Variable list. Anything else has no children.
func (b *Broker) compositeChildren(v lua.LValue) ([]Variable, error) {
	switch tv := v.(type) {
	case *lua.LTable:
		var out []Variable
		tv.ForEach(func(k, val lua.LValue) {
			out = append(out, b.toVariable(k.String(), val))
		})
		return out, nil
	case *lua.LFunction:
		if tv.Proto == nil {
			return nil, nil
		}
		out := make([]Variable, 0, len(tv.Upvalues))
		for i, uv := range tv.Upvalues {
			name := fmt.Sprintf("upvalue#%d", i+1)
			if uv != nil {
				out = append(out, b.toVariable(name, uv.Value()))
			}
		}
		return out, nil
	default:
		return nil, nil
	}
}

// toVariable stringifies a Lua value and, for composite values, allocates
// a nested table reference so the client can request its children.
func (b *Broker) toVariable(name string, v lua.LValue) Variable {
	out := Variable{Name: name, Value: v.String(), Type: string(v.Type().String())}
	switch v.(type) {
	case *lua.LTable:
		out.VariablesReference = Pack(CategoryTable, 0, b.registerTable(v))
	case *lua.LFunction:
		if fn := v.(*lua.LFunction); fn.Proto != nil && len(fn.Upvalues) > 0 {
			out.VariablesReference = Pack(CategoryTable, 0, b.registerTable(v))
		}
	}
	return out
}

// SetVariable parses value as a Lua expression in the VM's current
// environment, writes it to the named entry in the collection addressed
// by ref, and returns value verbatim rather than a re-serialization of the
// stored result — a round trip through the VM's own tostring can change
// quoting/formatting, and the client already has the string it sent.
// Locals, varargs, and upvalues cannot be written by name alone without
// re-deriving their index, so this re-walks the same materialization the
// Variables call used to find it.
func (b *Broker) SetVariable(ref Reference, name, value string) (string, error) {
	cat, depth, _ := Unpack(ref)

	newVal, err := b.evalExpr(value)
	if err != nil {
		return "", err
	}

	f, err := b.vm.Frame(int(depth))
	if err != nil {
		return "", err
	}

	switch cat {
	case CategoryLocal:
		if !b.setFrameLocal(f, name, newVal, 1) {
			return "", fmt.Errorf("local %q not found", name)
		}
	case CategoryVararg:
		if !b.setFrameLocal(f, name, newVal, -1) {
			return "", fmt.Errorf("vararg %q not found", name)
		}
	case CategoryUpvalue:
		n := f.NumUpvalues()
		found := false
		for i := 1; i <= n; i++ {
			if uname, _ := f.Upvalue(i); uname == name {
				f.SetUpvalue(i, newVal)
				found = true
				break
			}
		}
		if !found {
			return "", fmt.Errorf("upvalue %q not found", name)
		}
	case CategoryGlobal, CategoryStandard:
		b.vm.Globals().RawSetString(name, newVal)
	default:
		return "", fmt.Errorf("category %d is not writable", cat)
	}

	return value, nil
}

func (b *Broker) setFrameLocal(f *vm.Frame, name string, val lua.LValue, start int) bool {
	step := 1
	if start < 0 {
		step = -1
	}
	for n := start; ; n += step {
		curName, _ := f.Local(n)
		if curName == "" {
			return false
		}
		if curName == name {
			f.SetLocal(n, val)
			return true
		}
	}
}

// evalExpr compiles "return <expr>" against the VM's global state and
// returns its single result, used to parse a setVariable value string.
func (b *Broker) evalExpr(expr string) (lua.LValue, error) {
	fn, err := b.vm.L.LoadString("return " + expr)
	if err != nil {
		return nil, err
	}
	b.vm.L.Push(fn)
	if err := b.vm.L.PCall(0, 1, nil); err != nil {
		return nil, err
	}
	v := b.vm.L.Get(-1)
	b.vm.L.Pop(1)
	return v, nil
}
