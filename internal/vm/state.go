// Package vm wraps gopher-lua with the debug-API surface the debugger core
// needs: hook registration for line/call/return events and call-frame
// accessors (locals, upvalues, varargs, globals, raw source identity).
//
// gopher-lua's *lua.LState is not goroutine-safe; by construction every
// method here is only ever called from the single VM thread — the
// goroutine running DoFile/DoString, which is also the goroutine the hook
// callback fires on. There is deliberately no mutex: the spec's
// concurrency model (§5) makes the VM thread the sole owner of VM state,
// and a lock here would hide violations of that invariant instead of
// surfacing them.
package vm

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

// HookEvent classifies a VM hook firing.
type HookEvent int

const (
	// HookLine fires once per executed source line.
	HookLine HookEvent = iota
	// HookCall fires on entering a function (including tail calls).
	HookCall
	// HookReturn fires on leaving a function.
	HookReturn
)

// HookFunc is invoked synchronously on the VM thread for every line/call/
// return event. line is only meaningful for HookLine.
type HookFunc func(event HookEvent, line int)

// VM wraps a single gopher-lua state opened with the standard library
// subset a debugged script needs (base/package/table/string/math/io/os). Unlike
// a plugin host, a launched debuggee is a script the operator chose to
// run, not untrusted code, so there is no capability sandbox here — see
// DESIGN.md for why the teacher's sandbox was not adopted.
type VM struct {
	L      *lua.LState
	hook   HookFunc
	closed bool
}

// New creates a VM with a fresh gopher-lua state.
func New() *VM {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	openLibraries(L)
	return &VM{L: L}
}

func openLibraries(L *lua.LState) {
	lua.OpenBase(L)
	lua.OpenPackage(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
	lua.OpenIo(L)
	lua.OpenOs(L)
}

// SetHook installs the hook invoked on every line/call/return event. Pass
// nil to disable hooking.
func (v *VM) SetHook(fn HookFunc) {
	v.hook = fn
	if fn == nil {
		v.L.SetHook(nil, 0, 0)
		return
	}
	v.L.SetHook(v.dispatchHook, lua.MaskCall|lua.MaskRet|lua.MaskLine, 0)
}

func (v *VM) dispatchHook(L *lua.LState, ar *lua.Debug) {
	if v.hook == nil {
		return
	}
	switch ar.What {
	case "call", "tail call":
		v.hook(HookCall, 0)
	case "return":
		v.hook(HookReturn, 0)
	default:
		v.hook(HookLine, ar.CurrentLine)
	}
}

// DoFile loads and runs a Lua file, with the hook (if any) already armed.
func (v *VM) DoFile(path string) error {
	if v.closed {
		return ErrClosed
	}
	return v.doWithRecovery(func() error { return v.L.DoFile(path) })
}

// DoString loads and runs a Lua chunk from a string.
func (v *VM) DoString(code string) error {
	if v.closed {
		return ErrClosed
	}
	return v.doWithRecovery(func() error { return v.L.DoString(code) })
}

func (v *VM) doWithRecovery(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return fn()
}

// PanicError wraps a recovered Lua VM panic as a Go error.
type PanicError struct{ Value any }

func (e *PanicError) Error() string { return fmt.Sprintf("lua panic: %v", e.Value) }

// Close releases the underlying Lua state.
func (v *VM) Close() error {
	if v.closed {
		return nil
	}
	v.L.Close()
	v.closed = true
	return nil
}

// Depth returns the number of active call frames (the VM's own view,
// independent of HookDriver's StackDepthCounter).
func (v *VM) Depth() int {
	depth := 0
	for {
		if _, ok := v.L.GetStack(depth); !ok {
			break
		}
		depth++
	}
	return depth
}

// Frame returns an accessor for the call frame at the given depth (0 =
// topmost / currently executing frame).
func (v *VM) Frame(depth int) (*Frame, error) {
	dbg, ok := v.L.GetStack(depth)
	if !ok {
		return nil, ErrNoFrame
	}
	_, _ = v.L.GetInfo("Slnu", dbg, lua.LNil)
	return &Frame{vm: v, depth: depth, dbg: dbg}, nil
}

// Globals returns the global table.
func (v *VM) Globals() *lua.LTable {
	return v.L.Get(lua.GlobalsIndex).(*lua.LTable)
}

// Frame is a single VM call-frame accessor, valid only until the next
// resume of the debuggee (per the spec's StackEntry lifetime note).
type Frame struct {
	vm    *VM
	depth int
	dbg   *lua.Debug
}

// Depth returns the frame's stack depth (0 = topmost).
func (f *Frame) Depth() int { return f.depth }

// Source returns the frame's raw VM source identifier, in the form
// PathConvert expects (`@path`, `=name`, `=[C]`, or raw chunk text).
func (f *Frame) Source() string { return f.dbg.Source }

// Line returns the frame's current source line.
func (f *Frame) Line() int { return f.dbg.CurrentLine }

// Name returns the frame's function name, if known.
func (f *Frame) Name() string { return f.dbg.Name }

// IsVarArg reports whether the frame's function accepts varargs.
func (f *Frame) IsVarArg() bool { return f.dbg.IsVararg }

// Local returns the name and value of the nth local (1-indexed, matching
// the VM debug API convention). Negative n addresses varargs. Returns ""
// for name when n is out of range.
func (f *Frame) Local(n int) (name string, value lua.LValue) {
	return f.vm.L.GetLocal(f.dbg, n)
}

// SetLocal writes the nth local's value, returning its name (or "" if n is
// out of range).
func (f *Frame) SetLocal(n int, value lua.LValue) string {
	return f.vm.L.SetLocal(f.dbg, n, value)
}

// function recovers the *lua.LFunction for this frame via GetInfo's "f"
// option, which pushes the function onto the stack (mirroring the C API's
// lua_getinfo(L, "f", ar) convention that gopher-lua follows).
func (f *Frame) function() *lua.LFunction {
	top := f.vm.L.GetTop()
	_, _ = f.vm.L.GetInfo("f", f.dbg, lua.LNil)
	v := f.vm.L.Get(-1)
	f.vm.L.SetTop(top)
	fn, _ := v.(*lua.LFunction)
	return fn
}

// Upvalue returns the name and value of the nth upvalue (1-indexed) of the
// frame's function.
func (f *Frame) Upvalue(n int) (name string, value lua.LValue) {
	fn := f.function()
	if fn == nil {
		return "", lua.LNil
	}
	return f.vm.L.GetUpvalue(fn, n)
}

// SetUpvalue writes the nth upvalue's value, returning its name.
func (f *Frame) SetUpvalue(n int, value lua.LValue) string {
	fn := f.function()
	if fn == nil {
		return ""
	}
	return f.vm.L.SetUpvalue(fn, n, value)
}

// NumUpvalues returns the number of upvalues the frame's function closes over.
func (f *Frame) NumUpvalues() int {
	fn := f.function()
	if fn == nil || fn.Proto == nil {
		return 0
	}
	return len(fn.Upvalues)
}
