// Package hookdriver implements the per-hook stop decision described in
// spec.md §4.6: on every VM line event, decide whether a step or
// breakpoint condition is satisfied and, if so, announce a stop and pump
// the request dispatcher until a resume-class handler fires. Nothing
// here blocks the transport beyond the duration of the stop itself — the
// VM's own hook-calling goroutine is what's parked, by construction,
// since gopher-lua invokes the hook synchronously from the executing
// goroutine.
package hookdriver

import (
	"fmt"
	"sync/atomic"

	"github.com/dshills/luadbg/internal/breakpoint"
	"github.com/dshills/luadbg/internal/pathconvert"
	"github.com/dshills/luadbg/internal/stepstate"
)

// Pump blocks until a resume-class request (continue, next, stepIn,
// stepOut, disconnect) has been handled. Owned by internal/debugger,
// which is the only package that holds both this driver and the request
// dispatcher — see spec.md §9's note on their cyclic relationship.
type Pump func()

// StoppedNotifier announces a stop with its DAP reason ("step",
// "breakpoint", or "pause").
type StoppedNotifier func(reason string)

// Driver holds the collaborators consulted on every hook firing.
type Driver struct {
	machine  *stepstate.Machine
	bps      *breakpoint.Index
	pc       *pathconvert.Converter
	evalCond breakpoint.ConditionEvaluator
	notify   StoppedNotifier
	pump     Pump
	poll     Pump // optional: non-blocking drain of pending requests, run on every line event

	depth  int64 // StackDepthCounter, maintained via OnCall/OnReturn
	paused int32 // set by RequestPause; consulted (and cleared) on the next line event
}

// SetPoll installs the non-blocking request drain invoked on every line
// event before the step/breakpoint decision, realizing the "VM thread
// polls non-blockingly" option of spec.md §5's concurrency model. Letting
// setBreakpoints/pause/disconnect reach the dispatcher between stops,
// rather than only while already stopped, keeps the debuggee responsive
// while running free.
func (d *Driver) SetPoll(poll Pump) {
	d.poll = poll
}

// RequestPause arms a stop at the next line event with reason "pause",
// regardless of any armed step or breakpoint. Safe to call from any
// goroutine (a pause request is dispatched off the VM thread).
func (d *Driver) RequestPause() {
	atomic.StoreInt32(&d.paused, 1)
}

// New creates a Driver. evalCond evaluates a breakpoint condition
// expression in the current frame's context; notify and pump are called
// synchronously from the VM's hook-calling goroutine.
func New(machine *stepstate.Machine, bps *breakpoint.Index, pc *pathconvert.Converter, evalCond breakpoint.ConditionEvaluator, notify StoppedNotifier, pump Pump) *Driver {
	return &Driver{machine: machine, bps: bps, pc: pc, evalCond: evalCond, notify: notify, pump: pump}
}

// OnCall increments the stack depth counter; call on every VM call event
// (including tail calls).
func (d *Driver) OnCall() {
	atomic.AddInt64(&d.depth, 1)
}

// OnReturn decrements the stack depth counter; call on every VM return
// event.
func (d *Driver) OnReturn() {
	atomic.AddInt64(&d.depth, -1)
}

// Depth returns the current StackDepthCounter value.
func (d *Driver) Depth() int {
	return int(atomic.LoadInt64(&d.depth))
}

// OnLine implements the contract of spec.md §4.6: maintain depth
// tracking is the caller's job via OnCall/OnReturn; OnLine itself
// decides whether this line event should stop the debuggee. vmInstance
// identifies the VM for step-over/out anchor comparison (see
// stepstate.Anchor); source is the frame's raw VM source identifier used
// to resolve a breakpoint lookup key.
func (d *Driver) OnLine(vmInstance any, line int, source string) {
	if line <= 0 {
		return
	}

	if d.poll != nil {
		d.poll()
	}

	if atomic.CompareAndSwapInt32(&d.paused, 1, 0) {
		d.stop("pause")
		return
	}

	depth := d.Depth()

	if d.machine.Is(stepstate.Stepping) && d.machine.CheckStep(vmInstance, depth) {
		d.stop("step")
		return
	}

	if !d.bps.Has(uint32(line)) {
		return
	}
	res := d.pc.Convert(source, fmt.Sprintf("anon-%d", depth))
	if res.Kind == pathconvert.KindNative || res.Key == "" {
		return
	}
	if d.bps.Fires(res.Key, uint32(line), d.evalCond) {
		d.stop("breakpoint")
	}
}

// stop performs the transition shared by both stop reasons: as if a
// step-in had just completed (state=stepping, mode=in, anchor=(-inf,
// nil)), then announces the stop and blocks until a resume-class
// request is handled.
func (d *Driver) stop(reason string) {
	d.machine.StepIn()
	d.machine.Set(stepstate.Stepping)
	d.notify(reason)
	d.pump()
}
