// Package stepstate holds the debugger's global state machine and the
// step-control sub-state (step mode and anchor) HookDriver consults on
// every VM hook firing.
package stepstate

import "sync"

// State is one of the debugger's lifecycle states.
type State int

const (
	// Birth is the initial state before the first initialize request.
	Birth State = iota
	// Initialized follows a successful initialize request.
	Initialized
	// Running means the debuggee is executing freely.
	Running
	// Stepping means the debuggee is executing toward a step target.
	Stepping
	// Terminated is the terminal state.
	Terminated
)

func (s State) String() string {
	switch s {
	case Birth:
		return "birth"
	case Initialized:
		return "initialized"
	case Running:
		return "running"
	case Stepping:
		return "stepping"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Mode is the active step sub-mode, meaningful only while State == Stepping.
type Mode int

const (
	// ModeNone means no step is armed.
	ModeNone Mode = iota
	// ModeIn steps into any call.
	ModeIn
	// ModeOver steps across calls at or below the current depth.
	ModeOver
	// ModeOut steps out of the current frame.
	ModeOut
)

// minTargetLevel stands in for step-in's "match on any hook firing" anchor;
// any real depth compares ≤ it, matching spec's "targetStackLevel = −∞".
const minTargetLevel = -1 << 62

// Anchor is the (targetStackLevel, vmInstance) pair HookDriver compares the
// current stack depth and VM identity against.
type Anchor struct {
	TargetLevel int
	VM          any // opaque VM instance identity; nil matches any VM
}

// Hooks are the side effects fired on state transitions. All are optional;
// a nil hook is a no-op.
type Hooks struct {
	OnInitialized func()
	OnTerminated  func()
}

// Machine is the mutex-guarded debugger state machine and step control.
type Machine struct {
	mu     sync.Mutex
	state  State
	mode   Mode
	anchor Anchor
	hooks  Hooks
}

// New creates a Machine in the Birth state.
func New(hooks Hooks) *Machine {
	return &Machine{state: Birth, hooks: hooks}
}

// Is reports whether the machine is currently in the given state.
func (m *Machine) Is(s State) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == s
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Set transitions to the given state. Self-transitions are a no-op (no
// side effects fire). Entering Initialized or Terminated fires the fixed
// side effects documented in §4.1; transport open/close and the console
// output line are the caller's responsibility via the Hooks callbacks
// since those collaborators aren't owned by this package.
func (m *Machine) Set(s State) {
	m.mu.Lock()
	prev := m.state
	if prev == s {
		m.mu.Unlock()
		return
	}
	m.state = s
	hooks := m.hooks
	m.mu.Unlock()

	switch s {
	case Initialized:
		if hooks.OnInitialized != nil {
			hooks.OnInitialized()
		}
	case Terminated:
		if hooks.OnTerminated != nil {
			hooks.OnTerminated()
		}
	}
}

// StepMode returns the active step sub-mode.
func (m *Machine) StepMode() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// StepIn arms a step that matches on any hook firing, for any VM instance.
func (m *Machine) StepIn() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mode = ModeIn
	m.anchor = Anchor{TargetLevel: minTargetLevel, VM: nil}
}

// StepOver arms a step that matches when the same VM returns to depth ≤
// currentDepth.
func (m *Machine) StepOver(vm any, currentDepth int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mode = ModeOver
	m.anchor = Anchor{TargetLevel: currentDepth, VM: vm}
}

// StepOut arms a step that matches when the same VM returns to depth ≤
// currentDepth−1.
func (m *Machine) StepOut(vm any, currentDepth int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mode = ModeOut
	m.anchor = Anchor{TargetLevel: currentDepth - 1, VM: vm}
}

// ClearStep disarms the active step.
func (m *Machine) ClearStep() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mode = ModeNone
	m.anchor = Anchor{}
}

// CheckStep reports whether the current hook firing, from the given VM
// instance at the given stack depth, satisfies the active step anchor.
// Step-in matches any (vm, depth). Step-over/out match only the same VM
// instance and a depth at or below the anchor's target level — the ≤
// comparison (not ==) is load-bearing for correctness across tail calls
// and multi-frame unwinds (see spec §9).
func (m *Machine) CheckStep(vm any, depth int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.mode {
	case ModeIn:
		return true
	case ModeOver, ModeOut:
		return vm == m.anchor.VM && depth <= m.anchor.TargetLevel
	default:
		return false
	}
}
