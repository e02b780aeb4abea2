// Package debugger is the composition root: it owns every collaborator
// (StateMachine, BreakpointIndex, PathConvert, VariableBroker, WatchTable,
// StackBroker, HookDriver, Evaluator, VM, Transport) and is the single
// concrete implementation of dispatcher.Env. It is also the only package
// holding non-owning handles to both HookDriver and the request
// dispatcher, which is what lets HookDriver's stopped-loop pump reuse the
// exact same request-draining loop a pre-launch stopOnEntry wait uses
// (spec.md §9's note on their cyclic relationship).
package debugger

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"

	dap "github.com/google/go-dap"
	"github.com/google/uuid"
	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/luadbg/internal/applog"
	"github.com/dshills/luadbg/internal/breakpoint"
	"github.com/dshills/luadbg/internal/dispatcher"
	"github.com/dshills/luadbg/internal/evaluator"
	"github.com/dshills/luadbg/internal/hookdriver"
	"github.com/dshills/luadbg/internal/launchcfg"
	"github.com/dshills/luadbg/internal/pathconvert"
	"github.com/dshills/luadbg/internal/protocol"
	"github.com/dshills/luadbg/internal/stackbroker"
	"github.com/dshills/luadbg/internal/stepstate"
	"github.com/dshills/luadbg/internal/variable"
	"github.com/dshills/luadbg/internal/vm"
)

// mainThreadID is the fixed thread id this core reports: gopher-lua's
// debug API has no notion of OS threads, and the spec models exactly one
// debuggee thread (spec.md §4.2).
const mainThreadID = 1

// Debugger wires the collaborators above into one DAP debug adapter core
// for a single session. A Debugger is single-use: once its StateMachine
// reaches Terminated it is discarded, matching one DAP session's lifetime.
type Debugger struct {
	transport *protocol.Transport
	log       *applog.Logger
	sessionID string

	machine *stepstate.Machine
	bps     *breakpoint.Index
	pc      *pathconvert.Converter
	workDir *launchcfg.WorkingDirectory
	watch   *variable.WatchTable
	stack   *stackbroker.Broker

	// Populated by Launch/Attach; nil before then. Guarded by mu since the
	// accessor methods below may be called from either the pre-launch
	// request loop or (after StartVM) the VM's own goroutine, and nothing
	// prevents a handler from reading them on the request-loop goroutine
	// in the same instant Launch just wrote them on that very goroutine —
	// the lock costs nothing here and removes the need to reason about it.
	mu        sync.Mutex
	vmState   *vm.VM
	varBroker *variable.Broker
	eval      *evaluator.Evaluator
	hook      *hookdriver.Driver
	program   string
	vmStarted bool

	requestCh chan dap.Message
	vmDone    chan struct{}
}

// New creates a Debugger that reads/writes DAP messages over transport.
func New(transport *protocol.Transport, log *applog.Logger) *Debugger {
	if log == nil {
		log = applog.Null
	}
	sessionID := uuid.NewString()
	d := &Debugger{
		transport: transport,
		log:       log.WithComponent("debugger").WithSession(sessionID),
		sessionID: sessionID,
		bps:       breakpoint.New(),
		workDir:   &launchcfg.WorkingDirectory{},
		watch:     variable.NewWatchTable(),
		stack:     stackbroker.New(),
		requestCh: make(chan dap.Message, 64),
		vmDone:    make(chan struct{}),
	}
	d.pc = pathconvert.New("")
	d.machine = stepstate.New(stepstate.Hooks{
		OnInitialized: d.onInitialized,
		OnTerminated:  d.onTerminated,
	})
	return d
}

// Run starts the transport read loop and services requests until the
// session terminates. Without a launched program it returns on disconnect
// (or when the transport closes). With a launched program it returns only
// once that program's run has ended: a disconnect does not kill the VM,
// it is left to run to completion unsupervised (spec.md §5 Cancellation).
func (d *Debugger) Run() {
	go d.readLoop()

	for !d.isVMStarted() && !d.machine.Is(stepstate.Terminated) {
		req, ok := <-d.requestCh
		if !ok {
			return
		}
		dispatcher.Dispatch(d, req)
	}
	if d.machine.Is(stepstate.Terminated) {
		return
	}

	if d.programName() == "" {
		// Attach with nothing to run: there is no VM goroutine draining
		// requestCh via HookDriver's pump, so this loop is the only
		// consumer for the rest of the session.
		for !d.machine.Is(stepstate.Terminated) {
			req, ok := <-d.requestCh
			if !ok {
				return
			}
			dispatcher.Dispatch(d, req)
		}
		return
	}

	<-d.vmDone
}

func (d *Debugger) readLoop() {
	defer close(d.requestCh)
	for {
		msg, err := d.transport.Receive()
		if err != nil {
			d.log.Info("transport read loop ended: %v", err)
			return
		}
		if raw, err := json.Marshal(msg); err == nil {
			d.log.DebugJSON("recv", raw)
		}
		d.requestCh <- msg
	}
}

func (d *Debugger) isVMStarted() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.vmStarted
}

func (d *Debugger) programName() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.program
}

// onInitialized fires the fixed side effects of spec.md §4.1's
// Set(Initialized) transition: an "initialized" event, followed by a
// console output line announcing readiness.
func (d *Debugger) onInitialized() {
	d.Send(&dap.InitializedEvent{Event: d.newEvent("initialized")})
	d.sendOutput("console", "Debugger initialized\n")
}

// onTerminated fires spec.md §4.1's terminated side effects: a
// "terminated" event, then the transport is closed so a socket client's
// read loop observes EOF (closing a stdio transport is a no-op).
func (d *Debugger) onTerminated() {
	d.Send(&dap.TerminatedEvent{Event: d.newEvent("terminated")})
	if err := d.transport.Close(); err != nil {
		d.log.Warn("transport close: %v", err)
	}
}

func (d *Debugger) newEvent(name string) dap.Event {
	return dap.Event{
		ProtocolMessage: dap.ProtocolMessage{Seq: d.NextSeq(), Type: "event"},
		Event:           name,
	}
}

func (d *Debugger) sendOutput(category, text string) {
	d.Send(&dap.OutputEvent{
		Event: d.newEvent("output"),
		Body:  dap.OutputEventBody{Category: category, Output: text},
	})
}

// onStopped is HookDriver's StoppedNotifier: it announces a step/
// breakpoint/pause stop. handleLaunch/handleAttach's own entry-stop
// announcement lives in internal/dispatcher since it's part of the launch
// response sequence, not a hook firing; this is the hook-driven
// counterpart for every later stop.
func (d *Debugger) onStopped(reason string) {
	d.Send(&dap.StoppedEvent{
		Event: d.newEvent("stopped"),
		Body: dap.StoppedEventBody{
			Reason:            reason,
			ThreadId:          mainThreadID,
			AllThreadsStopped: true,
		},
	})
}

// vmHookFunc adapts vm.VM's single HookFunc callback to HookDriver's
// three-entry-point contract (OnCall/OnReturn/OnLine), fetching the
// current frame's source identifier for OnLine since gopher-lua's hook
// callback only hands back a line number, not the source string.
func (d *Debugger) vmHookFunc(event vm.HookEvent, line int) {
	switch event {
	case vm.HookCall:
		d.hook.OnCall()
	case vm.HookReturn:
		d.hook.OnReturn()
	case vm.HookLine:
		source := ""
		if f, err := d.vmState.Frame(0); err == nil {
			source = f.Source()
		}
		d.hook.OnLine(d.vmState, line, source)
	}
}

func setPackageField(L *lua.LState, field, value string) {
	tbl, ok := L.GetGlobal("package").(*lua.LTable)
	if !ok {
		return
	}
	tbl.RawSetString(field, lua.LString(value))
}

// --- dispatcher.Env ---

func (d *Debugger) Machine() *stepstate.Machine             { return d.machine }
func (d *Debugger) Breakpoints() *breakpoint.Index          { return d.bps }
func (d *Debugger) PathConvert() *pathconvert.Converter     { return d.pc }
func (d *Debugger) WorkingDir() *launchcfg.WorkingDirectory { return d.workDir }
func (d *Debugger) Watch() *variable.WatchTable             { return d.watch }
func (d *Debugger) StackBroker() *stackbroker.Broker        { return d.stack }

func (d *Debugger) Hook() *hookdriver.Driver {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.hook
}

func (d *Debugger) VM() *vm.VM {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.vmState
}

func (d *Debugger) Variables() *variable.Broker {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.varBroker
}

func (d *Debugger) Evaluator() *evaluator.Evaluator {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.eval
}

func (d *Debugger) ThreadID() int       { return mainThreadID }
func (d *Debugger) NextSeq() int        { return d.transport.NextSeq() }
func (d *Debugger) Log() *applog.Logger { return d.log }

func (d *Debugger) Send(msg dap.Message) {
	if raw, err := json.Marshal(msg); err == nil {
		d.log.DebugJSON("send", raw)
	}
	if err := d.transport.Send(msg); err != nil {
		d.log.Warn("send failed: %v", err)
	}
}

// Launch creates the VM, loads package.path/cpath overrides, and wires the
// hook driver, but does not run the program — StartVM does that once the
// launch response and stopOnEntry arming (if any) have been sent.
//
// program is resolved against args.Cwd here, at launch time, rather than
// by os.Chdir-ing the process: a -addr listener runs one Debugger per
// accepted connection in its own goroutine (cmd/luadbg's runSocketServer),
// so the process's current directory is shared state every concurrent
// session would stomp on. Joining the relative path against this session's
// own cwd up front gives DoFile the same resolved file the original's
// fs::current_path(workingdir_)-then-loadfile sequence would have found,
// without a global chdir racing a second session's launch.
func (d *Debugger) Launch(args launchcfg.LaunchArgs) error {
	d.workDir.Set(args.Cwd)
	d.pc.SetWorkingDirectory(args.Cwd)

	program := args.Program
	if args.Cwd != "" && !filepath.IsAbs(program) {
		program = filepath.Join(args.Cwd, program)
	}

	v := vm.New()
	if args.PackagePath != "" {
		setPackageField(v.L, "path", args.PackagePath)
	}
	if args.PackageCPath != "" {
		setPackageField(v.L, "cpath", args.PackageCPath)
	}

	d.mu.Lock()
	d.vmState = v
	d.program = program
	d.varBroker = variable.NewBroker(v, d.watch)
	d.eval = evaluator.New(v, d.watch)
	d.hook = hookdriver.New(d.machine, d.bps, d.pc, d.evalBreakpointCondition, d.onStopped, d.BlockUntilResume)
	d.hook.SetPoll(d.drainPending)
	d.mu.Unlock()

	v.SetHook(d.vmHookFunc)
	return nil
}

// Attach wires the same collaborators as Launch but never starts a VM
// goroutine: this core doesn't implement the external embedding shim a
// real "attach to an already-running host" would need (spec.md §1 scopes
// that collaboration out), so StartVM is a documented no-op after Attach
// and Run services requestCh directly for the rest of the session.
func (d *Debugger) Attach(args launchcfg.AttachArgs) error {
	d.workDir.Set(args.Cwd)
	d.pc.SetWorkingDirectory(args.Cwd)

	v := vm.New()

	d.mu.Lock()
	d.vmState = v
	d.varBroker = variable.NewBroker(v, d.watch)
	d.eval = evaluator.New(v, d.watch)
	d.hook = hookdriver.New(d.machine, d.bps, d.pc, d.evalBreakpointCondition, d.onStopped, d.BlockUntilResume)
	d.hook.SetPoll(d.drainPending)
	d.vmStarted = true // no program to load; StartVM becomes a no-op
	d.mu.Unlock()

	v.SetHook(d.vmHookFunc)
	return nil
}

func (d *Debugger) evalBreakpointCondition(expr string) (bool, error) {
	ev := d.Evaluator()
	if ev == nil {
		return true, fmt.Errorf("no evaluator bound")
	}
	return ev.EvaluateCondition(0, expr)
}

// StartVM spawns the goroutine that runs the loaded program. A no-op if
// already started (Attach's stub start, a second call from a client that
// retries launch, or a disconnect that arrived during the stopOnEntry
// wait and already set Terminated).
func (d *Debugger) StartVM() {
	d.mu.Lock()
	if d.vmStarted || d.machine.Is(stepstate.Terminated) {
		d.mu.Unlock()
		return
	}
	d.vmStarted = true
	v := d.vmState
	program := d.program
	d.mu.Unlock()

	go d.runVM(v, program)
}

func (d *Debugger) runVM(v *vm.VM, program string) {
	if err := v.DoFile(program); err != nil {
		d.sendOutput("console", err.Error()+"\n")
	}
	d.machine.Set(stepstate.Terminated)
	close(d.vmDone)
}

// BlockUntilResume drains requestCh, dispatching each message, until one
// signals resume. It is both the pre-launch stopOnEntry wait (called
// directly from handleLaunch/handleAttach) and HookDriver's Pump — the
// one loop every stop, of any kind, funnels through.
func (d *Debugger) BlockUntilResume() {
	for {
		req, ok := <-d.requestCh
		if !ok {
			return
		}
		if dispatcher.Dispatch(d, req) {
			return
		}
	}
}

// drainPending is HookDriver's non-blocking poll: it dispatches every
// request already queued without waiting for more, so setBreakpoints/
// pause/disconnect reach the dispatcher while the VM runs free between
// stops (spec.md §5's non-blocking-poll option).
func (d *Debugger) drainPending() {
	for {
		select {
		case req, ok := <-d.requestCh:
			if !ok {
				return
			}
			dispatcher.Dispatch(d, req)
		default:
			return
		}
	}
}
