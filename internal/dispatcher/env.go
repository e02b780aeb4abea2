// Package dispatcher maps DAP request names to handlers, enforces the
// state preconditions of spec.md §4.7's table, and emits responses and
// events through an Env. Handlers return a bool: true means "resume the
// debuggee now" — the signal HookDriver's stopped-loop (and the
// pre-launch entry-stop in internal/debugger) waits for.
package dispatcher

import (
	dap "github.com/google/go-dap"

	"github.com/dshills/luadbg/internal/applog"
	"github.com/dshills/luadbg/internal/breakpoint"
	"github.com/dshills/luadbg/internal/evaluator"
	"github.com/dshills/luadbg/internal/hookdriver"
	"github.com/dshills/luadbg/internal/launchcfg"
	"github.com/dshills/luadbg/internal/pathconvert"
	"github.com/dshills/luadbg/internal/stackbroker"
	"github.com/dshills/luadbg/internal/stepstate"
	"github.com/dshills/luadbg/internal/variable"
	"github.com/dshills/luadbg/internal/vm"
)

// Env is everything a handler needs from the owning debugger. A single
// concrete type (internal/debugger.Debugger) implements it; the
// interface exists so this package never imports internal/debugger,
// which is the one container lending non-owning handles to both this
// dispatcher and the HookDriver (spec.md §9's cyclic-relationship note).
type Env interface {
	Machine() *stepstate.Machine
	Breakpoints() *breakpoint.Index
	PathConvert() *pathconvert.Converter
	WorkingDir() *launchcfg.WorkingDirectory
	Watch() *variable.WatchTable
	StackBroker() *stackbroker.Broker
	Hook() *hookdriver.Driver // nil before launch

	// VM, Variables, and Evaluator are only non-nil once a launch/attach
	// has created them; handlers that require a live frame must check.
	VM() *vm.VM
	Variables() *variable.Broker
	Evaluator() *evaluator.Evaluator

	ThreadID() int
	NextSeq() int
	Send(msg dap.Message)

	// Launch creates the VM and its dependent brokers (but does not run
	// it) and records args.Cwd into WorkingDir. stopOnEntry is handled by
	// the launch/attach handlers, not here. Attach is the same minus
	// program loading.
	Launch(args launchcfg.LaunchArgs) error
	Attach(args launchcfg.AttachArgs) error

	// StartVM spawns the goroutine that runs the loaded program, or is a
	// no-op if already started.
	StartVM()
	// BlockUntilResume drains requests, dispatching each, until one
	// signals resume. Used both for the pre-launch stopOnEntry stop and
	// reused as HookDriver's Pump.
	BlockUntilResume()

	Log() *applog.Logger
}
