package dispatcher

import (
	dap "github.com/google/go-dap"

	"github.com/dshills/luadbg/internal/dbgerrors"
	"github.com/dshills/luadbg/internal/launchcfg"
	"github.com/dshills/luadbg/internal/stepstate"
)

func handleInitialize(env Env, req *dap.InitializeRequest) bool {
	if !env.Machine().Is(stepstate.Birth) {
		sendError(env, req.Request, dbgerrors.AlreadyInitialized().Message)
		return false
	}

	resp := response(env, req.Request)
	env.Send(&dap.InitializeResponse{
		Response: resp,
		Body: dap.Capabilities{
			SupportsConfigurationDoneRequest: true,
			SupportsConditionalBreakpoints:   true,
			SupportsEvaluateForHovers:        true,
			SupportsSetVariable:              true,
		},
	})

	// Set(Initialized) fires the fixed side effects of spec.md §4.1 via
	// the Hooks the owning debugger installed: the "initialized" event
	// and the "Debugger initialized\n" console line, in that order,
	// after this response — matches scenario 1's event ordering.
	env.Machine().Set(stepstate.Initialized)
	return false
}

func handleLaunch(env Env, req *dap.LaunchRequest) bool {
	if !env.Machine().Is(stepstate.Initialized) {
		sendError(env, req.Request, dbgerrors.NotInitialized().Message)
		return false
	}

	args, err := launchcfg.DecodeLaunch(req.Arguments)
	if err != nil {
		sendError(env, req.Request, dbgerrors.LaunchFailed().Message)
		return false
	}
	if err := env.Launch(args); err != nil {
		sendError(env, req.Request, dbgerrors.LaunchFailed().Message)
		return false
	}

	env.Send(&dap.LaunchResponse{Response: response(env, req.Request)})
	env.Send(&dap.ThreadEvent{
		Event: event(env, "thread"),
		Body:  dap.ThreadEventBody{Reason: "started", ThreadId: env.ThreadID()},
	})

	if args.StopOnEntry {
		env.Machine().StepIn()
		env.Machine().Set(stepstate.Stepping)
		sendStopped(env, "entry")
		env.BlockUntilResume()
	} else {
		env.Machine().Set(stepstate.Running)
	}

	env.StartVM()
	return false
}

func handleAttach(env Env, req *dap.AttachRequest) bool {
	if !env.Machine().Is(stepstate.Initialized) {
		sendError(env, req.Request, dbgerrors.NotInitialized().Message)
		return false
	}

	args, err := launchcfg.DecodeAttach(req.Arguments)
	if err != nil {
		sendError(env, req.Request, dbgerrors.LaunchFailed().Message)
		return false
	}
	if err := env.Attach(args); err != nil {
		sendError(env, req.Request, dbgerrors.LaunchFailed().Message)
		return false
	}

	env.Send(&dap.AttachResponse{Response: response(env, req.Request)})
	env.Send(&dap.ThreadEvent{
		Event: event(env, "thread"),
		Body:  dap.ThreadEventBody{Reason: "started", ThreadId: env.ThreadID()},
	})

	if args.StopOnEntry {
		env.Machine().StepIn()
		env.Machine().Set(stepstate.Stepping)
		sendStopped(env, "entry")
		env.BlockUntilResume()
	} else {
		env.Machine().Set(stepstate.Running)
	}

	env.StartVM()
	return false
}

func handleConfigurationDone(env Env, req *dap.ConfigurationDoneRequest) bool {
	if env.Machine().Is(stepstate.Birth) {
		sendError(env, req.Request, dbgerrors.NotInitialized().Message)
		return false
	}
	env.Send(&dap.ConfigurationDoneResponse{Response: response(env, req.Request)})
	return false
}

// handleDisconnect always returns true, the one unconditional resume
// signal: whether or not the debuggee is currently parked in a stopped
// pump, disconnect must unblock it so the VM, if running, is left to run
// to completion rather than abandoned mid-stop (spec.md §5 Cancellation).
func handleDisconnect(env Env, req *dap.DisconnectRequest) bool {
	env.Send(&dap.DisconnectResponse{Response: response(env, req.Request)})
	env.Machine().Set(stepstate.Terminated)
	return true
}
