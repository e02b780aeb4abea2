package dispatcher

import (
	dap "github.com/google/go-dap"

	"github.com/dshills/luadbg/internal/stepstate"
)

// Dispatch routes a single decoded DAP message to its handler and
// returns whether the debuggee should resume now. Unknown message types
// (events echoed back, or requests this core doesn't implement) are
// silently ignored, matching a permissive DAP server.
func Dispatch(env Env, msg dap.Message) bool {
	switch req := msg.(type) {
	case *dap.InitializeRequest:
		return handleInitialize(env, req)
	case *dap.LaunchRequest:
		return handleLaunch(env, req)
	case *dap.AttachRequest:
		return handleAttach(env, req)
	case *dap.ConfigurationDoneRequest:
		return handleConfigurationDone(env, req)
	case *dap.SetBreakpointsRequest:
		return handleSetBreakpoints(env, req)
	case *dap.ThreadsRequest:
		return handleThreads(env, req)
	case *dap.StackTraceRequest:
		return handleStackTrace(env, req)
	case *dap.ScopesRequest:
		return handleScopes(env, req)
	case *dap.VariablesRequest:
		return handleVariables(env, req)
	case *dap.SetVariableRequest:
		return handleSetVariable(env, req)
	case *dap.SourceRequest:
		return handleSource(env, req)
	case *dap.EvaluateRequest:
		return handleEvaluate(env, req)
	case *dap.ContinueRequest:
		return handleContinue(env, req)
	case *dap.NextRequest:
		return handleNext(env, req)
	case *dap.StepInRequest:
		return handleStepIn(env, req)
	case *dap.StepOutRequest:
		return handleStepOut(env, req)
	case *dap.PauseRequest:
		return handlePause(env, req)
	case *dap.DisconnectRequest:
		return handleDisconnect(env, req)
	default:
		return false
	}
}

// response builds a success response envelope; body is assigned by the caller.
func response(env Env, req dap.Request) dap.Response {
	return dap.Response{
		ProtocolMessage: dap.ProtocolMessage{Seq: env.NextSeq(), Type: "response"},
		RequestSeq:      req.GetSeq(),
		Success:         true,
		Command:         req.Command,
	}
}

// event builds an event envelope of the given name; body is assigned by the caller.
func event(env Env, name string) dap.Event {
	return dap.Event{
		ProtocolMessage: dap.ProtocolMessage{Seq: env.NextSeq(), Type: "event"},
		Event:           name,
	}
}

// sendError sends a success=false response carrying message verbatim,
// per spec.md §7.
func sendError(env Env, req dap.Request, message string) {
	resp := response(env, req)
	resp.Success = false
	resp.Message = message
	env.Send(&dap.ErrorResponse{
		Response: resp,
		Body:     dap.ErrorResponseBody{Error: &dap.ErrorMessage{Format: message}},
	})
}

func sendStopped(env Env, reason string) {
	env.Send(&dap.StoppedEvent{
		Event: event(env, "stopped"),
		Body: dap.StoppedEventBody{
			Reason:            reason,
			ThreadId:          env.ThreadID(),
			AllThreadsStopped: true,
		},
	})
}

func sendOutput(env Env, category, text string) {
	env.Send(&dap.OutputEvent{
		Event: event(env, "output"),
		Body:  dap.OutputEventBody{Category: category, Output: text},
	})
}

// isStopped reports whether the debuggee is currently paused (the
// "stopped" precondition spec.md §4.7's table requires for
// threads/stackTrace/scopes/variables/setVariable/evaluate/source).
// Stepping is the one state the hook driver pauses in; see
// hookdriver.Driver.stop.
func isStopped(env Env) bool {
	return env.Machine().Is(stepstate.Stepping)
}
