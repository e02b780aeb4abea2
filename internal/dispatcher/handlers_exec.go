package dispatcher

import (
	dap "github.com/google/go-dap"

	"github.com/dshills/luadbg/internal/dbgerrors"
	"github.com/dshills/luadbg/internal/stepstate"
)

// handleContinue, handleNext, handleStepIn, and handleStepOut all set
// StepControl (continue disarms it, the others arm a step) and return true: the one spot their response and the
// resume signal are inseparable, since there is nothing left for the
// handler to do once the debuggee is told to move again.
// resetResumeState invalidates everything scoped to the paused frame
// that a resume makes stale: pinned watch slots and cached composite
// nested-table references. Called at the top of every resume-class
// handler (spec.md §4.4 / testable scenario 4).
func resetResumeState(env Env) {
	if vb := env.Variables(); vb != nil {
		vb.Reset()
	}
	env.Watch().Clear()
}

func handleContinue(env Env, req *dap.ContinueRequest) bool {
	if !isStopped(env) {
		sendError(env, req.Request, dbgerrors.NotInitialized().Message)
		return false
	}
	resetResumeState(env)
	env.Machine().ClearStep()
	env.Machine().Set(stepstate.Running)
	env.Send(&dap.ContinueResponse{Response: response(env, req.Request)})
	return true
}

func handleNext(env Env, req *dap.NextRequest) bool {
	if !isStopped(env) {
		sendError(env, req.Request, dbgerrors.NotInitialized().Message)
		return false
	}
	resetResumeState(env)
	h := env.Hook()
	env.Machine().StepOver(env.VM(), h.Depth())
	env.Machine().Set(stepstate.Stepping)
	env.Send(&dap.NextResponse{Response: response(env, req.Request)})
	return true
}

func handleStepIn(env Env, req *dap.StepInRequest) bool {
	if !isStopped(env) {
		sendError(env, req.Request, dbgerrors.NotInitialized().Message)
		return false
	}
	resetResumeState(env)
	env.Machine().StepIn()
	env.Machine().Set(stepstate.Stepping)
	env.Send(&dap.StepInResponse{Response: response(env, req.Request)})
	return true
}

func handleStepOut(env Env, req *dap.StepOutRequest) bool {
	if !isStopped(env) {
		sendError(env, req.Request, dbgerrors.NotInitialized().Message)
		return false
	}
	resetResumeState(env)
	h := env.Hook()
	env.Machine().StepOut(env.VM(), h.Depth())
	env.Machine().Set(stepstate.Stepping)
	env.Send(&dap.StepOutResponse{Response: response(env, req.Request)})
	return true
}

// handlePause never itself resumes. If the debuggee is already stopped
// it's a plain acknowledgement; if running free it arms HookDriver's
// pending-pause flag, which fires a "pause" stop at the next line event
// (spec.md §4.6/§9's non-blocking poll model) — a separate stopped event
// the client observes asynchronously, not a response body field.
func handlePause(env Env, req *dap.PauseRequest) bool {
	if env.Machine().Is(stepstate.Birth) || env.Machine().Is(stepstate.Initialized) || env.Machine().Is(stepstate.Terminated) {
		sendError(env, req.Request, dbgerrors.NotInitialized().Message)
		return false
	}
	if !isStopped(env) {
		if h := env.Hook(); h != nil {
			h.RequestPause()
		}
	}
	env.Send(&dap.PauseResponse{Response: response(env, req.Request)})
	return false
}
