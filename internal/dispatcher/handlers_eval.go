package dispatcher

import (
	dap "github.com/google/go-dap"

	"github.com/dshills/luadbg/internal/dbgerrors"
	"github.com/dshills/luadbg/internal/evaluator"
)

func handleEvaluate(env Env, req *dap.EvaluateRequest) bool {
	if !isStopped(env) {
		sendError(env, req.Request, dbgerrors.NotInitialized().Message)
		return false
	}
	ev := env.Evaluator()
	if ev == nil {
		sendError(env, req.Request, dbgerrors.StackFrameError().Message)
		return false
	}

	result, err := ev.Evaluate(req.Arguments.FrameId, req.Arguments.Expression, evaluator.Context(req.Arguments.Context))
	if err != nil {
		sendError(env, req.Request, dbgerrors.Evaluate(err.Error()).Message)
		return false
	}

	env.Send(&dap.EvaluateResponse{
		Response: response(env, req.Request),
		Body: dap.EvaluateResponseBody{
			Result:             result.Value,
			VariablesReference: int(result.VariablesReference),
		},
	})
	return false
}
