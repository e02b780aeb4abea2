package dispatcher

import (
	dap "github.com/google/go-dap"

	"github.com/dshills/luadbg/internal/breakpoint"
	"github.com/dshills/luadbg/internal/dbgerrors"
	"github.com/dshills/luadbg/internal/pathconvert"
	"github.com/dshills/luadbg/internal/stepstate"
)

// handleSetBreakpoints replaces the breakpoint set for one source
// wholesale (never unions), keyed by the same canonical form PathConvert
// would produce for a VM-reported `@path` source, so HookDriver's lookup
// at hook time matches what the client set here.
func handleSetBreakpoints(env Env, req *dap.SetBreakpointsRequest) bool {
	if env.Machine().Is(stepstate.Birth) {
		sendError(env, req.Request, dbgerrors.NotInitialized().Message)
		return false
	}

	res := env.PathConvert().Convert("@"+req.Arguments.Source.Path, "")
	key := res.Key
	if res.Kind == pathconvert.KindNative || key == "" {
		key = req.Arguments.Source.Path
	}

	bps := make([]breakpoint.Breakpoint, 0, len(req.Arguments.Breakpoints))
	for _, b := range req.Arguments.Breakpoints {
		bps = append(bps, breakpoint.Breakpoint{Line: uint32(b.Line), Condition: b.Condition})
	}
	env.Breakpoints().Insert(key, bps)

	verified := make([]dap.Breakpoint, 0, len(bps))
	for _, b := range bps {
		verified = append(verified, dap.Breakpoint{
			Verified: true,
			Line:     int(b.Line),
			Source:   req.Arguments.Source,
		})
	}

	env.Send(&dap.SetBreakpointsResponse{
		Response: response(env, req.Request),
		Body:     dap.SetBreakpointsResponseBody{Breakpoints: verified},
	})
	return false
}
