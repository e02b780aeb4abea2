package dispatcher

import (
	"fmt"
	"hash/fnv"
	"path/filepath"

	dap "github.com/google/go-dap"

	"github.com/dshills/luadbg/internal/dbgerrors"
	"github.com/dshills/luadbg/internal/pathconvert"
	"github.com/dshills/luadbg/internal/variable"
	"github.com/dshills/luadbg/internal/vm"
)

func handleThreads(env Env, req *dap.ThreadsRequest) bool {
	if !isStopped(env) {
		sendError(env, req.Request, dbgerrors.NotInitialized().Message)
		return false
	}
	env.Send(&dap.ThreadsResponse{
		Response: response(env, req.Request),
		Body:     dap.ThreadsResponseBody{Threads: []dap.Thread{{Id: env.ThreadID(), Name: "main"}}},
	})
	return false
}

// mantissaMax53 mirrors variable.Reference's 53-bit mantissa cap (spec.md
// §3's StackEntry note); a synthetic sourceReference must survive the
// same JSON-number round trip a VariableReference does.
const mantissaMax53 = 1<<53 - 1

// sourceRefFor derives a stable, positive, 53-bit-safe identifier for an
// anonymous in-memory chunk from its raw VM source text. gopher-lua does
// not expose the chunk buffer's address through its public API, so a
// content hash stands in for the "stable address/identity" spec.md §3
// describes — stable across repeated stackTrace requests for the same
// chunk within one run, which is all StackEntry's lifetime requires.
func sourceRefFor(raw string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(raw))
	ref := int64(h.Sum64() & mantissaMax53)
	if ref == 0 {
		ref = 1
	}
	return ref
}

func frameName(f *vm.Frame) string {
	if n := f.Name(); n != "" {
		return n
	}
	if f.Depth() == 0 {
		return "main chunk"
	}
	return "?"
}

func handleStackTrace(env Env, req *dap.StackTraceRequest) bool {
	if !isStopped(env) {
		sendError(env, req.Request, dbgerrors.NotInitialized().Message)
		return false
	}
	v := env.VM()
	if v == nil {
		sendError(env, req.Request, dbgerrors.StackFrameError().Message)
		return false
	}

	env.StackBroker().Reset()
	env.PathConvert().BeginRender()

	levels := req.Arguments.Levels
	frames := make([]dap.StackFrame, 0)
	for depth := 0; levels <= 0 || depth < levels; depth++ {
		f, err := v.Frame(depth)
		if err != nil {
			break
		}

		sf := dap.StackFrame{Id: depth, Name: frameName(f), Line: f.Line()}
		res := env.PathConvert().Convert(f.Source(), fmt.Sprintf("anon-%d", depth))
		switch res.Kind {
		case pathconvert.KindFile:
			sf.Source = dap.Source{Path: res.Key, Name: filepath.Base(res.Key)}
		case pathconvert.KindChunk:
			sf.Source = dap.Source{Name: res.Display}
		case pathconvert.KindNative:
			sf.Source = dap.Source{Name: "[C]"}
		case pathconvert.KindAnonymous:
			ref := sourceRefFor(f.Source())
			env.StackBroker().Add(depth, ref)
			sf.Source = dap.Source{Name: "chunk", SourceReference: int(ref)}
		}
		frames = append(frames, sf)
	}

	env.Send(&dap.StackTraceResponse{
		Response: response(env, req.Request),
		Body:     dap.StackTraceResponseBody{StackFrames: frames, TotalFrames: len(frames)},
	})
	return false
}

func handleScopes(env Env, req *dap.ScopesRequest) bool {
	if !isStopped(env) {
		sendError(env, req.Request, dbgerrors.NotInitialized().Message)
		return false
	}
	vb := env.Variables()
	if vb == nil {
		sendError(env, req.Request, dbgerrors.StackFrameError().Message)
		return false
	}

	scopes, err := vb.Scopes(req.Arguments.FrameId)
	if err != nil {
		sendError(env, req.Request, dbgerrors.StackFrameError().Message)
		return false
	}

	out := make([]dap.Scope, 0, len(scopes))
	for _, s := range scopes {
		out = append(out, dap.Scope{
			Name:               s.Name,
			VariablesReference: int(s.VariablesReference),
			Expensive:          s.Expensive,
		})
	}
	env.Send(&dap.ScopesResponse{Response: response(env, req.Request), Body: dap.ScopesResponseBody{Scopes: out}})
	return false
}

func handleVariables(env Env, req *dap.VariablesRequest) bool {
	if !isStopped(env) {
		sendError(env, req.Request, dbgerrors.NotInitialized().Message)
		return false
	}
	vb := env.Variables()
	if vb == nil {
		sendError(env, req.Request, dbgerrors.VariablesError().Message)
		return false
	}

	vars, err := vb.Variables(variable.Reference(req.Arguments.VariablesReference))
	if err != nil {
		sendError(env, req.Request, dbgerrors.VariablesError().Message)
		return false
	}

	out := make([]dap.Variable, 0, len(vars))
	for _, v := range vars {
		out = append(out, dap.Variable{
			Name:               v.Name,
			Value:              v.Value,
			Type:               v.Type,
			VariablesReference: int(v.VariablesReference),
		})
	}
	env.Send(&dap.VariablesResponse{Response: response(env, req.Request), Body: dap.VariablesResponseBody{Variables: out}})
	return false
}

func handleSetVariable(env Env, req *dap.SetVariableRequest) bool {
	if !isStopped(env) {
		sendError(env, req.Request, dbgerrors.NotInitialized().Message)
		return false
	}
	vb := env.Variables()
	if vb == nil {
		sendError(env, req.Request, dbgerrors.SetVariableFailed().Message)
		return false
	}

	newVal, err := vb.SetVariable(variable.Reference(req.Arguments.VariablesReference), req.Arguments.Name, req.Arguments.Value)
	if err != nil {
		sendError(env, req.Request, dbgerrors.SetVariableFailed().Message)
		return false
	}

	env.Send(&dap.SetVariableResponse{
		Response: response(env, req.Request),
		Body:     dap.SetVariableResponseBody{Value: newVal},
	})
	return false
}

// handleSource only serves sourceReference-addressed content: anonymous
// in-memory chunks recorded in StackBroker during the most recent
// stackTrace. gopher-lua does not retain a loaded chunk's original source
// text once compiled, so there is no text to return even for a reference
// StackBroker does recognize. A reference StackBroker has never seen
// (stale from a prior stop, or the client guessed one) still gets a
// successful response with fixed fallback content rather than an error —
// the original implementation never fails this request, so an IDE's
// source view degrades gracefully instead of erroring the whole pane.
func handleSource(env Env, req *dap.SourceRequest) bool {
	if !isStopped(env) {
		sendError(env, req.Request, dbgerrors.NotInitialized().Message)
		return false
	}

	ref := int64(req.Arguments.SourceReference)
	if ref == 0 && req.Arguments.Source != nil {
		ref = int64(req.Arguments.Source.SourceReference)
	}

	content := "-- source text is not retained for in-memory chunks"
	if _, ok := env.StackBroker().Lookup(ref); !ok {
		content = "Source not available"
	}

	env.Send(&dap.SourceResponse{
		Response: response(env, req.Request),
		Body:     dap.SourceResponseBody{Content: content, MimeType: "text/x-lua"},
	})
	return false
}
