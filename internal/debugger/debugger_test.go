package debugger

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	dap "github.com/google/go-dap"

	"github.com/dshills/luadbg/internal/applog"
	"github.com/dshills/luadbg/internal/protocol"
)

// session wires a Debugger to an in-memory DAP client for end-to-end
// testing: two io.Pipe pairs stand in for stdin/stdout, exercising the
// exact Transport/Dispatch/HookDriver path a real editor client would.
type session struct {
	t       *testing.T
	toSrv   *io.PipeWriter
	fromSrv *bufio.Reader
	seq     int
}

func newSession(t *testing.T) *session {
	t.Helper()
	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()

	conn := protocol.NewStdio(reqR, respW)
	d := New(protocol.New(conn), applog.Null)

	go d.Run()

	return &session{t: t, toSrv: reqW, fromSrv: bufio.NewReader(respR)}
}

func (s *session) send(msg dap.Message) {
	s.t.Helper()
	if err := dap.WriteProtocolMessage(s.toSrv, msg); err != nil {
		s.t.Fatalf("write request: %v", err)
	}
}

func (s *session) sendRequest(seq int, command string, args any) {
	s.t.Helper()
	var raw []byte
	if args != nil {
		b, err := json.Marshal(args)
		if err != nil {
			s.t.Fatalf("marshal args: %v", err)
		}
		raw = b
	}
	req := dap.Request{
		ProtocolMessage: dap.ProtocolMessage{Seq: seq, Type: "request"},
		Command:         command,
	}
	switch command {
	case "initialize":
		s.send(&dap.InitializeRequest{Request: req, Arguments: dap.InitializeRequestArguments{}})
	case "launch":
		s.send(&dap.LaunchRequest{Request: req, Arguments: raw})
	case "setBreakpoints":
		var a dap.SetBreakpointsArguments
		_ = json.Unmarshal(raw, &a)
		s.send(&dap.SetBreakpointsRequest{Request: req, Arguments: a})
	case "continue":
		s.send(&dap.ContinueRequest{Request: req})
	case "stackTrace":
		s.send(&dap.StackTraceRequest{Request: req})
	case "disconnect":
		s.send(&dap.DisconnectRequest{Request: req})
	default:
		s.t.Fatalf("unsupported test command %q", command)
	}
}

// recv reads the next framed message with a bounded wait, so a wiring bug
// fails the test instead of hanging the suite.
func (s *session) recv() dap.Message {
	s.t.Helper()
	type result struct {
		msg dap.Message
		err error
	}
	ch := make(chan result, 1)
	go func() {
		msg, err := dap.ReadProtocolMessage(s.fromSrv)
		ch <- result{msg, err}
	}()
	select {
	case r := <-ch:
		if r.err != nil {
			s.t.Fatalf("read message: %v", r.err)
		}
		return r.msg
	case <-time.After(2 * time.Second):
		s.t.Fatal("timed out waiting for a message")
		return nil
	}
}

// recvUntil drains messages until one matches pred, failing the test after
// a bounded number of messages (guards against an infinite wait on a
// misbehaving handler rather than looping forever).
func (s *session) recvUntil(pred func(dap.Message) bool) dap.Message {
	s.t.Helper()
	for i := 0; i < 50; i++ {
		msg := s.recv()
		if pred(msg) {
			return msg
		}
	}
	s.t.Fatal("no matching message arrived")
	return nil
}

func isEvent(name string) func(dap.Message) bool {
	return func(m dap.Message) bool {
		switch m.(type) {
		case *dap.InitializedEvent:
			return name == "initialized"
		case *dap.OutputEvent:
			return name == "output"
		case *dap.ThreadEvent:
			return name == "thread"
		case *dap.StoppedEvent:
			return name == "stopped"
		case *dap.TerminatedEvent:
			return name == "terminated"
		default:
			return false
		}
	}
}

func writeLuaFile(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "debugger-*.lua")
	if err != nil {
		t.Fatalf("create temp lua file: %v", err)
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp lua file: %v", err)
	}
	return f.Name()
}

// TestBreakpointHitCycle drives a full initialize/launch/setBreakpoints/
// continue session against a real gopher-lua VM, hitting the same line
// breakpoint on each loop iteration and verifying the debuggee eventually
// runs to completion and terminates once the loop ends.
func TestBreakpointHitCycle(t *testing.T) {
	program := writeLuaFile(t, "local x = 0\nfor i = 1, 3 do\n  x = x + i\nend\nreturn x\n")

	s := newSession(t)

	s.sendRequest(1, "initialize", nil)
	resp := s.recv()
	ir, ok := resp.(*dap.InitializeResponse)
	if !ok || !ir.Success {
		t.Fatalf("expected a successful InitializeResponse, got %#v", resp)
	}
	s.recvUntil(isEvent("initialized"))
	s.recvUntil(isEvent("output"))

	s.sendRequest(2, "launch", map[string]any{"program": program, "stopOnEntry": true})
	s.recvUntil(func(m dap.Message) bool { _, ok := m.(*dap.LaunchResponse); return ok })
	s.recvUntil(isEvent("thread"))
	stoppedEntry := s.recvUntil(func(m dap.Message) bool { _, ok := m.(*dap.StoppedEvent); return ok }).(*dap.StoppedEvent)
	if stoppedEntry.Body.Reason != "entry" {
		t.Fatalf("expected entry stop, got reason %q", stoppedEntry.Body.Reason)
	}

	s.sendRequest(3, "setBreakpoints", map[string]any{
		"source":      map[string]any{"path": program},
		"breakpoints": []map[string]any{{"line": 3}},
	})
	s.recvUntil(func(m dap.Message) bool { _, ok := m.(*dap.SetBreakpointsResponse); return ok })

	s.sendRequest(4, "continue", nil)
	s.recvUntil(func(m dap.Message) bool { _, ok := m.(*dap.ContinueResponse); return ok })

	for i := 0; i < 3; i++ {
		stopped := s.recvUntil(func(m dap.Message) bool { _, ok := m.(*dap.StoppedEvent); return ok }).(*dap.StoppedEvent)
		if stopped.Body.Reason != "breakpoint" {
			t.Fatalf("iteration %d: expected breakpoint stop, got %q", i, stopped.Body.Reason)
		}

		s.sendRequest(10+i, "stackTrace", nil)
		st := s.recvUntil(func(m dap.Message) bool { _, ok := m.(*dap.StackTraceResponse); return ok }).(*dap.StackTraceResponse)
		if len(st.Body.StackFrames) == 0 {
			t.Fatalf("iteration %d: expected at least one stack frame", i)
		}
		if st.Body.StackFrames[0].Line != 3 {
			t.Fatalf("iteration %d: expected stop at line 3, got %d", i, st.Body.StackFrames[0].Line)
		}

		s.sendRequest(20+i, "continue", nil)
		s.recvUntil(func(m dap.Message) bool { _, ok := m.(*dap.ContinueResponse); return ok })
	}

	s.recvUntil(isEvent("terminated"))
}

// TestLaunchRelativeProgramWithCwd covers a launch whose "program" is a
// bare relative filename and whose "cwd" points at the directory holding
// it — the case Launch resolves by joining program against cwd before
// DoFile, rather than relying on the process's own working directory
// (which a concurrent -addr session could have left pointed elsewhere).
// A program reachable only through that join succeeding proves the fix.
func TestLaunchRelativeProgramWithCwd(t *testing.T) {
	full := writeLuaFile(t, "local ok = true\n")
	dir := filepath.Dir(full)
	base := filepath.Base(full)

	s := newSession(t)

	s.sendRequest(1, "initialize", nil)
	s.recvUntil(func(m dap.Message) bool { _, ok := m.(*dap.InitializeResponse); return ok })
	s.recvUntil(isEvent("initialized"))
	s.recvUntil(isEvent("output"))

	s.sendRequest(2, "launch", map[string]any{
		"program":     base,
		"cwd":         dir,
		"stopOnEntry": false,
	})
	resp := s.recvUntil(func(m dap.Message) bool { _, ok := m.(*dap.LaunchResponse); return ok })
	if lr, ok := resp.(*dap.LaunchResponse); !ok || !lr.Success {
		t.Fatalf("expected a successful LaunchResponse, got %#v", resp)
	}
	s.recvUntil(isEvent("thread"))

	// No stopOnEntry: the VM runs the relative-path program to completion
	// on its own and the session terminates without ever seeing an
	// "Error retrieving stack frame" or a load failure for a path that
	// only resolves once joined against cwd.
	s.recvUntil(isEvent("terminated"))
}
