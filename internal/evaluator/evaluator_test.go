package evaluator

import (
	"testing"

	"github.com/dshills/luadbg/internal/variable"
	"github.com/dshills/luadbg/internal/vm"
)

func evalAtFirstLine(t *testing.T, src string, fn func(e *Evaluator)) {
	t.Helper()
	v := vm.New()
	defer v.Close()

	done := false
	v.SetHook(func(ev vm.HookEvent, line int) {
		if ev != vm.HookLine || done {
			return
		}
		done = true
		w := variable.NewWatchTable()
		e := New(v, w)
		fn(e)
	})

	if err := v.DoString(src); err != nil {
		t.Fatalf("DoString: %v", err)
	}
	if !done {
		t.Fatal("hook never fired")
	}
}

func TestEvaluateReturnsSingleValue(t *testing.T) {
	evalAtFirstLine(t, `
local function f()
  local x = 41
  return x
end
f()
`, func(e *Evaluator) {
		res, err := e.Evaluate(0, "x + 1", ContextRepl)
		if err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
		if res.Value != "42" {
			t.Fatalf("expected 42, got %q", res.Value)
		}
	})
}

func TestEvaluateReplFallbackToStatement(t *testing.T) {
	evalAtFirstLine(t, `
local function f()
  local x = 1
  return x
end
f()
`, func(e *Evaluator) {
		res, err := e.Evaluate(0, "x = 99", ContextRepl)
		if err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
		if res.Value != "ok" {
			t.Fatalf("expected fixed result 'ok', got %q", res.Value)
		}
	})
}

func TestEvaluateNonReplFailsOnStatement(t *testing.T) {
	evalAtFirstLine(t, `
local function f()
  local x = 1
  return x
end
f()
`, func(e *Evaluator) {
		if _, err := e.Evaluate(0, "x = 99", ContextWatch); err == nil {
			t.Fatal("expected non-repl context to surface the compile error, not fall back")
		}
	})
}

func TestEvaluateWatchPinsTable(t *testing.T) {
	evalAtFirstLine(t, `
local function f()
  local t = {1, 2, 3}
  return t
end
f()
`, func(e *Evaluator) {
		res, err := e.Evaluate(0, "t", ContextWatch)
		if err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
		if res.VariablesReference == 0 {
			t.Fatal("expected a pinned watch reference for a table result")
		}
		cat, _, _ := variable.Unpack(res.VariablesReference)
		if cat != variable.CategoryWatch {
			t.Fatalf("expected CategoryWatch, got %v", cat)
		}
	})
}

func TestEvaluateMultiReturnCommaJoined(t *testing.T) {
	evalAtFirstLine(t, `
local function pair()
  return 1, 2
end
local x = 1
`, func(e *Evaluator) {
		res, err := e.Evaluate(0, "pair()", ContextRepl)
		if err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
		if res.Value != "1, 2" {
			t.Fatalf("expected comma-joined multi-return, got %q", res.Value)
		}
	})
}

func TestEvaluateUsesFrameLocals(t *testing.T) {
	evalAtFirstLine(t, `
local function f(a, b)
  local sum = a + b
  return sum
end
f(10, 20)
`, func(e *Evaluator) {
		res, err := e.Evaluate(0, "a + b", ContextRepl)
		if err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
		if res.Value != "30" {
			t.Fatalf("expected 30, got %q", res.Value)
		}
	})
}

func TestEvaluateRestoresShadowedGlobal(t *testing.T) {
	v := vm.New()
	defer v.Close()

	done := false
	v.SetHook(func(ev vm.HookEvent, line int) {
		if ev != vm.HookLine || done {
			return
		}
		done = true
		w := variable.NewWatchTable()
		e := New(v, w)
		res, err := e.Evaluate(0, "marker", ContextRepl)
		if err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
		if res.Value != "shadowed" {
			t.Fatalf("expected local shadow value, got %q", res.Value)
		}
		if got := v.Globals().RawGetString("marker").String(); got != "global-value" {
			t.Fatalf("expected global restored after evaluate, got %q", got)
		}
	})

	if err := v.DoString(`
marker = "global-value"
local function f()
  local marker = "shadowed"
  return marker
end
f()
`); err != nil {
		t.Fatalf("DoString: %v", err)
	}
}
