package hookdriver

import (
	"testing"

	"github.com/dshills/luadbg/internal/breakpoint"
	"github.com/dshills/luadbg/internal/pathconvert"
	"github.com/dshills/luadbg/internal/stepstate"
)

func newTestDriver(t *testing.T) (*Driver, *[]string, *int) {
	t.Helper()
	m := stepstate.New(stepstate.Hooks{})
	bps := breakpoint.New()
	pc := pathconvert.New("")

	var reasons []string
	pumpCalls := 0
	d := New(m, bps, pc, nil,
		func(reason string) { reasons = append(reasons, reason) },
		func() { pumpCalls++ })
	return d, &reasons, &pumpCalls
}

func TestOnLineIgnoresNonPositiveLine(t *testing.T) {
	d, reasons, pumps := newTestDriver(t)
	d.OnLine("vm1", 0, "@a.lua")
	if len(*reasons) != 0 || *pumps != 0 {
		t.Fatalf("expected no stop for line <= 0, got reasons=%v pumps=%d", *reasons, *pumps)
	}
}

func TestOnLineStepInStopsOnAnyLine(t *testing.T) {
	d, reasons, pumps := newTestDriver(t)
	d.machine.Set(stepstate.Stepping)
	d.machine.StepIn()

	d.OnLine("vm1", 5, "@a.lua")

	if len(*reasons) != 1 || (*reasons)[0] != "step" {
		t.Fatalf("expected single step stop, got %v", *reasons)
	}
	if *pumps != 1 {
		t.Fatalf("expected pump invoked once, got %d", *pumps)
	}
}

func TestOnLineStepOverIgnoresDeeperFrames(t *testing.T) {
	d, reasons, _ := newTestDriver(t)
	d.machine.Set(stepstate.Stepping)
	d.machine.StepOver("vm1", 0)
	d.OnCall() // depth now 1, deeper than target

	d.OnLine("vm1", 5, "@a.lua")

	if len(*reasons) != 0 {
		t.Fatalf("expected no stop in a frame deeper than the step-over target, got %v", *reasons)
	}
}

func TestOnLineBreakpointFires(t *testing.T) {
	d, reasons, pumps := newTestDriver(t)
	d.bps.Insert("a.lua", []breakpoint.Breakpoint{{Line: 10}})

	d.OnLine("vm1", 10, "@a.lua")

	if len(*reasons) != 1 || (*reasons)[0] != "breakpoint" {
		t.Fatalf("expected breakpoint stop, got %v", *reasons)
	}
	if *pumps != 1 {
		t.Fatalf("expected pump invoked once, got %d", *pumps)
	}
}

func TestOnLineNoBreakpointNoStop(t *testing.T) {
	d, reasons, pumps := newTestDriver(t)
	d.OnLine("vm1", 10, "@a.lua")

	if len(*reasons) != 0 || *pumps != 0 {
		t.Fatalf("expected no stop with no breakpoints armed, got reasons=%v pumps=%d", *reasons, *pumps)
	}
}

func TestOnLineNativeSourceNeverFires(t *testing.T) {
	d, reasons, _ := newTestDriver(t)
	d.bps.Insert("a.lua", []breakpoint.Breakpoint{{Line: 10}})

	d.OnLine("vm1", 10, "=[C]")

	if len(*reasons) != 0 {
		t.Fatal("expected native frames to never match a breakpoint")
	}
}

func TestCallReturnTrackDepth(t *testing.T) {
	d, _, _ := newTestDriver(t)
	if d.Depth() != 0 {
		t.Fatalf("expected initial depth 0, got %d", d.Depth())
	}
	d.OnCall()
	d.OnCall()
	if d.Depth() != 2 {
		t.Fatalf("expected depth 2 after two calls, got %d", d.Depth())
	}
	d.OnReturn()
	if d.Depth() != 1 {
		t.Fatalf("expected depth 1 after a return, got %d", d.Depth())
	}
}
