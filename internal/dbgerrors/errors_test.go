package dbgerrors

import (
	"errors"
	"testing"
)

func TestErrorMessages(t *testing.T) {
	cases := []struct {
		err  *DebugError
		want string
	}{
		{AlreadyInitialized(), "already initialized"},
		{NotInitialized(), "not initialized or unexpected state"},
		{LaunchFailed(), "Launch failed"},
		{StackFrameError(), "Error retrieving stack frame"},
		{VariablesError(), "Error retrieving variables"},
		{SetVariableFailed(), "Failed set variable"},
		{Evaluate("attempt to call a nil value"), "attempt to call a nil value"},
	}
	for _, c := range cases {
		if c.err.Error() != c.want {
			t.Errorf("got %q, want %q", c.err.Error(), c.want)
		}
	}
}

func TestWithCauseUnwraps(t *testing.T) {
	cause := errors.New("boom")
	wrapped := LaunchFailed().WithCause(cause)

	if !errors.Is(wrapped, cause) {
		t.Fatal("expected errors.Is to find the wrapped cause")
	}
	if wrapped.Error() != "Launch failed: boom" {
		t.Errorf("unexpected message: %s", wrapped.Error())
	}
}
