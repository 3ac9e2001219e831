package daemon

import (
	"errors"
	"fmt"
	"testing"
)

func TestSentinelErrors(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ErrNotConnected, "daemon: not connected"},
		{ErrConnectionFailed, "daemon: connection failed"},
		{ErrRequestTimeout, "daemon: request timeout"},
	}
	for _, tt := range tests {
		if tt.err.Error() != tt.want {
			t.Errorf("Error() = %q, want %q", tt.err.Error(), tt.want)
		}
		wrapped := fmt.Errorf("send: %w", tt.err)
		if !errors.Is(wrapped, tt.err) {
			t.Errorf("errors.Is(%v) = false", tt.err)
		}
	}
}

func TestServerError(t *testing.T) {
	t.Run("basic error", func(t *testing.T) {
		err := NewServerError("ping", "server unavailable")
		if err.Error() != "ping failed: server unavailable" {
			t.Errorf("unexpected error message: %s", err.Error())
		}
		if err.Code != "" {
			t.Errorf("Code = %q, want empty", err.Code)
		}
	})

	t.Run("from response", func(t *testing.T) {
		err := responseError("start", &Response{Error: "project is already running", Code: CodeAlreadyRunning})
		if err.Error() != "start failed: project is already running" {
			t.Errorf("unexpected error message: %s", err.Error())
		}
		if !IsCode(err, CodeAlreadyRunning) {
			t.Error("IsCode(CodeAlreadyRunning) = false")
		}
		if IsCode(err, CodeNotRunning) {
			t.Error("IsCode(CodeNotRunning) = true")
		}
	})

	t.Run("errors.As through wrapping", func(t *testing.T) {
		err := fmt.Errorf("cli: %w", responseError("stop", &Response{Error: "not running", Code: CodeNotRunning}))

		var serverErr *ServerError
		if !errors.As(err, &serverErr) {
			t.Fatal("errors.As should match *ServerError")
		}
		if serverErr.Operation != "stop" {
			t.Errorf("Operation = %q", serverErr.Operation)
		}
		if !IsCode(err, CodeNotRunning) {
			t.Error("IsCode through wrap = false")
		}
	})

	t.Run("plain errors have no code", func(t *testing.T) {
		if IsCode(errors.New("boom"), CodeInternal) {
			t.Error("IsCode(plain error) = true")
		}
		if IsCode(nil, CodeInternal) {
			t.Error("IsCode(nil) = true")
		}
	})
}

func TestSendNotConnectedError(t *testing.T) {
	c := NewClient("/tmp/rig-test.sock")
	_, err := c.Send(&Request{Type: MsgPing})
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got: %v", err)
	}
}
