package daemon

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tessro/rig/internal/envfile"
	"github.com/tessro/rig/internal/history"
	"github.com/tessro/rig/internal/routes"
)

func TestDecodePayload(t *testing.T) {
	t.Run("nil payload returns zero value", func(t *testing.T) {
		result, err := decodePayload[PingResponse](nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result == nil || result.Version != "" {
			t.Errorf("result = %+v, want zero value", result)
		}
	})

	t.Run("nested struct decodes", func(t *testing.T) {
		payload := map[string]any{
			"processes": []map[string]any{
				{"project": "alpha", "status": "running", "pid": 12},
				{"project": "bravo", "status": "stopped"},
			},
		}
		result, err := decodePayload[ProcessListResponse](payload)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(result.Processes) != 2 || result.Processes[0].PID != 12 || result.Processes[1].Status != "stopped" {
			t.Errorf("result = %+v", result)
		}
	})

	t.Run("type mismatch returns error", func(t *testing.T) {
		_, err := decodePayload[StartResponse](map[string]any{"pid": "not a number"})
		if err == nil || !strings.Contains(err.Error(), "unmarshal payload") {
			t.Errorf("err = %v, want unmarshal error", err)
		}
	})
}

// fakeDaemon answers the client API with canned payloads.
func fakeDaemon(t *testing.T) *Server {
	t.Helper()
	return startTestServer(t, HandlerFunc(func(ctx context.Context, req *Request) *Response {
		ok := func(payload any) *Response { return &Response{Success: true, Payload: payload} }
		switch req.Type {
		case MsgPing:
			return ok(PingResponse{Version: "test"})
		case MsgStart:
			return ok(StartResponse{Message: "started", PID: 99})
		case MsgStop:
			return &Response{Error: "project is not running", Code: CodeNotRunning}
		case MsgStatus:
			return ok(StatusResponse{Status: "running"})
		case MsgProjectFiles:
			return ok(ProjectFilesResponse{Files: []string{"node_modules", "package.json"}})
		case MsgProjectRoutes:
			return ok(RoutesResponse{Routes: []routes.Route{{Name: "getUser", Method: "get", Endpoint: "/users"}}})
		case MsgEnvGet:
			return ok(EnvResponse{Env: envfile.New("B", "2", "A", "1")})
		case MsgEnvSet:
			return ok(MessageResponse{Message: "saved"})
		case MsgHistoryList:
			return ok(HistoryListResponse{Runs: []history.Run{{ID: "r1", Project: "alpha", PID: 5}}})
		case MsgAttach:
			ServerFromContext(ctx).Attach(ConnFromContext(ctx), []string{"alpha"}, nil)
			return ok(nil)
		case MsgShutdown:
			return ok(nil)
		}
		return &Response{Error: "unknown message type: " + string(req.Type), Code: CodeValidation}
	}))
}

func connectTest(t *testing.T, srv *Server) *Client {
	t.Helper()
	c := NewClient(srv.SocketPath())
	if err := c.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestClient_Connect(t *testing.T) {
	c := NewClient(filepath.Join(t.TempDir(), "missing.sock"))
	if err := c.Connect(); !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() = %v, want ErrConnectionFailed", err)
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true after failed connect")
	}

	srv := fakeDaemon(t)
	c = connectTest(t, srv)
	if !c.IsConnected() {
		t.Error("IsConnected() = false")
	}
	// Idempotent
	if err := c.Connect(); err != nil {
		t.Errorf("second Connect() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
}

func TestClient_TypedCalls(t *testing.T) {
	c := connectTest(t, fakeDaemon(t))

	ping, err := c.Ping()
	if err != nil || ping.Version != "test" {
		t.Errorf("Ping() = %+v, %v", ping, err)
	}

	start, err := c.Start("alpha")
	if err != nil || start.PID != 99 {
		t.Errorf("Start() = %+v, %v", start, err)
	}

	status, err := c.Status("alpha")
	if err != nil || status.Status != "running" {
		t.Errorf("Status() = %+v, %v", status, err)
	}

	files, err := c.ProjectFiles("alpha")
	if err != nil || len(files) != 2 || files[0] != "node_modules" {
		t.Errorf("ProjectFiles() = %v, %v", files, err)
	}

	rs, err := c.ProjectRoutes("alpha", "user")
	if err != nil || len(rs) != 1 || rs[0].Name != "getUser" {
		t.Errorf("ProjectRoutes() = %+v, %v", rs, err)
	}

	env, err := c.EnvGet("alpha")
	if err != nil {
		t.Fatalf("EnvGet() error = %v", err)
	}
	if keys := env.Keys(); len(keys) != 2 || keys[0] != "B" || keys[1] != "A" {
		t.Errorf("EnvGet() keys = %v, want [B A]", keys)
	}

	if _, err := c.EnvSet("alpha", env); err != nil {
		t.Errorf("EnvSet() error = %v", err)
	}

	runs, err := c.HistoryList("alpha", 5)
	if err != nil || len(runs) != 1 || runs[0].ID != "r1" {
		t.Errorf("HistoryList() = %+v, %v", runs, err)
	}

	if err := c.Shutdown(); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestClient_ServerErrorCarriesCode(t *testing.T) {
	c := connectTest(t, fakeDaemon(t))

	_, err := c.Stop("alpha")
	if err == nil {
		t.Fatal("Stop() error = nil")
	}
	if !IsCode(err, CodeNotRunning) {
		t.Errorf("Stop() error = %v, want code %s", err, CodeNotRunning)
	}
	if err.Error() != "stop failed: project is not running" {
		t.Errorf("Error() = %q", err.Error())
	}

	_, err = c.ProjectUninstall("alpha")
	if !IsCode(err, CodeValidation) {
		t.Errorf("unhandled type error = %v, want validation code", err)
	}
}

func TestClient_StreamEvents(t *testing.T) {
	srv := fakeDaemon(t)
	c := connectTest(t, srv)

	events, err := c.StreamEvents([]string{"alpha"})
	if err != nil {
		t.Fatalf("StreamEvents() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for srv.AttachedCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	sendAll(srv, &StreamEvent{Type: EventOutput, Project: "bravo", Data: "skip"})
	sendAll(srv, &StreamEvent{Type: EventOutput, Project: "alpha", Stream: "stdout", Data: "hi"})

	select {
	case res := <-events:
		if res.Err != nil {
			t.Fatalf("event error = %v", res.Err)
		}
		if res.Event.Project != "alpha" || res.Event.Data != "hi" {
			t.Errorf("event = %+v", res.Event)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}

	c.StopEventStream()
	select {
	case _, ok := <-events:
		if ok {
			// A trailing result may be buffered; the channel must still close.
			for range events {
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event channel not closed after StopEventStream()")
	}
}
