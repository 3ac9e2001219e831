package wsserver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tessro/rig/internal/broadcast"
	"github.com/tessro/rig/internal/logging"
)

func startTestServer(t *testing.T) (*Server, *broadcast.Broadcaster) {
	t.Helper()
	logging.SetupTest(io.Discard)

	bc := broadcast.New(16)
	s := New("127.0.0.1:0", bc)
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.Stop(ctx)
	})
	return s, bc
}

func dial(t *testing.T, s *Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+s.Addr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitSubscribers(t *testing.T, bc *broadcast.Broadcaster, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for bc.Count() != n {
		if time.Now().After(deadline) {
			t.Fatalf("subscribers = %d, want %d", bc.Count(), n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	typ, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	if typ != websocket.TextMessage {
		t.Errorf("frame type = %d, want text", typ)
	}
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("unmarshal %q: %v", data, err)
	}
	return f
}

func TestHealth(t *testing.T) {
	s, _ := startTestServer(t)

	resp, err := http.Get("http://" + s.Addr() + "/health")
	if err != nil {
		t.Fatalf("GET /health error = %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || strings.TrimSpace(string(body)) != `{"status":"ok"}` {
		t.Errorf("GET /health = %d %q", resp.StatusCode, body)
	}
}

func TestWebSocket_ReceivesOutputInOrder(t *testing.T) {
	s, bc := startTestServer(t)
	conn := dial(t, s)
	waitSubscribers(t, bc, 1)

	bc.Publish(broadcast.Message{Project: "alpha", Stream: "stdout", Data: "one\n"})
	bc.Publish(broadcast.Message{Project: "bravo", Stream: "stderr", Data: "two\n"})

	if f := readFrame(t, conn); f.Project != "alpha" || f.Data != "one\n" {
		t.Errorf("first frame = %+v", f)
	}
	if f := readFrame(t, conn); f.Project != "bravo" || f.Data != "two\n" {
		t.Errorf("second frame = %+v", f)
	}
}

func TestWebSocket_SkipsLifecycleMessages(t *testing.T) {
	s, bc := startTestServer(t)
	conn := dial(t, s)
	waitSubscribers(t, bc, 1)

	code := 0
	bc.Publish(broadcast.Message{Kind: broadcast.KindStarted, Project: "alpha", PID: 7})
	bc.Publish(broadcast.Message{Kind: broadcast.KindExited, Project: "alpha", PID: 7, ExitCode: &code})
	bc.Publish(broadcast.Message{Kind: broadcast.KindOutput, Project: "alpha", Data: "after\n"})

	if f := readFrame(t, conn); f.Data != "after\n" {
		t.Errorf("first frame = %+v, want only output", f)
	}
}

func TestWebSocket_FanOut(t *testing.T) {
	s, bc := startTestServer(t)
	a := dial(t, s)
	b := dial(t, s)
	waitSubscribers(t, bc, 2)

	bc.Publish(broadcast.Message{Project: "alpha", Data: "hi"})

	for _, conn := range []*websocket.Conn{a, b} {
		if f := readFrame(t, conn); f.Data != "hi" {
			t.Errorf("frame = %+v", f)
		}
	}
}

func TestWebSocket_CloseUnsubscribes(t *testing.T) {
	s, bc := startTestServer(t)
	conn := dial(t, s)
	waitSubscribers(t, bc, 1)

	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()
	waitSubscribers(t, bc, 0)
}

func TestStop_ClosesClients(t *testing.T) {
	s, bc := startTestServer(t)
	conn := dial(t, s)
	waitSubscribers(t, bc, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("read succeeded after Stop()")
	}
	if bc.Count() != 0 {
		t.Errorf("subscribers = %d after Stop()", bc.Count())
	}
}

func TestStop_RefusesLateUpgrades(t *testing.T) {
	logging.SetupTest(io.Discard)
	bc := broadcast.New(16)
	s := New("127.0.0.1:0", bc)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	// An upgrade that lands after Stop must not register a subscriber.
	hs := httptest.NewServer(s.Handler())
	defer hs.Close()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(hs.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("read succeeded on a refused connection")
	}
	if bc.Count() != 0 {
		t.Errorf("subscribers = %d after a refused upgrade", bc.Count())
	}
}
