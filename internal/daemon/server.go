package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/tessro/rig/internal/paths"
)

// contextKey is a type for context keys to avoid collisions.
type contextKey string

const (
	connKey   contextKey = "conn"
	serverKey contextKey = "server"
)

// Handler processes IPC requests and returns responses.
// This interface is implemented by the supervisor or a stub for testing.
type Handler interface {
	// Handle processes a request and returns a response.
	// The context carries the connection and server for attach/detach.
	Handle(ctx context.Context, req *Request) *Response
}

// ConnFromContext retrieves the client connection from the context.
func ConnFromContext(ctx context.Context) net.Conn {
	conn, _ := ctx.Value(connKey).(net.Conn)
	return conn
}

// ServerFromContext retrieves the server from the context.
func ServerFromContext(ctx context.Context) *Server {
	srv, _ := ctx.Value(serverKey).(*Server)
	return srv
}

// HandlerFunc is a function adapter for Handler.
type HandlerFunc func(ctx context.Context, req *Request) *Response

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, req *Request) *Response {
	return f(ctx, req)
}

// Server is the Unix socket RPC server for the rig daemon.
type Server struct {
	socketPath string
	handler    Handler
	listener   net.Listener // Set in Start before goroutine, closed in Stop

	mu sync.Mutex
	// +checklocks:mu
	conns map[net.Conn]*connWriter
	// +checklocks:mu
	attached map[net.Conn]*attachedClient
	// +checklocks:mu
	started bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// streamWriteTimeout bounds one streamed event write. A client that stops
// reading for longer is disconnected.
var streamWriteTimeout = 5 * time.Second

// connWriter serializes writes to one connection. Responses and streamed
// events share it so JSON lines never interleave.
type connWriter struct {
	mu   sync.Mutex
	conn net.Conn
	enc  *json.Encoder
}

func newConnWriter(conn net.Conn) *connWriter {
	return &connWriter{conn: conn, enc: json.NewEncoder(conn)}
}

func (w *connWriter) write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.enc.Encode(v)
}

// writeStream writes a streamed event under a deadline. On failure the
// connection is closed, since a partial line cannot be recovered.
func (w *connWriter) writeStream(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	err := w.enc.Encode(v)
	_ = w.conn.SetWriteDeadline(time.Time{})
	if err != nil {
		w.conn.Close()
	}
	return err
}

// attachedClient tracks a client subscribed to streaming events.
type attachedClient struct {
	projects []string // Filter: empty means all projects (immutable after creation)
	cleanup  func()
	w        *connWriter

	mu sync.Mutex
	// +checklocks:mu
	ready bool
	// +checklocks:mu
	pending []*StreamEvent
}

// maxPending bounds events held for a client whose attach response has not
// been written yet.
const maxPending = 256

// send writes event, or queues it until the attach response is out.
func (c *attachedClient) send(event *StreamEvent) error {
	c.mu.Lock()
	if !c.ready {
		if len(c.pending) < maxPending {
			c.pending = append(c.pending, event)
		}
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()
	return c.w.writeStream(event)
}

// markReady flushes queued events. Holding mu during the flush keeps queued
// events ahead of anything sent afterwards.
func (c *attachedClient) markReady() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ready {
		return
	}
	c.ready = true
	for _, event := range c.pending {
		if err := c.w.writeStream(event); err != nil {
			break
		}
	}
	c.pending = nil
}

func (c *attachedClient) wants(project string) bool {
	return len(c.projects) == 0 || slices.Contains(c.projects, project)
}

// NewServer creates a new daemon server.
func NewServer(socketPath string, handler Handler) *Server {
	if socketPath == "" {
		socketPath = paths.SocketPath()
	}
	return &Server{
		socketPath: socketPath,
		handler:    handler,
		conns:      make(map[net.Conn]*connWriter),
		attached:   make(map[net.Conn]*attachedClient),
		done:       make(chan struct{}),
	}
}

// SocketPath returns the socket path this server listens on.
func (s *Server) SocketPath() string {
	return s.socketPath
}

// Start begins listening on the Unix socket.
// Returns an error if the server is already running or cannot bind.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("server already started")
	}
	s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0700); err != nil {
		return fmt.Errorf("create socket directory: %w", err)
	}

	// Remove stale socket file if it exists
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale socket: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen on socket: %w", err)
	}

	// Owner only
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("set socket permissions: %w", err)
	}

	s.mu.Lock()
	s.listener = listener
	s.started = true
	s.mu.Unlock()

	slog.Info("daemon server started", "socket", s.socketPath)

	s.wg.Add(1)
	go s.acceptLoop()

	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				slog.Error("accept connection failed", "error", err)
				continue
			}
		}

		w := newConnWriter(conn)
		s.mu.Lock()
		s.conns[conn] = w
		connCount := len(s.conns)
		s.mu.Unlock()

		slog.Debug("client connected", "connections", connCount)

		s.wg.Add(1)
		go s.handleConnection(conn, w)
	}
}

// handleConnection processes requests from a single client.
func (s *Server) handleConnection(conn net.Conn, w *connWriter) {
	defer s.wg.Done()
	defer func() {
		s.Detach(conn)
		conn.Close()
		s.mu.Lock()
		delete(s.conns, conn)
		connCount := len(s.conns)
		s.mu.Unlock()
		slog.Debug("client disconnected", "connections", connCount)
	}()

	decoder := json.NewDecoder(conn)

	ctx := context.WithValue(context.Background(), connKey, conn)
	ctx = context.WithValue(ctx, serverKey, s)

	for {
		var req Request
		if err := decoder.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return
			}
			slog.Warn("decode request failed", "error", err)
			w.write(&Response{
				Success: false,
				Error:   fmt.Sprintf("decode request: %v", err),
				Code:    CodeValidation,
			})
			return
		}

		slog.Debug("request received", "type", req.Type, "id", req.ID)

		resp := s.handler.Handle(ctx, &req)
		if resp == nil {
			resp = &Response{
				Success: false,
				Error:   "handler returned nil response",
				Code:    CodeInternal,
			}
		}

		// Ensure response has correct correlation info
		if resp.Type == "" {
			resp.Type = req.Type
		}
		if resp.ID == "" {
			resp.ID = req.ID
		}

		if !resp.Success {
			slog.Warn("request failed", "type", req.Type, "code", resp.Code, "error", resp.Error)
		}

		err := w.write(resp)
		if resp.AfterWrite != nil {
			resp.AfterWrite()
		}
		if err != nil {
			slog.Debug("write response failed", "error", err)
			return
		}

		s.mu.Lock()
		client := s.attached[conn]
		s.mu.Unlock()
		if client != nil {
			client.markReady()
		}
	}
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	connCount := len(s.conns)
	s.mu.Unlock()

	slog.Info("daemon server stopping", "active_connections", connCount)

	close(s.done)

	if s.listener != nil {
		s.listener.Close()
	}

	s.mu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()

	os.Remove(s.socketPath)

	slog.Info("daemon server stopped")

	return nil
}

// Done is closed once Stop begins.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// Addr returns the listener address, or empty string if not started.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// Attach registers a connection for streaming events. cleanup, if non-nil,
// runs once when the connection detaches or disconnects. Attaching an
// already attached connection replaces its filter and runs the previous
// cleanup. Events are held back until the response to the current request
// has been written.
func (s *Server) Attach(conn net.Conn, projects []string, cleanup func()) {
	s.mu.Lock()
	w := s.conns[conn]
	if w == nil {
		s.mu.Unlock()
		return
	}
	prev := s.attached[conn]
	s.attached[conn] = &attachedClient{
		projects: slices.Clone(projects),
		cleanup:  cleanup,
		w:        w,
	}
	s.mu.Unlock()

	if prev != nil && prev.cleanup != nil {
		prev.cleanup()
	}
}

// Detach removes a connection from streaming events.
func (s *Server) Detach(conn net.Conn) {
	s.mu.Lock()
	client := s.attached[conn]
	delete(s.attached, conn)
	s.mu.Unlock()

	if client != nil && client.cleanup != nil {
		client.cleanup()
	}
}

// Send writes a stream event to one attached connection if its filter
// accepts the event's project. It reports whether the event was accepted.
func (s *Server) Send(conn net.Conn, event *StreamEvent) bool {
	s.mu.Lock()
	client := s.attached[conn]
	s.mu.Unlock()

	if client == nil || !client.wants(event.Project) {
		return false
	}
	if err := client.send(event); err != nil {
		slog.Debug("stream write failed", "error", err)
		return false
	}
	return true
}

// AttachedCount returns the number of attached streaming clients.
func (s *Server) AttachedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.attached)
}
