// Package wsserver streams process output to websocket clients.
package wsserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tessro/rig/internal/broadcast"
	"github.com/tessro/rig/internal/logging"
)

// writeWait bounds a single frame write.
const writeWait = 10 * time.Second

// Frame is one text frame sent to a client.
type Frame struct {
	Project string `json:"project"`
	Data    string `json:"data"`
}

// Server accepts websocket subscribers on /ws. Every connection becomes a
// broadcaster subscriber until it closes.
type Server struct {
	addr        string
	broadcaster *broadcast.Broadcaster
	upgrader    websocket.Upgrader
	log         *slog.Logger

	mu sync.Mutex
	// +checklocks:mu
	httpSrv *http.Server
	// +checklocks:mu
	listener net.Listener
	// +checklocks:mu
	conns map[*websocket.Conn]struct{}
	// +checklocks:mu
	stopping bool

	wg sync.WaitGroup
}

// New creates a server for addr.
func New(addr string, bc *broadcast.Broadcaster) *Server {
	return &Server{
		addr:        addr,
		broadcaster: bc,
		upgrader: websocket.Upgrader{
			// Local tooling connects from arbitrary dev origins.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log:   slog.With("component", "wsserver"),
		conns: make(map[*websocket.Conn]struct{}),
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("GET /health", s.handleHealth)
	return mux
}

// Start binds the listen address and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.httpSrv != nil {
		return errors.New("websocket server already started")
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpSrv = srv
	s.listener = ln
	s.stopping = false

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer logging.LogPanic("wsserver-serve", nil)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("websocket server failed", "error", err)
		}
	}()

	s.log.Info("websocket server started", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or empty before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the HTTP server down and closes every websocket.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpSrv
	s.httpSrv = nil
	s.stopping = true
	conns := make([]*websocket.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	// Hijacked connections are not closed by Shutdown.
	for _, c := range conns {
		c.Close()
	}
	err := srv.Shutdown(ctx)
	s.wg.Wait()
	s.log.Info("websocket server stopped")
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	// Registration and wg.Add happen under mu so Stop either sees the
	// connection or refuses it.
	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	s.mu.Unlock()

	sub := s.broadcaster.Subscribe()
	s.log.Debug("websocket client connected", "remote", conn.RemoteAddr().String(), "subscriber", sub.ID())

	go s.serve(conn, sub)
}

// serve pumps broadcast messages to conn until either side closes.
func (s *Server) serve(conn *websocket.Conn, sub *broadcast.Subscriber) {
	defer s.wg.Done()
	defer logging.LogPanic("wsserver-conn", nil)
	defer func() {
		s.broadcaster.Unsubscribe(sub)
		conn.Close()
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		s.log.Debug("websocket client disconnected", "subscriber", sub.ID(), "dropped", sub.Dropped())
	}()

	// Clients send nothing; reading only detects the close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					s.log.Debug("websocket read failed", "error", err)
				}
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case msg, ok := <-sub.C():
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
					time.Now().Add(writeWait))
				return
			}
			if msg.Kind != broadcast.KindOutput {
				continue
			}
			data, err := json.Marshal(Frame{Project: msg.Project, Data: msg.Data})
			if err != nil {
				s.log.Error("marshal frame failed", "error", err)
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.log.Debug("websocket write failed", "error", err)
				return
			}
		}
	}
}
