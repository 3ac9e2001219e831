package supervisor

import (
	"context"

	"github.com/tessro/rig/internal/broadcast"
	"github.com/tessro/rig/internal/daemon"
	"github.com/tessro/rig/internal/logging"
)

// handleAttach turns the connection into a broadcast subscriber. Output is
// pumped to the connection until it detaches or disconnects.
func (s *Supervisor) handleAttach(ctx context.Context, req *daemon.Request) *daemon.Response {
	r, resp := decodeRequest[daemon.AttachRequest](req)
	if resp != nil {
		return resp
	}

	conn := daemon.ConnFromContext(ctx)
	srv := daemon.ServerFromContext(ctx)
	if conn == nil || srv == nil {
		return errorResponse(req, daemon.CodeInternal, "internal error: missing connection context")
	}

	sub := s.broadcaster.Subscribe()
	srv.Attach(conn, r.Projects, func() { s.broadcaster.Unsubscribe(sub) })

	go func() {
		defer logging.LogPanic("attach-pump", nil)
		for msg := range sub.C() {
			srv.Send(conn, streamEvent(msg))
		}
		if n := sub.Dropped(); n > 0 {
			s.log.Debug("subscriber dropped messages", "subscriber", sub.ID(), "dropped", n)
		}
	}()

	s.log.Debug("client attached", "subscriber", sub.ID(), "projects", r.Projects)
	return successResponse(req, nil)
}

// handleDetach unsubscribes the connection.
func (s *Supervisor) handleDetach(ctx context.Context, req *daemon.Request) *daemon.Response {
	conn := daemon.ConnFromContext(ctx)
	srv := daemon.ServerFromContext(ctx)
	if conn == nil || srv == nil {
		return errorResponse(req, daemon.CodeInternal, "internal error: missing connection context")
	}
	srv.Detach(conn)
	return successResponse(req, nil)
}

func streamEvent(msg broadcast.Message) *daemon.StreamEvent {
	return &daemon.StreamEvent{
		Type:     msg.Kind.String(),
		Project:  msg.Project,
		Stream:   msg.Stream,
		Data:     msg.Data,
		PID:      msg.PID,
		ExitCode: msg.ExitCode,
		Time:     msg.Time,
	}
}
