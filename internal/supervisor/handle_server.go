package supervisor

import (
	"context"
	"time"

	"github.com/tessro/rig/internal/daemon"
)

// handlePing responds to ping requests.
func (s *Supervisor) handlePing(ctx context.Context, req *daemon.Request) *daemon.Response {
	return successResponse(req, daemon.PingResponse{
		Version:   Version,
		Uptime:    time.Since(s.startedAt).Round(time.Second).String(),
		StartedAt: s.startedAt,
	})
}

// handleShutdown initiates daemon shutdown. ShutdownCh closes only after the
// response is on the wire so the caller always sees success.
func (s *Supervisor) handleShutdown(ctx context.Context, req *daemon.Request) *daemon.Response {
	resp := successResponse(req, nil)
	resp.AfterWrite = s.requestShutdown
	return resp
}
