package supervisor

import (
	"context"
	"fmt"

	"github.com/tessro/rig/internal/daemon"
)

func (s *Supervisor) handleEnvGet(ctx context.Context, req *daemon.Request) *daemon.Response {
	r, resp := decodeRequest[daemon.ProjectRequest](req)
	if resp != nil {
		return resp
	}
	env, err := s.EnvGet(r.Project)
	if err != nil {
		return failure(req, err)
	}
	return successResponse(req, daemon.EnvResponse{Env: env})
}

func (s *Supervisor) handleEnvSet(ctx context.Context, req *daemon.Request) *daemon.Response {
	r, resp := decodeRequest[daemon.EnvSetRequest](req)
	if resp != nil {
		return resp
	}
	if err := s.EnvSet(r.Project, r.Env); err != nil {
		return failure(req, err)
	}
	return successResponse(req, daemon.MessageResponse{
		Message: fmt.Sprintf("Environment saved for %s", r.Project),
	})
}

func (s *Supervisor) handleHistoryList(ctx context.Context, req *daemon.Request) *daemon.Response {
	r, resp := decodeRequest[daemon.HistoryListRequest](req)
	if resp != nil {
		return resp
	}
	runs, err := s.History(ctx, r.Project, r.Limit)
	if err != nil {
		return failure(req, err)
	}
	return successResponse(req, daemon.HistoryListResponse{Runs: runs})
}
