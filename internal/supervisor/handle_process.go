package supervisor

import (
	"context"

	"github.com/tessro/rig/internal/daemon"
)

func (s *Supervisor) handleStart(ctx context.Context, req *daemon.Request) *daemon.Response {
	r, resp := decodeRequest[daemon.ProjectRequest](req)
	if resp != nil {
		return resp
	}
	res, err := s.Start(ctx, r.Project)
	if err != nil {
		return failure(req, err)
	}
	return successResponse(req, daemon.StartResponse{Message: res.Message, PID: res.PID})
}

func (s *Supervisor) handleStop(ctx context.Context, req *daemon.Request) *daemon.Response {
	r, resp := decodeRequest[daemon.ProjectRequest](req)
	if resp != nil {
		return resp
	}
	res, err := s.Stop(ctx, r.Project)
	if err != nil {
		return failure(req, err)
	}
	return successResponse(req, daemon.StopResponse{Message: res.Message})
}

func (s *Supervisor) handleStatus(ctx context.Context, req *daemon.Request) *daemon.Response {
	r, resp := decodeRequest[daemon.ProjectRequest](req)
	if resp != nil {
		return resp
	}
	status, err := s.Status(ctx, r.Project)
	if err != nil {
		return failure(req, err)
	}
	return successResponse(req, daemon.StatusResponse{Status: string(status)})
}

func (s *Supervisor) handleProcessList(ctx context.Context, req *daemon.Request) *daemon.Response {
	return successResponse(req, daemon.ProcessListResponse{Processes: processInfos(s.Processes())})
}

// processInfos converts states to their wire form.
func processInfos(states []ProjectState) []daemon.ProcessInfo {
	out := make([]daemon.ProcessInfo, 0, len(states))
	for _, st := range states {
		info := daemon.ProcessInfo{
			Project: st.Name,
			Status:  string(st.Status),
			PID:     st.PID,
			Command: st.Command,
		}
		if !st.StartedAt.IsZero() {
			started := st.StartedAt
			info.StartedAt = &started
		}
		out = append(out, info)
	}
	return out
}
