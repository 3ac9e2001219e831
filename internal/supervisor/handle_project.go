package supervisor

import (
	"context"
	"fmt"
	"strings"

	"github.com/tessro/rig/internal/daemon"
)

func (s *Supervisor) handleProjectCreate(ctx context.Context, req *daemon.Request) *daemon.Response {
	r, resp := decodeRequest[daemon.ProjectRequest](req)
	if resp != nil {
		return resp
	}
	if err := s.CreateProject(r.Project); err != nil {
		return failure(req, err)
	}
	return successResponse(req, daemon.MessageResponse{
		Message: fmt.Sprintf("Project %s created", r.Project),
	})
}

func (s *Supervisor) handleProjectRemove(ctx context.Context, req *daemon.Request) *daemon.Response {
	r, resp := decodeRequest[daemon.ProjectRequest](req)
	if resp != nil {
		return resp
	}
	if err := s.RemoveProject(r.Project); err != nil {
		return failure(req, err)
	}
	return successResponse(req, daemon.MessageResponse{
		Message: fmt.Sprintf("Project %s removed", r.Project),
	})
}

func (s *Supervisor) handleProjectList(ctx context.Context, req *daemon.Request) *daemon.Response {
	states, err := s.List()
	if err != nil {
		return failure(req, err)
	}
	return successResponse(req, daemon.ProjectListResponse{Projects: processInfos(states)})
}

func (s *Supervisor) handleProjectFiles(ctx context.Context, req *daemon.Request) *daemon.Response {
	r, resp := decodeRequest[daemon.ProjectRequest](req)
	if resp != nil {
		return resp
	}
	files, err := s.ProjectFiles(r.Project)
	if err != nil {
		return failure(req, err)
	}
	return successResponse(req, daemon.ProjectFilesResponse{Files: files})
}

func (s *Supervisor) handleProjectConcept(ctx context.Context, req *daemon.Request) *daemon.Response {
	r, resp := decodeRequest[daemon.ConceptRequest](req)
	if resp != nil {
		return resp
	}
	content, err := s.Concept(r.Project, r.Concept)
	if err != nil {
		return failure(req, err)
	}
	return successResponse(req, daemon.ConceptResponse{Content: content})
}

func (s *Supervisor) handleProjectRoutes(ctx context.Context, req *daemon.Request) *daemon.Response {
	r, resp := decodeRequest[daemon.ConceptRequest](req)
	if resp != nil {
		return resp
	}
	rs, err := s.Routes(r.Project, r.Concept)
	if err != nil {
		return failure(req, err)
	}
	return successResponse(req, daemon.RoutesResponse{Routes: rs})
}

func (s *Supervisor) handleProjectInstall(ctx context.Context, req *daemon.Request) *daemon.Response {
	r, resp := decodeRequest[daemon.ProjectRequest](req)
	if resp != nil {
		return resp
	}
	out, err := s.Install(ctx, r.Project)
	if err != nil {
		msg := err.Error()
		if out = strings.TrimSpace(out); out != "" {
			msg += "\n" + out
		}
		return errorResponse(req, errorCode(err), msg)
	}
	return successResponse(req, daemon.InstallResponse{
		Message: fmt.Sprintf("Dependencies installed for %s", r.Project),
		Output:  out,
	})
}

func (s *Supervisor) handleProjectUninstall(ctx context.Context, req *daemon.Request) *daemon.Response {
	r, resp := decodeRequest[daemon.ProjectRequest](req)
	if resp != nil {
		return resp
	}
	if err := s.Uninstall(r.Project); err != nil {
		return failure(req, err)
	}
	return successResponse(req, daemon.MessageResponse{
		Message: fmt.Sprintf("Dependencies removed for %s", r.Project),
	})
}
