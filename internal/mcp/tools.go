package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/tessro/rig/internal/envfile"
)

// ProjectInput names one project.
type ProjectInput struct {
	Project string `json:"project" jsonschema:"Project name (directory under the projects root)"`
}

// ListProjectsInput takes no arguments.
type ListProjectsInput struct{}

// ProjectSummary is one row of list_projects.
type ProjectSummary struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	PID    int    `json:"pid,omitempty"`
}

// ListProjectsOutput defines output for list_projects.
type ListProjectsOutput struct {
	Success  bool             `json:"success"`
	Projects []ProjectSummary `json:"projects,omitempty"`
	Error    string           `json:"error,omitempty"`
	Code     string           `json:"code,omitempty"`
}

func (s *Server) handleListProjects(ctx context.Context, req *mcp.CallToolRequest, input ListProjectsInput) (*mcp.CallToolResult, ListProjectsOutput, error) {
	resp, err := s.daemon.ProjectList()
	if err != nil {
		msg, code := errorOutput(err)
		return nil, ListProjectsOutput{Error: msg, Code: code}, nil
	}
	out := ListProjectsOutput{Success: true, Projects: make([]ProjectSummary, 0, len(resp.Projects))}
	for _, p := range resp.Projects {
		out.Projects = append(out.Projects, ProjectSummary{Name: p.Project, Status: p.Status, PID: p.PID})
	}
	return nil, out, nil
}

// ProcessOutput defines output for start_project, stop_project and
// project_status.
type ProcessOutput struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Status  string `json:"status,omitempty"`
	PID     int    `json:"pid,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

func processError(err error) ProcessOutput {
	msg, code := errorOutput(err)
	return ProcessOutput{Error: msg, Code: code}
}

func (s *Server) handleStartProject(ctx context.Context, req *mcp.CallToolRequest, input ProjectInput) (*mcp.CallToolResult, ProcessOutput, error) {
	if input.Project == "" {
		return nil, ProcessOutput{Error: "project is required", Code: "validation"}, nil
	}
	resp, err := s.daemon.Start(input.Project)
	if err != nil {
		return nil, processError(err), nil
	}
	s.log.Info("project started", "project", input.Project, "pid", resp.PID)
	return nil, ProcessOutput{Success: true, Message: resp.Message, Status: "running", PID: resp.PID}, nil
}

func (s *Server) handleStopProject(ctx context.Context, req *mcp.CallToolRequest, input ProjectInput) (*mcp.CallToolResult, ProcessOutput, error) {
	if input.Project == "" {
		return nil, ProcessOutput{Error: "project is required", Code: "validation"}, nil
	}
	resp, err := s.daemon.Stop(input.Project)
	if err != nil {
		return nil, processError(err), nil
	}
	s.log.Info("project stopped", "project", input.Project)
	return nil, ProcessOutput{Success: true, Message: resp.Message, Status: "stopped"}, nil
}

func (s *Server) handleProjectStatus(ctx context.Context, req *mcp.CallToolRequest, input ProjectInput) (*mcp.CallToolResult, ProcessOutput, error) {
	if input.Project == "" {
		return nil, ProcessOutput{Error: "project is required", Code: "validation"}, nil
	}
	resp, err := s.daemon.Status(input.Project)
	if err != nil {
		return nil, processError(err), nil
	}
	return nil, ProcessOutput{Success: true, Status: resp.Status}, nil
}

// EnvVar is one KEY=value pair. Lists keep the file's order.
type EnvVar struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// EnvOutput defines output for get_env and set_env.
type EnvOutput struct {
	Success bool     `json:"success"`
	Vars    []EnvVar `json:"vars,omitempty"`
	Message string   `json:"message,omitempty"`
	Error   string   `json:"error,omitempty"`
	Code    string   `json:"code,omitempty"`
}

func (s *Server) handleGetEnv(ctx context.Context, req *mcp.CallToolRequest, input ProjectInput) (*mcp.CallToolResult, EnvOutput, error) {
	if input.Project == "" {
		return nil, EnvOutput{Error: "project is required", Code: "validation"}, nil
	}
	env, err := s.daemon.EnvGet(input.Project)
	if err != nil {
		msg, code := errorOutput(err)
		return nil, EnvOutput{Error: msg, Code: code}, nil
	}
	out := EnvOutput{Success: true, Vars: make([]EnvVar, 0, env.Len())}
	for _, k := range env.Keys() {
		v, _ := env.Get(k)
		out.Vars = append(out.Vars, EnvVar{Key: k, Value: v})
	}
	return nil, out, nil
}

// SetEnvInput defines input for set_env.
type SetEnvInput struct {
	Project string   `json:"project" jsonschema:"Project name"`
	Vars    []EnvVar `json:"vars" jsonschema:"Variables in file order. Replaces the whole file."`
}

func (s *Server) handleSetEnv(ctx context.Context, req *mcp.CallToolRequest, input SetEnvInput) (*mcp.CallToolResult, EnvOutput, error) {
	if input.Project == "" {
		return nil, EnvOutput{Error: "project is required", Code: "validation"}, nil
	}
	env := envfile.New()
	for _, v := range input.Vars {
		env.Set(v.Key, v.Value)
	}
	resp, err := s.daemon.EnvSet(input.Project, env)
	if err != nil {
		msg, code := errorOutput(err)
		return nil, EnvOutput{Error: msg, Code: code}, nil
	}
	return nil, EnvOutput{Success: true, Message: resp.Message}, nil
}
