// Package mcp exposes rig's process control as Model Context Protocol tools.
//
// Every tool forwards to a running rig daemon; the MCP server holds no
// process state of its own.
package mcp

import (
	"context"
	"errors"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/tessro/rig/internal/daemon"
	"github.com/tessro/rig/internal/envfile"
)

// Daemon is the subset of the daemon client the tools use.
// *daemon.Client implements it.
type Daemon interface {
	ProjectList() (*daemon.ProjectListResponse, error)
	Start(project string) (*daemon.StartResponse, error)
	Stop(project string) (*daemon.StopResponse, error)
	Status(project string) (*daemon.StatusResponse, error)
	EnvGet(project string) (*envfile.Env, error)
	EnvSet(project string, env *envfile.Env) (*daemon.MessageResponse, error)
}

// Server wraps the MCP server with rig's tools.
type Server struct {
	mcpServer *mcp.Server
	daemon    Daemon
	log       *slog.Logger
}

// NewServer creates an MCP server whose tools call d.
func NewServer(version string, d Daemon) *Server {
	s := &Server{
		daemon: d,
		log:    slog.With("component", "mcp"),
	}
	s.mcpServer = mcp.NewServer(&mcp.Implementation{
		Name:    "rig",
		Version: version,
	}, nil)
	s.registerTools()
	return s
}

// Run serves MCP over stdio until ctx ends or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.log.Info("mcp server started")
	return s.mcpServer.Run(ctx, &mcp.StdioTransport{})
}

// Connect serves MCP over an arbitrary transport.
func (s *Server) Connect(ctx context.Context, t mcp.Transport) (*mcp.ServerSession, error) {
	return s.mcpServer.Connect(ctx, t, nil)
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_projects",
		Description: "List every rig project with its process status and PID.",
	}, s.handleListProjects)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "start_project",
		Description: "Start a project's server process. Fails if it is already running.",
	}, s.handleStartProject)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "stop_project",
		Description: "Stop a project's server process with SIGTERM.",
	}, s.handleStopProject)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "project_status",
		Description: "Report whether a project's process is running or stopped.",
	}, s.handleProjectStatus)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_env",
		Description: "Read a project's .env file as an ordered list of variables.",
	}, s.handleGetEnv)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "set_env",
		Description: "Replace a project's .env file. Takes effect on the next start.",
	}, s.handleSetEnv)
}

// errorOutput splits err into a message and the daemon's error code.
func errorOutput(err error) (string, string) {
	var serr *daemon.ServerError
	if errors.As(err, &serr) {
		return serr.Message, string(serr.Code)
	}
	return err.Error(), ""
}
