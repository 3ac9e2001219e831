// Package daemon provides the rig daemon server and IPC protocol.
package daemon

import (
	"time"

	"github.com/tessro/rig/internal/envfile"
	"github.com/tessro/rig/internal/history"
	"github.com/tessro/rig/internal/routes"
)

// MessageType identifies the type of IPC message.
type MessageType string

const (
	// Server management
	MsgPing     MessageType = "ping"
	MsgShutdown MessageType = "shutdown"

	// Process control
	MsgStart       MessageType = "start"
	MsgStop        MessageType = "stop"
	MsgStatus      MessageType = "status"
	MsgProcessList MessageType = "process.list"

	// Project management
	MsgProjectCreate    MessageType = "project.create"
	MsgProjectRemove    MessageType = "project.remove"
	MsgProjectList      MessageType = "project.list"
	MsgProjectFiles     MessageType = "project.files"
	MsgProjectConcept   MessageType = "project.concept"
	MsgProjectRoutes    MessageType = "project.routes"
	MsgProjectInstall   MessageType = "project.install"
	MsgProjectUninstall MessageType = "project.uninstall"

	// Environment
	MsgEnvGet MessageType = "env.get"
	MsgEnvSet MessageType = "env.set"

	// Run history
	MsgHistoryList MessageType = "history.list"

	// Output streaming
	MsgAttach MessageType = "attach" // Subscribe to process output
	MsgDetach MessageType = "detach" // Unsubscribe
)

// ErrorCode classifies a failed response so callers can tell error kinds
// apart without parsing messages.
type ErrorCode string

const (
	CodeValidation     ErrorCode = "validation"
	CodeNotFound       ErrorCode = "not_found"
	CodeAlreadyExists  ErrorCode = "already_exists"
	CodeAlreadyRunning ErrorCode = "already_running"
	CodeNotRunning     ErrorCode = "not_running"
	CodeSpawnFailure   ErrorCode = "spawn_failure"
	CodeIOFailure      ErrorCode = "io_failure"
	CodeInternal       ErrorCode = "internal"
)

// Request is the envelope for all IPC requests.
type Request struct {
	Type    MessageType `json:"type"`
	ID      string      `json:"id,omitempty"`      // Optional request ID for correlation
	Payload any         `json:"payload,omitempty"` // Type-specific payload
}

// Response is the envelope for all IPC responses.
type Response struct {
	Type    MessageType `json:"type"`
	ID      string      `json:"id,omitempty"` // Correlates with request ID
	Success bool        `json:"success"`
	Error   string      `json:"error,omitempty"`
	Code    ErrorCode   `json:"code,omitempty"`
	Payload any         `json:"payload,omitempty"` // Type-specific payload

	// AfterWrite runs once the response has been written to the client.
	AfterWrite func() `json:"-"`
}

// PingResponse is the payload for ping responses.
type PingResponse struct {
	Version   string    `json:"version"`
	Uptime    string    `json:"uptime"`
	StartedAt time.Time `json:"started_at"`
}

// ProjectRequest names a single project. Used by start, stop, status and
// most project.* messages.
type ProjectRequest struct {
	Project string `json:"project"`
}

// StartResponse is the payload for start responses.
type StartResponse struct {
	Message string `json:"message"`
	PID     int    `json:"pid"`
}

// StopResponse is the payload for stop responses.
type StopResponse struct {
	Message string `json:"message"`
}

// StatusResponse is the payload for status responses.
type StatusResponse struct {
	Status string `json:"status"` // running or stopped
}

// ProcessInfo describes one project's process state.
type ProcessInfo struct {
	Project   string     `json:"project"`
	Status    string     `json:"status"`
	PID       int        `json:"pid,omitempty"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	Command   []string   `json:"command,omitempty"`
}

// ProcessListResponse is the payload for process.list responses.
type ProcessListResponse struct {
	Processes []ProcessInfo `json:"processes"`
}

// MessageResponse carries a human-readable confirmation.
type MessageResponse struct {
	Message string `json:"message"`
}

// ProjectListResponse is the payload for project.list responses.
type ProjectListResponse struct {
	Projects []ProcessInfo `json:"projects"`
}

// ProjectFilesResponse is the payload for project.files responses.
type ProjectFilesResponse struct {
	Files []string `json:"files"`
}

// ConceptRequest names a concept within a project.
type ConceptRequest struct {
	Project string `json:"project"`
	Concept string `json:"concept"`
}

// ConceptResponse is the payload for project.concept responses.
type ConceptResponse struct {
	Content string `json:"content"`
}

// RoutesResponse is the payload for project.routes responses.
type RoutesResponse struct {
	Routes []routes.Route `json:"routes"`
}

// InstallResponse is the payload for project.install responses.
type InstallResponse struct {
	Message string `json:"message"`
	Output  string `json:"output"`
}

// EnvResponse is the payload for env.get responses.
type EnvResponse struct {
	Env *envfile.Env `json:"env"`
}

// EnvSetRequest is the payload for env.set requests.
type EnvSetRequest struct {
	Project string       `json:"project"`
	Env     *envfile.Env `json:"env"`
}

// HistoryListRequest is the payload for history.list requests.
type HistoryListRequest struct {
	Project string `json:"project,omitempty"` // Empty lists all projects
	Limit   int    `json:"limit,omitempty"`
}

// HistoryListResponse is the payload for history.list responses.
type HistoryListResponse struct {
	Runs []history.Run `json:"runs"`
}

// AttachRequest is the payload for attach requests.
type AttachRequest struct {
	Projects []string `json:"projects,omitempty"` // Filter: empty means all projects
}

// Stream event types.
const (
	EventOutput  = "output"
	EventStarted = "started"
	EventStopped = "stopped"
	EventExited  = "exited"
)

// StreamEvent is sent to attached clients.
type StreamEvent struct {
	Type     string    `json:"type"`
	Project  string    `json:"project"`
	Stream   string    `json:"stream,omitempty"` // stdout or stderr, for output events
	Data     string    `json:"data,omitempty"`
	PID      int       `json:"pid,omitempty"`
	ExitCode *int      `json:"exit_code,omitempty"`
	Time     time.Time `json:"time"`
}
