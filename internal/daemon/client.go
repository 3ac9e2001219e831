package daemon

import (
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tessro/rig/internal/envfile"
	"github.com/tessro/rig/internal/history"
	"github.com/tessro/rig/internal/paths"
	"github.com/tessro/rig/internal/routes"
)

// Client connects to the rig daemon over Unix socket.
type Client struct {
	socketPath string

	mu sync.Mutex
	// +checklocks:mu
	conn net.Conn
	// +checklocks:mu
	encoder *json.Encoder
	// +checklocks:mu
	decoder *json.Decoder

	// ioMu serializes request/response cycles on the main connection.
	// Must be acquired AFTER mu if both are needed.
	ioMu sync.Mutex

	reqID atomic.Uint64

	// Event streaming via dedicated connection
	eventMu sync.Mutex
	// +checklocks:eventMu
	eventConn net.Conn
	// +checklocks:eventMu
	eventDone chan struct{}
}

// NewClient creates a new daemon client.
func NewClient(socketPath string) *Client {
	if socketPath == "" {
		socketPath = paths.SocketPath()
	}
	return &Client{
		socketPath: socketPath,
	}
}

// ConnectTimeout is the default timeout for connecting to the daemon.
const ConnectTimeout = 5 * time.Second

// RequestTimeout is the default timeout for request/response operations.
// Installs can take a while, so this is generous.
const RequestTimeout = 10 * time.Minute

// Connect establishes a connection to the daemon.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil
	}

	conn, err := net.DialTimeout("unix", c.socketPath, ConnectTimeout)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c.conn = conn
	c.encoder = json.NewEncoder(conn)
	c.decoder = json.NewDecoder(conn)
	return nil
}

// Close closes the connection to the daemon.
func (c *Client) Close() error {
	c.StopEventStream()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}

	err := c.conn.Close()
	c.conn = nil
	c.encoder = nil
	c.decoder = nil
	return err
}

// IsConnected returns true if the client is connected.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// SocketPath returns the socket path this client connects to.
func (c *Client) SocketPath() string {
	return c.socketPath
}

func (c *Client) nextID() string {
	return fmt.Sprintf("req-%d", c.reqID.Add(1))
}

// decodePayload decodes the response payload into the given type.
// If payload is nil, returns a pointer to the zero value of T.
func decodePayload[T any](payload any) (*T, error) {
	var result T
	if payload == nil {
		return &result, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return &result, nil
}

// Send sends a request and waits for the response.
// On connection errors, the connection is closed so that IsConnected() returns false.
func (c *Client) Send(req *Request) (*Response, error) {
	c.mu.Lock()
	if c.conn == nil {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	conn := c.conn
	encoder := c.encoder
	decoder := c.decoder
	c.mu.Unlock()

	if req.ID == "" {
		req.ID = c.nextID()
	}

	c.ioMu.Lock()
	defer c.ioMu.Unlock()

	if err := conn.SetDeadline(time.Now().Add(RequestTimeout)); err != nil {
		c.closeConn()
		return nil, fmt.Errorf("set deadline: %w", err)
	}
	defer func() { _ = conn.SetDeadline(time.Time{}) }()

	if err := encoder.Encode(req); err != nil {
		c.closeConn()
		return nil, fmt.Errorf("encode request: %w", err)
	}

	var resp Response
	if err := decoder.Decode(&resp); err != nil {
		c.closeConn()
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, ErrRequestTimeout
		}
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &resp, nil
}

// closeConn closes the main connection and clears connection state.
// Caller must NOT hold c.mu.
func (c *Client) closeConn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
		c.encoder = nil
		c.decoder = nil
	}
}

// call sends a request and decodes a successful payload into T.
func call[T any](c *Client, op string, typ MessageType, payload any) (*T, error) {
	resp, err := c.Send(&Request{Type: typ, Payload: payload})
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, responseError(op, resp)
	}
	return decodePayload[T](resp.Payload)
}

// Ping sends a ping request to check daemon connectivity.
func (c *Client) Ping() (*PingResponse, error) {
	return call[PingResponse](c, "ping", MsgPing, nil)
}

// Shutdown requests the daemon to shut down.
func (c *Client) Shutdown() error {
	_, err := call[struct{}](c, "shutdown", MsgShutdown, nil)
	return err
}

// Start launches a project's process.
func (c *Client) Start(project string) (*StartResponse, error) {
	return call[StartResponse](c, "start", MsgStart, ProjectRequest{Project: project})
}

// Stop terminates a project's process.
func (c *Client) Stop(project string) (*StopResponse, error) {
	return call[StopResponse](c, "stop", MsgStop, ProjectRequest{Project: project})
}

// Status reports whether a project's process is running.
func (c *Client) Status(project string) (*StatusResponse, error) {
	return call[StatusResponse](c, "status", MsgStatus, ProjectRequest{Project: project})
}

// ProcessList returns every running process.
func (c *Client) ProcessList() (*ProcessListResponse, error) {
	return call[ProcessListResponse](c, "process list", MsgProcessList, nil)
}

// ProjectCreate creates a project from the template.
func (c *Client) ProjectCreate(name string) (*MessageResponse, error) {
	return call[MessageResponse](c, "project create", MsgProjectCreate, ProjectRequest{Project: name})
}

// ProjectRemove stops (if running) and deletes a project.
func (c *Client) ProjectRemove(name string) (*MessageResponse, error) {
	return call[MessageResponse](c, "project remove", MsgProjectRemove, ProjectRequest{Project: name})
}

// ProjectList returns every project with its process state.
func (c *Client) ProjectList() (*ProjectListResponse, error) {
	return call[ProjectListResponse](c, "project list", MsgProjectList, nil)
}

// ProjectFiles lists a project's files.
func (c *Client) ProjectFiles(name string) ([]string, error) {
	resp, err := call[ProjectFilesResponse](c, "project files", MsgProjectFiles, ProjectRequest{Project: name})
	if err != nil {
		return nil, err
	}
	return resp.Files, nil
}

// ProjectConcept returns the source of one concept file.
func (c *Client) ProjectConcept(name, concept string) (string, error) {
	resp, err := call[ConceptResponse](c, "project concept", MsgProjectConcept, ConceptRequest{Project: name, Concept: concept})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// ProjectRoutes returns the routes declared by one concept.
func (c *Client) ProjectRoutes(name, concept string) ([]routes.Route, error) {
	resp, err := call[RoutesResponse](c, "project routes", MsgProjectRoutes, ConceptRequest{Project: name, Concept: concept})
	if err != nil {
		return nil, err
	}
	return resp.Routes, nil
}

// ProjectInstall installs a project's dependencies.
func (c *Client) ProjectInstall(name string) (*InstallResponse, error) {
	return call[InstallResponse](c, "project install", MsgProjectInstall, ProjectRequest{Project: name})
}

// ProjectUninstall removes a project's installed dependencies.
func (c *Client) ProjectUninstall(name string) (*MessageResponse, error) {
	return call[MessageResponse](c, "project uninstall", MsgProjectUninstall, ProjectRequest{Project: name})
}

// EnvGet returns a project's environment file.
func (c *Client) EnvGet(project string) (*envfile.Env, error) {
	resp, err := call[EnvResponse](c, "env get", MsgEnvGet, ProjectRequest{Project: project})
	if err != nil {
		return nil, err
	}
	if resp.Env == nil {
		return envfile.New(), nil
	}
	return resp.Env, nil
}

// EnvSet replaces a project's environment file.
func (c *Client) EnvSet(project string, env *envfile.Env) (*MessageResponse, error) {
	return call[MessageResponse](c, "env set", MsgEnvSet, EnvSetRequest{Project: project, Env: env})
}

// HistoryList returns recorded runs, newest first.
func (c *Client) HistoryList(project string, limit int) ([]history.Run, error) {
	resp, err := call[HistoryListResponse](c, "history list", MsgHistoryList, HistoryListRequest{Project: project, Limit: limit})
	if err != nil {
		return nil, err
	}
	return resp.Runs, nil
}

// EventResult contains either a stream event or an error.
type EventResult struct {
	Event *StreamEvent
	Err   error
}

// StreamEvents opens a dedicated connection for event streaming and returns a channel.
// Events are received on the channel until an error occurs or StopEventStream is called.
func (c *Client) StreamEvents(projects []string) (<-chan EventResult, error) {
	c.eventMu.Lock()
	defer c.eventMu.Unlock()

	if c.eventConn != nil {
		c.eventConn.Close()
		if c.eventDone != nil {
			close(c.eventDone)
		}
	}

	conn, err := net.DialTimeout("unix", c.socketPath, ConnectTimeout)
	if err != nil {
		return nil, fmt.Errorf("dial daemon for events: %w", err)
	}

	encoder := json.NewEncoder(conn)
	decoder := json.NewDecoder(conn)

	req := &Request{
		ID:      "event-stream",
		Type:    MsgAttach,
		Payload: AttachRequest{Projects: projects},
	}
	if err := encoder.Encode(req); err != nil {
		conn.Close()
		return nil, fmt.Errorf("encode attach request: %w", err)
	}

	var resp Response
	if err := decoder.Decode(&resp); err != nil {
		conn.Close()
		return nil, fmt.Errorf("decode attach response: %w", err)
	}
	if !resp.Success {
		conn.Close()
		return nil, responseError("attach", &resp)
	}

	c.eventConn = conn
	c.eventDone = make(chan struct{})
	done := c.eventDone

	events := make(chan EventResult, 16)

	go func() {
		defer close(events)
		defer conn.Close()

		for {
			var event StreamEvent
			if err := decoder.Decode(&event); err != nil {
				select {
				case <-done:
				case events <- EventResult{Err: fmt.Errorf("decode event: %w", err)}:
				}
				return
			}

			select {
			case <-done:
				return
			case events <- EventResult{Event: &event}:
			}
		}
	}()

	return events, nil
}

// StopEventStream stops the event streaming goroutine and closes the event connection.
func (c *Client) StopEventStream() {
	c.eventMu.Lock()
	defer c.eventMu.Unlock()

	if c.eventDone != nil {
		close(c.eventDone)
		c.eventDone = nil
	}
	if c.eventConn != nil {
		c.eventConn.Close()
		c.eventConn = nil
	}
}
