// Package supervisor provides the daemon request handler and the process
// supervision logic behind it.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tessro/rig/internal/broadcast"
	"github.com/tessro/rig/internal/config"
	"github.com/tessro/rig/internal/daemon"
	"github.com/tessro/rig/internal/envfile"
	"github.com/tessro/rig/internal/event"
	"github.com/tessro/rig/internal/history"
	"github.com/tessro/rig/internal/logging"
	"github.com/tessro/rig/internal/process"
	"github.com/tessro/rig/internal/project"
	"github.com/tessro/rig/internal/registry"
	"github.com/tessro/rig/internal/version"
)

// Version is the supervisor/daemon version.
var Version = version.Resolved()

var (
	ErrAlreadyRunning = errors.New("project is already running")
	ErrNotRunning     = errors.New("project is not running")
	ErrShuttingDown   = errors.New("supervisor is shutting down")
)

// Status is a project's process state.
type Status string

const (
	StatusRunning Status = "running"
	StatusStopped Status = "stopped"
)

// Recorder persists process runs. *history.Store implements it.
type Recorder interface {
	RecordStart(ctx context.Context, project string, pid int, at time.Time) (string, error)
	RecordExit(ctx context.Context, id string, at time.Time, exitCode int, reason history.Reason) error
	List(ctx context.Context, project string, limit int) ([]history.Run, error)
}

// Options configures a Supervisor.
type Options struct {
	// StartCommand runs when a project has no manifest command.
	StartCommand []string
	// InstallCommand installs a project's dependencies.
	InstallCommand []string
	// KillTimeout is the SIGTERM to SIGKILL grace period. Zero never escalates.
	KillTimeout time.Duration
	// Recorder stores run history. Nil disables history.
	Recorder Recorder
}

// StartResult is returned by Start.
type StartResult struct {
	Message string
	PID     int
}

// StopResult is returned by Stop.
type StopResult struct {
	Message string
}

// ProjectState describes one project and its process.
type ProjectState struct {
	Name      string
	Status    Status
	PID       int
	StartedAt time.Time
	Command   []string
}

// inboxMsg carries one handle event to the dispatch loop.
type inboxMsg struct {
	handle *process.Handle
	event  process.Event
}

// run is the supervisor's bookkeeping for one live handle.
type run struct {
	id          string // history id, empty when not recorded
	killTimeout time.Duration
	reason      history.Reason // set when the supervisor ends the run
}

// Supervisor owns the process registry and the output broadcaster, and
// implements daemon.Handler.
type Supervisor struct {
	store       *project.Store
	registry    *registry.Registry
	broadcaster *broadcast.Broadcaster
	opts        Options
	startedAt   time.Time
	log         *slog.Logger

	lifecycle event.Emitter[Lifecycle]

	inbox      chan inboxMsg
	quit       chan struct{}
	loopDone   chan struct{}
	forwarders sync.WaitGroup // Add only under mu while not closing

	shutdownCh chan struct{} // Closed to ask the daemon to shut down
	shutdownMu sync.Mutex    // Protects closing shutdownCh exactly once

	mu sync.RWMutex
	// +checklocks:mu
	runs map[*process.Handle]*run
	// +checklocks:mu
	active map[*process.Handle]struct{} // Forwarding until drained
	// +checklocks:mu
	closing bool
}

// New creates a Supervisor and starts its dispatch loop.
func New(store *project.Store, reg *registry.Registry, bc *broadcast.Broadcaster, opts Options) *Supervisor {
	if len(opts.StartCommand) == 0 {
		opts.StartCommand = config.DefaultStartCommand()
	}
	if len(opts.InstallCommand) == 0 {
		opts.InstallCommand = config.DefaultInstallCommand()
	}

	s := &Supervisor{
		store:       store,
		registry:    reg,
		broadcaster: bc,
		opts:        opts,
		startedAt:   time.Now(),
		log:         slog.With("component", "supervisor"),
		inbox:       make(chan inboxMsg, broadcast.DefaultBuffer),
		quit:        make(chan struct{}),
		loopDone:    make(chan struct{}),
		shutdownCh:  make(chan struct{}),
		runs:        make(map[*process.Handle]*run),
		active:      make(map[*process.Handle]struct{}),
	}

	s.lifecycle.OnEvent(s.publishLifecycle)

	go s.dispatch()
	return s
}

// Registry returns the process registry.
func (s *Supervisor) Registry() *registry.Registry { return s.registry }

// Broadcaster returns the output broadcaster.
func (s *Supervisor) Broadcaster() *broadcast.Broadcaster { return s.broadcaster }

// Store returns the project store.
func (s *Supervisor) Store() *project.Store { return s.store }

// ShutdownCh is closed when a client requests daemon shutdown.
func (s *Supervisor) ShutdownCh() <-chan struct{} { return s.shutdownCh }

// OnLifecycle registers a lifecycle handler and returns its cancel function.
func (s *Supervisor) OnLifecycle(handler func(Lifecycle)) (cancel func()) {
	return s.lifecycle.OnEvent(handler)
}

// checkProject validates name and confirms its directory exists.
func (s *Supervisor) checkProject(name string) error {
	if err := config.ValidateProjectName(name); err != nil {
		return err
	}
	return s.store.Check(name)
}

// Start launches the project's development process.
func (s *Supervisor) Start(ctx context.Context, id string) (StartResult, error) {
	if err := s.checkProject(id); err != nil {
		return StartResult{}, err
	}

	unlock := s.registry.Lock(id)
	defer unlock()

	s.mu.RLock()
	closing := s.closing
	s.mu.RUnlock()
	if closing {
		return StartResult{}, ErrShuttingDown
	}

	if s.registry.Has(id) {
		return StartResult{}, fmt.Errorf("%w: %s", ErrAlreadyRunning, id)
	}

	dir := s.store.Path(id)
	manifest, err := project.LoadManifest(dir)
	if err != nil {
		return StartResult{}, process.NewSpawnError(id, nil, err)
	}
	argv, err := project.ResolveCommand(dir, manifest, s.opts.StartCommand)
	if err != nil {
		return StartResult{}, process.NewSpawnError(id, argv, err)
	}
	env, err := buildEnv(dir, manifest)
	if err != nil {
		return StartResult{}, process.NewSpawnError(id, argv, err)
	}

	h, err := process.Spawn(process.Spec{
		Project: id,
		Dir:     dir,
		Argv:    argv,
		Env:     env,
	})
	if err != nil {
		return StartResult{}, err
	}

	if err := s.registry.Put(id, h); err != nil {
		// Unreachable while the project lock is held.
		_ = h.Kill()
		go func() {
			for range h.Events() {
			}
		}()
		return StartResult{}, fmt.Errorf("%w: %s", ErrAlreadyRunning, id)
	}

	r := &run{killTimeout: s.opts.KillTimeout}
	if manifest != nil && manifest.KillTimeout > 0 {
		r.killTimeout = manifest.KillTimeout
	}
	if s.opts.Recorder != nil {
		runID, err := s.opts.Recorder.RecordStart(ctx, id, h.PID(), h.StartedAt())
		if err != nil {
			s.log.Warn("record run start failed", "project", id, "error", err)
		}
		r.id = runID
	}

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		s.abandon(h, r)
		return StartResult{}, ErrShuttingDown
	}
	s.runs[h] = r
	s.active[h] = struct{}{}
	s.forwarders.Add(1)
	s.mu.Unlock()

	s.log.Info("process started", "project", id, "pid", h.PID(), "command", argv)
	// Published before forwarding begins so started precedes any output.
	s.lifecycle.Emit(Lifecycle{
		Kind:    LifecycleStarted,
		Project: id,
		PID:     h.PID(),
		Time:    h.StartedAt(),
	})

	go s.forward(h)

	return StartResult{
		Message: fmt.Sprintf("Project %s is running.", id),
		PID:     h.PID(),
	}, nil
}

// Stop terminates the project's process. The registry entry is removed
// immediately, without waiting for the process to exit.
func (s *Supervisor) Stop(ctx context.Context, id string) (StopResult, error) {
	if err := s.checkProject(id); err != nil {
		return StopResult{}, err
	}

	unlock := s.registry.Lock(id)
	defer unlock()

	if err := s.stopLocked(id, history.ReasonStopped); err != nil {
		return StopResult{}, err
	}
	return StopResult{Message: fmt.Sprintf("Project %s stopped", id)}, nil
}

// abandon kills a process that started while shutdown began.
func (s *Supervisor) abandon(h *process.Handle, r *run) {
	s.registry.RemoveIf(h.Project(), h)
	_ = h.Kill()
	for range h.Events() {
	}
	if r.id != "" {
		if ev, ok := h.ExitEvent(); ok {
			_ = s.opts.Recorder.RecordExit(context.Background(), r.id, ev.Time, ev.ExitCode, history.ReasonShutdown)
		}
	}
}

// stopLocked signals the process and drops its registry entry. The caller
// holds the project lock.
func (s *Supervisor) stopLocked(id string, reason history.Reason) error {
	h, ok := s.registry.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRunning, id)
	}

	timeout := s.opts.KillTimeout
	s.mu.Lock()
	if r := s.runs[h]; r != nil {
		r.reason = reason
		timeout = r.killTimeout
	}
	s.mu.Unlock()

	if err := h.Terminate(); err != nil {
		return fmt.Errorf("stop %s: %w", id, err)
	}
	if timeout > 0 {
		go func() {
			defer logging.LogPanic("kill-after", nil)
			h.KillAfter(timeout)
		}()
	}

	s.registry.RemoveIf(id, h)

	s.log.Info("process stopped", "project", id, "pid", h.PID(), "reason", reason)
	s.lifecycle.Emit(Lifecycle{
		Kind:    LifecycleStopped,
		Project: id,
		PID:     h.PID(),
		Time:    time.Now(),
	})
	return nil
}

// StopRemoved stops a project whose directory has disappeared. It is a
// no-op if the project is not running.
func (s *Supervisor) StopRemoved(id string) {
	unlock := s.registry.Lock(id)
	defer unlock()

	if !s.registry.Has(id) {
		return
	}
	if s.store.Exists(id) {
		// Recreated before we got here.
		return
	}
	if err := s.stopLocked(id, history.ReasonStopped); err != nil && !errors.Is(err, ErrNotRunning) {
		s.log.Warn("auto-stop failed", "project", id, "error", err)
		return
	}
	s.log.Info("project directory removed, process stopped", "project", id)
}

// Status reports whether the project's process is running.
func (s *Supervisor) Status(ctx context.Context, id string) (Status, error) {
	if err := s.checkProject(id); err != nil {
		return "", err
	}

	unlock := s.registry.Lock(id)
	defer unlock()

	if s.registry.Has(id) {
		return StatusRunning, nil
	}
	return StatusStopped, nil
}

// Processes returns the state of every running process, sorted by project.
func (s *Supervisor) Processes() []ProjectState {
	ids := s.registry.List()
	out := make([]ProjectState, 0, len(ids))
	for _, id := range ids {
		if h, ok := s.registry.Get(id); ok {
			out = append(out, runningState(id, h))
		}
	}
	return out
}

// List returns every project with its process state.
func (s *Supervisor) List() ([]ProjectState, error) {
	names, err := s.store.List()
	if err != nil {
		return nil, err
	}
	out := make([]ProjectState, 0, len(names))
	for _, name := range names {
		if h, ok := s.registry.Get(name); ok {
			out = append(out, runningState(name, h))
			continue
		}
		out = append(out, ProjectState{Name: name, Status: StatusStopped})
	}
	return out, nil
}

func runningState(id string, h *process.Handle) ProjectState {
	return ProjectState{
		Name:      id,
		Status:    StatusRunning,
		PID:       h.PID(),
		StartedAt: h.StartedAt(),
		Command:   h.Argv(),
	}
}

// EnvGet reads the project's environment file.
func (s *Supervisor) EnvGet(id string) (*envfile.Env, error) {
	if err := s.checkProject(id); err != nil {
		return nil, err
	}
	return envfile.Read(filepath.Join(s.store.Path(id), envfile.FileName))
}

// EnvSet replaces the project's environment file. Changes apply the next
// time the project starts.
func (s *Supervisor) EnvSet(id string, env *envfile.Env) error {
	if err := s.checkProject(id); err != nil {
		return err
	}
	if env == nil {
		env = envfile.New()
	}
	for _, key := range env.Keys() {
		if err := config.ValidateEnvKey(key); err != nil {
			return err
		}
		value, _ := env.Get(key)
		if err := config.ValidateEnvValue(key, value); err != nil {
			return err
		}
	}
	return envfile.Write(filepath.Join(s.store.Path(id), envfile.FileName), env)
}

// History returns recorded runs, newest first. An empty project lists all.
func (s *Supervisor) History(ctx context.Context, id string, limit int) ([]history.Run, error) {
	if id != "" {
		if err := config.ValidateProjectName(id); err != nil {
			return nil, err
		}
	}
	if s.opts.Recorder == nil {
		return []history.Run{}, nil
	}
	return s.opts.Recorder.List(ctx, id, limit)
}

// buildEnv layers the daemon environment, the manifest [env] table and the
// project's .env file, later layers winning.
func buildEnv(dir string, m *project.Manifest) ([]string, error) {
	merged := envfile.New()
	for _, kv := range os.Environ() {
		if k, v, ok := cutEnv(kv); ok {
			merged.Set(k, v)
		}
	}
	if m != nil && m.Env != nil {
		for _, k := range m.Env.Keys() {
			v, _ := m.Env.Get(k)
			merged.Set(k, v)
		}
	}

	dotenv, err := envfile.Read(filepath.Join(dir, envfile.FileName))
	switch {
	case errors.Is(err, envfile.ErrNotFound):
	case err != nil:
		return nil, err
	default:
		for _, k := range dotenv.Keys() {
			v, _ := dotenv.Get(k)
			merged.Set(k, v)
		}
	}
	return merged.Environ(), nil
}

func cutEnv(kv string) (string, string, bool) {
	for i := 0; i < len(kv); i++ {
		if kv[i] == '=' {
			if i == 0 {
				return "", "", false
			}
			return kv[:i], kv[i+1:], true
		}
	}
	return "", "", false
}

// forward moves one handle's events into the dispatch loop.
func (s *Supervisor) forward(h *process.Handle) {
	defer s.forwarders.Done()
	defer logging.LogPanic("supervisor-forward", nil)
	defer func() {
		s.mu.Lock()
		delete(s.active, h)
		s.mu.Unlock()
	}()

	for ev := range h.Events() {
		s.inbox <- inboxMsg{handle: h, event: ev}
	}
}

// dispatch is the single consumer of handle events.
func (s *Supervisor) dispatch() {
	defer close(s.loopDone)
	defer logging.LogPanic("supervisor-dispatch", nil)

	for {
		select {
		case m := <-s.inbox:
			s.handleEvent(m)
		case <-s.quit:
			for {
				select {
				case m := <-s.inbox:
					s.handleEvent(m)
				default:
					return
				}
			}
		}
	}
}

func (s *Supervisor) handleEvent(m inboxMsg) {
	ev := m.event
	switch ev.Kind {
	case process.EventOutput:
		s.broadcaster.Publish(broadcast.Message{
			Kind:    broadcast.KindOutput,
			Project: ev.Project,
			Stream:  string(ev.Stream),
			Data:    string(ev.Data),
			Time:    ev.Time,
		})
	case process.EventExit:
		s.reconcileExit(m.handle, ev)
	}
}

// reconcileExit drops the registry entry if it still points at h and closes
// the run record.
func (s *Supervisor) reconcileExit(h *process.Handle, ev process.Event) {
	removed := s.registry.RemoveIf(ev.Project, h)

	s.mu.Lock()
	r := s.runs[h]
	delete(s.runs, h)
	s.mu.Unlock()

	reason := history.ReasonExited
	if r != nil && r.reason != "" {
		reason = r.reason
	}

	s.log.Info("process exited",
		"project", ev.Project,
		"pid", h.PID(),
		"exit_code", ev.ExitCode,
		"signal", ev.Signal,
		"reason", reason,
	)

	if r != nil && r.id != "" && s.opts.Recorder != nil {
		if err := s.opts.Recorder.RecordExit(context.Background(), r.id, ev.Time, ev.ExitCode, reason); err != nil {
			s.log.Warn("record run exit failed", "project", ev.Project, "error", err)
		}
	}

	code := ev.ExitCode
	s.lifecycle.Emit(Lifecycle{
		Kind:     LifecycleExited,
		Project:  ev.Project,
		PID:      h.PID(),
		ExitCode: &code,
		Signal:   ev.Signal,
		Time:     ev.Time,
		Removed:  removed,
	})
}

// Shutdown stops every running process and the dispatch loop. Processes
// still alive when ctx ends are killed.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return nil
	}
	s.closing = true
	s.mu.Unlock()

	handles := make([]*process.Handle, 0, s.registry.Len())
	for _, id := range s.registry.List() {
		unlock := s.registry.Lock(id)
		if h, ok := s.registry.Get(id); ok {
			handles = append(handles, h)
			if err := s.stopLocked(id, history.ReasonShutdown); err != nil {
				s.log.Warn("stop during shutdown failed", "project", id, "error", err)
			}
		}
		unlock()
	}

	var killed int
	for _, h := range handles {
		select {
		case <-h.Done():
		case <-ctx.Done():
			if err := h.Kill(); err != nil {
				s.log.Warn("kill during shutdown failed", "project", h.Project(), "error", err)
			}
			killed++
			<-h.Done()
		}
	}

	// Exited leaders may have left descendants holding their pipes.
	s.mu.RLock()
	lingering := make([]*process.Handle, 0, len(s.active))
	for h := range s.active {
		lingering = append(lingering, h)
	}
	s.mu.RUnlock()
	for _, h := range lingering {
		if err := h.Terminate(); err != nil {
			s.log.Warn("terminate lingering group failed", "project", h.Project(), "error", err)
		}
		select {
		case <-h.Drained():
		case <-ctx.Done():
			_ = h.Kill()
			h.Close()
		}
	}

	s.forwarders.Wait()
	close(s.quit)
	<-s.loopDone

	s.log.Info("supervisor stopped", "processes", len(handles), "killed", killed)
	return nil
}

// requestShutdown asks the daemon to shut down.
func (s *Supervisor) requestShutdown() {
	s.shutdownMu.Lock()
	defer s.shutdownMu.Unlock()
	select {
	case <-s.shutdownCh:
	default:
		close(s.shutdownCh)
	}
}

// Handle processes IPC requests and returns responses.
// Implements daemon.Handler.
func (s *Supervisor) Handle(ctx context.Context, req *daemon.Request) *daemon.Response {
	s.log.Debug("handling request", "type", req.Type)
	switch req.Type {
	// Server management
	case daemon.MsgPing:
		return s.handlePing(ctx, req)
	case daemon.MsgShutdown:
		return s.handleShutdown(ctx, req)

	// Process control
	case daemon.MsgStart:
		return s.handleStart(ctx, req)
	case daemon.MsgStop:
		return s.handleStop(ctx, req)
	case daemon.MsgStatus:
		return s.handleStatus(ctx, req)
	case daemon.MsgProcessList:
		return s.handleProcessList(ctx, req)

	// Project management
	case daemon.MsgProjectCreate:
		return s.handleProjectCreate(ctx, req)
	case daemon.MsgProjectRemove:
		return s.handleProjectRemove(ctx, req)
	case daemon.MsgProjectList:
		return s.handleProjectList(ctx, req)
	case daemon.MsgProjectFiles:
		return s.handleProjectFiles(ctx, req)
	case daemon.MsgProjectConcept:
		return s.handleProjectConcept(ctx, req)
	case daemon.MsgProjectRoutes:
		return s.handleProjectRoutes(ctx, req)
	case daemon.MsgProjectInstall:
		return s.handleProjectInstall(ctx, req)
	case daemon.MsgProjectUninstall:
		return s.handleProjectUninstall(ctx, req)

	// Environment
	case daemon.MsgEnvGet:
		return s.handleEnvGet(ctx, req)
	case daemon.MsgEnvSet:
		return s.handleEnvSet(ctx, req)

	// History
	case daemon.MsgHistoryList:
		return s.handleHistoryList(ctx, req)

	// Streaming
	case daemon.MsgAttach:
		return s.handleAttach(ctx, req)
	case daemon.MsgDetach:
		return s.handleDetach(ctx, req)

	default:
		return errorResponse(req, daemon.CodeValidation, "unknown message type: "+string(req.Type))
	}
}
