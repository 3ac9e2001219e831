// Package process owns a single supervised child process.
//
// A Handle spawns the command in its own process group, reads its stdout
// and stderr in dedicated goroutines, and delivers every chunk read as an
// Event on a channel. Exactly one exit event is sent once the process has
// been reaped, even if descendants still hold its pipes. The channel is
// closed after the exit event and after both pipes are drained.
package process

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/tessro/rig/internal/logging"
)

// Errors returned by process operations.
var (
	ErrSpawn      = errors.New("failed to spawn process")
	ErrEmptyArgv  = errors.New("command is empty")
	ErrNotStarted = errors.New("process not started")
)

// Stream identifies which pipe an output chunk came from.
type Stream string

const (
	Stdout Stream = "stdout"
	Stderr Stream = "stderr"
)

// EventKind distinguishes output from exit events.
type EventKind int

const (
	EventOutput EventKind = iota
	EventExit
)

func (k EventKind) String() string {
	switch k {
	case EventOutput:
		return "output"
	case EventExit:
		return "exit"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is emitted by a Handle.
type Event struct {
	Kind    EventKind
	Project string
	Stream  Stream
	Data    []byte
	Time    time.Time

	// Exit fields. ExitCode is -1 when the process was killed by a signal.
	ExitCode int
	Signal   string
	Err      error
}

// readBufSize is the maximum size of one output chunk.
const readBufSize = 32 * 1024

// eventBuffer is the capacity of a handle's event channel.
const eventBuffer = 64

// drainGrace is how long the exit event waits for output the process wrote
// just before it exited.
const drainGrace = 250 * time.Millisecond

// Spec describes the process to spawn.
type Spec struct {
	Project string
	Dir     string
	Argv    []string
	// Env is the complete environment. Nil inherits the daemon's environment.
	Env []string
}

// SpawnError reports a failure to create the process. It matches ErrSpawn
// with errors.Is and unwraps to the underlying cause.
type SpawnError struct {
	Project string
	Argv    []string
	Err     error
}

// NewSpawnError wraps err as a spawn failure for project.
func NewSpawnError(project string, argv []string, err error) *SpawnError {
	return &SpawnError{Project: project, Argv: argv, Err: err}
}

func (e *SpawnError) Error() string {
	if len(e.Argv) == 0 {
		return fmt.Sprintf("spawn %s: %v", e.Project, e.Err)
	}
	return fmt.Sprintf("spawn %s (%s): %v", e.Project, strings.Join(e.Argv, " "), e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

func (e *SpawnError) Is(target error) bool { return target == ErrSpawn }

// Handle is a running (or exited) child process.
type Handle struct {
	project   string
	argv      []string
	cmd       *exec.Cmd
	pid       int
	startedAt time.Time

	stdout *os.File
	stderr *os.File

	events  chan Event
	done    chan struct{}
	drained chan struct{}

	mu sync.Mutex
	// +checklocks:mu
	exit *Event
}

// Spawn starts the process described by spec. On failure it returns a
// *SpawnError and no goroutines are left running.
func Spawn(spec Spec) (*Handle, error) {
	if len(spec.Argv) == 0 || spec.Argv[0] == "" {
		return nil, NewSpawnError(spec.Project, spec.Argv, ErrEmptyArgv)
	}

	cmd := exec.Command(spec.Argv[0], spec.Argv[1:]...)
	cmd.Dir = spec.Dir
	cmd.Env = spec.Env
	cmd.Stdin = nil
	// Own process group so stop reaches children spawned by the start script.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, NewSpawnError(spec.Project, spec.Argv, fmt.Errorf("stdout pipe: %w", err))
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		closeFiles(stdoutR, stdoutW)
		return nil, NewSpawnError(spec.Project, spec.Argv, fmt.Errorf("stderr pipe: %w", err))
	}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	if err := cmd.Start(); err != nil {
		closeFiles(stdoutR, stdoutW, stderrR, stderrW)
		return nil, NewSpawnError(spec.Project, spec.Argv, err)
	}
	// The child has its own copies of the write ends.
	closeFiles(stdoutW, stderrW)

	h := &Handle{
		project:   spec.Project,
		argv:      append([]string(nil), spec.Argv...),
		cmd:       cmd,
		pid:       cmd.Process.Pid,
		startedAt: time.Now(),
		stdout:    stdoutR,
		stderr:    stderrR,
		events:    make(chan Event, eventBuffer),
		done:      make(chan struct{}),
		drained:   make(chan struct{}),
	}

	slog.Debug("process spawned",
		"component", "process",
		"project", h.project,
		"pid", h.pid,
		"argv", h.argv,
		"dir", spec.Dir,
	)

	var readers sync.WaitGroup
	readers.Add(2)
	go h.readLoop(&readers, stdoutR, Stdout)
	go h.readLoop(&readers, stderrR, Stderr)
	go h.wait(&readers)

	return h, nil
}

// Project returns the project identifier.
func (h *Handle) Project() string { return h.project }

// PID returns the process id.
func (h *Handle) PID() int { return h.pid }

// StartedAt returns when the process was spawned.
func (h *Handle) StartedAt() time.Time { return h.startedAt }

// Argv returns the command line.
func (h *Handle) Argv() []string { return append([]string(nil), h.argv...) }

// Events returns the event channel. It is closed after the exit event.
func (h *Handle) Events() <-chan Event { return h.events }

// Done is closed once the process has exited. Descendants may still be
// writing to its pipes.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Drained is closed once the exit event has been sent and both pipes have
// reached EOF or been closed.
func (h *Handle) Drained() <-chan struct{} { return h.drained }

// Close stops reading output. Pending reads end and the event channel closes
// once the exit event has been sent.
func (h *Handle) Close() {
	closeFiles(h.stdout, h.stderr)
}

// Exited reports whether the process has exited.
func (h *Handle) Exited() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// ExitEvent returns the exit event once the process has exited.
func (h *Handle) ExitEvent() (Event, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.exit == nil {
		return Event{}, false
	}
	return *h.exit, true
}

// Signal sends sig to the process group. The group is still signalled after
// the leader exits while descendants hold its pipes. Signalling a drained
// process is not an error.
func (h *Handle) Signal(sig syscall.Signal) error {
	select {
	case <-h.drained:
		return nil
	default:
	}
	if err := syscall.Kill(-h.pid, sig); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			return nil
		}
		if h.Exited() {
			return fmt.Errorf("signal %s to group %d: %w", sig, h.pid, err)
		}
		// Fall back to the leader alone if the group is gone or not ours.
		if perr := h.cmd.Process.Signal(sig); perr != nil && !errors.Is(perr, os.ErrProcessDone) {
			return fmt.Errorf("signal %s to pid %d: %w", sig, h.pid, err)
		}
	}
	return nil
}

// Terminate sends SIGTERM to the process group.
func (h *Handle) Terminate() error {
	return h.Signal(syscall.SIGTERM)
}

// Kill sends SIGKILL to the process group.
func (h *Handle) Kill() error {
	return h.Signal(syscall.SIGKILL)
}

// KillAfter waits up to timeout for the process and any descendants holding
// its pipes to finish, and sends SIGKILL to the group if they have not. A
// non-positive timeout does nothing.
func (h *Handle) KillAfter(timeout time.Duration) {
	if timeout <= 0 {
		return
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-h.drained:
	case <-timer.C:
		slog.Warn("process did not exit after SIGTERM, sending SIGKILL",
			"component", "process",
			"project", h.project,
			"pid", h.pid,
			"timeout", timeout,
		)
		if err := h.Kill(); err != nil {
			slog.Error("SIGKILL failed", "component", "process", "project", h.project, "error", err)
		}
	}
}

func (h *Handle) readLoop(wg *sync.WaitGroup, r *os.File, stream Stream) {
	defer wg.Done()
	defer r.Close()
	defer logging.LogPanic("process-read-"+string(stream), nil)

	buf := make([]byte, readBufSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			h.events <- Event{
				Kind:    EventOutput,
				Project: h.project,
				Stream:  stream,
				Data:    data,
				Time:    time.Now(),
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				slog.Debug("pipe read ended", "component", "process", "project", h.project, "stream", stream, "error", err)
			}
			return
		}
	}
}

func (h *Handle) wait(readers *sync.WaitGroup) {
	defer logging.LogPanic("process-wait", nil)

	readersDone := make(chan struct{})
	go func() {
		readers.Wait()
		close(readersDone)
	}()

	err := h.cmd.Wait()

	ev := Event{
		Kind:     EventExit,
		Project:  h.project,
		Time:     time.Now(),
		ExitCode: -1,
	}
	if ps := h.cmd.ProcessState; ps != nil {
		ev.ExitCode = ps.ExitCode()
		if ws, ok := ps.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			ev.Signal = ws.Signal().String()
		}
	}
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		ev.Err = err
	}

	h.mu.Lock()
	h.exit = &ev
	h.mu.Unlock()
	close(h.done)

	slog.Debug("process exited",
		"component", "process",
		"project", h.project,
		"pid", h.pid,
		"exit_code", ev.ExitCode,
		"signal", ev.Signal,
	)

	timer := time.NewTimer(drainGrace)
	select {
	case <-readersDone:
	case <-timer.C:
		slog.Debug("pipes still open after exit",
			"component", "process",
			"project", h.project,
			"pid", h.pid,
		)
	}
	timer.Stop()

	h.events <- ev

	// Output from descendants still holding the pipes follows the exit event.
	<-readersDone
	close(h.events)
	close(h.drained)
}

func closeFiles(files ...*os.File) {
	for _, f := range files {
		if f != nil {
			f.Close()
		}
	}
}
