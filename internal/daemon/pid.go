package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/tessro/rig/internal/paths"
)

// ErrAlreadyRunning is returned by PIDFile.Acquire when another live daemon
// owns the PID file.
var ErrAlreadyRunning = errors.New("daemon: already running")

// PIDFile guards a single daemon instance.
type PIDFile struct {
	Path string
}

// NewPIDFile returns a PIDFile at path, or at the default location if path
// is empty.
func NewPIDFile(path string) *PIDFile {
	if path == "" {
		path = paths.PIDPath()
	}
	return &PIDFile{Path: path}
}

// Acquire writes the current process ID, replacing a stale file. It fails
// with ErrAlreadyRunning if the recorded process is alive and not us.
func (f *PIDFile) Acquire() error {
	if running, pid := f.Running(); running && pid != os.Getpid() {
		return fmt.Errorf("%w (pid %d)", ErrAlreadyRunning, pid)
	}
	return f.Write(os.Getpid())
}

// Write records pid, creating the parent directory if needed.
func (f *PIDFile) Write(pid int) error {
	if err := os.MkdirAll(filepath.Dir(f.Path), 0700); err != nil {
		return fmt.Errorf("create pid directory: %w", err)
	}
	data := []byte(strconv.Itoa(pid) + "\n")
	if err := os.WriteFile(f.Path, data, 0600); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	return nil
}

// Read returns the recorded process ID. A missing file yields an error
// satisfying os.IsNotExist.
func (f *PIDFile) Read() (int, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, err
		}
		return 0, fmt.Errorf("read pid file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse pid: %w", err)
	}
	return pid, nil
}

// Remove deletes the PID file. A missing file is not an error.
func (f *PIDFile) Remove() error {
	if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove pid file: %w", err)
	}
	return nil
}

// Running reports whether the recorded process is alive, and its PID.
func (f *PIDFile) Running() (bool, int) {
	pid, err := f.Read()
	if err != nil {
		return false, 0
	}
	if IsProcessRunning(pid) {
		return true, pid
	}
	return false, 0
}

// CleanStale removes the PID file if its process is gone. Returns true if
// the file was removed.
func (f *PIDFile) CleanStale() bool {
	if _, err := os.Stat(f.Path); err != nil {
		return false
	}
	if running, _ := f.Running(); running {
		return false
	}
	_ = f.Remove()
	return true
}

// IsProcessRunning checks if a process with the given PID is running.
func IsProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	switch {
	case err == nil:
		return true
	case errors.Is(err, syscall.EPERM):
		// Exists, owned by someone else
		return true
	default:
		return false
	}
}
