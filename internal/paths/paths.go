// Package paths provides a single source of truth for rig file paths.
// All path helpers honor environment variable overrides for isolated testing.
//
// Path resolution precedence:
//  1. Specific env vars (RIG_SOCKET_PATH, RIG_PID_PATH) take highest priority
//  2. RIG_DIR env var sets the base directory (derives socket/pid/config/log/history)
//  3. Default behavior (~/.rig, ~/.config/rig) when no env vars are set
package paths

import (
	"os"
	"path/filepath"
)

// Environment variable names for path overrides.
const (
	// EnvRigDir is the base directory override (e.g., /tmp/rig-e2e).
	// When set, socket, PID, log, and history paths derive from this directory.
	EnvRigDir = "RIG_DIR"

	// EnvSocketPath overrides the socket path directly.
	EnvSocketPath = "RIG_SOCKET_PATH"

	// EnvPIDPath overrides the PID file path directly.
	EnvPIDPath = "RIG_PID_PATH"
)

// BaseDir returns the rig base directory (~/.rig by default).
// Honors RIG_DIR environment variable.
func BaseDir() (string, error) {
	if dir := os.Getenv(EnvRigDir); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".rig"), nil
}

// ConfigDir returns the rig config directory (~/.config/rig by default).
// When RIG_DIR is set, returns RIG_DIR/config instead.
func ConfigDir() (string, error) {
	if dir := os.Getenv(EnvRigDir); dir != "" {
		return filepath.Join(dir, "config"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "rig"), nil
}

// ConfigPath returns the path to the global rig config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// SocketPath returns the daemon socket path.
// Precedence: RIG_SOCKET_PATH > RIG_DIR/rig.sock > ~/.rig/rig.sock
func SocketPath() string {
	if path := os.Getenv(EnvSocketPath); path != "" {
		return path
	}
	base, err := BaseDir()
	if err != nil {
		return "/tmp/rig.sock"
	}
	return filepath.Join(base, "rig.sock")
}

// PIDPath returns the daemon PID file path.
// Precedence: RIG_PID_PATH > RIG_DIR/rig.pid > ~/.rig/rig.pid
func PIDPath() string {
	if path := os.Getenv(EnvPIDPath); path != "" {
		return path
	}
	base, err := BaseDir()
	if err != nil {
		return "/tmp/rig.pid"
	}
	return filepath.Join(base, "rig.pid")
}

// LogPath returns the daemon log file path (~/.rig/rig.log by default).
func LogPath() string {
	base, err := BaseDir()
	if err != nil {
		return "/tmp/rig.log"
	}
	return filepath.Join(base, "rig.log")
}

// HistoryPath returns the run history database path (~/.rig/history.db by default).
func HistoryPath() string {
	base, err := BaseDir()
	if err != nil {
		return "/tmp/rig-history.db"
	}
	return filepath.Join(base, "history.db")
}
