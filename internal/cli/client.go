package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"syscall"

	"github.com/tessro/rig/internal/daemon"
	"github.com/tessro/rig/internal/paths"
)

// ErrDaemonNotRunning indicates the daemon is not running.
var ErrDaemonNotRunning = errors.New("daemon is not running")

// socketPath is the path to the daemon socket (can be overridden for testing).
var socketPath string

// SetSocketPath overrides the default socket path.
// This is primarily useful for testing.
func SetSocketPath(path string) {
	socketPath = path
}

// getSocketPath returns the socket path to use.
func getSocketPath() string {
	if socketPath != "" {
		return socketPath
	}
	return paths.SocketPath()
}

// NewClient creates a new daemon client with the configured socket path.
func NewClient() *daemon.Client {
	return daemon.NewClient(getSocketPath())
}

// ConnectClient creates and connects a daemon client.
// Returns ErrDaemonNotRunning if nothing is listening on the socket.
func ConnectClient() (*daemon.Client, error) {
	client := NewClient()
	if err := client.Connect(); err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ECONNREFUSED) {
			return nil, ErrDaemonNotRunning
		}
		return nil, fmt.Errorf("connect to daemon: %w", err)
	}
	return client, nil
}

// MustConnect creates and connects a daemon client, exiting on failure.
// This is a convenience function for CLI commands that require a daemon connection.
func MustConnect() *daemon.Client {
	client, err := ConnectClient()
	if err != nil {
		if errors.Is(err, ErrDaemonNotRunning) {
			fmt.Fprintln(os.Stderr, "rig daemon is not running")
			fmt.Fprintln(os.Stderr, "   Start it with: rig server start")
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "Error connecting to daemon: %v\n", err)
		os.Exit(1)
	}
	return client
}

// IsDaemonRunning checks if the daemon is running without establishing a persistent connection.
func IsDaemonRunning() bool {
	client := NewClient()
	if err := client.Connect(); err != nil {
		return false
	}
	client.Close()
	return true
}
