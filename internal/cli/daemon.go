package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/tessro/rig/internal/broadcast"
	"github.com/tessro/rig/internal/config"
	"github.com/tessro/rig/internal/daemon"
	"github.com/tessro/rig/internal/history"
	"github.com/tessro/rig/internal/project"
	"github.com/tessro/rig/internal/registry"
	"github.com/tessro/rig/internal/supervisor"
	"github.com/tessro/rig/internal/watch"
	"github.com/tessro/rig/internal/wsserver"
)

// shutdownTimeout bounds how long the daemon waits for processes to exit.
const shutdownTimeout = 10 * time.Second

// runDaemon serves until ctx is done or a client requests shutdown.
func runDaemon(ctx context.Context, cfg *config.Config) error {
	log := slog.With("component", "daemon")

	info, err := os.Stat(cfg.ProjectsDir)
	if err != nil {
		return fmt.Errorf("projects root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("projects root %s is not a directory", cfg.ProjectsDir)
	}

	pid := daemon.NewPIDFile("")
	if err := pid.Acquire(); err != nil {
		return err
	}
	defer func() { _ = pid.Remove() }()

	opts := supervisor.Options{
		StartCommand:   cfg.StartCommand,
		InstallCommand: cfg.InstallCommand,
		KillTimeout:    cfg.Stop.KillTimeout,
	}
	if cfg.History.Enabled {
		store, err := openHistory(ctx, cfg.History.Path)
		if err != nil {
			return err
		}
		defer store.Close()
		opts.Recorder = store
	}

	bc := broadcast.New(cfg.Broadcast.Buffer)
	defer bc.Close()
	sup := supervisor.New(project.NewStore(cfg.ProjectsDir, cfg.TemplateDir), registry.New(), bc, opts)

	srv := daemon.NewServer(cfg.SocketPath, sup)
	if err := srv.Start(); err != nil {
		_ = sup.Shutdown(ctx)
		return fmt.Errorf("start server: %w", err)
	}
	log.Info("listening", "socket", cfg.SocketPath, "projects", cfg.ProjectsDir)

	var ws *wsserver.Server
	if cfg.WSAddr != "" {
		ws = wsserver.New(cfg.WSAddr, bc)
		if err := ws.Start(); err != nil {
			_ = srv.Stop()
			_ = sup.Shutdown(ctx)
			return fmt.Errorf("start websocket server: %w", err)
		}
		log.Info("websocket listening", "addr", ws.Addr())
	}

	w := watch.New(cfg.ProjectsDir, sup.StopRemoved)
	if err := w.Start(); err != nil {
		// Removal detection is best effort; project.remove still stops the process.
		log.Warn("project watcher disabled", "error", err)
	}

	select {
	case <-ctx.Done():
		log.Info("signal received, shutting down")
	case <-sup.ShutdownCh():
		log.Info("shutdown requested")
	}

	_ = w.Close()

	var errs []error
	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// Processes go first so attached clients see their final events.
	if err := sup.Shutdown(stopCtx); err != nil {
		errs = append(errs, fmt.Errorf("stop processes: %w", err))
	}
	if err := srv.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stop server: %w", err))
	}
	if ws != nil {
		if err := ws.Stop(stopCtx); err != nil {
			errs = append(errs, fmt.Errorf("stop websocket server: %w", err))
		}
	}
	log.Info("daemon stopped")
	return errors.Join(errs...)
}

// openHistory opens the run database and closes runs a previous daemon
// left open.
func openHistory(ctx context.Context, path string) (*history.Store, error) {
	store, err := history.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	if err := store.Migrate(); err != nil {
		store.Close()
		return nil, fmt.Errorf("migrate history: %w", err)
	}
	if n, err := store.CloseAbandoned(ctx, time.Now()); err != nil {
		slog.Warn("closing abandoned runs failed", "error", err)
	} else if n > 0 {
		slog.Info("closed abandoned runs", "count", n)
	}
	return store, nil
}
