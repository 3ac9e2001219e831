package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tessro/rig/internal/config"
	"github.com/tessro/rig/internal/logging"
)

var serverForeground bool

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Manage the rig daemon server",
	Long:  "Commands for managing the rig daemon server lifecycle.",
}

var serverStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the rig daemon server",
	Long: `Start the rig daemon in the current process. It serves the Unix socket
and the websocket output channel until interrupted or stopped with
'rig server stop'.`,
	Args: cobra.NoArgs,
	RunE: runServerStart,
}

func runServerStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level := logging.ParseLevel(cfg.LogLevel)
	if serverForeground {
		logging.SetupConsole(os.Stderr, level)
	} else {
		cleanup, err := logging.Setup("", level)
		if err != nil {
			return fmt.Errorf("setup logging: %w", err)
		}
		defer cleanup()
	}

	if IsDaemonRunning() {
		return fmt.Errorf("daemon already listening on %s", cfg.SocketPath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("rig daemon starting (projects: %s)\n", cfg.ProjectsDir)
	if err := runDaemon(ctx, cfg); err != nil {
		return err
	}
	fmt.Println("rig daemon stopped")
	return nil
}

var serverStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the rig daemon server",
	Long:  "Stop the running rig daemon server. Every running project is stopped first.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := MustConnect()
		defer client.Close()

		if err := client.Shutdown(); err != nil {
			return fmt.Errorf("shutdown daemon: %w", err)
		}

		fmt.Println("rig daemon stopped")
		return nil
	},
}

var serverPingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that the daemon is responding",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := MustConnect()
		defer client.Close()

		resp, err := client.Ping()
		if err != nil {
			return fmt.Errorf("ping: %w", err)
		}
		fmt.Printf("rig daemon %s (up %s, since %s)\n",
			resp.Version, resp.Uptime, resp.StartedAt.Local().Format(time.DateTime))
		return nil
	},
}

func init() {
	f := serverStartCmd.Flags()
	f.BoolVarP(&serverForeground, "foreground", "f", false, "log to the terminal instead of the log file")
	f.String("projects-dir", "", "projects root directory")
	f.String("template-dir", "", "template project directory (default <projects-dir>/template)")
	f.String("ws-addr", config.DefaultWSAddr, "websocket listen address")
	f.String("log-level", config.DefaultLogLevel, "log level (debug, info, warn, error)")

	serverCmd.AddCommand(serverStartCmd, serverStopCmd, serverPingCmd)
	rootCmd.AddCommand(serverCmd)
}
