package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tessro/rig/internal/mcp"
	"github.com/tessro/rig/internal/version"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the daemon's tools over MCP",
	Long: `Run a Model Context Protocol server on stdin/stdout. Tools list,
start, stop and inspect projects and edit their environment through
the running daemon.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := ConnectClient()
		if err != nil {
			return err
		}
		defer client.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return mcp.NewServer(version.Resolved(), client).Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
