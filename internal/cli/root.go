package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/tessro/rig/internal/paths"
)

// rigDir is the global --rig-dir flag value.
var rigDir string

// socketFlag is the global --socket flag value.
var socketFlag string

var rootCmd = &cobra.Command{
	Use:   "rig",
	Short: "Project process supervisor",
	Long:  "rig runs a daemon that creates, starts, stops and streams the output of projects under a single projects root.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Set RIG_DIR so every path helper picks up the override.
		if rigDir != "" {
			if err := os.Setenv(paths.EnvRigDir, rigDir); err != nil {
				return err
			}
		}
		if socketFlag != "" {
			SetSocketPath(socketFlag)
		}
		return nil
	},
	SilenceUsage: true,
}

// RigDir returns the value of the --rig-dir flag.
func RigDir() string {
	return rigDir
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rigDir, "rig-dir", "", "base directory for rig data (overrides ~/.rig)")
	rootCmd.PersistentFlags().StringVar(&socketFlag, "socket", "", "daemon socket path")
}

func Execute() error {
	return rootCmd.Execute()
}
