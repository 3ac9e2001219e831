package cli

import (
	"github.com/spf13/cobra"

	"github.com/tessro/rig/internal/tui"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch the terminal process monitor",
	Long:  "Launch the interactive monitor for starting, stopping and watching projects.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := ConnectClient()
		if err != nil {
			return err
		}
		defer client.Close()
		return tui.Run(client)
	},
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}
