package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start <project>",
	Short: "Start a project's process",
	Long:  "Start the project's startup command in its directory with the manifest and .env environment applied.",
	Args:  cobra.ExactArgs(1),
	RunE:  runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	client := MustConnect()
	defer client.Close()

	resp, err := client.Start(args[0])
	if err != nil {
		return err
	}
	fmt.Printf("%s (pid %d)\n", resp.Message, resp.PID)
	return nil
}

func init() {
	rootCmd.AddCommand(startCmd)
}
