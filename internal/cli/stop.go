package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:   "stop <project>",
	Short: "Stop a project's process",
	Long:  "Send SIGTERM to the project's process group. The project is reported stopped immediately.",
	Args:  cobra.ExactArgs(1),
	RunE:  runStop,
}

func runStop(cmd *cobra.Command, args []string) error {
	client := MustConnect()
	defer client.Close()

	resp, err := client.Stop(args[0])
	if err != nil {
		return err
	}
	fmt.Println(resp.Message)
	return nil
}

func init() {
	rootCmd.AddCommand(stopCmd)
}
