package cli

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tessro/rig/internal/history"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history [project]",
	Short: "Show recorded process runs",
	Long:  "List past and current runs, newest first, for one project or all of them.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var project string
		if len(args) == 1 {
			project = args[0]
		}

		client := MustConnect()
		defer client.Close()

		runs, err := client.HistoryList(project, historyLimit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No runs recorded.")
			return nil
		}
		printRuns(os.Stdout, runs)
		return nil
	},
}

func printRuns(out io.Writer, runs []history.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "PROJECT\tPID\tSTARTED\tDURATION\tEXIT\tREASON")
	for _, r := range runs {
		duration, exit, reason := "running", "-", "-"
		if r.EndedAt != nil {
			duration = r.EndedAt.Sub(r.StartedAt).Truncate(time.Millisecond).String()
		}
		if r.ExitCode != nil {
			exit = fmt.Sprint(*r.ExitCode)
		}
		if r.Reason != "" {
			reason = string(r.Reason)
		}
		_, _ = fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\n",
			r.Project, r.PID, r.StartedAt.Local().Format(time.DateTime), duration, exit, reason)
	}
	_ = w.Flush()
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", history.DefaultLimit, "maximum number of runs to show")
	rootCmd.AddCommand(historyCmd)
}
