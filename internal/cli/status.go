package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tessro/rig/internal/daemon"
)

var statusCmd = &cobra.Command{
	Use:   "status [project]",
	Short: "Show daemon and project status",
	Long:  "Display whether the daemon is running and the process status of every project, or of a single project.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	client, err := ConnectClient()
	if err != nil {
		if errors.Is(err, ErrDaemonNotRunning) {
			fmt.Println("rig daemon is not running")
			return nil
		}
		return err
	}
	defer client.Close()

	if len(args) == 1 {
		resp, err := client.Status(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s: %s\n", args[0], statusText(resp.Status))
		return nil
	}

	ping, err := client.Ping()
	if err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	fmt.Printf("rig daemon %s running (uptime %s)\n", ping.Version, ping.Uptime)

	if statusRunning {
		procs, err := client.ProcessList()
		if err != nil {
			return fmt.Errorf("list processes: %w", err)
		}
		if len(procs.Processes) == 0 {
			fmt.Println("No running processes.")
			return nil
		}
		fmt.Println()
		printProcessTable(os.Stdout, procs.Processes, time.Now())
		return nil
	}

	list, err := client.ProjectList()
	if err != nil {
		return fmt.Errorf("list projects: %w", err)
	}
	if len(list.Projects) == 0 {
		fmt.Println("No projects.")
		fmt.Println("Create one with: rig project create <name>")
		return nil
	}
	fmt.Println()
	printProcessTable(os.Stdout, list.Projects, time.Now())
	return nil
}

// printProcessTable writes one row per project. Status goes last so its
// colour codes do not disturb column alignment.
func printProcessTable(out io.Writer, projects []daemon.ProcessInfo, now time.Time) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "PROJECT\tPID\tUPTIME\tSTATUS")
	for _, p := range projects {
		pid, uptime := "-", "-"
		if p.PID > 0 {
			pid = fmt.Sprint(p.PID)
		}
		if p.StartedAt != nil {
			uptime = now.Sub(*p.StartedAt).Truncate(time.Second).String()
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.Project, pid, uptime, statusText(p.Status))
	}
	_ = w.Flush()
}

var (
	runningColor = color.New(color.FgGreen)
	stoppedColor = color.New(color.Faint)
)

// statusText colours a process status for the terminal.
func statusText(status string) string {
	if status == "running" {
		return runningColor.Sprint(status)
	}
	return stoppedColor.Sprint(status)
}

var statusRunning bool

func init() {
	statusCmd.Flags().BoolVarP(&statusRunning, "running", "r", false, "Only list projects with a running process")
	rootCmd.AddCommand(statusCmd)
}
