package cli

import (
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/tessro/rig/internal/daemon"
)

var attachNoColor bool

var attachCmd = &cobra.Command{
	Use:   "attach [projects...]",
	Short: "Stream live process output",
	Long:  "Connect to the daemon and stream output and lifecycle events from running projects. Optionally filter by project names.",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := MustConnect()
		defer client.Close()

		events, err := client.StreamEvents(args)
		if err != nil {
			return fmt.Errorf("attach: %w", err)
		}

		colorize := !attachNoColor && (isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()))
		p := newEventPrinter(os.Stdout, colorize)

		fmt.Fprintln(os.Stderr, "Attached to process output (Ctrl+C to detach)")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigCh)

		for {
			select {
			case <-sigCh:
				p.flush()
				client.StopEventStream()
				fmt.Fprintln(os.Stderr, "\nDetached")
				return nil

			case result, ok := <-events:
				if !ok {
					p.flush()
					fmt.Fprintln(os.Stderr, "Connection closed")
					return nil
				}
				if result.Err != nil {
					p.flush()
					if errors.Is(result.Err, io.EOF) {
						fmt.Fprintln(os.Stderr, "Connection closed")
						return nil
					}
					return fmt.Errorf("receive event: %w", result.Err)
				}
				p.print(result.Event)
			}
		}
	},
}

// projectColors are assigned to project prefixes by name hash.
var projectColors = []color.Attribute{
	color.FgCyan, color.FgMagenta, color.FgYellow, color.FgBlue, color.FgGreen, color.FgHiRed,
}

// eventPrinter writes stream events as "[project] line" text. Output chunks
// are split on newlines; a partial line is held until it completes.
type eventPrinter struct {
	out      io.Writer
	colorize bool
	pending  map[string]string
}

func newEventPrinter(out io.Writer, colorize bool) *eventPrinter {
	return &eventPrinter{out: out, colorize: colorize, pending: make(map[string]string)}
}

func (p *eventPrinter) prefix(project string) string {
	label := "[" + project + "]"
	if !p.colorize {
		return label
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(project))
	c := color.New(projectColors[h.Sum32()%uint32(len(projectColors))])
	c.EnableColor()
	return c.Sprint(label)
}

func (p *eventPrinter) print(ev *daemon.StreamEvent) {
	if ev == nil {
		return
	}
	switch ev.Type {
	case daemon.EventOutput:
		text := p.pending[ev.Project] + ev.Data
		lines := strings.Split(text, "\n")
		p.pending[ev.Project] = lines[len(lines)-1]
		for _, line := range lines[:len(lines)-1] {
			fmt.Fprintf(p.out, "%s %s\n", p.prefix(ev.Project), line)
		}
	case daemon.EventStarted:
		fmt.Fprintf(p.out, "%s started (pid %d)\n", p.prefix(ev.Project), ev.PID)
	case daemon.EventStopped:
		fmt.Fprintf(p.out, "%s stopped\n", p.prefix(ev.Project))
	case daemon.EventExited:
		p.flushProject(ev.Project)
		if ev.ExitCode != nil {
			fmt.Fprintf(p.out, "%s exited with code %d\n", p.prefix(ev.Project), *ev.ExitCode)
		} else {
			fmt.Fprintf(p.out, "%s exited\n", p.prefix(ev.Project))
		}
	default:
		fmt.Fprintf(p.out, "%s %s: %s\n", p.prefix(ev.Project), ev.Type, ev.Data)
	}
}

func (p *eventPrinter) flushProject(project string) {
	if rest := p.pending[project]; rest != "" {
		fmt.Fprintf(p.out, "%s %s\n", p.prefix(project), rest)
	}
	delete(p.pending, project)
}

// flush prints every held partial line.
func (p *eventPrinter) flush() {
	for project := range p.pending {
		p.flushProject(project)
	}
}

func init() {
	attachCmd.Flags().BoolVar(&attachNoColor, "no-color", false, "disable coloured project prefixes")
	rootCmd.AddCommand(attachCmd)
}
