package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tessro/rig/internal/routes"
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage projects",
	Long:  "Commands for managing the projects under the daemon's projects root.",
}

var projectCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a project from the template",
	Long:  "Copy the template project to a new directory under the projects root and set its package name.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := MustConnect()
		defer client.Close()

		resp, err := client.ProjectCreate(args[0])
		if err != nil {
			return err
		}
		fmt.Println(resp.Message)
		return nil
	},
}

var projectRemoveCmd = &cobra.Command{
	Use:     "remove <name>",
	Aliases: []string{"rm"},
	Short:   "Delete a project",
	Long:    "Stop the project's process if it is running and delete its directory.",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := MustConnect()
		defer client.Close()

		resp, err := client.ProjectRemove(args[0])
		if err != nil {
			return err
		}
		fmt.Println(resp.Message)
		return nil
	},
}

var projectListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List all projects",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := MustConnect()
		defer client.Close()

		resp, err := client.ProjectList()
		if err != nil {
			return fmt.Errorf("list projects: %w", err)
		}
		if len(resp.Projects) == 0 {
			fmt.Println("No projects.")
			return nil
		}
		for _, p := range resp.Projects {
			fmt.Printf("%s\t%s\n", p.Project, statusText(p.Status))
		}
		return nil
	},
}

var projectFilesCmd = &cobra.Command{
	Use:   "files <name>",
	Short: "List a project's concept files",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := MustConnect()
		defer client.Close()

		files, err := client.ProjectFiles(args[0])
		if err != nil {
			return err
		}
		for _, f := range files {
			fmt.Println(f)
		}
		return nil
	},
}

var projectConceptCmd = &cobra.Command{
	Use:   "concept <name> <concept>",
	Short: "Print a concept's source",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := MustConnect()
		defer client.Close()

		content, err := client.ProjectConcept(args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Print(content)
		if !strings.HasSuffix(content, "\n") {
			fmt.Println()
		}
		return nil
	},
}

var routesFormat string

var projectRoutesCmd = &cobra.Command{
	Use:   "routes <name> <concept>",
	Short: "Show the routes a concept declares",
	Long: `Extract the decorated handlers of a concept and print them.
Formats: table, md, html, yaml, json.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := MustConnect()
		defer client.Close()

		rs, err := client.ProjectRoutes(args[0], args[1])
		if err != nil {
			return err
		}
		return renderRoutes(os.Stdout, routesFormat, args[0]+" / "+args[1], rs)
	},
}

// renderRoutes writes rs to out in the named format.
func renderRoutes(out io.Writer, format, title string, rs []routes.Route) error {
	switch format {
	case "", "table":
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "METHOD\tENDPOINT\tHANDLER\tPARAMS")
		for _, r := range rs {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Method, r.Endpoint, r.Name, strings.Join(r.Params, ", "))
		}
		return w.Flush()
	case "md", "markdown":
		_, err := io.WriteString(out, routes.Markdown(title, rs))
		return err
	case "html":
		page, err := routes.HTML(title, rs)
		if err != nil {
			return err
		}
		_, err = io.WriteString(out, page)
		return err
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(rs); err != nil {
			return err
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rs)
	default:
		return fmt.Errorf("unknown format %q (want table, md, html, yaml or json)", format)
	}
}

var projectInstallCmd = &cobra.Command{
	Use:   "install <name>",
	Short: "Install a project's dependencies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := MustConnect()
		defer client.Close()

		resp, err := client.ProjectInstall(args[0])
		if err != nil {
			return err
		}
		if resp.Output != "" {
			fmt.Print(resp.Output)
		}
		fmt.Println(resp.Message)
		return nil
	},
}

var projectUninstallCmd = &cobra.Command{
	Use:   "uninstall <name>",
	Short: "Remove a project's installed dependencies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := MustConnect()
		defer client.Close()

		resp, err := client.ProjectUninstall(args[0])
		if err != nil {
			return err
		}
		fmt.Println(resp.Message)
		return nil
	},
}

func init() {
	projectRoutesCmd.Flags().StringVar(&routesFormat, "format", "table", "output format (table, md, html, yaml, json)")

	projectCmd.AddCommand(projectCreateCmd)
	projectCmd.AddCommand(projectRemoveCmd)
	projectCmd.AddCommand(projectListCmd)
	projectCmd.AddCommand(projectFilesCmd)
	projectCmd.AddCommand(projectConceptCmd)
	projectCmd.AddCommand(projectRoutesCmd)
	projectCmd.AddCommand(projectInstallCmd)
	projectCmd.AddCommand(projectUninstallCmd)
	rootCmd.AddCommand(projectCmd)
}
