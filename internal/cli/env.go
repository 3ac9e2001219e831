package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tessro/rig/internal/daemon"
	"github.com/tessro/rig/internal/envfile"
)

var envCmd = &cobra.Command{
	Use:   "env",
	Short: "Manage a project's environment",
	Long:  "Read and edit the project's .env file. Changes apply the next time the project starts.",
}

var envGetCmd = &cobra.Command{
	Use:   "get <project> [key]",
	Short: "Print a project's environment",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := MustConnect()
		defer client.Close()

		env, err := client.EnvGet(args[0])
		if err != nil {
			return err
		}
		if len(args) == 2 {
			v, ok := env.Get(args[1])
			if !ok {
				return fmt.Errorf("%s is not set for %s", args[1], args[0])
			}
			fmt.Println(v)
			return nil
		}
		printEnv(os.Stdout, env)
		return nil
	},
}

var envSetCmd = &cobra.Command{
	Use:   "set <project> KEY=VALUE...",
	Short: "Set environment variables",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		pairs, err := parseAssignments(args[1:])
		if err != nil {
			return err
		}

		client := MustConnect()
		defer client.Close()

		env, err := currentEnv(client, args[0])
		if err != nil {
			return err
		}
		for i := 0; i < len(pairs); i += 2 {
			env.Set(pairs[i], pairs[i+1])
		}
		resp, err := client.EnvSet(args[0], env)
		if err != nil {
			return err
		}
		fmt.Println(resp.Message)
		return nil
	},
}

var envUnsetCmd = &cobra.Command{
	Use:   "unset <project> KEY...",
	Short: "Remove environment variables",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := MustConnect()
		defer client.Close()

		env, err := currentEnv(client, args[0])
		if err != nil {
			return err
		}
		removed := 0
		for _, key := range args[1:] {
			if env.Delete(key) {
				removed++
			}
		}
		if removed == 0 {
			fmt.Println("Nothing to remove")
			return nil
		}
		resp, err := client.EnvSet(args[0], env)
		if err != nil {
			return err
		}
		fmt.Println(resp.Message)
		return nil
	},
}

// currentEnv reads the project's environment. A project without a .env
// file starts from an empty one; EnvSet reports a missing project.
func currentEnv(client *daemon.Client, project string) (*envfile.Env, error) {
	env, err := client.EnvGet(project)
	if daemon.IsCode(err, daemon.CodeNotFound) {
		return envfile.New(), nil
	}
	return env, err
}

// parseAssignments splits KEY=VALUE arguments into key, value pairs.
// The value may itself contain '='.
func parseAssignments(args []string) ([]string, error) {
	pairs := make([]string, 0, 2*len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid assignment %q (want KEY=VALUE)", arg)
		}
		pairs = append(pairs, key, value)
	}
	return pairs, nil
}

func printEnv(out io.Writer, env *envfile.Env) {
	for _, key := range env.Keys() {
		v, _ := env.Get(key)
		fmt.Fprintf(out, "%s=%s\n", key, v)
	}
}

func init() {
	envCmd.AddCommand(envGetCmd, envSetCmd, envUnsetCmd)
	rootCmd.AddCommand(envCmd)
}
