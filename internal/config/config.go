package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/tessro/rig/internal/paths"
)

// Config is the daemon configuration.
type Config struct {
	ProjectsDir    string          `mapstructure:"projects_dir"`
	TemplateDir    string          `mapstructure:"template_dir"`
	SocketPath     string          `mapstructure:"socket_path"`
	WSAddr         string          `mapstructure:"ws_addr"`
	LogLevel       string          `mapstructure:"log_level"`
	StartCommand   []string        `mapstructure:"start_command"`
	InstallCommand []string        `mapstructure:"install_command"`
	Stop           StopConfig      `mapstructure:"stop"`
	Broadcast      BroadcastConfig `mapstructure:"broadcast"`
	History        HistoryConfig   `mapstructure:"history"`
}

// StopConfig controls how processes are stopped.
type StopConfig struct {
	// KillTimeout is how long to wait after SIGTERM before sending SIGKILL.
	// Zero disables escalation.
	KillTimeout time.Duration `mapstructure:"kill_timeout"`
}

// BroadcastConfig controls output fan-out.
type BroadcastConfig struct {
	// Buffer is the per-subscriber queue length.
	Buffer int `mapstructure:"buffer"`
}

// HistoryConfig controls the run history database.
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Defaults.
const (
	DefaultWSAddr   = "127.0.0.1:8080"
	DefaultLogLevel = "info"
	DefaultBuffer   = 256
)

// Environment variables for the projects root. The unprefixed form is
// accepted for compatibility with existing deployments.
const (
	EnvProjectsDir       = "RIG_PROJECTS_DIR"
	EnvProjectsDirLegacy = "PROJECTS_DIRECTORY"
)

// DefaultStartCommand is run in the project directory when the project has
// no manifest command.
func DefaultStartCommand() []string { return []string{"npm", "run", "start"} }

// DefaultInstallCommand installs project dependencies.
func DefaultInstallCommand() []string { return []string{"npm", "install"} }

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"projects-dir": "projects_dir",
	"template-dir": "template_dir",
	"socket":       "socket_path",
	"ws-addr":      "ws_addr",
	"log-level":    "log_level",
}

// Load loads configuration from the global config file, RIG_* environment
// variables, and any flags in fs that map to config keys.
// Precedence (highest to lowest): flags, environment, config file, defaults.
func Load(fs *pflag.FlagSet) (*Config, error) {
	path, err := paths.ConfigPath()
	if err != nil {
		return nil, fmt.Errorf("resolving config path: %w", err)
	}
	return LoadFromPath(path, fs)
}

// LoadFromPath loads configuration from a specific file. A missing file is
// not an error; defaults and environment still apply.
func LoadFromPath(path string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		}
	}

	v.SetEnvPrefix("RIG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("projects_dir", EnvProjectsDir, EnvProjectsDirLegacy); err != nil {
		return nil, err
	}

	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("binding flag %s: %w", name, err)
				}
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.applyDerived()
	return cfg, nil
}

// Validate checks the loaded configuration. A missing projects root is fatal.
func (c *Config) Validate() error {
	if c.ProjectsDir == "" {
		return &ValidationError{
			Field:   "projects_dir",
			Message: fmt.Sprintf("must be set (config file, %s, or %s)", EnvProjectsDir, EnvProjectsDirLegacy),
			Err:     ErrMissingProjectsDir,
		}
	}
	if err := ValidateCommand("start_command", c.StartCommand); err != nil {
		return err
	}
	if err := ValidateCommand("install_command", c.InstallCommand); err != nil {
		return err
	}
	if err := ValidateKillTimeout(c.Stop.KillTimeout); err != nil {
		return err
	}
	if err := ValidateBufferSize(c.Broadcast.Buffer); err != nil {
		return err
	}
	return ValidateAddr("ws_addr", c.WSAddr)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("projects_dir", "")
	v.SetDefault("template_dir", "")
	v.SetDefault("socket_path", "")
	v.SetDefault("ws_addr", DefaultWSAddr)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("start_command", DefaultStartCommand())
	v.SetDefault("install_command", DefaultInstallCommand())
	v.SetDefault("stop.kill_timeout", "0s")
	v.SetDefault("broadcast.buffer", DefaultBuffer)
	v.SetDefault("history.enabled", true)
	v.SetDefault("history.path", "")
}

// applyDerived fills settings whose defaults depend on other settings.
func (c *Config) applyDerived() {
	if c.ProjectsDir != "" {
		c.ProjectsDir = expandPath(c.ProjectsDir)
	}
	if c.TemplateDir == "" && c.ProjectsDir != "" {
		c.TemplateDir = filepath.Join(c.ProjectsDir, ReservedProjectName)
	} else if c.TemplateDir != "" {
		c.TemplateDir = expandPath(c.TemplateDir)
	}
	if c.SocketPath == "" {
		c.SocketPath = paths.SocketPath()
	}
	if c.History.Path == "" {
		c.History.Path = paths.HistoryPath()
	}
}

// expandPath expands $VAR references and a leading ~ and makes the path absolute.
func expandPath(p string) string {
	p = os.ExpandEnv(p)
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}
