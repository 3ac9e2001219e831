package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

// clearEnv isolates a test from RIG_* variables in the developer's shell.
func clearEnv(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("RIG_DIR", dir)
	for _, key := range []string{
		EnvProjectsDir, EnvProjectsDirLegacy,
		"RIG_TEMPLATE_DIR", "RIG_SOCKET_PATH", "RIG_WS_ADDR", "RIG_LOG_LEVEL",
		"RIG_STOP_KILL_TIMEOUT", "RIG_BROADCAST_BUFFER",
	} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestLoadFromPath_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadFromPath(filepath.Join(t.TempDir(), "missing.toml"), nil)
	if err != nil {
		t.Fatalf("LoadFromPath() error = %v", err)
	}

	if cfg.ProjectsDir != "" {
		t.Errorf("ProjectsDir = %q, want empty", cfg.ProjectsDir)
	}
	if cfg.WSAddr != DefaultWSAddr {
		t.Errorf("WSAddr = %q, want %q", cfg.WSAddr, DefaultWSAddr)
	}
	if cfg.Broadcast.Buffer != DefaultBuffer {
		t.Errorf("Broadcast.Buffer = %d, want %d", cfg.Broadcast.Buffer, DefaultBuffer)
	}
	if cfg.Stop.KillTimeout != 0 {
		t.Errorf("Stop.KillTimeout = %v, want 0", cfg.Stop.KillTimeout)
	}
	if len(cfg.StartCommand) != 3 || cfg.StartCommand[0] != "npm" {
		t.Errorf("StartCommand = %v, want npm run start", cfg.StartCommand)
	}
	if !cfg.History.Enabled {
		t.Error("History.Enabled = false, want true")
	}

	err = cfg.Validate()
	if !errors.Is(err, ErrMissingProjectsDir) {
		t.Errorf("Validate() = %v, want ErrMissingProjectsDir", err)
	}
}

func TestLoadFromPath_File(t *testing.T) {
	clearEnv(t)
	root := t.TempDir()

	path := writeConfig(t, `
projects_dir = "`+root+`"
ws_addr = "127.0.0.1:9090"
start_command = ["node", "server.js"]

[stop]
kill_timeout = "5s"

[broadcast]
buffer = 32
`)

	cfg, err := LoadFromPath(path, nil)
	if err != nil {
		t.Fatalf("LoadFromPath() error = %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if cfg.ProjectsDir != root {
		t.Errorf("ProjectsDir = %q, want %q", cfg.ProjectsDir, root)
	}
	if cfg.TemplateDir != filepath.Join(root, "template") {
		t.Errorf("TemplateDir = %q", cfg.TemplateDir)
	}
	if cfg.WSAddr != "127.0.0.1:9090" {
		t.Errorf("WSAddr = %q", cfg.WSAddr)
	}
	if cfg.Stop.KillTimeout != 5*time.Second {
		t.Errorf("Stop.KillTimeout = %v, want 5s", cfg.Stop.KillTimeout)
	}
	if cfg.Broadcast.Buffer != 32 {
		t.Errorf("Broadcast.Buffer = %d, want 32", cfg.Broadcast.Buffer)
	}
	if len(cfg.StartCommand) != 2 || cfg.StartCommand[1] != "server.js" {
		t.Errorf("StartCommand = %v", cfg.StartCommand)
	}
}

func TestLoadFromPath_Env(t *testing.T) {
	tests := []struct {
		name string
		env  string
	}{
		{"prefixed", EnvProjectsDir},
		{"legacy", EnvProjectsDirLegacy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			root := t.TempDir()
			t.Setenv(tt.env, root)

			cfg, err := LoadFromPath("", nil)
			if err != nil {
				t.Fatalf("LoadFromPath() error = %v", err)
			}
			if cfg.ProjectsDir != root {
				t.Errorf("ProjectsDir = %q, want %q", cfg.ProjectsDir, root)
			}
		})
	}
}

func TestLoadFromPath_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `ws_addr = "127.0.0.1:9090"`)
	t.Setenv("RIG_WS_ADDR", "127.0.0.1:7070")

	cfg, err := LoadFromPath(path, nil)
	if err != nil {
		t.Fatalf("LoadFromPath() error = %v", err)
	}
	if cfg.WSAddr != "127.0.0.1:7070" {
		t.Errorf("WSAddr = %q, want env value", cfg.WSAddr)
	}
}

func TestLoadFromPath_Flags(t *testing.T) {
	clearEnv(t)
	root := t.TempDir()
	t.Setenv(EnvProjectsDir, "/somewhere/else")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("projects-dir", "", "")
	if err := fs.Parse([]string{"--projects-dir", root}); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	cfg, err := LoadFromPath("", fs)
	if err != nil {
		t.Fatalf("LoadFromPath() error = %v", err)
	}
	if cfg.ProjectsDir != root {
		t.Errorf("ProjectsDir = %q, want flag value %q", cfg.ProjectsDir, root)
	}
}

func TestLoadFromPath_InvalidFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "projects_dir = [unterminated")

	if _, err := LoadFromPath(path, nil); err == nil {
		t.Error("LoadFromPath() error = nil, want parse error")
	}
}

func TestValidate_Rejects(t *testing.T) {
	base := func() *Config {
		return &Config{
			ProjectsDir:    "/srv/projects",
			WSAddr:         DefaultWSAddr,
			StartCommand:   DefaultStartCommand(),
			InstallCommand: DefaultInstallCommand(),
			Broadcast:      BroadcastConfig{Buffer: DefaultBuffer},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"valid", func(*Config) {}, nil},
		{"empty start command", func(c *Config) { c.StartCommand = nil }, ErrEmptyCommand},
		{"negative kill timeout", func(c *Config) { c.Stop.KillTimeout = -time.Second }, ErrInvalidKillTimeout},
		{"zero buffer", func(c *Config) { c.Broadcast.Buffer = 0 }, ErrInvalidBufferSize},
		{"bad ws addr", func(c *Config) { c.WSAddr = "nope" }, ErrInvalidAddr},
		{"ws disabled", func(c *Config) { c.WSAddr = "" }, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
