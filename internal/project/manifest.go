package project

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/tidwall/gjson"

	"github.com/tessro/rig/internal/envfile"
)

// ManifestFile is the optional per-project run manifest.
const ManifestFile = "rig.toml"

// ErrNoScript is returned when an "npm run" command names a script that
// package.json does not define.
var ErrNoScript = errors.New("script not defined in package.json")

// Manifest overrides how a project is run.
//
//	command = ["node", "server.js"]
//	kill_timeout = "10s"
//
//	[env]
//	PORT = "3000"
type Manifest struct {
	Command     []string          `toml:"command"`
	KillTimeout time.Duration     `toml:"kill_timeout"`
	EnvTable    map[string]string `toml:"env"`

	// Env holds EnvTable in file order.
	Env *envfile.Env `toml:"-"`
}

// LoadManifest reads dir/rig.toml. It returns (nil, nil) if the file does
// not exist.
func LoadManifest(dir string) (*Manifest, error) {
	path := filepath.Join(dir, ManifestFile)
	var m Manifest
	md, err := toml.DecodeFile(path, &m)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("parse %s: %w", ManifestFile, err)
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		slog.Warn("unknown keys in manifest", "component", "project", "path", path, "keys", keys)
	}

	m.Env = &envfile.Env{}
	for _, key := range md.Keys() {
		if len(key) == 2 && key[0] == "env" {
			m.Env.Set(key[1], m.EnvTable[key[1]])
		}
	}

	if m.KillTimeout < 0 {
		return nil, fmt.Errorf("%s: kill_timeout cannot be negative", ManifestFile)
	}
	return &m, nil
}

// ResolveCommand returns the command to run in dir: the manifest command if
// set, otherwise def. When the result is "npm run <script>" and dir has a
// package.json, the script must be defined there.
func ResolveCommand(dir string, m *Manifest, def []string) ([]string, error) {
	argv := def
	if m != nil && len(m.Command) > 0 {
		argv = m.Command
	}
	if len(argv) == 0 {
		return nil, errors.New("no start command configured")
	}

	script, ok := npmScript(argv)
	if !ok {
		return argv, nil
	}

	data, err := os.ReadFile(filepath.Join(dir, PackageFile))
	if err != nil {
		// Without a package.json, let npm report the problem.
		return argv, nil
	}
	if !gjson.ValidBytes(data) {
		return argv, nil
	}
	if !gjson.GetBytes(data, "scripts."+gjson.Escape(script)).Exists() {
		return nil, fmt.Errorf("%w: %q", ErrNoScript, script)
	}
	return argv, nil
}

// ScriptNames returns the scripts defined in dir/package.json.
func ScriptNames(dir string) ([]string, error) {
	data, err := os.ReadFile(filepath.Join(dir, PackageFile))
	if err != nil {
		return nil, err
	}
	var names []string
	gjson.GetBytes(data, "scripts").ForEach(func(key, _ gjson.Result) bool {
		names = append(names, key.String())
		return true
	})
	return names, nil
}

// npmScript reports the script name if argv is "npm run <script>".
func npmScript(argv []string) (string, bool) {
	if len(argv) < 3 || filepath.Base(argv[0]) != "npm" {
		return "", false
	}
	switch argv[1] {
	case "run", "run-script":
	default:
		return "", false
	}
	if strings.HasPrefix(argv[2], "-") {
		return "", false
	}
	return argv[2], true
}
