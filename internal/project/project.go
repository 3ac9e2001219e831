// Package project manages project directories under the projects root.
//
// Every project is a directory scaffolded from the template directory.
// The store never tracks processes; it only answers questions about the
// filesystem and performs directory-level operations.
package project

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/tessro/rig/internal/config"
)

// Errors returned by store operations.
var (
	ErrNotFound         = errors.New("project not found")
	ErrExists           = errors.New("project already exists")
	ErrTemplateNotFound = errors.New("project template not found")
)

// PackageFile is the npm manifest inside a project.
const PackageFile = "package.json"

// Store is the collection of project directories under Root.
type Store struct {
	// Root is the projects directory.
	Root string
	// TemplateDir is copied into every new project.
	TemplateDir string
}

// NewStore creates a Store. An empty templateDir defaults to Root/template.
func NewStore(root, templateDir string) *Store {
	if templateDir == "" {
		templateDir = filepath.Join(root, config.ReservedProjectName)
	}
	return &Store{Root: root, TemplateDir: templateDir}
}

// Path returns the directory for name. It does not check existence.
func (s *Store) Path(name string) string {
	return filepath.Join(s.Root, name)
}

// Exists reports whether name is a valid project with an existing directory.
func (s *Store) Exists(name string) bool {
	if config.ValidateProjectName(name) != nil {
		return false
	}
	info, err := os.Stat(s.Path(name))
	return err == nil && info.IsDir()
}

// Check validates name and verifies the project exists.
func (s *Store) Check(name string) error {
	if err := config.ValidateProjectName(name); err != nil {
		return err
	}
	if !s.Exists(name) {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return nil
}

// List returns the project names in sorted order. Non-directories, the
// template, and entries that are not valid project names are skipped.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.Root)
	if err != nil {
		return nil, fmt.Errorf("read projects dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if config.ValidateProjectName(e.Name()) != nil {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Create scaffolds a new project from the template. If the template has a
// package.json, its name field is set to the project name.
func (s *Store) Create(name string) error {
	if err := config.ValidateProjectName(name); err != nil {
		return err
	}
	dir := s.Path(name)
	if _, err := os.Lstat(dir); err == nil {
		return fmt.Errorf("%w: %s", ErrExists, name)
	}
	if info, err := os.Stat(s.TemplateDir); err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrTemplateNotFound, s.TemplateDir)
	}

	if err := os.MkdirAll(s.Root, 0755); err != nil {
		return fmt.Errorf("create projects dir: %w", err)
	}
	if err := os.CopyFS(dir, os.DirFS(s.TemplateDir)); err != nil {
		os.RemoveAll(dir)
		return fmt.Errorf("copy template: %w", err)
	}

	if err := setPackageName(filepath.Join(dir, PackageFile), name); err != nil {
		os.RemoveAll(dir)
		return err
	}

	slog.Info("project created", "component", "project", "project", name, "dir", dir)
	return nil
}

// setPackageName rewrites the name field of a package.json, if present.
func setPackageName(path, name string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", PackageFile, err)
	}
	if !gjson.ValidBytes(data) {
		slog.Warn("template package.json is not valid JSON, leaving as is", "component", "project", "path", path)
		return nil
	}
	out, err := sjson.SetBytes(data, "name", name)
	if err != nil {
		return fmt.Errorf("set package name: %w", err)
	}
	if err := os.WriteFile(path, out, 0644); err != nil {
		return fmt.Errorf("write %s: %w", PackageFile, err)
	}
	return nil
}

// Delete removes the project directory and everything in it.
func (s *Store) Delete(name string) error {
	if err := s.Check(name); err != nil {
		return err
	}
	if err := os.RemoveAll(s.Path(name)); err != nil {
		return fmt.Errorf("remove project: %w", err)
	}
	slog.Info("project deleted", "component", "project", "project", name)
	return nil
}
