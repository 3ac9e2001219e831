package project

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// Errors returned by file operations.
var (
	ErrConceptNotFound = errors.New("concept not found")
	ErrInvalidConcept  = errors.New("invalid concept name")
)

// Project layout.
const (
	NodeModulesDir = "node_modules"
	LockFile       = "package-lock.json"
	ConceptsDir    = "server/concepts"
	conceptExt     = ".ts"
)

// Files returns every file in the project as a slash-separated path
// relative to the project directory, sorted. node_modules directories are
// not descended into; if any is found, "node_modules" is appended once.
func (s *Store) Files(name string) ([]string, error) {
	if err := s.Check(name); err != nil {
		return nil, err
	}

	root := s.Path(name)
	var files []string
	excluded := false

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == NodeModulesDir && path != root {
				excluded = true
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list project files: %w", err)
	}

	sort.Strings(files)
	if excluded {
		files = append(files, NodeModulesDir)
	}
	if files == nil {
		files = []string{}
	}
	return files, nil
}

// ConceptPath returns the source path for a concept. ".ts" is appended if
// missing and the file name is lower-cased.
func (s *Store) ConceptPath(name, concept string) (string, error) {
	if concept == "" || strings.ContainsAny(concept, `/\`) || concept == "." || concept == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidConcept, concept)
	}
	if !strings.HasSuffix(concept, conceptExt) {
		concept += conceptExt
	}
	return filepath.Join(s.Path(name), filepath.FromSlash(ConceptsDir), strings.ToLower(concept)), nil
}

// Concept returns the source of a concept file.
func (s *Store) Concept(name, concept string) (string, error) {
	if err := s.Check(name); err != nil {
		return "", err
	}
	path, err := s.ConceptPath(name, concept)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s in project %s", ErrConceptNotFound, concept, name)
		}
		return "", fmt.Errorf("read concept: %w", err)
	}
	return string(data), nil
}

// Install runs argv in the project directory and returns its combined output.
func (s *Store) Install(ctx context.Context, name string, argv []string) (string, error) {
	if err := s.Check(name); err != nil {
		return "", err
	}
	if len(argv) == 0 {
		return "", errors.New("install command is empty")
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = s.Path(name)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return string(output), fmt.Errorf("%s: %w", strings.Join(argv, " "), err)
	}
	return string(output), nil
}

// Uninstall removes node_modules and package-lock.json. Missing files are
// not an error.
func (s *Store) Uninstall(name string) error {
	if err := s.Check(name); err != nil {
		return err
	}
	dir := s.Path(name)
	if err := os.RemoveAll(filepath.Join(dir, NodeModulesDir)); err != nil {
		return fmt.Errorf("remove %s: %w", NodeModulesDir, err)
	}
	if err := os.Remove(filepath.Join(dir, LockFile)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", LockFile, err)
	}
	return nil
}
