package supervisor

import (
	"context"
	"errors"
	"fmt"

	"github.com/tessro/rig/internal/config"
	"github.com/tessro/rig/internal/history"
	"github.com/tessro/rig/internal/routes"
)

// CreateProject scaffolds a new project from the template.
func (s *Supervisor) CreateProject(name string) error {
	if err := config.ValidateProjectName(name); err != nil {
		return err
	}
	unlock := s.registry.Lock(name)
	defer unlock()
	return s.store.Create(name)
}

// RemoveProject stops the project's process if it is running and deletes
// its directory.
func (s *Supervisor) RemoveProject(name string) error {
	if err := s.checkProject(name); err != nil {
		return err
	}
	unlock := s.registry.Lock(name)
	defer unlock()

	if err := s.stopLocked(name, history.ReasonStopped); err != nil && !errors.Is(err, ErrNotRunning) {
		return err
	}
	return s.store.Delete(name)
}

// ProjectFiles lists the project's files as slash-separated relative paths.
func (s *Supervisor) ProjectFiles(name string) ([]string, error) {
	if err := config.ValidateProjectName(name); err != nil {
		return nil, err
	}
	return s.store.Files(name)
}

// Concept returns the source of one concept.
func (s *Supervisor) Concept(name, concept string) (string, error) {
	if err := config.ValidateProjectName(name); err != nil {
		return "", err
	}
	return s.store.Concept(name, concept)
}

// Routes parses the routes declared by one concept.
func (s *Supervisor) Routes(name, concept string) ([]routes.Route, error) {
	code, err := s.Concept(name, concept)
	if err != nil {
		return nil, err
	}
	rs := routes.Parse(code)
	if rs == nil {
		rs = []routes.Route{}
	}
	return rs, nil
}

// Install runs the install command in the project directory and returns
// its combined output.
func (s *Supervisor) Install(ctx context.Context, name string) (string, error) {
	if err := s.checkProject(name); err != nil {
		return "", err
	}
	out, err := s.store.Install(ctx, name, s.opts.InstallCommand)
	if err != nil {
		return out, err
	}
	s.log.Info("dependencies installed", "project", name)
	return out, nil
}

// Uninstall removes the project's installed dependencies.
func (s *Supervisor) Uninstall(name string) error {
	if err := s.checkProject(name); err != nil {
		return err
	}
	if err := s.store.Uninstall(name); err != nil {
		return fmt.Errorf("uninstall %s: %w", name, err)
	}
	return nil
}
