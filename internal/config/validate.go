// Package config provides configuration validation and loading for rig.
package config

import (
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
	"time"
)

// Validation errors.
var (
	ErrEmptyProjectName    = errors.New("project name cannot be empty")
	ErrReservedProjectName = errors.New("project name is reserved")
	ErrInvalidProjectName  = errors.New("project name contains invalid characters")
	ErrProjectNameTooLong  = errors.New("project name exceeds maximum length")
	ErrEmptyCommand        = errors.New("command cannot be empty")
	ErrInvalidEnvKey       = errors.New("invalid environment key")
	ErrInvalidEnvValue     = errors.New("invalid environment value")
	ErrInvalidKillTimeout  = errors.New("kill timeout cannot be negative")
	ErrInvalidBufferSize   = errors.New("buffer size out of range")
	ErrInvalidAddr         = errors.New("invalid listen address")
	ErrMissingProjectsDir  = errors.New("projects directory is not configured")
)

// ReservedProjectName is the directory holding the scaffold that new
// projects are copied from. It can never be used as a project.
const ReservedProjectName = "template"

// Maximum project name length.
const MaxProjectNameLength = 64

// Subscriber buffer bounds.
const (
	MinBufferSize = 1
	MaxBufferSize = 65536
)

// validProjectNameRegex matches valid project names:
// alphanumeric, dash, underscore, dot, no path separators.
var validProjectNameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

// ValidationError wraps a validation error with context.
type ValidationError struct {
	Field   string
	Value   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("%s: %s (got %q)", e.Field, e.Message, e.Value)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// IsValidationError reports whether err is (or wraps) a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ValidateProjectName validates a project name.
func ValidateProjectName(name string) error {
	if name == "" {
		return &ValidationError{
			Field:   "name",
			Message: "cannot be empty",
			Err:     ErrEmptyProjectName,
		}
	}

	if name == ReservedProjectName {
		return &ValidationError{
			Field:   "name",
			Value:   name,
			Message: "is reserved for the project template",
			Err:     ErrReservedProjectName,
		}
	}

	if len(name) > MaxProjectNameLength {
		return &ValidationError{
			Field:   "name",
			Value:   name,
			Message: fmt.Sprintf("exceeds maximum length of %d characters", MaxProjectNameLength),
			Err:     ErrProjectNameTooLong,
		}
	}

	if !validProjectNameRegex.MatchString(name) {
		return &ValidationError{
			Field:   "name",
			Value:   name,
			Message: "must start with alphanumeric and contain only alphanumeric, dash, underscore, or dot",
			Err:     ErrInvalidProjectName,
		}
	}

	return nil
}

// ValidateCommand validates an argv-style command.
func ValidateCommand(field string, argv []string) error {
	if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
		return &ValidationError{
			Field:   field,
			Message: "cannot be empty",
			Err:     ErrEmptyCommand,
		}
	}
	return nil
}

// ValidateEnvKey validates an environment variable name.
// Keys must be non-empty and cannot contain '=' or line breaks, since
// either would corrupt the key=value file format.
func ValidateEnvKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return &ValidationError{
			Field:   "env",
			Message: "key cannot be empty",
			Err:     ErrInvalidEnvKey,
		}
	}
	if strings.ContainsAny(key, "=\n\r") {
		return &ValidationError{
			Field:   "env",
			Value:   key,
			Message: "key cannot contain '=' or line breaks",
			Err:     ErrInvalidEnvKey,
		}
	}
	return nil
}

// ValidateEnvValue validates an environment variable value.
// Values may contain '=' but not line breaks.
func ValidateEnvValue(key, value string) error {
	if strings.ContainsAny(value, "\n\r") {
		return &ValidationError{
			Field:   "env." + key,
			Message: "value cannot contain line breaks",
			Err:     ErrInvalidEnvValue,
		}
	}
	return nil
}

// ValidateKillTimeout validates the stop escalation timeout.
// Zero disables escalation.
func ValidateKillTimeout(d time.Duration) error {
	if d < 0 {
		return &ValidationError{
			Field:   "stop.kill_timeout",
			Value:   d.String(),
			Message: "must be zero (disabled) or positive",
			Err:     ErrInvalidKillTimeout,
		}
	}
	return nil
}

// ValidateBufferSize validates the per-subscriber queue length.
func ValidateBufferSize(n int) error {
	if n < MinBufferSize || n > MaxBufferSize {
		return &ValidationError{
			Field:   "broadcast.buffer",
			Value:   fmt.Sprintf("%d", n),
			Message: fmt.Sprintf("must be between %d and %d", MinBufferSize, MaxBufferSize),
			Err:     ErrInvalidBufferSize,
		}
	}
	return nil
}

// ValidateAddr validates a host:port listen address. Empty disables the listener.
func ValidateAddr(field, addr string) error {
	if addr == "" {
		return nil
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return &ValidationError{
			Field:   field,
			Value:   addr,
			Message: "must be host:port",
			Err:     ErrInvalidAddr,
		}
	}
	return nil
}
