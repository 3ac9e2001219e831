package config

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestValidateProjectName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"valid simple", "myproject", nil},
		{"valid with dash", "my-project", nil},
		{"valid with underscore", "my_project", nil},
		{"valid with dot", "my.project", nil},
		{"valid mixed", "My-Project_1.0", nil},
		{"empty", "", ErrEmptyProjectName},
		{"reserved template", "template", ErrReservedProjectName},
		{"template prefix is fine", "template2", nil},
		{"starts with dot", ".project", ErrInvalidProjectName},
		{"parent traversal", "..", ErrInvalidProjectName},
		{"contains slash", "my/project", ErrInvalidProjectName},
		{"contains space", "my project", ErrInvalidProjectName},
		{"too long", strings.Repeat("a", MaxProjectNameLength+1), ErrProjectNameTooLong},
		{"max length", strings.Repeat("a", MaxProjectNameLength), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateProjectName(tt.input)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateProjectName(%q) = %v, want nil", tt.input, err)
				}
				return
			}
			if err == nil {
				t.Fatalf("ValidateProjectName(%q) = nil, want error", tt.input)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateProjectName(%q) = %v, want %v", tt.input, err, tt.wantErr)
			}
			if !IsValidationError(err) {
				t.Errorf("ValidateProjectName(%q) error is not a *ValidationError", tt.input)
			}
		})
	}
}

func TestValidateCommand(t *testing.T) {
	if err := ValidateCommand("start_command", []string{"npm", "run", "start"}); err != nil {
		t.Errorf("ValidateCommand(npm) = %v", err)
	}
	for _, argv := range [][]string{nil, {}, {""}, {"  "}} {
		if err := ValidateCommand("start_command", argv); !errors.Is(err, ErrEmptyCommand) {
			t.Errorf("ValidateCommand(%q) = %v, want ErrEmptyCommand", argv, err)
		}
	}
}

func TestValidateEnv(t *testing.T) {
	tests := []struct {
		key, value string
		wantErr    error
	}{
		{"PORT", "3000", nil},
		{"DATABASE_URL", "postgres://u:p@h/db?sslmode=disable", nil},
		{"B", "x=y", nil},
		{"", "value", ErrInvalidEnvKey},
		{"A=B", "value", ErrInvalidEnvKey},
		{"A\nB", "value", ErrInvalidEnvKey},
		{"A", "line1\nline2", ErrInvalidEnvValue},
	}

	for _, tt := range tests {
		err := ValidateEnvKey(tt.key)
		if err == nil {
			err = ValidateEnvValue(tt.key, tt.value)
		}
		if tt.wantErr == nil && err != nil {
			t.Errorf("validate(%q, %q) = %v, want nil", tt.key, tt.value, err)
		}
		if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
			t.Errorf("validate(%q, %q) = %v, want %v", tt.key, tt.value, err, tt.wantErr)
		}
	}
}

func TestValidateKillTimeout(t *testing.T) {
	if err := ValidateKillTimeout(0); err != nil {
		t.Errorf("ValidateKillTimeout(0) = %v", err)
	}
	if err := ValidateKillTimeout(5 * time.Second); err != nil {
		t.Errorf("ValidateKillTimeout(5s) = %v", err)
	}
	if err := ValidateKillTimeout(-time.Second); !errors.Is(err, ErrInvalidKillTimeout) {
		t.Errorf("ValidateKillTimeout(-1s) = %v, want ErrInvalidKillTimeout", err)
	}
}

func TestValidateBufferSize(t *testing.T) {
	for _, n := range []int{MinBufferSize, 256, MaxBufferSize} {
		if err := ValidateBufferSize(n); err != nil {
			t.Errorf("ValidateBufferSize(%d) = %v", n, err)
		}
	}
	for _, n := range []int{0, -1, MaxBufferSize + 1} {
		if err := ValidateBufferSize(n); !errors.Is(err, ErrInvalidBufferSize) {
			t.Errorf("ValidateBufferSize(%d) = %v, want ErrInvalidBufferSize", n, err)
		}
	}
}

func TestValidateAddr(t *testing.T) {
	if err := ValidateAddr("ws_addr", ""); err != nil {
		t.Errorf("empty addr = %v, want nil", err)
	}
	if err := ValidateAddr("ws_addr", "127.0.0.1:8080"); err != nil {
		t.Errorf("valid addr = %v", err)
	}
	if err := ValidateAddr("ws_addr", "8080"); !errors.Is(err, ErrInvalidAddr) {
		t.Errorf("invalid addr = %v, want ErrInvalidAddr", err)
	}
}
