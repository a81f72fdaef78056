// Package state publishes run variables so that independently scheduled
// tasks of the same pipeline run can find each other's context.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Well-known variable keys.
const (
	KeyPipeline = "current_dag_id"
	KeyRunID    = "current_run_id"
)

// State errors.
var (
	ErrVariableNotFound = errors.New("variable not found")
	ErrBlankKey         = errors.New("variable key cannot be blank")
)

// Variables is a small key/value store shared between tasks.
type Variables interface {
	Get(key string) (string, error)
	Set(key, value string) error
}

// EnvVariables stores variables in the process environment.
type EnvVariables struct{}

// NewEnvVariables creates an environment-backed store.
func NewEnvVariables() *EnvVariables {
	return &EnvVariables{}
}

// Get returns the value of key from the environment.
func (e *EnvVariables) Get(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", ErrBlankKey
	}

	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return "", fmt.Errorf("%w: %s", ErrVariableNotFound, key)
	}

	return value, nil
}

// Set stores key in the environment.
func (e *EnvVariables) Set(key, value string) error {
	if strings.TrimSpace(key) == "" {
		return ErrBlankKey
	}

	if err := os.Setenv(key, value); err != nil {
		return fmt.Errorf("failed to set environment variable %s: %w", key, err)
	}

	return nil
}

// FileVariables persists variables as a JSON object on disk, visible to
// every process sharing the staging root. Access is not synchronized.
type FileVariables struct {
	path string
}

// NewFileVariables creates a file-backed store at path.
func NewFileVariables(path string) *FileVariables {
	return &FileVariables{path: path}
}

// Path returns the backing file.
func (f *FileVariables) Path() string {
	return f.path
}

// Get returns the stored value for key.
func (f *FileVariables) Get(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", ErrBlankKey
	}

	vars, err := f.load()
	if err != nil {
		return "", err
	}

	value, ok := vars[key]
	if !ok || value == "" {
		return "", fmt.Errorf("%w: %s", ErrVariableNotFound, key)
	}

	return value, nil
}

// Set stores key, rewriting the whole file.
func (f *FileVariables) Set(key, value string) error {
	if strings.TrimSpace(key) == "" {
		return ErrBlankKey
	}

	vars, err := f.load()
	if err != nil {
		return err
	}

	vars[key] = value

	data, err := json.MarshalIndent(vars, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal variables: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("failed to create variables directory: %w", err)
	}

	if err := os.WriteFile(f.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write variables file: %w", err)
	}

	return nil
}

func (f *FileVariables) load() (map[string]string, error) {
	vars := map[string]string{}

	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return vars, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read variables file: %w", err)
	}

	if len(data) == 0 {
		return vars, nil
	}

	if err := json.Unmarshal(data, &vars); err != nil {
		return nil, fmt.Errorf("failed to parse variables file %s: %w", f.path, err)
	}

	return vars, nil
}

// Chain publishes to every backend and reads from the first one holding the key.
type Chain []Variables

// Get returns the first value found.
func (c Chain) Get(key string) (string, error) {
	for _, v := range c {
		value, err := v.Get(key)
		if err == nil {
			return value, nil
		}

		if !errors.Is(err, ErrVariableNotFound) {
			return "", err
		}
	}

	return "", fmt.Errorf("%w: %s", ErrVariableNotFound, key)
}

// Set writes key to every backend, stopping at the first failure.
func (c Chain) Set(key, value string) error {
	for _, v := range c {
		if err := v.Set(key, value); err != nil {
			return err
		}
	}

	return nil
}

// New builds the store for a configured backend: "env", "file" or "both".
// The file lives at <home>/<root>/variables.json.
func New(backend, home, root string) (Variables, error) {
	file := NewFileVariables(filepath.Join(home, root, "variables.json"))

	switch backend {
	case "env":
		return NewEnvVariables(), nil
	case "file":
		return file, nil
	case "both", "":
		return Chain{file, NewEnvVariables()}, nil
	}

	return nil, fmt.Errorf("unknown state backend %q", backend)
}
