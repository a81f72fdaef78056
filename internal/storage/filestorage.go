// Package storage stages pipeline data on the local filesystem.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"newsetl/internal/logger"
	"newsetl/internal/pipeline"
	"newsetl/internal/state"
)

// Storage errors.
var (
	ErrMissingDirectory = errors.New("directory does not exist")
	ErrInvalidJSON      = errors.New("data is not valid JSON")
	ErrWriteFailed      = errors.New("failed to write data")
)

// Staged file naming.
const (
	TimestampLayout = "20060102-150405"
	DefaultFilename = "sample"
	jsonExt         = ".json"
)

// FileStorage manages the per-pipeline staging tree <home>/<root>/<pipeline>/<role>.
type FileStorage struct {
	logger *logger.Logger
	now    func() time.Time
	home   string
	root   string
}

// NewFileStorage creates a file storage rooted at home/root. An empty home
// falls back to the user's home directory and an empty root to "tempdata".
func NewFileStorage(home, root string, log *logger.Logger) *FileStorage {
	if home == "" {
		home, _ = os.UserHomeDir()
	}

	if root == "" {
		root = pipeline.DefaultRoot
	}

	return &FileStorage{
		logger: log,
		now:    time.Now,
		home:   home,
		root:   root,
	}
}

// SetClock overrides the clock used for default timestamps.
func (s *FileStorage) SetClock(now func() time.Time) {
	s.now = now
}

// Home returns the home directory the staging tree lives under.
func (s *FileStorage) Home() string {
	return s.home
}

// Root returns the staging root name.
func (s *FileStorage) Root() string {
	return s.root
}

// CreateStorage publishes the pipeline identity and creates every role
// directory for it.
func (s *FileStorage) CreateStorage(id pipeline.ID, vars state.Variables) error {
	s.logger.Info("Running create_storage", "pipeline", string(id))

	if !id.Valid() {
		return fmt.Errorf("%w: %s", pipeline.ErrUnknownPipeline, string(id))
	}

	if vars != nil {
		if err := vars.Set(state.KeyPipeline, string(id)); err != nil {
			return fmt.Errorf("failed to publish pipeline identity: %w", err)
		}
	}

	for _, role := range pipeline.Roles() {
		if _, err := s.CreateDataStore(role, id); err != nil {
			return err
		}
	}

	return nil
}

// CreateDataStore creates <home>/<root>/<id>/<role> and any missing parents.
// An existing directory is left as is. It reports whether the directory exists
// after the call.
func (s *FileStorage) CreateDataStore(role pipeline.Role, id pipeline.ID) (bool, error) {
	dir, err := id.Dir(s.home, s.root, role)
	if err != nil {
		return false, err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, fmt.Errorf("failed to create data store %s: %w", dir, err)
	}

	exists := isDir(dir)
	if exists {
		s.logger.Info("Created directory", "path", dir)
	}

	return exists, nil
}

// WriteJSON validates data and writes it to <dir>/<createDate>_<filename>.json.
// createDate defaults to the current local time and filename to "sample".
// It returns the written path.
func (s *FileStorage) WriteJSON(data any, dir, createDate, filename string) (string, error) {
	s.logger.Info("Running write_json_to_file", "dir", dir)

	if !isDir(dir) {
		return "", fmt.Errorf("%w: %s", ErrMissingDirectory, dir)
	}

	if createDate == "" {
		createDate = s.now().Format(TimestampLayout)
	}

	if filename == "" {
		filename = DefaultFilename
	}

	encoded, err := validateJSON(data)
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, createDate+"_"+filename+jsonExt)

	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrWriteFailed, path, err)
	}

	return path, nil
}

// validateJSON checks data survives an encode/decode round trip and returns
// the encoded form.
func validateJSON(data any) ([]byte, error) {
	encoded, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidJSON, err)
	}

	var decoded any
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidJSON, err)
	}

	return encoded, nil
}

// ReadJSON loads a staged JSON object.
func (s *FileStorage) ReadJSON(path string) (map[string]any, error) {
	s.logger.Debug("Running read_json", "path", path)

	data, err := os.ReadFile(path)
	if err != nil {
		s.logger.Error("Error reading data", "path", path, "error", err)

		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		s.logger.Error("Error decoding data", "path", path, "error", err)

		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidJSON, path, err)
	}

	return doc, nil
}

// ListJSONFiles returns the sorted names of the .json files directly in dir.
func (s *FileStorage) ListJSONFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrMissingDirectory, dir)
		}

		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	var files []string

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), jsonExt) {
			continue
		}

		files = append(files, entry.Name())
	}

	sort.Strings(files)

	return files, nil
}

// NewsDirectory returns the news directory of a pipeline.
func (s *FileStorage) NewsDirectory(id pipeline.ID) (string, error) {
	return s.directory(id, pipeline.RoleNews)
}

// HeadlinesDirectory returns the headlines directory of a pipeline.
func (s *FileStorage) HeadlinesDirectory(id pipeline.ID) (string, error) {
	return s.directory(id, pipeline.RoleHeadlines)
}

// CSVDirectory returns the csv directory of a pipeline.
func (s *FileStorage) CSVDirectory(id pipeline.ID) (string, error) {
	return s.directory(id, pipeline.RoleCSV)
}

func (s *FileStorage) directory(id pipeline.ID, role pipeline.Role) (string, error) {
	s.logger.Debug("Resolving directory", "pipeline", string(id), "role", string(role))

	return id.Dir(s.home, s.root, role)
}

func isDir(path string) bool {
	info, err := os.Stat(path)

	return err == nil && info.IsDir()
}
