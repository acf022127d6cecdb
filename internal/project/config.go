package project

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNotInitialized is returned when a command needs a project but init never ran.
var ErrNotInitialized = errors.New("project not initialized: run 'deploytool init' first")

// Config is the on-disk record of the last initialized project.
type Config struct {
	BucketName  string `json:"bucket_name"`
	RepoName    string `json:"repo_name"`
	RepoURL     string `json:"repo_url"`
	ProjectType Type   `json:"project_type"`
}

// RequireRepo checks the fields every project-scoped command needs.
// withURL additionally requires the clone URL (deploy re-clones, rollback and destroy do not).
func (c *Config) RequireRepo(withURL bool) error {
	if c == nil || c.RepoName == "" {
		return ErrNotInitialized
	}
	if withURL && c.RepoURL == "" {
		return ErrNotInitialized
	}
	return nil
}

// Store loads and saves Config at a fixed path.
type Store struct {
	Path string
}

func NewStore(path string) *Store {
	return &Store{Path: path}
}

// Load returns the saved config, or an empty one when the file does not exist.
func (s *Store) Load() (*Config, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("failed to read project config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse project config %s: %w", s.Path, err)
	}
	return &cfg, nil
}

// Save replaces the on-disk record. The write goes to a temp file in the same
// directory which is then renamed over the target.
func (s *Store) Save(cfg *Config) error {
	if cfg == nil {
		return errors.New("nil project config")
	}
	if err := ValidateRepoName(cfg.RepoName); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode project config: %w", err)
	}

	dir := filepath.Dir(s.Path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.Path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp config: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write project config: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync project config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close project config: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("failed to set project config permissions: %w", err)
	}
	if err := os.Rename(tmpPath, s.Path); err != nil {
		return fmt.Errorf("failed to replace project config: %w", err)
	}
	return nil
}
