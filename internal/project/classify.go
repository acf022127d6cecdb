// Package project covers everything the tool knows about the deployed
// project: its persisted config, its name rules and how it is containerized.
package project

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ManifestFile is the dependency manifest inspected for framework markers.
const ManifestFile = "package.json"

type Type string

const (
	TypeCRA     Type = "cra"
	TypeVite    Type = "vite"
	TypeReact   Type = "react"
	TypeUnknown Type = "unknown"
)

var (
	// ErrUnsupported marks projects the build planner cannot containerize.
	ErrUnsupported = errors.New("unsupported project")
	ErrNoManifest  = fmt.Errorf("%w: %s not found", ErrUnsupported, ManifestFile)
	ErrNotReact    = fmt.Errorf("%w: only React projects (Create React App) are supported", ErrUnsupported)
)

// Manifest is the subset of package.json the tool reads.
type Manifest struct {
	Name            string            `json:"name"`
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

func (m *Manifest) hasDep(name string) bool {
	_, ok := m.Dependencies[name]
	return ok
}

func (m *Manifest) hasAnyDep(name string) bool {
	if m.hasDep(name) {
		return true
	}
	_, ok := m.DevDependencies[name]
	return ok
}

// ReadManifest parses dir/package.json. A missing file yields ErrNoManifest.
func ReadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoManifest
		}
		return nil, fmt.Errorf("failed to read %s: %w", ManifestFile, err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", ManifestFile, err)
	}
	return &m, nil
}

// Classify detects the framework of the project at dir.
// Priority: react-scripts (cra), then vite, then a production react dependency.
func Classify(dir string) (Type, error) {
	m, err := ReadManifest(dir)
	if errors.Is(err, ErrNoManifest) {
		return TypeUnknown, nil
	}
	if err != nil {
		return TypeUnknown, err
	}

	switch {
	case m.hasAnyDep("react-scripts"):
		return TypeCRA, nil
	case m.hasAnyDep("vite"):
		return TypeVite, nil
	case m.hasDep("react"):
		return TypeReact, nil
	default:
		return TypeUnknown, nil
	}
}
