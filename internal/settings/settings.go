// Package settings persists the activation chord across runs.
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mkessler/parlo/internal/keys"
)

// Store is the chord persistence contract consumed by the runtime.
type Store interface {
	LoadChord() (keys.Chord, error)
	SaveChord(keys.Chord) error
}

// ErrNoChord indicates no chord has been saved yet.
var ErrNoChord = errors.New("no saved chord configuration")

// fileSchema is the on-disk document shape.
type fileSchema struct {
	Chord string `yaml:"chord"`
}

// FileStore persists the chord as a small YAML document.
type FileStore struct {
	path string
}

// NewFileStore builds a store rooted at path; empty path resolves to
// the XDG config location.
func NewFileStore(path string) (*FileStore, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return nil, err
	}
	return &FileStore{path: resolved}, nil
}

// Path returns the resolved storage location.
func (s *FileStore) Path() string {
	return s.path
}

// LoadChord reads and parses the saved chord.
func (s *FileStore) LoadChord() (keys.Chord, error) {
	content, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return keys.Chord{}, ErrNoChord
		}
		return keys.Chord{}, fmt.Errorf("read chord settings %q: %w", s.path, err)
	}

	var doc fileSchema
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return keys.Chord{}, fmt.Errorf("parse chord settings %q: %w", s.path, err)
	}
	if strings.TrimSpace(doc.Chord) == "" {
		return keys.Chord{}, ErrNoChord
	}

	chord, err := keys.Parse(doc.Chord)
	if err != nil {
		return keys.Chord{}, fmt.Errorf("saved chord %q is invalid: %w", doc.Chord, err)
	}
	return chord, nil
}

// SaveChord validates and writes the chord atomically (write temp,
// rename) so a crash never leaves a torn settings file.
func (s *FileStore) SaveChord(chord keys.Chord) error {
	if err := chord.Validate(); err != nil {
		return err
	}

	content, err := yaml.Marshal(fileSchema{Chord: chord.String()})
	if err != nil {
		return fmt.Errorf("encode chord settings: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("ensure settings dir %q: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".chord-*")
	if err != nil {
		return fmt.Errorf("create settings temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write chord settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close chord settings: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("chmod chord settings: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace chord settings %q: %w", s.path, err)
	}
	return nil
}

// resolvePath applies explicit/XDG/home fallback rules.
func resolvePath(explicit string) (string, error) {
	if strings.TrimSpace(explicit) != "" {
		return explicit, nil
	}
	if xdg := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); xdg != "" {
		return filepath.Join(xdg, "parlo", "chord.yaml"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.New("unable to resolve user home for settings fallback")
	}
	return filepath.Join(home, ".config", "parlo", "chord.yaml"), nil
}
