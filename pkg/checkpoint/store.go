// Package checkpoint persists named, immutable snapshots of a recording at
// pipeline stage boundaries. Snapshots are plain JSON files so a later run
// (possibly a different process) can resume from any of them.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ravi-parthasarathy/megpipe/pkg/recording"
)

// NotFoundError is returned when loading a checkpoint that does not exist.
type NotFoundError struct {
	Name string
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("checkpoint %q not found at %s", e.Name, e.Path)
}

// Store maps checkpoint names to persisted recording snapshots. Overwrite
// semantics: saving an existing name replaces it. Writes to distinct names
// never conflict; concurrent same-name writes must be serialized by the
// caller.
type Store interface {
	Save(name, stage string, rec *recording.Recording) (string, error)
	Load(name string) (*recording.Recording, error)
	Exists(name string) bool
}

// snapshot is the on-disk form: the recording plus provenance metadata.
type snapshot struct {
	Name      string               `json:"name"`
	Stage     string               `json:"stage"`
	SavedAt   time.Time            `json:"saved_at"`
	Recording *recording.Recording `json:"recording"`
}

// FileStore keeps one file per checkpoint under Dir, named
// <subject>_<session>_<name>.rec.json.
type FileStore struct {
	Dir     string
	Subject string
	Session string
}

// NewFileStore creates Dir if needed.
func NewFileStore(dir, subject, session string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}
	return &FileStore{Dir: dir, Subject: subject, Session: session}, nil
}

// Path returns the file location a checkpoint name maps to.
func (s *FileStore) Path(name string) string {
	base := fmt.Sprintf("%s_%s_%s.rec.json", s.Subject, s.Session, name)
	return filepath.Join(s.Dir, base)
}

// Save writes the snapshot via a temp file and rename, so a reader never
// observes a partially written checkpoint and distinct-name writers never
// interleave.
func (s *FileStore) Save(name, stage string, rec *recording.Recording) (string, error) {
	snap := snapshot{
		Name:      name,
		Stage:     stage,
		SavedAt:   time.Now().UTC(),
		Recording: rec,
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("checkpoint marshal: %w", err)
	}
	dst := s.Path(name)
	tmp, err := os.CreateTemp(s.Dir, "."+name+".*")
	if err != nil {
		return "", fmt.Errorf("checkpoint temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("checkpoint write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("checkpoint close: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("checkpoint rename: %w", err)
	}
	return dst, nil
}

// Load reads a snapshot back. A missing file is a NotFoundError.
func (s *FileStore) Load(name string) (*recording.Recording, error) {
	path := s.Path(name)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NotFoundError{Name: name, Path: path}
		}
		return nil, fmt.Errorf("checkpoint read: %w", err)
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("checkpoint unmarshal %s: %w", path, err)
	}
	if snap.Recording == nil {
		return nil, fmt.Errorf("checkpoint %s holds no recording", path)
	}
	return snap.Recording, nil
}

// Exists reports whether a checkpoint file is present.
func (s *FileStore) Exists(name string) bool {
	_, err := os.Stat(s.Path(name))
	return err == nil
}
