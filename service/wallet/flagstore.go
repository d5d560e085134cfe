package wallet

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// FlagStore persists the "was previously connected" marker that gates silent
// session restoration across restarts.
type FlagStore interface {
	WasConnected() bool
	SetConnected(connected bool) error
}

// FileFlagStore stores the connection flag as a small JSON file, the durable
// client storage analog of the browser profile flag.
type FileFlagStore struct {
	path string
}

// NewFileFlagStore creates a flag store backed by the given file path.
func NewFileFlagStore(path string) *FileFlagStore {
	return &FileFlagStore{path: path}
}

type flagFile struct {
	WasConnected bool `json:"was_connected"`
}

// noopFlagStore never remembers a connection. Used by short-lived sessions
// that should not trigger restoration on the next run.
type noopFlagStore struct{}

func (noopFlagStore) WasConnected() bool { return false }

func (noopFlagStore) SetConnected(bool) error { return nil }

// WasConnected reports whether a prior session left the connected marker.
// A missing or unreadable file means no prior session.
func (s *FileFlagStore) WasConnected() bool {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return false
	}
	var f flagFile
	if err := json.Unmarshal(data, &f); err != nil {
		return false
	}
	return f.WasConnected
}

// SetConnected writes the marker, or removes it when connected is false so a
// disconnect can never silently re-trigger restoration.
func (s *FileFlagStore) SetConnected(connected bool) error {
	if !connected {
		err := os.Remove(s.path)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}

	data, err := json.Marshal(flagFile{WasConnected: true})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o600)
}
