package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// filePermissions is the permission mode for the registry document.
const filePermissions = 0o644

// Store reads and writes the full record sequence.
// Implementations must be safe to call from one goroutine at a time;
// Registry serialises access.
type Store interface {
	// Load returns the persisted sequence. A missing document returns
	// (nil, fs.ErrNotExist); an unparsable one wraps ErrCorruptDocument.
	Load() ([]UserRecord, error)

	// Save replaces the persisted sequence.
	Save(records []UserRecord) error
}

// FileStore persists records as an indented JSON array on local disk.
type FileStore struct {
	path string
}

// NewFileStore creates a store for the document at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the document path.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads and decodes the document.
func (s *FileStore) Load() ([]UserRecord, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}

	var records []UserRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptDocument, err)
	}
	return records, nil
}

// Save writes the document atomically: a temp file in the same directory
// is synced and renamed over the target.
func (s *FileStore) Save(records []UserRecord) error {
	if records == nil {
		records = []UserRecord{}
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding registry: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // No-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck // Write error takes precedence
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck // Sync error takes precedence
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpName, filePermissions); err != nil {
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replacing registry document: %w", err)
	}
	return nil
}

// Quarantine moves an unreadable document aside so a later Save cannot
// overwrite it. Returns the new path.
func (s *FileStore) Quarantine() (string, error) {
	target := fmt.Sprintf("%s.corrupt-%d", s.path, time.Now().Unix())
	if err := os.Rename(s.path, target); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("quarantining registry document: %w", err)
	}
	return target, nil
}
