package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	eventsub "github.com/dnsge/go-twitch-eventsub"
)

// FileStore keeps the credential as JSON in a single file, readable only by
// the owner.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Load(ctx context.Context) (eventsub.Credential, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return eventsub.Credential{}, ErrNotFound
	}
	if err != nil {
		return eventsub.Credential{}, fmt.Errorf("read credential %s: %w", s.path, err)
	}

	var cred eventsub.Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return eventsub.Credential{}, fmt.Errorf("unmarshal credential: %w", err)
	}
	if cred.IsZero() {
		return eventsub.Credential{}, ErrNotFound
	}
	return cred, nil
}

// Save replaces the file atomically.
func (s *FileStore) Save(ctx context.Context, cred eventsub.Credential) error {
	data, err := json.MarshalIndent(cred, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal credential: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create credential dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".credential-*")
	if err != nil {
		return fmt.Errorf("create temp credential: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write credential: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod credential: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close credential: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("rename credential %s: %w", s.path, err)
	}
	return nil
}
