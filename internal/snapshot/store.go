package snapshot

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"github.com/zalando/go-keyring"
)

// Store loads and saves a whole snapshot.
type Store interface {
	Load() ([]Cookie, error)
	Save(cookies []Cookie) error
	Exists() (bool, error)
	Location() string
}

// FileStore keeps the snapshot as a JSON array on a filesystem.
type FileStore struct {
	fs   afero.Fs
	path string
}

func NewFileStore(fsys afero.Fs, path string) *FileStore {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	return &FileStore{fs: fsys, path: path}
}

func (s *FileStore) Location() string { return s.path }

func (s *FileStore) Exists() (bool, error) {
	return afero.Exists(s.fs, s.path)
}

func (s *FileStore) Load() ([]Cookie, error) {
	b, err := afero.ReadFile(s.fs, s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	return decode(b)
}

// Save writes to a temp file next to the target and renames it into place.
func (s *FileStore) Save(cookies []Cookie) error {
	b, err := encode(cookies)
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := afero.TempFile(s.fs, dir, ".snapshot-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		_ = s.fs.Remove(tmpPath)
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = s.fs.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := s.fs.Chmod(tmpPath, 0o600); err != nil {
		_ = s.fs.Remove(tmpPath)
		return fmt.Errorf("set permissions: %w", err)
	}
	if err := s.fs.Rename(tmpPath, s.path); err != nil {
		_ = s.fs.Remove(tmpPath)
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

const keyringService = "wiki-pdf-export"

// KeyringStore keeps the snapshot in the OS keyring, one entry per site host.
type KeyringStore struct {
	host string
}

func NewKeyringStore(host string) *KeyringStore {
	return &KeyringStore{host: host}
}

func (s *KeyringStore) Location() string {
	return fmt.Sprintf("keyring:%s/%s", keyringService, s.host)
}

func (s *KeyringStore) Exists() (bool, error) {
	_, err := keyring.Get(keyringService, s.host)
	if errors.Is(err, keyring.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("keyring get: %w", err)
	}
	return true, nil
}

func (s *KeyringStore) Load() ([]Cookie, error) {
	v, err := keyring.Get(keyringService, s.host)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("keyring get: %w", err)
	}
	return decode([]byte(v))
}

func (s *KeyringStore) Save(cookies []Cookie) error {
	b, err := encode(cookies)
	if err != nil {
		return err
	}
	if err := keyring.Set(keyringService, s.host, string(b)); err != nil {
		if errors.Is(err, keyring.ErrSetDataTooBig) {
			return fmt.Errorf("snapshot of %d bytes does not fit in the OS keyring, use cookie_store: file: %w", len(b), err)
		}
		return fmt.Errorf("keyring set: %w", err)
	}
	return nil
}

// Open picks the store named by kind ("file" or "keyring").
func Open(kind, path, host string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "file":
		return NewFileStore(afero.NewOsFs(), path), nil
	case "keyring":
		return NewKeyringStore(host), nil
	default:
		return nil, fmt.Errorf("unknown cookie store %q", kind)
	}
}
