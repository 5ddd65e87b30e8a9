package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"medpredict/internal/crypto"
)

// ===== Plain files =====

// FileStore keeps one file per key under dir, readable only by the owner.
type FileStore struct {
	dir string
}

// NewFileStore returns a store rooted at dir. The directory is created lazily
// on first write so that a read-only or missing home still allows Get.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("storage: directory required")
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the directory holding the key files.
func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) Get(key string) (string, error) {
	data, err := s.read(key, "")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func (s *FileStore) Set(key, value string) error {
	return s.write(key, "", []byte(value))
}

func (s *FileStore) Delete(key string) error {
	return s.remove(key, "")
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) path(key, suffix string) (string, error) {
	if err := validKey(key); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, key+suffix), nil
}

func (s *FileStore) read(key, suffix string) ([]byte, error) {
	p, err := s.path(key, suffix)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", key, err)
	}
	return data, nil
}

// write replaces the file atomically via a temp file in the same directory.
func (s *FileStore) write(key, suffix string, data []byte) error {
	p, err := s.path(key, suffix)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return fmt.Errorf("storage: create dir: %w", err)
	}
	tmp, err := os.CreateTemp(s.dir, ".tmp-"+key+"-*")
	if err != nil {
		return fmt.Errorf("storage: temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // gone after a successful rename
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("storage: chmod: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("storage: write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return fmt.Errorf("storage: rename %s: %w", key, err)
	}
	return nil
}

func (s *FileStore) remove(key, suffix string) error {
	p, err := s.path(key, suffix)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("storage: remove %s: %w", key, err)
	}
	return nil
}

// ===== Encrypted files =====

const encSuffix = ".enc"

// EncryptedFileStore is a FileStore whose values are sealed with AES-GCM
// under a key derived from the master key. The key name is bound as
// additional data so a blob cannot be swapped between keys.
type EncryptedFileStore struct {
	files *FileStore
	key   []byte
}

// NewEncryptedFileStore reads the master key (env or masterKeyFile) and
// derives the token store key from it.
func NewEncryptedFileStore(dir, masterKeyFile string) (*EncryptedFileStore, error) {
	master, err := crypto.ReadMasterKey(masterKeyFile)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	return NewEncryptedFileStoreWithKey(dir, master)
}

// NewEncryptedFileStoreWithKey is NewEncryptedFileStore with an explicit master key.
func NewEncryptedFileStoreWithKey(dir string, master []byte) (*EncryptedFileStore, error) {
	fs, err := NewFileStore(dir)
	if err != nil {
		return nil, err
	}
	k, err := crypto.DeriveKey(master, crypto.InfoTokenStore)
	if err != nil {
		return nil, fmt.Errorf("storage: derive key: %w", err)
	}
	return &EncryptedFileStore{files: fs, key: k}, nil
}

func (s *EncryptedFileStore) Dir() string { return s.files.dir }

func (s *EncryptedFileStore) Get(key string) (string, error) {
	blob, err := s.files.read(key, encSuffix)
	if err != nil {
		return "", err
	}
	plain, err := crypto.Open(s.key, blob, []byte(key))
	if err != nil {
		return "", fmt.Errorf("storage: decrypt %s: %w", key, err)
	}
	return string(plain), nil
}

func (s *EncryptedFileStore) Set(key, value string) error {
	if err := validKey(key); err != nil {
		return err
	}
	blob, err := crypto.Seal(s.key, []byte(value), []byte(key))
	if err != nil {
		return fmt.Errorf("storage: encrypt %s: %w", key, err)
	}
	return s.files.write(key, encSuffix, blob)
}

func (s *EncryptedFileStore) Delete(key string) error {
	return s.files.remove(key, encSuffix)
}

func (s *EncryptedFileStore) Close() error { return nil }
