// Package storage provides durable key/value backends for client-side state.
// The session token lives under a single key; backends differ only in where
// and how the value is kept on disk.
package storage

import (
	"errors"
	"fmt"
	"regexp"
	"sync"
)

var (
	// ErrNotFound is returned by Get when the key holds no value.
	ErrNotFound = errors.New("storage: key not found")
	// ErrInvalidKey is returned for keys that are empty or contain path characters.
	ErrInvalidKey = errors.New("storage: invalid key")
)

// Store is a small durable key/value store.
type Store interface {
	Get(key string) (string, error)
	Set(key, value string) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(key string) error
	Close() error
}

// Backend names accepted by Open.
const (
	BackendFile      = "file"
	BackendEncrypted = "encrypted"
	BackendSQLite    = "sqlite"
	BackendMemory    = "memory"
)

// Options selects and configures a backend.
type Options struct {
	Backend       string
	Dir           string
	MasterKeyFile string
}

// Open returns the backend named by opts.Backend. An empty backend means file.
func Open(opts Options) (Store, error) {
	var (
		s   Store
		err error
	)
	// Assign through the interface only on success so a failed open never
	// yields a non-nil Store holding a nil pointer.
	switch opts.Backend {
	case "", BackendFile:
		var fs *FileStore
		if fs, err = NewFileStore(opts.Dir); err == nil {
			s = fs
		}
	case BackendEncrypted:
		var es *EncryptedFileStore
		if es, err = NewEncryptedFileStore(opts.Dir, opts.MasterKeyFile); err == nil {
			s = es
		}
	case BackendSQLite:
		var ss *SQLiteStore
		if ss, err = NewSQLiteStore(opts.Dir); err == nil {
			s = ss
		}
	case BackendMemory:
		s = NewMemoryStore()
	default:
		err = fmt.Errorf("storage: unknown backend %q", opts.Backend)
	}
	return s, err
}

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

func validKey(key string) error {
	if !keyPattern.MatchString(key) || key == "." || key == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// ===== Memory =====

// MemoryStore keeps values in process memory only.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (m *MemoryStore) Get(key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *MemoryStore) Set(key, value string) error {
	if err := validKey(key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *MemoryStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

func (m *MemoryStore) Close() error { return nil }
