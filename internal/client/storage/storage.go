// Package storage keeps the client's durable state: the cached purchase record,
// session credentials, language preference and the purchase outbox.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Fixed keys of the persisted client state.
const (
	KeyUser     = "user_data"
	KeyToken    = "auth_token"
	KeyEmail    = "user_email"
	KeyLanguage = "language"
	KeyOutbox   = "purchase_outbox"
)

// KV is a durable string key-value store.
type KV interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set overwrites the value for key.
	Set(ctx context.Context, key, value string) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// FileKV is a KV persisted as a single JSON object on disk.
type FileKV struct {
	path   string
	mu     sync.Mutex
	values map[string]string
}

const defaultStorageFile = "coursekeeper.json"

// NewFileKV opens the store at path, creating an empty one if the file does not exist.
func NewFileKV(path string) (*FileKV, error) {
	if path == "" {
		path = defaultStorageFile
	}
	kv := &FileKV{path: path}
	if err := kv.Load(); err != nil {
		return nil, err
	}
	return kv, nil
}

// Load reads the file into memory, replacing any in-memory state.
func (kv *FileKV) Load() error {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	f, err := os.Open(kv.path)
	if err != nil {
		if os.IsNotExist(err) {
			kv.values = make(map[string]string)
			return nil
		}
		return fmt.Errorf("open storage: %w", err)
	}
	defer f.Close()

	values := make(map[string]string)
	if err := json.NewDecoder(f).Decode(&values); err != nil {
		return fmt.Errorf("decode storage: %w", err)
	}
	kv.values = values
	return nil
}

// save writes the in-memory state through a temp file so a crash never leaves
// a truncated store behind. Callers hold kv.mu.
func (kv *FileKV) save() error {
	if dir := filepath.Dir(kv.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create storage dir: %w", err)
		}
	}
	tmp := kv.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create storage: %w", err)
	}
	if err := json.NewEncoder(f).Encode(kv.values); err != nil {
		f.Close()
		return fmt.Errorf("encode storage: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close storage: %w", err)
	}
	return os.Rename(tmp, kv.path)
}

// Get implements KV.
func (kv *FileKV) Get(_ context.Context, key string) (string, bool, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	v, ok := kv.values[key]
	return v, ok, nil
}

// Set implements KV.
func (kv *FileKV) Set(_ context.Context, key, value string) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	prev, had := kv.values[key]
	kv.values[key] = value
	if err := kv.save(); err != nil {
		if had {
			kv.values[key] = prev
		} else {
			delete(kv.values, key)
		}
		return err
	}
	return nil
}

// Delete implements KV.
func (kv *FileKV) Delete(_ context.Context, key string) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	prev, had := kv.values[key]
	if !had {
		return nil
	}
	delete(kv.values, key)
	if err := kv.save(); err != nil {
		kv.values[key] = prev
		return err
	}
	return nil
}

// MemoryKV is a non-durable KV, used for ephemeral sessions and tests.
type MemoryKV struct {
	mu     sync.Mutex
	values map[string]string
}

// NewMemoryKV returns an empty MemoryKV.
func NewMemoryKV() *MemoryKV { return &MemoryKV{values: make(map[string]string)} }

// Get implements KV.
func (m *MemoryKV) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok, nil
}

// Set implements KV.
func (m *MemoryKV) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

// Delete implements KV.
func (m *MemoryKV) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}
