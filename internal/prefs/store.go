// Package prefs holds the active filter and sort selection and keeps it in a
// durable key-value file between runs.
package prefs

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sync"

	toml "github.com/pelletier/go-toml/v2"
)

// Values is a flat set of scalar preferences: strings, integers and booleans.
type Values map[string]any

func (v Values) String(key, def string) string {
	if s, ok := v[key].(string); ok {
		return s
	}
	return def
}

func (v Values) Bool(key string, def bool) bool {
	if b, ok := v[key].(bool); ok {
		return b
	}
	return def
}

// Int accepts any integer type since decoders differ in what they produce.
func (v Values) Int(key string, def int64) int64 {
	switch n := v[key].(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case uint64:
		return int64(n)
	default:
		return def
	}
}

// Store is the durable key-value layer. Set merges updates into what is
// already stored.
type Store interface {
	Load() (Values, error)
	Set(updates Values) error
}

type MemoryStore struct {
	mu     sync.Mutex
	values Values
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: Values{}}
}

func (m *MemoryStore) Load() (Values, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.values), nil
}

func (m *MemoryStore) Set(updates Values) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	maps.Copy(m.values, updates)
	return nil
}

// FileStore keeps preferences in a TOML file. Every Set rewrites the whole
// file through a temporary file and a rename.
type FileStore struct {
	path string

	mu     sync.Mutex
	values Values
}

// OpenFile reads path. A missing file is an empty store.
func OpenFile(path string) (*FileStore, error) {
	fs := &FileStore{path: path, values: Values{}}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return fs, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read preferences: %w", err)
	}
	if err := toml.Unmarshal(data, &fs.values); err != nil {
		return nil, fmt.Errorf("parse preferences %s: %w", path, err)
	}
	return fs, nil
}

func (f *FileStore) Load() (Values, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return maps.Clone(f.values), nil
}

func (f *FileStore) Set(updates Values) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	next := maps.Clone(f.values)
	maps.Copy(next, updates)
	if err := f.write(next); err != nil {
		return err
	}
	f.values = next
	return nil
}

func (f *FileStore) write(v Values) error {
	data, err := toml.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create preferences dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".prefs-*.toml")
	if err != nil {
		return fmt.Errorf("write preferences: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write preferences: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write preferences: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replace preferences: %w", err)
	}
	return nil
}
