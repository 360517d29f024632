// Package store persists the known host list between runs.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// HostEntry is the persisted form of one host. Live state is not stored.
type HostEntry struct {
	ID            string     `yaml:"uuid"`
	Name          string     `yaml:"hostname"`
	MAC           string     `yaml:"mac,omitempty"`
	CodecSupport  int        `yaml:"codecsupport"`
	LocalAddress  string     `yaml:"localaddress,omitempty"`
	RemoteAddress string     `yaml:"remoteaddress,omitempty"`
	ManualAddress string     `yaml:"manualaddress,omitempty"`
	Apps          []AppEntry `yaml:"apps,omitempty"`
}

// AppEntry is one persisted app
type AppEntry struct {
	Name string `yaml:"name"`
	ID   int    `yaml:"id"`
	HDR  bool   `yaml:"hdr"`
}

// Store loads and replaces the whole host list.
type Store interface {
	Load() ([]HostEntry, error)
	Save(entries []HostEntry) error
}

type document struct {
	Hosts []HostEntry `yaml:"hosts"`
}

// FileStore keeps the host list in a YAML file.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore returns a store backed by path. The file is created on first Save.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("store: empty path")
	}
	return &FileStore{path: path}, nil
}

// Path returns the backing file
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the host list. A missing file is an empty list.
func (s *FileStore) Load() ([]HostEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read host store %s: %w", s.path, err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse host store %s: %w", s.path, err)
	}
	return doc.Hosts, nil
}

// Save replaces the host list atomically (write temp file, then rename).
func (s *FileStore) Save(entries []HostEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := yaml.Marshal(document{Hosts: entries})
	if err != nil {
		return fmt.Errorf("failed to encode host store: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create store dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write host store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write host store: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace host store %s: %w", s.path, err)
	}
	return nil
}

// MemoryStore keeps the host list in memory.
type MemoryStore struct {
	mu      sync.Mutex
	entries []HostEntry
	saves   int
}

// NewMemoryStore returns a store seeded with entries
func NewMemoryStore(entries ...HostEntry) *MemoryStore {
	return &MemoryStore{entries: cloneEntries(entries)}
}

func (s *MemoryStore) Load() ([]HostEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneEntries(s.entries), nil
}

func (s *MemoryStore) Save(entries []HostEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = cloneEntries(entries)
	s.saves++
	return nil
}

// Saves returns how many times Save was called
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func cloneEntries(in []HostEntry) []HostEntry {
	if in == nil {
		return nil
	}
	out := make([]HostEntry, len(in))
	for i, e := range in {
		out[i] = e
		out[i].Apps = append([]AppEntry(nil), e.Apps...)
	}
	return out
}
