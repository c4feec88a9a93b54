package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// FileStore keeps one YAML document per profile under dir. Files are
// written 0600 since they hold a bearer token.
type FileStore struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

type fileEntry struct {
	Value     string    `yaml:"value"`
	ExpiresAt time.Time `yaml:"expires_at,omitempty"`
}

type fileDoc struct {
	Entries map[string]fileEntry `yaml:"entries"`
}

func NewFileStore(dir, profile string) (*FileStore, error) {
	if profile == "" {
		profile = "default"
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	return &FileStore{path: filepath.Join(dir, profile+".yaml"), now: time.Now}, nil
}

func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	e, ok := doc.Entries[key]
	if !ok || s.expired(e) {
		return nil, ErrNotFound
	}
	return []byte(e.Value), nil
}

func (s *FileStore) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.read()
	if err != nil {
		return err
	}
	e := fileEntry{Value: string(val)}
	if ttl > 0 {
		e.ExpiresAt = s.now().Add(ttl).UTC()
	}
	doc.Entries[key] = e
	return s.write(doc)
}

func (s *FileStore) Delete(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.read()
	if err != nil {
		return err
	}
	for _, k := range keys {
		delete(doc.Entries, k)
	}
	if len(doc.Entries) == 0 {
		if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove session file: %w", err)
		}
		return nil
	}
	return s.write(doc)
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) expired(e fileEntry) bool {
	return !e.ExpiresAt.IsZero() && !s.now().Before(e.ExpiresAt)
}

func (s *FileStore) read() (fileDoc, error) {
	doc := fileDoc{Entries: map[string]fileEntry{}}
	b, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return doc, nil
	}
	if err != nil {
		return doc, fmt.Errorf("read session file: %w", err)
	}
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return doc, fmt.Errorf("parse session file %s: %w", s.path, err)
	}
	if doc.Entries == nil {
		doc.Entries = map[string]fileEntry{}
	}
	return doc, nil
}

func (s *FileStore) write(doc fileDoc) error {
	b, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode session file: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace session file: %w", err)
	}
	return nil
}
