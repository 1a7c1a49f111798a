// Package storage persists the user's identity between runs.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hammamikhairi/tabkha/internal/domain"
	"github.com/hammamikhairi/tabkha/internal/logger"
)

// Compile-time interface checks.
var (
	_ domain.IdentityStore = (*MemoryStore)(nil)
	_ domain.IdentityStore = (*FileStore)(nil)
)

// MemoryStore keeps the identity for the lifetime of the process. Safe for
// concurrent access.
type MemoryStore struct {
	mu       sync.RWMutex
	identity string
	log      *logger.Logger
}

// NewMemoryStore creates a store, optionally pre-seeded with an identity.
func NewMemoryStore(identity string, log *logger.Logger) *MemoryStore {
	return &MemoryStore{identity: strings.TrimSpace(identity), log: log}
}

// Load returns the identity or ErrNoIdentity.
func (s *MemoryStore) Load(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == "" {
		return "", domain.ErrNoIdentity
	}
	return s.identity, nil
}

// Save replaces the identity.
func (s *MemoryStore) Save(_ context.Context, identity string) error {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return domain.ErrNoIdentity
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = identity
	return nil
}

// Clear forgets the identity.
func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = ""
	s.log.Debug("identity cleared (memory)")
	return nil
}

// FileStore keeps the identity in a single file, readable only by the
// owner.
type FileStore struct {
	mu   sync.Mutex
	path string
	log  *logger.Logger
}

// NewFileStore creates a store backed by path. The file and its parent
// directory are created on first Save.
func NewFileStore(path string, log *logger.Logger) *FileStore {
	return &FileStore{path: path, log: log}
}

// Path returns the backing file.
func (s *FileStore) Path() string { return s.path }

// Load reads the identity. A missing or blank file is ErrNoIdentity.
func (s *FileStore) Load(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", domain.ErrNoIdentity
	}
	if err != nil {
		return "", fmt.Errorf("reading identity: %w", err)
	}
	identity := strings.TrimSpace(string(data))
	if identity == "" {
		return "", domain.ErrNoIdentity
	}
	return identity, nil
}

// Save writes the identity atomically.
func (s *FileStore) Save(_ context.Context, identity string) error {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return domain.ErrNoIdentity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("creating identity dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(identity+"\n"), 0o600); err != nil {
		return fmt.Errorf("writing identity: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replacing identity: %w", err)
	}
	s.log.Debug("identity saved to %s", s.path)
	return nil
}

// Clear removes the file. Clearing a missing file is not an error.
func (s *FileStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing identity: %w", err)
	}
	s.log.Debug("identity cleared (%s)", s.path)
	return nil
}
