package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// SessionStore persists the minimal session state (token and address)
// across process restarts. Clearing must remove everything: partial
// persistence is never permitted.
type SessionStore interface {
	Load() (token, address string, err error)
	Save(token, address string) error
	Clear() error
}

// persistedSession is the on-disk shape. Key names follow the browser
// client's local-storage keys.
type persistedSession struct {
	JWT     string `json:"jwt,omitempty"`
	Address string `json:"address,omitempty"`
}

// FileStore keeps the session in a single JSON file, typically
// $HOME/.medcertify/session.json.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a file-backed session store at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// DefaultSessionPath returns the standard session file location under the
// user's config directory.
func DefaultSessionPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".medcertify", "session.json"), nil
}

func (s *FileStore) Load() (string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", "", ErrNoStoredSession
		}
		return "", "", fmt.Errorf("reading session file: %w", err)
	}

	var p persistedSession
	if err := json.Unmarshal(data, &p); err != nil {
		return "", "", fmt.Errorf("decoding session file: %w", err)
	}
	if p.JWT == "" {
		return "", "", ErrNoStoredSession
	}

	return p.JWT, p.Address, nil
}

func (s *FileStore) Save(token, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("creating session directory: %w", err)
	}

	data, err := json.Marshal(persistedSession{JWT: token, Address: address})
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("writing session file: %w", err)
	}
	return nil
}

func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing session file: %w", err)
	}
	return nil
}

// MemoryStore is an in-memory session store for tests and short-lived
// processes.
type MemoryStore struct {
	mu      sync.Mutex
	token   string
	address string
}

func NewMemorySessionStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load() (string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == "" {
		return "", "", ErrNoStoredSession
	}
	return s.token, s.address, nil
}

func (s *MemoryStore) Save(token, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.address = address
	return nil
}

func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.address = ""
	return nil
}
