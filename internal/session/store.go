// Package session persists the administrator credential between runs.
package session

import (
	"encoding/base64"
	"fmt"
	"sync"
)

// Persisted key names.
const (
	TokenKey    = "authToken"
	UsernameKey = "adminUsername"
)

// Backend is the key-value storage a Store writes through to.
// config.FileBackend satisfies it.
type Backend interface {
	GetString(key string) (val string, ok bool, err error)
	SetString(key, val string) error
	Delete(key string) error
}

// Session is an administrator credential and the name it was issued for.
type Session struct {
	Token    string
	Username string
}

// Store reads and writes the session through a Backend without caching.
type Store struct {
	b Backend
}

// NewStore wraps b.
func NewStore(b Backend) *Store {
	return &Store{b: b}
}

func (s *Store) Token() (string, bool, error)    { return s.get(TokenKey) }
func (s *Store) Username() (string, bool, error) { return s.get(UsernameKey) }
func (s *Store) SetToken(token string) error     { return s.b.SetString(TokenKey, token) }
func (s *Store) SetUsername(name string) error   { return s.b.SetString(UsernameKey, name) }
func (s *Store) ClearToken() error               { return s.b.Delete(TokenKey) }
func (s *Store) ClearUsername() error            { return s.b.Delete(UsernameKey) }

func (s *Store) get(key string) (string, bool, error) {
	v, ok, err := s.b.GetString(key)
	if err != nil {
		return "", false, fmt.Errorf("reading %s: %w", key, err)
	}
	if !ok || v == "" {
		return "", false, nil
	}
	return v, true, nil
}

// Load returns the stored session. ok is false when no token is stored.
func (s *Store) Load() (Session, bool, error) {
	token, ok, err := s.Token()
	if err != nil || !ok {
		return Session{}, false, err
	}
	name, _, err := s.Username()
	if err != nil {
		return Session{}, false, err
	}
	return Session{Token: token, Username: name}, true, nil
}

// Save persists both entries.
func (s *Store) Save(sess Session) error {
	if err := s.SetToken(sess.Token); err != nil {
		return fmt.Errorf("saving token: %w", err)
	}
	if err := s.SetUsername(sess.Username); err != nil {
		return fmt.Errorf("saving username: %w", err)
	}
	return nil
}

// Clear removes both entries.
func (s *Store) Clear() error {
	if err := s.ClearToken(); err != nil {
		return fmt.Errorf("clearing token: %w", err)
	}
	if err := s.ClearUsername(); err != nil {
		return fmt.Errorf("clearing username: %w", err)
	}
	return nil
}

// EncodeBasic builds the token sent in a Basic authorization header.
func EncodeBasic(username, password string) string {
	return base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
}

// Header formats a token as an Authorization header value.
func Header(token string) string {
	return "Basic " + token
}

// MemoryBackend is an in-process Backend, used by tests and the MCP server.
type MemoryBackend struct {
	mu   sync.Mutex
	data map[string]string
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: make(map[string]string)}
}

func (m *MemoryBackend) GetString(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MemoryBackend) SetString(key, val string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = val
	return nil
}

func (m *MemoryBackend) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}
