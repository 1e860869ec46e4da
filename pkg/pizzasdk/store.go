package pizzasdk

import (
	"context"
	"sync"
)

// Role values reported by the storefront at login.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// Credentials is everything the client persists between runs.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	Role         string
}

// CredentialStore persists Credentials. Missing values load as empty strings,
// not errors. Implementations must be safe for concurrent use.
type CredentialStore interface {
	Load(ctx context.Context) (Credentials, error)
	Save(ctx context.Context, creds Credentials) error
	Clear(ctx context.Context) error
}

// MemoryStore is an in-process CredentialStore.
type MemoryStore struct {
	mu    sync.RWMutex
	creds Credentials
}

// NewMemoryStore returns a store preloaded with creds.
func NewMemoryStore(creds Credentials) *MemoryStore {
	return &MemoryStore{creds: creds}
}

func (s *MemoryStore) Load(_ context.Context) (Credentials, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds, nil
}

func (s *MemoryStore) Save(_ context.Context, creds Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = creds
	return nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = Credentials{}
	return nil
}
