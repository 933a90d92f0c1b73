package persist

import (
	"context"
	"fmt"
	"sync"

	"github.com/jrsteele09/go-auth-session/identity"
)

var _ Repo = (*InMemoryRepo)(nil)

// InMemoryRepo is a thread-safe in-memory implementation of Repo
type InMemoryRepo struct {
	mu       sync.RWMutex
	sessions map[string]*identity.Session
}

// NewInMemoryRepo creates a new in-memory session repository
func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		sessions: make(map[string]*identity.Session),
	}
}

func (r *InMemoryRepo) Load(_ context.Context, key string) (*identity.Session, error) {
	if key == "" {
		return nil, fmt.Errorf("key is required")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	// Return a copy to prevent external modifications
	return r.sessions[key].Clone(), nil
}

func (r *InMemoryRepo) Save(_ context.Context, key string, session *identity.Session) error {
	if key == "" {
		return fmt.Errorf("key is required")
	}
	if session == nil {
		return fmt.Errorf("session is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[key] = session.Clone()
	return nil
}

func (r *InMemoryRepo) Delete(_ context.Context, key string) error {
	if key == "" {
		return fmt.Errorf("key is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Already gone is not an error
	delete(r.sessions, key)
	return nil
}
