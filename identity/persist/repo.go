package persist

import (
	"context"

	"github.com/jrsteele09/go-auth-session/identity"
)

// Repo persists the provider's current session between restarts, much like
// browser storage does for a single page app. Keys identify the client.
type Repo interface {
	// Load returns the stored session, or nil with no error when there is none.
	Load(ctx context.Context, key string) (*identity.Session, error)
	Save(ctx context.Context, key string, session *identity.Session) error
	Delete(ctx context.Context, key string) error
}
