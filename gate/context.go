package gate

import (
	"context"

	"github.com/jrsteele09/go-auth-session/identity"
	"github.com/jrsteele09/go-auth-session/sessionstore"
)

// Auth bundles everything a handler needs: the current session state, the
// routing table and the action funnel.
type Auth struct {
	*Actions
	store  *sessionstore.Store
	routes *RouteTable
}

func NewAuth(store *sessionstore.Store, actions *Actions, routes *RouteTable) *Auth {
	return &Auth{Actions: actions, store: store, routes: routes}
}

func (a *Auth) Store() *sessionstore.Store {
	return a.store
}

func (a *Auth) Routes() *RouteTable {
	return a.routes
}

// State returns a snapshot of the session store.
func (a *Auth) State() sessionstore.State {
	return a.store.Snapshot()
}

func (a *Auth) Session() *identity.Session {
	return a.store.Snapshot().Session
}

func (a *Auth) User() *identity.User {
	return a.store.Snapshot().User
}

func (a *Auth) Loading() bool {
	return a.store.Snapshot().Loading
}

// Decide evaluates a navigation to path against the current state.
func (a *Auth) Decide(path string) Decision {
	return a.routes.Evaluate(a.store.Snapshot(), path)
}

// Navigator starts a navigator on path over this store.
func (a *Auth) Navigator(path string, onChange func(Decision)) *Navigator {
	return NewNavigator(a.store, a.routes, path, onChange)
}

type authContextKey struct{}

// WithAuth returns a copy of ctx carrying auth.
func WithAuth(ctx context.Context, auth *Auth) context.Context {
	return context.WithValue(ctx, authContextKey{}, auth)
}

// FromContext returns the Auth stored by WithAuth.
func FromContext(ctx context.Context) (*Auth, bool) {
	auth, ok := ctx.Value(authContextKey{}).(*Auth)
	return auth, ok && auth != nil
}
