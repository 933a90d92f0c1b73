package identity

import (
	"context"
)

// Provider is the capability interface of a remote identity provider.
// Implementations own credential verification, token issuance and the ordering
// of change-stream events.
type Provider interface {
	// GetCurrentSession returns the provider's current session, or nil when there is none.
	GetCurrentSession(ctx context.Context) (*Session, error)

	// SubscribeToAuthChanges registers fn for change-stream events. Events are
	// delivered in emit order until the returned Subscription is released.
	SubscribeToAuthChanges(fn AuthChangeFunc) Subscription

	SignInWithPassword(ctx context.Context, email, password string) (*AuthResponse, error)
	SignUp(ctx context.Context, params SignUpParams) (*AuthResponse, error)

	// SignInWithFederatedProvider starts a redirect based login. It does not
	// return a session, that arrives later on the change stream.
	SignInWithFederatedProvider(ctx context.Context, name string, opts FederatedOptions) (*FederatedResponse, error)

	SignOut(ctx context.Context) error
}

// ConfirmationResender is implemented by providers able to resend the
// signup confirmation email.
type ConfirmationResender interface {
	ResendConfirmation(ctx context.Context, email string, redirectTo string) error
}

// FederatedCallbackHandler is implemented by providers whose federated flow
// returns to this application with an authorization code.
type FederatedCallbackHandler interface {
	CompleteFederatedLogin(ctx context.Context, state, code string) (*AuthResponse, error)
}

// AuthResponse is the payload of a password sign in or a sign up. Session and
// User are nil when the sign up still awaits email confirmation.
type AuthResponse struct {
	User    *User
	Session *Session
}

type SignUpParams struct {
	Email      string
	Password   string
	RedirectTo string // Where the confirmation email link should land
}

type FederatedOptions struct {
	RedirectTo string
}

// FederatedResponse tells the caller where to send the user agent.
type FederatedResponse struct {
	Provider string
	URL      string
}
