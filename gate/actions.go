package gate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jrsteele09/go-auth-session/identity"
	autherrors "github.com/jrsteele09/go-auth-session/internal/errors"
	"github.com/rs/zerolog/log"
)

// Result is the normalized outcome of an action. Exactly one of Data or Err
// is meaningful.
type Result[T any] struct {
	Data T
	Err  error
}

// OK reports whether the action succeeded.
func (r Result[T]) OK() bool {
	return r.Err == nil
}

// Message is the user facing text for Err.
func (r Result[T]) Message() string {
	return autherrors.Message(r.Err)
}

// SignupRequest is the registration form.
type SignupRequest struct {
	Email    string
	Password string
}

// Actions is the single funnel through which the UI calls the identity
// provider. No method panics; provider errors and panics end up in Err.
// Session changes caused by an action reach the store through the provider's
// change stream, never through the returned data.
type Actions struct {
	provider       identity.Provider
	redirectTo     string
	requestTimeout time.Duration
}

type ActionsOption func(*Actions)

// WithSiteURL sets where confirmation mails and federated logins return to.
func WithSiteURL(siteURL string) ActionsOption {
	return func(a *Actions) {
		a.redirectTo = strings.TrimSuffix(siteURL, "/") + "/"
	}
}

// WithRequestTimeout bounds each provider call.
func WithRequestTimeout(timeout time.Duration) ActionsOption {
	return func(a *Actions) {
		a.requestTimeout = timeout
	}
}

func NewActions(provider identity.Provider, options ...ActionsOption) *Actions {
	a := &Actions{
		provider:   provider,
		redirectTo: "http://localhost:8080/",
	}
	for _, opt := range options {
		opt(a)
	}
	return a
}

// Login attempts a password sign in.
func (a *Actions) Login(ctx context.Context, email, password string) Result[*identity.AuthResponse] {
	return invoke(ctx, a, "login", func(ctx context.Context) (*identity.AuthResponse, error) {
		return a.provider.SignInWithPassword(ctx, strings.TrimSpace(email), password)
	})
}

// Signup registers a user. The confirmation mail points back at the site URL.
// Until the address is confirmed the response carries no session.
func (a *Actions) Signup(ctx context.Context, req SignupRequest) Result[*identity.AuthResponse] {
	return invoke(ctx, a, "signup", func(ctx context.Context) (*identity.AuthResponse, error) {
		return a.provider.SignUp(ctx, identity.SignUpParams{
			Email:      strings.TrimSpace(req.Email),
			Password:   req.Password,
			RedirectTo: a.redirectTo,
		})
	})
}

// SignInWithFederated starts a redirect based login with the named provider.
// The returned URL is where the user agent should go next.
func (a *Actions) SignInWithFederated(ctx context.Context, providerName string) Result[*identity.FederatedResponse] {
	return invoke(ctx, a, "federated", func(ctx context.Context) (*identity.FederatedResponse, error) {
		return a.provider.SignInWithFederatedProvider(ctx, providerName, identity.FederatedOptions{RedirectTo: a.redirectTo})
	})
}

// CompleteFederated finishes a federated login on providers that handle the
// callback themselves.
func (a *Actions) CompleteFederated(ctx context.Context, state, code string) Result[*identity.AuthResponse] {
	return invoke(ctx, a, "federated-callback", func(ctx context.Context) (*identity.AuthResponse, error) {
		handler, ok := a.provider.(identity.FederatedCallbackHandler)
		if !ok {
			return nil, autherrors.ErrUnsupported
		}
		return handler.CompleteFederatedLogin(ctx, state, code)
	})
}

// Logout asks the provider to end the session. The store clears once the
// provider emits SIGNED_OUT.
func (a *Actions) Logout(ctx context.Context) Result[struct{}] {
	return invoke(ctx, a, "logout", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, a.provider.SignOut(ctx)
	})
}

// ResendConfirmation sends the sign up confirmation mail again.
func (a *Actions) ResendConfirmation(ctx context.Context, email string) Result[struct{}] {
	return invoke(ctx, a, "resend-confirmation", func(ctx context.Context) (struct{}, error) {
		email = strings.TrimSpace(email)
		if email == "" {
			return struct{}{}, autherrors.Wrapf(autherrors.ErrInvalidRequest, "no email found to resend confirmation")
		}
		resender, ok := a.provider.(identity.ConfirmationResender)
		if !ok {
			return struct{}{}, autherrors.ErrUnsupported
		}
		return struct{}{}, resender.ResendConfirmation(ctx, email, a.redirectTo)
	})
}

func invoke[T any](ctx context.Context, a *Actions, name string, fn func(context.Context) (T, error)) (result Result[T]) {
	if a.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.requestTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("action", name).Interface("panic", r).Msg("Identity provider panicked")
			var zero T
			result = Result[T]{Data: zero, Err: fmt.Errorf("%w: %v", autherrors.ErrProviderUnavailable, r)}
		}
	}()

	data, err := fn(ctx)
	if err != nil {
		log.Warn().Err(err).Str("action", name).Msg("Auth action failed")
		var zero T
		return Result[T]{Data: zero, Err: err}
	}
	return Result[T]{Data: data}
}
