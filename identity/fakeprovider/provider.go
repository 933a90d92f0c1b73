// Package fakeprovider is an in-memory identity provider. It backs the DEV
// shell and the tests of everything that consumes identity.Provider.
package fakeprovider

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-auth-session/identity"
	"github.com/jrsteele09/go-auth-session/identity/authflow"
	autherrors "github.com/jrsteele09/go-auth-session/internal/errors"
)

// Operation names used for fault injection and call counting.
const (
	OpFetch     = "fetch"
	OpSignIn    = "signin"
	OpSignUp    = "signup"
	OpFederated = "federated"
	OpCallback  = "callback"
	OpSignOut   = "signout"
	OpResend    = "resend"
)

var (
	_ identity.Provider                 = (*Provider)(nil)
	_ identity.ConfirmationResender     = (*Provider)(nil)
	_ identity.FederatedCallbackHandler = (*Provider)(nil)
)

// Mail is a message the provider would have sent.
type Mail struct {
	To         string
	Kind       string // "confirmation"
	RedirectTo string
	SentAt     time.Time
}

type Provider struct {
	accounts   *accountDirectory
	dispatcher *identity.Dispatcher
	federated  *identity.FederatedRegistry
	flows      authflow.Repo

	mu        sync.Mutex
	current   *identity.Session
	outbox    []Mail
	failures  map[string]error
	calls     map[string]int
	fetchHold chan struct{}

	autoConfirm    bool
	sessionTTL     time.Duration
	callbackURL    string
	federatedEmail func(provider string) string
	nowTime        func() time.Time
}

type Option func(*Provider)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(p *Provider) {
		p.nowTime = nowFunc
	}
}

// WithAutoConfirm makes sign ups confirmed and signed in immediately.
func WithAutoConfirm(autoConfirm bool) Option {
	return func(p *Provider) {
		p.autoConfirm = autoConfirm
	}
}

// WithSessionTTL sets the lifetime of issued access tokens.
func WithSessionTTL(ttl time.Duration) Option {
	return func(p *Provider) {
		p.sessionTTL = ttl
	}
}

// WithFederatedProviders sets the accepted federated provider names.
func WithFederatedProviders(names ...string) Option {
	return func(p *Provider) {
		p.federated = identity.NewFederatedRegistry(names...)
	}
}

// WithCallbackURL sets where federated logins return to. The fake skips the
// external consent screen and sends the user agent straight back here.
func WithCallbackURL(callbackURL string) Option {
	return func(p *Provider) {
		p.callbackURL = callbackURL
	}
}

// WithFederatedEmail chooses the email of the external account used for a
// federated login with the named provider.
func WithFederatedEmail(fn func(provider string) string) Option {
	return func(p *Provider) {
		p.federatedEmail = fn
	}
}

func New(options ...Option) *Provider {
	p := &Provider{
		accounts:    newAccountDirectory(),
		dispatcher:  identity.NewDispatcher(),
		federated:   identity.NewFederatedRegistry("google", "github"),
		flows:       authflow.NewInMemoryRepo(),
		failures:    make(map[string]error),
		calls:       make(map[string]int),
		sessionTTL:  time.Hour,
		callbackURL: "http://localhost:8080/callback",
		federatedEmail: func(provider string) string {
			return "user@" + provider + ".example"
		},
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

// AddUser registers an account directly, bypassing sign up validation.
func (p *Provider) AddUser(email, password string, confirmed bool) (*identity.User, error) {
	hash, err := hashPassword(password)
	if err != nil {
		return nil, autherrors.Wrapf(err, "[fakeprovider.AddUser] hash password")
	}
	a := &account{
		Email:        email,
		PasswordHash: hash,
		Provider:     "email",
		CreatedAt:    p.nowTime(),
	}
	if confirmed {
		now := p.nowTime()
		a.ConfirmedAt = &now
	}
	if err := p.accounts.add(a); err != nil {
		return nil, autherrors.Wrapf(err, "[fakeprovider.AddUser] %s", email)
	}
	return a.user(), nil
}

func (p *Provider) GetCurrentSession(ctx context.Context) (*identity.Session, error) {
	hold, err := p.begin(OpFetch)
	if err != nil {
		return nil, err
	}
	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current.Expired(p.nowTime()) {
		return nil, nil
	}
	return p.current.Clone(), nil
}

func (p *Provider) SubscribeToAuthChanges(fn identity.AuthChangeFunc) identity.Subscription {
	return p.dispatcher.Subscribe(fn)
}

func (p *Provider) SignInWithPassword(ctx context.Context, email, password string) (*identity.AuthResponse, error) {
	if _, err := p.begin(OpSignIn); err != nil {
		return nil, err
	}

	a, ok := p.accounts.get(email)
	if !ok || !checkPasswordHash(password, a.PasswordHash) {
		return nil, autherrors.ErrInvalidCredentials
	}
	if a.ConfirmedAt == nil {
		return nil, autherrors.ErrEmailNotConfirmed
	}
	return p.signIn(a.Email)
}

func (p *Provider) SignUp(ctx context.Context, params identity.SignUpParams) (*identity.AuthResponse, error) {
	if _, err := p.begin(OpSignUp); err != nil {
		return nil, err
	}
	if err := ValidateEmail(params.Email); err != nil {
		return nil, err
	}
	if err := ValidatePasswordStrength(params.Password); err != nil {
		return nil, err
	}

	hash, err := hashPassword(params.Password)
	if err != nil {
		return nil, autherrors.Wrapf(autherrors.ErrInternal, "[fakeprovider.SignUp] %v", err)
	}
	a := &account{
		Email:        params.Email,
		PasswordHash: hash,
		Provider:     "email",
		CreatedAt:    p.nowTime(),
	}
	if p.autoConfirm {
		now := p.nowTime()
		a.ConfirmedAt = &now
	}
	if err := p.accounts.add(a); err != nil {
		return nil, err
	}

	if p.autoConfirm {
		return p.signIn(a.Email)
	}

	p.sendMail(a.Email, params.RedirectTo)
	return &identity.AuthResponse{User: a.user()}, nil
}

// ConfirmEmail simulates the user following the confirmation link, which
// confirms the account and signs it in.
func (p *Provider) ConfirmEmail(email string) (*identity.AuthResponse, error) {
	if _, err := p.accounts.update(email, func(a *account) {
		if a.ConfirmedAt == nil {
			now := p.nowTime()
			a.ConfirmedAt = &now
		}
	}); err != nil {
		return nil, err
	}
	return p.signIn(email)
}

func (p *Provider) ResendConfirmation(ctx context.Context, email string, redirectTo string) error {
	if _, err := p.begin(OpResend); err != nil {
		return err
	}
	a, ok := p.accounts.get(email)
	if !ok {
		return autherrors.ErrUserNotFound
	}
	if a.ConfirmedAt != nil {
		return autherrors.Wrapf(autherrors.ErrInvalidRequest, "email already confirmed")
	}
	p.sendMail(a.Email, redirectTo)
	return nil
}

func (p *Provider) SignInWithFederatedProvider(ctx context.Context, name string, opts identity.FederatedOptions) (*identity.FederatedResponse, error) {
	if _, err := p.begin(OpFederated); err != nil {
		return nil, err
	}
	provider, err := p.federated.Resolve(name)
	if err != nil {
		return nil, err
	}

	state := uuid.New().String()
	code := uuid.New().String()
	if err := p.flows.Upsert(state, &authflow.State{
		Provider:     provider,
		CodeVerifier: code,
		ReturnURL:    opts.RedirectTo,
		CreatedAt:    p.nowTime(),
	}); err != nil {
		return nil, autherrors.Wrapf(autherrors.ErrInternal, "[fakeprovider] store flow: %v", err)
	}

	q := url.Values{}
	q.Set("state", state)
	q.Set("code", code)
	return &identity.FederatedResponse{
		Provider: provider,
		URL:      p.callbackURL + "?" + q.Encode(),
	}, nil
}

func (p *Provider) CompleteFederatedLogin(ctx context.Context, state, code string) (*identity.AuthResponse, error) {
	if _, err := p.begin(OpCallback); err != nil {
		return nil, err
	}
	flow, err := p.flows.Get(state)
	if err != nil {
		return nil, autherrors.Wrapf(autherrors.ErrInvalidState, "%v", err)
	}
	_ = p.flows.Delete(state)
	if flow.CodeVerifier != code {
		return nil, autherrors.Wrapf(autherrors.ErrInvalidRequest, "authorization code mismatch")
	}

	email := p.federatedEmail(flow.Provider)
	if _, ok := p.accounts.get(email); !ok {
		now := p.nowTime()
		if err := p.accounts.add(&account{
			Email:       email,
			Provider:    flow.Provider,
			CreatedAt:   now,
			ConfirmedAt: &now,
		}); err != nil && !autherrors.Is(err, autherrors.ErrUserExists) {
			return nil, err
		}
	}
	return p.signInWith(email, flow.Provider)
}

func (p *Provider) SignOut(ctx context.Context) error {
	if _, err := p.begin(OpSignOut); err != nil {
		return err
	}
	p.mu.Lock()
	p.current = nil
	p.mu.Unlock()

	p.dispatcher.Emit(identity.EventSignedOut, nil)
	return nil
}

// RefreshSession rotates the current session's tokens and emits TOKEN_REFRESHED.
func (p *Provider) RefreshSession() (*identity.Session, error) {
	p.mu.Lock()
	if p.current == nil {
		p.mu.Unlock()
		return nil, autherrors.ErrSessionNotFound
	}
	p.current.AccessToken = uuid.New().String()
	p.current.RefreshToken = uuid.New().String()
	p.current.ExpiresAt = p.nowTime().Add(p.sessionTTL)
	s := p.current.Clone()
	p.mu.Unlock()

	p.dispatcher.Emit(identity.EventTokenRefreshed, s)
	return s, nil
}

// Emit pushes an arbitrary change-stream event, as a remote provider might.
func (p *Provider) Emit(event identity.EventType, session *identity.Session) {
	p.dispatcher.Emit(event, session)
}

// HoldFetches blocks GetCurrentSession until the returned function is called.
func (p *Provider) HoldFetches() (release func()) {
	hold := make(chan struct{})
	p.mu.Lock()
	p.fetchHold = hold
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			if p.fetchHold == hold {
				p.fetchHold = nil
			}
			p.mu.Unlock()
			close(hold)
		})
	}
}

// FailNext makes the next call of op return err.
func (p *Provider) FailNext(op string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[op] = err
}

// Calls returns how many times op was invoked.
func (p *Provider) Calls(op string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[op]
}

// Outbox returns the mails sent so far.
func (p *Provider) Outbox() []Mail {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Mail(nil), p.outbox...)
}

// Subscribers returns the number of active change-stream subscribers.
func (p *Provider) Subscribers() int {
	return p.dispatcher.Len()
}

// begin counts the call and consumes any injected failure
func (p *Provider) begin(op string) (chan struct{}, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls[op]++
	if err, ok := p.failures[op]; ok {
		delete(p.failures, op)
		return nil, err
	}
	if op == OpFetch {
		return p.fetchHold, nil
	}
	return nil, nil
}

func (p *Provider) signIn(email string) (*identity.AuthResponse, error) {
	return p.signInWith(email, "email")
}

func (p *Provider) signInWith(email, providerName string) (*identity.AuthResponse, error) {
	now := p.nowTime()
	a, err := p.accounts.update(email, func(a *account) {
		a.LastSignInAt = now
	})
	if err != nil {
		return nil, err
	}

	session := &identity.Session{
		AccessToken:  uuid.New().String(),
		RefreshToken: uuid.New().String(),
		TokenType:    "bearer",
		ExpiresAt:    now.Add(p.sessionTTL),
		ProviderName: providerName,
		User:         a.user(),
	}

	p.mu.Lock()
	p.current = session.Clone()
	p.mu.Unlock()

	p.dispatcher.Emit(identity.EventSignedIn, session)
	return &identity.AuthResponse{User: session.User.Clone(), Session: session}, nil
}

func (p *Provider) sendMail(to, redirectTo string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.outbox = append(p.outbox, Mail{
		To:         to,
		Kind:       "confirmation",
		RedirectTo: redirectTo,
		SentAt:     p.nowTime(),
	})
}
