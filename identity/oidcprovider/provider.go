// Package oidcprovider adapts an OpenID Connect issuer to identity.Provider.
//
// Password sign in uses the resource owner password grant, federated sign in
// uses the authorization code flow with PKCE and an identity provider hint,
// and the current session is persisted through a persist.Repo so it survives
// restarts in the way browser storage would.
package oidcprovider

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/go-auth-session/identity"
	"github.com/jrsteele09/go-auth-session/identity/authflow"
	"github.com/jrsteele09/go-auth-session/identity/persist"
	autherrors "github.com/jrsteele09/go-auth-session/internal/errors"
	"github.com/jrsteele09/go-auth-session/internal/utils"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

var (
	_ identity.Provider                 = (*Provider)(nil)
	_ identity.FederatedCallbackHandler = (*Provider)(nil)
)

// Config describes the issuer and this client's registration with it.
type Config struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	// RegistrationURL accepts JSON sign up requests. Empty disables SignUp.
	RegistrationURL string
	// FederatedProviders are the upstream identity providers the issuer brokers.
	FederatedProviders []string
	// IdpHintParam is the authorize parameter naming the upstream provider.
	IdpHintParam string
	// SessionKey is the persist key of this client's session.
	SessionKey string
}

func (c Config) validate() error {
	if c.IssuerURL == "" || c.ClientID == "" {
		return errors.New("[oidcprovider.New] issuer URL and client ID are required")
	}
	return nil
}

type Provider struct {
	cfg           Config
	oidcProvider  *oidc.Provider
	oauth2Config  *oauth2.Config
	verifier      *oidc.IDTokenVerifier
	revocationURL string
	httpClient    *http.Client

	sessions   persist.Repo
	flows      authflow.Repo
	federated  *identity.FederatedRegistry
	dispatcher *identity.Dispatcher
	nowTime    func() time.Time
	flowTTL    time.Duration

	// refreshMu serialises token refreshes so a refresh token is used once
	refreshMu sync.Mutex
}

type Option func(*Provider)

// WithHTTPClient sets the client used for every call to the issuer.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = client
	}
}

// WithSessionRepo sets where the current session is persisted.
func WithSessionRepo(repo persist.Repo) Option {
	return func(p *Provider) {
		p.sessions = repo
	}
}

// WithFlowRepo sets where pending federated logins are kept.
func WithFlowRepo(repo authflow.Repo) Option {
	return func(p *Provider) {
		p.flows = repo
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(p *Provider) {
		p.nowTime = nowFunc
	}
}

// WithFlowTTL sets how long a started federated login stays valid.
func WithFlowTTL(ttl time.Duration) Option {
	return func(p *Provider) {
		p.flowTTL = ttl
	}
}

// New discovers the issuer and returns a ready provider.
func New(ctx context.Context, cfg Config, options ...Option) (*Provider, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.SessionKey == "" {
		cfg.SessionKey = "default"
	}
	if cfg.IdpHintParam == "" {
		cfg.IdpHintParam = "idp_hint"
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{oidc.ScopeOpenID, "profile", "email", oidc.ScopeOfflineAccess}
	}

	p := &Provider{
		cfg:        cfg,
		httpClient: http.DefaultClient,
		sessions:   persist.NewInMemoryRepo(),
		flows:      authflow.NewInMemoryRepo(),
		federated:  identity.NewFederatedRegistry(cfg.FederatedProviders...),
		dispatcher: identity.NewDispatcher(),
		nowTime:    time.Now,
		flowTTL:    10 * time.Minute,
	}
	for _, opt := range options {
		opt(p)
	}

	oidcProvider, err := oidc.NewProvider(p.clientContext(ctx), cfg.IssuerURL)
	if err != nil {
		return nil, errors.Wrap(err, "[oidcprovider.New] failed to create OIDC provider")
	}

	var discovery struct {
		RevocationEndpoint string `json:"revocation_endpoint"`
	}
	if err := oidcProvider.Claims(&discovery); err != nil {
		return nil, errors.Wrap(err, "[oidcprovider.New] failed to read discovery document")
	}

	p.oidcProvider = oidcProvider
	p.revocationURL = discovery.RevocationEndpoint
	p.verifier = oidcProvider.Verifier(&oidc.Config{ClientID: cfg.ClientID, Now: p.nowTime})
	p.oauth2Config = &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     oidcProvider.Endpoint(),
		RedirectURL:  cfg.RedirectURL,
		Scopes:       cfg.Scopes,
	}

	log.Info().Str("issuer", cfg.IssuerURL).Strs("federated", p.federated.Names()).Msg("OIDC provider ready")
	return p, nil
}

func (p *Provider) SubscribeToAuthChanges(fn identity.AuthChangeFunc) identity.Subscription {
	return p.dispatcher.Subscribe(fn)
}

// GetCurrentSession returns the persisted session. An expired session is
// refreshed when it carries a refresh token and dropped otherwise.
func (p *Provider) GetCurrentSession(ctx context.Context) (*identity.Session, error) {
	session, err := p.sessions.Load(ctx, p.cfg.SessionKey)
	if err != nil {
		return nil, errors.Wrap(err, "[oidcprovider.GetCurrentSession] failed to load session")
	}
	if session == nil || !session.Expired(p.nowTime()) {
		return session, nil
	}

	if session.RefreshToken == "" {
		p.deleteSession(ctx)
		return nil, nil
	}

	refreshed, err := p.refresh(ctx, session)
	if err != nil {
		if autherrors.Is(err, autherrors.ErrSessionExpired) {
			p.deleteSession(ctx)
			return nil, nil
		}
		return nil, err
	}
	p.dispatcher.Emit(identity.EventTokenRefreshed, refreshed)
	return refreshed, nil
}

func (p *Provider) SignInWithPassword(ctx context.Context, email, password string) (*identity.AuthResponse, error) {
	email = normaliseEmail(email)
	if email == "" || password == "" {
		return nil, autherrors.ErrInvalidCredentials
	}

	token, err := p.oauth2Config.PasswordCredentialsToken(p.clientContext(ctx), email, password)
	if err != nil {
		return nil, tokenError(err, "[oidcprovider.SignInWithPassword]")
	}

	session, err := p.sessionFromToken(ctx, token, "email", "", nil)
	if err != nil {
		return nil, err
	}
	return p.signedIn(ctx, session)
}

func (p *Provider) SignInWithFederatedProvider(ctx context.Context, name string, opts identity.FederatedOptions) (*identity.FederatedResponse, error) {
	provider, err := p.federated.Resolve(name)
	if err != nil {
		return nil, err
	}

	// Generate state, nonce and PKCE verifier for the authorization request
	state := utils.RandomString(32)
	nonce := utils.RandomString(32)
	verifier := oauth2.GenerateVerifier()

	p.flows.DeleteOlderThan(p.nowTime().Add(-p.flowTTL))
	if err := p.flows.Upsert(state, &authflow.State{
		Provider:     provider,
		CodeVerifier: verifier,
		Nonce:        nonce,
		ReturnURL:    opts.RedirectTo,
		CreatedAt:    p.nowTime(),
	}); err != nil {
		return nil, errors.Wrap(err, "[oidcprovider.SignInWithFederatedProvider] failed to store auth flow")
	}

	authURL := p.oauth2Config.AuthCodeURL(
		state,
		oauth2.AccessTypeOffline,
		oauth2.S256ChallengeOption(verifier),
		oidc.Nonce(nonce),
		oauth2.SetAuthURLParam(p.cfg.IdpHintParam, provider),
	)
	return &identity.FederatedResponse{Provider: provider, URL: authURL}, nil
}

// CompleteFederatedLogin exchanges the authorization code returned to the
// redirect URL and signs the user in.
func (p *Provider) CompleteFederatedLogin(ctx context.Context, state, code string) (*identity.AuthResponse, error) {
	if state == "" || code == "" {
		return nil, autherrors.Wrapf(autherrors.ErrInvalidRequest, "missing code or state parameter")
	}

	flow, err := p.flows.Get(state)
	if err != nil || flow == nil {
		return nil, autherrors.Wrapf(autherrors.ErrInvalidState, "unknown state %q", state)
	}
	// States are single use
	if err := p.flows.Delete(state); err != nil {
		log.Err(err).Msg("Failed to delete auth flow state")
	}
	if p.nowTime().Sub(flow.CreatedAt) > p.flowTTL {
		return nil, autherrors.Wrapf(autherrors.ErrInvalidState, "auth flow expired")
	}

	token, err := p.oauth2Config.Exchange(p.clientContext(ctx), code, oauth2.VerifierOption(flow.CodeVerifier))
	if err != nil {
		return nil, tokenError(err, "[oidcprovider.CompleteFederatedLogin]")
	}

	session, err := p.sessionFromToken(ctx, token, flow.Provider, flow.Nonce, nil)
	if err != nil {
		return nil, err
	}
	return p.signedIn(ctx, session)
}

// SignOut revokes the session's tokens at the issuer, forgets the session and
// emits SIGNED_OUT. Revocation failures are logged, not returned.
func (p *Provider) SignOut(ctx context.Context) error {
	session, err := p.sessions.Load(ctx, p.cfg.SessionKey)
	if err != nil {
		log.Err(err).Msg("Logout: Failed to load session")
	}

	if session != nil && p.revocationURL != "" {
		if session.RefreshToken != "" {
			p.revokeToken(ctx, session.RefreshToken, "refresh_token")
		}
		if session.AccessToken != "" {
			p.revokeToken(ctx, session.AccessToken, "access_token")
		}
	}

	if err := p.sessions.Delete(ctx, p.cfg.SessionKey); err != nil {
		return errors.Wrap(err, "[oidcprovider.SignOut] failed to delete session")
	}

	p.dispatcher.Emit(identity.EventSignedOut, nil)
	return nil
}

func (p *Provider) signedIn(ctx context.Context, session *identity.Session) (*identity.AuthResponse, error) {
	if err := p.sessions.Save(ctx, p.cfg.SessionKey, session); err != nil {
		return nil, errors.Wrap(err, "[oidcprovider] failed to save session")
	}
	p.dispatcher.Emit(identity.EventSignedIn, session)
	return &identity.AuthResponse{User: session.User.Clone(), Session: session.Clone()}, nil
}

func (p *Provider) deleteSession(ctx context.Context) {
	if err := p.sessions.Delete(ctx, p.cfg.SessionKey); err != nil {
		log.Err(err).Msg("Failed to delete session")
	}
}

// clientContext makes oauth2 and go-oidc use the provider's HTTP client.
func (p *Provider) clientContext(ctx context.Context) context.Context {
	return oidc.ClientContext(ctx, p.httpClient)
}

func normaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
