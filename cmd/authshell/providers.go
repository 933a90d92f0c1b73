package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jrsteele09/go-auth-session/identity"
	"github.com/jrsteele09/go-auth-session/identity/fakeprovider"
	"github.com/jrsteele09/go-auth-session/identity/oidcprovider"
	"github.com/jrsteele09/go-auth-session/identity/persist"
	"github.com/jrsteele09/go-auth-session/internal/config"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// newProvider builds the identity provider selected by IDENTITY_PROVIDER.
// Background work such as token refresh stops with ctx.
func newProvider(ctx context.Context, c config.Config) (identity.Provider, error) {
	switch c.GetProviderKind() {
	case config.ProviderOIDC:
		return newOIDCProvider(ctx, c)
	default:
		return newFakeProvider(c)
	}
}

func newFakeProvider(c config.Config) (*fakeprovider.Provider, error) {
	p := fakeprovider.New(
		fakeprovider.WithAutoConfirm(c.GetAutoConfirm()),
		fakeprovider.WithFederatedProviders(c.GetFederatedProviders()...),
		fakeprovider.WithCallbackURL(c.GetRedirectURL()),
	)

	if email := c.GetDevUserEmail(); email != "" {
		if _, err := p.AddUser(email, c.GetDevUserPassword(), true); err != nil {
			return nil, fmt.Errorf("failed to seed dev user: %w", err)
		}
		log.Info().Str("email", email).Msg("Seeded dev user")
	}

	log.Warn().Msg("Using the in-memory identity provider, accounts are lost on restart")
	return p, nil
}

func newOIDCProvider(ctx context.Context, c config.Config) (*oidcprovider.Provider, error) {
	sessions, err := newSessionRepo(ctx, c)
	if err != nil {
		return nil, err
	}

	p, err := oidcprovider.New(ctx, oidcprovider.Config{
		IssuerURL:          c.GetIssuerURL(),
		ClientID:           c.GetClientID(),
		ClientSecret:       c.GetClientSecret(),
		RedirectURL:        c.GetRedirectURL(),
		Scopes:             c.GetScopes(),
		RegistrationURL:    c.GetRegistrationURL(),
		FederatedProviders: c.GetFederatedProviders(),
		IdpHintParam:       c.GetIdpHintParam(),
		SessionKey:         c.GetStorageKey(),
	}, oidcprovider.WithSessionRepo(sessions))
	if err != nil {
		return nil, err
	}

	go p.StartAutoRefresh(ctx, c.GetRefreshInterval(), c.GetRefreshLeeway())
	return p, nil
}

// newSessionRepo is where the OIDC session survives restarts.
func newSessionRepo(ctx context.Context, c config.Config) (persist.Repo, error) {
	if c.GetStorageBackend() != config.StorageRedis {
		return persist.NewInMemoryRepo(), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     c.GetRedisAddr(),
		Password: c.GetRedisPassword(),
		DB:       c.GetRedisDB(),
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", c.GetRedisAddr(), err)
	}

	go func() {
		<-ctx.Done()
		if err := client.Close(); err != nil {
			log.Err(err).Msg("Failed to close redis client")
		}
	}()

	log.Info().Str("addr", c.GetRedisAddr()).Msg("Persisting sessions in redis")
	return persist.NewRedisRepo(client), nil
}
