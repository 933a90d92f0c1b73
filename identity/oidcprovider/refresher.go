package oidcprovider

import (
	"context"
	"time"

	"github.com/jrsteele09/go-auth-session/identity"
	autherrors "github.com/jrsteele09/go-auth-session/internal/errors"
	"github.com/rs/zerolog/log"
)

// RefreshSession refreshes the persisted session now and emits
// TOKEN_REFRESHED. A session the issuer no longer accepts is removed and
// SIGNED_OUT is emitted instead.
func (p *Provider) RefreshSession(ctx context.Context) (*identity.Session, error) {
	session, err := p.sessions.Load(ctx, p.cfg.SessionKey)
	if err != nil {
		return nil, autherrors.Wrapf(autherrors.ErrProviderUnavailable, "[oidcprovider.RefreshSession] %v", err)
	}
	if session == nil || session.RefreshToken == "" {
		return nil, autherrors.ErrSessionNotFound
	}

	refreshed, err := p.refresh(ctx, session)
	if err != nil {
		if autherrors.Is(err, autherrors.ErrSessionExpired) {
			p.deleteSession(ctx)
			p.dispatcher.Emit(identity.EventSignedOut, nil)
		}
		return nil, err
	}

	p.dispatcher.Emit(identity.EventTokenRefreshed, refreshed)
	return refreshed, nil
}

// StartAutoRefresh refreshes the session whenever it is within leeway of
// expiring, checking every interval until ctx is done.
func (p *Provider) StartAutoRefresh(ctx context.Context, interval, leeway time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Debug().Dur("interval", interval).Dur("leeway", leeway).Msg("Session auto refresh started")
	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("Session auto refresh stopped")
			return
		case <-ticker.C:
			p.refreshIfDue(ctx, leeway)
		}
	}
}

func (p *Provider) refreshIfDue(ctx context.Context, leeway time.Duration) {
	session, err := p.sessions.Load(ctx, p.cfg.SessionKey)
	if err != nil {
		log.Err(err).Msg("Auto refresh: Failed to load session")
		return
	}
	if session == nil || session.ExpiresAt.IsZero() {
		return
	}
	if session.ExpiresAt.Sub(p.nowTime()) > leeway {
		return
	}

	if session.RefreshToken == "" {
		if session.Expired(p.nowTime()) {
			p.deleteSession(ctx)
			p.dispatcher.Emit(identity.EventSignedOut, nil)
		}
		return
	}

	if _, err := p.RefreshSession(ctx); err != nil {
		log.Err(err).Msg("Auto refresh: Failed to refresh session")
	}
}
