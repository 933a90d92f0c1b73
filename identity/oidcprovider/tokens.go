package oidcprovider

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-auth-session/identity"
	autherrors "github.com/jrsteele09/go-auth-session/internal/errors"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// identityClaims are the claims read from an ID token, or from a JWT access
// token when the issuer returns no ID token.
type identityClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
	Nonce         string `json:"nonce"`
	AuthTime      int64  `json:"auth_time"`
	jwt.RegisteredClaims
}

// sessionFromToken builds a session from a token response. previous, when
// set, supplies the user for refresh responses that carry no identity.
func (p *Provider) sessionFromToken(ctx context.Context, token *oauth2.Token, providerName, nonce string, previous *identity.Session) (*identity.Session, error) {
	var claims identityClaims
	rawIDToken, _ := token.Extra("id_token").(string)

	switch {
	case rawIDToken != "":
		idToken, err := p.verifier.Verify(p.clientContext(ctx), rawIDToken)
		if err != nil {
			return nil, errors.Wrap(err, "[oidcprovider] ID token verification failed")
		}
		if err := idToken.Claims(&claims); err != nil {
			return nil, errors.Wrap(err, "[oidcprovider] failed to extract claims")
		}
		// Validate nonce to prevent replay attacks
		if nonce != "" && claims.Nonce != nonce {
			return nil, autherrors.ErrInvalidNonce
		}
	case previous == nil:
		// The access token is only inspected, it is the issuer's to validate
		if _, _, err := jwt.NewParser().ParseUnverified(token.AccessToken, &claims); err != nil {
			return nil, errors.Wrap(err, "[oidcprovider] no ID token and access token is not a JWT")
		}
	}

	now := p.nowTime()
	session := &identity.Session{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.Type(),
		ExpiresAt:    token.Expiry,
		ProviderName: providerName,
	}
	if rawIDToken != "" {
		session.Metadata = map[string]any{"id_token": rawIDToken}
	}

	if claims.Subject == "" {
		if previous == nil || previous.User == nil {
			return nil, errors.New("[oidcprovider] token carries no subject")
		}
		session.User = previous.User.Clone()
		if session.RefreshToken == "" {
			session.RefreshToken = previous.RefreshToken
		}
		return session, nil
	}

	user := &identity.User{
		ID:           claims.Subject,
		Email:        normaliseEmail(claims.Email),
		LastSignInAt: now,
		UserMetadata: map[string]any{},
	}
	if claims.AuthTime > 0 {
		user.LastSignInAt = time.Unix(claims.AuthTime, 0).UTC()
	}
	if claims.EmailVerified {
		user.EmailConfirmedAt = &now
	}
	if claims.Name != "" {
		user.UserMetadata["name"] = claims.Name
	}
	if claims.Picture != "" {
		user.UserMetadata["picture"] = claims.Picture
	}
	if previous != nil && previous.User != nil && previous.User.ID == user.ID {
		user.EmailConfirmedAt = previous.User.EmailConfirmedAt
		if claims.AuthTime == 0 {
			user.LastSignInAt = previous.User.LastSignInAt
		}
	}
	session.User = user
	if session.RefreshToken == "" && previous != nil {
		session.RefreshToken = previous.RefreshToken
	}
	return session, nil
}

// refresh exchanges the session's refresh token and persists the result. A
// rejected refresh token yields ErrSessionExpired.
func (p *Provider) refresh(ctx context.Context, session *identity.Session) (*identity.Session, error) {
	p.refreshMu.Lock()
	defer p.refreshMu.Unlock()

	// Another caller may have refreshed while we waited
	if current, err := p.sessions.Load(ctx, p.cfg.SessionKey); err == nil && current != nil &&
		current.AccessToken != session.AccessToken && !current.Expired(p.nowTime()) {
		return current, nil
	}

	// Without an access token the token source always goes to the issuer
	ts := p.oauth2Config.TokenSource(p.clientContext(ctx), &oauth2.Token{RefreshToken: session.RefreshToken})
	token, err := ts.Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.ErrorCode == "invalid_grant" {
			return nil, autherrors.Wrapf(autherrors.ErrSessionExpired, "[oidcprovider.refresh] %s", re.ErrorDescription)
		}
		return nil, tokenError(err, "[oidcprovider.refresh]")
	}

	refreshed, err := p.sessionFromToken(ctx, token, session.ProviderName, "", session)
	if err != nil {
		return nil, err
	}
	if err := p.sessions.Save(ctx, p.cfg.SessionKey, refreshed); err != nil {
		return nil, errors.Wrap(err, "[oidcprovider.refresh] failed to save session")
	}
	return refreshed, nil
}

// revokeToken asks the issuer to revoke a token, RFC 7009.
func (p *Provider) revokeToken(ctx context.Context, token, tokenTypeHint string) {
	form := url.Values{}
	form.Set("token", token)
	form.Set("token_type_hint", tokenTypeHint)
	form.Set("client_id", p.cfg.ClientID)
	if p.cfg.ClientSecret != "" {
		form.Set("client_secret", p.cfg.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.revocationURL, strings.NewReader(form.Encode()))
	if err != nil {
		log.Err(err).Str("token_type", tokenTypeHint).Msg("Failed to revoke token")
		return
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		log.Err(err).Str("token_type", tokenTypeHint).Msg("Failed to revoke token")
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Warn().Int("status", resp.StatusCode).Str("token_type", tokenTypeHint).Msg("Token revocation rejected")
	}
}

// tokenError maps token endpoint failures onto the error taxonomy.
func tokenError(err error, op string) error {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return autherrors.Wrapf(autherrors.ErrProviderUnavailable, "%s %v", op, err)
	}

	desc := strings.ToLower(re.ErrorDescription)
	switch {
	case re.ErrorCode == "invalid_grant" && (strings.Contains(desc, "not verified") || strings.Contains(desc, "not fully set up")):
		return autherrors.Wrapf(autherrors.ErrEmailNotConfirmed, "%s %s", op, re.ErrorDescription)
	case re.ErrorCode == "invalid_grant":
		return autherrors.Wrapf(autherrors.ErrInvalidCredentials, "%s %s", op, re.ErrorDescription)
	case re.ErrorCode == "invalid_request":
		return autherrors.Wrapf(autherrors.ErrInvalidRequest, "%s %s", op, re.ErrorDescription)
	case re.Response != nil && re.Response.StatusCode >= http.StatusInternalServerError:
		return autherrors.Wrapf(autherrors.ErrProviderUnavailable, "%s %v", op, err)
	}
	return autherrors.Wrapf(autherrors.ErrProviderUnavailable, "%s %s", op, re.Error())
}
