package oidcprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/jrsteele09/go-auth-session/identity"
	autherrors "github.com/jrsteele09/go-auth-session/internal/errors"
	"github.com/pkg/errors"
)

type registrationRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RedirectTo string `json:"redirect_to,omitempty"`
	ClientID   string `json:"client_id"`
}

type registrationResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Confirmed bool   `json:"confirmed"`
	Error     string `json:"error"`
	Message   string `json:"error_description"`
}

// SignUp registers the user with the issuer's registration endpoint. When the
// issuer confirms the account immediately the user is signed in with the same
// credentials, otherwise the response carries no session until the emailed
// confirmation link is followed.
func (p *Provider) SignUp(ctx context.Context, params identity.SignUpParams) (*identity.AuthResponse, error) {
	if p.cfg.RegistrationURL == "" {
		return nil, autherrors.ErrUnsupported
	}
	email := normaliseEmail(params.Email)

	body, err := json.Marshal(registrationRequest{
		Email:      email,
		Password:   params.Password,
		RedirectTo: params.RedirectTo,
		ClientID:   p.cfg.ClientID,
	})
	if err != nil {
		return nil, errors.Wrap(err, "[oidcprovider.SignUp] failed to encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.RegistrationURL, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "[oidcprovider.SignUp] failed to build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, autherrors.Wrapf(autherrors.ErrProviderUnavailable, "[oidcprovider.SignUp] %v", err)
	}
	defer resp.Body.Close()

	var reg registrationResponse
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &reg); err != nil && resp.StatusCode < 300 {
			return nil, errors.Wrap(err, "[oidcprovider.SignUp] failed to decode response")
		}
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
	case http.StatusConflict:
		return nil, autherrors.ErrUserExists
	case http.StatusUnprocessableEntity:
		return nil, autherrors.Wrapf(autherrors.ErrWeakPassword, "%s", reg.Message)
	case http.StatusBadRequest:
		return nil, autherrors.Wrapf(autherrors.ErrInvalidRequest, "%s", reg.Message)
	default:
		return nil, autherrors.Wrapf(autherrors.ErrProviderUnavailable, "[oidcprovider.SignUp] status %d", resp.StatusCode)
	}

	if reg.Confirmed {
		return p.SignInWithPassword(ctx, email, params.Password)
	}

	user := &identity.User{ID: reg.ID, Email: email}
	if reg.Email != "" {
		user.Email = normaliseEmail(reg.Email)
	}
	return &identity.AuthResponse{User: user}, nil
}
