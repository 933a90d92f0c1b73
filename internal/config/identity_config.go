package config

import (
	"fmt"
	"strings"
)

const (
	ProviderFake = "fake"
	ProviderOIDC = "oidc"
)

type IdentityConfig interface {
	GetProviderKind() string
	GetIssuerURL() string
	GetClientID() string
	GetClientSecret() string
	GetRedirectURL() string
	GetScopes() []string
	GetRegistrationURL() string
	GetFederatedProviders() []string
	GetIdpHintParam() string
	GetDevUserEmail() string
	GetDevUserPassword() string
	GetAutoConfirm() bool
}

type Identity struct {
	ProviderKind       string   `env:"IDENTITY_PROVIDER" envDefault:"fake"`
	IssuerURL          string   `env:"OIDC_ISSUER_URL"`
	ClientID           string   `env:"OIDC_CLIENT_ID"`
	ClientSecret       string   `env:"OIDC_CLIENT_SECRET"`
	RedirectURL        string   `env:"OIDC_REDIRECT_URL"`
	Scopes             []string `env:"OIDC_SCOPES" envSeparator:" " envDefault:"openid profile email offline_access"`
	RegistrationURL    string   `env:"OIDC_REGISTRATION_URL"`
	FederatedProviders []string `env:"FEDERATED_PROVIDERS" envSeparator:"," envDefault:"google,github"`
	IdpHintParam       string   `env:"OIDC_IDP_HINT_PARAM" envDefault:"idp_hint"`

	DevUserEmail    string `env:"DEV_USER_EMAIL"`
	DevUserPassword string `env:"DEV_USER_PASSWORD"`
	AutoConfirm     bool   `env:"AUTO_CONFIRM_SIGNUPS" envDefault:"false"`
}

var _ IdentityConfig = Identity{}

func (i Identity) validate() error {
	switch i.ProviderKind {
	case ProviderFake:
		return nil
	case ProviderOIDC:
		if i.IssuerURL == "" || i.ClientID == "" {
			return fmt.Errorf("OIDC_ISSUER_URL and OIDC_CLIENT_ID are required for the oidc provider")
		}
		return nil
	}
	return fmt.Errorf("unknown IDENTITY_PROVIDER %q", i.ProviderKind)
}

func (i Identity) GetProviderKind() string {
	return i.ProviderKind
}

func (i Identity) GetIssuerURL() string {
	return i.IssuerURL
}

func (i Identity) GetClientID() string {
	return i.ClientID
}

func (i Identity) GetClientSecret() string {
	return i.ClientSecret
}

func (i Identity) GetRedirectURL() string {
	return i.RedirectURL
}

func (i Identity) GetScopes() []string {
	return i.Scopes
}

func (i Identity) GetRegistrationURL() string {
	if i.RegistrationURL != "" {
		return i.RegistrationURL
	}
	if i.IssuerURL == "" {
		return ""
	}
	return strings.TrimRight(i.IssuerURL, "/") + "/auth/signup"
}

func (i Identity) GetFederatedProviders() []string {
	var names []string
	for _, n := range i.FederatedProviders {
		if n = strings.TrimSpace(strings.ToLower(n)); n != "" {
			names = append(names, n)
		}
	}
	return names
}

func (i Identity) GetIdpHintParam() string {
	return i.IdpHintParam
}

func (i Identity) GetDevUserEmail() string {
	return i.DevUserEmail
}

func (i Identity) GetDevUserPassword() string {
	return i.DevUserPassword
}

func (i Identity) GetAutoConfirm() bool {
	return i.AutoConfirm
}
