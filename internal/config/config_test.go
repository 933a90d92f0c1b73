package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-session/internal/config"
	"github.com/stretchr/testify/require"
)

// unsetEnv clears variables for the duration of the test
func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

// TestNew_Defaults tests the configuration produced with an empty environment
func TestNew_Defaults(t *testing.T) {
	unsetEnv(t, "IDENTITY_PROVIDER", "SESSION_STORAGE", "PORT", "ENV", "SITE_URL",
		"OIDC_REDIRECT_URL", "FEDERATED_PROVIDERS", "OIDC_SCOPES", "SESSION_FETCH_TIMEOUT", "SESSION_REFRESH_LEEWAY")

	c, err := config.New()
	require.NoError(t, err)

	require.Equal(t, ":8080", c.GetPort())
	require.Equal(t, "DEV", c.GetEnv())
	require.Equal(t, config.ProviderFake, c.GetProviderKind())
	require.Equal(t, config.StorageMemory, c.GetStorageBackend())
	require.Equal(t, "http://localhost:8080/callback", c.GetRedirectURL())
	require.Equal(t, []string{"google", "github"}, c.GetFederatedProviders())
	require.Equal(t, []string{"openid", "profile", "email", "offline_access"}, c.GetScopes())
	require.Equal(t, 10*time.Second, c.GetFetchTimeout())
	require.Equal(t, time.Minute, c.GetRefreshLeeway())
}

// TestNew_OIDCRequiresIssuer tests that the oidc provider needs an issuer and client id
func TestNew_OIDCRequiresIssuer(t *testing.T) {
	t.Setenv("IDENTITY_PROVIDER", "oidc")
	unsetEnv(t, "OIDC_ISSUER_URL", "OIDC_CLIENT_ID", "SESSION_STORAGE")

	_, err := config.New()
	require.Error(t, err)
	require.Contains(t, err.Error(), "OIDC_ISSUER_URL")
}

// TestNew_OIDCOverrides tests explicit OIDC and storage settings
func TestNew_OIDCOverrides(t *testing.T) {
	t.Setenv("IDENTITY_PROVIDER", "oidc")
	t.Setenv("OIDC_ISSUER_URL", "https://id.example.com/")
	t.Setenv("OIDC_CLIENT_ID", "shell")
	t.Setenv("OIDC_REDIRECT_URL", "https://app.example.com/cb")
	t.Setenv("FEDERATED_PROVIDERS", " Google , ,gitlab")
	t.Setenv("SESSION_STORAGE", "redis")
	t.Setenv("SITE_URL", "https://app.example.com/")
	t.Setenv("PORT", "9000")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com,https://b.example.com")

	c, err := config.New()
	require.NoError(t, err)

	require.Equal(t, ":9000", c.GetPort())
	require.Equal(t, "https://app.example.com", c.GetSiteURL())
	require.Equal(t, "https://app.example.com/cb", c.GetRedirectURL())
	require.Equal(t, "https://id.example.com/auth/signup", c.GetRegistrationURL())
	require.Equal(t, []string{"google", "gitlab"}, c.GetFederatedProviders())
	require.Equal(t, config.StorageRedis, c.GetStorageBackend())
	require.True(t, c.GetAllowedOrigins().IsAllowedOrigin("https://b.example.com"))
	require.False(t, c.GetAllowedOrigins().IsAllowedOrigin("https://c.example.com"))
}

// TestNew_UnknownStorage tests rejection of an unknown storage backend
func TestNew_UnknownStorage(t *testing.T) {
	t.Setenv("IDENTITY_PROVIDER", "fake")
	t.Setenv("SESSION_STORAGE", "disk")

	_, err := config.New()
	require.Error(t, err)
}
