package config

import (
	"fmt"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config interface {
	EnvConfig
	CorsConfig
	IdentityConfig
	SessionConfig
	StorageConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	GetSiteURL() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type mainConfig struct {
	EnvVars
	Cors
	Identity
	Session
	Storage
}

var dotEnvLoaded sync.Once

// New loads an optional .env file and parses the environment into a Config.
func New() (Config, error) {
	dotEnvLoaded.Do(func() {
		// A missing .env file is fine
		_ = godotenv.Load()
	})

	var c mainConfig
	if err := env.Parse(&c); err != nil {
		return nil, fmt.Errorf("[config.New] parse environment: %w", err)
	}
	if err := c.Identity.validate(); err != nil {
		return nil, fmt.Errorf("[config.New] %w", err)
	}
	if err := c.Storage.validate(); err != nil {
		return nil, fmt.Errorf("[config.New] %w", err)
	}
	return c, nil
}

// GetRedirectURL returns the OAuth callback URL, this defaults to /callback
// under SITE_URL when OIDC_REDIRECT_URL is not configured.
func (c mainConfig) GetRedirectURL() string {
	if c.Identity.RedirectURL != "" {
		return c.Identity.RedirectURL
	}
	return c.EnvVars.GetSiteURL() + "/callback"
}
