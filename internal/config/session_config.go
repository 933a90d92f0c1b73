package config

import "time"

type SessionConfig interface {
	GetFetchTimeout() time.Duration
	GetRequestTimeout() time.Duration
	GetRefreshInterval() time.Duration
	GetRefreshLeeway() time.Duration
}

type Session struct {
	FetchTimeout    time.Duration `env:"SESSION_FETCH_TIMEOUT" envDefault:"10s"`
	RequestTimeout  time.Duration `env:"PROVIDER_REQUEST_TIMEOUT" envDefault:"15s"`
	RefreshInterval time.Duration `env:"SESSION_REFRESH_INTERVAL" envDefault:"30s"`
	RefreshLeeway   time.Duration `env:"SESSION_REFRESH_LEEWAY" envDefault:"1m"`
}

var _ SessionConfig = Session{}

func (s Session) GetFetchTimeout() time.Duration {
	return s.FetchTimeout
}

func (s Session) GetRequestTimeout() time.Duration {
	return s.RequestTimeout
}

func (s Session) GetRefreshInterval() time.Duration {
	return s.RefreshInterval
}

// GetRefreshLeeway is how long before expiry an access token gets refreshed
func (s Session) GetRefreshLeeway() time.Duration {
	return s.RefreshLeeway
}
