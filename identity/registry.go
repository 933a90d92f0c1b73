package identity

import (
	"sort"
	"strings"

	autherrors "github.com/jrsteele09/go-auth-session/internal/errors"
)

// FederatedRegistry holds the names of the external providers a deployment
// allows for redirect based login, e.g. "google" or "github".
type FederatedRegistry struct {
	names map[string]struct{}
}

// NewFederatedRegistry registers names case-insensitively.
func NewFederatedRegistry(names ...string) *FederatedRegistry {
	m := make(map[string]struct{}, len(names))
	for _, n := range names {
		if n = normaliseProviderName(n); n != "" {
			m[n] = struct{}{}
		}
	}
	return &FederatedRegistry{names: m}
}

// Resolve returns the canonical provider name or ErrUnknownProvider.
func (r *FederatedRegistry) Resolve(name string) (string, error) {
	n := normaliseProviderName(name)
	if r == nil {
		return "", autherrors.Wrapf(autherrors.ErrUnknownProvider, "provider %q", name)
	}
	if _, ok := r.names[n]; !ok {
		return "", autherrors.Wrapf(autherrors.ErrUnknownProvider, "provider %q", name)
	}
	return n, nil
}

// Names returns the registered provider names in sorted order.
func (r *FederatedRegistry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.names))
	for n := range r.names {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func normaliseProviderName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
