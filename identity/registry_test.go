package identity_test

import (
	"testing"

	"github.com/jrsteele09/go-auth-session/identity"
	autherrors "github.com/jrsteele09/go-auth-session/internal/errors"
	"github.com/stretchr/testify/require"
)

// TestFederatedRegistry_Resolve tests case-insensitive lookup and unknown names
func TestFederatedRegistry_Resolve(t *testing.T) {
	r := identity.NewFederatedRegistry("Google", " github ", "")

	name, err := r.Resolve("GOOGLE")
	require.NoError(t, err)
	require.Equal(t, "google", name)

	_, err = r.Resolve("gitlab")
	require.ErrorIs(t, err, autherrors.ErrUnknownProvider)

	require.Equal(t, []string{"github", "google"}, r.Names())
}
