package gate_test

import (
	"context"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-session/gate"
	"github.com/jrsteele09/go-auth-session/identity/fakeprovider"
	"github.com/jrsteele09/go-auth-session/sessionstore"
	"github.com/stretchr/testify/require"
)

func queryParam(t *testing.T, rawURL, key string) string {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	return u.Query().Get(key)
}

type decisionLog struct {
	mu        sync.Mutex
	decisions []gate.Decision
}

func (l *decisionLog) record(d gate.Decision) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.decisions = append(l.decisions, d)
}

func (l *decisionLog) all() []gate.Decision {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]gate.Decision(nil), l.decisions...)
}

// TestNavigator_FollowsSessionChanges tests that login and logout re-route an open page
func TestNavigator_FollowsSessionChanges(t *testing.T) {
	ctx := context.Background()
	p := fakeprovider.New()
	_, err := p.AddUser(testEmail, testPassword, true)
	require.NoError(t, err)

	release := p.HoldFetches()
	store := sessionstore.New(ctx, p)
	defer store.Close()

	log := &decisionLog{}
	nav := gate.NewNavigator(store, gate.NewRouteTable(gate.DefaultPaths), "/", log.record)
	defer nav.Close()
	require.Equal(t, gate.OutcomeWait, nav.Current().Outcome)

	release()
	select {
	case <-store.InitialFetchDone():
	case <-time.After(2 * time.Second):
		t.Fatal("initial fetch did not finish")
	}

	require.Equal(t, gate.OutcomeRedirect, nav.Current().Outcome)
	require.Equal(t, "/auth", nav.Current().Location)
	require.Equal(t, "/auth", nav.Path())

	_, err = p.SignInWithPassword(ctx, testEmail, testPassword)
	require.NoError(t, err)
	require.Equal(t, "/", nav.Path())

	require.NoError(t, p.SignOut(ctx))
	require.Equal(t, "/auth", nav.Path())

	decisions := log.all()
	require.Len(t, decisions, 3)
	require.Equal(t, "/auth", decisions[0].Location)
	require.Equal(t, "/", decisions[1].Location)
	require.Equal(t, "/auth", decisions[2].Location)
}

// TestNavigator_Navigate tests explicit navigation and Close
func TestNavigator_Navigate(t *testing.T) {
	ctx := context.Background()
	p := fakeprovider.New()
	_, err := p.AddUser(testEmail, testPassword, true)
	require.NoError(t, err)

	store := sessionstore.New(ctx, p)
	defer store.Close()
	require.NoError(t, store.WaitReady(ctx))

	count := 0
	nav := gate.NewNavigator(store, gate.NewRouteTable(gate.DefaultPaths), "/auth", func(gate.Decision) { count++ })
	require.Equal(t, gate.OutcomeRender, nav.Current().Outcome)

	d := nav.Navigate(store.Snapshot(), "/signup")
	require.Equal(t, "/auth?mode=sign_up", d.Location)
	require.Equal(t, "/auth", nav.Path())

	nav.Close()
	_, err = p.SignInWithPassword(ctx, testEmail, testPassword)
	require.NoError(t, err)
	require.Zero(t, count)
}
