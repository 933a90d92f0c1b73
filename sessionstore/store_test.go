package sessionstore_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-session/identity"
	"github.com/jrsteele09/go-auth-session/identity/fakeprovider"
	autherrors "github.com/jrsteele09/go-auth-session/internal/errors"
	"github.com/jrsteele09/go-auth-session/sessionstore"
	"github.com/stretchr/testify/require"
)

type fetchResult struct {
	session *identity.Session
	err     error
}

// stubProvider lets a test decide exactly when the initial fetch resolves and
// which change-stream events are delivered.
type stubProvider struct {
	dispatcher *identity.Dispatcher
	fetch      chan fetchResult
	panicFetch bool
}

var _ identity.Provider = (*stubProvider)(nil)

func newStubProvider() *stubProvider {
	return &stubProvider{
		dispatcher: identity.NewDispatcher(),
		fetch:      make(chan fetchResult, 1),
	}
}

func (p *stubProvider) GetCurrentSession(ctx context.Context) (*identity.Session, error) {
	if p.panicFetch {
		panic("provider exploded")
	}
	select {
	case r := <-p.fetch:
		return r.session, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *stubProvider) SubscribeToAuthChanges(fn identity.AuthChangeFunc) identity.Subscription {
	return p.dispatcher.Subscribe(fn)
}

func (p *stubProvider) SignInWithPassword(context.Context, string, string) (*identity.AuthResponse, error) {
	return nil, autherrors.ErrUnsupported
}

func (p *stubProvider) SignUp(context.Context, identity.SignUpParams) (*identity.AuthResponse, error) {
	return nil, autherrors.ErrUnsupported
}

func (p *stubProvider) SignInWithFederatedProvider(context.Context, string, identity.FederatedOptions) (*identity.FederatedResponse, error) {
	return nil, autherrors.ErrUnsupported
}

func (p *stubProvider) SignOut(context.Context) error {
	p.dispatcher.Emit(identity.EventSignedOut, nil)
	return nil
}

func (p *stubProvider) resolveFetch(session *identity.Session, err error) {
	p.fetch <- fetchResult{session: session, err: err}
}

func userSession(id, email, token string) *identity.Session {
	return &identity.Session{
		AccessToken:  token,
		RefreshToken: "refresh-" + token,
		TokenType:    "bearer",
		ExpiresAt:    time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
		User:         &identity.User{ID: id, Email: email},
	}
}

// stateRecorder collects every watcher notification and checks the user/session invariant on each
type stateRecorder struct {
	t      *testing.T
	mu     sync.Mutex
	states []sessionstore.State
}

func (r *stateRecorder) record(s sessionstore.State) {
	require.Equal(r.t, s.Session == nil, s.User == nil, "user must be present exactly when session is")
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *stateRecorder) all() []sessionstore.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sessionstore.State(nil), r.states...)
}

func waitClosed(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting")
	}
}

// setupStore creates a store over a stub provider with a recording watcher
func setupStore(t *testing.T, options ...sessionstore.Option) (*sessionstore.Store, *stubProvider, *stateRecorder) {
	t.Helper()
	p := newStubProvider()
	s := sessionstore.New(context.Background(), p, options...)
	t.Cleanup(s.Close)

	rec := &stateRecorder{t: t}
	s.Watch(rec.record)
	return s, p, rec
}

// TestNew_StartsLoading tests the initial empty loading state and the subscription
func TestNew_StartsLoading(t *testing.T) {
	s, p, _ := setupStore(t)

	state := s.Snapshot()
	require.True(t, state.Loading)
	require.Nil(t, state.Session)
	require.Nil(t, state.User)
	require.False(t, state.Authenticated())
	require.Equal(t, 1, p.dispatcher.Len())

	select {
	case <-s.Ready():
		t.Fatal("store must not be ready before the first session check resolves")
	default:
	}
}

// TestFetchResolvesFirst tests a fetch that resolves before any stream event
func TestFetchResolvesFirst(t *testing.T) {
	s, p, rec := setupStore(t)

	p.resolveFetch(userSession("u1", "a@x.com", "t1"), nil)
	waitClosed(t, s.InitialFetchDone())

	state := s.Snapshot()
	require.False(t, state.Loading)
	require.Equal(t, "u1", state.User.ID)
	require.Equal(t, "a@x.com", state.User.Email)
	require.True(t, state.Authenticated())
	require.Len(t, rec.all(), 1)
	waitClosed(t, s.Ready())
}

// TestStreamEventBeatsStaleFetch tests that a late fetch result never reverts a live event
func TestStreamEventBeatsStaleFetch(t *testing.T) {
	s, p, rec := setupStore(t)

	p.dispatcher.Emit(identity.EventSignedIn, userSession("u1", "a@x.com", "t1"))
	require.False(t, s.Snapshot().Loading)

	p.resolveFetch(nil, nil)
	waitClosed(t, s.InitialFetchDone())

	state := s.Snapshot()
	require.False(t, state.Loading)
	require.NotNil(t, state.Session)
	require.Equal(t, "u1", state.User.ID)
	require.Len(t, rec.all(), 1, "the discarded fetch must not produce a notification")
}

// TestRaceConvergence tests that both orderings of fetch and first event end in the same state
func TestRaceConvergence(t *testing.T) {
	payload := userSession("u1", "a@x.com", "t1")

	fetchFirst, p1, _ := setupStore(t)
	p1.resolveFetch(payload, nil)
	waitClosed(t, fetchFirst.InitialFetchDone())
	p1.dispatcher.Emit(identity.EventSignedIn, payload)

	eventFirst, p2, _ := setupStore(t)
	p2.dispatcher.Emit(identity.EventSignedIn, payload)
	p2.resolveFetch(payload, nil)
	waitClosed(t, eventFirst.InitialFetchDone())

	a, b := fetchFirst.Snapshot(), eventFirst.Snapshot()
	require.False(t, a.Loading)
	require.False(t, b.Loading)
	require.True(t, a.Session.Equal(b.Session))
	require.True(t, a.User.Equal(b.User))
}

// TestFetchError_ClearsLoading tests that a failing fetch is absorbed as no session
func TestFetchError_ClearsLoading(t *testing.T) {
	s, p, rec := setupStore(t)

	p.resolveFetch(userSession("u1", "a@x.com", "t1"), errors.New("network down"))
	waitClosed(t, s.InitialFetchDone())

	state := s.Snapshot()
	require.False(t, state.Loading)
	require.Nil(t, state.Session)
	require.Nil(t, state.User)
	require.Len(t, rec.all(), 1)
}

// TestFetchPanic_ClearsLoading tests that a panicking provider does not leave the store loading
func TestFetchPanic_ClearsLoading(t *testing.T) {
	p := newStubProvider()
	p.panicFetch = true
	s := sessionstore.New(context.Background(), p)
	defer s.Close()

	waitClosed(t, s.InitialFetchDone())
	state := s.Snapshot()
	require.False(t, state.Loading)
	require.Nil(t, state.Session)
}

// TestFetchTimeout_ClearsLoading tests that a hung fetch is bounded by the fetch timeout
func TestFetchTimeout_ClearsLoading(t *testing.T) {
	s, _, _ := setupStore(t, sessionstore.WithFetchTimeout(20*time.Millisecond))

	require.NoError(t, s.WaitReady(context.Background()))
	require.Nil(t, s.Snapshot().Session)
}

// TestLoadingIsMonotonic tests that loading goes true to false once and never back
func TestLoadingIsMonotonic(t *testing.T) {
	s, p, rec := setupStore(t)

	p.dispatcher.Emit(identity.EventSignedIn, userSession("u1", "a@x.com", "t1"))
	p.resolveFetch(userSession("u1", "a@x.com", "t1"), nil)
	waitClosed(t, s.InitialFetchDone())
	p.dispatcher.Emit(identity.EventSignedOut, nil)
	p.dispatcher.Emit(identity.EventSignedIn, userSession("u2", "b@x.com", "t2"))
	p.dispatcher.Emit(identity.EventSignedIn, userSession("u2", "b@x.com", "t2"))

	states := rec.all()
	require.NotEmpty(t, states)
	for _, st := range states {
		require.False(t, st.Loading)
	}
	require.False(t, s.Snapshot().Loading)
}

// TestIdenticalPayloadIsNotObservable tests that re-delivering the same session changes nothing
func TestIdenticalPayloadIsNotObservable(t *testing.T) {
	s, p, rec := setupStore(t)

	p.dispatcher.Emit(identity.EventSignedIn, userSession("u1", "a@x.com", "t1"))
	before := s.Snapshot()

	p.dispatcher.Emit(identity.EventSignedIn, userSession("u1", "a@x.com", "t1"))
	p.dispatcher.Emit(identity.EventUserUpdated, userSession("u1", "a@x.com", "t1"))

	after := s.Snapshot()
	require.True(t, before.Session.Equal(after.Session))
	require.Equal(t, before.Loading, after.Loading)
	require.Len(t, rec.all(), 1)
}

// TestEventsAppliedInDeliveryOrder tests the steady state update protocol
func TestEventsAppliedInDeliveryOrder(t *testing.T) {
	s, p, rec := setupStore(t)
	p.resolveFetch(nil, nil)
	waitClosed(t, s.InitialFetchDone())

	p.dispatcher.Emit(identity.EventSignedIn, userSession("u1", "a@x.com", "t1"))
	p.dispatcher.Emit(identity.EventTokenRefreshed, userSession("u1", "a@x.com", "t2"))
	p.dispatcher.Emit(identity.EventSignedOut, nil)

	states := rec.all()
	require.Len(t, states, 4)
	require.Nil(t, states[0].Session)
	require.Equal(t, "t1", states[1].Session.AccessToken)
	require.Equal(t, "t2", states[2].Session.AccessToken)
	require.Nil(t, states[3].Session)
	require.Nil(t, states[3].User)
}

// TestLogoutRoundTrip tests sign out through a real provider followed by SIGNED_OUT
func TestLogoutRoundTrip(t *testing.T) {
	ctx := context.Background()
	p := fakeprovider.New()
	_, err := p.AddUser("a@x.com", "Password123", true)
	require.NoError(t, err)
	_, err = p.SignInWithPassword(ctx, "a@x.com", "Password123")
	require.NoError(t, err)

	s := sessionstore.New(ctx, p)
	defer s.Close()
	waitClosed(t, s.InitialFetchDone())
	require.True(t, s.Snapshot().Authenticated())

	require.NoError(t, p.SignOut(ctx))

	state := s.Snapshot()
	require.Nil(t, state.Session)
	require.Nil(t, state.User)
	require.False(t, state.Loading)
}

// TestSnapshotIsolation tests that callers cannot mutate the store through a snapshot
func TestSnapshotIsolation(t *testing.T) {
	s, p, _ := setupStore(t)
	p.dispatcher.Emit(identity.EventSignedIn, userSession("u1", "a@x.com", "t1"))

	snap := s.Snapshot()
	snap.Session.AccessToken = "tampered"
	snap.User.Email = "tampered@x.com"

	again := s.Snapshot()
	require.Equal(t, "t1", again.Session.AccessToken)
	require.Equal(t, "a@x.com", again.User.Email)
}

// TestClose_ReleasesSubscriptionOnce tests teardown and that later updates are ignored
func TestClose_ReleasesSubscriptionOnce(t *testing.T) {
	p := newStubProvider()
	s := sessionstore.New(context.Background(), p)
	rec := &stateRecorder{t: t}
	s.Watch(rec.record)

	s.Close()
	s.Close()
	require.Equal(t, 0, p.dispatcher.Len())
	require.ErrorIs(t, s.WaitReady(context.Background()), autherrors.ErrStoreClosed)

	// In-flight fetch landing after teardown is a no-op
	p.resolveFetch(userSession("u1", "a@x.com", "t1"), nil)
	waitClosed(t, s.InitialFetchDone())
	p.dispatcher.Emit(identity.EventSignedIn, userSession("u1", "a@x.com", "t1"))

	state := s.Snapshot()
	require.True(t, state.Loading)
	require.Nil(t, state.Session)
	require.Empty(t, rec.all())

	late := s.Watch(rec.record)
	late.Release()
}

// TestWatch_Release tests that a released watcher receives no further changes
func TestWatch_Release(t *testing.T) {
	s, p, _ := setupStore(t)

	count := 0
	sub := s.Watch(func(sessionstore.State) { count++ })
	p.dispatcher.Emit(identity.EventSignedIn, userSession("u1", "a@x.com", "t1"))
	sub.Release()
	p.dispatcher.Emit(identity.EventSignedOut, nil)

	require.Equal(t, 1, count)
}

// TestWatch_ReentrantUpdates tests a watcher that reads the store and triggers a provider action
func TestWatch_ReentrantUpdates(t *testing.T) {
	s, p, rec := setupStore(t)

	signedOut := false
	s.Watch(func(state sessionstore.State) {
		_ = s.Snapshot()
		if state.Authenticated() && !signedOut {
			signedOut = true
			require.NoError(t, p.SignOut(context.Background()))
		}
	})

	p.resolveFetch(userSession("u1", "a@x.com", "t1"), nil)
	waitClosed(t, s.InitialFetchDone())

	states := rec.all()
	require.Len(t, states, 2)
	require.True(t, states[0].Authenticated())
	require.False(t, states[1].Authenticated())
	require.False(t, s.Snapshot().Authenticated())
}
