// Package sessionstore holds the single authoritative authentication state of
// a client and keeps it consistent while the initial session fetch and the
// identity provider's change stream race to update it.
package sessionstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jrsteele09/go-auth-session/identity"
	autherrors "github.com/jrsteele09/go-auth-session/internal/errors"
	"github.com/rs/zerolog/log"
)

// State is the {session, user, loading} triple read by the rest of the app.
// User is non-nil exactly when Session is non-nil.
type State struct {
	Session *identity.Session
	User    *identity.User
	Loading bool
}

// Authenticated reports whether there is an active session.
func (s State) Authenticated() bool {
	return s.Session != nil
}

func (s State) clone() State {
	return State{
		Session: s.Session.Clone(),
		User:    s.User.Clone(),
		Loading: s.Loading,
	}
}

func (s State) equal(o State) bool {
	return s.Loading == o.Loading && s.Session.Equal(o.Session) && s.User.Equal(o.User)
}

type updateSource int

const (
	sourceFetch updateSource = iota
	sourceStream
)

type update struct {
	source  updateSource
	session *identity.Session
}

type watcher struct {
	fn     func(State)
	active bool
}

func (w *watcher) isActive(mu *sync.RWMutex) bool {
	mu.RLock()
	defer mu.RUnlock()
	return w.active
}

// Store owns the State cell. All writes go through apply.
type Store struct {
	provider     identity.Provider
	fetchTimeout time.Duration

	mu            sync.RWMutex
	state         State
	streamApplied bool
	closed        bool
	watchers      []*watcher
	pending       []State
	notifying     bool
	subscription  identity.Subscription

	ready     chan struct{}
	readyOnce sync.Once
	fetched   chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

type Option func(*Store)

// WithFetchTimeout bounds the initial session fetch. A fetch that times out is
// treated like any other fetch error: no session.
func WithFetchTimeout(timeout time.Duration) Option {
	return func(s *Store) {
		s.fetchTimeout = timeout
	}
}

// New creates a Store in the loading state, issues the initial session fetch
// and subscribes to the provider's change stream. Call Close to release the
// subscription.
func New(ctx context.Context, provider identity.Provider, options ...Option) *Store {
	s := &Store{
		provider: provider,
		state:    State{Loading: true},
		ready:    make(chan struct{}),
		fetched:  make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range options {
		opt(s)
	}

	go s.fetchInitialSession(ctx)

	sub := provider.SubscribeToAuthChanges(s.onAuthChange)
	s.mu.Lock()
	s.subscription = sub
	s.mu.Unlock()

	return s
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone()
}

// Watch calls fn with a snapshot after every observable state change, in the
// order the changes were applied. Re-delivery of an identical payload is not a
// change and produces no call.
func (s *Store) Watch(fn func(State)) identity.Subscription {
	w := &watcher{fn: fn, active: true}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return identity.NewSubscription(nil)
	}
	s.watchers = append(s.watchers, w)
	s.mu.Unlock()

	return identity.NewSubscription(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		w.active = false
		for i, existing := range s.watchers {
			if existing == w {
				s.watchers = append(s.watchers[:i:i], s.watchers[i+1:]...)
				break
			}
		}
	})
}

// Ready is closed once loading has become false.
func (s *Store) Ready() <-chan struct{} {
	return s.ready
}

// InitialFetchDone is closed once the initial fetch result has been applied
// or discarded.
func (s *Store) InitialFetchDone() <-chan struct{} {
	return s.fetched
}

// WaitReady blocks until loading is false, the store is closed or ctx ends.
func (s *Store) WaitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-s.done:
		return autherrors.ErrStoreClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close releases the change-stream subscription. No state changes or watcher
// calls happen afterwards; a fetch still in flight is ignored when it lands.
func (s *Store) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		sub := s.subscription
		s.subscription = nil
		for _, w := range s.watchers {
			w.active = false
		}
		s.watchers = nil
		s.mu.Unlock()

		if sub != nil {
			sub.Release()
		}
		close(s.done)
		log.Debug().Msg("Session store closed")
	})
}

func (s *Store) fetchInitialSession(ctx context.Context) {
	defer close(s.fetched)

	if s.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.fetchTimeout)
		defer cancel()
	}

	session, err := s.getCurrentSession(ctx)
	if err != nil {
		// A broken session check must not leave the app loading
		log.Err(err).Msg("Error getting session")
		session = nil
	}
	s.apply(update{source: sourceFetch, session: session})
}

func (s *Store) getCurrentSession(ctx context.Context) (session *identity.Session, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic in GetCurrentSession: %v", autherrors.ErrProviderUnavailable, r)
		}
	}()
	return s.provider.GetCurrentSession(ctx)
}

func (s *Store) onAuthChange(event identity.EventType, session *identity.Session) {
	logger := log.Debug().Str("event", string(event))
	if session != nil && session.User != nil {
		logger = logger.Str("user_id", session.User.ID)
	}
	logger.Msg("Auth state changed")

	switch event {
	case identity.EventSignedIn:
		if u := session.UserOrNil(); u != nil {
			log.Info().Str("email", u.Email).Msg("User signed in")
		}
	case identity.EventSignedOut:
		log.Info().Msg("User signed out")
	}

	s.apply(update{source: sourceStream, session: session})
}

// apply is the only writer of s.state. Notifications are queued under mu and
// drained by one goroutine at a time, so watchers see changes in apply order
// and may themselves trigger further updates.
func (s *Store) apply(u update) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	next := s.state
	switch u.source {
	case sourceStream:
		next.Session = u.session.Clone()
		s.streamApplied = true
	case sourceFetch:
		// A live event is never reverted by an older in-flight fetch result
		if !s.streamApplied {
			next.Session = u.session.Clone()
		}
	}
	next.User = next.Session.UserOrNil()
	next.Loading = false

	if !s.state.equal(next) {
		s.pending = append(s.pending, next.clone())
	}
	s.state = next
	s.readyOnce.Do(func() { close(s.ready) })

	if s.notifying {
		s.mu.Unlock()
		return
	}
	s.notifying = true

	for len(s.pending) > 0 {
		snapshot := s.pending[0]
		s.pending = s.pending[1:]
		targets := append([]*watcher(nil), s.watchers...)
		s.mu.Unlock()

		for _, w := range targets {
			if w.isActive(&s.mu) {
				w.fn(snapshot.clone())
			}
		}

		s.mu.Lock()
	}

	s.notifying = false
	s.mu.Unlock()
}
