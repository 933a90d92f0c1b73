package gate

import (
	"sync"

	"github.com/jrsteele09/go-auth-session/identity"
	"github.com/jrsteele09/go-auth-session/sessionstore"
)

// StateSource is the part of the session store a Navigator needs.
type StateSource interface {
	Snapshot() sessionstore.State
	Watch(fn func(sessionstore.State)) identity.Subscription
}

// Navigator tracks the page a client is on and re-evaluates the routing
// decision on every store change. Redirects are followed, so after a
// redirect the navigator sits on the redirect target.
type Navigator struct {
	routes   *RouteTable
	onChange func(Decision)

	mu       sync.Mutex
	path     string
	decision Decision
	sub      identity.Subscription
}

// NewNavigator starts on path. onChange is called with every decision that
// differs from the previous one; it may be nil.
func NewNavigator(source StateSource, routes *RouteTable, path string, onChange func(Decision)) *Navigator {
	n := &Navigator{
		routes:   routes,
		onChange: onChange,
		path:     cleanPath(path),
	}

	// Subscribe before the first evaluation so no change is missed
	n.mu.Lock()
	n.sub = source.Watch(n.update)
	n.decision = n.evaluate(source.Snapshot())
	n.mu.Unlock()

	return n
}

// Current returns the latest decision.
func (n *Navigator) Current() Decision {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.decision
}

// Path returns the page the navigator is on.
func (n *Navigator) Path() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.path
}

// Navigate moves to path against state and returns the decision.
func (n *Navigator) Navigate(state sessionstore.State, path string) Decision {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.path = cleanPath(path)
	n.decision = n.evaluate(state)
	return n.decision
}

// Close stops watching the store.
func (n *Navigator) Close() {
	n.mu.Lock()
	sub := n.sub
	n.sub = nil
	n.mu.Unlock()
	if sub != nil {
		sub.Release()
	}
}

func (n *Navigator) update(state sessionstore.State) {
	n.mu.Lock()
	previous := n.decision
	n.decision = n.evaluate(state)
	next := n.decision
	n.mu.Unlock()

	if next != previous && n.onChange != nil {
		n.onChange(next)
	}
}

// evaluate must be called with mu held.
func (n *Navigator) evaluate(state sessionstore.State) Decision {
	d := n.routes.Evaluate(state, n.path)
	if d.Outcome == OutcomeRedirect {
		n.path = cleanPath(d.Location)
	}
	return d
}
