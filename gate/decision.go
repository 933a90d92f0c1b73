// Package gate decides, from the session store state, whether a route renders
// or redirects, and funnels identity-changing operations to the provider.
package gate

import (
	"github.com/jrsteele09/go-auth-session/sessionstore"
)

// RouteKind classifies a route by its session requirement.
type RouteKind int

const (
	// RoutePublic renders regardless of session.
	RoutePublic RouteKind = iota
	// RouteProtected requires a session.
	RouteProtected
	// RouteAuthOnly is only reachable without a session (sign in, sign up).
	RouteAuthOnly
)

func (k RouteKind) String() string {
	switch k {
	case RouteProtected:
		return "protected"
	case RouteAuthOnly:
		return "auth-only"
	}
	return "public"
}

// Outcome is what the host should do with a navigation.
type Outcome int

const (
	OutcomeWait Outcome = iota
	OutcomeRedirect
	OutcomeRender
)

func (o Outcome) String() string {
	switch o {
	case OutcomeWait:
		return "wait"
	case OutcomeRedirect:
		return "redirect"
	}
	return "render"
}

// Paths are the two surfaces the gate redirects between.
type Paths struct {
	Auth      string
	Protected string
}

// DefaultPaths redirect to /auth and /.
var DefaultPaths = Paths{Auth: "/auth", Protected: "/"}

// Decision is the result of evaluating one navigation. Location is set only
// for OutcomeRedirect.
type Decision struct {
	Outcome  Outcome `json:"-"`
	Path     string  `json:"path"`
	Location string  `json:"location,omitempty"`
}

// Action is the lower-case outcome name, used on the wire.
func (d Decision) Action() string {
	return d.Outcome.String()
}

// Decide is the routing rule. It is a pure function of the state.
func Decide(state sessionstore.State, kind RouteKind, paths Paths) Decision {
	switch {
	case state.Loading:
		return Decision{Outcome: OutcomeWait}
	case kind == RouteProtected && state.Session == nil:
		return Decision{Outcome: OutcomeRedirect, Location: paths.Auth}
	case kind == RouteAuthOnly && state.Session != nil:
		return Decision{Outcome: OutcomeRedirect, Location: paths.Protected}
	}
	return Decision{Outcome: OutcomeRender}
}
