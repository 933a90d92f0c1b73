package gate

import (
	"net/url"
	"strings"

	"github.com/jrsteele09/go-auth-session/sessionstore"
)

// Mode selects the form shown on the auth page.
type Mode string

const (
	ModeSignIn Mode = "sign_in"
	ModeSignUp Mode = "sign_up"
)

// ParseMode returns the mode named by s, defaulting to sign in.
func ParseMode(s string) Mode {
	if Mode(strings.ToLower(strings.TrimSpace(s))) == ModeSignUp {
		return ModeSignUp
	}
	return ModeSignIn
}

// Toggle returns the other mode.
func (m Mode) Toggle() Mode {
	if m == ModeSignUp {
		return ModeSignIn
	}
	return ModeSignUp
}

// AuthURL returns the auth page location for the mode.
func (m Mode) AuthURL(authPath string) string {
	return authPath + "?mode=" + url.QueryEscape(string(m))
}

// RouteTable maps request paths to route kinds and legacy redirects.
type RouteTable struct {
	paths  Paths
	kinds  map[string]RouteKind
	legacy map[string]string
}

// NewRouteTable creates a table with the default protected and auth-only
// routes and the legacy /signin and /signup redirects.
func NewRouteTable(paths Paths) *RouteTable {
	rt := &RouteTable{
		paths:  paths,
		kinds:  make(map[string]RouteKind),
		legacy: make(map[string]string),
	}
	rt.Register(paths.Protected, RouteProtected)
	rt.Register(paths.Auth, RouteAuthOnly)
	rt.Register(paths.Auth+"/confirm", RouteAuthOnly)
	rt.RegisterLegacy("/signin", ModeSignIn.AuthURL(paths.Auth))
	rt.RegisterLegacy("/signup", ModeSignUp.AuthURL(paths.Auth))
	return rt
}

// Register sets the kind of path.
func (rt *RouteTable) Register(path string, kind RouteKind) {
	rt.kinds[cleanPath(path)] = kind
}

// RegisterLegacy makes path an unconditional redirect to location.
func (rt *RouteTable) RegisterLegacy(path, location string) {
	rt.legacy[cleanPath(path)] = location
}

// Paths returns the redirect surfaces.
func (rt *RouteTable) Paths() Paths {
	return rt.paths
}

// Kind returns the kind of path. Unknown paths are public.
func (rt *RouteTable) Kind(path string) RouteKind {
	return rt.kinds[cleanPath(path)]
}

// LegacyRedirect returns the replacement location for a legacy path.
func (rt *RouteTable) LegacyRedirect(path string) (string, bool) {
	location, ok := rt.legacy[cleanPath(path)]
	return location, ok
}

// Evaluate decides a navigation to path. Legacy paths redirect once the
// store has loaded, like any other route.
func (rt *RouteTable) Evaluate(state sessionstore.State, path string) Decision {
	path = cleanPath(path)

	var d Decision
	if location, ok := rt.legacy[path]; ok && !state.Loading {
		d = Decision{Outcome: OutcomeRedirect, Location: location}
	} else {
		d = Decide(state, rt.Kind(path), rt.paths)
	}
	d.Path = path
	return d
}

func cleanPath(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	return path
}
