// Package server is the web shell around the session store: server rendered
// pages guarded by the access gate, form handlers that go through the action
// funnel and a server-sent event stream that moves open pages along when the
// session changes.
package server

import (
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-auth-session/gate"
	"github.com/jrsteele09/go-auth-session/internal/config"
	"github.com/rs/zerolog/log"
)

type Server struct {
	env        string // Environment (e.g., "DEV", "PROD")
	mux        *http.ServeMux
	routes     []string
	fileServer http.Handler
	config     config.Config
	auth       *gate.Auth
	pages      map[string]*template.Template
}

func New(config config.Config, auth *gate.Auth) (*Server, error) {
	if auth == nil {
		return nil, fmt.Errorf("[Server New] auth is required")
	}

	pages, err := parsePages()
	if err != nil {
		return nil, fmt.Errorf("[Server New] failed to parse page templates: %w", err)
	}

	s := &Server{
		env:        config.GetEnv(),
		mux:        http.NewServeMux(),
		fileServer: FileServerHandler(),
		config:     config,
		auth:       auth,
		pages:      pages,
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

// authFrom returns the Auth injected by AuthContextMiddleware.
func (s *Server) authFrom(r *http.Request) *gate.Auth {
	if auth, ok := gate.FromContext(r.Context()); ok {
		return auth
	}
	return s.auth
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	paddedMethod := fmt.Sprintf(" %-7s", method)
	color, ok := methodColors[method]
	if !ok {
		color = Gray
	}
	log.Info().Msgf("[%-19s] %s", color+paddedMethod+ResetColor, path)
}

func logDecision(path string, d gate.Decision) {
	color, ok := outcomeColors[d.Outcome]
	if !ok {
		color = Gray
	}
	log.Debug().Str("location", d.Location).Msgf("[%s] %s", color+d.Action()+ResetColor, path)
}
