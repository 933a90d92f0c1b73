package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/jrsteele09/go-auth-session/gate"
	"github.com/jrsteele09/go-auth-session/identity"
	"github.com/jrsteele09/go-auth-session/internal/utils"
)

// sessionView is the public shape of the store state. Tokens never leave the
// process.
type sessionView struct {
	Loading       bool           `json:"loading"`
	Authenticated bool           `json:"authenticated"`
	User          *identity.User `json:"user,omitempty"`
	Provider      string         `json:"provider,omitempty"`
	ExpiresAt     *time.Time     `json:"expires_at,omitempty"`
	Decision      *decisionView  `json:"decision,omitempty"`
}

type decisionView struct {
	gate.Decision
	Action string `json:"action"`
}

// SessionHandler reports the current store state. With ?path= it also
// reports the gate's decision for that path.
func (s *Server) SessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		auth := s.authFrom(r)
		state := auth.State()

		view := sessionView{
			Loading:       state.Loading,
			Authenticated: state.Authenticated(),
			User:          state.User,
		}
		if state.Session != nil {
			view.Provider = state.Session.ProviderName
			if !state.Session.ExpiresAt.IsZero() {
				view.ExpiresAt = utils.Ptr(state.Session.ExpiresAt)
			}
		}
		if path := r.URL.Query().Get("path"); path != "" {
			if !isLocalPath(path) {
				http.Error(w, "invalid path", http.StatusBadRequest)
				return
			}
			d := auth.Routes().Evaluate(state, path)
			view.Decision = &decisionView{Decision: d, Action: d.Action()}
		}

		w.Header().Set("Content-Type", contentTypeJSON)
		w.Header().Set("Cache-Control", "no-store")
		if err := json.NewEncoder(w).Encode(view); err != nil {
			logError(r, "failed to encode session", err)
		}
	}
}
