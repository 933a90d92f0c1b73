package server

import (
	"net/http"
	"net/url"
	"time"

	"github.com/jrsteele09/go-auth-session/gate"
	"github.com/jrsteele09/go-auth-session/identity"
	"github.com/jrsteele09/go-auth-session/internal/utils"
)

type pageData struct {
	AppName string
	Title   string

	// EventsURL is the decision stream the page listens on
	EventsURL string

	Error   string
	Message string
	Email   string

	SignUp      bool
	ToggleURL   string
	SubmitURL   string
	Providers   []string
	User        *identity.User
	ProviderID  string
	ConfirmedAt time.Time
}

func (s *Server) newPageData(r *http.Request, title string, rendered gate.Outcome) pageData {
	q := r.URL.Query()
	events := url.Values{}
	events.Set("path", r.URL.RequestURI())
	events.Set("rendered", rendered.String())

	return pageData{
		AppName:   s.config.GetAppName(),
		Title:     title,
		EventsURL: RouteAPISessionEvents + "?" + events.Encode(),
		Error:     q.Get("error"),
		Message:   q.Get("message"),
		Email:     q.Get("email"),
	}
}

// HomePageHandler shows the signed in user's profile.
func (s *Server) HomePageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data := s.newPageData(r, "Home", gate.OutcomeRender)
		data.User = s.authFrom(r).User()
		if data.User != nil {
			data.ConfirmedAt = utils.Value(data.User.EmailConfirmedAt)
		}
		if session := s.authFrom(r).Session(); session != nil {
			data.ProviderID = session.ProviderName
		}
		s.renderPage(w, r, http.StatusOK, pageHome, data)
	}
}

// AuthPageHandler renders the combined sign in / sign up page. The mode lives
// in the query string so the toggle survives a reload.
func (s *Server) AuthPageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mode := gate.ParseMode(r.URL.Query().Get("mode"))

		title := "Sign in"
		submit := RouteAuthLogin
		if mode == gate.ModeSignUp {
			title = "Create an account"
			submit = RouteAuthSignup
		}

		data := s.newPageData(r, title, gate.OutcomeRender)
		data.SignUp = mode == gate.ModeSignUp
		data.SubmitURL = submit
		data.ToggleURL = mode.Toggle().AuthURL(RouteAuth)
		data.Providers = s.config.GetFederatedProviders()
		s.renderPage(w, r, http.StatusOK, pageAuth, data)
	}
}

// ConfirmPageHandler tells a new user to follow the emailed link and offers
// to send it again.
func (s *Server) ConfirmPageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data := s.newPageData(r, "Confirm your email", gate.OutcomeRender)
		s.renderPage(w, r, http.StatusOK, pageConfirm, data)
	}
}

// LegacyRedirectHandler only runs if the gate let a legacy path through,
// which happens when the route table has no redirect registered for it.
func (s *Server) LegacyRedirectHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if location, ok := s.authFrom(r).Routes().LegacyRedirect(r.URL.Path); ok {
			redirectSuccess(w, r, location)
			return
		}
		http.NotFound(w, r)
	}
}
