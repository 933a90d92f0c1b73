package server

import (
	"net/http"

	"github.com/jrsteele09/go-auth-session/gate"
	autherrors "github.com/jrsteele09/go-auth-session/internal/errors"
)

// LoginSubmissionHandler signs in with email and password. The store picks
// the new session up from the provider's change stream before the redirect
// is followed.
func (s *Server) LoginSubmissionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			redirectWithError(w, r, gate.ModeSignIn.AuthURL(RouteAuth), "Invalid form submission")
			return
		}
		email := r.PostForm.Get("email")

		res := s.authFrom(r).Login(r.Context(), email, r.PostForm.Get("password"))
		if !res.OK() {
			if autherrors.Is(res.Err, autherrors.ErrEmailNotConfirmed) {
				redirectWithError(w, r, withQuery(RouteConfirm, "email", email), res.Message())
				return
			}
			redirectWithError(w, r, withQuery(gate.ModeSignIn.AuthURL(RouteAuth), "email", email), res.Message())
			return
		}
		redirectSuccess(w, r, RouteHome)
	}
}

// SignupSubmissionHandler registers a new account. Without a session in the
// response the account waits for email confirmation.
func (s *Server) SignupSubmissionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			redirectWithError(w, r, gate.ModeSignUp.AuthURL(RouteAuth), "Invalid form submission")
			return
		}
		req := gate.SignupRequest{
			Email:    r.PostForm.Get("email"),
			Password: r.PostForm.Get("password"),
		}
		if confirm := r.PostForm.Get("confirm_password"); confirm != "" && confirm != req.Password {
			redirectWithError(w, r, withQuery(gate.ModeSignUp.AuthURL(RouteAuth), "email", req.Email), "Passwords do not match")
			return
		}

		res := s.authFrom(r).Signup(r.Context(), req)
		if !res.OK() {
			redirectWithError(w, r, withQuery(gate.ModeSignUp.AuthURL(RouteAuth), "email", req.Email), res.Message())
			return
		}
		if res.Data == nil || res.Data.Session == nil {
			redirectSuccess(w, r, withQuery(RouteConfirm, "email", req.Email))
			return
		}
		redirectSuccess(w, r, RouteHome)
	}
}

// FederatedLoginHandler sends the user agent to the named provider.
func (s *Server) FederatedLoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res := s.authFrom(r).SignInWithFederated(r.Context(), r.PathValue("provider"))
		if !res.OK() {
			redirectWithError(w, r, RouteAuth, res.Message())
			return
		}
		redirectSuccess(w, r, res.Data.URL)
	}
}

// FederatedCallbackHandler completes a federated login when the provider
// returns here with a code.
func (s *Server) FederatedCallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			redirectWithError(w, r, RouteAuth, "Invalid callback")
			return
		}

		// The user cancelled or the provider refused
		if errCode := r.Form.Get("error"); errCode != "" {
			msg := r.Form.Get("error_description")
			if msg == "" {
				msg = errCode
			}
			redirectWithError(w, r, RouteAuth, msg)
			return
		}

		res := s.authFrom(r).CompleteFederated(r.Context(), r.Form.Get("state"), r.Form.Get("code"))
		if !res.OK() {
			redirectWithError(w, r, RouteAuth, res.Message())
			return
		}
		redirectSuccess(w, r, RouteHome)
	}
}

func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res := s.authFrom(r).Logout(r.Context())
		if !res.OK() {
			redirectWithError(w, r, RouteHome, res.Message())
			return
		}
		redirectSuccess(w, r, RouteAuth)
	}
}

func (s *Server) ResendConfirmationHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			redirectWithError(w, r, RouteConfirm, "Invalid form submission")
			return
		}
		email := r.PostForm.Get("email")
		back := withQuery(RouteConfirm, "email", email)

		res := s.authFrom(r).ResendConfirmation(r.Context(), email)
		if !res.OK() {
			redirectWithError(w, r, back, res.Message())
			return
		}
		redirectWithMessage(w, r, back, "Confirmation email sent")
	}
}
