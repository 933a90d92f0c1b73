package server

import (
	"net/http"

	"github.com/rs/zerolog/log"
)

func (s *Server) initRoutes() {
	// Pages, all behind the access gate
	s.RegisterRouteHandler("GET "+RouteHome+"{$}", ChainMiddleware(s.HomePageHandler(), s.HTMLMiddleWare(s.GateMiddleware)...))
	s.RegisterRouteHandler("GET "+RouteAuth, ChainMiddleware(s.AuthPageHandler(), s.HTMLMiddleWare(s.GateMiddleware)...))
	s.RegisterRouteHandler("GET "+RouteConfirm, ChainMiddleware(s.ConfirmPageHandler(), s.HTMLMiddleWare(s.GateMiddleware)...))
	s.RegisterRouteHandler("GET "+RouteSignIn, ChainMiddleware(s.LegacyRedirectHandler(), s.HTMLMiddleWare(s.GateMiddleware)...))
	s.RegisterRouteHandler("GET "+RouteSignUp, ChainMiddleware(s.LegacyRedirectHandler(), s.HTMLMiddleWare(s.GateMiddleware)...))

	// Actions
	s.RegisterRouteHandler("POST "+RouteAuthLogin, ChainMiddleware(s.LoginSubmissionHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("POST "+RouteAuthSignup, ChainMiddleware(s.SignupSubmissionHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("GET "+RouteAuthFederated, ChainMiddleware(s.FederatedLoginHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("POST "+RouteAuthLogout, ChainMiddleware(s.LogoutHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("POST "+RouteResendConfirm, ChainMiddleware(s.ResendConfirmationHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("GET "+RouteCallback, ChainMiddleware(s.FederatedCallbackHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("POST "+RouteCallback, ChainMiddleware(s.FederatedCallbackHandler(), s.HTMLMiddleWare()...)) // For form_post response mode

	// API
	s.RegisterRouteHandler("GET "+RouteAPISession, ChainMiddleware(s.SessionHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteAPISessionEvents, ChainMiddleware(s.SessionEventsHandler(), s.APIMiddleware()...))

	s.RegisterRouteHandler("GET "+RouteStatic, ChainMiddleware(s.serveFileHandler(), s.HTMLMiddleWare(s.CacheMiddleware)...))
}

func logError(r *http.Request, msg string, err error) {
	log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg(msg)
}
