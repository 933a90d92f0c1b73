package server

const (
	// Pages
	RouteHome    = "/"
	RouteAuth    = "/auth"
	RouteConfirm = "/auth/confirm"
	RouteSignIn  = "/signin" // legacy, redirects to /auth?mode=sign_in
	RouteSignUp  = "/signup" // legacy, redirects to /auth?mode=sign_up

	// Actions
	RouteAuthLogin     = "/auth/login"
	RouteAuthSignup    = "/auth/signup"
	RouteAuthFederated = "/auth/federated/{provider}"
	RouteAuthLogout    = "/auth/logout"
	RouteResendConfirm = "/auth/confirm/resend"
	RouteCallback      = "/callback"

	// API
	RouteAPISession       = "/api/session"
	RouteAPISessionEvents = "/api/session/events"

	RouteStatic = "/static/"
)

const (
	contentTypeHTML = "text/html; charset=utf-8"
	contentTypeJSON = "application/json"
)
