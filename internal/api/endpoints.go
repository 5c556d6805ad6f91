package api

// Authentication routes
const (
	AuthRegister       = "/auth/register"
	AuthLogin          = "/auth/login"
	AuthRefresh        = "/auth/refresh"
	AuthMe             = "/auth/me"
	AuthLogout         = "/auth/logout"
	AuthLogoutAll      = "/auth/logout-all"
	AuthSessions       = "/auth/sessions"
	AuthVerifyEmail    = "/auth/verify-email"
	AuthForgotPassword = "/auth/forgot-password"
	AuthResetPassword  = "/auth/reset-password"
	AuthChangePassword = "/auth/change-password"

	Health = "/healthz"
)

// PublicEndpoints lists routes served without a bearer token. The value marks
// whether the route is rate limited per client.
var PublicEndpoints = map[string]bool{
	AuthRegister:       true,
	AuthLogin:          true,
	AuthRefresh:        true,
	AuthForgotPassword: true,
	AuthResetPassword:  true,
	AuthVerifyEmail:    false,
	AuthLogout:         false,
	Health:             false,
}

func IsPublic(path string) bool {
	_, ok := PublicEndpoints[path]
	return ok
}

func IsRateLimited(path string) bool {
	return PublicEndpoints[path]
}
