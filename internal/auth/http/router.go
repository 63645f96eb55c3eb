package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/gatehouse/internal/auth/service"
	"github.com/aussiebroadwan/gatehouse/pkg/httpx"
	"github.com/aussiebroadwan/gatehouse/pkg/jwtx"
	"github.com/aussiebroadwan/gatehouse/pkg/slogx"

	_ "github.com/aussiebroadwan/gatehouse/api/auth" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

const (
	PermissionIAMRead  = "iam:read"
	PermissionIAMWrite = "iam:write"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	verifier     jwtx.Verifier
	limits       httpx.RateLimitProfiles
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	AuthFlow       *service.AuthFlow
	RightsService  *service.RightsService
	Database       Pinger
	OTPStore       Pinger
	DisableSwagger bool
}

// NewRouter builds a router whose bearer-protected routes accept tokens
// passing verifier.
func NewRouter(
	verifier jwtx.Verifier,
	limits httpx.RateLimitProfiles,
	buildVersion string,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		verifier:     verifier,
		limits:       limits,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		logger:       logger,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerIAM()
	r.registerSystem()

	if !r.DisableSwagger {
		r.Mux.Handle("/swagger/", httpSwagger.Handler())
	}
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			Gatehouse Authentication Service API
//	@version		0.1.0
//	@description	Two-factor sign-in: an identity provider ID token followed by an emailed one-time code.
//	@description	Issues HS256 access and refresh tokens that downstream services verify with the shared key.
//
//	@contact.name				AussieBroadWAN Team
//	@contact.url				https://github.com/aussiebroadwan/gatehouse
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT access token. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerAuth() {
	h := &AuthHandler{Flow: r.AuthFlow}

	// Strict: each login sends an email
	r.Mux.Handle("POST /v1/auth/login",
		httpx.Chain(http.HandlerFunc(h.HandleLogin),
			httpx.RateLimitByIP(r.limits.Strict, r.limits.TrustedProxies...),
		),
	)

	// Strict per IP and target user, against code guessing
	r.Mux.Handle("POST /v1/auth/mfa/verify",
		httpx.Chain(http.HandlerFunc(h.HandleVerifyMFA),
			httpx.RateLimitByIPAndJSONField(r.limits.Strict, "user_id", r.limits.TrustedProxies...),
		),
	)

	r.Mux.Handle("POST /v1/auth/refresh",
		httpx.Chain(http.HandlerFunc(h.HandleRefresh),
			httpx.RateLimitByIP(r.limits.Moderate, r.limits.TrustedProxies...),
		),
	)

	r.Mux.Handle("GET /v1/auth/me",
		httpx.Chain(http.HandlerFunc(MeHandler),
			httpx.AuthnMiddleware(r.verifier),
			httpx.RateLimitByUser(r.limits.Lenient, r.limits.TrustedProxies...),
		),
	)
}

func (r *Router) registerIAM() {
	h := &IAMHandler{Rights: r.RightsService}

	read := func(fn http.HandlerFunc) http.Handler {
		return httpx.Chain(fn,
			httpx.AuthnMiddleware(r.verifier),
			httpx.RequirePermission(PermissionIAMRead),
			httpx.RateLimitByUser(r.limits.Lenient, r.limits.TrustedProxies...),
		)
	}
	write := func(fn http.HandlerFunc) http.Handler {
		return httpx.Chain(fn,
			httpx.AuthnMiddleware(r.verifier),
			httpx.RequirePermission(PermissionIAMWrite),
			httpx.RateLimitByUser(r.limits.Moderate, r.limits.TrustedProxies...),
		)
	}

	r.Mux.Handle("GET /v1/iam/roles", read(h.HandleListRoles))
	r.Mux.Handle("POST /v1/iam/roles", write(h.HandleCreateRole))
	r.Mux.Handle("POST /v1/iam/permissions", write(h.HandleCreatePermission))
	r.Mux.Handle("POST /v1/iam/roles/{role}/permissions", write(h.HandleGrantPermission))
	r.Mux.Handle("POST /v1/iam/users/{userID}/roles", write(h.HandleAssignRole))
	r.Mux.Handle("GET /v1/iam/users/{userID}/roles", read(h.HandleUserRoles))
	r.Mux.Handle("GET /v1/iam/users/{userID}/permissions", read(h.HandleUserPermissions))
}

func (r *Router) registerSystem() {
	// Monitoring may poll frequently
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(r.limits.Lenient, r.limits.TrustedProxies...),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.Database, r.OTPStore),
			httpx.RateLimitByIP(r.limits.Lenient, r.limits.TrustedProxies...),
		),
	)
}
