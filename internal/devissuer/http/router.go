package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/dealerdesk/internal/devissuer/service"
	"github.com/aussiebroadwan/dealerdesk/internal/devissuer/store"
	"github.com/aussiebroadwan/dealerdesk/pkg/httpx"
	"github.com/aussiebroadwan/dealerdesk/pkg/jwtx"
	"github.com/aussiebroadwan/dealerdesk/pkg/sessionsdk"
	"github.com/aussiebroadwan/dealerdesk/pkg/slogx"
	"github.com/prometheus/client_golang/prometheus"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	verifier     jwtx.Verifier
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger
	metrics      *Metrics
	gatherer     prometheus.Gatherer

	store       store.Store
	AuthService *service.AuthService
}

func NewRouter(
	verifier jwtx.Verifier,
	buildVersion string,
	st store.Store,
	logger *slog.Logger,
	reg *prometheus.Registry,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		verifier:     verifier,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
		metrics:      NewMetrics(reg),
		gatherer:     reg,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
		r.metrics.instrument,
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerAPI()
	r.registerSystem()
}

// ServeHTTP applies the global middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerAuth() {
	h := &AuthHandler{AuthService: r.AuthService, Metrics: r.metrics}

	// Credential checks get the strict limit
	r.Mux.Handle("POST "+sessionsdk.PathLogin,
		httpx.Chain(http.HandlerFunc(h.HandleLogin),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("POST "+sessionsdk.PathRegister,
		httpx.Chain(http.HandlerFunc(h.HandleRegister),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("POST "+sessionsdk.PathForgotPassword,
		httpx.Chain(http.HandlerFunc(h.HandleForgotPassword),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("POST "+sessionsdk.PathResetPassword,
		httpx.Chain(http.HandlerFunc(h.HandleResetPassword),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	r.Mux.Handle("POST "+sessionsdk.PathRefresh,
		httpx.Chain(http.HandlerFunc(h.HandleRefresh),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)

	// Logout works with an expired access token, only the refresh token matters
	r.Mux.Handle("POST "+sessionsdk.PathLogout,
		httpx.Chain(http.HandlerFunc(h.HandleLogout),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)

	r.Mux.Handle("POST "+sessionsdk.PathChangePassword,
		httpx.Chain(http.HandlerFunc(h.HandleChangePassword),
			httpx.AuthnMiddleware(r.verifier),
			httpx.RateLimitByUser(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerAPI() {
	h := &APIHandler{AuthService: r.AuthService}

	r.Mux.Handle("GET /api/me",
		httpx.Chain(http.HandlerFunc(h.HandleMe),
			httpx.AuthnMiddleware(r.verifier),
			httpx.RateLimitByUser(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /api/orders",
		httpx.Chain(http.HandlerFunc(h.HandleOrders),
			httpx.AuthnMiddleware(r.verifier),
			httpx.RequirePermission("orders:read"),
			httpx.RateLimitByUser(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /api/reports",
		httpx.Chain(http.HandlerFunc(h.HandleReports),
			httpx.AuthnMiddleware(r.verifier),
			httpx.RequireRole(jwtx.RoleAdmin.String(), jwtx.RoleDistributor.String()),
			httpx.RateLimitByUser(httpx.LenientLimit),
		),
	)
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /metrics", MetricsHandler(r.gatherer))
}
