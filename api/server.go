/*
server.go - HTTP router, middleware, and auth enforcement

PURPOSE:
  Configures the chi router, the middleware stack, and the route tree.
  This is the wiring layer that connects URLs to handlers and decides
  which routes require a token and which require the admin role.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request
  2. RealIP:     Honors X-Forwarded-For behind a proxy
  3. Logger:     Request logging
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for the frontend
  6. Tracing:    One server span per request (no-op when tracing is off)

AUTH:
  Bearer tokens parsed by requireAuth; claims land in the request context.
  requireRole gates the review and admin subtrees.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/greenbank/points-engine/auth"
)

// Roles with elevated access. Reviewers work the claim queue; admins can do
// that plus operational tasks.
const (
	RoleAdmin    = "ADMIN"
	RoleReviewer = "REVIEWER"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))
	r.Use(tracingMiddleware())

	r.Get("/healthz", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/signup", h.Signup)
			r.Post("/login", h.Login)
			r.Post("/refresh", h.Refresh)
			r.With(h.requireAuth).Get("/me", h.Me)
		})

		// Everything below requires a valid access token.
		r.Group(func(r chi.Router) {
			r.Use(h.requireAuth)

			r.Route("/identity", func(r chi.Router) {
				r.Post("/kyc", h.CompleteKYC)
				r.Post("/fraud-check", h.RunFraudCheck)
				r.Post("/credit-check", h.RunCreditCheck)
				r.Get("/green-score", h.GreenScore)
			})

			r.Route("/claims", func(r chi.Router) {
				r.Post("/", h.SubmitClaim)
				r.Get("/", h.ListClaims)
			})

			r.Route("/wallet", func(r chi.Router) {
				r.Get("/", h.GetWallet)
				r.Get("/transactions", h.GetTransactions)
				r.Get("/statement", h.GetStatement)
			})

			r.Route("/marketplace", func(r chi.Router) {
				r.Get("/", h.ListMarketplace)
				r.Post("/redeem", h.Redeem)
				r.Post("/checkout", h.Checkout)
			})

			r.Route("/review", func(r chi.Router) {
				r.Use(h.requireRole(RoleReviewer, RoleAdmin))
				r.Get("/claims", h.ListPendingClaims)
				r.Post("/claims/{id}/approve", h.ApproveClaim)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(h.requireRole(RoleAdmin))
				r.Post("/reconcile", h.Reconcile)
				r.Post("/seed", h.SeedDemoData)
			})
		})
	})

	return r
}

// =============================================================================
// AUTH MIDDLEWARE
// =============================================================================

type contextKey string

const claimsKey contextKey = "authClaims"

// claimsFrom returns the token claims requireAuth stored on the context.
// Handlers behind requireAuth can rely on a non-nil result.
func claimsFrom(ctx context.Context) *auth.Claims {
	c, _ := ctx.Value(claimsKey).(*auth.Claims)
	if c == nil {
		return &auth.Claims{}
	}
	return c
}

// requireAuth rejects requests without a valid Bearer token.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "Missing bearer token", nil)
			return
		}

		claims, err := h.Issuer.Parse(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid or expired token", nil)
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireRole gates a subtree on the token's role claim.
func (h *Handler) requireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := claimsFrom(r.Context()).Role
			for _, role := range roles {
				if got == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusForbidden, "Insufficient permissions", nil)
		})
	}
}

// =============================================================================
// TRACING MIDDLEWARE
// =============================================================================

// tracingMiddleware opens one server span per request, propagating any
// inbound trace context. With tracing disabled the global provider is a
// no-op and this costs nothing measurable.
func tracingMiddleware() func(http.Handler) http.Handler {
	tracer := otel.Tracer("points-engine")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

			ctx, span := tracer.Start(ctx, r.Method+" "+r.URL.Path,
				oteltrace.WithSpanKind(oteltrace.SpanKindServer),
			)
			defer span.End()

			span.SetAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.url", r.URL.String()),
				attribute.String("http.remote_addr", r.RemoteAddr),
			)

			otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(w.Header()))

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			span.SetAttributes(attribute.Int("http.status_code", ww.Status()))
		})
	}
}
