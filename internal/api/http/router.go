package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/mind-engage/evaluator-portal/internal/activity"
	authmw "github.com/mind-engage/evaluator-portal/internal/auth/middleware"
	"github.com/mind-engage/evaluator-portal/internal/criteria"
	"github.com/mind-engage/evaluator-portal/internal/draft"
	"github.com/mind-engage/evaluator-portal/internal/metrics"
	"github.com/mind-engage/evaluator-portal/internal/rbac"
	"github.com/mind-engage/evaluator-portal/internal/review"
)

type Deps struct {
	Upstream          Upstream
	Auth              authmw.Authenticator
	Sessions          *authmw.Issuer
	Criteria          *criteria.Resolver
	Drafts            *draft.Store
	Reviews           *review.Controller
	Activity          *activity.Log // optional
	Cookies           authmw.CookieOptions
	DefaultRole       string
	LoginLimit        *authmw.RateLimiter
	CORSOrigins       []string
	// TrustProxyHeaders takes the client address from X-Forwarded-For /
	// X-Real-IP. Only set it behind a proxy that overwrites those headers.
	TrustProxyHeaders bool
	// Ready reports whether local dependencies (database, redis) respond.
	Ready             func(ctx context.Context) error
}

func NewRouter(d Deps) chi.Router {
	if d.DefaultRole == "" {
		d.DefaultRole = authmw.RoleEvaluator
	}
	if d.LoginLimit == nil {
		d.LoginLimit = authmw.NewRateLimiter(0)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if d.TrustProxyHeaders {
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.InstrumentHTTP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if d.Ready != nil {
			if err := d.Ready(r.Context()); err != nil {
				http.Error(w, "not ready: "+err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(200)
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(ar chi.Router) {
		ar.With(d.LoginLimit.Handler).
			Post("/auth/login", authmw.LoginHandler(d.Auth, d.Sessions, d.Cookies, d.DefaultRole))
		ar.Post("/auth/logout", authmw.LogoutHandler(d.Cookies))

		// Session (signed cookie → upstream token in context → role → RBAC)
		ar.Group(func(pr chi.Router) {
			pr.Use(authmw.SessionMiddleware(d.Sessions))

			pr.Get("/auth/session", authmw.SessionHandler())

			pr.With(rbac.Require(rbac.PermApplicationView)).
				Get("/editions", ListEditionsHandler(d.Upstream))
			pr.With(rbac.Require(rbac.PermApplicationView)).
				Get("/rounds", ListRoundsHandler(d.Upstream))
			pr.With(rbac.Require(rbac.PermApplicationView)).
				Get("/applications", ListApplicationsHandler(d.Upstream))
			pr.With(rbac.Require(rbac.PermApplicationView)).
				Get("/applications/{id}", GetApplicationHandler(d.Upstream))
			pr.With(rbac.Require(rbac.PermApplicationView)).
				Get("/applications/{id}/criteria", CriteriaHandler(d.Criteria))

			// Scoring
			pr.With(rbac.Require(rbac.PermApplicationView, rbac.PermScoreWrite)).
				Get("/applications/{id}/score-sheet", ScoreSheetHandler(d.Criteria, d.Drafts))
			pr.With(rbac.Require(rbac.PermApplicationView, rbac.PermScoreWrite)).
				Patch("/applications/{id}/draft", PatchDraftHandler(d.Criteria, d.Drafts))
			pr.With(rbac.Require(rbac.PermApplicationView, rbac.PermScoreWrite)).
				Post("/applications/{id}/scores/draft", SaveDraftHandler(d.Criteria, d.Drafts, d.Reviews))
			pr.With(rbac.Require(rbac.PermApplicationView, rbac.PermScoreWrite)).
				Post("/applications/{id}/scores/submit", SubmitHandler(d.Criteria, d.Drafts, d.Reviews))

			pr.With(rbac.Require(rbac.PermHistoryView)).
				Get("/reviews/history", HistoryHandler(d.Activity))
		})
	})

	return r
}
