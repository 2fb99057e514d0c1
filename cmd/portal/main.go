package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/mind-engage/evaluator-portal/internal/activity"
	"github.com/mind-engage/evaluator-portal/internal/adminapi"
	api "github.com/mind-engage/evaluator-portal/internal/api/http"
	auth "github.com/mind-engage/evaluator-portal/internal/auth/middleware"
	"github.com/mind-engage/evaluator-portal/internal/config"
	"github.com/mind-engage/evaluator-portal/internal/criteria"
	"github.com/mind-engage/evaluator-portal/internal/db"
	"github.com/mind-engage/evaluator-portal/internal/draft"
	"github.com/mind-engage/evaluator-portal/internal/logging"
	"github.com/mind-engage/evaluator-portal/internal/review"
	"github.com/mind-engage/evaluator-portal/internal/scoring"
)

func main() {
	cfg := config.Load()
	logging.Bootstrap(cfg.LogLevel, nil)
	log := logging.Log
	middleware.DefaultLogger = middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: log, NoColor: true})

	// --- DB ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}
	defer dbh.Close()

	// --- Drafts ---
	var (
		kv  draft.KV
		rdb *redis.Client
	)
	switch cfg.DraftBackend {
	case "memory":
		kv = draft.NewMemoryKV()
	case "redis":
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("redis ping failed: %v", err)
		}
		defer rdb.Close()
		kv = draft.NewRedisKV(rdb, cfg.DraftTTL)
	default:
		kv = draft.NewSQLKV(dbh, cfg.DraftTTL)
	}
	drafts := draft.NewStore(kv)

	// --- Upstream ---
	upstream := adminapi.New(cfg.AdminAPIBase, cfg.AdminAPITimeout, adminapi.WithDefaultToken(cfg.EvaluatorToken))

	var fallback []scoring.Group
	if cfg.CriteriaFallbackFile != "" {
		fallback, err = criteria.LoadRubricFile(cfg.CriteriaFallbackFile)
		if err != nil {
			log.Fatalf("criteria fallback: %v", err)
		}
	}
	resolver := criteria.NewResolver(upstream, criteria.Options{
		UseRemote: cfg.UseRemoteCriteria,
		CacheTTL:  cfg.CriteriaCacheTTL,
		Fallback:  fallback,
	})

	events := activity.NewLog(dbh)

	sessionKey, err := cfg.SessionKey()
	if err != nil {
		log.Fatalf("session: %v", err)
	}
	if cfg.SessionSecret == "" {
		log.Warn("SESSION_SECRET unset; using the development key")
	}

	router := api.NewRouter(api.Deps{
		Upstream:          upstream,
		Auth:              upstream,
		Sessions:          auth.NewIssuer(sessionKey, cfg.SessionTTL),
		Criteria:          resolver,
		Drafts:            drafts,
		Reviews:           review.NewController(drafts, upstream, events),
		Activity:          events,
		Cookies:           auth.CookieOptions{Secure: cfg.CookieSecure},
		DefaultRole:       auth.RoleEvaluator,
		LoginLimit:        auth.NewRateLimiter(cfg.LoginRatePerMin),
		CORSOrigins:       cfg.CORSOrigins(),
		TrustProxyHeaders: cfg.TrustProxyHeaders,
		Ready: func(ctx context.Context) error {
			if err := dbh.PingContext(ctx); err != nil {
				return err
			}
			if rdb != nil {
				return rdb.Ping(ctx).Err()
			}
			return nil
		},
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithFields(logrus.Fields{
			"addr":          cfg.HTTPAddr,
			"mode":          cfg.Mode,
			"db":            cfg.DBDriver,
			"drafts":        cfg.DraftBackend,
			"admin_api":     cfg.AdminAPIBase,
			"remote_rubric": cfg.UseRemoteCriteria,
		}).Info("evaluator portal listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, done := context.WithTimeout(context.Background(), 15*time.Second)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("shutdown")
	}
	log.Info("bye")
}
