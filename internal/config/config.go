package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

type Config struct {
	Mode     Mode
	HTTPAddr string
	LogLevel string

	// Upstream Admin API
	AdminAPIBase    string
	AdminAPITimeout time.Duration
	// Used when a request carries no session token (local dev, scripts).
	EvaluatorToken string

	UseRemoteCriteria    bool
	CriteriaCacheTTL     time.Duration
	CriteriaFallbackFile string // optional YAML overriding the embedded rubric

	DBDriver string // sqlite|postgres
	DBDSN    string

	DraftBackend  string // sql|memory|redis
	DraftTTL      time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// SessionSecret signs portal session cookies. Required online.
	SessionSecret     string
	SessionTTL        time.Duration
	CookieSecure      bool
	LoginRatePerMin   int
	TrustProxyHeaders bool

	CORSOriginsOnline  []string
	CORSOriginsOffline []string
}

const devSessionSecret = "evaluator-portal-dev-secret"

// SessionKey returns the secret for signing sessions. Offline mode falls back
// to a fixed development key; online mode has none.
func (c Config) SessionKey() (string, error) {
	if c.SessionSecret != "" {
		return c.SessionSecret, nil
	}
	if c.Mode == ModeOnline {
		return "", errors.New("SESSION_SECRET is required in online mode")
	}
	return devSessionSecret, nil
}

// CORSOrigins returns the allow-list for the current mode.
func (c Config) CORSOrigins() []string {
	if c.Mode == ModeOnline {
		return c.CORSOriginsOnline
	}
	return c.CORSOriginsOffline
}

// Load reads an optional .env file and then the environment.
func Load(envFiles ...string) Config {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		// Missing files are fine; real env vars always win.
		_ = godotenv.Load(f)
	}
	return FromEnv()
}

func FromEnv() Config {
	mode := Mode(os.Getenv("MODE"))
	if mode == "" {
		mode = ModeOffline
	}
	return Config{
		Mode:     mode,
		HTTPAddr: envOr("HTTP_ADDR", ":8080"),
		LogLevel: envOr("LOG_LEVEL", "info"),

		AdminAPIBase:    strings.TrimRight(envOr("ADMIN_API_BASE", "http://localhost:8090/api"), "/"),
		AdminAPITimeout: envDuration("ADMIN_API_TIMEOUT", 15*time.Second),
		EvaluatorToken:  os.Getenv("EVALUATOR_BEARER_TOKEN"),

		UseRemoteCriteria:    envBool("USE_REMOTE_CRITERIA", true),
		CriteriaCacheTTL:     envDuration("CRITERIA_CACHE_TTL", 5*time.Minute),
		CriteriaFallbackFile: os.Getenv("CRITERIA_FALLBACK_FILE"),

		DBDriver: envOr("DB_DRIVER", "sqlite"),
		DBDSN:    envOr("DB_DSN", ""),

		DraftBackend:  envOr("DRAFT_BACKEND", "sql"),
		DraftTTL:      envDuration("DRAFT_TTL", 0),
		RedisAddr:     envOr("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       envInt("REDIS_DB", 0),

		SessionSecret:     os.Getenv("SESSION_SECRET"),
		SessionTTL:        envDuration("SESSION_TTL", 8*time.Hour),
		CookieSecure:      envBool("COOKIE_SECURE", mode == ModeOnline),
		LoginRatePerMin:   envInt("LOGIN_RATE_PER_MIN", 10),
		TrustProxyHeaders: envBool("TRUST_PROXY_HEADERS", false),

		CORSOriginsOnline:  csvOr("CORS_ORIGINS_ONLINE", "https://evaluator.example.gov.in"),
		CORSOriginsOffline: csvOr("CORS_ORIGINS_OFFLINE", "http://localhost:3000"),
	}
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func envBool(k string, def bool) bool {
	switch os.Getenv(k) {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return def
	}
}

func envInt(k string, def int) int {
	v, err := strconv.Atoi(os.Getenv(k))
	if err != nil {
		return def
	}
	return v
}

func envDuration(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func csvOr(k, def string) []string {
	v := envOr(k, def)
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
