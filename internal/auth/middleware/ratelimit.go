package auth

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/mind-engage/evaluator-portal/internal/logging"
)

// RateLimiter throttles requests per client address. Limiters live in a
// bounded LRU so a scan of many addresses cannot grow memory without limit.
type RateLimiter struct {
	mu       sync.Mutex
	limiters *lru.Cache[string, *rate.Limiter]
	rate     rate.Limit
	burst    int
}

// NewRateLimiter allows perMinute requests per address, bursting up to the
// same amount. perMinute <= 0 disables limiting.
func NewRateLimiter(perMinute int) *RateLimiter {
	if perMinute <= 0 {
		return &RateLimiter{}
	}
	cache, _ := lru.New[string, *rate.Limiter](10000)
	return &RateLimiter{
		limiters: cache,
		rate:     rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    perMinute,
	}
}

func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	l, ok := rl.limiters.Get(key)
	if !ok {
		l = rate.NewLimiter(rl.rate, rl.burst)
		rl.limiters.Add(key, l)
	}
	return l
}

func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	if rl.limiters == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientKey(r)
		if !rl.limiter(key).Allow() {
			logging.Log.WithField("client", key).WithField("path", r.URL.Path).Warn("auth: rate limit exceeded")
			w.Header().Set("Retry-After", strconv.Itoa(int(time.Minute.Seconds())/rl.burst+1))
			writeJSON(w, http.StatusTooManyRequests, map[string]any{"ok": false, "error": "too many attempts, try again shortly"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientKey(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
