package restapi

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	noKey         = "__no_key__"
	limiterIdle   = 10 * time.Minute
	cleanupPeriod = 5 * time.Minute
)

type keyLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimitMiddleware limits requests per API key.
type RateLimitMiddleware struct {
	mu        sync.Mutex
	limiters  map[string]*keyLimiter
	rateLimit rate.Limit
	burstSize int

	stopOnce sync.Once
	stop     chan struct{}
}

// NewRateLimitMiddleware allows perInterval requests per interval and key.
// A negative perInterval disables limiting; zero rejects every request.
func NewRateLimitMiddleware(perInterval int, interval time.Duration) *RateLimitMiddleware {
	var limit rate.Limit
	switch {
	case perInterval < 0:
		limit = rate.Inf
	case perInterval == 0:
		limit = 0
	default:
		limit = rate.Every(interval / time.Duration(perInterval))
	}

	rl := &RateLimitMiddleware{
		limiters:  make(map[string]*keyLimiter),
		rateLimit: limit,
		burstSize: perInterval,
		stop:      make(chan struct{}),
	}
	go rl.cleanup()
	return rl
}

func (rl *RateLimitMiddleware) getLimiter(apiKey string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, ok := rl.limiters[apiKey]
	if !ok {
		entry = &keyLimiter{limiter: rate.NewLimiter(rl.rateLimit, max(rl.burstSize, 0))}
		rl.limiters[apiKey] = entry
	}
	entry.lastSeen = now
	return entry.limiter
}

// Handler wraps next with the per-key limit.
func (rl *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey := r.URL.Query().Get("key")
		if apiKey == "" {
			apiKey = noKey
		}
		if !rl.getLimiter(apiKey, time.Now()).Allow() {
			rl.sendRateLimitExceeded(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimitMiddleware) sendRateLimitExceeded(w http.ResponseWriter, r *http.Request) {
	retryAfter := time.Second
	switch {
	case rl.rateLimit == 0:
		retryAfter = time.Hour
	case rl.rateLimit != rate.Inf:
		if d := time.Duration(float64(time.Second) / float64(rl.rateLimit)); d > retryAfter {
			retryAfter = d
		}
	}

	w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.burstSize))
	w.Header().Set("X-RateLimit-Remaining", "0")
	writeErrorResponse(w, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.", 2)
}

// cleanup drops limiters of keys that stayed idle.
func (rl *RateLimitMiddleware) cleanup() {
	ticker := time.NewTicker(cleanupPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case now := <-ticker.C:
			rl.evictIdle(now)
		}
	}
}

func (rl *RateLimitMiddleware) evictIdle(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, entry := range rl.limiters {
		if now.Sub(entry.lastSeen) > limiterIdle {
			delete(rl.limiters, key)
		}
	}
}

// Stop ends the cleanup goroutine.
func (rl *RateLimitMiddleware) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}
