package middleware

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"OpenCargoRegistry/utils"
)

const (
	defaultLoginRate  = 1
	defaultLoginBurst = 5
	limiterCapacity   = 10000
	limiterIdleTTL    = 10 * time.Minute
)

// RateLimiter throttles requests per client address. Limiters of idle
// clients are evicted from a bounded cache.
type RateLimiter struct {
	limiters *utils.LRUCache[string, *rate.Limiter]
	limit    rate.Limit
	burst    int
	clock    utils.TimeProvider
}

func NewRateLimiter(perSecond float64, burst int, clock utils.TimeProvider) *RateLimiter {
	if perSecond <= 0 {
		perSecond = defaultLoginRate
	}
	if burst <= 0 {
		burst = defaultLoginBurst
	}
	if clock == nil {
		clock = utils.NewRealTimeProvider()
	}
	return &RateLimiter{
		limiters: utils.NewLRUCache[string, *rate.Limiter](limiterCapacity, limiterIdleTTL, clock),
		limit:    rate.Limit(perSecond),
		burst:    burst,
		clock:    clock,
	}
}

// Allow reports whether the client may make one more request now.
func (l *RateLimiter) Allow(client string) bool {
	limiter := l.limiters.GetOrAdd(client, func() *rate.Limiter {
		return rate.NewLimiter(l.limit, l.burst)
	})
	return limiter.AllowN(l.clock.Now(), 1)
}

// Limit rejects requests over the client's budget with 429.
func (l *RateLimiter) Limit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		client := clientAddress(r)
		if !l.Allow(client) {
			slog.Warn("Rate limit exceeded", "client", client, "path", r.URL.Path)
			retryAfter := int(math.Ceil(1 / float64(l.limit)))
			w.Header().Set("Retry-After", strconv.Itoa(max(retryAfter, 1)))
			writeError(w, http.StatusTooManyRequests, "too many requests, try again later")
			return
		}
		next.ServeHTTP(w, r)
	}
}

func clientAddress(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
