// Package ratelimit throttles the daemon's status HTTP surface, grounded
// on the teacher's infrastructure/ratelimit and infrastructure/middleware
// rate limiting: golang.org/x/time/rate per source-IP limiters behind a
// mutex, with a periodic cleanup sweep so long-lived daemons don't leak one
// limiter per caller forever.
package ratelimit

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/automaton-systems/lifecycle-core/infrastructure/errors"
	"github.com/automaton-systems/lifecycle-core/infrastructure/logging"
)

// Limiter rate-limits HTTP requests per client IP.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
	log      *logging.Logger
}

// New constructs a Limiter allowing requestsPerSecond sustained, with burst
// headroom above that.
func New(requestsPerSecond float64, burst int, log *logging.Logger) *Limiter {
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(requestsPerSecond),
		burst:    burst,
		log:      log,
	}
}

func (l *Limiter) limiterFor(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(l.rate, l.burst)
		l.limiters[key] = lim
	}
	return lim
}

// Cleanup drops every tracked limiter once the map grows unreasonably
// large, the same coarse bound the teacher's middleware uses rather than
// tracking per-key last-access time.
func (l *Limiter) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.limiters) > 10000 {
		l.limiters = make(map[string]*rate.Limiter)
	}
}

// StartCleanup runs Cleanup on interval until the returned stop func is
// called.
func (l *Limiter) StartCleanup(interval time.Duration) (stop func()) {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	var once sync.Once

	go func() {
		for {
			select {
			case <-ticker.C:
				l.Cleanup()
			case <-done:
				return
			}
		}
	}()

	return func() {
		once.Do(func() {
			ticker.Stop()
			close(done)
		})
	}
}

// Middleware wraps an http.Handler, rejecting requests over budget with 429
// and a Retry-After header.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientIP(r)
		if !l.limiterFor(key).Allow() {
			if l.log != nil {
				l.log.WithContext(r.Context()).WithField("client_ip", key).Warn("rate limit exceeded")
			}
			svcErr := errors.RateLimitExceeded(int(l.rate), time.Second.String())
			w.Header().Set("Retry-After", "1")
			http.Error(w, svcErr.Error(), svcErr.HTTPStatus)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
