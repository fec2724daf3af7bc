// file: handler/rate_limit.go

package handler

import (
	"net"
	"net/http"
	"sync"

	"github.com/themidix/GlucoCheckWebAPIv4/common"
	"github.com/themidix/GlucoCheckWebAPIv4/logger"
	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per client IP.
type RateLimiter struct {
	limiters       map[string]*rate.Limiter
	mu             sync.RWMutex
	limitPerMinute int
}

// NewRateLimiter returns nil when limitPerMinute is not positive, which disables limiting.
func NewRateLimiter(limitPerMinute int) *RateLimiter {
	if limitPerMinute <= 0 {
		return nil
	}
	return &RateLimiter{
		limiters:       make(map[string]*rate.Limiter),
		limitPerMinute: limitPerMinute,
	}
}

func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.RLock()
	limiter, exists := rl.limiters[key]
	rl.mu.RUnlock()

	if !exists {
		rl.mu.Lock()
		limiter, exists = rl.limiters[key]
		if !exists {
			limiter = rate.NewLimiter(rate.Limit(rl.limitPerMinute)/60, rl.limitPerMinute)
			rl.limiters[key] = limiter
		}
		rl.mu.Unlock()
	}

	return limiter
}

// Limit wraps next. A nil RateLimiter lets every request through.
func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	if rl == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !rl.getLimiter(ip).Allow() {
			logger.Log.WithField("client_ip", ip).Warn("Rate limit exceeded")
			common.NewAppError(http.StatusTooManyRequests, "Rate limit exceeded", nil).Send(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
