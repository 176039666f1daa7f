package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"go-auth-api/internal/model"
)

// RouteQuotas are requests per client address. Zero or negative values fall
// back to the documented defaults (5, 10, 50, 200).
type RouteQuotas struct {
	RegisterPerMinute int
	LoginPerMinute    int
	GlobalPerHour     int
	GlobalPerDay      int
}

type clientLimiter struct {
	register *rate.Limiter
	login    *rate.Limiter
	hourly   *rate.Limiter
	daily    *rate.Limiter
	lastSeen time.Time
}

// RateLimitMiddleware throttles by client address using token buckets
// (x/time/rate). Each bucket starts full, so a quota of N admits N requests
// back to back and rejects the N+1th inside the refill window. Counters are
// per-process; a restart resets them.
type RateLimitMiddleware struct {
	quotas  RouteQuotas
	mu      sync.Mutex
	clients map[string]*clientLimiter
}

func NewRateLimitMiddleware(quotas RouteQuotas) *RateLimitMiddleware {
	if quotas.RegisterPerMinute <= 0 {
		quotas.RegisterPerMinute = 5
	}
	if quotas.LoginPerMinute <= 0 {
		quotas.LoginPerMinute = 10
	}
	if quotas.GlobalPerHour <= 0 {
		quotas.GlobalPerHour = 50
	}
	if quotas.GlobalPerDay <= 0 {
		quotas.GlobalPerDay = 200
	}

	return &RateLimitMiddleware{
		quotas:  quotas,
		clients: map[string]*clientLimiter{},
	}
}

func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientIP := extractClientIP(r)
		limiter := m.getLimiter(clientIP)

		if !limiter.daily.Allow() || !limiter.hourly.Allow() {
			writeRateLimited(w)
			return
		}

		switch strings.ToLower(r.URL.Path) {
		case "/auth/register":
			if !limiter.register.Allow() {
				writeRateLimited(w)
				return
			}
		case "/auth/login":
			if !limiter.login.Allow() {
				writeRateLimited(w)
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

func (m *RateLimitMiddleware) getLimiter(clientIP string) *clientLimiter {
	m.mu.Lock()
	defer m.mu.Unlock()

	if limiter, exists := m.clients[clientIP]; exists {
		limiter.lastSeen = time.Now()
		m.gcLocked()
		return limiter
	}

	created := &clientLimiter{
		register: quotaLimiter(time.Minute, m.quotas.RegisterPerMinute),
		login:    quotaLimiter(time.Minute, m.quotas.LoginPerMinute),
		hourly:   quotaLimiter(time.Hour, m.quotas.GlobalPerHour),
		daily:    quotaLimiter(24*time.Hour, m.quotas.GlobalPerDay),
		lastSeen: time.Now(),
	}
	m.clients[clientIP] = created
	m.gcLocked()

	return created
}

func quotaLimiter(window time.Duration, quota int) *rate.Limiter {
	return rate.NewLimiter(rate.Every(window/time.Duration(quota)), quota)
}

func (m *RateLimitMiddleware) gcLocked() {
	if len(m.clients) < 1000 {
		return
	}

	cutoff := time.Now().Add(-10 * time.Minute)
	for ip, limiter := range m.clients {
		if limiter.lastSeen.Before(cutoff) {
			delete(m.clients, ip)
		}
	}
}

func writeRateLimited(w http.ResponseWriter) {
	w.Header().Set("Retry-After", "60")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Success: false,
		Error: &model.APIError{
			Code:    "RATE_LIMITED",
			Message: "Too many requests",
		},
	})
}

func extractClientIP(r *http.Request) string {
	forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-For"))
	if forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}

	realIP := strings.TrimSpace(r.Header.Get("X-Real-IP"))
	if realIP != "" {
		return realIP
	}

	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}

	if strings.TrimSpace(r.RemoteAddr) == "" {
		return "unknown"
	}

	return r.RemoteAddr
}
