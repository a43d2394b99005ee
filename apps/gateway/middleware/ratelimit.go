package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pitabwire/util"
	"golang.org/x/time/rate"
)

const (
	cleanupInterval = 5 * time.Minute
	staleClientAge  = 10 * time.Minute
	apiKeyHeader    = "X-Api-Key" //nolint:gosec // This is a header name, not a credential
	xForwardedFor   = "X-Forwarded-For"
)

// RateLimiter is a token bucket rate limiter that tracks clients by API key
// or IP. Mutation engines and telemetry collectors poll on tight loops, so
// limits are per-client rather than global.
type RateLimiter struct {
	clients map[string]*clientLimiter
	mu      sync.Mutex

	perSecond rate.Limit
	burst     int

	stopCleanup chan struct{}
}

// clientLimiter tracks a client's rate limiter and last access time.
type clientLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(requestsPerMinute, burstSize int) *RateLimiter {
	rl := &RateLimiter{
		clients:     make(map[string]*clientLimiter),
		perSecond:   rate.Limit(float64(requestsPerMinute) / 60.0),
		burst:       burstSize,
		stopCleanup: make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop stops the rate limiter's cleanup goroutine.
func (rl *RateLimiter) Stop() {
	close(rl.stopCleanup)
}

// limiterFor retrieves or creates the rate limiter for a client.
func (rl *RateLimiter) limiterFor(clientID string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	client, exists := rl.clients[clientID]
	if !exists {
		client = &clientLimiter{limiter: rate.NewLimiter(rl.perSecond, rl.burst)}
		rl.clients[clientID] = client
	}
	client.lastAccess = time.Now()
	return client.limiter
}

// Allow checks if a request from the given client is allowed. When denied,
// retryAfter is the whole-second wait the client should honor.
func (rl *RateLimiter) Allow(clientID string) (allowed bool, retryAfter int) {
	limiter := rl.limiterFor(clientID)
	if limiter.Allow() {
		return true, 0
	}

	reservation := limiter.Reserve()
	delay := reservation.Delay()
	reservation.Cancel()

	if delay <= 0 {
		return false, 1
	}
	return false, int(delay.Seconds()) + 1
}

// cleanupLoop periodically drops limiters for clients that went quiet.
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCleanup:
			return
		}
	}
}

func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	staleThreshold := time.Now().Add(-staleClientAge)
	for clientID, client := range rl.clients {
		if client.lastAccess.Before(staleThreshold) {
			delete(rl.clients, clientID)
		}
	}
}

// getClientID extracts a unique identifier for the client. An API key
// identifies the client directly; otherwise the first X-Forwarded-For hop
// or the remote address is used.
func getClientID(r *http.Request) string {
	if apiKey := r.Header.Get(apiKeyHeader); apiKey != "" {
		return "apikey:" + apiKey
	}

	if xff := r.Header.Get(xForwardedFor); xff != "" {
		firstIP, _, _ := strings.Cut(xff, ",")
		firstIP = strings.TrimSpace(firstIP)
		if host, _, err := net.SplitHostPort(firstIP); err == nil {
			return "ip:" + host
		}
		return "ip:" + firstIP
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "ip:" + r.RemoteAddr
	}
	return "ip:" + host
}

// Middleware creates an HTTP middleware that applies rate limiting.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		log := util.Log(ctx)

		clientID := getClientID(r)

		allowed, retryAfter := rl.Allow(clientID)
		if !allowed {
			log.Warn("rate limit exceeded",
				"client_id", clientID,
				"path", r.URL.Path,
				"retry_after", retryAfter,
			)

			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.WriteHeader(http.StatusTooManyRequests)
			response := map[string]any{
				"error":       "rate_limit_exceeded",
				"message":     "Too many requests. Please retry after " + strconv.Itoa(retryAfter) + " seconds.",
				"retry_after": retryAfter,
			}
			_ = json.NewEncoder(w).Encode(response)
			return
		}

		next.ServeHTTP(w, r)
	})
}
