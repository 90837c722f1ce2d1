package server

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ipLimiter tracks a token bucket per client IP along with its last use,
// so idle entries can be evicted.
type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter applies a per-IP token bucket to incoming requests.
type rateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*ipLimiter
	limit    rate.Limit
	burst    int
}

const (
	// visitorTTL is how long an idle client entry is kept before eviction.
	visitorTTL = 3 * time.Minute
	// evictInterval is how often the eviction loop runs.
	evictInterval = time.Minute
)

// newRateLimiter returns a limiter allowing limit requests/second with the
// given burst per client IP, plus a stop function that halts the background
// eviction goroutine.
func newRateLimiter(limit float64, burst int) (*rateLimiter, func()) {
	rl := &rateLimiter{
		visitors: make(map[string]*ipLimiter),
		limit:    rate.Limit(limit),
		burst:    burst,
	}
	done := make(chan struct{})
	go rl.evictLoop(done)
	var once sync.Once
	stop := func() { once.Do(func() { close(done) }) }
	return rl, stop
}

// evictLoop periodically removes entries for clients idle longer than
// visitorTTL.
func (rl *rateLimiter) evictLoop(done <-chan struct{}) {
	ticker := time.NewTicker(evictInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-visitorTTL)
			rl.mu.Lock()
			for ip, v := range rl.visitors {
				if v.lastSeen.Before(cutoff) {
					delete(rl.visitors, ip)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// allow reports whether a request from ip may proceed.
func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	v, ok := rl.visitors[ip]
	if !ok {
		v = &ipLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[ip] = v
	}
	v.lastSeen = time.Now()
	return v.limiter.Allow()
}

// middleware rejects requests over the per-IP rate with 429.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(clientIP(r)) {
			w.Header().Set("Retry-After", "1")
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP extracts the client address, without the port, from the request.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
