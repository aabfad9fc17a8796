package api

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultRequestsPerMinute = 120
	defaultBurst             = 20

	// limiterIdleTTL is how long an unused per-IP limiter is kept.
	limiterIdleTTL  = 10 * time.Minute
	limiterSweepInt = time.Minute
)

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ipRateLimiter keeps one token bucket per client IP.
type ipRateLimiter struct {
	mu  sync.Mutex
	ips map[string]*ipLimiter
	r   rate.Limit
	b   int
	now func() time.Time
}

func newIPRateLimiter(requestsPerMinute, burst int) *ipRateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = defaultRequestsPerMinute
	}
	if burst <= 0 {
		burst = defaultBurst
	}
	return &ipRateLimiter{
		ips: make(map[string]*ipLimiter),
		r:   rate.Limit(float64(requestsPerMinute) / time.Minute.Seconds()),
		b:   burst,
		now: time.Now,
	}
}

// allow reports whether ip may make one more request now.
func (l *ipRateLimiter) allow(ip string) bool {
	now := l.now()

	l.mu.Lock()
	entry, ok := l.ips[ip]
	if !ok {
		entry = &ipLimiter{limiter: rate.NewLimiter(l.r, l.b)}
		l.ips[ip] = entry
	}
	entry.lastSeen = now
	l.mu.Unlock()

	return entry.limiter.AllowN(now, 1)
}

// sweep drops limiters not used within limiterIdleTTL.
func (l *ipRateLimiter) sweep() {
	cutoff := l.now().Add(-limiterIdleTTL)

	l.mu.Lock()
	defer l.mu.Unlock()
	for ip, entry := range l.ips {
		if entry.lastSeen.Before(cutoff) {
			delete(l.ips, ip)
		}
	}
}

func (l *ipRateLimiter) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(limiterSweepInt)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}

func (l *ipRateLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.ips)
}

// clientIP is the remote address without its port. Forwarding headers are
// not trusted.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
