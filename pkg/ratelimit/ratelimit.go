// Package ratelimit provides a global plus per-client token bucket limiter
// for the HTTP service.
package ratelimit

import (
	"net"
	"net/http"
	"sync"
	"time"
)

type tokenBucket struct {
	mu       sync.Mutex
	rate     float64 // tokens per second
	burst    float64
	tokens   float64
	last     time.Time
	lastSeen time.Time
}

func newTokenBucket(rate, burst int) *tokenBucket {
	if burst < 1 {
		burst = 1
	}
	now := time.Now()
	return &tokenBucket{
		rate:     float64(rate),
		burst:    float64(burst),
		tokens:   float64(burst),
		last:     now,
		lastSeen: now,
	}
}

func (b *tokenBucket) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	b.tokens += now.Sub(b.last).Seconds() * b.rate
	if b.tokens > b.burst {
		b.tokens = b.burst
	}
	b.last = now
	b.lastSeen = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

func (b *tokenBucket) idleSince(t time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastSeen.Before(t)
}

// Limiter combines an optional global bucket with optional per-IP buckets.
// A rate of 0 disables that level.
type Limiter struct {
	global  *tokenBucket
	ipRate  int
	ipBurst int

	mu  sync.Mutex
	ips map[string]*tokenBucket

	stop chan struct{}
	once sync.Once
}

// NewLimiter returns nil when both rates are 0, meaning unlimited.
func NewLimiter(globalRate, globalBurst, ipRate, ipBurst int) *Limiter {
	if globalRate <= 0 && ipRate <= 0 {
		return nil
	}
	l := &Limiter{
		ipRate:  ipRate,
		ipBurst: ipBurst,
		ips:     make(map[string]*tokenBucket),
		stop:    make(chan struct{}),
	}
	if globalRate > 0 {
		l.global = newTokenBucket(globalRate, globalBurst)
	}
	go l.cleanupLoop(time.Minute, 5*time.Minute)
	return l
}

// Allow reports whether a request from ip may proceed.
func (l *Limiter) Allow(ip string) bool {
	if l == nil {
		return true
	}
	if l.ipRate > 0 {
		l.mu.Lock()
		b, ok := l.ips[ip]
		if !ok {
			b = newTokenBucket(l.ipRate, l.ipBurst)
			l.ips[ip] = b
		}
		l.mu.Unlock()
		if !b.allow() {
			return false
		}
	}
	if l.global != nil && !l.global.allow() {
		return false
	}
	return true
}

// Stop ends the background cleanup. It is safe to call more than once.
func (l *Limiter) Stop() {
	if l == nil {
		return
	}
	l.once.Do(func() { close(l.stop) })
}

func (l *Limiter) cleanupLoop(every, idle time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-l.stop:
			return
		case now := <-t.C:
			cutoff := now.Add(-idle)
			l.mu.Lock()
			for ip, b := range l.ips {
				if b.idleSince(cutoff) {
					delete(l.ips, ip)
				}
			}
			l.mu.Unlock()
		}
	}
}

// Middleware answers 429 when the client or the process is over its rate.
// A nil limiter passes everything through.
func Middleware(l *Limiter, next http.Handler) http.Handler {
	if l == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(clientIP(r)) {
			w.Header().Set("Retry-After", "1")
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
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
