package gateway

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// SenderLimiter rate limits event deliveries per sender using a token bucket
// per key. The key is the X-Event-Sender header when present, the client IP
// otherwise. Idle buckets are reaped by a background goroutine.
type SenderLimiter struct {
	mu     sync.RWMutex
	limits map[string]*rate.Limiter
	r      rate.Limit
	b      int
}

// NewSenderLimiter creates a limiter allowing r events per second with a
// burst of b, and starts the cleanup goroutine.
func NewSenderLimiter(r rate.Limit, b int) *SenderLimiter {
	l := &SenderLimiter{
		limits: make(map[string]*rate.Limiter),
		r:      r,
		b:      b,
	}
	go l.cleanup()
	return l
}

func (l *SenderLimiter) limiter(key string) *rate.Limiter {
	l.mu.RLock()
	lim, ok := l.limits[key]
	l.mu.RUnlock()
	if ok {
		return lim
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok = l.limits[key]; !ok {
		lim = rate.NewLimiter(l.r, l.b)
		l.limits[key] = lim
	}
	return lim
}

// Allow reports whether the sender may deliver another event now.
func (l *SenderLimiter) Allow(key string) bool {
	return l.limiter(key).Allow()
}

// cleanup drops buckets that have refilled completely; a full bucket means
// the sender has been idle long enough to forget.
func (l *SenderLimiter) cleanup() {
	ticker := time.NewTicker(3 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		l.mu.Lock()
		for key, lim := range l.limits {
			if lim.TokensAt(time.Now()) >= float64(lim.Burst()) {
				delete(l.limits, key)
			}
		}
		l.mu.Unlock()
	}
}

// Middleware rejects over-limit deliveries with 429 before they reach the
// event handler.
func (l *SenderLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(senderHeader)
		if key == "" {
			ip, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				ip = r.RemoteAddr
			}
			key = ip
		}
		if !l.Allow(key) {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
