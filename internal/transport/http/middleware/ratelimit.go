package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// limiterIdle is how long a user's bucket survives without requests.
const limiterIdle = 10 * time.Minute

type limiterEntry struct {
	lim  *rate.Limiter
	seen time.Time
}

// WriteLimiter keeps one token bucket per authenticated user. Buckets idle
// for longer than limiterIdle are dropped; an idle bucket is full anyway, so
// recreating it later changes nothing for the user.
type WriteLimiter struct {
	mu        sync.Mutex
	m         map[int64]*limiterEntry
	rps       rate.Limit
	burst     int
	lastSweep time.Time
	now       func() time.Time
}

func NewWriteLimiter(rps float64, burst int) *WriteLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &WriteLimiter{
		m:         make(map[int64]*limiterEntry),
		rps:       rate.Limit(rps),
		burst:     burst,
		now:       time.Now,
		lastSweep: time.Now(),
	}
}

func (l *WriteLimiter) get(userID int64) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if now.Sub(l.lastSweep) >= limiterIdle {
		l.sweep(now)
	}
	if e, ok := l.m[userID]; ok {
		e.seen = now
		return e.lim
	}
	lim := rate.NewLimiter(l.rps, l.burst)
	l.m[userID] = &limiterEntry{lim: lim, seen: now}
	return lim
}

// sweep runs with mu held.
func (l *WriteLimiter) sweep(now time.Time) {
	for id, e := range l.m {
		if now.Sub(e.seen) >= limiterIdle {
			delete(l.m, id)
		}
	}
	l.lastSweep = now
}

// Limit must run after Auth. A nil limiter or a non-positive rate lets
// every request through.
func (l *WriteLimiter) Limit(next http.Handler) http.Handler {
	if l == nil || l.rps <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lim := l.get(GetUserID(r.Context()))
		if !lim.Allow() {
			retry := int(1/float64(l.rps)) + 1
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":{"code":"RATE_LIMITED","message":"Too many requests"}}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}
