package middleware

import (
	"encoding/json"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/sakif/bookdigest/internal/apperror"
	"github.com/sakif/bookdigest/internal/privacy"
)

// idleTTL is how long a client's bucket is kept after its last request.
const idleTTL = 10 * time.Minute

// RateLimiter is a per-client-IP token bucket. Buckets live in memory and
// idle ones are swept lazily while handling requests, so there is no
// background goroutine to stop.
type RateLimiter struct {
	limit rate.Limit
	burst int

	mu        sync.Mutex
	clients   map[string]*client
	lastSweep time.Time
	now       func() time.Time

	logger   *slog.Logger
	onReject func(r *http.Request)
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows perMinute requests per minute per client with the
// given burst. perMinute <= 0 returns nil, and a nil limiter lets every
// request through.
func NewRateLimiter(perMinute, burst int, logger *slog.Logger) *RateLimiter {
	if perMinute <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limit:   rate.Every(time.Minute / time.Duration(perMinute)),
		burst:   burst,
		clients: make(map[string]*client),
		now:     time.Now,
		logger:  logger,
	}
}

// OnReject registers a callback run for every rejected request.
func (l *RateLimiter) OnReject(fn func(r *http.Request)) {
	if l != nil {
		l.onReject = fn
	}
}

// Allow reports whether key may proceed now, and if not, how long until
// the next token.
func (l *RateLimiter) Allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) > idleTTL {
		for k, c := range l.clients {
			if now.Sub(c.lastSeen) > idleTTL {
				delete(l.clients, k)
			}
		}
		l.lastSweep = now
	}

	c, ok := l.clients[key]
	if !ok {
		c = &client{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = c
	}
	c.lastSeen = now

	res := c.limiter.ReserveN(now, 1)
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// Len returns the number of tracked clients.
func (l *RateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// Middleware rejects clients over their budget with 429 and a JSON body in
// the same shape as every other API error.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	if l == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		ok, retry := l.Allow(ip)
		if ok {
			next.ServeHTTP(w, r)
			return
		}

		if l.logger != nil {
			l.logger.WarnContext(r.Context(), "rate limit exceeded",
				slog.String("path", r.URL.Path),
				slog.String("ip_prefix", privacy.AnonymizeIP(ip)),
			)
		}
		if l.onReject != nil {
			l.onReject(r)
		}
		writeRateLimitExceeded(w, retry)
	})
}

func writeRateLimitExceeded(w http.ResponseWriter, retry time.Duration) {
	appErr := apperror.RateLimited()
	w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retry.Seconds()))))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   appErr.Code,
		"message": appErr.Message,
	})
}

// clientIP strips the port from r.RemoteAddr, which RealIP has already
// replaced with the forwarded address when the peer is a trusted proxy.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
