package core

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"croplens/internal/types"
)

// RateLimitMiddleware enforces per-actor request limits. Unauthenticated
// requests (public paths) fall back to the client IP as the limit key. A nil
// RateLimiter disables limiting; a limiter error fails open so a degraded
// limiter backend never takes the API down with it.
func (s *Server) RateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.RateLimiter == nil {
			next.ServeHTTP(w, r)
			return
		}

		key := extractClientIP(r)
		if actor, ok := types.GetActor(r.Context()); ok {
			key = actor.ID
		}

		info, allowed, err := s.RateLimiter.Allow(r.Context(), key, r.Method+" "+r.URL.Path)
		if err != nil {
			s.Logger.WarnContext(r.Context(), "rate limiter unavailable, failing open",
				slog.String("error", err.Error()),
			)
			next.ServeHTTP(w, r)
			return
		}

		setRateLimitHeaders(w, info)

		if !allowed {
			retryAfter := max(int(time.Until(info.ResetAt).Seconds()), 1)
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			s.Error(w, r, types.NewAppError(types.ErrCodeRateLimit, "rate limit exceeded, retry later", nil))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func setRateLimitHeaders(w http.ResponseWriter, info types.RateLimitInfo) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetAt.Unix(), 10))
}

// memoryRateLimiter is a fixed-window in-process limiter. Windows are tracked
// per key and reset lazily on access. Suitable for a single API instance;
// multi-instance deployments share no state and each enforce the limit
// independently.
type memoryRateLimiter struct {
	limit  int
	window time.Duration
	clock  types.Clock

	mu        sync.Mutex
	windows   map[string]*rateWindow
	nextSweep time.Time
}

type rateWindow struct {
	count   int
	resetAt time.Time
}

// NewMemoryRateLimiter returns an in-memory fixed-window rate limiter
// allowing limit requests per window per key.
func NewMemoryRateLimiter(limit int, window time.Duration, clock types.Clock) types.RateLimiter {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &memoryRateLimiter{
		limit:   limit,
		window:  window,
		clock:   clock,
		windows: make(map[string]*rateWindow),
	}
}

func (l *memoryRateLimiter) Allow(_ context.Context, actorID string, _ string) (types.RateLimitInfo, bool, error) {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	// IP-keyed unauthenticated traffic can accumulate one entry per
	// client, so expired windows are swept periodically to keep the map
	// bounded by active keys.
	if !now.Before(l.nextSweep) {
		for key, win := range l.windows {
			if !now.Before(win.resetAt) {
				delete(l.windows, key)
			}
		}
		l.nextSweep = now.Add(l.window)
	}

	win, ok := l.windows[actorID]
	if !ok || !now.Before(win.resetAt) {
		win = &rateWindow{resetAt: now.Add(l.window)}
		l.windows[actorID] = win
	}

	info := types.RateLimitInfo{
		Limit:   l.limit,
		ResetAt: win.resetAt,
	}

	if win.count >= l.limit {
		info.Remaining = 0
		return info, false, nil
	}

	win.count++
	info.Remaining = l.limit - win.count
	return info, true, nil
}
