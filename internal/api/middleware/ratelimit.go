package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/LorenzoRonconi00/twin/internal/identity"
	"github.com/LorenzoRonconi00/twin/internal/metrics"
)

const (
	violationThreshold = 10
	violationWindow    = time.Hour
	autoBlockDuration  = 24 * time.Hour
)

// RateLimit defines limits for an endpoint pattern.
type RateLimit struct {
	Requests int
	Window   time.Duration
	KeyFunc  func(r *http.Request) string
}

// RateLimiterConfig holds configuration for the rate limiter.
type RateLimiterConfig struct {
	Whitelist        []string // IPs or CIDRs exempt from rate limiting
	AutoBlockEnabled bool     // Enable auto-blocking after repeated violations
}

// RateLimiter limits requests per endpoint pattern. With a redis client the
// window is shared across instances; without one each process keeps token
// buckets in memory.
type RateLimiter struct {
	client    *redis.Client
	limits    map[string]RateLimit
	blocker   *IPBlocker
	allow     ipAllowList
	logger    zerolog.Logger
	autoBlock bool

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

// NewRateLimiter creates a new rate limiter. client may be nil.
func NewRateLimiter(client *redis.Client, logger zerolog.Logger, cfg RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		client:    client,
		logger:    logger,
		allow:     newIPAllowList(cfg.Whitelist, logger),
		autoBlock: cfg.AutoBlockEnabled && client != nil,
		buckets:   make(map[string]*rate.Limiter),
		limits: map[string]RateLimit{
			"POST /api/servers":        {10, time.Hour, profileOrIPKey},
			"PATCH /api/servers/":      {30, time.Minute, profileOrIPKey},
			"POST /api/invite/":        {30, time.Minute, profileOrIPKey},
			"POST /api/channels":       {30, time.Minute, profileOrIPKey},
			"PATCH /api/channels/":     {30, time.Minute, profileOrIPKey},
			"DELETE /api/channels/":    {30, time.Minute, profileOrIPKey},
			"PATCH /api/members/":      {30, time.Minute, profileOrIPKey},
			"DELETE /api/members/":     {30, time.Minute, profileOrIPKey},
			"POST /api/conversations":  {30, time.Minute, profileOrIPKey},
			"POST /api/socket/":        {60, time.Minute, profileOrIPKey},
			"PATCH /api/socket/":       {60, time.Minute, profileOrIPKey},
			"DELETE /api/socket/":      {60, time.Minute, profileOrIPKey},
			"GET /api/direct-messages": {120, time.Minute, profileOrIPKey},
			"GET /api/messages":        {120, time.Minute, profileOrIPKey},
			"GET /api/stats":           {30, time.Minute, ipKey},
		},
	}
	if client != nil {
		rl.blocker = NewIPBlocker(client)
	}
	return rl
}

// ipAllowList holds addresses and networks exempt from limiting.
type ipAllowList struct {
	ips  map[string]bool
	nets []*net.IPNet
}

func newIPAllowList(entries []string, logger zerolog.Logger) ipAllowList {
	l := ipAllowList{ips: make(map[string]bool)}
	for _, entry := range entries {
		if !strings.Contains(entry, "/") {
			l.ips[entry] = true
			continue
		}
		_, ipNet, err := net.ParseCIDR(entry)
		if err != nil {
			logger.Warn().Str("entry", entry).Err(err).Msg("invalid CIDR in whitelist")
			continue
		}
		l.nets = append(l.nets, ipNet)
	}
	if len(entries) > 0 {
		logger.Info().Int("ips", len(l.ips)).Int("cidrs", len(l.nets)).Msg("rate limit whitelist configured")
	}
	return l
}

func (l ipAllowList) contains(addr string) bool {
	if l.ips[addr] {
		return true
	}
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	for _, n := range l.nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

func ipKey(r *http.Request) string {
	return "ratelimit:ip:" + RealIP(r)
}

// profileOrIPKey keys on the caller's profile once identity has run.
func profileOrIPKey(r *http.Request) string {
	if p := identity.ProfileFromContext(r.Context()); p != nil {
		return "ratelimit:profile:" + p.ID.String()
	}
	return ipKey(r)
}

// bucketKey scopes a caller key to one limit pattern so every endpoint keeps
// its own budget.
func bucketKey(pattern, callerKey string) string {
	return callerKey + ":" + strings.ReplaceAll(pattern, " ", "")
}

// RealIP extracts the client IP from proxy headers or the connection.
func RealIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Allow counts one request against key and reports whether it fits in the
// window, the requests left and when the window resets.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, int, time.Time) {
	if rl.client == nil {
		return rl.allowLocal(key, limit, window)
	}
	return rl.allowShared(ctx, key, limit, window)
}

// allowShared keeps a sliding window of request timestamps in a sorted set.
func (rl *RateLimiter) allowShared(ctx context.Context, key string, limit int, window time.Duration) (bool, int, time.Time) {
	now := time.Now()
	resetAt := now.Add(window)

	var count *redis.IntCmd
	_, err := rl.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(now.Add(-window).UnixMilli(), 10))
		count = pipe.ZCard(ctx, key)
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixMilli()), Member: strconv.FormatInt(now.UnixNano(), 10)})
		pipe.PExpire(ctx, key, window)
		return nil
	})
	if err != nil {
		// Fail open on broker errors.
		rl.logger.Debug().Err(err).Str("key", key).Msg("rate limit check failed")
		return true, limit, resetAt
	}

	seen := int(count.Val())
	return seen < limit, max(limit-seen-1, 0), resetAt
}

// allowLocal applies a token bucket that refills limit tokens per window.
func (rl *RateLimiter) allowLocal(key string, limit int, window time.Duration) (bool, int, time.Time) {
	rl.mu.Lock()
	lim, ok := rl.buckets[key]
	if !ok {
		lim = rate.NewLimiter(rate.Every(window/time.Duration(limit)), limit)
		rl.buckets[key] = lim
	}
	rl.mu.Unlock()

	now := time.Now()
	allowed := lim.AllowN(now, 1)
	return allowed, max(int(lim.TokensAt(now)), 0), now.Add(window)
}

// Middleware returns the rate limiting middleware.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := RealIP(r)
		if rl.allow.contains(ip) {
			next.ServeHTTP(w, r)
			return
		}

		if rl.blocker != nil && rl.blocker.IsBlocked(r.Context(), ip) {
			metrics.BlockedRequests.WithLabelValues("ip_blocked").Inc()
			rl.logger.Warn().
				Str("event", "blocked_request").
				Str("ip", ip).
				Str("path", r.URL.Path).
				Msg("blocked IP attempted request")
			jsonError(w, http.StatusForbidden, "temporarily blocked")
			return
		}

		pattern, limit := rl.findLimit(r)
		if limit == nil {
			next.ServeHTTP(w, r)
			return
		}

		key := bucketKey(pattern, limit.KeyFunc(r))
		allowed, remaining, resetAt := rl.Allow(r.Context(), key, limit.Requests, limit.Window)

		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(limit.Requests))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		if !allowed {
			h.Set("Retry-After", strconv.Itoa(int(time.Until(resetAt).Seconds())))
			metrics.RateLimitHits.WithLabelValues(pattern).Inc()
			rl.logger.Warn().
				Str("event", "rate_limit_exceeded").
				Str("pattern", pattern).
				Str("key", key).
				Str("ip", ip).
				Msg("rate limit exceeded")

			rl.recordViolation(r.Context(), ip)
			jsonError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// findLimit returns the longest pattern matching the request.
func (rl *RateLimiter) findLimit(r *http.Request) (string, *RateLimit) {
	key := r.Method + " " + r.URL.Path

	var (
		best  string
		found *RateLimit
	)
	for pattern, limit := range rl.limits {
		if strings.HasPrefix(key, pattern) && len(pattern) > len(best) {
			l := limit
			best, found = pattern, &l
		}
	}
	return best, found
}

// recordViolation counts an IP's rejections and blocks it past the threshold.
func (rl *RateLimiter) recordViolation(ctx context.Context, ip string) {
	if !rl.autoBlock {
		return
	}

	key := "violations:ip:" + ip
	var incr *redis.IntCmd
	if _, err := rl.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, violationWindow)
		return nil
	}); err != nil {
		return
	}

	if n := incr.Val(); n >= violationThreshold {
		rl.blocker.Block(ctx, ip, autoBlockDuration, "repeated rate limit violations")
		metrics.BlockedRequests.WithLabelValues("auto_block").Inc()
		rl.logger.Warn().
			Str("event", "ip_auto_blocked").
			Str("ip", ip).
			Int64("violations", n).
			Msg("IP auto-blocked for repeated violations")
	}
}

// IPBlocker keeps temporary IP blocks in redis.
type IPBlocker struct {
	client *redis.Client
}

// NewIPBlocker creates a new IP blocker.
func NewIPBlocker(client *redis.Client) *IPBlocker {
	return &IPBlocker{client: client}
}

func blockKey(ip string) string { return "blocked:ip:" + ip }

// IsBlocked reports whether ip is blocked. Broker errors count as not blocked.
func (b *IPBlocker) IsBlocked(ctx context.Context, ip string) bool {
	n, err := b.client.Exists(ctx, blockKey(ip)).Result()
	return err == nil && n > 0
}

// Block blocks ip for d, storing the reason as the value.
func (b *IPBlocker) Block(ctx context.Context, ip string, d time.Duration, reason string) {
	b.client.Set(ctx, blockKey(ip), reason, d)
}
