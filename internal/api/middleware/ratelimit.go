package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/dumpkod/sdominanta/internal/identity"
	"github.com/dumpkod/sdominanta/internal/metrics"
	"github.com/dumpkod/sdominanta/internal/store"
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

// RateLimiter implements fixed-window rate limiting backed by Redis.
type RateLimiter struct {
	client           *redis.Client
	limits           map[string]RateLimit // "METHOD /path"; a trailing "/" matches by prefix
	blocker          *IPBlocker
	logger           zerolog.Logger
	whitelist        []*net.IPNet
	whitelistIPs     map[string]bool
	autoBlockEnabled bool
}

// violationThreshold is the number of rate limit violations per hour after
// which an IP is blocked, when auto-blocking is enabled.
const violationThreshold = 10

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(client *redis.Client, logger zerolog.Logger, cfg RateLimiterConfig) *RateLimiter {
	send := RateLimit{120, time.Minute, agentOrIPKey}
	read := RateLimit{120, time.Minute, ipKey}
	rl := &RateLimiter{
		client:           client,
		blocker:          NewIPBlocker(client),
		logger:           logger,
		whitelistIPs:     make(map[string]bool),
		autoBlockEnabled: cfg.AutoBlockEnabled,
		limits: map[string]RateLimit{
			"POST /register":     {10, time.Hour, ipKey},
			"POST /send":         send,
			"POST /rv/in":        send,
			"POST /messages":     read,
			"POST /messages/has": read,
			"POST /rv/has":       read,
			"POST /rv/take":      read,
			"GET /agents/":       {100, time.Minute, ipKey},
		},
	}

	// Parse whitelist entries
	for _, entry := range cfg.Whitelist {
		if strings.Contains(entry, "/") {
			// CIDR notation
			_, ipNet, err := net.ParseCIDR(entry)
			if err != nil {
				logger.Warn().Str("entry", entry).Err(err).Msg("invalid CIDR in whitelist")
				continue
			}
			rl.whitelist = append(rl.whitelist, ipNet)
		} else {
			// Single IP
			rl.whitelistIPs[entry] = true
		}
	}

	if len(cfg.Whitelist) > 0 {
		logger.Info().
			Int("ips", len(rl.whitelistIPs)).
			Int("cidrs", len(rl.whitelist)).
			Msg("rate limit whitelist configured")
	}

	return rl
}

// isWhitelisted checks if an IP is in the whitelist.
func (rl *RateLimiter) isWhitelisted(ipStr string) bool {
	// Check exact IP match
	if rl.whitelistIPs[ipStr] {
		return true
	}

	// Check CIDR ranges
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	for _, ipNet := range rl.whitelist {
		if ipNet.Contains(ip) {
			return true
		}
	}
	return false
}

// ipKey returns rate limit key based on client IP.
func ipKey(r *http.Request) string {
	return store.KeyPrefixRateLimit + "ip:" + RealIP(r)
}

// agentOrIPKey returns agent key if the caller names itself, otherwise IP key.
func agentOrIPKey(r *http.Request) string {
	agentID := r.Header.Get(identity.HeaderAgentID)
	if agentID != "" && store.ValidAgentID(agentID) {
		return store.KeyPrefixRateLimit + "agent:" + agentID
	}
	return ipKey(r)
}

// RealIP extracts the real client IP from headers or connection.
func RealIP(r *http.Request) string {
	// Check Fly.io header first
	if ip := r.Header.Get("Fly-Client-IP"); ip != "" {
		return ip
	}
	// Then X-Forwarded-For
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return strings.TrimSpace(strings.Split(ip, ",")[0])
	}
	// Then X-Real-IP
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	// Fallback to RemoteAddr
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// CheckAndIncrement checks rate limit and increments counter.
// Returns (allowed, remaining, resetAt). A Redis failure fails open.
func (rl *RateLimiter) CheckAndIncrement(ctx context.Context, key string, limit int, window time.Duration) (bool, int, time.Time) {
	now := time.Now()
	bucket := now.Unix() / int64(window.Seconds())
	windowKey := fmt.Sprintf("%s:%d", key, bucket)

	pipe := rl.client.Pipeline()
	incr := pipe.Incr(ctx, windowKey)
	pipe.Expire(ctx, windowKey, window*2)
	if _, err := pipe.Exec(ctx); err != nil {
		rl.logger.Warn().Err(err).Str("key", key).Msg("rate limit check failed")
		return true, limit, now.Add(window)
	}

	count := int(incr.Val())
	remaining := max(limit-count, 0)
	resetAt := time.Unix((bucket+1)*int64(window.Seconds()), 0)

	return count <= limit, remaining, resetAt
}

// Middleware returns the rate limiting middleware.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := RealIP(r)

		// Skip rate limiting for whitelisted IPs
		if rl.isWhitelisted(ip) {
			next.ServeHTTP(w, r)
			return
		}

		// Check IP block first
		if rl.blocker.IsBlocked(r.Context(), ip) {
			metrics.BlockedRequests.WithLabelValues("ip_block").Inc()
			rl.logger.Warn().
				Str("type", "security").
				Str("event", "blocked_request").
				Str("ip", ip).
				Str("endpoint", r.URL.Path).
				Msg("blocked IP attempted request")
			jsonError(w, http.StatusForbidden, "temporarily blocked")
			return
		}

		// Find matching limit
		pattern, limit, ok := rl.findLimit(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		key := limit.KeyFunc(r)
		allowed, remaining, resetAt := rl.CheckAndIncrement(r.Context(), key, limit.Requests, limit.Window)

		// Set rate limit headers
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit.Requests))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(max(int(time.Until(resetAt).Seconds()), 1)))

			metrics.RateLimitHits.WithLabelValues(pattern).Inc()
			rl.trackViolation(r.Context(), ip)

			rl.logger.Warn().
				Str("type", "security").
				Str("event", "rate_limit_exceeded").
				Str("ip", ip).
				Str("agent", r.Header.Get(identity.HeaderAgentID)).
				Str("endpoint", r.URL.Path).
				Str("key", key).
				Msg("rate limit exceeded")

			jsonError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// findLimit finds the matching rate limit for a request. Exact patterns
// win over prefix patterns.
func (rl *RateLimiter) findLimit(r *http.Request) (string, RateLimit, bool) {
	key := r.Method + " " + r.URL.Path
	if limit, ok := rl.limits[key]; ok {
		return key, limit, true
	}

	for pattern, limit := range rl.limits {
		if strings.HasSuffix(pattern, "/") && strings.HasPrefix(key, pattern) {
			return pattern, limit, true
		}
	}
	return "", RateLimit{}, false
}

// trackViolation tracks rate limit violations and auto-blocks repeat offenders.
func (rl *RateLimiter) trackViolation(ctx context.Context, ip string) {
	if !rl.autoBlockEnabled {
		return
	}

	key := store.KeyPrefixViolations + "ip:" + ip
	count, _ := rl.client.Incr(ctx, key).Result()
	rl.client.Expire(ctx, key, time.Hour)

	if count >= violationThreshold {
		rl.blocker.Block(ctx, ip, 24*time.Hour, "repeated rate limit violations")
		rl.logger.Warn().
			Str("type", "security").
			Str("event", "ip_auto_blocked").
			Str("ip", ip).
			Int64("violations", count).
			Msg("IP auto-blocked for repeated violations")
	}
}

// IPBlocker manages temporary IP blocks.
type IPBlocker struct {
	client *redis.Client
}

// NewIPBlocker creates a new IP blocker.
func NewIPBlocker(client *redis.Client) *IPBlocker {
	return &IPBlocker{client: client}
}

func blockedKey(ip string) string {
	return store.KeyPrefixBlocked + "ip:" + ip
}

// IsBlocked checks if an IP is blocked.
func (b *IPBlocker) IsBlocked(ctx context.Context, ip string) bool {
	exists, _ := b.client.Exists(ctx, blockedKey(ip)).Result()
	return exists > 0
}

// Block blocks an IP for the specified duration.
func (b *IPBlocker) Block(ctx context.Context, ip string, duration time.Duration, reason string) {
	b.client.Set(ctx, blockedKey(ip), reason, duration)
}

// Unblock removes an IP block.
func (b *IPBlocker) Unblock(ctx context.Context, ip string) {
	b.client.Del(ctx, blockedKey(ip))
}
