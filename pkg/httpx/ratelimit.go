package httpx

import (
	"bytes"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/gatehouse/pkg/slogx"
	"golang.org/x/time/rate"
)

// RateLimitConfig defines a token bucket: Requests per Window, with up to
// Burst requests admitted at once. Field tags let callers load profiles from
// the environment with caarlos0/env.
type RateLimitConfig struct {
	Requests int           `env:"REQUESTS"`
	Window   time.Duration `env:"WINDOW"`
	Burst    int           `env:"BURST"`
}

// Valid reports whether every field is positive.
func (c RateLimitConfig) Valid() bool {
	return c.Requests > 0 && c.Window > 0 && c.Burst > 0
}

// RateLimitProfiles groups the limits applied to each class of endpoint.
type RateLimitProfiles struct {
	// Strict guards credential and OTP submission (brute force).
	Strict RateLimitConfig `envPrefix:"STRICT_"`
	// Moderate guards token refresh and admin writes.
	Moderate RateLimitConfig `envPrefix:"MODERATE_"`
	// Lenient guards authenticated reads and health checks.
	Lenient RateLimitConfig `envPrefix:"LENIENT_"`

	// TrustedProxies lists the CIDR ranges whose X-Forwarded-For and
	// X-Real-IP headers are believed. Empty means every request is keyed by
	// its direct peer.
	TrustedProxies []netip.Prefix `env:"TRUSTED_PROXIES" envSeparator:","`
}

// DefaultRateLimits returns the built-in profiles.
func DefaultRateLimits() RateLimitProfiles {
	return RateLimitProfiles{
		Strict:   RateLimitConfig{Requests: 5, Window: time.Minute, Burst: 5},
		Moderate: RateLimitConfig{Requests: 20, Window: time.Minute, Burst: 20},
		Lenient:  RateLimitConfig{Requests: 100, Window: time.Minute, Burst: 100},
	}
}

// KeyExtractor groups requests for rate limiting (IP address, user ID and so
// on). An empty key exempts the request.
type KeyExtractor func(*http.Request) string

// IPKeyExtractor keys requests by the direct peer address. Forwarding headers
// are ignored; see ClientIPKeyExtractor for deployments behind a proxy.
func IPKeyExtractor(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// ClientIPKeyExtractor honours X-Forwarded-For and X-Real-IP only when the
// direct peer is inside one of trusted. X-Forwarded-For is walked from the
// right and the first hop that is not itself trusted wins.
func ClientIPKeyExtractor(trusted []netip.Prefix) KeyExtractor {
	if len(trusted) == 0 {
		return IPKeyExtractor
	}

	isTrusted := func(s string) bool {
		addr, err := netip.ParseAddr(strings.TrimSpace(s))
		if err != nil {
			return false
		}
		addr = addr.Unmap()
		for _, p := range trusted {
			if p.Contains(addr) {
				return true
			}
		}
		return false
	}

	return func(r *http.Request) string {
		peer := IPKeyExtractor(r)
		if !isTrusted(peer) {
			return peer
		}

		if xff := r.Header.Values("X-Forwarded-For"); len(xff) > 0 {
			hops := strings.Split(strings.Join(xff, ","), ",")
			for i := len(hops) - 1; i >= 0; i-- {
				hop := strings.TrimSpace(hops[i])
				if hop == "" {
					continue
				}
				if !isTrusted(hop) || i == 0 {
					return hop
				}
			}
		}
		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			return xri
		}
		return peer
	}
}

// UserIDKeyExtractor returns the authenticated subject, if any.
func UserIDKeyExtractor(r *http.Request) string {
	return UserIDFromContext(r.Context())
}

// CompositeKeyExtractor joins the non-empty keys of extractors with sep.
func CompositeKeyExtractor(sep string, extractors ...KeyExtractor) KeyExtractor {
	return func(r *http.Request) string {
		var parts []string
		for _, extractor := range extractors {
			if key := extractor(r); key != "" {
				parts = append(parts, key)
			}
		}
		return strings.Join(parts, sep)
	}
}

// JSONFieldKeyExtractor reads a top-level string field from a JSON request
// body. The body is restored so the handler can decode it again.
func JSONFieldKeyExtractor(field string) KeyExtractor {
	return func(r *http.Request) string {
		if r.Body == nil {
			return ""
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, MaxBodyBytes))
		_ = r.Body.Close()
		r.Body = io.NopCloser(bytes.NewReader(body))
		if err != nil {
			return ""
		}

		var fields map[string]json.RawMessage
		if err := json.Unmarshal(body, &fields); err != nil {
			return ""
		}
		var v string
		if err := json.Unmarshal(fields[field], &v); err != nil {
			return ""
		}
		return strings.TrimSpace(v)
	}
}

const sweepInterval = 5 * time.Minute

// limiterSet holds one token bucket per key. Idle buckets (full again) are
// swept at most once per sweepInterval.
type limiterSet struct {
	limit rate.Limit
	burst int

	limiters sync.Map // map[string]*rate.Limiter

	mu        sync.Mutex
	lastSweep time.Time
}

func newLimiterSet(cfg RateLimitConfig) *limiterSet {
	return &limiterSet{
		limit:     rate.Limit(float64(cfg.Requests) / cfg.Window.Seconds()),
		burst:     cfg.Burst,
		lastSweep: time.Now(),
	}
}

func (s *limiterSet) get(key string) *rate.Limiter {
	if l, ok := s.limiters.Load(key); ok {
		return l.(*rate.Limiter)
	}
	l, _ := s.limiters.LoadOrStore(key, rate.NewLimiter(s.limit, s.burst))
	s.maybeSweep()
	return l.(*rate.Limiter)
}

func (s *limiterSet) maybeSweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if time.Since(s.lastSweep) < sweepInterval {
		return
	}
	s.lastSweep = time.Now()

	s.limiters.Range(func(key, value any) bool {
		if value.(*rate.Limiter).Tokens() >= float64(s.burst) {
			s.limiters.Delete(key)
		}
		return true
	})
}

// RateLimitMiddleware limits requests per key. Rejected requests get 429
// with Retry-After.
func RateLimitMiddleware(cfg RateLimitConfig, keyFn KeyExtractor) Middleware {
	set := newLimiterSet(cfg)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log := slogx.FromContext(r.Context())

			key := keyFn(r)
			if key == "" {
				log.Warn("rate limit: unable to extract key, allowing request")
				next.ServeHTTP(w, r)
				return
			}

			limiter := set.get(key)
			if limiter.Allow() {
				next.ServeHTTP(w, r)
				return
			}

			res := limiter.Reserve()
			retryAfter := max(int(res.Delay().Seconds()), 1)
			res.Cancel()

			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Requests))
			w.Header().Set("X-RateLimit-Window", cfg.Window.String())

			log.Warn("rate limit exceeded",
				"endpoint", r.URL.Path,
				"retry_after", retryAfter,
			)

			WriteJSON(w, http.StatusTooManyRequests, ErrorBody{
				Error:            "rate_limited",
				ErrorDescription: "too many requests, retry later",
			})
		})
	}
}

// RateLimitByIP limits by client IP. Forwarding headers count only from
// trusted proxies.
func RateLimitByIP(cfg RateLimitConfig, trusted ...netip.Prefix) Middleware {
	return RateLimitMiddleware(cfg, ClientIPKeyExtractor(trusted))
}

// RateLimitByUser limits by authenticated user plus IP. Unauthenticated
// requests fall back to IP alone.
func RateLimitByUser(cfg RateLimitConfig, trusted ...netip.Prefix) Middleware {
	return RateLimitMiddleware(cfg, CompositeKeyExtractor(":",
		UserIDKeyExtractor,
		ClientIPKeyExtractor(trusted),
	))
}

// RateLimitByIPAndJSONField limits by IP plus a JSON body field such as
// user_id.
func RateLimitByIPAndJSONField(cfg RateLimitConfig, field string, trusted ...netip.Prefix) Middleware {
	return RateLimitMiddleware(cfg, CompositeKeyExtractor(":",
		ClientIPKeyExtractor(trusted),
		JSONFieldKeyExtractor(field),
	))
}
