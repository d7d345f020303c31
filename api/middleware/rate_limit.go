package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/msa-portal/portal-backend/api/responses"
	pkgerrors "github.com/msa-portal/portal-backend/pkg/errors"
	"github.com/msa-portal/portal-backend/pkg/logger"
)

type rateLimiterStore interface {
	IncrWindow(context.Context, string, time.Duration) (int64, time.Duration, error)
	RateLimitKey(scope string) string
}

// RateLimitPolicy defines the throttling parameters for a traffic surface.
type RateLimitPolicy struct {
	name       string
	window     time.Duration
	ipLimit    int64
	emailLimit int64
}

// NewRateLimitPolicy builds a policy with the supplied window and limits.
// A zero limit disables that counter.
func NewRateLimitPolicy(name string, window time.Duration, ipLimit, emailLimit int64) RateLimitPolicy {
	return RateLimitPolicy{
		name:       strings.ToLower(strings.TrimSpace(name)),
		window:     window,
		ipLimit:    ipLimit,
		emailLimit: emailLimit,
	}
}

func (p RateLimitPolicy) enabled() bool {
	return p.window > 0 && (p.ipLimit > 0 || p.emailLimit > 0)
}

func (p RateLimitPolicy) normalizedName() string {
	if p.name == "" {
		return "default"
	}
	return p.name
}

func (p RateLimitPolicy) ipScope(ip string) string {
	if ip == "" {
		return ""
	}
	return fmt.Sprintf("ip:%s:%s", p.normalizedName(), ip)
}

func (p RateLimitPolicy) emailScope(hash string) string {
	if hash == "" {
		return ""
	}
	return fmt.Sprintf("email:%s:%s", p.normalizedName(), hash)
}

// RateLimit enforces per-IP and per-email counters. The email is read from
// the JSON body's "email" field; the body is restored for the next handler.
func RateLimit(policy RateLimitPolicy, store rateLimiterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || store == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			ip := clientIP(r)
			if policy.ipLimit > 0 {
				if scope := policy.ipScope(ip); scope != "" {
					if hit, err := allow(ctx, store, scope, policy.window, policy.ipLimit); err != nil {
						responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
						return
					} else if !hit.allowed {
						respondRateLimited(ctx, logg, w, policy, "ip", ip, "", hit, policy.ipLimit)
						return
					}
				}
			}

			if policy.emailLimit > 0 {
				body, err := io.ReadAll(r.Body)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request"))
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(body))

				if email := normalizeEmail(extractEmail(body)); email != "" {
					hash := hashValue(email)
					if hit, err := allow(ctx, store, policy.emailScope(hash), policy.window, policy.emailLimit); err != nil {
						responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
						return
					} else if !hit.allowed {
						respondRateLimited(ctx, logg, w, policy, "email", "", hash, hit, policy.emailLimit)
						return
					}
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

type windowHit struct {
	allowed    bool
	count      int64
	retryAfter time.Duration
}

func allow(ctx context.Context, store rateLimiterStore, scope string, window time.Duration, limit int64) (windowHit, error) {
	count, remaining, err := store.IncrWindow(ctx, store.RateLimitKey(scope), window)
	if err != nil {
		return windowHit{}, err
	}
	return windowHit{allowed: count <= limit, count: count, retryAfter: remaining}, nil
}

// retryAfterSeconds rounds up so clients never retry inside the window.
func retryAfterSeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}

func respondRateLimited(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, policy RateLimitPolicy, scope, ip, emailHash string, hit windowHit, limit int64) {
	retryAfter := retryAfterSeconds(hit.retryAfter)
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	if logg != nil {
		fields := map[string]any{
			"scope":          scope,
			"policy":         policy.normalizedName(),
			"attempts":       hit.count,
			"retry_after":    retryAfter,
			"limit":          limit,
			"window_seconds": int(policy.window.Seconds()),
		}
		if ip != "" {
			fields["ip"] = ip
		}
		if emailHash != "" {
			fields["email_hash"] = emailHash
		}
		logg.Warn(logg.WithFields(ctx, fields), "rate_limit.blocked")
	}
	responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "Too many requests, please try again shortly"))
}

func clientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if header := r.Header.Get("X-Forwarded-For"); header != "" {
		for _, part := range strings.Split(header, ",") {
			if ip := strings.TrimSpace(part); ip != "" {
				return ip
			}
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}

func extractEmail(payload []byte) string {
	var body struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return ""
	}
	return body.Email
}

func normalizeEmail(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func hashValue(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
