package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/baselhussain/ketoplan-backend/api/responses"
	pkgerrors "github.com/baselhussain/ketoplan-backend/pkg/errors"
	"github.com/baselhussain/ketoplan-backend/pkg/logger"
)

type rateLimiterStore interface {
	IncrWithTTL(context.Context, string, time.Duration) (int64, error)
}

// WebhookRateLimitPolicy defines the per-IP throttle for the webhook surface.
type WebhookRateLimitPolicy struct {
	window time.Duration
	limit  int64
}

// NewWebhookRateLimitPolicy builds a policy with the supplied window and limit.
func NewWebhookRateLimitPolicy(window time.Duration, limit int64) WebhookRateLimitPolicy {
	return WebhookRateLimitPolicy{window: window, limit: limit}
}

func (p WebhookRateLimitPolicy) enabled() bool {
	return p.window > 0 && p.limit > 0
}

// WebhookRateLimit enforces a fixed-window per-IP counter on the webhook
// endpoint. Legitimate provider retries fit well under the limit; the throttle
// exists for credential-stuffing and replay floods.
func WebhookRateLimit(policy WebhookRateLimitPolicy, store rateLimiterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || store == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			ip := clientIP(r)
			key := fmt.Sprintf("kp:rate_limit:webhook:%s", ip)
			count, err := store.IncrWithTTL(ctx, key, policy.window)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
				return
			}
			if count > policy.limit {
				if logg != nil {
					logCtx := logg.WithFields(ctx, map[string]any{
						"ip":             ip,
						"attempts":       count,
						"limit":          policy.limit,
						"window_seconds": int(policy.window.Seconds()),
					})
					logg.Warn(logCtx, "webhook.rate_limit.blocked")
				}
				responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
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
