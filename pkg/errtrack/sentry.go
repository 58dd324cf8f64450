package errtrack

import (
	"context"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
)

// Tracker is the error-reporting surface the SLA monitor and orchestrator use.
// A nil *SentryTracker is safe to call, so wiring stays optional in dev.
type Tracker interface {
	Capture(ctx context.Context, err error, tags map[string]string)
	Flush(timeout time.Duration)
}

// SentryTracker reports errors to Sentry.
type SentryTracker struct {
	enabled bool
}

// NewSentryTracker initializes the Sentry SDK. An empty DSN disables reporting
// without erroring, matching how dev environments run.
func NewSentryTracker(dsn, environment string) (*SentryTracker, error) {
	if strings.TrimSpace(dsn) == "" {
		return &SentryTracker{}, nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: environment,
	})
	if err != nil {
		return nil, err
	}
	return &SentryTracker{enabled: true}, nil
}

func (t *SentryTracker) Capture(ctx context.Context, err error, tags map[string]string) {
	if t == nil || !t.enabled || err == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		sentry.CaptureException(err)
	})
}

func (t *SentryTracker) Flush(timeout time.Duration) {
	if t == nil || !t.enabled {
		return
	}
	sentry.Flush(timeout)
}
