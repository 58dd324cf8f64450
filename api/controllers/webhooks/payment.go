package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/baselhussain/ketoplan-backend/api/responses"
	"github.com/baselhussain/ketoplan-backend/internal/admission"
	pkgerrors "github.com/baselhussain/ketoplan-backend/pkg/errors"
	"github.com/baselhussain/ketoplan-backend/pkg/logger"
)

const (
	signatureHeader = "X-Webhook-Signature"
	timestampHeader = "X-Webhook-Timestamp"

	// Providers cap webhook bodies well below this; anything bigger is abuse.
	maxWebhookBody = 1 << 20
)

type admissionService interface {
	HandleEvent(ctx context.Context, event *admission.PaymentEvent) error
}

type eventGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

type signatureVerifier interface {
	Verify(body []byte, signature, timestamp string) error
}

// PaymentWebhook receives payment provider events. Replies 200 only once the
// event is durably handled, so the provider retries anything that failed.
func PaymentWebhook(svc admissionService, verifier signatureVerifier, guard eventGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil || verifier == nil || guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook pipeline unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		if err := verifier.Verify(payload, r.Header.Get(signatureHeader), r.Header.Get(timestampHeader)); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		event, err := admission.ParseEvent(payload)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		alreadyProcessed, err := guard.CheckAndMark(ctx, event.EventID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		if alreadyProcessed {
			responses.WriteSuccess(w, nil)
			return
		}

		if err := svc.HandleEvent(ctx, event); err != nil {
			// Unmark so the provider's retry is not swallowed by the guard.
			_ = guard.Delete(ctx, event.EventID)
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, nil)
	}
}
