package controllers

import (
	"context"
	"fmt"
	"net/http"

	sq "github.com/square/square-go-sdk"

	"github.com/baselhussain/ketoplan-backend/api/responses"
	"github.com/baselhussain/ketoplan-backend/api/validators"
	"github.com/baselhussain/ketoplan-backend/internal/orders"
	"github.com/baselhussain/ketoplan-backend/pkg/enums"
	pkgerrors "github.com/baselhussain/ketoplan-backend/pkg/errors"
	"github.com/baselhussain/ketoplan-backend/pkg/logger"
	"github.com/baselhussain/ketoplan-backend/pkg/square"
)

// PaymentRefunder is the slice of the payment client the refund endpoint uses.
type PaymentRefunder interface {
	RefundPayment(ctx context.Context, params square.RefundParams) (*sq.PaymentRefund, error)
}

type manualRefundRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// OrderRefund issues a manual refund for one payment. The provider's refunded
// webhook then flips the order status and feeds the abuse counters; this
// endpoint only moves the money.
func OrderRefund(refunder PaymentRefunder, repo orders.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if refunder == nil || repo == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "refund pipeline unavailable"))
			return
		}

		paymentID, err := paymentIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body manualRefundRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &body); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		order, err := repo.FindOrderByPaymentID(r.Context(), paymentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if order.Status != enums.OrderStatusSucceeded {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.New(pkgerrors.CodeStateConflict, "order is not refundable").
					WithDetails(map[string]string{"status": order.Status.String()}))
			return
		}

		reason := body.Reason
		if reason == "" {
			reason = "manual refund via resolution console"
		}

		refund, err := refunder.RefundPayment(r.Context(), square.RefundParams{
			PaymentID:   paymentID,
			AmountCents: order.AmountCents,
			Currency:    order.Currency,
			Reason:      reason,
			// Deterministic key: a double-clicked refund button must not pay twice.
			IdempotencyKey: fmt.Sprintf("manual-refund-%s", paymentID),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view := map[string]any{
			"payment_id": paymentID,
			"amount":     order.Amount(),
		}
		if id := refund.GetID(); id != "" {
			view["refund_id"] = id
		}
		if status := refund.GetStatus(); status != nil {
			view["status"] = *status
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, view)
	}
}
