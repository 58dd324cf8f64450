package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/baselhussain/ketoplan-backend/api/responses"
	"github.com/baselhussain/ketoplan-backend/internal/delivery"
	"github.com/baselhussain/ketoplan-backend/internal/orders"
	"github.com/baselhussain/ketoplan-backend/pkg/db/models"
	pkgerrors "github.com/baselhussain/ketoplan-backend/pkg/errors"
	"github.com/baselhussain/ketoplan-backend/pkg/logger"
)

type planView struct {
	PaymentID     string     `json:"payment_id"`
	Status        string     `json:"status"`
	StorageObject *string    `json:"storage_object,omitempty"`
	Model         string     `json:"model,omitempty"`
	RefundCount   int        `json:"refund_count"`
	DeliveredAt   *time.Time `json:"delivered_at,omitempty"`
}

func newPlanView(plan *models.MealPlan) planView {
	return planView{
		PaymentID:     plan.PaymentID,
		Status:        plan.Status.String(),
		StorageObject: plan.StorageObject,
		Model:         plan.Model,
		RefundCount:   plan.RefundCount,
		DeliveredAt:   plan.DeliveredAt,
	}
}

// PlanDetail returns the delivery state for one payment.
func PlanDetail(repo orders.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders repository unavailable"))
			return
		}

		paymentID, err := paymentIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		plan, err := repo.FindPlanByPaymentID(r.Context(), paymentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newPlanView(plan))
	}
}

// PlanRegenerate reruns the delivery pipeline for a failed plan. Refunded
// plans reject the rerun; the customer already has their money back.
func PlanRegenerate(svc delivery.Service, repo orders.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "delivery service unavailable"))
			return
		}

		paymentID, err := paymentIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Redeliver(r.Context(), paymentID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		plan, err := repo.FindPlanByPaymentID(r.Context(), paymentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newPlanView(plan))
	}
}

func paymentIDParam(r *http.Request) (string, error) {
	paymentID := strings.TrimSpace(chi.URLParam(r, "paymentId"))
	if paymentID == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "payment id is required")
	}
	return paymentID, nil
}
