package admission

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/baselhussain/ketoplan-backend/internal/identity"
	"github.com/baselhussain/ketoplan-backend/internal/orders"
	"github.com/baselhussain/ketoplan-backend/internal/refunds"
	"github.com/baselhussain/ketoplan-backend/pkg/db/models"
	"github.com/baselhussain/ketoplan-backend/pkg/enums"
	"github.com/baselhussain/ketoplan-backend/pkg/logger"
)

// Service routes authenticated payment events into the pipeline.
type Service interface {
	HandleEvent(ctx context.Context, event *PaymentEvent) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type deliverer interface {
	Deliver(ctx context.Context, paymentID string) error
}

type refundTracker interface {
	HandleRefund(ctx context.Context, event refunds.Event) error
}

// ServiceParams configure the admission service.
type ServiceParams struct {
	Logger     *logger.Logger
	OrdersRepo orders.Repository
	TxRunner   txRunner
	Delivery   deliverer
	Refunds    refundTracker
}

type service struct {
	logg       *logger.Logger
	ordersRepo orders.Repository
	txRunner   txRunner
	delivery   deliverer
	refunds    refundTracker
}

// NewService validates dependencies and builds the admission service.
func NewService(params ServiceParams) (Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.OrdersRepo == nil {
		return nil, errors.New("orders repository is required")
	}
	if params.TxRunner == nil {
		return nil, errors.New("tx runner is required")
	}
	if params.Delivery == nil {
		return nil, errors.New("delivery service is required")
	}
	if params.Refunds == nil {
		return nil, errors.New("refund tracker is required")
	}
	return &service{
		logg:       params.Logger,
		ordersRepo: params.OrdersRepo,
		txRunner:   params.TxRunner,
		delivery:   params.Delivery,
		refunds:    params.Refunds,
	}, nil
}

// HandleEvent dispatches one verified event. Succeeded payments admit an
// order and run delivery; refunds and chargebacks always route to the abuse
// tracker, whether or not an order exists yet.
func (s *service) HandleEvent(ctx context.Context, event *PaymentEvent) error {
	ctx = s.logg.WithEventID(ctx, event.EventID)
	ctx = s.logg.WithPaymentID(ctx, event.PaymentID)

	switch event.Type {
	case enums.EventTypeSucceeded:
		return s.admitPayment(ctx, event)
	case enums.EventTypeRefunded, enums.EventTypeChargeback:
		return s.refunds.HandleRefund(ctx, refunds.Event{
			PaymentID: event.PaymentID,
			Email:     event.Email,
			Type:      event.Type,
		})
	default:
		s.logg.Warn(s.logg.WithField(ctx, "event_type", event.Type.String()), "unhandled event type ignored")
		return nil
	}
}

// admitPayment creates the order and its plan row atomically. The plan's
// unique payment_id is the single-writer gate: exactly one of N concurrent
// identical deliveries wins the insert and runs orchestration; the rest are
// indistinguishable-from-success no-ops.
func (s *service) admitPayment(ctx context.Context, event *PaymentEvent) error {
	normalized := identity.Normalize(event.Email)

	order := &models.Order{
		PaymentID:       event.PaymentID,
		Email:           event.Email,
		NormalizedEmail: normalized,
		AmountCents:     event.AmountCents,
		Currency:        event.Currency,
		Status:          enums.OrderStatusSucceeded,
		ProviderTS:      event.ProviderTS,
	}
	plan := &models.MealPlan{
		PaymentID:       event.PaymentID,
		NormalizedEmail: normalized,
		Status:          enums.PlanStatusProcessing,
	}

	created := false
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.ordersRepo.WithTx(tx)
		if _, err := repo.CreateOrderIfAbsent(ctx, order); err != nil {
			return err
		}
		planCreated, err := repo.CreatePlanIfAbsent(ctx, plan)
		if err != nil {
			return err
		}
		created = planCreated
		return nil
	})
	if err != nil {
		return err
	}

	if !created {
		s.logg.Info(ctx, "payment already admitted; duplicate delivery ignored")
		return nil
	}

	s.logg.Info(ctx, "payment admitted; starting delivery")
	return s.delivery.Deliver(ctx, event.PaymentID)
}
