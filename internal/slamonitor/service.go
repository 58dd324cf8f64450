package slamonitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/square/square-go-sdk"
	"go.uber.org/multierr"

	"github.com/baselhussain/ketoplan-backend/internal/orders"
	"github.com/baselhussain/ketoplan-backend/internal/resolution"
	"github.com/baselhussain/ketoplan-backend/pkg/db/models"
	"github.com/baselhussain/ketoplan-backend/pkg/enums"
	pkgerrors "github.com/baselhussain/ketoplan-backend/pkg/errors"
	"github.com/baselhussain/ketoplan-backend/pkg/errtrack"
	"github.com/baselhussain/ketoplan-backend/pkg/logger"
	"github.com/baselhussain/ketoplan-backend/pkg/metrics"
	"github.com/baselhussain/ketoplan-backend/pkg/square"
)

const (
	workerName          = "sla-monitor"
	defaultPollInterval = 15 * time.Minute
	defaultCooldown     = 30 * time.Second
)

type refunder interface {
	RefundPayment(ctx context.Context, params square.RefundParams) (*sq.PaymentRefund, error)
}

// ServiceParams configure the SLA breach monitor.
type ServiceParams struct {
	Logger       *logger.Logger
	Resolution   resolution.Repository
	OrdersRepo   orders.Repository
	Refunder     refunder
	Lock         Lock
	Tracker      errtrack.Tracker
	Metrics      *metrics.MonitorMetrics
	PollInterval time.Duration
	Cooldown     time.Duration
	Now          func() time.Time
}

// Service sweeps the resolution queue for entries past their SLA deadline and
// compensates the customer with an automatic refund.
type Service struct {
	logg         *logger.Logger
	resolution   resolution.Repository
	ordersRepo   orders.Repository
	refunder     refunder
	lock         Lock
	tracker      errtrack.Tracker
	metrics      *metrics.MonitorMetrics
	pollInterval time.Duration
	cooldown     time.Duration
	now          func() time.Time
}

// NewService validates dependencies and builds the monitor.
func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.Resolution == nil {
		return nil, errors.New("resolution repository is required")
	}
	if params.OrdersRepo == nil {
		return nil, errors.New("orders repository is required")
	}
	if params.Refunder == nil {
		return nil, errors.New("refunder is required")
	}
	if params.Lock == nil {
		return nil, errors.New("lock is required")
	}
	pollInterval := params.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	cooldown := params.Cooldown
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		logg:         params.Logger,
		resolution:   params.Resolution,
		ordersRepo:   params.OrdersRepo,
		refunder:     params.Refunder,
		lock:         params.Lock,
		tracker:      params.Tracker,
		metrics:      params.Metrics,
		pollInterval: pollInterval,
		cooldown:     cooldown,
		now:          now,
	}, nil
}

// Run starts the monitor loop until the context is canceled. The first cycle
// runs immediately; after a failed cycle the loop cools down before resuming
// so a broken dependency is not hammered every tick.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.runCycle(ctx); err != nil {
		s.onCycleError(ctx, err)
		if !s.sleep(ctx, s.cooldown) {
			return ctx.Err()
		}
	}
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "sla monitor context canceled")
			return ctx.Err()
		case <-ticker.C:
			if err := s.runCycle(ctx); err != nil {
				s.onCycleError(ctx, err)
				if !s.sleep(ctx, s.cooldown) {
					return ctx.Err()
				}
			}
		}
	}
}

func (s *Service) onCycleError(ctx context.Context, err error) {
	s.logg.Error(ctx, "sla monitor cycle failed", err)
	s.metrics.IncCycleFailure()
	if s.tracker != nil {
		s.tracker.Capture(ctx, err, map[string]string{"worker": workerName})
	}
}

func (s *Service) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// runCycle processes every breached entry under a cluster-wide lock. A failed
// entry stays active and is retried on the next cycle; entry failures are
// aggregated so one bad refund does not hide the rest.
func (s *Service) runCycle(ctx context.Context) error {
	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("lock acquire: %w", err)
	}
	if !locked {
		s.logg.Info(ctx, "another monitor instance is running; skipping this cycle")
		return nil
	}
	defer func() {
		if relErr := s.lock.Release(ctx); relErr != nil {
			s.logg.Error(ctx, "failed to release monitor lock", relErr)
		}
	}()

	start := s.now()
	entries, err := s.resolution.FindBreached(ctx, start)
	if err != nil {
		return fmt.Errorf("find breached entries: %w", err)
	}
	if len(entries) > 0 {
		s.logg.Info(s.logg.WithField(ctx, "breached", len(entries)), "sla breaches detected")
	}

	var cycleErr error
	for _, entry := range entries {
		if err := s.processBreach(ctx, entry); err != nil {
			cycleErr = multierr.Append(cycleErr, err)
		}
	}

	s.metrics.ObserveCycle(workerName, time.Since(start))
	return cycleErr
}

func (s *Service) processBreach(ctx context.Context, entry models.ResolutionEntry) error {
	ctx = s.logg.WithPaymentID(ctx, entry.PaymentID)
	ctx = s.logg.WithField(ctx, "issue_type", entry.IssueType.String())

	order, err := s.ordersRepo.FindOrderByPaymentID(ctx, entry.PaymentID)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return s.escalate(ctx, entry, "no order found for breached entry; auto-refund impossible")
		}
		return fmt.Errorf("find order %s: %w", entry.PaymentID, err)
	}

	// Money already left this order (refund or chargeback), so there is
	// nothing to compensate; close the entry instead of retrying a refund
	// that can never succeed.
	if order.Status != enums.OrderStatusSucceeded {
		return s.closeWithoutRefund(ctx, entry, order.Status)
	}

	// The idempotency key is derived from the payment id so a cycle that dies
	// between the refund and the status transition cannot refund twice.
	_, err = s.refunder.RefundPayment(ctx, square.RefundParams{
		PaymentID:      entry.PaymentID,
		AmountCents:    order.AmountCents,
		Currency:       order.Currency,
		Reason:         "delivery SLA breached",
		IdempotencyKey: fmt.Sprintf("sla-refund-%s", entry.PaymentID),
	})
	if err != nil {
		s.metrics.IncRefund("error")
		if s.tracker != nil {
			s.tracker.Capture(ctx, err, map[string]string{
				"worker":     workerName,
				"payment_id": entry.PaymentID,
				"issue_type": entry.IssueType.String(),
			})
		}
		return fmt.Errorf("auto-refund %s: %w", entry.PaymentID, err)
	}
	s.metrics.IncRefund("ok")

	if err := s.ordersRepo.UpdateOrderStatus(ctx, entry.PaymentID, enums.OrderStatusRefunded); err != nil {
		return fmt.Errorf("mark order refunded %s: %w", entry.PaymentID, err)
	}
	if err := s.ordersRepo.UpdatePlanStatus(ctx, entry.PaymentID, enums.PlanStatusRefunded); err != nil {
		return fmt.Errorf("mark plan refunded %s: %w", entry.PaymentID, err)
	}

	resolvedAt := s.now()
	updated, err := s.resolution.TransitionActive(ctx, entry.ID, enums.ResolutionStatusSLAMissedRefunded, map[string]any{
		"resolved_at": resolvedAt,
		"notes":       "automatically refunded after SLA breach",
	})
	if err != nil {
		return fmt.Errorf("transition entry %s: %w", entry.ID, err)
	}
	if !updated {
		s.logg.Warn(ctx, "breached entry left active state during refund; transition skipped")
		return nil
	}
	s.logg.Info(ctx, "breached entry auto-refunded")
	return nil
}

func (s *Service) closeWithoutRefund(ctx context.Context, entry models.ResolutionEntry, status enums.OrderStatus) error {
	updated, err := s.resolution.TransitionActive(ctx, entry.ID, enums.ResolutionStatusResolved, map[string]any{
		"resolved_at": s.now(),
		"notes":       fmt.Sprintf("order already %s; no refund issued", status),
	})
	if err != nil {
		return fmt.Errorf("close entry %s: %w", entry.ID, err)
	}
	if updated {
		s.logg.Info(s.logg.WithField(ctx, "order_status", status.String()), "breached entry closed without refund")
	}
	return nil
}

func (s *Service) escalate(ctx context.Context, entry models.ResolutionEntry, reason string) error {
	updated, err := s.resolution.TransitionActive(ctx, entry.ID, enums.ResolutionStatusEscalated, map[string]any{
		"notes": reason,
	})
	if err != nil {
		return fmt.Errorf("escalate entry %s: %w", entry.ID, err)
	}
	if updated {
		s.logg.Warn(s.logg.WithField(ctx, "reason", reason), "breached entry escalated")
	}
	return nil
}
