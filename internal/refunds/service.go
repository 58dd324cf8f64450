package refunds

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/baselhussain/ketoplan-backend/internal/identity"
	"github.com/baselhussain/ketoplan-backend/internal/orders"
	"github.com/baselhussain/ketoplan-backend/internal/resolution"
	"github.com/baselhussain/ketoplan-backend/pkg/db/models"
	"github.com/baselhussain/ketoplan-backend/pkg/enums"
	pkgerrors "github.com/baselhussain/ketoplan-backend/pkg/errors"
	"github.com/baselhussain/ketoplan-backend/pkg/logger"
)

// Service tracks refunds against normalized identities, escalates abuse
// patterns, and maintains the checkout blacklist.
type Service interface {
	HandleRefund(ctx context.Context, event Event) error
	ReverseRefund(ctx context.Context, email string) error
	IsBlocked(ctx context.Context, email string) (bool, enums.BlacklistReason, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type resolutionQueue interface {
	Enqueue(ctx context.Context, params resolution.EnqueueParams) (*models.ResolutionEntry, bool, error)
}

// ServiceParams configure the refund tracker.
type ServiceParams struct {
	Logger         *logger.Logger
	Repo           Repository
	OrdersRepo     orders.Repository
	Resolution     resolutionQueue
	TxRunner       txRunner
	FlagThreshold  int
	BlockThreshold int
	BlacklistTTL   time.Duration
	Now            func() time.Time
}

type service struct {
	logg           *logger.Logger
	repo           Repository
	ordersRepo     orders.Repository
	resolution     resolutionQueue
	txRunner       txRunner
	flagThreshold  int
	blockThreshold int
	blacklistTTL   time.Duration
	now            func() time.Time
}

const (
	defaultFlagThreshold  = 2
	defaultBlockThreshold = 3
	defaultBlacklistTTL   = 90 * 24 * time.Hour
)

// NewService validates dependencies and builds the tracker.
func NewService(params ServiceParams) (Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.Repo == nil {
		return nil, errors.New("repository is required")
	}
	if params.OrdersRepo == nil {
		return nil, errors.New("orders repository is required")
	}
	if params.Resolution == nil {
		return nil, errors.New("resolution service is required")
	}
	if params.TxRunner == nil {
		return nil, errors.New("tx runner is required")
	}

	flag := params.FlagThreshold
	if flag <= 0 {
		flag = defaultFlagThreshold
	}
	block := params.BlockThreshold
	if block <= 0 {
		block = defaultBlockThreshold
	}
	ttl := params.BlacklistTTL
	if ttl <= 0 {
		ttl = defaultBlacklistTTL
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}

	return &service{
		logg:           params.Logger,
		repo:           params.Repo,
		ordersRepo:     params.OrdersRepo,
		resolution:     params.Resolution,
		txRunner:       params.TxRunner,
		flagThreshold:  flag,
		blockThreshold: block,
		blacklistTTL:   ttl,
		now:            now,
	}, nil
}

// Event is one refund or chargeback signal from the payment provider.
type Event struct {
	PaymentID string
	Email     string
	Type      enums.EventType
}

// HandleRefund applies a refund or chargeback: invalidates the order and its
// plan when they exist (a transaction may legitimately predate generation),
// bumps the abuse counter, flags patterns into the resolution queue, and
// blocks checkout past the hard threshold. Chargebacks blacklist the identity
// unconditionally.
func (s *service) HandleRefund(ctx context.Context, event Event) error {
	if strings.TrimSpace(event.PaymentID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment id is required")
	}
	if event.Type != enums.EventTypeRefunded && event.Type != enums.EventTypeChargeback {
		return pkgerrors.New(pkgerrors.CodeValidation, "event is not a refund or chargeback")
	}

	normalized := identity.Normalize(event.Email)
	now := s.now()
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"payment_id": event.PaymentID,
		"event_type": event.Type.String(),
	})

	orderStatus := enums.OrderStatusRefunded
	if event.Type == enums.EventTypeChargeback {
		orderStatus = enums.OrderStatusChargeback
	}

	var count int
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		ordersRepo := s.ordersRepo.WithTx(tx)
		repo := s.repo.WithTx(tx)

		order, err := ordersRepo.FindOrderByPaymentID(ctx, event.PaymentID)
		switch {
		case pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
			// No order yet; still record the refund against the identity.
			s.logg.Info(logCtx, "refund for unknown payment; counting against identity only")
		case err != nil:
			return err
		default:
			if normalized == "" {
				normalized = order.NormalizedEmail
			}
			if err := ordersRepo.UpdateOrderStatus(ctx, event.PaymentID, orderStatus); err != nil {
				return err
			}
			if err := ordersRepo.UpdatePlanStatus(ctx, event.PaymentID, enums.PlanStatusRefunded); err != nil {
				return err
			}
			if err := ordersRepo.IncrementPlanRefundCount(ctx, event.PaymentID); err != nil {
				return err
			}
		}

		if normalized == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "no identity available for refund event")
		}

		count, err = repo.IncrementCounter(ctx, normalized, now)
		return err
	})
	if err != nil {
		return err
	}

	logCtx = s.logg.WithField(logCtx, "refund_count", count)
	s.logg.Info(logCtx, "refund recorded")

	if count >= s.flagThreshold {
		notes := fmt.Sprintf("identity has %d refunds; review before further fulfillment", count)
		if _, _, err := s.resolution.Enqueue(ctx, resolution.EnqueueParams{
			PaymentID: event.PaymentID,
			Email:     event.Email,
			IssueType: enums.IssueTypeManualRefundRequired,
			Notes:     notes,
		}); err != nil {
			return err
		}
	}

	if count >= s.blockThreshold {
		if err := s.blacklist(ctx, normalized, enums.BlacklistReasonRefundAbuse, now); err != nil {
			return err
		}
	}

	if event.Type == enums.EventTypeChargeback {
		if err := s.blacklist(ctx, normalized, enums.BlacklistReasonChargeback, now); err != nil {
			return err
		}
	}

	return nil
}

// ReverseRefund backs out one refund after a provider reversal; the counter
// floors at zero.
func (s *service) ReverseRefund(ctx context.Context, email string) error {
	normalized := identity.Normalize(email)
	if normalized == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	if err := s.repo.DecrementCounter(ctx, normalized, s.now()); err != nil {
		return err
	}
	s.logg.Info(s.logg.WithField(ctx, "identity", normalized), "refund reversal recorded")
	return nil
}

// IsBlocked reports whether checkout is blocked for the identity.
func (s *service) IsBlocked(ctx context.Context, email string) (bool, enums.BlacklistReason, error) {
	entry, err := s.repo.FindBlacklist(ctx, identity.Normalize(email))
	if err != nil {
		return false, "", err
	}
	if entry == nil || !entry.Active(s.now()) {
		return false, "", nil
	}
	return true, entry.Reason, nil
}

func (s *service) blacklist(ctx context.Context, normalized string, reason enums.BlacklistReason, now time.Time) error {
	entry := &models.EmailBlacklistEntry{
		NormalizedEmail: normalized,
		Reason:          reason,
		ExpiresAt:       now.Add(s.blacklistTTL),
	}
	if err := s.repo.UpsertBlacklist(ctx, entry); err != nil {
		return err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"reason":     reason.String(),
		"expires_at": entry.ExpiresAt,
	})
	s.logg.Warn(logCtx, "identity blacklisted from checkout")
	return nil
}
