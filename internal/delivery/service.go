package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/baselhussain/ketoplan-backend/internal/intake"
	"github.com/baselhussain/ketoplan-backend/internal/orders"
	"github.com/baselhussain/ketoplan-backend/internal/preferences"
	"github.com/baselhussain/ketoplan-backend/internal/resolution"
	"github.com/baselhussain/ketoplan-backend/pkg/db/models"
	"github.com/baselhussain/ketoplan-backend/pkg/enums"
	pkgerrors "github.com/baselhussain/ketoplan-backend/pkg/errors"
	"github.com/baselhussain/ketoplan-backend/pkg/logger"
	"github.com/baselhussain/ketoplan-backend/pkg/mailer"
	"github.com/baselhussain/ketoplan-backend/pkg/metrics"
	"github.com/baselhussain/ketoplan-backend/pkg/pdf"
)

// Service drives one payment's plan from processing to delivered (or to the
// manual-resolution queue).
type Service interface {
	Deliver(ctx context.Context, paymentID string) error
	Redeliver(ctx context.Context, paymentID string) error
}

type generator interface {
	Generate(ctx context.Context, prefs preferences.Summary, calorieTarget int) (*Plan, error)
	Model() string
}

type uploader interface {
	Upload(ctx context.Context, objectPath, contentType string, data []byte) (string, error)
}

type sender interface {
	Send(ctx context.Context, msg mailer.Message) error
}

type resolutionQueue interface {
	EnqueueTx(ctx context.Context, tx *gorm.DB, params resolution.EnqueueParams) (*models.ResolutionEntry, bool, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams configure the orchestrator.
type ServiceParams struct {
	Logger               *logger.Logger
	OrdersRepo           orders.Repository
	IntakeRepo           intake.Repository
	TxRunner             txRunner
	Generator            generator
	Uploader             uploader
	Sender               sender
	Resolution           resolutionQueue
	Metrics              *metrics.DeliveryMetrics
	GenerationAttempts   int
	NotificationAttempts int
	NotificationBackoff  time.Duration
	DefaultCalorieTarget int
	Now                  func() time.Time
	Sleep                func(time.Duration)
}

type service struct {
	logg                 *logger.Logger
	ordersRepo           orders.Repository
	intakeRepo           intake.Repository
	txRunner             txRunner
	generator            generator
	uploader             uploader
	sender               sender
	resolution           resolutionQueue
	metrics              *metrics.DeliveryMetrics
	generationAttempts   int
	notificationAttempts int
	notificationBackoff  time.Duration
	defaultCalories      int
	now                  func() time.Time
	sleep                func(time.Duration)
}

const (
	defaultGenerationAttempts   = 3
	defaultNotificationAttempts = 3
	defaultNotificationBackoff  = 2 * time.Second
	defaultCalorieTarget        = 1800
)

// NewService validates dependencies and builds the orchestrator.
func NewService(params ServiceParams) (Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.OrdersRepo == nil {
		return nil, errors.New("orders repository is required")
	}
	if params.IntakeRepo == nil {
		return nil, errors.New("intake repository is required")
	}
	if params.TxRunner == nil {
		return nil, errors.New("tx runner is required")
	}
	if params.Generator == nil {
		return nil, errors.New("generator is required")
	}
	if params.Uploader == nil {
		return nil, errors.New("uploader is required")
	}
	if params.Sender == nil {
		return nil, errors.New("sender is required")
	}
	if params.Resolution == nil {
		return nil, errors.New("resolution service is required")
	}

	genAttempts := params.GenerationAttempts
	if genAttempts <= 0 {
		genAttempts = defaultGenerationAttempts
	}
	notifyAttempts := params.NotificationAttempts
	if notifyAttempts <= 0 {
		notifyAttempts = defaultNotificationAttempts
	}
	backoff := params.NotificationBackoff
	if backoff <= 0 {
		backoff = defaultNotificationBackoff
	}
	calories := params.DefaultCalorieTarget
	if calories <= 0 {
		calories = defaultCalorieTarget
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	sleep := params.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	return &service{
		logg:                 params.Logger,
		ordersRepo:           params.OrdersRepo,
		intakeRepo:           params.IntakeRepo,
		txRunner:             params.TxRunner,
		generator:            params.Generator,
		uploader:             params.Uploader,
		sender:               params.Sender,
		resolution:           params.Resolution,
		metrics:              params.Metrics,
		generationAttempts:   genAttempts,
		notificationAttempts: notifyAttempts,
		notificationBackoff:  backoff,
		defaultCalories:      calories,
		now:                  now,
		sleep:                sleep,
	}, nil
}

// outcome is the single value every pipeline step folds its terminal failure
// into; writeOutcome is the one place that touches the resolution queue.
type outcome struct {
	issueType     enums.IssueType
	notes         string
	planCompleted bool
	cause         error
}

// Deliver runs the pipeline for a plan in processing state. Each milestone is
// committed before the next external call, so a crash mid-pipeline leaves a
// resumable row rather than a lost order.
func (s *service) Deliver(ctx context.Context, paymentID string) error {
	ctx = s.logg.WithPaymentID(ctx, paymentID)

	plan, err := s.ordersRepo.FindPlanByPaymentID(ctx, paymentID)
	if err != nil {
		return err
	}
	if plan.Status != enums.PlanStatusProcessing {
		s.logg.Info(s.logg.WithField(ctx, "status", plan.Status.String()), "plan not in processing state; skipping delivery")
		return nil
	}

	order, err := s.ordersRepo.FindOrderByPaymentID(ctx, paymentID)
	if err != nil {
		return err
	}

	if failed := s.run(ctx, order, plan); failed != nil {
		return s.writeOutcome(ctx, order, *failed)
	}

	s.metrics.IncOutcome("completed")
	s.logg.Info(ctx, "plan delivered")
	return nil
}

// Redeliver reruns the pipeline for an admin regenerate action. The plan is
// moved back to processing first; refunded plans are immutable.
func (s *service) Redeliver(ctx context.Context, paymentID string) error {
	plan, err := s.ordersRepo.FindPlanByPaymentID(ctx, paymentID)
	if err != nil {
		return err
	}
	if plan.Status == enums.PlanStatusRefunded {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "refunded plan cannot be redelivered")
	}
	if err := s.ordersRepo.UpdatePlanStatus(ctx, paymentID, enums.PlanStatusProcessing); err != nil {
		return err
	}
	return s.Deliver(ctx, paymentID)
}

// run executes the pipeline steps in order and returns the terminal outcome,
// or nil on full success.
func (s *service) run(ctx context.Context, order *models.Order, plan *models.MealPlan) *outcome {
	submission, failed := s.lookupIntake(ctx, order)
	if failed != nil {
		return failed
	}

	prefs, failed := s.derive(ctx, order, submission)
	if failed != nil {
		return failed
	}

	calorieTarget := submission.CalorieTarget
	if calorieTarget <= 0 {
		calorieTarget = s.defaultCalories
	}

	generated, failed := s.generate(ctx, prefs, calorieTarget)
	if failed != nil {
		return failed
	}

	pdfBytes, failed := s.render(order, generated)
	if failed != nil {
		return failed
	}

	reference, failed := s.upload(ctx, order, pdfBytes)
	if failed != nil {
		return failed
	}

	return s.notify(ctx, order, generated, reference)
}

func (s *service) lookupIntake(ctx context.Context, order *models.Order) (*models.IntakeSubmission, *outcome) {
	submission, err := s.intakeRepo.FindLatestByIdentity(ctx, order.NormalizedEmail)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return nil, &outcome{
				issueType: enums.IssueTypeMissingIntakeData,
				notes:     "no intake submission found for customer",
				cause:     err,
			}
		}
		return nil, &outcome{
			issueType: enums.IssueTypeMissingIntakeData,
			notes:     "intake lookup failed",
			cause:     err,
		}
	}
	if submission.Expired(s.now()) {
		return nil, &outcome{
			issueType: enums.IssueTypeMissingIntakeData,
			notes:     "intake submission past retention window",
		}
	}
	return submission, nil
}

func (s *service) derive(ctx context.Context, order *models.Order, submission *models.IntakeSubmission) (preferences.Summary, *outcome) {
	var answers map[string][]string
	if err := json.Unmarshal(submission.Answers, &answers); err != nil {
		return preferences.Summary{}, &outcome{
			issueType: enums.IssueTypeMissingIntakeData,
			notes:     "intake answers are unreadable",
			cause:     err,
		}
	}

	prefs := preferences.Derive(answers)

	encoded, err := json.Marshal(prefs)
	if err != nil {
		return preferences.Summary{}, &outcome{
			issueType: enums.IssueTypeMissingIntakeData,
			notes:     "preference summary could not be encoded",
			cause:     err,
		}
	}
	if err := s.ordersRepo.SetPlanPreferences(ctx, order.PaymentID, encoded); err != nil {
		return preferences.Summary{}, &outcome{
			issueType: enums.IssueTypeMissingIntakeData,
			notes:     "persisting derived preferences failed",
			cause:     err,
		}
	}
	return prefs, nil
}

// generate invokes the model up to the configured bound; every attempt is a
// fresh invocation.
func (s *service) generate(ctx context.Context, prefs preferences.Summary, calorieTarget int) (*Plan, *outcome) {
	var lastErr error
	for attempt := 1; attempt <= s.generationAttempts; attempt++ {
		generated, err := s.generator.Generate(ctx, prefs, calorieTarget)
		if err == nil {
			return generated, nil
		}
		lastErr = err

		logCtx := s.logg.WithField(ctx, "attempt", attempt)
		s.logg.Warn(logCtx, "plan generation attempt failed")
	}
	return nil, &outcome{
		issueType: enums.IssueTypeGenerationValidationFailed,
		notes:     fmt.Sprintf("generation failed after %d attempts", s.generationAttempts),
		cause:     lastErr,
	}
}

// render only runs after a validated plan, so a failure here folds into the
// generation terminal path.
func (s *service) render(order *models.Order, generated *Plan) ([]byte, *outcome) {
	doc := pdf.Document{
		Title:         generated.Title,
		CustomerEmail: order.Email,
		CalorieTarget: generated.CalorieTarget,
		Notes:         generated.Notes,
	}
	for _, day := range generated.Days {
		docDay := pdf.Day{Label: day.Label}
		for _, meal := range day.Meals {
			docDay.Meals = append(docDay.Meals, pdf.Meal{
				Name:        meal.Name,
				Description: meal.Description,
				Calories:    meal.Calories,
			})
		}
		doc.Days = append(doc.Days, docDay)
	}

	pdfBytes, err := pdf.Render(doc)
	if err != nil {
		return nil, &outcome{
			issueType: enums.IssueTypeGenerationValidationFailed,
			notes:     "packaging validated plan failed",
			cause:     err,
		}
	}
	return pdfBytes, nil
}

func (s *service) upload(ctx context.Context, order *models.Order, pdfBytes []byte) (string, *outcome) {
	objectPath := fmt.Sprintf("plans/%s/%s.pdf", order.NormalizedEmail, order.PaymentID)
	reference, err := s.uploader.Upload(ctx, objectPath, "application/pdf", pdfBytes)
	if err != nil {
		return "", &outcome{
			issueType: enums.IssueTypeNotificationFailed,
			notes:     "storage upload failed; plan was generated but not persisted",
			cause:     err,
		}
	}

	if err := s.ordersRepo.SetPlanArtifact(ctx, order.PaymentID, reference, s.generator.Model()); err != nil {
		return "", &outcome{
			issueType: enums.IssueTypeNotificationFailed,
			notes:     "recording storage reference failed",
			cause:     err,
		}
	}
	return reference, nil
}

// notify sends the delivery email with bounded retries and backoff. The plan
// already exists in storage at this point, so exhausting retries marks the
// plan completed and queues only the notification failure.
func (s *service) notify(ctx context.Context, order *models.Order, generated *Plan, reference string) *outcome {
	msg := deliveryMessage(order.Email, generated.Title, reference)

	var lastErr error
	for attempt := 1; attempt <= s.notificationAttempts; attempt++ {
		if attempt > 1 {
			s.sleep(s.notificationBackoff * time.Duration(attempt-1))
		}
		if err := s.sender.Send(ctx, msg); err != nil {
			lastErr = err
			logCtx := s.logg.WithField(ctx, "attempt", attempt)
			s.logg.Warn(logCtx, "delivery notification attempt failed")
			continue
		}
		if err := s.ordersRepo.MarkPlanDelivered(ctx, order.PaymentID, s.now()); err != nil {
			return &outcome{
				issueType: enums.IssueTypeNotificationFailed,
				notes:     "recording delivery completion failed",
				cause:     err,
			}
		}
		return nil
	}

	return &outcome{
		issueType:     enums.IssueTypeNotificationFailed,
		notes:         fmt.Sprintf("notification failed after %d attempts; plan is stored and retrievable", s.notificationAttempts),
		planCompleted: true,
		cause:         lastErr,
	}
}

// writeOutcome is the single queue-write point for terminal failures. The
// plan status and the queue entry land in one transaction, so a crash here
// cannot leave a failed plan invisible to the resolution console.
func (s *service) writeOutcome(ctx context.Context, order *models.Order, failed outcome) error {
	status := enums.PlanStatusFailed
	if failed.planCompleted {
		status = enums.PlanStatusCompleted
	}
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.ordersRepo.WithTx(tx).UpdatePlanStatus(ctx, order.PaymentID, status); err != nil {
			return err
		}
		_, _, err := s.resolution.EnqueueTx(ctx, tx, resolution.EnqueueParams{
			PaymentID: order.PaymentID,
			Email:     order.Email,
			IssueType: failed.issueType,
			Notes:     failed.notes,
		})
		return err
	})
	if err != nil {
		return err
	}

	s.metrics.IncOutcome(failed.issueType.String())

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"issue_type":  failed.issueType.String(),
		"plan_status": status.String(),
	})
	cause := failed.cause
	if cause == nil {
		cause = errors.New(failed.notes)
	}
	s.logg.Error(logCtx, "delivery ended in terminal failure", cause)
	return nil
}

func deliveryMessage(email, title, reference string) mailer.Message {
	plain := fmt.Sprintf(
		"Your personalized keto meal plan is ready.\n\nPlan: %s\nDocument reference: %s\n\nOpen your customer portal to download it any time.",
		title, reference,
	)
	html := fmt.Sprintf(
		"<p>Your personalized keto meal plan is ready.</p><p><strong>%s</strong></p><p>Document reference: <code>%s</code></p><p>Open your customer portal to download it any time.</p>",
		title, reference,
	)
	return mailer.Message{
		To:        email,
		Subject:   "Your keto meal plan is ready",
		PlainBody: plain,
		HTMLBody:  html,
	}
}
