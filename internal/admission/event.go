package admission

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/baselhussain/ketoplan-backend/pkg/enums"
	pkgerrors "github.com/baselhussain/ketoplan-backend/pkg/errors"
)

// PaymentEvent is the validated form of one provider webhook delivery. It is
// parsed and checked once at the boundary; everything downstream trusts it.
type PaymentEvent struct {
	EventID     string
	Type        enums.EventType
	PaymentID   string
	Email       string
	AmountCents int64
	Currency    string
	ProviderTS  time.Time
}

type eventPayload struct {
	EventID     string `json:"event_id"`
	EventType   string `json:"event_type"`
	PaymentID   string `json:"payment_id"`
	Email       string `json:"email"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
	ProviderTS  int64  `json:"provider_ts"`
}

// ParseEvent decodes and validates a webhook body. Malformed payloads map to
// CodeValidation with field details.
func ParseEvent(body []byte) (*PaymentEvent, error) {
	var payload eventPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed webhook payload")
	}

	missing := map[string]string{}
	if strings.TrimSpace(payload.EventID) == "" {
		missing["event_id"] = "is required"
	}
	if strings.TrimSpace(payload.PaymentID) == "" {
		missing["payment_id"] = "is required"
	}
	if strings.TrimSpace(payload.Email) == "" {
		missing["email"] = "is required"
	}
	if payload.ProviderTS <= 0 {
		missing["provider_ts"] = "is required"
	}
	if len(missing) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "incomplete webhook payload").WithDetails(missing)
	}

	eventType, err := enums.ParseEventType(strings.TrimSpace(payload.EventType))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unsupported event type")
	}

	currency := strings.ToLower(strings.TrimSpace(payload.Currency))
	if currency == "" {
		currency = "usd"
	}

	return &PaymentEvent{
		EventID:     strings.TrimSpace(payload.EventID),
		Type:        eventType,
		PaymentID:   strings.TrimSpace(payload.PaymentID),
		Email:       strings.TrimSpace(payload.Email),
		AmountCents: payload.AmountCents,
		Currency:    currency,
		ProviderTS:  time.Unix(payload.ProviderTS, 0).UTC(),
	}, nil
}
