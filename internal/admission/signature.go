package admission

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"

	pkgerrors "github.com/baselhussain/ketoplan-backend/pkg/errors"
)

const defaultTolerance = 5 * time.Minute

// Verifier authenticates webhook requests with an HMAC-SHA256 signature over
// `timestamp + "." + body` and a freshness window that defeats replay of
// captured requests.
type Verifier struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

// NewVerifier builds a verifier for the shared webhook secret.
func NewVerifier(secret string, tolerance time.Duration) (*Verifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("webhook secret is required")
	}
	if tolerance <= 0 {
		tolerance = defaultTolerance
	}
	return &Verifier{
		secret:    []byte(secret),
		tolerance: tolerance,
		now:       time.Now,
	}, nil
}

// Verify checks the timestamp freshness and the signature in constant time.
// Every rejection maps to CodeUnauthorized; a caller retrying with the same
// signature will keep failing.
func (v *Verifier) Verify(body []byte, signature, timestamp string) error {
	ts, err := strconv.ParseInt(strings.TrimSpace(timestamp), 10, 64)
	if err != nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook timestamp")
	}

	age := v.now().Sub(time.Unix(ts, 0))
	if age > v.tolerance || age < -v.tolerance {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "webhook timestamp outside tolerance")
	}

	expected := Sign(v.secret, timestamp, body)
	provided := strings.TrimSpace(strings.ToLower(signature))
	if !hmac.Equal([]byte(expected), []byte(provided)) {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "webhook signature mismatch")
	}
	return nil
}

// Sign computes the hex-encoded HMAC-SHA256 the provider attaches to webhook
// deliveries.
func Sign(secret []byte, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
