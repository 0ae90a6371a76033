package types

import (
	"strings"
	"time"
)

// CheckoutMode distinguishes one-time payments from subscriptions
type CheckoutMode string

const (
	CheckoutModePayment      CheckoutMode = "payment"
	CheckoutModeSubscription CheckoutMode = "subscription"
)

// Checkout session statuses as reported by the payment provider
const (
	SessionStatusOpen     = "open"
	SessionStatusComplete = "complete"
	SessionStatusPaid     = "paid"
	SessionStatusFailed   = "failed"
	SessionStatusExpired  = "expired"
)

// MockSessionPrefix marks synthetic sessions created without contacting the
// upstream provider. The prefix makes the no-charge path recognizable in every
// downstream record.
const MockSessionPrefix = "mock_session_"

// IsMockSession reports whether a session id was produced by the synthetic
// no-charge path
func IsMockSession(sessionID string) bool {
	return strings.HasPrefix(sessionID, MockSessionPrefix)
}

// CheckoutSession represents a provider-tracked payment attempt. Immutable
// once the upstream provider finalizes it; a visit may accumulate several
// sessions when earlier attempts failed.
type CheckoutSession struct {
	ID        string            `json:"id" db:"id"`
	VisitID   string            `json:"visit_id,omitempty" db:"visit_id"`
	UserID    string            `json:"user_id" db:"user_id"`
	Mode      CheckoutMode      `json:"mode" db:"mode"`
	Status    string            `json:"status" db:"status"`
	PriceRef  string            `json:"price_ref" db:"price_ref"`
	URL       string            `json:"url" db:"url"`
	Metadata  map[string]string `json:"metadata,omitempty" db:"metadata"`
	CreatedAt time.Time         `json:"created_at" db:"created_at"`
}

// CheckoutRequest represents the input for creating a checkout session
type CheckoutRequest struct {
	Mode           CheckoutMode      `json:"mode"`
	PriceRef       string            `json:"price_ref"`
	PayerID        string            `json:"payer_id"`
	LinkedEntityID string            `json:"linked_entity_id,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	IdempotencyKey string            `json:"-"`
}

// CheckoutResult is returned after a checkout session is created
type CheckoutResult struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

// SessionResolution is the resolved terminal state of a checkout session
type SessionResolution struct {
	SessionID      string `json:"session_id"`
	Status         string `json:"status"`
	PayerEmail     string `json:"customer_email,omitempty"`
	LinkedEntityID string `json:"linked_entity_id,omitempty"`
	IsAppointment  bool   `json:"is_appointment"`
}
