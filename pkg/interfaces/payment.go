package interfaces

import (
	"context"

	"github.com/medorbit/televisit/pkg/types"
)

// PaymentGateway defines the interface for the payment gateway adapter.
//
// The adapter never retries internally: retrying a session creation without an
// idempotency key risks duplicate charges, so callers supply one key per
// logical attempt and drive any backoff themselves.
type PaymentGateway interface {
	CreateCheckoutSession(ctx context.Context, req *types.CheckoutRequest) (*types.CheckoutResult, error)
	ResolveSession(ctx context.Context, sessionID string) (*types.SessionResolution, error)
}

// CheckoutSessionRepository persists checkout sessions as immutable attempt
// history
type CheckoutSessionRepository interface {
	Create(ctx context.Context, session *types.CheckoutSession) error
	GetByID(ctx context.Context, id string) (*types.CheckoutSession, error)
	ListByVisit(ctx context.Context, visitID string) ([]*types.CheckoutSession, error)
	MarkStatus(ctx context.Context, id, status string) error
}
