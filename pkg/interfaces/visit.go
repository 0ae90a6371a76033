package interfaces

import (
	"context"

	"github.com/medorbit/televisit/pkg/query"
	"github.com/medorbit/televisit/pkg/types"
)

// VisitService defines the interface for the visit lifecycle manager
type VisitService interface {
	// Lifecycle
	CreateVisit(ctx context.Context, req *types.VisitCreationRequest) (*types.Visit, error)
	RequestPayment(ctx context.Context, visitID string, priceRef string, payer types.UserClaims) (*types.CheckoutResult, error)
	ConfirmPayment(ctx context.Context, visitID, sessionID string) (*types.Visit, error)
	BeginEncounter(ctx context.Context, visitID string, actor types.UserClaims) (*types.Visit, error)
	AttachDocumentation(ctx context.Context, visitID string, update *types.DocumentationUpdate, actor types.UserClaims) (*types.Visit, error)
	CompleteVisit(ctx context.Context, visitID string, actor types.UserClaims) (*types.Visit, error)
	CancelVisit(ctx context.Context, visitID string, actor types.UserClaims) (*types.Visit, error)

	// Queries
	GetVisit(ctx context.Context, visitID string, actor types.UserClaims) (*types.Visit, error)
	ListVisits(ctx context.Context, filters *types.VisitFilters, actor types.UserClaims) ([]*types.Visit, error)
}

// VisitRepository defines the interface for visit persistence. Transition is
// the per-visit compare-and-set write: the update applies only when the stored
// state still matches expected, otherwise a conflict error is returned and the
// caller must re-read.
type VisitRepository interface {
	Create(ctx context.Context, visit *types.Visit) error
	GetByID(ctx context.Context, id string) (*types.Visit, error)
	Transition(ctx context.Context, id string, expected, next types.VisitState) error
	AttachDocumentation(ctx context.Context, id string, update *types.DocumentationUpdate) error
	Find(ctx context.Context, filters []query.Filter, limit, offset int) ([]*types.Visit, error)
}

// NotificationService defines the fire-and-forget notification collaborator.
// Missing provider credentials degrade sends to logged no-ops.
type NotificationService interface {
	SendWelcome(ctx context.Context, email, name string, role types.UserRole) error
	SendVisitConfirmation(ctx context.Context, email, name, visitID string) error
	SendVisitSummary(ctx context.Context, email, name, summary string) error
}
