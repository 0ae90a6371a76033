package interfaces

import (
	"context"

	"github.com/medorbit/televisit/pkg/types"
)

// DocumentationService defines the interface for AI-assisted clinical
// documentation. Pure request/response with respect to persistence: the
// service owns no state and partial output is never written anywhere.
type DocumentationService interface {
	GenerateSOAPNote(ctx context.Context, req *types.SOAPNoteRequest) (*types.SOAPNoteResult, error)
	GenerateVisitSummary(ctx context.Context, req *types.VisitSummaryRequest) (*types.VisitSummaryResult, error)
	GenerateCopilotReply(ctx context.Context, req *types.CopilotRequest) (*types.CopilotResult, error)
	GenerateImage(ctx context.Context, req *types.ImageRequest) (*types.ImageResult, error)
}
