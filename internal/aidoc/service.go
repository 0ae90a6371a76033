package aidoc

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/medorbit/televisit/pkg/config"
	"github.com/medorbit/televisit/pkg/logger"
	"github.com/medorbit/televisit/pkg/monitoring"
	"github.com/medorbit/televisit/pkg/types"
)

const soapSystemPrompt = `You are a clinical documentation assistant. Given a patient history,
write a concise SOAP note with Subjective, Objective, Assessment and Plan
sections. Output only the note text.`

const summarySystemPrompt = `You are a clinical documentation assistant. Given a SOAP note, write a
short patient-facing visit summary in plain language, plus a list of
follow-up action items. Respond with a JSON object of the form
{"summary": "...", "action_items": ["...", "..."]}.`

const copilotSystemPrompt = `You are a clinical assistant for licensed providers. Answer briefly and
note when a question needs in-person evaluation.`

// Service implements the DocumentationService interface. When no provider
// credentials are configured every operation degrades to a deterministic
// placeholder so the rest of the visit flow stays exercisable.
type Service struct {
	client  *inferenceClient
	logger  *logger.Logger
	metrics *monitoring.MetricsCollector
}

// NewService creates a new documentation service
func NewService(cfg *config.AIConfig, log *logger.Logger, metrics *monitoring.MetricsCollector) *Service {
	if cfg.APIKey == "" {
		log.Warn("No inference credentials configured, documentation generation will return placeholders")
	}

	return &Service{
		client:  newInferenceClient(cfg, log),
		logger:  log,
		metrics: metrics,
	}
}

// GenerateSOAPNote generates a clinical SOAP note from patient history
func (s *Service) GenerateSOAPNote(ctx context.Context, req *types.SOAPNoteRequest) (*types.SOAPNoteResult, error) {
	if req == nil || strings.TrimSpace(req.PatientHistory) == "" {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, "patient history is required", nil)
	}

	if !s.client.enabled() {
		return &types.SOAPNoteResult{SOAPNote: s.placeholderSOAPNote(req.PatientHistory)}, nil
	}

	start := time.Now()
	note, err := s.client.complete(ctx, soapSystemPrompt, req.PatientHistory, false)
	s.record("soap_note", err, time.Since(start))
	if err != nil {
		return nil, err
	}

	if note == "" {
		return nil, types.NewUpstreamError("inference_provider", types.ErrCodeEmptyCompletion,
			"generated note was empty", false, nil)
	}

	return &types.SOAPNoteResult{SOAPNote: note}, nil
}

// GenerateVisitSummary generates a patient-facing summary and action items
// from a SOAP note
func (s *Service) GenerateVisitSummary(ctx context.Context, req *types.VisitSummaryRequest) (*types.VisitSummaryResult, error) {
	if req == nil || strings.TrimSpace(req.SOAPNote) == "" {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, "SOAP note is required", nil)
	}

	if !s.client.enabled() {
		return s.placeholderSummary(req), nil
	}

	prompt := fmt.Sprintf("Patient name: %s\n\nSOAP note:\n%s", req.PatientName, req.SOAPNote)

	start := time.Now()
	raw, err := s.client.complete(ctx, summarySystemPrompt, prompt, true)
	s.record("visit_summary", err, time.Since(start))
	if err != nil {
		return nil, err
	}

	result, err := parseSummary(raw)
	if err != nil {
		return nil, err
	}

	return result, nil
}

// GenerateCopilotReply generates an assistant reply for a provider prompt
func (s *Service) GenerateCopilotReply(ctx context.Context, req *types.CopilotRequest) (*types.CopilotResult, error) {
	if req == nil || strings.TrimSpace(req.Prompt) == "" {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, "prompt is required", nil)
	}

	if !s.client.enabled() {
		return &types.CopilotResult{Text: "Assistant replies are unavailable in this environment."}, nil
	}

	start := time.Now()
	text, err := s.client.complete(ctx, copilotSystemPrompt, req.Prompt, false)
	s.record("copilot", err, time.Since(start))
	if err != nil {
		return nil, err
	}

	if text == "" {
		return nil, types.NewUpstreamError("inference_provider", types.ErrCodeEmptyCompletion,
			"assistant reply was empty", false, nil)
	}

	return &types.CopilotResult{Text: text}, nil
}

// GenerateImage generates an illustrative image for a prompt
func (s *Service) GenerateImage(ctx context.Context, req *types.ImageRequest) (*types.ImageResult, error) {
	if req == nil || strings.TrimSpace(req.Prompt) == "" {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, "prompt is required", nil)
	}

	if !s.client.enabled() {
		return &types.ImageResult{ImageRef: "https://placehold.co/1024x1024"}, nil
	}

	start := time.Now()
	ref, err := s.client.generateImage(ctx, req.Prompt)
	s.record("image", err, time.Since(start))
	if err != nil {
		return nil, err
	}

	return &types.ImageResult{ImageRef: ref}, nil
}

// parseSummary normalizes the model's JSON reply into a summary result. The
// summary must be non-empty prose and action items is always a slice.
func parseSummary(raw string) (*types.VisitSummaryResult, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var parsed struct {
		Summary     string   `json:"summary"`
		ActionItems []string `json:"action_items"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, types.NewUpstreamError("inference_provider", types.ErrCodeUpstreamError,
			"malformed summary output", false, err)
	}

	if strings.TrimSpace(parsed.Summary) == "" {
		return nil, types.NewUpstreamError("inference_provider", types.ErrCodeEmptyCompletion,
			"generated summary was empty", false, nil)
	}

	items := parsed.ActionItems
	if items == nil {
		items = []string{}
	}

	return &types.VisitSummaryResult{
		Summary:     strings.TrimSpace(parsed.Summary),
		ActionItems: items,
	}, nil
}

func (s *Service) placeholderSOAPNote(history string) string {
	return fmt.Sprintf(
		"S: %s\nO: No objective findings recorded.\nA: Assessment pending provider review.\nP: Provider to review and amend this draft.",
		strings.TrimSpace(history))
}

func (s *Service) placeholderSummary(req *types.VisitSummaryRequest) *types.VisitSummaryResult {
	name := strings.TrimSpace(req.PatientName)
	if name == "" {
		name = "The patient"
	}
	return &types.VisitSummaryResult{
		Summary:     fmt.Sprintf("%s completed a telehealth visit. A provider will follow up with detailed guidance.", name),
		ActionItems: []string{},
	}
}

func (s *Service) record(operation string, err error, duration time.Duration) {
	if s.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	s.metrics.RecordInferenceCall(operation, status, duration)
}
