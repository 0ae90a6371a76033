package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/medorbit/televisit/pkg/config"
	"github.com/medorbit/televisit/pkg/interfaces"
	"github.com/medorbit/televisit/pkg/logger"
	"github.com/medorbit/televisit/pkg/monitoring"
	"github.com/medorbit/televisit/pkg/types"
)

// Service implements the PaymentGateway interface on top of the hosted
// checkout provider, with a synthetic no-charge path for the reserved mock
// price reference.
type Service struct {
	client   *providerClient
	sessions interfaces.CheckoutSessionRepository
	config   *config.PaymentConfig
	logger   *logger.Logger
	metrics  *monitoring.MetricsCollector
	now      func() time.Time
}

// NewService creates a new payment gateway service
func NewService(
	cfg *config.PaymentConfig,
	sessions interfaces.CheckoutSessionRepository,
	log *logger.Logger,
	metrics *monitoring.MetricsCollector,
) *Service {
	return &Service{
		client:   newProviderClient(cfg, log),
		sessions: sessions,
		config:   cfg,
		logger:   log,
		metrics:  metrics,
		now:      time.Now,
	}
}

// CreateCheckoutSession creates a checkout session for a payer. When the
// request's price reference equals the configured mock sentinel and the mock
// path is enabled, no upstream call happens and a synthetic session id is
// returned.
func (s *Service) CreateCheckoutSession(ctx context.Context, req *types.CheckoutRequest) (*types.CheckoutResult, error) {
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}

	if req.PriceRef == s.config.MockPriceRef {
		return s.createMockSession(ctx, req)
	}

	upstream, err := s.client.createSession(ctx, req, s.config.SuccessURL, s.config.CancelURL)
	if err != nil {
		s.recordCheckout(string(req.Mode), false, false)
		return nil, err
	}

	session := &types.CheckoutSession{
		ID:        upstream.ID,
		VisitID:   req.LinkedEntityID,
		UserID:    req.PayerID,
		Mode:      req.Mode,
		Status:    upstream.Status,
		PriceRef:  req.PriceRef,
		URL:       upstream.URL,
		Metadata:  req.Metadata,
		CreatedAt: s.now().UTC(),
	}
	if session.Status == "" {
		session.Status = types.SessionStatusOpen
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		// The upstream session exists; losing the local record is recoverable
		// through ResolveSession, so log and continue.
		s.logger.WithError(err).WithField("session_id", session.ID).
			Error("Failed to persist checkout session record")
	}

	s.recordCheckout(string(req.Mode), false, true)
	return &types.CheckoutResult{SessionID: upstream.ID, URL: upstream.URL}, nil
}

// ResolveSession resolves the current state of a checkout session. Mock
// sessions resolve locally without contacting the provider.
func (s *Service) ResolveSession(ctx context.Context, sessionID string) (*types.SessionResolution, error) {
	if sessionID == "" {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, "session ID is required", nil)
	}

	if types.IsMockSession(sessionID) {
		return s.resolveMockSession(ctx, sessionID)
	}

	upstream, err := s.client.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	resolution := &types.SessionResolution{
		SessionID:      upstream.ID,
		Status:         s.normalizeStatus(upstream),
		PayerEmail:     upstream.CustomerEmail,
		LinkedEntityID: upstream.Metadata["linked_entity_id"],
		IsAppointment:  upstream.Metadata["linked_entity_id"] != "",
	}

	if err := s.sessions.MarkStatus(ctx, sessionID, resolution.Status); err != nil {
		s.logger.WithError(err).WithField("session_id", sessionID).
			Warn("Failed to update checkout session status")
	}

	s.recordResolution(resolution.Status)
	return resolution, nil
}

func (s *Service) createMockSession(ctx context.Context, req *types.CheckoutRequest) (*types.CheckoutResult, error) {
	if !s.config.AllowMock {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput,
			"mock payments are not enabled in this environment", nil)
	}

	sessionID := fmt.Sprintf("%s%d", types.MockSessionPrefix, s.now().Unix())
	sessionURL := fmt.Sprintf("%s?session_id=%s&mock=true", s.config.SuccessURL, sessionID)

	session := &types.CheckoutSession{
		ID:        sessionID,
		VisitID:   req.LinkedEntityID,
		UserID:    req.PayerID,
		Mode:      req.Mode,
		Status:    types.SessionStatusPaid,
		PriceRef:  req.PriceRef,
		URL:       sessionURL,
		Metadata:  req.Metadata,
		CreatedAt: s.now().UTC(),
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}

	s.logger.Audit(req.PayerID, "mock_checkout_created", "checkout_session", true, map[string]interface{}{
		"session_id":       sessionID,
		"linked_entity_id": req.LinkedEntityID,
	})
	s.recordCheckout(string(req.Mode), true, true)

	return &types.CheckoutResult{SessionID: sessionID, URL: sessionURL}, nil
}

func (s *Service) resolveMockSession(ctx context.Context, sessionID string) (*types.SessionResolution, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	resolution := &types.SessionResolution{
		SessionID:      session.ID,
		Status:         types.SessionStatusPaid,
		LinkedEntityID: session.VisitID,
		IsAppointment:  session.VisitID != "",
	}

	s.recordResolution(resolution.Status)
	return resolution, nil
}

// normalizeStatus collapses the provider's session/payment status pair into a
// single resolution status
func (s *Service) normalizeStatus(session *providerSession) string {
	if session.PaymentStatus == types.SessionStatusPaid {
		return types.SessionStatusPaid
	}
	if session.Status == types.SessionStatusComplete {
		return types.SessionStatusPaid
	}
	if session.Status == types.SessionStatusExpired {
		return types.SessionStatusExpired
	}
	if session.Status == "" {
		return types.SessionStatusFailed
	}
	return session.Status
}

func (s *Service) validateRequest(req *types.CheckoutRequest) error {
	if req == nil {
		return types.NewValidationError(types.ErrCodeInvalidInput, "checkout request is required", nil)
	}
	if req.Mode != types.CheckoutModePayment && req.Mode != types.CheckoutModeSubscription {
		return types.NewValidationError(types.ErrCodeInvalidInput,
			fmt.Sprintf("unsupported checkout mode: %s", req.Mode), nil)
	}
	if req.PriceRef == "" {
		return types.NewValidationError(types.ErrCodeInvalidInput, "price reference is required", nil)
	}
	if req.PayerID == "" {
		return types.NewValidationError(types.ErrCodeInvalidInput, "payer ID is required", nil)
	}
	return nil
}

func (s *Service) recordCheckout(mode string, mock, success bool) {
	if s.metrics == nil || !success {
		return
	}
	s.metrics.RecordCheckoutSession(mode, mock)
}

func (s *Service) recordResolution(status string) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordPaymentResolution(status)
}
