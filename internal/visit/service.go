package visit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/medorbit/televisit/pkg/interfaces"
	"github.com/medorbit/televisit/pkg/logger"
	"github.com/medorbit/televisit/pkg/monitoring"
	"github.com/medorbit/televisit/pkg/query"
	"github.com/medorbit/televisit/pkg/types"
)

// Service implements the VisitService interface: the state machine over
// (visitStatus, paymentStatus) that coordinates payment, documentation and
// notification collaborators.
type Service struct {
	repository    interfaces.VisitRepository
	users         interfaces.UserRepository
	gateway       interfaces.PaymentGateway
	documentation interfaces.DocumentationService
	notifications interfaces.NotificationService
	logger        *logger.Logger
	metrics       *monitoring.MetricsCollector
}

// NewService creates a new visit lifecycle service
func NewService(
	repository interfaces.VisitRepository,
	users interfaces.UserRepository,
	gateway interfaces.PaymentGateway,
	documentation interfaces.DocumentationService,
	notifications interfaces.NotificationService,
	log *logger.Logger,
	metrics *monitoring.MetricsCollector,
) *Service {
	return &Service{
		repository:    repository,
		users:         users,
		gateway:       gateway,
		documentation: documentation,
		notifications: notifications,
		logger:        log,
		metrics:       metrics,
	}
}

// CreateVisit creates a visit in the initial (scheduled, unpaid) state
func (s *Service) CreateVisit(ctx context.Context, req *types.VisitCreationRequest) (*types.Visit, error) {
	if req == nil || req.PatientID == "" {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, "patient ID is required", nil)
	}
	if strings.TrimSpace(req.Reason) == "" {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, "visit reason is required", nil)
	}

	now := time.Now().UTC()
	visit := &types.Visit{
		ID:                   uuid.New().String(),
		PatientID:            req.PatientID,
		Reason:               strings.TrimSpace(req.Reason),
		QuestionnaireAnswers: req.QuestionnaireAnswers,
		IsAIVisit:            req.IsAIVisit,
		PaymentStatus:        types.PaymentUnpaid,
		VisitStatus:          types.VisitScheduled,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	if err := s.repository.Create(ctx, visit); err != nil {
		return nil, err
	}

	s.logger.WithVisitID(visit.ID).WithField("user_id", visit.PatientID).Info("Visit scheduled")
	return visit, nil
}

// RequestPayment moves a scheduled unpaid (or re-payable failed) visit to
// pending and creates a checkout session tagged with the visit id
func (s *Service) RequestPayment(ctx context.Context, visitID, priceRef string, payer types.UserClaims) (*types.CheckoutResult, error) {
	if priceRef == "" {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, "price reference is required", nil)
	}

	visit, err := s.repository.GetByID(ctx, visitID)
	if err != nil {
		return nil, err
	}

	if visit.PatientID != payer.UserID && !payer.Role.IsAdmin() {
		return nil, types.NewAuthorizationError(types.ErrCodeForbidden, "only the visit's patient may pay for it")
	}

	state := visit.State()
	if state.VisitStatus != types.VisitScheduled ||
		(state.PaymentStatus != types.PaymentUnpaid && state.PaymentStatus != types.PaymentFailed) {
		return nil, s.invalidTransition(visit, "request_payment")
	}

	next := types.VisitState{VisitStatus: types.VisitScheduled, PaymentStatus: types.PaymentPending}
	if err := s.transition(ctx, visit, state, next); err != nil {
		return nil, err
	}

	result, err := s.gateway.CreateCheckoutSession(ctx, &types.CheckoutRequest{
		Mode:           types.CheckoutModePayment,
		PriceRef:       priceRef,
		PayerID:        payer.UserID,
		LinkedEntityID: visit.ID,
		Metadata:       map[string]string{"visit_id": visit.ID},
		IdempotencyKey: fmt.Sprintf("%s-%d", visit.ID, time.Now().UnixNano()),
	})
	if err != nil {
		// Session creation failed; return to the re-payable state so another
		// attempt can start cleanly.
		if revertErr := s.repository.Transition(ctx, visit.ID, next, state); revertErr != nil {
			s.logger.WithVisitID(visit.ID).WithError(revertErr).
				Warn("Failed to revert visit after checkout creation failure")
		}
		return nil, err
	}

	return result, nil
}

// ConfirmPayment resolves a checkout session and advances the visit according
// to the resolved status. Idempotent: confirming an already-paid visit is a
// no-op success.
func (s *Service) ConfirmPayment(ctx context.Context, visitID, sessionID string) (*types.Visit, error) {
	if sessionID == "" {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, "session ID is required", nil)
	}

	visit, err := s.repository.GetByID(ctx, visitID)
	if err != nil {
		return nil, err
	}

	if visit.PaymentStatus == types.PaymentPaid {
		return visit, nil
	}

	state := visit.State()
	if state.VisitStatus != types.VisitScheduled || state.PaymentStatus != types.PaymentPending {
		return nil, s.invalidTransition(visit, "confirm_payment")
	}

	resolution, err := s.gateway.ResolveSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	var next types.VisitState
	switch resolution.Status {
	case types.SessionStatusPaid, types.SessionStatusComplete:
		next = types.VisitState{VisitStatus: types.VisitWaiting, PaymentStatus: types.PaymentPaid}
	case types.SessionStatusFailed, types.SessionStatusExpired:
		next = types.VisitState{VisitStatus: types.VisitScheduled, PaymentStatus: types.PaymentFailed}
	default:
		// Not terminal yet: leave (scheduled, pending) and let the caller poll
		return visit, nil
	}

	if err := s.transition(ctx, visit, state, next); err != nil {
		// A concurrent confirm may have applied the same transition already;
		// re-read and treat an identical outcome as idempotent success.
		current, getErr := s.repository.GetByID(ctx, visitID)
		if getErr == nil && current.State() == next {
			return current, nil
		}
		return nil, err
	}

	visit.VisitStatus = next.VisitStatus
	visit.PaymentStatus = next.PaymentStatus

	if next.PaymentStatus == types.PaymentPaid {
		s.notifyConfirmation(visit)
	}

	return visit, nil
}

// BeginEncounter moves a paid waiting visit into the encounter
func (s *Service) BeginEncounter(ctx context.Context, visitID string, actor types.UserClaims) (*types.Visit, error) {
	if !actor.Role.IsClinician() && !actor.Role.IsAdmin() {
		return nil, types.NewAuthorizationError(types.ErrCodeForbidden, "only clinicians may begin an encounter")
	}

	visit, err := s.repository.GetByID(ctx, visitID)
	if err != nil {
		return nil, err
	}

	state := visit.State()
	if state.VisitStatus != types.VisitWaiting || state.PaymentStatus != types.PaymentPaid {
		return nil, s.invalidTransition(visit, "begin_encounter")
	}

	next := types.VisitState{VisitStatus: types.VisitInProgress, PaymentStatus: types.PaymentPaid}
	if err := s.transition(ctx, visit, state, next); err != nil {
		return nil, err
	}

	visit.VisitStatus = next.VisitStatus
	return visit, nil
}

// AttachDocumentation merges documentation into a visit that is in progress or
// completed. Once a completed visit carries a note, overwriting requires the
// explicit provider edit flag.
func (s *Service) AttachDocumentation(ctx context.Context, visitID string, update *types.DocumentationUpdate, actor types.UserClaims) (*types.Visit, error) {
	if update == nil {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, "documentation update is required", nil)
	}
	if !actor.Role.IsClinician() && !actor.Role.IsAdmin() {
		return nil, types.NewAuthorizationError(types.ErrCodeForbidden, "only clinicians may attach documentation")
	}

	visit, err := s.repository.GetByID(ctx, visitID)
	if err != nil {
		return nil, err
	}

	if visit.VisitStatus != types.VisitInProgress && visit.VisitStatus != types.VisitCompleted {
		return nil, s.invalidTransition(visit, "attach_documentation")
	}

	if visit.VisitStatus == types.VisitCompleted && !update.ProviderEdit {
		if (update.SOAPNote != "" && visit.SOAPNote != "") ||
			(update.Summary != "" && visit.Summary != "") {
			return nil, types.NewConflictError(types.ErrCodeInvalidState,
				"documentation on a completed visit can only be overwritten by an explicit provider edit", nil)
		}
	}

	if err := s.repository.AttachDocumentation(ctx, visitID, update); err != nil {
		return nil, err
	}

	if update.ProviderEdit {
		s.logger.Audit(actor.UserID, "documentation_edited", "visit", true, map[string]interface{}{
			"visit_id": visitID,
		})
	}

	return s.repository.GetByID(ctx, visitID)
}

// CompleteVisit moves an in-progress paid visit to completed and dispatches
// the summary notification
func (s *Service) CompleteVisit(ctx context.Context, visitID string, actor types.UserClaims) (*types.Visit, error) {
	if !actor.Role.IsClinician() && !actor.Role.IsAdmin() {
		return nil, types.NewAuthorizationError(types.ErrCodeForbidden, "only clinicians may complete a visit")
	}

	visit, err := s.repository.GetByID(ctx, visitID)
	if err != nil {
		return nil, err
	}

	state := visit.State()
	if state.VisitStatus != types.VisitInProgress || state.PaymentStatus != types.PaymentPaid {
		return nil, s.invalidTransition(visit, "complete_visit")
	}

	next := types.VisitState{VisitStatus: types.VisitCompleted, PaymentStatus: types.PaymentPaid}
	if err := s.transition(ctx, visit, state, next); err != nil {
		return nil, err
	}

	visit.VisitStatus = next.VisitStatus

	if visit.Summary != "" {
		s.notifySummary(visit)
	}

	return visit, nil
}

// CancelVisit cancels a visit from scheduled or waiting. Soft and terminal;
// when the visit was already paid a billing event is emitted for a refund
// decision elsewhere.
func (s *Service) CancelVisit(ctx context.Context, visitID string, actor types.UserClaims) (*types.Visit, error) {
	visit, err := s.repository.GetByID(ctx, visitID)
	if err != nil {
		return nil, err
	}

	if visit.PatientID != actor.UserID && !actor.Role.IsAdmin() && !actor.Role.IsClinician() {
		return nil, types.NewAuthorizationError(types.ErrCodeForbidden, "cannot cancel another patient's visit")
	}

	state := visit.State()
	if state.VisitStatus != types.VisitScheduled && state.VisitStatus != types.VisitWaiting {
		return nil, s.invalidTransition(visit, "cancel_visit")
	}

	next := types.VisitState{VisitStatus: types.VisitCancelled, PaymentStatus: state.PaymentStatus}
	if err := s.transition(ctx, visit, state, next); err != nil {
		return nil, err
	}

	visit.VisitStatus = types.VisitCancelled

	if state.PaymentStatus == types.PaymentPaid {
		event := types.BillingEvent{
			VisitID:       visit.ID,
			PatientID:     visit.PatientID,
			PaymentStatus: state.PaymentStatus,
			Event:         "cancelled_after_payment",
			OccurredAt:    time.Now().UTC(),
		}
		s.logger.WithFields(map[string]interface{}{
			"billing_event": event.Event,
			"visit_id":      event.VisitID,
			"patient_id":    event.PatientID,
		}).Warn("Paid visit cancelled, refund decision required")
	}

	s.logger.Audit(actor.UserID, "visit_cancelled", "visit", true, map[string]interface{}{
		"visit_id":       visit.ID,
		"payment_status": state.PaymentStatus,
	})

	return visit, nil
}

// GetVisit returns a visit the actor is allowed to read
func (s *Service) GetVisit(ctx context.Context, visitID string, actor types.UserClaims) (*types.Visit, error) {
	visit, err := s.repository.GetByID(ctx, visitID)
	if err != nil {
		return nil, err
	}

	if !s.canRead(visit, actor) {
		return nil, types.NewAuthorizationError(types.ErrCodeForbidden, "cannot read this visit")
	}

	return visit, nil
}

// ListVisits returns visits matching the filters, scoped to what the actor may
// see. Patients only ever see their own visits.
func (s *Service) ListVisits(ctx context.Context, filters *types.VisitFilters, actor types.UserClaims) ([]*types.Visit, error) {
	if filters == nil {
		filters = &types.VisitFilters{}
	}

	if !actor.Role.IsAdmin() && !actor.Role.IsClinician() {
		filters.PatientID = actor.UserID
	}

	specs := []query.Filter{}
	if filters.PatientID != "" {
		specs = append(specs, query.Eq("patient_id", filters.PatientID))
	}
	if filters.ProviderID != "" {
		specs = append(specs, query.Eq("provider_id", filters.ProviderID))
	}
	if filters.VisitStatus != "" {
		specs = append(specs, query.Eq("visit_status", string(filters.VisitStatus)))
	}
	if filters.PaymentStatus != "" {
		specs = append(specs, query.Eq("payment_status", string(filters.PaymentStatus)))
	}
	if !filters.CreatedAfter.IsZero() {
		specs = append(specs, query.Filter{Field: "created_at", Op: query.OpGte, Value: filters.CreatedAfter})
	}

	return s.repository.Find(ctx, specs, filters.Limit, filters.Offset)
}

// transition applies a compare-and-set state change and records the outcome
func (s *Service) transition(ctx context.Context, visit *types.Visit, from, to types.VisitState) error {
	err := s.repository.Transition(ctx, visit.ID, from, to)

	success := err == nil
	s.logger.Transition(visit.ID, string(from.VisitStatus), string(to.VisitStatus), success, map[string]interface{}{
		"payment_from": from.PaymentStatus,
		"payment_to":   to.PaymentStatus,
	})
	if s.metrics != nil {
		status := "applied"
		if !success {
			status = "conflict"
		}
		s.metrics.RecordVisitTransition(string(from.VisitStatus), string(to.VisitStatus), status)
	}

	return err
}

func (s *Service) invalidTransition(visit *types.Visit, operation string) error {
	return types.NewConflictError(types.ErrCodeInvalidState,
		fmt.Sprintf("%s is not allowed from state (%s, %s)", operation, visit.VisitStatus, visit.PaymentStatus),
		map[string]interface{}{
			"visit_id":       visit.ID,
			"visit_status":   visit.VisitStatus,
			"payment_status": visit.PaymentStatus,
		})
}

func (s *Service) canRead(visit *types.Visit, actor types.UserClaims) bool {
	if actor.Role.IsAdmin() || actor.Role.IsClinician() {
		return true
	}
	return visit.PatientID == actor.UserID
}

// notifyConfirmation dispatches the payment confirmation email without
// blocking the request
func (s *Service) notifyConfirmation(visit *types.Visit) {
	patient, err := s.users.GetByID(visit.PatientID)
	if err != nil {
		s.logger.WithVisitID(visit.ID).WithError(err).Warn("Skipping confirmation email, patient lookup failed")
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := s.notifications.SendVisitConfirmation(ctx, patient.Email, patient.Name, visit.ID); err != nil {
			s.logger.WithVisitID(visit.ID).WithError(err).Warn("Confirmation email failed")
		}
	}()
}

// notifySummary dispatches the visit summary email without blocking the
// request
func (s *Service) notifySummary(visit *types.Visit) {
	patient, err := s.users.GetByID(visit.PatientID)
	if err != nil {
		s.logger.WithVisitID(visit.ID).WithError(err).Warn("Skipping summary email, patient lookup failed")
		return
	}

	summary := visit.Summary

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := s.notifications.SendVisitSummary(ctx, patient.Email, patient.Name, summary); err != nil {
			s.logger.WithVisitID(visit.ID).WithError(err).Warn("Summary email failed")
		}
	}()
}
