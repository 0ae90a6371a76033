package visit

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/medorbit/televisit/pkg/interfaces"
	"github.com/medorbit/televisit/pkg/logger"
	"github.com/medorbit/televisit/pkg/types"
)

// Handlers holds the HTTP handlers for the visit lifecycle and documentation
// endpoints
type Handlers struct {
	service       interfaces.VisitService
	documentation interfaces.DocumentationService
	middleware    *Middleware
	logger        *logger.Logger
}

// NewHandlers creates new visit handlers
func NewHandlers(service interfaces.VisitService, documentation interfaces.DocumentationService, middleware *Middleware, log *logger.Logger) *Handlers {
	return &Handlers{
		service:       service,
		documentation: documentation,
		middleware:    middleware,
		logger:        log,
	}
}

// RegisterRoutes registers visit routes on an authenticated subrouter
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/visits", h.CreateVisit).Methods(http.MethodPost)
	router.HandleFunc("/visits", h.ListVisits).Methods(http.MethodGet)
	router.HandleFunc("/visits/{id}", h.GetVisit).Methods(http.MethodGet)
	router.HandleFunc("/visits/{id}/payment", h.RequestPayment).Methods(http.MethodPost)
	router.HandleFunc("/visits/{id}/payment/confirm", h.ConfirmPayment).Methods(http.MethodPost)
	router.HandleFunc("/visits/{id}/cancel", h.CancelVisit).Methods(http.MethodPost)

	clinician := router.NewRoute().Subrouter()
	clinician.Use(h.middleware.RequireClinician)
	clinician.HandleFunc("/visits/{id}/begin", h.BeginEncounter).Methods(http.MethodPost)
	clinician.HandleFunc("/visits/{id}/complete", h.CompleteVisit).Methods(http.MethodPost)
	clinician.HandleFunc("/visits/{id}/documentation", h.AttachDocumentation).Methods(http.MethodPut)
	clinician.HandleFunc("/visits/{id}/documentation/generate", h.GenerateDocumentation).Methods(http.MethodPost)
	clinician.HandleFunc("/ai/soap-note", h.GenerateSOAPNote).Methods(http.MethodPost)
	clinician.HandleFunc("/ai/visit-summary", h.GenerateVisitSummary).Methods(http.MethodPost)
	clinician.HandleFunc("/ai/copilot", h.Copilot).Methods(http.MethodPost)
	clinician.HandleFunc("/ai/image", h.GenerateImage).Methods(http.MethodPost)
}

// CreateVisit creates a new visit for the authenticated patient
func (h *Handlers) CreateVisit(w http.ResponseWriter, r *http.Request) {
	claims, ok := types.ClaimsFromContext(r.Context())
	if !ok {
		h.writeError(w, r, types.NewAuthorizationError(types.ErrCodeUnauthorized, "missing credentials"))
		return
	}

	var req types.VisitCreationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, types.NewValidationError(types.ErrCodeInvalidInput, "invalid request body", nil))
		return
	}

	// Patients always create visits for themselves
	if !claims.Role.IsAdmin() && !claims.Role.IsClinician() {
		req.PatientID = claims.UserID
	}
	if req.PatientID == "" {
		req.PatientID = claims.UserID
	}

	visit, err := h.service.CreateVisit(r.Context(), &req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, visit)
}

// GetVisit returns a single visit
func (h *Handlers) GetVisit(w http.ResponseWriter, r *http.Request) {
	claims, ok := types.ClaimsFromContext(r.Context())
	if !ok {
		h.writeError(w, r, types.NewAuthorizationError(types.ErrCodeUnauthorized, "missing credentials"))
		return
	}

	visit, err := h.service.GetVisit(r.Context(), mux.Vars(r)["id"], *claims)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, visit)
}

// ListVisits returns visits matching query filters
func (h *Handlers) ListVisits(w http.ResponseWriter, r *http.Request) {
	claims, ok := types.ClaimsFromContext(r.Context())
	if !ok {
		h.writeError(w, r, types.NewAuthorizationError(types.ErrCodeUnauthorized, "missing credentials"))
		return
	}

	q := r.URL.Query()
	filters := &types.VisitFilters{
		PatientID:     q.Get("patient_id"),
		ProviderID:    q.Get("provider_id"),
		VisitStatus:   types.VisitStatus(q.Get("visit_status")),
		PaymentStatus: types.PaymentStatus(q.Get("payment_status")),
	}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil {
		filters.Limit = limit
	}
	if offset, err := strconv.Atoi(q.Get("offset")); err == nil {
		filters.Offset = offset
	}

	visits, err := h.service.ListVisits(r.Context(), filters, *claims)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if visits == nil {
		visits = []*types.Visit{}
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"visits": visits})
}

// RequestPayment creates a checkout session for a visit
func (h *Handlers) RequestPayment(w http.ResponseWriter, r *http.Request) {
	claims, ok := types.ClaimsFromContext(r.Context())
	if !ok {
		h.writeError(w, r, types.NewAuthorizationError(types.ErrCodeUnauthorized, "missing credentials"))
		return
	}

	var req struct {
		PriceRef string `json:"price_ref"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, types.NewValidationError(types.ErrCodeInvalidInput, "invalid request body", nil))
		return
	}

	result, err := h.service.RequestPayment(r.Context(), mux.Vars(r)["id"], req.PriceRef, *claims)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, result)
}

// ConfirmPayment resolves a checkout session and advances the visit
func (h *Handlers) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	if _, ok := types.ClaimsFromContext(r.Context()); !ok {
		h.writeError(w, r, types.NewAuthorizationError(types.ErrCodeUnauthorized, "missing credentials"))
		return
	}

	var req struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, types.NewValidationError(types.ErrCodeInvalidInput, "invalid request body", nil))
		return
	}

	visit, err := h.service.ConfirmPayment(r.Context(), mux.Vars(r)["id"], req.SessionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, visit)
}

// BeginEncounter starts the encounter for a paid waiting visit
func (h *Handlers) BeginEncounter(w http.ResponseWriter, r *http.Request) {
	claims, ok := types.ClaimsFromContext(r.Context())
	if !ok {
		h.writeError(w, r, types.NewAuthorizationError(types.ErrCodeUnauthorized, "missing credentials"))
		return
	}

	visit, err := h.service.BeginEncounter(r.Context(), mux.Vars(r)["id"], *claims)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, visit)
}

// CompleteVisit completes an in-progress visit
func (h *Handlers) CompleteVisit(w http.ResponseWriter, r *http.Request) {
	claims, ok := types.ClaimsFromContext(r.Context())
	if !ok {
		h.writeError(w, r, types.NewAuthorizationError(types.ErrCodeUnauthorized, "missing credentials"))
		return
	}

	visit, err := h.service.CompleteVisit(r.Context(), mux.Vars(r)["id"], *claims)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, visit)
}

// CancelVisit cancels a scheduled or waiting visit
func (h *Handlers) CancelVisit(w http.ResponseWriter, r *http.Request) {
	claims, ok := types.ClaimsFromContext(r.Context())
	if !ok {
		h.writeError(w, r, types.NewAuthorizationError(types.ErrCodeUnauthorized, "missing credentials"))
		return
	}

	visit, err := h.service.CancelVisit(r.Context(), mux.Vars(r)["id"], *claims)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, visit)
}

// AttachDocumentation writes documentation fields onto a visit
func (h *Handlers) AttachDocumentation(w http.ResponseWriter, r *http.Request) {
	claims, ok := types.ClaimsFromContext(r.Context())
	if !ok {
		h.writeError(w, r, types.NewAuthorizationError(types.ErrCodeUnauthorized, "missing credentials"))
		return
	}

	var update types.DocumentationUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		h.writeError(w, r, types.NewValidationError(types.ErrCodeInvalidInput, "invalid request body", nil))
		return
	}

	visit, err := h.service.AttachDocumentation(r.Context(), mux.Vars(r)["id"], &update, *claims)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, visit)
}

// GenerateDocumentation generates a SOAP note and summary for a visit from the
// supplied patient history and attaches both
func (h *Handlers) GenerateDocumentation(w http.ResponseWriter, r *http.Request) {
	claims, ok := types.ClaimsFromContext(r.Context())
	if !ok {
		h.writeError(w, r, types.NewAuthorizationError(types.ErrCodeUnauthorized, "missing credentials"))
		return
	}

	var req struct {
		PatientHistory string `json:"patient_history"`
		PatientName    string `json:"patient_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, types.NewValidationError(types.ErrCodeInvalidInput, "invalid request body", nil))
		return
	}

	note, err := h.documentation.GenerateSOAPNote(r.Context(), &types.SOAPNoteRequest{
		PatientHistory: req.PatientHistory,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	summary, err := h.documentation.GenerateVisitSummary(r.Context(), &types.VisitSummaryRequest{
		SOAPNote:    note.SOAPNote,
		PatientName: req.PatientName,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	visit, err := h.service.AttachDocumentation(r.Context(), mux.Vars(r)["id"], &types.DocumentationUpdate{
		SOAPNote:    note.SOAPNote,
		Summary:     summary.Summary,
		ActionItems: summary.ActionItems,
	}, *claims)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, visit)
}

// GenerateSOAPNote generates a SOAP note without attaching it to a visit
func (h *Handlers) GenerateSOAPNote(w http.ResponseWriter, r *http.Request) {
	var req types.SOAPNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, types.NewValidationError(types.ErrCodeInvalidInput, "invalid request body", nil))
		return
	}

	result, err := h.documentation.GenerateSOAPNote(r.Context(), &req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// GenerateVisitSummary generates a summary without attaching it to a visit
func (h *Handlers) GenerateVisitSummary(w http.ResponseWriter, r *http.Request) {
	var req types.VisitSummaryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, types.NewValidationError(types.ErrCodeInvalidInput, "invalid request body", nil))
		return
	}

	result, err := h.documentation.GenerateVisitSummary(r.Context(), &req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// Copilot returns an assistant reply for a provider prompt
func (h *Handlers) Copilot(w http.ResponseWriter, r *http.Request) {
	var req types.CopilotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, types.NewValidationError(types.ErrCodeInvalidInput, "invalid request body", nil))
		return
	}

	result, err := h.documentation.GenerateCopilotReply(r.Context(), &req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// GenerateImage returns a generated image reference
func (h *Handlers) GenerateImage(w http.ResponseWriter, r *http.Request) {
	var req types.ImageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, types.NewValidationError(types.ErrCodeInvalidInput, "invalid request body", nil))
		return
	}

	result, err := h.documentation.GenerateImage(r.Context(), &req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	svcErr := types.AsServiceError(err)
	decision := types.Classify(err)

	h.logger.LogAt(decision.LogLevel, err, map[string]interface{}{
		"path":   r.URL.Path,
		"method": r.Method,
		"code":   svcErr.Code,
	})

	body := map[string]interface{}{
		"error":   svcErr.Code,
		"message": svcErr.Message,
	}
	if svcErr.Details != nil && !decision.Suppress {
		body["details"] = svcErr.Details
	}
	if decision.Suppress {
		body["message"] = "request could not be completed"
	}

	h.writeJSON(w, svcErr.HTTPStatus(), body)
}
