package payment

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/medorbit/televisit/pkg/interfaces"
	"github.com/medorbit/televisit/pkg/logger"
	"github.com/medorbit/televisit/pkg/types"
)

// Handlers holds the HTTP handlers for standalone payment operations, such as
// subscription checkouts not linked to a visit
type Handlers struct {
	gateway  interfaces.PaymentGateway
	sessions interfaces.CheckoutSessionRepository
	logger   *logger.Logger
}

// NewHandlers creates new payment handlers
func NewHandlers(gateway interfaces.PaymentGateway, sessions interfaces.CheckoutSessionRepository, log *logger.Logger) *Handlers {
	return &Handlers{
		gateway:  gateway,
		sessions: sessions,
		logger:   log,
	}
}

// RegisterRoutes registers payment routes on an authenticated subrouter
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/payments/checkout", h.CreateCheckout).Methods(http.MethodPost)
	router.HandleFunc("/payments/sessions/{id}", h.GetSession).Methods(http.MethodGet)
	router.HandleFunc("/payments/sessions/{id}/resolve", h.ResolveSession).Methods(http.MethodPost)
	router.HandleFunc("/payments/visits/{id}/sessions", h.ListVisitSessions).Methods(http.MethodGet)
}

// CreateCheckout creates a checkout session for the authenticated user
func (h *Handlers) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	claims, ok := types.ClaimsFromContext(r.Context())
	if !ok {
		h.writeError(w, r, types.NewAuthorizationError(types.ErrCodeUnauthorized, "missing credentials"))
		return
	}

	var req types.CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, types.NewValidationError(types.ErrCodeInvalidInput, "invalid request body", nil))
		return
	}

	req.PayerID = claims.UserID
	req.IdempotencyKey = uuid.New().String()

	result, err := h.gateway.CreateCheckoutSession(r.Context(), &req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, result)
}

// GetSession returns the stored record of a checkout session
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	claims, ok := types.ClaimsFromContext(r.Context())
	if !ok {
		h.writeError(w, r, types.NewAuthorizationError(types.ErrCodeUnauthorized, "missing credentials"))
		return
	}

	session, err := h.sessions.GetByID(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if session.UserID != claims.UserID && !claims.Role.IsAdmin() {
		h.writeError(w, r, types.NewAuthorizationError(types.ErrCodeForbidden, "cannot read another user's session"))
		return
	}

	h.writeJSON(w, http.StatusOK, session)
}

// ResolveSession resolves a session's current state against the provider
func (h *Handlers) ResolveSession(w http.ResponseWriter, r *http.Request) {
	if _, ok := types.ClaimsFromContext(r.Context()); !ok {
		h.writeError(w, r, types.NewAuthorizationError(types.ErrCodeUnauthorized, "missing credentials"))
		return
	}

	resolution, err := h.gateway.ResolveSession(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, resolution)
}

// ListVisitSessions returns the payment attempt history recorded for a visit
func (h *Handlers) ListVisitSessions(w http.ResponseWriter, r *http.Request) {
	claims, ok := types.ClaimsFromContext(r.Context())
	if !ok {
		h.writeError(w, r, types.NewAuthorizationError(types.ErrCodeUnauthorized, "missing credentials"))
		return
	}

	sessions, err := h.sessions.ListByVisit(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	visible := make([]*types.CheckoutSession, 0, len(sessions))
	for _, session := range sessions {
		if session.UserID == claims.UserID || claims.Role.IsAdmin() || claims.Role.IsClinician() {
			visible = append(visible, session)
		}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": visible})
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
