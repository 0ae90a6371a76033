package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/medorbit/televisit/pkg/config"
	"github.com/medorbit/televisit/pkg/logger"
	"github.com/medorbit/televisit/pkg/types"
)

// MockSessionRepository is a mock implementation of CheckoutSessionRepository
type MockSessionRepository struct {
	mock.Mock
}

func (m *MockSessionRepository) Create(ctx context.Context, session *types.CheckoutSession) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *MockSessionRepository) GetByID(ctx context.Context, id string) (*types.CheckoutSession, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.CheckoutSession), args.Error(1)
}

func (m *MockSessionRepository) ListByVisit(ctx context.Context, visitID string) ([]*types.CheckoutSession, error) {
	args := m.Called(ctx, visitID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*types.CheckoutSession), args.Error(1)
}

func (m *MockSessionRepository) MarkStatus(ctx context.Context, id, status string) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func paymentConfig(baseURL string, allowMock bool) *config.PaymentConfig {
	return &config.PaymentConfig{
		APIBaseURL:     baseURL,
		SecretKey:      "sk_test_key",
		SuccessURL:     "http://localhost:3000/payment/success",
		CancelURL:      "http://localhost:3000/payment/cancel",
		MockPriceRef:   "price_mock",
		AllowMock:      allowMock,
		RequestTimeout: 5,
	}
}

func newTestService(cfg *config.PaymentConfig, repo *MockSessionRepository) *Service {
	service := NewService(cfg, repo, logger.New("error"), nil)
	service.now = func() time.Time { return time.Unix(1700000000, 0) }
	return service
}

func TestCreateMockCheckoutSession(t *testing.T) {
	repo := &MockSessionRepository{}
	service := newTestService(paymentConfig("http://unused", true), repo)

	repo.On("Create", mock.Anything, mock.AnythingOfType("*types.CheckoutSession")).Return(nil)

	result, err := service.CreateCheckoutSession(context.Background(), &types.CheckoutRequest{
		Mode:           types.CheckoutModePayment,
		PriceRef:       "price_mock",
		PayerID:        "user-1",
		LinkedEntityID: "visit-1",
	})

	assert.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("%s%d", types.MockSessionPrefix, 1700000000), result.SessionID)
	assert.True(t, types.IsMockSession(result.SessionID))
	assert.Contains(t, result.URL, result.SessionID)

	created := repo.Calls[0].Arguments.Get(1).(*types.CheckoutSession)
	assert.Equal(t, types.SessionStatusPaid, created.Status)
	assert.Equal(t, "visit-1", created.VisitID)
}

func TestMockCheckoutDisabled(t *testing.T) {
	repo := &MockSessionRepository{}
	service := newTestService(paymentConfig("http://unused", false), repo)

	_, err := service.CreateCheckoutSession(context.Background(), &types.CheckoutRequest{
		Mode:     types.CheckoutModePayment,
		PriceRef: "price_mock",
		PayerID:  "user-1",
	})

	assert.Error(t, err)
	svcErr := types.AsServiceError(err)
	assert.Equal(t, types.ErrorTypeValidation, svcErr.Type)
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestResolveMockSession(t *testing.T) {
	repo := &MockSessionRepository{}
	service := newTestService(paymentConfig("http://unused", true), repo)

	sessionID := types.MockSessionPrefix + "1700000000"
	repo.On("GetByID", mock.Anything, sessionID).Return(&types.CheckoutSession{
		ID:      sessionID,
		VisitID: "visit-1",
		UserID:  "user-1",
		Status:  types.SessionStatusPaid,
	}, nil)

	resolution, err := service.ResolveSession(context.Background(), sessionID)

	assert.NoError(t, err)
	assert.Equal(t, types.SessionStatusPaid, resolution.Status)
	assert.Equal(t, "visit-1", resolution.LinkedEntityID)
	assert.True(t, resolution.IsAppointment)
}

func TestMockCheckoutRoundTrip(t *testing.T) {
	repo := &MockSessionRepository{}
	service := newTestService(paymentConfig("http://unused", true), repo)

	var stored *types.CheckoutSession
	repo.On("Create", mock.Anything, mock.AnythingOfType("*types.CheckoutSession")).
		Run(func(args mock.Arguments) {
			stored = args.Get(1).(*types.CheckoutSession)
		}).Return(nil)

	result, err := service.CreateCheckoutSession(context.Background(), &types.CheckoutRequest{
		Mode:           types.CheckoutModePayment,
		PriceRef:       "price_mock",
		PayerID:        "user-1",
		LinkedEntityID: "visit-7",
	})
	assert.NoError(t, err)

	repo.On("GetByID", mock.Anything, result.SessionID).Return(stored, nil)

	resolution, err := service.ResolveSession(context.Background(), result.SessionID)
	assert.NoError(t, err)
	assert.Equal(t, result.SessionID, resolution.SessionID)
	assert.Equal(t, types.SessionStatusPaid, resolution.Status)
	assert.Equal(t, "visit-7", resolution.LinkedEntityID)
}

func TestCreateCheckoutSessionUpstream(t *testing.T) {
	var gotIdempotencyKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/checkout/sessions", r.URL.Path)
		assert.Equal(t, "Bearer sk_test_key", r.Header.Get("Authorization"))
		gotIdempotencyKey = r.Header.Get("Idempotency-Key")

		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "payment", r.Form.Get("mode"))
		assert.Equal(t, "price_123", r.Form.Get("line_items[0][price]"))
		assert.Equal(t, "visit-1", r.Form.Get("metadata[linked_entity_id]"))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":     "cs_test_abc",
			"url":    "https://checkout.example.com/cs_test_abc",
			"status": "open",
		})
	}))
	defer server.Close()

	repo := &MockSessionRepository{}
	repo.On("Create", mock.Anything, mock.AnythingOfType("*types.CheckoutSession")).Return(nil)
	service := newTestService(paymentConfig(server.URL, false), repo)

	result, err := service.CreateCheckoutSession(context.Background(), &types.CheckoutRequest{
		Mode:           types.CheckoutModePayment,
		PriceRef:       "price_123",
		PayerID:        "user-1",
		LinkedEntityID: "visit-1",
		IdempotencyKey: "idem-key-1",
	})

	assert.NoError(t, err)
	assert.Equal(t, "cs_test_abc", result.SessionID)
	assert.Equal(t, "idem-key-1", gotIdempotencyKey)
	repo.AssertExpectations(t)
}

func TestResolveSessionUpstream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/checkout/sessions/cs_test_abc", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":             "cs_test_abc",
			"status":         "complete",
			"payment_status": "paid",
			"customer_email": "alice@example.com",
			"metadata":       map[string]string{"linked_entity_id": "visit-1"},
		})
	}))
	defer server.Close()

	repo := &MockSessionRepository{}
	repo.On("MarkStatus", mock.Anything, "cs_test_abc", types.SessionStatusPaid).Return(nil)
	service := newTestService(paymentConfig(server.URL, false), repo)

	resolution, err := service.ResolveSession(context.Background(), "cs_test_abc")

	assert.NoError(t, err)
	assert.Equal(t, types.SessionStatusPaid, resolution.Status)
	assert.Equal(t, "alice@example.com", resolution.PayerEmail)
	assert.Equal(t, "visit-1", resolution.LinkedEntityID)
	assert.True(t, resolution.IsAppointment)
}

func TestResolveSessionNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]string{"message": "No such checkout session"},
		})
	}))
	defer server.Close()

	service := newTestService(paymentConfig(server.URL, false), &MockSessionRepository{})

	_, err := service.ResolveSession(context.Background(), "cs_missing")

	assert.Error(t, err)
	svcErr := types.AsServiceError(err)
	assert.Equal(t, types.ErrorTypeNotFound, svcErr.Type)
}

func TestUpstreamErrorRetryability(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		retryable bool
	}{
		{"rate limited", http.StatusTooManyRequests, true},
		{"server error", http.StatusInternalServerError, true},
		{"bad request", http.StatusBadRequest, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				json.NewEncoder(w).Encode(map[string]interface{}{
					"error": map[string]string{"message": "provider error"},
				})
			}))
			defer server.Close()

			service := newTestService(paymentConfig(server.URL, false), &MockSessionRepository{})

			_, err := service.CreateCheckoutSession(context.Background(), &types.CheckoutRequest{
				Mode:     types.CheckoutModePayment,
				PriceRef: "price_123",
				PayerID:  "user-1",
			})

			assert.Error(t, err)
			svcErr := types.AsServiceError(err)
			assert.Equal(t, types.ErrorTypeUpstream, svcErr.Type)
			assert.Equal(t, tt.retryable, svcErr.Retryable)
		})
	}
}

func TestCreateCheckoutSessionValidation(t *testing.T) {
	service := newTestService(paymentConfig("http://unused", true), &MockSessionRepository{})

	tests := []struct {
		name string
		req  *types.CheckoutRequest
	}{
		{"nil request", nil},
		{"bad mode", &types.CheckoutRequest{Mode: "donation", PriceRef: "p", PayerID: "u"}},
		{"missing price", &types.CheckoutRequest{Mode: types.CheckoutModePayment, PayerID: "u"}},
		{"missing payer", &types.CheckoutRequest{Mode: types.CheckoutModePayment, PriceRef: "p"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.CreateCheckoutSession(context.Background(), tt.req)
			assert.Error(t, err)
			svcErr := types.AsServiceError(err)
			assert.Equal(t, types.ErrorTypeValidation, svcErr.Type)
		})
	}
}
