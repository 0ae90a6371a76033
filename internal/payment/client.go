package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/medorbit/televisit/pkg/config"
	"github.com/medorbit/televisit/pkg/logger"
	"github.com/medorbit/televisit/pkg/types"
)

// providerClient talks to the hosted checkout provider over its REST API. It
// performs exactly one HTTP attempt per call; callers own retries and must
// supply a fresh idempotency key per logical attempt.
type providerClient struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
	logger     *logger.Logger
}

func newProviderClient(cfg *config.PaymentConfig, log *logger.Logger) *providerClient {
	timeout := time.Duration(cfg.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &providerClient{
		baseURL:   strings.TrimRight(cfg.APIBaseURL, "/"),
		secretKey: cfg.SecretKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: log,
	}
}

// providerSession is the provider's wire representation of a checkout session
type providerSession struct {
	ID            string            `json:"id"`
	URL           string            `json:"url"`
	Status        string            `json:"status"`
	PaymentStatus string            `json:"payment_status"`
	CustomerEmail string            `json:"customer_email"`
	Metadata      map[string]string `json:"metadata"`
}

type providerError struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// createSession creates a checkout session upstream
func (c *providerClient) createSession(ctx context.Context, req *types.CheckoutRequest, successURL, cancelURL string) (*providerSession, error) {
	form := url.Values{}
	form.Set("mode", string(req.Mode))
	form.Set("line_items[0][price]", req.PriceRef)
	form.Set("line_items[0][quantity]", "1")
	form.Set("success_url", successURL)
	form.Set("cancel_url", cancelURL)
	form.Set("client_reference_id", req.PayerID)

	for key, value := range req.Metadata {
		form.Set(fmt.Sprintf("metadata[%s]", key), value)
	}
	if req.LinkedEntityID != "" {
		form.Set("metadata[linked_entity_id]", req.LinkedEntityID)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/checkout/sessions", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, types.NewInternalError(types.ErrCodeInternalError, "failed to build checkout request", err)
	}

	httpReq.Header.Set("Authorization", "Bearer "+c.secretKey)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if req.IdempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	}

	return c.do(httpReq)
}

// getSession fetches a checkout session from the provider
func (c *providerClient) getSession(ctx context.Context, sessionID string) (*providerSession, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/checkout/sessions/"+url.PathEscape(sessionID), nil)
	if err != nil {
		return nil, types.NewInternalError(types.ErrCodeInternalError, "failed to build session request", err)
	}

	httpReq.Header.Set("Authorization", "Bearer "+c.secretKey)

	return c.do(httpReq)
}

func (c *providerClient) do(req *http.Request) (*providerSession, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, types.NewUpstreamError("payment_provider", types.ErrCodeUpstreamError,
			"payment provider unreachable", true, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, types.NewUpstreamError("payment_provider", types.ErrCodeUpstreamError,
			"failed to read payment provider response", true, err)
	}

	if resp.StatusCode >= 400 {
		return nil, c.classifyResponse(resp.StatusCode, body)
	}

	var session providerSession
	if err := json.Unmarshal(body, &session); err != nil {
		return nil, types.NewUpstreamError("payment_provider", types.ErrCodeUpstreamError,
			"malformed payment provider response", false, err)
	}

	return &session, nil
}

func (c *providerClient) classifyResponse(statusCode int, body []byte) error {
	var providerErr providerError
	message := "payment provider request failed"
	if json.Unmarshal(body, &providerErr) == nil && providerErr.Error.Message != "" {
		message = providerErr.Error.Message
	}

	c.logger.WithFields(map[string]interface{}{
		"status_code": statusCode,
		"error_code":  providerErr.Error.Code,
	}).Warn("Payment provider returned an error")

	switch {
	case statusCode == http.StatusNotFound:
		return types.NewNotFoundError(types.ErrCodeNotFound, "checkout session not found")
	case statusCode == http.StatusTooManyRequests || statusCode >= 500:
		return types.NewUpstreamError("payment_provider", types.ErrCodeUpstreamError, message, true, nil)
	default:
		return types.NewUpstreamError("payment_provider", types.ErrCodePaymentFailed, message, false, nil)
	}
}
