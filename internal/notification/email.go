package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/medorbit/televisit/pkg/config"
	"github.com/medorbit/televisit/pkg/logger"
	"github.com/medorbit/televisit/pkg/types"
)

// EmailNotifier implements the NotificationService interface over an email
// provider's REST API. Dispatch is best-effort: when no API key is configured
// every send degrades to a logged no-op instead of an error.
type EmailNotifier struct {
	config     *config.EmailConfig
	httpClient *http.Client
	logger     *logger.Logger
}

// NewEmailNotifier creates a new email notification service
func NewEmailNotifier(cfg *config.EmailConfig, log *logger.Logger) *EmailNotifier {
	if cfg.APIKey == "" {
		log.Warn("No email credentials configured, notifications will be logged only")
	}

	return &EmailNotifier{
		config: cfg,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: log,
	}
}

// SendWelcome sends a welcome email to a newly registered user
func (n *EmailNotifier) SendWelcome(ctx context.Context, email, name string, role types.UserRole) error {
	subject := "Welcome to Televisit"
	body := fmt.Sprintf("Hi %s,\n\nYour %s account is ready. You can sign in and schedule your first visit at any time.", name, role)
	return n.send(ctx, email, subject, body)
}

// SendVisitConfirmation notifies a patient that their visit is confirmed
func (n *EmailNotifier) SendVisitConfirmation(ctx context.Context, email, name, visitID string) error {
	subject := "Your visit is confirmed"
	body := fmt.Sprintf("Hi %s,\n\nYour payment was received and your visit (%s) is confirmed. You are now in the waiting room.", name, visitID)
	return n.send(ctx, email, subject, body)
}

// SendVisitSummary sends a post-visit summary to a patient
func (n *EmailNotifier) SendVisitSummary(ctx context.Context, email, name, summary string) error {
	subject := "Your visit summary"
	body := fmt.Sprintf("Hi %s,\n\n%s", name, summary)
	return n.send(ctx, email, subject, body)
}

func (n *EmailNotifier) send(ctx context.Context, to, subject, body string) error {
	if n.config.APIKey == "" {
		n.logger.WithFields(map[string]interface{}{
			"to":      to,
			"subject": subject,
		}).Info("Email dispatch skipped, no provider configured")
		return nil
	}

	payload, err := json.Marshal(map[string]interface{}{
		"from":    fmt.Sprintf("%s <%s>", n.config.FromName, n.config.FromAddress),
		"to":      []string{to},
		"subject": subject,
		"text":    body,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal email payload: %w", err)
	}

	endpoint := strings.TrimRight(n.config.APIBaseURL, "/") + "/emails"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build email request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+n.config.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return types.NewUpstreamError("email_provider", types.ErrCodeUpstreamError,
			"email provider unreachable", true, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode >= 400 {
		return types.NewUpstreamError("email_provider", types.ErrCodeUpstreamError,
			fmt.Sprintf("email provider returned status %d", resp.StatusCode),
			resp.StatusCode >= 500, nil)
	}

	n.logger.WithField("to", to).Info("Email dispatched")
	return nil
}
