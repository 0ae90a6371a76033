package aidoc

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/medorbit/televisit/pkg/config"
	"github.com/medorbit/televisit/pkg/logger"
	"github.com/medorbit/televisit/pkg/types"
)

// inferenceClient talks to a chat-completions style inference endpoint
type inferenceClient struct {
	endpoint   string
	apiKey     string
	model      string
	imageModel string
	httpClient *http.Client
	logger     *logger.Logger
}

func newInferenceClient(cfg *config.AIConfig, log *logger.Logger) *inferenceClient {
	timeout := time.Duration(cfg.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &inferenceClient{
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		imageModel: cfg.ImageModel,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: log,
	}
}

// enabled reports whether real inference calls can be made
func (c *inferenceClient) enabled() bool {
	return c.apiKey != ""
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// complete sends a system/user prompt pair and returns the model's text reply
func (c *inferenceClient) complete(ctx context.Context, systemPrompt, userPrompt string, jsonOutput bool) (string, error) {
	req := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: 0.2,
	}
	if jsonOutput {
		req.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return "", types.NewInternalError(types.ErrCodeInternalError, "failed to marshal inference request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", types.NewInternalError(types.ErrCodeInternalError, "failed to build inference request", err)
	}

	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", types.NewUpstreamError("inference_provider", types.ErrCodeUpstreamError,
			"inference provider unreachable", true, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", types.NewUpstreamError("inference_provider", types.ErrCodeUpstreamError,
			"failed to read inference response", true, err)
	}

	if resp.StatusCode >= 400 {
		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		message := "inference provider request failed"

		var parsed chatResponse
		if json.Unmarshal(body, &parsed) == nil && parsed.Error != nil {
			message = parsed.Error.Message
		}

		c.logger.WithField("status_code", resp.StatusCode).Warn("Inference provider returned an error")
		return "", types.NewUpstreamError("inference_provider", types.ErrCodeUpstreamError, message, retryable, nil)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", types.NewUpstreamError("inference_provider", types.ErrCodeUpstreamError,
			"malformed inference response", false, err)
	}

	if len(parsed.Choices) == 0 {
		return "", types.NewUpstreamError("inference_provider", types.ErrCodeEmptyCompletion,
			"inference provider returned no choices", false, nil)
	}

	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

type imageGenRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	N      int    `json:"n"`
	Size   string `json:"size"`
}

type imageGenResponse struct {
	Data []struct {
		URL string `json:"url"`
	} `json:"data"`
}

// generateImage requests a single image and returns its reference URL
func (c *inferenceClient) generateImage(ctx context.Context, prompt string) (string, error) {
	endpoint := strings.Replace(c.endpoint, "/chat/completions", "/images/generations", 1)

	payload, err := json.Marshal(imageGenRequest{
		Model:  c.imageModel,
		Prompt: prompt,
		N:      1,
		Size:   "1024x1024",
	})
	if err != nil {
		return "", types.NewInternalError(types.ErrCodeInternalError, "failed to marshal image request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", types.NewInternalError(types.ErrCodeInternalError, "failed to build image request", err)
	}

	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", types.NewUpstreamError("inference_provider", types.ErrCodeUpstreamError,
			"inference provider unreachable", true, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", types.NewUpstreamError("inference_provider", types.ErrCodeUpstreamError,
			"failed to read image response", true, err)
	}

	if resp.StatusCode >= 400 {
		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return "", types.NewUpstreamError("inference_provider", types.ErrCodeUpstreamError,
			"image generation failed", retryable, nil)
	}

	var parsed imageGenResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", types.NewUpstreamError("inference_provider", types.ErrCodeUpstreamError,
			"malformed image response", false, err)
	}

	if len(parsed.Data) == 0 || parsed.Data[0].URL == "" {
		return "", types.NewUpstreamError("inference_provider", types.ErrCodeEmptyCompletion,
			"image generation returned no data", false, nil)
	}

	return parsed.Data[0].URL, nil
}
