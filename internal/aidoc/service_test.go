package aidoc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/medorbit/televisit/pkg/config"
	"github.com/medorbit/televisit/pkg/logger"
	"github.com/medorbit/televisit/pkg/types"
)

func aiConfig(endpoint, apiKey string) *config.AIConfig {
	return &config.AIConfig{
		Endpoint:       endpoint,
		APIKey:         apiKey,
		Model:          "test-model",
		ImageModel:     "test-image-model",
		RequestTimeout: 5,
	}
}

func completionServer(t *testing.T, content string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": content}},
			},
		})
	}))
}

func TestGenerateSOAPNote(t *testing.T) {
	server := completionServer(t, "S: headache\nO: afebrile\nA: tension headache\nP: hydration, rest")
	defer server.Close()

	service := NewService(aiConfig(server.URL, "test-key"), logger.New("error"), nil)

	result, err := service.GenerateSOAPNote(context.Background(), &types.SOAPNoteRequest{
		PatientHistory: "Patient reports a three day headache.",
	})

	assert.NoError(t, err)
	assert.Contains(t, result.SOAPNote, "A: tension headache")
}

func TestGenerateSOAPNoteEmptyCompletion(t *testing.T) {
	server := completionServer(t, "")
	defer server.Close()

	service := NewService(aiConfig(server.URL, "test-key"), logger.New("error"), nil)

	_, err := service.GenerateSOAPNote(context.Background(), &types.SOAPNoteRequest{
		PatientHistory: "Patient reports a three day headache.",
	})

	assert.Error(t, err)
	svcErr := types.AsServiceError(err)
	assert.Equal(t, types.ErrorTypeUpstream, svcErr.Type)
	assert.Equal(t, types.ErrCodeEmptyCompletion, svcErr.Code)
	assert.False(t, svcErr.Retryable)
}

func TestGenerateSOAPNoteValidation(t *testing.T) {
	service := NewService(aiConfig("http://unused", "test-key"), logger.New("error"), nil)

	_, err := service.GenerateSOAPNote(context.Background(), &types.SOAPNoteRequest{PatientHistory: "   "})

	assert.Error(t, err)
	svcErr := types.AsServiceError(err)
	assert.Equal(t, types.ErrorTypeValidation, svcErr.Type)
}

func TestGenerateSOAPNoteWithoutCredentials(t *testing.T) {
	service := NewService(aiConfig("http://unused", ""), logger.New("error"), nil)

	result, err := service.GenerateSOAPNote(context.Background(), &types.SOAPNoteRequest{
		PatientHistory: "Patient reports a cough.",
	})

	assert.NoError(t, err)
	assert.NotEmpty(t, result.SOAPNote)
	assert.Contains(t, result.SOAPNote, "Patient reports a cough.")
}

func TestGenerateVisitSummary(t *testing.T) {
	server := completionServer(t, `{"summary": "You were seen for a headache. Rest and hydrate.", "action_items": ["Drink water", "Return if symptoms worsen"]}`)
	defer server.Close()

	service := NewService(aiConfig(server.URL, "test-key"), logger.New("error"), nil)

	result, err := service.GenerateVisitSummary(context.Background(), &types.VisitSummaryRequest{
		SOAPNote:    "S: headache...",
		PatientName: "Alice",
	})

	assert.NoError(t, err)
	assert.NotEmpty(t, result.Summary)
	assert.Len(t, result.ActionItems, 2)
}

func TestGenerateVisitSummaryFencedOutput(t *testing.T) {
	server := completionServer(t, "```json\n{\"summary\": \"All clear.\", \"action_items\": []}\n```")
	defer server.Close()

	service := NewService(aiConfig(server.URL, "test-key"), logger.New("error"), nil)

	result, err := service.GenerateVisitSummary(context.Background(), &types.VisitSummaryRequest{
		SOAPNote: "S: checkup",
	})

	assert.NoError(t, err)
	assert.Equal(t, "All clear.", result.Summary)
	assert.NotNil(t, result.ActionItems)
	assert.Empty(t, result.ActionItems)
}

func TestGenerateVisitSummaryMissingActionItems(t *testing.T) {
	server := completionServer(t, `{"summary": "Visit complete."}`)
	defer server.Close()

	service := NewService(aiConfig(server.URL, "test-key"), logger.New("error"), nil)

	result, err := service.GenerateVisitSummary(context.Background(), &types.VisitSummaryRequest{
		SOAPNote: "S: checkup",
	})

	assert.NoError(t, err)
	// Action items is always a slice even when the model omits the field
	assert.NotNil(t, result.ActionItems)
	assert.Empty(t, result.ActionItems)
}

func TestGenerateVisitSummaryEmptySummary(t *testing.T) {
	server := completionServer(t, `{"summary": "", "action_items": ["x"]}`)
	defer server.Close()

	service := NewService(aiConfig(server.URL, "test-key"), logger.New("error"), nil)

	_, err := service.GenerateVisitSummary(context.Background(), &types.VisitSummaryRequest{
		SOAPNote: "S: checkup",
	})

	assert.Error(t, err)
	svcErr := types.AsServiceError(err)
	assert.Equal(t, types.ErrCodeEmptyCompletion, svcErr.Code)
}

func TestGenerateVisitSummaryWithoutCredentials(t *testing.T) {
	service := NewService(aiConfig("http://unused", ""), logger.New("error"), nil)

	result, err := service.GenerateVisitSummary(context.Background(), &types.VisitSummaryRequest{
		SOAPNote:    "S: checkup",
		PatientName: "Alice",
	})

	assert.NoError(t, err)
	assert.Contains(t, result.Summary, "Alice")
	assert.NotNil(t, result.ActionItems)
}

func TestGenerateCopilotReply(t *testing.T) {
	server := completionServer(t, "Consider an in-person exam for persistent symptoms.")
	defer server.Close()

	service := NewService(aiConfig(server.URL, "test-key"), logger.New("error"), nil)

	result, err := service.GenerateCopilotReply(context.Background(), &types.CopilotRequest{
		Prompt: "When should a cough be escalated?",
	})

	assert.NoError(t, err)
	assert.NotEmpty(t, result.Text)
}

func TestUpstreamFailureClassification(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]string{"message": "rate limited"},
		})
	}))
	defer server.Close()

	service := NewService(aiConfig(server.URL, "test-key"), logger.New("error"), nil)

	_, err := service.GenerateCopilotReply(context.Background(), &types.CopilotRequest{Prompt: "hello"})

	assert.Error(t, err)
	svcErr := types.AsServiceError(err)
	assert.Equal(t, types.ErrorTypeUpstream, svcErr.Type)
	assert.True(t, svcErr.Retryable)
}

func TestGenerateImage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]string{{"url": "https://images.example.com/abc.png"}},
		})
	}))
	defer server.Close()

	service := NewService(aiConfig(server.URL+"/chat/completions", "test-key"), logger.New("error"), nil)

	result, err := service.GenerateImage(context.Background(), &types.ImageRequest{Prompt: "anatomy diagram"})

	assert.NoError(t, err)
	assert.Equal(t, "https://images.example.com/abc.png", result.ImageRef)
}

func TestParseSummaryMalformed(t *testing.T) {
	_, err := parseSummary("not json at all")

	assert.Error(t, err)
	svcErr := types.AsServiceError(err)
	assert.Equal(t, types.ErrorTypeUpstream, svcErr.Type)
}
