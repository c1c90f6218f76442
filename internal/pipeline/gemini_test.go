package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func testGemini(baseURL string) *GeminiConfig {
	return &GeminiConfig{
		APIKey:  "test-key",
		Model:   "gemini-2.5-flash",
		BaseURL: baseURL,
		Timeout: 5 * time.Second,
	}
}

func TestGeminiGenerator_Generate_Success(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var (
		gotPath string
		gotKey  string
		gotBody map[string]any
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"[{\"headline\":\"h\","},{"text":"\"summary\":\"s\",\"link\":\"l\",\"hashtags\":[]}]"}]},"finishReason":"STOP"}]}`))
	}))
	defer server.Close()

	gen := NewGeminiGenerator(testGemini(server.URL), logger)
	text, err := gen.Generate(context.Background(), "find AI news")

	require.NoError(t, err)
	assert.Equal(t, `[{"headline":"h","summary":"s","link":"l","hashtags":[]}]`, text)
	assert.True(t, strings.HasSuffix(gotPath, "/models/gemini-2.5-flash:generateContent"), gotPath)
	assert.Equal(t, "test-key", gotKey)

	genCfg, ok := gotBody["generationConfig"].(map[string]any)
	require.True(t, ok, "generationConfig missing: %v", gotBody)
	assert.Equal(t, "application/json", genCfg["responseMimeType"])

	safety, ok := gotBody["safetySettings"].([]any)
	require.True(t, ok, "safetySettings missing: %v", gotBody)
	assert.Len(t, safety, 4)
	for _, s := range safety {
		assert.Equal(t, "BLOCK_MEDIUM_AND_ABOVE", s.(map[string]any)["threshold"])
	}
}

func TestGeminiGenerator_Generate_MissingKey(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	cfg := testGemini(server.URL)
	cfg.APIKey = ""

	_, err := NewGeminiGenerator(cfg, logger).Generate(context.Background(), "prompt")

	assert.ErrorIs(t, err, ErrConfiguration)
	assert.False(t, called)
}

func TestGeminiGenerator_Generate_APIError(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"API key not valid","status":"INVALID_ARGUMENT"}}`))
	}))
	defer server.Close()

	_, err := NewGeminiGenerator(testGemini(server.URL), logger).Generate(context.Background(), "prompt")

	require.ErrorIs(t, err, ErrTransport)
	assert.Contains(t, err.Error(), "API key not valid")
}

func TestGeminiGenerator_Generate_PromptBlocked(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"promptFeedback":{"blockReason":"SAFETY"}}`))
	}))
	defer server.Close()

	_, err := NewGeminiGenerator(testGemini(server.URL), logger).Generate(context.Background(), "prompt")

	require.ErrorIs(t, err, ErrResponseShape)
	assert.Contains(t, err.Error(), "SAFETY")
}

func TestTransportError(t *testing.T) {
	err := transportError(fmt.Errorf("generate: %w", genai.APIError{Code: 503, Status: "UNAVAILABLE", Message: "model overloaded"}))

	require.ErrorIs(t, err, ErrTransport)
	assert.Equal(t, "transport error: Gemini API error 503 UNAVAILABLE: model overloaded", err.Error())

	err = transportError(errors.New("dial tcp: connection refused"))
	require.ErrorIs(t, err, ErrTransport)
	assert.Contains(t, err.Error(), "Gemini request failed: dial tcp")
}
