package llmclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	json "github.com/json-iterator/go"
	"github.com/openai/openai-go/v3/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/autoapply-cli/internal/config"
)

const chatCompletionBody = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "gpt-4o-mini",
  "choices": [{
    "index": 0,
    "finish_reason": "%s",
    "message": {"role": "assistant", "content": %q}
  }],
  "usage": {"prompt_tokens": 12, "completion_tokens": 8, "total_tokens": 20}
}`

func setupOpenAIClient(t *testing.T, handler http.HandlerFunc) (*OpenAIClient, *observer.ObservedLogs) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	core, logs := observer.New(zap.InfoLevel)
	cfg := validModelConfig(config.ProviderOpenAI)
	cfg.Model = "gpt-4o-mini"
	cfg.Endpoint = server.URL + "/"
	cfg.MaxTokens = 512

	client, err := NewOpenAIClient(cfg, zap.New(core), option.WithMaxRetries(0))
	require.NoError(t, err)
	return client, logs
}

func TestOpenAIGenerate_Success(t *testing.T) {
	client, logs := setupOpenAIClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-api-key", r.Header.Get("Authorization"))

		raw, _ := io.ReadAll(r.Body)
		var body map[string]interface{}
		if assert.NoError(t, json.Unmarshal(raw, &body)) {
			assert.Equal(t, "gpt-4o-mini", body["model"])
			assert.InDelta(t, 0.7, body["temperature"], 1e-6)
			assert.InDelta(t, 0.9, body["top_p"], 1e-6)
			assert.EqualValues(t, 512, body["max_tokens"])
			assert.Equal(t, map[string]interface{}{"type": "json_object"}, body["response_format"])

			messages, _ := body["messages"].([]interface{})
			require.Len(t, messages, 2)
			assert.Equal(t, "system", messages[0].(map[string]interface{})["role"])
			assert.Equal(t, "user", messages[1].(map[string]interface{})["role"])
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, sprintfCompletion("stop", `{"mapped_fields":{"q1":"Ada"}}`))
	})

	req := testRequest()
	req.Options.ForceJSONFormat = true
	got, err := client.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, `{"mapped_fields":{"q1":"Ada"}}`, got)

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, int64(20), logs.All()[0].ContextMap()["total_tokens"])
	assert.NoError(t, client.Close())
}

func TestOpenAIGenerate_PlainText(t *testing.T) {
	client, _ := setupOpenAIClient(t, func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]interface{}
		if assert.NoError(t, json.Unmarshal(raw, &body)) {
			_, hasFormat := body["response_format"]
			assert.False(t, hasFormat)
			messages, _ := body["messages"].([]interface{})
			assert.Len(t, messages, 1, "no system message when the prompt is empty")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, sprintfCompletion("stop", "hello"))
	})

	req := testRequest()
	req.SystemPrompt = ""
	got, err := client.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "hello", got)
}

func TestOpenAIGenerate_Failures(t *testing.T) {
	t.Run("api error", func(t *testing.T) {
		var calls int32
		client, logs := setupOpenAIClient(t, func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
		})

		_, err := client.Generate(context.Background(), testRequest())
		assert.ErrorContains(t, err, "openai chat completion failed")
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
		errs := logs.FilterLevelExact(zap.ErrorLevel)
		require.Equal(t, 1, errs.Len())
		assert.Equal(t, int64(http.StatusUnauthorized), errs.All()[0].ContextMap()["status"])
	})

	t.Run("content filter", func(t *testing.T) {
		client, _ := setupOpenAIClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, sprintfCompletion("content_filter", ""))
		})
		_, err := client.Generate(context.Background(), testRequest())
		assert.ErrorContains(t, err, "blocked the request")
	})

	t.Run("no choices", func(t *testing.T) {
		client, _ := setupOpenAIClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"id":"x","object":"chat.completion","model":"gpt-4o-mini","choices":[]}`)
		})
		_, err := client.Generate(context.Background(), testRequest())
		assert.ErrorContains(t, err, "openai API returned no choices")
	})
}

func TestNewOpenAIClient_Validation(t *testing.T) {
	cfg := validModelConfig(config.ProviderOpenAI)
	cfg.APIKey = ""
	_, err := NewOpenAIClient(cfg, zap.NewNop())
	assert.ErrorContains(t, err, "openai API key is required")
}

func sprintfCompletion(finishReason, content string) string {
	return fmt.Sprintf(chatCompletionBody, finishReason, content)
}
