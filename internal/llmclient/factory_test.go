package llmclient

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/autoapply-cli/internal/config"
)

func validModelConfig(provider config.LLMProvider) config.LLMModelConfig {
	return config.LLMModelConfig{
		Provider:    provider,
		APIKey:      "test-api-key",
		Model:       "test-model",
		APITimeout:  5 * time.Second,
		Temperature: 0.7,
		TopP:        0.9,
		TopK:        50,
	}
}

func TestNewClient_SingleModel(t *testing.T) {
	logger := zaptest.NewLogger(t)

	client, err := NewClient(config.AgentConfig{LLM: validModelConfig(config.ProviderGemini)}, logger)
	require.NoError(t, err)
	assert.IsType(t, &GeminiClient{}, client)

	client, err = NewClient(config.AgentConfig{LLM: validModelConfig(config.ProviderOpenAI)}, logger)
	require.NoError(t, err)
	assert.IsType(t, &OpenAIClient{}, client)
	assert.NoError(t, client.Close())
}

func TestNewClient_FastTierRouter(t *testing.T) {
	primary := validModelConfig(config.ProviderGemini)
	primary.Model = "gemini-pro"

	client, err := NewClient(config.AgentConfig{
		LLM:     primary,
		FastLLM: config.LLMModelConfig{Model: "gemini-flash"},
	}, zaptest.NewLogger(t))
	require.NoError(t, err)

	router, ok := client.(*LLMRouter)
	require.True(t, ok, "a fast model yields a router")

	fast, ok := router.fast.(*GeminiClient)
	require.True(t, ok)
	assert.Equal(t, "gemini-flash", fast.config.Model)
	assert.Equal(t, "test-api-key", fast.apiKey, "provider and key are inherited")
	assert.Equal(t, primary.APITimeout, fast.httpClient.Timeout)

	powerful, ok := router.primary.(*GeminiClient)
	require.True(t, ok)
	assert.Equal(t, "gemini-pro", powerful.config.Model)
	assert.NoError(t, client.Close())
}

func TestNewClient_MixedProviders(t *testing.T) {
	client, err := NewClient(config.AgentConfig{
		LLM:     validModelConfig(config.ProviderGemini),
		FastLLM: config.LLMModelConfig{Provider: config.ProviderOpenAI, Model: "gpt-4o-mini", APIKey: "sk-test"},
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	router := client.(*LLMRouter)
	assert.IsType(t, &OpenAIClient{}, router.fast)
	assert.IsType(t, &GeminiClient{}, router.primary)
}

func TestNewClient_Failures(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.AgentConfig
		wantErr string
	}{
		{
			name:    "unknown provider",
			cfg:     config.AgentConfig{LLM: validModelConfig("claude")},
			wantErr: "unknown or unsupported LLM provider configured: 'claude'",
		},
		{
			name: "missing gemini key",
			cfg: func() config.AgentConfig {
				c := validModelConfig(config.ProviderGemini)
				c.APIKey = ""
				return config.AgentConfig{LLM: c}
			}(),
			wantErr: "gemini API key is required",
		},
		{
			name: "missing openai model",
			cfg: func() config.AgentConfig {
				c := validModelConfig(config.ProviderOpenAI)
				c.Model = ""
				return config.AgentConfig{LLM: c}
			}(),
			wantErr: "openai model is required",
		},
		{
			name: "fast tier on another provider without a key",
			cfg: config.AgentConfig{
				LLM:     validModelConfig(config.ProviderGemini),
				FastLLM: config.LLMModelConfig{Provider: config.ProviderOpenAI, Model: "gpt-4o-mini"},
			},
			wantErr: "fast tier: openai API key is required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(tt.cfg, zaptest.NewLogger(t))
			assert.Nil(t, client)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
