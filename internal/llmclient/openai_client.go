package llmclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared/constant"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autoapply-cli/api/schemas"
	"github.com/xkilldash9x/autoapply-cli/internal/config"
)

// OpenAIClient wraps the official SDK's chat completions endpoint.
type OpenAIClient struct {
	client *openai.Client
	logger *zap.Logger
	config config.LLMModelConfig
}

// NewOpenAIClient builds a client. Extra request options are appended after
// the ones derived from cfg.
func NewOpenAIClient(cfg config.LLMModelConfig, logger *zap.Logger, opts ...option.RequestOption) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("openai model is required")
	}

	base := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" {
		base = append(base, option.WithBaseURL(cfg.Endpoint))
	}
	if cfg.APITimeout > 0 {
		base = append(base, option.WithRequestTimeout(cfg.APITimeout))
	}
	client := openai.NewClient(append(base, opts...)...)

	return &OpenAIClient{
		client: &client,
		logger: logger.Named("llm_client.openai"),
		config: cfg,
	}, nil
}

// Generate runs one chat completion and returns the first choice's content.
// The SDK retries rate limits and server errors on its own.
func (c *OpenAIClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	params := c.buildParams(req)

	start := time.Now()
	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			c.logger.Error("OpenAI API returned error status", zap.Int("status", apiErr.StatusCode), zap.Error(err))
		}
		return "", fmt.Errorf("openai chat completion failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("openai API returned no choices")
	}

	choice := completion.Choices[0]
	if choice.FinishReason == "content_filter" {
		return "", fmt.Errorf("openai API blocked the request (reason: %s)", choice.FinishReason)
	}

	c.logger.Info("LLM generation complete.",
		zap.String("model", completion.Model),
		zap.Duration("duration", time.Since(start)),
		zap.Int64("prompt_tokens", completion.Usage.PromptTokens),
		zap.Int64("completion_tokens", completion.Usage.CompletionTokens),
		zap.Int64("total_tokens", completion.Usage.TotalTokens),
	)
	return choice.Message.Content, nil
}

// Close is a no-op.
func (c *OpenAIClient) Close() error { return nil }

func (c *OpenAIClient) buildParams(req schemas.GenerationRequest) openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}
	messages = append(messages, openai.UserMessage(req.UserPrompt))

	params := openai.ChatCompletionNewParams{
		Messages:    messages,
		Model:       openai.ChatModel(c.config.Model),
		Temperature: openai.Float(req.Options.Temperature),
	}

	topP := req.Options.TopP
	if topP == 0 {
		topP = float64(c.config.TopP)
	}
	if topP > 0 {
		params.TopP = openai.Float(topP)
	}
	if c.config.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(c.config.MaxTokens))
	}
	if req.Options.ForceJSONFormat {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{
				Type: constant.JSONObject("json_object"),
			},
		}
	}
	return params
}
