package openai

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/baselhussain/ketoplan-backend/pkg/config"
	pkgerrors "github.com/baselhussain/ketoplan-backend/pkg/errors"
	"github.com/baselhussain/ketoplan-backend/pkg/logger"
)

var errAPIKeyRequired = errors.New("openai api key is required")

// Client wraps the OpenAI chat-completion API for structured JSON generation.
type Client struct {
	api    *goopenai.Client
	model  string
	logger *logger.Logger
}

// NewClient validates credentials and builds the wrapper.
func NewClient(cfg config.OpenAIConfig, logg *logger.Logger) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = goopenai.GPT4oMini
	}
	return &Client{
		api:    goopenai.NewClient(apiKey),
		model:  model,
		logger: logg,
	}, nil
}

// Model reports the configured generation model identifier.
func (c *Client) Model() string {
	if c == nil {
		return ""
	}
	return c.model
}

// GenerateJSONParams carry one structured-generation request.
type GenerateJSONParams struct {
	System string
	Prompt string
}

// GenerateJSON runs a single chat completion in JSON mode and returns the raw
// message content. Transport failures map to CodeDependency; an empty or
// non-JSON response maps to CodeValidation so callers can apply their bounded
// retry policy.
func (c *Client) GenerateJSON(ctx context.Context, params GenerateJSONParams) (json.RawMessage, error) {
	req := goopenai.ChatCompletionRequest{
		Model: c.model,
		ResponseFormat: &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: params.System},
			{Role: goopenai.ChatMessageRoleUser, Content: params.Prompt},
		},
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "openai chat completion")
	}
	if len(resp.Choices) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "openai returned no choices")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "openai returned empty content")
	}
	if !json.Valid([]byte(content)) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "openai returned malformed json")
	}

	if c.logger != nil {
		logCtx := c.logger.WithFields(ctx, map[string]any{
			"model":  c.model,
			"tokens": resp.Usage.TotalTokens,
		})
		c.logger.Info(logCtx, "openai completion finished")
	}
	return json.RawMessage(content), nil
}
