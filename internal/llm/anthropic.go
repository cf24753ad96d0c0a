package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ppiankov/claimtree/internal/model"
)

const defaultAnthropicModel = "claude-3-5-haiku-latest"

// AnthropicProvider implements the Provider interface for Anthropic Claude
// models. Structured output is obtained by forcing a single tool call whose
// input schema is the request schema.
type AnthropicProvider struct {
	client anthropic.Client
	config Config
	model  string
}

// NewAnthropicProvider creates a new Anthropic provider
func NewAnthropicProvider(config Config) (*AnthropicProvider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithHTTPClient(config.httpClient()),
		// Retries are owned by the batch invoker
		option.WithMaxRetries(0),
	}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(config.BaseURL, "/")+"/"))
	}

	modelName := config.Model
	if modelName == "" {
		modelName = defaultAnthropicModel
	}

	return &AnthropicProvider{
		client: anthropic.NewClient(opts...),
		config: config,
		model:  modelName,
	}, nil
}

// Name returns the provider name
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// Model returns the configured model
func (p *AnthropicProvider) Model() string {
	return p.model
}

// Invoke calls the Messages API with a forced tool call
func (p *AnthropicProvider) Invoke(ctx context.Context, req Request) (*Response, error) {
	if req.Schema == nil {
		return nil, newProviderError(p.Name(), 0, fmt.Errorf("schema is required"))
	}

	doc, err := req.Schema.Document()
	if err != nil {
		return nil, newProviderError(p.Name(), 0, fmt.Errorf("encode schema: %w", err))
	}
	tool := anthropic.ToolParam{
		Name:        req.Schema.Name,
		Description: anthropic.String(req.Schema.Description),
		InputSchema: anthropic.ToolInputSchemaParam{
			Properties: doc["properties"],
			Required:   requiredFields(doc),
		},
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: int64(p.config.maxTokens()),
		System: []anthropic.TextBlockParam{
			{Text: req.SystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.UserPrompt)),
		},
		Temperature: anthropic.Float(req.Temperature),
		Tools:       []anthropic.ToolUnionParam{{OfTool: &tool}},
		ToolChoice: anthropic.ToolChoiceUnionParam{
			OfTool: &anthropic.ToolChoiceToolParam{Name: req.Schema.Name},
		},
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, newProviderError(p.Name(), anthropicStatus(err), err)
	}

	var content []byte
	var text strings.Builder
	for _, block := range resp.Content {
		switch b := block.AsAny().(type) {
		case anthropic.ToolUseBlock:
			if b.Name == req.Schema.Name && content == nil {
				content = b.Input
			}
		case anthropic.TextBlock:
			text.WriteString(b.Text)
		}
	}

	var parsed []byte
	switch {
	case content != nil:
		parsed, err = req.Schema.Validate(content)
	case text.Len() > 0:
		// Some models answer in plain text despite the forced tool
		parsed, err = req.Schema.Parse(text.String())
	default:
		return nil, newProviderError(p.Name(), 0, ErrEmptyResponse)
	}
	if err != nil {
		return nil, newProviderError(p.Name(), 0, err)
	}

	usage := model.Usage{
		PromptTokens:     int(resp.Usage.InputTokens),
		CompletionTokens: int(resp.Usage.OutputTokens),
	}
	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens

	modelName := string(resp.Model)
	if modelName == "" {
		modelName = p.model
	}

	return &Response{
		Content: parsed,
		Usage:   usage,
		Model:   modelName,
	}, nil
}

func requiredFields(doc map[string]interface{}) []string {
	raw, _ := doc["required"].([]interface{})
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		if s, ok := r.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// anthropicStatus extracts the HTTP status from SDK errors
func anthropicStatus(err error) int {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
