package llm

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/sashabaranov/go-openai"

	"github.com/ppiankov/claimtree/internal/model"
)

// OpenAIProvider implements the Provider interface for OpenAI models
type OpenAIProvider struct {
	client *openai.Client
	config Config
	model  string
}

// NewOpenAIProvider creates a new OpenAI provider
func NewOpenAIProvider(config Config) (*OpenAIProvider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	clientConfig.HTTPClient = config.httpClient()

	modelName := config.Model
	if modelName == "" {
		modelName = openai.GPT4oMini
	}

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
		model:  modelName,
	}, nil
}

// Name returns the provider name
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Model returns the configured model
func (p *OpenAIProvider) Model() string {
	return p.model
}

// Invoke calls the Chat Completions API with a strict json_schema response format
func (p *OpenAIProvider) Invoke(ctx context.Context, req Request) (*Response, error) {
	if req.Schema == nil {
		return nil, newProviderError(p.Name(), 0, fmt.Errorf("schema is required"))
	}

	chatReq := openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: req.SystemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: req.UserPrompt,
			},
		},
		MaxTokens:   p.config.maxTokens(),
		Temperature: openAITemperature(req.Temperature),
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:        req.Schema.Name,
				Description: req.Schema.Description,
				Schema:      req.Schema,
				Strict:      true,
			},
		},
	}

	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, newProviderError(p.Name(), openAIStatus(err), err)
	}

	if len(resp.Choices) == 0 {
		return nil, newProviderError(p.Name(), 0, ErrEmptyResponse)
	}
	choice := resp.Choices[0]
	if choice.Message.Refusal != "" {
		return nil, newProviderError(p.Name(), 0, fmt.Errorf("%w: model refused: %s", ErrMalformedOutput, choice.Message.Refusal))
	}

	content, err := req.Schema.Parse(choice.Message.Content)
	if err != nil {
		return nil, newProviderError(p.Name(), 0, err)
	}

	modelName := resp.Model
	if modelName == "" {
		modelName = p.model
	}

	return &Response{
		Content: content,
		Usage: model.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		Model: modelName,
	}, nil
}

// openAIStatus extracts the HTTP status from go-openai errors
func openAIStatus(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

// openAITemperature keeps an explicit zero on the wire. go-openai omits a zero
// temperature and the API then samples at its default of 1.0.
func openAITemperature(t float64) float32 {
	if t == 0 {
		return math.SmallestNonzeroFloat32
	}
	return float32(t)
}
