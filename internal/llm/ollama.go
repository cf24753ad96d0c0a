package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ppiankov/claimtree/internal/model"
)

// OllamaProvider implements the Provider interface for Ollama local models
type OllamaProvider struct {
	baseURL    string
	httpClient *http.Client
	config     Config
}

// Ollama API structures
type ollamaRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	System  string          `json:"system,omitempty"`
	Format  json.RawMessage `json:"format,omitempty"`
	Options ollamaOptions   `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"` // Max tokens
}

type ollamaResponse struct {
	Model     string `json:"model"`
	CreatedAt string `json:"created_at"`
	Response  string `json:"response"`
	Done      bool   `json:"done"`

	// Token counts (only present when done=true)
	PromptEvalCount int `json:"prompt_eval_count,omitempty"`
	EvalCount       int `json:"eval_count,omitempty"`
}

type ollamaError struct {
	Error string `json:"error"`
}

// NewOllamaProvider creates a new Ollama provider
func NewOllamaProvider(config Config) (*OllamaProvider, error) {
	if config.Model == "" {
		return nil, fmt.Errorf("ollama model must be specified (e.g., llama3.1:8b, mistral)")
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}

	return &OllamaProvider{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: config.httpClient(),
		config:     config,
	}, nil
}

// Name returns the provider name
func (p *OllamaProvider) Name() string {
	return "ollama"
}

// Model returns the configured model
func (p *OllamaProvider) Model() string {
	return p.config.Model
}

// Invoke calls /api/generate with the schema as the format constraint
func (p *OllamaProvider) Invoke(ctx context.Context, req Request) (*Response, error) {
	if req.Schema == nil {
		return nil, newProviderError(p.Name(), 0, fmt.Errorf("schema is required"))
	}

	format, err := json.Marshal(req.Schema)
	if err != nil {
		return nil, newProviderError(p.Name(), 0, fmt.Errorf("encode schema: %w", err))
	}

	apiReq := ollamaRequest{
		Model:  p.config.Model,
		Prompt: req.UserPrompt,
		Stream: false, // Get complete response at once
		System: req.SystemPrompt,
		Format: format,
		Options: ollamaOptions{
			Temperature: req.Temperature,
			NumPredict:  p.config.maxTokens(),
		},
	}

	resp, status, err := p.makeRequest(ctx, apiReq)
	if err != nil {
		return nil, newProviderError(p.Name(), status, err)
	}

	content, err := req.Schema.Parse(resp.Response)
	if err != nil {
		return nil, newProviderError(p.Name(), 0, err)
	}

	usage := model.Usage{
		PromptTokens:     resp.PromptEvalCount,
		CompletionTokens: resp.EvalCount,
	}
	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens

	modelName := resp.Model
	if modelName == "" {
		modelName = p.config.Model
	}

	return &Response{
		Content: content,
		Usage:   usage,
		Model:   modelName,
	}, nil
}

// makeRequest makes an HTTP request to the Ollama API
func (p *OllamaProvider) makeRequest(ctx context.Context, apiReq ollamaRequest) (*ollamaResponse, int, error) {
	// Serialize request
	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, 0, fmt.Errorf("marshal request: %w", err)
	}

	// Create HTTP request
	url := fmt.Sprintf("%s/api/generate", p.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}

	// Set headers
	httpReq.Header.Set("Content-Type", "application/json")

	// Make request
	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, 0, fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	// Read response body
	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, httpResp.StatusCode, fmt.Errorf("read response: %w", err)
	}

	// Check for errors
	if httpResp.StatusCode != http.StatusOK {
		var apiErr ollamaError
		if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Error != "" {
			return nil, httpResp.StatusCode, fmt.Errorf("%s", apiErr.Error)
		}
		return nil, httpResp.StatusCode, fmt.Errorf("%s", strings.TrimSpace(string(respBody)))
	}

	// Parse response
	var resp ollamaResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, httpResp.StatusCode, fmt.Errorf("unmarshal response: %w", err)
	}

	return &resp, httpResp.StatusCode, nil
}
