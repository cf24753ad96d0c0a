package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ppiankov/claimtree/internal/model"
)

// Provider defines the interface for LLM providers
type Provider interface {
	// Name returns the provider name
	Name() string

	// Model returns the model used for requests
	Model() string

	// Invoke sends one system/user prompt pair and returns structured output
	// that has already been checked against req.Schema. Failures are
	// *ProviderError.
	Invoke(ctx context.Context, req Request) (*Response, error)
}

// Request is a single structured-output call
type Request struct {
	SystemPrompt string
	UserPrompt   string

	// Schema constrains and validates the output. Required.
	Schema *Schema

	Temperature float64
}

// Response is the validated output of one call
type Response struct {
	// Content is the JSON document produced by the model
	Content json.RawMessage

	Usage model.Usage

	// Model is the model that generated the response
	Model string
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "openai", "anthropic", "ollama"
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for OpenAI/Anthropic
	APIKey string

	// BaseURL for custom endpoints (e.g., Ollama)
	BaseURL string

	// Timeout for API requests
	Timeout int // seconds

	// MaxTokens for response generation
	MaxTokens int

	// Proxy settings
	HTTPProxy  string
	HTTPSProxy string
}

func (c Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.Timeout) * time.Second
}

func (c Config) maxTokens() int {
	if c.MaxTokens <= 0 {
		return 4096
	}
	return c.MaxTokens
}

// httpClient builds the transport shared by all providers
func (c Config) httpClient() *http.Client {
	return &http.Client{
		Timeout: c.timeout(),
		Transport: &http.Transport{
			Proxy: newProxyFunc(c.HTTPProxy, c.HTTPSProxy),
		},
	}
}

// newProxyFunc falls back to environment variables when no proxy is set
func newProxyFunc(httpProxy, httpsProxy string) func(*http.Request) (*url.URL, error) {
	if httpProxy == "" && httpsProxy == "" {
		return http.ProxyFromEnvironment
	}

	return func(req *http.Request) (*url.URL, error) {
		if req.URL.Scheme == "https" && httpsProxy != "" {
			return url.Parse(httpsProxy)
		}
		if httpProxy != "" {
			return url.Parse(httpProxy)
		}
		return http.ProxyFromEnvironment(req)
	}
}

// apiKeyFromEnv returns the conventional API key variable for a provider
func apiKeyFromEnv(provider string) string {
	switch strings.ToLower(provider) {
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "anthropic", "claude":
		return os.Getenv("ANTHROPIC_API_KEY")
	}
	return ""
}
