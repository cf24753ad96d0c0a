package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func anthropicServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("Expected path /v1/messages, got %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("Expected x-api-key header test-key, got %s", r.Header.Get("x-api-key"))
		}

		var req map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}
		if status == http.StatusOK {
			choice, _ := req["tool_choice"].(map[string]interface{})
			if choice["type"] != "tool" || choice["name"] != "answer" {
				t.Errorf("Expected forced tool choice, got %v", req["tool_choice"])
			}
			tools, _ := req["tools"].([]interface{})
			if len(tools) != 1 {
				t.Errorf("Expected one tool, got %d", len(tools))
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
}

func newTestAnthropic(t *testing.T, url string) *AnthropicProvider {
	t.Helper()
	provider, err := NewAnthropicProvider(Config{APIKey: "test-key", BaseURL: url, Model: "claude-test", Timeout: 5})
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}
	return provider
}

func TestAnthropicProvider_Invoke_ToolUse(t *testing.T) {
	server := anthropicServer(t, http.StatusOK, `{
		"id": "msg_1",
		"type": "message",
		"role": "assistant",
		"model": "claude-test",
		"content": [
			{"type": "tool_use", "id": "toolu_1", "name": "answer", "input": {"label": "no", "items": ["x"]}}
		],
		"stop_reason": "tool_use",
		"usage": {"input_tokens": 30, "output_tokens": 12}
	}`)
	defer server.Close()

	resp, err := newTestAnthropic(t, server.URL).Invoke(context.Background(), Request{
		SystemPrompt: "system",
		UserPrompt:   "user",
		Schema:       newTestSchema(t),
	})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}

	if string(resp.Content) != `{"items":["x"],"label":"no"}` {
		t.Errorf("Unexpected content: %s", resp.Content)
	}
	if resp.Usage.PromptTokens != 30 || resp.Usage.CompletionTokens != 12 || resp.Usage.TotalTokens != 42 {
		t.Errorf("Unexpected usage: %+v", resp.Usage)
	}
}

func TestAnthropicProvider_Invoke_TextFallback(t *testing.T) {
	server := anthropicServer(t, http.StatusOK, `{
		"id": "msg_2",
		"type": "message",
		"role": "assistant",
		"model": "claude-test",
		"content": [
			{"type": "text", "text": "`+"```json\\n{\\\"label\\\": \\\"yes\\\", \\\"items\\\": []}\\n```"+`"}
		],
		"stop_reason": "end_turn",
		"usage": {"input_tokens": 5, "output_tokens": 5}
	}`)
	defer server.Close()

	resp, err := newTestAnthropic(t, server.URL).Invoke(context.Background(), Request{UserPrompt: "user", Schema: newTestSchema(t)})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if string(resp.Content) != `{"items":[],"label":"yes"}` {
		t.Errorf("Unexpected content: %s", resp.Content)
	}
}

func TestAnthropicProvider_Invoke_InvalidToolInput(t *testing.T) {
	server := anthropicServer(t, http.StatusOK, `{
		"id": "msg_3",
		"type": "message",
		"role": "assistant",
		"model": "claude-test",
		"content": [
			{"type": "tool_use", "id": "toolu_1", "name": "answer", "input": {"label": "unsure"}}
		],
		"stop_reason": "tool_use",
		"usage": {"input_tokens": 1, "output_tokens": 1}
	}`)
	defer server.Close()

	_, err := newTestAnthropic(t, server.URL).Invoke(context.Background(), Request{UserPrompt: "user", Schema: newTestSchema(t)})
	if !errors.Is(err, ErrMalformedOutput) {
		t.Fatalf("Expected ErrMalformedOutput, got %v", err)
	}
}

func TestAnthropicProvider_Invoke_RateLimit(t *testing.T) {
	server := anthropicServer(t, http.StatusTooManyRequests,
		`{"type": "error", "error": {"type": "rate_limit_error", "message": "slow down"}}`)
	defer server.Close()

	_, err := newTestAnthropic(t, server.URL).Invoke(context.Background(), Request{UserPrompt: "user", Schema: newTestSchema(t)})
	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("Expected *ProviderError, got %v", err)
	}
	if pe.StatusCode != http.StatusTooManyRequests || !pe.RateLimited {
		t.Errorf("Expected rate-limited 429, got %+v", pe)
	}
}

func TestNewAnthropicProvider_NoAPIKey(t *testing.T) {
	if _, err := NewAnthropicProvider(Config{}); err == nil {
		t.Fatal("Expected error for missing API key")
	}
}
