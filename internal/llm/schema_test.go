package llm

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"
)

// newTestSchema is shared by the provider tests
func newTestSchema(t *testing.T) *Schema {
	t.Helper()
	s, err := NewSchema("answer", "A labelled answer", Object(map[string]*jsonschema.Schema{
		"label": Enum("Verdict", []string{"yes", "no"}),
		"items": ArrayOf(String("Supporting item")),
	}))
	if err != nil {
		t.Fatalf("NewSchema failed: %v", err)
	}
	return s
}

func TestSchema_Validate(t *testing.T) {
	s := newTestSchema(t)

	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid", `{"label":"yes","items":["a","b"]}`, false},
		{"empty array", `{"label":"no","items":[]}`, false},
		{"enum violation", `{"label":"maybe","items":[]}`, true},
		{"missing property", `{"label":"yes"}`, true},
		{"extra property", `{"label":"yes","items":[],"note":"x"}`, true},
		{"wrong item type", `{"label":"yes","items":[1]}`, true},
		{"not an object", `["yes"]`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Validate(json.RawMessage(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate(%s) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrMalformedOutput) {
				t.Errorf("Expected ErrMalformedOutput, got %v", err)
			}
		})
	}
}

func TestSchema_ParseLenient(t *testing.T) {
	s := newTestSchema(t)

	tests := []struct {
		name  string
		input string
	}{
		{"plain", `{"label":"yes","items":[]}`},
		{"code fence", "```json\n{\"label\":\"yes\",\"items\":[]}\n```"},
		{"surrounding prose", "Here you go: {\"label\":\"yes\",\"items\":[]} hope that helps"},
		{"trailing comma", `{"label":"yes","items":["a",],}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Parse(tt.input)
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			var v struct {
				Label string `json:"label"`
			}
			if err := json.Unmarshal(got, &v); err != nil || v.Label != "yes" {
				t.Errorf("Unexpected parse result %s (err %v)", got, err)
			}
		})
	}

	if _, err := s.Parse("no json here"); !errors.Is(err, ErrMalformedOutput) {
		t.Errorf("Expected ErrMalformedOutput, got %v", err)
	}
}

func TestSchema_MarshalIsClosedObject(t *testing.T) {
	s := newTestSchema(t)
	doc, err := s.Document()
	if err != nil {
		t.Fatalf("Document failed: %v", err)
	}
	if doc["type"] != "object" {
		t.Errorf("Expected object type, got %v", doc["type"])
	}
	if doc["additionalProperties"] != false {
		t.Errorf("Expected additionalProperties false, got %v", doc["additionalProperties"])
	}
	required := requiredFields(doc)
	if len(required) != 2 || required[0] != "items" || required[1] != "label" {
		t.Errorf("Expected sorted required fields, got %v", required)
	}
}

func TestNewSchema_Errors(t *testing.T) {
	if _, err := NewSchema("", "", Object(nil)); err == nil {
		t.Error("Expected error for empty name")
	}
	if _, err := NewSchema("x", "", nil); err == nil {
		t.Error("Expected error for nil root")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limited status", newProviderError("openai", 429, errors.New("slow down")), true},
		{"server error", newProviderError("openai", 503, errors.New("unavailable")), true},
		{"bad request", newProviderError("openai", 400, errors.New("bad request")), false},
		{"malformed output", newProviderError("openai", 0, ErrMalformedOutput), false},
		{"rate limit text", newProviderError("ollama", 0, errors.New("API rate limit exceeded")), true},
		{"plain error with 429", errors.New("HTTP 429: quota limit"), true},
		{"auth error", errors.New("HTTP 401: unauthorized"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestProviderError_Unwrap(t *testing.T) {
	err := newProviderError("anthropic", 0, ErrEmptyResponse)
	if !errors.Is(err, ErrEmptyResponse) {
		t.Error("Expected ProviderError to unwrap to ErrEmptyResponse")
	}
	var pe *ProviderError
	if !errors.As(error(err), &pe) || pe.Provider != "anthropic" {
		t.Errorf("Expected *ProviderError for anthropic, got %v", err)
	}
}
