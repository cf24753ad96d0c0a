package llm

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/jsonschema-go/jsonschema"
)

// Schema is a named JSON Schema used both to constrain provider output and
// to validate what comes back. Build one per request shape; schemas that
// depend on runtime data (taxonomy enums) are built per run.
type Schema struct {
	Name        string
	Description string

	root     *jsonschema.Schema
	resolved *jsonschema.Resolved
}

// NewSchema resolves root for validation
func NewSchema(name, description string, root *jsonschema.Schema) (*Schema, error) {
	if name == "" {
		return nil, fmt.Errorf("schema name is required")
	}
	if root == nil {
		return nil, fmt.Errorf("schema %s: root is nil", name)
	}
	resolved, err := root.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("schema %s: %w", name, err)
	}
	return &Schema{Name: name, Description: description, root: root, resolved: resolved}, nil
}

// MarshalJSON emits the JSON Schema document
func (s *Schema) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.root)
}

// Document returns the schema as a generic map, for SDKs that take one
func (s *Schema) Document() (map[string]interface{}, error) {
	data, err := json.Marshal(s.root)
	if err != nil {
		return nil, err
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Parse extracts a JSON document from model text and validates it. The
// returned document is compact and safe to cache.
func (s *Schema) Parse(text string) (json.RawMessage, error) {
	raw, ok := extractJSON(text)
	if !ok {
		return nil, fmt.Errorf("%w: %s: no JSON document found", ErrMalformedOutput, s.Name)
	}
	return s.Validate(raw)
}

// Validate checks an already extracted document against the schema
func (s *Schema) Validate(raw json.RawMessage) (json.RawMessage, error) {
	var instance interface{}
	if err := json.Unmarshal(raw, &instance); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedOutput, s.Name, err)
	}
	if err := s.resolved.Validate(instance); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedOutput, s.Name, err)
	}
	compact, err := json.Marshal(instance)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedOutput, s.Name, err)
	}
	return compact, nil
}

// Decode validates raw and unmarshals it into v
func (s *Schema) Decode(raw json.RawMessage, v interface{}) error {
	valid, err := s.Validate(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(valid, v)
}

// Schema construction helpers. Every object is closed and lists all of its
// properties as required, which is what strict structured-output modes expect.

// Object builds a closed object schema with all properties required
func Object(props map[string]*jsonschema.Schema, order ...string) *jsonschema.Schema {
	required := order
	if len(required) == 0 {
		for name := range props {
			required = append(required, name)
		}
		sort.Strings(required)
	}
	return &jsonschema.Schema{
		Type:                 "object",
		Properties:           props,
		Required:             required,
		AdditionalProperties: &jsonschema.Schema{Not: &jsonschema.Schema{}},
	}
}

// ArrayOf builds an array schema
func ArrayOf(items *jsonschema.Schema) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "array", Items: items}
}

// String builds a string schema with a description
func String(description string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "string", Description: description}
}

// Enum builds a string schema restricted to values
func Enum(description string, values []string) *jsonschema.Schema {
	enum := make([]any, len(values))
	for i, v := range values {
		enum[i] = v
	}
	return &jsonschema.Schema{Type: "string", Description: description, Enum: enum}
}
