package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ppiankov/claimtree/internal/model"
)

// KeyPrefix namespaces every LLM response key
const KeyPrefix = "llm_cache"

// hashLength is the number of hex characters kept from the digest. 64 bits
// is plenty for entries that expire within a day.
const hashLength = 16

// KeyInput is everything that can change an LLM response
type KeyInput struct {
	Operation     string
	CommentText   string
	Taxonomy      model.Taxonomy
	ModelName     string
	BasePrompt    string
	UserPrompt    string
	SchemaVersion int
	Temperature   float64
}

type keyTopic struct {
	TopicName string        `json:"topicName"`
	Subtopics []keySubtopic `json:"subtopics"`
}

type keySubtopic struct {
	SubtopicName string `json:"subtopicName"`
}

// Key builds llm_cache:v<schema>:<operation>:<hash>. Descriptions and other
// generated taxonomy metadata are stripped and the comment is trimmed, so
// two logically identical requests always share a key.
func Key(in KeyInput) string {
	payload := map[string]interface{}{
		"operation":     in.Operation,
		"comment":       strings.TrimSpace(in.CommentText),
		"taxonomy":      normalizeTaxonomy(in.Taxonomy),
		"model":         in.ModelName,
		"basePrompt":    in.BasePrompt,
		"userPrompt":    in.UserPrompt,
		"schemaVersion": in.SchemaVersion,
		"temperature":   in.Temperature,
	}

	// encoding/json writes map keys in sorted order
	data, err := json.Marshal(payload)
	if err != nil {
		// Only reachable with NaN/Inf temperatures; fall back to a printable form.
		data = []byte(fmt.Sprintf("%#v", in))
	}

	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])[:hashLength]
	return fmt.Sprintf("%s:v%d:%s:%s", KeyPrefix, in.SchemaVersion, in.Operation, hash)
}

// Pattern returns the glob that matches every key of one operation, or every
// llm key when operation is empty
func Pattern(operation string) string {
	if operation == "" {
		return KeyPrefix + ":*"
	}
	return KeyPrefix + ":v*:" + operation + ":*"
}

func normalizeTaxonomy(tax model.Taxonomy) []keyTopic {
	out := make([]keyTopic, 0, len(tax))
	for _, topic := range tax {
		subs := make([]keySubtopic, 0, len(topic.Subtopics))
		for _, s := range topic.Subtopics {
			subs = append(subs, keySubtopic{SubtopicName: s.Name})
		}
		out = append(out, keyTopic{TopicName: topic.Name, Subtopics: subs})
	}
	return out
}
