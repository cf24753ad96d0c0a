package llm

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	codeFenceRegex     = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*\n?(.*?)\n?```")
	trailingCommaRegex = regexp.MustCompile(`,(\s*[}\]])`)
)

// extractJSON recovers a JSON document from model text. It tries the text
// as-is, then the contents of a code fence, then the outermost object, and
// finally each of those with trailing commas removed.
func extractJSON(text string) (json.RawMessage, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, false
	}

	candidates := []string{trimmed}
	if m := codeFenceRegex.FindStringSubmatch(trimmed); m != nil {
		candidates = append(candidates, strings.TrimSpace(m[1]))
	}
	if start, end := strings.Index(trimmed, "{"), strings.LastIndex(trimmed, "}"); start >= 0 && end > start {
		candidates = append(candidates, trimmed[start:end+1])
	}

	for _, cleanup := range []func(string) string{
		func(s string) string { return s },
		func(s string) string { return trailingCommaRegex.ReplaceAllString(s, "$1") },
	} {
		for _, c := range candidates {
			c = cleanup(c)
			if json.Valid([]byte(c)) {
				return json.RawMessage(c), true
			}
		}
	}
	return nil, false
}
