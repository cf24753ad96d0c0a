// Package sanitize screens comment text before it reaches a model.
package sanitize

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Sanitizer returns cleaned text and whether the text is safe to process.
// Unsafe text must not be logged or forwarded.
type Sanitizer interface {
	Sanitize(text, context string) (cleaned string, safe bool)
}

// Result explains a Check
type Result struct {
	Cleaned  string
	Safe     bool
	Reason   string
	Matches  int
	Redacted int
}

var injectionPatterns = []*regexp.Regexp{
	// Direct instruction override attempts
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above)\s+(instructions?|prompts?|rules?)`),
	regexp.MustCompile(`(?i)disregard\s+(all\s+)?(previous|prior|above)\s+(instructions?|prompts?|rules?)`),
	regexp.MustCompile(`(?i)forget\s+(all\s+)?(previous|prior|above)\s+(instructions?|prompts?|rules?)`),

	// System prompt extraction
	regexp.MustCompile(`(?i)(reveal|show|print|output|display|repeat)\s+(your\s+)?(system\s+)?(prompt|instructions?)`),

	// Role-play / jailbreak patterns
	regexp.MustCompile(`(?i)you\s+are\s+now\s+(DAN|evil|unrestricted|unfiltered|jailbroken)`),
	regexp.MustCompile(`(?i)enter\s+(DAN|developer|god|sudo|admin)\s+mode`),

	// Delimiter injection
	regexp.MustCompile(`(?i)<\|?(system|endof(text|turn)|im_start|im_end)\|?>`),
	regexp.MustCompile(`(?i)\[INST\]|\[/INST\]|\[SYS(TEM)?\]`),
}

// PII is redacted rather than rejected; the claim usually survives without it
var piiPatterns = []struct {
	re          *regexp.Regexp
	replacement string
}{
	{regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`), "[email]"},
	{regexp.MustCompile(`\b(?:\d[ -]?){13,16}\b`), "[card]"},
	{regexp.MustCompile(`(?:\+\d{1,3}[ .\-]?)?\(?\d{3}\)?[ .\-]?\d{3}[ .\-]?\d{4}\b`), "[phone]"},
}

// RuleSanitizer is a pattern-based Sanitizer
type RuleSanitizer struct {
	// MaxLength truncates cleaned text to this many runes. Zero disables.
	MaxLength int
}

// New returns a RuleSanitizer with a generous length cap
func New() *RuleSanitizer {
	return &RuleSanitizer{MaxLength: 10000}
}

// Sanitize implements Sanitizer
func (s *RuleSanitizer) Sanitize(text, context string) (string, bool) {
	r := s.Check(text)
	return r.Cleaned, r.Safe
}

// Check runs every rule and reports why text was rejected, if it was
func (s *RuleSanitizer) Check(text string) Result {
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "")
	}
	text = stripControl(text)

	matches := 0
	for _, pat := range injectionPatterns {
		matches += len(pat.FindAllStringIndex(text, 3))
	}
	if matches > 0 {
		return Result{Safe: false, Reason: "prompt injection pattern", Matches: matches}
	}

	redacted := 0
	for _, p := range piiPatterns {
		text = p.re.ReplaceAllStringFunc(text, func(string) string {
			redacted++
			return p.replacement
		})
	}

	text = strings.TrimSpace(text)
	if s.MaxLength > 0 && utf8.RuneCountInString(text) > s.MaxLength {
		text = string([]rune(text)[:s.MaxLength])
	}

	return Result{Cleaned: text, Safe: true, Redacted: redacted}
}

// stripControl removes control characters other than newlines and tabs
func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}

// Meaningful reports whether text has at least minWords words
func Meaningful(text string, minWords int) bool {
	if minWords < 1 {
		minWords = 1
	}
	return len(strings.Fields(text)) >= minWords
}
