package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ppiankov/claimtree/internal/audit"
	"github.com/ppiankov/claimtree/internal/llm"
	"github.com/ppiankov/claimtree/internal/model"
	"github.com/ppiankov/claimtree/internal/worker"
)

// fakeProvider answers through respond and validates the answer against the
// request schema the way real providers do
type fakeProvider struct {
	mu      sync.Mutex
	calls   map[string]int
	respond func(req llm.Request) (string, error)
}

func newFakeProvider(respond func(req llm.Request) (string, error)) *fakeProvider {
	return &fakeProvider{calls: make(map[string]int), respond: respond}
}

func (f *fakeProvider) Name() string  { return "fake" }
func (f *fakeProvider) Model() string { return "fake-model" }

func (f *fakeProvider) Invoke(ctx context.Context, req llm.Request) (*llm.Response, error) {
	f.mu.Lock()
	f.calls[req.Schema.Name]++
	f.mu.Unlock()

	text, err := f.respond(req)
	if err != nil {
		return nil, &llm.ProviderError{Provider: "fake", StatusCode: 400, Err: err}
	}
	raw, err := req.Schema.Parse(text)
	if err != nil {
		return nil, &llm.ProviderError{Provider: "fake", Err: err}
	}
	return &llm.Response{
		Content: raw,
		Usage:   model.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		Model:   "fake-model",
	}, nil
}

func (f *fakeProvider) callsFor(schema string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[schema]
}

var errScripted = errors.New("scripted failure")

const petsTaxonomy = `{"taxonomy":[{"topicName":"Pets","topicShortDescription":"Animals people keep","subtopics":[
{"subtopicName":"Cats","subtopicShortDescription":"Feelings about cats"},
{"subtopicName":"Dogs","subtopicShortDescription":"Feelings about dogs"},
{"subtopicName":"Birds","subtopicShortDescription":"Feelings about birds"}]}]}`

// petsResponder extracts one claim per pet comment and finds nothing to
// merge or split
func petsResponder(req llm.Request) (string, error) {
	switch req.Schema.Name {
	case OpTaxonomy:
		return petsTaxonomy, nil
	case OpClaims:
		switch {
		case strings.Contains(req.UserPrompt, "I love cats"):
			return claimJSON("Cats are lovable", "I love cats", "Pets", "Cats"), nil
		case strings.Contains(req.UserPrompt, "dogs are great"):
			return claimJSON("Dogs are great", "dogs are great", "Pets", "Dogs"), nil
		case strings.Contains(req.UserPrompt, "birds"):
			return claimJSON("Birds are uncertain pets", "not sure about birds", "Pets", "Birds"), nil
		}
		return `{"claims":[]}`, nil
	case OpDedup:
		return `{"groups":[]}`, nil
	case OpCrux:
		return `{"statement":"Pets are worth it","agree":[],"disagree":[]}`, nil
	}
	return "", errScripted
}

func claimJSON(claim, quote, topic, subtopic string) string {
	return `{"claims":[{"claim":"` + claim + `","quote":"` + quote + `","topicName":"` + topic + `","subtopicName":"` + subtopic + `"}]}`
}

func petsComments() []model.Comment {
	return []model.Comment{
		{ID: "1", Text: "I love cats", Speaker: "ann"},
		{ID: "2", Text: "dogs are great", Speaker: "bob"},
		{ID: "3", Text: "I'm not sure about birds", Speaker: "cy"},
	}
}

func petsTax() model.Taxonomy {
	return model.Taxonomy{{
		Name: "Pets",
		Subtopics: []model.Subtopic{
			{Name: "Cats"}, {Name: "Dogs"}, {Name: "Birds"},
		},
	}}
}

func testInvoker(p llm.Provider) *worker.BatchInvoker {
	return worker.NewBatchInvoker(p, nil, worker.InvokerConfig{
		Workers: 4,
		Retry:   worker.RetryPolicy{MaxAttempts: 2, Backoff: time.Millisecond},
	}, nil)
}

func testConfig() *model.Config {
	cfg := model.DefaultConfig()
	cfg.Concurrency.RequestsPerSecond = 0
	cfg.Retry.Backoff = time.Millisecond
	cfg.Retry.CallTimeout = 5 * time.Second
	return cfg
}

func fixedClock() func() time.Time {
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return func() time.Time { return base }
}

func newTrail() *audit.Logger {
	return audit.NewLogger("report-1", "fake-model", audit.WithClock(fixedClock()))
}

func baseClaims(n int, subtopic string) []model.BaseClaim {
	out := make([]model.BaseClaim, n)
	for i := range out {
		id := string(rune('1' + i))
		out[i] = model.BaseClaim{
			ExtractedClaim: model.ExtractedClaim{
				Claim:        "claim " + id,
				TopicName:    "Pets",
				SubtopicName: subtopic,
				CommentID:    id,
			},
			ClaimID: id,
		}
	}
	return out
}

func claimIDs(t *testing.T, claims []model.BaseClaim) []string {
	t.Helper()
	ids := make([]string, len(claims))
	for i, c := range claims {
		ids[i] = c.ClaimID
	}
	return ids
}
