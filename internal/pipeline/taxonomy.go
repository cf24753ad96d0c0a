package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ppiankov/claimtree/internal/audit"
	"github.com/ppiankov/claimtree/internal/logging"
	"github.com/ppiankov/claimtree/internal/model"
	"github.com/ppiankov/claimtree/internal/worker"
)

// ErrTaxonomyFailed means no usable taxonomy came back. Nothing downstream
// can run without one.
var ErrTaxonomyFailed = errors.New("taxonomy build failed")

// TaxonomyBuilder derives the topic/subtopic vocabulary of a run
type TaxonomyBuilder struct {
	invoker *worker.BatchInvoker
	logger  *zap.Logger
}

// NewTaxonomyBuilder creates a taxonomy builder
func NewTaxonomyBuilder(invoker *worker.BatchInvoker, logger *zap.Logger) *TaxonomyBuilder {
	return &TaxonomyBuilder{invoker: invoker, logger: logging.OrNop(logger)}
}

// Build makes a single call with every comment and repairs what it can of
// the returned taxonomy. Any failure wraps ErrTaxonomyFailed.
func (b *TaxonomyBuilder) Build(ctx context.Context, comments []model.Comment, trail *audit.Logger) (model.Taxonomy, model.Usage, error) {
	var usage model.Usage

	schema, err := taxonomySchema()
	if err != nil {
		return nil, usage, fmt.Errorf("%w: %v", ErrTaxonomyFailed, err)
	}

	res, err := b.invoker.Call(ctx, taxonomySystemPrompt, []string{taxonomyUserPrompt(comments)}, schema)
	if err != nil {
		return nil, usage, fmt.Errorf("%w: %w", ErrTaxonomyFailed, err)
	}
	usage = res.Usage

	item := res.Items[0]
	if item.Err != nil {
		return nil, usage, fmt.Errorf("%w: %w", ErrTaxonomyFailed, item.Err)
	}

	var out taxonomyOutput
	if err := schema.Decode(item.Content, &out); err != nil {
		return nil, usage, fmt.Errorf("%w: %w", ErrTaxonomyFailed, err)
	}

	tax := repairTaxonomy(out.Taxonomy, trail)
	if err := tax.Validate(); err != nil {
		return nil, usage, fmt.Errorf("%w: %v", ErrTaxonomyFailed, err)
	}

	b.logger.Info("taxonomy built",
		zap.Int("topics", len(tax)),
		zap.Int("subtopics", len(tax.SubtopicNames())),
		zap.Int("total_tokens", usage.TotalTokens))

	return tax, usage, nil
}

// repairTaxonomy fixes the structural problems a model commonly produces:
// blank names, repeated topics, topics with no subtopics and subtopic names
// shared by two topics. Each repair is recorded on the trail.
func repairTaxonomy(in []model.Topic, trail *audit.Logger) model.Taxonomy {
	var tax model.Taxonomy
	topicIndex := make(map[string]int)

	for _, topic := range in {
		name := strings.TrimSpace(topic.Name)
		if name == "" {
			continue
		}

		var subs []model.Subtopic
		for _, sub := range topic.Subtopics {
			sub.Name = strings.TrimSpace(sub.Name)
			if sub.Name != "" {
				subs = append(subs, sub)
			}
		}

		if i, ok := topicIndex[name]; ok {
			tax[i].Subtopics = append(tax[i].Subtopics, subs...)
			recordRepair(trail, "duplicate_topic", name, &audit.Details{Topic: name})
			continue
		}

		topicIndex[name] = len(tax)
		tax = append(tax, model.Topic{
			Name:             name,
			ShortDescription: topic.ShortDescription,
			Subtopics:        subs,
		})
	}

	for i := range tax {
		if len(tax[i].Subtopics) == 0 {
			tax[i].Subtopics = []model.Subtopic{{Name: tax[i].Name, ShortDescription: tax[i].ShortDescription}}
			recordRepair(trail, "empty_topic", tax[i].Name, &audit.Details{Topic: tax[i].Name})
		}
	}

	// First owner keeps the bare name; later ones are qualified by topic
	owners := make(map[string]string)
	for i := range tax {
		kept := tax[i].Subtopics[:0]
		seenHere := make(map[string]bool)
		for _, sub := range tax[i].Subtopics {
			if seenHere[sub.Name] {
				continue
			}
			if owner, taken := owners[sub.Name]; taken && owner != tax[i].Name {
				original := sub.Name
				sub.Name = fmt.Sprintf("%s (%s)", original, tax[i].Name)
				recordRepair(trail, "duplicate_subtopic", original, &audit.Details{
					Topic:    tax[i].Name,
					Subtopic: sub.Name,
					Extra:    map[string]string{"firstOwner": owner},
				})
				if _, clash := owners[sub.Name]; clash {
					continue
				}
			}
			seenHere[sub.Name] = true
			owners[sub.Name] = tax[i].Name
			kept = append(kept, sub)
		}
		tax[i].Subtopics = kept
	}

	return tax
}

func recordRepair(trail *audit.Logger, category, subject string, details *audit.Details) {
	if trail == nil {
		return
	}
	trail.LogEvent("taxonomy:"+category, subject, audit.StepTaxonomy, audit.ActionModified,
		strings.ReplaceAll(category, "_", " ")+" repaired", details)
	trail.Increment(audit.CounterTaxonomyRecovered, 1)
}
