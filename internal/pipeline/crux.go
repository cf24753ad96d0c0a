package pipeline

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/ppiankov/claimtree/internal/audit"
	"github.com/ppiankov/claimtree/internal/logging"
	"github.com/ppiankov/claimtree/internal/model"
	"github.com/ppiankov/claimtree/internal/score"
	"github.com/ppiankov/claimtree/internal/worker"
)

// CruxFinder asks for the statement that best splits each subtopic
type CruxFinder struct {
	invoker *worker.BatchInvoker
	scorer  *score.Scorer
	logger  *zap.Logger
}

// NewCruxFinder creates a crux finder
func NewCruxFinder(invoker *worker.BatchInvoker, scorer *score.Scorer, logger *zap.Logger) *CruxFinder {
	if scorer == nil {
		scorer = score.NewScorer()
	}
	return &CruxFinder{invoker: invoker, scorer: scorer, logger: logging.OrNop(logger)}
}

type cruxTarget struct {
	topic, sub int
	known      map[string]bool
}

// Find sets Crux on every subtopic of tree backed by at least two distinct
// speakers. Failures leave the subtopic without a crux.
func (f *CruxFinder) Find(ctx context.Context, tree *model.Tree, trail *audit.Logger) (model.Usage, error) {
	var usage model.Usage

	var targets []cruxTarget
	var prompts []string
	for ti, topic := range tree.Topics {
		for si, sub := range topic.Subtopics {
			speakers := score.SubtopicSpeakers(sub)
			if len(speakers) < 2 {
				continue
			}
			known := make(map[string]bool, len(speakers))
			for _, sp := range speakers {
				known[sp] = true
			}
			targets = append(targets, cruxTarget{topic: ti, sub: si, known: known})
			prompts = append(prompts, cruxUserPrompt(topic.Name, sub.Name, sub.Claims))
		}
	}
	if len(prompts) == 0 {
		return usage, nil
	}

	schema, err := cruxSchema()
	if err != nil {
		return usage, err
	}

	batch, err := f.invoker.Call(ctx, cruxSystemPrompt, prompts, schema)
	if err != nil {
		return usage, err
	}
	usage = batch.Usage

	found := 0
	for j, t := range targets {
		node := &tree.Topics[t.topic].Subtopics[t.sub]
		item := batch.Items[j]

		var parsed cruxOutput
		err := item.Err
		if err == nil {
			err = schema.Decode(item.Content, &parsed)
		}
		if err != nil || strings.TrimSpace(parsed.Statement) == "" {
			trail.LogEvent("crux", node.Name, audit.StepCrux, audit.ActionRejected,
				"crux generation failed", &audit.Details{Subtopic: node.Name})
			trail.Increment(audit.CounterCruxFailed, 1)
			f.logger.Warn("crux generation failed", zap.String("subtopic", node.Name), zap.Error(err))
			continue
		}

		crux := f.scorer.Crux(strings.TrimSpace(parsed.Statement), parsed.Agree, parsed.Disagree, t.known)
		node.Crux = &crux
		found++
	}

	f.logger.Info("cruxes found", zap.Int("subtopics", len(targets)), zap.Int("found", found))
	return usage, nil
}
