package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/ppiankov/claimtree/internal/audit"
	"github.com/ppiankov/claimtree/internal/logging"
	"github.com/ppiankov/claimtree/internal/model"
	"github.com/ppiankov/claimtree/internal/worker"
)

// DedupedGroup is a subtopic after deduplication
type DedupedGroup struct {
	Topic    string
	Subtopic string
	Claims   []model.Claim
}

// Deduplicator nests near-duplicate claims under a primary claim, one
// subtopic at a time
type Deduplicator struct {
	invoker *worker.BatchInvoker
	logger  *zap.Logger
}

// NewDeduplicator creates a deduplicator
func NewDeduplicator(invoker *worker.BatchInvoker, logger *zap.Logger) *Deduplicator {
	return &Deduplicator{invoker: invoker, logger: logging.OrNop(logger)}
}

// Deduplicate calls the model for every subtopic with more than one claim.
// A subtopic whose call fails keeps all of its claims unmerged. Every input
// claim ends up either top-level or in exactly one duplicates list.
func (d *Deduplicator) Deduplicate(ctx context.Context, groups []SubtopicGroup, trail *audit.Logger) ([]DedupedGroup, model.Usage, error) {
	var usage model.Usage
	out := make([]DedupedGroup, len(groups))

	var pending []int
	var prompts []string
	for i, g := range groups {
		out[i] = DedupedGroup{Topic: g.Topic, Subtopic: g.Subtopic, Claims: unmerged(g.Claims)}
		if len(g.Claims) > 1 {
			pending = append(pending, i)
			prompts = append(prompts, dedupUserPrompt(g.Subtopic, g.Claims))
		}
	}
	if len(prompts) == 0 {
		return out, usage, nil
	}

	schema, err := dedupSchema()
	if err != nil {
		return nil, usage, err
	}

	batch, err := d.invoker.Call(ctx, dedupSystemPrompt, prompts, schema)
	if err != nil {
		for _, i := range pending {
			d.recordFailure(groups[i].Subtopic, err, trail)
		}
		return out, usage, nil
	}
	usage = batch.Usage

	for j, i := range pending {
		g := groups[i]
		item := batch.Items[j]
		if item.Err != nil {
			d.recordFailure(g.Subtopic, item.Err, trail)
			continue
		}

		var parsed dedupOutput
		if err := schema.Decode(item.Content, &parsed); err != nil {
			d.recordFailure(g.Subtopic, err, trail)
			continue
		}

		claims, merges, invalid := applyNesting(g.Claims, parsed.Groups)
		if invalid > 0 {
			trail.Increment(audit.CounterDedupInvalidIDs, invalid)
			d.logger.Warn("dropped invalid claim ids from deduplication",
				zap.String("subtopic", g.Subtopic), zap.Int("invalid", invalid))
		}
		for _, m := range merges {
			trail.LogDeduplication(g.Subtopic, m.primary, m.merged)
		}
		out[i].Claims = claims
	}

	return out, usage, nil
}

func (d *Deduplicator) recordFailure(subtopic string, err error, trail *audit.Logger) {
	trail.LogEvent("dedup", subtopic, audit.StepDeduplication, audit.ActionRejected,
		"deduplication failed, claims kept unmerged", &audit.Details{Subtopic: subtopic})
	trail.Increment(audit.CounterDedupFailed, 1)
	d.logger.Warn("deduplication failed", zap.String("subtopic", subtopic), zap.Error(err))
}

type merge struct {
	primary string
	merged  []string
}

// applyNesting turns model-proposed groups into claims. Ids not in claims
// are dropped and counted as invalid. An id is bound by its first
// assignment, as primary or as duplicate. Claims nobody mentions stay
// top-level. Output keeps the input order of primaries.
func applyNesting(claims []model.BaseClaim, groups []dedupGroup) ([]model.Claim, []merge, int) {
	known := make(map[string]bool, len(claims))
	for _, c := range claims {
		known[c.ClaimID] = true
	}

	invalid := 0
	primaryOf := make(map[string]string) // duplicate id -> primary id
	isPrimary := make(map[string]bool)
	dups := make(map[string][]string) // primary id -> duplicate ids in assignment order

	for _, g := range groups {
		if !known[g.PrimaryID] {
			invalid++
			for _, id := range g.DuplicateIDs {
				if !known[id] {
					invalid++
				}
			}
			continue
		}
		if _, taken := primaryOf[g.PrimaryID]; taken {
			// Already nested elsewhere; its proposed duplicates stay free
			for _, id := range g.DuplicateIDs {
				if !known[id] {
					invalid++
				}
			}
			continue
		}
		isPrimary[g.PrimaryID] = true

		for _, id := range g.DuplicateIDs {
			switch {
			case !known[id]:
				invalid++
			case id == g.PrimaryID:
			case isPrimary[id]:
			default:
				if _, taken := primaryOf[id]; taken {
					continue
				}
				primaryOf[id] = g.PrimaryID
				dups[g.PrimaryID] = append(dups[g.PrimaryID], id)
			}
		}
	}

	byID := make(map[string]model.BaseClaim, len(claims))
	for _, c := range claims {
		byID[c.ClaimID] = c
	}

	var out []model.Claim
	var merges []merge
	for _, c := range claims {
		if _, nested := primaryOf[c.ClaimID]; nested {
			continue
		}
		claim := model.Claim{BaseClaim: c, Duplicates: []model.BaseClaim{}}
		for _, id := range dups[c.ClaimID] {
			claim.Duplicates = append(claim.Duplicates, byID[id])
		}
		if len(claim.Duplicates) > 0 {
			merges = append(merges, merge{primary: c.ClaimID, merged: dups[c.ClaimID]})
		}
		out = append(out, claim)
	}
	return out, merges, invalid
}

func unmerged(claims []model.BaseClaim) []model.Claim {
	out := make([]model.Claim, len(claims))
	for i, c := range claims {
		out[i] = model.Claim{BaseClaim: c, Duplicates: []model.BaseClaim{}}
	}
	return out
}
