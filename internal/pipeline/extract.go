package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/claimtree/internal/audit"
	"github.com/ppiankov/claimtree/internal/cache"
	"github.com/ppiankov/claimtree/internal/logging"
	"github.com/ppiankov/claimtree/internal/model"
	"github.com/ppiankov/claimtree/internal/worker"
)

// ClaimExtractor pulls taxonomy-constrained claims out of each comment
type ClaimExtractor struct {
	invoker       *worker.BatchInvoker
	cache         *cache.ResponseCache
	schemaVersion int
	cacheWorkers  int
	logger        *zap.Logger
}

// NewClaimExtractor creates an extractor. A nil cache disables caching.
func NewClaimExtractor(invoker *worker.BatchInvoker, responses *cache.ResponseCache, schemaVersion, cacheWorkers int, logger *zap.Logger) *ClaimExtractor {
	if cacheWorkers <= 0 {
		cacheWorkers = 1
	}
	return &ClaimExtractor{
		invoker:       invoker,
		cache:         responses,
		schemaVersion: schemaVersion,
		cacheWorkers:  cacheWorkers,
		logger:        logging.OrNop(logger),
	}
}

// SubtopicGroup holds the claims of one subtopic with subtopic-local ids
type SubtopicGroup struct {
	Topic    string
	Subtopic string
	Claims   []model.BaseClaim
}

// Extraction is the outcome of extracting every comment
type Extraction struct {
	// Groups follow taxonomy order; subtopics without claims are omitted
	Groups []SubtopicGroup

	Usage     model.Usage
	Succeeded int
	Failed    int
	Cached    int
}

type commentOutcome struct {
	raw       json.RawMessage
	fromCache bool
	err       error
}

// Extract runs extraction for every comment. Cache hits and live calls
// produce the same audit trail. Per-comment failures are recorded and never
// returned; the error is non-nil only when no extraction could be attempted.
func (e *ClaimExtractor) Extract(ctx context.Context, comments []model.Comment, tax model.Taxonomy, trail *audit.Logger) (*Extraction, error) {
	schema, err := claimsSchema(tax)
	if err != nil {
		return nil, err
	}

	keys := make([]string, len(comments))
	for i, c := range comments {
		keys[i] = e.cacheKey(c.Text, tax)
	}

	outcomes := make([]commentOutcome, len(comments))
	e.lookup(ctx, keys, outcomes, func(raw []byte) bool {
		_, err := schema.Validate(raw)
		return err == nil
	})

	var misses []int
	var prompts []string
	for i, c := range comments {
		if outcomes[i].fromCache {
			continue
		}
		misses = append(misses, i)
		prompts = append(prompts, claimsUserPrompt(tax, c.Text))
	}

	result := &Extraction{}
	if len(prompts) > 0 {
		batch, err := e.invoker.Call(ctx, claimsSystemPrompt, prompts, schema)
		if err != nil {
			return nil, fmt.Errorf("extract claims: %w", err)
		}
		result.Usage = batch.Usage
		for j, i := range misses {
			item := batch.Items[j]
			outcomes[i] = commentOutcome{raw: item.Content, err: item.Err}
		}
		e.store(ctx, keys, outcomes)
	}

	perComment := make([][]model.ExtractedClaim, len(comments))
	failed := make([]bool, len(comments))
	for i, c := range comments {
		out := outcomes[i]
		if out.err != nil {
			failed[i] = true
			trail.LogRejected(c.ID, audit.StepClaimsExtraction, "extraction failed", c.Text)
			trail.Increment(audit.CounterExtractionFailed, 1)
			result.Failed++
			e.logger.Warn("claim extraction failed",
				zap.String("comment_id", c.ID), zap.Error(out.err))
			continue
		}

		var parsed claimsOutput
		if err := schema.Decode(out.raw, &parsed); err != nil {
			failed[i] = true
			trail.LogRejected(c.ID, audit.StepClaimsExtraction, "extraction failed", c.Text)
			trail.Increment(audit.CounterExtractionFailed, 1)
			result.Failed++
			continue
		}

		result.Succeeded++
		if out.fromCache {
			result.Cached++
		}
		perComment[i] = e.normalize(c, parsed.Claims, tax, trail)
	}

	result.Groups = groupBySubtopic(tax, perComment)

	// Claim ids exist only after grouping, so acceptance is logged here
	ids := claimIDsByComment(result.Groups)
	for i, c := range comments {
		if failed[i] {
			continue
		}
		if len(perComment[i]) == 0 {
			trail.LogRejected(c.ID, audit.StepClaimsExtraction, "no claims extracted", c.Text)
			continue
		}
		trail.LogExtractionResult(c.ID, len(perComment[i]), ids[c.ID], outcomes[i].fromCache)
	}

	e.logger.Info("claims extracted",
		zap.Int("comments", len(comments)),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed),
		zap.Int("cached", result.Cached))

	return result, nil
}

func (e *ClaimExtractor) cacheKey(text string, tax model.Taxonomy) string {
	var modelName string
	if p := e.invoker.Provider(); p != nil {
		modelName = p.Model()
	}
	return cache.Key(cache.KeyInput{
		Operation:     OpClaims,
		CommentText:   text,
		Taxonomy:      tax,
		ModelName:     modelName,
		BasePrompt:    claimsSystemPrompt,
		UserPrompt:    claimsUserTemplate,
		SchemaVersion: e.schemaVersion,
		Temperature:   e.invoker.Temperature(),
	})
}

// lookup checks the cache for every key concurrently. Entries that no
// longer validate are treated as misses.
func (e *ClaimExtractor) lookup(ctx context.Context, keys []string, outcomes []commentOutcome, valid func([]byte) bool) {
	if e.cache == nil {
		return
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cacheWorkers)
	for i, key := range keys {
		g.Go(func() error {
			raw, ok := e.cache.Get(gctx, key)
			if ok && valid(raw) {
				outcomes[i] = commentOutcome{raw: raw, fromCache: true}
			}
			return nil
		})
	}
	_ = g.Wait()
}

// store caches every successful live response
func (e *ClaimExtractor) store(ctx context.Context, keys []string, outcomes []commentOutcome) {
	if e.cache == nil {
		return
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cacheWorkers)
	for i := range outcomes {
		out := outcomes[i]
		if out.fromCache || out.err != nil || len(out.raw) == 0 {
			continue
		}
		g.Go(func() error {
			e.cache.Put(gctx, keys[i], out.raw, 0)
			return nil
		})
	}
	_ = g.Wait()
}

// normalize attaches the source comment to each claim, drops claims that
// cannot be placed and moves claims whose subtopic belongs to another topic.
// The result is non-nil even when empty.
func (e *ClaimExtractor) normalize(c model.Comment, claims []model.ExtractedClaim, tax model.Taxonomy, trail *audit.Logger) []model.ExtractedClaim {
	out := make([]model.ExtractedClaim, 0, len(claims))
	for _, claim := range claims {
		if strings.TrimSpace(claim.Claim) == "" {
			continue
		}
		owner, ok := tax.OwnerOf(claim.SubtopicName)
		if !ok {
			trail.LogModified(c.ID, audit.StepClaimsExtraction, "claim dropped: unknown subtopic", &audit.Details{
				Topic:    claim.TopicName,
				Subtopic: claim.SubtopicName,
			})
			continue
		}
		if owner != claim.TopicName {
			trail.LogModified(c.ID, audit.StepClaimsExtraction, "subtopic belongs to another topic", &audit.Details{
				Topic:    owner,
				Subtopic: claim.SubtopicName,
				Extra:    map[string]string{"claimedTopic": claim.TopicName},
			})
			trail.Increment(audit.CounterTopicReassigned, 1)
			claim.TopicName = owner
		}
		claim.CommentID = c.ID
		claim.Speaker = c.Speaker
		out = append(out, claim)
	}
	return out
}

// groupBySubtopic buckets claims in taxonomy order and numbers them from 1
// within each subtopic, following comment order
func groupBySubtopic(tax model.Taxonomy, perComment [][]model.ExtractedClaim) []SubtopicGroup {
	index := make(map[string]int)
	var groups []SubtopicGroup
	for _, topic := range tax {
		for _, sub := range topic.Subtopics {
			index[sub.Name] = len(groups)
			groups = append(groups, SubtopicGroup{Topic: topic.Name, Subtopic: sub.Name})
		}
	}

	for _, claims := range perComment {
		for _, claim := range claims {
			i, ok := index[claim.SubtopicName]
			if !ok {
				continue
			}
			g := &groups[i]
			g.Claims = append(g.Claims, model.BaseClaim{
				ExtractedClaim: claim,
				ClaimID:        strconv.Itoa(len(g.Claims) + 1),
			})
		}
	}

	kept := groups[:0]
	for _, g := range groups {
		if len(g.Claims) > 0 {
			kept = append(kept, g)
		}
	}
	return kept
}

// claimIDsByComment returns, per comment, the ids of its claims qualified
// by subtopic since bare ids repeat across subtopics
func claimIDsByComment(groups []SubtopicGroup) map[string][]string {
	ids := make(map[string][]string)
	for _, g := range groups {
		for _, c := range g.Claims {
			ids[c.CommentID] = append(ids[c.CommentID], g.Subtopic+"#"+c.ClaimID)
		}
	}
	return ids
}
