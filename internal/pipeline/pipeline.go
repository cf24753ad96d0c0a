package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ppiankov/claimtree/internal/audit"
	"github.com/ppiankov/claimtree/internal/cache"
	"github.com/ppiankov/claimtree/internal/llm"
	"github.com/ppiankov/claimtree/internal/logging"
	"github.com/ppiankov/claimtree/internal/model"
	"github.com/ppiankov/claimtree/internal/sanitize"
	"github.com/ppiankov/claimtree/internal/score"
	"github.com/ppiankov/claimtree/internal/worker"
)

var (
	// ErrNoComments means there was nothing to send to the model
	ErrNoComments = errors.New("no comments to process")

	// ErrAllExtractionsFailed means every comment sent for extraction failed
	ErrAllExtractionsFailed = errors.New("all claim extractions failed")
)

// Pipeline orchestrates one run from comments to claim tree
type Pipeline struct {
	config     *model.Config
	provider   llm.Provider
	invoker    *worker.BatchInvoker
	sanitizer  sanitize.Sanitizer
	auditStore audit.Store

	taxonomy  *TaxonomyBuilder
	extractor *ClaimExtractor
	dedup     *Deduplicator
	cruxes    *CruxFinder
	scorer    *score.Scorer

	logger *zap.Logger
	newID  func() string
	now    func() time.Time
}

// Option configures a Pipeline
type Option func(*pipelineOptions)

type pipelineOptions struct {
	cache      *cache.ResponseCache
	auditStore audit.Store
	sanitizer  sanitize.Sanitizer
	limiter    *worker.Limiter
	logger     *zap.Logger
	newID      func() string
	now        func() time.Time
}

// WithCache enables the response cache for claim extraction
func WithCache(c *cache.ResponseCache) Option {
	return func(o *pipelineOptions) { o.cache = c }
}

// WithAuditStore persists audit artifacts after each run
func WithAuditStore(s audit.Store) Option {
	return func(o *pipelineOptions) { o.auditStore = s }
}

// WithSanitizer replaces the default rule-based sanitizer
func WithSanitizer(s sanitize.Sanitizer) Option {
	return func(o *pipelineOptions) { o.sanitizer = s }
}

// WithLimiter replaces the limiter built from the concurrency config
func WithLimiter(l *worker.Limiter) Option {
	return func(o *pipelineOptions) { o.limiter = l }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(o *pipelineOptions) { o.logger = l }
}

// WithReportIDs overrides report id generation
func WithReportIDs(newID func() string) Option {
	return func(o *pipelineOptions) { o.newID = newID }
}

// WithClock overrides the time source for results and audit entries
func WithClock(now func() time.Time) Option {
	return func(o *pipelineOptions) { o.now = now }
}

// New creates a pipeline around provider
func New(cfg *model.Config, provider llm.Provider, opts ...Option) *Pipeline {
	if cfg == nil {
		cfg = model.DefaultConfig()
	}
	o := pipelineOptions{
		sanitizer: sanitize.New(),
		newID:     uuid.NewString,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	logger := logging.OrNop(o.logger)

	limiter := o.limiter
	if limiter == nil {
		limiter = worker.NewLimiter(cfg.Concurrency.RequestsPerSecond, cfg.Concurrency.BurstSize)
		for key, rps := range cfg.Concurrency.ModelRates {
			limiter.SetRate(key, rps, cfg.Concurrency.BurstSize)
		}
	}

	retry := worker.DefaultRetryPolicy(llm.IsRetryable)
	if cfg.Retry.MaxAttempts > 0 {
		retry.MaxAttempts = cfg.Retry.MaxAttempts
	}
	if cfg.Retry.Backoff > 0 {
		retry.Backoff = cfg.Retry.Backoff
	}

	invoker := worker.NewBatchInvoker(provider, limiter, worker.InvokerConfig{
		Workers:     cfg.Concurrency.Workers,
		CallTimeout: cfg.Retry.CallTimeout,
		Temperature: cfg.LLM.Temperature,
		Retry:       retry,
	}, logger)

	scorer := score.NewScorer()
	return &Pipeline{
		config:     cfg,
		provider:   provider,
		invoker:    invoker,
		sanitizer:  o.sanitizer,
		auditStore: o.auditStore,
		taxonomy:   NewTaxonomyBuilder(invoker, logger),
		extractor:  NewClaimExtractor(invoker, o.cache, cfg.Pipeline.SchemaVersion, cfg.Concurrency.Workers, logger),
		dedup:      NewDeduplicator(invoker, logger),
		cruxes:     NewCruxFinder(invoker, scorer, logger),
		scorer:     scorer,
		logger:     logger,
		newID:      o.newID,
		now:        o.now,
	}
}

// Run processes comments into a claim tree. The audit artifact is returned
// and persisted even when the run fails, as long as a trail was started.
func (p *Pipeline) Run(ctx context.Context, comments []model.Comment) (*model.Result, *audit.Artifact, error) {
	if len(comments) == 0 {
		return nil, nil, ErrNoComments
	}

	reportID := p.newID()
	modelName := p.modelName()
	trail := audit.NewLogger(reportID, modelName,
		audit.WithPreviewLength(p.config.Audit.PreviewLength),
		audit.WithClock(p.now))
	logger := p.logger.With(zap.String("report_id", reportID))

	result, err := p.run(ctx, comments, trail, logger)

	artifact, _ := audit.Persist(ctx, p.auditStore, trail, logger)
	if err != nil {
		logger.Error("run failed", zap.Error(err))
		return nil, artifact, err
	}

	logger.Info("run complete",
		zap.Int("topics", result.Stats.Topics),
		zap.Int("claims", result.Stats.Claims),
		zap.Int("quotes", result.Stats.Quotes),
		zap.Int("total_tokens", result.Usage.TotalTokens))
	return result, artifact, nil
}

func (p *Pipeline) run(ctx context.Context, comments []model.Comment, trail *audit.Logger, logger *zap.Logger) (*model.Result, error) {
	var usage model.Usage

	// 1. Screen input
	accepted := p.screen(comments, trail)
	if len(accepted) == 0 {
		return nil, fmt.Errorf("%w: every comment was rejected before extraction", ErrNoComments)
	}
	logger.Info("comments screened", zap.Int("received", len(comments)), zap.Int("kept", len(accepted)))

	// 2. Taxonomy
	tax, taxUsage, err := p.taxonomy.Build(ctx, accepted, trail)
	usage.Add(taxUsage)
	if err != nil {
		return nil, err
	}

	// 3. Claims
	extraction, err := p.extractor.Extract(ctx, accepted, tax, trail)
	if err != nil {
		return nil, err
	}
	usage.Add(extraction.Usage)
	if extraction.Succeeded == 0 {
		return nil, fmt.Errorf("%w: %d comments sent", ErrAllExtractionsFailed, len(accepted))
	}

	// 4. Deduplicate
	groups, dedupUsage, err := p.dedup.Deduplicate(ctx, extraction.Groups, trail)
	usage.Add(dedupUsage)
	if err != nil {
		return nil, fmt.Errorf("deduplicate: %w", err)
	}

	// 5. Assemble
	tree := AssembleTree(tax, groups)

	// 6. Cruxes, never fatal
	if p.config.Pipeline.Cruxes {
		cruxUsage, err := p.cruxes.Find(ctx, &tree, trail)
		usage.Add(cruxUsage)
		if err != nil {
			logger.Warn("crux stage skipped", zap.Error(err))
		}
	}

	trail.SetFinalQuoteCount(tree.QuoteCount())

	return &model.Result{
		ReportID:  trail.ReportID(),
		CreatedAt: p.now().UTC(),
		Model:     p.modelName(),
		Taxonomy:  tax,
		Tree:      tree,
		Usage:     usage,
		Stats:     p.scorer.Rollup(tree),
	}, nil
}

// screen logs every comment and drops unsafe and empty ones. Kept comments
// carry the sanitized text.
func (p *Pipeline) screen(comments []model.Comment, trail *audit.Logger) []model.Comment {
	minWords := p.config.Pipeline.MinWords
	kept := make([]model.Comment, 0, len(comments))
	for _, c := range comments {
		trail.LogInput(c)

		cleaned, safe := p.sanitizer.Sanitize(c.Text, "comment")
		if !safe {
			trail.LogSanitizationRejected(c.ID, "failed safety check")
			continue
		}
		if !sanitize.Meaningful(cleaned, minWords) {
			trail.LogRejected(c.ID, audit.StepMeaningfulness, "comment too short", cleaned)
			continue
		}
		if cleaned != c.Text {
			trail.LogModified(c.ID, audit.StepSanitization, "text cleaned", nil)
		}

		c.Text = cleaned
		kept = append(kept, c)
	}
	return kept
}

func (p *Pipeline) modelName() string {
	if p.provider == nil {
		return ""
	}
	return p.provider.Model()
}
