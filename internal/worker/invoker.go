package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/claimtree/internal/llm"
	"github.com/ppiankov/claimtree/internal/logging"
	"github.com/ppiankov/claimtree/internal/model"
)

// ErrInvalidBatch is returned when the batch request itself is malformed
var ErrInvalidBatch = errors.New("invalid batch request")

// InvokerConfig configures a BatchInvoker
type InvokerConfig struct {
	Workers     int
	CallTimeout time.Duration
	Temperature float64
	Retry       RetryPolicy
}

// BatchInvoker runs many independent LLM calls that share a system prompt
type BatchInvoker struct {
	provider llm.Provider
	limiter  *Limiter
	config   InvokerConfig
	logger   *zap.Logger
}

// NewBatchInvoker creates a batch invoker. A nil limiter disables rate limiting.
func NewBatchInvoker(provider llm.Provider, limiter *Limiter, config InvokerConfig, logger *zap.Logger) *BatchInvoker {
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.Retry.Retryable == nil {
		config.Retry.Retryable = llm.IsRetryable
	}
	return &BatchInvoker{
		provider: provider,
		limiter:  limiter,
		config:   config,
		logger:   logging.OrNop(logger),
	}
}

// Provider returns the underlying provider
func (b *BatchInvoker) Provider() llm.Provider {
	return b.provider
}

// Temperature returns the sampling temperature used for every call
func (b *BatchInvoker) Temperature() float64 {
	return b.config.Temperature
}

// ItemResult is the outcome of one prompt in a batch
type ItemResult struct {
	Index    int
	Content  json.RawMessage
	Usage    model.Usage
	Attempts int
	Err      error
}

// GetError returns the item's error
func (r *ItemResult) GetError() error {
	return r.Err
}

// BatchResult holds per-item results in prompt order
type BatchResult struct {
	Items []ItemResult

	// Usage sums the usage of successful items
	Usage model.Usage
}

// Failed returns the number of failed items
func (r *BatchResult) Failed() int {
	n := 0
	for _, item := range r.Items {
		if item.Err != nil {
			n++
		}
	}
	return n
}

// Succeeded returns the number of successful items
func (r *BatchResult) Succeeded() int {
	return len(r.Items) - r.Failed()
}

// Call issues one provider call per prompt concurrently. Per-item failures
// are reported in the result; the returned error is non-nil only when the
// request itself is malformed.
func (b *BatchInvoker) Call(ctx context.Context, systemPrompt string, prompts []string, schema *llm.Schema) (*BatchResult, error) {
	switch {
	case b.provider == nil:
		return nil, fmt.Errorf("%w: no provider", ErrInvalidBatch)
	case schema == nil:
		return nil, fmt.Errorf("%w: no output schema", ErrInvalidBatch)
	case len(prompts) == 0:
		return nil, fmt.Errorf("%w: no prompts", ErrInvalidBatch)
	}

	pool := NewPool(ctx, b.config.Workers)
	pool.Start()
	for i, prompt := range prompts {
		pool.Submit(&callJob{
			invoker:      b,
			index:        i,
			systemPrompt: systemPrompt,
			userPrompt:   prompt,
			schema:       schema,
		})
	}
	results := pool.Wait()

	batch := &BatchResult{Items: make([]ItemResult, len(prompts))}
	for i, res := range results {
		item, ok := res.(*ItemResult)
		if !ok || item == nil {
			// Never ran: the caller gave up on the batch
			err := ctx.Err()
			if err == nil {
				err = context.Canceled
			}
			batch.Items[i] = ItemResult{Index: i, Err: err}
			continue
		}
		batch.Items[i] = *item
		if item.Err == nil {
			batch.Usage.Add(item.Usage)
		}
	}

	if failed := batch.Failed(); failed > 0 {
		b.logger.Warn("batch completed with failures",
			zap.String("schema", schema.Name),
			zap.Int("calls", len(prompts)),
			zap.Int("failed", failed))
	} else {
		b.logger.Debug("batch completed",
			zap.String("schema", schema.Name),
			zap.Int("calls", len(prompts)),
			zap.Int("total_tokens", batch.Usage.TotalTokens))
	}

	return batch, nil
}

// callJob is one provider call with its own retry budget
type callJob struct {
	invoker      *BatchInvoker
	index        int
	systemPrompt string
	userPrompt   string
	schema       *llm.Schema
}

func (j *callJob) Execute(ctx context.Context) Result {
	b := j.invoker
	result := &ItemResult{Index: j.index}
	key := Key(b.provider.Name(), b.provider.Model())

	policy := b.config.Retry
	retryable := policy.Retryable
	// A per-call timeout is transient; the caller's own deadline is not
	policy.Retryable = func(err error) bool {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return true
		}
		return retryable(err)
	}
	policy.OnRetry = func(attempt int, err error) {
		b.logger.Debug("retrying LLM call",
			zap.String("schema", j.schema.Name),
			zap.Int("index", j.index),
			zap.Int("attempt", attempt),
			zap.Error(err))
	}

	result.Attempts, result.Err = policy.Do(ctx, func(ctx context.Context) error {
		if b.limiter != nil {
			if err := b.limiter.Wait(ctx, key); err != nil {
				return err
			}
		}

		callCtx := ctx
		if b.config.CallTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, b.config.CallTimeout)
			defer cancel()
		}

		resp, err := b.provider.Invoke(callCtx, llm.Request{
			SystemPrompt: j.systemPrompt,
			UserPrompt:   j.userPrompt,
			Schema:       j.schema,
			Temperature:  b.config.Temperature,
		})
		if err != nil {
			return err
		}
		result.Content = resp.Content
		result.Usage = resp.Usage
		return nil
	})

	return result
}
