package audit

import (
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/ppiankov/claimtree/internal/model"
)

// Counter names for stage-specific rollups beyond the fixed summary fields
const (
	CounterExtractionFailed  = "extractionFailed"
	CounterExtractionCached  = "extractionCached"
	CounterTopicReassigned   = "topicReassigned"
	CounterTaxonomyRecovered = "taxonomyRecovered"
	CounterDedupFailed       = "deduplicationFailed"
	CounterDedupInvalidIDs   = "deduplicationInvalidIds"
	CounterCruxFailed        = "cruxFailed"
)

// Counters are the fixed rollup counters of a run
type Counters struct {
	RejectedBySanitization     int
	RejectedByMeaningfulness   int
	RejectedByClaimsExtraction int
	Deduplicated               int
	Accepted                   int
}

// Logger collects the audit trail of exactly one run. It is safe for
// concurrent use by the goroutines of that run; entry order is resolved when
// the artifact is built, not at append time.
type Logger struct {
	mu sync.Mutex

	reportID          string
	modelName         string
	createdAt         time.Time
	inputCommentCount int
	finalQuoteCount   int

	entries  []Entry
	counters Counters
	stages   map[string]int

	previewLength int
	now           func() time.Time
}

// Option configures a Logger
type Option func(*Logger)

// WithPreviewLength opts into text previews of at most n runes. Zero, the
// default, records no comment text at all.
func WithPreviewLength(n int) Option {
	return func(l *Logger) { l.previewLength = n }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(l *Logger) { l.now = now }
}

// NewLogger creates the audit trail for one report
func NewLogger(reportID, modelName string, opts ...Option) *Logger {
	l := &Logger{
		reportID:  reportID,
		modelName: modelName,
		stages:    make(map[string]int),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.createdAt = l.timestamp()
	return l
}

// ReportID returns the report this logger belongs to
func (l *Logger) ReportID() string {
	return l.reportID
}

// LogInput records that a comment entered the run
func (l *Logger) LogInput(c model.Comment) {
	l.append(Entry{
		EntryID:   c.ID,
		EntryType: EntryTypeComment,
		Step:      StepInput,
		Action:    ActionReceived,
		CommentID: c.ID,
		Details:   l.previewDetails(c.Text),
	}, func(l *Logger) { l.inputCommentCount++ })
}

// LogSanitizationRejected records a safety rejection. No text is kept.
func (l *Logger) LogSanitizationRejected(commentID, reason string) {
	l.append(Entry{
		EntryID:   commentID,
		EntryType: EntryTypeComment,
		Step:      StepSanitization,
		Action:    ActionRejected,
		Reason:    reason,
		CommentID: commentID,
	}, func(l *Logger) { l.counters.RejectedBySanitization++ })
}

// LogRejected records a non-safety rejection of a comment at step
func (l *Logger) LogRejected(commentID string, step Step, reason, text string) {
	if step == StepSanitization {
		l.LogSanitizationRejected(commentID, reason)
		return
	}
	l.append(Entry{
		EntryID:   commentID,
		EntryType: EntryTypeComment,
		Step:      step,
		Action:    ActionRejected,
		Reason:    reason,
		CommentID: commentID,
		Details:   l.previewDetails(text),
	}, func(l *Logger) {
		switch step {
		case StepMeaningfulness:
			l.counters.RejectedByMeaningfulness++
		case StepClaimsExtraction:
			l.counters.RejectedByClaimsExtraction++
		default:
			l.stages["rejectedBy"+camel(string(step))]++
		}
	})
}

// LogModified records that a comment's data was altered at step
func (l *Logger) LogModified(commentID string, step Step, reason string, details *Details) {
	l.append(Entry{
		EntryID:   commentID,
		EntryType: EntryTypeComment,
		Step:      step,
		Action:    ActionModified,
		Reason:    reason,
		CommentID: commentID,
		Details:   details,
	}, nil)
}

// LogExtractionResult records successful claim extraction for a comment
func (l *Logger) LogExtractionResult(commentID string, claimCount int, claimIDs []string, fromCache bool) {
	l.append(Entry{
		EntryID:   commentID,
		EntryType: EntryTypeComment,
		Step:      StepClaimsExtraction,
		Action:    ActionAccepted,
		CommentID: commentID,
		Details: &Details{
			ClaimCount: intPtr(claimCount),
			ClaimIDs:   append([]string(nil), claimIDs...),
			FromCache:  fromCache,
		},
	}, func(l *Logger) {
		l.counters.Accepted++
		if fromCache {
			l.stages[CounterExtractionCached]++
		}
	})
}

// LogDeduplication records that mergedIDs were nested under primaryID in a
// subtopic. Claim ids are only unique per subtopic, so the subtopic is part
// of the entry id.
func (l *Logger) LogDeduplication(subtopic, primaryID string, mergedIDs []string) {
	l.append(Entry{
		EntryID:   fmt.Sprintf("dedup:%s:%s", subtopic, primaryID),
		EntryType: EntryTypeOther,
		Step:      StepDeduplication,
		Action:    ActionDeduplicated,
		Details: &Details{
			Subtopic:       subtopic,
			PrimaryClaimID: primaryID,
			MergedClaimIDs: append([]string(nil), mergedIDs...),
		},
	}, func(l *Logger) { l.counters.Deduplicated += len(mergedIDs) })
}

// LogEvent records a run-level event keyed by <category>:<subject>
func (l *Logger) LogEvent(category, subject string, step Step, action Action, reason string, details *Details) {
	l.append(Entry{
		EntryID:   category + ":" + subject,
		EntryType: EntryTypeOther,
		Step:      step,
		Action:    action,
		Reason:    reason,
		Details:   details,
	}, nil)
}

// Increment bumps a stage-specific counter
func (l *Logger) Increment(counter string, n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stages[counter] += n
}

// SetFinalQuoteCount records how many quotes survived into the final tree
func (l *Logger) SetFinalQuoteCount(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.finalQuoteCount = n
}

// Counters returns a snapshot of the fixed counters
func (l *Logger) Counters() Counters {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counters
}

// Counter returns a stage-specific counter
func (l *Logger) Counter(name string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stages[name]
}

// Entries returns a copy of the entries in append order
func (l *Logger) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Entry(nil), l.entries...)
}

// append adds an entry and applies its counter update under one lock
func (l *Logger) append(e Entry, update func(*Logger)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.Timestamp = l.timestamp()
	l.entries = append(l.entries, e)
	if update != nil {
		update(l)
	}
}

func (l *Logger) timestamp() time.Time {
	// UTC drops the monotonic reading so timestamps survive a JSON round trip
	return l.now().UTC()
}

func (l *Logger) previewDetails(text string) *Details {
	p := Preview(text, l.previewLength)
	if p == "" {
		return nil
	}
	return &Details{TextPreview: p}
}

// Preview returns at most n runes of text, marking truncation. n <= 0 yields
// an empty preview.
func Preview(text string, n int) string {
	if n <= 0 {
		return ""
	}
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	runes := []rune(text)
	return string(runes[:n]) + "…"
}

// camel turns claims_extraction into ClaimsExtraction
func camel(s string) string {
	parts := strings.Split(s, "_")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, "")
}
