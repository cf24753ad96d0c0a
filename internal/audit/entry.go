// Package audit records every accept, reject, modify and merge decision a run
// makes about its comments, and serializes them into a privacy-scrubbed
// artifact that can be persisted and read back by later versions.
package audit

import "time"

// EntryType distinguishes per-comment entries from run-level events
type EntryType string

const (
	EntryTypeComment EntryType = "comment"
	EntryTypeOther   EntryType = "other"
)

// Action is the decision an entry records
type Action string

const (
	ActionReceived     Action = "received"
	ActionAccepted     Action = "accepted"
	ActionRejected     Action = "rejected"
	ActionModified     Action = "modified"
	ActionDeduplicated Action = "deduplicated"
)

// Step names a pipeline stage
type Step string

const (
	StepInput            Step = "input"
	StepSanitization     Step = "sanitization"
	StepMeaningfulness   Step = "meaningfulness"
	StepTaxonomy         Step = "taxonomy"
	StepClaimsExtraction Step = "claims_extraction"
	StepDeduplication    Step = "deduplication"
	StepCrux             Step = "crux"
	StepOutput           Step = "output"
)

// stageOrder fixes the artifact sort order. Unknown steps sort after all of these.
var stageOrder = map[Step]int{
	StepInput:            0,
	StepSanitization:     1,
	StepMeaningfulness:   2,
	StepTaxonomy:         3,
	StepClaimsExtraction: 4,
	StepDeduplication:    5,
	StepCrux:             6,
	StepOutput:           7,
}

// Entry is one decision about one comment or one run-level subject.
// Entries are appended once and never mutated.
type Entry struct {
	EntryID   string    `json:"entryId"`
	EntryType EntryType `json:"entryType"`
	Step      Step      `json:"step"`
	Action    Action    `json:"action"`
	Reason    string    `json:"reason,omitempty"`
	Details   *Details  `json:"details,omitempty"`
	CommentID string    `json:"commentId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Details carries optional structured context. Text appears only as a
// bounded preview and never for safety rejections.
type Details struct {
	TextPreview    string            `json:"textPreview,omitempty"`
	ClaimCount     *int              `json:"claimCount,omitempty"`
	ClaimIDs       []string          `json:"claimIds,omitempty"`
	PrimaryClaimID string            `json:"primaryClaimId,omitempty"`
	MergedClaimIDs []string          `json:"mergedClaimIds,omitempty"`
	Topic          string            `json:"topic,omitempty"`
	Subtopic       string            `json:"subtopic,omitempty"`
	FromCache      bool              `json:"fromCache,omitempty"`
	Extra          map[string]string `json:"extra,omitempty"`
}

func intPtr(n int) *int { return &n }
