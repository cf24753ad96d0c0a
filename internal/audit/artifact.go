package audit

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"
)

// ArtifactVersion is the schema version written by ToArtifact
const ArtifactVersion = 1

// Artifact is the persisted, privacy-scrubbed record of one run
type Artifact struct {
	Version           int       `json:"version"`
	ReportID          string    `json:"reportId"`
	CreatedAt         time.Time `json:"createdAt"`
	InputCommentCount int       `json:"inputCommentCount"`
	FinalQuoteCount   int       `json:"finalQuoteCount"`
	ModelName         string    `json:"modelName,omitempty"`
	Entries           []Entry   `json:"entries"`
	Summary           Summary   `json:"summary"`
}

// Summary holds the rollup counters. Stage-specific counters are flattened
// next to the fixed ones in JSON.
type Summary struct {
	RejectedBySanitization     int
	RejectedByMeaningfulness   int
	RejectedByClaimsExtraction int
	Deduplicated               int
	Accepted                   int
	Stages                     map[string]int
	HumanReadable              HumanReadable
}

// HumanReadable holds derived percentages
type HumanReadable struct {
	AcceptanceRate    string `json:"acceptanceRate"`
	RejectionRate     string `json:"rejectionRate"`
	DeduplicationRate string `json:"deduplicationRate"`
}

const (
	keyRejectedBySanitization     = "rejectedBySanitization"
	keyRejectedByMeaningfulness   = "rejectedByMeaningfulness"
	keyRejectedByClaimsExtraction = "rejectedByClaimsExtraction"
	keyDeduplicated               = "deduplicated"
	keyAccepted                   = "accepted"
	keyHumanReadable              = "humanReadable"
)

// MarshalJSON flattens Stages into the summary object
func (s Summary) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(s.Stages)+6)
	for k, v := range s.Stages {
		out[k] = v
	}
	out[keyRejectedBySanitization] = s.RejectedBySanitization
	out[keyRejectedByMeaningfulness] = s.RejectedByMeaningfulness
	out[keyRejectedByClaimsExtraction] = s.RejectedByClaimsExtraction
	out[keyDeduplicated] = s.Deduplicated
	out[keyAccepted] = s.Accepted
	out[keyHumanReadable] = s.HumanReadable
	return json.Marshal(out)
}

// UnmarshalJSON accepts summaries written by older or newer versions.
// Missing counters stay zero and unknown numeric keys become stage counters.
func (s *Summary) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode summary: %w", err)
	}

	*s = Summary{}
	fixed := map[string]*int{
		keyRejectedBySanitization:     &s.RejectedBySanitization,
		keyRejectedByMeaningfulness:   &s.RejectedByMeaningfulness,
		keyRejectedByClaimsExtraction: &s.RejectedByClaimsExtraction,
		keyDeduplicated:               &s.Deduplicated,
		keyAccepted:                   &s.Accepted,
	}

	for k, v := range raw {
		if k == keyHumanReadable {
			if err := json.Unmarshal(v, &s.HumanReadable); err != nil {
				return fmt.Errorf("decode summary.%s: %w", k, err)
			}
			continue
		}

		var n int
		if err := json.Unmarshal(v, &n); err != nil {
			// Non-integer values from a future version are ignored
			continue
		}
		if dst, ok := fixed[k]; ok {
			*dst = n
			continue
		}
		if s.Stages == nil {
			s.Stages = make(map[string]int)
		}
		s.Stages[k] = n
	}
	return nil
}

// ToArtifact snapshots the logger. Entries are ordered by stage, then
// numeric comment id (non-numeric ids and run events last), then timestamp,
// so identical inputs produce identical diffs.
func (l *Logger) ToArtifact() *Artifact {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries := append([]Entry(nil), l.entries...)
	sortEntries(entries)

	var stages map[string]int
	if len(l.stages) > 0 {
		stages = make(map[string]int, len(l.stages))
		for k, v := range l.stages {
			stages[k] = v
		}
	}

	summary := Summary{
		RejectedBySanitization:     l.counters.RejectedBySanitization,
		RejectedByMeaningfulness:   l.counters.RejectedByMeaningfulness,
		RejectedByClaimsExtraction: l.counters.RejectedByClaimsExtraction,
		Deduplicated:               l.counters.Deduplicated,
		Accepted:                   l.counters.Accepted,
		Stages:                     stages,
	}
	summary.HumanReadable = humanReadable(summary, l.inputCommentCount, l.finalQuoteCount)

	if entries == nil {
		entries = []Entry{}
	}

	return &Artifact{
		Version:           ArtifactVersion,
		ReportID:          l.reportID,
		CreatedAt:         l.createdAt,
		InputCommentCount: l.inputCommentCount,
		FinalQuoteCount:   l.finalQuoteCount,
		ModelName:         l.modelName,
		Entries:           entries,
		Summary:           summary,
	}
}

// FromArtifact rebuilds a logger from a persisted artifact
func FromArtifact(a *Artifact) *Logger {
	l := NewLogger(a.ReportID, a.ModelName)
	l.createdAt = a.CreatedAt
	l.inputCommentCount = a.InputCommentCount
	l.finalQuoteCount = a.FinalQuoteCount
	l.entries = append([]Entry(nil), a.Entries...)
	l.counters = Counters{
		RejectedBySanitization:     a.Summary.RejectedBySanitization,
		RejectedByMeaningfulness:   a.Summary.RejectedByMeaningfulness,
		RejectedByClaimsExtraction: a.Summary.RejectedByClaimsExtraction,
		Deduplicated:               a.Summary.Deduplicated,
		Accepted:                   a.Summary.Accepted,
	}
	for k, v := range a.Summary.Stages {
		l.stages[k] = v
	}
	return l
}

// Marshal encodes the artifact as indented JSON
func (a *Artifact) Marshal() ([]byte, error) {
	return json.MarshalIndent(a, "", "  ")
}

// ParseArtifact decodes an artifact written by this or an older version
func ParseArtifact(data []byte) (*Artifact, error) {
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	if a.Version > ArtifactVersion {
		return nil, fmt.Errorf("artifact version %d is newer than supported version %d", a.Version, ArtifactVersion)
	}
	if a.Version == 0 {
		a.Version = ArtifactVersion
	}
	if a.Entries == nil {
		a.Entries = []Entry{}
	}
	return &a, nil
}

func humanReadable(s Summary, inputCount, quoteCount int) HumanReadable {
	rejected := s.RejectedBySanitization + s.RejectedByMeaningfulness + s.RejectedByClaimsExtraction
	return HumanReadable{
		AcceptanceRate:    percent(s.Accepted, inputCount),
		RejectionRate:     percent(rejected, inputCount),
		DeduplicationRate: percent(s.Deduplicated, quoteCount),
	}
}

func percent(n, d int) string {
	if d <= 0 {
		return "0.0%"
	}
	return fmt.Sprintf("%.1f%%", 100*float64(n)/float64(d))
}

func sortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]

		if sa, sb := stageRank(a.Step), stageRank(b.Step); sa != sb {
			return sa < sb
		}

		if c := compareCommentIDs(a.CommentID, b.CommentID); c != 0 {
			return c < 0
		}

		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		return a.EntryID < b.EntryID
	})
}

func stageRank(s Step) int {
	if r, ok := stageOrder[s]; ok {
		return r
	}
	return len(stageOrder)
}

// compareCommentIDs orders numeric ids by value, then non-numeric ids
// lexically, then entries without a comment id
func compareCommentIDs(a, b string) int {
	na, errA := strconv.ParseInt(a, 10, 64)
	nb, errB := strconv.ParseInt(b, 10, 64)
	aNum, bNum := errA == nil, errB == nil

	switch {
	case aNum && bNum:
		switch {
		case na < nb:
			return -1
		case na > nb:
			return 1
		}
		return 0
	case aNum:
		return -1
	case bNum:
		return 1
	}

	switch {
	case a == b:
		return 0
	case a == "":
		return 1
	case b == "":
		return -1
	case a < b:
		return -1
	default:
		return 1
	}
}
