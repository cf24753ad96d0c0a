package score

import (
	"math"
	"sort"

	"github.com/ppiankov/claimtree/internal/model"
)

// Scorer computes rollup statistics and controversy for an assembled tree
type Scorer struct{}

// NewScorer creates a new scorer
func NewScorer() *Scorer {
	return &Scorer{}
}

// Controversy measures how evenly speakers split on a statement, in [0, 1].
// An even split scores 1, unanimity (or no speakers at all) scores 0.
func Controversy(agree, disagree int) float64 {
	if agree < 0 {
		agree = 0
	}
	if disagree < 0 {
		disagree = 0
	}
	total := agree + disagree
	if total == 0 {
		return 0
	}
	return 1 - math.Abs(float64(agree-disagree))/float64(total)
}

// Crux builds a crux from speaker lists. Speakers outside known are dropped,
// as are speakers listed on both sides.
func (s *Scorer) Crux(statement string, agree, disagree []string, known map[string]bool) model.Crux {
	a := filterSpeakers(agree, known)
	d := filterSpeakers(disagree, known)

	inA := make(map[string]bool, len(a))
	for _, sp := range a {
		inA[sp] = true
	}
	both := make(map[string]bool)
	for _, sp := range d {
		if inA[sp] {
			both[sp] = true
		}
	}

	a = without(a, both)
	d = without(d, both)

	return model.Crux{
		Statement:   statement,
		Agree:       a,
		Disagree:    d,
		Controversy: Controversy(len(a), len(d)),
	}
}

// Rollup counts topics, subtopics, top-level claims, quotes (duplicates
// included) and distinct speakers in tree
func (s *Scorer) Rollup(tree model.Tree) model.Stats {
	stats := model.Stats{Topics: len(tree.Topics)}
	speakers := make(map[string]bool)

	for _, topic := range tree.Topics {
		stats.Subtopics += len(topic.Subtopics)
		for _, sub := range topic.Subtopics {
			stats.Claims += len(sub.Claims)
			for _, c := range sub.Claims {
				stats.Quotes += c.Support()
				for _, sp := range c.Speakers() {
					speakers[sp] = true
				}
			}
		}
	}

	stats.Speakers = len(speakers)
	return stats
}

// SubtopicSpeakers returns the sorted distinct speakers of a subtopic
func SubtopicSpeakers(sub model.SubtopicNode) []string {
	seen := make(map[string]bool)
	for _, c := range sub.Claims {
		for _, sp := range c.Speakers() {
			seen[sp] = true
		}
	}
	out := make([]string, 0, len(seen))
	for sp := range seen {
		out = append(out, sp)
	}
	sort.Strings(out)
	return out
}

func filterSpeakers(in []string, known map[string]bool) []string {
	seen := make(map[string]bool)
	var out []string
	for _, sp := range in {
		if seen[sp] || (known != nil && !known[sp]) {
			continue
		}
		seen[sp] = true
		out = append(out, sp)
	}
	return out
}

func without(in []string, drop map[string]bool) []string {
	out := make([]string, 0, len(in))
	for _, sp := range in {
		if !drop[sp] {
			out = append(out, sp)
		}
	}
	return out
}
