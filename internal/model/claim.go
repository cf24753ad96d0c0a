package model

// ExtractedClaim is one claim pulled out of a single comment. TopicName and
// SubtopicName are always exact taxonomy strings.
type ExtractedClaim struct {
	Claim        string `json:"claim"`
	Quote        string `json:"quote"`
	TopicName    string `json:"topicName"`
	SubtopicName string `json:"subtopicName"`

	CommentID string `json:"commentId,omitempty"` // Source comment, set by the extractor
	Speaker   string `json:"speaker,omitempty"`
}

// BaseClaim is an ExtractedClaim with an id that is unique within its subtopic
type BaseClaim struct {
	ExtractedClaim
	ClaimID string `json:"claimId"`
}

// Claim is the outcome of deduplication. A claim with duplicates is the
// primary of a merge group.
type Claim struct {
	BaseClaim
	Duplicates []BaseClaim `json:"duplicates"`
}

// Support is the number of comments backing this claim
func (c Claim) Support() int {
	return 1 + len(c.Duplicates)
}

// Speakers returns the distinct speakers behind the claim and its duplicates
func (c Claim) Speakers() []string {
	seen := make(map[string]bool)
	var speakers []string
	add := func(b BaseClaim) {
		s := b.Speaker
		if s == "" {
			s = b.CommentID
		}
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		speakers = append(speakers, s)
	}
	add(c.BaseClaim)
	for _, d := range c.Duplicates {
		add(d)
	}
	return speakers
}
