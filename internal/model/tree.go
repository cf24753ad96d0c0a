package model

import "time"

// Tree is the final sorted topic/subtopic/claim structure
type Tree struct {
	Topics []TopicNode `json:"topics"`
}

// TopicNode is a topic with its assembled subtopics
type TopicNode struct {
	Name             string         `json:"topicName"`
	ShortDescription string         `json:"topicShortDescription,omitempty"`
	Subtopics        []SubtopicNode `json:"subtopics"`
}

// ClaimCount sums the top-level claims of every subtopic
func (t TopicNode) ClaimCount() int {
	n := 0
	for _, s := range t.Subtopics {
		n += len(s.Claims)
	}
	return n
}

// SubtopicNode is a subtopic with its deduplicated claims
type SubtopicNode struct {
	Name             string  `json:"subtopicName"`
	ShortDescription string  `json:"subtopicShortDescription,omitempty"`
	Claims           []Claim `json:"claims"`
	Crux             *Crux   `json:"crux,omitempty"`
}

// Crux is the statement that best splits the speakers of a subtopic
type Crux struct {
	Statement   string   `json:"statement"`
	Agree       []string `json:"agree"`
	Disagree    []string `json:"disagree"`
	Controversy float64  `json:"controversy"`
}

// QuoteCount counts every quote that survives into the tree, duplicates included
func (t Tree) QuoteCount() int {
	n := 0
	for _, topic := range t.Topics {
		for _, sub := range topic.Subtopics {
			for _, c := range sub.Claims {
				n += c.Support()
			}
		}
	}
	return n
}

// Result is the output of one pipeline run
type Result struct {
	ReportID  string    `json:"reportId"`
	CreatedAt time.Time `json:"createdAt"`
	Model     string    `json:"model"`
	Taxonomy  Taxonomy  `json:"taxonomy"`
	Tree      Tree      `json:"tree"`
	Usage     Usage     `json:"usage"`
	Stats     Stats     `json:"stats"`
}

// Stats is a rollup of the assembled tree
type Stats struct {
	Topics    int `json:"topics"`
	Subtopics int `json:"subtopics"`
	Claims    int `json:"claims"`
	Quotes    int `json:"quotes"`
	Speakers  int `json:"speakers"`
}
