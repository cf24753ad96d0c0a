package model

import (
	"fmt"
	"strings"
)

// Topic is a top-level theme derived from the comment set
type Topic struct {
	Name             string     `json:"topicName"`
	ShortDescription string     `json:"topicShortDescription"`
	Subtopics        []Subtopic `json:"subtopics"`
}

// Subtopic is a finer-grained theme inside a topic
type Subtopic struct {
	Name             string `json:"subtopicName"`
	ShortDescription string `json:"subtopicShortDescription"`
}

// Taxonomy is the ordered topic/subtopic vocabulary for one run
type Taxonomy []Topic

// TopicNames returns topic names in taxonomy order
func (t Taxonomy) TopicNames() []string {
	names := make([]string, 0, len(t))
	for _, topic := range t {
		names = append(names, topic.Name)
	}
	return names
}

// SubtopicNames returns every subtopic name in taxonomy order
func (t Taxonomy) SubtopicNames() []string {
	var names []string
	for _, topic := range t {
		for _, sub := range topic.Subtopics {
			names = append(names, sub.Name)
		}
	}
	return names
}

// OwnerOf returns the topic that owns the named subtopic
func (t Taxonomy) OwnerOf(subtopic string) (string, bool) {
	for _, topic := range t {
		for _, sub := range topic.Subtopics {
			if sub.Name == subtopic {
				return topic.Name, true
			}
		}
	}
	return "", false
}

// Validate checks that names are present and subtopic names are unique across
// the whole taxonomy. The extractor sees subtopics as one flat list, so a name
// shared by two topics could not be attributed.
func (t Taxonomy) Validate() error {
	if len(t) == 0 {
		return fmt.Errorf("taxonomy has no topics")
	}

	topics := make(map[string]bool)
	subtopics := make(map[string]string)
	for i, topic := range t {
		if strings.TrimSpace(topic.Name) == "" {
			return fmt.Errorf("topic %d has empty name", i)
		}
		if topics[topic.Name] {
			return fmt.Errorf("duplicate topic name %q", topic.Name)
		}
		topics[topic.Name] = true

		for _, sub := range topic.Subtopics {
			if strings.TrimSpace(sub.Name) == "" {
				return fmt.Errorf("topic %q has a subtopic with empty name", topic.Name)
			}
			if owner, exists := subtopics[sub.Name]; exists {
				return fmt.Errorf("subtopic %q appears under both %q and %q", sub.Name, owner, topic.Name)
			}
			subtopics[sub.Name] = topic.Name
		}
	}
	return nil
}
