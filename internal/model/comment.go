package model

// Comment is a single free-text input to a run
type Comment struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Speaker string `json:"speaker,omitempty"`
}

// SpeakerOrID returns the speaker, falling back to the comment id so that
// anonymous comments still count as distinct voices
func (c Comment) SpeakerOrID() string {
	if c.Speaker != "" {
		return c.Speaker
	}
	return c.ID
}
