package pipeline

import (
	"fmt"
	"strings"

	"github.com/ppiankov/claimtree/internal/model"
)

// Operation tags used in cache keys
const (
	OpTaxonomy = "taxonomy"
	OpClaims   = "claims"
	OpDedup    = "dedup"
	OpCrux     = "crux"
)

const taxonomySystemPrompt = `You are a research assistant organizing public comments.
Derive a taxonomy of topics and subtopics that covers every comment.
Use short, distinct names. Every subtopic name must be unique across the
whole taxonomy. Each topic needs at least one subtopic.`

const claimsSystemPrompt = `You are a research assistant extracting claims from one public comment.
A claim is a short, general, debatable assertion made by the comment.
Each claim must be backed by an exact quote from the comment.
Use only the topic and subtopic names you are given, spelled exactly.
Return an empty list when the comment makes no claim.`

// claimsUserTemplate is the unfilled user prompt, hashed into cache keys
const claimsUserTemplate = `Topics and subtopics:
{{taxonomy}}

Comment:
{{comment}}`

const dedupSystemPrompt = `You are a research assistant grouping near-duplicate claims.
Two claims are duplicates when they make the same assertion, even if worded
differently. For every group pick one primary claim and list the ids of the
claims that duplicate it. Use only the ids you are given.`

const cruxSystemPrompt = `You are a research assistant finding the point of disagreement
among participants. Write one crux statement that best splits the
participants, then list who would agree and who would disagree with it.
Use only the participant names you are given.`

func taxonomyUserPrompt(comments []model.Comment) string {
	var b strings.Builder
	b.WriteString("Comments:\n")
	for _, c := range comments {
		fmt.Fprintf(&b, "- %s\n", oneLine(c.Text))
	}
	return b.String()
}

func claimsUserPrompt(tax model.Taxonomy, text string) string {
	r := strings.NewReplacer(
		"{{taxonomy}}", taxonomyOutline(tax),
		"{{comment}}", text,
	)
	return r.Replace(claimsUserTemplate)
}

// taxonomyOutline lists names only; descriptions never reach the extractor
func taxonomyOutline(tax model.Taxonomy) string {
	var b strings.Builder
	for _, topic := range tax {
		fmt.Fprintf(&b, "- %s\n", topic.Name)
		for _, sub := range topic.Subtopics {
			fmt.Fprintf(&b, "  - %s\n", sub.Name)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func dedupUserPrompt(subtopic string, claims []model.BaseClaim) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Subtopic: %s\n\nClaims:\n", subtopic)
	for _, c := range claims {
		fmt.Fprintf(&b, "[%s] %s\n", c.ClaimID, oneLine(c.Claim))
	}
	return b.String()
}

func cruxUserPrompt(topic, subtopic string, claims []model.Claim) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Topic: %s\nSubtopic: %s\n\nParticipants and their claims:\n", topic, subtopic)
	for _, c := range claims {
		for _, bc := range append([]model.BaseClaim{c.BaseClaim}, c.Duplicates...) {
			fmt.Fprintf(&b, "%s: %s\n", speakerOf(bc), oneLine(bc.Claim))
		}
	}
	return b.String()
}

func speakerOf(c model.BaseClaim) string {
	if c.Speaker != "" {
		return c.Speaker
	}
	return c.CommentID
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
