package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ppiankov/claimtree/internal/audit"
	"github.com/ppiankov/claimtree/internal/model"
)

// Renderer writes run results
type Renderer struct{}

// NewRenderer creates a renderer
func NewRenderer() *Renderer {
	return &Renderer{}
}

// RenderJSON writes v as indented JSON, creating parent directories
func (r *Renderer) RenderJSON(v interface{}, path string) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// RenderSummary prints a short human summary of a run
func (r *Renderer) RenderSummary(w io.Writer, result *model.Result, artifact *audit.Artifact) {
	fmt.Fprintf(w, "Report: %s\n", result.ReportID)
	fmt.Fprintf(w, "Model: %s\n", result.Model)
	fmt.Fprintf(w, "Topics: %d  Subtopics: %d  Claims: %d  Quotes: %d  Speakers: %d\n",
		result.Stats.Topics, result.Stats.Subtopics, result.Stats.Claims, result.Stats.Quotes, result.Stats.Speakers)
	fmt.Fprintf(w, "Tokens: %d (prompt %d, completion %d)\n",
		result.Usage.TotalTokens, result.Usage.PromptTokens, result.Usage.CompletionTokens)

	if artifact != nil {
		s := artifact.Summary
		fmt.Fprintf(w, "Comments: %d in, %d accepted, %d rejected by sanitization, %d by meaningfulness, %d by extraction, %d deduplicated\n",
			artifact.InputCommentCount, s.Accepted, s.RejectedBySanitization, s.RejectedByMeaningfulness,
			s.RejectedByClaimsExtraction, s.Deduplicated)
	}

	for _, topic := range result.Tree.Topics {
		fmt.Fprintf(w, "\n%s (%d claims)\n", topic.Name, topic.ClaimCount())
		for _, sub := range topic.Subtopics {
			fmt.Fprintf(w, "  %s (%d)\n", sub.Name, len(sub.Claims))
			if sub.Crux != nil {
				fmt.Fprintf(w, "    crux: %s [controversy %.2f]\n", sub.Crux.Statement, sub.Crux.Controversy)
			}
		}
	}
}
