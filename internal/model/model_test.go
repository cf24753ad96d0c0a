package model

import (
	"strings"
	"testing"
)

func TestTaxonomy_Validate(t *testing.T) {
	tests := []struct {
		name    string
		tax     Taxonomy
		wantErr string
	}{
		{
			name: "valid",
			tax: Taxonomy{
				{Name: "Pets", Subtopics: []Subtopic{{Name: "Cats"}, {Name: "Dogs"}}},
				{Name: "Parks", Subtopics: []Subtopic{{Name: "Benches"}}},
			},
		},
		{name: "empty", tax: Taxonomy{}, wantErr: "no topics"},
		{
			name:    "blank topic",
			tax:     Taxonomy{{Name: "  "}},
			wantErr: "empty name",
		},
		{
			name: "duplicate subtopic across topics",
			tax: Taxonomy{
				{Name: "Pets", Subtopics: []Subtopic{{Name: "Cost"}}},
				{Name: "Parks", Subtopics: []Subtopic{{Name: "Cost"}}},
			},
			wantErr: "appears under both",
		},
		{
			name:    "duplicate topic",
			tax:     Taxonomy{{Name: "Pets"}, {Name: "Pets"}},
			wantErr: "duplicate topic",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.tax.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestTaxonomy_OwnerOf(t *testing.T) {
	tax := Taxonomy{
		{Name: "Pets", Subtopics: []Subtopic{{Name: "Cats"}}},
		{Name: "Parks", Subtopics: []Subtopic{{Name: "Benches"}}},
	}

	owner, ok := tax.OwnerOf("Benches")
	if !ok || owner != "Parks" {
		t.Errorf("expected Parks, got %q (ok=%v)", owner, ok)
	}
	if _, ok := tax.OwnerOf("Birds"); ok {
		t.Error("expected unknown subtopic to have no owner")
	}
	if got := tax.SubtopicNames(); len(got) != 2 || got[0] != "Cats" {
		t.Errorf("unexpected subtopic names: %v", got)
	}
}

func TestClaim_SupportAndSpeakers(t *testing.T) {
	c := Claim{
		BaseClaim: BaseClaim{ExtractedClaim: ExtractedClaim{CommentID: "1", Speaker: "ana"}, ClaimID: "1"},
		Duplicates: []BaseClaim{
			{ExtractedClaim: ExtractedClaim{CommentID: "2", Speaker: "ana"}, ClaimID: "2"},
			{ExtractedClaim: ExtractedClaim{CommentID: "3"}, ClaimID: "3"},
		},
	}

	if c.Support() != 3 {
		t.Errorf("expected support 3, got %d", c.Support())
	}
	speakers := c.Speakers()
	if len(speakers) != 2 || speakers[0] != "ana" || speakers[1] != "3" {
		t.Errorf("unexpected speakers: %v", speakers)
	}
}

func TestUsage_Add(t *testing.T) {
	u := Usage{PromptTokens: 1, CompletionTokens: 2, TotalTokens: 3}
	u.Add(Usage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30})
	if u.PromptTokens != 11 || u.CompletionTokens != 22 || u.TotalTokens != 33 {
		t.Errorf("unexpected usage: %+v", u)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Cache.TTL.Hours() != 24 {
		t.Errorf("expected 24h cache ttl, got %v", cfg.Cache.TTL)
	}
	if cfg.Audit.TTL.Hours() != 6 {
		t.Errorf("expected 6h audit ttl, got %v", cfg.Audit.TTL)
	}
	if cfg.Retry.MaxAttempts < 1 {
		t.Errorf("expected at least one attempt, got %d", cfg.Retry.MaxAttempts)
	}
}
