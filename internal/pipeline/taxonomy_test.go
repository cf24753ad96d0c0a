package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/claimtree/internal/audit"
	"github.com/ppiankov/claimtree/internal/llm"
	"github.com/ppiankov/claimtree/internal/model"
)

func TestTaxonomyBuilder_Build(t *testing.T) {
	provider := newFakeProvider(petsResponder)
	trail := newTrail()

	tax, usage, err := NewTaxonomyBuilder(testInvoker(provider), nil).Build(context.Background(), petsComments(), trail)
	require.NoError(t, err)

	assert.Equal(t, []string{"Pets"}, tax.TopicNames())
	assert.Equal(t, []string{"Cats", "Dogs", "Birds"}, tax.SubtopicNames())
	assert.Equal(t, "Feelings about cats", tax[0].Subtopics[0].ShortDescription)
	assert.Equal(t, 15, usage.TotalTokens)
	assert.Equal(t, 1, provider.callsFor(OpTaxonomy))
	assert.Empty(t, trail.Entries())
}

func TestTaxonomyBuilder_FailureIsFatal(t *testing.T) {
	provider := newFakeProvider(func(llm.Request) (string, error) { return "", errScripted })

	_, _, err := NewTaxonomyBuilder(testInvoker(provider), nil).Build(context.Background(), petsComments(), newTrail())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTaxonomyFailed))
	assert.True(t, errors.Is(err, errScripted))
}

func TestTaxonomyBuilder_EmptyTaxonomyIsFatal(t *testing.T) {
	provider := newFakeProvider(func(llm.Request) (string, error) { return `{"taxonomy":[]}`, nil })

	_, _, err := NewTaxonomyBuilder(testInvoker(provider), nil).Build(context.Background(), petsComments(), newTrail())
	assert.ErrorIs(t, err, ErrTaxonomyFailed)
}

func TestTaxonomyBuilder_MalformedOutputIsFatal(t *testing.T) {
	provider := newFakeProvider(func(llm.Request) (string, error) {
		return `{"taxonomy":[{"topicName":"Pets"}]}`, nil
	})

	_, _, err := NewTaxonomyBuilder(testInvoker(provider), nil).Build(context.Background(), petsComments(), newTrail())
	assert.ErrorIs(t, err, ErrTaxonomyFailed)
	assert.ErrorIs(t, err, llm.ErrMalformedOutput)
}

func TestRepairTaxonomy_DuplicateSubtopic(t *testing.T) {
	trail := newTrail()
	tax := repairTaxonomy([]model.Topic{
		{Name: "Pets", Subtopics: []model.Subtopic{{Name: "Care"}, {Name: "Cats"}}},
		{Name: "Kids", Subtopics: []model.Subtopic{{Name: "Care"}}},
	}, trail)

	require.NoError(t, tax.Validate())
	assert.Equal(t, []string{"Care", "Cats", "Care (Kids)"}, tax.SubtopicNames())

	owner, ok := tax.OwnerOf("Care (Kids)")
	assert.True(t, ok)
	assert.Equal(t, "Kids", owner)

	assert.Equal(t, 1, trail.Counter(audit.CounterTaxonomyRecovered))
	entries := trail.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "taxonomy:duplicate_subtopic:Care", entries[0].EntryID)
	assert.Equal(t, audit.StepTaxonomy, entries[0].Step)
	assert.Equal(t, audit.ActionModified, entries[0].Action)
	assert.Equal(t, "Care (Kids)", entries[0].Details.Subtopic)
}

func TestRepairTaxonomy_StructuralFixes(t *testing.T) {
	trail := newTrail()
	tax := repairTaxonomy([]model.Topic{
		{Name: "  ", Subtopics: []model.Subtopic{{Name: "Orphan"}}},
		{Name: "Food", Subtopics: []model.Subtopic{{Name: " Kibble "}, {Name: ""}}},
		{Name: "Toys"},
		{Name: "Food", Subtopics: []model.Subtopic{{Name: "Treats"}, {Name: "Kibble"}}},
	}, trail)

	require.NoError(t, tax.Validate())
	assert.Equal(t, []string{"Food", "Toys"}, tax.TopicNames())
	assert.Equal(t, []string{"Kibble", "Treats", "Toys"}, tax.SubtopicNames())
	assert.Equal(t, 2, trail.Counter(audit.CounterTaxonomyRecovered))
}
