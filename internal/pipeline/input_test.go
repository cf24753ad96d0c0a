package pipeline

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/claimtree/internal/audit"
	"github.com/ppiankov/claimtree/internal/model"
)

func TestParseCSV_WithHeader(t *testing.T) {
	in := "speaker,comment,id\nann,I love cats,10\nbob,\"dogs, mostly\",11\n"
	comments, err := ParseCSV(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []model.Comment{
		{ID: "10", Text: "I love cats", Speaker: "ann"},
		{ID: "11", Text: "dogs, mostly", Speaker: "bob"},
	}, comments)
}

func TestParseCSV_Positional(t *testing.T) {
	in := "a,I love cats\n,dogs are great,bob\n"
	comments, err := ParseCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, "a", comments[0].ID)
	assert.Equal(t, "", comments[0].Speaker)
	// Blank ids take their position
	assert.Equal(t, "2", comments[1].ID)
	assert.Equal(t, "bob", comments[1].Speaker)
}

func TestParseCSV_DuplicateIDs(t *testing.T) {
	_, err := ParseCSV(strings.NewReader("id,comment\n1,a\n1,b\n"))
	assert.ErrorIs(t, err, ErrDuplicateCommentID)
}

func TestParseJSON(t *testing.T) {
	comments, err := ParseJSON(strings.NewReader(`[{"id":"x","text":"I love cats"},{"text":"dogs","speaker":"bob"}]`))
	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, "x", comments[0].ID)
	assert.Equal(t, "2", comments[1].ID)

	_, err = ParseJSON(strings.NewReader(`{"id":"x"}`))
	assert.Error(t, err)
}

func TestLoadComments(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "comments.csv")
	require.NoError(t, os.WriteFile(path, []byte("id,comment\n1,I love cats\n"), 0o644))

	comments, err := LoadComments(path)
	require.NoError(t, err)
	assert.Len(t, comments, 1)

	_, err = LoadComments(filepath.Join(dir, "comments.txt"))
	assert.Error(t, err)

	other := filepath.Join(dir, "comments.xml")
	require.NoError(t, os.WriteFile(other, []byte("<x/>"), 0o644))
	_, err = LoadComments(other)
	assert.Error(t, err)
}

func TestRenderer(t *testing.T) {
	dir := t.TempDir()
	r := NewRenderer()

	tree := AssembleTree(petsTax(), []DedupedGroup{{Topic: "Pets", Subtopic: "Cats", Claims: claimsN(2)}})
	tree.Topics[0].Subtopics[0].Crux = &model.Crux{Statement: "Cats rule", Controversy: 0.5}
	result := &model.Result{ReportID: "r1", Model: "fake-model", Tree: tree, Stats: model.Stats{Topics: 1}}

	path := filepath.Join(dir, "out", "tree.json")
	require.NoError(t, r.RenderJSON(result, path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"reportId": "r1"`)

	trail := audit.NewLogger("r1", "fake-model", audit.WithClock(time.Now))
	var buf bytes.Buffer
	r.RenderSummary(&buf, result, trail.ToArtifact())
	out := buf.String()
	assert.Contains(t, out, "Report: r1")
	assert.Contains(t, out, "Pets (2 claims)")
	assert.Contains(t, out, "crux: Cats rule")
}
