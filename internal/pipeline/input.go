package pipeline

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ppiankov/claimtree/internal/model"
)

// ErrDuplicateCommentID is returned when two comments share an id
var ErrDuplicateCommentID = errors.New("duplicate comment id")

// LoadComments reads comments from a .json or .csv file
func LoadComments(path string) ([]model.Comment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open comments: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return ParseJSON(f)
	case ".csv":
		return ParseCSV(f)
	default:
		return nil, fmt.Errorf("unsupported comments file %s (expected .json or .csv)", path)
	}
}

// ParseJSON reads a JSON array of comments
func ParseJSON(r io.Reader) ([]model.Comment, error) {
	var comments []model.Comment
	if err := json.NewDecoder(r).Decode(&comments); err != nil {
		return nil, fmt.Errorf("parse comments JSON: %w", err)
	}
	return normalizeIDs(comments)
}

// ParseCSV reads id,comment,speaker rows. A header row is detected by its
// column names and may order the columns freely; without one the columns are
// positional.
func ParseCSV(r io.Reader) ([]model.Comment, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse comments CSV: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	cols := map[string]int{"id": 0, "comment": 1, "speaker": 2}
	if header, ok := csvHeader(rows[0]); ok {
		cols = header
		rows = rows[1:]
	}

	field := func(row []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	comments := make([]model.Comment, 0, len(rows))
	for _, row := range rows {
		comments = append(comments, model.Comment{
			ID:      field(row, "id"),
			Text:    field(row, "comment"),
			Speaker: field(row, "speaker"),
		})
	}
	return normalizeIDs(comments)
}

func csvHeader(row []string) (map[string]int, bool) {
	cols := make(map[string]int)
	for i, name := range row {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "id", "comment-id", "comment_id":
			cols["id"] = i
		case "comment", "comment-body", "text":
			cols["comment"] = i
		case "speaker", "interview", "name":
			cols["speaker"] = i
		}
	}
	_, hasComment := cols["comment"]
	return cols, hasComment
}

// normalizeIDs gives blank ids their 1-based position and rejects repeats
func normalizeIDs(comments []model.Comment) ([]model.Comment, error) {
	seen := make(map[string]bool, len(comments))
	for i := range comments {
		if strings.TrimSpace(comments[i].ID) == "" {
			comments[i].ID = strconv.Itoa(i + 1)
		}
		if seen[comments[i].ID] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateCommentID, comments[i].ID)
		}
		seen[comments[i].ID] = true
	}
	return comments, nil
}
