package ops

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/hpungsan/almanac/internal/db"
	"github.com/hpungsan/almanac/internal/errors"
	"github.com/hpungsan/almanac/internal/journal"
)

// MaxEntryChars caps a single entry body (runes).
const MaxEntryChars = 50000

// AddEntryInput contains parameters for the AddEntry operation.
type AddEntryInput struct {
	ProjectID int64  `json:"project_id"`
	Kind      string `json:"kind"`
	Title     string `json:"title,omitempty"`
	Body      string `json:"body"`
}

// AddEntry records a conversation excerpt, comment or log for a project.
func AddEntry(ctx context.Context, database *sqlx.DB, input AddEntryInput) (*journal.Entry, error) {
	if err := requireProjectID(input.ProjectID); err != nil {
		return nil, err
	}
	kind := journal.EntryKind(strings.ToLower(strings.TrimSpace(input.Kind)))
	if !kind.Valid() {
		return nil, errors.NewInvalidRequest("kind must be one of conversation, comment, log")
	}
	body, err := requireText("body", input.Body)
	if err != nil {
		return nil, err
	}
	if n := journal.CountChars(body); n > MaxEntryChars {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("body is %d chars, max %d", n, MaxEntryChars))
	}

	e := &journal.Entry{
		ProjectID: input.ProjectID,
		Kind:      kind,
		Title:     strings.TrimSpace(input.Title),
		Body:      body,
	}
	if err := db.InsertEntry(ctx, database, e); err != nil {
		return nil, err
	}
	return e, nil
}
