package ops

import (
	"cmp"
	"context"
	"slices"

	"github.com/jmoiron/sqlx"

	"github.com/hpungsan/almanac/internal/db"
	"github.com/hpungsan/almanac/internal/journal"
)

// Timeline item kinds.
const (
	TimelineNote  = "note"
	TimelineTask  = "task"
	TimelineEntry = "entry"
)

// TimelineInput contains parameters for the Timeline operation.
type TimelineInput struct {
	ProjectID int64 `json:"project_id"`
	Limit     int   `json:"limit,omitempty"`
	Offset    int   `json:"offset,omitempty"`
}

// TimelineItem is one event in a project's history.
type TimelineItem struct {
	Kind      string `json:"kind"`
	ID        int64  `json:"id"`
	Timestamp int64  `json:"timestamp"`

	// Date is set for notes.
	Date string `json:"date,omitempty"`

	// Status is set for tasks; EntryKind for entries.
	Status    journal.TaskStatus `json:"status,omitempty"`
	EntryKind journal.EntryKind  `json:"entry_kind,omitempty"`

	Title string `json:"title,omitempty"`
	Text  string `json:"text"`
}

// TimelineOutput contains the result of the Timeline operation.
type TimelineOutput struct {
	Items      []TimelineItem `json:"items"`
	Pagination Pagination     `json:"pagination"`
}

// Timeline merges a project's notes, tasks and entries, newest first.
// Notes are placed by their last update, tasks and entries by creation.
func Timeline(ctx context.Context, database *sqlx.DB, input TimelineInput) (*TimelineOutput, error) {
	if err := requireProjectID(input.ProjectID); err != nil {
		return nil, err
	}
	if _, err := db.GetProject(ctx, database, input.ProjectID); err != nil {
		return nil, err
	}
	limit := normalizeLimit(input.Limit)
	offset := max(input.Offset, 0)

	notes, err := db.ListNotes(ctx, database, input.ProjectID, 0)
	if err != nil {
		return nil, err
	}
	tasks, err := db.ListTasks(ctx, database, input.ProjectID)
	if err != nil {
		return nil, err
	}
	entries, err := db.ListEntries(ctx, database, input.ProjectID, "", 0)
	if err != nil {
		return nil, err
	}

	items := make([]TimelineItem, 0, len(notes)+len(tasks)+len(entries))
	for _, n := range notes {
		items = append(items, TimelineItem{Kind: TimelineNote, ID: n.ID, Timestamp: n.UpdatedAt, Date: n.Date, Text: n.Content})
	}
	for _, t := range tasks {
		items = append(items, TimelineItem{Kind: TimelineTask, ID: t.ID, Timestamp: t.CreatedAt, Status: t.Status, Text: t.Description})
	}
	for _, e := range entries {
		items = append(items, TimelineItem{Kind: TimelineEntry, ID: e.ID, Timestamp: e.CreatedAt, EntryKind: e.Kind, Title: e.Title, Text: e.Body})
	}

	slices.SortStableFunc(items, func(a, b TimelineItem) int {
		if c := cmp.Compare(b.Timestamp, a.Timestamp); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Kind, b.Kind); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})

	total := len(items)
	start := min(offset, total)
	end := min(start+limit, total)

	return &TimelineOutput{
		Items: items[start:end],
		Pagination: Pagination{
			Limit:   limit,
			Offset:  offset,
			HasMore: end < total,
			Total:   total,
		},
	}, nil
}
