package ops

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/hpungsan/almanac/internal/db"
	"github.com/hpungsan/almanac/internal/journal"
)

// AbsorptionDataOutput is what the timeline and suggestion views render.
type AbsorptionDataOutput struct {
	ProjectID     int64                   `json:"project_id"`
	DailyNotes    []journal.DailyNote     `json:"daily_notes"`
	ProposedTasks []journal.SuggestedTask `json:"proposed_tasks"`
	LastRun       *journal.Absorption     `json:"last_run,omitempty"`
}

// GetAbsorptionData returns a project's notes, newest date first, and its
// proposed tasks. It only reads; absorption commits atomically, so a
// concurrent run is seen either fully or not at all.
func GetAbsorptionData(ctx context.Context, database *sqlx.DB, projectID int64) (*AbsorptionDataOutput, error) {
	if err := requireProjectID(projectID); err != nil {
		return nil, err
	}
	if _, err := db.GetProject(ctx, database, projectID); err != nil {
		return nil, err
	}

	notes, err := db.ListNotes(ctx, database, projectID, 0)
	if err != nil {
		return nil, err
	}
	proposed, err := db.ListTasks(ctx, database, projectID, journal.StatusProposed)
	if err != nil {
		return nil, err
	}
	runs, err := db.ListAbsorptions(ctx, database, projectID, 1)
	if err != nil {
		return nil, err
	}

	out := &AbsorptionDataOutput{
		ProjectID:     projectID,
		DailyNotes:    notes,
		ProposedTasks: proposed,
	}
	if len(runs) > 0 {
		out.LastRun = &runs[0]
	}
	return out, nil
}

// GetNoteInput contains parameters for the GetNote operation.
type GetNoteInput struct {
	ProjectID int64  `json:"project_id"`
	Date      string `json:"date"`
}

// GetNote returns one daily note.
func GetNote(ctx context.Context, database *sqlx.DB, input GetNoteInput) (*journal.DailyNote, error) {
	if err := requireProjectID(input.ProjectID); err != nil {
		return nil, err
	}
	date, err := requireDate(input.Date)
	if err != nil {
		return nil, err
	}
	return db.GetNote(ctx, database, input.ProjectID, date)
}
