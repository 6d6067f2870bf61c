package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/hpungsan/almanac/internal/journal"
)

// CommitHooks lets tests inject failures between commit steps.
type CommitHooks struct {
	// BeforeComplete runs after the note and new tasks are written and before
	// candidate tasks are marked completed. A non-nil error aborts the commit.
	BeforeComplete func(ctx context.Context) error
}

// CommitInput is everything one absorption run writes.
type CommitInput struct {
	RunID     string
	ProjectID int64
	Date      string
	Now       int64

	// Note contents. Content is the primary-language rendering.
	Content          string
	ContentEn        string
	ContentSecondary string

	// Proposed are new task descriptions in model order.
	Proposed []string

	// Completed are candidate descriptions the model judged done.
	Completed []string

	// Candidates are the live tasks the completion check was run against.
	Candidates []journal.SuggestedTask

	Degraded []string

	Hooks *CommitHooks
}

// CommitResult reports what a commit changed.
type CommitResult struct {
	Note         journal.DailyNote
	Inserted     []journal.SuggestedTask
	CompletedIDs []int64
	Skipped      int
}

// CommitAbsorption writes one absorption run inside tx, in fixed order:
// note upsert, new tasks, completions, audit row. Callers run it through
// WithTx so any failure leaves no partial state.
//
// Matching is on normalized descriptions. A proposed task whose description
// already exists for the project, or repeats one earlier in the batch, is
// skipped. A proposed task that is also in Completed is inserted as completed.
func CommitAbsorption(ctx context.Context, tx *sqlx.Tx, in CommitInput) (*CommitResult, error) {
	result := &CommitResult{}

	note := journal.DailyNote{
		ProjectID:        in.ProjectID,
		Date:             in.Date,
		Content:          in.Content,
		ContentEn:        in.ContentEn,
		ContentSecondary: in.ContentSecondary,
		UpdatedAt:        in.Now,
	}
	if err := UpsertNote(ctx, tx, &note); err != nil {
		return nil, fmt.Errorf("upsert daily note: %w", err)
	}
	result.Note = note

	completed := make(map[string]bool, len(in.Completed))
	for _, d := range in.Completed {
		completed[journal.Normalize(d)] = true
	}

	seen := make(map[string]bool, len(in.Proposed))
	for _, desc := range in.Proposed {
		norm := journal.Normalize(desc)
		if norm == "" || seen[norm] {
			result.Skipped++
			continue
		}
		seen[norm] = true

		exists, err := TaskExists(ctx, tx, in.ProjectID, norm)
		if err != nil {
			return nil, fmt.Errorf("check task %q: %w", desc, err)
		}
		if exists {
			result.Skipped++
			continue
		}

		status := journal.StatusProposed
		if completed[norm] {
			status = journal.StatusCompleted
		}
		task := journal.SuggestedTask{
			ProjectID:       in.ProjectID,
			Description:     desc,
			DescriptionNorm: norm,
			Status:          status,
			Source:          journal.SourceAbsorption,
			CreatedAt:       in.Now,
			UpdatedAt:       in.Now,
		}
		if err := InsertTask(ctx, tx, &task); err != nil {
			return nil, fmt.Errorf("insert task %q: %w", desc, err)
		}
		result.Inserted = append(result.Inserted, task)
	}

	if in.Hooks != nil && in.Hooks.BeforeComplete != nil {
		if err := in.Hooks.BeforeComplete(ctx); err != nil {
			return nil, err
		}
	}

	for _, c := range in.Candidates {
		if !completed[journal.Normalize(c.Description)] {
			continue
		}
		ok, err := completeCandidate(ctx, tx, c.ID, in.Now)
		if err != nil {
			return nil, fmt.Errorf("complete task %d: %w", c.ID, err)
		}
		if ok {
			result.CompletedIDs = append(result.CompletedIDs, c.ID)
		}
	}

	degraded, err := json.Marshal(nonNil(in.Degraded))
	if err != nil {
		return nil, fmt.Errorf("encode degraded list: %w", err)
	}
	run := journal.Absorption{
		ID:             in.RunID,
		ProjectID:      in.ProjectID,
		Date:           in.Date,
		DegradedJSON:   string(degraded),
		ProposedCount:  len(result.Inserted),
		CompletedCount: len(result.CompletedIDs),
		CreatedAt:      in.Now,
	}
	if err := InsertAbsorption(ctx, tx, &run); err != nil {
		return nil, fmt.Errorf("record absorption: %w", err)
	}

	return result, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
