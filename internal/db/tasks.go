package db

import (
	"context"
	"database/sql"
	stderrors "errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/hpungsan/almanac/internal/errors"
	"github.com/hpungsan/almanac/internal/journal"
)

const taskColumns = `id, project_id, description, description_norm, status, source, created_at, updated_at`

// InsertTask stores a new task. DescriptionNorm is derived from Description
// when empty.
func InsertTask(ctx context.Context, q Querier, t *journal.SuggestedTask) error {
	if t.DescriptionNorm == "" {
		t.DescriptionNorm = journal.Normalize(t.Description)
	}
	if t.CreatedAt == 0 {
		t.CreatedAt = time.Now().Unix()
	}
	if t.UpdatedAt == 0 {
		t.UpdatedAt = t.CreatedAt
	}
	if t.Source == "" {
		t.Source = journal.SourceAbsorption
	}

	res, err := q.ExecContext(ctx, `
		INSERT INTO suggested_tasks (project_id, description, description_norm, status, source, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ProjectID, t.Description, t.DescriptionNorm, t.Status, t.Source, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		if isForeignKeyError(err) {
			return errors.NewNotFound("project", idString(t.ProjectID))
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	t.ID = id
	return nil
}

// GetTask retrieves a task by id.
func GetTask(ctx context.Context, q Querier, id int64) (*journal.SuggestedTask, error) {
	var t journal.SuggestedTask
	err := sqlx.GetContext(ctx, q, &t, `SELECT `+taskColumns+` FROM suggested_tasks WHERE id = ?`, id)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFound("task", idString(id))
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return &t, nil
}

// ListTasks returns a project's tasks newest first, optionally filtered to
// the given statuses.
func ListTasks(ctx context.Context, q Querier, projectID int64, statuses ...journal.TaskStatus) ([]journal.SuggestedTask, error) {
	query := `SELECT ` + taskColumns + ` FROM suggested_tasks WHERE project_id = ?`
	args := []any{projectID}

	if len(statuses) > 0 {
		in, inArgs, err := sqlx.In(` AND status IN (?)`, statuses)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		query += in
		args = append(args, inArgs...)
	}
	query += " ORDER BY created_at DESC, id DESC"

	tasks := []journal.SuggestedTask{}
	if err := sqlx.SelectContext(ctx, q, &tasks, q.Rebind(query), args...); err != nil {
		return nil, errors.NewInternal(err)
	}
	return tasks, nil
}

// TaskExists reports whether a project already has a task with the given
// normalized description, in any status.
func TaskExists(ctx context.Context, q Querier, projectID int64, descriptionNorm string) (bool, error) {
	var one int
	err := sqlx.GetContext(ctx, q, &one, `
		SELECT 1 FROM suggested_tasks
		WHERE project_id = ? AND description_norm = ?
		LIMIT 1`, projectID, descriptionNorm)
	if stderrors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// SetTaskStatus overwrites a task's status. Returns NOT_FOUND if no row matched.
func SetTaskStatus(ctx context.Context, q Querier, id int64, status journal.TaskStatus) error {
	res, err := q.ExecContext(ctx, `
		UPDATE suggested_tasks SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().Unix(), id,
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if rows == 0 {
		return errors.NewNotFound("task", idString(id))
	}
	return nil
}

// completeCandidate marks a live task completed. A task that left the
// candidate statuses since it was read is left alone.
func completeCandidate(ctx context.Context, q Querier, id int64, now int64) (bool, error) {
	res, err := q.ExecContext(ctx, `
		UPDATE suggested_tasks SET status = ?, updated_at = ?
		WHERE id = ? AND status IN (?, ?)`,
		journal.StatusCompleted, now, id, journal.StatusAdded, journal.StatusProposed,
	)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}
