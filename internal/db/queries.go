package db

import (
	"context"
	"database/sql"
	stderrors "errors"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/hpungsan/almanac/internal/errors"
	"github.com/hpungsan/almanac/internal/journal"
)

// Querier is satisfied by both *sqlx.DB and *sqlx.Tx, so every read and
// write below can run standalone or inside WithTx.
type Querier interface {
	sqlx.ExtContext
}

// ErrUniqueConstraint is returned when an insert violates a UNIQUE constraint.
var ErrUniqueConstraint = &errors.AlmanacError{
	Code:    errors.ErrConflict,
	Status:  409,
	Message: "unique constraint violation",
}

// isUniqueConstraintError checks if the error is a SQLite UNIQUE constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	// SQLite returns "UNIQUE constraint failed: ..." for unique violations
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKeyError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

func idString(id int64) string {
	return strconv.FormatInt(id, 10)
}

// --- projects ---

// InsertProject stores a new project and fills in its ID and timestamps.
func InsertProject(ctx context.Context, q Querier, p *journal.Project) error {
	now := time.Now().Unix()
	p.CreatedAt, p.UpdatedAt = now, now

	res, err := q.ExecContext(ctx, `
		INSERT INTO projects (name, icon, repo_path, artifact_path, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.Name, p.Icon, p.RepoPath, p.ArtifactPath, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return errors.NewInternal(err)
	}
	p.ID = id
	return nil
}

// GetProject retrieves a project by id.
func GetProject(ctx context.Context, q Querier, id int64) (*journal.Project, error) {
	var p journal.Project
	err := sqlx.GetContext(ctx, q, &p, `
		SELECT id, name, icon, repo_path, artifact_path, created_at, updated_at
		FROM projects WHERE id = ?`, id)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFound("project", idString(id))
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return &p, nil
}

// ListProjects returns every project ordered by id.
func ListProjects(ctx context.Context, q Querier) ([]journal.Project, error) {
	projects := []journal.Project{}
	err := sqlx.SelectContext(ctx, q, &projects, `
		SELECT id, name, icon, repo_path, artifact_path, created_at, updated_at
		FROM projects ORDER BY id`)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return projects, nil
}

// --- daily notes ---

// UpsertNote creates the note for (ProjectID, Date) or overwrites its content
// in place. The row keeps its id and created_at across updates.
func UpsertNote(ctx context.Context, q Querier, n *journal.DailyNote) error {
	if n.UpdatedAt == 0 {
		n.UpdatedAt = time.Now().Unix()
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO daily_notes (project_id, date, content, content_en, content_secondary, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id, date) DO UPDATE SET
			content = excluded.content,
			content_en = excluded.content_en,
			content_secondary = excluded.content_secondary,
			updated_at = excluded.updated_at`,
		n.ProjectID, n.Date, n.Content, n.ContentEn, n.ContentSecondary, n.UpdatedAt, n.UpdatedAt,
	)
	if err != nil {
		return err
	}

	stored, err := GetNote(ctx, q, n.ProjectID, n.Date)
	if err != nil {
		return err
	}
	*n = *stored
	return nil
}

// GetNote retrieves the note for a project on a date.
func GetNote(ctx context.Context, q Querier, projectID int64, date string) (*journal.DailyNote, error) {
	var n journal.DailyNote
	err := sqlx.GetContext(ctx, q, &n, `
		SELECT id, project_id, date, content, content_en, content_secondary, created_at, updated_at
		FROM daily_notes WHERE project_id = ? AND date = ?`, projectID, date)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFound("daily note", date)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return &n, nil
}

// ListNotes returns a project's notes, newest date first.
// limit <= 0 returns all of them.
func ListNotes(ctx context.Context, q Querier, projectID int64, limit int) ([]journal.DailyNote, error) {
	query := `
		SELECT id, project_id, date, content, content_en, content_secondary, created_at, updated_at
		FROM daily_notes WHERE project_id = ? ORDER BY date DESC`
	args := []any{projectID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	notes := []journal.DailyNote{}
	if err := sqlx.SelectContext(ctx, q, &notes, query, args...); err != nil {
		return nil, errors.NewInternal(err)
	}
	return notes, nil
}

// CountNotes returns how many notes a project has.
func CountNotes(ctx context.Context, q Querier, projectID int64) (int, error) {
	var n int
	if err := sqlx.GetContext(ctx, q, &n, `SELECT COUNT(*) FROM daily_notes WHERE project_id = ?`, projectID); err != nil {
		return 0, errors.NewInternal(err)
	}
	return n, nil
}

// --- entries ---

// InsertEntry stores a conversation, comment or log entry.
func InsertEntry(ctx context.Context, q Querier, e *journal.Entry) error {
	if e.CreatedAt == 0 {
		e.CreatedAt = time.Now().Unix()
	}
	res, err := q.ExecContext(ctx, `
		INSERT INTO entries (project_id, kind, title, body, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		e.ProjectID, e.Kind, e.Title, e.Body, e.CreatedAt,
	)
	if err != nil {
		if isForeignKeyError(err) {
			return errors.NewNotFound("project", idString(e.ProjectID))
		}
		return errors.NewInternal(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return errors.NewInternal(err)
	}
	e.ID = id
	return nil
}

// ListEntries returns a project's entries of one kind, newest first.
// An empty kind returns every kind. limit <= 0 returns all of them.
func ListEntries(ctx context.Context, q Querier, projectID int64, kind journal.EntryKind, limit int) ([]journal.Entry, error) {
	query := `SELECT id, project_id, kind, title, body, created_at FROM entries WHERE project_id = ?`
	args := []any{projectID}
	if kind != "" {
		query += " AND kind = ?"
		args = append(args, kind)
	}
	query += " ORDER BY created_at DESC, id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	entries := []journal.Entry{}
	if err := sqlx.SelectContext(ctx, q, &entries, query, args...); err != nil {
		return nil, errors.NewInternal(err)
	}
	return entries, nil
}

// --- absorptions ---

// InsertAbsorption writes the audit row for one absorption run.
func InsertAbsorption(ctx context.Context, q Querier, a *journal.Absorption) error {
	if a.DegradedJSON == "" {
		a.DegradedJSON = "[]"
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO absorptions (id, project_id, date, degraded_json, proposed_count, completed_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.ProjectID, a.Date, a.DegradedJSON, a.ProposedCount, a.CompletedCount, a.CreatedAt,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrUniqueConstraint
		}
		return err
	}
	return nil
}

// ListAbsorptions returns a project's absorption runs, newest first.
func ListAbsorptions(ctx context.Context, q Querier, projectID int64, limit int) ([]journal.Absorption, error) {
	query := `
		SELECT id, project_id, date, degraded_json, proposed_count, completed_count, created_at
		FROM absorptions WHERE project_id = ? ORDER BY created_at DESC, id DESC`
	args := []any{projectID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	runs := []journal.Absorption{}
	if err := sqlx.SelectContext(ctx, q, &runs, query, args...); err != nil {
		return nil, errors.NewInternal(err)
	}
	return runs, nil
}
