package ops

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/hpungsan/almanac/internal/config"
	"github.com/hpungsan/almanac/internal/db"
	"github.com/hpungsan/almanac/internal/errors"
	"github.com/hpungsan/almanac/internal/journal"
)

// UpdateTaskStatusInput contains parameters for the UpdateTaskStatus operation.
type UpdateTaskStatusInput struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
}

// UpdateTaskStatusOutput contains the result of the UpdateTaskStatus operation.
type UpdateTaskStatusOutput struct {
	Updated bool               `json:"updated"`
	ID      int64              `json:"id"`
	From    journal.TaskStatus `json:"from"`
	Status  journal.TaskStatus `json:"status"`
}

// UpdateTaskStatus sets a task's status.
//
// Any of the four known statuses is accepted by default, including moves
// outside the lifecycle table (dismissed → added, say). With
// cfg.StrictTaskTransitions such moves fail with INVALID_TRANSITION.
func UpdateTaskStatus(ctx context.Context, database *sqlx.DB, cfg *config.Config, input UpdateTaskStatusInput) (*UpdateTaskStatusOutput, error) {
	if input.ID <= 0 {
		return nil, errors.NewInvalidRequest("id must be a positive integer")
	}
	status, ok := journal.ParseStatus(input.Status)
	if !ok {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("status must be one of %s", statusList()))
	}

	var from journal.TaskStatus
	err := db.WithTx(ctx, database, func(tx *sqlx.Tx) error {
		task, err := db.GetTask(ctx, tx, input.ID)
		if err != nil {
			return err
		}
		from = task.Status
		if cfg != nil && cfg.StrictTaskTransitions && !journal.CanTransition(from, status) {
			return errors.NewInvalidTransition(string(from), string(status))
		}
		return db.SetTaskStatus(ctx, tx, input.ID, status)
	})
	if err != nil {
		if _, ok := errors.As(err); ok {
			return nil, err
		}
		return nil, errors.NewInternal(err)
	}

	return &UpdateTaskStatusOutput{
		Updated: true,
		ID:      input.ID,
		From:    from,
		Status:  status,
	}, nil
}

func statusList() string {
	names := make([]string, len(journal.AllStatuses))
	for i, s := range journal.AllStatuses {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}

// AddTaskInput contains parameters for the AddTask operation.
type AddTaskInput struct {
	ProjectID   int64  `json:"project_id"`
	Description string `json:"description"`
}

// AddTask creates a task by hand. Manual tasks start as added. A description
// that already exists for the project (ignoring case and spacing) is a CONFLICT.
func AddTask(ctx context.Context, database *sqlx.DB, input AddTaskInput) (*journal.SuggestedTask, error) {
	if err := requireProjectID(input.ProjectID); err != nil {
		return nil, err
	}
	desc, err := requireText("description", input.Description)
	if err != nil {
		return nil, err
	}

	task := &journal.SuggestedTask{
		ProjectID:   input.ProjectID,
		Description: desc,
		Status:      journal.StatusAdded,
		Source:      journal.SourceManual,
	}
	err = db.WithTx(ctx, database, func(tx *sqlx.Tx) error {
		if _, err := db.GetProject(ctx, tx, input.ProjectID); err != nil {
			return err
		}
		exists, err := db.TaskExists(ctx, tx, input.ProjectID, journal.Normalize(desc))
		if err != nil {
			return errors.NewInternal(err)
		}
		if exists {
			return errors.NewConflict(fmt.Sprintf("task already exists: %s", desc))
		}
		return db.InsertTask(ctx, tx, task)
	})
	if err != nil {
		if _, ok := errors.As(err); ok {
			return nil, err
		}
		return nil, errors.NewInternal(err)
	}
	return task, nil
}

// ListTasksInput contains parameters for the ListTasks operation.
type ListTasksInput struct {
	ProjectID int64  `json:"project_id"`
	Status    string `json:"status,omitempty"` // optional filter
}

// ListTasksOutput contains the result of the ListTasks operation.
type ListTasksOutput struct {
	Items []journal.SuggestedTask `json:"items"`
}

// ListTasks returns a project's tasks, newest first.
func ListTasks(ctx context.Context, database *sqlx.DB, input ListTasksInput) (*ListTasksOutput, error) {
	if err := requireProjectID(input.ProjectID); err != nil {
		return nil, err
	}
	if _, err := db.GetProject(ctx, database, input.ProjectID); err != nil {
		return nil, err
	}

	var filter []journal.TaskStatus
	if strings.TrimSpace(input.Status) != "" {
		st, ok := journal.ParseStatus(input.Status)
		if !ok {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("status must be one of %s", statusList()))
		}
		filter = append(filter, st)
	}

	tasks, err := db.ListTasks(ctx, database, input.ProjectID, filter...)
	if err != nil {
		return nil, err
	}
	return &ListTasksOutput{Items: tasks}, nil
}
