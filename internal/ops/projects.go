package ops

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/hpungsan/almanac/internal/db"
	"github.com/hpungsan/almanac/internal/errors"
	"github.com/hpungsan/almanac/internal/journal"
)

// CreateProjectInput contains parameters for the CreateProject operation.
type CreateProjectInput struct {
	Name         string `json:"name"`
	Icon         string `json:"icon,omitempty"`
	RepoPath     string `json:"repo_path,omitempty"`
	ArtifactPath string `json:"artifact_path,omitempty"`
}

// CreateProject registers a project. Paths are stored absolute.
func CreateProject(ctx context.Context, database *sqlx.DB, input CreateProjectInput) (*journal.Project, error) {
	name, err := requireText("name", input.Name)
	if err != nil {
		return nil, err
	}
	repo, err := absPath("repo_path", input.RepoPath)
	if err != nil {
		return nil, err
	}
	artifacts, err := absPath("artifact_path", input.ArtifactPath)
	if err != nil {
		return nil, err
	}

	p := &journal.Project{
		Name:         name,
		Icon:         strings.TrimSpace(input.Icon),
		RepoPath:     repo,
		ArtifactPath: artifacts,
	}
	if err := db.InsertProject(ctx, database, p); err != nil {
		return nil, err
	}
	return p, nil
}

func absPath(field, p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", nil
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", errors.NewInvalidRequest(field + ": " + err.Error())
	}
	return abs, nil
}

// GetProject returns one project.
func GetProject(ctx context.Context, database *sqlx.DB, id int64) (*journal.Project, error) {
	if err := requireProjectID(id); err != nil {
		return nil, err
	}
	return db.GetProject(ctx, database, id)
}

// ListProjectsOutput contains the result of the ListProjects operation.
type ListProjectsOutput struct {
	Items []journal.Project `json:"items"`
}

// ListProjects returns every project.
func ListProjects(ctx context.Context, database *sqlx.DB) (*ListProjectsOutput, error) {
	projects, err := db.ListProjects(ctx, database)
	if err != nil {
		return nil, err
	}
	return &ListProjectsOutput{Items: projects}, nil
}
