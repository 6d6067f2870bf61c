package ops

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/almanac/internal/analysis"
	"github.com/hpungsan/almanac/internal/config"
	"github.com/hpungsan/almanac/internal/db"
	"github.com/hpungsan/almanac/internal/journal"
	"github.com/hpungsan/almanac/internal/logging"
)

func newTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	database, err := db.Init(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database
}

func createTestProject(t *testing.T, database *sqlx.DB, name string) *journal.Project {
	t.Helper()
	p, err := CreateProject(context.Background(), database, CreateProjectInput{Name: name})
	require.NoError(t, err)
	return p
}

func addTestTask(t *testing.T, database *sqlx.DB, projectID int64, desc string, status journal.TaskStatus) *journal.SuggestedTask {
	t.Helper()
	task := &journal.SuggestedTask{ProjectID: projectID, Description: desc, Status: status}
	require.NoError(t, db.InsertTask(context.Background(), database, task))
	return task
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.AI.Provider = config.ProviderNone
	cfg.AnalysisTimeoutSeconds = 5
	return cfg
}

var fixedNow = time.Date(2026, 3, 1, 9, 30, 0, 0, time.Local)

// fakeGenerator answers each analysis leg from canned output, telling legs
// apart by their system prompt.
type fakeGenerator struct {
	summary, proposals, completion          string
	summaryErr, proposalsErr, completionErr error

	// block, when set, holds every call until it is closed or ctx ends.
	block chan struct{}

	// panicOn names a leg that panics.
	panicOn string

	mu    sync.Mutex
	calls map[string]int
}

func (f *fakeGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	leg := legFor(system)

	f.mu.Lock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[leg]++
	f.mu.Unlock()

	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.panicOn == leg {
		panic("provider exploded")
	}

	switch leg {
	case DegradedSummary:
		return f.summary, f.summaryErr
	case DegradedProposals:
		return f.proposals, f.proposalsErr
	default:
		return f.completion, f.completionErr
	}
}

func (f *fakeGenerator) count(leg string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[leg]
}

func legFor(system string) string {
	p := analysis.DefaultPrompts()
	switch system {
	case p.Summarize.System:
		return DegradedSummary
	case p.ProposeTasks.System:
		return DegradedProposals
	default:
		return DegradedCompletion
	}
}

func testDeps(gen analysis.Generator) AbsorbDeps {
	return AbsorbDeps{
		Generator: gen,
		Now:       func() time.Time { return fixedNow },
		Logger:    logging.Discard(),
	}
}
