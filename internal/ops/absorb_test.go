package ops

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/almanac/internal/analysis"
	"github.com/hpungsan/almanac/internal/db"
	"github.com/hpungsan/almanac/internal/errors"
	"github.com/hpungsan/almanac/internal/journal"
)

const summaryJSON = `{"en": "Fixed the login bug.", "secondary": "ログインのバグを修正した。"}`

func TestAbsorb_FixLoginBugScenario(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	p := createTestProject(t, database, "auth")
	existing := addTestTask(t, database, p.ID, "Fix login bug", journal.StatusAdded)

	gen := &fakeGenerator{
		summary:    summaryJSON,
		proposals:  "Fix login bug\nAdd logging",
		completion: "Fix login bug",
	}
	out, err := Absorb(ctx, database, testConfig(), testDeps(gen), AbsorbInput{ProjectID: p.ID})
	require.NoError(t, err)

	assert.Equal(t, []string{"Fix login bug", "Add logging"}, out.ProposedTasks)
	assert.Equal(t, []string{"Fix login bug"}, out.CompletedTaskDescriptions)
	assert.Empty(t, out.Degraded)
	assert.Equal(t, "2026-03-01", out.Date)
	assert.NotEmpty(t, out.RunID)

	tasks, err := db.ListTasks(ctx, database, p.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 2, "Fix login bug is not re-inserted")

	byDesc := map[string]journal.SuggestedTask{}
	for _, task := range tasks {
		byDesc[task.Description] = task
	}
	assert.Equal(t, existing.ID, byDesc["Fix login bug"].ID)
	assert.Equal(t, journal.StatusCompleted, byDesc["Fix login bug"].Status)
	assert.Equal(t, journal.StatusProposed, byDesc["Add logging"].Status)

	require.Len(t, out.InsertedTasks, 1)
	assert.Equal(t, "Add logging", out.InsertedTasks[0].Description)
}

func TestAbsorb_IdempotentNoteUpsert(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	p := createTestProject(t, database, "auth")

	gen := &fakeGenerator{summary: `{"en": "first", "secondary": "一"}`, proposals: "Write tests"}
	_, err := Absorb(ctx, database, testConfig(), testDeps(gen), AbsorbInput{ProjectID: p.ID})
	require.NoError(t, err)

	gen.summary = `{"en": "second", "secondary": "二"}`
	_, err = Absorb(ctx, database, testConfig(), testDeps(gen), AbsorbInput{ProjectID: p.ID})
	require.NoError(t, err)

	notes, err := db.ListNotes(ctx, database, p.ID, 0)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "second", notes[0].ContentEn)
	assert.Equal(t, "二", notes[0].ContentSecondary)

	tasks, err := db.ListTasks(ctx, database, p.ID)
	require.NoError(t, err)
	assert.Len(t, tasks, 1, "re-run does not duplicate tasks")

	runs, err := db.ListAbsorptions(ctx, database, p.ID, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 2, "every run is audited")
}

func TestAbsorb_NoDuplicateTasksAcrossRuns(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	p := createTestProject(t, database, "auth")

	for _, proposals := range []string{"A\nB", "B\nC\nA", "c\nD\nD"} {
		gen := &fakeGenerator{summary: "s", proposals: proposals}
		_, err := Absorb(ctx, database, testConfig(), testDeps(gen), AbsorbInput{ProjectID: p.ID})
		require.NoError(t, err)
	}

	tasks, err := db.ListTasks(ctx, database, p.ID)
	require.NoError(t, err)
	seen := map[string]bool{}
	for _, task := range tasks {
		assert.False(t, seen[task.Description], "duplicate %q", task.Description)
		seen[task.Description] = true
	}
	assert.Len(t, tasks, 4)
}

func TestAbsorb_CompletionPrecedence(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	p := createTestProject(t, database, "auth")
	// A live candidate that the model also re-proposes under different casing.
	addTestTask(t, database, p.ID, "Ship release", journal.StatusProposed)

	gen := &fakeGenerator{summary: "s", proposals: "ship release", completion: "Ship release"}
	_, err := Absorb(ctx, database, testConfig(), testDeps(gen), AbsorbInput{ProjectID: p.ID})
	require.NoError(t, err)

	tasks, err := db.ListTasks(ctx, database, p.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, journal.StatusCompleted, tasks[0].Status)
}

func TestAbsorb_SoftFailIsolation(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	p := createTestProject(t, database, "auth")
	addTestTask(t, database, p.ID, "Fix login bug", journal.StatusAdded)

	gen := &fakeGenerator{
		summary:      summaryJSON,
		proposalsErr: stderrors.New("503 from provider"),
		completion:   "Fix login bug",
	}
	out, err := Absorb(ctx, database, testConfig(), testDeps(gen), AbsorbInput{ProjectID: p.ID})
	require.NoError(t, err)

	assert.Empty(t, out.ProposedTasks)
	assert.NotNil(t, out.ProposedTasks, "empty list, not null")
	assert.Equal(t, []string{DegradedProposals}, out.Degraded)

	count, err := db.CountNotes(ctx, database, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "note still committed")

	tasks, err := db.ListTasks(ctx, database, p.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, journal.StatusCompleted, tasks[0].Status, "completions still processed")
}

func TestAbsorb_EmptySummaryObjectIsDegraded(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	p := createTestProject(t, database, "auth")

	gen := &fakeGenerator{summary: `{"en": "", "secondary": ""}`, proposals: "Add logging"}
	out, err := Absorb(ctx, database, testConfig(), testDeps(gen), AbsorbInput{ProjectID: p.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{DegradedSummary}, out.Degraded)
	assert.Empty(t, out.DailySummary.Primary)

	note, err := db.GetNote(ctx, database, p.ID, out.Date)
	require.NoError(t, err)
	assert.Empty(t, note.Content, "the reply text is not stored")
	assert.Equal(t, []string{"Add logging"}, out.ProposedTasks)
}

func TestAbsorb_AllLegsFail(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	p := createTestProject(t, database, "auth")
	addTestTask(t, database, p.ID, "x", journal.StatusAdded)

	// Provider "none" with no override generator: every leg gets ErrNoCredentials.
	deps := testDeps(nil)
	out, err := Absorb(ctx, database, testConfig(), deps, AbsorbInput{ProjectID: p.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{DegradedSummary, DegradedProposals, DegradedCompletion}, out.Degraded)
	assert.Empty(t, out.DailySummary.Primary)

	count, err := db.CountNotes(ctx, database, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestAbsorb_LegTimeoutIsSoftFailure(t *testing.T) {
	database := newTestDB(t)
	p := createTestProject(t, database, "auth")

	cfg := testConfig()
	cfg.AnalysisTimeoutSeconds = 1
	gen := &fakeGenerator{block: make(chan struct{})}
	defer close(gen.block)

	out, err := Absorb(context.Background(), database, cfg, testDeps(gen), AbsorbInput{ProjectID: p.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{DegradedSummary, DegradedProposals}, out.Degraded, "no candidates, so no completion call")
	assert.Zero(t, gen.count(DegradedCompletion))
}

func TestAbsorb_LegPanicIsInternal(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	p := createTestProject(t, database, "auth")

	gen := &fakeGenerator{summary: "s", panicOn: DegradedProposals}
	_, err := Absorb(ctx, database, testConfig(), testDeps(gen), AbsorbInput{ProjectID: p.ID})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInternal))

	count, err := db.CountNotes(ctx, database, p.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestAbsorb_TransactionalAtomicity(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	p := createTestProject(t, database, "auth")
	addTestTask(t, database, p.ID, "Fix login bug", journal.StatusAdded)

	deps := testDeps(&fakeGenerator{summary: summaryJSON, proposals: "Add logging", completion: "Fix login bug"})
	deps.Hooks = &db.CommitHooks{BeforeComplete: func(context.Context) error {
		return stderrors.New("simulated completion failure")
	}}

	_, err := Absorb(ctx, database, testConfig(), deps, AbsorbInput{ProjectID: p.ID})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrPersistenceFailure))

	count, err := db.CountNotes(ctx, database, p.ID)
	require.NoError(t, err)
	assert.Zero(t, count, "no daily note survives")

	tasks, err := db.ListTasks(ctx, database, p.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, journal.StatusAdded, tasks[0].Status)
}

func TestAbsorb_ProjectNotFound(t *testing.T) {
	database := newTestDB(t)
	gen := &fakeGenerator{}

	_, err := Absorb(context.Background(), database, testConfig(), testDeps(gen), AbsorbInput{ProjectID: 42})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
	assert.Zero(t, gen.count(DegradedSummary), "no provider calls")
}

func TestAbsorb_InvalidProjectID(t *testing.T) {
	database := newTestDB(t)

	_, err := Absorb(context.Background(), database, testConfig(), testDeps(&fakeGenerator{}), AbsorbInput{})
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestAbsorb_PrimaryLanguage(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	p := createTestProject(t, database, "auth")

	cfg := testConfig()
	cfg.PrimaryLanguage = "ja"
	out, err := Absorb(ctx, database, cfg, testDeps(&fakeGenerator{summary: summaryJSON}), AbsorbInput{ProjectID: p.ID})
	require.NoError(t, err)
	assert.Equal(t, "ログインのバグを修正した。", out.DailySummary.Primary)
	assert.Equal(t, "Fixed the login bug.", out.DailySummary.En)

	note, err := db.GetNote(ctx, database, p.ID, out.Date)
	require.NoError(t, err)
	assert.Equal(t, out.DailySummary.Primary, note.Content)
}

func TestAbsorb_DefaultPrimaryIsEnglish(t *testing.T) {
	database := newTestDB(t)
	p := createTestProject(t, database, "auth")

	out, err := Absorb(context.Background(), database, testConfig(), testDeps(&fakeGenerator{summary: summaryJSON}), AbsorbInput{ProjectID: p.ID})
	require.NoError(t, err)
	assert.Equal(t, "Fixed the login bug.", out.DailySummary.Primary)
}

func TestAbsorb_CancelledBeforeCommit(t *testing.T) {
	database := newTestDB(t)
	p := createTestProject(t, database, "auth")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// The caller goes away while the provider is working.
	gen := analysis.GeneratorFunc(func(ctx context.Context, _, _ string) (string, error) {
		cancel()
		<-ctx.Done()
		return "", ctx.Err()
	})

	_, err := Absorb(ctx, database, testConfig(), testDeps(gen), AbsorbInput{ProjectID: p.ID})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCancelled))

	count, cerr := db.CountNotes(context.Background(), database, p.ID)
	require.NoError(t, cerr)
	assert.Zero(t, count)
}

func TestAbsorb_OnlyLiveCandidatesChecked(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	p := createTestProject(t, database, "auth")
	addTestTask(t, database, p.ID, "Old dismissed", journal.StatusDismissed)
	addTestTask(t, database, p.ID, "Already done", journal.StatusCompleted)

	var seenPrompt string
	gen := analysis.GeneratorFunc(func(_ context.Context, system, prompt string) (string, error) {
		if legFor(system) == DegradedCompletion {
			seenPrompt = prompt
		}
		return "Old dismissed\nAlready done", nil
	})
	_, err := Absorb(ctx, database, testConfig(), testDeps(gen), AbsorbInput{ProjectID: p.ID})
	require.NoError(t, err)
	assert.Empty(t, seenPrompt, "no live candidates, no completion call")

	tasks, err := db.ListTasks(ctx, database, p.ID, journal.StatusDismissed)
	require.NoError(t, err)
	assert.Len(t, tasks, 1, "dismissed task untouched")
}
