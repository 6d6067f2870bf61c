package ops

import (
	"context"
	"crypto/rand"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/oklog/ulid/v2"
	"github.com/sourcegraph/conc"

	"github.com/hpungsan/almanac/internal/analysis"
	"github.com/hpungsan/almanac/internal/config"
	"github.com/hpungsan/almanac/internal/db"
	"github.com/hpungsan/almanac/internal/errors"
	"github.com/hpungsan/almanac/internal/journal"
	"github.com/hpungsan/almanac/internal/logging"
	"github.com/hpungsan/almanac/internal/sources"
)

// Degraded leg names, recorded alongside the source names from package sources.
const (
	DegradedSummary    = "summary"
	DegradedProposals  = "proposals"
	DegradedCompletion = "completion"
)

// AbsorbInput contains parameters for the Absorb operation.
type AbsorbInput struct {
	ProjectID int64 `json:"project_id"`
}

// DailySummary is the day's summary in each rendering.
type DailySummary struct {
	Primary   string `json:"primary"`
	En        string `json:"en"`
	Secondary string `json:"secondary"`
}

// AbsorbOutput contains the result of the Absorb operation.
type AbsorbOutput struct {
	RunID     string `json:"run_id"`
	ProjectID int64  `json:"project_id"`
	Date      string `json:"date"`

	DailySummary DailySummary `json:"daily_summary"`

	// ProposedTasks is the model's proposal list as returned, before dedup.
	ProposedTasks []string `json:"proposed_tasks"`

	// CompletedTaskDescriptions are the candidates judged done.
	CompletedTaskDescriptions []string `json:"completed_task_descriptions"`

	// InsertedTasks are the rows this run created.
	InsertedTasks []journal.SuggestedTask `json:"inserted_tasks"`

	// Degraded names the sources and analysis legs that failed soft.
	Degraded []string `json:"degraded"`
}

// AbsorbDeps are the collaborators Absorb needs besides the database and config.
// Zero values select production behavior.
type AbsorbDeps struct {
	// Generator overrides the provider built from cfg.AI.
	Generator analysis.Generator

	// Prompts overrides the built-in prompt set.
	Prompts *analysis.Prompts

	// Now is the clock used for the note date and timestamps.
	Now func() time.Time

	// Hooks are passed through to the commit.
	Hooks *db.CommitHooks

	Logger *slog.Logger
}

func (d AbsorbDeps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// Absorb runs one absorption for a project: gather context, fan out the three
// analysis calls, join, and commit the results in one transaction.
//
// Gathering and analysis fail soft. Only a missing project, a failed read of
// the journal itself, cancellation, or a failed commit return an error, and in
// each of those cases nothing is written.
func Absorb(ctx context.Context, database *sqlx.DB, cfg *config.Config, deps AbsorbDeps, input AbsorbInput) (*AbsorbOutput, error) {
	if err := requireProjectID(input.ProjectID); err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	runID := newRunID()
	logger := deps.Logger
	if logger == nil {
		logger = logging.Component("absorb")
	}
	logger = logger.With("run_id", runID, "project_id", input.ProjectID)

	// 1. Project
	project, err := db.GetProject(ctx, database, input.ProjectID)
	if err != nil {
		return nil, err
	}

	// 2. Context
	stored, err := loadStored(ctx, database, project.ID)
	if err != nil {
		return nil, err
	}
	blob := sources.Build(ctx, project, stored, sources.Options{
		HistoryLimit:     cfg.HistoryLimit,
		ArtifactMaxChars: cfg.ArtifactMaxChars,
		Logger:           logger,
	})

	// 3. Candidates
	candidates, err := db.ListTasks(ctx, database, project.ID, journal.CandidateStatuses...)
	if err != nil {
		return nil, err
	}
	candidateDescs := make([]string, len(candidates))
	for i, c := range candidates {
		candidateDescs[i] = c.Description
	}

	client := newAnalysisClient(cfg, deps, logger)

	// 4. Fan out and join
	var (
		summary   analysis.Summary
		proposed  []string
		completed []string
		legErrs   [3]error
	)
	timeout := cfg.AnalysisTimeout()

	var wg conc.WaitGroup
	wg.Go(func() {
		summary, legErrs[0] = runLeg(ctx, timeout, func(ctx context.Context) (analysis.Summary, error) {
			return client.Summarize(ctx, blob.Text)
		})
	})
	wg.Go(func() {
		proposed, legErrs[1] = runLeg(ctx, timeout, func(ctx context.Context) ([]string, error) {
			return client.ProposeTasks(ctx, blob.Text)
		})
	})
	wg.Go(func() {
		completed, legErrs[2] = runLeg(ctx, timeout, func(ctx context.Context) ([]string, error) {
			return client.CheckCompletion(ctx, blob.Text, candidateDescs)
		})
	})
	if r := wg.WaitAndRecover(); r != nil {
		logger.Error("analysis leg panicked", "panic", r.Value)
		return nil, errors.NewInternal(r.AsError())
	}

	if ctx.Err() != nil {
		return nil, errors.NewCancelled("absorb")
	}

	degraded := append([]string{}, blob.Degraded...)
	for i, name := range []string{DegradedSummary, DegradedProposals, DegradedCompletion} {
		if legErrs[i] != nil {
			logger.Warn("analysis degraded", "leg", name, "error", legErrs[i])
			degraded = append(degraded, name)
		}
	}

	// 5. Date and primary language
	now := deps.now()
	date := now.Format(DateLayout)
	primary := summary.English
	if !cfg.PrimaryIsEnglish() {
		primary = summary.Secondary
	}

	// 6. Commit
	var result *db.CommitResult
	err = db.WithTx(ctx, database, func(tx *sqlx.Tx) error {
		var err error
		result, err = db.CommitAbsorption(ctx, tx, db.CommitInput{
			RunID:            runID,
			ProjectID:        project.ID,
			Date:             date,
			Now:              now.Unix(),
			Content:          primary,
			ContentEn:        summary.English,
			ContentSecondary: summary.Secondary,
			Proposed:         proposed,
			Completed:        completed,
			Candidates:       candidates,
			Degraded:         degraded,
			Hooks:            deps.Hooks,
		})
		return err
	})
	if err != nil {
		logger.Error("absorption commit failed", "error", err)
		if ctx.Err() != nil {
			return nil, errors.NewCancelled("absorb")
		}
		return nil, errors.NewPersistenceFailure("absorb commit", err)
	}

	logger.Info("absorption committed",
		"date", date,
		"proposed", len(proposed),
		"inserted", len(result.Inserted),
		"completed", len(result.CompletedIDs),
		"degraded", degraded,
	)

	// 7. Result
	return &AbsorbOutput{
		RunID:     runID,
		ProjectID: project.ID,
		Date:      date,
		DailySummary: DailySummary{
			Primary:   primary,
			En:        summary.English,
			Secondary: summary.Secondary,
		},
		ProposedTasks:             nonNilStrings(proposed),
		CompletedTaskDescriptions: nonNilStrings(completed),
		InsertedTasks:             nonNilTasks(result.Inserted),
		Degraded:                  degraded,
	}, nil
}

// runLeg runs one analysis call under its own timeout. A failed or timed-out
// call yields the zero value and its error; it never affects sibling legs.
// A call that ignores its context is abandoned when the timeout fires.
func runLeg[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	legCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		v     T
		err   error
		panic any
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{panic: p}
			}
		}()
		v, err := fn(legCtx)
		done <- outcome{v: v, err: err}
	}()

	var zero T
	select {
	case o := <-done:
		if o.panic != nil {
			// Re-raise on the supervised goroutine so the join sees it.
			panic(o.panic)
		}
		if o.err != nil {
			return zero, o.err
		}
		return o.v, nil
	case <-legCtx.Done():
		return zero, legCtx.Err()
	}
}

// newAnalysisClient builds the client from the config read for this call.
// A provider that cannot be constructed degrades every leg instead of
// failing the run.
func newAnalysisClient(cfg *config.Config, deps AbsorbDeps, logger *slog.Logger) *analysis.Client {
	gen := deps.Generator
	if gen == nil {
		var err error
		gen, err = analysis.NewGenerator(cfg.AI)
		if err != nil {
			logger.Warn("provider unavailable", "provider", cfg.AI.Provider, "error", err)
			gen = analysis.Disabled()
		}
	}
	prompts := analysis.DefaultPrompts()
	if deps.Prompts != nil {
		prompts = *deps.Prompts
	}
	return analysis.NewClient(gen, prompts, config.LanguageName(cfg.SecondaryLanguage))
}

// loadStored reads the recent notes and entries that go into the context.
func loadStored(ctx context.Context, q db.Querier, projectID int64) (sources.Stored, error) {
	var s sources.Stored
	var err error

	if s.Notes, err = db.ListNotes(ctx, q, projectID, RecentNotesLimit); err != nil {
		return s, err
	}
	if s.Conversations, err = db.ListEntries(ctx, q, projectID, journal.EntryConversation, RecentEntriesLimit); err != nil {
		return s, err
	}
	if s.Comments, err = db.ListEntries(ctx, q, projectID, journal.EntryComment, RecentEntriesLimit); err != nil {
		return s, err
	}
	if s.Logs, err = db.ListEntries(ctx, q, projectID, journal.EntryLog, RecentEntriesLimit); err != nil {
		return s, err
	}
	return s, nil
}

// newRunID generates a new ULID for an absorption run.
func newRunID() string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilTasks(t []journal.SuggestedTask) []journal.SuggestedTask {
	if t == nil {
		return []journal.SuggestedTask{}
	}
	return t
}
