package ops

import (
	"context"
	"strconv"

	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/hpungsan/almanac/internal/analysis"
	"github.com/hpungsan/almanac/internal/config"
	"github.com/hpungsan/almanac/internal/db"
	"github.com/hpungsan/almanac/internal/errors"
	"github.com/hpungsan/almanac/internal/logging"
)

// Absorber is the entry point transports use to run absorption. It re-reads
// configuration and prompts on every run and lets at most one run per project
// be in flight: concurrent requests for the same project share its result.
// Runs for different projects proceed in parallel.
type Absorber struct {
	db      *sqlx.DB
	loader  config.Loader
	baseDir string
	deps    AbsorbDeps
	group   singleflight.Group
}

// NewAbsorber creates an Absorber. baseDir is where prompts.yaml overrides live.
func NewAbsorber(database *sqlx.DB, loader config.Loader, baseDir string, deps AbsorbDeps) *Absorber {
	if loader == nil {
		loader = config.StaticLoader(config.DefaultConfig())
	}
	return &Absorber{db: database, loader: loader, baseDir: baseDir, deps: deps}
}

// Config reads the current configuration.
func (a *Absorber) Config() (*config.Config, error) {
	cfg, err := a.loader()
	if err != nil {
		return nil, errors.NewInvalidRequest("config: " + err.Error())
	}
	return cfg, nil
}

// Absorb runs absorption for one project, joining any run already in flight
// for it. The shared run is detached from the caller's cancellation; a caller
// that gives up gets CANCELLED while the run finishes for everyone else.
func (a *Absorber) Absorb(ctx context.Context, input AbsorbInput) (*AbsorbOutput, error) {
	if err := requireProjectID(input.ProjectID); err != nil {
		return nil, err
	}

	key := strconv.FormatInt(input.ProjectID, 10)
	runCtx := context.WithoutCancel(ctx)
	ch := a.group.DoChan(key, func() (any, error) {
		return a.run(runCtx, input)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*AbsorbOutput), nil
	case <-ctx.Done():
		return nil, errors.NewCancelled("absorb")
	}
}

func (a *Absorber) run(ctx context.Context, input AbsorbInput) (*AbsorbOutput, error) {
	cfg, err := a.Config()
	if err != nil {
		return nil, err
	}

	deps := a.deps
	if deps.Prompts == nil {
		prompts, err := analysis.LoadPrompts(a.baseDir)
		if err != nil {
			logging.Component("absorb").Warn("prompt override ignored", "error", err)
		}
		deps.Prompts = &prompts
	}
	return Absorb(ctx, a.db, cfg, deps, input)
}

// AbsorbAllItem is one project's outcome in AbsorbAll.
type AbsorbAllItem struct {
	ProjectID   int64         `json:"project_id"`
	ProjectName string        `json:"project_name"`
	Result      *AbsorbOutput `json:"result,omitempty"`
	Error       *ItemError    `json:"error,omitempty"`
}

// ItemError is the serializable form of a per-item failure.
type ItemError struct {
	Code    errors.ErrorCode `json:"code"`
	Message string           `json:"message"`
}

// AbsorbAllOutput contains the result of the AbsorbAll operation.
type AbsorbAllOutput struct {
	Items     []AbsorbAllItem `json:"items"`
	Succeeded int             `json:"succeeded"`
	Failed    int             `json:"failed"`
}

// AbsorbAll absorbs every project with at most cfg.AbsorbParallelism runs at
// once. One project's failure does not stop the others; it is reported in
// its item.
func (a *Absorber) AbsorbAll(ctx context.Context) (*AbsorbAllOutput, error) {
	cfg, err := a.Config()
	if err != nil {
		return nil, err
	}
	projects, err := db.ListProjects(ctx, a.db)
	if err != nil {
		return nil, err
	}

	items := make([]AbsorbAllItem, len(projects))
	g, gctx := errgroup.WithContext(ctx)
	limit := cfg.AbsorbParallelism
	if limit <= 0 {
		limit = config.DefaultConfig().AbsorbParallelism
	}
	g.SetLimit(limit)

	for i, p := range projects {
		items[i] = AbsorbAllItem{ProjectID: p.ID, ProjectName: p.Name}
		g.Go(func() error {
			out, err := a.Absorb(gctx, AbsorbInput{ProjectID: p.ID})
			if err != nil {
				items[i].Error = toItemError(err)
				return nil
			}
			items[i].Result = out
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		return nil, errors.NewCancelled("absorb all")
	}

	output := &AbsorbAllOutput{Items: items}
	for _, it := range items {
		if it.Error != nil {
			output.Failed++
		} else {
			output.Succeeded++
		}
	}
	return output, nil
}

func toItemError(err error) *ItemError {
	if aErr, ok := errors.As(err); ok {
		return &ItemError{Code: aErr.Code, Message: aErr.Message}
	}
	return &ItemError{Code: errors.ErrInternal, Message: err.Error()}
}
