package ops

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/almanac/internal/analysis"
	"github.com/hpungsan/almanac/internal/config"
	"github.com/hpungsan/almanac/internal/db"
	"github.com/hpungsan/almanac/internal/errors"
)

const (
	testWait = 5 * time.Second
	testTick = 10 * time.Millisecond
)

func TestAbsorber_SameProjectSharesOneRun(t *testing.T) {
	database := newTestDB(t)
	p := createTestProject(t, database, "auth")

	gen := &fakeGenerator{summary: "s", proposals: "A", block: make(chan struct{})}
	absorber := NewAbsorber(database, config.StaticLoader(testConfig()), "", testDeps(gen))

	var wg sync.WaitGroup
	outs := make([]*AbsorbOutput, 2)
	errs := make([]error, 2)
	for i := range outs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outs[i], errs[i] = absorber.Absorb(context.Background(), AbsorbInput{ProjectID: p.ID})
		}()
	}

	// Wait until the first run is inside the provider, then release it.
	require.Eventually(t, func() bool { return gen.count(DegradedSummary) > 0 }, testWait, testTick)
	close(gen.block)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	runs, err := db.ListAbsorptions(context.Background(), database, p.ID, 0)
	require.NoError(t, err)
	if outs[0].RunID == outs[1].RunID {
		assert.Len(t, runs, 1, "shared run commits once")
		assert.Equal(t, 1, gen.count(DegradedSummary))
	} else {
		// The second request arrived after the first finished.
		assert.Len(t, runs, 2)
	}
}

func TestAbsorber_DifferentProjectsRunInParallel(t *testing.T) {
	database := newTestDB(t)
	p1 := createTestProject(t, database, "one")
	p2 := createTestProject(t, database, "two")

	var inFlight, peak atomic.Int32
	release := make(chan struct{})
	gen := analysis.GeneratorFunc(func(ctx context.Context, system, _ string) (string, error) {
		if legFor(system) != DegradedSummary {
			return "", nil
		}
		n := inFlight.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		defer inFlight.Add(-1)
		select {
		case <-release:
		case <-ctx.Done():
		}
		return "s", nil
	})
	absorber := NewAbsorber(database, config.StaticLoader(testConfig()), "", testDeps(gen))

	var wg sync.WaitGroup
	for _, id := range []int64{p1.ID, p2.ID} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := absorber.Absorb(context.Background(), AbsorbInput{ProjectID: id})
			assert.NoError(t, err)
		}()
	}

	require.Eventually(t, func() bool { return peak.Load() == 2 }, testWait, testTick)
	close(release)
	wg.Wait()
}

func TestAbsorber_ReadsConfigEveryRun(t *testing.T) {
	database := newTestDB(t)
	p := createTestProject(t, database, "auth")

	var loads atomic.Int32
	loader := func() (*config.Config, error) {
		loads.Add(1)
		return testConfig(), nil
	}
	absorber := NewAbsorber(database, loader, "", testDeps(&fakeGenerator{summary: "s"}))

	for range 2 {
		_, err := absorber.Absorb(context.Background(), AbsorbInput{ProjectID: p.ID})
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), loads.Load())
}

func TestAbsorber_PromptOverride(t *testing.T) {
	database := newTestDB(t)
	p := createTestProject(t, database, "auth")
	baseDir := t.TempDir()
	override := "propose_tasks:\n  user: \"CUSTOM {{context}}\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(baseDir, analysis.PromptsFileName), []byte(override), 0o600))

	var mu sync.Mutex
	var proposalPrompt string
	gen := analysis.GeneratorFunc(func(_ context.Context, system, prompt string) (string, error) {
		if legFor(system) == DegradedProposals {
			mu.Lock()
			proposalPrompt = prompt
			mu.Unlock()
		}
		return "", nil
	})

	absorber := NewAbsorber(database, config.StaticLoader(testConfig()), baseDir, testDeps(gen))
	_, err := absorber.Absorb(context.Background(), AbsorbInput{ProjectID: p.ID})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, proposalPrompt, "CUSTOM # Project: auth")
}

func TestAbsorber_CallerCancelled(t *testing.T) {
	database := newTestDB(t)
	p := createTestProject(t, database, "auth")

	gen := &fakeGenerator{summary: "s", block: make(chan struct{})}
	absorber := NewAbsorber(database, config.StaticLoader(testConfig()), "", testDeps(gen))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := absorber.Absorb(ctx, AbsorbInput{ProjectID: p.ID})
		done <- err
	}()

	require.Eventually(t, func() bool { return gen.count(DegradedSummary) > 0 }, testWait, testTick)
	cancel()
	err := <-done
	assert.True(t, errors.Is(err, errors.ErrCancelled))

	// The detached run still finishes and commits.
	close(gen.block)
	require.Eventually(t, func() bool {
		n, err := db.CountNotes(context.Background(), database, p.ID)
		return err == nil && n == 1
	}, testWait, testTick)
}

func TestAbsorbAll(t *testing.T) {
	database := newTestDB(t)
	for _, name := range []string{"one", "two", "three"} {
		createTestProject(t, database, name)
	}

	cfg := testConfig()
	cfg.AbsorbParallelism = 2
	absorber := NewAbsorber(database, config.StaticLoader(cfg), "", testDeps(&fakeGenerator{summary: "s", proposals: "A"}))

	out, err := absorber.AbsorbAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, out.Succeeded)
	assert.Zero(t, out.Failed)
	require.Len(t, out.Items, 3)
	assert.Equal(t, "one", out.Items[0].ProjectName)
	for _, it := range out.Items {
		require.NotNil(t, it.Result)
		assert.Equal(t, []string{"A"}, it.Result.ProposedTasks)
	}
}

func TestAbsorbAll_ReportsPerProjectFailures(t *testing.T) {
	database := newTestDB(t)
	ok := createTestProject(t, database, "ok")
	bad := createTestProject(t, database, "bad")

	absorber := NewAbsorber(database, config.StaticLoader(testConfig()), "", testDeps(&fakeGenerator{summary: "s"}))

	// Block note writes for one project so only its commit fails.
	_, err := database.Exec(fmt.Sprintf(`CREATE TRIGGER fail_bad BEFORE INSERT ON daily_notes
		WHEN NEW.project_id = %d BEGIN SELECT RAISE(ABORT, 'blocked'); END`, bad.ID))
	require.NoError(t, err)

	out, err := absorber.AbsorbAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, out.Succeeded)
	assert.Equal(t, 1, out.Failed)

	for _, it := range out.Items {
		switch it.ProjectID {
		case ok.ID:
			assert.Nil(t, it.Error)
		case bad.ID:
			require.NotNil(t, it.Error)
			assert.Equal(t, errors.ErrPersistenceFailure, it.Error.Code)
		}
	}
}
