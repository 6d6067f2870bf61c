package analysis

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/almanac/internal/config"
)

func fixed(out string) Generator {
	return GeneratorFunc(func(context.Context, string, string) (string, error) {
		return out, nil
	})
}

func TestSummarize_JSON(t *testing.T) {
	c := NewClient(fixed(`{"en": "Fixed the login bug.", "secondary": "ログインのバグを修正した。"}`), DefaultPrompts(), "Japanese")

	s, err := c.Summarize(context.Background(), "ctx")
	require.NoError(t, err)
	assert.Equal(t, "Fixed the login bug.", s.English)
	assert.Equal(t, "ログインのバグを修正した。", s.Secondary)
}

func TestSummarize_FencedJSON(t *testing.T) {
	c := NewClient(fixed("```json\n{\"en\": \"Done.\", \"secondary\": \"完了。\"}\n```"), DefaultPrompts(), "Japanese")

	s, err := c.Summarize(context.Background(), "ctx")
	require.NoError(t, err)
	assert.Equal(t, "Done.", s.English)
	assert.Equal(t, "完了。", s.Secondary)
}

func TestSummarize_PlainTextFallback(t *testing.T) {
	c := NewClient(fixed("  Worked on auth.  "), DefaultPrompts(), "Japanese")

	s, err := c.Summarize(context.Background(), "ctx")
	require.NoError(t, err)
	assert.Equal(t, Summary{English: "Worked on auth.", Secondary: "Worked on auth."}, s)
}

func TestSummarize_PromptCarriesContextAndLanguage(t *testing.T) {
	var gotSystem, gotPrompt string
	gen := GeneratorFunc(func(_ context.Context, system, prompt string) (string, error) {
		gotSystem, gotPrompt = system, prompt
		return `{"en":"x","secondary":"y"}`, nil
	})
	c := NewClient(gen, DefaultPrompts(), "Japanese")

	_, err := c.Summarize(context.Background(), "## Recent history\n- abc fix")
	require.NoError(t, err)
	assert.NotEmpty(t, gotSystem)
	assert.Contains(t, gotPrompt, "## Recent history\n- abc fix")
	assert.Contains(t, gotPrompt, "Japanese")
	assert.NotContains(t, gotPrompt, "{{")
}

func TestProposeTasks_ParsesList(t *testing.T) {
	c := NewClient(fixed("1. Add logging\n- Write tests\n\n* [ ] Update docs\n2) Ship it\n   \n"), DefaultPrompts(), "Japanese")

	tasks, err := c.ProposeTasks(context.Background(), "ctx")
	require.NoError(t, err)
	assert.Equal(t, []string{"Add logging", "Write tests", "Update docs", "Ship it"}, tasks)
}

func TestCheckCompletion_EmptyCandidatesSkipsProvider(t *testing.T) {
	called := false
	gen := GeneratorFunc(func(context.Context, string, string) (string, error) {
		called = true
		return "", nil
	})
	c := NewClient(gen, DefaultPrompts(), "Japanese")

	done, err := c.CheckCompletion(context.Background(), "ctx", nil)
	require.NoError(t, err)
	assert.Empty(t, done)
	assert.False(t, called)
}

func TestCheckCompletion_SubsetOnly(t *testing.T) {
	c := NewClient(fixed("- Fix login bug\n- Invented task\nfix login bug\nNONE"), DefaultPrompts(), "Japanese")

	done, err := c.CheckCompletion(context.Background(), "ctx", []string{"Fix login bug", "Add logging"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Fix login bug"}, done, "exact match only, no invented tasks")
}

func TestOperations_PropagateProviderError(t *testing.T) {
	boom := errors.New("503")
	c := NewClient(GeneratorFunc(func(context.Context, string, string) (string, error) {
		return "", boom
	}), DefaultPrompts(), "Japanese")
	ctx := context.Background()

	s, err := c.Summarize(ctx, "ctx")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, Summary{}, s)

	tasks, err := c.ProposeTasks(ctx, "ctx")
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, tasks)

	done, err := c.CheckCompletion(ctx, "ctx", []string{"a"})
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, done)
}

func TestNewGenerator(t *testing.T) {
	t.Setenv("ALMANAC_TEST_EMPTY_KEY", "")

	gen, err := NewGenerator(config.AIConfig{Provider: config.ProviderOpenAI, APIKeyEnv: "ALMANAC_TEST_EMPTY_KEY"})
	require.NoError(t, err)
	_, err = gen.Generate(context.Background(), "", "p")
	assert.ErrorIs(t, err, ErrNoCredentials, "missing key disables the provider")

	gen, err = NewGenerator(config.AIConfig{Provider: config.ProviderNone})
	require.NoError(t, err)
	_, err = gen.Generate(context.Background(), "", "p")
	assert.ErrorIs(t, err, ErrNoCredentials)

	t.Setenv("ALMANAC_TEST_KEY", "sk-test")
	gen, err = NewGenerator(config.AIConfig{Provider: config.ProviderOpenAI, APIKeyEnv: "ALMANAC_TEST_KEY", Model: "gpt-4o-mini"})
	require.NoError(t, err)
	assert.IsType(t, &OpenAI{}, gen)

	_, err = NewGenerator(config.AIConfig{Provider: "watson"})
	assert.Error(t, err)
}

func TestNilGeneratorIsDisabled(t *testing.T) {
	c := NewClient(nil, DefaultPrompts(), "Japanese")
	_, err := c.Summarize(context.Background(), "ctx")
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestLoadPrompts(t *testing.T) {
	dir := t.TempDir()

	p, err := LoadPrompts(dir)
	require.NoError(t, err)
	assert.Equal(t, DefaultPrompts(), p, "no override file")

	override := "propose_tasks:\n  user: \"Tasks please: {{context}}\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, PromptsFileName), []byte(override), 0o600))

	p, err = LoadPrompts(dir)
	require.NoError(t, err)
	assert.Equal(t, "Tasks please: {{context}}", p.ProposeTasks.User)
	assert.Equal(t, DefaultPrompts().ProposeTasks.System, p.ProposeTasks.System, "unset fields keep defaults")
	assert.Equal(t, DefaultPrompts().Summarize, p.Summarize)

	require.NoError(t, os.WriteFile(filepath.Join(dir, PromptsFileName), []byte("summarize: [\n"), 0o600))
	_, err = LoadPrompts(dir)
	assert.Error(t, err)
}

func TestParseTaskList_KeepsInnerNumbers(t *testing.T) {
	assert.Equal(t, []string{"Bump to v2.1.0", "Handle 404 responses"}, parseTaskList("- Bump to v2.1.0\n3. Handle 404 responses"))
}

func TestCheckCompletion_CandidatesWithListPrefixes(t *testing.T) {
	candidates := []string{"1. Write release notes", "- Fix login bug", "Add logging"}
	c := NewClient(fixed("1. Write release notes\n- Fix login bug"), DefaultPrompts(), "Japanese")

	done, err := c.CheckCompletion(context.Background(), "ctx", candidates)
	require.NoError(t, err)
	assert.Equal(t, []string{"1. Write release notes", "- Fix login bug"}, done)
}

func TestCheckCompletion_EchoWithPromptBullet(t *testing.T) {
	// The prompt lists each candidate as "- <candidate>"; a verbatim echo keeps that bullet.
	candidates := []string{"1. Write release notes", "Add logging"}
	c := NewClient(fixed("- 1. Write release notes\n- Add logging"), DefaultPrompts(), "Japanese")

	done, err := c.CheckCompletion(context.Background(), "ctx", candidates)
	require.NoError(t, err)
	assert.Equal(t, candidates, done)
}

func TestSummarize_EmptyObject(t *testing.T) {
	for _, out := range []string{`{"en": "", "secondary": ""}`, "```json\n{\"en\": \"  \"}\n```", `{}`} {
		c := NewClient(fixed(out), DefaultPrompts(), "Japanese")

		s, err := c.Summarize(context.Background(), "ctx")
		assert.ErrorIs(t, err, ErrEmptySummary, out)
		assert.Equal(t, Summary{}, s, "raw JSON never becomes the note")
	}
}

func TestSummarize_OneFieldFillsTheOther(t *testing.T) {
	c := NewClient(fixed(`{"en": "", "secondary": "完了。"}`), DefaultPrompts(), "Japanese")

	s, err := c.Summarize(context.Background(), "ctx")
	require.NoError(t, err)
	assert.Equal(t, Summary{English: "完了。", Secondary: "完了。"}, s)
}
