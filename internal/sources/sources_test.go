package sources

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/almanac/internal/journal"
	"github.com/hpungsan/almanac/internal/logging"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func initRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=Ada", "GIT_AUTHOR_EMAIL=ada@example.com",
			"GIT_COMMITTER_NAME=Ada", "GIT_COMMITTER_EMAIL=ada@example.com",
		)
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
	}
	run("init", "-q")
	for _, msg := range []string{"initial commit", "add login form", "fix login bug"} {
		writeFile(t, filepath.Join(dir, "log.txt"), msg)
		run("add", ".")
		run("commit", "-q", "-m", msg)
	}
	return dir
}

func TestParseLog(t *testing.T) {
	out := "abc1234\x1f2026-03-01T10:00:00+09:00\x1fAda\x1ffix: a|b subject\n" +
		"malformed line\n" +
		"\n" +
		"def5678\x1f2026-02-28T09:00:00+09:00\x1fBob\x1finitial\n"

	commits := parseLog(out)
	require.Len(t, commits, 2)
	assert.Equal(t, Commit{ShortHash: "abc1234", Date: "2026-03-01T10:00:00+09:00", Author: "Ada", Subject: "fix: a|b subject"}, commits[0])
	assert.Equal(t, "Bob", commits[1].Author)
}

func TestReadHistory(t *testing.T) {
	repo := initRepo(t)

	commits, err := ReadHistory(context.Background(), repo, 2)
	require.NoError(t, err)
	require.Len(t, commits, 2)
	assert.Equal(t, "fix login bug", commits[0].Subject, "newest first")
	assert.Equal(t, "Ada", commits[0].Author)
	assert.NotEmpty(t, commits[0].ShortHash)
}

func TestReadHistory_NotARepo(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	_, err := ReadHistory(context.Background(), t.TempDir(), 20)
	assert.Error(t, err)
}

func TestReadHistory_MissingPath(t *testing.T) {
	_, err := ReadHistory(context.Background(), filepath.Join(t.TempDir(), "nope"), 20)
	assert.Error(t, err)
}

func TestFindArtifact_SearchOrder(t *testing.T) {
	artifacts := t.TempDir()
	repo := t.TempDir()

	writeFile(t, filepath.Join(repo, "README.md"), "readme")
	a, err := FindArtifact(artifacts, repo, 0)
	require.NoError(t, err)
	assert.Equal(t, KindReadme, a.Kind)

	writeFile(t, filepath.Join(artifacts, "WALKTHROUGH.md"), "legacy")
	a, err = FindArtifact(artifacts, repo, 0)
	require.NoError(t, err)
	assert.Equal(t, KindLegacyWalkthrough, a.Kind)

	writeFile(t, filepath.Join(artifacts, "OVERVIEW.md"), "overview")
	a, err = FindArtifact(artifacts, repo, 0)
	require.NoError(t, err)
	assert.Equal(t, KindOverview, a.Kind)

	writeFile(t, filepath.Join(artifacts, ".almanac", "walkthrough.md"), "generated")
	a, err = FindArtifact(artifacts, repo, 0)
	require.NoError(t, err)
	assert.Equal(t, KindProjectWalkthrough, a.Kind)
	assert.Equal(t, "generated", a.Text, "first hit only, no merging")
}

func TestFindArtifact_None(t *testing.T) {
	a, err := FindArtifact(t.TempDir(), t.TempDir(), 100)
	require.NoError(t, err)
	assert.Nil(t, a)

	a, err = FindArtifact("", "", 100)
	require.NoError(t, err)
	assert.Nil(t, a)
}

func TestFindArtifact_FrontMatterAndCap(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "OVERVIEW.md"), "---\ntitle: Auth Service\nowner: ada\n---\n0123456789abcdef")

	a, err := FindArtifact(dir, "", 10)
	require.NoError(t, err)
	assert.Equal(t, "Auth Service", a.Title)
	assert.Equal(t, "0123456789\n…[truncated]", a.Text)
}

func TestSplitFrontMatter(t *testing.T) {
	title, body := splitFrontMatter("no front matter")
	assert.Empty(t, title)
	assert.Equal(t, "no front matter", body)

	title, body = splitFrontMatter("---\ntitle: [unclosed\n---\nbody")
	assert.Empty(t, title)
	assert.Equal(t, "---\ntitle: [unclosed\n---\nbody", body, "invalid yaml leaves text alone")

	title, body = splitFrontMatter("---\r\ntitle: Windows\r\n---\r\nbody")
	assert.Equal(t, "Windows", title)
	assert.Equal(t, "body", body)
}

func TestBuild_AllPlaceholders(t *testing.T) {
	blob := Build(context.Background(), &journal.Project{ID: 1, Name: "empty"}, Stored{}, Options{Logger: logging.Discard()})

	for _, h := range []string{HeadingHistory, HeadingWalkthrough, HeadingNotes, HeadingConversations, HeadingComments, HeadingLogs} {
		assert.Contains(t, blob.Text, h+"\n"+Placeholder, "section %s", h)
	}
	assert.Empty(t, blob.Degraded, "unconfigured paths are absence, not failure")
}

func TestBuild_DegradesOnUnreadableRepo(t *testing.T) {
	project := &journal.Project{ID: 1, Name: "broken", RepoPath: filepath.Join(t.TempDir(), "missing")}
	blob := Build(context.Background(), project, Stored{}, Options{Logger: logging.Discard()})

	assert.Equal(t, []string{DegradedHistory}, blob.Degraded)
	assert.Contains(t, blob.Text, HeadingHistory+"\n"+Placeholder)
}

func TestBuild_FullContext(t *testing.T) {
	repo := initRepo(t)
	writeFile(t, filepath.Join(repo, "README.md"), "---\ntitle: Login\n---\nThe login service.")

	stored := Stored{
		Notes:         []journal.DailyNote{{Date: "2026-03-01", Content: "ログイン", ContentEn: "Worked on login"}},
		Conversations: []journal.Entry{{Title: "pairing", Body: "discussed the bug", CreatedAt: 1}},
		Logs:          []journal.Entry{{Body: "panic: nil session", CreatedAt: 2}},
	}
	blob := Build(context.Background(), &journal.Project{ID: 1, Name: "login", RepoPath: repo}, stored, Options{HistoryLimit: 20, Logger: logging.Discard()})

	assert.Empty(t, blob.Degraded)
	assert.Len(t, blob.Commits, 3)
	assert.Contains(t, blob.Text, "fix login bug")
	assert.Contains(t, blob.Text, HeadingWalkthrough+": Login\nThe login service.")
	assert.Contains(t, blob.Text, "### 2026-03-01\nWorked on login")
	assert.Contains(t, blob.Text, "### pairing (")
	assert.Contains(t, blob.Text, "panic: nil session")
	assert.Contains(t, blob.Text, HeadingComments+"\n"+Placeholder)
	assert.True(t, strings.Index(blob.Text, HeadingHistory) < strings.Index(blob.Text, HeadingWalkthrough))
}
