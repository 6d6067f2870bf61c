// Package sources gathers the signals absorption reads for a project and
// assembles them into one labeled text blob.
//
// Reading is soft-fail: a repository that cannot be read or a walkthrough
// that cannot be opened degrades its section to a placeholder and is
// recorded in Blob.Degraded. Build itself never fails.
package sources

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hpungsan/almanac/internal/journal"
	"github.com/hpungsan/almanac/internal/logging"
)

// Placeholder stands in for any section with nothing to show.
const Placeholder = "(none available)"

// Section headings.
const (
	HeadingHistory       = "## Recent history"
	HeadingWalkthrough   = "## Walkthrough"
	HeadingNotes         = "## Recent notes"
	HeadingConversations = "## Conversations"
	HeadingComments      = "## Comments"
	HeadingLogs          = "## Logs"
)

// Degraded source names.
const (
	DegradedHistory     = "history"
	DegradedWalkthrough = "walkthrough"
)

// entryMaxChars caps each stored entry in the blob.
const entryMaxChars = 2000

// Stored is what the journal already holds for the project.
type Stored struct {
	Notes         []journal.DailyNote
	Conversations []journal.Entry
	Comments      []journal.Entry
	Logs          []journal.Entry
}

// Options tune how much of each source is read.
type Options struct {
	HistoryLimit     int
	ArtifactMaxChars int
	Logger           *slog.Logger
}

// Blob is the assembled context.
type Blob struct {
	Text     string
	Commits  []Commit
	Artifact *Artifact
	Degraded []string
}

// Build reads the project's history and walkthrough and renders them with
// the stored notes and entries.
func Build(ctx context.Context, project *journal.Project, stored Stored, opts Options) Blob {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Component("sources")
	}
	logger = logger.With("project_id", project.ID)

	var blob Blob

	if project.RepoPath != "" {
		commits, err := ReadHistory(ctx, project.RepoPath, opts.HistoryLimit)
		if err != nil {
			logger.Warn("history unavailable", "repo_path", project.RepoPath, "error", err)
			blob.Degraded = append(blob.Degraded, DegradedHistory)
		}
		blob.Commits = commits
	}

	artifact, err := FindArtifact(project.ArtifactPath, project.RepoPath, opts.ArtifactMaxChars)
	if err != nil {
		logger.Warn("walkthrough unavailable", "error", err)
		blob.Degraded = append(blob.Degraded, DegradedWalkthrough)
	}
	blob.Artifact = artifact

	var b strings.Builder
	fmt.Fprintf(&b, "# Project: %s\n\n", project.Name)

	b.WriteString(HeadingHistory + "\n")
	if len(blob.Commits) == 0 {
		b.WriteString(Placeholder + "\n")
	}
	for _, c := range blob.Commits {
		fmt.Fprintf(&b, "- %s %s %s: %s\n", c.ShortHash, c.Date, c.Author, c.Subject)
	}
	b.WriteString("\n")

	b.WriteString(HeadingWalkthrough)
	if artifact != nil && artifact.Title != "" {
		fmt.Fprintf(&b, ": %s", artifact.Title)
	}
	b.WriteString("\n")
	if artifact == nil || artifact.Text == "" {
		b.WriteString(Placeholder + "\n")
	} else {
		b.WriteString(artifact.Text + "\n")
	}
	b.WriteString("\n")

	b.WriteString(HeadingNotes + "\n")
	if len(stored.Notes) == 0 {
		b.WriteString(Placeholder + "\n")
	}
	for _, n := range stored.Notes {
		fmt.Fprintf(&b, "### %s\n%s\n", n.Date, strings.TrimSpace(noteText(n)))
	}
	b.WriteString("\n")

	writeEntries(&b, HeadingConversations, stored.Conversations)
	writeEntries(&b, HeadingComments, stored.Comments)
	writeEntries(&b, HeadingLogs, stored.Logs)

	blob.Text = strings.TrimRight(b.String(), "\n") + "\n"
	return blob
}

// noteText prefers the English rendering so the model reads one language.
func noteText(n journal.DailyNote) string {
	if n.ContentEn != "" {
		return n.ContentEn
	}
	return n.Content
}

func writeEntries(b *strings.Builder, heading string, entries []journal.Entry) {
	b.WriteString(heading + "\n")
	if len(entries) == 0 {
		b.WriteString(Placeholder + "\n\n")
		return
	}
	for _, e := range entries {
		when := time.Unix(e.CreatedAt, 0).UTC().Format(time.RFC3339)
		if e.Title != "" {
			fmt.Fprintf(b, "### %s (%s)\n", e.Title, when)
		} else {
			fmt.Fprintf(b, "### %s\n", when)
		}
		b.WriteString(journal.Truncate(strings.TrimSpace(e.Body), entryMaxChars) + "\n")
	}
	b.WriteString("\n")
}
