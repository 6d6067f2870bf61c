package sources

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// Commit is one line of version-control history.
type Commit struct {
	ShortHash string `json:"short_hash"`
	Date      string `json:"date"`
	Author    string `json:"author"`
	Subject   string `json:"subject"`
}

// fieldSep separates fields in the git log format; subjects never contain it.
const fieldSep = "\x1f"

// ReadHistory returns up to limit commits from the repository at repoPath,
// newest first.
func ReadHistory(ctx context.Context, repoPath string, limit int) ([]Commit, error) {
	if limit <= 0 {
		limit = 20
	}
	info, err := os.Stat(repoPath)
	if err != nil {
		return nil, fmt.Errorf("repo path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("repo path %s is not a directory", repoPath)
	}

	cmd := exec.CommandContext(ctx, "git", "-C", repoPath, "log",
		"-n", strconv.Itoa(limit),
		"--date=iso-strict",
		"--format=%h"+fieldSep+"%ad"+fieldSep+"%an"+fieldSep+"%s",
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("git log: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return parseLog(string(out)), nil
}

func parseLog(out string) []Commit {
	var commits []Commit
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, fieldSep, 4)
		if len(parts) != 4 {
			continue
		}
		commits = append(commits, Commit{
			ShortHash: parts[0],
			Date:      parts[1],
			Author:    parts[2],
			Subject:   parts[3],
		})
	}
	return commits
}
