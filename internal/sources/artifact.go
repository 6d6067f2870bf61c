package sources

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hpungsan/almanac/internal/journal"
)

// Artifact is a walkthrough document found on disk.
type Artifact struct {
	Path  string `json:"path"`
	Kind  string `json:"kind"`
	Title string `json:"title,omitempty"`
	Text  string `json:"-"`
}

// Artifact kinds, in search order.
const (
	KindProjectWalkthrough = "project_walkthrough"
	KindOverview           = "overview"
	KindLegacyWalkthrough  = "legacy_walkthrough"
	KindReadme             = "readme"
)

type candidate struct {
	path string
	kind string
}

// artifactCandidates lists where a walkthrough may live. The first one that
// exists wins; they are never merged.
func artifactCandidates(artifactPath, repoPath string) []candidate {
	var out []candidate
	if artifactPath != "" {
		out = append(out,
			candidate{filepath.Join(artifactPath, ".almanac", "walkthrough.md"), KindProjectWalkthrough},
			candidate{filepath.Join(artifactPath, "OVERVIEW.md"), KindOverview},
			candidate{filepath.Join(artifactPath, "WALKTHROUGH.md"), KindLegacyWalkthrough},
		)
	}
	if repoPath != "" {
		out = append(out, candidate{filepath.Join(repoPath, "README.md"), KindReadme})
	}
	return out
}

// FindArtifact returns the first walkthrough artifact that exists, capped at
// maxChars runes with any YAML front matter removed. It returns (nil, nil)
// when no candidate exists.
func FindArtifact(artifactPath, repoPath string, maxChars int) (*Artifact, error) {
	for _, c := range artifactCandidates(artifactPath, repoPath) {
		data, err := os.ReadFile(c.path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", c.path, err)
		}

		title, body := splitFrontMatter(string(data))
		return &Artifact{
			Path:  c.path,
			Kind:  c.kind,
			Title: title,
			Text:  journal.Truncate(strings.TrimSpace(body), maxChars),
		}, nil
	}
	return nil, nil
}

type frontMatter struct {
	Title string `yaml:"title"`
}

// splitFrontMatter removes a leading "---" YAML block. Text whose front
// matter does not parse is returned unchanged.
func splitFrontMatter(text string) (title, body string) {
	normalized := strings.ReplaceAll(text, "\r\n", "\n")
	if !strings.HasPrefix(normalized, "---\n") {
		return "", text
	}
	rest := normalized[len("---\n"):]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return "", text
	}

	var fm frontMatter
	if err := yaml.Unmarshal([]byte(rest[:end]), &fm); err != nil {
		return "", text
	}

	body = rest[end+len("\n---"):]
	if i := strings.IndexByte(body, '\n'); i >= 0 {
		body = body[i+1:]
	} else {
		body = ""
	}
	return strings.TrimSpace(fm.Title), body
}
