package analysis

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// ErrEmptySummary is returned when the model answers with a well-formed
// summary object whose fields are all blank.
var ErrEmptySummary = errors.New("analysis: summary reply has no content")

// listMarker matches a leading bullet, checkbox or ordinal: "- ", "* ",
// "• ", "[ ] ", "1. ", "2) ".
var listMarker = regexp.MustCompile(`^\s*(?:[-*•+]\s+)?(?:\[[ xX]\]\s+)?(?:\d+[.)]\s+)?`)

// bulletMarker matches only the bullet the completion prompt puts in front
// of each candidate.
var bulletMarker = regexp.MustCompile(`^\s*[-*•+]\s+`)

// parseSummary reads {"en": ..., "secondary": ...}, tolerating code fences.
// Anything that is not a JSON object is used verbatim for both renderings.
// An object with no text in either field yields ErrEmptySummary.
func parseSummary(out string) (Summary, error) {
	raw := strings.TrimSpace(out)
	body := stripFences(raw)

	var s Summary
	if err := json.Unmarshal([]byte(body), &s); err == nil {
		s.English = strings.TrimSpace(s.English)
		s.Secondary = strings.TrimSpace(s.Secondary)
		if s.English == "" && s.Secondary == "" {
			return Summary{}, ErrEmptySummary
		}
		if s.English == "" {
			s.English = s.Secondary
		}
		if s.Secondary == "" {
			s.Secondary = s.English
		}
		return s, nil
	}
	return Summary{English: raw, Secondary: raw}, nil
}

func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// parseTaskList splits a newline-delimited list, strips list markers, and
// drops blank lines and fence lines. Order is preserved.
func parseTaskList(out string) []string {
	var tasks []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "```") {
			continue
		}
		line = strings.TrimSpace(listMarker.ReplaceAllString(line, ""))
		if line == "" {
			continue
		}
		tasks = append(tasks, line)
	}
	return tasks
}

// matchCandidates keeps the candidates named in the model's reply, in
// candidate order. A reply line names a candidate when it equals it exactly
// after trimming, either as written, without the prompt's bullet, or without
// any list marker. Candidates are never rewritten, so the result is always a
// subset, and a candidate that itself starts with "1. " or "- " still matches.
func matchCandidates(out string, candidates []string) []string {
	named := make(map[string]bool)
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "```") {
			continue
		}
		named[line] = true
		named[strings.TrimSpace(bulletMarker.ReplaceAllString(line, ""))] = true
		named[strings.TrimSpace(listMarker.ReplaceAllString(line, ""))] = true
	}
	delete(named, "")

	var matched []string
	seen := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		if named[strings.TrimSpace(c)] && !seen[c] {
			seen[c] = true
			matched = append(matched, c)
		}
	}
	return matched
}
