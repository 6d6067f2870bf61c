// Package analysis asks a generative text provider three questions about a
// project's context: what happened, what to do next, and which open tasks
// are done.
//
// Each operation returns its zero value alongside any provider error. Callers
// decide whether a failure is fatal; absorption never treats it as such.
package analysis

import (
	"context"
	"strings"
)

// Summary is a daily summary in English and the secondary language.
type Summary struct {
	English   string `json:"en"`
	Secondary string `json:"secondary"`
}

// Client runs the analysis operations against a Generator.
type Client struct {
	gen               Generator
	prompts           Prompts
	secondaryLanguage string
}

// NewClient creates a client. secondaryLanguage is the display name the
// summary prompt asks for ("Japanese").
func NewClient(gen Generator, prompts Prompts, secondaryLanguage string) *Client {
	if gen == nil {
		gen = Disabled()
	}
	return &Client{gen: gen, prompts: prompts, secondaryLanguage: secondaryLanguage}
}

// Summarize produces the English and secondary-language summary of blob.
// A reply that is a summary object with both fields blank is ErrEmptySummary.
func (c *Client) Summarize(ctx context.Context, blob string) (Summary, error) {
	p := c.prompts.Summarize
	out, err := c.gen.Generate(ctx, p.System, render(p.User, map[string]string{
		"context":            blob,
		"secondary_language": c.secondaryLanguage,
	}))
	if err != nil {
		return Summary{}, err
	}
	return parseSummary(out)
}

// ProposeTasks returns follow-up task descriptions in the order the model gave them.
func (c *Client) ProposeTasks(ctx context.Context, blob string) ([]string, error) {
	p := c.prompts.ProposeTasks
	out, err := c.gen.Generate(ctx, p.System, render(p.User, map[string]string{
		"context": blob,
	}))
	if err != nil {
		return nil, err
	}
	return parseTaskList(out), nil
}

// CheckCompletion returns the candidates the model judged finished. The
// result is always a subset of candidates, compared by exact string. With no
// candidates the provider is not called.
func (c *Client) CheckCompletion(ctx context.Context, blob string, candidates []string) ([]string, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	var list strings.Builder
	for _, cand := range candidates {
		list.WriteString("- " + cand + "\n")
	}

	p := c.prompts.CheckCompletion
	out, err := c.gen.Generate(ctx, p.System, render(p.User, map[string]string{
		"context":    blob,
		"candidates": strings.TrimRight(list.String(), "\n"),
	}))
	if err != nil {
		return nil, err
	}
	return matchCandidates(out, candidates), nil
}
