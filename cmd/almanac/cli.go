package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/urfave/cli/v2"

	"github.com/hpungsan/almanac/internal/errors"
	"github.com/hpungsan/almanac/internal/mcp"
	"github.com/hpungsan/almanac/internal/ops"
	"github.com/hpungsan/almanac/internal/web"
)

// appEnv carries what every command needs. Nil fields are fine for --help.
type appEnv struct {
	db       *sqlx.DB
	absorber *ops.Absorber
	baseDir  string
}

// newCLIApp creates the CLI application with all commands.
func newCLIApp(env *appEnv) *cli.App {
	app := &cli.App{
		Name:    "almanac",
		Usage:   "Project journal that absorbs daily context into notes and tasks",
		Version: Version,
		Commands: []*cli.Command{
			projectCmd(env),
			absorbCmd(env),
			dataCmd(env),
			taskCmd(env),
			entryCmd(env),
			timelineCmd(env),
			noteCmd(env),
			exportCmd(env),
			serveCmd(env),
			mcpCmd(env),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// projectCmd creates the project command group.
func projectCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "project",
		Usage: "Manage projects",
		Subcommands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Register a project",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Required: true, Usage: "Project name"},
					&cli.StringFlag{Name: "icon", Usage: "Emoji or short label"},
					&cli.StringFlag{Name: "repo", Aliases: []string{"r"}, Usage: "Path to the git repository"},
					&cli.StringFlag{Name: "artifacts", Aliases: []string{"a"}, Usage: "Directory holding walkthrough documents"},
				},
				Action: func(c *cli.Context) error {
					output, err := ops.CreateProject(c.Context, env.db, ops.CreateProjectInput{
						Name:         c.String("name"),
						Icon:         c.String("icon"),
						RepoPath:     c.String("repo"),
						ArtifactPath: c.String("artifacts"),
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:  "list",
				Usage: "List projects",
				Action: func(c *cli.Context) error {
					output, err := ops.ListProjects(c.Context, env.db)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:      "get",
				Usage:     "Show one project",
				ArgsUsage: "<project-id>",
				Action: func(c *cli.Context) error {
					id, err := argID(c, 0, "project-id")
					if err != nil {
						return outputError(err)
					}
					output, err := ops.GetProject(c.Context, env.db, id)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
		},
	}
}

// absorbCmd creates the absorb command.
func absorbCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "absorb",
		Usage:     "Absorb today's context into the daily note and task list",
		ArgsUsage: "<project-id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "all", Usage: "Absorb every project"},
		},
		Action: func(c *cli.Context) error {
			if c.Bool("all") {
				output, err := env.absorber.AbsorbAll(c.Context)
				if err != nil {
					return outputError(err)
				}
				return outputJSON(output)
			}
			id, err := argID(c, 0, "project-id")
			if err != nil {
				return outputError(err)
			}
			output, err := env.absorber.Absorb(c.Context, ops.AbsorbInput{ProjectID: id})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// dataCmd creates the data command.
func dataCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "data",
		Usage:     "Show daily notes and proposed tasks for a project",
		ArgsUsage: "<project-id>",
		Action: func(c *cli.Context) error {
			id, err := argID(c, 0, "project-id")
			if err != nil {
				return outputError(err)
			}
			output, err := ops.GetAbsorptionData(c.Context, env.db, id)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// taskCmd creates the task command group.
func taskCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "task",
		Usage: "Manage suggested tasks",
		Subcommands: []*cli.Command{
			{
				Name:      "list",
				Usage:     "List a project's tasks",
				ArgsUsage: "<project-id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "status", Aliases: []string{"s"}, Usage: "Filter: proposed|added|completed|dismissed"},
				},
				Action: func(c *cli.Context) error {
					id, err := argID(c, 0, "project-id")
					if err != nil {
						return outputError(err)
					}
					output, err := ops.ListTasks(c.Context, env.db, ops.ListTasksInput{ProjectID: id, Status: c.String("status")})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:      "add",
				Usage:     "Add a task by hand",
				ArgsUsage: "<project-id> <description...>",
				Action: func(c *cli.Context) error {
					id, err := argID(c, 0, "project-id")
					if err != nil {
						return outputError(err)
					}
					desc := strings.Join(c.Args().Tail(), " ")
					output, err := ops.AddTask(c.Context, env.db, ops.AddTaskInput{ProjectID: id, Description: desc})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:      "status",
				Usage:     "Set a task's status",
				ArgsUsage: "<task-id> <status>",
				Action: func(c *cli.Context) error {
					id, err := argID(c, 0, "task-id")
					if err != nil {
						return outputError(err)
					}
					cfg, err := env.absorber.Config()
					if err != nil {
						return outputError(err)
					}
					output, err := ops.UpdateTaskStatus(c.Context, env.db, cfg, ops.UpdateTaskStatusInput{
						ID:     id,
						Status: c.Args().Get(1),
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
		},
	}
}

// entryCmd creates the entry command.
func entryCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "entry",
		Usage:     "Record a conversation, comment or log (reads body from stdin unless --body is given)",
		ArgsUsage: "<project-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "kind", Aliases: []string{"k"}, Value: "comment", Usage: "conversation|comment|log"},
			&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Usage: "Optional title"},
			&cli.StringFlag{Name: "body", Aliases: []string{"b"}, Usage: "Entry text"},
		},
		Action: func(c *cli.Context) error {
			id, err := argID(c, 0, "project-id")
			if err != nil {
				return outputError(err)
			}

			body := c.String("body")
			if body == "" {
				if !stdinHasData() {
					return outputError(errors.NewInvalidRequest("body must be given with --body or piped via stdin"))
				}
				if body, err = readStdin(ops.MaxEntryChars * 4); err != nil {
					return outputError(err)
				}
			}

			output, err := ops.AddEntry(c.Context, env.db, ops.AddEntryInput{
				ProjectID: id,
				Kind:      c.String("kind"),
				Title:     c.String("title"),
				Body:      body,
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// timelineCmd creates the timeline command.
func timelineCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "timeline",
		Usage:     "Show a project's notes, tasks and entries, newest first",
		ArgsUsage: "<project-id>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultListLimit, Usage: "Page size"},
			&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Usage: "Items to skip"},
		},
		Action: func(c *cli.Context) error {
			id, err := argID(c, 0, "project-id")
			if err != nil {
				return outputError(err)
			}
			output, err := ops.Timeline(c.Context, env.db, ops.TimelineInput{
				ProjectID: id,
				Limit:     c.Int("limit"),
				Offset:    c.Int("offset"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// noteCmd creates the note command.
func noteCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "note",
		Usage:     "Show one daily note",
		ArgsUsage: "<project-id> <YYYY-MM-DD>",
		Action: func(c *cli.Context) error {
			id, err := argID(c, 0, "project-id")
			if err != nil {
				return outputError(err)
			}
			output, err := ops.GetNote(c.Context, env.db, ops.GetNoteInput{ProjectID: id, Date: c.Args().Get(1)})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// exportCmd creates the export command.
func exportCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export projects to a JSONL file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "Output file path"},
			&cli.Int64Flag{Name: "project", Usage: "Export only this project id"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := env.absorber.Config()
			if err != nil {
				return outputError(err)
			}
			output, err := ops.Export(c.Context, env.db, cfg, env.baseDir, ops.ExportInput{
				Path:      c.String("path"),
				ProjectID: c.Int64("project"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// serveCmd creates the serve command.
func serveCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP JSON API",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Value: "127.0.0.1", Usage: "Address to bind"},
			&cli.IntFlag{Name: "port", Value: 8787, Usage: "Port to listen on"},
		},
		Action: func(c *cli.Context) error {
			srv := web.NewServer(env.db, env.absorber, Version, c.String("bind"), c.Int("port"))
			return web.Run(srv)
		},
	}
}

// mcpCmd creates the mcp command.
func mcpCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Run the MCP server on stdio (the default with piped input)",
		Action: func(c *cli.Context) error {
			cfg, err := env.absorber.Config()
			if err != nil {
				return outputError(err)
			}
			return mcp.Run(env.db, env.absorber, cfg, env.baseDir, Version)
		},
	}
}

// Helper functions

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if aErr, ok := errors.As(err); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", aErr.Code, aErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// argID parses positional argument i as a positive id.
func argID(c *cli.Context, i int, name string) (int64, error) {
	raw := c.Args().Get(i)
	if raw == "" {
		return 0, errors.NewInvalidRequest(name + " is required")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.NewInvalidRequest(fmt.Sprintf("%s must be a positive integer, got %q", name, raw))
	}
	return id, nil
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads stdin, failing if it holds more than limit bytes.
func readStdin(limit int) (string, error) {
	data, err := io.ReadAll(io.LimitReader(os.Stdin, int64(limit)+1))
	if err != nil {
		return "", err
	}
	if len(data) > limit {
		return "", errors.NewInvalidRequest(fmt.Sprintf("stdin exceeds %d bytes", limit))
	}
	return strings.TrimSpace(string(data)), nil
}
