package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

var createProjectToolDef = mcp.NewTool("project_create",
	mcp.WithDescription("Register a project in the journal. repo_path points at its git checkout; artifact_path at a directory holding a walkthrough document."),
	mcp.WithString("name", mcp.Required(), mcp.Description("Display name")),
	mcp.WithString("icon", mcp.Description("Optional emoji or short label")),
	mcp.WithString("repo_path", mcp.Description("Path to the project's git repository")),
	mcp.WithString("artifact_path", mcp.Description("Directory searched for walkthrough documents")),
)

var listProjectsToolDef = mcp.NewTool("project_list",
	mcp.WithDescription("List every project."),
	mcp.WithReadOnlyHintAnnotation(true),
)

var absorbToolDef = mcp.NewTool("journal_absorb",
	mcp.WithDescription("Absorb today's context for a project: summarize recent history, notes and entries into today's daily note, propose new tasks, and mark tasks that the context shows are done. Provider failures degrade individual parts; they are listed in \"degraded\"."),
	mcp.WithNumber("project_id", mcp.Required(), mcp.Description("Project id")),
)

var absorbAllToolDef = mcp.NewTool("journal_absorb_all",
	mcp.WithDescription("Run journal_absorb for every project. Per-project failures are reported per item."),
)

var absorptionDataToolDef = mcp.NewTool("journal_absorption_data",
	mcp.WithDescription("Daily notes (newest date first) and proposed tasks for a project, plus the last absorption run."),
	mcp.WithNumber("project_id", mcp.Required(), mcp.Description("Project id")),
	mcp.WithReadOnlyHintAnnotation(true),
)

var timelineToolDef = mcp.NewTool("journal_timeline",
	mcp.WithDescription("A project's notes, tasks and entries merged newest first."),
	mcp.WithNumber("project_id", mcp.Required(), mcp.Description("Project id")),
	mcp.WithNumber("limit", mcp.Description("Page size (default 20, max 100)")),
	mcp.WithNumber("offset", mcp.Description("Items to skip")),
	mcp.WithReadOnlyHintAnnotation(true),
)

var getNoteToolDef = mcp.NewTool("journal_get_note",
	mcp.WithDescription("Fetch one daily note."),
	mcp.WithNumber("project_id", mcp.Required(), mcp.Description("Project id")),
	mcp.WithString("date", mcp.Required(), mcp.Description("Calendar date, YYYY-MM-DD")),
	mcp.WithReadOnlyHintAnnotation(true),
)

var exportToolDef = mcp.NewTool("journal_export",
	mcp.WithDescription("Export projects with their notes, tasks, entries and absorption runs to a JSONL file."),
	mcp.WithString("path", mcp.Description("Destination .jsonl file (default: ~/.almanac/exports/<project>-<timestamp>.jsonl)")),
	mcp.WithNumber("project_id", mcp.Description("Export only this project")),
)

var updateTaskStatusToolDef = mcp.NewTool("task_update_status",
	mcp.WithDescription("Set a task's status."),
	mcp.WithNumber("id", mcp.Required(), mcp.Description("Task id")),
	mcp.WithString("status", mcp.Required(),
		mcp.Description("New status"),
		mcp.Enum("proposed", "added", "completed", "dismissed"),
	),
)

var addTaskToolDef = mcp.NewTool("task_add",
	mcp.WithDescription("Add a task by hand. It starts as \"added\"."),
	mcp.WithNumber("project_id", mcp.Required(), mcp.Description("Project id")),
	mcp.WithString("description", mcp.Required(), mcp.Description("What needs doing")),
)

var listTasksToolDef = mcp.NewTool("task_list",
	mcp.WithDescription("List a project's tasks, newest first."),
	mcp.WithNumber("project_id", mcp.Required(), mcp.Description("Project id")),
	mcp.WithString("status",
		mcp.Description("Only tasks with this status"),
		mcp.Enum("proposed", "added", "completed", "dismissed"),
	),
	mcp.WithReadOnlyHintAnnotation(true),
)

var addEntryToolDef = mcp.NewTool("entry_add",
	mcp.WithDescription("Record a conversation excerpt, comment or log for a project. Recent entries feed the next absorption."),
	mcp.WithNumber("project_id", mcp.Required(), mcp.Description("Project id")),
	mcp.WithString("kind", mcp.Required(),
		mcp.Description("Entry kind"),
		mcp.Enum("conversation", "comment", "log"),
	),
	mcp.WithString("title", mcp.Description("Optional title")),
	mcp.WithString("body", mcp.Required(), mcp.Description("Entry text")),
)
