package mcp

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/almanac/internal/config"
	"github.com/hpungsan/almanac/internal/ops"
)

// KnownTypes lists all valid type names.
var KnownTypes = []string{"project", "journal", "task", "entry"}

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"project_create": {
		def:     createProjectToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCreateProject },
	},
	"project_list": {
		def:     listProjectsToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleListProjects },
	},
	"journal_absorb": {
		def:     absorbToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleAbsorb },
	},
	"journal_absorb_all": {
		def:     absorbAllToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleAbsorbAll },
	},
	"journal_absorption_data": {
		def:     absorptionDataToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleAbsorptionData },
	},
	"journal_timeline": {
		def:     timelineToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleTimeline },
	},
	"journal_get_note": {
		def:     getNoteToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleGetNote },
	},
	"journal_export": {
		def:     exportToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleExport },
	},
	"task_update_status": {
		def:     updateTaskStatusToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleUpdateTaskStatus },
	},
	"task_add": {
		def:     addTaskToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleAddTask },
	},
	"task_list": {
		def:     listTasksToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleListTasks },
	},
	"entry_add": {
		def:     addEntryToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleAddEntry },
	},
}

// AllToolNames returns a list of all valid tool names.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// ValidateDisabledTypes returns a list of unknown type names from the given list.
func ValidateDisabledTypes(names []string) []string {
	known := make(map[string]bool, len(KnownTypes))
	for _, t := range KnownTypes {
		known[t] = true
	}

	unknown := make([]string, 0)
	for _, name := range names {
		if !known[name] {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// GetTypeForTool extracts the type name from a tool name.
// Tool names follow the pattern "type_action" (e.g., "task_add" → "task").
func GetTypeForTool(toolName string) string {
	if idx := strings.Index(toolName, "_"); idx > 0 {
		return toolName[:idx]
	}
	return ""
}

// ExpandTypesToTools returns all tool names belonging to the given types.
func ExpandTypesToTools(types []string) []string {
	if len(types) == 0 {
		return nil
	}

	typeSet := make(map[string]bool, len(types))
	for _, t := range types {
		typeSet[t] = true
	}

	tools := make([]string, 0)
	for name := range toolRegistry {
		if typeSet[GetTypeForTool(name)] {
			tools = append(tools, name)
		}
	}
	return tools
}

// NewServer creates a new MCP server with Almanac tools registered.
// Tools listed in cfg.DisabledTools or belonging to cfg.DisabledTypes
// are excluded from registration. cfg is read once here; handlers re-read
// configuration through the absorber on every call.
func NewServer(database *sqlx.DB, absorber *ops.Absorber, cfg *config.Config, baseDir, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"almanac",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(database, absorber, baseDir)

	disabled := make(map[string]bool)
	for _, tool := range ExpandTypesToTools(cfg.DisabledTypes) {
		disabled[tool] = true
	}
	for _, name := range cfg.DisabledTools {
		disabled[name] = true
	}

	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run starts the MCP server using stdio transport.
func Run(database *sqlx.DB, absorber *ops.Absorber, cfg *config.Config, baseDir, version string) error {
	s := NewServer(database, absorber, cfg, baseDir, version)
	return server.ServeStdio(s)
}

// ToolHandlerFunc is the signature for tool handlers.
type ToolHandlerFunc func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
