package mcp

import (
	"context"
	"encoding/json"

	"github.com/jmoiron/sqlx"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/almanac/internal/errors"
	"github.com/hpungsan/almanac/internal/ops"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	db       *sqlx.DB
	absorber *ops.Absorber
	baseDir  string
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(database *sqlx.DB, absorber *ops.Absorber, baseDir string) *Handlers {
	return &Handlers{db: database, absorber: absorber, baseDir: baseDir}
}

// Request types for each tool

// ProjectRequest carries just a project id.
type ProjectRequest struct {
	ProjectID int64 `json:"project_id"`
}

// UpdateTaskStatusRequest represents the arguments for task_update_status.
type UpdateTaskStatusRequest struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
}

// Handler implementations

// HandleCreateProject handles the project_create tool call.
func (h *Handlers) HandleCreateProject(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ops.CreateProjectInput](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	result, err := ops.CreateProject(ctx, h.db, input)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleListProjects handles the project_list tool call.
func (h *Handlers) HandleListProjects(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := ops.ListProjects(ctx, h.db)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleAbsorb handles the journal_absorb tool call.
func (h *Handlers) HandleAbsorb(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ProjectRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	result, err := h.absorber.Absorb(ctx, ops.AbsorbInput{ProjectID: input.ProjectID})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleAbsorbAll handles the journal_absorb_all tool call.
func (h *Handlers) HandleAbsorbAll(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := h.absorber.AbsorbAll(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleAbsorptionData handles the journal_absorption_data tool call.
func (h *Handlers) HandleAbsorptionData(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ProjectRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	result, err := ops.GetAbsorptionData(ctx, h.db, input.ProjectID)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleTimeline handles the journal_timeline tool call.
func (h *Handlers) HandleTimeline(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ops.TimelineInput](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	result, err := ops.Timeline(ctx, h.db, input)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleGetNote handles the journal_get_note tool call.
func (h *Handlers) HandleGetNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ops.GetNoteInput](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	result, err := ops.GetNote(ctx, h.db, input)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleExport handles the journal_export tool call.
func (h *Handlers) HandleExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ops.ExportInput](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	cfg, err := h.absorber.Config()
	if err != nil {
		return errorResult(err), nil
	}
	result, err := ops.Export(ctx, h.db, cfg, h.baseDir, input)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleUpdateTaskStatus handles the task_update_status tool call.
func (h *Handlers) HandleUpdateTaskStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[UpdateTaskStatusRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	cfg, err := h.absorber.Config()
	if err != nil {
		return errorResult(err), nil
	}
	result, err := ops.UpdateTaskStatus(ctx, h.db, cfg, ops.UpdateTaskStatusInput{
		ID:     input.ID,
		Status: input.Status,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleAddTask handles the task_add tool call.
func (h *Handlers) HandleAddTask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ops.AddTaskInput](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	result, err := ops.AddTask(ctx, h.db, input)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleListTasks handles the task_list tool call.
func (h *Handlers) HandleListTasks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ops.ListTasksInput](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	result, err := ops.ListTasks(ctx, h.db, input)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleAddEntry handles the entry_add tool call.
func (h *Handlers) HandleAddEntry(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ops.AddEntryInput](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	result, err := ops.AddEntry(ctx, h.db, input)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// errorResult converts an error into an MCP error result.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if aErr, ok := errors.As(err); ok {
		errorObj := map[string]any{
			"code":    aErr.Code,
			"message": aErr.Message,
			"status":  aErr.Status,
		}
		// Internal details can carry file paths or SQL.
		if aErr.Code != errors.ErrInternal && aErr.Details != nil {
			errorObj["details"] = aErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult wraps data in an MCP success result.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
