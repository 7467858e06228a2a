package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/mjs/focal/internal/store"
	"github.com/mjs/focal/pkg/models"
)

// TemplateStore is the template persistence surface the server needs.
// The SQLite adapter in internal/db satisfies it.
type TemplateStore interface {
	CreateTemplate(ctx context.Context, tpl *models.TaskTemplate) error
	GetTemplateByName(ctx context.Context, name string) (*models.TaskTemplate, error)
	ListTemplates(ctx context.Context) ([]*models.TaskTemplate, error)
	DeleteTemplate(ctx context.Context, id string) (bool, error)
}

// NewServer creates a new MCP server exposing task, template, and focus
// timer tools over stdio.
func NewServer(tasks *store.Store, templates TemplateStore) *server.MCPServer {
	s := server.NewMCPServer("Focal", "0.1.0")

	// Task Management
	s.AddTool(mcp.NewTool("create_task",
		mcp.WithDescription("Create a new task."),
		mcp.WithString("title", mcp.Description("Task title"), mcp.Required()),
		mcp.WithString("description", mcp.Description("Task description")),
		mcp.WithString("due_date", mcp.Description("Due date (RFC 3339)")),
		mcp.WithString("priority", mcp.Description("Priority (low|medium|high), defaults to medium")),
		mcp.WithString("category_id", mcp.Description("Category ID")),
		mcp.WithNumber("reminder_minutes", mcp.Description("Minutes before due date to remind")),
	), createTaskHandler(tasks))

	s.AddTool(mcp.NewTool("get_task",
		mcp.WithDescription("Get a single task by id, with subtasks and tags."),
		mcp.WithString("id", mcp.Description("Task ID"), mcp.Required()),
	), getTaskHandler(tasks))

	s.AddTool(mcp.NewTool("list_tasks",
		mcp.WithDescription("List tasks with optional filters, ordered by due date then priority."),
		mcp.WithBoolean("completed", mcp.Description("Filter by completion state")),
		mcp.WithString("priority", mcp.Description("Filter by priority (low|medium|high)")),
		mcp.WithString("category_id", mcp.Description("Filter by category")),
	), listTasksHandler(tasks))

	s.AddTool(mcp.NewTool("update_task",
		mcp.WithDescription("Update fields of an existing task. Omitted fields keep their value."),
		mcp.WithString("id", mcp.Description("Task ID"), mcp.Required()),
		mcp.WithString("title", mcp.Description("New title")),
		mcp.WithString("description", mcp.Description("New description")),
		mcp.WithString("due_date", mcp.Description("New due date (RFC 3339, empty string clears)")),
		mcp.WithString("priority", mcp.Description("New priority")),
	), updateTaskHandler(tasks))

	s.AddTool(mcp.NewTool("delete_task",
		mcp.WithDescription("Delete a task. Deleting an unknown id is a no-op."),
		mcp.WithString("id", mcp.Description("Task ID"), mcp.Required()),
	), deleteTaskHandler(tasks))

	s.AddTool(mcp.NewTool("toggle_task",
		mcp.WithDescription("Toggle a task between completed and pending."),
		mcp.WithString("id", mcp.Description("Task ID"), mcp.Required()),
	), toggleTaskHandler(tasks))

	s.AddTool(mcp.NewTool("next_occurrence",
		mcp.WithDescription("Compute the next due date of a repeating task."),
		mcp.WithString("id", mcp.Description("Task ID"), mcp.Required()),
	), nextOccurrenceHandler(tasks))

	// Subtask Management
	s.AddTool(mcp.NewTool("add_subtask",
		mcp.WithDescription("Add a subtask to a task. Parent progress is recomputed."),
		mcp.WithString("task_id", mcp.Description("Parent task ID"), mcp.Required()),
		mcp.WithString("title", mcp.Description("Subtask title"), mcp.Required()),
	), addSubtaskHandler(tasks))

	s.AddTool(mcp.NewTool("toggle_subtask",
		mcp.WithDescription("Toggle a subtask's completion. Parent progress is recomputed."),
		mcp.WithString("task_id", mcp.Description("Parent task ID"), mcp.Required()),
		mcp.WithString("subtask_id", mcp.Description("Subtask ID"), mcp.Required()),
	), toggleSubtaskHandler(tasks))

	s.AddTool(mcp.NewTool("delete_subtask",
		mcp.WithDescription("Delete a subtask. Parent progress is recomputed."),
		mcp.WithString("task_id", mcp.Description("Parent task ID"), mcp.Required()),
		mcp.WithString("subtask_id", mcp.Description("Subtask ID"), mcp.Required()),
	), deleteSubtaskHandler(tasks))

	// Template Management
	s.AddTool(mcp.NewTool("create_template",
		mcp.WithDescription("Create a reusable task template."),
		mcp.WithString("name", mcp.Description("Template name (unique)"), mcp.Required()),
		mcp.WithString("title", mcp.Description("Title for tasks made from this template"), mcp.Required()),
		mcp.WithString("description", mcp.Description("Description for created tasks")),
		mcp.WithString("priority", mcp.Description("Priority for created tasks")),
		mcp.WithNumber("due_offset_days", mcp.Description("Days from creation until due (defaults to 1)")),
	), createTemplateHandler(templates))

	s.AddTool(mcp.NewTool("list_templates",
		mcp.WithDescription("List all task templates."),
	), listTemplatesHandler(templates))

	s.AddTool(mcp.NewTool("delete_template",
		mcp.WithDescription("Delete a template by name."),
		mcp.WithString("name", mcp.Description("Template name"), mcp.Required()),
	), deleteTemplateHandler(templates))

	s.AddTool(mcp.NewTool("instantiate_template",
		mcp.WithDescription("Create a new task from a template."),
		mcp.WithString("name", mcp.Description("Template name"), mcp.Required()),
	), instantiateTemplateHandler(tasks, templates))

	// Focus Timer
	s.AddTool(mcp.NewTool("timer_start",
		mcp.WithDescription("Start a work session, optionally linked to a task."),
		mcp.WithString("task_id", mcp.Description("Task to attribute the session to")),
	), timerStartHandler(tasks))

	s.AddTool(mcp.NewTool("timer_pause",
		mcp.WithDescription("Pause the running timer."),
	), timerPauseHandler(tasks))

	s.AddTool(mcp.NewTool("timer_resume",
		mcp.WithDescription("Resume a paused timer."),
	), timerResumeHandler(tasks))

	s.AddTool(mcp.NewTool("timer_stop",
		mcp.WithDescription("Stop the timer. Optionally log the partial session."),
		mcp.WithBoolean("log_partial", mcp.Description("Record the interrupted session")),
		mcp.WithString("reason", mcp.Description("Why the session was cut short")),
	), timerStopHandler(tasks))

	s.AddTool(mcp.NewTool("timer_skip_break",
		mcp.WithDescription("Skip the current break and go straight to work."),
	), timerSkipBreakHandler(tasks))

	s.AddTool(mcp.NewTool("timer_start_break",
		mcp.WithDescription("Start a pending break that was not auto-started."),
	), timerStartBreakHandler(tasks))

	s.AddTool(mcp.NewTool("timer_status",
		mcp.WithDescription("Get the current timer phase and remaining seconds."),
	), timerStatusHandler(tasks))

	s.AddTool(mcp.NewTool("list_sessions",
		mcp.WithDescription("List recorded focus sessions, optionally for one task."),
		mcp.WithString("task_id", mcp.Description("Filter by task")),
	), listSessionsHandler(tasks))

	return s
}

// Serve starts the MCP server on stdio.
func Serve(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

func createTaskHandler(tasks *store.Store) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		t := &models.Task{
			Title:    mcp.ParseString(request, "title", ""),
			Priority: models.Priority(mcp.ParseString(request, "priority", "")),
		}

		args, _ := request.Params.Arguments.(map[string]any)
		if desc, ok := args["description"].(string); ok {
			t.Description = &desc
		}
		if cat, ok := args["category_id"].(string); ok {
			t.CategoryID = &cat
		}
		if raw, ok := args["due_date"].(string); ok && raw != "" {
			due, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("invalid due_date: %v", err)), nil
			}
			t.DueDate = &due
		}
		if mins, ok := args["reminder_minutes"].(float64); ok {
			m := int(mins)
			t.ReminderMinutes = &m
		}

		created, err := tasks.Add(ctx, t)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(created)
	}
}

func getTaskHandler(tasks *store.Store) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := mcp.ParseString(request, "id", "")
		t := tasks.Task(id)
		if t == nil {
			return mcp.NewToolResultError(fmt.Sprintf("Task '%s' not found", id)), nil
		}
		return jsonResult(t)
	}
}

func listTasksHandler(tasks *store.Store) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var filter models.TaskFilter
		args, _ := request.Params.Arguments.(map[string]any)
		if completed, ok := args["completed"].(bool); ok {
			filter.Completed = &completed
		}
		if p, ok := args["priority"].(string); ok {
			prio := models.Priority(p)
			if !prio.Valid() {
				return mcp.NewToolResultError(fmt.Sprintf("unknown priority '%s'", p)), nil
			}
			filter.Priority = &prio
		}
		if cat, ok := args["category_id"].(string); ok {
			filter.CategoryID = &cat
		}

		if err := tasks.Fetch(ctx, models.TaskFilter{}); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(map[string]any{"tasks": tasks.Tasks(filter)})
	}
}

func updateTaskHandler(tasks *store.Store) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := mcp.ParseString(request, "id", "")
		t := tasks.Task(id)
		if t == nil {
			return mcp.NewToolResultError(fmt.Sprintf("Task '%s' not found", id)), nil
		}

		args, _ := request.Params.Arguments.(map[string]any)
		if title, ok := args["title"].(string); ok {
			t.Title = title
		}
		if desc, ok := args["description"].(string); ok {
			t.Description = &desc
		}
		if raw, ok := args["due_date"].(string); ok {
			if raw == "" {
				t.DueDate = nil
			} else {
				due, err := time.Parse(time.RFC3339, raw)
				if err != nil {
					return mcp.NewToolResultError(fmt.Sprintf("invalid due_date: %v", err)), nil
				}
				t.DueDate = &due
			}
		}
		if p, ok := args["priority"].(string); ok {
			prio := models.Priority(p)
			if !prio.Valid() {
				return mcp.NewToolResultError(fmt.Sprintf("unknown priority '%s'", p)), nil
			}
			t.Priority = prio
		}

		ok, err := tasks.Update(ctx, t)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("Task '%s' not found", id)), nil
		}
		return jsonResult(tasks.Task(id))
	}
}

func deleteTaskHandler(tasks *store.Store) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := mcp.ParseString(request, "id", "")
		ok, err := tasks.Delete(ctx, id)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if !ok {
			return mcp.NewToolResultText("Task was already gone"), nil
		}
		return mcp.NewToolResultText("Task deleted successfully"), nil
	}
}

func toggleTaskHandler(tasks *store.Store) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := mcp.ParseString(request, "id", "")
		ok, err := tasks.ToggleCompletion(ctx, id)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("Task '%s' not found", id)), nil
		}
		return jsonResult(tasks.Task(id))
	}
}

func nextOccurrenceHandler(tasks *store.Store) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := mcp.ParseString(request, "id", "")
		next, err := tasks.NextOccurrence(id)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(map[string]any{"next_due_date": next.Format(time.RFC3339)})
	}
}

func addSubtaskHandler(tasks *store.Store) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		taskID := mcp.ParseString(request, "task_id", "")
		title := mcp.ParseString(request, "title", "")
		t, err := tasks.AddSubtask(ctx, taskID, title)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if t == nil {
			return mcp.NewToolResultError(fmt.Sprintf("Task '%s' not found", taskID)), nil
		}
		return jsonResult(t)
	}
}

func toggleSubtaskHandler(tasks *store.Store) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		taskID := mcp.ParseString(request, "task_id", "")
		subtaskID := mcp.ParseString(request, "subtask_id", "")
		t, err := tasks.ToggleSubtask(ctx, taskID, subtaskID)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if t == nil {
			return mcp.NewToolResultError("Task or subtask not found"), nil
		}
		return jsonResult(t)
	}
}

func deleteSubtaskHandler(tasks *store.Store) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		taskID := mcp.ParseString(request, "task_id", "")
		subtaskID := mcp.ParseString(request, "subtask_id", "")
		t, err := tasks.DeleteSubtask(ctx, taskID, subtaskID)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if t == nil {
			return mcp.NewToolResultError("Task or subtask not found"), nil
		}
		return jsonResult(t)
	}
}

func createTemplateHandler(templates TemplateStore) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tpl := &models.TaskTemplate{
			Name:     mcp.ParseString(request, "name", ""),
			Title:    mcp.ParseString(request, "title", ""),
			Priority: models.Priority(mcp.ParseString(request, "priority", "")),
		}

		args, _ := request.Params.Arguments.(map[string]any)
		if desc, ok := args["description"].(string); ok {
			tpl.Description = &desc
		}
		if days, ok := args["due_offset_days"].(float64); ok {
			d := int(days)
			tpl.DueOffsetDays = &d
		}

		if err := templates.CreateTemplate(ctx, tpl); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(tpl)
	}
}

func listTemplatesHandler(templates TemplateStore) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tpls, err := templates.ListTemplates(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(map[string]any{"templates": tpls})
	}
}

func deleteTemplateHandler(templates TemplateStore) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name := mcp.ParseString(request, "name", "")
		tpl, err := templates.GetTemplateByName(ctx, name)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if tpl == nil {
			return mcp.NewToolResultError(fmt.Sprintf("Template '%s' not found", name)), nil
		}
		if _, err := templates.DeleteTemplate(ctx, tpl.ID); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText("Template deleted successfully"), nil
	}
}

func instantiateTemplateHandler(tasks *store.Store, templates TemplateStore) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name := mcp.ParseString(request, "name", "")
		tpl, err := templates.GetTemplateByName(ctx, name)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if tpl == nil {
			return mcp.NewToolResultError(fmt.Sprintf("Template '%s' not found", name)), nil
		}

		t, err := tasks.CreateTaskFromTemplate(ctx, tpl)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(t)
	}
}

func timerStartHandler(tasks *store.Store) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		taskID := mcp.ParseString(request, "task_id", "")
		if err := tasks.Timer().Start(taskID); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(tasks.Timer().State())
	}
}

func timerPauseHandler(tasks *store.Store) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if err := tasks.Timer().Pause(); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(tasks.Timer().State())
	}
}

func timerResumeHandler(tasks *store.Store) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if err := tasks.Timer().Resume(); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(tasks.Timer().State())
	}
}

func timerStopHandler(tasks *store.Store) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		logPartial := mcp.ParseBoolean(request, "log_partial", false)
		reason := mcp.ParseString(request, "reason", "")
		if err := tasks.Timer().Stop(logPartial, reason); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(tasks.Timer().State())
	}
}

func timerSkipBreakHandler(tasks *store.Store) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if err := tasks.Timer().SkipBreak(); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(tasks.Timer().State())
	}
}

func timerStartBreakHandler(tasks *store.Store) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if err := tasks.Timer().StartBreak(); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(tasks.Timer().State())
	}
}

func timerStatusHandler(tasks *store.Store) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(tasks.Timer().State())
	}
}

func listSessionsHandler(tasks *store.Store) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		taskID := mcp.ParseString(request, "task_id", "")
		var sessions []models.PomodoroSession
		if taskID != "" {
			sessions = tasks.Sessions(taskID)
		} else {
			sessions = tasks.Timer().Sessions()
		}
		return jsonResult(map[string]any{"sessions": sessions})
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
