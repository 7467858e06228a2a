package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/mjs/focal/internal/db"
	"github.com/mjs/focal/internal/store"
	"github.com/mjs/focal/pkg/models"
)

func newTestServer(t *testing.T) (*server.MCPServer, *store.Store, *db.DB) {
	t.Helper()
	database, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := database.Init(context.Background()); err != nil {
		t.Fatalf("Failed to initialize database: %v", err)
	}

	tasks, err := store.New(database, models.DefaultPomodoroConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to build store: %v", err)
	}
	return NewServer(tasks, database), tasks, database
}

func callTool(t *testing.T, s *server.MCPServer, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	tool := s.GetTool(name)
	if tool == nil {
		t.Fatalf("Tool %s not found", name)
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	result, err := tool.Handler(context.Background(), req)
	if err != nil {
		t.Fatalf("Handler %s failed: %v", name, err)
	}
	return result
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("Result has no content")
	}
	return result.Content[0].(mcp.TextContent).Text
}

func TestServerInitialization(t *testing.T) {
	s, _, _ := newTestServer(t)
	stdio := server.NewStdioServer(s)

	r, w := io.Pipe()
	stdout := &bytes.Buffer{}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		errChan <- stdio.Listen(ctx, r, stdout)
	}()

	rawReq := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "initialize",
		"params": map[string]interface{}{
			"protocolVersion": mcp.LATEST_PROTOCOL_VERSION,
			"clientInfo": map[string]interface{}{
				"name":    "test-client",
				"version": "1.0.0",
			},
		},
	}

	data, err := json.Marshal(rawReq)
	if err != nil {
		t.Fatalf("Failed to marshal request: %v", err)
	}
	w.Write(data)
	w.Write([]byte("\n"))

	time.Sleep(200 * time.Millisecond)

	if stdout.Len() == 0 {
		t.Fatal("Expected response from server, got none")
	}

	var resp struct {
		ID     int `json:"id"`
		Result struct {
			ServerInfo struct {
				Name string `json:"name"`
			} `json:"serverInfo"`
		} `json:"result"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to unmarshal response: %v\nOutput: %s", err, stdout.String())
	}
	if resp.ID != 1 {
		t.Errorf("Expected id 1, got %v", resp.ID)
	}
	if resp.Result.ServerInfo.Name != "Focal" {
		t.Errorf("Expected server name Focal, got %v", resp.Result.ServerInfo.Name)
	}
}

func TestTaskTools(t *testing.T) {
	s, tasks, database := newTestServer(t)
	ctx := context.Background()

	var taskID string

	t.Run("create_task", func(t *testing.T) {
		result := callTool(t, s, "create_task", map[string]any{
			"title":       "Write report",
			"description": "quarterly numbers",
			"due_date":    "2026-10-01T09:00:00Z",
			"priority":    "high",
		})
		if result.IsError {
			t.Fatalf("Tool returned error: %v", result.Content[0])
		}

		var created models.Task
		if err := json.Unmarshal([]byte(resultText(t, result)), &created); err != nil {
			t.Fatalf("Failed to unmarshal response: %v", err)
		}
		if created.ID == "" {
			t.Fatal("Expected an id on the created task")
		}
		taskID = created.ID

		persisted, err := database.GetTask(ctx, taskID)
		if err != nil || persisted == nil {
			t.Fatalf("Task not in DB: %v", err)
		}
		if persisted.Priority != models.PriorityHigh {
			t.Errorf("Expected high priority, got %s", persisted.Priority)
		}
	})

	t.Run("create_task_rejects_empty_title", func(t *testing.T) {
		result := callTool(t, s, "create_task", map[string]any{"title": "   "})
		if !result.IsError {
			t.Error("Expected error for blank title")
		}
	})

	t.Run("create_task_rejects_bad_due_date", func(t *testing.T) {
		result := callTool(t, s, "create_task", map[string]any{
			"title":    "x",
			"due_date": "next tuesday",
		})
		if !result.IsError {
			t.Error("Expected error for unparseable due date")
		}
	})

	t.Run("get_task", func(t *testing.T) {
		result := callTool(t, s, "get_task", map[string]any{"id": taskID})
		if result.IsError {
			t.Fatalf("Tool returned error: %v", result.Content[0])
		}

		var got models.Task
		if err := json.Unmarshal([]byte(resultText(t, result)), &got); err != nil {
			t.Fatalf("Failed to unmarshal response: %v", err)
		}
		if got.Title != "Write report" {
			t.Errorf("Expected title 'Write report', got %q", got.Title)
		}
	})

	t.Run("update_task", func(t *testing.T) {
		result := callTool(t, s, "update_task", map[string]any{
			"id":       taskID,
			"title":    "Write Q3 report",
			"priority": "medium",
		})
		if result.IsError {
			t.Fatalf("Tool returned error: %v", result.Content[0])
		}

		persisted, _ := database.GetTask(ctx, taskID)
		if persisted.Title != "Write Q3 report" {
			t.Errorf("Title not updated: %q", persisted.Title)
		}
		if persisted.Priority != models.PriorityMedium {
			t.Errorf("Priority not updated: %s", persisted.Priority)
		}
	})

	t.Run("update_task_clears_due_date", func(t *testing.T) {
		result := callTool(t, s, "update_task", map[string]any{
			"id":       taskID,
			"due_date": "",
		})
		if result.IsError {
			t.Fatalf("Tool returned error: %v", result.Content[0])
		}
		persisted, _ := database.GetTask(ctx, taskID)
		if persisted.DueDate != nil {
			t.Errorf("Due date should be cleared, got %v", persisted.DueDate)
		}
	})

	t.Run("toggle_task", func(t *testing.T) {
		result := callTool(t, s, "toggle_task", map[string]any{"id": taskID})
		if result.IsError {
			t.Fatalf("Tool returned error: %v", result.Content[0])
		}
		persisted, _ := database.GetTask(ctx, taskID)
		if !persisted.Completed {
			t.Error("Expected task completed after toggle")
		}
	})

	t.Run("list_tasks", func(t *testing.T) {
		result := callTool(t, s, "list_tasks", map[string]any{"completed": true})
		if result.IsError {
			t.Fatalf("Tool returned error: %v", result.Content[0])
		}

		var resp struct {
			Tasks []models.Task `json:"tasks"`
		}
		if err := json.Unmarshal([]byte(resultText(t, result)), &resp); err != nil {
			t.Fatalf("Failed to unmarshal response: %v", err)
		}
		if len(resp.Tasks) != 1 {
			t.Errorf("Expected 1 completed task, got %d", len(resp.Tasks))
		}
	})

	t.Run("subtasks", func(t *testing.T) {
		result := callTool(t, s, "add_subtask", map[string]any{
			"task_id": taskID,
			"title":   "gather numbers",
		})
		if result.IsError {
			t.Fatalf("Tool returned error: %v", result.Content[0])
		}

		var withSub models.Task
		if err := json.Unmarshal([]byte(resultText(t, result)), &withSub); err != nil {
			t.Fatalf("Failed to unmarshal response: %v", err)
		}
		if len(withSub.SubTasks) != 1 {
			t.Fatalf("Expected 1 subtask, got %d", len(withSub.SubTasks))
		}
		if withSub.Progress == nil || *withSub.Progress != 0 {
			t.Errorf("Expected 0%% progress, got %v", withSub.Progress)
		}

		result = callTool(t, s, "toggle_subtask", map[string]any{
			"task_id":    taskID,
			"subtask_id": withSub.SubTasks[0].ID,
		})
		if result.IsError {
			t.Fatalf("Tool returned error: %v", result.Content[0])
		}
		if err := json.Unmarshal([]byte(resultText(t, result)), &withSub); err != nil {
			t.Fatalf("Failed to unmarshal response: %v", err)
		}
		if withSub.Progress == nil || *withSub.Progress != 100 {
			t.Errorf("Expected 100%% progress, got %v", withSub.Progress)
		}

		result = callTool(t, s, "delete_subtask", map[string]any{
			"task_id":    taskID,
			"subtask_id": withSub.SubTasks[0].ID,
		})
		if result.IsError {
			t.Fatalf("Tool returned error: %v", result.Content[0])
		}
		withSub = models.Task{}
		if err := json.Unmarshal([]byte(resultText(t, result)), &withSub); err != nil {
			t.Fatalf("Failed to unmarshal response: %v", err)
		}
		if withSub.Progress != nil {
			t.Errorf("Progress should be unset with no subtasks, got %v", *withSub.Progress)
		}
	})

	t.Run("next_occurrence", func(t *testing.T) {
		due := time.Date(2026, time.March, 1, 8, 0, 0, 0, time.UTC)
		repeating, err := tasks.Add(ctx, &models.Task{
			Title:      "Water plants",
			DueDate:    &due,
			Recurrence: &models.RecurrencePattern{Type: models.RecurrenceWeekly, Interval: 1},
		})
		if err != nil {
			t.Fatalf("Failed to add repeating task: %v", err)
		}

		result := callTool(t, s, "next_occurrence", map[string]any{"id": repeating.ID})
		if result.IsError {
			t.Fatalf("Tool returned error: %v", result.Content[0])
		}

		var resp struct {
			NextDueDate string `json:"next_due_date"`
		}
		if err := json.Unmarshal([]byte(resultText(t, result)), &resp); err != nil {
			t.Fatalf("Failed to unmarshal response: %v", err)
		}
		if resp.NextDueDate != "2026-03-08T08:00:00Z" {
			t.Errorf("Expected 2026-03-08T08:00:00Z, got %s", resp.NextDueDate)
		}
	})

	t.Run("delete_task", func(t *testing.T) {
		result := callTool(t, s, "delete_task", map[string]any{"id": taskID})
		if result.IsError {
			t.Fatalf("Tool returned error: %v", result.Content[0])
		}
		persisted, _ := database.GetTask(ctx, taskID)
		if persisted != nil {
			t.Error("Task still exists after deletion")
		}

		// Deleting again is benign.
		result = callTool(t, s, "delete_task", map[string]any{"id": taskID})
		if result.IsError {
			t.Errorf("Second delete should not error: %v", result.Content[0])
		}
	})

	t.Run("error_handling", func(t *testing.T) {
		result := callTool(t, s, "get_task", map[string]any{"id": "does-not-exist"})
		if !result.IsError {
			t.Error("Expected error for unknown task")
		}

		result = callTool(t, s, "toggle_task", map[string]any{"id": "does-not-exist"})
		if !result.IsError {
			t.Error("Expected error for toggling unknown task")
		}
	})
}

func TestTemplateTools(t *testing.T) {
	s, _, database := newTestServer(t)
	ctx := context.Background()

	t.Run("create_template", func(t *testing.T) {
		result := callTool(t, s, "create_template", map[string]any{
			"name":            "weekly-review",
			"title":           "Weekly review",
			"priority":        "high",
			"due_offset_days": 7.0,
		})
		if result.IsError {
			t.Fatalf("Tool returned error: %v", result.Content[0])
		}

		tpl, err := database.GetTemplateByName(ctx, "weekly-review")
		if err != nil || tpl == nil {
			t.Fatalf("Template not in DB: %v", err)
		}
		if tpl.DueOffsetDays == nil || *tpl.DueOffsetDays != 7 {
			t.Errorf("Expected offset 7, got %v", tpl.DueOffsetDays)
		}
	})

	t.Run("instantiate_template", func(t *testing.T) {
		result := callTool(t, s, "instantiate_template", map[string]any{"name": "weekly-review"})
		if result.IsError {
			t.Fatalf("Tool returned error: %v", result.Content[0])
		}

		var created models.Task
		if err := json.Unmarshal([]byte(resultText(t, result)), &created); err != nil {
			t.Fatalf("Failed to unmarshal response: %v", err)
		}
		if created.Title != "Weekly review" {
			t.Errorf("Expected title from template, got %q", created.Title)
		}
		if created.DueDate == nil {
			t.Error("Expected a due date from the offset")
		}
	})

	t.Run("list_templates", func(t *testing.T) {
		result := callTool(t, s, "list_templates", nil)
		if result.IsError {
			t.Fatalf("Tool returned error: %v", result.Content[0])
		}

		var resp struct {
			Templates []models.TaskTemplate `json:"templates"`
		}
		if err := json.Unmarshal([]byte(resultText(t, result)), &resp); err != nil {
			t.Fatalf("Failed to unmarshal response: %v", err)
		}
		if len(resp.Templates) != 1 {
			t.Errorf("Expected 1 template, got %d", len(resp.Templates))
		}
	})

	t.Run("delete_template", func(t *testing.T) {
		result := callTool(t, s, "delete_template", map[string]any{"name": "weekly-review"})
		if result.IsError {
			t.Fatalf("Tool returned error: %v", result.Content[0])
		}
		tpl, _ := database.GetTemplateByName(ctx, "weekly-review")
		if tpl != nil {
			t.Error("Template still exists after deletion")
		}

		result = callTool(t, s, "delete_template", map[string]any{"name": "weekly-review"})
		if !result.IsError {
			t.Error("Expected error deleting unknown template")
		}
	})
}

func TestTimerTools(t *testing.T) {
	s, tasks, _ := newTestServer(t)

	t.Run("start_and_status", func(t *testing.T) {
		result := callTool(t, s, "timer_start", map[string]any{"task_id": "task-1"})
		if result.IsError {
			t.Fatalf("Tool returned error: %v", result.Content[0])
		}

		var state models.PomodoroState
		if err := json.Unmarshal([]byte(resultText(t, result)), &state); err != nil {
			t.Fatalf("Failed to unmarshal state: %v", err)
		}
		if state.Phase != models.PhaseWorking {
			t.Errorf("Expected working phase, got %s", state.Phase)
		}
		if state.RemainingSeconds != 25*60 {
			t.Errorf("Expected 1500 remaining seconds, got %d", state.RemainingSeconds)
		}
	})

	t.Run("double_start_rejected", func(t *testing.T) {
		result := callTool(t, s, "timer_start", nil)
		if !result.IsError {
			t.Error("Expected error starting a running timer")
		}
	})

	t.Run("pause_resume", func(t *testing.T) {
		result := callTool(t, s, "timer_pause", nil)
		if result.IsError {
			t.Fatalf("Tool returned error: %v", result.Content[0])
		}
		var state models.PomodoroState
		json.Unmarshal([]byte(resultText(t, result)), &state)
		if state.Phase != models.PhasePaused {
			t.Errorf("Expected paused, got %s", state.Phase)
		}

		result = callTool(t, s, "timer_resume", nil)
		if result.IsError {
			t.Fatalf("Tool returned error: %v", result.Content[0])
		}
		json.Unmarshal([]byte(resultText(t, result)), &state)
		if state.Phase != models.PhaseWorking {
			t.Errorf("Expected working, got %s", state.Phase)
		}
	})

	t.Run("stop_logs_partial", func(t *testing.T) {
		tasks.Timer().Advance(120)
		result := callTool(t, s, "timer_stop", map[string]any{
			"log_partial": true,
			"reason":      "meeting",
		})
		if result.IsError {
			t.Fatalf("Tool returned error: %v", result.Content[0])
		}

		result = callTool(t, s, "list_sessions", map[string]any{"task_id": "task-1"})
		var resp struct {
			Sessions []models.PomodoroSession `json:"sessions"`
		}
		if err := json.Unmarshal([]byte(resultText(t, result)), &resp); err != nil {
			t.Fatalf("Failed to unmarshal sessions: %v", err)
		}
		if len(resp.Sessions) != 1 {
			t.Fatalf("Expected 1 session, got %d", len(resp.Sessions))
		}
		if !resp.Sessions[0].Interrupted || resp.Sessions[0].Reason != "meeting" {
			t.Errorf("Session not recorded as interrupted: %+v", resp.Sessions[0])
		}
	})

	t.Run("status_when_idle", func(t *testing.T) {
		result := callTool(t, s, "timer_status", nil)
		var state models.PomodoroState
		if err := json.Unmarshal([]byte(resultText(t, result)), &state); err != nil {
			t.Fatalf("Failed to unmarshal state: %v", err)
		}
		if state.Phase != models.PhaseIdle {
			t.Errorf("Expected idle after stop, got %s", state.Phase)
		}
	})
}
