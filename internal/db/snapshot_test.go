package db

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mjs/focal/pkg/models"
)

func TestExportImportBackup(t *testing.T) {
	src := openTestDB(t)
	ctx := context.Background()

	due := time.Date(2024, time.July, 4, 10, 0, 0, 0, time.UTC)
	task := &models.Task{
		Title:    "Backed up",
		DueDate:  &due,
		Priority: models.PriorityHigh,
		Tags:     []string{"keep"},
		SubTasks: []models.SubTask{{Title: "part one", Completed: true}, {Title: "part two"}},
	}
	if err := src.CreateTask(ctx, task); err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}
	tpl := &models.TaskTemplate{Name: "daily", Title: "Daily standup"}
	if err := src.CreateTemplate(ctx, tpl); err != nil {
		t.Fatalf("Failed to create template: %v", err)
	}

	path := filepath.Join(t.TempDir(), "backup.jsonl")
	if err := src.ExportBackup(ctx, path); err != nil {
		t.Fatalf("Failed to export backup: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("Backup file missing: %v", err)
	}

	dst := openTestDB(t)
	if err := dst.ImportBackup(ctx, path); err != nil {
		t.Fatalf("Failed to import backup: %v", err)
	}

	restored, err := dst.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("Failed to get restored task: %v", err)
	}
	if restored == nil {
		t.Fatal("Restored task not found")
	}
	if restored.Title != "Backed up" || len(restored.SubTasks) != 2 || len(restored.Tags) != 1 {
		t.Errorf("Restored task mismatch: %+v", restored)
	}
	if !restored.CreatedAt.Equal(task.CreatedAt) {
		t.Errorf("CreatedAt not preserved: %v vs %v", restored.CreatedAt, task.CreatedAt)
	}
	if restored.Progress == nil || *restored.Progress != 50 {
		t.Errorf("Expected progress 50, got %v", restored.Progress)
	}

	restoredTpl, err := dst.GetTemplateByName(ctx, "daily")
	if err != nil {
		t.Fatalf("Failed to get restored template: %v", err)
	}
	if restoredTpl == nil {
		t.Fatal("Restored template not found")
	}

	// Importing again over existing data stays stable.
	if err := dst.ImportBackup(ctx, path); err != nil {
		t.Fatalf("Second import failed: %v", err)
	}
	all, err := dst.ListTasks(ctx, models.TaskFilter{})
	if err != nil {
		t.Fatalf("Failed to list tasks: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("Expected 1 task after re-import, got %d", len(all))
	}
}

func TestAutoBackupOnChange(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "auto.jsonl")
	db.EnableAutoBackup(path)

	if err := db.CreateTask(ctx, taskFixture("Auto")); err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("Expected auto backup written after create: %v", err)
	}
}
