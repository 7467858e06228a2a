package db

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mjs/focal/pkg/models"
)

// EnableAutoBackup sets up a hook that exports a JSONL backup to the
// given path after every successful write operation.
func (db *DB) EnableAutoBackup(path string) {
	db.SetOnChange(func(ctx context.Context) {
		// Best-effort: a failed export must not fail the original write.
		_ = db.ExportBackup(ctx, path)
	})
}

type backupRecord struct {
	RecordType string               `json:"record_type"`
	ExportedAt *time.Time           `json:"exported_at,omitempty"`
	Task       *models.Task         `json:"task,omitempty"`
	Template   *models.TaskTemplate `json:"template,omitempty"`
}

// ExportBackup writes every task and template as one JSON line each,
// atomically via a temporary file.
func (db *DB) ExportBackup(ctx context.Context, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}

	tempFile, err := os.CreateTemp(dir, "backup-*.jsonl")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		if tempFile != nil {
			tempFile.Close()
			os.Remove(tempFile.Name())
		}
	}()

	tasks, err := db.ListTasks(ctx, models.TaskFilter{})
	if err != nil {
		return err
	}
	templates, err := db.ListTemplates(ctx)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(tempFile)
	now := time.Now().UTC()
	records := []backupRecord{{RecordType: "meta", ExportedAt: &now}}
	for _, t := range tasks {
		records = append(records, backupRecord{RecordType: "task", Task: t})
	}
	for _, tpl := range templates {
		records = append(records, backupRecord{RecordType: "template", Template: tpl})
	}
	for _, rec := range records {
		line, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal backup record: %w", err)
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			return fmt.Errorf("failed to write backup line: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to flush backup: %w", err)
	}

	if err := tempFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	filename := tempFile.Name()
	tempFile = nil // Prevent defer from removing it

	if err := os.Rename(filename, path); err != nil {
		os.Remove(filename)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// ImportBackup reads a JSONL backup and upserts its tasks and templates
// by id. Existing rows win their original created_at; everything else is
// replaced by the backup's values.
func (db *DB) ImportBackup(ctx context.Context, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open backup file: %w", err)
	}
	defer file.Close()

	db.DisableOnChange()
	defer db.EnableOnChange()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec backupRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return fmt.Errorf("failed to unmarshal backup record: %w", err)
		}

		switch rec.RecordType {
		case "meta":
			// Skip meta
		case "task":
			if rec.Task == nil {
				return fmt.Errorf("task record without task payload")
			}
			if err := db.upsertTask(ctx, rec.Task); err != nil {
				return err
			}
		case "template":
			if rec.Template == nil {
				return fmt.Errorf("template record without template payload")
			}
			if err := db.upsertTemplate(ctx, rec.Template); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scanner error: %w", err)
	}

	db.EnableOnChange()
	db.triggerChange(ctx)
	return nil
}

func (db *DB) upsertTask(ctx context.Context, t *models.Task) error {
	existing, err := db.GetTask(ctx, t.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		// CreateTask reassigns timestamps; restore the backup's values.
		created, updated := t.CreatedAt, t.UpdatedAt
		if err := db.CreateTask(ctx, t); err != nil {
			return err
		}
		_, err := db.ExecContext(ctx, `UPDATE tasks SET created_at = ?, updated_at = ? WHERE id = ?`,
			formatTime(created), formatTime(updated), t.ID)
		if err != nil {
			return persistErr("failed to restore task timestamps", err)
		}
		t.CreatedAt, t.UpdatedAt = created, updated
		return nil
	}

	patch := models.PatchFromTask(t)
	if _, err := db.UpdateTask(ctx, t.ID, patch); err != nil {
		return err
	}
	return nil
}

func (db *DB) upsertTemplate(ctx context.Context, tpl *models.TaskTemplate) error {
	existing, err := db.GetTemplate(ctx, tpl.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		if _, err := db.DeleteTemplate(ctx, tpl.ID); err != nil {
			return err
		}
	}
	created, updated := tpl.CreatedAt, tpl.UpdatedAt
	if err := db.CreateTemplate(ctx, tpl); err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `UPDATE templates SET created_at = ?, updated_at = ? WHERE id = ?`,
		formatTime(created), formatTime(updated), tpl.ID)
	if err != nil {
		return persistErr("failed to restore template timestamps", err)
	}
	tpl.CreatedAt, tpl.UpdatedAt = created, updated
	return nil
}
