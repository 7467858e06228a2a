package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/mjs/focal/internal/config"
	"github.com/mjs/focal/internal/db"
	pgrepo "github.com/mjs/focal/internal/db/pg"
	"github.com/mjs/focal/internal/mcp"
	"github.com/mjs/focal/internal/store"
	"github.com/mjs/focal/pkg/models"
)

var (
	dbPath     string
	backupPath string
	verbose    bool

	cfg *config.Config
	log zerolog.Logger
)

func main() {
	flag.StringVar(&dbPath, "db-path", "", "Path to database file (overrides FOCAL_DB_PATH)")
	flag.StringVar(&backupPath, "backup-path", "", "Path to JSONL backup file (overrides FOCAL_BACKUP_PATH)")
	flag.BoolVar(&verbose, "verbose", false, "Enable verbose logging")
	flag.Parse()

	var err error
	cfg, err = config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	if backupPath != "" {
		cfg.BackupPath = backupPath
	}
	level := cfg.LogLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

	if flag.NArg() == 0 {
		usage()
		os.Exit(1)
	}
	command := flag.Arg(0)
	args := flag.Args()[1:]

	switch command {
	case "init":
		err = runInit(args)
	case "mcp":
		err = runMCP(args)
	case "list-tasks":
		err = runListTasks(args)
	case "list-templates":
		err = runListTemplates(args)
	case "status":
		err = runStatus(args)
	case "timer":
		err = runTimer(args)
	case "export":
		err = runExport(args)
	case "import":
		err = runImport(args)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("Usage: focal [flags] <command> [arguments]")
	fmt.Println("\nCommands:")
	fmt.Println("  init [dir]       Initialize the task database")
	fmt.Println("  mcp              Serve tasks and timer over MCP stdio")
	fmt.Println("  list-tasks       List tasks")
	fmt.Println("  list-templates   List task templates")
	fmt.Println("  status           Show task and timer summary")
	fmt.Println("  timer            Run a focus session in the terminal")
	fmt.Println("  export <path>    Export tasks and templates to JSONL")
	fmt.Println("  import <path>    Import tasks and templates from JSONL")
}

func openDB(ctx context.Context) (*db.DB, error) {
	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := database.Init(ctx); err != nil {
		database.Close()
		return nil, err
	}
	return database, nil
}

func runInit(args []string) error {
	targetDir := "."
	if len(args) > 0 {
		targetDir = args[0]
	}

	focalDir := filepath.Join(targetDir, ".focal")
	if err := os.MkdirAll(focalDir, 0755); err != nil {
		return fmt.Errorf("failed to create .focal directory: %w", err)
	}
	fmt.Println("✓ Created .focal/ directory")

	gitignorePath := filepath.Join(focalDir, ".gitignore")
	if err := os.WriteFile(gitignorePath, []byte("focal.db*\n"), 0644); err != nil {
		return fmt.Errorf("failed to create .gitignore: %w", err)
	}
	fmt.Println("✓ Created .focal/.gitignore")

	if cfg.DBPath == "focal.db" {
		cfg.DBPath = filepath.Join(focalDir, "focal.db")
	}
	if cfg.BackupPath == "" {
		cfg.BackupPath = filepath.Join(focalDir, "backup.jsonl")
	}

	ctx := context.Background()
	database, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer database.Close()
	fmt.Printf("✓ Initialized database at %s\n", cfg.DBPath)

	if _, err := os.Stat(cfg.BackupPath); err == nil {
		if err := database.ImportBackup(ctx, cfg.BackupPath); err != nil {
			return fmt.Errorf("failed to import backup: %w", err)
		}
		fmt.Printf("✓ Imported backup from %s\n", cfg.BackupPath)
	}

	fmt.Println("✓ Focal initialized successfully")
	return nil
}

func runMCP(args []string) error {
	ctx := context.Background()

	// Templates and JSONL backups always live in the local SQLite file,
	// even when tasks come from Postgres.
	database, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	if cfg.BackupPath != "" {
		database.EnableAutoBackup(cfg.BackupPath)
	}

	var repo store.Repository = database
	if cfg.PostgresURL != "" {
		pg, err := pgrepo.New(ctx, cfg.PostgresURL)
		if err != nil {
			return err
		}
		defer pg.Close()
		if err := pg.EnsureSchema(ctx); err != nil {
			return err
		}
		repo = pg
		log.Info().Msg("using postgres task repository")
	}

	tasks, err := store.New(repo, cfg.Pomodoro, log)
	if err != nil {
		return err
	}
	if err := tasks.Fetch(ctx, models.TaskFilter{}); err != nil {
		return err
	}

	s := mcp.NewServer(tasks, database)
	log.Info().Str("db", cfg.DBPath).Msg("serving MCP on stdio")
	return mcp.Serve(s)
}

func runListTasks(args []string) error {
	taskFlags := flag.NewFlagSet("list-tasks", flag.ContinueOnError)
	completedFilter := taskFlags.String("completed", "", "Filter by completion (true|false)")
	priorityFilter := taskFlags.String("priority", "", "Filter by priority (low|medium|high)")
	categoryFilter := taskFlags.String("category", "", "Filter by category id")
	if err := taskFlags.Parse(args); err != nil {
		return err
	}

	var filter models.TaskFilter
	switch *completedFilter {
	case "":
	case "true":
		done := true
		filter.Completed = &done
	case "false":
		done := false
		filter.Completed = &done
	default:
		return fmt.Errorf("invalid -completed value %q", *completedFilter)
	}
	if *priorityFilter != "" {
		p := models.Priority(*priorityFilter)
		if !p.Valid() {
			return fmt.Errorf("invalid -priority value %q", *priorityFilter)
		}
		filter.Priority = &p
	}
	if *categoryFilter != "" {
		filter.CategoryID = categoryFilter
	}

	ctx := context.Background()
	database, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	tasks, err := database.ListTasks(ctx, filter)
	if err != nil {
		return err
	}

	fmt.Printf("%-38s %-30s %-8s %-12s %-5s\n", "ID", "TITLE", "PRIO", "DUE", "DONE")
	fmt.Println("-------------------------------------------------------------------------------------------------")
	for _, t := range tasks {
		due := "-"
		if t.DueDate != nil {
			due = t.DueDate.Format("2006-01-02")
		}
		done := " "
		if t.Completed {
			done = "x"
		}
		title := t.Title
		if t.Progress != nil {
			title = fmt.Sprintf("%s (%d%%)", title, *t.Progress)
		}
		fmt.Printf("%-38s %-30s %-8s %-12s [%s]\n", t.ID, title, t.Priority, due, done)
	}
	return nil
}

func runListTemplates(args []string) error {
	ctx := context.Background()
	database, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	templates, err := database.ListTemplates(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("%-20s %-30s %-8s %-10s\n", "NAME", "TITLE", "PRIO", "DUE IN")
	fmt.Println("-----------------------------------------------------------------------")
	for _, tpl := range templates {
		dueIn := "1d"
		if tpl.DueOffsetDays != nil {
			dueIn = fmt.Sprintf("%dd", *tpl.DueOffsetDays)
		}
		fmt.Printf("%-20s %-30s %-8s %-10s\n", tpl.Name, tpl.Title, tpl.Priority, dueIn)
	}
	return nil
}

func runStatus(args []string) error {
	ctx := context.Background()
	database, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	tasks, err := database.ListTasks(ctx, models.TaskFilter{})
	if err != nil {
		return err
	}
	templates, err := database.ListTemplates(ctx)
	if err != nil {
		return err
	}

	completed := 0
	overdue := 0
	byPriority := make(map[models.Priority]int)
	now := time.Now()
	for _, t := range tasks {
		if t.Completed {
			completed++
		} else if t.DueDate != nil && t.DueDate.Before(now) {
			overdue++
		}
		byPriority[t.Priority]++
	}

	fmt.Println("Focal Status")
	fmt.Println("============")
	fmt.Printf("Total Tasks: %d\n", len(tasks))
	fmt.Printf("Completed:   %d\n", completed)
	fmt.Printf("Overdue:     %d\n", overdue)
	fmt.Printf("Templates:   %d\n", len(templates))

	fmt.Println("\nBy Priority:")
	fmt.Printf("  High:   %d\n", byPriority[models.PriorityHigh])
	fmt.Printf("  Medium: %d\n", byPriority[models.PriorityMedium])
	fmt.Printf("  Low:    %d\n", byPriority[models.PriorityLow])

	pending := 0
	fmt.Println("\nNext Up:")
	for _, t := range tasks {
		if t.Completed {
			continue
		}
		fmt.Printf("  - %s (%s)\n", t.Title, t.Priority)
		pending++
		if pending >= 5 {
			break
		}
	}
	return nil
}

func runTimer(args []string) error {
	timerFlags := flag.NewFlagSet("timer", flag.ContinueOnError)
	taskID := timerFlags.String("task", "", "Task id to attribute sessions to")
	sessions := timerFlags.Int("sessions", 1, "Work sessions to complete before exiting")
	if err := timerFlags.Parse(args); err != nil {
		return err
	}
	if *sessions < 1 {
		return fmt.Errorf("-sessions must be at least 1")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	pomo := cfg.Pomodoro
	pomo.AutoStartBreaks = true
	if *sessions > 1 {
		pomo.AutoStartNextSession = true
	}

	tasks, err := store.New(database, pomo, log)
	if err != nil {
		return err
	}
	engine := tasks.Timer()
	if err := engine.Start(*taskID); err != nil {
		return err
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	lastPhase := engine.State().Phase
	fmt.Printf("Focus session started (%d min work, %d min break)\n",
		pomo.WorkMinutes, pomo.ShortBreakMinutes)

	for {
		select {
		case <-ctx.Done():
			fmt.Println()
			if err := engine.Stop(true, "interrupted"); err != nil {
				return err
			}
			fmt.Printf("Stopped. %d session(s) logged.\n", len(engine.Sessions()))
			return nil
		case <-ticker.C:
			engine.Advance(1)
			state := engine.State()

			if state.Phase != lastPhase {
				fmt.Println()
				switch state.Phase {
				case models.PhaseShortBreak:
					fmt.Println("Work session complete. Short break.")
				case models.PhaseLongBreak:
					fmt.Println("Work session complete. Long break.")
				case models.PhaseWorking:
					fmt.Println("Break over. Back to work.")
				}
				lastPhase = state.Phase
			}

			done := 0
			for _, s := range engine.Sessions() {
				if s.Completed {
					done++
				}
			}
			if state.Phase == models.PhaseIdle || done >= *sessions {
				fmt.Printf("\nDone. %d work session(s) completed.\n", done)
				return nil
			}

			fmt.Printf("\r[%s] %02d:%02d remaining ", state.Phase,
				state.RemainingSeconds/60, state.RemainingSeconds%60)
		}
	}
}

func runExport(args []string) error {
	path := cfg.BackupPath
	if len(args) > 0 {
		path = args[0]
	}
	if path == "" {
		return fmt.Errorf("no export path given (argument or FOCAL_BACKUP_PATH)")
	}

	ctx := context.Background()
	database, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := database.ExportBackup(ctx, path); err != nil {
		return err
	}
	fmt.Printf("✓ Exported to %s\n", path)
	return nil
}

func runImport(args []string) error {
	path := cfg.BackupPath
	if len(args) > 0 {
		path = args[0]
	}
	if path == "" {
		return fmt.Errorf("no import path given (argument or FOCAL_BACKUP_PATH)")
	}

	ctx := context.Background()
	database, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := database.ImportBackup(ctx, path); err != nil {
		return err
	}
	fmt.Printf("✓ Imported from %s\n", path)
	return nil
}
