package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/planline/planline/internal/config"
	"github.com/planline/planline/internal/drag"
	"github.com/planline/planline/internal/logging"
	"github.com/planline/planline/internal/notify"
	"github.com/planline/planline/internal/storage"
	"github.com/planline/planline/internal/task"
	"github.com/planline/planline/internal/timegrid"
	"github.com/planline/planline/internal/timeline"
	"github.com/planline/planline/internal/ui"
)

// defaultViewportWidth is used for non-interactive commands where no
// terminal width is known.
const defaultViewportWidth = 800

func buildController(cfg *config.Config, notifier notify.Notifier) (*timeline.Controller, *storage.Repo) {
	repo := storage.NewRepo(cfg.TasksFile, cfg.SchemaFile)
	ctrl := timeline.New(repo, timeline.Options{
		Mode:          cfg.Mode(),
		ViewportWidth: defaultViewportWidth,
		HistoryLimit:  cfg.HistoryLimit,
		Conflict:      drag.CategoryOverlap(),
		Notifier:      notifier,
	})
	return ctrl, repo
}

func consoleNotifier(cfg *config.Config) notify.Notifier {
	logger := logging.New(os.Stderr, logging.Options{
		Level:           cfg.LogLevel,
		Format:          cfg.LogFormat,
		ReportTimestamp: cfg.LogTimestamps,
	})
	return notify.NewConsole(logger)
}

// viewCommand opens the timeline UI with a live change watcher.
func viewCommand(ctx context.Context, cfg *config.Config) error {
	notices := ui.NewChannelNotifier()
	ctrl, repo := buildController(cfg, notices)
	if err := ctrl.Load(ctx); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	events, err := repo.Watch(ctx, time.Duration(cfg.WatchDebounceMS)*time.Millisecond)
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}

	return ui.Run(ctx, ctrl, events, notices.C)
}

// lsCommand prints the task set with grid positions for the active view.
func lsCommand(ctx context.Context, cfg *config.Config, args []string) error {
	ctrl, _ := buildController(cfg, consoleNotifier(cfg))
	if err := ctrl.Load(ctx); err != nil {
		return err
	}

	tasks := ctrl.Store().Tasks()
	bounds := ctrl.Bounds()
	mode := ctrl.Mode()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tSTATUS\tSTART\tDUE\tCOL\tSPAN")
	for i := range tasks {
		t := &tasks[i]
		pos := timegrid.TaskPosition(t, bounds, mode, time.Now())
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%d\n",
			t.ID, t.Title, t.Status, dateOrDash(t.StartDate), dateOrDash(t.DueDate),
			pos.StartColumn, pos.ColumnSpan)
	}
	return w.Flush()
}

func dateOrDash(d *task.Date) string {
	if d == nil || d.IsZero() {
		return "-"
	}
	return d.String()
}

// moveCommand relocates one task through the full drag pipeline: validate,
// optimistic commit, persist.
func moveCommand(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: planline move <id> <date>")
	}
	id := args[0]
	date, err := task.ParseDate(args[1])
	if err != nil {
		return err
	}

	ctrl, _ := buildController(cfg, consoleNotifier(cfg))
	if err := ctrl.Load(ctx); err != nil {
		return err
	}
	if err := ctrl.StartDrag(id); err != nil {
		return err
	}
	report, err := ctrl.Preview(date)
	if err != nil {
		return err
	}
	for _, msg := range report.Messages {
		fmt.Fprintf(os.Stderr, "note: %s\n", msg)
	}
	if report.Validity != drag.Valid && report.Suggestion != nil {
		fmt.Fprintf(os.Stderr, "next free period starts %s\n", report.Suggestion)
	}
	return ctrl.Drop(ctx)
}

// shiftCommand moves a set of tasks by the same day offset as one bulk
// commit: all or nothing in memory, aggregate failure reporting.
func shiftCommand(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: planline shift <days> <id>...")
	}
	days, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("parse day offset %q: %w", args[0], err)
	}

	ctrl, _ := buildController(cfg, consoleNotifier(cfg))
	if err := ctrl.Load(ctx); err != nil {
		return err
	}
	return ctrl.Shift(ctx, args[1:], days)
}

// doctorCommand checks the configuration and validates the task file.
func doctorCommand(cfg *config.Config) error {
	fmt.Printf("tasks file:   %s\n", cfg.TasksFile)
	fmt.Printf("schema file:  %s\n", orNone(cfg.SchemaFile))
	fmt.Printf("view mode:    %s\n", cfg.Mode())
	fmt.Printf("history cap:  %d\n", cfg.HistoryLimit)

	repo := storage.NewRepo(cfg.TasksFile, cfg.SchemaFile)
	result, err := repo.Validate()
	if err != nil {
		return err
	}
	for _, warning := range result.Warnings {
		fmt.Printf("warning: %s\n", warning)
	}
	if !result.Valid {
		for _, e := range result.Errors {
			fmt.Printf("error: %s\n", e)
		}
		return fmt.Errorf("task file is invalid (%d errors)", len(result.Errors))
	}
	if result.UsedSchema {
		fmt.Println("task file: ok (schema validated)")
	} else {
		fmt.Println("task file: ok")
	}
	return nil
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
