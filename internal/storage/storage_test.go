package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/planline/planline/internal/schedule"
	"github.com/planline/planline/internal/task"
)

func datePtr(y int, m time.Month, d int) *task.Date {
	dd := task.NewDate(y, m, d)
	return &dd
}

func writeTaskFile(t *testing.T, tasks []task.Task) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "planline.json")
	f := &task.File{SchemaVersion: 1, Tasks: tasks}
	if err := f.Save(path); err != nil {
		t.Fatal(err)
	}
	return path
}

func seedTasks() []task.Task {
	return []task.Task{
		{ID: "T1", Title: "design", Status: task.StatusActive, Priority: 2, StartDate: datePtr(2024, time.March, 4), DueDate: datePtr(2024, time.March, 8)},
		{ID: "T2", Title: "implement", Status: task.StatusPlanned, Priority: 3},
	}
}

func TestRepoFetchTasks(t *testing.T) {
	repo := NewRepo(writeTaskFile(t, seedTasks()), "")
	tasks, err := repo.FetchTasks(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(tasks) != 2 || tasks[0].ID != "T1" {
		t.Errorf("got %d tasks, first %q", len(tasks), tasks[0].ID)
	}
}

func TestRepoUpdateFields(t *testing.T) {
	ctx := context.Background()
	repo := NewRepo(writeTaskFile(t, seedTasks()), "")

	fields := task.MoveFields(task.NewDate(2024, time.March, 18), task.NewDate(2024, time.March, 22))
	if err := repo.UpdateFields(ctx, "T1", fields); err != nil {
		t.Fatalf("update: %v", err)
	}
	// Idempotent: a retry of the same update succeeds and changes nothing.
	if err := repo.UpdateFields(ctx, "T1", fields); err != nil {
		t.Fatalf("repeat update: %v", err)
	}

	tasks, err := repo.FetchTasks(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if tasks[0].StartDate.String() != "2024-03-18" || tasks[0].DueDate.String() != "2024-03-22" {
		t.Errorf("dates not persisted: %s..%s", tasks[0].StartDate, tasks[0].DueDate)
	}
	if tasks[1].Title != "implement" {
		t.Error("other tasks must be untouched")
	}

	if err := repo.UpdateFields(ctx, "ghost", fields); err == nil {
		t.Error("updating an unknown id should fail")
	}
}

func TestRepoCreateDelete(t *testing.T) {
	ctx := context.Background()
	repo := NewRepo(writeTaskFile(t, seedTasks()), "")

	fresh := task.Task{ID: "T3", Title: "review", Status: task.StatusPlanned, Priority: 1}
	if err := repo.Create(ctx, fresh); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.Create(ctx, fresh); err == nil {
		t.Error("creating a duplicate id should fail")
	}

	if err := repo.Delete(ctx, "T3"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	// Idempotent: deleting an absent id is a no-op.
	if err := repo.Delete(ctx, "T3"); err != nil {
		t.Errorf("repeat delete: %v", err)
	}

	tasks, _ := repo.FetchTasks(ctx)
	if len(tasks) != 2 {
		t.Errorf("got %d tasks after delete, want 2", len(tasks))
	}
}

func TestRepoValidate(t *testing.T) {
	bad := seedTasks()
	bad[0].Priority = 9
	repo := NewRepo(writeTaskFile(t, bad), "")

	result, err := repo.Validate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Valid {
		t.Error("out-of-range priority should fail validation")
	}
}

func TestDiffTasks(t *testing.T) {
	prev := seedTasks()

	next := []task.Task{
		// T1 moved.
		{ID: "T1", Title: "design", Status: task.StatusActive, Priority: 2, StartDate: datePtr(2024, time.March, 11), DueDate: datePtr(2024, time.March, 15)},
		// T3 is new; T2 vanished.
		{ID: "T3", Title: "review", Status: task.StatusPlanned, Priority: 1},
	}

	events := diffTasks(prev, next)
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3: %+v", len(events), events)
	}
	if events[0].Type != schedule.EventUpdate || events[0].Task.ID != "T1" {
		t.Errorf("event 0 = %s %s, want update T1", events[0].Type, events[0].Task.ID)
	}
	if events[1].Type != schedule.EventInsert || events[1].Task.ID != "T3" {
		t.Errorf("event 1 = %s %s, want insert T3", events[1].Type, events[1].Task.ID)
	}
	if events[2].Type != schedule.EventDelete || events[2].Task.ID != "T2" {
		t.Errorf("event 2 = %s %s, want delete T2 (deletes come last)", events[2].Type, events[2].Task.ID)
	}
}

func TestDiffTasksNoChange(t *testing.T) {
	prev := seedTasks()
	next := seedTasks()
	// Timestamps differ but the surface does not care.
	now := time.Now()
	next[0].UpdatedAt = &now

	if events := diffTasks(prev, next); len(events) != 0 {
		t.Errorf("identical surface fields should produce no events, got %+v", events)
	}
}

func TestWatchEmitsDiff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	path := writeTaskFile(t, seedTasks())
	repo := NewRepo(path, "")

	events, err := repo.Watch(ctx, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}

	// External edit: rewrite the file with T1 moved.
	edited := seedTasks()
	edited[0].StartDate = datePtr(2024, time.March, 11)
	edited[0].DueDate = datePtr(2024, time.March, 15)
	f := &task.File{SchemaVersion: 1, Tasks: edited}
	if err := f.Save(path); err != nil {
		t.Fatal(err)
	}

	select {
	case ev := <-events:
		if ev.Type != schedule.EventUpdate || ev.Task.ID != "T1" {
			t.Errorf("got %s %s, want update T1", ev.Type, ev.Task.ID)
		}
		if ev.Task.StartDate.String() != "2024-03-11" {
			t.Errorf("event carries stale dates: %s", ev.Task.StartDate)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no change event within timeout")
	}

	cancel()
	select {
	case _, ok := <-events:
		if ok {
			// Drain anything already queued; the channel must close soon.
			for range events {
			}
		}
	case <-time.After(5 * time.Second):
		t.Fatal("channel did not close after cancel")
	}
}
