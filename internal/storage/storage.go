// Package storage provides the file-backed persistence collaborator: an
// idempotent update-by-id store over the task file, plus a change
// notification stream fed by a filesystem watcher.
package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/planline/planline/internal/schedule"
	"github.com/planline/planline/internal/task"
)

// Repo persists tasks in a JSON task file. All operations reload the file,
// mutate, and rewrite it, so concurrent external edits are picked up and
// updates stay idempotent.
type Repo struct {
	mu         sync.Mutex
	path       string
	schemaPath string
}

// NewRepo creates a repo over the task file at path. schemaPath may be
// empty; when set, fetches validate against the JSON Schema.
func NewRepo(path, schemaPath string) *Repo {
	return &Repo{path: path, schemaPath: schemaPath}
}

// Path returns the task file path.
func (r *Repo) Path() string {
	return r.path
}

// FetchTasks implements schedule.Persister.
func (r *Repo) FetchTasks(ctx context.Context) ([]task.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, err := r.load()
	if err != nil {
		return nil, err
	}
	return append([]task.Task(nil), f.Tasks...), nil
}

// UpdateFields implements schedule.Persister. Applying the same fields
// twice yields the same file, so retries are safe.
func (r *Repo) UpdateFields(ctx context.Context, id string, fields task.Fields) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, err := r.load()
	if err != nil {
		return err
	}
	if err := f.Update(id, fields); err != nil {
		return err
	}
	return f.Save(r.path)
}

// Create implements schedule.Persister.
func (r *Repo) Create(ctx context.Context, t task.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, err := r.load()
	if err != nil {
		return err
	}
	if f.Get(t.ID) != nil {
		return fmt.Errorf("task %q already exists", t.ID)
	}
	f.Tasks = append(f.Tasks, t)
	return f.Save(r.path)
}

// Delete implements schedule.Persister. Deleting an absent task is a no-op,
// keeping the operation idempotent.
func (r *Repo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, err := r.load()
	if err != nil {
		return err
	}
	for i := range f.Tasks {
		if f.Tasks[i].ID == id {
			f.Tasks = append(f.Tasks[:i], f.Tasks[i+1:]...)
			return f.Save(r.path)
		}
	}
	return nil
}

// Validate checks the task file, using the schema when available.
func (r *Repo) Validate() (*task.ValidationResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, err := r.load()
	if err != nil {
		return nil, err
	}
	return f.Validate(r.schemaPath), nil
}

func (r *Repo) load() (*task.File, error) {
	return task.Load(r.path)
}

// diffTasks computes the change events that transform prev into next:
// deletes for vanished ids, inserts for new ids, updates for changed rows.
// Event order follows the next file's task order, deletes last.
func diffTasks(prev, next []task.Task) []schedule.ChangeEvent {
	prevByID := make(map[string]*task.Task, len(prev))
	for i := range prev {
		prevByID[prev[i].ID] = &prev[i]
	}

	var events []schedule.ChangeEvent
	seen := make(map[string]bool, len(next))
	for i := range next {
		t := next[i]
		seen[t.ID] = true
		old, ok := prevByID[t.ID]
		if !ok {
			events = append(events, schedule.ChangeEvent{Type: schedule.EventInsert, Task: t})
			continue
		}
		if !sameTask(old, &t) {
			events = append(events, schedule.ChangeEvent{Type: schedule.EventUpdate, Task: t})
		}
	}
	for i := range prev {
		if !seen[prev[i].ID] {
			events = append(events, schedule.ChangeEvent{Type: schedule.EventDelete, Task: prev[i]})
		}
	}
	return events
}

// sameTask compares the fields the scheduling surface cares about.
func sameTask(a, b *task.Task) bool {
	return a.Title == b.Title &&
		a.Description == b.Description &&
		a.Category == b.Category &&
		a.Status == b.Status &&
		a.Priority == b.Priority &&
		a.Progress == b.Progress &&
		a.EstimatedHours == b.EstimatedHours &&
		a.ActualHours == b.ActualHours &&
		sameDate(a.StartDate, b.StartDate) &&
		sameDate(a.DueDate, b.DueDate)
}

func sameDate(a, b *task.Date) bool {
	switch {
	case a == nil && b == nil:
		return true
	case a == nil || b == nil:
		return false
	}
	return a.Equal(b.Time)
}
