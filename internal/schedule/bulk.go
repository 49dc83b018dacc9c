package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/planline/planline/internal/notify"
	"github.com/planline/planline/internal/task"
)

// bulkMaxWorkers bounds the concurrent per-task persistence calls issued by
// a bulk commit.
const bulkMaxWorkers = 4

// Change is one per-task mutation inside a bulk commit.
type Change struct {
	TaskID string
	Fields task.Fields
}

// ShiftChanges builds the bulk change set that moves every given task by the
// same day offset. Tasks without dates are skipped: there is nothing to
// shift.
func ShiftChanges(tasks []task.Task, days int) []Change {
	var changes []Change
	for i := range tasks {
		t := &tasks[i]
		if !t.HasDates() {
			continue
		}
		changes = append(changes, Change{
			TaskID: t.ID,
			Fields: task.MoveFields(t.StartDate.AddDays(days), t.DueDate.AddDays(days)),
		})
	}
	return changes
}

// CommitBulk applies a set of per-task changes as one operation: all
// optimistic mutations first, then one persistence call per task issued
// concurrently with bounded workers. If any sub-call fails, every optimistic
// mutation is reverted and the operation reports aggregate failure; nothing
// is left silently half-applied in memory. A bulk history snapshot is
// recorded only on overall success.
func (s *Store) CommitBulk(ctx context.Context, description string, changes []Change) error {
	if len(changes) == 0 {
		return nil
	}

	befores := make(map[string]task.Snapshot, len(changes))
	ids := make([]string, 0, len(changes))
	applied := make([]Change, 0, len(changes))
	for _, c := range changes {
		before, err := s.beginWrite(c.TaskID, c.Fields)
		if err != nil {
			// Unwind the mutations already applied.
			for _, a := range applied {
				s.rollback(a.TaskID, befores[a.TaskID])
			}
			s.notifier.Notify(notify.Notification{
				Title:       fmt.Sprintf("Failed: %s", description),
				Description: err.Error(),
				Variant:     notify.Error,
			})
			return fmt.Errorf("bulk change %s: %w", c.TaskID, err)
		}
		befores[c.TaskID] = before
		ids = append(ids, c.TaskID)
		applied = append(applied, c)
	}

	errs := s.persistConcurrently(ctx, applied)
	if len(errs) > 0 {
		for _, c := range applied {
			s.rollback(c.TaskID, befores[c.TaskID])
		}
		err := errors.Join(errs...)
		s.notifier.Notify(notify.Notification{
			Title:       fmt.Sprintf("Failed: %s", description),
			Description: fmt.Sprintf("%d of %d updates failed", len(errs), len(applied)),
			Variant:     notify.Error,
		})
		return fmt.Errorf("bulk commit: %w", err)
	}

	afters := make(map[string]task.Snapshot, len(applied))
	for _, c := range applied {
		afters[c.TaskID] = s.resolve(c.TaskID)
	}
	if s.journal != nil {
		s.journal.RecordBulk(description, ids, befores, afters)
	}
	s.notifier.Notify(notify.Notification{
		Title:       description,
		Description: fmt.Sprintf("%d tasks updated", len(applied)),
		Variant:     notify.Success,
	})
	return nil
}

// persistConcurrently issues the per-task updates with a bounded worker
// semaphore and collects every failure.
func (s *Store) persistConcurrently(ctx context.Context, changes []Change) []error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	sem := make(chan struct{}, bulkMaxWorkers)
	for _, c := range changes {
		wg.Add(1)
		go func(c Change) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			if err := s.persister.UpdateFields(ctx, c.TaskID, c.Fields); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("task %s: %w", c.TaskID, err))
				mu.Unlock()
			}
		}(c)
	}
	wg.Wait()
	return errs
}

// Replay pushes a history snapshot back through the normal update path: one
// persistence call, then the local apply, exactly like a regular edit. It is
// not recorded; the history log guards against re-recording its own replays.
func (s *Store) Replay(ctx context.Context, id string, snap task.Snapshot) error {
	fields := snap.Fields()
	if err := s.persister.UpdateFields(ctx, id, fields); err != nil {
		return fmt.Errorf("replay update %s: %w", id, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[id]; ok {
		fields.Apply(t)
	}
	return nil
}

// ReplayCreate re-creates a deleted task (the reverse of a delete action).
func (s *Store) ReplayCreate(ctx context.Context, t task.Task) error {
	if err := s.persister.Create(ctx, t); err != nil {
		return fmt.Errorf("replay create %s: %w", t.ID, err)
	}
	s.insertLocal(t)
	return nil
}

// ReplayDelete removes a task (the reverse of a create action).
func (s *Store) ReplayDelete(ctx context.Context, id string) error {
	if err := s.persister.Delete(ctx, id); err != nil {
		return fmt.Errorf("replay delete %s: %w", id, err)
	}
	s.removeLocal(id)
	return nil
}
