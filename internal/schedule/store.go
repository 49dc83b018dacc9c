// Package schedule owns the in-memory task state and the optimistic
// update protocol against the authoritative store.
//
// Three actors mutate the task set: the optimistic writer (a committed
// drag), the change-notification receiver, and the history replayer. All
// three go through the same apply-update-by-id path so partial updates from
// different sources compose instead of clobbering each other. While an
// optimistic write for a task is in flight, same-task change notifications
// are dropped: the write's own success or failure path is authoritative.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/planline/planline/internal/drag"
	"github.com/planline/planline/internal/notify"
	"github.com/planline/planline/internal/task"
)

// Persister is the authoritative persistence collaborator. UpdateFields must
// be an idempotent partial update and must reject with a clean error rather
// than panicking.
type Persister interface {
	FetchTasks(ctx context.Context) ([]task.Task, error)
	UpdateFields(ctx context.Context, id string, fields task.Fields) error
	Create(ctx context.Context, t task.Task) error
	Delete(ctx context.Context, id string) error
}

// EventType classifies a change-notification event.
type EventType string

const (
	EventInsert EventType = "insert"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"
)

// ChangeEvent is one authoritative change delivered by the collaborator's
// notification stream.
type ChangeEvent struct {
	Type EventType
	Task task.Task
}

// Journal records committed transitions so they can be undone. Implemented
// by the history log; recording happens only after the commit path reports
// success.
type Journal interface {
	RecordMove(t *task.Task, before, after task.Snapshot)
	RecordUpdate(t *task.Task, before, after task.Snapshot)
	RecordBulk(description string, ids []string, before, after map[string]task.Snapshot)
}

// Store errors.
var (
	ErrRejected      = errors.New("drop rejected by validation")
	ErrWriteInFlight = errors.New("a save for this task is already in flight")
	ErrUnknownTask   = errors.New("unknown task id")
)

// Store holds the current task set, addressable by id, plus the per-id
// pending-write markers that implement optimistic precedence.
type Store struct {
	mu      sync.Mutex
	tasks   map[string]*task.Task
	order   []string
	pending map[string]task.Snapshot

	persister Persister
	notifier  notify.Notifier
	journal   Journal
}

// New creates a store backed by the given persister. The notifier receives
// success/failure messages for every commit; pass nil to silence them.
func New(p Persister, n notify.Notifier) *Store {
	if n == nil {
		n = notify.Func(func(notify.Notification) {})
	}
	return &Store{
		tasks:     make(map[string]*task.Task),
		pending:   make(map[string]task.Snapshot),
		persister: p,
		notifier:  n,
	}
}

// SetJournal wires the history log. Commits recorded before this is set are
// simply not undoable.
func (s *Store) SetJournal(j Journal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.journal = j
}

// Load replaces the task set from the authoritative store. Pending markers
// are cleared; nothing can be in flight across a reload.
func (s *Store) Load(ctx context.Context) error {
	tasks, err := s.persister.FetchTasks(ctx)
	if err != nil {
		return fmt.Errorf("fetch tasks: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = make(map[string]*task.Task, len(tasks))
	s.order = s.order[:0]
	s.pending = make(map[string]task.Snapshot)
	for i := range tasks {
		t := tasks[i]
		s.tasks[t.ID] = &t
		s.order = append(s.order, t.ID)
	}
	return nil
}

// Tasks returns a copy of the task set in stable order.
func (s *Store) Tasks() []task.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]task.Task, 0, len(s.order))
	for _, id := range s.order {
		if t, ok := s.tasks[id]; ok {
			out = append(out, *t.Clone())
		}
	}
	return out
}

// Get returns a copy of one task.
func (s *Store) Get(id string) (*task.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// Saving reports whether an optimistic write for id is still in flight. The
// UI uses this to refuse a new drag on a task that is mid-save.
func (s *Store) Saving(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[id]
	return ok
}

// Commit runs the optimistic commit protocol for a dropped drag session.
//
// An invalid drop is rejected before any persistence call; otherwise the
// relocation is applied to in-memory state first, then written through the
// persister. Success clears the pending marker and records the transition;
// failure reverts the optimistic mutation. Either way the session ends.
func (s *Store) Commit(ctx context.Context, sess *drag.Session) error {
	report, err := sess.Drop()
	if err != nil {
		return err
	}

	t := sess.Task()
	if report.Validity == drag.Invalid {
		sess.Cancel()
		reason := firstMessage(report.Messages)
		s.notifier.Notify(notify.Notification{
			Title:       fmt.Sprintf("Cannot move %q", t.Title),
			Description: reason,
			Variant:     notify.Error,
		})
		return fmt.Errorf("%w: %s", ErrRejected, reason)
	}

	fields := sess.Fields()
	before, err := s.beginWrite(t.ID, fields)
	if err != nil {
		sess.Cancel()
		s.notifier.Notify(notify.Notification{
			Title:       fmt.Sprintf("Cannot move %q", t.Title),
			Description: err.Error(),
			Variant:     notify.Warning,
		})
		return err
	}

	// Optimistic state is visible; now the authoritative write.
	if err := s.persister.UpdateFields(ctx, t.ID, fields); err != nil {
		s.rollback(t.ID, before)
		sess.Finish()
		s.notifier.Notify(notify.Notification{
			Title:       fmt.Sprintf("Failed to move %q", t.Title),
			Description: err.Error(),
			Variant:     notify.Error,
		})
		return fmt.Errorf("update task %s: %w", t.ID, err)
	}

	after := s.resolve(t.ID)
	if s.journal != nil {
		s.journal.RecordMove(t, before, after)
	}
	sess.Finish()
	s.notifier.Notify(notify.Notification{
		Title:       fmt.Sprintf("Moved %q", t.Title),
		Description: fmt.Sprintf("%s – %s", report.Start, report.Due),
		Variant:     notify.Success,
	})
	return nil
}

// Update commits a plain field edit (no drag) with the same optimistic
// protocol: apply, persist, record, or revert.
func (s *Store) Update(ctx context.Context, id string, fields task.Fields) error {
	t, ok := s.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, id)
	}
	before, err := s.beginWrite(id, fields)
	if err != nil {
		return err
	}
	if err := s.persister.UpdateFields(ctx, id, fields); err != nil {
		s.rollback(id, before)
		s.notifier.Notify(notify.Notification{
			Title:       fmt.Sprintf("Failed to update %q", t.Title),
			Description: err.Error(),
			Variant:     notify.Error,
		})
		return fmt.Errorf("update task %s: %w", id, err)
	}
	after := s.resolve(id)
	if s.journal != nil {
		s.journal.RecordUpdate(t, before, after)
	}
	s.notifier.Notify(notify.Notification{
		Title:   fmt.Sprintf("Updated %q", t.Title),
		Variant: notify.Success,
	})
	return nil
}

// beginWrite applies the optimistic mutation and marks the task pending.
// It fails if the task is unknown or a write is already in flight.
func (s *Store) beginWrite(id string, fields task.Fields) (task.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return task.Snapshot{}, fmt.Errorf("%w: %s", ErrUnknownTask, id)
	}
	if _, inFlight := s.pending[id]; inFlight {
		return task.Snapshot{}, ErrWriteInFlight
	}
	before := task.Capture(t)
	fields.Apply(t)
	s.pending[id] = before
	return before, nil
}

// rollback reverts an optimistic mutation to its pre-write snapshot.
func (s *Store) rollback(id string, before task.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[id]; ok {
		before.Fields().Apply(t)
	}
	delete(s.pending, id)
}

// resolve clears the pending marker and captures the post-write state. From
// here the authoritative notification stream is the source of truth again.
func (s *Store) resolve(id string) task.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, id)
	if t, ok := s.tasks[id]; ok {
		return task.Capture(t)
	}
	return task.Snapshot{}
}

// ApplyRemote applies one authoritative change notification. Events must be
// fed in arrival order. A same-id event is dropped while that task has an
// optimistic write in flight, so stale server state never clobbers pending
// user intent.
func (s *Store) ApplyRemote(ev ChangeEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := ev.Task.ID
	if id == "" {
		return
	}
	if _, inFlight := s.pending[id]; inFlight {
		return
	}

	switch ev.Type {
	case EventDelete:
		if _, ok := s.tasks[id]; ok {
			delete(s.tasks, id)
			s.removeFromOrder(id)
		}
	case EventInsert, EventUpdate:
		if existing, ok := s.tasks[id]; ok {
			remoteFields(&ev.Task).Apply(existing)
		} else {
			t := ev.Task
			s.tasks[id] = &t
			s.order = append(s.order, id)
		}
	}
}

// insertLocal adds a task to in-memory state (history replay of an undone
// delete). Goes through the same id-addressed path as everything else.
func (s *Store) insertLocal(t task.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[t.ID]; ok {
		remoteFields(&t).Apply(s.tasks[t.ID])
		return
	}
	c := t
	s.tasks[t.ID] = &c
	s.order = append(s.order, t.ID)
}

// removeLocal drops a task from in-memory state.
func (s *Store) removeLocal(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, id)
	s.removeFromOrder(id)
}

func (s *Store) removeFromOrder(id string) {
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}

// remoteFields converts a full remote task record into the partial update
// that applies it by id.
func remoteFields(t *task.Task) task.Fields {
	f := task.Capture(t).Fields()
	title := t.Title
	f.Title = &title
	return f
}

func firstMessage(messages []string) string {
	if len(messages) == 0 {
		return "the move is not allowed"
	}
	return messages[0]
}
