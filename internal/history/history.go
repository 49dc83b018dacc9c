// Package history records committed changes as reversible snapshot pairs
// and replays them to implement undo/redo.
//
// The log is linear with branch discard: recording after one or more undos
// truncates the redoable tail. Memory is bounded by a fixed entry cap; the
// oldest entries fall off and the cursor is re-based. Exactly one mutation
// (record, undo, or redo) may be in flight at a time.
package history

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/planline/planline/internal/notify"
	"github.com/planline/planline/internal/task"
)

// DefaultLimit caps the number of retained entries.
const DefaultLimit = 50

// ActionType classifies a recorded action.
type ActionType string

const (
	ActionMove   ActionType = "move"
	ActionUpdate ActionType = "update"
	ActionCreate ActionType = "create"
	ActionDelete ActionType = "delete"
	ActionBulk   ActionType = "bulk"
)

// Entry is one recorded action. Immutable once recorded.
type Entry struct {
	ID          string
	Type        ActionType
	Timestamp   time.Time
	Description string
	TaskID      string
	TaskIDs     []string
	Before      task.Snapshot
	After       task.Snapshot
	Befores     map[string]task.Snapshot
	Afters      map[string]task.Snapshot
	// Record carries the full task for create/delete reversal, where a
	// field snapshot is not enough to rebuild the row.
	Record *task.Task
}

// Replayer pushes snapshots back through the same update path used for
// normal edits. Implemented by the schedule store.
type Replayer interface {
	Replay(ctx context.Context, id string, snap task.Snapshot) error
	ReplayCreate(ctx context.Context, t task.Task) error
	ReplayDelete(ctx context.Context, id string) error
}

// Log errors.
var (
	ErrNothingToUndo = errors.New("nothing to undo")
	ErrNothingToRedo = errors.New("nothing to redo")
	ErrBusy          = errors.New("another history action is in progress")
)

// Log is the bounded undo/redo action log.
type Log struct {
	mu         sync.Mutex
	replayer   Replayer
	notifier   notify.Notifier
	limit      int
	entries    []Entry
	cursor     int
	inProgress bool
}

// New creates a log replaying through r. limit <= 0 uses DefaultLimit.
func New(r Replayer, n notify.Notifier, limit int) *Log {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if n == nil {
		n = notify.Func(func(notify.Notification) {})
	}
	return &Log{
		replayer: r,
		notifier: n,
		limit:    limit,
		cursor:   -1,
	}
}

// CanUndo reports whether an entry is available to undo.
func (l *Log) CanUndo() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cursor >= 0
}

// CanRedo reports whether an undone entry is available to redo.
func (l *Log) CanRedo() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cursor < len(l.entries)-1
}

// Len returns the number of retained entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// UndoDescription returns the description of the entry Undo would reverse.
func (l *Log) UndoDescription() (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cursor < 0 {
		return "", false
	}
	return l.entries[l.cursor].Description, true
}

// RedoDescription returns the description of the entry Redo would re-apply.
func (l *Log) RedoDescription() (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cursor >= len(l.entries)-1 {
		return "", false
	}
	return l.entries[l.cursor+1].Description, true
}

// RecordMove implements schedule.Journal.
func (l *Log) RecordMove(t *task.Task, before, after task.Snapshot) {
	l.record(Entry{
		Type:        ActionMove,
		Description: fmt.Sprintf("Move %q", t.Title),
		TaskID:      t.ID,
		Before:      before,
		After:       after,
	})
}

// RecordUpdate implements schedule.Journal.
func (l *Log) RecordUpdate(t *task.Task, before, after task.Snapshot) {
	l.record(Entry{
		Type:        ActionUpdate,
		Description: fmt.Sprintf("Update %q", t.Title),
		TaskID:      t.ID,
		Before:      before,
		After:       after,
	})
}

// RecordBulk implements schedule.Journal.
func (l *Log) RecordBulk(description string, ids []string, before, after map[string]task.Snapshot) {
	if description == "" {
		description = fmt.Sprintf("Update %d tasks", len(ids))
	}
	l.record(Entry{
		Type:        ActionBulk,
		Description: description,
		TaskIDs:     append([]string(nil), ids...),
		Befores:     before,
		Afters:      after,
	})
}

// RecordCreate records a committed task creation.
func (l *Log) RecordCreate(t *task.Task) {
	l.record(Entry{
		Type:        ActionCreate,
		Description: fmt.Sprintf("Create %q", t.Title),
		TaskID:      t.ID,
		Record:      t.Clone(),
	})
}

// RecordDelete records a committed task deletion.
func (l *Log) RecordDelete(t *task.Task) {
	l.record(Entry{
		Type:        ActionDelete,
		Description: fmt.Sprintf("Delete %q", t.Title),
		TaskID:      t.ID,
		Record:      t.Clone(),
	})
}

// record appends an entry, discarding the redo branch and enforcing the
// cap. It is a no-op while an undo/redo is replaying, so a replay is never
// recorded as a new undoable action.
func (l *Log) record(e Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inProgress {
		return
	}

	e.ID = uuid.NewString()
	e.Timestamp = time.Now().UTC()

	// Recording after an undo discards the redoable tail.
	l.entries = append(l.entries[:l.cursor+1], e)
	if len(l.entries) > l.limit {
		drop := len(l.entries) - l.limit
		l.entries = append([]Entry(nil), l.entries[drop:]...)
	}
	l.cursor = len(l.entries) - 1
}

// Undo reverses the entry at the cursor. Failure leaves the cursor exactly
// where it was; the action stays available to retry.
func (l *Log) Undo(ctx context.Context) error {
	entry, err := l.begin(false)
	if err != nil {
		return err
	}
	defer l.end()

	if err := l.apply(ctx, entry, true); err != nil {
		l.notifier.Notify(notify.Notification{
			Title:       fmt.Sprintf("Undo failed: %s", entry.Description),
			Description: err.Error(),
			Variant:     notify.Error,
		})
		return err
	}

	l.mu.Lock()
	l.cursor--
	l.mu.Unlock()
	l.notifier.Notify(notify.Notification{
		Title:   fmt.Sprintf("Undid: %s", entry.Description),
		Variant: notify.Info,
	})
	return nil
}

// Redo re-applies the entry after the cursor.
func (l *Log) Redo(ctx context.Context) error {
	entry, err := l.begin(true)
	if err != nil {
		return err
	}
	defer l.end()

	if err := l.apply(ctx, entry, false); err != nil {
		l.notifier.Notify(notify.Notification{
			Title:       fmt.Sprintf("Redo failed: %s", entry.Description),
			Description: err.Error(),
			Variant:     notify.Error,
		})
		return err
	}

	l.mu.Lock()
	l.cursor++
	l.mu.Unlock()
	l.notifier.Notify(notify.Notification{
		Title:   fmt.Sprintf("Redid: %s", entry.Description),
		Variant: notify.Info,
	})
	return nil
}

// begin claims the in-progress guard and picks the entry to replay.
func (l *Log) begin(redo bool) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inProgress {
		return Entry{}, ErrBusy
	}
	if redo {
		if l.cursor >= len(l.entries)-1 {
			return Entry{}, ErrNothingToRedo
		}
		l.inProgress = true
		return l.entries[l.cursor+1], nil
	}
	if l.cursor < 0 {
		return Entry{}, ErrNothingToUndo
	}
	l.inProgress = true
	return l.entries[l.cursor], nil
}

func (l *Log) end() {
	l.mu.Lock()
	l.inProgress = false
	l.mu.Unlock()
}

// apply replays one side of an entry through the store's normal update
// path: a single update call per task, no special undo primitive.
func (l *Log) apply(ctx context.Context, e Entry, reverse bool) error {
	switch e.Type {
	case ActionBulk:
		snaps := e.Afters
		if reverse {
			snaps = e.Befores
		}
		var errs []error
		for _, id := range e.TaskIDs {
			snap, ok := snaps[id]
			if !ok {
				continue
			}
			if err := l.replayer.Replay(ctx, id, snap); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	case ActionCreate:
		if reverse {
			return l.replayer.ReplayDelete(ctx, e.TaskID)
		}
		if e.Record == nil {
			return fmt.Errorf("create entry %s has no task record", e.ID)
		}
		return l.replayer.ReplayCreate(ctx, *e.Record)
	case ActionDelete:
		if reverse {
			if e.Record == nil {
				return fmt.Errorf("delete entry %s has no task record", e.ID)
			}
			return l.replayer.ReplayCreate(ctx, *e.Record)
		}
		return l.replayer.ReplayDelete(ctx, e.TaskID)
	default:
		snap := e.After
		if reverse {
			snap = e.Before
		}
		return l.replayer.Replay(ctx, e.TaskID, snap)
	}
}
