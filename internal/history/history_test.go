package history

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planline/planline/internal/notify"
	"github.com/planline/planline/internal/task"
)

// fakeReplayer tracks replay calls and applies snapshots to a flat task map.
type fakeReplayer struct {
	mu      sync.Mutex
	state   map[string]task.Snapshot
	tasks   map[string]task.Task
	failFor map[string]error
	calls   []string
}

func newFakeReplayer() *fakeReplayer {
	return &fakeReplayer{
		state:   make(map[string]task.Snapshot),
		tasks:   make(map[string]task.Task),
		failFor: make(map[string]error),
	}
}

func (r *fakeReplayer) Replay(ctx context.Context, id string, snap task.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failFor[id]; err != nil {
		return err
	}
	r.state[id] = snap
	r.calls = append(r.calls, "replay:"+id)
	return nil
}

func (r *fakeReplayer) ReplayCreate(ctx context.Context, t task.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failFor[t.ID]; err != nil {
		return err
	}
	r.tasks[t.ID] = t
	r.calls = append(r.calls, "create:"+t.ID)
	return nil
}

func (r *fakeReplayer) ReplayDelete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failFor[id]; err != nil {
		return err
	}
	delete(r.tasks, id)
	r.calls = append(r.calls, "delete:"+id)
	return nil
}

func snapAt(y int, m time.Month, d int) task.Snapshot {
	start := task.NewDate(y, m, d)
	due := start.AddDays(4)
	return task.Snapshot{StartDate: &start, DueDate: &due, Status: task.StatusActive, Priority: 2}
}

func moveTask(id, title string) *task.Task {
	return &task.Task{ID: id, Title: title, Status: task.StatusActive, Priority: 2}
}

func TestEmptyLog(t *testing.T) {
	l := New(newFakeReplayer(), nil, 0)
	assert.False(t, l.CanUndo())
	assert.False(t, l.CanRedo())
	require.ErrorIs(t, l.Undo(context.Background()), ErrNothingToUndo)
	require.ErrorIs(t, l.Redo(context.Background()), ErrNothingToRedo)
	_, ok := l.UndoDescription()
	assert.False(t, ok)
}

func TestUndoRedoRoundTrip(t *testing.T) {
	r := newFakeReplayer()
	rec := &notify.Recorder{}
	l := New(r, rec, 0)
	ctx := context.Background()

	// Three recorded moves of the same task.
	for i := 0; i < 3; i++ {
		l.RecordMove(moveTask("T1", "design"), snapAt(2024, time.March, 1+7*i), snapAt(2024, time.March, 8+7*i))
	}
	require.Equal(t, 3, l.Len())
	assert.True(t, l.CanUndo())
	assert.False(t, l.CanRedo())

	// Undo all three; each undo replays the entry's before-snapshot.
	for i := 2; i >= 0; i-- {
		require.NoError(t, l.Undo(ctx))
		want := snapAt(2024, time.March, 1+7*i)
		assert.Equal(t, want.StartDate.String(), r.state["T1"].StartDate.String())
	}
	assert.False(t, l.CanUndo())
	assert.True(t, l.CanRedo())

	// Redo all three; each redo replays the after-snapshot.
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Redo(ctx))
		want := snapAt(2024, time.March, 8+7*i)
		assert.Equal(t, want.StartDate.String(), r.state["T1"].StartDate.String())
	}
	assert.True(t, l.CanUndo())
	assert.False(t, l.CanRedo())

	for _, n := range rec.All() {
		assert.Equal(t, notify.Info, n.Variant)
	}
	assert.Len(t, rec.All(), 6)
}

func TestDescriptions(t *testing.T) {
	l := New(newFakeReplayer(), nil, 0)
	l.RecordMove(moveTask("T1", "design"), snapAt(2024, time.March, 1), snapAt(2024, time.March, 8))
	l.RecordUpdate(moveTask("T2", "review"), snapAt(2024, time.April, 1), snapAt(2024, time.April, 8))

	desc, ok := l.UndoDescription()
	require.True(t, ok)
	assert.Equal(t, `Update "review"`, desc)

	require.NoError(t, l.Undo(context.Background()))
	desc, ok = l.UndoDescription()
	require.True(t, ok)
	assert.Equal(t, `Move "design"`, desc)
	desc, ok = l.RedoDescription()
	require.True(t, ok)
	assert.Equal(t, `Update "review"`, desc)
}

func TestRecordAfterUndoDiscardsBranch(t *testing.T) {
	l := New(newFakeReplayer(), nil, 0)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		l.RecordMove(moveTask("T1", fmt.Sprintf("step %d", i)), snapAt(2024, time.March, 1+i), snapAt(2024, time.March, 2+i))
	}
	require.NoError(t, l.Undo(ctx))
	require.NoError(t, l.Undo(ctx))
	require.True(t, l.CanRedo())

	l.RecordMove(moveTask("T1", "new branch"), snapAt(2024, time.June, 1), snapAt(2024, time.June, 8))

	assert.Equal(t, 2, l.Len(), "redoable tail is discarded")
	assert.False(t, l.CanRedo())
	desc, _ := l.UndoDescription()
	assert.Equal(t, `Move "new branch"`, desc)
}

func TestCapEviction(t *testing.T) {
	r := newFakeReplayer()
	l := New(r, nil, 5)
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		l.RecordMove(moveTask("T1", fmt.Sprintf("move %d", i)), snapAt(2024, time.March, 1+i), snapAt(2024, time.March, 2+i))
	}
	assert.Equal(t, 5, l.Len())

	// Only the newest five remain undoable.
	undone := 0
	for l.CanUndo() {
		require.NoError(t, l.Undo(ctx))
		undone++
	}
	assert.Equal(t, 5, undone)
	// The oldest retained entry is "move 3": its before-snapshot is the
	// final state after undoing everything.
	assert.Equal(t, "2024-03-04", r.state["T1"].StartDate.String())
}

func TestUndoFailureLeavesCursor(t *testing.T) {
	r := newFakeReplayer()
	rec := &notify.Recorder{}
	l := New(r, rec, 0)
	ctx := context.Background()

	l.RecordMove(moveTask("T1", "design"), snapAt(2024, time.March, 1), snapAt(2024, time.March, 8))
	r.failFor["T1"] = errors.New("persist failed")

	require.Error(t, l.Undo(ctx))
	assert.True(t, l.CanUndo(), "failed undo stays available to retry")
	assert.False(t, l.CanRedo())

	ns := rec.All()
	require.Len(t, ns, 1)
	assert.Equal(t, notify.Error, ns[0].Variant)

	// Clearing the failure makes the retry succeed.
	delete(r.failFor, "T1")
	require.NoError(t, l.Undo(ctx))
	assert.False(t, l.CanUndo())
}

func TestRecordDuringReplayIgnored(t *testing.T) {
	var l *Log
	r := newFakeReplayer()
	// A replayer that records into the log mid-replay, as a store wired to
	// the same journal would if replays were not guarded.
	reentrant := &reentrantReplayer{inner: r, onReplay: func() {
		l.RecordMove(moveTask("T1", "echo"), snapAt(2024, time.July, 1), snapAt(2024, time.July, 8))
	}}
	l = New(reentrant, nil, 0)

	l.RecordMove(moveTask("T1", "design"), snapAt(2024, time.March, 1), snapAt(2024, time.March, 8))
	require.NoError(t, l.Undo(context.Background()))

	assert.Equal(t, 1, l.Len(), "replay side effects must not append entries")
	assert.True(t, l.CanRedo())
}

type reentrantReplayer struct {
	inner    *fakeReplayer
	onReplay func()
}

func (r *reentrantReplayer) Replay(ctx context.Context, id string, snap task.Snapshot) error {
	r.onReplay()
	return r.inner.Replay(ctx, id, snap)
}

func (r *reentrantReplayer) ReplayCreate(ctx context.Context, t task.Task) error {
	return r.inner.ReplayCreate(ctx, t)
}

func (r *reentrantReplayer) ReplayDelete(ctx context.Context, id string) error {
	return r.inner.ReplayDelete(ctx, id)
}

func TestBulkUndoRedo(t *testing.T) {
	r := newFakeReplayer()
	l := New(r, nil, 0)
	ctx := context.Background()

	ids := []string{"T1", "T2"}
	befores := map[string]task.Snapshot{"T1": snapAt(2024, time.March, 1), "T2": snapAt(2024, time.March, 10)}
	afters := map[string]task.Snapshot{"T1": snapAt(2024, time.March, 8), "T2": snapAt(2024, time.March, 17)}
	l.RecordBulk("Shift 2 tasks by +7 days", ids, befores, afters)

	require.NoError(t, l.Undo(ctx))
	assert.Equal(t, "2024-03-01", r.state["T1"].StartDate.String())
	assert.Equal(t, "2024-03-10", r.state["T2"].StartDate.String())

	require.NoError(t, l.Redo(ctx))
	assert.Equal(t, "2024-03-08", r.state["T1"].StartDate.String())
	assert.Equal(t, "2024-03-17", r.state["T2"].StartDate.String())
}

func TestBulkUndoAggregatesFailures(t *testing.T) {
	r := newFakeReplayer()
	l := New(r, nil, 0)
	r.failFor["T2"] = errors.New("gone")

	l.RecordBulk("Shift 3 tasks", []string{"T1", "T2", "T3"},
		map[string]task.Snapshot{"T1": snapAt(2024, time.March, 1), "T2": snapAt(2024, time.March, 2), "T3": snapAt(2024, time.March, 3)},
		map[string]task.Snapshot{"T1": snapAt(2024, time.April, 1), "T2": snapAt(2024, time.April, 2), "T3": snapAt(2024, time.April, 3)})

	err := l.Undo(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gone")
	// Tasks that could be replayed were; the entry stays undoable.
	assert.Equal(t, "2024-03-01", r.state["T1"].StartDate.String())
	assert.Equal(t, "2024-03-03", r.state["T3"].StartDate.String())
	assert.True(t, l.CanUndo())
}

func TestCreateDeleteReversal(t *testing.T) {
	r := newFakeReplayer()
	l := New(r, nil, 0)
	ctx := context.Background()

	created := moveTask("T9", "deploy")
	l.RecordCreate(created)
	r.tasks["T9"] = *created

	require.NoError(t, l.Undo(ctx))
	_, ok := r.tasks["T9"]
	assert.False(t, ok, "undoing a create deletes the task")

	require.NoError(t, l.Redo(ctx))
	_, ok = r.tasks["T9"]
	assert.True(t, ok, "redoing a create restores the task")

	l.RecordDelete(created)
	delete(r.tasks, "T9")
	require.NoError(t, l.Undo(ctx))
	_, ok = r.tasks["T9"]
	assert.True(t, ok, "undoing a delete re-creates the task")
}

func TestEntryMetadata(t *testing.T) {
	l := New(newFakeReplayer(), nil, 0)
	l.RecordMove(moveTask("T1", "design"), snapAt(2024, time.March, 1), snapAt(2024, time.March, 8))

	l.mu.Lock()
	e := l.entries[0]
	l.mu.Unlock()

	assert.NotEmpty(t, e.ID)
	assert.False(t, e.Timestamp.IsZero())
	assert.Equal(t, ActionMove, e.Type)
	assert.Equal(t, "T1", e.TaskID)
}
