// Package timeline coordinates the scheduling surfaces: one controller
// owns the task store, the drag session, the undo history, and the
// navigator, so drag state is an explicit value rather than ambient
// package-level state. Multiple timelines can coexist, each with its own
// controller.
package timeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/planline/planline/internal/drag"
	"github.com/planline/planline/internal/history"
	"github.com/planline/planline/internal/navigate"
	"github.com/planline/planline/internal/notify"
	"github.com/planline/planline/internal/schedule"
	"github.com/planline/planline/internal/task"
	"github.com/planline/planline/internal/timegrid"
)

// Controller errors.
var (
	ErrDragActive = errors.New("another drag is already active")
	ErrNoDrag     = errors.New("no active drag")
	ErrTaskSaving = errors.New("task has a save in flight")
)

// Options configures a controller.
type Options struct {
	Mode          timegrid.ViewMode
	ViewportWidth int
	HistoryLimit  int
	Conflict      drag.ConflictFunc
	Rules         []drag.Rule
	Notifier      notify.Notifier
	Now           func() time.Time
}

// Controller wires the scheduling core together for one timeline surface.
type Controller struct {
	store   *schedule.Store
	log     *history.Log
	nav     *navigate.Navigator
	engine  *drag.Engine
	session *drag.Session
	now     func() time.Time
}

// New builds a controller over the given persister. Call Refresh (after
// loading the store) to derive the initial bounds.
func New(p schedule.Persister, opts Options) *Controller {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Mode == "" {
		opts.Mode = timegrid.ModeWeek
	}
	store := schedule.New(p, opts.Notifier)
	log := history.New(store, opts.Notifier, opts.HistoryLimit)
	store.SetJournal(log)

	bounds := timegrid.ComputeBounds(nil, opts.Mode, opts.Now())
	nav := navigate.New(opts.Mode, bounds, opts.ViewportWidth)
	nav.Now = opts.Now

	return &Controller{
		store: store,
		log:   log,
		nav:   nav,
		engine: &drag.Engine{
			Mode:     opts.Mode,
			Bounds:   bounds,
			Conflict: opts.Conflict,
			Rules:    opts.Rules,
			Now:      opts.Now,
		},
		now: opts.Now,
	}
}

// Store exposes the task store.
func (c *Controller) Store() *schedule.Store {
	return c.store
}

// History exposes the undo/redo log.
func (c *Controller) History() *history.Log {
	return c.log
}

// Nav exposes the navigator owning bounds and scroll state.
func (c *Controller) Nav() *navigate.Navigator {
	return c.nav
}

// Mode returns the active view mode.
func (c *Controller) Mode() timegrid.ViewMode {
	return c.nav.Mode
}

// Bounds returns the current visible bounds.
func (c *Controller) Bounds() timegrid.Bounds {
	return c.nav.Bounds
}

// Load fetches tasks from the persister and derives bounds from them.
func (c *Controller) Load(ctx context.Context) error {
	if err := c.store.Load(ctx); err != nil {
		return err
	}
	c.Refresh()
	return nil
}

// Refresh re-derives bounds from the current task set and view mode, and
// re-arms the drag engine with them. Called after every committed change.
func (c *Controller) Refresh() {
	c.nav.Rebound(c.store.Tasks())
	c.engine.Mode = c.nav.Mode
	c.engine.Bounds = c.nav.Bounds
}

// SetViewMode switches granularity.
func (c *Controller) SetViewMode(mode timegrid.ViewMode) {
	c.nav.SetViewMode(mode, c.store.Tasks())
	c.engine.Mode = mode
	c.engine.Bounds = c.nav.Bounds
}

// Dragging reports whether a drag session is active.
func (c *Controller) Dragging() bool {
	return c.session != nil && c.session.Phase() == drag.Dragging
}

// Session returns the active drag session, or nil.
func (c *Controller) Session() *drag.Session {
	return c.session
}

// StartDrag begins a drag for the given task. It refuses while another
// drag is active or while the task has an optimistic write in flight.
func (c *Controller) StartDrag(id string) error {
	if c.Dragging() {
		return ErrDragActive
	}
	if c.store.Saving(id) {
		return ErrTaskSaving
	}
	t, ok := c.store.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", schedule.ErrUnknownTask, id)
	}
	others := c.othersFor(id)
	sess, err := c.engine.Begin(t, others)
	if err != nil {
		return err
	}
	c.session = sess
	return nil
}

// Preview validates a candidate drop date for the active drag.
func (c *Controller) Preview(candidate task.Date) (drag.Report, error) {
	if !c.Dragging() {
		return drag.Report{}, ErrNoDrag
	}
	return c.session.Preview(candidate), nil
}

// Drop commits the active drag through the optimistic protocol, then
// re-derives bounds from the updated task set.
func (c *Controller) Drop(ctx context.Context) error {
	if c.session == nil {
		return ErrNoDrag
	}
	sess := c.session
	c.session = nil
	err := c.store.Commit(ctx, sess)
	c.Refresh()
	return err
}

// TakeSession detaches and returns the active session, or nil. Callers
// that commit asynchronously (the TUI) take the session on the event
// thread and run the commit elsewhere, then call Refresh themselves.
func (c *Controller) TakeSession() *drag.Session {
	sess := c.session
	c.session = nil
	return sess
}

// CancelDrag clears the active drag with no side effects.
func (c *Controller) CancelDrag() {
	if c.session != nil {
		c.session.Cancel()
		c.session = nil
	}
}

// Undo reverses the most recent committed change.
func (c *Controller) Undo(ctx context.Context) error {
	err := c.log.Undo(ctx)
	c.Refresh()
	return err
}

// Redo re-applies the most recently undone change.
func (c *Controller) Redo(ctx context.Context) error {
	err := c.log.Redo(ctx)
	c.Refresh()
	return err
}

// Shift moves every given task by the same day offset as one bulk commit.
func (c *Controller) Shift(ctx context.Context, ids []string, days int) error {
	var targets []task.Task
	for _, id := range ids {
		if t, ok := c.store.Get(id); ok {
			targets = append(targets, *t)
		}
	}
	changes := schedule.ShiftChanges(targets, days)
	if len(changes) == 0 {
		return fmt.Errorf("no dated tasks to shift")
	}
	desc := fmt.Sprintf("Shift %d tasks by %+d days", len(changes), days)
	err := c.store.CommitBulk(ctx, desc, changes)
	c.Refresh()
	return err
}

// ApplyRemote feeds one authoritative change event into the store and
// refreshes derived state.
func (c *Controller) ApplyRemote(ev schedule.ChangeEvent) {
	c.store.ApplyRemote(ev)
	c.Refresh()
}

// othersFor returns every task except id, for conflict checks.
func (c *Controller) othersFor(id string) []task.Task {
	all := c.store.Tasks()
	others := all[:0]
	for _, t := range all {
		if t.ID != id {
			others = append(others, t)
		}
	}
	return others
}
