// Package navigate turns user intent ("show today", "fit everything",
// "pan") into timeline bounds and a scroll position.
package navigate

import (
	"time"

	"github.com/planline/planline/internal/task"
	"github.com/planline/planline/internal/timegrid"
)

// panFraction is the share of the viewport width moved per pan step.
const panFraction = 0.75

// todayPadDays pads the expanded bounds on both sides when today falls
// outside the current window.
const todayPadDays = 14

// Navigator owns the visible date bounds and scroll position for one
// timeline surface. All date/pixel math delegates to timegrid.
type Navigator struct {
	Mode   timegrid.ViewMode
	Bounds timegrid.Bounds

	// ScrollX is the current horizontal scroll offset in layout units.
	ScrollX int
	// ViewportWidth is the visible width in layout units.
	ViewportWidth int

	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

// New creates a navigator over the given bounds.
func New(mode timegrid.ViewMode, bounds timegrid.Bounds, viewportWidth int) *Navigator {
	return &Navigator{
		Mode:          mode,
		Bounds:        bounds,
		ViewportWidth: viewportWidth,
		Now:           time.Now,
	}
}

func (n *Navigator) now() time.Time {
	if n.Now != nil {
		return n.Now()
	}
	return time.Now()
}

// scrollableWidth is the maximum scroll offset.
func (n *Navigator) scrollableWidth() int {
	w := n.Bounds.TotalWidth - n.ViewportWidth
	if w < 0 {
		return 0
	}
	return w
}

func (n *Navigator) clampScroll(x int) int {
	if x < 0 {
		return 0
	}
	if limit := n.scrollableWidth(); x > limit {
		return limit
	}
	return x
}

// ScrollToToday centers the viewport on today's column, expanding the
// bounds first if today falls outside them.
func (n *Navigator) ScrollToToday() {
	today := task.DateOf(n.now())
	if !n.Bounds.Contains(today) {
		start, end := n.Bounds.Start, n.Bounds.End
		if padded := today.AddDays(-todayPadDays); padded.Before(start.Time) {
			start = padded
		}
		if padded := today.AddDays(todayPadDays); padded.After(end.Time) {
			end = padded
		}
		n.Bounds = timegrid.BoundsFor(start, end, n.Mode)
	}

	idx, ok := timegrid.TodayIndex(n.Bounds, n.Mode, n.now())
	if !ok {
		return
	}
	width := n.Mode.ColumnWidth()
	center := idx*width + width/2
	n.ScrollX = n.clampScroll(center - n.ViewportWidth/2)
}

// FitToTasks recomputes the bounds from the given (already filtered) task
// set and scrolls to the start.
func (n *Navigator) FitToTasks(tasks []task.Task) {
	n.Bounds = timegrid.ComputeBounds(tasks, n.Mode, n.now())
	n.ScrollX = 0
}

// Rebound recomputes the bounds from the task set while keeping the scroll
// position, clamped to the new scrollable width.
func (n *Navigator) Rebound(tasks []task.Task) {
	n.Bounds = timegrid.ComputeBounds(tasks, n.Mode, n.now())
	n.ScrollX = n.clampScroll(n.ScrollX)
}

// PanLeft scrolls left by 75% of the viewport width. Bounds are unchanged.
func (n *Navigator) PanLeft() {
	n.ScrollX = n.clampScroll(n.ScrollX - n.panStep())
}

// PanRight scrolls right by 75% of the viewport width. Bounds are unchanged.
func (n *Navigator) PanRight() {
	n.ScrollX = n.clampScroll(n.ScrollX + n.panStep())
}

func (n *Navigator) panStep() int {
	return int(float64(n.ViewportWidth) * panFraction)
}

// SetViewMode switches granularity and recomputes bounds from the task set,
// preserving no scroll position: mode switches land at the start.
func (n *Navigator) SetViewMode(mode timegrid.ViewMode, tasks []task.Task) {
	n.Mode = mode
	n.FitToTasks(tasks)
}
