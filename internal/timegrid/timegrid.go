// Package timegrid converts between calendar dates and timeline coordinates.
//
// Everything here is pure and deterministic: the same inputs always produce
// the same bounds, columns, and positions, so callers can recompute on every
// render without caching. Functions never return errors; missing or
// unparseable input degrades to a documented default because this math runs
// unconditionally on every frame.
package timegrid

import (
	"fmt"
	"strings"
	"time"

	"github.com/planline/planline/internal/task"
)

// ViewMode is the active timeline granularity.
type ViewMode string

const (
	ModeDay   ViewMode = "day"
	ModeWeek  ViewMode = "week"
	ModeMonth ViewMode = "month"
)

// ParseViewMode normalizes a view mode string. Returns false for unknown input.
func ParseViewMode(s string) (ViewMode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "day", "days", "d":
		return ModeDay, true
	case "week", "weeks", "w":
		return ModeWeek, true
	case "month", "months", "m":
		return ModeMonth, true
	}
	return "", false
}

// ColumnWidth returns the fixed per-column width in layout units.
func (m ViewMode) ColumnWidth() int {
	switch m {
	case ModeWeek:
		return 80
	case ModeMonth:
		return 120
	default:
		return 40
	}
}

// DefaultPeriods is the fixed window length used for empty task sets and for
// extending the upper bound: 30 days, 12 weeks, or 6 months.
func (m ViewMode) DefaultPeriods() int {
	switch m {
	case ModeWeek:
		return 12
	case ModeMonth:
		return 6
	default:
		return 30
	}
}

// periodDays is the period length in days for day and week modes. Month mode
// uses exact calendar arithmetic instead.
func (m ViewMode) periodDays() int {
	if m == ModeWeek {
		return 7
	}
	return 1
}

// AlignDown aligns a date down to the start of its period: the day itself for
// day mode, Monday for week mode, the 1st for month mode.
func AlignDown(d task.Date, mode ViewMode) task.Date {
	switch mode {
	case ModeWeek:
		// time.Weekday starts at Sunday; shift so Monday is offset 0.
		offset := (int(d.Weekday()) + 6) % 7
		return d.AddDays(-offset)
	case ModeMonth:
		return task.NewDate(d.Year(), d.Month(), 1)
	default:
		return d
	}
}

// NextPeriod advances a date by exactly one period.
func NextPeriod(d task.Date, mode ViewMode) task.Date {
	if mode == ModeMonth {
		return task.Date{Time: d.AddDate(0, 1, 0)}
	}
	return d.AddDays(mode.periodDays())
}

// AddPeriods advances a date by n periods.
func AddPeriods(d task.Date, mode ViewMode, n int) task.Date {
	if mode == ModeMonth {
		return task.Date{Time: d.AddDate(0, n, 0)}
	}
	return d.AddDays(n * mode.periodDays())
}

// SnapDate rounds a candidate drop date to the boundary of its period so
// drops always land on a renderable column.
func SnapDate(d task.Date, mode ViewMode) task.Date {
	return AlignDown(d, mode)
}

// Bounds is the derived visible date range of the timeline.
type Bounds struct {
	Start        task.Date
	End          task.Date
	TotalColumns int
	TotalWidth   int
}

// Contains reports whether d falls inside the bounds, inclusive.
func (b Bounds) Contains(d task.Date) bool {
	return !d.Before(b.Start.Time) && !d.After(b.End.Time)
}

// Column is one discrete period of the timeline.
type Column struct {
	Key      string
	Label    string
	Date     task.Date
	Position int
	Width    int
}

const (
	// Padding applied around the task date extent before alignment.
	padBeforeDays = 7
	padAfterDays  = 14
)

// ComputeBounds derives the visible window from a task set. An empty set, or
// one with no parseable dates, yields a default window anchored at the
// mode-aligned now. Padding is asymmetric: scheduling looks forward more than
// back.
func ComputeBounds(tasks []task.Task, mode ViewMode, now time.Time) Bounds {
	var haveDates bool
	var min, max task.Date
	for i := range tasks {
		for _, d := range []*task.Date{tasks[i].StartDate, tasks[i].DueDate} {
			if d == nil || d.IsZero() {
				continue
			}
			if !haveDates {
				min, max = *d, *d
				haveDates = true
				continue
			}
			if d.Before(min.Time) {
				min = *d
			}
			if d.After(max.Time) {
				max = *d
			}
		}
	}

	var start, end task.Date
	if !haveDates {
		start = AlignDown(task.DateOf(now), mode)
		end = AddPeriods(start, mode, mode.DefaultPeriods())
	} else {
		start = AlignDown(min.AddDays(-padBeforeDays), mode)
		end = AddPeriods(AlignDown(max.AddDays(padAfterDays), mode), mode, mode.DefaultPeriods())
	}

	total := countColumns(start, end, mode)
	return Bounds{
		Start:        start,
		End:          end,
		TotalColumns: total,
		TotalWidth:   total * mode.ColumnWidth(),
	}
}

// BoundsFor builds bounds spanning an explicit date range, aligned to the
// mode. Used by navigation when expanding the window to include today.
func BoundsFor(start, end task.Date, mode ViewMode) Bounds {
	start = AlignDown(start, mode)
	if end.Before(start.Time) {
		end = start
	}
	total := countColumns(start, end, mode)
	return Bounds{
		Start:        start,
		End:          end,
		TotalColumns: total,
		TotalWidth:   total * mode.ColumnWidth(),
	}
}

func countColumns(start, end task.Date, mode ViewMode) int {
	n := 0
	for d := start; !d.After(end.Time); d = NextPeriod(d, mode) {
		n++
	}
	return n
}

// Columns generates one column per period from the aligned start until the
// running date exceeds end. Positions increase by exactly one column width.
func Columns(start, end task.Date, mode ViewMode) []Column {
	width := mode.ColumnWidth()
	var cols []Column
	for d, i := AlignDown(start, mode), 0; !d.After(end.Time); d, i = NextPeriod(d, mode), i+1 {
		cols = append(cols, Column{
			Key:      d.String(),
			Label:    columnLabel(d, mode),
			Date:     d,
			Position: i * width,
			Width:    width,
		})
	}
	return cols
}

func columnLabel(d task.Date, mode ViewMode) string {
	switch mode {
	case ModeWeek:
		return fmt.Sprintf("W %s", d.Format("Jan 2"))
	case ModeMonth:
		return d.Format("Jan 2006")
	default:
		return d.Format("Jan 2")
	}
}

// ColumnIndex maps a date to its column index, clamped to
// [0, TotalColumns-1]. Out-of-window dates map to the nearest edge; callers
// that need to distinguish use TodayIndex or Bounds.Contains.
func ColumnIndex(d task.Date, b Bounds, mode ViewMode) int {
	if b.TotalColumns <= 0 {
		return 0
	}
	var idx int
	if mode == ModeMonth {
		idx = (d.Year()-b.Start.Year())*12 + int(d.Month()) - int(b.Start.Month())
	} else {
		idx = b.Start.DaysUntil(AlignDown(d, mode)) / mode.periodDays()
	}
	if idx < 0 {
		return 0
	}
	if idx > b.TotalColumns-1 {
		return b.TotalColumns - 1
	}
	return idx
}

// TodayIndex returns the column index for today, or ok=false when today lies
// outside the bounds. A clamped edge value would render a misleading marker,
// so out-of-window gets no index at all.
func TodayIndex(b Bounds, mode ViewMode, now time.Time) (int, bool) {
	today := task.DateOf(now)
	if !b.Contains(today) {
		return 0, false
	}
	return ColumnIndex(today, b, mode), true
}

// DateAt is the inverse mapping from a pixel offset to the column date at
// that offset. Offsets outside the rendered width clamp to the edge columns.
func DateAt(pixelX int, b Bounds, mode ViewMode) task.Date {
	if b.TotalColumns <= 0 {
		return b.Start
	}
	idx := 0
	if w := mode.ColumnWidth(); w > 0 {
		idx = pixelX / w
	}
	if idx < 0 {
		idx = 0
	}
	if idx > b.TotalColumns-1 {
		idx = b.TotalColumns - 1
	}
	return AddPeriods(b.Start, mode, idx)
}

// Position is a task's computed place on the grid.
type Position struct {
	StartColumn int
	ColumnSpan  int
	PixelLeft   int
	PixelWidth  int
}

// TaskPosition computes where a task renders. A task lacking dates defaults
// to a one-period box anchored at now. Span is never zero, even for same-day
// tasks.
func TaskPosition(t *task.Task, b Bounds, mode ViewMode, now time.Time) Position {
	start := task.DateOf(now)
	due := start
	if t != nil && t.StartDate != nil && !t.StartDate.IsZero() {
		start = *t.StartDate
	}
	if t != nil && t.DueDate != nil && !t.DueDate.IsZero() {
		due = *t.DueDate
	} else {
		due = start
	}

	startCol := ColumnIndex(start, b, mode)
	endCol := ColumnIndex(due, b, mode)
	span := endCol - startCol + 1
	if span < 1 {
		span = 1
	}

	width := mode.ColumnWidth()
	return Position{
		StartColumn: startCol,
		ColumnSpan:  span,
		PixelLeft:   startCol * width,
		PixelWidth:  span * width,
	}
}
