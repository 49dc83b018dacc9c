// Package ui provides the terminal timeline surface.
package ui

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/planline/planline/internal/drag"
	"github.com/planline/planline/internal/notify"
	"github.com/planline/planline/internal/schedule"
	"github.com/planline/planline/internal/task"
	"github.com/planline/planline/internal/timegrid"
	"github.com/planline/planline/internal/timeline"
)

// unitsPerCell converts timegrid layout units into terminal cells, so a day
// column renders 4 cells wide, a week 8, a month 12.
const unitsPerCell = 10

// labelColWidth is the fixed width of the task title gutter.
const labelColWidth = 22

var (
	styleHeader    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	styleToday     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	styleBar       = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	styleBarDone   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	styleSelected  = lipgloss.NewStyle().Bold(true)
	stylePreviewOK = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	stylePreviewWn = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	stylePreviewNo = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	styleNotice    = lipgloss.NewStyle().Faint(true)
	styleError     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// IsTTY returns true if w is a terminal.
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, _ := f.Stat()
	return (info.Mode() & os.ModeCharDevice) != 0
}

// Run starts the timeline TUI over an already-loaded controller. The events
// channel (may be nil) feeds authoritative change notifications into the
// model; notices receives user-facing notifications for the status line.
func Run(ctx context.Context, ctrl *timeline.Controller, events <-chan schedule.ChangeEvent, notices <-chan notify.Notification) error {
	if !IsTTY(os.Stdout) {
		return fmt.Errorf("timeline view requires a TTY")
	}
	model := newModel(ctrl, events, notices)
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := program.Run()
	return err
}

// ChannelNotifier adapts a channel to notify.Notifier, dropping messages
// when the UI is not draining fast enough.
type ChannelNotifier struct {
	C chan notify.Notification
}

// NewChannelNotifier creates a buffered channel notifier.
func NewChannelNotifier() *ChannelNotifier {
	return &ChannelNotifier{C: make(chan notify.Notification, 16)}
}

// Notify implements notify.Notifier.
func (c *ChannelNotifier) Notify(n notify.Notification) {
	select {
	case c.C <- n:
	default:
	}
}

type model struct {
	ctrl    *timeline.Controller
	events  <-chan schedule.ChangeEvent
	notices <-chan notify.Notification

	selected   int
	committing bool
	notice     notify.Notification
	width      int
	height     int
}

type changeMsg struct {
	ev schedule.ChangeEvent
	ok bool
}

type noticeMsg struct {
	n  notify.Notification
	ok bool
}

type commitDoneMsg struct {
	err error
}

func newModel(ctrl *timeline.Controller, events <-chan schedule.ChangeEvent, notices <-chan notify.Notification) *model {
	return &model{ctrl: ctrl, events: events, notices: notices}
}

func waitForChange(ch <-chan schedule.ChangeEvent) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-ch
		return changeMsg{ev: ev, ok: ok}
	}
}

func waitForNotice(ch <-chan notify.Notification) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		n, ok := <-ch
		return noticeMsg{n: n, ok: ok}
	}
}

func (m *model) Init() tea.Cmd {
	return tea.Batch(waitForChange(m.events), waitForNotice(m.notices))
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		cells := msg.Width - labelColWidth
		if cells < 10 {
			cells = 10
		}
		m.ctrl.Nav().ViewportWidth = cells * unitsPerCell
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	case changeMsg:
		if !msg.ok {
			return m, nil
		}
		m.ctrl.ApplyRemote(msg.ev)
		m.clampSelection()
		return m, waitForChange(m.events)
	case noticeMsg:
		if !msg.ok {
			return m, nil
		}
		m.notice = msg.n
		return m, waitForNotice(m.notices)
	case commitDoneMsg:
		m.committing = false
		m.ctrl.Refresh()
		m.clampSelection()
		return m, nil
	}
	return m, nil
}

func (m *model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	tasks := m.ctrl.Store().Tasks()

	switch msg.String() {
	case "ctrl+c", "q":
		m.ctrl.CancelDrag()
		return m, tea.Quit
	case "j", "down":
		if !m.ctrl.Dragging() && m.selected < len(tasks)-1 {
			m.selected++
		}
	case "k", "up":
		if !m.ctrl.Dragging() && m.selected > 0 {
			m.selected--
		}
	case "enter", " ":
		if m.ctrl.Dragging() {
			return m.drop()
		}
		if m.committing || len(tasks) == 0 {
			return m, nil
		}
		if err := m.ctrl.StartDrag(tasks[m.selected].ID); err != nil {
			m.notice = notify.Notification{Title: err.Error(), Variant: notify.Warning}
			return m, nil
		}
		// Seed the preview with the task's current start.
		if t := m.ctrl.Session().Task(); t.StartDate != nil {
			m.ctrl.Session().Preview(*t.StartDate)
		}
	case "esc":
		m.ctrl.CancelDrag()
	case "h", "left":
		if m.ctrl.Dragging() {
			m.movePreview(-1)
		} else {
			m.ctrl.Nav().PanLeft()
		}
	case "l", "right":
		if m.ctrl.Dragging() {
			m.movePreview(1)
		} else {
			m.ctrl.Nav().PanRight()
		}
	case "u":
		if !m.committing {
			return m, m.historyCmd(true)
		}
	case "U", "ctrl+r":
		if !m.committing {
			return m, m.historyCmd(false)
		}
	case "t":
		m.ctrl.Nav().ScrollToToday()
	case "f":
		m.ctrl.Nav().FitToTasks(tasks)
	case "d":
		m.ctrl.SetViewMode(timegrid.ModeDay)
	case "w":
		m.ctrl.SetViewMode(timegrid.ModeWeek)
	case "m":
		m.ctrl.SetViewMode(timegrid.ModeMonth)
	}
	return m, nil
}

// movePreview shifts the drag candidate by n periods from the previewed
// start (or the task's own start for the first move).
func (m *model) movePreview(n int) {
	sess := m.ctrl.Session()
	report := sess.Report()
	from := report.Start
	if from.IsZero() {
		if t := sess.Task(); t.StartDate != nil {
			from = *t.StartDate
		} else {
			return
		}
	}
	sess.Preview(timegrid.AddPeriods(from, m.ctrl.Mode(), n))
}

// drop detaches the session on the event thread and commits it off-thread;
// a second drop while committing is ignored.
func (m *model) drop() (tea.Model, tea.Cmd) {
	if m.committing {
		return m, nil
	}
	sess := m.ctrl.TakeSession()
	if sess == nil {
		return m, nil
	}
	m.committing = true
	store := m.ctrl.Store()
	return m, func() tea.Msg {
		err := store.Commit(context.Background(), sess)
		return commitDoneMsg{err: err}
	}
}

func (m *model) historyCmd(undo bool) tea.Cmd {
	m.committing = true
	log := m.ctrl.History()
	return func() tea.Msg {
		var err error
		if undo {
			err = log.Undo(context.Background())
		} else {
			err = log.Redo(context.Background())
		}
		return commitDoneMsg{err: err}
	}
}

func (m *model) clampSelection() {
	if n := len(m.ctrl.Store().Tasks()); m.selected >= n {
		m.selected = n - 1
	}
	if m.selected < 0 {
		m.selected = 0
	}
}

func (m *model) View() string {
	var b strings.Builder
	tasks := m.ctrl.Store().Tasks()
	bounds := m.ctrl.Bounds()
	mode := m.ctrl.Mode()
	nav := m.ctrl.Nav()

	scrollCells := nav.ScrollX / unitsPerCell
	viewCells := m.width - labelColWidth
	if viewCells < 10 {
		viewCells = 80
	}

	b.WriteString(styleHeader.Render("planline"))
	b.WriteString(fmt.Sprintf("  %s – %s  [%s]\n\n", bounds.Start, bounds.End, mode))

	b.WriteString(m.headerRow(bounds, mode, scrollCells, viewCells))
	b.WriteString("\n")

	for i := range tasks {
		b.WriteString(m.taskRow(&tasks[i], i, bounds, mode, scrollCells, viewCells))
		b.WriteString("\n")
	}
	if len(tasks) == 0 {
		b.WriteString(styleNotice.Render("no tasks") + "\n")
	}

	b.WriteString("\n")
	b.WriteString(m.statusLine())
	b.WriteString("\n")
	b.WriteString(styleNotice.Render("enter grab/drop · h/l move · esc cancel · u undo · U redo · t today · f fit · d/w/m view · q quit"))
	return b.String()
}

// headerRow renders the visible slice of column labels, highlighting today.
func (m *model) headerRow(bounds timegrid.Bounds, mode timegrid.ViewMode, scrollCells, viewCells int) string {
	cols := timegrid.Columns(bounds.Start, bounds.End, mode)
	todayIdx, todayOK := timegrid.TodayIndex(bounds, mode, time.Now())

	row := make([]rune, 0, viewCells)
	var styledToday string
	colCells := mode.ColumnWidth() / unitsPerCell
	for i, col := range cols {
		label := []rune(col.Label)
		if len(label) > colCells-1 {
			label = label[:colCells-1]
		}
		cell := string(label) + strings.Repeat(" ", colCells-len(label))
		if todayOK && i == todayIdx {
			styledToday = cell
			cell = strings.Repeat("\x00", colCells) // placeholder, styled below
		}
		row = append(row, []rune(cell)...)
	}

	visible := sliceCells(string(row), scrollCells, viewCells)
	out := strings.Repeat(" ", labelColWidth) + visible
	if styledToday != "" {
		out = strings.Replace(out, strings.Repeat("\x00", colCells), styleToday.Render(styledToday), 1)
		out = strings.ReplaceAll(out, "\x00", " ")
	}
	return out
}

func (m *model) taskRow(t *task.Task, idx int, bounds timegrid.Bounds, mode timegrid.ViewMode, scrollCells, viewCells int) string {
	// Measure in runes so multi-byte titles pad to the same gutter width.
	title := []rune(t.Title)
	if len(title) > labelColWidth-2 {
		title = title[:labelColWidth-2]
	}
	label := string(title) + strings.Repeat(" ", labelColWidth-len(title))
	if idx == m.selected {
		label = styleSelected.Render("> " + string(title) + strings.Repeat(" ", labelColWidth-2-len(title)))
	}

	pos := timegrid.TaskPosition(t, bounds, mode, time.Now())
	barStart := pos.PixelLeft / unitsPerCell
	barLen := pos.PixelWidth / unitsPerCell
	barStyle := styleBar
	if t.Status == task.StatusDone {
		barStyle = styleBarDone
	}
	barRune := "█"

	// While this task is being dragged, render the preview position with
	// validity coloring instead of the committed position.
	if sess := m.ctrl.Session(); sess != nil && sess.Task().ID == t.ID && m.ctrl.Dragging() {
		if report := sess.Report(); !report.Start.IsZero() {
			previewPos := timegrid.TaskPosition(&task.Task{
				ID:        t.ID,
				StartDate: &report.Start,
				DueDate:   &report.Due,
			}, bounds, mode, time.Now())
			barStart = previewPos.PixelLeft / unitsPerCell
			barLen = previewPos.PixelWidth / unitsPerCell
			barRune = "▒"
			switch report.Validity {
			case drag.Invalid:
				barStyle = stylePreviewNo
			case drag.Warning:
				barStyle = stylePreviewWn
			default:
				barStyle = stylePreviewOK
			}
		}
	}

	line := strings.Repeat(" ", barStart) + strings.Repeat(barRune, maxInt(1, barLen))
	visible := sliceCells(line, scrollCells, viewCells)
	return label + barStyle.Render(visible)
}

func (m *model) statusLine() string {
	parts := []string{}
	if m.committing {
		parts = append(parts, "saving…")
	}
	if sess := m.ctrl.Session(); sess != nil && m.ctrl.Dragging() {
		report := sess.Report()
		if len(report.Messages) > 0 {
			style := stylePreviewWn
			if report.Validity == drag.Invalid {
				style = styleError
			}
			parts = append(parts, style.Render(report.Messages[0]))
		} else if !report.Start.IsZero() {
			parts = append(parts, fmt.Sprintf("→ %s", report.Start))
		}
	}
	if m.notice.Title != "" {
		style := styleNotice
		if m.notice.Variant == notify.Error {
			style = styleError
		}
		parts = append(parts, style.Render(m.notice.Title))
	}
	if desc, ok := m.ctrl.History().UndoDescription(); ok {
		parts = append(parts, styleNotice.Render("undo: "+desc))
	}
	if len(parts) == 0 {
		return " "
	}
	return strings.Join(parts, "  ·  ")
}

// sliceCells returns the [from, from+width) cell window of s, padded.
func sliceCells(s string, from, width int) string {
	runes := []rune(s)
	if from < 0 {
		from = 0
	}
	if from >= len(runes) {
		return ""
	}
	end := from + width
	if end > len(runes) {
		end = len(runes)
	}
	return string(runes[from:end])
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
