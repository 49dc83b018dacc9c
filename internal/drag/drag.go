// Package drag implements the drag validation state machine.
//
// A drag is modeled as an explicit session independent of any UI event model:
// Idle -> Dragging -> {Committing -> Idle | Idle}. Drag-over events become
// Preview calls where only the latest preview matters; Drop consumes the
// session exactly once.
package drag

import (
	"errors"
	"fmt"
	"time"

	"github.com/planline/planline/internal/task"
	"github.com/planline/planline/internal/timegrid"
)

// Validity classifies a candidate drop.
type Validity string

const (
	Valid   Validity = "valid"
	Warning Validity = "warning"
	Invalid Validity = "invalid"
)

// Phase is the session lifecycle state.
type Phase int

const (
	Idle Phase = iota
	Dragging
	Committing
)

func (p Phase) String() string {
	switch p {
	case Dragging:
		return "dragging"
	case Committing:
		return "committing"
	default:
		return "idle"
	}
}

// Session errors.
var (
	ErrNoTask      = errors.New("no task to drag")
	ErrNotDragging = errors.New("session is not dragging")
)

// ConflictFunc reports whether relocating the task to [start, due] would
// conflict with other tasks. A non-empty reason describes the conflict.
// Conflicts always block the drop.
type ConflictFunc func(t *task.Task, start, due task.Date, others []task.Task) (conflict bool, reason string)

// Rule is a caller-supplied domain constraint checked on every preview.
// An empty violation string means the rule passes.
type Rule struct {
	Severity Validity
	Check    func(t *task.Task, start, due task.Date, others []task.Task) (violation string)
}

// Report is the validation outcome for a previewed drop position.
// Messages is never empty when Validity is not Valid; the first message is
// what the user sees if the drop is rejected. Suggestion, when set, is the
// next period after the rejected date; it is advisory and never auto-applied.
type Report struct {
	Validity   Validity
	Start      task.Date
	Due        task.Date
	Messages   []string
	Suggestion *task.Date
}

// Engine validates drags against the current timeline configuration.
// Conflict and Rules are injected policy; the engine has no business rules
// of its own. Now, when set, replaces the wall clock.
type Engine struct {
	Mode     timegrid.ViewMode
	Bounds   timegrid.Bounds
	Conflict ConflictFunc
	Rules    []Rule
	Now      func() time.Time
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Session is one active drag gesture. At most one session should be active
// per timeline surface; the owning coordinator enforces that.
type Session struct {
	engine *Engine
	phase  Phase
	task   *task.Task
	others []task.Task
	report Report
}

// Begin starts a drag session for t. The others slice is consulted by
// conflict and rule checks.
func (e *Engine) Begin(t *task.Task, others []task.Task) (*Session, error) {
	if t == nil || t.IsZero() {
		return nil, ErrNoTask
	}
	return &Session{
		engine: e,
		phase:  Dragging,
		task:   t.Clone(),
		others: others,
	}, nil
}

// Phase returns the current lifecycle phase.
func (s *Session) Phase() Phase {
	return s.phase
}

// Task returns the task being dragged.
func (s *Session) Task() *task.Task {
	return s.task
}

// Report returns the latest validation report.
func (s *Session) Report() Report {
	return s.report
}

// Preview validates a candidate drop date, overwriting any previous preview.
// The candidate is snapped to the period boundary of the active view mode
// before validation. Previews after Drop are ignored.
func (s *Session) Preview(candidate task.Date) Report {
	if s.phase != Dragging {
		return s.report
	}
	start := timegrid.SnapDate(candidate, s.engine.Mode)
	due := s.newDue(start)
	s.report = s.engine.validate(s.task, start, due, s.others)
	return s.report
}

// PreviewAt maps a pixel offset to its column date and previews it.
func (s *Session) PreviewAt(pixelX int) Report {
	return s.Preview(timegrid.DateAt(pixelX, s.engine.Bounds, s.engine.Mode))
}

// Drop consumes the session and returns the final relocation proposal.
// A second drop for an already-committing session returns ErrNotDragging,
// so duplicate drop events from the host surface are ignored.
func (s *Session) Drop() (Report, error) {
	if s.phase != Dragging {
		return Report{}, ErrNotDragging
	}
	if s.report.Start.IsZero() {
		// Drop without any preview: the task's own start is the candidate.
		anchor := task.DateOf(s.engine.now())
		if s.task.StartDate != nil && !s.task.StartDate.IsZero() {
			anchor = *s.task.StartDate
		}
		s.Preview(anchor)
	}
	s.phase = Committing
	return s.report, nil
}

// Cancel clears the session with no side effects. Valid in any phase.
func (s *Session) Cancel() {
	s.phase = Idle
	s.report = Report{}
}

// Finish returns the session to idle once the commit path has resolved.
func (s *Session) Finish() {
	s.phase = Idle
}

// Fields returns the partial update that applies the previewed relocation.
func (s *Session) Fields() task.Fields {
	return task.MoveFields(s.report.Start, s.report.Due)
}

// newDue preserves the task's duration: newDue = newStart + (oldDue -
// oldStart). A task with missing or equal dates gets a one-period span.
func (s *Session) newDue(start task.Date) task.Date {
	if s.task.HasDates() {
		if delta := s.task.StartDate.DaysUntil(*s.task.DueDate); delta > 0 {
			return start.AddDays(delta)
		}
	}
	return timegrid.NextPeriod(start, s.engine.Mode).AddDays(-1)
}

func (e *Engine) validate(t *task.Task, start, due task.Date, others []task.Task) Report {
	r := Report{Validity: Valid, Start: start, Due: due}

	if !e.Bounds.Contains(start) || !e.Bounds.Contains(due) {
		// The bounds can still be auto-expanded by navigation, so this is
		// a warning rather than a hard rejection.
		r.downgrade(Warning, fmt.Sprintf("moving %q to %s places it outside the visible timeline", t.Title, start))
	}

	if e.Conflict != nil {
		if conflict, reason := e.Conflict(t, start, due, others); conflict {
			if reason == "" {
				reason = fmt.Sprintf("moving %q to %s conflicts with another task", t.Title, start)
			}
			r.downgrade(Invalid, reason)
		}
	}

	for _, rule := range e.Rules {
		if rule.Check == nil {
			continue
		}
		if violation := rule.Check(t, start, due, others); violation != "" {
			severity := rule.Severity
			if severity != Warning {
				severity = Invalid
			}
			r.downgrade(severity, violation)
		}
	}

	if r.Validity != Valid {
		next := timegrid.NextPeriod(start, e.Mode)
		r.Suggestion = &next
	}
	return r
}

// downgrade lowers the report validity, never raising it back.
func (r *Report) downgrade(v Validity, msg string) {
	if v == Invalid || (v == Warning && r.Validity == Valid) {
		r.Validity = v
	}
	r.Messages = append(r.Messages, msg)
}
