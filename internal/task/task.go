// Package task defines the scheduling task model and its file form.
package task

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar-date encoding used in task files.
const DateLayout = "2006-01-02"

// Status represents a task status.
type Status string

const (
	StatusPlanned Status = "planned"
	StatusActive  Status = "active"
	StatusBlocked Status = "blocked"
	StatusDone    Status = "done"
)

// ValidStatus returns true if s is a known status value.
func ValidStatus(s Status) bool {
	switch s {
	case StatusPlanned, StatusActive, StatusBlocked, StatusDone:
		return true
	}
	return false
}

// Date is a calendar date (no time-of-day component) encoded as "2006-01-02".
type Date struct {
	time.Time
}

// NewDate builds a Date at midnight UTC for the given calendar day.
func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

// ParseDate parses a "2006-01-02" string. It also accepts full RFC 3339
// timestamps, truncating them to the day.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(DateLayout, s); err == nil {
		return Date{t}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// String returns the "2006-01-02" form.
func (d Date) String() string {
	return d.Format(DateLayout)
}

// MarshalJSON encodes the date as a "2006-01-02" string.
func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

// UnmarshalJSON decodes a "2006-01-02" or RFC 3339 string.
func (d *Date) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// AddDays returns the date shifted by n calendar days.
func (d Date) AddDays(n int) Date {
	return Date{d.Time.AddDate(0, 0, n)}
}

// DaysUntil returns the number of whole days from d to other.
func (d Date) DaysUntil(other Date) int {
	return int(other.Time.Sub(d.Time).Hours() / 24)
}

// Task represents a single schedulable task. The scheduling core reads and
// rewrites the date fields; everything else is carried opaquely.
type Task struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	Description    string     `json:"description,omitempty"`
	Category       string     `json:"category,omitempty"`
	Status         Status     `json:"status"`
	Priority       int        `json:"priority"`
	Progress       int        `json:"progress"`
	StartDate      *Date      `json:"start_date,omitempty"`
	DueDate        *Date      `json:"due_date,omitempty"`
	EstimatedHours float64    `json:"estimated_hours,omitempty"`
	ActualHours    float64    `json:"actual_hours,omitempty"`
	CreatedAt      *time.Time `json:"created_at,omitempty"`
	UpdatedAt      *time.Time `json:"updated_at,omitempty"`
}

// IsZero returns true if the task is empty (has no ID).
func (t *Task) IsZero() bool {
	return t.ID == ""
}

// HasDates returns true if both schedule dates are present and parseable.
func (t *Task) HasDates() bool {
	return t.StartDate != nil && !t.StartDate.IsZero() &&
		t.DueDate != nil && !t.DueDate.IsZero()
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	c := *t
	if t.StartDate != nil {
		d := *t.StartDate
		c.StartDate = &d
	}
	if t.DueDate != nil {
		d := *t.DueDate
		c.DueDate = &d
	}
	if t.CreatedAt != nil {
		ts := *t.CreatedAt
		c.CreatedAt = &ts
	}
	if t.UpdatedAt != nil {
		ts := *t.UpdatedAt
		c.UpdatedAt = &ts
	}
	return &c
}

// Fields is a partial update: only non-nil members are applied. It is the one
// shape shared by optimistic writes, remote change events, and history replay.
// The dates additionally support removal: a nil pointer means "leave
// unchanged", the Clear flag means "the new state has no date". Snapshots of
// date-less tasks restore through the Clear flags.
type Fields struct {
	Title          *string
	Description    *string
	Category       *string
	Status         *Status
	Priority       *int
	Progress       *int
	StartDate      *Date
	DueDate        *Date
	ClearStartDate bool
	ClearDueDate   bool
	EstimatedHours *float64
	ActualHours    *float64
}

// IsEmpty returns true if no field is set.
func (f Fields) IsEmpty() bool {
	return f == Fields{}
}

// Apply copies the set fields onto t and stamps UpdatedAt.
func (f Fields) Apply(t *Task) {
	if f.Title != nil {
		t.Title = *f.Title
	}
	if f.Description != nil {
		t.Description = *f.Description
	}
	if f.Category != nil {
		t.Category = *f.Category
	}
	if f.Status != nil {
		t.Status = *f.Status
	}
	if f.Priority != nil {
		t.Priority = *f.Priority
	}
	if f.Progress != nil {
		t.Progress = *f.Progress
	}
	if f.StartDate != nil {
		d := *f.StartDate
		t.StartDate = &d
	} else if f.ClearStartDate {
		t.StartDate = nil
	}
	if f.DueDate != nil {
		d := *f.DueDate
		t.DueDate = &d
	} else if f.ClearDueDate {
		t.DueDate = nil
	}
	if f.EstimatedHours != nil {
		t.EstimatedHours = *f.EstimatedHours
	}
	if f.ActualHours != nil {
		t.ActualHours = *f.ActualHours
	}
	now := time.Now().UTC()
	t.UpdatedAt = &now
}

// MoveFields builds the partial update for relocating a task.
func MoveFields(start, due Date) Fields {
	return Fields{StartDate: &start, DueDate: &due}
}

// Snapshot captures only the fields meaningful to reversibility. It is
// deliberately smaller than Task so history entries stay decoupled from
// fields the scheduling core does not reason about.
type Snapshot struct {
	StartDate      *Date   `json:"start_date,omitempty"`
	DueDate        *Date   `json:"due_date,omitempty"`
	Status         Status  `json:"status"`
	Priority       int     `json:"priority"`
	Progress       int     `json:"progress"`
	EstimatedHours float64 `json:"estimated_hours,omitempty"`
	ActualHours    float64 `json:"actual_hours,omitempty"`
	Description    string  `json:"description,omitempty"`
	Category       string  `json:"category,omitempty"`
}

// Capture snapshots the reversible fields of t.
func Capture(t *Task) Snapshot {
	s := Snapshot{
		Status:         t.Status,
		Priority:       t.Priority,
		Progress:       t.Progress,
		EstimatedHours: t.EstimatedHours,
		ActualHours:    t.ActualHours,
		Description:    t.Description,
		Category:       t.Category,
	}
	if t.StartDate != nil {
		d := *t.StartDate
		s.StartDate = &d
	}
	if t.DueDate != nil {
		d := *t.DueDate
		s.DueDate = &d
	}
	return s
}

// Fields converts the snapshot into the partial update that restores it.
func (s Snapshot) Fields() Fields {
	status := s.Status
	priority := s.Priority
	progress := s.Progress
	est := s.EstimatedHours
	act := s.ActualHours
	desc := s.Description
	cat := s.Category
	f := Fields{
		Status:         &status,
		Priority:       &priority,
		Progress:       &progress,
		EstimatedHours: &est,
		ActualHours:    &act,
		Description:    &desc,
		Category:       &cat,
	}
	if s.StartDate != nil {
		d := *s.StartDate
		f.StartDate = &d
	} else {
		f.ClearStartDate = true
	}
	if s.DueDate != nil {
		d := *s.DueDate
		f.DueDate = &d
	} else {
		f.ClearDueDate = true
	}
	return f
}
