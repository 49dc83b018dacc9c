// Package notify delivers user-facing notifications.
package notify

import (
	"sync"

	"github.com/charmbracelet/log"
)

// Variant classifies a notification for presentation.
type Variant string

const (
	Info    Variant = "info"
	Success Variant = "success"
	Warning Variant = "warning"
	Error   Variant = "error"
)

// Notification is a user-facing message. Delivery is fire-and-forget; no
// component consumes a return value from its sink.
type Notification struct {
	Title       string
	Description string
	Variant     Variant
}

// Notifier receives notifications.
type Notifier interface {
	Notify(n Notification)
}

// Func adapts a function to the Notifier interface.
type Func func(n Notification)

// Notify implements Notifier.
func (f Func) Notify(n Notification) {
	f(n)
}

// Console writes notifications to a charmbracelet logger.
type Console struct {
	logger *log.Logger
}

// NewConsole creates a console notifier backed by logger.
func NewConsole(logger *log.Logger) *Console {
	return &Console{logger: logger}
}

// Notify implements Notifier.
func (c *Console) Notify(n Notification) {
	switch n.Variant {
	case Error:
		c.logger.Error(n.Title, "detail", n.Description)
	case Warning:
		c.logger.Warn(n.Title, "detail", n.Description)
	default:
		c.logger.Info(n.Title, "detail", n.Description)
	}
}

// Multi fans a notification out to several sinks.
type Multi struct {
	sinks []Notifier
}

// NewMulti creates a fan-out notifier. Nil sinks are skipped.
func NewMulti(sinks ...Notifier) *Multi {
	m := &Multi{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Notify implements Notifier.
func (m *Multi) Notify(n Notification) {
	for _, s := range m.sinks {
		s.Notify(n)
	}
}

// Recorder captures notifications for inspection in tests.
type Recorder struct {
	mu   sync.Mutex
	seen []Notification
}

// Notify implements Notifier.
func (r *Recorder) Notify(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, n)
}

// All returns a copy of the captured notifications.
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.seen))
	copy(out, r.seen)
	return out
}

// Reset clears the captured notifications.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = nil
}
