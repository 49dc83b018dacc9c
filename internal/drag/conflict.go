package drag

import (
	"fmt"

	"github.com/planline/planline/internal/task"
)

// CategoryOverlap returns a conflict predicate that rejects a drop when the
// relocated range overlaps another task in the same category. This is the
// stock double-booking policy; callers with richer rules supply their own
// ConflictFunc instead.
func CategoryOverlap() ConflictFunc {
	return func(t *task.Task, start, due task.Date, others []task.Task) (bool, string) {
		if t.Category == "" {
			return false, ""
		}
		for i := range others {
			o := &others[i]
			if o.Category != t.Category || !o.HasDates() {
				continue
			}
			if overlaps(start, due, *o.StartDate, *o.DueDate) {
				return true, fmt.Sprintf("%q is already booked for %s from %s to %s",
					o.Title, o.Category, o.StartDate, o.DueDate)
			}
		}
		return false, ""
	}
}

// NotBefore returns a rule that keeps the task from starting before a fixed
// date, for example a project kickoff.
func NotBefore(limit task.Date, severity Validity) Rule {
	return Rule{
		Severity: severity,
		Check: func(t *task.Task, start, due task.Date, others []task.Task) string {
			if start.Before(limit.Time) {
				return fmt.Sprintf("%q cannot start before %s", t.Title, limit)
			}
			return ""
		},
	}
}

func overlaps(aStart, aEnd, bStart, bEnd task.Date) bool {
	return !aStart.After(bEnd.Time) && !bStart.After(aEnd.Time)
}
