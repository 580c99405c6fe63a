// Package recurrence expands weekly recurrence definitions into concrete
// class dates. Pure computation, no side effects.
package recurrence

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Weekday names as they arrive from clients. Accent-less spellings are
// accepted because mobile clients have historically sent both.
var weekdayNames = map[string]time.Weekday{
	"domingo":   time.Sunday,
	"lunes":     time.Monday,
	"martes":    time.Tuesday,
	"miércoles": time.Wednesday,
	"miercoles": time.Wednesday,
	"jueves":    time.Thursday,
	"viernes":   time.Friday,
	"sábado":    time.Saturday,
	"sabado":    time.Saturday,
}

// canonical spelling per weekday, used when labeling generated instances.
var canonicalNames = [7]string{
	"domingo", "lunes", "martes", "miércoles", "jueves", "viernes", "sábado",
}

// WeekdayName returns the canonical Spanish label for a date's weekday.
func WeekdayName(t time.Time) string {
	return canonicalNames[int(t.Weekday())]
}

// ParseWeekday resolves a client-supplied weekday name. The second return
// value is false for unknown names.
func ParseWeekday(name string) (time.Weekday, bool) {
	d, ok := weekdayNames[strings.ToLower(strings.TrimSpace(name))]
	return d, ok
}

// NewRuleToken mints the recurrence-rule token shared by every instance
// generated from one recurrence definition.
func NewRuleToken() string {
	return uuid.NewString()
}

// Expand returns one date per matching weekday in [start, end], ordered and
// deduplicated, each normalized to fixed UTC noon so later timezone
// conversion cannot shift the calendar day. Unknown weekday names are
// ignored; an empty weekday set or end before start yields an empty result,
// which callers must treat as "no valid instance would be generated".
func Expand(weekdays []string, start, end time.Time) []time.Time {
	wanted := [7]bool{}
	any := false
	for _, name := range weekdays {
		if d, ok := ParseWeekday(name); ok {
			wanted[int(d)] = true
			any = true
		}
	}
	if !any {
		return nil
	}

	from := atNoonUTC(start)
	to := atNoonUTC(end)
	if to.Before(from) {
		return nil
	}

	var dates []time.Time
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if wanted[int(d.Weekday())] {
			dates = append(dates, d)
		}
	}
	return dates
}

func atNoonUTC(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 12, 0, 0, 0, time.UTC)
}
