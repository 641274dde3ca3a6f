// Package timeslot generates the bookable consultation slots for a business
// day. Slot math is pure and timezone-explicit so it can back both the
// availability endpoint and validation of incoming booking requests.
package timeslot

import (
	"fmt"
	"time"
)

// Label layout for user-facing slot times, e.g. "2:00 PM".
const LabelLayout = "3:04 PM"

// Slot is one bookable window within business hours.
type Slot struct {
	Start time.Time
	Label string
}

// Hours describes a daily booking window in a fixed location.
type Hours struct {
	OpenHour    int // first bookable slot starts at OpenHour:00
	CloseHour   int // no slot may extend past CloseHour:00
	StepMin     int
	DurationMin int
	Location    *time.Location
}

// ConsultationHours is the studio's consultation window: 10:00-22:00,
// 30-minute slots, seven days a week.
func ConsultationHours(loc *time.Location) Hours {
	return Hours{OpenHour: 10, CloseHour: 22, StepMin: 30, DurationMin: 30, Location: loc}
}

// SlotsFor returns the ordered slots for one calendar day. Deterministic
// given the config; no I/O.
func SlotsFor(day time.Time, h Hours) []Slot {
	if h.StepMin <= 0 || h.DurationMin <= 0 || h.CloseHour <= h.OpenHour {
		return nil
	}
	loc := h.Location
	if loc == nil {
		loc = time.UTC
	}
	open := time.Date(day.Year(), day.Month(), day.Day(), h.OpenHour, 0, 0, 0, loc)
	end := time.Date(day.Year(), day.Month(), day.Day(), h.CloseHour, 0, 0, 0, loc)

	duration := time.Duration(h.DurationMin) * time.Minute
	step := time.Duration(h.StepMin) * time.Minute

	var slots []Slot
	for t := open; !t.Add(duration).After(end); t = t.Add(step) {
		slots = append(slots, Slot{Start: t, Label: t.Format(LabelLayout)})
	}
	return slots
}

// ParseLabel resolves an "h:mm AM/PM" label on the given day to a zoned
// instant.
func ParseLabel(day time.Time, label string, loc *time.Location) (time.Time, error) {
	clock, err := time.Parse(LabelLayout, label)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: expected h:mm AM/PM", label)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), clock.Hour(), clock.Minute(), 0, 0, loc), nil
}

// WithinHours reports whether a slot starting at t fits entirely inside the
// business window.
func WithinHours(t time.Time, h Hours) bool {
	loc := h.Location
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)
	open := time.Date(t.Year(), t.Month(), t.Day(), h.OpenHour, 0, 0, 0, loc)
	end := time.Date(t.Year(), t.Month(), t.Day(), h.CloseHour, 0, 0, 0, loc)
	return !t.Before(open) && !t.Add(time.Duration(h.DurationMin)*time.Minute).After(end)
}
