package model

import "time"

// Appointment types.
const (
	TypeConsultation = "consultation"
	TypeSession      = "session"
)

// Appointment statuses. An appointment is never deleted, only
// status-transitioned.
const (
	StatusScheduled = "scheduled"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
	StatusCompleted = "completed"
)

type Appointment struct {
	ID              string
	Type            string
	StartTime       time.Time
	EndTime         time.Time
	DurationMinutes int
	Status          string
	LeadID          string
	CalendarEventID string
	CustomerName    string
	CustomerEmail   string
	CustomerPhone   string
	Notes           string
	CreatedAt       time.Time
}

// Active reports whether the appointment counts against slot capacity.
func (a Appointment) Active() bool {
	return a.Status == StatusScheduled || a.Status == StatusConfirmed
}

// Overlaps reports whether [a.StartTime, a.EndTime) intersects [start, end).
func (a Appointment) Overlaps(start, end time.Time) bool {
	return a.StartTime.Before(end) && a.EndTime.After(start)
}
