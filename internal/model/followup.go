package model

import "time"

// Follow-up sequence types. day1/day3/day7 are queued by the scheduler at
// lead intake; reminder/confirmation are the on-demand sends.
const (
	SequenceDay1         = "day1"
	SequenceDay3         = "day3"
	SequenceDay7         = "day7"
	SequenceReminder     = "reminder"
	SequenceConfirmation = "confirmation"
)

// Follow-up task statuses. sent and failed are terminal; a task is never
// reprocessed once it leaves pending.
const (
	TaskPending = "pending"
	TaskSent    = "sent"
	TaskFailed  = "failed"
)

type FollowUpTask struct {
	ID           string
	LeadID       string
	SequenceType string
	ScheduledFor time.Time
	Status       string
	SentAt       *time.Time
	Attempts     int
	LastError    string
	CreatedAt    time.Time
}
