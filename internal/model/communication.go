package model

import "time"

// Communication channels and directions.
const (
	CommEmail   = "email"
	CommSMS     = "sms"
	CommPhone   = "phone"
	CommNote    = "note"
	CommMeeting = "meeting"

	DirectionOutbound = "outbound"
	DirectionInbound  = "inbound"
)

// Communication statuses.
const (
	CommSent   = "sent"
	CommFailed = "failed"
)

// CommunicationLog is an append-only record of one delivery attempt
// outcome. Rows are written once and never mutated.
type CommunicationLog struct {
	ID        string
	LeadID    string
	Type      string
	Direction string
	Subject   string
	Content   string
	Status    string
	Metadata  map[string]any
	CreatedAt time.Time
}
