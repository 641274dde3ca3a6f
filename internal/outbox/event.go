package outbox

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType (event per topic).
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// Event types emitted by this service.
const (
	EventAppointmentScheduled = "booking.appointment.scheduled.v1"
	EventAppointmentCancelled = "booking.appointment.cancelled.v1"
	EventFollowUpSent         = "crm.followup.sent.v1"
	EventFollowUpFailed       = "crm.followup.failed.v1"
)
