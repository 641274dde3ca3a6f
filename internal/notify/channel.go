// Package notify abstracts outbound email and SMS delivery. Each channel
// has a live implementation selected when provider credentials are present
// and a log-only implementation otherwise, so calling code paths are
// uniform in test and production.
package notify

import "context"

// Message is one outbound communication. Body carries HTML for email and
// plain text for SMS.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Result is what callers see from a dispatch attempt. Errors never cross
// the dispatcher boundary; a failure is OK=false plus a log line.
type Result struct {
	OK         bool
	ProviderID string
}

// Channel delivers a message over one medium.
type Channel interface {
	Name() string
	Send(ctx context.Context, msg Message) (Result, error)
}
