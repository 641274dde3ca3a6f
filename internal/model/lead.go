package model

import "time"

// Lead is shared with the CRM; this core only creates-or-links leads by
// email and reads them back for reminder delivery.
type Lead struct {
	ID        string
	Name      string
	Email     string
	Phone     string
	Source    string
	Notes     string
	CreatedAt time.Time
}
