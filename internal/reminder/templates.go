package reminder

import (
	"fmt"

	"github.com/jmcalloway/studiobook/internal/model"
)

func followUpContent(seq string, lead model.Lead, studio, siteURL string) (subject, body string) {
	if studio == "" {
		studio = "the studio"
	}
	name := lead.Name
	if name == "" {
		name = "there"
	}

	switch seq {
	case model.SequenceDay1:
		subject = fmt.Sprintf("Thanks for reaching out to %s", studio)
		body = fmt.Sprintf(
			`<p>Hi %s,</p>
<p>Thanks for your interest in %s. We'd love to hear more about what you have in mind — book a free consultation at <a href="%s">%s</a>.</p>`,
			name, studio, siteURL, siteURL,
		)
	case model.SequenceDay3:
		subject = "Still thinking it over?"
		body = fmt.Sprintf(
			`<p>Hi %s,</p>
<p>Just checking in. Consultation slots fill up quickly; if you'd like to chat, grab a time at <a href="%s">%s</a>.</p>`,
			name, siteURL, siteURL,
		)
	default: // day7
		subject = fmt.Sprintf("Last note from %s", studio)
		body = fmt.Sprintf(
			`<p>Hi %s,</p>
<p>We'll leave you be after this one. Whenever you're ready, %s is here — %s.</p>`,
			name, studio, siteURL,
		)
	}
	return subject, body
}

func sessionEmail(req SendRequest, studio string) (subject, body string) {
	if studio == "" {
		studio = "the studio"
	}
	kind := req.SessionType
	if kind == "" {
		kind = "session"
	}

	if req.Type == model.SequenceConfirmation {
		subject = fmt.Sprintf("Your %s is confirmed", kind)
	} else {
		subject = fmt.Sprintf("Reminder: your %s is coming up", kind)
	}

	body = fmt.Sprintf(
		`<p>Hi %s,</p>
<p>Your %s with %s is scheduled for <strong>%s at %s</strong>.</p>`,
		req.Name, kind, studio, req.SessionDate, req.SessionTime,
	)
	if req.Location != "" {
		body += fmt.Sprintf("<p>Location: %s</p>", req.Location)
	}
	if req.Notes != "" {
		body += fmt.Sprintf("<p>%s</p>", req.Notes)
	}
	return subject, body
}

func sessionSMS(req SendRequest, studio string) string {
	if studio == "" {
		studio = "the studio"
	}
	kind := req.SessionType
	if kind == "" {
		kind = "session"
	}
	msg := fmt.Sprintf("Hi %s, reminder: your %s with %s is on %s at %s.", req.Name, kind, studio, req.SessionDate, req.SessionTime)
	if req.Type == model.SequenceConfirmation {
		msg = fmt.Sprintf("Hi %s, your %s with %s is confirmed for %s at %s.", req.Name, kind, studio, req.SessionDate, req.SessionTime)
	}
	if req.Location != "" {
		msg += " Location: " + req.Location + "."
	}
	return msg
}
