package booking

import "fmt"

func confirmationEmail(req Request, studio, siteURL string) (subject, body string) {
	if studio == "" {
		studio = "the studio"
	}
	subject = fmt.Sprintf("Your consultation with %s is booked", studio)
	body = fmt.Sprintf(
		`<p>Hi %s,</p>
<p>Your consultation is booked for <strong>%s at %s</strong>.</p>
<p>If you need to reschedule, reply to this email or visit <a href="%s">%s</a>.</p>
<p>See you soon,<br>%s</p>`,
		req.Name, req.Date, req.Time, siteURL, siteURL, studio,
	)
	return subject, body
}

func confirmationSMS(req Request, studio string) string {
	if studio == "" {
		studio = "the studio"
	}
	return fmt.Sprintf("Hi %s, your consultation with %s is booked for %s at %s.", req.Name, studio, req.Date, req.Time)
}
