package booking

import (
	"regexp"
	"strings"
	"time"

	"github.com/jmcalloway/studiobook/internal/timeslot"
)

const dateLayout = "2006-01-02"

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// validate checks the request and resolves the slot start in the business
// time zone. Date comparisons are done against the business zone's "today",
// never the server clock's zone.
func (s *Service) validate(req Request, now time.Time) (time.Time, *ValidationError) {
	if strings.TrimSpace(req.Name) == "" {
		return time.Time{}, invalid("name", "name is required")
	}
	email := strings.TrimSpace(req.Email)
	if email == "" {
		return time.Time{}, invalid("email", "email is required")
	}
	if !emailPattern.MatchString(email) {
		return time.Time{}, invalid("email", "invalid email address")
	}
	if strings.TrimSpace(req.Date) == "" {
		return time.Time{}, invalid("date", "date is required")
	}
	if strings.TrimSpace(req.Time) == "" {
		return time.Time{}, invalid("time", "time is required")
	}

	day, err := time.ParseInLocation(dateLayout, req.Date, s.loc)
	if err != nil {
		return time.Time{}, invalid("date", "expected YYYY-MM-DD")
	}

	bizNow := now.In(s.loc)
	today := bizNow.Format(dateLayout)
	if req.Date < today {
		return time.Time{}, invalid("date", "date is in the past")
	}

	start, err := timeslot.ParseLabel(day, req.Time, s.loc)
	if err != nil {
		return time.Time{}, invalid("time", "expected h:mm AM/PM")
	}
	if !timeslot.WithinHours(start, s.hours) {
		return time.Time{}, invalid("time", "outside business hours")
	}
	if req.Date == today && !start.After(bizNow) {
		return time.Time{}, invalid("time", "time has already passed")
	}

	return start, nil
}
