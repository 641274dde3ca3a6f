// Package booking orchestrates consultation bookings: validation, atomic
// slot reservation, and the best-effort fan-out (lead linkage, calendar
// sync, confirmation email/SMS) that follows a durable write.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jmcalloway/studiobook/internal/model"
	"github.com/jmcalloway/studiobook/internal/notify"
	"github.com/jmcalloway/studiobook/internal/timeslot"
)

// ConsultationCapacity is the number of simultaneous consultations allowed
// per 30-minute slot.
const ConsultationCapacity = 3

// AppointmentStore is the persisted source of truth for capacity
// accounting. ReserveSlot must perform its count-then-insert atomically.
type AppointmentStore interface {
	ReserveSlot(ctx context.Context, appt *model.Appointment, capacity int) error
	ListActiveBetween(ctx context.Context, apptType string, start, end time.Time) ([]model.Appointment, error)
	Get(ctx context.Context, id string) (model.Appointment, error)
	SetLeadID(ctx context.Context, id, leadID string) error
	SetCalendarEventID(ctx context.Context, id, eventID string) error
	UpdateStatus(ctx context.Context, id, status string) error
}

type LeadStore interface {
	CreateOrLink(ctx context.Context, lead model.Lead) (model.Lead, error)
}

type CommunicationStore interface {
	Append(ctx context.Context, entry model.CommunicationLog) error
}

type CalendarSync interface {
	Enabled() bool
	CreateEvent(ctx context.Context, appt model.Appointment) (string, error)
	DeleteEvent(ctx context.Context, eventID string) error
}

type Request struct {
	Date  string
	Time  string
	Name  string
	Email string
	Phone string
	Notes string
}

type Confirmation struct {
	ID    string
	Date  string
	Time  string
	Name  string
	Email string
}

type DayAvailability struct {
	Date           string
	AvailableSlots []string
	TotalSlots     int
	AvailableCount int
}

type Config struct {
	Capacity        int
	ProviderTimeout time.Duration
	StudioName      string
	SiteBaseURL     string
}

type Service struct {
	store      AppointmentStore
	leads      LeadStore
	comms      CommunicationStore
	cal        CalendarSync
	dispatcher *notify.Dispatcher
	logger     *slog.Logger
	loc        *time.Location
	hours      timeslot.Hours
	cfg        Config
	now        func() time.Time
	background sync.WaitGroup
}

func NewService(store AppointmentStore, leads LeadStore, comms CommunicationStore, cal CalendarSync, dispatcher *notify.Dispatcher, logger *slog.Logger, loc *time.Location, cfg Config) *Service {
	if cfg.Capacity <= 0 {
		cfg.Capacity = ConsultationCapacity
	}
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = 10 * time.Second
	}
	return &Service{
		store:      store,
		leads:      leads,
		comms:      comms,
		cal:        cal,
		dispatcher: dispatcher,
		logger:     logger,
		loc:        loc,
		hours:      timeslot.ConsultationHours(loc),
		cfg:        cfg,
		now:        time.Now,
	}
}

// Book validates and reserves the slot, returning as soon as the
// appointment is durably stored. Calendar sync, notifications, and lead
// linkage run detached; their failures are logged, never surfaced.
func (s *Service) Book(ctx context.Context, req Request) (*Confirmation, error) {
	now := s.now()
	start, verr := s.validate(req, now)
	if verr != nil {
		return nil, verr
	}

	duration := time.Duration(s.hours.DurationMin) * time.Minute
	appt := &model.Appointment{
		ID:              uuid.NewString(),
		Type:            model.TypeConsultation,
		StartTime:       start.UTC(),
		EndTime:         start.Add(duration).UTC(),
		DurationMinutes: s.hours.DurationMin,
		Status:          model.StatusScheduled,
		CustomerName:    req.Name,
		CustomerEmail:   req.Email,
		CustomerPhone:   req.Phone,
		Notes:           req.Notes,
	}

	if err := s.store.ReserveSlot(ctx, appt, s.cfg.Capacity); err != nil {
		if errors.Is(err, ErrSlotFull) {
			return nil, ErrSlotFull
		}
		return nil, fmt.Errorf("reserve slot: %w", err)
	}

	s.background.Add(1)
	go s.fanOut(context.WithoutCancel(ctx), *appt, req)

	return &Confirmation{
		ID:    appt.ID,
		Date:  req.Date,
		Time:  req.Time,
		Name:  req.Name,
		Email: req.Email,
	}, nil
}

// Wait drains in-flight fan-out work. Called on shutdown and by tests.
func (s *Service) Wait() {
	s.background.Wait()
}

// fanOut runs the post-persist side effects. The lead link goes first so
// communication logs can reference the lead id; the rest run concurrently.
// Each step is independently isolated: one failure neither rolls back the
// appointment nor blocks the others.
func (s *Service) fanOut(ctx context.Context, appt model.Appointment, req Request) {
	defer s.background.Done()

	leadCtx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout)
	lead, err := s.leads.CreateOrLink(leadCtx, model.Lead{
		Name:   req.Name,
		Email:  req.Email,
		Phone:  req.Phone,
		Source: "consultation-booking",
	})
	cancel()
	if err != nil {
		s.logger.Error("lead link failed", "booking_id", appt.ID, "err", err)
	} else {
		appt.LeadID = lead.ID
		if err := s.store.SetLeadID(ctx, appt.ID, lead.ID); err != nil {
			s.logger.Error("lead backfill failed", "booking_id", appt.ID, "err", err)
		}
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.syncCalendar(ctx, appt)
	}()
	go func() {
		defer wg.Done()
		s.sendConfirmationEmail(ctx, appt, req)
	}()
	if req.Phone != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.sendConfirmationSMS(ctx, appt, req)
		}()
	}
	wg.Wait()
}

func (s *Service) syncCalendar(ctx context.Context, appt model.Appointment) {
	if !s.cal.Enabled() {
		s.logger.Info("calendar sync skipped (not configured)", "booking_id", appt.ID)
		return
	}
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout)
	defer cancel()

	eventID, err := s.cal.CreateEvent(callCtx, appt)
	if err != nil {
		s.logger.Error("calendar sync failed", "booking_id", appt.ID, "err", err)
		return
	}
	if err := s.store.SetCalendarEventID(ctx, appt.ID, eventID); err != nil {
		s.logger.Error("calendar event id save failed", "booking_id", appt.ID, "err", err)
	}
}

func (s *Service) sendConfirmationEmail(ctx context.Context, appt model.Appointment, req Request) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout)
	defer cancel()

	subject, body := confirmationEmail(req, s.cfg.StudioName, s.cfg.SiteBaseURL)
	res := s.dispatcher.SendEmail(callCtx, notify.Message{To: req.Email, Subject: subject, Body: body})

	status := model.CommSent
	if !res.OK {
		status = model.CommFailed
	}
	entry := model.CommunicationLog{
		LeadID:    appt.LeadID,
		Type:      model.CommEmail,
		Direction: model.DirectionOutbound,
		Subject:   subject,
		Content:   body,
		Status:    status,
		Metadata: map[string]any{
			"booking_id":  appt.ID,
			"provider_id": res.ProviderID,
		},
	}
	if err := s.comms.Append(ctx, entry); err != nil {
		s.logger.Error("communication log write failed", "booking_id", appt.ID, "err", err)
	}
}

func (s *Service) sendConfirmationSMS(ctx context.Context, appt model.Appointment, req Request) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout)
	defer cancel()

	body := confirmationSMS(req, s.cfg.StudioName)
	res := s.dispatcher.SendSMS(callCtx, notify.Message{To: req.Phone, Body: body})

	status := model.CommSent
	if !res.OK {
		status = model.CommFailed
	}
	entry := model.CommunicationLog{
		LeadID:    appt.LeadID,
		Type:      model.CommSMS,
		Direction: model.DirectionOutbound,
		Content:   body,
		Status:    status,
		Metadata: map[string]any{
			"booking_id":  appt.ID,
			"provider_id": res.ProviderID,
		},
	}
	if err := s.comms.Append(ctx, entry); err != nil {
		s.logger.Error("communication log write failed", "booking_id", appt.ID, "err", err)
	}
}

// Availability lists the slots on a date that still have spare capacity.
// Past slots (relative to the business zone) are excluded when the date is
// today.
func (s *Service) Availability(ctx context.Context, date string) (*DayAvailability, error) {
	day, err := time.ParseInLocation(dateLayout, date, s.loc)
	if err != nil {
		return nil, invalid("date", "expected YYYY-MM-DD")
	}

	slots := timeslot.SlotsFor(day, s.hours)
	if len(slots) == 0 {
		return &DayAvailability{Date: date, AvailableSlots: []string{}}, nil
	}

	duration := time.Duration(s.hours.DurationMin) * time.Minute
	dayStart := slots[0].Start
	dayEnd := slots[len(slots)-1].Start.Add(duration)

	appts, err := s.store.ListActiveBetween(ctx, model.TypeConsultation, dayStart.UTC(), dayEnd.UTC())
	if err != nil {
		return nil, fmt.Errorf("load appointments: %w", err)
	}

	bizNow := s.now().In(s.loc)
	today := date == bizNow.Format(dateLayout)

	available := make([]string, 0, len(slots))
	for _, slot := range slots {
		if today && !slot.Start.After(bizNow) {
			continue
		}
		count := 0
		for _, a := range appts {
			if a.Overlaps(slot.Start, slot.Start.Add(duration)) {
				count++
			}
		}
		if count < s.cfg.Capacity {
			available = append(available, slot.Label)
		}
	}

	return &DayAvailability{
		Date:           date,
		AvailableSlots: available,
		TotalSlots:     len(slots),
		AvailableCount: len(available),
	}, nil
}

// Cancel transitions a booking to cancelled and best-effort deletes its
// calendar event. Cancelling an already-cancelled booking is a no-op.
func (s *Service) Cancel(ctx context.Context, id string) error {
	appt, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if appt.Status == model.StatusCancelled {
		return nil
	}
	if err := s.store.UpdateStatus(ctx, id, model.StatusCancelled); err != nil {
		return fmt.Errorf("cancel booking: %w", err)
	}

	if appt.CalendarEventID != "" && s.cal.Enabled() {
		s.background.Add(1)
		go func() {
			defer s.background.Done()
			callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ProviderTimeout)
			defer cancel()
			if err := s.cal.DeleteEvent(callCtx, appt.CalendarEventID); err != nil {
				s.logger.Error("calendar event delete failed", "booking_id", id, "err", err)
			}
		}()
	}
	return nil
}
