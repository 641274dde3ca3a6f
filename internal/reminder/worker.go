package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jmcalloway/studiobook/internal/model"
	"github.com/jmcalloway/studiobook/internal/notify"
)

type TaskStore interface {
	FetchDue(ctx context.Context, now time.Time, limit int) ([]model.FollowUpTask, error)
	ListByLead(ctx context.Context, leadID string) ([]model.FollowUpTask, error)
	MarkSent(ctx context.Context, id string, at time.Time) error
	// Reschedule keeps the task pending for a bounded retry.
	Reschedule(ctx context.Context, id string, attempts int, nextRunAt time.Time, reason string) error
	// MarkFailed is terminal; the task is never reprocessed.
	MarkFailed(ctx context.Context, id string, attempts int, reason string) error
}

type LeadReader interface {
	Get(ctx context.Context, id string) (model.Lead, error)
}

type CommunicationStore interface {
	Append(ctx context.Context, entry model.CommunicationLog) error
}

// Summary aggregates one worker run for observability.
type Summary struct {
	Sent   int
	Failed int
	Errors []string
}

type WorkerConfig struct {
	BatchSize   int
	MaxAttempts int // 1 means a failed send is terminal (no auto-retry)
	Backoff     time.Duration
	StudioName  string
	SiteBaseURL string
}

// Worker drains due follow-up tasks. Each task is processed independently:
// one failure never aborts the batch.
type Worker struct {
	tasks      TaskStore
	leads      LeadReader
	comms      CommunicationStore
	dispatcher *notify.Dispatcher
	logger     *slog.Logger
	cfg        WorkerConfig
	now        func() time.Time
	running    atomic.Bool
}

func NewWorker(tasks TaskStore, leads LeadReader, comms CommunicationStore, dispatcher *notify.Dispatcher, logger *slog.Logger, cfg WorkerConfig) *Worker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 15 * time.Minute
	}
	return &Worker{
		tasks:      tasks,
		leads:      leads,
		comms:      comms,
		dispatcher: dispatcher,
		logger:     logger,
		cfg:        cfg,
		now:        time.Now,
	}
}

// ProcessDue handles every pending task scheduled at or before now.
// Overlapping runs within one process are collapsed to a no-op.
func (w *Worker) ProcessDue(ctx context.Context) (Summary, error) {
	if !w.running.CompareAndSwap(false, true) {
		return Summary{}, nil
	}
	defer w.running.Store(false)

	ctx, span := otel.Tracer("reminder").Start(ctx, "reminder.process_due")
	defer span.End()

	now := w.now().UTC()
	due, err := w.tasks.FetchDue(ctx, now, w.cfg.BatchSize)
	if err != nil {
		return Summary{}, fmt.Errorf("fetch due tasks: %w", err)
	}

	var summary Summary
	for _, task := range due {
		if err := w.processTask(ctx, task); err != nil {
			summary.Failed++
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", task.ID, err))
			continue
		}
		summary.Sent++
	}

	span.SetAttributes(
		attribute.Int("reminder.sent", summary.Sent),
		attribute.Int("reminder.failed", summary.Failed),
	)
	if len(due) > 0 {
		w.logger.Info("follow-up batch processed", "due", len(due), "sent", summary.Sent, "failed", summary.Failed)
	}
	return summary, nil
}

func (w *Worker) processTask(ctx context.Context, task model.FollowUpTask) error {
	lead, err := w.leads.Get(ctx, task.LeadID)
	if err != nil {
		reason := fmt.Sprintf("lead lookup failed: %v", err)
		if markErr := w.tasks.MarkFailed(ctx, task.ID, task.Attempts+1, reason); markErr != nil {
			w.logger.Error("task finalize failed", "task_id", task.ID, "err", markErr)
		}
		return fmt.Errorf("%s", reason)
	}

	subject, body := followUpContent(task.SequenceType, lead, w.cfg.StudioName, w.cfg.SiteBaseURL)
	res := w.dispatcher.SendEmail(ctx, notify.Message{To: lead.Email, Subject: subject, Body: body})

	w.appendLog(ctx, lead.ID, model.CommEmail, subject, body, res, map[string]any{
		"task_id":       task.ID,
		"sequence_type": task.SequenceType,
	})

	if res.OK {
		if err := w.tasks.MarkSent(ctx, task.ID, w.now().UTC()); err != nil {
			w.logger.Error("task finalize failed", "task_id", task.ID, "err", err)
			return err
		}
		return nil
	}

	attempts := task.Attempts + 1
	if attempts < w.cfg.MaxAttempts {
		nextRun := w.now().UTC().Add(w.cfg.Backoff)
		if err := w.tasks.Reschedule(ctx, task.ID, attempts, nextRun, "send failed"); err != nil {
			w.logger.Error("task reschedule failed", "task_id", task.ID, "err", err)
		}
		return fmt.Errorf("send failed, retrying at %s", nextRun.Format(time.RFC3339))
	}
	if err := w.tasks.MarkFailed(ctx, task.ID, attempts, "send failed"); err != nil {
		w.logger.Error("task finalize failed", "task_id", task.ID, "err", err)
	}
	return fmt.Errorf("send failed")
}

// SendRequest is the on-demand path: an admin-triggered immediate reminder
// or confirmation for a scheduled session, bypassing the pending queue.
type SendRequest struct {
	LeadID      string
	Type        string // reminder | confirmation
	SessionDate string
	SessionTime string
	SessionType string
	Location    string
	Notes       string
	Email       string
	Phone       string
	Name        string
}

type SendOutcome struct {
	EmailSent bool
	SMSSent   bool
}

func (r SendRequest) Validate() error {
	var missing []string
	if strings.TrimSpace(r.Email) == "" {
		missing = append(missing, "email")
	}
	if strings.TrimSpace(r.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(r.SessionDate) == "" {
		missing = append(missing, "sessionDate")
	}
	if strings.TrimSpace(r.SessionTime) == "" {
		missing = append(missing, "sessionTime")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
	}
	if r.Type != model.SequenceReminder && r.Type != model.SequenceConfirmation {
		return fmt.Errorf("type must be reminder or confirmation")
	}
	return nil
}

// SendNow renders and dispatches immediately, reusing the same content and
// logging path as queued tasks.
func (w *Worker) SendNow(ctx context.Context, req SendRequest) (SendOutcome, error) {
	if err := req.Validate(); err != nil {
		return SendOutcome{}, err
	}

	ctx, span := otel.Tracer("reminder").Start(ctx, "reminder.send_now",
		trace.WithAttributes(attribute.String("reminder.type", req.Type)),
	)
	defer span.End()

	var outcome SendOutcome

	subject, body := sessionEmail(req, w.cfg.StudioName)
	emailRes := w.dispatcher.SendEmail(ctx, notify.Message{To: req.Email, Subject: subject, Body: body})
	outcome.EmailSent = emailRes.OK
	w.appendLog(ctx, req.LeadID, model.CommEmail, subject, body, emailRes, map[string]any{
		"send_type": req.Type,
	})

	if strings.TrimSpace(req.Phone) != "" {
		smsBody := sessionSMS(req, w.cfg.StudioName)
		smsRes := w.dispatcher.SendSMS(ctx, notify.Message{To: req.Phone, Body: smsBody})
		outcome.SMSSent = smsRes.OK
		w.appendLog(ctx, req.LeadID, model.CommSMS, "", smsBody, smsRes, map[string]any{
			"send_type": req.Type,
		})
	}

	return outcome, nil
}

// Status returns the follow-up tasks queued for a lead.
func (w *Worker) Status(ctx context.Context, leadID string) ([]model.FollowUpTask, error) {
	return w.tasks.ListByLead(ctx, leadID)
}

func (w *Worker) appendLog(ctx context.Context, leadID, commType, subject, content string, res notify.Result, metadata map[string]any) {
	status := model.CommSent
	if !res.OK {
		status = model.CommFailed
	}
	if res.ProviderID != "" {
		metadata["provider_id"] = res.ProviderID
	}
	entry := model.CommunicationLog{
		LeadID:    leadID,
		Type:      commType,
		Direction: model.DirectionOutbound,
		Subject:   subject,
		Content:   content,
		Status:    status,
		Metadata:  metadata,
	}
	if err := w.comms.Append(ctx, entry); err != nil {
		w.logger.Error("communication log write failed", "lead_id", leadID, "err", err)
	}
}
