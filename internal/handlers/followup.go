package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/jmcalloway/studiobook/internal/booking"
	"github.com/jmcalloway/studiobook/internal/reminder"
	"github.com/jmcalloway/studiobook/internal/storage"
	"github.com/jmcalloway/studiobook/libs/httpx"
)

// AdminHandler serves the operator-only endpoints behind a shared bearer
// token. The token is stored hashed; the plaintext only lives in the
// operator's environment.
type AdminHandler struct {
	scheduler *reminder.Scheduler
	worker    *reminder.Worker
	svc       *booking.Service
	tokenHash []byte
	logger    *slog.Logger
}

func NewAdminHandler(scheduler *reminder.Scheduler, worker *reminder.Worker, svc *booking.Service, tokenHash []byte, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		scheduler: scheduler,
		worker:    worker,
		svc:       svc,
		tokenHash: tokenHash,
		logger:    logger,
	}
}

func (h *AdminHandler) authorized(r *http.Request) bool {
	if len(h.tokenHash) == 0 {
		return false
	}
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok || token == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword(h.tokenHash, []byte(token)) == nil
}

type followUpRequest struct {
	Action  string   `json:"action"`
	LeadIDs []string `json:"leadIds"`
	LeadID  string   `json:"leadId"`
}

type taskBody struct {
	ID           string `json:"id"`
	LeadID       string `json:"leadId"`
	SequenceType string `json:"sequenceType"`
	ScheduledFor string `json:"scheduledFor"`
	Status       string `json:"status"`
	SentAt       string `json:"sentAt,omitempty"`
	Attempts     int    `json:"attempts"`
	LastError    string `json:"lastError,omitempty"`
}

// FollowUps handles POST /leads/follow-up. The action field selects one of
// schedule, send-pending, or get-status.
func (h *AdminHandler) FollowUps(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !h.authorized(r) {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req followUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	switch req.Action {
	case "schedule":
		h.schedule(w, r, req.LeadIDs)
	case "send-pending":
		h.sendPending(w, r)
	case "get-status":
		h.status(w, r, req.LeadID)
	default:
		httpx.WriteError(w, http.StatusBadRequest, "action must be schedule, send-pending, or get-status")
	}
}

func (h *AdminHandler) schedule(w http.ResponseWriter, r *http.Request, leadIDs []string) {
	if len(leadIDs) == 0 {
		httpx.WriteError(w, http.StatusBadRequest, "leadIds is required")
		return
	}

	scheduled := 0
	var failures []string
	for _, id := range leadIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		tasks, err := h.scheduler.Schedule(r.Context(), id)
		if err != nil {
			h.logger.Error("follow-up scheduling failed", "lead_id", id, "err", err)
			failures = append(failures, id)
			continue
		}
		scheduled += len(tasks)
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"scheduled": scheduled,
		"failed":    failures,
	})
}

func (h *AdminHandler) sendPending(w http.ResponseWriter, r *http.Request) {
	summary, err := h.worker.ProcessDue(r.Context())
	if err != nil {
		h.logger.Error("follow-up batch failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to process pending follow-ups")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"sent":   summary.Sent,
		"failed": summary.Failed,
		"errors": summary.Errors,
	})
}

func (h *AdminHandler) status(w http.ResponseWriter, r *http.Request, leadID string) {
	leadID = strings.TrimSpace(leadID)
	if leadID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "leadId is required")
		return
	}

	tasks, err := h.worker.Status(r.Context(), leadID)
	if err != nil {
		h.logger.Error("follow-up status lookup failed", "lead_id", leadID, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to load follow-up status")
		return
	}

	out := make([]taskBody, 0, len(tasks))
	for _, t := range tasks {
		body := taskBody{
			ID:           t.ID,
			LeadID:       t.LeadID,
			SequenceType: t.SequenceType,
			ScheduledFor: t.ScheduledFor.UTC().Format(time.RFC3339),
			Status:       t.Status,
			Attempts:     t.Attempts,
			LastError:    t.LastError,
		}
		if t.SentAt != nil {
			body.SentAt = t.SentAt.UTC().Format(time.RFC3339)
		}
		out = append(out, body)
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"leadId": leadID,
		"tasks":  out,
	})
}

type cancelRequest struct {
	BookingID string `json:"bookingId"`
}

// Cancel handles POST /appointments/cancel. Cancelling an already-cancelled
// booking is a no-op success.
func (h *AdminHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !h.authorized(r) {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if strings.TrimSpace(req.BookingID) == "" {
		httpx.WriteError(w, http.StatusBadRequest, "bookingId is required")
		return
	}

	if err := h.svc.Cancel(r.Context(), strings.TrimSpace(req.BookingID)); err != nil {
		if storage.IsNotFound(err) {
			httpx.WriteError(w, http.StatusNotFound, "booking not found")
			return
		}
		h.logger.Error("cancellation failed", "booking_id", req.BookingID, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to cancel booking")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{"success": true})
}
