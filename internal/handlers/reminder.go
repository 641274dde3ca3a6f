package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jmcalloway/studiobook/internal/ratelimit"
	"github.com/jmcalloway/studiobook/internal/reminder"
	"github.com/jmcalloway/studiobook/libs/httpx"
)

type ReminderHandler struct {
	worker  *reminder.Worker
	limiter ratelimit.Limiter
	logger  *slog.Logger
}

func NewReminderHandler(worker *reminder.Worker, limiter ratelimit.Limiter, logger *slog.Logger) *ReminderHandler {
	return &ReminderHandler{worker: worker, limiter: limiter, logger: logger}
}

type sendReminderRequest struct {
	LeadID      string `json:"leadId"`
	Type        string `json:"type"`
	SessionDate string `json:"sessionDate"`
	SessionTime string `json:"sessionTime"`
	SessionType string `json:"sessionType"`
	Location    string `json:"location"`
	Notes       string `json:"notes"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Name        string `json:"name"`
}

type sendReminderResponse struct {
	Success   bool `json:"success"`
	EmailSent bool `json:"emailSent"`
	SMSSent   bool `json:"smsSent"`
}

// ServeHTTP handles POST /booking/send-reminder: the on-demand "send a
// reminder now" path for an upcoming session.
func (h *ReminderHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !allow(w, r, h.limiter, "reminder") {
		return
	}

	var req sendReminderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	outcome, err := h.worker.SendNow(r.Context(), reminder.SendRequest{
		LeadID:      strings.TrimSpace(req.LeadID),
		Type:        strings.TrimSpace(req.Type),
		SessionDate: strings.TrimSpace(req.SessionDate),
		SessionTime: strings.TrimSpace(req.SessionTime),
		SessionType: strings.TrimSpace(req.SessionType),
		Location:    strings.TrimSpace(req.Location),
		Notes:       strings.TrimSpace(req.Notes),
		Email:       strings.TrimSpace(req.Email),
		Phone:       strings.TrimSpace(req.Phone),
		Name:        strings.TrimSpace(req.Name),
	})
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	httpx.WriteJSON(w, http.StatusOK, sendReminderResponse{
		Success:   outcome.EmailSent || outcome.SMSSent,
		EmailSent: outcome.EmailSent,
		SMSSent:   outcome.SMSSent,
	})
}
