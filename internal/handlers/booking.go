// Package handlers exposes the HTTP surface: public booking and
// availability, the on-demand session reminder, and the admin follow-up
// actions.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jmcalloway/studiobook/internal/booking"
	"github.com/jmcalloway/studiobook/internal/ratelimit"
	"github.com/jmcalloway/studiobook/libs/httpx"
)

type BookingHandler struct {
	svc     *booking.Service
	limiter ratelimit.Limiter
	logger  *slog.Logger
}

func NewBookingHandler(svc *booking.Service, limiter ratelimit.Limiter, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{svc: svc, limiter: limiter, logger: logger}
}

// ServeHTTP routes /consultation/book: POST books, GET lists availability.
func (h *BookingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.book(w, r)
	case http.MethodGet:
		h.availability(w, r)
	default:
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

type bookRequest struct {
	Date  string `json:"date"`
	Time  string `json:"time"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
	Notes string `json:"notes"`
}

type bookResponse struct {
	Booking bookingBody `json:"booking"`
}

type bookingBody struct {
	ID    string `json:"id"`
	Date  string `json:"date"`
	Time  string `json:"time"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (h *BookingHandler) book(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, h.limiter, "book") {
		return
	}

	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	conf, err := h.svc.Book(r.Context(), booking.Request{
		Date:  strings.TrimSpace(req.Date),
		Time:  strings.TrimSpace(req.Time),
		Name:  strings.TrimSpace(req.Name),
		Email: strings.TrimSpace(req.Email),
		Phone: strings.TrimSpace(req.Phone),
		Notes: strings.TrimSpace(req.Notes),
	})
	if err != nil {
		var verr *booking.ValidationError
		switch {
		case errors.As(err, &verr):
			httpx.WriteJSON(w, http.StatusBadRequest, map[string]string{
				"error": verr.Reason,
				"field": verr.Field,
			})
		case errors.Is(err, booking.ErrSlotFull):
			httpx.WriteError(w, http.StatusConflict, "this time slot is fully booked, please choose another")
		default:
			h.logger.Error("booking failed", "err", err)
			httpx.WriteError(w, http.StatusInternalServerError, "failed to create booking")
		}
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, bookResponse{Booking: bookingBody{
		ID:    conf.ID,
		Date:  conf.Date,
		Time:  conf.Time,
		Name:  conf.Name,
		Email: conf.Email,
	}})
}

type availabilityResponse struct {
	Date           string   `json:"date"`
	AvailableSlots []string `json:"availableSlots"`
	TotalSlots     int      `json:"totalSlots"`
	AvailableCount int      `json:"availableCount"`
}

func (h *BookingHandler) availability(w http.ResponseWriter, r *http.Request) {
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if date == "" {
		httpx.WriteError(w, http.StatusBadRequest, "date is required")
		return
	}

	day, err := h.svc.Availability(r.Context(), date)
	if err != nil {
		var verr *booking.ValidationError
		if errors.As(err, &verr) {
			httpx.WriteError(w, http.StatusBadRequest, verr.Reason)
			return
		}
		h.logger.Error("availability lookup failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to load availability")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, availabilityResponse{
		Date:           day.Date,
		AvailableSlots: day.AvailableSlots,
		TotalSlots:     day.TotalSlots,
		AvailableCount: day.AvailableCount,
	})
}

// allow applies admission control keyed by (action, client IP) and writes
// the 429 response itself when the window is exhausted.
func allow(w http.ResponseWriter, r *http.Request, limiter ratelimit.Limiter, action string) bool {
	key := action + ":" + httpx.ClientIP(r)
	res, err := limiter.Allow(r.Context(), key)
	if err != nil {
		// Fail open when the limiter backend is unavailable.
		return true
	}
	if res.Allowed {
		return true
	}

	now := time.Now()
	retryAfter := res.RetryAfter(now)
	w.Header().Set("Retry-After", fmt.Sprintf("%d", int(retryAfter.Seconds())+1))
	httpx.WriteJSON(w, http.StatusTooManyRequests, map[string]any{
		"error":           "too many requests, please try again later",
		"remainingTimeMs": retryAfter.Milliseconds(),
		"resetAt":         res.ResetAt.UTC().Format(time.RFC3339),
	})
	return false
}
