package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/jmcalloway/studiobook/internal/model"
	"github.com/jmcalloway/studiobook/internal/notify"
	"github.com/jmcalloway/studiobook/internal/ratelimit"
	"github.com/jmcalloway/studiobook/internal/reminder"
)

type memTaskStore struct {
	mu    sync.Mutex
	tasks map[string]*model.FollowUpTask
}

func newMemTaskStore() *memTaskStore {
	return &memTaskStore{tasks: map[string]*model.FollowUpTask{}}
}

func (f *memTaskStore) CreateBatch(_ context.Context, tasks []model.FollowUpTask) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range tasks {
		cp := t
		f.tasks[t.ID] = &cp
	}
	return nil
}

func (f *memTaskStore) FetchDue(_ context.Context, now time.Time, limit int) ([]model.FollowUpTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var due []model.FollowUpTask
	for _, t := range f.tasks {
		if t.Status == model.TaskPending && !t.ScheduledFor.After(now) {
			due = append(due, *t)
			if len(due) == limit {
				break
			}
		}
	}
	return due, nil
}

func (f *memTaskStore) ListByLead(_ context.Context, leadID string) ([]model.FollowUpTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.FollowUpTask
	for _, t := range f.tasks {
		if t.LeadID == leadID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (f *memTaskStore) MarkSent(_ context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.tasks[id]; ok && t.Status == model.TaskPending {
		t.Status = model.TaskSent
		t.SentAt = &at
	}
	return nil
}

func (f *memTaskStore) Reschedule(_ context.Context, id string, attempts int, nextRunAt time.Time, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.tasks[id]; ok && t.Status == model.TaskPending {
		t.Attempts = attempts
		t.ScheduledFor = nextRunAt
		t.LastError = reason
	}
	return nil
}

func (f *memTaskStore) MarkFailed(_ context.Context, id string, attempts int, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.tasks[id]; ok && t.Status == model.TaskPending {
		t.Status = model.TaskFailed
		t.Attempts = attempts
		t.LastError = reason
	}
	return nil
}

type memLeadReader struct {
	leads map[string]model.Lead
}

func (f *memLeadReader) Get(_ context.Context, id string) (model.Lead, error) {
	lead, ok := f.leads[id]
	if !ok {
		return model.Lead{}, fmt.Errorf("lead %s not found", id)
	}
	return lead, nil
}

const adminToken = "test-admin-token"

func adminFixture(t *testing.T, tasks *memTaskStore, leads *memLeadReader) *AdminHandler {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(adminToken), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash token: %v", err)
	}
	if leads == nil {
		leads = &memLeadReader{}
	}
	dispatcher := notify.NewDispatcher(okChannel{}, okChannel{}, testLogger())
	worker := reminder.NewWorker(tasks, leads, &memCommStore{}, dispatcher, testLogger(), reminder.WorkerConfig{})
	scheduler := reminder.NewScheduler(tasks)
	svc := newTestService(t, newMemApptStore())
	return NewAdminHandler(scheduler, worker, svc, hash, testLogger())
}

func adminRequest(action string, extra map[string]any, token string) *http.Request {
	body := map[string]any{"action": action}
	for k, v := range extra {
		body[k] = v
	}
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/leads/follow-up", strings.NewReader(string(raw)))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestAdmin_RejectsBadToken(t *testing.T) {
	h := adminFixture(t, newMemTaskStore(), nil)

	for _, token := range []string{"", "wrong-token"} {
		rec := httptest.NewRecorder()
		h.FollowUps(rec, adminRequest("schedule", map[string]any{"leadIds": []string{"l1"}}, token))
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("token %q: status = %d, want 401", token, rec.Code)
		}
	}
}

func TestAdmin_NoHashRejectsEverything(t *testing.T) {
	dispatcher := notify.NewDispatcher(okChannel{}, okChannel{}, testLogger())
	tasks := newMemTaskStore()
	worker := reminder.NewWorker(tasks, &memLeadReader{}, &memCommStore{}, dispatcher, testLogger(), reminder.WorkerConfig{})
	h := NewAdminHandler(reminder.NewScheduler(tasks), worker, newTestService(t, newMemApptStore()), nil, testLogger())

	rec := httptest.NewRecorder()
	h.FollowUps(rec, adminRequest("get-status", map[string]any{"leadId": "l1"}, adminToken))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 when no hash is configured", rec.Code)
	}
}

func TestAdmin_ScheduleAction(t *testing.T) {
	tasks := newMemTaskStore()
	h := adminFixture(t, tasks, nil)

	rec := httptest.NewRecorder()
	h.FollowUps(rec, adminRequest("schedule", map[string]any{"leadIds": []string{"l1", "l2"}}, adminToken))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Scheduled int      `json:"scheduled"`
		Failed    []string `json:"failed"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Scheduled != 6 {
		t.Fatalf("scheduled = %d, want 6 (three per lead)", resp.Scheduled)
	}
	if len(resp.Failed) != 0 {
		t.Fatalf("failed = %v, want none", resp.Failed)
	}
}

func TestAdmin_SendPendingAction(t *testing.T) {
	tasks := newMemTaskStore()
	past := time.Now().UTC().Add(-time.Hour)
	_ = tasks.CreateBatch(context.Background(), []model.FollowUpTask{
		{ID: "t1", LeadID: "l1", SequenceType: model.SequenceDay1, ScheduledFor: past, Status: model.TaskPending},
	})
	leads := &memLeadReader{leads: map[string]model.Lead{
		"l1": {ID: "l1", Name: "Dana", Email: "dana@example.com"},
	}}
	h := adminFixture(t, tasks, leads)

	rec := httptest.NewRecorder()
	h.FollowUps(rec, adminRequest("send-pending", nil, adminToken))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Sent   int `json:"sent"`
		Failed int `json:"failed"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Sent != 1 || resp.Failed != 0 {
		t.Fatalf("response = %+v, want 1 sent", resp)
	}
}

func TestAdmin_GetStatusAction(t *testing.T) {
	tasks := newMemTaskStore()
	_ = tasks.CreateBatch(context.Background(), []model.FollowUpTask{
		{ID: "t1", LeadID: "l1", SequenceType: model.SequenceDay1, ScheduledFor: time.Now().UTC(), Status: model.TaskPending},
	})
	h := adminFixture(t, tasks, nil)

	rec := httptest.NewRecorder()
	h.FollowUps(rec, adminRequest("get-status", map[string]any{"leadId": "l1"}, adminToken))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		LeadID string     `json:"leadId"`
		Tasks  []taskBody `json:"tasks"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.LeadID != "l1" || len(resp.Tasks) != 1 || resp.Tasks[0].Status != model.TaskPending {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestAdmin_UnknownAction(t *testing.T) {
	h := adminFixture(t, newMemTaskStore(), nil)

	rec := httptest.NewRecorder()
	h.FollowUps(rec, adminRequest("purge-everything", nil, adminToken))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestAdmin_Cancel(t *testing.T) {
	store := newMemApptStore()
	svc := newTestService(t, store)
	bookHandler := NewBookingHandler(svc, openLimiter(), testLogger())

	req := httptest.NewRequest(http.MethodPost, "/consultation/book", strings.NewReader(bookBody("dana@example.com")))
	rec := httptest.NewRecorder()
	bookHandler.ServeHTTP(rec, req)
	svc.Wait()
	var created bookResponse
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode booking: %v", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(adminToken), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash token: %v", err)
	}
	tasks := newMemTaskStore()
	dispatcher := notify.NewDispatcher(okChannel{}, okChannel{}, testLogger())
	worker := reminder.NewWorker(tasks, &memLeadReader{}, &memCommStore{}, dispatcher, testLogger(), reminder.WorkerConfig{})
	admin := NewAdminHandler(reminder.NewScheduler(tasks), worker, svc, hash, testLogger())

	cancelReq := func(id string) *http.Request {
		body := fmt.Sprintf(`{"bookingId":%q}`, id)
		r := httptest.NewRequest(http.MethodPost, "/appointments/cancel", strings.NewReader(body))
		r.Header.Set("Authorization", "Bearer "+adminToken)
		return r
	}

	rec = httptest.NewRecorder()
	admin.Cancel(rec, cancelReq(created.Booking.ID))
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel: status = %d, body %s", rec.Code, rec.Body.String())
	}
	svc.Wait()

	appt, err := store.Get(context.Background(), created.Booking.ID)
	if err != nil {
		t.Fatalf("get appointment: %v", err)
	}
	if appt.Status != model.StatusCancelled {
		t.Fatalf("status = %s, want cancelled", appt.Status)
	}

	// Repeat cancel is a no-op success.
	rec = httptest.NewRecorder()
	admin.Cancel(rec, cancelReq(created.Booking.ID))
	if rec.Code != http.StatusOK {
		t.Fatalf("repeat cancel: status = %d", rec.Code)
	}
}

func TestReminderHandler_SendNow(t *testing.T) {
	tasks := newMemTaskStore()
	dispatcher := notify.NewDispatcher(okChannel{}, okChannel{}, testLogger())
	worker := reminder.NewWorker(tasks, &memLeadReader{}, &memCommStore{}, dispatcher, testLogger(), reminder.WorkerConfig{})
	h := NewReminderHandler(worker, openLimiter(), testLogger())

	body := `{"type":"reminder","name":"Dana","email":"dana@example.com","phone":"+15551234567","sessionDate":"2031-05-20","sessionTime":"2:00 PM"}`
	req := httptest.NewRequest(http.MethodPost, "/booking/send-reminder", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp sendReminderResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || !resp.EmailSent || !resp.SMSSent {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestReminderHandler_MissingFields(t *testing.T) {
	tasks := newMemTaskStore()
	dispatcher := notify.NewDispatcher(okChannel{}, okChannel{}, testLogger())
	worker := reminder.NewWorker(tasks, &memLeadReader{}, &memCommStore{}, dispatcher, testLogger(), reminder.WorkerConfig{})
	h := NewReminderHandler(worker, openLimiter(), testLogger())

	req := httptest.NewRequest(http.MethodPost, "/booking/send-reminder", strings.NewReader(`{"type":"reminder"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestReminderHandler_RateLimited(t *testing.T) {
	tasks := newMemTaskStore()
	dispatcher := notify.NewDispatcher(okChannel{}, okChannel{}, testLogger())
	worker := reminder.NewWorker(tasks, &memLeadReader{}, &memCommStore{}, dispatcher, testLogger(), reminder.WorkerConfig{})
	limiter := ratelimit.NewMemory(ratelimit.Policy{Limit: 1, Window: time.Minute})
	h := NewReminderHandler(worker, limiter, testLogger())

	body := `{"type":"reminder","name":"Dana","email":"dana@example.com","sessionDate":"2031-05-20","sessionTime":"2:00 PM"}`
	first := httptest.NewRequest(http.MethodPost, "/booking/send-reminder", strings.NewReader(body))
	first.RemoteAddr = "10.0.0.9:1234"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, first)
	if rec.Code != http.StatusOK {
		t.Fatalf("first request: status = %d", rec.Code)
	}

	second := httptest.NewRequest(http.MethodPost, "/booking/send-reminder", strings.NewReader(body))
	second.RemoteAddr = "10.0.0.9:1234"
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, second)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: status = %d, want 429", rec.Code)
	}
}
