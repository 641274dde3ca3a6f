package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type errorChannel struct{}

func (errorChannel) Name() string { return "boom" }

func (errorChannel) Send(context.Context, Message) (Result, error) {
	return Result{}, errors.New("always fails")
}

func TestDispatcher_SwallowsChannelErrors(t *testing.T) {
	d := NewDispatcher(errorChannel{}, errorChannel{}, discardLogger())

	if res := d.SendEmail(context.Background(), Message{To: "a@example.com"}); res.OK {
		t.Fatal("failed email send should report OK=false")
	}
	if res := d.SendSMS(context.Background(), Message{To: "+15550000000"}); res.OK {
		t.Fatal("failed sms send should report OK=false")
	}
}

func TestLogChannel_AlwaysSucceeds(t *testing.T) {
	c := NewLogChannel("email", discardLogger())
	res, err := c.Send(context.Background(), Message{To: "a@example.com", Subject: "hi"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !res.OK || res.ProviderID != "mock" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestAPIEmail_Send(t *testing.T) {
	var got apiEmailRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg-123"}`))
	}))
	defer srv.Close()

	c := NewAPIEmail(srv.URL, "secret-key", "bookings@studio.test")
	res, err := c.Send(context.Background(), Message{
		To:      "dana@example.com",
		Subject: "Confirmed",
		Body:    "<p>See you soon</p>",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !res.OK || res.ProviderID != "msg-123" {
		t.Fatalf("unexpected result %+v", res)
	}
	if auth != "Bearer secret-key" {
		t.Fatalf("authorization = %q", auth)
	}
	if got.From != "bookings@studio.test" || got.To != "dana@example.com" || got.HTML == "" {
		t.Fatalf("unexpected payload %+v", got)
	}
}

func TestAPIEmail_ProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "invalid recipient", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	c := NewAPIEmail(srv.URL, "key", "bookings@studio.test")
	if _, err := c.Send(context.Background(), Message{To: "bad"}); err == nil {
		t.Fatal("expected error on non-2xx response")
	}
}

func TestTwilioSMS_Send(t *testing.T) {
	var form map[string]string
	var path, user, pass string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		user, pass, _ = r.BasicAuth()
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		form = map[string]string{
			"To":   r.PostFormValue("To"),
			"From": r.PostFormValue("From"),
			"Body": r.PostFormValue("Body"),
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM123"}`))
	}))
	defer srv.Close()

	c := NewTwilioSMS("AC42", "tok", "+15559999999")
	c.baseURL = srv.URL

	res, err := c.Send(context.Background(), Message{To: "+15551234567", Body: "Reminder"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !res.OK || res.ProviderID != "SM123" {
		t.Fatalf("unexpected result %+v", res)
	}
	if path != "/2010-04-01/Accounts/AC42/Messages.json" {
		t.Fatalf("path = %s", path)
	}
	if user != "AC42" || pass != "tok" {
		t.Fatalf("basic auth = %s:%s", user, pass)
	}
	if form["To"] != "+15551234567" || form["From"] != "+15559999999" || form["Body"] != "Reminder" {
		t.Fatalf("unexpected form %+v", form)
	}
}

func TestTwilioSMS_ProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"code":21211}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewTwilioSMS("AC42", "tok", "+15559999999")
	c.baseURL = srv.URL

	if _, err := c.Send(context.Background(), Message{To: "garbage"}); err == nil {
		t.Fatal("expected error on non-2xx response")
	}
}
