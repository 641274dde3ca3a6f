// Package calendar syncs appointments to the studio's hosted calendar.
// Sync is best effort: failures are logged by callers and never fail the
// booking that triggered them.
package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/jmcalloway/studiobook/internal/model"
)

const tokenURL = "https://oauth2.googleapis.com/token"

type Config struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	CalendarID   string
	TimeZone     string
}

// Client talks to the calendar REST API with an OAuth refresh-token
// credential. The token source is created once and is safe for concurrent
// use; no per-request mutable client state.
type Client struct {
	cfg     Config
	baseURL string
	source  oauth2.TokenSource
}

func NewClient(ctx context.Context, cfg Config) *Client {
	c := &Client{
		cfg:     cfg,
		baseURL: "https://www.googleapis.com/calendar/v3",
	}
	if !c.Enabled() {
		return c
	}
	oc := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: tokenURL},
	}
	c.source = oc.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})
	return c
}

// Enabled reports whether OAuth credentials and a target calendar are
// configured. A disabled client turns every call into a no-op error so the
// caller logs and moves on.
func (c *Client) Enabled() bool {
	return c.cfg.ClientID != "" && c.cfg.ClientSecret != "" && c.cfg.RefreshToken != "" && c.cfg.CalendarID != ""
}

type eventTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone,omitempty"`
}

type event struct {
	ID          string    `json:"id,omitempty"`
	Summary     string    `json:"summary"`
	Description string    `json:"description,omitempty"`
	Start       eventTime `json:"start"`
	End         eventTime `json:"end"`
}

func (c *Client) CreateEvent(ctx context.Context, appt model.Appointment) (string, error) {
	if !c.Enabled() {
		return "", fmt.Errorf("calendar sync not configured")
	}

	kind := "Consultation"
	if appt.Type == model.TypeSession {
		kind = "Session"
	}
	summary := fmt.Sprintf("%s - %s", kind, appt.CustomerName)
	body := event{
		Summary:     summary,
		Description: appt.Notes,
		Start:       eventTime{DateTime: appt.StartTime.UTC().Format(time.RFC3339), TimeZone: c.cfg.TimeZone},
		End:         eventTime{DateTime: appt.EndTime.UTC().Format(time.RFC3339), TimeZone: c.cfg.TimeZone},
	}

	var created event
	url := fmt.Sprintf("%s/calendars/%s/events", c.baseURL, c.cfg.CalendarID)
	if err := c.do(ctx, http.MethodPost, url, body, &created); err != nil {
		return "", err
	}
	return created.ID, nil
}

func (c *Client) DeleteEvent(ctx context.Context, eventID string) error {
	if !c.Enabled() {
		return fmt.Errorf("calendar sync not configured")
	}
	url := fmt.Sprintf("%s/calendars/%s/events/%s", c.baseURL, c.cfg.CalendarID, eventID)
	return c.do(ctx, http.MethodDelete, url, nil, nil)
}

func (c *Client) do(ctx context.Context, method, url string, in, out any) error {
	var reader io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	httpClient := oauth2.NewClient(ctx, c.source)
	httpClient.Timeout = 10 * time.Second
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("calendar api returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out != nil && len(raw) > 0 {
		return json.Unmarshal(raw, out)
	}
	return nil
}
