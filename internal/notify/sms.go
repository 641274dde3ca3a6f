package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// TwilioSMS posts to the Twilio Messages API. All three credentials are
// required; absence of any one forces the log-only channel instead.
type TwilioSMS struct {
	accountSID string
	authToken  string
	from       string
	baseURL    string
	http       *http.Client
}

func NewTwilioSMS(accountSID, authToken, from string) *TwilioSMS {
	return &TwilioSMS{
		accountSID: strings.TrimSpace(accountSID),
		authToken:  strings.TrimSpace(authToken),
		from:       strings.TrimSpace(from),
		baseURL:    "https://api.twilio.com",
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *TwilioSMS) Name() string { return "sms-twilio" }

func (c *TwilioSMS) Send(ctx context.Context, msg Message) (Result, error) {
	form := url.Values{}
	form.Set("To", msg.To)
	form.Set("From", c.from)
	form.Set("Body", msg.Body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.baseURL, c.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.accountSID, c.authToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, fmt.Errorf("sms provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed struct {
		SID string `json:"sid"`
	}
	_ = json.Unmarshal(body, &parsed)
	return Result{OK: true, ProviderID: parsed.SID}, nil
}
