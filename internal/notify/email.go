package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/wneessen/go-mail"
)

// APIEmail sends through a transactional-email HTTP API (bearer key,
// JSON from/to/subject/html).
type APIEmail struct {
	url    string
	apiKey string
	from   string
	http   *http.Client
}

func NewAPIEmail(url, apiKey, from string) *APIEmail {
	return &APIEmail{
		url:    strings.TrimSpace(url),
		apiKey: strings.TrimSpace(apiKey),
		from:   strings.TrimSpace(from),
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *APIEmail) Name() string { return "email-api" }

type apiEmailRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

type apiEmailResponse struct {
	ID string `json:"id"`
}

func (c *APIEmail) Send(ctx context.Context, msg Message) (Result, error) {
	raw, err := json.Marshal(apiEmailRequest{
		From:    c.from,
		To:      msg.To,
		Subject: msg.Subject,
		HTML:    msg.Body,
	})
	if err != nil {
		return Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(raw))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, fmt.Errorf("email provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed apiEmailResponse
	_ = json.Unmarshal(body, &parsed)
	return Result{OK: true, ProviderID: parsed.ID}, nil
}

// SMTPEmail relays through a plain SMTP host (dev relay mode).
type SMTPEmail struct {
	host string
	port int
	from string
}

func NewSMTPEmail(host, port, from string) *SMTPEmail {
	p, err := strconv.Atoi(strings.TrimSpace(port))
	if err != nil || p <= 0 {
		p = 1025
	}
	return &SMTPEmail{host: strings.TrimSpace(host), port: p, from: strings.TrimSpace(from)}
}

func (c *SMTPEmail) Name() string { return "email-smtp" }

func (c *SMTPEmail) Send(ctx context.Context, msg Message) (Result, error) {
	m := mail.NewMsg()
	if err := m.From(c.from); err != nil {
		return Result{}, err
	}
	if err := m.To(msg.To); err != nil {
		return Result{}, err
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextHTML, msg.Body)

	client, err := mail.NewClient(c.host,
		mail.WithPort(c.port),
		mail.WithTLSPolicy(mail.NoTLS),
	)
	if err != nil {
		return Result{}, err
	}
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return Result{}, err
	}
	return Result{OK: true, ProviderID: "smtp"}, nil
}
