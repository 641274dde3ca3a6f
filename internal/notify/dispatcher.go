package notify

import (
	"context"
	"log/slog"
)

// LogChannel is the mock mode: it logs the intended send and returns a
// synthetic success marker.
type LogChannel struct {
	name   string
	logger *slog.Logger
}

func NewLogChannel(name string, logger *slog.Logger) *LogChannel {
	return &LogChannel{name: name, logger: logger}
}

func (c *LogChannel) Name() string { return c.name }

func (c *LogChannel) Send(_ context.Context, msg Message) (Result, error) {
	c.logger.Info("mock send",
		"channel", c.name,
		"to", msg.To,
		"subject", msg.Subject,
	)
	return Result{OK: true, ProviderID: "mock"}, nil
}

// Dispatcher fronts the configured channels. It never propagates channel
// errors; a failed send is logged and returned as OK=false.
type Dispatcher struct {
	email  Channel
	sms    Channel
	logger *slog.Logger
}

func NewDispatcher(email, sms Channel, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{email: email, sms: sms, logger: logger}
}

func (d *Dispatcher) SendEmail(ctx context.Context, msg Message) Result {
	return d.send(ctx, d.email, msg)
}

func (d *Dispatcher) SendSMS(ctx context.Context, msg Message) Result {
	return d.send(ctx, d.sms, msg)
}

func (d *Dispatcher) send(ctx context.Context, ch Channel, msg Message) Result {
	res, err := ch.Send(ctx, msg)
	if err != nil {
		d.logger.Error("send failed",
			"channel", ch.Name(),
			"to", msg.To,
			"err", err,
		)
		return Result{OK: false}
	}
	return res
}
