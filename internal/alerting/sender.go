package alerting

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
)

// ErrNoSender is recorded when a dispatcher has no transport configured.
var ErrNoSender = errors.New("alerting: no sender configured")

// Sender delivers a rendered message over one transport.
type Sender interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// ConsoleSender logs messages instead of delivering them. It is the demo mode
// used when no mail credentials are configured.
type ConsoleSender struct {
	logger zerolog.Logger
}

// NewConsoleSender constructs a ConsoleSender.
func NewConsoleSender(logger zerolog.Logger) *ConsoleSender {
	return &ConsoleSender{logger: logger.With().Str("component", "alert_console").Logger()}
}

// Name implements Sender.
func (c *ConsoleSender) Name() string { return "console" }

// Send implements Sender.
func (c *ConsoleSender) Send(_ context.Context, msg Message) error {
	c.logger.Warn().
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Msg("mail transport not configured; alert logged only\n" + msg.Text)
	return nil
}

var _ Sender = (*ConsoleSender)(nil)
