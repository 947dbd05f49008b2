package alerting

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"price-alerts/internal/metrics"
	"price-alerts/internal/storage"
)

// DispatcherOptions tune delivery.
type DispatcherOptions struct {
	SendTimeout time.Duration
	// RecordTimeout bounds the audit insert, which outlives cancellation of the dispatch context.
	RecordTimeout time.Duration
	// Mirror receives a best-effort copy of every alert; its result never
	// changes the recorded outcome.
	Mirror Sender
	Now    func() time.Time
}

// Outcome is the result of one dispatch attempt.
type Outcome struct {
	Record  storage.NotificationRecord
	SendErr error
	// RecordErr is set when the audit row could not be persisted.
	RecordErr error
}

// Dispatcher sends triggered alerts and records every attempt.
type Dispatcher struct {
	sender Sender
	store  storage.NotificationStore
	opts   DispatcherOptions
	logger zerolog.Logger
}

// NewDispatcher constructs a Dispatcher. store may be nil when persistence is disabled.
func NewDispatcher(sender Sender, store storage.NotificationStore, opts DispatcherOptions, logger zerolog.Logger) *Dispatcher {
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 20 * time.Second
	}
	if opts.RecordTimeout <= 0 {
		opts.RecordTimeout = 5 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Dispatcher{
		sender: sender,
		store:  store,
		opts:   opts,
		logger: logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Transport names the primary sender.
func (d *Dispatcher) Transport() string {
	if d.sender == nil {
		return "none"
	}
	return d.sender.Name()
}

// Dispatch delivers t once and writes exactly one NotificationRecord. Failures are not retried.
func (d *Dispatcher) Dispatch(ctx context.Context, t Triggered) Outcome {
	rule := t.Rule
	alertID := rule.ID
	rec := storage.NotificationRecord{
		AlertID:   &alertID,
		Symbol:    rule.Symbol,
		AssetName: t.Quote.Name,
		Currency:  t.Quote.Currency,
		Threshold: rule.Threshold,
		Price:     t.Quote.Price,
		Condition: rule.Condition,
		Status:    storage.StatusSent,
		Transport: d.Transport(),
	}
	if rule.ID == 0 {
		rec.AlertID = nil
	}

	msg, sendErr := Render(t)
	rendered := sendErr == nil
	switch {
	case !rendered:
	case d.sender == nil:
		sendErr = ErrNoSender
	default:
		sendErr = d.send(ctx, d.sender, msg)
	}
	rec.SentAt = d.opts.Now().UTC()
	if sendErr != nil {
		text := sendErr.Error()
		rec.Status = storage.StatusFailed
		rec.Error = &text
		d.logger.Error().Err(sendErr).Int64("alert_id", rule.ID).Str("to", rule.Email).Msg("alert delivery failed")
	} else {
		d.logger.Info().Int64("alert_id", rule.ID).Str("to", rule.Email).Str("transport", rec.Transport).Msg("alert delivered")
	}
	metrics.Notifications.WithLabelValues(rec.Transport, string(rec.Status)).Inc()

	out := Outcome{Record: rec, SendErr: sendErr}
	if d.store != nil {
		// The rule is already inactive, so the audit row must land even during shutdown.
		recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.opts.RecordTimeout)
		saved, err := d.store.InsertNotification(recordCtx, rec)
		cancel()
		if err != nil {
			out.RecordErr = err
			d.logger.Error().Err(err).Int64("alert_id", rule.ID).Msg("record notification failed")
		} else {
			out.Record = saved
		}
	}

	if d.opts.Mirror != nil && rendered {
		if err := d.send(ctx, d.opts.Mirror, msg); err != nil {
			d.logger.Warn().Err(err).Str("mirror", d.opts.Mirror.Name()).Msg("mirror delivery failed")
		}
	}
	return out
}

func (d *Dispatcher) send(ctx context.Context, sender Sender, msg Message) error {
	ctx, cancel := context.WithTimeout(ctx, d.opts.SendTimeout)
	defer cancel()
	return sender.Send(ctx, msg)
}
