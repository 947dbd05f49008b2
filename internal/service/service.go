package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"price-alerts/internal/alerting"
	"price-alerts/internal/history"
	"price-alerts/internal/metrics"
	"price-alerts/internal/pricing"
	"price-alerts/internal/scheduler"
	"price-alerts/internal/storage"
)

// ErrHistoryDisabled is returned by read paths when no history store is configured.
var ErrHistoryDisabled = errors.New("price history is not configured")

// SnapshotSource produces one snapshot per cycle.
type SnapshotSource interface {
	Build(ctx context.Context) *pricing.Snapshot
}

// HistoryRecorder persists and reads price history.
type HistoryRecorder interface {
	Append(ctx context.Context, snap *pricing.Snapshot) (int, error)
	Prune(ctx context.Context) (int64, error)
	Window(ctx context.Context, symbol string, window time.Duration, limit int) ([]storage.PriceRow, error)
	Stats(ctx context.Context, symbol string, window time.Duration) (history.Summary, error)
}

// AlertEvaluator selects and deactivates triggered rules.
type AlertEvaluator interface {
	Evaluate(ctx context.Context, snap *pricing.Snapshot) ([]alerting.Triggered, alerting.Report, error)
}

// AlertDispatcher delivers one triggered rule.
type AlertDispatcher interface {
	Dispatch(ctx context.Context, t alerting.Triggered) alerting.Outcome
}

// Components wires the cycle stages. History, Evaluator, Dispatcher and Locker are optional.
type Components struct {
	Scheduler  *scheduler.Scheduler
	Builder    SnapshotSource
	History    HistoryRecorder
	Evaluator  AlertEvaluator
	Dispatcher AlertDispatcher
	Locker     storage.AdvisoryLocker
	LockKey    int64
}

// CycleReport summarises one end-to-end cycle.
type CycleReport struct {
	ID          string        `json:"id"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration"`
	Skipped     bool          `json:"skipped"`
	Assets      int           `json:"assets"`
	Degraded    []string      `json:"degraded,omitempty"`
	RowsWritten int           `json:"rows_written"`
	RowsPruned  int64         `json:"rows_pruned"`
	Triggered   int           `json:"triggered"`
	Sent        int           `json:"sent"`
	Failed      int           `json:"failed"`
	Orphaned    []int64       `json:"orphaned,omitempty"`
	Errors      []string      `json:"errors,omitempty"`
}

// Service orchestrates snapshot, history, evaluation, and dispatch.
type Service struct {
	c       Components
	current atomic.Pointer[pricing.Snapshot]
	last    atomic.Pointer[CycleReport]
	now     func() time.Time
	logger  zerolog.Logger
}

// New constructs the monitoring service.
func New(c Components, logger zerolog.Logger) *Service {
	return &Service{
		c:      c,
		now:    time.Now,
		logger: logger.With().Str("component", "service").Logger(),
	}
}

// Run begins the scheduled cycle loop.
func (s *Service) Run(ctx context.Context) error {
	if s.c.Scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.c.Scheduler.Run(ctx, func(ctx context.Context, _ time.Time) error {
		_, err := s.RunCycle(ctx)
		return err
	})
}

// RunCycle executes Snapshot → History.append → History.prune → Evaluate → Dispatch.
// Store and delivery failures are recorded in the report and never abort the cycle.
func (s *Service) RunCycle(ctx context.Context) (CycleReport, error) {
	started := s.now().UTC()
	report := CycleReport{ID: uuid.NewString(), StartedAt: started}
	logger := s.logger.With().Str("cycle_id", report.ID).Logger()

	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		metrics.Cycles.WithLabelValues("error").Inc()
		return report, err
	}
	if !proceed {
		report.Skipped = true
		metrics.Cycles.WithLabelValues("skipped").Inc()
		logger.Debug().Msg("skip cycle because advisory lock held elsewhere")
		return report, nil
	}
	if unlock != nil {
		defer unlock()
	}

	snap := s.c.Builder.Build(ctx)
	s.current.Store(snap)
	report.Assets = snap.Len()
	report.Degraded = snap.Degraded()

	if s.c.History != nil {
		written, err := s.c.History.Append(ctx, snap)
		if err != nil {
			report.Errors = append(report.Errors, err.Error())
			logger.Error().Err(err).Msg("history append failed; continuing with in-memory snapshot")
		}
		report.RowsWritten = written

		pruned, err := s.c.History.Prune(ctx)
		if err != nil {
			report.Errors = append(report.Errors, err.Error())
			logger.Error().Err(err).Msg("history prune failed")
		}
		report.RowsPruned = pruned
	}

	if s.c.Evaluator != nil {
		triggered, evalReport, err := s.c.Evaluator.Evaluate(ctx, snap)
		if err != nil {
			report.Errors = append(report.Errors, err.Error())
			logger.Error().Err(err).Msg("alert evaluation failed")
		}
		report.Orphaned = evalReport.Orphaned
		report.Triggered = len(triggered)

		for _, t := range triggered {
			if s.c.Dispatcher == nil {
				break
			}
			out := s.c.Dispatcher.Dispatch(ctx, t)
			if out.Record.Status == storage.StatusSent {
				report.Sent++
			} else {
				report.Failed++
			}
		}
	}

	report.Duration = s.now().Sub(started)
	s.last.Store(&report)

	result := "ok"
	if len(report.Errors) > 0 || len(report.Degraded) > 0 {
		result = "degraded"
	}
	metrics.Cycles.WithLabelValues(result).Inc()
	metrics.ObserveSince(metrics.CycleDuration, started)
	metrics.LastCycleTimestamp.Set(float64(started.Unix()))

	logger.Info().
		Int("assets", report.Assets).
		Strs("degraded", report.Degraded).
		Int("rows_written", report.RowsWritten).
		Int64("rows_pruned", report.RowsPruned).
		Int("triggered", report.Triggered).
		Int("sent", report.Sent).
		Int("failed", report.Failed).
		Dur("duration", report.Duration).
		Msg("cycle complete")
	return report, nil
}

// CurrentSnapshot returns the latest snapshot, or nil before the first cycle.
func (s *Service) CurrentSnapshot() *pricing.Snapshot {
	return s.current.Load()
}

// LastCycle returns the report of the most recent completed cycle.
func (s *Service) LastCycle() (CycleReport, bool) {
	r := s.last.Load()
	if r == nil {
		return CycleReport{}, false
	}
	return *r, true
}

// History lists persisted prices for symbol within the trailing window.
func (s *Service) History(ctx context.Context, symbol string, window time.Duration, limit int) ([]storage.PriceRow, error) {
	if s.c.History == nil {
		return nil, ErrHistoryDisabled
	}
	return s.c.History.Window(ctx, symbol, window, limit)
}

// Stats summarises persisted prices for symbol within the trailing window.
func (s *Service) Stats(ctx context.Context, symbol string, window time.Duration) (history.Summary, error) {
	if s.c.History == nil {
		return history.Summary{}, ErrHistoryDisabled
	}
	return s.c.History.Stats(ctx, symbol, window)
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.c.LockKey == 0 || s.c.Locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.c.Locker.TryAdvisoryLock(ctx, s.c.LockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
