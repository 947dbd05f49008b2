package alerting

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"price-alerts/internal/asset"
	"price-alerts/internal/metrics"
	"price-alerts/internal/pricing"
	"price-alerts/internal/storage"
)

// RuleStore is the alert rule access the evaluator needs.
type RuleStore interface {
	ListActiveAlerts(ctx context.Context) ([]storage.AlertRule, error)
	DeactivateAlert(ctx context.Context, id int64, triggeredAt time.Time) (bool, error)
}

// Triggered is a rule whose condition held against a snapshot. The rule has
// already been deactivated when a Triggered value is returned.
type Triggered struct {
	Rule        storage.AlertRule
	Quote       pricing.Quote
	TriggeredAt time.Time
}

// Report summarises one evaluation pass.
type Report struct {
	Active   int
	Matched  int
	Missing  int
	Lost     int
	Failed   int
	Orphaned []int64
}

// Evaluator selects newly satisfied rules and deactivates them.
type Evaluator struct {
	rules    RuleStore
	registry *asset.Registry
	now      func() time.Time
	logger   zerolog.Logger
}

// NewEvaluator constructs an Evaluator. registry may be nil to skip orphan detection.
func NewEvaluator(rules RuleStore, registry *asset.Registry, logger zerolog.Logger) *Evaluator {
	return &Evaluator{
		rules:    rules,
		registry: registry,
		now:      time.Now,
		logger:   logger.With().Str("component", "evaluator").Logger(),
	}
}

// WithClock overrides the time source.
func (e *Evaluator) WithClock(now func() time.Time) *Evaluator {
	e.now = now
	return e
}

// Satisfied reports whether price crosses the rule threshold. Both comparisons are strict.
func Satisfied(rule storage.AlertRule, quote pricing.Quote) bool {
	switch rule.Condition {
	case storage.ConditionAbove:
		return quote.Price.GreaterThan(rule.Threshold)
	case storage.ConditionBelow:
		return quote.Price.LessThan(rule.Threshold)
	default:
		return false
	}
}

// Evaluate compares active rules against snap. A rule is only returned after
// its conditional deactivation succeeded, so it fires at most once until reactivated.
func (e *Evaluator) Evaluate(ctx context.Context, snap *pricing.Snapshot) ([]Triggered, Report, error) {
	var report Report
	rules, err := e.rules.ListActiveAlerts(ctx)
	if err != nil {
		return nil, report, fmt.Errorf("list active alerts: %w", err)
	}
	report.Active = len(rules)

	var out []Triggered
	for _, rule := range rules {
		if e.registry != nil {
			if _, ok := e.registry.Lookup(rule.Symbol); !ok {
				report.Orphaned = append(report.Orphaned, rule.ID)
				e.logger.Warn().Int64("alert_id", rule.ID).Str("symbol", rule.Symbol).
					Msg("alert references an unknown asset")
				continue
			}
		}

		quote, ok := snap.Get(rule.Symbol)
		if !ok {
			report.Missing++
			continue
		}
		if !Satisfied(rule, quote) {
			continue
		}

		at := e.now().UTC()
		flipped, err := e.rules.DeactivateAlert(ctx, rule.ID, at)
		if err != nil {
			// Left active; re-evaluated next cycle.
			report.Failed++
			e.logger.Error().Err(err).Int64("alert_id", rule.ID).Msg("deactivate alert failed")
			continue
		}
		if !flipped {
			report.Lost++
			e.logger.Debug().Int64("alert_id", rule.ID).Msg("alert already inactive")
			continue
		}

		rule.Active = false
		rule.LastTriggeredAt = &at
		report.Matched++
		metrics.AlertsTriggered.WithLabelValues(rule.Symbol, string(rule.Condition)).Inc()
		e.logger.Info().
			Int64("alert_id", rule.ID).
			Str("symbol", rule.Symbol).
			Str("condition", string(rule.Condition)).
			Str("threshold", rule.Threshold.String()).
			Str("price", quote.Price.String()).
			Msg("alert triggered")
		out = append(out, Triggered{Rule: rule, Quote: quote, TriggeredAt: at})
	}

	metrics.OrphanedRules.Set(float64(len(report.Orphaned)))
	return out, report, nil
}
