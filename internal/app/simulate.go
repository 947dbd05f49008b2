package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"price-alerts/internal/alerting"
	"price-alerts/internal/asset"
	"price-alerts/internal/pricing"
	"price-alerts/internal/service"
	"price-alerts/internal/storage"
)

// SimulateOptions describe a synthetic trigger.
type SimulateOptions struct {
	AlertInput
	Price decimal.Decimal
}

// SimulateAlert 以固定价格跑一轮完整的监控周期，命中时通过配置的通道发送告警并记录投递结果。
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting 未启用")
	}
	rule, err := a.validateAlert(opts.AlertInput)
	if err != nil {
		return err
	}
	if !opts.Price.IsPositive() {
		return errors.New("--price 必须大于 0")
	}

	full, err := asset.NewRegistry(a.Config.Assets)
	if err != nil {
		return err
	}
	d, _ := full.Lookup(rule.Symbol)
	registry, err := asset.NewRegistry([]asset.Descriptor{d})
	if err != nil {
		return err
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	var notes storage.NotificationStore
	if store != nil {
		notes = store
		defer closeStore()
	}
	dispatcher, err := a.newDispatcher(ctx, notes)
	if err != nil {
		return err
	}

	static := pricing.StaticPrice{d.Symbol: opts.Price}
	builder := pricing.NewSnapshotBuilder(registry, static, static, pricing.BuilderOptions{Concurrency: 1}, a.Logger)
	recorder := &outcomeRecorder{next: dispatcher}
	svc := service.New(service.Components{
		Builder:    builder,
		Evaluator:  alerting.NewEvaluator(&simulatedRules{rule: rule}, registry, a.Logger),
		Dispatcher: recorder,
	}, a.Logger)

	report, err := svc.RunCycle(ctx)
	if err != nil {
		return err
	}
	if report.Triggered == 0 {
		fmt.Fprintf(a.Out, "not triggered: %s %s %s at %s\n", rule.Symbol, rule.Condition, rule.Threshold, opts.Price)
		return nil
	}

	var errs []error
	for _, out := range recorder.outcomes {
		fmt.Fprintf(a.Out, "status: %s via %s\n", out.Record.Status, out.Record.Transport)
		errs = append(errs, out.SendErr, out.RecordErr)
	}
	return errors.Join(errs...)
}

// simulatedRules holds a single unsaved rule in memory.
type simulatedRules struct {
	mu   sync.Mutex
	rule storage.AlertRule
}

func (s *simulatedRules) ListActiveAlerts(context.Context) ([]storage.AlertRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.rule.Active {
		return nil, nil
	}
	return []storage.AlertRule{s.rule}, nil
}

func (s *simulatedRules) DeactivateAlert(_ context.Context, _ int64, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.rule.Active {
		return false, nil
	}
	s.rule.Active = false
	s.rule.LastTriggeredAt = &at
	return true, nil
}

// outcomeRecorder keeps every outcome so the caller can report it.
type outcomeRecorder struct {
	next     service.AlertDispatcher
	outcomes []alerting.Outcome
}

func (r *outcomeRecorder) Dispatch(ctx context.Context, t alerting.Triggered) alerting.Outcome {
	out := r.next.Dispatch(ctx, t)
	r.outcomes = append(r.outcomes, out)
	return out
}

var (
	_ alerting.RuleStore      = (*simulatedRules)(nil)
	_ service.AlertDispatcher = (*outcomeRecorder)(nil)
)
