package app

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"price-alerts/internal/asset"
	"price-alerts/internal/storage"
)

// AlertInput describes a new alert rule.
type AlertInput struct {
	Symbol    string
	Threshold decimal.Decimal
	Condition string
	Email     string
}

func (a *App) validateAlert(in AlertInput) (storage.AlertRule, error) {
	registry, err := asset.NewRegistry(a.Config.Assets)
	if err != nil {
		return storage.AlertRule{}, err
	}
	symbol := strings.ToUpper(strings.TrimSpace(in.Symbol))
	if _, ok := registry.Lookup(symbol); !ok {
		return storage.AlertRule{}, fmt.Errorf("unknown asset %q", in.Symbol)
	}
	cond := storage.Condition(strings.ToLower(in.Condition))
	if !cond.Valid() {
		return storage.AlertRule{}, fmt.Errorf("condition must be above or below, got %q", in.Condition)
	}
	if !in.Threshold.IsPositive() {
		return storage.AlertRule{}, fmt.Errorf("threshold must be greater than zero")
	}
	email := strings.TrimSpace(in.Email)
	if !strings.Contains(email, "@") {
		return storage.AlertRule{}, fmt.Errorf("invalid email %q", in.Email)
	}
	return storage.AlertRule{
		Symbol:    symbol,
		Threshold: in.Threshold,
		Condition: cond,
		Active:    true,
		Email:     email,
	}, nil
}

// AddAlert stores a new active rule. It is picked up by the next cycle.
func (a *App) AddAlert(ctx context.Context, in AlertInput) error {
	rule, err := a.validateAlert(in)
	if err != nil {
		return err
	}

	store, closeStore, err := a.requireStore(ctx, "create alerts")
	if err != nil {
		return err
	}
	defer closeStore()

	created, err := store.CreateAlert(ctx, rule)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "created alert %d: %s %s %s -> %s\n", created.ID, created.Symbol, created.Condition, created.Threshold, created.Email)
	return nil
}

// ListAlerts prints the most recent rules.
func (a *App) ListAlerts(ctx context.Context, limit int) error {
	store, closeStore, err := a.requireStore(ctx, "list alerts")
	if err != nil {
		return err
	}
	defer closeStore()

	rules, err := store.ListAlerts(ctx, limit)
	if err != nil {
		return err
	}
	return a.printAlerts(rules)
}

// ReactivateAlert re-arms a triggered rule.
func (a *App) ReactivateAlert(ctx context.Context, id int64) error {
	store, closeStore, err := a.requireStore(ctx, "reactivate alerts")
	if err != nil {
		return err
	}
	defer closeStore()

	if err := store.ReactivateAlert(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "alert %d reactivated\n", id)
	return nil
}

func (a *App) printAlerts(rules []storage.AlertRule) error {
	if len(rules) == 0 {
		fmt.Fprintln(a.Out, "no alerts found")
		return nil
	}
	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tSymbol\tCondition\tThreshold\tActive\tEmail\tLast Triggered (UTC)")
	for _, r := range rules {
		last := "-"
		if r.LastTriggeredAt != nil {
			last = r.LastTriggeredAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(writer, "%d\t%s\t%s\t%s\t%t\t%s\t%s\n", r.ID, r.Symbol, r.Condition, r.Threshold.String(), r.Active, r.Email, last)
	}
	return writer.Flush()
}
