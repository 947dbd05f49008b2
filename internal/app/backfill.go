package app

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"price-alerts/internal/asset"
	"price-alerts/internal/fetcher"
	"price-alerts/internal/pricing"
	"price-alerts/internal/storage"
)

const backfillSource = "metalprice:historical"

type historicalSource interface {
	FetchOn(ctx context.Context, d asset.Descriptor, day time.Time) (decimal.Decimal, error)
}

// Backfill loads daily gold prices for [From, To) into history, one row per day.
func (a *App) Backfill(ctx context.Context, opts BackfillOptions) error {
	start := alignForward(opts.From.UTC(), 24*time.Hour)
	end := opts.To.UTC()
	if !start.Before(end) {
		return errors.New("回填范围为空，请检查 --from/--to")
	}

	eng, err := a.newEngine(nil)
	if err != nil {
		return err
	}
	gold, ok := eng.registry.Lookup(asset.GoldSymbol)
	if !ok {
		return errors.New("gold is not configured as an asset")
	}

	var store *storage.Store
	if opts.DryRun {
		a.Logger.Warn().Msg("回填 dry-run：不会写入数据库")
	} else {
		var closeStore func()
		store, closeStore, err = a.requireStore(ctx, "backfill")
		if err != nil {
			return err
		}
		defer closeStore()
	}

	var days []time.Time
	for day := start; day.Before(end); day = day.Add(24 * time.Hour) {
		days = append(days, day)
	}

	// Historical days are converted at today's USD/INR rate.
	convert := fetcher.OunceUSDToTenGramsINR(eng.fx)
	rows, failed := a.collectBackfill(ctx, eng.metalPrice, convert, gold, days, opts.Workers)
	if err := ctx.Err(); err != nil {
		return err
	}

	if store != nil && len(rows) > 0 {
		if err := store.InsertPrices(ctx, rows); err != nil {
			return err
		}
	}

	a.Logger.Info().Int("processed", len(rows)).Int("failed", failed).Bool("dry_run", opts.DryRun).Msg("回填完成")
	if failed > 0 {
		return errors.New("部分日期回填失败，请检查日志")
	}
	return nil
}

func (a *App) collectBackfill(ctx context.Context, source historicalSource, convert fetcher.ConvertFunc, d asset.Descriptor, days []time.Time, workers int) ([]storage.PriceRow, int) {
	if workers <= 0 {
		workers = 1
	}

	var (
		mu     sync.Mutex
		rows   []storage.PriceRow
		failed int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, day := range days {
		day := day
		g.Go(func() error {
			price, err := source.FetchOn(gctx, d, day)
			if err == nil {
				price, err = convert(gctx, price)
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				a.Logger.Error().Err(err).Time("day", day).Msg("回填失败")
				return nil
			}
			rows = append(rows, storage.PriceRow{
				Symbol:     d.Symbol,
				Name:       d.Name,
				Currency:   d.Currency,
				Price:      price,
				Source:     backfillSource,
				Origin:     string(pricing.OriginLive),
				RecordedAt: day,
			})
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(rows, func(i, j int) bool { return rows[i].RecordedAt.Before(rows[j].RecordedAt) })
	return rows, failed
}

func alignForward(t time.Time, interval time.Duration) time.Time {
	truncated := t.Truncate(interval)
	if truncated.Before(t) {
		return truncated.Add(interval)
	}
	return truncated
}
