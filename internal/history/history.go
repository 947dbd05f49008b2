package history

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"price-alerts/internal/metrics"
	"price-alerts/internal/pricing"
	"price-alerts/internal/storage"
)

// DefaultRetention is how long price rows are kept.
const DefaultRetention = 90 * 24 * time.Hour

// ErrNoData is returned by Stats when the window holds no rows.
var ErrNoData = errors.New("no price history in window")

// Options configure a Recorder.
type Options struct {
	Retention time.Duration
	Now       func() time.Time
}

// Recorder appends snapshots to durable history and prunes old rows.
type Recorder struct {
	store  storage.PriceHistoryStore
	opts   Options
	logger zerolog.Logger
}

// NewRecorder constructs a Recorder backed by store.
func NewRecorder(store storage.PriceHistoryStore, opts Options, logger zerolog.Logger) *Recorder {
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Recorder{
		store:  store,
		opts:   opts,
		logger: logger.With().Str("component", "history").Logger(),
	}
}

// Rows converts a snapshot into history rows, one per quote.
func Rows(snap *pricing.Snapshot) []storage.PriceRow {
	quotes := snap.Sorted()
	rows := make([]storage.PriceRow, 0, len(quotes))
	for _, q := range quotes {
		rows = append(rows, storage.PriceRow{
			Symbol:     q.Symbol,
			Name:       q.Name,
			Currency:   q.Currency,
			Price:      q.Price,
			Source:     q.Source,
			Origin:     string(q.Origin),
			RecordedAt: q.Timestamp,
		})
	}
	return rows
}

// Append writes one row per quote in the snapshot.
func (r *Recorder) Append(ctx context.Context, snap *pricing.Snapshot) (int, error) {
	rows := Rows(snap)
	if len(rows) == 0 {
		return 0, nil
	}
	if err := r.store.InsertPrices(ctx, rows); err != nil {
		return 0, fmt.Errorf("append history: %w", err)
	}
	metrics.HistoryRows.WithLabelValues("written").Add(float64(len(rows)))
	r.logger.Debug().Int("rows", len(rows)).Msg("history appended")
	return len(rows), nil
}

// Prune removes rows older than the retention window.
func (r *Recorder) Prune(ctx context.Context) (int64, error) {
	cutoff := r.opts.Now().Add(-r.opts.Retention)
	removed, err := r.store.PrunePricesBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	if removed > 0 {
		metrics.HistoryRows.WithLabelValues("pruned").Add(float64(removed))
		r.logger.Info().Int64("rows", removed).Time("cutoff", cutoff).Msg("history pruned")
	}
	return removed, nil
}

// Window lists rows for symbol recorded within the trailing window, oldest first.
func (r *Recorder) Window(ctx context.Context, symbol string, window time.Duration, limit int) ([]storage.PriceRow, error) {
	if window <= 0 {
		window = r.opts.Retention
	}
	to := r.opts.Now()
	return r.store.ListPricesBetween(ctx, strings.ToUpper(symbol), to.Add(-window), to, limit)
}

// Summary describes price movement across a window.
type Summary struct {
	Symbol        string          `json:"symbol"`
	Count         int             `json:"count"`
	Min           decimal.Decimal `json:"min"`
	Max           decimal.Decimal `json:"max"`
	Mean          decimal.Decimal `json:"mean"`
	StdDev        decimal.Decimal `json:"stddev"`
	First         decimal.Decimal `json:"first"`
	Last          decimal.Decimal `json:"last"`
	ChangePercent decimal.Decimal `json:"change_percent"`
	From          time.Time       `json:"from"`
	To            time.Time       `json:"to"`
}

// Stats summarises the trailing window for symbol.
func (r *Recorder) Stats(ctx context.Context, symbol string, window time.Duration) (Summary, error) {
	rows, err := r.Window(ctx, symbol, window, 0)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(strings.ToUpper(symbol), rows)
}

// Summarize computes a Summary over rows ordered oldest first.
func Summarize(symbol string, rows []storage.PriceRow) (Summary, error) {
	if len(rows) == 0 {
		return Summary{}, ErrNoData
	}

	data := make(stats.Float64Data, 0, len(rows))
	for _, row := range rows {
		data = append(data, row.Price.InexactFloat64())
	}

	lo, err := data.Min()
	if err != nil {
		return Summary{}, err
	}
	hi, err := data.Max()
	if err != nil {
		return Summary{}, err
	}
	mean, err := data.Mean()
	if err != nil {
		return Summary{}, err
	}
	stddev, err := data.StandardDeviation()
	if err != nil {
		return Summary{}, err
	}

	first := rows[0]
	last := rows[len(rows)-1]
	change := decimal.Zero
	if first.Price.IsPositive() {
		change = last.Price.Sub(first.Price).Div(first.Price).Mul(decimal.NewFromInt(100)).Round(2)
	}

	return Summary{
		Symbol:        symbol,
		Count:         len(rows),
		Min:           decimal.NewFromFloat(lo),
		Max:           decimal.NewFromFloat(hi),
		Mean:          decimal.NewFromFloat(mean).Round(8),
		StdDev:        decimal.NewFromFloat(stddev).Round(8),
		First:         first.Price,
		Last:          last.Price,
		ChangePercent: change,
		From:          first.RecordedAt,
		To:            last.RecordedAt,
	}, nil
}
