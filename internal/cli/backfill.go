package cli

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"price-alerts/internal/app"
)

var (
	backfillFrom    string
	backfillTo      string
	backfillDays    int
	backfillDryRun  bool
	backfillWorkers int
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Seed gold history with one daily price from the dated endpoint",
	Long: "Fetches one USD/oz gold price per UTC day from MetalpriceAPI's historical endpoint,\n" +
		"converts it to INR per 10 g at the current FX rate and appends it to price history.",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := backfillWindow(time.Now().UTC())
		if err != nil {
			return err
		}
		return getApp().Backfill(cmd.Context(), opts)
	},
}

func backfillWindow(now time.Time) (app.BackfillOptions, error) {
	opts := app.BackfillOptions{DryRun: backfillDryRun, Workers: backfillWorkers}

	to, err := parseTimeFlag("to", backfillTo)
	if err != nil {
		return opts, err
	}
	if to == nil {
		end := now.Truncate(24 * time.Hour).Add(24 * time.Hour)
		to = &end
	}
	from, err := parseTimeFlag("from", backfillFrom)
	if err != nil {
		return opts, err
	}
	if from == nil {
		if backfillDays <= 0 {
			return opts, errors.New("--days must be positive when --from is omitted")
		}
		start := to.Add(-time.Duration(backfillDays) * 24 * time.Hour)
		from = &start
	}
	if !from.Before(*to) {
		return opts, errors.New("--from must be before --to")
	}

	opts.From, opts.To = *from, *to
	return opts, nil
}

func init() {
	backfillCmd.Flags().StringVar(&backfillFrom, "from", "", "First day (inclusive); overrides --days")
	backfillCmd.Flags().StringVar(&backfillTo, "to", "", "End (exclusive); defaults to tomorrow 00:00 UTC")
	backfillCmd.Flags().IntVar(&backfillDays, "days", 90, "Number of days to backfill when --from is omitted")
	backfillCmd.Flags().BoolVar(&backfillDryRun, "dry-run", false, "Fetch and convert without writing to storage")
	backfillCmd.Flags().IntVar(&backfillWorkers, "workers", 2, "Concurrent requests against the historical endpoint")
}
