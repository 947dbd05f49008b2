package app

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"price-alerts/internal/storage"
)

// Show prints recent price history, the newest row per asset, or the notification log.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.requireStore(ctx, "show history")
	if err != nil {
		return err
	}
	defer closeStore()

	if opts.Notifications {
		records, err := store.ListRecentNotifications(ctx, opts.Limit)
		if err != nil {
			return err
		}
		return a.printNotifications(records)
	}

	var rows []storage.PriceRow
	if opts.Latest {
		rows, err = store.LatestPrices(ctx)
	} else {
		rows, err = store.ListRecentPrices(ctx, opts.Limit)
	}
	if err != nil {
		return err
	}
	return a.printPrices(rows)
}

func (a *App) printPrices(rows []storage.PriceRow) error {
	if len(rows) == 0 {
		fmt.Fprintln(a.Out, "no prices found")
		return nil
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tSymbol\tPrice\tCurrency\tSource\tOrigin")
	for _, row := range rows {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%s\n",
			row.RecordedAt.UTC().Format(time.RFC3339),
			row.Symbol,
			row.Price.String(),
			row.Currency,
			row.Source,
			row.Origin,
		)
	}
	return writer.Flush()
}

func (a *App) printNotifications(records []storage.NotificationRecord) error {
	if len(records) == 0 {
		fmt.Fprintln(a.Out, "no notifications found")
		return nil
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Sent (UTC)\tAlert\tSymbol\tCondition\tThreshold\tPrice\tStatus\tTransport\tError")
	for _, rec := range records {
		alertID := "-"
		if rec.AlertID != nil {
			alertID = fmt.Sprint(*rec.AlertID)
		}
		errMsg := ""
		if rec.Error != nil {
			errMsg = sanitizeInline(*rec.Error)
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			rec.SentAt.UTC().Format(time.RFC3339),
			alertID,
			rec.Symbol,
			rec.Condition,
			rec.Threshold.String(),
			rec.Price.String(),
			rec.Status,
			rec.Transport,
			errMsg,
		)
	}
	return writer.Flush()
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
