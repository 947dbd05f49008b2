package app

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"price-alerts/internal/pricing"
)

// CheckOptions configure the one-shot snapshot.
type CheckOptions struct {
	JSON bool
}

// Check builds one snapshot and prints it. Nothing is persisted.
func (a *App) Check(ctx context.Context, opts CheckOptions) error {
	eng, err := a.newEngine(nil)
	if err != nil {
		return err
	}
	snap := eng.builder.Build(ctx)
	return a.printSnapshot(snap, eng.cacheStates(), opts.JSON)
}

// cacheState is the check-time view of one memoised value.
type cacheState struct {
	Name  string              `json:"name"`
	Entry *pricing.CacheEntry `json:"entry"`
}

func (e *engine) cacheStates() []cacheState {
	var states []cacheState
	for _, c := range []struct {
		name  string
		entry func() (pricing.CacheEntry, bool)
	}{
		{"usd/inr", e.fx.Entry},
		{"gold", e.gold.Entry},
	} {
		state := cacheState{Name: c.name}
		if entry, ok := c.entry(); ok {
			state.Entry = &entry
		}
		states = append(states, state)
	}
	return states
}

func (a *App) printSnapshot(snap *pricing.Snapshot, caches []cacheState, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(a.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Snapshot *pricing.Snapshot `json:"snapshot"`
			Caches   []cacheState      `json:"caches"`
		}{snap, caches})
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Symbol\tName\tPrice\tCurrency\tSource\tOrigin\tTime (UTC)")
	for _, q := range snap.Sorted() {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			q.Symbol,
			q.Name,
			q.Price.String(),
			q.Currency,
			q.Source,
			q.Origin,
			q.Timestamp.UTC().Format(time.RFC3339),
		)
	}
	if degraded := snap.Degraded(); len(degraded) > 0 {
		fmt.Fprintf(writer, "\nserved from fallback: %v\n", degraded)
	}
	if len(caches) > 0 {
		fmt.Fprintln(writer)
	}
	for _, c := range caches {
		if c.Entry == nil {
			fmt.Fprintf(writer, "cache %s:\tempty\n", c.Name)
			continue
		}
		fmt.Fprintf(writer, "cache %s:\t%s\t%s\trefreshed %s\n",
			c.Name, c.Entry.Price.String(), c.Entry.Source, c.Entry.RefreshedAt.UTC().Format(time.RFC3339))
	}
	return writer.Flush()
}
