package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/guotingchao/DeltaTransactionSystem/internal/service"
)

// Show prints storage statistics and the currently most volatile items.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show state")
	}
	if closeStore != nil {
		defer closeStore()
	}

	stats, err := store.GetStats(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "items: %d\nprice points: %d\n", stats.TotalItems, stats.TotalPoints)
	if stats.OldestPoint != nil {
		fmt.Fprintf(os.Stdout, "oldest point: %s\n", stats.OldestPoint.UTC().Format(time.RFC3339))
	}
	if stats.NewestPoint != nil {
		fmt.Fprintf(os.Stdout, "newest point: %s\n", stats.NewestPoint.UTC().Format(time.RFC3339))
	}

	svc := service.New(a.Config, nil, store, nil, nil, nil, a.Logger)
	analysis, err := svc.Analyze(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	if len(analysis.AllItems) == 0 {
		fmt.Fprintln(os.Stdout, "no analyzable items in the window")
		return nil
	}

	limit := opts.Limit
	if limit > len(analysis.AllItems) {
		limit = len(analysis.AllItems)
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Name\tCategory\tPrice\tAvg24h\tChange%")

	for _, item := range analysis.AllItems[:limit] {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\n",
			item.Name,
			item.Category,
			item.Price.String(),
			item.Avg24h.String(),
			item.ChangePercent.StringFixed(2),
		)
	}

	writer.Flush()
	return nil
}
