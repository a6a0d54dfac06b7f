package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/guotingchao/DeltaTransactionSystem/internal/service"
)

// Report runs one fetch-reconcile-analyze-compose pass outside the
// schedule. With --dry-run the rendered messages are printed instead of
// posted, which is the debugging path for report formatting.
func (a *App) Report(ctx context.Context, opts ReportOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot report")
	}
	if closeStore != nil {
		defer closeStore()
	}

	notifier := a.newNotifier()
	if !opts.DryRun && notifier == nil {
		return errors.New("alerting.webhook_url 未配置，请使用 --dry-run 预览")
	}

	svc := service.New(a.Config, a.newFetcher(), store, store, a.newComposer(), notifier, a.Logger)

	if !opts.DryRun {
		return svc.ProcessTick(ctx, time.Now().UTC())
	}

	now := time.Now().UTC()
	analysis, err := svc.Analyze(ctx, now)
	if err != nil {
		return err
	}
	if analysis.TotalItems == 0 {
		fmt.Fprintln(os.Stdout, "no items stored yet")
		return nil
	}

	messages := a.newComposer().Compose(analysis, now)
	for i, msg := range messages {
		fmt.Fprintf(os.Stdout, "----- part %d/%d (%d bytes) -----\n%s\n", i+1, len(messages), len(msg), msg)
	}
	return nil
}
