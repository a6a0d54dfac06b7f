package app

import (
	"context"
	"errors"
	"time"

	"github.com/guotingchao/DeltaTransactionSystem/internal/service"
)

// Prune runs one manual retention pass, optionally overriding the configured
// horizon.
func (a *App) Prune(ctx context.Context, opts PruneOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot prune")
	}
	if closeStore != nil {
		defer closeStore()
	}

	svc := service.New(a.Config, nil, store, store, nil, nil, a.Logger)

	deleted, err := svc.Prune(ctx, time.Now().UTC(), opts.RetentionDays)
	if err != nil {
		return err
	}

	a.Logger.Info().Int64("deleted", deleted).Msg("manual prune finished")
	return nil
}
