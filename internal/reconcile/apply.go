package reconcile

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/guotingchao/DeltaTransactionSystem/internal/storage"
)

// PlanWriter receives the three write sub-steps of a plan.
type PlanWriter interface {
	CreateItems(ctx context.Context, items []storage.Item) (int64, error)
	UpdateItem(ctx context.Context, item storage.Item) error
	InsertPricePoints(ctx context.Context, points []storage.PricePoint) (int64, error)
}

// ApplyOptions tune the apply phase.
type ApplyOptions struct {
	// UpdateBatchSize chunks metadata updates so no single burst holds
	// write locks for long.
	UpdateBatchSize int
	// UpdateWorkers bounds the fan-out inside one chunk. Updates target
	// distinct ids, so they are safe to issue concurrently.
	UpdateWorkers int
}

// Result counts the effects of an applied plan.
type Result struct {
	Created       int64
	Updated       int64
	UpdatesFailed int64
	Inserted      int64
}

// Apply executes a plan against the store. Sub-steps are independent: a
// failure is logged and the remaining sub-steps still run, because the
// classification in BuildPlan re-derives the same writes on the next tick.
// No transaction spans the whole phase.
func Apply(ctx context.Context, writer PlanWriter, plan Plan, opts ApplyOptions, logger zerolog.Logger) Result {
	log := logger.With().Str("component", "reconcile_apply").Logger()

	batchSize := opts.UpdateBatchSize
	if batchSize <= 0 {
		batchSize = 50
	}
	workers := opts.UpdateWorkers
	if workers <= 0 {
		workers = 1
	}
	if workers > batchSize {
		workers = batchSize
	}

	var result Result

	if len(plan.NewItems) > 0 {
		created, err := writer.CreateItems(ctx, plan.NewItems)
		result.Created = created
		if err != nil {
			log.Error().Err(err).Int("candidates", len(plan.NewItems)).Msg("failed to create items")
		}
	}

	var updated, updatesFailed atomic.Int64
	for start := 0; start < len(plan.ChangedItems); start += batchSize {
		end := start + batchSize
		if end > len(plan.ChangedItems) {
			end = len(plan.ChangedItems)
		}
		chunk := plan.ChangedItems[start:end]

		group, groupCtx := errgroup.WithContext(ctx)
		group.SetLimit(workers)
		for _, item := range chunk {
			item := item
			group.Go(func() error {
				if err := writer.UpdateItem(groupCtx, item); err != nil {
					log.Error().Err(err).Int64("item_id", item.ID).Msg("failed to update item")
					updatesFailed.Add(1)
					return nil
				}
				updated.Add(1)
				return nil
			})
		}
		_ = group.Wait()
	}
	result.Updated = updated.Load()
	result.UpdatesFailed = updatesFailed.Load()

	if len(plan.NewPoints) > 0 {
		inserted, err := writer.InsertPricePoints(ctx, plan.NewPoints)
		result.Inserted = inserted
		if err != nil {
			log.Error().Err(err).Int("candidates", len(plan.NewPoints)).Msg("failed to insert price points")
		}
	}

	return result
}
