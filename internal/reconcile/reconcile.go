// Package reconcile diffs an incoming market snapshot against stored state
// and produces the minimal set of writes needed to absorb it.
package reconcile

import (
	"context"
	"time"

	"github.com/guotingchao/DeltaTransactionSystem/internal/fetcher"
	"github.com/guotingchao/DeltaTransactionSystem/internal/storage"
)

// State is an immutable view of stored items and each item's most recent
// price point, read once at the start of a tick. Classification works
// entirely against this view; a stale read at worst produces a write the
// store's conflict-skip semantics turn into a no-op.
type State struct {
	Items  map[int64]storage.Item
	Latest map[int64]storage.LatestPoint
}

// StateReader supplies the two bulk reads that build a State.
type StateReader interface {
	ListItems(ctx context.Context) ([]storage.Item, error)
	ListLatestPoints(ctx context.Context) ([]storage.LatestPoint, error)
}

// LoadState builds a State in two bulk passes over the store.
func LoadState(ctx context.Context, reader StateReader) (State, error) {
	items, err := reader.ListItems(ctx)
	if err != nil {
		return State{}, err
	}
	latest, err := reader.ListLatestPoints(ctx)
	if err != nil {
		return State{}, err
	}

	state := State{
		Items:  make(map[int64]storage.Item, len(items)),
		Latest: make(map[int64]storage.LatestPoint, len(latest)),
	}
	for _, item := range items {
		state.Items[item.ID] = item
	}
	for _, point := range latest {
		state.Latest[point.ItemID] = point
	}
	return state, nil
}

// Plan is the minimal write set derived from one snapshot.
type Plan struct {
	NewItems     []storage.Item
	ChangedItems []storage.Item
	NewPoints    []storage.PricePoint
}

// IsEmpty reports whether the plan carries no writes.
func (p Plan) IsEmpty() bool {
	return len(p.NewItems) == 0 && len(p.ChangedItems) == 0 && len(p.NewPoints) == 0
}

// BuildPlan classifies every snapshot record against the state view.
//
// Metadata: an unknown id becomes a creation; a known id becomes an update
// only when name or price actually changed, so a near-static catalog
// produces near-zero metadata writes.
//
// Time series: a point is emitted only when the record's timestamp differs
// from the item's newest stored point AND the price differs too. A snapshot
// that repeats an unchanged price under a fresh timestamp is suppressed.
func BuildPlan(records []fetcher.RawItem, state State, now time.Time) Plan {
	var plan Plan

	seenItems := make(map[int64]struct{}, len(records))
	seenPoints := make(map[pointKey]struct{}, len(records))

	for _, record := range records {
		recordTime := time.Unix(record.GetTime, 0).UTC()

		stored, known := state.Items[record.ID]
		if _, dup := seenItems[record.ID]; !dup {
			seenItems[record.ID] = struct{}{}
			if !known {
				plan.NewItems = append(plan.NewItems, storage.Item{
					ID:          record.ID,
					Name:        record.Name,
					Category:    record.Category,
					LatestPrice: record.Price,
					UpdatedAt:   now,
				})
			} else if stored.Name != record.Name || !stored.LatestPrice.Equal(record.Price) {
				changed := stored
				changed.Name = record.Name
				changed.LatestPrice = record.Price
				changed.UpdatedAt = now
				plan.ChangedItems = append(plan.ChangedItems, changed)
			}
		}

		key := pointKey{id: record.ID, unix: recordTime.Unix()}
		if _, dup := seenPoints[key]; dup {
			continue
		}
		seenPoints[key] = struct{}{}

		if latest, ok := state.Latest[record.ID]; ok {
			if latest.RecordedAt.Equal(recordTime) || latest.Price.Equal(record.Price) {
				continue
			}
		}

		plan.NewPoints = append(plan.NewPoints, storage.PricePoint{
			ItemID:     record.ID,
			Price:      record.Price,
			RecordedAt: recordTime,
		})
	}

	return plan
}

type pointKey struct {
	id   int64
	unix int64
}
