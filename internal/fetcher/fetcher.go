package fetcher

import (
	"context"

	"github.com/shopspring/decimal"
)

// RawItem is one record of the upstream bulk snapshot.
type RawItem struct {
	ID       int64           `json:"id"`
	GetTime  int64           `json:"is_get_time"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Category string          `json:"secondClassCN"`
}

// SnapshotFetcher retrieves one bulk snapshot of the market feed.
type SnapshotFetcher interface {
	FetchSnapshot(ctx context.Context) ([]RawItem, error)
}
