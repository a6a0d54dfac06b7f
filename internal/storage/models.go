package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// Item is a monitored market item. The id is the stable key assigned by the
// upstream feed; category is set once at creation and drives report
// bucketing.
type Item struct {
	ID          int64
	Name        string
	Category    string
	LatestPrice decimal.Decimal
	UpdatedAt   time.Time
}

// PricePoint is one immutable observation of an item's price. RecordedAt is
// the timestamp carried by the feed, not the ingestion wall clock. At most
// one point exists per (ItemID, RecordedAt).
type PricePoint struct {
	ItemID     int64
	Price      decimal.Decimal
	RecordedAt time.Time
}

// LatestPoint is the most recent stored point of an item, read in bulk at
// the start of a reconcile pass.
type LatestPoint struct {
	ItemID     int64
	Price      decimal.Decimal
	RecordedAt time.Time
}

// Stats summarises stored history for the show command.
type Stats struct {
	TotalItems  int64
	TotalPoints int64
	OldestPoint *time.Time
	NewestPoint *time.Time
}
