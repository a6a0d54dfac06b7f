// Package analyzer computes rolling-window trend statistics over stored
// price history.
package analyzer

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/guotingchao/DeltaTransactionSystem/internal/storage"
)

var hundred = decimal.NewFromInt(100)

// AnalyzedItem is one item's trend snapshot for the current tick.
type AnalyzedItem struct {
	ID            int64
	Name          string
	Category      string
	Price         decimal.Decimal
	Avg24h        decimal.Decimal
	ChangePercent decimal.Decimal
}

// MarketAnalysis is the full per-tick analysis, discarded once the report
// has been composed.
type MarketAnalysis struct {
	AllItems   []AnalyzedItem
	TopGainers []AnalyzedItem
	TopLosers  []AnalyzedItem
	TotalItems int
}

// Options tune the analysis window and convenience slice size.
type Options struct {
	Window  time.Duration
	TopSize int
}

// Analyze computes each item's rolling average and percentage deviation
// over points within [now-window, now].
//
// Items without a single point in the window are excluded entirely: absence
// of recent data is not the same as no change. An item whose window average
// is exactly zero is excluded too, never reported as an infinite move.
func Analyze(items []storage.Item, points []storage.PricePoint, now time.Time, opts Options) MarketAnalysis {
	window := opts.Window
	if window <= 0 {
		window = 24 * time.Hour
	}
	topSize := opts.TopSize
	if topSize <= 0 {
		topSize = 5
	}

	from := now.Add(-window)

	sums := make(map[int64]decimal.Decimal, len(items))
	counts := make(map[int64]int64, len(items))
	for _, p := range points {
		if p.RecordedAt.Before(from) || p.RecordedAt.After(now) {
			continue
		}
		sums[p.ItemID] = sums[p.ItemID].Add(p.Price)
		counts[p.ItemID]++
	}

	analyzed := make([]AnalyzedItem, 0, len(items))
	for _, item := range items {
		n := counts[item.ID]
		if n == 0 {
			continue
		}

		avg := sums[item.ID].Div(decimal.NewFromInt(n))
		if avg.IsZero() {
			continue
		}

		change := item.LatestPrice.Sub(avg).Div(avg).Mul(hundred).Round(2)

		analyzed = append(analyzed, AnalyzedItem{
			ID:            item.ID,
			Name:          item.Name,
			Category:      item.Category,
			Price:         item.LatestPrice,
			Avg24h:        avg.Round(0),
			ChangePercent: change,
		})
	}

	sort.SliceStable(analyzed, func(i, j int) bool {
		cmp := analyzed[i].ChangePercent.Cmp(analyzed[j].ChangePercent)
		if cmp != 0 {
			return cmp > 0
		}
		return analyzed[i].Name < analyzed[j].Name
	})

	return MarketAnalysis{
		AllItems:   analyzed,
		TopGainers: topGainers(analyzed, topSize),
		TopLosers:  topLosers(analyzed, topSize),
		TotalItems: len(items),
	}
}

func topGainers(sorted []AnalyzedItem, n int) []AnalyzedItem {
	if len(sorted) < n {
		n = len(sorted)
	}
	out := make([]AnalyzedItem, n)
	copy(out, sorted[:n])
	return out
}

// topLosers returns the tail of the descending ranking, worst decline first.
func topLosers(sorted []AnalyzedItem, n int) []AnalyzedItem {
	if len(sorted) < n {
		n = len(sorted)
	}
	out := make([]AnalyzedItem, 0, n)
	for i := len(sorted) - 1; i >= len(sorted)-n; i-- {
		out = append(out, sorted[i])
	}
	return out
}
