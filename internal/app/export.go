package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"github.com/guotingchao/DeltaTransactionSystem/internal/storage"
)

// Export renders one item's price history as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	if opts.ItemID <= 0 {
		return errors.New("--item must be a positive id")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	if closeStore != nil {
		defer closeStore()
	}

	item, err := store.GetItem(ctx, opts.ItemID)
	if err != nil {
		return err
	}
	if item == nil {
		return fmt.Errorf("item %d not found", opts.ItemID)
	}

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.Add(-time.Duration(a.Config.Retention.Days) * 24 * time.Hour)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	points, err := store.ListItemHistory(ctx, opts.ItemID, from, to)
	if err != nil {
		return err
	}
	if len(points) == 0 {
		a.Logger.Info().Int64("item_id", opts.ItemID).Msg("no points found for export window")
		return nil
	}

	downsampled := downsamplePoints(points, opts.MaxPoints)
	a.Logger.Info().
		Str("item", item.Name).
		Int("total", len(points)).
		Int("exported", len(downsampled)).
		Msg("exporting price history")

	if opts.CSVPath != "" {
		if err := writePointsCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writePointsPNG(opts.PNGPath, item.Name, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsamplePoints(points []storage.PricePoint, max int) []storage.PricePoint {
	if max <= 0 || len(points) <= max {
		return points
	}

	result := make([]storage.PricePoint, 0, max)
	step := float64(len(points)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(points) {
			idx = len(points) - 1
		}
		result = append(result, points[idx])
	}
	return result
}

func writePointsCSV(path string, points []storage.PricePoint) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{"recorded_at", "price"}); err != nil {
		return err
	}

	for _, point := range points {
		record := []string{
			point.RecordedAt.Format(time.RFC3339),
			point.Price.String(),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writePointsPNG(path, name string, points []storage.PricePoint) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(points))
	prices := make([]float64, len(points))
	for i, point := range points {
		x[i] = point.RecordedAt
		prices[i] = point.Price.InexactFloat64()
	}

	priceFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.0f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Price",
			ValueFormatter: priceFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    name,
				XValues: x,
				YValues: prices,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
