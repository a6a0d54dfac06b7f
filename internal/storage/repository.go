package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	listItemsSQL = `SELECT id, name, category, latest_price, updated_at
    FROM items
    ORDER BY id;`

	getItemSQL = `SELECT id, name, category, latest_price, updated_at
    FROM items
    WHERE id = $1;`

	// One row per item: its newest stored point. This single pass replaces a
	// per-item round trip during reconciliation.
	listLatestPointsSQL = `SELECT DISTINCT ON (item_id)
        item_id, price, recorded_at
    FROM price_points
    ORDER BY item_id, recorded_at DESC;`

	insertItemSQL = `INSERT INTO items (id, name, category, latest_price, updated_at)
    VALUES ($1, $2, $3, $4, $5)
    ON CONFLICT (id) DO NOTHING;`

	updateItemSQL = `UPDATE items
    SET name = $2, latest_price = $3, updated_at = $4
    WHERE id = $1;`

	insertPricePointSQL = `INSERT INTO price_points (item_id, price, recorded_at)
    VALUES ($1, $2, $3)
    ON CONFLICT (item_id, recorded_at) DO NOTHING;`

	listPointsSinceSQL = `SELECT item_id, price, recorded_at
    FROM price_points
    WHERE recorded_at >= $1
      AND recorded_at <= $2
    ORDER BY item_id, recorded_at;`

	listItemHistorySQL = `SELECT item_id, price, recorded_at
    FROM price_points
    WHERE item_id = $1
      AND recorded_at >= $2
      AND recorded_at < $3
    ORDER BY recorded_at;`

	countPointsBeforeSQL = `SELECT COUNT(*) FROM price_points WHERE recorded_at < $1;`

	// Bounded batch delete so a large aged tail never holds a long-running
	// delete. ctid targeting keeps the inner scan cheap.
	deletePointsBeforeSQL = `DELETE FROM price_points
    WHERE ctid IN (
        SELECT ctid FROM price_points
        WHERE recorded_at < $1
        LIMIT $2
    );`

	countItemsSQL  = `SELECT COUNT(*) FROM items;`
	countPointsSQL = `SELECT COUNT(*) FROM price_points;`

	pointBoundsSQL = `SELECT MIN(recorded_at), MAX(recorded_at) FROM price_points;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// ItemStore defines operations on item metadata.
type ItemStore interface {
	ListItems(ctx context.Context) ([]Item, error)
	GetItem(ctx context.Context, id int64) (*Item, error)
	CreateItems(ctx context.Context, items []Item) (int64, error)
	UpdateItem(ctx context.Context, item Item) error
}

// PricePointStore defines operations on the price time series.
type PricePointStore interface {
	ListLatestPoints(ctx context.Context) ([]LatestPoint, error)
	InsertPricePoints(ctx context.Context, points []PricePoint) (int64, error)
	ListPointsBetween(ctx context.Context, from, to time.Time) ([]PricePoint, error)
	ListItemHistory(ctx context.Context, itemID int64, from, to time.Time) ([]PricePoint, error)
}

// PruneStore defines retention operations.
type PruneStore interface {
	CountPointsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeletePointsBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to items and price points.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, key); err != nil {
			// unlock best effort; log omitted in storage package
		}
		conn.Release()
	}
	return unlock, true, nil
}

// ListItems reads all item metadata in one pass.
func (s *Store) ListItems(ctx context.Context) ([]Item, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listItemsSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list items: %w", queryErr)
	}
	defer rows.Close()

	items := make([]Item, 0)
	for rows.Next() {
		item, scanErr := scanItem(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		items = append(items, item)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return items, nil
}

// GetItem fetches a single item, returning nil when it does not exist.
func (s *Store) GetItem(ctx context.Context, id int64) (*Item, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	row := pool.QueryRow(ctx, getItemSQL, id)
	item, scanErr := scanItem(row)
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, scanErr
	}
	return &item, nil
}

// ListLatestPoints returns each item's most recent stored point.
func (s *Store) ListLatestPoints(ctx context.Context) ([]LatestPoint, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listLatestPointsSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list latest points: %w", queryErr)
	}
	defer rows.Close()

	points := make([]LatestPoint, 0)
	for rows.Next() {
		var p LatestPoint
		var priceStr string
		if err := rows.Scan(&p.ItemID, &priceStr, &p.RecordedAt); err != nil {
			return nil, err
		}
		price, convErr := decimal.NewFromString(priceStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse latest price: %w", convErr)
		}
		p.Price = price
		points = append(points, p)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return points, nil
}

// CreateItems bulk-inserts new items, skipping ids that already exist so a
// concurrent writer of the same id never fails the batch. Returns the number
// of rows actually created.
func (s *Store) CreateItems(ctx context.Context, items []Item) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	if len(items) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, item := range items {
		batch.Queue(insertItemSQL, item.ID, item.Name, item.Category, item.LatestPrice.String(), item.UpdatedAt)
	}

	results := pool.SendBatch(ctx, batch)
	defer results.Close()

	var created int64
	for range items {
		tag, execErr := results.Exec()
		if execErr != nil {
			return created, fmt.Errorf("create items: %w", execErr)
		}
		created += tag.RowsAffected()
	}
	return created, nil
}

// UpdateItem overwrites an item's mutable metadata.
func (s *Store) UpdateItem(ctx context.Context, item Item) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, updateItemSQL, item.ID, item.Name, item.LatestPrice.String(), item.UpdatedAt); execErr != nil {
		return fmt.Errorf("update item %d: %w", item.ID, execErr)
	}
	return nil
}

// InsertPricePoints bulk-inserts points, skipping conflicts on
// (item_id, recorded_at) as a backstop behind the reconciler's dedup.
// Returns the number of rows actually inserted.
func (s *Store) InsertPricePoints(ctx context.Context, points []PricePoint) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	if len(points) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, p := range points {
		batch.Queue(insertPricePointSQL, p.ItemID, p.Price.String(), p.RecordedAt)
	}

	results := pool.SendBatch(ctx, batch)
	defer results.Close()

	var inserted int64
	for range points {
		tag, execErr := results.Exec()
		if execErr != nil {
			return inserted, fmt.Errorf("insert price points: %w", execErr)
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}

// ListPointsBetween lists all points within [from, to], ordered by item.
func (s *Store) ListPointsBetween(ctx context.Context, from, to time.Time) ([]PricePoint, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listPointsSinceSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list points between: %w", queryErr)
	}
	defer rows.Close()

	return collectPoints(rows)
}

// ListItemHistory lists one item's points within [from, to).
func (s *Store) ListItemHistory(ctx context.Context, itemID int64, from, to time.Time) ([]PricePoint, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listItemHistorySQL, itemID, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list item history: %w", queryErr)
	}
	defer rows.Close()

	return collectPoints(rows)
}

// CountPointsBefore counts points older than the cutoff.
func (s *Store) CountPointsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countPointsBeforeSQL, cutoff).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count points before: %w", scanErr)
	}
	return count, nil
}

// DeletePointsBefore deletes at most limit points older than the cutoff and
// reports how many were removed.
func (s *Store) DeletePointsBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	tag, execErr := pool.Exec(ctx, deletePointsBeforeSQL, cutoff, limit)
	if execErr != nil {
		return 0, fmt.Errorf("delete points before: %w", execErr)
	}
	return tag.RowsAffected(), nil
}

// GetStats summarises stored history.
func (s *Store) GetStats(ctx context.Context) (Stats, error) {
	pool, err := s.getPool()
	if err != nil {
		return Stats{}, err
	}

	var stats Stats
	if scanErr := pool.QueryRow(ctx, countItemsSQL).Scan(&stats.TotalItems); scanErr != nil {
		return Stats{}, fmt.Errorf("count items: %w", scanErr)
	}
	if scanErr := pool.QueryRow(ctx, countPointsSQL).Scan(&stats.TotalPoints); scanErr != nil {
		return Stats{}, fmt.Errorf("count points: %w", scanErr)
	}

	var oldest, newest *time.Time
	if scanErr := pool.QueryRow(ctx, pointBoundsSQL).Scan(&oldest, &newest); scanErr != nil {
		return Stats{}, fmt.Errorf("point bounds: %w", scanErr)
	}
	stats.OldestPoint = oldest
	stats.NewestPoint = newest

	return stats, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanItem(row scannable) (Item, error) {
	var item Item
	var priceStr string
	if err := row.Scan(&item.ID, &item.Name, &item.Category, &priceStr, &item.UpdatedAt); err != nil {
		return Item{}, err
	}
	price, convErr := decimal.NewFromString(priceStr)
	if convErr != nil {
		return Item{}, fmt.Errorf("parse latest price: %w", convErr)
	}
	item.LatestPrice = price
	return item, nil
}

func collectPoints(rows pgx.Rows) ([]PricePoint, error) {
	points := make([]PricePoint, 0)
	for rows.Next() {
		var p PricePoint
		var priceStr string
		if err := rows.Scan(&p.ItemID, &priceStr, &p.RecordedAt); err != nil {
			return nil, err
		}
		price, convErr := decimal.NewFromString(priceStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse point price: %w", convErr)
		}
		p.Price = price
		points = append(points, p)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return points, nil
}
