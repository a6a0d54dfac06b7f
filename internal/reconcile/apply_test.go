package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/guotingchao/DeltaTransactionSystem/internal/storage"
)

type fakeWriter struct {
	mu          sync.Mutex
	created     []storage.Item
	updated     []storage.Item
	inserted    []storage.PricePoint
	failUpdates map[int64]bool
	failInsert  bool
	maxInFlight int
	inFlight    int
}

func (f *fakeWriter) CreateItems(ctx context.Context, items []storage.Item) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, items...)
	return int64(len(items)), nil
}

func (f *fakeWriter) UpdateItem(ctx context.Context, item storage.Item) error {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	fail := f.failUpdates[item.ID]
	f.mu.Unlock()

	time.Sleep(time.Millisecond)

	f.mu.Lock()
	f.inFlight--
	if !fail {
		f.updated = append(f.updated, item)
	}
	f.mu.Unlock()

	if fail {
		return errors.New("update rejected")
	}
	return nil
}

func (f *fakeWriter) InsertPricePoints(ctx context.Context, points []storage.PricePoint) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failInsert {
		return 0, errors.New("insert rejected")
	}
	f.inserted = append(f.inserted, points...)
	return int64(len(points)), nil
}

func changedItems(n int) []storage.Item {
	items := make([]storage.Item, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, storage.Item{ID: int64(i + 1), Name: "item", LatestPrice: decimal.NewFromInt(int64(i))})
	}
	return items
}

func TestApplyUpdatesAllItems(t *testing.T) {
	writer := &fakeWriter{failUpdates: map[int64]bool{}}
	plan := Plan{ChangedItems: changedItems(120)}

	result := Apply(context.Background(), writer, plan, ApplyOptions{UpdateBatchSize: 50, UpdateWorkers: 8}, zerolog.Nop())

	if result.Updated != 120 {
		t.Fatalf("应更新 120 个物品, 实际 %d", result.Updated)
	}
	if writer.maxInFlight > 8 {
		t.Fatalf("并发度不应超过 worker 上限, 实际 %d", writer.maxInFlight)
	}
}

func TestApplyUpdateFailureDoesNotAbortSiblings(t *testing.T) {
	writer := &fakeWriter{failUpdates: map[int64]bool{2: true}}
	plan := Plan{
		ChangedItems: changedItems(3),
		NewPoints: []storage.PricePoint{
			{ItemID: 1, Price: decimal.NewFromInt(5), RecordedAt: time.Now().UTC()},
		},
	}

	result := Apply(context.Background(), writer, plan, ApplyOptions{UpdateBatchSize: 50, UpdateWorkers: 2}, zerolog.Nop())

	if result.Updated != 2 {
		t.Fatalf("失败的更新不应影响其余更新, 实际成功 %d", result.Updated)
	}
	if result.UpdatesFailed != 1 {
		t.Fatalf("应记录 1 次更新失败, 实际 %d", result.UpdatesFailed)
	}
	if result.Inserted != 1 {
		t.Fatalf("更新失败后仍应插入价格点, 实际 %d", result.Inserted)
	}
}

func TestApplyInsertFailureReported(t *testing.T) {
	writer := &fakeWriter{failUpdates: map[int64]bool{}, failInsert: true}
	plan := Plan{
		NewItems: []storage.Item{{ID: 9, Name: "N", LatestPrice: decimal.NewFromInt(1)}},
		NewPoints: []storage.PricePoint{
			{ItemID: 9, Price: decimal.NewFromInt(1), RecordedAt: time.Now().UTC()},
		},
	}

	result := Apply(context.Background(), writer, plan, ApplyOptions{}, zerolog.Nop())

	if result.Created != 1 {
		t.Fatalf("创建子步骤应照常执行, 实际 %d", result.Created)
	}
	if result.Inserted != 0 {
		t.Fatalf("插入失败时 Inserted 应为 0, 实际 %d", result.Inserted)
	}
}
