package reconcile

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/guotingchao/DeltaTransactionSystem/internal/fetcher"
	"github.com/guotingchao/DeltaTransactionSystem/internal/storage"
)

func emptyState() State {
	return State{
		Items:  map[int64]storage.Item{},
		Latest: map[int64]storage.LatestPoint{},
	}
}

func stateWith(items []storage.Item, latest []storage.LatestPoint) State {
	s := emptyState()
	for _, item := range items {
		s.Items[item.ID] = item
	}
	for _, p := range latest {
		s.Latest[p.ItemID] = p
	}
	return s
}

// applyToState mirrors what the store would look like after the plan lands,
// so idempotence can be checked without a database.
func applyToState(state State, plan Plan) State {
	next := stateWith(nil, nil)
	for id, item := range state.Items {
		next.Items[id] = item
	}
	for id, p := range state.Latest {
		next.Latest[id] = p
	}
	for _, item := range plan.NewItems {
		next.Items[item.ID] = item
	}
	for _, item := range plan.ChangedItems {
		next.Items[item.ID] = item
	}
	for _, p := range plan.NewPoints {
		if prev, ok := next.Latest[p.ItemID]; !ok || p.RecordedAt.After(prev.RecordedAt) {
			next.Latest[p.ItemID] = storage.LatestPoint{ItemID: p.ItemID, Price: p.Price, RecordedAt: p.RecordedAt}
		}
	}
	return next
}

func TestBuildPlanEmptyStore(t *testing.T) {
	now := time.Now().UTC()
	snapshot := []fetcher.RawItem{
		{ID: 1, GetTime: 1700000000, Name: "A", Price: decimal.NewFromInt(100), Category: "枪械"},
	}

	plan := BuildPlan(snapshot, emptyState(), now)

	if len(plan.NewItems) != 1 {
		t.Fatalf("空库应产生 1 个新物品, 实际 %d", len(plan.NewItems))
	}
	if len(plan.ChangedItems) != 0 {
		t.Fatalf("空库不应有更新候选, 实际 %d", len(plan.ChangedItems))
	}
	if len(plan.NewPoints) != 1 {
		t.Fatalf("空库应产生 1 个价格点, 实际 %d", len(plan.NewPoints))
	}

	item := plan.NewItems[0]
	if item.ID != 1 || item.Name != "A" || item.Category != "枪械" {
		t.Fatalf("新物品字段不正确: %+v", item)
	}
	point := plan.NewPoints[0]
	if !point.RecordedAt.Equal(time.Unix(1700000000, 0).UTC()) {
		t.Fatalf("recordedAt 应来自 is_get_time, 实际 %s", point.RecordedAt)
	}
}

func TestBuildPlanIdempotent(t *testing.T) {
	now := time.Now().UTC()
	snapshot := []fetcher.RawItem{
		{ID: 1, GetTime: 1700000000, Name: "A", Price: decimal.NewFromInt(100), Category: "枪械"},
		{ID: 2, GetTime: 1700000000, Name: "B", Price: decimal.NewFromInt(250), Category: "钥匙"},
	}

	first := BuildPlan(snapshot, emptyState(), now)
	state := applyToState(emptyState(), first)

	second := BuildPlan(snapshot, state, now.Add(time.Minute))
	if !second.IsEmpty() {
		t.Fatalf("第二次对账应为空计划: %+v", second)
	}
}

func TestBuildPlanPointDedup(t *testing.T) {
	now := time.Now().UTC()
	baseTime := time.Unix(1700000000, 0).UTC()
	base := stateWith(
		[]storage.Item{{ID: 1, Name: "A", Category: "枪械", LatestPrice: decimal.NewFromInt(100)}},
		[]storage.LatestPoint{{ItemID: 1, Price: decimal.NewFromInt(100), RecordedAt: baseTime}},
	)

	cases := []struct {
		name       string
		getTime    int64
		price      int64
		wantPoints int
	}{
		{"same time same price", 1700000000, 100, 0},
		{"new time same price", 1700000600, 100, 0},
		{"same time new price", 1700000000, 120, 0},
		{"new time new price", 1700000600, 120, 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			snapshot := []fetcher.RawItem{
				{ID: 1, GetTime: tc.getTime, Name: "A", Price: decimal.NewFromInt(tc.price), Category: "枪械"},
			}
			plan := BuildPlan(snapshot, base, now)
			if len(plan.NewPoints) != tc.wantPoints {
				t.Fatalf("期望 %d 个新价格点, 实际 %d", tc.wantPoints, len(plan.NewPoints))
			}
		})
	}
}

func TestBuildPlanWriteSuppression(t *testing.T) {
	now := time.Now().UTC()
	base := stateWith(
		[]storage.Item{{ID: 1, Name: "A", Category: "枪械", LatestPrice: decimal.NewFromInt(100)}},
		nil,
	)

	unchanged := []fetcher.RawItem{
		{ID: 1, GetTime: 1700000000, Name: "A", Price: decimal.NewFromInt(100), Category: "枪械"},
	}
	plan := BuildPlan(unchanged, base, now)
	if len(plan.ChangedItems) != 0 {
		t.Fatalf("名称与价格均未变时不应产生更新候选")
	}

	renamed := []fetcher.RawItem{
		{ID: 1, GetTime: 1700000000, Name: "A2", Price: decimal.NewFromInt(100), Category: "枪械"},
	}
	plan = BuildPlan(renamed, base, now)
	if len(plan.ChangedItems) != 1 {
		t.Fatalf("名称变更应产生更新候选")
	}
	if plan.ChangedItems[0].Name != "A2" {
		t.Fatalf("更新候选应携带新名称, 实际 %q", plan.ChangedItems[0].Name)
	}

	repriced := []fetcher.RawItem{
		{ID: 1, GetTime: 1700000000, Name: "A", Price: decimal.NewFromInt(130), Category: "枪械"},
	}
	plan = BuildPlan(repriced, base, now)
	if len(plan.ChangedItems) != 1 {
		t.Fatalf("价格变更应产生更新候选")
	}
}

func TestBuildPlanCategoryKeptOnUpdate(t *testing.T) {
	now := time.Now().UTC()
	base := stateWith(
		[]storage.Item{{ID: 1, Name: "A", Category: "枪械", LatestPrice: decimal.NewFromInt(100)}},
		nil,
	)

	snapshot := []fetcher.RawItem{
		{ID: 1, GetTime: 1700000000, Name: "A", Price: decimal.NewFromInt(130), Category: "钥匙"},
	}
	plan := BuildPlan(snapshot, base, now)
	if len(plan.ChangedItems) != 1 {
		t.Fatalf("应产生更新候选")
	}
	if plan.ChangedItems[0].Category != "枪械" {
		t.Fatalf("更新不应改写既有分类, 实际 %q", plan.ChangedItems[0].Category)
	}
}

func TestBuildPlanIntraSnapshotDuplicates(t *testing.T) {
	now := time.Now().UTC()
	snapshot := []fetcher.RawItem{
		{ID: 1, GetTime: 1700000000, Name: "A", Price: decimal.NewFromInt(100), Category: "枪械"},
		{ID: 1, GetTime: 1700000000, Name: "A", Price: decimal.NewFromInt(100), Category: "枪械"},
	}

	plan := BuildPlan(snapshot, emptyState(), now)
	if len(plan.NewItems) != 1 {
		t.Fatalf("快照内重复记录只应产生 1 个新物品, 实际 %d", len(plan.NewItems))
	}
	if len(plan.NewPoints) != 1 {
		t.Fatalf("快照内重复记录只应产生 1 个价格点, 实际 %d", len(plan.NewPoints))
	}
}
