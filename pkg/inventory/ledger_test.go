package inventory

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

// stubSource はテスト用のSource実装
type stubSource struct {
	snapshot *Snapshot
	loadErr  error
}

func (s *stubSource) LoadInventory(ctx context.Context) (*Snapshot, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return s.snapshot, nil
}

func (s *stubSource) AppendMovement(ctx context.Context, mv *Movement) error   { return nil }
func (s *stubSource) UpsertStockRow(ctx context.Context, row *StockRow) error  { return nil }
func (s *stubSource) SaveItem(ctx context.Context, item *Item) error           { return nil }
func (s *stubSource) SaveLocation(ctx context.Context, loc *Location) error    { return nil }
func (s *stubSource) SaveBatch(ctx context.Context, batch *Batch) error        { return nil }

// MockPublisher はテスト用のEventPublisherモック
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishStockChanged(ctx context.Context, event StockChangedEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockPublisher) PublishLowStockAlert(ctx context.Context, event LowStockAlertEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// 固定の「今日」: 2024-12-20
var testNow = time.Date(2024, 12, 20, 10, 0, 0, 0, time.UTC)

func testDay(offset int) string {
	return testNow.AddDate(0, 0, offset).Format("2006-01-02")
}

// newTestLedger は固定時計・シードデータ付きの元帳を作成
func newTestLedger(t *testing.T, snap *Snapshot) *Ledger {
	t.Helper()
	if snap == nil {
		snap = &Snapshot{}
	}
	ledger := NewLedger(&stubSource{snapshot: snap}, nil, zap.NewNop(), nil)
	ledger.now = func() time.Time { return testNow }
	if err := ledger.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	return ledger
}

func glovesSnapshot() *Snapshot {
	return &Snapshot{
		Items: []Item{
			{ID: "IT-1", SKU: "GLV-01", Name: "Safety Gloves", ReorderMinQty: 80, Status: StatusActive, TrackingType: TrackingBatchExpiry},
		},
		Locations: []Location{
			{ID: "LOC-A", Name: "Line 1", Type: LocationPlant, Status: StatusActive},
			{ID: "LOC-B", Name: "Line 2", Type: LocationPlant, Status: StatusActive},
		},
		Batches: []Batch{
			{ID: "B-1", ItemID: "IT-1", BatchNumber: "GLO-2409", ExpiryDate: testDay(120)},
			{ID: "B-2", ItemID: "IT-1", BatchNumber: "GLO-2410", ExpiryDate: testDay(20)},
		},
		Stock: []StockRow{
			{ItemID: "IT-1", LocationID: "LOC-A", BatchID: "B-1", Qty: 60},
			{ItemID: "IT-1", LocationID: "LOC-A", BatchID: "B-2", Qty: 10},
		},
	}
}

// TestLedger_QuantityInScope はスコープ付き数量集計のテスト
func TestLedger_QuantityInScope(t *testing.T) {
	snap := glovesSnapshot()
	snap.Stock = append(snap.Stock, StockRow{ItemID: "IT-1", LocationID: "LOC-B", BatchID: "", Qty: 5})
	ledger := newTestLedger(t, snap)

	assert.Equal(t, 75.0, ledger.QuantityInScope("IT-1", ScopeAll()))
	assert.Equal(t, 70.0, ledger.QuantityInScope("IT-1", ScopeOne("LOC-A")))
	assert.Equal(t, 5.0, ledger.QuantityInScope("IT-1", ScopeOne("LOC-B")))

	// 未知のIDは0
	assert.Equal(t, 0.0, ledger.QuantityInScope("IT-MISSING", ScopeAll()))
}

// TestLedger_FEFOAllocate はFEFO順序のテスト（E2Eシナリオ1）
func TestLedger_FEFOAllocate(t *testing.T) {
	ledger := newTestLedger(t, glovesSnapshot())

	fefo := ledger.FEFOAllocate("IT-1", "LOC-A")

	// 期限の近いB-2（+20日、10個）が先頭
	assert.Len(t, fefo, 2)
	assert.Equal(t, "B-2", fefo[0].BatchID)
	assert.Equal(t, 10.0, fefo[0].Qty)
	assert.Equal(t, "B-1", fefo[1].BatchID)
	assert.Equal(t, 60.0, fefo[1].Qty)
}

// TestLedger_FEFOAllocate_InsertionOrderIrrelevant は投入順に依存しないことのテスト
func TestLedger_FEFOAllocate_InsertionOrderIrrelevant(t *testing.T) {
	snap := &Snapshot{
		Items:     []Item{{ID: "IT-X", Name: "X"}},
		Locations: []Location{{ID: "LOC-1", Name: "L"}},
		Batches: []Batch{
			{ID: "B-LATE", ItemID: "IT-X", ExpiryDate: testDay(90)},
			{ID: "B-MID", ItemID: "IT-X", ExpiryDate: testDay(30)},
			{ID: "B-EARLY", ItemID: "IT-X", ExpiryDate: testDay(5)},
		},
		Stock: []StockRow{
			{ItemID: "IT-X", LocationID: "LOC-1", BatchID: "B-LATE", Qty: 1},
			{ItemID: "IT-X", LocationID: "LOC-1", BatchID: "B-EARLY", Qty: 2},
			{ItemID: "IT-X", LocationID: "LOC-1", BatchID: "B-MID", Qty: 3},
		},
	}
	ledger := newTestLedger(t, snap)

	fefo := ledger.FEFOAllocate("IT-X", "LOC-1")
	assert.Equal(t, []string{"B-EARLY", "B-MID", "B-LATE"},
		[]string{fefo[0].BatchID, fefo[1].BatchID, fefo[2].BatchID})
}

// TestLedger_ExpiryBoundary は期限判定の境界テスト
func TestLedger_ExpiryBoundary(t *testing.T) {
	ledger := newTestLedger(t, nil)

	// 当日は期限内、昨日は期限切れ
	assert.False(t, ledger.IsExpired(testDay(0)))
	assert.True(t, ledger.IsExpired(testDay(-1)))
	assert.False(t, ledger.IsExpired(testDay(1)))
	assert.False(t, ledger.IsExpired(""))

	// 0 <= 差分日数 <= N のときのみ真
	assert.True(t, ledger.IsExpiringWithin(testDay(0), 7))
	assert.True(t, ledger.IsExpiringWithin(testDay(7), 7))
	assert.False(t, ledger.IsExpiringWithin(testDay(8), 7))
	assert.False(t, ledger.IsExpiringWithin(testDay(-1), 7))
	assert.False(t, ledger.IsExpiringWithin("", 7))
}

// TestLedger_EarliestExpiry は最早期限の導出テスト
func TestLedger_EarliestExpiry(t *testing.T) {
	snap := glovesSnapshot()
	// 数量ゼロのバッチと非バッチ在庫は期限計算から除外される
	snap.Batches = append(snap.Batches, Batch{ID: "B-0", ItemID: "IT-1", ExpiryDate: testDay(1)})
	snap.Stock = append(snap.Stock,
		StockRow{ItemID: "IT-1", LocationID: "LOC-A", BatchID: "B-0", Qty: 0},
		StockRow{ItemID: "IT-1", LocationID: "LOC-A", BatchID: "", Qty: 99},
	)
	ledger := newTestLedger(t, snap)

	assert.Equal(t, testDay(20), ledger.EarliestExpiry("IT-1", ScopeAll()))
	assert.Equal(t, "", ledger.EarliestExpiry("IT-MISSING", ScopeAll()))
}

// TestLedger_AddStock は在庫追加とマージのテスト
func TestLedger_AddStock(t *testing.T) {
	ledger := newTestLedger(t, glovesSnapshot())
	ctx := context.Background()

	ledger.AddStock(ctx, "IT-1", 15, "LOC-A")
	assert.Equal(t, 85.0, ledger.QuantityInScope("IT-1", ScopeAll()))

	// 同一ロケーションの非バッチ行にマージされ、行は増えない
	before := len(ledger.StockRows())
	ledger.AddStock(ctx, "IT-1", 5, "LOC-A")
	assert.Equal(t, before, len(ledger.StockRows()))
	assert.Equal(t, 90.0, ledger.QuantityInScope("IT-1", ScopeAll()))
}

// TestLedger_AddStock_InvalidQuantities は不正数量が無視されることのテスト
func TestLedger_AddStock_InvalidQuantities(t *testing.T) {
	ledger := newTestLedger(t, glovesSnapshot())
	ctx := context.Background()

	ledger.AddStock(ctx, "IT-1", 0, "LOC-A")
	ledger.AddStock(ctx, "IT-1", -10, "LOC-A")
	ledger.AddStock(ctx, "IT-1", math.NaN(), "LOC-A")
	ledger.AddStock(ctx, "IT-1", math.Inf(1), "LOC-A")

	assert.Equal(t, 70.0, ledger.QuantityInScope("IT-1", ScopeAll()))
}

// TestLedger_AddStock_CreatesDefaultLocation は既定ロケーション作成のテスト
func TestLedger_AddStock_CreatesDefaultLocation(t *testing.T) {
	ledger := newTestLedger(t, &Snapshot{Items: []Item{{ID: "IT-1", Name: "X"}}})
	ctx := context.Background()

	ledger.AddStock(ctx, "IT-1", 10, "")

	locs := ledger.Locations()
	assert.Len(t, locs, 1)
	assert.Equal(t, "Main Store", locs[0].Name)
	assert.Equal(t, 10.0, ledger.QuantityInScope("IT-1", ScopeAll()))
}

// TestLedger_RemoveStock_NoNegative は負在庫が発生しないことのテスト（P1）
func TestLedger_RemoveStock_NoNegative(t *testing.T) {
	ledger := newTestLedger(t, glovesSnapshot())
	ctx := context.Background()

	ledger.AddStock(ctx, "IT-1", 30, "LOC-B")
	ledger.RemoveStock(ctx, "IT-1", 55)
	ledger.RemoveStock(ctx, "IT-1", 500)
	ledger.AddStock(ctx, "IT-1", 12, "LOC-A")
	ledger.RemoveStock(ctx, "IT-1", 1)

	for _, row := range ledger.StockRows() {
		assert.GreaterOrEqual(t, row.Qty, 0.0, "row %s/%s/%s", row.ItemID, row.LocationID, row.BatchID)
	}
}

// TestLedger_RemoveStock_PartialFulfillment は部分充足の報告テスト
func TestLedger_RemoveStock_PartialFulfillment(t *testing.T) {
	ledger := newTestLedger(t, glovesSnapshot())

	result := ledger.RemoveStock(context.Background(), "IT-1", 100)

	assert.Equal(t, 100.0, result.Requested)
	assert.Equal(t, 70.0, result.Fulfilled)
	assert.Equal(t, 30.0, result.Shortfall)
	assert.Equal(t, 0.0, ledger.QuantityInScope("IT-1", ScopeAll()))
}

// TestLedger_RemoveStock_FEFOOrder は出庫が期限の早いバッチから行われることのテスト
func TestLedger_RemoveStock_FEFOOrder(t *testing.T) {
	ledger := newTestLedger(t, glovesSnapshot())

	// B-2（+20日、10個）が先に消費される
	ledger.RemoveStock(context.Background(), "IT-1", 10)

	for _, row := range ledger.StockRows() {
		if row.BatchID == "B-2" {
			assert.Equal(t, 0.0, row.Qty)
		}
		if row.BatchID == "B-1" {
			assert.Equal(t, 60.0, row.Qty)
		}
	}
}

// TestLedger_RemoveStock_LegacyBatchIDOrder は旧方式ポリシーのテスト
func TestLedger_RemoveStock_LegacyBatchIDOrder(t *testing.T) {
	snap := glovesSnapshot()
	source := &stubSource{snapshot: snap}
	ledger := NewLedger(source, nil, zap.NewNop(), &Config{
		DefaultLocationName: "Main Store",
		RemovalOrder:        RemovalOrderBatchID,
	})
	ledger.now = func() time.Time { return testNow }
	assert.NoError(t, ledger.Refresh(context.Background()))

	// 辞書順でB-1（期限の遠い方）が先に消費される
	ledger.RemoveStock(context.Background(), "IT-1", 10)

	for _, row := range ledger.StockRows() {
		if row.BatchID == "B-1" {
			assert.Equal(t, 50.0, row.Qty)
		}
		if row.BatchID == "B-2" {
			assert.Equal(t, 10.0, row.Qty)
		}
	}
}

// TestLedger_MinimumThreshold は発注閾値解決のテスト
func TestLedger_MinimumThreshold(t *testing.T) {
	ledger := newTestLedger(t, nil)

	item := &Item{ID: "IT-1", ReorderMinQty: 80}
	assert.Equal(t, 80.0, ledger.MinimumThreshold(item, ScopeAll()))
	assert.Equal(t, 80.0, ledger.MinimumThreshold(item, ScopeOne("LOC-A")))

	item.SafetyStockByLocation = map[string]float64{"LOC-A": 25, "LOC-B": 35}
	assert.Equal(t, 25.0, ledger.MinimumThreshold(item, ScopeOne("LOC-A")))
	assert.Equal(t, 60.0, ledger.MinimumThreshold(item, ScopeAll()))

	// 未設定ロケーションは全体の発注点へフォールバック
	assert.Equal(t, 80.0, ledger.MinimumThreshold(item, ScopeOne("LOC-C")))

	assert.Equal(t, 0.0, ledger.MinimumThreshold(nil, ScopeAll()))
}

// TestLedger_LowStock は低在庫判定（厳密な小なり）のテスト（E2Eシナリオ2前半）
func TestLedger_LowStock(t *testing.T) {
	ledger := newTestLedger(t, glovesSnapshot())
	ctx := context.Background()

	item := ledger.GetItem("IT-1")
	// 70 < 80 で低在庫
	assert.True(t, ledger.LowStock(item, ScopeAll()))

	ledger.AddStock(ctx, "IT-1", 15, "LOC-A")
	// 85 >= 80 で解消
	assert.False(t, ledger.LowStock(item, ScopeAll()))

	// 閾値ちょうどは低在庫ではない（厳密な小なり）
	ledger.RemoveStock(ctx, "IT-1", 5)
	assert.False(t, ledger.LowStock(item, ScopeAll()))

	// 閾値ゼロの商品は対象外
	noMin := &Item{ID: "IT-NOMIN"}
	assert.False(t, ledger.LowStock(noMin, ScopeAll()))
}

// TestLedger_RefreshFailureRetainsState は読み込み失敗時に状態を保持することのテスト
func TestLedger_RefreshFailureRetainsState(t *testing.T) {
	source := &stubSource{snapshot: glovesSnapshot()}
	ledger := NewLedger(source, nil, zap.NewNop(), nil)
	ledger.now = func() time.Time { return testNow }
	assert.NoError(t, ledger.Refresh(context.Background()))

	source.loadErr = assert.AnError
	assert.Error(t, ledger.Refresh(context.Background()))

	// 直前の状態がそのまま残る
	assert.Equal(t, 70.0, ledger.QuantityInScope("IT-1", ScopeAll()))
}

// TestLedger_PublishesStockChanged は変更イベント発行のテスト
func TestLedger_PublishesStockChanged(t *testing.T) {
	ledger := newTestLedger(t, glovesSnapshot())
	publisher := new(MockPublisher)
	publisher.On("PublishStockChanged", mock.Anything, mock.AnythingOfType("inventory.StockChangedEvent")).Return(nil)
	ledger.SetPublisher(publisher)

	ledger.AddStock(context.Background(), "IT-1", 5, "LOC-A")
	ledger.RemoveStock(context.Background(), "IT-1", 3)

	publisher.AssertNumberOfCalls(t, "PublishStockChanged", 2)
}

// TestLedger_MovementsRecorded は移動記録のテスト
func TestLedger_MovementsRecorded(t *testing.T) {
	ledger := newTestLedger(t, glovesSnapshot())
	ctx := context.WithValue(context.Background(), "user_id", "tester")

	ledger.AddStock(ctx, "IT-1", 5, "LOC-A")
	ledger.RemoveStockRef(ctx, "IT-1", 12, "REQUEST", "REQ-1")

	moves := ledger.MovementsForItem("IT-1")
	assert.NotEmpty(t, moves)
	var sawConsume, sawAdjust bool
	for _, mv := range moves {
		assert.Equal(t, "tester", mv.PerformedBy)
		switch mv.Type {
		case MovementConsume:
			sawConsume = true
			assert.Equal(t, "REQ-1", mv.RefID)
		case MovementAdjust:
			sawAdjust = true
		}
	}
	assert.True(t, sawConsume)
	assert.True(t, sawAdjust)
}

// ベンチマークテスト
func BenchmarkLedger_AddStock(b *testing.B) {
	ledger := NewLedger(&stubSource{snapshot: glovesSnapshot()}, nil, zap.NewNop(), nil)
	ledger.now = func() time.Time { return testNow }
	if err := ledger.Refresh(context.Background()); err != nil {
		b.Fatal(err)
	}
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ledger.AddStock(ctx, "IT-1", 1, "LOC-A")
	}
}
