package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/opscontrol/flowora/pkg/audit"
	"github.com/opscontrol/flowora/pkg/inventory"
	"github.com/opscontrol/flowora/pkg/request"
	"github.com/opscontrol/flowora/pkg/task"
)

// TestMemoryStore_SeededSnapshot はシードデータ読み込みのテスト
func TestMemoryStore_SeededSnapshot(t *testing.T) {
	store := NewSeededMemoryStore()
	ctx := context.Background()

	snap, err := store.LoadInventory(ctx)
	assert.NoError(t, err)
	assert.NotEmpty(t, snap.Items)
	assert.NotEmpty(t, snap.Locations)
	assert.NotEmpty(t, snap.Stock)

	reqSnap, err := store.LoadRequests(ctx)
	assert.NoError(t, err)
	assert.NotEmpty(t, reqSnap.Products)
	assert.NotEmpty(t, reqSnap.Rules)

	taskSnap, err := store.LoadTasks(ctx)
	assert.NoError(t, err)
	assert.NotEmpty(t, taskSnap.Profiles)

	procSnap, err := store.LoadProcurement(ctx)
	assert.NoError(t, err)
	assert.NotEmpty(t, procSnap.Suppliers)

	assert.NoError(t, store.Ping(ctx))
}

// TestMemoryStore_UpsertStockRow は在庫行の更新・挿入テスト
func TestMemoryStore_UpsertStockRow(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	row := &inventory.StockRow{ItemID: "IT-1", LocationID: "LOC-1", BatchID: "", Qty: 10}
	assert.NoError(t, store.UpsertStockRow(ctx, row))

	row.Qty = 25
	assert.NoError(t, store.UpsertStockRow(ctx, row))

	snap, err := store.LoadInventory(ctx)
	assert.NoError(t, err)
	assert.Len(t, snap.Stock, 1)
	assert.Equal(t, 25.0, snap.Stock[0].Qty)
}

// TestMemoryStore_FullWiring はシードデータ上で全ストアを結線した統合テスト
func TestMemoryStore_FullWiring(t *testing.T) {
	store := NewSeededMemoryStore()
	logger := zap.NewNop()
	ctx := context.Background()

	auditLog := audit.NewLog(store, logger)
	ledger := inventory.NewLedger(store, nil, logger, nil)
	taskEngine := task.NewEngine(ledger, auditLog, store, logger, nil)
	ledger.SetPublisher(taskEngine)
	requestEngine := request.NewEngine(ledger, taskEngine, auditLog, store, logger, &request.Config{AutoApproveIssue: true})

	assert.NoError(t, auditLog.Refresh(ctx))
	assert.NoError(t, ledger.Refresh(ctx))
	assert.NoError(t, taskEngine.Refresh(ctx))
	assert.NoError(t, requestEngine.Refresh(ctx))

	// IT-1（GLV-01）はシードで70個、発注点80 → ウォッチャーがアラートを1件作成
	taskEngine.SyncLowStock(ctx)
	open := 0
	for _, tk := range taskEngine.Tasks() {
		if tk.Category == task.CategoryLowStock && tk.ItemID == "IT-1" && tk.Status != task.StatusCompleted {
			open++
		}
	}
	assert.Equal(t, 1, open)

	// ISSUEリクエスト作成 → 自動承認で在庫が引き落とされ、イベントと監査が残る
	id, err := requestEngine.Create(ctx, request.CreateInput{
		ProductID:       "PRD-HYD-10T",
		Type:            request.TypeIssue,
		RequestedBy:     "Rahul (Ops)",
		RequestedByRole: request.RoleOpsManager,
		Approvers:       []string{"Rahul (Ops)"},
		Lines:           []request.LineInput{{ItemID: "IT-3", Qty: 20}},
	})
	assert.NoError(t, err)
	assert.Equal(t, request.StatusApproved, requestEngine.RequestByID(id).Status)
	assert.Equal(t, 400.0, ledger.QuantityInScope("IT-3", inventory.ScopeAll()))
	assert.Len(t, requestEngine.EventsByRequest(id), 1)
	assert.NotEmpty(t, auditLog.EntriesFor(id))

	// 補充で在庫が回復するとアラートは自動完了する
	ledger.AddStock(ctx, "IT-1", 15, "LOC-1")
	for _, tk := range taskEngine.Tasks() {
		if tk.Category == task.CategoryLowStock && tk.ItemID == "IT-1" {
			assert.Equal(t, task.StatusCompleted, tk.Status)
			assert.Equal(t, "Stock recovered", tk.Reason)
		}
	}
}
