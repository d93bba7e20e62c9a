package request

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/opscontrol/flowora/pkg/inventory"
	"github.com/opscontrol/flowora/pkg/task"
)

// stubInventorySource はテスト用のinventory.Source実装
type stubInventorySource struct {
	snapshot *inventory.Snapshot
}

func (s *stubInventorySource) LoadInventory(ctx context.Context) (*inventory.Snapshot, error) {
	return s.snapshot, nil
}
func (s *stubInventorySource) AppendMovement(ctx context.Context, mv *inventory.Movement) error {
	return nil
}
func (s *stubInventorySource) UpsertStockRow(ctx context.Context, row *inventory.StockRow) error {
	return nil
}
func (s *stubInventorySource) SaveItem(ctx context.Context, item *inventory.Item) error { return nil }
func (s *stubInventorySource) SaveLocation(ctx context.Context, loc *inventory.Location) error {
	return nil
}
func (s *stubInventorySource) SaveBatch(ctx context.Context, batch *inventory.Batch) error { return nil }

// stubRequestSource はテスト用のSource実装
type stubRequestSource struct {
	snapshot *Snapshot
}

func (s *stubRequestSource) LoadRequests(ctx context.Context) (*Snapshot, error) {
	if s.snapshot == nil {
		return &Snapshot{}, nil
	}
	return s.snapshot, nil
}
func (s *stubRequestSource) SaveRequest(ctx context.Context, r *ProductionRequest) error { return nil }
func (s *stubRequestSource) SaveLine(ctx context.Context, l *Line) error                 { return nil }
func (s *stubRequestSource) AppendConsumptionEvent(ctx context.Context, e *ConsumptionEvent) error {
	return nil
}

// recordingTasks はタスク生成呼び出しを記録
type recordingTasks struct {
	mu    sync.Mutex
	specs []task.Spec
}

func (r *recordingTasks) AddTask(ctx context.Context, spec task.Spec) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.specs = append(r.specs, spec)
	return "TASK-1"
}

// recordingAuditor は監査呼び出しを記録
type recordingAuditor struct {
	mu      sync.Mutex
	actions []string
}

func (a *recordingAuditor) Add(ctx context.Context, action, entityID, details, actor string, meta map[string]string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actions = append(a.actions, action)
	return "AUDIT-1"
}

func (a *recordingAuditor) count(action string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, got := range a.actions {
		if got == action {
			n++
		}
	}
	return n
}

func stockSnapshot(qty float64) *inventory.Snapshot {
	return &inventory.Snapshot{
		Items: []inventory.Item{
			{ID: "IT-A", SKU: "STL-01", Name: "Steel Blank"},
		},
		Locations: []inventory.Location{
			{ID: "LOC-1", Name: "Line 1"},
		},
		Stock: []inventory.StockRow{
			{ItemID: "IT-A", LocationID: "LOC-1", BatchID: "", Qty: qty},
		},
	}
}

type testRig struct {
	engine *Engine
	ledger *inventory.Ledger
	tasks  *recordingTasks
	audit  *recordingAuditor
}

func newTestRig(t *testing.T, stock float64, cfg *Config) *testRig {
	t.Helper()
	ledger := inventory.NewLedger(&stubInventorySource{snapshot: stockSnapshot(stock)}, nil, zap.NewNop(), nil)
	if err := ledger.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	tasks := &recordingTasks{}
	auditor := &recordingAuditor{}
	engine := NewEngine(ledger, tasks, auditor, &stubRequestSource{}, zap.NewNop(), cfg)
	if err := engine.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	return &testRig{engine: engine, ledger: ledger, tasks: tasks, audit: auditor}
}

func issueInput(qty float64) CreateInput {
	return CreateInput{
		ProductID:       "PRD-1",
		Type:            TypeIssue,
		RequestedBy:     "Rahul (Ops)",
		RequestedByRole: RoleOpsManager,
		Approvers:       []string{"Rahul (Ops)", "Anita (CEO)"},
		Lines:           []LineInput{{ItemID: "IT-A", Qty: qty}},
	}
}

// TestEngine_Create_AlwaysStartsPending は作成が常にPENDINGを経ることのテスト
func TestEngine_Create_AlwaysStartsPending(t *testing.T) {
	rig := newTestRig(t, 100, &Config{AutoApproveIssue: false})

	id, err := rig.engine.Create(context.Background(), issueInput(10))
	assert.NoError(t, err)

	req := rig.engine.RequestByID(id)
	assert.Equal(t, StatusPending, req.Status)
	assert.Equal(t, 10.0, req.TargetQty)

	// 承認数量は作成時点で要求数量と同じ（意図された業務挙動）
	lines := rig.engine.LinesByRequest(id)
	assert.Len(t, lines, 1)
	assert.Equal(t, 10.0, lines[0].ApprovedQty)

	// 在庫はまだ動いていない
	assert.Equal(t, 100.0, rig.ledger.QuantityInScope("IT-A", inventory.ScopeAll()))
}

// TestEngine_Create_EmitsTaskAndAudit はタスク・監査の副作用テスト
func TestEngine_Create_EmitsTaskAndAudit(t *testing.T) {
	rig := newTestRig(t, 100, &Config{AutoApproveIssue: false})

	id, err := rig.engine.Create(context.Background(), issueInput(10))
	assert.NoError(t, err)

	assert.Len(t, rig.tasks.specs, 1)
	assert.Equal(t, task.CategoryDispatch, rig.tasks.specs[0].Category)
	assert.Equal(t, id, rig.tasks.specs[0].RequestID)
	assert.Equal(t, 1, rig.audit.count("REQUEST_CREATED"))

	// PURCHASEは補充タスクを生成
	purchase := issueInput(5)
	purchase.Type = TypePurchase
	_, err = rig.engine.Create(context.Background(), purchase)
	assert.NoError(t, err)
	assert.Equal(t, task.CategoryReplenishment, rig.tasks.specs[1].Category)
}

// TestEngine_AutoApprovePolicy は自動承認ポリシーのテスト
func TestEngine_AutoApprovePolicy(t *testing.T) {
	rig := newTestRig(t, 100, &Config{AutoApproveIssue: true})

	id, err := rig.engine.Create(context.Background(), issueInput(10))
	assert.NoError(t, err)

	// ポリシー有効時はISSUEが通常経路で即時承認される
	req := rig.engine.RequestByID(id)
	assert.Equal(t, StatusApproved, req.Status)
	assert.Equal(t, 90.0, rig.ledger.QuantityInScope("IT-A", inventory.ScopeAll()))

	// PURCHASEには適用されない
	purchase := issueInput(5)
	purchase.Type = TypePurchase
	pid, err := rig.engine.Create(context.Background(), purchase)
	assert.NoError(t, err)
	assert.Equal(t, StatusPending, rig.engine.RequestByID(pid).Status)
}

// TestEngine_Approve_Gating は承認権限ゲートのテスト（P5、E2Eシナリオ3）
func TestEngine_Approve_Gating(t *testing.T) {
	rig := newTestRig(t, 100, &Config{AutoApproveIssue: false})

	input := issueInput(100)
	input.Type = TypePurchase
	id, err := rig.engine.Create(context.Background(), input)
	assert.NoError(t, err)

	// PURCHASEルールに含まれないロールでの承認は明示的に拒否される
	result, err := rig.engine.Approve(context.Background(), id, "Vikram (Procurement)", RoleProcurement, "")
	assert.ErrorIs(t, err, ErrApprovalDenied)
	assert.Nil(t, result)

	// 状態・在庫・イベントは一切変化しない
	assert.Equal(t, StatusPending, rig.engine.RequestByID(id).Status)
	assert.Equal(t, 100.0, rig.ledger.QuantityInScope("IT-A", inventory.ScopeAll()))
	assert.Empty(t, rig.engine.EventsByRequest(id))
}

// TestEngine_Approve_RequiresListedApprover は承認者リストのテスト
func TestEngine_Approve_RequiresListedApprover(t *testing.T) {
	rig := newTestRig(t, 100, &Config{AutoApproveIssue: false})

	id, err := rig.engine.Create(context.Background(), issueInput(10))
	assert.NoError(t, err)

	// ロールは適合するが承認者リストにいない
	_, err = rig.engine.Approve(context.Background(), id, "Someone Else", RoleCEO, "")
	assert.ErrorIs(t, err, ErrApprovalDenied)

	// リストに載っている承認者なら成功
	_, err = rig.engine.Approve(context.Background(), id, "Anita (CEO)", RoleCEO, "go ahead")
	assert.NoError(t, err)
}

// TestEngine_Approve_IssueCascade はISSUE承認の連鎖効果テスト（P6）
func TestEngine_Approve_IssueCascade(t *testing.T) {
	rig := newTestRig(t, 100, &Config{AutoApproveIssue: false})

	id, err := rig.engine.Create(context.Background(), issueInput(10))
	assert.NoError(t, err)

	result, err := rig.engine.Approve(context.Background(), id, "Rahul (Ops)", RoleOpsManager, "")
	assert.NoError(t, err)

	// 在庫からちょうど10が引き落とされる
	assert.Equal(t, 90.0, rig.ledger.QuantityInScope("IT-A", inventory.ScopeAll()))

	// USEDイベントがちょうど1件、数量10
	events := rig.engine.EventsByRequest(id)
	assert.Len(t, events, 1)
	assert.Equal(t, ConsumptionUsed, events[0].Kind)
	assert.Equal(t, 10.0, events[0].Qty)

	// 結果・履歴・監査
	assert.Equal(t, 0.0, result.Lines[0].Shortfall)
	req := rig.engine.RequestByID(id)
	assert.Equal(t, StatusApproved, req.Status)
	assert.NotEmpty(t, req.ApprovedAt)
	assert.Len(t, req.Approvals, 1)
	assert.Equal(t, 1, rig.audit.count("REQUEST_APPROVED"))

	// 明細の使用数量が更新される
	lines := rig.engine.LinesByRequest(id)
	assert.Equal(t, 10.0, lines[0].UsedQty)
}

// TestEngine_Approve_PartialFulfillment は在庫不足時の連鎖テスト（E2Eシナリオ4）
func TestEngine_Approve_PartialFulfillment(t *testing.T) {
	// 在庫30に対して50を承認
	rig := newTestRig(t, 30, &Config{AutoApproveIssue: false})

	id, err := rig.engine.Create(context.Background(), issueInput(50))
	assert.NoError(t, err)

	result, err := rig.engine.Approve(context.Background(), id, "Rahul (Ops)", RoleOpsManager, "")
	assert.NoError(t, err)

	// 出庫は30にクランプされ、残り20は不足として報告される
	assert.Equal(t, 50.0, result.Lines[0].Approved)
	assert.Equal(t, 30.0, result.Lines[0].Fulfilled)
	assert.Equal(t, 20.0, result.Lines[0].Shortfall)
	assert.Equal(t, 0.0, rig.ledger.QuantityInScope("IT-A", inventory.ScopeAll()))

	// 消費イベントは実際に出庫できた数量を記録する
	events := rig.engine.EventsByRequest(id)
	assert.Len(t, events, 1)
	assert.Equal(t, 30.0, events[0].Qty)
}

// TestEngine_Approve_OnlyFromPending はPENDING以外からの遷移が無効なことのテスト
func TestEngine_Approve_OnlyFromPending(t *testing.T) {
	rig := newTestRig(t, 100, &Config{AutoApproveIssue: false})

	id, _ := rig.engine.Create(context.Background(), issueInput(10))
	_, err := rig.engine.Approve(context.Background(), id, "Rahul (Ops)", RoleOpsManager, "")
	assert.NoError(t, err)

	// 承認済みの再承認は状態エラー（権限エラーと区別される）
	_, err = rig.engine.Approve(context.Background(), id, "Anita (CEO)", RoleCEO, "")
	assert.ErrorIs(t, err, ErrRequestNotPending)

	// 在庫は二重に動かない
	assert.Equal(t, 90.0, rig.ledger.QuantityInScope("IT-A", inventory.ScopeAll()))
}

// TestEngine_Reject はリクエスト却下のテスト
func TestEngine_Reject(t *testing.T) {
	rig := newTestRig(t, 100, &Config{AutoApproveIssue: false})

	id, _ := rig.engine.Create(context.Background(), issueInput(10))
	err := rig.engine.Reject(context.Background(), id, "Anita (CEO)", RoleCEO, "budget freeze")
	assert.NoError(t, err)

	req := rig.engine.RequestByID(id)
	assert.Equal(t, StatusRejected, req.Status)
	assert.Len(t, req.Approvals, 1)
	assert.Equal(t, "budget freeze", req.Approvals[0].Comment)

	// 却下に在庫連鎖はない
	assert.Equal(t, 100.0, rig.ledger.QuantityInScope("IT-A", inventory.ScopeAll()))

	// 却下後の承認は状態エラー
	_, err = rig.engine.Approve(context.Background(), id, "Rahul (Ops)", RoleOpsManager, "")
	assert.ErrorIs(t, err, ErrRequestNotPending)
}

// TestEngine_Close は手動クローズ遷移のテスト
func TestEngine_Close(t *testing.T) {
	rig := newTestRig(t, 100, &Config{AutoApproveIssue: false})

	id, _ := rig.engine.Create(context.Background(), issueInput(10))

	// PENDINGからは閉じられない
	err := rig.engine.Close(context.Background(), id, "Rahul (Ops)")
	assert.ErrorIs(t, err, ErrRequestNotApproved)

	_, err = rig.engine.Approve(context.Background(), id, "Rahul (Ops)", RoleOpsManager, "")
	assert.NoError(t, err)

	assert.NoError(t, rig.engine.Close(context.Background(), id, "Rahul (Ops)"))
	req := rig.engine.RequestByID(id)
	assert.Equal(t, StatusClosed, req.Status)
	assert.NotEmpty(t, req.ClosedAt)
}

// TestEngine_RecordConsumption は消費イベント記録のテスト
func TestEngine_RecordConsumption(t *testing.T) {
	rig := newTestRig(t, 100, &Config{AutoApproveIssue: false})

	id, _ := rig.engine.Create(context.Background(), issueInput(20))

	_, err := rig.engine.RecordConsumption(context.Background(), id, "IT-A", ConsumptionReturned, 3, "Not used", "Rahul (Ops)")
	assert.NoError(t, err)
	_, err = rig.engine.RecordConsumption(context.Background(), id, "IT-A", ConsumptionRejected, 2, "Size not compatible", "Rahul (Ops)")
	assert.NoError(t, err)

	lines := rig.engine.LinesByRequest(id)
	assert.Equal(t, 3.0, lines[0].ReturnedQty)
	assert.Equal(t, 2.0, lines[0].RejectedQty)
	assert.Equal(t, 15.0, lines[0].Variance())

	// 未知の明細はエラー
	_, err = rig.engine.RecordConsumption(context.Background(), id, "IT-MISSING", ConsumptionUsed, 1, "", "x")
	assert.ErrorIs(t, err, ErrRequestNotFound)
}

// TestEngine_CanApprove_RuleResolution はルール解決のテスト
func TestEngine_CanApprove_RuleResolution(t *testing.T) {
	ledger := inventory.NewLedger(&stubInventorySource{snapshot: stockSnapshot(0)}, nil, zap.NewNop(), nil)
	assert.NoError(t, ledger.Refresh(context.Background()))

	// データソース提供のルールが設定既定値より優先される
	source := &stubRequestSource{snapshot: &Snapshot{
		Rules: []ApprovalRule{
			{Type: TypeIssue, Roles: []UserRole{RoleOpsManager}},
		},
	}}
	engine := NewEngine(ledger, &recordingTasks{}, &recordingAuditor{}, source, zap.NewNop(), nil)
	assert.NoError(t, engine.Refresh(context.Background()))

	req := &ProductionRequest{Type: TypeIssue, Approvers: []string{"Rahul (Ops)"}}
	assert.True(t, engine.CanApprove(req, "Rahul (Ops)", RoleOpsManager))
	assert.False(t, engine.CanApprove(req, "Rahul (Ops)", RoleCEO))
	assert.False(t, engine.CanApprove(req, "Unknown", RoleOpsManager))

	// 承認者リストが空ならロール判定のみ
	open := &ProductionRequest{Type: TypeIssue}
	assert.True(t, engine.CanApprove(open, "Anyone", RoleOpsManager))
}
