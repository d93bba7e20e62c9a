// Package storage provides the data sources behind the stores: a seeded
// in-memory implementation and a PostgreSQL implementation. The stores
// behave identically on either.
package storage

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opscontrol/flowora/pkg/audit"
	"github.com/opscontrol/flowora/pkg/inventory"
	"github.com/opscontrol/flowora/pkg/procurement"
	"github.com/opscontrol/flowora/pkg/request"
	"github.com/opscontrol/flowora/pkg/task"
)

// MemoryStore is the statically seeded data source. Appends mutate the
// seed in place so a process restart starts clean.
// 静的シードのデータソース。追記はシードをその場で更新するため、
// プロセス再起動で初期状態に戻る。
type MemoryStore struct {
	mu sync.Mutex

	items     []inventory.Item
	locations []inventory.Location
	batches   []inventory.Batch
	stock     []inventory.StockRow
	movements []inventory.Movement

	products []request.Product
	requests []request.ProductionRequest
	lines    []request.Line
	events   []request.ConsumptionEvent
	rules    []request.ApprovalRule

	tasks     []task.Task
	profiles  map[string]task.DemandProfile
	decisions []task.DecisionLog

	auditEntries []audit.Entry

	orders    []procurement.PurchaseOrder
	suppliers []procurement.Supplier
}

// 実装するデータソースインターフェースを明示
var (
	_ inventory.Source   = (*MemoryStore)(nil)
	_ request.Source     = (*MemoryStore)(nil)
	_ task.Source        = (*MemoryStore)(nil)
	_ audit.Source       = (*MemoryStore)(nil)
	_ procurement.Source = (*MemoryStore)(nil)
)

// NewMemoryStore creates an empty in-memory data source
// 空のメモリデータソースを作成
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles: make(map[string]task.DemandProfile),
	}
}

// NewSeededMemoryStore creates an in-memory data source preloaded with the
// demo dataset
// デモデータを投入済みのメモリデータソースを作成
func NewSeededMemoryStore() *MemoryStore {
	s := NewMemoryStore()
	s.seed()
	return s
}

func daysFromNow(n int) string {
	return time.Now().UTC().AddDate(0, 0, n).Format("2006-01-02")
}

// seed loads the demo dataset: a small manufacturing operation with
// batch-tracked consumables across two plant lines and a QA lab
// デモデータを投入。2つの製造ラインとQAラボを持つ小規模製造業の
// バッチ追跡消耗品を想定
func (s *MemoryStore) seed() {
	s.locations = []inventory.Location{
		{ID: "LOC-1", Name: "Selaqui Plant - Line 1", Type: inventory.LocationPlant, Status: inventory.StatusActive},
		{ID: "LOC-2", Name: "Selaqui Plant - Line 2", Type: inventory.LocationPlant, Status: inventory.StatusActive},
		{ID: "LOC-3", Name: "QA Lab Dehradun", Type: inventory.LocationOther, Status: inventory.StatusActive},
	}

	s.items = []inventory.Item{
		{
			ID: "IT-1", SKU: "GLV-01", Name: "Safety Gloves", Category: "PPE", UOM: "PAIR",
			TrackingType: inventory.TrackingBatchExpiry, Status: inventory.StatusActive,
			HSNSAC: "6116", ReorderMinQty: 80, ReorderQty: 200, StdCost: 42, PurchaseCost: 48, SalePrice: 70,
		},
		{
			ID: "IT-2", SKU: "CLN-19", Name: "Industrial Cleaner", Category: "CHEMICAL", UOM: "L",
			TrackingType: inventory.TrackingBatchExpiry, Status: inventory.StatusActive,
			HSNSAC: "3402", ReorderMinQty: 30, ReorderQty: 100, StdCost: 120, PurchaseCost: 135,
		},
		{
			ID: "IT-3", SKU: "TAP-07", Name: "Packing Tape", Category: "PACKAGING", UOM: "ROLL",
			TrackingType: inventory.TrackingBatchExpiry, Status: inventory.StatusActive,
			HSNSAC: "4811", ReorderMinQty: 150, ReorderQty: 500, StdCost: 18, PurchaseCost: 22,
		},
		{
			ID: "IT-STEEL-315", SKU: "STL-315", Name: "Steel Coil 3.15mm", Category: "RAW", UOM: "KG",
			TrackingType: inventory.TrackingBatchExpiry, Status: inventory.StatusActive,
			ReorderMinQty: 4000, ReorderQty: 8000, StdCost: 58, PurchaseCost: 62, LeadTimeDays: 14,
		},
	}

	s.batches = []inventory.Batch{
		{ID: "B-1", ItemID: "IT-1", BatchNumber: "GLO-2409", ExpiryDate: daysFromNow(120)},
		{ID: "B-2", ItemID: "IT-1", BatchNumber: "GLO-2410", ExpiryDate: daysFromNow(20)},
		{ID: "B-3", ItemID: "IT-2", BatchNumber: "CLN-882", ExpiryDate: daysFromNow(60)},
		{ID: "B-4", ItemID: "IT-2", BatchNumber: "CLN-883", ExpiryDate: daysFromNow(-2)},
		{ID: "B-5", ItemID: "IT-3", BatchNumber: "TAP-771", ExpiryDate: daysFromNow(200)},
		{ID: "B-STL-01", ItemID: "IT-STEEL-315", BatchNumber: "STL-2411", ExpiryDate: daysFromNow(365)},
	}

	s.stock = []inventory.StockRow{
		{ItemID: "IT-1", LocationID: "LOC-1", BatchID: "B-1", Qty: 60},
		{ItemID: "IT-1", LocationID: "LOC-1", BatchID: "B-2", Qty: 10},
		{ItemID: "IT-2", LocationID: "LOC-1", BatchID: "B-3", Qty: 45},
		{ItemID: "IT-2", LocationID: "LOC-3", BatchID: "B-4", Qty: 12},
		{ItemID: "IT-3", LocationID: "LOC-2", BatchID: "B-5", Qty: 420},
		{ItemID: "IT-STEEL-315", LocationID: "LOC-1", BatchID: "B-STL-01", Qty: 3200},
	}

	s.products = []request.Product{
		{
			ID: "PRD-HYD-10T", Name: "Hydraulic Press 10T (Workstation)", SKU: "HYD-PR-10T",
			Status: "ACTIVE", UOM: "unit", Category: "Machinery",
			Description: "Compact 10-ton hydraulic press for small-batch fabrication.",
		},
		{
			ID: "PRD-TANK-50L", Name: "Tata Tank 50L Petrol Cylinder", SKU: "TATA-TNK-50",
			Status: "ACTIVE", UOM: "unit", Category: "Fuel Storage",
			Description: "50L petrol storage cylinder with Tata-branded fittings.",
		},
	}

	s.rules = []request.ApprovalRule{
		{Type: request.TypeIssue, Roles: []request.UserRole{request.RoleOpsManager, request.RoleCEO}},
		{Type: request.TypePurchase, Roles: []request.UserRole{request.RoleOpsManager, request.RoleCEO}},
	}

	s.profiles = map[string]task.DemandProfile{
		"IT-STEEL-315": {Monthly: []float64{6000, 6400, 6200, 6500}, LeadDays: 14, UnitCost: 62, Seasonality: 1.08},
		"IT-1":         {Monthly: []float64{900, 950, 920, 980}, LeadDays: 10, UnitCost: 48},
		"IT-2":         {Monthly: []float64{400, 420, 410, 430}, LeadDays: 8, UnitCost: 135},
	}

	s.tasks = []task.Task{
		{
			ID: "TASK-STEEL-SPLIT", ItemID: "IT-STEEL-315", Title: "Split coil STL-315 into blanks",
			Qty: 1500, Status: task.StatusPending, DueDate: daysFromNow(4),
			CreatedAt: time.Now().UTC().Format(time.RFC3339), Assignee: "Stores Team",
		},
	}

	s.suppliers = []procurement.Supplier{
		{ID: "SUP-1", Name: "Dehradun Steel Traders", Contact: "Mohit", Email: "sales@ddnsteel.example", City: "Dehradun"},
		{ID: "SUP-2", Name: "Valley Chemical Supply", Contact: "Priya", Email: "priya@valleychem.example", City: "Haridwar"},
	}

	s.orders = []procurement.PurchaseOrder{
		{
			ID: "PO-SEED-1", PONumber: "PO-FLOW-10021", SupplierID: "SUP-1",
			Supplier: "Dehradun Steel Traders", Contact: "Mohit", Branch: "Selaqui Plant",
			Buyer: "Procurement Desk", Status: procurement.StatusOrdered,
			OrderedOn: daysFromNow(-3), ExpectedOn: daysFromNow(4),
			TaxableValue: decimal.NewFromInt(124000), TotalValue: decimal.NewFromInt(146320),
			Currency: "INR", CreatedBy: "Vikram (Procurement)",
			Lines: []procurement.PurchaseLine{
				{SKU: "IT-STEEL-315", Name: "Steel Coil 3.15mm", Qty: 2000, UOM: "KG", Rate: decimal.NewFromInt(62), TaxRate: decimal.NewFromInt(18)},
			},
		},
	}
}

// --- inventory.Source ---

// LoadInventory returns the inventory snapshot
// 在庫スナップショットを返す
func (s *MemoryStore) LoadInventory(ctx context.Context) (*inventory.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &inventory.Snapshot{
		Items:     append([]inventory.Item(nil), s.items...),
		Locations: append([]inventory.Location(nil), s.locations...),
		Batches:   append([]inventory.Batch(nil), s.batches...),
		Stock:     append([]inventory.StockRow(nil), s.stock...),
		Movements: append([]inventory.Movement(nil), s.movements...),
	}, nil
}

// AppendMovement records a movement
// 移動記録を追記
func (s *MemoryStore) AppendMovement(ctx context.Context, mv *inventory.Movement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.movements = append(s.movements, *mv)
	return nil
}

// UpsertStockRow stores the new value of one stock row
// 在庫行の新しい値を保存
func (s *MemoryStore) UpsertStockRow(ctx context.Context, row *inventory.StockRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.stock {
		r := &s.stock[i]
		if r.ItemID == row.ItemID && r.LocationID == row.LocationID && r.BatchID == row.BatchID {
			r.Qty = row.Qty
			return nil
		}
	}
	s.stock = append(s.stock, *row)
	return nil
}

// SaveItem stores an item
// 商品を保存
func (s *MemoryStore) SaveItem(ctx context.Context, item *inventory.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ID == item.ID {
			s.items[i] = *item
			return nil
		}
	}
	s.items = append(s.items, *item)
	return nil
}

// SaveLocation stores a location
// ロケーションを保存
func (s *MemoryStore) SaveLocation(ctx context.Context, loc *inventory.Location) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.locations {
		if s.locations[i].ID == loc.ID {
			s.locations[i] = *loc
			return nil
		}
	}
	s.locations = append(s.locations, *loc)
	return nil
}

// SaveBatch stores a batch
// バッチを保存
func (s *MemoryStore) SaveBatch(ctx context.Context, batch *inventory.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.batches {
		if s.batches[i].ID == batch.ID {
			s.batches[i] = *batch
			return nil
		}
	}
	s.batches = append(s.batches, *batch)
	return nil
}

// --- request.Source ---

// LoadRequests returns the request snapshot
// リクエストスナップショットを返す
func (s *MemoryStore) LoadRequests(ctx context.Context) (*request.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &request.Snapshot{
		Products: append([]request.Product(nil), s.products...),
		Requests: append([]request.ProductionRequest(nil), s.requests...),
		Lines:    append([]request.Line(nil), s.lines...),
		Events:   append([]request.ConsumptionEvent(nil), s.events...),
		Rules:    append([]request.ApprovalRule(nil), s.rules...),
	}, nil
}

// SaveRequest stores a production request
// 生産リクエストを保存
func (s *MemoryStore) SaveRequest(ctx context.Context, r *request.ProductionRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.requests {
		if s.requests[i].ID == r.ID {
			s.requests[i] = *r
			return nil
		}
	}
	s.requests = append(s.requests, *r)
	return nil
}

// SaveLine stores a request line
// リクエスト明細を保存
func (s *MemoryStore) SaveLine(ctx context.Context, l *request.Line) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.lines {
		if s.lines[i].RequestID == l.RequestID && s.lines[i].ItemID == l.ItemID {
			s.lines[i] = *l
			return nil
		}
	}
	s.lines = append(s.lines, *l)
	return nil
}

// AppendConsumptionEvent records a consumption event
// 消費イベントを追記
func (s *MemoryStore) AppendConsumptionEvent(ctx context.Context, e *request.ConsumptionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, *e)
	return nil
}

// --- task.Source ---

// LoadTasks returns the task snapshot
// タスクスナップショットを返す
func (s *MemoryStore) LoadTasks(ctx context.Context) (*task.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	profiles := make(map[string]task.DemandProfile, len(s.profiles))
	for k, v := range s.profiles {
		profiles[k] = v
	}
	return &task.Snapshot{
		Tasks:     append([]task.Task(nil), s.tasks...),
		Profiles:  profiles,
		Decisions: append([]task.DecisionLog(nil), s.decisions...),
	}, nil
}

// SaveTask stores a task
// タスクを保存
func (s *MemoryStore) SaveTask(ctx context.Context, t *task.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.tasks {
		if s.tasks[i].ID == t.ID {
			s.tasks[i] = *t
			return nil
		}
	}
	s.tasks = append(s.tasks, *t)
	return nil
}

// AppendDecision records a decision log entry
// 判断ログを追記
func (s *MemoryStore) AppendDecision(ctx context.Context, d *task.DecisionLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decisions = append(s.decisions, *d)
	return nil
}

// --- audit.Source ---

// LoadAudit returns persisted audit entries
// 監査エントリを返す
func (s *MemoryStore) LoadAudit(ctx context.Context) ([]audit.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]audit.Entry(nil), s.auditEntries...), nil
}

// AppendAuditEntry records an audit entry
// 監査エントリを追記
func (s *MemoryStore) AppendAuditEntry(ctx context.Context, e *audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auditEntries = append(s.auditEntries, *e)
	return nil
}

// --- procurement.Source ---

// LoadProcurement returns the procurement snapshot
// 購買スナップショットを返す
func (s *MemoryStore) LoadProcurement(ctx context.Context) (*procurement.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &procurement.Snapshot{
		Orders:    append([]procurement.PurchaseOrder(nil), s.orders...),
		Suppliers: append([]procurement.Supplier(nil), s.suppliers...),
	}, nil
}

// SavePurchase stores a purchase order
// 発注を保存
func (s *MemoryStore) SavePurchase(ctx context.Context, o *procurement.PurchaseOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.orders {
		if s.orders[i].ID == o.ID {
			s.orders[i] = *o
			return nil
		}
	}
	s.orders = append(s.orders, *o)
	return nil
}

// SaveSupplier stores a supplier
// 仕入先を保存
func (s *MemoryStore) SaveSupplier(ctx context.Context, sp *procurement.Supplier) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.suppliers {
		if s.suppliers[i].ID == sp.ID {
			s.suppliers[i] = *sp
			return nil
		}
	}
	s.suppliers = append(s.suppliers, *sp)
	return nil
}

// Ping reports the source as healthy
// データソースの稼働状態を報告
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close releases nothing for the in-memory source
// メモリデータソースでは解放対象なし
func (s *MemoryStore) Close() error {
	return nil
}
