package procurement

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/opscontrol/flowora/pkg/inventory"
)

// Ledger is the slice of the stock ledger receiving purchases feeds
// 仕入受領が加算する在庫元帳の一部
type Ledger interface {
	GetItem(id string) *inventory.Item
	AddStockRef(ctx context.Context, itemID string, qty float64, locationID string, mvType inventory.MovementType, refType, refID string)
}

// Auditor records procurement actions
// 購買の実行内容を記録
type Auditor interface {
	Add(ctx context.Context, action, entityID, details, actor string, meta map[string]string) string
}

// Snapshot is the procurement dataset returned by a data source
// データソースが返す購買データ一式
type Snapshot struct {
	Orders    []PurchaseOrder `json:"orders"`
	Suppliers []Supplier      `json:"suppliers"`
}

// Source defines the data source behind the procurement store
// 購買ストアの背後にあるデータソースを定義
type Source interface {
	LoadProcurement(ctx context.Context) (*Snapshot, error)
	SavePurchase(ctx context.Context, o *PurchaseOrder) error
	SaveSupplier(ctx context.Context, s *Supplier) error
}

// Store manages purchase orders and suppliers
// 発注と仕入先を管理
type Store struct {
	ledger Ledger
	audit  Auditor
	source Source
	logger *zap.Logger

	mu        sync.Mutex
	orders    []PurchaseOrder
	suppliers []Supplier
	loading   bool

	now func() time.Time
}

// NewStore creates a new procurement store
// 新しい購買ストアを作成
func NewStore(ledger Ledger, auditor Auditor, source Source, logger *zap.Logger) *Store {
	return &Store{
		ledger: ledger,
		audit:  auditor,
		source: source,
		logger: logger,
		now:    time.Now,
	}
}

// Refresh loads the procurement snapshot from the data source
// データソースから購買スナップショットを読み込む
func (s *Store) Refresh(ctx context.Context) error {
	s.mu.Lock()
	if s.loading {
		s.mu.Unlock()
		return nil
	}
	s.loading = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.loading = false
		s.mu.Unlock()
	}()

	snap, err := s.source.LoadProcurement(ctx)
	if err != nil {
		s.logger.Error("購買スナップショット読み込みに失敗しました", zap.Error(err))
		return err
	}

	s.mu.Lock()
	s.orders = snap.Orders
	s.suppliers = snap.Suppliers
	s.mu.Unlock()
	return nil
}

// CreateInput describes a purchase order to create
// 作成する発注の内容を記述
type CreateInput struct {
	SupplierID   string
	Supplier     string
	Contact      string
	ContactEmail string
	ContactPhone string
	Branch       string
	Buyer        string
	Status       PurchaseStatus
	RFQRef       string
	PONumber     string
	Reference    string
	OrderedOn    string
	ExpectedOn   string
	Notes        string
	Tags         []string
	Currency     string
	CreatedBy    string
	Lines        []PurchaseLine
}

// lineTotals computes the taxable and total value of a set of lines:
// taxable = max(0, qty × rate − discount), total = taxable × (1 + tax/100)
// 明細の課税対象額と合計額を計算
func lineTotals(lines []PurchaseLine) (taxable, total decimal.Decimal) {
	hundred := decimal.NewFromInt(100)
	for _, l := range lines {
		lineTaxable := decimal.NewFromFloat(l.Qty).Mul(l.Rate).Sub(l.Discount)
		if lineTaxable.IsNegative() {
			lineTaxable = decimal.Zero
		}
		lineTotal := lineTaxable.Mul(decimal.NewFromInt(1).Add(l.TaxRate.Div(hundred)))
		taxable = taxable.Add(lineTaxable)
		total = total.Add(lineTotal)
	}
	return taxable, total
}

// Create registers a new purchase order and returns its id
// 新しい発注を登録してIDを返す
func (s *Store) Create(ctx context.Context, input CreateInput) string {
	now := s.now().UTC()
	orderedOn := input.OrderedOn
	if orderedOn == "" {
		orderedOn = now.Format("2006-01-02")
	}
	expectedOn := input.ExpectedOn
	if expectedOn == "" {
		expectedOn = now.AddDate(0, 0, 7).Format("2006-01-02")
	}
	status := input.Status
	if status == "" {
		status = StatusPending
	}
	createdBy := input.CreatedBy
	if createdBy == "" {
		createdBy = input.Buyer
	}
	currency := input.Currency
	if currency == "" {
		currency = "INR"
	}

	taxable, total := lineTotals(input.Lines)

	order := PurchaseOrder{
		ID:           NewPurchaseID(),
		PONumber:     input.PONumber,
		RFQRef:       input.RFQRef,
		SupplierID:   input.SupplierID,
		Supplier:     input.Supplier,
		Contact:      input.Contact,
		ContactEmail: input.ContactEmail,
		ContactPhone: input.ContactPhone,
		Branch:       input.Branch,
		Buyer:        input.Buyer,
		Status:       status,
		OrderedOn:    orderedOn,
		ExpectedOn:   expectedOn,
		TaxableValue: taxable,
		TotalValue:   total,
		Currency:     currency,
		CreatedBy:    createdBy,
		Reference:    input.Reference,
		Tags:         input.Tags,
		Notes:        input.Notes,
		Lines:        input.Lines,
	}
	if order.PONumber == "" {
		order.PONumber = "PO-" + order.ID[:8]
	}

	s.mu.Lock()
	s.orders = append([]PurchaseOrder{order}, s.orders...)
	s.mu.Unlock()

	if err := s.source.SavePurchase(ctx, &order); err != nil {
		s.logger.Error("発注の保存に失敗しました（ローカル状態は維持）",
			zap.String("purchase_id", order.ID), zap.Error(err))
	}

	s.audit.Add(ctx, "PURCHASE_CREATED", order.ID,
		fmt.Sprintf("%s created", order.PONumber), order.CreatedBy,
		map[string]string{"requester": order.CreatedBy})

	s.logger.Info("発注作成完了",
		zap.String("purchase_id", order.ID),
		zap.String("po_number", order.PONumber),
		zap.String("total_value", order.TotalValue.String()),
	)

	return order.ID
}

// CreateDraft registers a placeholder draft order awaiting supplier award
// 仕入先決定待ちの下書き発注を登録
func (s *Store) CreateDraft(ctx context.Context, createdBy string) string {
	input := CreateInput{
		Supplier:  "New supplier (post-RFQ)",
		Contact:   "Contact pending",
		Branch:    "Main plant",
		Buyer:     "Procurement Desk",
		Status:    StatusDraft,
		RFQRef:    "RFQ-TBD",
		CreatedBy: createdBy,
		Notes:     "Draft created from RFQ decision; fill supplier, PO number, and dates.",
		Tags:      []string{"RFQ pending award"},
		Lines: []PurchaseLine{
			{SKU: "SKU-TBD", Name: "Line item pending", Qty: 1, UOM: "unit", Rate: decimal.Zero},
		},
	}
	return s.Create(ctx, input)
}

// UpdateStatus moves an order through its lifecycle. Transitioning to
// RECEIVED adds each line's quantity to the ledger and writes a stock
// audit entry per line; every status change is audited.
// 発注の状態を遷移させる。RECEIVEDへの遷移は各明細の数量を元帳に
// 加算し、明細ごとに在庫監査を記録する。全ての状態変更は監査される。
func (s *Store) UpdateStatus(ctx context.Context, id string, status PurchaseStatus, note string) error {
	s.mu.Lock()
	var order *PurchaseOrder
	for i := range s.orders {
		if s.orders[i].ID == id {
			order = &s.orders[i]
			break
		}
	}
	if order == nil {
		s.mu.Unlock()
		return ErrPurchaseNotFound
	}
	order.Status = status
	if note != "" {
		order.Notes = note
	}
	snapshot := *order
	s.mu.Unlock()

	if status == StatusReceived {
		for _, l := range snapshot.Lines {
			s.ledger.AddStockRef(ctx, l.SKU, l.Qty, "", inventory.MovementPurchaseIn, "PURCHASE", snapshot.ID)
			meta := map[string]string{
				"qty":       fmt.Sprintf("%g", l.Qty),
				"requester": snapshot.Buyer,
			}
			if item := s.ledger.GetItem(l.SKU); item != nil {
				meta["item_name"] = item.Name
				meta["sku"] = item.SKU
			}
			s.audit.Add(ctx, "STOCK_UPDATE", l.SKU,
				fmt.Sprintf("PO %s received %g %s", snapshot.PONumber, l.Qty, l.UOM),
				snapshot.CreatedBy, meta)
		}
	}

	if err := s.source.SavePurchase(ctx, &snapshot); err != nil {
		s.logger.Error("発注の保存に失敗しました（ローカル状態は維持）",
			zap.String("purchase_id", id), zap.Error(err))
	}

	s.audit.Add(ctx, "PURCHASE_STATUS", id,
		fmt.Sprintf("%s -> %s", snapshot.PONumber, status), snapshot.CreatedBy,
		map[string]string{"notes": note})

	s.logger.Info("発注状態更新完了",
		zap.String("purchase_id", id),
		zap.String("status", string(status)),
	)

	return nil
}

// ByID returns the purchase order with the given id, or nil
// 指定IDの発注を返す。存在しない場合はnil
func (s *Store) ByID(id string) *PurchaseOrder {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.orders {
		if s.orders[i].ID == id {
			o := s.orders[i]
			return &o
		}
	}
	return nil
}

// Orders returns a snapshot copy of all purchase orders
// 全発注のスナップショットコピーを返す
func (s *Store) Orders() []PurchaseOrder {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PurchaseOrder, len(s.orders))
	copy(out, s.orders)
	return out
}

// AddSupplier registers a new supplier and returns its id
// 新しい仕入先を登録してIDを返す
func (s *Store) AddSupplier(ctx context.Context, supplier Supplier) string {
	if supplier.ID == "" {
		supplier.ID = NewSupplierID()
	}

	s.mu.Lock()
	s.suppliers = append(s.suppliers, supplier)
	s.mu.Unlock()

	if err := s.source.SaveSupplier(ctx, &supplier); err != nil {
		s.logger.Error("仕入先の保存に失敗しました（ローカル状態は維持）",
			zap.String("supplier_id", supplier.ID), zap.Error(err))
	}

	s.audit.Add(ctx, "SUPPLIER_ADDED", supplier.ID, supplier.Name, "system", nil)
	return supplier.ID
}

// Suppliers returns a snapshot copy of all suppliers
// 全仕入先のスナップショットコピーを返す
func (s *Store) Suppliers() []Supplier {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Supplier, len(s.suppliers))
	copy(out, s.suppliers)
	return out
}
