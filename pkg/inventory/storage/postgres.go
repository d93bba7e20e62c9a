package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/opscontrol/flowora/pkg/audit"
	"github.com/opscontrol/flowora/pkg/inventory"
	"github.com/opscontrol/flowora/pkg/procurement"
	"github.com/opscontrol/flowora/pkg/request"
	"github.com/opscontrol/flowora/pkg/task"
)

// PostgreSQLStore implements every Source interface using PostgreSQL.
// Nested collections (approvals, docs, purchase lines, metadata) are
// stored as JSONB columns.
// PostgreSQLを使用した全Sourceインターフェースの実装。ネストした
// コレクションはJSONB列として保存する。
type PostgreSQLStore struct {
	db     *sql.DB
	logger *zap.Logger
}

var (
	_ inventory.Source   = (*PostgreSQLStore)(nil)
	_ request.Source     = (*PostgreSQLStore)(nil)
	_ task.Source        = (*PostgreSQLStore)(nil)
	_ audit.Source       = (*PostgreSQLStore)(nil)
	_ procurement.Source = (*PostgreSQLStore)(nil)
)

// NewPostgreSQLStore creates a new PostgreSQL data source
// 新しいPostgreSQLデータソースを作成
func NewPostgreSQLStore(dsn string, logger *zap.Logger) (*PostgreSQLStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗しました: %w", err)
	}

	// 接続テスト
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("データベースpingに失敗しました: %w", err)
	}

	// 接続プール設定
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &PostgreSQLStore{
		db:     db,
		logger: logger,
	}, nil
}

// --- inventory.Source ---

// LoadInventory loads the full inventory snapshot
// 在庫スナップショット一式を読み込む
func (s *PostgreSQLStore) LoadInventory(ctx context.Context) (*inventory.Snapshot, error) {
	snap := &inventory.Snapshot{}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sku, name, category, uom, tracking_type, status,
		       reorder_min_qty, reorder_qty, safety_stock, std_cost, purchase_cost,
		       sale_price, lead_time_days
		FROM items ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("商品読み込みに失敗しました: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var it inventory.Item
		var safetyStock []byte
		if err := rows.Scan(&it.ID, &it.SKU, &it.Name, &it.Category, &it.UOM,
			&it.TrackingType, &it.Status, &it.ReorderMinQty, &it.ReorderQty,
			&safetyStock, &it.StdCost, &it.PurchaseCost, &it.SalePrice, &it.LeadTimeDays); err != nil {
			return nil, fmt.Errorf("商品スキャンに失敗しました: %w", err)
		}
		if len(safetyStock) > 0 {
			if err := json.Unmarshal(safetyStock, &it.SafetyStockByLocation); err != nil {
				s.logger.Warn("安全在庫JSONの復元に失敗しました", zap.String("item_id", it.ID), zap.Error(err))
			}
		}
		snap.Items = append(snap.Items, it)
	}

	locRows, err := s.db.QueryContext(ctx, `SELECT id, name, type, status FROM locations ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("ロケーション読み込みに失敗しました: %w", err)
	}
	defer locRows.Close()
	for locRows.Next() {
		var loc inventory.Location
		if err := locRows.Scan(&loc.ID, &loc.Name, &loc.Type, &loc.Status); err != nil {
			return nil, fmt.Errorf("ロケーションスキャンに失敗しました: %w", err)
		}
		snap.Locations = append(snap.Locations, loc)
	}

	batchRows, err := s.db.QueryContext(ctx, `SELECT id, item_id, batch_number, expiry_date FROM batches ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("バッチ読み込みに失敗しました: %w", err)
	}
	defer batchRows.Close()
	for batchRows.Next() {
		var b inventory.Batch
		if err := batchRows.Scan(&b.ID, &b.ItemID, &b.BatchNumber, &b.ExpiryDate); err != nil {
			return nil, fmt.Errorf("バッチスキャンに失敗しました: %w", err)
		}
		snap.Batches = append(snap.Batches, b)
	}

	stockRows, err := s.db.QueryContext(ctx, `SELECT item_id, location_id, batch_id, qty FROM stock_rows`)
	if err != nil {
		return nil, fmt.Errorf("在庫行読み込みに失敗しました: %w", err)
	}
	defer stockRows.Close()
	for stockRows.Next() {
		var r inventory.StockRow
		if err := stockRows.Scan(&r.ItemID, &r.LocationID, &r.BatchID, &r.Qty); err != nil {
			return nil, fmt.Errorf("在庫行スキャンに失敗しました: %w", err)
		}
		snap.Stock = append(snap.Stock, r)
	}

	mvRows, err := s.db.QueryContext(ctx, `
		SELECT id, type, item_id, batch_id, qty, from_location_id, to_location_id,
		       reason_code, ref_type, ref_id, performed_by, occurred_at
		FROM movements ORDER BY occurred_at`)
	if err != nil {
		return nil, fmt.Errorf("移動記録読み込みに失敗しました: %w", err)
	}
	defer mvRows.Close()
	for mvRows.Next() {
		var m inventory.Movement
		if err := mvRows.Scan(&m.ID, &m.Type, &m.ItemID, &m.BatchID, &m.Qty,
			&m.FromLocationID, &m.ToLocationID, &m.ReasonCode, &m.RefType,
			&m.RefID, &m.PerformedBy, &m.OccurredAt); err != nil {
			return nil, fmt.Errorf("移動記録スキャンに失敗しました: %w", err)
		}
		snap.Movements = append(snap.Movements, m)
	}

	return snap, nil
}

// AppendMovement records a movement. Movements are write-once: there is
// no update statement for them anywhere.
// 移動記録を追記。移動記録は書き込み専用でUPDATE文は存在しない。
func (s *PostgreSQLStore) AppendMovement(ctx context.Context, mv *inventory.Movement) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO movements (id, type, item_id, batch_id, qty, from_location_id,
		                       to_location_id, reason_code, ref_type, ref_id, performed_by, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		mv.ID, mv.Type, mv.ItemID, mv.BatchID, mv.Qty, mv.FromLocationID,
		mv.ToLocationID, mv.ReasonCode, mv.RefType, mv.RefID, mv.PerformedBy, mv.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("移動記録作成に失敗しました: %w", err)
	}
	return nil
}

// UpsertStockRow stores the new value of one stock row
// 在庫行の新しい値を保存
func (s *PostgreSQLStore) UpsertStockRow(ctx context.Context, row *inventory.StockRow) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stock_rows (item_id, location_id, batch_id, qty)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (item_id, location_id, batch_id)
		DO UPDATE SET qty = EXCLUDED.qty`,
		row.ItemID, row.LocationID, row.BatchID, row.Qty,
	)
	if err != nil {
		return fmt.Errorf("在庫行保存に失敗しました: %w", err)
	}
	return nil
}

// SaveItem stores an item
// 商品を保存
func (s *PostgreSQLStore) SaveItem(ctx context.Context, item *inventory.Item) error {
	safetyStock, err := json.Marshal(item.SafetyStockByLocation)
	if err != nil {
		return fmt.Errorf("安全在庫のJSON変換に失敗しました: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO items (id, sku, name, category, uom, tracking_type, status,
		                   reorder_min_qty, reorder_qty, safety_stock, std_cost,
		                   purchase_cost, sale_price, lead_time_days)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			sku = EXCLUDED.sku, name = EXCLUDED.name, category = EXCLUDED.category,
			uom = EXCLUDED.uom, tracking_type = EXCLUDED.tracking_type,
			status = EXCLUDED.status, reorder_min_qty = EXCLUDED.reorder_min_qty,
			reorder_qty = EXCLUDED.reorder_qty, safety_stock = EXCLUDED.safety_stock,
			std_cost = EXCLUDED.std_cost, purchase_cost = EXCLUDED.purchase_cost,
			sale_price = EXCLUDED.sale_price, lead_time_days = EXCLUDED.lead_time_days`,
		item.ID, item.SKU, item.Name, item.Category, item.UOM, item.TrackingType,
		item.Status, item.ReorderMinQty, item.ReorderQty, safetyStock,
		item.StdCost, item.PurchaseCost, item.SalePrice, item.LeadTimeDays,
	)
	if err != nil {
		return fmt.Errorf("商品保存に失敗しました: %w", err)
	}
	return nil
}

// SaveLocation stores a location
// ロケーションを保存
func (s *PostgreSQLStore) SaveLocation(ctx context.Context, loc *inventory.Location) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO locations (id, name, type, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, type = EXCLUDED.type, status = EXCLUDED.status`,
		loc.ID, loc.Name, loc.Type, loc.Status,
	)
	if err != nil {
		return fmt.Errorf("ロケーション保存に失敗しました: %w", err)
	}
	return nil
}

// SaveBatch stores a batch. The expiry date never changes after insert.
// バッチを保存。有効期限は挿入後に変更しない。
func (s *PostgreSQLStore) SaveBatch(ctx context.Context, batch *inventory.Batch) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO batches (id, item_id, batch_number, expiry_date)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING`,
		batch.ID, batch.ItemID, batch.BatchNumber, batch.ExpiryDate,
	)
	if err != nil {
		return fmt.Errorf("バッチ保存に失敗しました: %w", err)
	}
	return nil
}

// --- request.Source ---

// LoadRequests loads the full request snapshot
// リクエストスナップショット一式を読み込む
func (s *PostgreSQLStore) LoadRequests(ctx context.Context) (*request.Snapshot, error) {
	snap := &request.Snapshot{}

	prodRows, err := s.db.QueryContext(ctx, `
		SELECT id, name, sku, status, uom, category, description FROM products ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("製品読み込みに失敗しました: %w", err)
	}
	defer prodRows.Close()
	for prodRows.Next() {
		var p request.Product
		if err := prodRows.Scan(&p.ID, &p.Name, &p.SKU, &p.Status, &p.UOM, &p.Category, &p.Description); err != nil {
			return nil, fmt.Errorf("製品スキャンに失敗しました: %w", err)
		}
		snap.Products = append(snap.Products, p)
	}

	reqRows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, type, requested_by, requested_by_role, approvers,
		       approved_by, approvals, status, target_qty, description,
		       created_at, approved_at, closed_at, docs
		FROM requests ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("リクエスト読み込みに失敗しました: %w", err)
	}
	defer reqRows.Close()
	for reqRows.Next() {
		var r request.ProductionRequest
		var approvers, approvedBy, approvals, docs []byte
		if err := reqRows.Scan(&r.ID, &r.ProductID, &r.Type, &r.RequestedBy,
			&r.RequestedByRole, &approvers, &approvedBy, &approvals, &r.Status,
			&r.TargetQty, &r.Description, &r.CreatedAt, &r.ApprovedAt, &r.ClosedAt, &docs); err != nil {
			return nil, fmt.Errorf("リクエストスキャンに失敗しました: %w", err)
		}
		unmarshalInto(s.logger, approvers, &r.Approvers)
		unmarshalInto(s.logger, approvedBy, &r.ApprovedBy)
		unmarshalInto(s.logger, approvals, &r.Approvals)
		unmarshalInto(s.logger, docs, &r.Docs)
		snap.Requests = append(snap.Requests, r)
	}

	lineRows, err := s.db.QueryContext(ctx, `
		SELECT request_id, item_id, requested_qty, approved_qty, used_qty,
		       returned_qty, rejected_qty, reason, notes
		FROM request_lines`)
	if err != nil {
		return nil, fmt.Errorf("明細読み込みに失敗しました: %w", err)
	}
	defer lineRows.Close()
	for lineRows.Next() {
		var l request.Line
		if err := lineRows.Scan(&l.RequestID, &l.ItemID, &l.RequestedQty, &l.ApprovedQty,
			&l.UsedQty, &l.ReturnedQty, &l.RejectedQty, &l.Reason, &l.Notes); err != nil {
			return nil, fmt.Errorf("明細スキャンに失敗しました: %w", err)
		}
		snap.Lines = append(snap.Lines, l)
	}

	evRows, err := s.db.QueryContext(ctx, `
		SELECT id, request_id, item_id, kind, qty, reason, by_user, at
		FROM consumption_events ORDER BY at`)
	if err != nil {
		return nil, fmt.Errorf("消費イベント読み込みに失敗しました: %w", err)
	}
	defer evRows.Close()
	for evRows.Next() {
		var e request.ConsumptionEvent
		if err := evRows.Scan(&e.ID, &e.RequestID, &e.ItemID, &e.Kind, &e.Qty, &e.Reason, &e.By, &e.At); err != nil {
			return nil, fmt.Errorf("消費イベントスキャンに失敗しました: %w", err)
		}
		snap.Events = append(snap.Events, e)
	}

	ruleRows, err := s.db.QueryContext(ctx, `SELECT type, min_amount, roles FROM approval_rules`)
	if err != nil {
		return nil, fmt.Errorf("承認ルール読み込みに失敗しました: %w", err)
	}
	defer ruleRows.Close()
	for ruleRows.Next() {
		var rule request.ApprovalRule
		var roles []byte
		if err := ruleRows.Scan(&rule.Type, &rule.MinAmount, &roles); err != nil {
			return nil, fmt.Errorf("承認ルールスキャンに失敗しました: %w", err)
		}
		unmarshalInto(s.logger, roles, &rule.Roles)
		snap.Rules = append(snap.Rules, rule)
	}

	return snap, nil
}

// SaveRequest stores a production request
// 生産リクエストを保存
func (s *PostgreSQLStore) SaveRequest(ctx context.Context, r *request.ProductionRequest) error {
	approvers, _ := json.Marshal(r.Approvers)
	approvedBy, _ := json.Marshal(r.ApprovedBy)
	approvals, _ := json.Marshal(r.Approvals)
	docs, _ := json.Marshal(r.Docs)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO requests (id, product_id, type, requested_by, requested_by_role,
		                      approvers, approved_by, approvals, status, target_qty,
		                      description, created_at, approved_at, closed_at, docs)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			approved_by = EXCLUDED.approved_by, approvals = EXCLUDED.approvals,
			status = EXCLUDED.status, approved_at = EXCLUDED.approved_at,
			closed_at = EXCLUDED.closed_at, docs = EXCLUDED.docs`,
		r.ID, r.ProductID, r.Type, r.RequestedBy, r.RequestedByRole,
		approvers, approvedBy, approvals, r.Status, r.TargetQty,
		r.Description, r.CreatedAt, r.ApprovedAt, r.ClosedAt, docs,
	)
	if err != nil {
		return fmt.Errorf("リクエスト保存に失敗しました: %w", err)
	}
	return nil
}

// SaveLine stores a request line
// リクエスト明細を保存
func (s *PostgreSQLStore) SaveLine(ctx context.Context, l *request.Line) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO request_lines (request_id, item_id, requested_qty, approved_qty,
		                           used_qty, returned_qty, rejected_qty, reason, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (request_id, item_id) DO UPDATE SET
			approved_qty = EXCLUDED.approved_qty, used_qty = EXCLUDED.used_qty,
			returned_qty = EXCLUDED.returned_qty, rejected_qty = EXCLUDED.rejected_qty,
			reason = EXCLUDED.reason, notes = EXCLUDED.notes`,
		l.RequestID, l.ItemID, l.RequestedQty, l.ApprovedQty,
		l.UsedQty, l.ReturnedQty, l.RejectedQty, l.Reason, l.Notes,
	)
	if err != nil {
		return fmt.Errorf("明細保存に失敗しました: %w", err)
	}
	return nil
}

// AppendConsumptionEvent records a consumption event (write-once)
// 消費イベントを追記（書き込み専用）
func (s *PostgreSQLStore) AppendConsumptionEvent(ctx context.Context, e *request.ConsumptionEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO consumption_events (id, request_id, item_id, kind, qty, reason, by_user, at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.RequestID, e.ItemID, e.Kind, e.Qty, e.Reason, e.By, e.At,
	)
	if err != nil {
		return fmt.Errorf("消費イベント作成に失敗しました: %w", err)
	}
	return nil
}

// --- task.Source ---

// LoadTasks loads the task snapshot
// タスクスナップショットを読み込む
func (s *PostgreSQLStore) LoadTasks(ctx context.Context) (*task.Snapshot, error) {
	snap := &task.Snapshot{Profiles: make(map[string]task.DemandProfile)}

	taskRows, err := s.db.QueryContext(ctx, `
		SELECT id, item_id, title, qty, status, due_date, created_at,
		       assignee, reason, category, request_id
		FROM tasks ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("タスク読み込みに失敗しました: %w", err)
	}
	defer taskRows.Close()
	for taskRows.Next() {
		var t task.Task
		if err := taskRows.Scan(&t.ID, &t.ItemID, &t.Title, &t.Qty, &t.Status,
			&t.DueDate, &t.CreatedAt, &t.Assignee, &t.Reason, &t.Category, &t.RequestID); err != nil {
			return nil, fmt.Errorf("タスクスキャンに失敗しました: %w", err)
		}
		snap.Tasks = append(snap.Tasks, t)
	}

	profRows, err := s.db.QueryContext(ctx, `
		SELECT item_id, monthly, lead_days, unit_cost, seasonality FROM demand_profiles`)
	if err != nil {
		return nil, fmt.Errorf("需要プロファイル読み込みに失敗しました: %w", err)
	}
	defer profRows.Close()
	for profRows.Next() {
		var itemID string
		var monthly []byte
		var p task.DemandProfile
		if err := profRows.Scan(&itemID, &monthly, &p.LeadDays, &p.UnitCost, &p.Seasonality); err != nil {
			return nil, fmt.Errorf("需要プロファイルスキャンに失敗しました: %w", err)
		}
		unmarshalInto(s.logger, monthly, &p.Monthly)
		snap.Profiles[itemID] = p
	}

	decRows, err := s.db.QueryContext(ctx, `
		SELECT id, item_id, action, qty, price, days_to_arrive, at, note
		FROM decision_logs ORDER BY at DESC`)
	if err != nil {
		return nil, fmt.Errorf("判断ログ読み込みに失敗しました: %w", err)
	}
	defer decRows.Close()
	for decRows.Next() {
		var d task.DecisionLog
		if err := decRows.Scan(&d.ID, &d.ItemID, &d.Action, &d.Qty, &d.Price,
			&d.DaysToArrive, &d.At, &d.Note); err != nil {
			return nil, fmt.Errorf("判断ログスキャンに失敗しました: %w", err)
		}
		snap.Decisions = append(snap.Decisions, d)
	}

	return snap, nil
}

// SaveTask stores a task
// タスクを保存
func (s *PostgreSQLStore) SaveTask(ctx context.Context, t *task.Task) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, item_id, title, qty, status, due_date, created_at,
		                   assignee, reason, category, request_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status, reason = EXCLUDED.reason`,
		t.ID, t.ItemID, t.Title, t.Qty, t.Status, t.DueDate, t.CreatedAt,
		t.Assignee, t.Reason, t.Category, t.RequestID,
	)
	if err != nil {
		return fmt.Errorf("タスク保存に失敗しました: %w", err)
	}
	return nil
}

// AppendDecision records a decision log entry (write-once)
// 判断ログを追記（書き込み専用）
func (s *PostgreSQLStore) AppendDecision(ctx context.Context, d *task.DecisionLog) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO decision_logs (id, item_id, action, qty, price, days_to_arrive, at, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		d.ID, d.ItemID, d.Action, d.Qty, d.Price, d.DaysToArrive, d.At, d.Note,
	)
	if err != nil {
		return fmt.Errorf("判断ログ作成に失敗しました: %w", err)
	}
	return nil
}

// --- audit.Source ---

// LoadAudit loads persisted audit entries
// 監査エントリを読み込む
func (s *PostgreSQLStore) LoadAudit(ctx context.Context) ([]audit.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, action, entity_id, details, actor, at, meta
		FROM audit_entries ORDER BY at`)
	if err != nil {
		return nil, fmt.Errorf("監査エントリ読み込みに失敗しました: %w", err)
	}
	defer rows.Close()

	var entries []audit.Entry
	for rows.Next() {
		var e audit.Entry
		var meta []byte
		if err := rows.Scan(&e.ID, &e.Action, &e.EntityID, &e.Details, &e.Actor, &e.At, &meta); err != nil {
			return nil, fmt.Errorf("監査エントリスキャンに失敗しました: %w", err)
		}
		unmarshalInto(s.logger, meta, &e.Meta)
		entries = append(entries, e)
	}
	return entries, nil
}

// AppendAuditEntry records an audit entry. The table has no update or
// delete path.
// 監査エントリを追記。このテーブルに更新・削除経路は存在しない。
func (s *PostgreSQLStore) AppendAuditEntry(ctx context.Context, e *audit.Entry) error {
	meta, _ := json.Marshal(e.Meta)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_entries (id, action, entity_id, details, actor, at, meta)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.Action, e.EntityID, e.Details, e.Actor, e.At, meta,
	)
	if err != nil {
		return fmt.Errorf("監査エントリ作成に失敗しました: %w", err)
	}
	return nil
}

// --- procurement.Source ---

// LoadProcurement loads purchase orders and suppliers
// 発注と仕入先を読み込む
func (s *PostgreSQLStore) LoadProcurement(ctx context.Context) (*procurement.Snapshot, error) {
	snap := &procurement.Snapshot{}

	orderRows, err := s.db.QueryContext(ctx, `
		SELECT id, po_number, rfq_ref, supplier_id, supplier, contact, branch, buyer,
		       status, ordered_on, expected_on, taxable_value, total_value, currency,
		       created_by, notes, lines
		FROM purchase_orders ORDER BY ordered_on DESC`)
	if err != nil {
		return nil, fmt.Errorf("発注読み込みに失敗しました: %w", err)
	}
	defer orderRows.Close()
	for orderRows.Next() {
		var o procurement.PurchaseOrder
		var taxable, total string
		var lines []byte
		if err := orderRows.Scan(&o.ID, &o.PONumber, &o.RFQRef, &o.SupplierID,
			&o.Supplier, &o.Contact, &o.Branch, &o.Buyer, &o.Status, &o.OrderedOn,
			&o.ExpectedOn, &taxable, &total, &o.Currency, &o.CreatedBy, &o.Notes, &lines); err != nil {
			return nil, fmt.Errorf("発注スキャンに失敗しました: %w", err)
		}
		o.TaxableValue, _ = decimal.NewFromString(taxable)
		o.TotalValue, _ = decimal.NewFromString(total)
		unmarshalInto(s.logger, lines, &o.Lines)
		snap.Orders = append(snap.Orders, o)
	}

	supRows, err := s.db.QueryContext(ctx, `SELECT id, name, contact, email, phone, city FROM suppliers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("仕入先読み込みに失敗しました: %w", err)
	}
	defer supRows.Close()
	for supRows.Next() {
		var sp procurement.Supplier
		if err := supRows.Scan(&sp.ID, &sp.Name, &sp.Contact, &sp.Email, &sp.Phone, &sp.City); err != nil {
			return nil, fmt.Errorf("仕入先スキャンに失敗しました: %w", err)
		}
		snap.Suppliers = append(snap.Suppliers, sp)
	}

	return snap, nil
}

// SavePurchase stores a purchase order
// 発注を保存
func (s *PostgreSQLStore) SavePurchase(ctx context.Context, o *procurement.PurchaseOrder) error {
	lines, err := json.Marshal(o.Lines)
	if err != nil {
		return fmt.Errorf("明細のJSON変換に失敗しました: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO purchase_orders (id, po_number, rfq_ref, supplier_id, supplier,
		                             contact, branch, buyer, status, ordered_on,
		                             expected_on, taxable_value, total_value,
		                             currency, created_by, notes, lines)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status, notes = EXCLUDED.notes`,
		o.ID, o.PONumber, o.RFQRef, o.SupplierID, o.Supplier, o.Contact, o.Branch,
		o.Buyer, o.Status, o.OrderedOn, o.ExpectedOn, o.TaxableValue.String(),
		o.TotalValue.String(), o.Currency, o.CreatedBy, o.Notes, lines,
	)
	if err != nil {
		return fmt.Errorf("発注保存に失敗しました: %w", err)
	}
	return nil
}

// SaveSupplier stores a supplier
// 仕入先を保存
func (s *PostgreSQLStore) SaveSupplier(ctx context.Context, sp *procurement.Supplier) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO suppliers (id, name, contact, email, phone, city)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, contact = EXCLUDED.contact, email = EXCLUDED.email,
			phone = EXCLUDED.phone, city = EXCLUDED.city`,
		sp.ID, sp.Name, sp.Contact, sp.Email, sp.Phone, sp.City,
	)
	if err != nil {
		return fmt.Errorf("仕入先保存に失敗しました: %w", err)
	}
	return nil
}

// Ping checks the database connection
// データベース接続を確認
func (s *PostgreSQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
// データベース接続を閉じる
func (s *PostgreSQLStore) Close() error {
	return s.db.Close()
}

// unmarshalInto decodes a JSONB column, logging instead of failing
// JSONB列を復元。失敗時はログのみ残す
func unmarshalInto(logger *zap.Logger, data []byte, v interface{}) {
	if len(data) == 0 {
		return
	}
	if err := json.Unmarshal(data, v); err != nil {
		logger.Warn("JSON列の復元に失敗しました", zap.Error(err))
	}
}
