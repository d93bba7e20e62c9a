package inventory

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Ledger implements the StockLedger and Registry interfaces over an
// in-memory dataset loaded from a Source
// Sourceから読み込んだメモリ上のデータセットに対して
// StockLedgerとRegistryを実装
type Ledger struct {
	source    Source         // データソース
	publisher EventPublisher // イベント発行者
	logger    *zap.Logger    // ログ
	config    *Config        // 設定

	mu        sync.RWMutex
	items     []Item
	locations []Location
	batches   []Batch
	stock     []StockRow
	movements []Movement
	loading   bool
	loaded    bool

	now func() time.Time // テストで差し替え可能な時計
}

// すべてのインターフェースを実装することを明示
var (
	_ StockLedger = (*Ledger)(nil)
	_ Registry    = (*Ledger)(nil)
)

// Config holds configuration for the stock ledger
// 在庫元帳の設定を保持
type Config struct {
	DefaultLocationName string       `yaml:"default_location_name"` // 既定ロケーション名
	RemovalOrder        RemovalOrder `yaml:"removal_order"`         // 出庫時の並び順ポリシー
}

// NewLedger creates a new stock ledger
// 新しい在庫元帳を作成
func NewLedger(source Source, publisher EventPublisher, logger *zap.Logger, config *Config) *Ledger {
	if config == nil {
		config = &Config{
			DefaultLocationName: "Main Store",
			RemovalOrder:        RemovalOrderFEFO,
		}
	}
	if config.RemovalOrder == "" {
		config.RemovalOrder = RemovalOrderFEFO
	}

	return &Ledger{
		source:    source,
		publisher: publisher,
		logger:    logger,
		config:    config,
		now:       time.Now,
	}
}

// SetPublisher attaches an event publisher after construction. The task
// engine subscribes this way because it also reads the ledger.
// 構築後にイベント発行者を接続。タスクエンジンは元帳を参照するため
// この経路で購読する。
func (l *Ledger) SetPublisher(publisher EventPublisher) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.publisher = publisher
}

// Refresh loads the inventory snapshot from the data source. A refresh
// already in flight makes this call a no-op; a failed load retains the
// previous in-memory state.
// データソースから在庫スナップショットを読み込む。実行中の再読込が
// ある場合は何もしない。読み込み失敗時は直前の状態を保持する。
func (l *Ledger) Refresh(ctx context.Context) error {
	l.mu.Lock()
	if l.loading {
		l.mu.Unlock()
		return nil
	}
	l.loading = true
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.loading = false
		l.mu.Unlock()
	}()

	snap, err := l.source.LoadInventory(ctx)
	if err != nil {
		l.logger.Error("在庫スナップショット読み込みに失敗しました", zap.Error(err))
		return NewStorageError("load_inventory", "在庫スナップショット読み込みに失敗しました", err)
	}

	l.mu.Lock()
	l.items = snap.Items
	l.locations = snap.Locations
	l.batches = snap.Batches
	l.stock = snap.Stock
	l.movements = snap.Movements
	l.loaded = true
	l.mu.Unlock()

	l.logger.Info("在庫スナップショット読み込み完了",
		zap.Int("items", len(snap.Items)),
		zap.Int("locations", len(snap.Locations)),
		zap.Int("batches", len(snap.Batches)),
		zap.Int("stock_rows", len(snap.Stock)),
	)

	return nil
}

// Loaded reports whether an initial snapshot has been applied
// 初回スナップショットが適用済みかを報告
func (l *Ledger) Loaded() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.loaded
}

// GetItem returns the item with the given id, or nil
// 指定IDの商品を返す。存在しない場合はnil
func (l *Ledger) GetItem(id string) *Item {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for i := range l.items {
		if l.items[i].ID == id {
			item := l.items[i]
			return &item
		}
	}
	return nil
}

// GetLocation returns the location with the given id, or nil
// 指定IDのロケーションを返す。存在しない場合はnil
func (l *Ledger) GetLocation(id string) *Location {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for i := range l.locations {
		if l.locations[i].ID == id {
			loc := l.locations[i]
			return &loc
		}
	}
	return nil
}

// GetBatch returns the batch with the given id, or nil
// 指定IDのバッチを返す。存在しない場合はnil
func (l *Ledger) GetBatch(id string) *Batch {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.getBatchLocked(id)
}

func (l *Ledger) getBatchLocked(id string) *Batch {
	if id == "" {
		return nil
	}
	for i := range l.batches {
		if l.batches[i].ID == id {
			b := l.batches[i]
			return &b
		}
	}
	return nil
}

// Items returns a copy of all items
// 全商品のコピーを返す
func (l *Ledger) Items() []Item {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Item, len(l.items))
	copy(out, l.items)
	return out
}

// Locations returns a copy of all locations
// 全ロケーションのコピーを返す
func (l *Ledger) Locations() []Location {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Location, len(l.locations))
	copy(out, l.locations)
	return out
}

// StockRows returns a copy of all stock rows
// 全在庫行のコピーを返す
func (l *Ledger) StockRows() []StockRow {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]StockRow, len(l.stock))
	copy(out, l.stock)
	return out
}

// AddItem registers a new item. The id is immutable afterwards.
// 新しい商品を登録。以降IDは変更不可。
func (l *Ledger) AddItem(ctx context.Context, item Item) (string, error) {
	if err := ValidateItemName(item.Name); err != nil {
		return "", err
	}
	if err := ValidateSKU(item.SKU); err != nil {
		return "", err
	}
	if item.ID == "" {
		item.ID = NewItemID()
	}
	if item.Status == "" {
		item.Status = StatusActive
	}
	if item.TrackingType == "" {
		item.TrackingType = TrackingBatchExpiry
	}

	l.mu.Lock()
	for i := range l.items {
		if l.items[i].ID == item.ID {
			l.mu.Unlock()
			return "", ErrDuplicateItem
		}
	}
	l.items = append([]Item{item}, l.items...)
	l.mu.Unlock()

	if err := l.source.SaveItem(ctx, &item); err != nil {
		l.logger.Error("商品の保存に失敗しました（ローカル状態は維持）",
			zap.String("item_id", item.ID), zap.Error(err))
	}

	l.logger.Info("商品登録完了",
		zap.String("item_id", item.ID),
		zap.String("sku", item.SKU),
		zap.String("name", item.Name),
	)

	return item.ID, nil
}

// AddLocation registers a new location ad hoc
// 新しいロケーションを即時登録
func (l *Ledger) AddLocation(ctx context.Context, name string, locType LocationType) *Location {
	if locType == "" {
		locType = LocationWarehouse
	}
	loc := Location{
		ID:     NewLocationID(),
		Name:   name,
		Type:   locType,
		Status: StatusActive,
	}

	l.mu.Lock()
	l.locations = append(l.locations, loc)
	l.mu.Unlock()

	if err := l.source.SaveLocation(ctx, &loc); err != nil {
		l.logger.Error("ロケーションの保存に失敗しました（ローカル状態は維持）",
			zap.String("location_id", loc.ID), zap.Error(err))
	}

	l.logger.Info("ロケーション登録完了",
		zap.String("location_id", loc.ID),
		zap.String("name", name),
		zap.String("type", string(locType)),
	)

	return &loc
}

// AddBatch registers a new batch. The expiry date is immutable once set.
// 新しいバッチを登録。有効期限は設定後変更不可。
func (l *Ledger) AddBatch(ctx context.Context, batch Batch) (string, error) {
	if batch.ItemID == "" {
		return "", NewValidationError("item_id", "商品IDが指定されていません", "")
	}
	if batch.ExpiryDate != "" {
		if err := ValidateISODate(batch.ExpiryDate); err != nil {
			return "", err
		}
	}
	if batch.ID == "" {
		batch.ID = NewBatchID()
	}

	l.mu.Lock()
	for i := range l.batches {
		if l.batches[i].ID == batch.ID {
			l.mu.Unlock()
			return "", NewBusinessRuleError("duplicate_batch", "バッチは既に存在します", batch.ID)
		}
	}
	l.batches = append(l.batches, batch)
	l.mu.Unlock()

	if err := l.source.SaveBatch(ctx, &batch); err != nil {
		l.logger.Error("バッチの保存に失敗しました（ローカル状態は維持）",
			zap.String("batch_id", batch.ID), zap.Error(err))
	}

	return batch.ID, nil
}

// QuantityInScope sums stock row quantities for an item within a scope.
// Never negative; unknown ids yield zero.
// スコープ内の商品在庫数量を合計。負値にはならず、未知IDは0。
func (l *Ledger) QuantityInScope(itemID string, scope Scope) float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.quantityInScopeLocked(itemID, scope)
}

func (l *Ledger) quantityInScopeLocked(itemID string, scope Scope) float64 {
	total := 0.0
	for i := range l.stock {
		r := &l.stock[i]
		if r.ItemID != itemID {
			continue
		}
		if scope.Mode == ScopeModeOne && r.LocationID != scope.LocationID {
			continue
		}
		total += r.Qty
	}
	if total < 0 {
		return 0
	}
	return total
}

// EarliestExpiry returns the chronologically smallest expiry date among
// batches holding positive stock in scope, or "" when none exists.
// Non-batch rows (empty batch id) carry no expiry and are excluded.
// スコープ内で正の在庫を持つバッチの最も早い有効期限を返す。
// 存在しない場合は空文字。非バッチ行は期限を持たないため除外。
func (l *Ledger) EarliestExpiry(itemID string, scope Scope) string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	seen := make(map[string]bool)
	earliest := ""
	for i := range l.stock {
		r := &l.stock[i]
		if r.ItemID != itemID || r.Qty <= 0 || r.BatchID == "" {
			continue
		}
		if scope.Mode == ScopeModeOne && r.LocationID != scope.LocationID {
			continue
		}
		if seen[r.BatchID] {
			continue
		}
		seen[r.BatchID] = true
		b := l.getBatchLocked(r.BatchID)
		if b == nil || b.ExpiryDate == "" {
			continue
		}
		// ISO形式は固定幅のため文字列比較＝日付比較
		if earliest == "" || b.ExpiryDate < earliest {
			earliest = b.ExpiryDate
		}
	}
	return earliest
}

// todayISO returns today's date in ISO format
// 今日の日付をISO形式で返す
func (l *Ledger) todayISO() string {
	return l.now().UTC().Format("2006-01-02")
}

// IsExpired reports whether the given ISO date lies strictly in the past
// 指定したISO日付が過去かどうかを報告（当日は期限内）
func (l *Ledger) IsExpired(dateISO string) bool {
	if dateISO == "" {
		return false
	}
	return dateISO < l.todayISO()
}

// IsExpiringWithin reports whether the date falls within the next N days
// 指定日がN日以内に到来するかを報告
func (l *Ledger) IsExpiringWithin(dateISO string, days int) bool {
	if dateISO == "" {
		return false
	}
	d, err := time.Parse("2006-01-02", dateISO)
	if err != nil {
		return false
	}
	today, _ := time.Parse("2006-01-02", l.todayISO())
	diff := int(d.Sub(today).Hours() / 24)
	return diff >= 0 && diff <= days
}

// FEFOAllocate aggregates per-batch quantities at one location and orders
// them earliest-expiry-first. Expired batches are surfaced so callers can
// reject them before consumption; rows without a known batch are dropped.
// 1ロケーションのバッチ別数量を集計し、有効期限の早い順に並べる。
// 期限切れバッチも返すため、消費前に呼び出し側で拒否すること。
func (l *Ledger) FEFOAllocate(itemID, locationID string) []BatchQuantity {
	l.mu.RLock()
	defer l.mu.RUnlock()

	byBatch := make(map[string]float64)
	for i := range l.stock {
		r := &l.stock[i]
		if r.ItemID != itemID || r.LocationID != locationID || r.Qty <= 0 {
			continue
		}
		byBatch[r.BatchID] += r.Qty
	}

	var out []BatchQuantity
	for batchID, qty := range byBatch {
		b := l.getBatchLocked(batchID)
		if b == nil {
			continue
		}
		out = append(out, BatchQuantity{BatchID: batchID, Qty: qty, Batch: b})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Batch.ExpiryDate != out[j].Batch.ExpiryDate {
			return out[i].Batch.ExpiryDate < out[j].Batch.ExpiryDate
		}
		return out[i].BatchID < out[j].BatchID
	})

	return out
}

// StockByLocation aggregates an item's quantity per location, largest first
// 商品のロケーション別数量を集計し、多い順に返す
func (l *Ledger) StockByLocation(itemID string) []LocationQuantity {
	l.mu.RLock()
	defer l.mu.RUnlock()

	byLoc := make(map[string]float64)
	for i := range l.stock {
		r := &l.stock[i]
		if r.ItemID != itemID {
			continue
		}
		byLoc[r.LocationID] += r.Qty
	}

	var out []LocationQuantity
	for locID, qty := range byLoc {
		var loc *Location
		for i := range l.locations {
			if l.locations[i].ID == locID {
				cp := l.locations[i]
				loc = &cp
				break
			}
		}
		out = append(out, LocationQuantity{LocationID: locID, Qty: qty, Location: loc})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Qty != out[j].Qty {
			return out[i].Qty > out[j].Qty
		}
		return out[i].LocationID < out[j].LocationID
	})

	return out
}

// MovementsForItem returns the item's movements, newest first
// 商品の移動履歴を新しい順に返す
func (l *Ledger) MovementsForItem(itemID string) []Movement {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Movement
	for i := range l.movements {
		if l.movements[i].ItemID == itemID {
			out = append(out, l.movements[i])
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].OccurredAt > out[j].OccurredAt
	})
	return out
}

// MinimumThreshold resolves the reorder threshold for an item in a scope.
// Single-location scope prefers the per-location safety stock; all-location
// scope sums nonzero per-location values, else falls back to the global
// reorder minimum.
// スコープに応じた発注閾値を解決。単一ロケーションはロケーション別
// 安全在庫を優先、全ロケーションは非ゼロの安全在庫合計を使用し、
// なければ全体の発注点にフォールバック。
func (l *Ledger) MinimumThreshold(item *Item, scope Scope) float64 {
	if item == nil {
		return 0
	}
	byLoc := item.SafetyStockByLocation
	if scope.Mode == ScopeModeOne {
		if v, ok := byLoc[scope.LocationID]; ok && isFinite(v) {
			return v
		}
		return item.ReorderMinQty
	}
	perLocation := 0.0
	for _, v := range byLoc {
		if isFinite(v) {
			perLocation += v
		}
	}
	if perLocation > 0 {
		return perLocation
	}
	return item.ReorderMinQty
}

// LowStock reports whether an item is below its threshold in scope.
// The comparator is strictly less-than.
// スコープ内で商品が閾値未満かを報告。比較は厳密な小なり。
func (l *Ledger) LowStock(item *Item, scope Scope) bool {
	if item == nil {
		return false
	}
	min := l.MinimumThreshold(item, scope)
	if min <= 0 {
		return false
	}
	return l.QuantityInScope(item.ID, scope) < min
}

// AddStock increases non-batch stock for an item. Zero or non-finite
// quantities are a silent no-op. An empty location id resolves to the
// primary location, creating the default one when none exists.
// 非バッチ在庫を追加。0または非有限の数量は何もしない。ロケーション
// 未指定時は先頭ロケーションを使用し、なければ既定ロケーションを作成。
func (l *Ledger) AddStock(ctx context.Context, itemID string, qty float64, locationID string) {
	l.AddStockRef(ctx, itemID, qty, locationID, MovementAdjust, "", "")
}

// AddStockRef adds non-batch stock with an explicit movement type and
// originating reference
// 移動タイプと参照元を明示して非バッチ在庫を追加
func (l *Ledger) AddStockRef(ctx context.Context, itemID string, qty float64, locationID string, mvType MovementType, refType, refID string) {
	if !isFinite(qty) || qty <= 0 {
		l.logger.Debug("無効な数量のため在庫追加をスキップします",
			zap.String("item_id", itemID), zap.Float64("qty", qty))
		return
	}
	l.applyAddition(ctx, itemID, "", qty, locationID, mvType, refType, refID)
}

// AddBatchStock adds batch-tracked stock, e.g. when receiving a purchase
// バッチ追跡在庫を追加（仕入受領時など）
func (l *Ledger) AddBatchStock(ctx context.Context, itemID, batchID string, qty float64, locationID string) {
	if !isFinite(qty) || qty <= 0 {
		l.logger.Debug("無効な数量のためバッチ在庫追加をスキップします",
			zap.String("item_id", itemID), zap.Float64("qty", qty))
		return
	}
	l.applyAddition(ctx, itemID, batchID, qty, locationID, MovementPurchaseIn, "", "")
}

func (l *Ledger) applyAddition(ctx context.Context, itemID, batchID string, qty float64, locationID string, mvType MovementType, refType, refID string) {
	actor := actorFromContext(ctx)

	l.mu.Lock()
	if locationID == "" {
		locationID = l.primaryLocationLocked(ctx)
	}

	oldQty := l.quantityInScopeLocked(itemID, ScopeAll())

	// 同一の商品・ロケーション・バッチ行にはマージする（データソースの
	// upsertキーと一致させるため）。異なるバッチ同士は決してマージしない。
	var row *StockRow
	for i := range l.stock {
		r := &l.stock[i]
		if r.ItemID == itemID && r.LocationID == locationID && r.BatchID == batchID {
			row = r
			break
		}
	}
	if row != nil {
		row.Qty += qty
	} else {
		l.stock = append([]StockRow{{ItemID: itemID, LocationID: locationID, BatchID: batchID, Qty: qty}}, l.stock...)
		row = &l.stock[0]
	}
	rowCopy := *row

	mv := Movement{
		ID:           NewMovementID(),
		Type:         mvType,
		ItemID:       itemID,
		BatchID:      batchID,
		Qty:          qty,
		ToLocationID: locationID,
		RefType:      refType,
		RefID:        refID,
		PerformedBy:  actor,
		OccurredAt:   l.now().UTC().Format(time.RFC3339),
	}
	l.movements = append(l.movements, mv)
	newQty := l.quantityInScopeLocked(itemID, ScopeAll())
	publisher := l.publisher
	l.mu.Unlock()

	l.persistMutation(ctx, &rowCopy, &mv)

	if publisher != nil {
		event := StockChangedEvent{
			ItemID:      itemID,
			LocationID:  locationID,
			OldQuantity: oldQty,
			NewQuantity: newQty,
			ChangeType:  "add",
			MovementID:  mv.ID,
			Actor:       actor,
		}
		if err := publisher.PublishStockChanged(ctx, event); err != nil {
			l.logger.Error("イベント発行に失敗しました", zap.Error(err))
		}
	}

	l.logger.Info("在庫追加完了",
		zap.String("item_id", itemID),
		zap.String("location_id", locationID),
		zap.String("batch_id", batchID),
		zap.Float64("qty", qty),
	)
}

// RemoveStock deducts stock across the item's rows, clamping each row to
// its available quantity. The default ordering is FEFO, consistent with
// FEFOAllocate. Shortfall is reported in the result and logged as a
// warning, never raised.
// 商品の在庫行から出庫する。各行は手持数量までに制限され、並び順は
// 既定でFEFO。不足分は結果で報告し警告ログに残すのみで、エラーには
// しない。
func (l *Ledger) RemoveStock(ctx context.Context, itemID string, qty float64) RemovalResult {
	return l.RemoveStockRef(ctx, itemID, qty, "", "")
}

// RemoveStockRef deducts stock recording the originating reference
// 参照元を記録しつつ在庫を出庫
func (l *Ledger) RemoveStockRef(ctx context.Context, itemID string, qty float64, refType, refID string) RemovalResult {
	if !isFinite(qty) || qty <= 0 {
		return RemovalResult{}
	}
	actor := actorFromContext(ctx)

	l.mu.Lock()
	oldQty := l.quantityInScopeLocked(itemID, ScopeAll())

	indexes := make([]int, 0)
	for i := range l.stock {
		if l.stock[i].ItemID == itemID {
			indexes = append(indexes, i)
		}
	}
	l.sortForRemovalLocked(indexes)

	remaining := qty
	var rows []StockRow
	var moves []Movement
	occurredAt := l.now().UTC().Format(time.RFC3339)
	for _, idx := range indexes {
		if remaining <= 0 {
			break
		}
		r := &l.stock[idx]
		if r.Qty <= 0 {
			continue
		}
		deduct := math.Min(r.Qty, remaining)
		r.Qty -= deduct
		remaining -= deduct

		rows = append(rows, *r)
		moves = append(moves, Movement{
			ID:             NewMovementID(),
			Type:           MovementConsume,
			ItemID:         itemID,
			BatchID:        r.BatchID,
			Qty:            deduct,
			FromLocationID: r.LocationID,
			RefType:        refType,
			RefID:          refID,
			PerformedBy:    actor,
			OccurredAt:     occurredAt,
		})
	}
	l.movements = append(l.movements, moves...)
	newQty := l.quantityInScopeLocked(itemID, ScopeAll())
	publisher := l.publisher
	l.mu.Unlock()

	for i := range moves {
		l.persistMutation(ctx, &rows[i], &moves[i])
	}

	result := RemovalResult{
		Requested: qty,
		Fulfilled: qty - remaining,
		Shortfall: remaining,
	}

	if result.Shortfall > 0 {
		l.logger.Warn("出庫要求を部分的にしか充足できませんでした",
			zap.String("item_id", itemID),
			zap.Float64("requested", result.Requested),
			zap.Float64("fulfilled", result.Fulfilled),
			zap.Float64("shortfall", result.Shortfall),
		)
	}

	if publisher != nil {
		event := StockChangedEvent{
			ItemID:      itemID,
			OldQuantity: oldQty,
			NewQuantity: newQty,
			ChangeType:  "remove",
			Actor:       actor,
		}
		if err := publisher.PublishStockChanged(ctx, event); err != nil {
			l.logger.Error("イベント発行に失敗しました", zap.Error(err))
		}
	}

	l.logger.Info("在庫出庫完了",
		zap.String("item_id", itemID),
		zap.Float64("requested", result.Requested),
		zap.Float64("fulfilled", result.Fulfilled),
	)

	return result
}

// sortForRemovalLocked orders stock row indexes per the configured policy.
// FEFO puts known batches earliest-expiry-first and non-batch rows last;
// the legacy policy sorts by lexical batch id.
// 設定ポリシーに従い在庫行の添字を並べ替える。FEFOは期限の早い
// バッチを先頭、非バッチ行を末尾に置く。旧方式はバッチIDの辞書順。
func (l *Ledger) sortForRemovalLocked(indexes []int) {
	if l.config.RemovalOrder == RemovalOrderBatchID {
		sort.Slice(indexes, func(a, b int) bool {
			return l.stock[indexes[a]].BatchID < l.stock[indexes[b]].BatchID
		})
		return
	}

	expiryOf := func(idx int) string {
		b := l.getBatchLocked(l.stock[idx].BatchID)
		if b == nil || b.ExpiryDate == "" {
			return "9999-12-31" // 期限なしは最後に消費
		}
		return b.ExpiryDate
	}
	sort.Slice(indexes, func(a, b int) bool {
		ea, eb := expiryOf(indexes[a]), expiryOf(indexes[b])
		if ea != eb {
			return ea < eb
		}
		return l.stock[indexes[a]].BatchID < l.stock[indexes[b]].BatchID
	})
}

// primaryLocationLocked returns the first location's id, creating the
// default location when none exists. Caller holds the write lock.
// 先頭ロケーションのIDを返す。存在しない場合は既定ロケーションを作成。
func (l *Ledger) primaryLocationLocked(ctx context.Context) string {
	if len(l.locations) > 0 {
		return l.locations[0].ID
	}
	loc := Location{
		ID:     NewLocationID(),
		Name:   l.config.DefaultLocationName,
		Type:   LocationWarehouse,
		Status: StatusActive,
	}
	l.locations = append(l.locations, loc)
	if err := l.source.SaveLocation(ctx, &loc); err != nil {
		l.logger.Error("既定ロケーションの保存に失敗しました", zap.Error(err))
	}
	return loc.ID
}

// persistMutation writes a stock row and its movement back to the source.
// Failures keep the optimistic local state and are only logged.
// 在庫行と移動記録をソースへ書き戻す。失敗時も楽観的に適用済みの
// ローカル状態を保持し、ログのみ残す。
func (l *Ledger) persistMutation(ctx context.Context, row *StockRow, mv *Movement) {
	if err := l.source.UpsertStockRow(ctx, row); err != nil {
		l.logger.Error("在庫行の保存に失敗しました（ローカル状態は維持）",
			zap.String("item_id", row.ItemID), zap.Error(err))
	}
	if err := l.source.AppendMovement(ctx, mv); err != nil {
		l.logger.Error("移動記録の保存に失敗しました（ローカル状態は維持）",
			zap.String("movement_id", mv.ID), zap.Error(err))
	}
}

// actorFromContext extracts the acting user from context
// コンテキストから実行ユーザーを取得
func actorFromContext(ctx context.Context) string {
	if actor, ok := ctx.Value("user_id").(string); ok {
		return actor
	}
	return "system"
}

// isFinite reports whether v is a usable quantity value
// vが計算可能な数量値かを報告
func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
