package inventory

import (
	"context"
)

// StockLedger defines the core interface for stock accounting
// 在庫元帳のコアインターフェースを定義
type StockLedger interface {
	// 在庫照会 - Stock inquiry
	QuantityInScope(itemID string, scope Scope) float64
	EarliestExpiry(itemID string, scope Scope) string
	FEFOAllocate(itemID, locationID string) []BatchQuantity
	StockByLocation(itemID string) []LocationQuantity
	MovementsForItem(itemID string) []Movement

	// 在庫操作 - Stock mutation
	AddStock(ctx context.Context, itemID string, qty float64, locationID string)
	AddBatchStock(ctx context.Context, itemID, batchID string, qty float64, locationID string)
	RemoveStock(ctx context.Context, itemID string, qty float64) RemovalResult

	// 閾値判定 - Threshold checks
	MinimumThreshold(item *Item, scope Scope) float64
	LowStock(item *Item, scope Scope) bool

	// 期限判定 - Expiry checks
	IsExpired(dateISO string) bool
	IsExpiringWithin(dateISO string, days int) bool
}

// Registry defines lookup and creation for reference data
// マスタデータの照会・登録インターフェースを定義
type Registry interface {
	GetItem(id string) *Item
	GetLocation(id string) *Location
	GetBatch(id string) *Batch
	Items() []Item
	Locations() []Location
	AddItem(ctx context.Context, item Item) (string, error)
	AddLocation(ctx context.Context, name string, locType LocationType) *Location
	AddBatch(ctx context.Context, batch Batch) (string, error)
}

// Snapshot is the full inventory dataset returned by a data source
// データソースが返す在庫データ一式
type Snapshot struct {
	Items     []Item     `json:"items"`
	Locations []Location `json:"locations"`
	Batches   []Batch    `json:"batches"`
	Stock     []StockRow `json:"stock"`
	Movements []Movement `json:"movements"`
}

// Source defines the data source behind the ledger. Implementations may be
// statically seeded or network backed; the ledger behaves identically.
// 元帳の背後にあるデータソースを定義。静的シードでもネットワーク接続でも
// 元帳の振る舞いは変わらない。
type Source interface {
	LoadInventory(ctx context.Context) (*Snapshot, error)
	AppendMovement(ctx context.Context, mv *Movement) error
	UpsertStockRow(ctx context.Context, row *StockRow) error
	SaveItem(ctx context.Context, item *Item) error
	SaveLocation(ctx context.Context, loc *Location) error
	SaveBatch(ctx context.Context, batch *Batch) error
}

// EventPublisher defines interface for publishing stock events
// 在庫イベント発行のインターフェースを定義
type EventPublisher interface {
	PublishStockChanged(ctx context.Context, event StockChangedEvent) error
	PublishLowStockAlert(ctx context.Context, event LowStockAlertEvent) error
}

// StockChangedEvent represents a stock level change
// 在庫レベル変更イベントを表現
type StockChangedEvent struct {
	ItemID      string  `json:"item_id"`
	LocationID  string  `json:"location_id"`
	OldQuantity float64 `json:"old_quantity"`
	NewQuantity float64 `json:"new_quantity"`
	ChangeType  string  `json:"change_type"`
	MovementID  string  `json:"movement_id"`
	Actor       string  `json:"actor"`
}

// LowStockAlertEvent represents an item falling below its threshold
// 閾値を下回った商品のアラートイベントを表現
type LowStockAlertEvent struct {
	ItemID     string  `json:"item_id"`
	CurrentQty float64 `json:"current_qty"`
	Threshold  float64 `json:"threshold"`
}
