// Package inventory provides the stock ledger and reference registries
package inventory

import (
	"github.com/google/uuid"
)

// TrackingType defines how an item's stock is tracked
// 商品在庫の追跡方式を定義
type TrackingType string

const (
	TrackingBatchExpiry TrackingType = "BATCH_EXPIRY" // バッチ＋有効期限追跡
)

// Status defines the lifecycle status of reference data
// マスタデータのライフサイクル状態を定義
type Status string

const (
	StatusActive   Status = "ACTIVE"   // 有効
	StatusInactive Status = "INACTIVE" // 無効（物理削除は行わない）
)

// LocationType defines the kind of a storage location
// 保管場所の種別を定義
type LocationType string

const (
	LocationWarehouse LocationType = "WAREHOUSE" // 倉庫
	LocationStore     LocationType = "STORE"     // 店舗
	LocationKitchen   LocationType = "KITCHEN"   // キッチン
	LocationPlant     LocationType = "PLANT"     // 工場
	LocationOther     LocationType = "OTHER"     // その他
)

// Item represents a stock-keeping unit with reorder and commercial attributes
// 発注属性・商業属性を持つ在庫管理単位を表現
type Item struct {
	ID                    string             `json:"id" db:"id"`                                         // 商品ID（不変）
	SKU                   string             `json:"sku" db:"sku"`                                       // SKU
	Name                  string             `json:"name" db:"name"`                                     // 商品名
	Category              string             `json:"category" db:"category"`                             // カテゴリ
	SubCategory           string             `json:"sub_category,omitempty" db:"sub_category"`           // サブカテゴリ
	UOM                   string             `json:"uom" db:"uom"`                                       // 単位
	TrackingType          TrackingType       `json:"tracking_type" db:"tracking_type"`                   // 追跡方式
	Status                Status             `json:"status" db:"status"`                                 // 状態
	ReorderMinQty         float64            `json:"reorder_min_qty,omitempty" db:"reorder_min_qty"`     // 全体の発注点
	ReorderQty            float64            `json:"reorder_qty,omitempty" db:"reorder_qty"`             // 推奨発注量
	SafetyStockByLocation map[string]float64 `json:"safety_stock_by_location,omitempty" db:"-"`          // ロケーション別安全在庫
	ShelfLifeDays         int                `json:"shelf_life_days,omitempty" db:"shelf_life_days"`     // 賞味期間（日）
	LeadTimeDays          int                `json:"lead_time_days,omitempty" db:"lead_time_days"`       // リードタイム（日）
	StdCost               float64            `json:"std_cost,omitempty" db:"std_cost"`                   // 標準原価
	PurchaseCost          float64            `json:"purchase_cost,omitempty" db:"purchase_cost"`         // 仕入原価
	SalePrice             float64            `json:"sale_price,omitempty" db:"sale_price"`               // 販売価格
	GST                   float64            `json:"gst,omitempty" db:"gst"`                             // 税率（%）
	MRP                   float64            `json:"mrp,omitempty" db:"mrp"`                             // 希望小売価格
	HSNSAC                string             `json:"hsn_sac,omitempty" db:"hsn_sac"`                     // HSN/SACコード
	Description           string             `json:"description,omitempty" db:"description"`             // 説明
	InternalNotes         string             `json:"internal_notes,omitempty" db:"internal_notes"`       // 社内メモ
	InternalManufacturing bool               `json:"internal_manufacturing" db:"internal_manufacturing"` // 内製フラグ
	Purchasable           bool               `json:"purchasable" db:"purchasable"`                       // 購買対象フラグ
	Tags                  []string           `json:"tags,omitempty" db:"-"`                              // タグ
}

// Location represents a storage location
// 保管場所を表現
type Location struct {
	ID     string       `json:"id" db:"id"`         // ロケーションID
	Name   string       `json:"name" db:"name"`     // ロケーション名
	Type   LocationType `json:"type" db:"type"`     // 種別
	Status Status       `json:"status" db:"status"` // 状態
}

// Batch represents a production batch with an expiry date
// 有効期限付きの製造バッチを表現
type Batch struct {
	ID          string `json:"id" db:"id"`                     // バッチID
	ItemID      string `json:"item_id" db:"item_id"`           // 所属商品ID（1バッチ=1商品）
	BatchNumber string `json:"batch_number" db:"batch_number"` // バッチ番号
	ExpiryDate  string `json:"expiry_date" db:"expiry_date"`   // 有効期限（ISO日付、設定後は不変）
}

// StockRow represents on-hand quantity for one item/location/batch combination
// 商品・ロケーション・バッチ単位の手持数量を表現
type StockRow struct {
	ItemID     string  `json:"item_id" db:"item_id"`         // 商品ID
	LocationID string  `json:"location_id" db:"location_id"` // ロケーションID
	BatchID    string  `json:"batch_id" db:"batch_id"`       // バッチID（非バッチ在庫は空文字）
	Qty        float64 `json:"qty" db:"qty"`                 // 数量（常に0以上）
}

// MovementType defines the type of a stock-affecting event
// 在庫変動イベントのタイプを定義
type MovementType string

const (
	MovementPurchaseIn MovementType = "PURCHASE_IN" // 仕入入庫
	MovementTransfer   MovementType = "TRANSFER"    // 移動
	MovementConsume    MovementType = "CONSUMPTION" // 消費出庫
	MovementWastage    MovementType = "WASTAGE"     // 廃棄
	MovementAdjust     MovementType = "ADJUSTMENT"  // 調整
)

// ReasonCode classifies wastage and adjustment movements
// 廃棄・調整の理由コード
type ReasonCode string

const (
	ReasonExpired         ReasonCode = "EXPIRED"          // 期限切れ
	ReasonDamaged         ReasonCode = "DAMAGED"          // 破損
	ReasonSpillage        ReasonCode = "SPILLAGE"         // こぼれ
	ReasonLost            ReasonCode = "LOST"             // 紛失
	ReasonCountCorrection ReasonCode = "COUNT_CORRECTION" // 棚卸修正
	ReasonOther           ReasonCode = "OTHER"            // その他
)

// Movement is an immutable record of a stock-affecting event
// 在庫変動イベントの不変記録（書き込み後の変更・削除は不可）
type Movement struct {
	ID             string       `json:"id" db:"id"`                                       // 移動ID
	Type           MovementType `json:"type" db:"type"`                                   // タイプ
	ItemID         string       `json:"item_id" db:"item_id"`                             // 商品ID
	BatchID        string       `json:"batch_id" db:"batch_id"`                           // バッチID
	Qty            float64      `json:"qty" db:"qty"`                                     // 数量
	FromLocationID string       `json:"from_location_id,omitempty" db:"from_location_id"` // 移動元
	ToLocationID   string       `json:"to_location_id,omitempty" db:"to_location_id"`     // 移動先
	ReasonCode     ReasonCode   `json:"reason_code,omitempty" db:"reason_code"`           // 理由コード
	RefType        string       `json:"ref_type,omitempty" db:"ref_type"`                 // 参照元タイプ（リクエスト・発注など）
	RefID          string       `json:"ref_id,omitempty" db:"ref_id"`                     // 参照元ID
	PerformedBy    string       `json:"performed_by" db:"performed_by"`                   // 実行者
	OccurredAt     string       `json:"occurred_at" db:"occurred_at"`                     // 発生日時（RFC3339）
}

// ScopeMode selects between all locations and a single location
// 全ロケーションか単一ロケーションかを選択
type ScopeMode string

const (
	ScopeModeAll ScopeMode = "ALL" // 全ロケーション
	ScopeModeOne ScopeMode = "ONE" // 単一ロケーション
)

// Scope is the location filter applied to stock queries
// 在庫照会に適用するロケーションフィルタ
type Scope struct {
	Mode       ScopeMode `json:"mode"`                  // モード
	LocationID string    `json:"location_id,omitempty"` // ONEモード時のロケーションID
}

// ScopeAll returns a scope covering every location
// 全ロケーションを対象とするスコープを返す
func ScopeAll() Scope {
	return Scope{Mode: ScopeModeAll}
}

// ScopeOne returns a scope covering exactly one location
// 単一ロケーションのみを対象とするスコープを返す
func ScopeOne(locationID string) Scope {
	return Scope{Mode: ScopeModeOne, LocationID: locationID}
}

// BatchQuantity is an aggregated per-batch quantity used by FEFO allocation
// FEFO引当で使用するバッチ単位の集計数量
type BatchQuantity struct {
	BatchID string  `json:"batch_id"` // バッチID
	Qty     float64 `json:"qty"`      // 集計数量
	Batch   *Batch  `json:"batch"`    // バッチ参照
}

// LocationQuantity is an aggregated per-location quantity for an item
// 商品のロケーション単位の集計数量
type LocationQuantity struct {
	LocationID string    `json:"location_id"` // ロケーションID
	Qty        float64   `json:"qty"`         // 集計数量
	Location   *Location `json:"location"`    // ロケーション参照
}

// RemovalOrder names the row-ordering policy used by RemoveStock
// RemoveStockが使用する行の並び順ポリシー
type RemovalOrder string

const (
	// RemovalOrderFEFO consumes the batch with the nearest expiry first
	// 有効期限が最も近いバッチから消費
	RemovalOrderFEFO RemovalOrder = "FEFO"

	// RemovalOrderBatchID consumes rows in lexical batch-id order (legacy)
	// バッチIDの辞書順で消費（旧方式）
	RemovalOrderBatchID RemovalOrder = "BATCH_ID"
)

// RemovalResult reports how much of a removal request was fulfilled
// 出庫要求の充足状況を報告
type RemovalResult struct {
	Requested float64 `json:"requested"` // 要求数量
	Fulfilled float64 `json:"fulfilled"` // 充足数量
	Shortfall float64 `json:"shortfall"` // 不足数量
}

// NewMovementID generates a new movement ID
// 新しい移動IDを生成
func NewMovementID() string {
	return uuid.New().String()
}

// NewItemID generates a new item ID
// 新しい商品IDを生成
func NewItemID() string {
	return uuid.New().String()
}

// NewLocationID generates a new location ID
// 新しいロケーションIDを生成
func NewLocationID() string {
	return uuid.New().String()
}

// NewBatchID generates a new batch ID
// 新しいバッチIDを生成
func NewBatchID() string {
	return uuid.New().String()
}
