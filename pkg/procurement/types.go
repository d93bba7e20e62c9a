// Package procurement provides purchase orders and the supplier registry
package procurement

import (
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PurchaseStatus defines the procurement order lifecycle
// 発注のライフサイクル状態を定義
type PurchaseStatus string

const (
	StatusDraft     PurchaseStatus = "DRAFT"     // 下書き
	StatusPending   PurchaseStatus = "PENDING"   // 承認待ち
	StatusOrdered   PurchaseStatus = "ORDERED"   // 発注済み
	StatusInbound   PurchaseStatus = "INBOUND"   // 入荷中
	StatusReceived  PurchaseStatus = "RECEIVED"  // 受領済み（在庫加算が発生）
	StatusCancelled PurchaseStatus = "CANCELLED" // 取消
)

// PurchaseLine is one ordered line of a purchase order. Money values use
// decimal arithmetic.
// 発注の明細1行。金額はdecimalで計算する。
type PurchaseLine struct {
	SKU      string          `json:"sku" db:"sku"`                       // 商品SKU（元帳の商品IDと対応）
	Name     string          `json:"name" db:"name"`                     // 名称
	Qty      float64         `json:"qty" db:"qty"`                       // 数量
	UOM      string          `json:"uom" db:"uom"`                       // 単位
	Rate     decimal.Decimal `json:"rate" db:"rate"`                     // 単価
	TaxRate  decimal.Decimal `json:"tax_rate" db:"tax_rate"`             // 税率（%）
	Discount decimal.Decimal `json:"discount" db:"discount"`             // 値引き額
	HSN      string          `json:"hsn,omitempty" db:"hsn"`             // HSNコード
}

// PurchaseOrder is a procurement order routed to a supplier
// 仕入先への発注を表現
type PurchaseOrder struct {
	ID           string          `json:"id" db:"id"`                               // 発注ID
	PONumber     string          `json:"po_number" db:"po_number"`                 // PO番号
	RFQRef       string          `json:"rfq_ref,omitempty" db:"rfq_ref"`           // RFQ参照
	SupplierID   string          `json:"supplier_id,omitempty" db:"supplier_id"`   // 仕入先ID
	Supplier     string          `json:"supplier" db:"supplier"`                   // 仕入先名
	Contact      string          `json:"contact" db:"contact"`                     // 担当者
	ContactEmail string          `json:"contact_email,omitempty" db:"contact_email"` // 担当者メール
	ContactPhone string          `json:"contact_phone,omitempty" db:"contact_phone"` // 担当者電話
	Branch       string          `json:"branch" db:"branch"`                       // 拠点
	Buyer        string          `json:"buyer" db:"buyer"`                         // 購買担当
	Category     string          `json:"category,omitempty" db:"category"`         // カテゴリ
	Status       PurchaseStatus  `json:"status" db:"status"`                       // 状態
	OrderedOn    string          `json:"ordered_on" db:"ordered_on"`               // 発注日（ISO日付）
	ExpectedOn   string          `json:"expected_on" db:"expected_on"`             // 入荷予定日（ISO日付）
	TaxableValue decimal.Decimal `json:"taxable_value" db:"taxable_value"`         // 課税対象額
	TotalValue   decimal.Decimal `json:"total_value" db:"total_value"`             // 合計額
	Currency     string          `json:"currency,omitempty" db:"currency"`         // 通貨
	CreatedBy    string          `json:"created_by" db:"created_by"`               // 作成者
	Reference    string          `json:"reference,omitempty" db:"reference"`       // 参照
	Tags         []string        `json:"tags,omitempty" db:"-"`                    // タグ
	Notes        string          `json:"notes,omitempty" db:"notes"`               // メモ
	Lines        []PurchaseLine  `json:"lines" db:"-"`                             // 明細
}

// Supplier is a vendor record
// 仕入先を表現
type Supplier struct {
	ID      string `json:"id" db:"id"`                   // 仕入先ID
	Name    string `json:"name" db:"name"`               // 名称
	Contact string `json:"contact,omitempty" db:"contact"` // 担当者
	Email   string `json:"email,omitempty" db:"email"`   // メール
	Phone   string `json:"phone,omitempty" db:"phone"`   // 電話
	City    string `json:"city,omitempty" db:"city"`     // 所在地
}

// ErrPurchaseNotFound is returned when a purchase order doesn't exist
// 発注が存在しない場合のエラー
var ErrPurchaseNotFound = errors.New("発注が見つかりません")

// NewPurchaseID generates a new purchase order ID
// 新しい発注IDを生成
func NewPurchaseID() string {
	return uuid.New().String()
}

// NewSupplierID generates a new supplier ID
// 新しい仕入先IDを生成
func NewSupplierID() string {
	return uuid.New().String()
}
