// Package request provides the production-request workflow engine
package request

import (
	"errors"

	"github.com/google/uuid"
)

// Type defines the kind of a production request
// 生産リクエストの種類を定義
type Type string

const (
	TypePurchase Type = "PURCHASE" // 購買（補充のための発注）
	TypeIssue    Type = "ISSUE"    // 出庫（倉庫から生産・現場への払い出し）
)

// RequestStatus defines the workflow state of a request
// リクエストのワークフロー状態を定義
type RequestStatus string

const (
	StatusDraft    RequestStatus = "DRAFT"    // 下書き（到達可能だが既定フローでは未使用）
	StatusPending  RequestStatus = "PENDING"  // 承認待ち（作成直後の状態）
	StatusApproved RequestStatus = "APPROVED" // 承認済み
	StatusRejected RequestStatus = "REJECTED" // 却下
	StatusClosed   RequestStatus = "CLOSED"   // クローズ（手動遷移のみ）
)

// UserRole identifies an approver role
// 承認者ロールを識別
type UserRole string

const (
	RoleOpsManager  UserRole = "OPS_MANAGER" // 業務責任者
	RoleCEO         UserRole = "CEO"         // 経営責任者
	RoleProcurement UserRole = "PROCUREMENT" // 調達担当
)

// Approval is one entry in a request's append-only approval history
// 承認履歴（追記専用）の1エントリ
type Approval struct {
	By      string   `json:"by" db:"by_user"`              // 承認者
	Role    UserRole `json:"role" db:"role"`               // ロール
	At      string   `json:"at" db:"at"`                   // 日時（RFC3339）
	Comment string   `json:"comment,omitempty" db:"comment"` // コメント
}

// Attachment is a document attached to a request
// リクエストの添付書類
type Attachment struct {
	ID   string `json:"id" db:"id"`             // 添付ID
	Name string `json:"name" db:"name"`         // 名称
	URL  string `json:"url,omitempty" db:"url"` // URL
}

// ProductionRequest is a purchase or issue request routed through approval
// 承認フローを通る購買・出庫リクエスト
type ProductionRequest struct {
	ID              string        `json:"id" db:"id"`                             // リクエストID
	ProductID       string        `json:"product_id" db:"product_id"`             // 対象製品ID
	Type            Type          `json:"type" db:"type"`                         // 種類
	RequestedBy     string        `json:"requested_by" db:"requested_by"`         // 申請者
	RequestedByRole UserRole      `json:"requested_by_role" db:"requested_by_role"` // 申請者ロール
	Approvers       []string      `json:"approvers" db:"-"`                       // 承認可能者リスト
	ApprovedBy      []string      `json:"approved_by,omitempty" db:"-"`           // 承認済みユーザー
	Approvals       []Approval    `json:"approvals,omitempty" db:"-"`             // 承認履歴（追記専用）
	Status          RequestStatus `json:"status" db:"status"`                     // 状態
	TargetQty       float64       `json:"target_qty" db:"target_qty"`             // 目標数量（行数量の合計）
	Description     string        `json:"description,omitempty" db:"description"` // 説明
	CreatedAt       string        `json:"created_at" db:"created_at"`             // 作成日時
	ApprovedAt      string        `json:"approved_at,omitempty" db:"approved_at"` // 承認日時
	ClosedAt        string        `json:"closed_at,omitempty" db:"closed_at"`     // クローズ日時
	Docs            []Attachment  `json:"docs,omitempty" db:"-"`                  // 添付書類
}

// Line is one item line belonging to exactly one request. Quantities are
// all non-negative; used+returned+rejected should reconcile against
// approved (soft invariant, see Variance).
// 1つのリクエストに属する商品明細。数量は全て非負で、
// used+returned+rejected は approved に対して照合されるべき（緩い不変条件）。
type Line struct {
	RequestID    string  `json:"request_id" db:"request_id"`       // リクエストID
	ItemID       string  `json:"item_id" db:"item_id"`             // 商品ID
	RequestedQty float64 `json:"requested_qty" db:"requested_qty"` // 要求数量
	ApprovedQty  float64 `json:"approved_qty" db:"approved_qty"`   // 承認数量
	UsedQty      float64 `json:"used_qty" db:"used_qty"`           // 使用数量
	ReturnedQty  float64 `json:"returned_qty" db:"returned_qty"`   // 返却数量
	RejectedQty  float64 `json:"rejected_qty" db:"rejected_qty"`   // 不良数量
	Reason       string  `json:"reason,omitempty" db:"reason"`     // 理由
	Notes        string  `json:"notes,omitempty" db:"notes"`       // メモ
}

// Variance returns approved − (used + returned + rejected)
// 承認数量と消費実績の差異を返す
func (l *Line) Variance() float64 {
	return l.ApprovedQty - (l.UsedQty + l.ReturnedQty + l.RejectedQty)
}

// ConsumptionKind classifies a consumption event
// 消費イベントの種別を定義
type ConsumptionKind string

const (
	ConsumptionUsed     ConsumptionKind = "USED"     // 使用
	ConsumptionReturned ConsumptionKind = "RETURNED" // 返却
	ConsumptionRejected ConsumptionKind = "REJECTED" // 不良
)

// ConsumptionEvent is an immutable log entry tied to a request and item
// リクエストと商品に紐づく不変の消費ログ
type ConsumptionEvent struct {
	ID        string          `json:"id" db:"id"`                   // イベントID
	RequestID string          `json:"request_id" db:"request_id"`   // リクエストID
	ItemID    string          `json:"item_id" db:"item_id"`         // 商品ID
	Kind      ConsumptionKind `json:"kind" db:"kind"`               // 種別
	Qty       float64         `json:"qty" db:"qty"`                 // 数量
	Reason    string          `json:"reason,omitempty" db:"reason"` // 理由
	By        string          `json:"by" db:"by_user"`              // 実行者
	At        string          `json:"at" db:"at"`                   // 日時（RFC3339）
}

// Product is a finished good a request targets
// リクエストの対象となる製品
type Product struct {
	ID          string `json:"id" db:"id"`                             // 製品ID
	Name        string `json:"name" db:"name"`                         // 製品名
	SKU         string `json:"sku" db:"sku"`                           // SKU
	Status      string `json:"status" db:"status"`                     // 状態
	UOM         string `json:"uom" db:"uom"`                           // 単位
	Category    string `json:"category" db:"category"`                 // カテゴリ
	Description string `json:"description,omitempty" db:"description"` // 説明
}

// ApprovalRule maps a request type to the roles allowed to approve it.
// Rules are load-bearing business policy: they come from configuration or
// the data source, never from code.
// リクエスト種類と承認可能ロールの対応。業務ポリシーそのものであり、
// 設定またはデータソースから供給され、コードに埋め込まない。
type ApprovalRule struct {
	Type      Type       `json:"type" yaml:"type"`             // リクエスト種類
	MinAmount float64    `json:"min_amount" yaml:"min_amount"` // 適用下限金額
	Roles     []UserRole `json:"roles" yaml:"roles"`           // 承認可能ロール
}

// Workflow errors
// ワークフローのエラー定義
var (
	// ErrRequestNotFound is returned when a request doesn't exist
	// リクエストが存在しない場合のエラー
	ErrRequestNotFound = errors.New("リクエストが見つかりません")

	// ErrRequestNotPending is returned for transitions from a non-PENDING state
	// PENDING以外からの遷移を試みた場合のエラー
	ErrRequestNotPending = errors.New("リクエストは承認待ち状態ではありません")

	// ErrApprovalDenied is returned when the actor or role is not authorized.
	// Denial is explicit so callers can distinguish it from a state no-op.
	// 承認権限がない場合のエラー。状態による無効化と区別できるよう明示的に返す。
	ErrApprovalDenied = errors.New("承認権限がありません")

	// ErrRequestNotApproved is returned when closing a request that isn't approved
	// 承認済みでないリクエストをクローズしようとした場合のエラー
	ErrRequestNotApproved = errors.New("リクエストは承認済みではありません")
)

// NewRequestID generates a new request ID
// 新しいリクエストIDを生成
func NewRequestID() string {
	return uuid.New().String()
}

// NewEventID generates a new consumption event ID
// 新しい消費イベントIDを生成
func NewEventID() string {
	return uuid.New().String()
}

// NewAttachmentID generates a new attachment ID
// 新しい添付IDを生成
func NewAttachmentID() string {
	return uuid.New().String()
}
