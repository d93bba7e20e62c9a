// Package task provides the actionable-task store and the reorder decision engine
package task

import (
	"errors"

	"github.com/google/uuid"
)

// Status defines the task lifecycle state
// タスクのライフサイクル状態を定義
type Status string

const (
	StatusPending   Status = "PENDING"   // 未着手
	StatusReceived  Status = "RECEIVED"  // 受領済み
	StatusCompleted Status = "COMPLETED" // 完了
	StatusRejected  Status = "REJECTED"  // 却下
	StatusBreached  Status = "BREACHED"  // 期限超過（超過シードの初期状態にもなる）
)

// Category classifies what a task represents
// タスクの種別を定義
type Category string

const (
	CategoryDispatch      Category = "INVENTORY_DISPATCH" // 出庫（在庫効果は承認時に発生済み）
	CategoryReplenishment Category = "REPLENISHMENT"      // 補充
	CategoryLowStock      Category = "LOW_STOCK"          // 低在庫アラート
	CategoryGeneral       Category = "GENERAL"            // その他
)

// Task is an actionable work item tied to an inventory item
// 在庫商品に紐づく実行可能な作業項目
type Task struct {
	ID        string   `json:"id" db:"id"`                           // タスクID
	ItemID    string   `json:"item_id" db:"item_id"`                 // 対象商品ID
	Title     string   `json:"title" db:"title"`                     // タイトル
	Qty       float64  `json:"qty" db:"qty"`                         // 数量
	Status    Status   `json:"status" db:"status"`                   // 状態
	DueDate   string   `json:"due_date" db:"due_date"`               // 期限（ISO日付）
	CreatedAt string   `json:"created_at" db:"created_at"`           // 作成日時（RFC3339）
	Assignee  string   `json:"assignee,omitempty" db:"assignee"`     // 担当者
	Reason    string   `json:"reason,omitempty" db:"reason"`         // 理由
	Category  Category `json:"category,omitempty" db:"category"`     // 種別
	RequestID string   `json:"request_id,omitempty" db:"request_id"` // 発生元リクエストID
}

// Spec describes a task to create
// 作成するタスクの内容を記述
type Spec struct {
	ItemID       string   // 対象商品ID
	Title        string   // タイトル
	Qty          float64  // 数量
	DaysToArrive int      // 期限までの日数
	Assignee     string   // 担当者
	Category     Category // 種別
	RequestID    string   // 発生元リクエストID
	Status       Status   // 初期状態（空ならPENDING）
}

// DemandProfile holds per-item demand assumptions used for recommendations
// 発注推奨に使用する商品別の需要前提
type DemandProfile struct {
	Monthly     []float64 `json:"monthly" yaml:"monthly"`         // 月次需要の履歴
	LeadDays    int       `json:"lead_days" yaml:"lead_days"`     // リードタイム（日）
	UnitCost    float64   `json:"unit_cost" yaml:"unit_cost"`     // 単価
	Seasonality float64   `json:"seasonality" yaml:"seasonality"` // 季節係数
}

// RecommendationRisk classifies a reorder recommendation
// 発注推奨のリスク分類
type RecommendationRisk string

const (
	RiskStockout  RecommendationRisk = "STOCKOUT"  // 欠品リスク
	RiskOverstock RecommendationRisk = "OVERSTOCK" // 過剰在庫リスク
	RiskBalanced  RecommendationRisk = "BALANCED"  // 均衡
)

// Recommendation is a computed reorder suggestion
// 計算された発注推奨
type Recommendation struct {
	SuggestedQty float64            `json:"suggested_qty"` // 推奨数量
	Risk         RecommendationRisk `json:"risk"`          // リスク分類
	CostImpact   float64            `json:"cost_impact"`   // 費用影響
	Rationale    string             `json:"rationale"`     // 根拠
}

// SimulationRisk classifies a what-if purchase simulation
// 購買シミュレーションのリスク分類
type SimulationRisk string

const (
	SimRiskLow    SimulationRisk = "LOW"
	SimRiskMedium SimulationRisk = "MEDIUM"
	SimRiskHigh   SimulationRisk = "HIGH"
)

// SimulationParams are the inputs of a what-if purchase simulation
// 購買シミュレーションの入力
type SimulationParams struct {
	Qty          float64 `json:"qty"`           // 購買数量
	Price        float64 `json:"price"`         // 単価
	LeadTime     int     `json:"lead_time"`     // リードタイム（日）
	CurrentStock float64 `json:"current_stock"` // 現在在庫
}

// SimulationResult is the outcome of a what-if purchase simulation
// 購買シミュレーションの結果
type SimulationResult struct {
	WorkingCapital  float64        `json:"working_capital"`   // 拘束運転資本
	SellThroughDays int            `json:"sell_through_days"` // 消化日数
	Risk            SimulationRisk `json:"risk"`              // リスク分類
}

// DecisionLog records a procurement decision taken by a user
// ユーザーが下した購買判断の記録
type DecisionLog struct {
	ID           string  `json:"id" db:"id"`                         // ログID
	ItemID       string  `json:"item_id" db:"item_id"`               // 対象商品ID
	Action       string  `json:"action" db:"action"`                 // アクション
	Qty          float64 `json:"qty" db:"qty"`                       // 数量
	Price        float64 `json:"price" db:"price"`                   // 単価
	DaysToArrive int     `json:"days_to_arrive" db:"days_to_arrive"` // 到着日数
	At           string  `json:"at" db:"at"`                         // 記録日時（RFC3339）
	Note         string  `json:"note,omitempty" db:"note"`           // メモ
}

// ErrTaskNotFound is returned when a task doesn't exist
// タスクが存在しない場合のエラー
var ErrTaskNotFound = errors.New("タスクが見つかりません")

// NewTaskID generates a new task ID
// 新しいタスクIDを生成
func NewTaskID() string {
	return uuid.New().String()
}

// NewDecisionID generates a new decision log ID
// 新しい判断ログIDを生成
func NewDecisionID() string {
	return uuid.New().String()
}
