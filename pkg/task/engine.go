package task

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/opscontrol/flowora/pkg/inventory"
)

// Ledger is the slice of the stock ledger the engine reads and feeds
// エンジンが参照・更新する在庫元帳の一部
type Ledger interface {
	GetItem(id string) *inventory.Item
	Items() []inventory.Item
	QuantityInScope(itemID string, scope inventory.Scope) float64
	MinimumThreshold(item *inventory.Item, scope inventory.Scope) float64
	AddStock(ctx context.Context, itemID string, qty float64, locationID string)
}

// Auditor records what the engine did
// エンジンの実行内容を記録
type Auditor interface {
	Add(ctx context.Context, action, entityID, details, actor string, meta map[string]string) string
}

// Snapshot is the task dataset returned by a data source
// データソースが返すタスクデータ一式
type Snapshot struct {
	Tasks     []Task                   `json:"tasks"`
	Profiles  map[string]DemandProfile `json:"profiles"`
	Decisions []DecisionLog            `json:"decisions"`
}

// Source defines the data source behind the task engine
// タスクエンジンの背後にあるデータソースを定義
type Source interface {
	LoadTasks(ctx context.Context) (*Snapshot, error)
	SaveTask(ctx context.Context, t *Task) error
	AppendDecision(ctx context.Context, d *DecisionLog) error
}

// Config holds configuration for the decision engine
// 判断エンジンの設定を保持
type Config struct {
	SafetyBufferDays int           `yaml:"safety_buffer_days"` // 安全バッファ（日）
	DefaultAssignee  string        `yaml:"default_assignee"`   // アラートの既定担当者
	DefaultProfile   DemandProfile `yaml:"default_profile"`    // 需要前提の既定値
}

// Engine derives reorder recommendations and manages actionable tasks.
// It also implements inventory.EventPublisher so stock mutations drive
// the low-stock watcher.
// 発注推奨を導出し、タスクを管理するエンジン。inventory.EventPublisher
// も実装し、在庫変動が低在庫ウォッチャーを駆動する。
type Engine struct {
	ledger Ledger
	audit  Auditor
	source Source
	logger *zap.Logger
	config *Config

	mu        sync.Mutex
	tasks     []Task
	profiles  map[string]DemandProfile
	decisions []DecisionLog
	loading   bool

	now func() time.Time
}

var _ inventory.EventPublisher = (*Engine)(nil)

// NewEngine creates a new task/decision engine
// 新しいタスク・判断エンジンを作成
func NewEngine(ledger Ledger, auditor Auditor, source Source, logger *zap.Logger, config *Config) *Engine {
	if config == nil {
		config = &Config{}
	}
	if config.SafetyBufferDays <= 0 {
		config.SafetyBufferDays = 14
	}
	if len(config.DefaultProfile.Monthly) == 0 {
		config.DefaultProfile = DemandProfile{
			Monthly:     []float64{50, 50, 50},
			LeadDays:    7,
			UnitCost:    100,
			Seasonality: 1,
		}
	}

	return &Engine{
		ledger:   ledger,
		audit:    auditor,
		source:   source,
		logger:   logger,
		config:   config,
		profiles: make(map[string]DemandProfile),
		now:      time.Now,
	}
}

// Refresh loads the task snapshot from the data source
// データソースからタスクスナップショットを読み込む
func (e *Engine) Refresh(ctx context.Context) error {
	e.mu.Lock()
	if e.loading {
		e.mu.Unlock()
		return nil
	}
	e.loading = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.loading = false
		e.mu.Unlock()
	}()

	snap, err := e.source.LoadTasks(ctx)
	if err != nil {
		e.logger.Error("タスクスナップショット読み込みに失敗しました", zap.Error(err))
		return err
	}

	e.mu.Lock()
	e.tasks = snap.Tasks
	if snap.Profiles != nil {
		e.profiles = snap.Profiles
	}
	e.decisions = snap.Decisions
	e.mu.Unlock()

	e.logger.Info("タスクスナップショット読み込み完了",
		zap.Int("tasks", len(snap.Tasks)),
		zap.Int("profiles", len(snap.Profiles)),
	)
	return nil
}

// profileFor resolves the demand profile, falling back to the default
// 需要前提を解決。未定義の商品は既定値を使用
func (e *Engine) profileFor(itemID string) DemandProfile {
	e.mu.Lock()
	defer e.mu.Unlock()
	if p, ok := e.profiles[itemID]; ok {
		return p
	}
	return e.config.DefaultProfile
}

func avgMonthly(p DemandProfile) float64 {
	if len(p.Monthly) == 0 {
		return 0
	}
	sum := 0.0
	for _, m := range p.Monthly {
		sum += m
	}
	return sum / float64(len(p.Monthly))
}

// Recommendation computes a reorder suggestion for an item
// 商品の発注推奨を計算
func (e *Engine) Recommendation(itemID string, currentStock float64) Recommendation {
	prof := e.profileFor(itemID)
	avg := avgMonthly(prof)
	avgDaily := avg / 30
	targetDays := float64(prof.LeadDays + e.config.SafetyBufferDays)

	suggested := math.Round(avgDaily*targetDays - currentStock)
	if suggested < 0 {
		suggested = 0
	}

	risk := RiskBalanced
	if suggested < avgDaily*7 {
		risk = RiskStockout
	}
	if suggested > avgDaily*45 {
		risk = RiskOverstock
	}

	return Recommendation{
		SuggestedQty: suggested,
		Risk:         risk,
		CostImpact:   suggested * prof.UnitCost,
		Rationale: fmt.Sprintf("Past demand ~%.1f/mo, lead %dd, buffer %dd to prevent line stops",
			avg, prof.LeadDays, e.config.SafetyBufferDays),
	}
}

// Simulate runs a what-if purchase simulation for an item
// 商品の購買シミュレーションを実行
func (e *Engine) Simulate(itemID string, params SimulationParams) SimulationResult {
	prof := e.profileFor(itemID)
	avgDaily := avgMonthly(prof) / 30

	sellThrough := 0
	if avgDaily > 0 {
		sellThrough = int(math.Round((params.Qty + params.CurrentStock) / avgDaily))
	}

	risk := SimRiskLow
	switch {
	case params.Qty > avgDaily*60:
		risk = SimRiskHigh
	case params.Qty > avgDaily*30:
		risk = SimRiskMedium
	}

	return SimulationResult{
		WorkingCapital:  params.Qty * params.Price,
		SellThroughDays: sellThrough,
		Risk:            risk,
	}
}

// DefaultPrice returns the profile unit cost for an item
// 商品の既定単価を返す
func (e *Engine) DefaultPrice(itemID string) float64 {
	return e.profileFor(itemID).UnitCost
}

// DefaultLead returns the profile lead time for an item
// 商品の既定リードタイムを返す
func (e *Engine) DefaultLead(itemID string) int {
	return e.profileFor(itemID).LeadDays
}

// Tasks returns a snapshot copy of all tasks
// 全タスクのスナップショットコピーを返す
func (e *Engine) Tasks() []Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Task, len(e.tasks))
	copy(out, e.tasks)
	return out
}

// TaskByID returns the task with the given id, or nil
// 指定IDのタスクを返す。存在しない場合はnil
func (e *Engine) TaskByID(id string) *Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.tasks {
		if e.tasks[i].ID == id {
			t := e.tasks[i]
			return &t
		}
	}
	return nil
}

// AddTask creates a new task and returns its id
// 新しいタスクを作成してIDを返す
func (e *Engine) AddTask(ctx context.Context, spec Spec) string {
	status := spec.Status
	if status == "" {
		status = StatusPending
	}
	due := e.now().UTC().AddDate(0, 0, spec.DaysToArrive)
	t := Task{
		ID:        NewTaskID(),
		ItemID:    spec.ItemID,
		Title:     spec.Title,
		Qty:       spec.Qty,
		Status:    status,
		DueDate:   due.Format("2006-01-02"),
		CreatedAt: e.now().UTC().Format(time.RFC3339),
		Assignee:  spec.Assignee,
		Category:  spec.Category,
		RequestID: spec.RequestID,
	}

	e.mu.Lock()
	e.tasks = append([]Task{t}, e.tasks...)
	e.mu.Unlock()

	if err := e.source.SaveTask(ctx, &t); err != nil {
		e.logger.Error("タスクの保存に失敗しました（ローカル状態は維持）",
			zap.String("task_id", t.ID), zap.Error(err))
	}

	e.logger.Info("タスク作成完了",
		zap.String("task_id", t.ID),
		zap.String("item_id", t.ItemID),
		zap.String("category", string(t.Category)),
	)

	return t.ID
}

// UpdateTask transitions a task's status. Completing a task whose category
// is not INVENTORY_DISPATCH adds its quantity back to stock (inbound
// flows); dispatch tasks already had their stock effect at approval time.
// Every status change writes an audit entry.
// タスクの状態を遷移させる。出庫タスク以外の完了は在庫を加算する
// （出庫タスクの在庫効果は承認時に発生済み）。全ての状態変更は
// 監査ログに記録される。
func (e *Engine) UpdateTask(ctx context.Context, id string, status Status, reason string) error {
	e.mu.Lock()
	var task *Task
	for i := range e.tasks {
		if e.tasks[i].ID == id {
			task = &e.tasks[i]
			break
		}
	}
	if task == nil {
		e.mu.Unlock()
		return ErrTaskNotFound
	}
	snapshot := *task
	e.mu.Unlock()

	if status == StatusCompleted && snapshot.Category != CategoryDispatch {
		e.ledger.AddStock(ctx, snapshot.ItemID, snapshot.Qty, "")
		meta := map[string]string{
			"qty":       fmt.Sprintf("%g", snapshot.Qty),
			"requester": snapshot.Assignee,
		}
		if item := e.ledger.GetItem(snapshot.ItemID); item != nil {
			meta["item_name"] = item.Name
			meta["sku"] = item.SKU
		}
		e.audit.Add(ctx, "STOCK_UPDATE", snapshot.ItemID,
			fmt.Sprintf("Added %g to stock via task %s", snapshot.Qty, snapshot.ID),
			snapshot.Assignee, meta)
	}

	e.mu.Lock()
	for i := range e.tasks {
		if e.tasks[i].ID == id {
			e.tasks[i].Status = status
			e.tasks[i].Reason = reason
			snapshot = e.tasks[i]
			break
		}
	}
	e.mu.Unlock()

	if err := e.source.SaveTask(ctx, &snapshot); err != nil {
		e.logger.Error("タスクの保存に失敗しました（ローカル状態は維持）",
			zap.String("task_id", id), zap.Error(err))
	}

	e.audit.Add(ctx, "TASK_STATUS", snapshot.ItemID,
		fmt.Sprintf("Task %s -> %s", snapshot.ID, status),
		snapshot.Assignee, map[string]string{
			"task_id": snapshot.ID,
			"qty":     fmt.Sprintf("%g", snapshot.Qty),
		})

	e.logger.Info("タスク状態更新完了",
		zap.String("task_id", id),
		zap.String("status", string(status)),
	)

	return nil
}

// SyncLowStock ensures exactly one open LOW_STOCK task exists per
// under-threshold item, and auto-completes alerts for recovered items.
// Running it repeatedly on unchanged state is a no-op.
// 閾値を下回る商品ごとに未完了のLOW_STOCKタスクが1件だけ存在する
// 状態を保証し、回復した商品のアラートを自動完了する。同一状態での
// 再実行は何も変更しない（冪等）。
func (e *Engine) SyncLowStock(ctx context.Context) {
	items := e.ledger.Items()
	if len(items) == 0 {
		return
	}
	scope := inventory.ScopeAll()
	today := e.now().UTC().Format("2006-01-02")

	e.mu.Lock()
	var recovered []Task

	// 回復した商品のアラートを完了
	for i := range e.tasks {
		t := &e.tasks[i]
		if t.Category != CategoryLowStock || t.Status == StatusCompleted {
			continue
		}
		item := e.ledger.GetItem(t.ItemID)
		if item == nil {
			continue
		}
		min := e.ledger.MinimumThreshold(item, scope)
		qty := e.ledger.QuantityInScope(t.ItemID, scope)
		if min > 0 && qty >= min {
			t.Status = StatusCompleted
			t.Reason = "Stock recovered"
			recovered = append(recovered, *t)
		}
	}

	// 閾値を下回る商品に未完了アラートがなければ作成
	var created []Task
	for i := range items {
		item := &items[i]
		min := e.ledger.MinimumThreshold(item, scope)
		if min <= 0 {
			continue
		}
		qty := e.ledger.QuantityInScope(item.ID, scope)
		if qty >= min {
			continue
		}
		hasAlert := false
		for j := range e.tasks {
			t := &e.tasks[j]
			if t.Category == CategoryLowStock && t.ItemID == item.ID && t.Status != StatusCompleted {
				hasAlert = true
				break
			}
		}
		if hasAlert {
			continue
		}
		t := Task{
			ID:        NewTaskID(),
			ItemID:    item.ID,
			Title:     fmt.Sprintf("Low stock: %s (Have %g, Min %g)", item.Name, qty, min),
			Qty:       min,
			Status:    StatusBreached,
			DueDate:   today,
			CreatedAt: e.now().UTC().Format(time.RFC3339),
			Assignee:  e.config.DefaultAssignee,
			Category:  CategoryLowStock,
		}
		created = append(created, t)
	}
	e.tasks = append(created, e.tasks...)
	e.mu.Unlock()

	for i := range recovered {
		if err := e.source.SaveTask(ctx, &recovered[i]); err != nil {
			e.logger.Error("タスクの保存に失敗しました（ローカル状態は維持）", zap.Error(err))
		}
	}
	for i := range created {
		if err := e.source.SaveTask(ctx, &created[i]); err != nil {
			e.logger.Error("タスクの保存に失敗しました（ローカル状態は維持）", zap.Error(err))
		}
		e.logger.Info("低在庫アラートを作成しました",
			zap.String("task_id", created[i].ID),
			zap.String("item_id", created[i].ItemID),
		)
	}
}

// LogDecision appends a decision log entry
// 購買判断ログを追記
func (e *Engine) LogDecision(ctx context.Context, itemID, action string, qty, price float64, daysToArrive int, note string) string {
	d := DecisionLog{
		ID:           NewDecisionID(),
		ItemID:       itemID,
		Action:       action,
		Qty:          qty,
		Price:        price,
		DaysToArrive: daysToArrive,
		At:           e.now().UTC().Format(time.RFC3339),
		Note:         note,
	}

	e.mu.Lock()
	e.decisions = append([]DecisionLog{d}, e.decisions...)
	e.mu.Unlock()

	if err := e.source.AppendDecision(ctx, &d); err != nil {
		e.logger.Error("判断ログの保存に失敗しました（ローカル状態は維持）",
			zap.String("decision_id", d.ID), zap.Error(err))
	}

	return d.ID
}

// LogsForItem returns decision logs for one item
// 商品の判断ログを返す
func (e *Engine) LogsForItem(itemID string) []DecisionLog {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []DecisionLog
	for i := range e.decisions {
		if e.decisions[i].ItemID == itemID {
			out = append(out, e.decisions[i])
		}
	}
	return out
}

// PublishStockChanged reacts to ledger mutations by re-running the
// low-stock watcher
// 在庫変動に反応して低在庫ウォッチャーを再実行
func (e *Engine) PublishStockChanged(ctx context.Context, event inventory.StockChangedEvent) error {
	e.SyncLowStock(ctx)
	return nil
}

// PublishLowStockAlert is informational only; alerts materialize as tasks
// 情報通知のみ。アラートの実体はタスクとして管理される
func (e *Engine) PublishLowStockAlert(ctx context.Context, event inventory.LowStockAlertEvent) error {
	e.logger.Debug("低在庫イベントを受信しました",
		zap.String("item_id", event.ItemID),
		zap.Float64("current_qty", event.CurrentQty),
	)
	return nil
}
