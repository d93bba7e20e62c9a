package request

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/opscontrol/flowora/pkg/inventory"
	"github.com/opscontrol/flowora/pkg/task"
)

// Ledger is the slice of the stock ledger the workflow engine drives
// ワークフローエンジンが駆動する在庫元帳の一部
type Ledger interface {
	GetItem(id string) *inventory.Item
	RemoveStockRef(ctx context.Context, itemID string, qty float64, refType, refID string) inventory.RemovalResult
}

// Tasks creates the dispatch/replenishment tasks a request spawns
// リクエストが生成する出庫・補充タスクを作成
type Tasks interface {
	AddTask(ctx context.Context, spec task.Spec) string
}

// Auditor records workflow actions
// ワークフローの実行内容を記録
type Auditor interface {
	Add(ctx context.Context, action, entityID, details, actor string, meta map[string]string) string
}

// Snapshot is the request dataset returned by a data source
// データソースが返すリクエストデータ一式
type Snapshot struct {
	Products []Product           `json:"products"`
	Requests []ProductionRequest `json:"requests"`
	Lines    []Line              `json:"lines"`
	Events   []ConsumptionEvent  `json:"events"`
	Rules    []ApprovalRule      `json:"approval_rules"`
}

// Source defines the data source behind the workflow engine
// ワークフローエンジンの背後にあるデータソースを定義
type Source interface {
	LoadRequests(ctx context.Context) (*Snapshot, error)
	SaveRequest(ctx context.Context, r *ProductionRequest) error
	SaveLine(ctx context.Context, l *Line) error
	AppendConsumptionEvent(ctx context.Context, e *ConsumptionEvent) error
}

// Config holds workflow configuration
// ワークフローの設定を保持
type Config struct {
	// AutoApproveIssue makes ISSUE creation immediately run the ordinary
	// approval path as the requester. An explicit, named policy: creation
	// itself always yields PENDING first.
	// ISSUE作成直後に申請者として通常の承認経路を実行するポリシー。
	// 作成自体は常にPENDINGを経由する。
	AutoApproveIssue bool           `yaml:"auto_approve_issue"`
	Rules            []ApprovalRule `yaml:"approval_rules"` // 承認ルール（データソース側が優先）
	TaskDueDays      int            `yaml:"task_due_days"`  // 生成タスクの期限日数
}

// Engine manages production requests, approvals and consumption events
// 生産リクエスト・承認・消費イベントを管理
type Engine struct {
	ledger Ledger
	tasks  Tasks
	audit  Auditor
	source Source
	logger *zap.Logger
	config *Config

	mu       sync.Mutex
	products []Product
	requests []ProductionRequest
	lines    []Line
	events   []ConsumptionEvent
	rules    []ApprovalRule
	loading  bool

	now func() time.Time
}

// NewEngine creates a new workflow engine
// 新しいワークフローエンジンを作成
func NewEngine(ledger Ledger, tasks Tasks, auditor Auditor, source Source, logger *zap.Logger, config *Config) *Engine {
	if config == nil {
		config = &Config{AutoApproveIssue: true}
	}
	if config.TaskDueDays <= 0 {
		config.TaskDueDays = 7
	}
	if len(config.Rules) == 0 {
		config.Rules = []ApprovalRule{
			{Type: TypeIssue, Roles: []UserRole{RoleOpsManager, RoleCEO}},
			{Type: TypePurchase, Roles: []UserRole{RoleOpsManager, RoleCEO}},
		}
	}

	return &Engine{
		ledger: ledger,
		tasks:  tasks,
		audit:  auditor,
		source: source,
		logger: logger,
		config: config,
		now:    time.Now,
	}
}

// Refresh loads the request snapshot from the data source
// データソースからリクエストスナップショットを読み込む
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

	snap, err := e.source.LoadRequests(ctx)
	if err != nil {
		e.logger.Error("リクエストスナップショット読み込みに失敗しました", zap.Error(err))
		return err
	}

	e.mu.Lock()
	e.products = snap.Products
	e.requests = snap.Requests
	e.lines = snap.Lines
	e.events = snap.Events
	if len(snap.Rules) > 0 {
		e.rules = snap.Rules
	}
	e.mu.Unlock()

	e.logger.Info("リクエストスナップショット読み込み完了",
		zap.Int("requests", len(snap.Requests)),
		zap.Int("lines", len(snap.Lines)),
	)
	return nil
}

// ruleFor resolves the approval rule for a request type. Source-provided
// rules take precedence over configured defaults.
// リクエスト種類に対応する承認ルールを解決。データソース提供の
// ルールが設定既定値より優先される。
func (e *Engine) ruleFor(t Type) *ApprovalRule {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.rules {
		if e.rules[i].Type == t {
			r := e.rules[i]
			return &r
		}
	}
	for i := range e.config.Rules {
		if e.config.Rules[i].Type == t {
			r := e.config.Rules[i]
			return &r
		}
	}
	return nil
}

// CanApprove reports whether an actor/role may approve a request: the role
// must appear in the rule for the request's type and the actor must be
// among the request's designated approvers (when any are listed).
// 承認可否を判定。ロールがルールに含まれ、かつ（指定がある場合）
// 承認者リストに実行者が含まれている必要がある。
func (e *Engine) CanApprove(req *ProductionRequest, actor string, role UserRole) bool {
	rule := e.ruleFor(req.Type)
	if rule == nil {
		return false
	}
	roleOK := false
	for _, r := range rule.Roles {
		if r == role {
			roleOK = true
			break
		}
	}
	if !roleOK {
		return false
	}
	if len(req.Approvers) == 0 {
		return true
	}
	for _, a := range req.Approvers {
		if a == actor {
			return true
		}
	}
	return false
}

// CreateInput describes a request to create
// 作成するリクエストの内容を記述
type CreateInput struct {
	ProductID       string      // 対象製品ID
	Type            Type        // 種類
	RequestedBy     string      // 申請者
	RequestedByRole UserRole    // 申請者ロール
	Approvers       []string    // 承認可能者リスト
	Lines           []LineInput // 明細
	Description     string      // 説明
}

// LineInput is one line of a request to create
// 作成するリクエストの明細1行
type LineInput struct {
	ItemID string  // 商品ID
	Qty    float64 // 要求数量
	Reason string  // 理由
}

// Create registers a new request. The request always starts PENDING; the
// approved quantity of every line defaults to the full requested quantity
// (intentional business behavior). A dispatch or replenishment task and an
// audit entry are emitted. When the AutoApproveIssue policy is on, an
// ISSUE request is then approved through the ordinary path.
// 新しいリクエストを登録。状態は必ずPENDINGから始まり、各明細の承認
// 数量は要求数量そのものが既定値（意図された業務挙動）。出庫または
// 補充タスクと監査エントリを生成する。AutoApproveIssueポリシーが
// 有効な場合、ISSUEリクエストは続けて通常経路で承認される。
func (e *Engine) Create(ctx context.Context, input CreateInput) (string, error) {
	if input.ProductID == "" {
		return "", inventory.NewValidationError("product_id", "製品IDが指定されていません", "")
	}
	if len(input.Lines) == 0 {
		return "", inventory.NewValidationError("lines", "明細が指定されていません", "")
	}

	targetQty := 0.0
	for _, l := range input.Lines {
		if err := inventory.ValidateQuantity(l.Qty); err != nil {
			return "", err
		}
		targetQty += l.Qty
	}

	req := ProductionRequest{
		ID:              NewRequestID(),
		ProductID:       input.ProductID,
		Type:            input.Type,
		RequestedBy:     input.RequestedBy,
		RequestedByRole: input.RequestedByRole,
		Approvers:       input.Approvers,
		Status:          StatusPending,
		TargetQty:       targetQty,
		Description:     input.Description,
		CreatedAt:       e.now().UTC().Format(time.RFC3339),
	}

	newLines := make([]Line, 0, len(input.Lines))
	for _, l := range input.Lines {
		newLines = append(newLines, Line{
			RequestID:    req.ID,
			ItemID:       l.ItemID,
			RequestedQty: l.Qty,
			ApprovedQty:  l.Qty, // 作成時点で承認数量＝要求数量
			Reason:       l.Reason,
		})
	}

	e.mu.Lock()
	e.requests = append([]ProductionRequest{req}, e.requests...)
	e.lines = append(newLines, e.lines...)
	e.mu.Unlock()

	if err := e.source.SaveRequest(ctx, &req); err != nil {
		e.logger.Error("リクエストの保存に失敗しました（ローカル状態は維持）",
			zap.String("request_id", req.ID), zap.Error(err))
	}
	for i := range newLines {
		if err := e.source.SaveLine(ctx, &newLines[i]); err != nil {
			e.logger.Error("明細の保存に失敗しました（ローカル状態は維持）", zap.Error(err))
		}
	}

	e.emitRequestTask(ctx, &req, newLines)

	e.audit.Add(ctx, "REQUEST_CREATED", req.ID,
		fmt.Sprintf("%s request for %s (qty %g)", req.Type, req.ProductID, req.TargetQty),
		req.RequestedBy, map[string]string{
			"type":       string(req.Type),
			"product_id": req.ProductID,
		})

	e.logger.Info("リクエスト作成完了",
		zap.String("request_id", req.ID),
		zap.String("type", string(req.Type)),
		zap.Float64("target_qty", req.TargetQty),
	)

	if e.config.AutoApproveIssue && req.Type == TypeIssue {
		if _, err := e.Approve(ctx, req.ID, input.RequestedBy, input.RequestedByRole, "Auto-approved on creation"); err != nil {
			e.logger.Warn("自動承認ポリシーを適用できませんでした（PENDINGのまま）",
				zap.String("request_id", req.ID), zap.Error(err))
		}
	}

	return req.ID, nil
}

// emitRequestTask creates the task mirroring a new request
// 新規リクエストに対応するタスクを作成
func (e *Engine) emitRequestTask(ctx context.Context, req *ProductionRequest, lines []Line) {
	itemID := ""
	if len(lines) > 0 {
		itemID = lines[0].ItemID
	}

	spec := task.Spec{
		ItemID:       itemID,
		Qty:          req.TargetQty,
		DaysToArrive: e.config.TaskDueDays,
		Assignee:     req.RequestedBy,
		RequestID:    req.ID,
	}
	if req.Type == TypeIssue {
		spec.Category = task.CategoryDispatch
		spec.Title = fmt.Sprintf("Dispatch for request %s", req.ID)
	} else {
		spec.Category = task.CategoryReplenishment
		spec.Title = fmt.Sprintf("Replenish via request %s", req.ID)
	}
	e.tasks.AddTask(ctx, spec)
}

// LineOutcome reports the stock effect of one approved line
// 承認された明細1行の在庫効果を報告
type LineOutcome struct {
	ItemID    string  `json:"item_id"`   // 商品ID
	Approved  float64 `json:"approved"`  // 承認数量
	Fulfilled float64 `json:"fulfilled"` // 出庫できた数量
	Shortfall float64 `json:"shortfall"` // 不足数量
}

// ApproveResult reports the full effect of an approval
// 承認の全効果を報告
type ApproveResult struct {
	RequestID string        `json:"request_id"`
	Lines     []LineOutcome `json:"lines,omitempty"`
}

// approvalUnit is the staged unit of work of one approval: every
// validation happens before the first effect, then the effects commit as
// one sequence.
// 承認1件分のステージ済み作業単位。全ての検証を最初の効果より前に
// 行い、効果は一続きでコミットする。
type approvalUnit struct {
	request ProductionRequest
	lines   []Line
}

// Approve transitions a PENDING request to APPROVED. Unauthorized actors
// receive ErrApprovalDenied and nothing changes; transitions from any
// other state return ErrRequestNotPending. Approving an ISSUE request
// cascades: each line's approved quantity is deducted from the ledger,
// a USED consumption event records the fulfilled quantity, and an audit
// entry is written.
// PENDINGのリクエストをAPPROVEDへ遷移させる。権限がない場合は
// ErrApprovalDeniedを返し何も変更しない。PENDING以外からの遷移は
// ErrRequestNotPending。ISSUEの承認は連鎖効果を持つ：各明細の承認
// 数量を元帳から出庫し、充足数量でUSED消費イベントを記録し、監査
// エントリを書き込む。
func (e *Engine) Approve(ctx context.Context, requestID, actor string, role UserRole, comment string) (*ApproveResult, error) {
	unit, err := e.stageApproval(requestID, actor, role, comment)
	if err != nil {
		return nil, err
	}
	return e.commitApproval(ctx, unit, actor)
}

// stageApproval validates and prepares an approval without mutating state
// 状態を変更せずに承認を検証・準備する
func (e *Engine) stageApproval(requestID, actor string, role UserRole, comment string) (*approvalUnit, error) {
	e.mu.Lock()
	var req *ProductionRequest
	for i := range e.requests {
		if e.requests[i].ID == requestID {
			req = &e.requests[i]
			break
		}
	}
	if req == nil {
		e.mu.Unlock()
		return nil, ErrRequestNotFound
	}
	staged := *req
	var lines []Line
	for i := range e.lines {
		if e.lines[i].RequestID == requestID {
			lines = append(lines, e.lines[i])
		}
	}
	e.mu.Unlock()

	if staged.Status != StatusPending {
		return nil, ErrRequestNotPending
	}
	if !e.CanApprove(&staged, actor, role) {
		return nil, ErrApprovalDenied
	}

	now := e.now().UTC().Format(time.RFC3339)
	staged.Status = StatusApproved
	staged.ApprovedAt = now
	staged.Approvals = append(staged.Approvals, Approval{By: actor, Role: role, At: now, Comment: comment})
	alreadyListed := false
	for _, b := range staged.ApprovedBy {
		if b == actor {
			alreadyListed = true
			break
		}
	}
	if !alreadyListed {
		staged.ApprovedBy = append(staged.ApprovedBy, actor)
	}

	return &approvalUnit{request: staged, lines: lines}, nil
}

// commitApproval applies a staged approval and its cascade
// ステージ済み承認とその連鎖効果を適用する
func (e *Engine) commitApproval(ctx context.Context, unit *approvalUnit, actor string) (*ApproveResult, error) {
	req := unit.request

	e.mu.Lock()
	for i := range e.requests {
		if e.requests[i].ID == req.ID {
			e.requests[i] = req
			break
		}
	}
	e.mu.Unlock()

	result := &ApproveResult{RequestID: req.ID}

	if req.Type == TypeIssue {
		for _, line := range unit.lines {
			qty := line.ApprovedQty
			if qty <= 0 {
				qty = line.RequestedQty
			}
			removal := e.ledger.RemoveStockRef(ctx, line.ItemID, qty, "REQUEST", req.ID)
			outcome := LineOutcome{
				ItemID:    line.ItemID,
				Approved:  qty,
				Fulfilled: removal.Fulfilled,
				Shortfall: removal.Shortfall,
			}
			result.Lines = append(result.Lines, outcome)

			if removal.Fulfilled > 0 {
				// 消費イベントは実際に出庫できた数量を記録する
				e.appendEvent(ctx, ConsumptionEvent{
					ID:        NewEventID(),
					RequestID: req.ID,
					ItemID:    line.ItemID,
					Kind:      ConsumptionUsed,
					Qty:       removal.Fulfilled,
					By:        actor,
					At:        e.now().UTC().Format(time.RFC3339),
				})
				e.bumpLine(ctx, req.ID, line.ItemID, func(l *Line) {
					l.UsedQty += removal.Fulfilled
				})
			}
			if removal.Shortfall > 0 {
				e.logger.Warn("承認連鎖の出庫が不足しました",
					zap.String("request_id", req.ID),
					zap.String("item_id", line.ItemID),
					zap.Float64("shortfall", removal.Shortfall),
				)
			}
		}
	}

	if err := e.source.SaveRequest(ctx, &req); err != nil {
		e.logger.Error("リクエストの保存に失敗しました（ローカル状態は維持）",
			zap.String("request_id", req.ID), zap.Error(err))
	}

	meta := map[string]string{"type": string(req.Type)}
	for _, o := range result.Lines {
		if o.Shortfall > 0 {
			meta["shortfall_"+o.ItemID] = fmt.Sprintf("%g", o.Shortfall)
		}
	}
	e.audit.Add(ctx, "REQUEST_APPROVED", req.ID,
		fmt.Sprintf("%s approved by %s", req.ID, actor), actor, meta)

	e.logger.Info("リクエスト承認完了",
		zap.String("request_id", req.ID),
		zap.String("actor", actor),
	)

	return result, nil
}

// Reject transitions a PENDING request to REJECTED. No stock cascade.
// PENDINGのリクエストをREJECTEDへ遷移させる。在庫への連鎖効果はない。
func (e *Engine) Reject(ctx context.Context, requestID, actor string, role UserRole, comment string) error {
	e.mu.Lock()
	var req *ProductionRequest
	for i := range e.requests {
		if e.requests[i].ID == requestID {
			req = &e.requests[i]
			break
		}
	}
	if req == nil {
		e.mu.Unlock()
		return ErrRequestNotFound
	}
	if req.Status != StatusPending {
		e.mu.Unlock()
		return ErrRequestNotPending
	}
	req.Status = StatusRejected
	req.Approvals = append(req.Approvals, Approval{
		By: actor, Role: role, At: e.now().UTC().Format(time.RFC3339), Comment: comment,
	})
	snapshot := *req
	e.mu.Unlock()

	if err := e.source.SaveRequest(ctx, &snapshot); err != nil {
		e.logger.Error("リクエストの保存に失敗しました（ローカル状態は維持）",
			zap.String("request_id", requestID), zap.Error(err))
	}

	e.audit.Add(ctx, "REQUEST_REJECTED", requestID,
		fmt.Sprintf("%s rejected by %s", requestID, actor), actor, nil)

	e.logger.Info("リクエスト却下完了",
		zap.String("request_id", requestID),
		zap.String("actor", actor),
	)
	return nil
}

// Close transitions an APPROVED request to CLOSED. This is the manual
// path; no automatic transition reaches CLOSED.
// APPROVEDのリクエストをCLOSEDへ遷移させる手動経路。自動遷移で
// CLOSEDに到達することはない。
func (e *Engine) Close(ctx context.Context, requestID, actor string) error {
	e.mu.Lock()
	var req *ProductionRequest
	for i := range e.requests {
		if e.requests[i].ID == requestID {
			req = &e.requests[i]
			break
		}
	}
	if req == nil {
		e.mu.Unlock()
		return ErrRequestNotFound
	}
	if req.Status != StatusApproved {
		e.mu.Unlock()
		return ErrRequestNotApproved
	}
	req.Status = StatusClosed
	req.ClosedAt = e.now().UTC().Format(time.RFC3339)
	snapshot := *req
	e.mu.Unlock()

	if err := e.source.SaveRequest(ctx, &snapshot); err != nil {
		e.logger.Error("リクエストの保存に失敗しました（ローカル状態は維持）",
			zap.String("request_id", requestID), zap.Error(err))
	}

	e.audit.Add(ctx, "REQUEST_CLOSED", requestID,
		fmt.Sprintf("%s closed by %s", requestID, actor), actor, nil)
	return nil
}

// AddAttachment attaches a document to a request
// リクエストに書類を添付
func (e *Engine) AddAttachment(ctx context.Context, requestID, name string) error {
	e.mu.Lock()
	var snapshot *ProductionRequest
	for i := range e.requests {
		if e.requests[i].ID == requestID {
			e.requests[i].Docs = append(e.requests[i].Docs, Attachment{ID: NewAttachmentID(), Name: name})
			cp := e.requests[i]
			snapshot = &cp
			break
		}
	}
	e.mu.Unlock()

	if snapshot == nil {
		return ErrRequestNotFound
	}
	if err := e.source.SaveRequest(ctx, snapshot); err != nil {
		e.logger.Error("リクエストの保存に失敗しました（ローカル状態は維持）",
			zap.String("request_id", requestID), zap.Error(err))
	}
	return nil
}

// RecordConsumption appends a USED/RETURNED/REJECTED event for a request
// line and reconciles the line's quantities. Exceeding the approved
// quantity is tolerated but logged.
// リクエスト明細に対するUSED/RETURNED/REJECTEDイベントを追記し、
// 明細数量を突き合わせる。承認数量の超過は許容するがログに残す。
func (e *Engine) RecordConsumption(ctx context.Context, requestID, itemID string, kind ConsumptionKind, qty float64, reason, by string) (string, error) {
	if err := inventory.ValidateQuantity(qty); err != nil {
		return "", err
	}

	e.mu.Lock()
	found := false
	for i := range e.lines {
		if e.lines[i].RequestID == requestID && e.lines[i].ItemID == itemID {
			found = true
			break
		}
	}
	e.mu.Unlock()
	if !found {
		return "", ErrRequestNotFound
	}

	ev := ConsumptionEvent{
		ID:        NewEventID(),
		RequestID: requestID,
		ItemID:    itemID,
		Kind:      kind,
		Qty:       qty,
		Reason:    reason,
		By:        by,
		At:        e.now().UTC().Format(time.RFC3339),
	}
	e.appendEvent(ctx, ev)

	e.bumpLine(ctx, requestID, itemID, func(l *Line) {
		switch kind {
		case ConsumptionUsed:
			l.UsedQty += qty
		case ConsumptionReturned:
			l.ReturnedQty += qty
		case ConsumptionRejected:
			l.RejectedQty += qty
		}
		if l.Variance() < 0 {
			e.logger.Warn("消費実績が承認数量を超えています",
				zap.String("request_id", requestID),
				zap.String("item_id", itemID),
				zap.Float64("variance", l.Variance()),
			)
		}
	})

	return ev.ID, nil
}

// appendEvent appends an immutable consumption event
// 不変の消費イベントを追記
func (e *Engine) appendEvent(ctx context.Context, ev ConsumptionEvent) {
	e.mu.Lock()
	e.events = append(e.events, ev)
	e.mu.Unlock()

	if err := e.source.AppendConsumptionEvent(ctx, &ev); err != nil {
		e.logger.Error("消費イベントの保存に失敗しました（ローカル状態は維持）",
			zap.String("event_id", ev.ID), zap.Error(err))
	}
}

// bumpLine applies a mutation to one request line and persists it
// リクエスト明細1行を更新して永続化
func (e *Engine) bumpLine(ctx context.Context, requestID, itemID string, fn func(*Line)) {
	e.mu.Lock()
	var snapshot *Line
	for i := range e.lines {
		if e.lines[i].RequestID == requestID && e.lines[i].ItemID == itemID {
			fn(&e.lines[i])
			cp := e.lines[i]
			snapshot = &cp
			break
		}
	}
	e.mu.Unlock()

	if snapshot == nil {
		return
	}
	if err := e.source.SaveLine(ctx, snapshot); err != nil {
		e.logger.Error("明細の保存に失敗しました（ローカル状態は維持）",
			zap.String("request_id", requestID), zap.Error(err))
	}
}

// RequestByID returns the request with the given id, or nil
// 指定IDのリクエストを返す。存在しない場合はnil
func (e *Engine) RequestByID(id string) *ProductionRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.requests {
		if e.requests[i].ID == id {
			r := e.requests[i]
			return &r
		}
	}
	return nil
}

// Requests returns a snapshot copy of all requests
// 全リクエストのスナップショットコピーを返す
func (e *Engine) Requests() []ProductionRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]ProductionRequest, len(e.requests))
	copy(out, e.requests)
	return out
}

// Products returns a snapshot copy of all products
// 全製品のスナップショットコピーを返す
func (e *Engine) Products() []Product {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Product, len(e.products))
	copy(out, e.products)
	return out
}

// LinesByRequest returns the lines of one request
// 単一リクエストの明細を返す
func (e *Engine) LinesByRequest(id string) []Line {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []Line
	for i := range e.lines {
		if e.lines[i].RequestID == id {
			out = append(out, e.lines[i])
		}
	}
	return out
}

// EventsByRequest returns the consumption events of one request
// 単一リクエストの消費イベントを返す
func (e *Engine) EventsByRequest(id string) []ConsumptionEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []ConsumptionEvent
	for i := range e.events {
		if e.events[i].RequestID == id {
			out = append(out, e.events[i])
		}
	}
	return out
}
