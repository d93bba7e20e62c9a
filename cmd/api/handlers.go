package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/opscontrol/flowora/internal/metrics"
	"github.com/opscontrol/flowora/pkg/audit"
	"github.com/opscontrol/flowora/pkg/inventory"
	"github.com/opscontrol/flowora/pkg/messaging"
	"github.com/opscontrol/flowora/pkg/procurement"
	"github.com/opscontrol/flowora/pkg/request"
	"github.com/opscontrol/flowora/pkg/task"
)

// Handlers holds HTTP handlers for the flowora API
// flowora API用のHTTPハンドラーを保持
type Handlers struct {
	ledger    *inventory.Ledger
	valuation *inventory.ValuationEngine
	requests  *request.Engine
	tasks     *task.Engine
	auditLog  *audit.Log
	purchases *procurement.Store
	templater *messaging.Templater
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewHandlers creates new HTTP handlers
// 新しいHTTPハンドラーを作成
func NewHandlers(
	ledger *inventory.Ledger,
	valuation *inventory.ValuationEngine,
	requests *request.Engine,
	tasks *task.Engine,
	auditLog *audit.Log,
	purchases *procurement.Store,
	templater *messaging.Templater,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		ledger:    ledger,
		valuation: valuation,
		requests:  requests,
		tasks:     tasks,
		auditLog:  auditLog,
		purchases: purchases,
		templater: templater,
		metrics:   m,
		logger:    logger,
	}
}

// APIResponse represents standard API response format
// 標準的なAPIレスポンス形式を表現
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func (h *Handlers) actorContext(r *http.Request) context.Context {
	actor := r.Header.Get("X-User")
	if actor == "" {
		actor = "api_user"
	}
	return context.WithValue(r.Context(), "user_id", actor)
}

// HealthCheck handles health check requests
// ヘルスチェックリクエストを処理
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.sendSuccess(w, map[string]interface{}{
		"status":  "healthy",
		"service": "flowora",
		"loaded":  h.ledger.Loaded(),
	})
}

// --- 在庫 - Inventory ---

// CreateItemRequest represents an item creation payload
// 商品作成リクエストを表現
type CreateItemRequest struct {
	inventory.Item
	InitialQty float64 `json:"initial_qty"`        // 初期在庫数量
	LocationID string  `json:"location_id"`        // 初期在庫のロケーション
}

// CreateItem handles item creation with optional opening stock
// 商品作成（任意の初期在庫付き）を処理
func (h *Handlers) CreateItem(w http.ResponseWriter, r *http.Request) {
	var req CreateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "無効なリクエスト形式です")
		return
	}

	ctx := h.actorContext(r)
	id, err := h.ledger.AddItem(ctx, req.Item)
	if err != nil {
		h.sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.InitialQty > 0 {
		h.ledger.AddStock(ctx, id, req.InitialQty, req.LocationID)
		h.metrics.StockMutations.WithLabelValues("add").Inc()
	}

	h.sendSuccess(w, map[string]string{"id": id})
}

// ListItems handles item listing
// 商品一覧取得を処理
func (h *Handlers) ListItems(w http.ResponseWriter, r *http.Request) {
	h.sendSuccess(w, h.ledger.Items())
}

// GetItem handles single item retrieval
// 単一商品取得を処理
func (h *Handlers) GetItem(w http.ResponseWriter, r *http.Request) {
	item := h.ledger.GetItem(mux.Vars(r)["itemId"])
	if item == nil {
		h.sendError(w, http.StatusNotFound, "商品が見つかりません")
		return
	}
	h.sendSuccess(w, item)
}

// CreateLocationRequest represents a location creation payload
// ロケーション作成リクエストを表現
type CreateLocationRequest struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// CreateLocation handles location creation
// ロケーション作成を処理
func (h *Handlers) CreateLocation(w http.ResponseWriter, r *http.Request) {
	var req CreateLocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "無効なリクエスト形式です")
		return
	}
	if err := inventory.ValidateLocationName(req.Name); err != nil {
		h.sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	loc := h.ledger.AddLocation(h.actorContext(r), req.Name, inventory.LocationType(req.Type))
	h.sendSuccess(w, loc)
}

// ListLocations handles location listing
// ロケーション一覧取得を処理
func (h *Handlers) ListLocations(w http.ResponseWriter, r *http.Request) {
	h.sendSuccess(w, h.ledger.Locations())
}

// StockMutationRequest represents an add/remove stock payload
// 在庫追加・出庫リクエストを表現
type StockMutationRequest struct {
	ItemID     string  `json:"item_id"`
	Qty        float64 `json:"qty"`
	LocationID string  `json:"location_id"`
	BatchID    string  `json:"batch_id"`
}

// AddStock handles stock addition
// 在庫追加を処理
func (h *Handlers) AddStock(w http.ResponseWriter, r *http.Request) {
	var req StockMutationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "無効なリクエスト形式です")
		return
	}

	ctx := h.actorContext(r)
	if req.BatchID != "" {
		h.ledger.AddBatchStock(ctx, req.ItemID, req.BatchID, req.Qty, req.LocationID)
	} else {
		h.ledger.AddStock(ctx, req.ItemID, req.Qty, req.LocationID)
	}
	h.metrics.StockMutations.WithLabelValues("add").Inc()

	h.sendSuccess(w, map[string]string{"message": "在庫追加が完了しました"})
}

// RemoveStock handles stock removal and reports partial fulfillment
// 在庫出庫を処理し、部分充足を報告
func (h *Handlers) RemoveStock(w http.ResponseWriter, r *http.Request) {
	var req StockMutationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "無効なリクエスト形式です")
		return
	}

	result := h.ledger.RemoveStock(h.actorContext(r), req.ItemID, req.Qty)
	h.metrics.StockMutations.WithLabelValues("remove").Inc()

	h.sendSuccess(w, result)
}

// GetQuantity handles scoped quantity queries
// スコープ付き数量照会を処理
func (h *Handlers) GetQuantity(w http.ResponseWriter, r *http.Request) {
	itemID := mux.Vars(r)["itemId"]
	scope := scopeFromQuery(r)

	h.sendSuccess(w, map[string]interface{}{
		"item_id":         itemID,
		"qty":             h.ledger.QuantityInScope(itemID, scope),
		"earliest_expiry": h.ledger.EarliestExpiry(itemID, scope),
	})
}

// GetFEFO handles FEFO allocation queries
// FEFO引当照会を処理
func (h *Handlers) GetFEFO(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	h.sendSuccess(w, h.ledger.FEFOAllocate(vars["itemId"], vars["locationId"]))
}

// GetStockByLocation handles per-location stock queries
// ロケーション別在庫照会を処理
func (h *Handlers) GetStockByLocation(w http.ResponseWriter, r *http.Request) {
	h.sendSuccess(w, h.ledger.StockByLocation(mux.Vars(r)["itemId"]))
}

// GetMovements handles movement history queries
// 移動履歴照会を処理
func (h *Handlers) GetMovements(w http.ResponseWriter, r *http.Request) {
	h.sendSuccess(w, h.ledger.MovementsForItem(mux.Vars(r)["itemId"]))
}

// GetValuation handles stock valuation queries
// 在庫評価照会を処理
func (h *Handlers) GetValuation(w http.ResponseWriter, r *http.Request) {
	itemID := mux.Vars(r)["itemId"]
	method := inventory.ValuationMethod(r.URL.Query().Get("method"))
	if method == "" {
		method = inventory.ValuationMethodStandard
	}

	value, err := h.valuation.ValueInScope(itemID, scopeFromQuery(r), method)
	if err != nil {
		if errors.Is(err, inventory.ErrItemNotFound) {
			h.sendError(w, http.StatusNotFound, err.Error())
		} else {
			h.sendError(w, http.StatusBadRequest, err.Error())
		}
		return
	}
	h.sendSuccess(w, map[string]float64{"value": value})
}

// --- リクエスト - Requests ---

// CreateRequestPayload represents a production request creation payload
// 生産リクエスト作成の内容を表現
type CreateRequestPayload struct {
	ProductID   string   `json:"product_id"`
	Type        string   `json:"type"`
	RequestedBy string   `json:"requested_by"`
	Role        string   `json:"role"`
	Approvers   []string `json:"approvers"`
	Description string   `json:"description"`
	Lines       []struct {
		ItemID string  `json:"item_id"`
		Qty    float64 `json:"qty"`
		Reason string  `json:"reason"`
	} `json:"lines"`
}

// CreateRequest handles request creation
// リクエスト作成を処理
func (h *Handlers) CreateRequest(w http.ResponseWriter, r *http.Request) {
	var payload CreateRequestPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.sendError(w, http.StatusBadRequest, "無効なリクエスト形式です")
		return
	}

	input := request.CreateInput{
		ProductID:       payload.ProductID,
		Type:            request.Type(payload.Type),
		RequestedBy:     payload.RequestedBy,
		RequestedByRole: request.UserRole(payload.Role),
		Approvers:       payload.Approvers,
		Description:     payload.Description,
	}
	for _, l := range payload.Lines {
		input.Lines = append(input.Lines, request.LineInput{ItemID: l.ItemID, Qty: l.Qty, Reason: l.Reason})
	}

	id, err := h.requests.Create(h.actorContext(r), input)
	if err != nil {
		h.sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.metrics.TasksRaised.Inc()
	h.sendSuccess(w, map[string]string{"id": id})
}

// ApprovalPayload represents an approve/reject payload
// 承認・却下の内容を表現
type ApprovalPayload struct {
	By      string `json:"by"`
	Role    string `json:"role"`
	Comment string `json:"comment"`
}

// ApproveRequest handles request approval
// リクエスト承認を処理
func (h *Handlers) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	var payload ApprovalPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.sendError(w, http.StatusBadRequest, "無効なリクエスト形式です")
		return
	}

	result, err := h.requests.Approve(h.actorContext(r), mux.Vars(r)["requestId"],
		payload.By, request.UserRole(payload.Role), payload.Comment)
	if err != nil {
		h.metrics.Approvals.WithLabelValues("denied").Inc()
		switch {
		case errors.Is(err, request.ErrRequestNotFound):
			h.sendError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, request.ErrApprovalDenied):
			h.sendError(w, http.StatusForbidden, err.Error())
		default:
			h.sendError(w, http.StatusConflict, err.Error())
		}
		return
	}
	h.metrics.Approvals.WithLabelValues("approved").Inc()
	h.sendSuccess(w, result)
}

// RejectRequest handles request rejection
// リクエスト却下を処理
func (h *Handlers) RejectRequest(w http.ResponseWriter, r *http.Request) {
	var payload ApprovalPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.sendError(w, http.StatusBadRequest, "無効なリクエスト形式です")
		return
	}

	err := h.requests.Reject(h.actorContext(r), mux.Vars(r)["requestId"],
		payload.By, request.UserRole(payload.Role), payload.Comment)
	if err != nil {
		h.sendError(w, http.StatusConflict, err.Error())
		return
	}
	h.metrics.Approvals.WithLabelValues("rejected").Inc()
	h.sendSuccess(w, map[string]string{"message": "リクエストを却下しました"})
}

// CloseRequest handles the manual close transition
// 手動クローズ遷移を処理
func (h *Handlers) CloseRequest(w http.ResponseWriter, r *http.Request) {
	var payload ApprovalPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.sendError(w, http.StatusBadRequest, "無効なリクエスト形式です")
		return
	}
	if err := h.requests.Close(h.actorContext(r), mux.Vars(r)["requestId"], payload.By); err != nil {
		h.sendError(w, http.StatusConflict, err.Error())
		return
	}
	h.sendSuccess(w, map[string]string{"message": "リクエストをクローズしました"})
}

// ListRequests handles request listing
// リクエスト一覧取得を処理
func (h *Handlers) ListRequests(w http.ResponseWriter, r *http.Request) {
	h.sendSuccess(w, h.requests.Requests())
}

// GetRequest handles single request retrieval with lines and events
// 明細・イベント付きの単一リクエスト取得を処理
func (h *Handlers) GetRequest(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["requestId"]
	req := h.requests.RequestByID(id)
	if req == nil {
		h.sendError(w, http.StatusNotFound, "リクエストが見つかりません")
		return
	}
	h.sendSuccess(w, map[string]interface{}{
		"request": req,
		"lines":   h.requests.LinesByRequest(id),
		"events":  h.requests.EventsByRequest(id),
	})
}

// ConsumptionPayload represents a consumption event payload
// 消費イベントの内容を表現
type ConsumptionPayload struct {
	ItemID string  `json:"item_id"`
	Kind   string  `json:"kind"`
	Qty    float64 `json:"qty"`
	Reason string  `json:"reason"`
	By     string  `json:"by"`
}

// RecordConsumption handles consumption event recording
// 消費イベント記録を処理
func (h *Handlers) RecordConsumption(w http.ResponseWriter, r *http.Request) {
	var payload ConsumptionPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.sendError(w, http.StatusBadRequest, "無効なリクエスト形式です")
		return
	}

	id, err := h.requests.RecordConsumption(h.actorContext(r), mux.Vars(r)["requestId"],
		payload.ItemID, request.ConsumptionKind(payload.Kind), payload.Qty, payload.Reason, payload.By)
	if err != nil {
		h.sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.sendSuccess(w, map[string]string{"id": id})
}

// --- タスク - Tasks ---

// CreateTaskPayload represents a task creation payload
// タスク作成の内容を表現
type CreateTaskPayload struct {
	ItemID       string  `json:"item_id"`
	Title        string  `json:"title"`
	Qty          float64 `json:"qty"`
	DaysToArrive int     `json:"days_to_arrive"`
	Assignee     string  `json:"assignee"`
	Category     string  `json:"category"`
	RequestID    string  `json:"request_id"`
}

// CreateTask handles task creation
// タスク作成を処理
func (h *Handlers) CreateTask(w http.ResponseWriter, r *http.Request) {
	var payload CreateTaskPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.sendError(w, http.StatusBadRequest, "無効なリクエスト形式です")
		return
	}

	id := h.tasks.AddTask(h.actorContext(r), task.Spec{
		ItemID:       payload.ItemID,
		Title:        payload.Title,
		Qty:          payload.Qty,
		DaysToArrive: payload.DaysToArrive,
		Assignee:     payload.Assignee,
		Category:     task.Category(payload.Category),
		RequestID:    payload.RequestID,
	})
	h.metrics.TasksRaised.Inc()
	h.sendSuccess(w, map[string]string{"id": id})
}

// UpdateTaskPayload represents a task status update payload
// タスク状態更新の内容を表現
type UpdateTaskPayload struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// UpdateTask handles task status updates
// タスク状態更新を処理
func (h *Handlers) UpdateTask(w http.ResponseWriter, r *http.Request) {
	var payload UpdateTaskPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.sendError(w, http.StatusBadRequest, "無効なリクエスト形式です")
		return
	}

	err := h.tasks.UpdateTask(h.actorContext(r), mux.Vars(r)["taskId"],
		task.Status(payload.Status), payload.Reason)
	if err != nil {
		h.sendError(w, http.StatusNotFound, err.Error())
		return
	}
	h.sendSuccess(w, map[string]string{"message": "タスク状態を更新しました"})
}

// ListTasks handles task listing
// タスク一覧取得を処理
func (h *Handlers) ListTasks(w http.ResponseWriter, r *http.Request) {
	h.sendSuccess(w, h.tasks.Tasks())
}

// GetRecommendation handles reorder recommendation queries
// 発注推奨照会を処理
func (h *Handlers) GetRecommendation(w http.ResponseWriter, r *http.Request) {
	itemID := mux.Vars(r)["itemId"]
	current := h.ledger.QuantityInScope(itemID, scopeFromQuery(r))
	h.sendSuccess(w, h.tasks.Recommendation(itemID, current))
}

// SimulatePayload represents a purchase simulation payload
// 購買シミュレーションの内容を表現
type SimulatePayload struct {
	Qty          float64 `json:"qty"`
	Price        float64 `json:"price"`
	LeadTime     int     `json:"lead_time"`
	CurrentStock float64 `json:"current_stock"`
}

// Simulate handles what-if purchase simulations
// 購買シミュレーションを処理
func (h *Handlers) Simulate(w http.ResponseWriter, r *http.Request) {
	var payload SimulatePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.sendError(w, http.StatusBadRequest, "無効なリクエスト形式です")
		return
	}
	h.sendSuccess(w, h.tasks.Simulate(mux.Vars(r)["itemId"], task.SimulationParams{
		Qty:          payload.Qty,
		Price:        payload.Price,
		LeadTime:     payload.LeadTime,
		CurrentStock: payload.CurrentStock,
	}))
}

// DecisionPayload represents a decision log payload
// 判断ログの内容を表現
type DecisionPayload struct {
	ItemID       string  `json:"item_id"`
	Action       string  `json:"action"`
	Qty          float64 `json:"qty"`
	Price        float64 `json:"price"`
	DaysToArrive int     `json:"days_to_arrive"`
	Note         string  `json:"note"`
}

// LogDecision handles decision logging
// 判断ログ記録を処理
func (h *Handlers) LogDecision(w http.ResponseWriter, r *http.Request) {
	var payload DecisionPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.sendError(w, http.StatusBadRequest, "無効なリクエスト形式です")
		return
	}
	id := h.tasks.LogDecision(h.actorContext(r), payload.ItemID, payload.Action,
		payload.Qty, payload.Price, payload.DaysToArrive, payload.Note)
	h.sendSuccess(w, map[string]string{"id": id})
}

// --- 購買 - Procurement ---

// CreatePurchase handles purchase order creation
// 発注作成を処理
func (h *Handlers) CreatePurchase(w http.ResponseWriter, r *http.Request) {
	var input procurement.CreateInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.sendError(w, http.StatusBadRequest, "無効なリクエスト形式です")
		return
	}
	id := h.purchases.Create(h.actorContext(r), input)
	h.sendSuccess(w, map[string]string{"id": id})
}

// PurchaseStatusPayload represents a purchase status update payload
// 発注状態更新の内容を表現
type PurchaseStatusPayload struct {
	Status string `json:"status"`
	Note   string `json:"note"`
}

// UpdatePurchaseStatus handles purchase lifecycle transitions
// 発注状態遷移を処理
func (h *Handlers) UpdatePurchaseStatus(w http.ResponseWriter, r *http.Request) {
	var payload PurchaseStatusPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.sendError(w, http.StatusBadRequest, "無効なリクエスト形式です")
		return
	}

	err := h.purchases.UpdateStatus(h.actorContext(r), mux.Vars(r)["purchaseId"],
		procurement.PurchaseStatus(payload.Status), payload.Note)
	if err != nil {
		h.sendError(w, http.StatusNotFound, err.Error())
		return
	}
	if procurement.PurchaseStatus(payload.Status) == procurement.StatusReceived {
		h.metrics.StockMutations.WithLabelValues("purchase_received").Inc()
	}
	h.sendSuccess(w, map[string]string{"message": "発注状態を更新しました"})
}

// ListPurchases handles purchase order listing
// 発注一覧取得を処理
func (h *Handlers) ListPurchases(w http.ResponseWriter, r *http.Request) {
	h.sendSuccess(w, h.purchases.Orders())
}

// AddSupplier handles supplier registration
// 仕入先登録を処理
func (h *Handlers) AddSupplier(w http.ResponseWriter, r *http.Request) {
	var supplier procurement.Supplier
	if err := json.NewDecoder(r.Body).Decode(&supplier); err != nil {
		h.sendError(w, http.StatusBadRequest, "無効なリクエスト形式です")
		return
	}
	id := h.purchases.AddSupplier(h.actorContext(r), supplier)
	h.sendSuccess(w, map[string]string{"id": id})
}

// ListSuppliers handles supplier listing
// 仕入先一覧取得を処理
func (h *Handlers) ListSuppliers(w http.ResponseWriter, r *http.Request) {
	h.sendSuccess(w, h.purchases.Suppliers())
}

// --- メッセージ - Messaging ---

// RenderPayload represents a template render payload
// テンプレート描画の内容を表現
type RenderPayload struct {
	Text    string            `json:"text"`
	Context messaging.Context `json:"context"`
}

// RenderTemplate handles ad hoc template rendering
// テンプレート描画を処理
func (h *Handlers) RenderTemplate(w http.ResponseWriter, r *http.Request) {
	var payload RenderPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.sendError(w, http.StatusBadRequest, "無効なリクエスト形式です")
		return
	}
	h.sendSuccess(w, map[string]string{"rendered": messaging.Render(payload.Text, payload.Context)})
}

// SendPayload represents a templated send payload
// テンプレート送信の内容を表現
type SendPayload struct {
	To         []string          `json:"to"`
	TemplateID string            `json:"template_id"`
	Context    messaging.Context `json:"context"`
	By         string            `json:"by"`
}

// SendSMS handles templated SMS sends
// テンプレートSMS送信を処理
func (h *Handlers) SendSMS(w http.ResponseWriter, r *http.Request) {
	var payload SendPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.sendError(w, http.StatusBadRequest, "無効なリクエスト形式です")
		return
	}
	msg := h.templater.SendSMS(h.actorContext(r), payload.To, payload.TemplateID, payload.Context, payload.By)
	if msg == nil {
		h.sendError(w, http.StatusNotFound, "テンプレートが見つかりません")
		return
	}
	h.sendSuccess(w, msg)
}

// SendEmail handles templated email sends
// テンプレートメール送信を処理
func (h *Handlers) SendEmail(w http.ResponseWriter, r *http.Request) {
	var payload SendPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.sendError(w, http.StatusBadRequest, "無効なリクエスト形式です")
		return
	}
	msg := h.templater.SendEmail(h.actorContext(r), payload.To, payload.TemplateID, payload.Context, payload.By)
	if msg == nil {
		h.sendError(w, http.StatusNotFound, "テンプレートが見つかりません")
		return
	}
	h.sendSuccess(w, msg)
}

// --- 監査 - Audit ---

// ListAudit handles audit log queries
// 監査ログ照会を処理
func (h *Handlers) ListAudit(w http.ResponseWriter, r *http.Request) {
	if entityID := r.URL.Query().Get("entity_id"); entityID != "" {
		h.sendSuccess(w, h.auditLog.EntriesFor(entityID))
		return
	}
	entries := h.auditLog.Entries()
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 && limit < len(entries) {
			entries = entries[len(entries)-limit:]
		}
	}
	h.sendSuccess(w, entries)
}

// ヘルパーメソッド

// scopeFromQuery builds a scope from the location query parameter
// locationクエリパラメータからスコープを構築
func scopeFromQuery(r *http.Request) inventory.Scope {
	if loc := r.URL.Query().Get("location"); loc != "" {
		return inventory.ScopeOne(loc)
	}
	return inventory.ScopeAll()
}

// sendSuccess sends a successful API response
// 成功APIレスポンスを送信
func (h *Handlers) sendSuccess(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	response := APIResponse{
		Success: true,
		Data:    data,
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("レスポンス送信に失敗しました", zap.Error(err))
	}
}

// sendError sends an error API response
// エラーAPIレスポンスを送信
func (h *Handlers) sendError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := APIResponse{
		Success: false,
		Error:   message,
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("エラーレスポンス送信に失敗しました", zap.Error(err))
	}
}
