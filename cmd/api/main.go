package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/opscontrol/flowora/internal/config"
	"github.com/opscontrol/flowora/internal/metrics"
	"github.com/opscontrol/flowora/pkg/audit"
	"github.com/opscontrol/flowora/pkg/inventory"
	"github.com/opscontrol/flowora/pkg/inventory/storage"
	"github.com/opscontrol/flowora/pkg/messaging"
	"github.com/opscontrol/flowora/pkg/procurement"
	"github.com/opscontrol/flowora/pkg/request"
	"github.com/opscontrol/flowora/pkg/task"
)

// dataSource is the union of the per-store source interfaces, satisfied by
// both the memory store and the PostgreSQL store
// 各ストアのSourceインターフェースの合併。メモリ・PostgreSQL双方が満たす
type dataSource interface {
	inventory.Source
	request.Source
	task.Source
	audit.Source
	procurement.Source
	Ping(ctx context.Context) error
	Close() error
}

func main() {
	// ログ設定
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal("ログ初期化に失敗しました:", err)
	}
	defer logger.Sync()

	// 設定読み込み
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("設定読み込みに失敗しました", zap.Error(err))
	}

	// データソース選択（メモリシード or PostgreSQL）
	var source dataSource
	if cfg.Inventory.UseMemoryStore {
		logger.Info("メモリデータソースを使用します")
		source = storage.NewSeededMemoryStore()
	} else {
		pg, err := storage.NewPostgreSQLStore(cfg.DSN(), logger)
		if err != nil {
			logger.Fatal("データベース接続に失敗しました", zap.Error(err))
		}
		source = pg
	}
	defer source.Close()

	ctx := context.Background()

	// ストア構築
	auditLog := audit.NewLog(source, logger)

	ledger := inventory.NewLedger(source, nil, logger, &inventory.Config{
		DefaultLocationName: cfg.Inventory.DefaultLocationName,
		RemovalOrder:        inventory.RemovalOrder(cfg.Inventory.RemovalOrder),
	})
	valuation := inventory.NewValuationEngine(ledger, logger)

	taskEngine := task.NewEngine(ledger, auditLog, source, logger, &task.Config{
		SafetyBufferDays: cfg.Decision.SafetyBufferDays,
		DefaultAssignee:  cfg.Decision.DefaultAssignee,
	})

	// 在庫変動がウォッチャーを駆動するように接続
	ledger.SetPublisher(taskEngine)

	requestEngine := request.NewEngine(ledger, taskEngine, auditLog, source, logger, &request.Config{
		AutoApproveIssue: cfg.Workflow.AutoApproveIssue,
		TaskDueDays:      cfg.Workflow.TaskDueDays,
		Rules:            approvalRules(cfg.Workflow.ApprovalRules),
	})

	purchases := procurement.NewStore(ledger, auditLog, source, logger)

	templater := messaging.NewTemplater(auditLog, logger, seedSMSTemplates(), seedEmailTemplates())

	// 初期読み込みと低在庫同期
	refreshers := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"audit", auditLog.Refresh},
		{"inventory", ledger.Refresh},
		{"tasks", taskEngine.Refresh},
		{"requests", requestEngine.Refresh},
		{"procurement", purchases.Refresh},
	}
	for _, r := range refreshers {
		if err := r.fn(ctx); err != nil {
			logger.Error("初期読み込みに失敗しました", zap.String("store", r.name), zap.Error(err))
		}
	}
	taskEngine.SyncLowStock(ctx)

	// HTTPハンドラー設定
	m := metrics.New()
	handlers := NewHandlers(ledger, valuation, requestEngine, taskEngine, auditLog, purchases, templater, m, logger)
	router := setupRouter(handlers, m, cfg)

	// HTTPサーバー設定
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.API.Port),
		Handler:      router,
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
		IdleTimeout:  cfg.API.IdleTimeout,
	}

	// グレースフルシャットダウン設定
	go func() {
		logger.Info("flowora APIサーバーを開始します", zap.Int("port", cfg.API.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("サーバー開始に失敗しました", zap.Error(err))
		}
	}()

	// シャットダウンシグナル待機
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("サーバーをシャットダウンしています...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("サーバーシャットダウンに失敗しました", zap.Error(err))
	}

	logger.Info("サーバーが正常に停止しました")
}

// approvalRules converts configured rules into workflow rules
// 設定値をワークフローの承認ルールへ変換
func approvalRules(rules []config.ApprovalRuleConfig) []request.ApprovalRule {
	out := make([]request.ApprovalRule, 0, len(rules))
	for _, rc := range rules {
		rule := request.ApprovalRule{Type: request.Type(rc.Type)}
		for _, role := range rc.Roles {
			rule.Roles = append(rule.Roles, request.UserRole(role))
		}
		out = append(out, rule)
	}
	return out
}

// seedSMSTemplates returns the built-in SMS templates
// 組み込みSMSテンプレートを返す
func seedSMSTemplates() []messaging.SMSTemplate {
	return []messaging.SMSTemplate{
		{
			ID:   "SMS-RFQ-1",
			Name: "RFQ invite",
			Body: "RFQ {{rfqRef}}: please quote {{qty}} {{uom}} of {{itemName}} by {{dueDate}}.",
		},
		{
			ID:   "SMS-PO-1",
			Name: "PO dispatch reminder",
			Body: "PO {{poNumber}} for {{itemName}} expected on {{expectedOn}}. Contact {{buyer}} for changes.",
		},
	}
}

// seedEmailTemplates returns the built-in email templates
// 組み込みメールテンプレートを返す
func seedEmailTemplates() []messaging.EmailTemplate {
	return []messaging.EmailTemplate{
		{
			ID:      "EMAIL-RFQ-1",
			Name:    "RFQ invite",
			Subject: "RFQ {{rfqRef}} - {{itemName}}",
			Body:    "Hello {{supplier}},\n\nPlease share your best quote for {{qty}} {{uom}} of {{itemName}} by {{dueDate}}.\n\nRegards,\n{{buyer}}",
		},
	}
}

// setupRouter sets up HTTP routes
// HTTPルートを設定
func setupRouter(handlers *Handlers, m *metrics.Metrics, cfg *config.Config) *mux.Router {
	router := mux.NewRouter()

	// ヘルスチェック
	router.HandleFunc("/health", handlers.HealthCheck).Methods("GET")
	if cfg.API.EnableMetrics {
		router.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})).Methods("GET")
	}

	// API v1ルート
	api := router.PathPrefix("/api/v1").Subrouter()

	// 商品・ロケーション管理
	api.HandleFunc("/items", handlers.CreateItem).Methods("POST")
	api.HandleFunc("/items", handlers.ListItems).Methods("GET")
	api.HandleFunc("/items/{itemId}", handlers.GetItem).Methods("GET")
	api.HandleFunc("/locations", handlers.CreateLocation).Methods("POST")
	api.HandleFunc("/locations", handlers.ListLocations).Methods("GET")

	// 在庫操作・照会
	api.HandleFunc("/stock/add", handlers.AddStock).Methods("POST")
	api.HandleFunc("/stock/remove", handlers.RemoveStock).Methods("POST")
	api.HandleFunc("/stock/{itemId}/quantity", handlers.GetQuantity).Methods("GET")
	api.HandleFunc("/stock/{itemId}/fefo/{locationId}", handlers.GetFEFO).Methods("GET")
	api.HandleFunc("/stock/{itemId}/by-location", handlers.GetStockByLocation).Methods("GET")
	api.HandleFunc("/stock/{itemId}/movements", handlers.GetMovements).Methods("GET")
	api.HandleFunc("/stock/{itemId}/valuation", handlers.GetValuation).Methods("GET")

	// リクエストワークフロー
	api.HandleFunc("/requests", handlers.CreateRequest).Methods("POST")
	api.HandleFunc("/requests", handlers.ListRequests).Methods("GET")
	api.HandleFunc("/requests/{requestId}", handlers.GetRequest).Methods("GET")
	api.HandleFunc("/requests/{requestId}/approve", handlers.ApproveRequest).Methods("POST")
	api.HandleFunc("/requests/{requestId}/reject", handlers.RejectRequest).Methods("POST")
	api.HandleFunc("/requests/{requestId}/close", handlers.CloseRequest).Methods("POST")
	api.HandleFunc("/requests/{requestId}/consumption", handlers.RecordConsumption).Methods("POST")

	// タスク・判断エンジン
	api.HandleFunc("/tasks", handlers.CreateTask).Methods("POST")
	api.HandleFunc("/tasks", handlers.ListTasks).Methods("GET")
	api.HandleFunc("/tasks/{taskId}/status", handlers.UpdateTask).Methods("POST")
	api.HandleFunc("/decisions/{itemId}/recommendation", handlers.GetRecommendation).Methods("GET")
	api.HandleFunc("/decisions/{itemId}/simulate", handlers.Simulate).Methods("POST")
	api.HandleFunc("/decisions", handlers.LogDecision).Methods("POST")

	// 購買
	api.HandleFunc("/purchases", handlers.CreatePurchase).Methods("POST")
	api.HandleFunc("/purchases", handlers.ListPurchases).Methods("GET")
	api.HandleFunc("/purchases/{purchaseId}/status", handlers.UpdatePurchaseStatus).Methods("POST")
	api.HandleFunc("/suppliers", handlers.AddSupplier).Methods("POST")
	api.HandleFunc("/suppliers", handlers.ListSuppliers).Methods("GET")

	// メッセージテンプレート
	api.HandleFunc("/messages/render", handlers.RenderTemplate).Methods("POST")
	api.HandleFunc("/messages/sms", handlers.SendSMS).Methods("POST")
	api.HandleFunc("/messages/email", handlers.SendEmail).Methods("POST")

	// 監査ログ
	api.HandleFunc("/audit", handlers.ListAudit).Methods("GET")

	// CORS設定（開発用）
	if cfg.API.EnableCORS {
		router.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Access-Control-Allow-Origin", "*")
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-User")

				if r.Method == "OPTIONS" {
					w.WriteHeader(http.StatusOK)
					return
				}

				next.ServeHTTP(w, r)
			})
		})
	}

	// ログ・メトリクス
	router.Use(loggingMiddleware(handlers.logger, m))

	return router
}

// loggingMiddleware logs HTTP requests and counts them
// HTTPリクエストをログ出力し、メトリクスに計上するミドルウェア
func loggingMiddleware(logger *zap.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// リクエスト処理
			next.ServeHTTP(w, r)

			m.HTTPRequests.WithLabelValues(r.Method, r.URL.Path).Inc()

			// ログ出力
			logger.Info("HTTPリクエスト",
				zap.String("method", r.Method),
				zap.String("url", r.URL.Path),
				zap.String("remote_addr", r.RemoteAddr),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}
