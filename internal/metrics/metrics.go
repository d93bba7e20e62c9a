// Package metrics registers the Prometheus collectors exposed on /metrics
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the application collectors
// アプリケーションのコレクターをまとめて保持
type Metrics struct {
	Registry *prometheus.Registry

	HTTPRequests   *prometheus.CounterVec // HTTPリクエスト数
	StockMutations *prometheus.CounterVec // 在庫変更操作数
	Approvals      *prometheus.CounterVec // 承認処理数
	TasksRaised    prometheus.Counter     // 自動生成されたタスク数
}

// New creates and registers the collectors on a dedicated registry
// 専用レジストリにコレクターを作成・登録
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		Registry: registry,
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowora_http_requests_total",
			Help: "Number of HTTP requests handled, by method and path.",
		}, []string{"method", "path"}),
		StockMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowora_stock_mutations_total",
			Help: "Number of stock mutations, by operation.",
		}, []string{"operation"}),
		Approvals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowora_request_approvals_total",
			Help: "Number of request approval attempts, by result.",
		}, []string{"result"}),
		TasksRaised: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flowora_tasks_raised_total",
			Help: "Number of tasks created through the API or watchers.",
		}),
	}

	registry.MustRegister(m.HTTPRequests, m.StockMutations, m.Approvals, m.TasksRaised)
	return m
}
