package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds application configuration
// アプリケーション設定を保持
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	API       APIConfig       `yaml:"api"`
	Inventory InventoryConfig `yaml:"inventory"`
	Workflow  WorkflowConfig  `yaml:"workflow"`
	Decision  DecisionConfig  `yaml:"decision"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DatabaseConfig holds database configuration
// データベース設定を保持
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// APIConfig holds API server configuration
// APIサーバー設定を保持
type APIConfig struct {
	Port          int           `yaml:"port"`
	ReadTimeout   time.Duration `yaml:"read_timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	IdleTimeout   time.Duration `yaml:"idle_timeout"`
	EnableCORS    bool          `yaml:"enable_cors"`
	EnableMetrics bool          `yaml:"enable_metrics"`
}

// InventoryConfig holds stock-ledger configuration
// 在庫元帳の設定を保持
type InventoryConfig struct {
	UseMemoryStore      bool   `yaml:"use_memory_store"`      // メモリデータソースを使用
	DefaultLocationName string `yaml:"default_location_name"` // 既定ロケーション名
	RemovalOrder        string `yaml:"removal_order"`         // FEFO または BATCH_ID
}

// ApprovalRuleConfig maps a request type to approver roles.
// Approval policy is configuration, never code.
// リクエスト種類と承認ロールの対応。承認ポリシーは設定であり
// コードには置かない。
type ApprovalRuleConfig struct {
	Type  string   `yaml:"type"`
	Roles []string `yaml:"roles"`
}

// WorkflowConfig holds request workflow configuration
// リクエストワークフローの設定を保持
type WorkflowConfig struct {
	AutoApproveIssue bool                 `yaml:"auto_approve_issue"` // ISSUE作成時の自動承認ポリシー
	TaskDueDays      int                  `yaml:"task_due_days"`      // 生成タスクの期限日数
	ApprovalRules    []ApprovalRuleConfig `yaml:"approval_rules"`     // 承認ルール
}

// DecisionConfig holds decision-engine configuration
// 判断エンジンの設定を保持
type DecisionConfig struct {
	SafetyBufferDays int    `yaml:"safety_buffer_days"` // 安全バッファ（日）
	DefaultAssignee  string `yaml:"default_assignee"`   // 低在庫アラートの担当者
}

// LoggingConfig holds logging configuration
// ログ設定を保持
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json, console
	Output string `yaml:"output"` // stdout, file
}

// Load loads configuration from an optional YAML file (CONFIG_FILE) with
// environment variables overriding file values
// 任意のYAMLファイル（CONFIG_FILE）から設定を読み込み、環境変数で
// 上書きする
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("設定ファイル読み込みに失敗しました: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("設定ファイル解析に失敗しました: %w", err)
		}
	}

	applyEnv(cfg)

	// バリデーション
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定バリデーションに失敗しました: %w", err)
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			User:    "flowora",
			DBName:  "flowora_db",
			SSLMode: "disable",
		},
		API: APIConfig{
			Port:          8080,
			ReadTimeout:   30 * time.Second,
			WriteTimeout:  30 * time.Second,
			IdleTimeout:   60 * time.Second,
			EnableCORS:    true,
			EnableMetrics: true,
		},
		Inventory: InventoryConfig{
			UseMemoryStore:      true,
			DefaultLocationName: "Main Store",
			RemovalOrder:        "FEFO",
		},
		Workflow: WorkflowConfig{
			AutoApproveIssue: true,
			TaskDueDays:      7,
			ApprovalRules: []ApprovalRuleConfig{
				{Type: "ISSUE", Roles: []string{"OPS_MANAGER", "CEO"}},
				{Type: "PURCHASE", Roles: []string{"OPS_MANAGER", "CEO"}},
			},
		},
		Decision: DecisionConfig{
			SafetyBufferDays: 14,
			DefaultAssignee:  "Operations Desk",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

func applyEnv(cfg *Config) {
	cfg.Database.Host = getEnv("DB_HOST", cfg.Database.Host)
	cfg.Database.Port = getEnvAsInt("DB_PORT", cfg.Database.Port)
	cfg.Database.User = getEnv("DB_USER", cfg.Database.User)
	cfg.Database.Password = getEnv("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.DBName = getEnv("DB_NAME", cfg.Database.DBName)
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", cfg.Database.SSLMode)

	cfg.API.Port = getEnvAsInt("API_PORT", cfg.API.Port)
	cfg.API.ReadTimeout = getEnvAsDuration("API_READ_TIMEOUT", cfg.API.ReadTimeout)
	cfg.API.WriteTimeout = getEnvAsDuration("API_WRITE_TIMEOUT", cfg.API.WriteTimeout)
	cfg.API.IdleTimeout = getEnvAsDuration("API_IDLE_TIMEOUT", cfg.API.IdleTimeout)
	cfg.API.EnableCORS = getEnvAsBool("API_ENABLE_CORS", cfg.API.EnableCORS)
	cfg.API.EnableMetrics = getEnvAsBool("API_ENABLE_METRICS", cfg.API.EnableMetrics)

	cfg.Inventory.UseMemoryStore = getEnvAsBool("INVENTORY_USE_MEMORY_STORE", cfg.Inventory.UseMemoryStore)
	cfg.Inventory.DefaultLocationName = getEnv("INVENTORY_DEFAULT_LOCATION_NAME", cfg.Inventory.DefaultLocationName)
	cfg.Inventory.RemovalOrder = getEnv("INVENTORY_REMOVAL_ORDER", cfg.Inventory.RemovalOrder)

	cfg.Workflow.AutoApproveIssue = getEnvAsBool("WORKFLOW_AUTO_APPROVE_ISSUE", cfg.Workflow.AutoApproveIssue)
	cfg.Workflow.TaskDueDays = getEnvAsInt("WORKFLOW_TASK_DUE_DAYS", cfg.Workflow.TaskDueDays)

	cfg.Decision.SafetyBufferDays = getEnvAsInt("DECISION_SAFETY_BUFFER_DAYS", cfg.Decision.SafetyBufferDays)
	cfg.Decision.DefaultAssignee = getEnv("DECISION_DEFAULT_ASSIGNEE", cfg.Decision.DefaultAssignee)

	cfg.Logging.Level = getEnv("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("LOG_FORMAT", cfg.Logging.Format)
	cfg.Logging.Output = getEnv("LOG_OUTPUT", cfg.Logging.Output)
}

// Validate validates the configuration
// 設定をバリデーション
func (c *Config) Validate() error {
	// データベース設定チェック（メモリデータソース使用時は不要）
	if !c.Inventory.UseMemoryStore {
		if c.Database.Host == "" {
			return fmt.Errorf("データベースホストが指定されていません")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			return fmt.Errorf("無効なデータベースポート: %d", c.Database.Port)
		}
		if c.Database.User == "" {
			return fmt.Errorf("データベースユーザーが指定されていません")
		}
		if c.Database.DBName == "" {
			return fmt.Errorf("データベース名が指定されていません")
		}
	}

	// API設定チェック
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("無効なAPIポート: %d", c.API.Port)
	}

	// 在庫設定チェック
	if c.Inventory.DefaultLocationName == "" {
		return fmt.Errorf("既定ロケーション名が指定されていません")
	}
	switch strings.ToUpper(c.Inventory.RemovalOrder) {
	case "FEFO", "BATCH_ID":
	default:
		return fmt.Errorf("無効な出庫順序ポリシー: %s", c.Inventory.RemovalOrder)
	}

	// ワークフロー設定チェック
	if len(c.Workflow.ApprovalRules) == 0 {
		return fmt.Errorf("承認ルールが設定されていません")
	}
	for _, rule := range c.Workflow.ApprovalRules {
		if rule.Type != "ISSUE" && rule.Type != "PURCHASE" {
			return fmt.Errorf("無効な承認ルール種類: %s", rule.Type)
		}
		if len(rule.Roles) == 0 {
			return fmt.Errorf("承認ルール %s にロールが設定されていません", rule.Type)
		}
	}

	// ログ設定チェック
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("無効なログレベル: %s", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"json": true, "console": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("無効なログフォーマット: %s", c.Logging.Format)
	}

	return nil
}

// DSN generates PostgreSQL Data Source Name
// PostgreSQLデータソース名を生成
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
		c.Database.SSLMode,
	)
}

// ヘルパー関数

// getEnv gets environment variable with default value
// デフォルト値付きで環境変数を取得
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets environment variable as integer with default value
// デフォルト値付きで環境変数を整数として取得
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsBool gets environment variable as boolean with default value
// デフォルト値付きで環境変数をbooleanとして取得
func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvAsDuration gets environment variable as duration with default value
// デフォルト値付きで環境変数をdurationとして取得
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
