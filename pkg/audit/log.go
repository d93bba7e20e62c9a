// Package audit provides the append-only audit log
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Entry is an immutable audit record. There are no update or delete
// operations; the log is the system of record for what happened.
// 不変の監査記録。更新・削除操作は存在しない。
type Entry struct {
	ID       string            `json:"id" db:"id"`               // エントリID
	Action   string            `json:"action" db:"action"`       // アクション名
	EntityID string            `json:"entity_id" db:"entity_id"` // 対象エンティティID
	Details  string            `json:"details" db:"details"`     // 詳細
	Actor    string            `json:"actor" db:"actor"`         // 実行者
	At       string            `json:"at" db:"at"`               // 発生日時（RFC3339）
	Meta     map[string]string `json:"meta,omitempty" db:"-"`    // 追加メタデータ
}

// Source defines the data source behind the audit log
// 監査ログの背後にあるデータソースを定義
type Source interface {
	LoadAudit(ctx context.Context) ([]Entry, error)
	AppendAuditEntry(ctx context.Context, e *Entry) error
}

// Log is the append-only audit store
// 追記専用の監査ストア
type Log struct {
	source Source
	logger *zap.Logger

	mu      sync.RWMutex
	entries []Entry
	loading bool

	now func() time.Time
}

// NewLog creates a new audit log
// 新しい監査ログを作成
func NewLog(source Source, logger *zap.Logger) *Log {
	return &Log{
		source: source,
		logger: logger,
		now:    time.Now,
	}
}

// Refresh loads persisted entries; a failed load keeps the current state
// 永続化済みエントリを読み込む。失敗時は現在の状態を保持
func (l *Log) Refresh(ctx context.Context) error {
	l.mu.Lock()
	if l.loading {
		l.mu.Unlock()
		return nil
	}
	l.loading = true
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.loading = false
		l.mu.Unlock()
	}()

	entries, err := l.source.LoadAudit(ctx)
	if err != nil {
		l.logger.Error("監査ログ読み込みに失敗しました", zap.Error(err))
		return err
	}

	l.mu.Lock()
	l.entries = entries
	l.mu.Unlock()
	return nil
}

// Add appends a new entry and returns its id
// 新しいエントリを追記してIDを返す
func (l *Log) Add(ctx context.Context, action, entityID, details, actor string, meta map[string]string) string {
	e := Entry{
		ID:       uuid.New().String(),
		Action:   action,
		EntityID: entityID,
		Details:  details,
		Actor:    actor,
		At:       l.now().UTC().Format(time.RFC3339),
		Meta:     meta,
	}

	l.mu.Lock()
	l.entries = append(l.entries, e)
	l.mu.Unlock()

	if err := l.source.AppendAuditEntry(ctx, &e); err != nil {
		l.logger.Error("監査エントリの保存に失敗しました（ローカル状態は維持）",
			zap.String("entry_id", e.ID), zap.Error(err))
	}

	return e.ID
}

// Entries returns a snapshot copy of all entries, newest last
// 全エントリのスナップショットコピーを返す（古い順）
func (l *Log) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// EntriesFor returns entries touching one entity
// 単一エンティティに関するエントリを返す
func (l *Log) EntriesFor(entityID string) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Entry
	for i := range l.entries {
		if l.entries[i].EntityID == entityID {
			out = append(out, l.entries[i])
		}
	}
	return out
}
