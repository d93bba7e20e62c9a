package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

// stubSource はテスト用のSource実装
type stubSource struct {
	persisted []Entry
	loadErr   error
}

func (s *stubSource) LoadAudit(ctx context.Context) ([]Entry, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return s.persisted, nil
}

func (s *stubSource) AppendAuditEntry(ctx context.Context, e *Entry) error {
	s.persisted = append(s.persisted, *e)
	return nil
}

// TestLog_AppendOnly は追記専用の振る舞いテスト
func TestLog_AppendOnly(t *testing.T) {
	log := NewLog(&stubSource{}, zap.NewNop())
	ctx := context.Background()

	id1 := log.Add(ctx, "STOCK_UPDATE", "IT-1", "Added 10", "tester", map[string]string{"qty": "10"})
	id2 := log.Add(ctx, "TASK_STATUS", "IT-1", "Task -> COMPLETED", "tester", nil)
	assert.NotEqual(t, id1, id2)

	entries := log.Entries()
	assert.Len(t, entries, 2)
	assert.Equal(t, "STOCK_UPDATE", entries[0].Action)
	assert.Equal(t, "10", entries[0].Meta["qty"])
	assert.NotEmpty(t, entries[0].At)

	// 返されたスナップショットを書き換えても元のログは変わらない
	entries[0].Action = "TAMPERED"
	assert.Equal(t, "STOCK_UPDATE", log.Entries()[0].Action)
}

// TestLog_EntriesFor はエンティティ別照会のテスト
func TestLog_EntriesFor(t *testing.T) {
	log := NewLog(&stubSource{}, zap.NewNop())
	ctx := context.Background()

	log.Add(ctx, "STOCK_UPDATE", "IT-1", "", "tester", nil)
	log.Add(ctx, "STOCK_UPDATE", "IT-2", "", "tester", nil)
	log.Add(ctx, "TASK_STATUS", "IT-1", "", "tester", nil)

	assert.Len(t, log.EntriesFor("IT-1"), 2)
	assert.Len(t, log.EntriesFor("IT-2"), 1)
	assert.Empty(t, log.EntriesFor("IT-MISSING"))
}

// TestLog_Refresh は永続化済みエントリの読み込みテスト
func TestLog_Refresh(t *testing.T) {
	source := &stubSource{persisted: []Entry{
		{ID: "E-1", Action: "SEED", EntityID: "IT-1", At: "2024-12-01T00:00:00Z"},
	}}
	log := NewLog(source, zap.NewNop())

	assert.NoError(t, log.Refresh(context.Background()))
	assert.Len(t, log.Entries(), 1)

	// 読み込み失敗時は現在の状態を保持する
	source.loadErr = assert.AnError
	assert.Error(t, log.Refresh(context.Background()))
	assert.Len(t, log.Entries(), 1)
}
