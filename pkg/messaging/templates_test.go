package messaging

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

// recordingAuditor は監査呼び出しを記録
type recordingAuditor struct {
	mu      sync.Mutex
	actions []string
}

func (a *recordingAuditor) Add(ctx context.Context, action, entityID, details, actor string, meta map[string]string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actions = append(a.actions, action)
	return "AUDIT-1"
}

// TestRender はプレースホルダー置換のテスト
func TestRender(t *testing.T) {
	out := Render("RFQ {{rfqRef}}: quote {{qty}} {{uom}} of {{itemName}}", Context{
		"rfqRef":   "RFQ-77",
		"qty":      120,
		"uom":      "KG",
		"itemName": "Steel Coil",
	})
	assert.Equal(t, "RFQ RFQ-77: quote 120 KG of Steel Coil", out)

	// 未定義・nilのキーは空文字になる
	out = Render("Hello {{name}}, re: {{missing}} / {{nilval}}", Context{
		"name":   "Mohit",
		"nilval": nil,
	})
	assert.Equal(t, "Hello Mohit, re:  / ", out)

	// キー前後の空白は無視される
	assert.Equal(t, "x", Render("{{ key }}", Context{"key": "x"}))

	// プレースホルダーなしはそのまま
	assert.Equal(t, "plain text", Render("plain text", Context{}))
}

// TestTemplater_SendSMS はSMS送信記録のテスト
func TestTemplater_SendSMS(t *testing.T) {
	auditor := &recordingAuditor{}
	tp := NewTemplater(auditor, zap.NewNop(), []SMSTemplate{
		{ID: "SMS-1", Name: "RFQ", Body: "Quote {{qty}} of {{itemName}}"},
	}, nil)

	msg := tp.SendSMS(context.Background(), []string{"+91-90000"}, "SMS-1",
		Context{"qty": 10, "itemName": "Gloves"}, "Vikram")

	assert.NotNil(t, msg)
	assert.Equal(t, "Quote 10 of Gloves", msg.Body)
	assert.Equal(t, []string{"RFQ_SMS_SENT"}, auditor.actions)

	// 未知のテンプレートIDは先頭テンプレートにフォールバック
	msg = tp.SendSMS(context.Background(), []string{"+91-90000"}, "SMS-UNKNOWN", Context{"qty": 1, "itemName": "x"}, "Vikram")
	assert.NotNil(t, msg)
	assert.Equal(t, "SMS-1", msg.TemplateID)
}

// TestTemplater_SendEmail はメール送信記録のテスト
func TestTemplater_SendEmail(t *testing.T) {
	auditor := &recordingAuditor{}
	tp := NewTemplater(auditor, zap.NewNop(), nil, []EmailTemplate{
		{ID: "EM-1", Name: "RFQ", Subject: "RFQ {{rfqRef}}", Body: "Please quote {{itemName}}."},
	})

	msg := tp.SendEmail(context.Background(), []string{"sales@example.com"}, "EM-1",
		Context{"rfqRef": "RFQ-9", "itemName": "Steel"}, "Vikram")

	assert.NotNil(t, msg)
	assert.Equal(t, "RFQ RFQ-9", msg.Subject)
	assert.Equal(t, "Please quote Steel.", msg.Body)
	assert.Equal(t, []string{"RFQ_EMAIL_SENT"}, auditor.actions)
}

// TestTemplater_NoTemplates はテンプレート未登録時のテスト
func TestTemplater_NoTemplates(t *testing.T) {
	tp := NewTemplater(&recordingAuditor{}, zap.NewNop(), nil, nil)
	assert.Nil(t, tp.SendSMS(context.Background(), []string{"x"}, "SMS-1", Context{}, "a"))
	assert.Nil(t, tp.SendEmail(context.Background(), []string{"x"}, "EM-1", Context{}, "a"))
}

// TestTemplater_AddTemplates はテンプレート追加のテスト
func TestTemplater_AddTemplates(t *testing.T) {
	tp := NewTemplater(&recordingAuditor{}, zap.NewNop(), nil, nil)

	tp.AddSMSTemplate(SMSTemplate{ID: "SMS-NEW", Body: "hi"})
	tp.AddEmailTemplate(EmailTemplate{ID: "EM-NEW", Subject: "s", Body: "b"})

	assert.Len(t, tp.SMSTemplates(), 1)
	assert.Len(t, tp.EmailTemplates(), 1)
}
