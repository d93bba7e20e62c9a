// Package messaging provides parametrized notification templates
package messaging

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Auditor records template sends
// テンプレート送信を記録
type Auditor interface {
	Add(ctx context.Context, action, entityID, details, actor string, meta map[string]string) string
}

// Context carries the values substituted into a template
// テンプレートへ代入する値を保持
type Context map[string]interface{}

// SMSTemplate is a short-message template
// SMSテンプレート
type SMSTemplate struct {
	ID   string `json:"id" yaml:"id"`     // テンプレートID
	Name string `json:"name" yaml:"name"` // 名称
	Body string `json:"body" yaml:"body"` // 本文
}

// EmailTemplate is an email template with subject and body
// 件名・本文を持つメールテンプレート
type EmailTemplate struct {
	ID      string `json:"id" yaml:"id"`           // テンプレートID
	Name    string `json:"name" yaml:"name"`       // 名称
	Subject string `json:"subject" yaml:"subject"` // 件名
	Body    string `json:"body" yaml:"body"`       // 本文
}

// RenderedMessage is the outcome of a send
// 送信結果
type RenderedMessage struct {
	To         []string `json:"to"`
	Subject    string   `json:"subject,omitempty"`
	Body       string   `json:"body"`
	TemplateID string   `json:"template_id"`
}

var placeholderPattern = regexp.MustCompile(`{{(.*?)}}`)

// Render substitutes {{key}} placeholders from the context. Missing or
// nil keys render as the empty string.
// {{key}}プレースホルダーをコンテキスト値で置換。未定義のキーは
// 空文字になる。
func Render(text string, ctx Context) string {
	return placeholderPattern.ReplaceAllStringFunc(text, func(match string) string {
		key := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(match, "{{"), "}}"))
		v, ok := ctx[key]
		if !ok || v == nil {
			return ""
		}
		return fmt.Sprintf("%v", v)
	})
}

// Templater holds the template registries and renders outbound messages
// テンプレート一覧を保持し、送信メッセージを描画
type Templater struct {
	audit  Auditor
	logger *zap.Logger

	mu    sync.RWMutex
	sms   []SMSTemplate
	email []EmailTemplate
}

// NewTemplater creates a new templater with seed templates
// シードテンプレート付きの新しいテンプレーターを作成
func NewTemplater(auditor Auditor, logger *zap.Logger, sms []SMSTemplate, email []EmailTemplate) *Templater {
	return &Templater{
		audit:  auditor,
		logger: logger,
		sms:    sms,
		email:  email,
	}
}

// SMSTemplates returns a copy of the SMS template registry
// SMSテンプレート一覧のコピーを返す
func (t *Templater) SMSTemplates() []SMSTemplate {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]SMSTemplate, len(t.sms))
	copy(out, t.sms)
	return out
}

// EmailTemplates returns a copy of the email template registry
// メールテンプレート一覧のコピーを返す
func (t *Templater) EmailTemplates() []EmailTemplate {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]EmailTemplate, len(t.email))
	copy(out, t.email)
	return out
}

// AddSMSTemplate registers an SMS template
// SMSテンプレートを登録
func (t *Templater) AddSMSTemplate(tpl SMSTemplate) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sms = append(t.sms, tpl)
}

// AddEmailTemplate registers an email template
// メールテンプレートを登録
func (t *Templater) AddEmailTemplate(tpl EmailTemplate) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.email = append(t.email, tpl)
}

// SendSMS renders an SMS template and records the send. Falls back to the
// first template when the id is unknown; returns nil when none exist.
// SMSテンプレートを描画して送信を記録。IDが未知の場合は先頭の
// テンプレートを使用し、存在しない場合はnilを返す。
func (t *Templater) SendSMS(ctx context.Context, to []string, templateID string, msgCtx Context, actor string) *RenderedMessage {
	t.mu.RLock()
	var tpl *SMSTemplate
	for i := range t.sms {
		if t.sms[i].ID == templateID {
			tpl = &t.sms[i]
			break
		}
	}
	if tpl == nil && len(t.sms) > 0 {
		tpl = &t.sms[0]
	}
	t.mu.RUnlock()
	if tpl == nil {
		return nil
	}

	body := Render(tpl.Body, msgCtx)
	preview := body
	if len(preview) > 120 {
		preview = preview[:120]
	}
	t.audit.Add(ctx, "RFQ_SMS_SENT", tpl.ID, preview, actor,
		map[string]string{"notes": "To: " + strings.Join(to, ", ")})

	t.logger.Info("SMS送信を記録しました",
		zap.String("template_id", tpl.ID),
		zap.Int("recipients", len(to)),
	)

	return &RenderedMessage{To: to, Body: body, TemplateID: tpl.ID}
}

// SendEmail renders an email template and records the send
// メールテンプレートを描画して送信を記録
func (t *Templater) SendEmail(ctx context.Context, to []string, templateID string, msgCtx Context, actor string) *RenderedMessage {
	t.mu.RLock()
	var tpl *EmailTemplate
	for i := range t.email {
		if t.email[i].ID == templateID {
			tpl = &t.email[i]
			break
		}
	}
	if tpl == nil && len(t.email) > 0 {
		tpl = &t.email[0]
	}
	t.mu.RUnlock()
	if tpl == nil {
		return nil
	}

	subject := Render(tpl.Subject, msgCtx)
	body := Render(tpl.Body, msgCtx)
	preview := body
	if len(preview) > 80 {
		preview = preview[:80]
	}
	t.audit.Add(ctx, "RFQ_EMAIL_SENT", tpl.ID, subject+" :: "+preview, actor,
		map[string]string{"notes": "To: " + strings.Join(to, ", ")})

	t.logger.Info("メール送信を記録しました",
		zap.String("template_id", tpl.ID),
		zap.Int("recipients", len(to)),
	)

	return &RenderedMessage{To: to, Subject: subject, Body: body, TemplateID: tpl.ID}
}
