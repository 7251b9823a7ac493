// Package notify delivers workflow emails. Senders receive a template id and the data
// the template renders; formatting happens downstream.
package notify

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"spms/internal/domain"
)

// Sender hands one email to a delivery channel.
type Sender interface {
	SendEmail(ctx context.Context, to domain.Contact, templateID string, data map[string]any) error
}

// Message is a recorded send.
type Message struct {
	To         domain.Contact `json:"to"`
	TemplateID string         `json:"template_id"`
	Data       map[string]any `json:"data"`
}

// LogSender writes emails to the log instead of delivering them.
type LogSender struct {
	Logger *zap.Logger
}

func (s LogSender) SendEmail(_ context.Context, to domain.Contact, templateID string, data map[string]any) error {
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("email",
		zap.String("to", to.Email),
		zap.String("user_id", to.UserID),
		zap.String("template", templateID),
		zap.Any("data", data),
	)
	return nil
}

// Recorder keeps sends in memory. Fail, when set, is returned for every send
// and nothing is recorded.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
	Fail     error
}

func (r *Recorder) SendEmail(_ context.Context, to domain.Contact, templateID string, data map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Fail != nil {
		return r.Fail
	}
	r.messages = append(r.messages, Message{To: to, TemplateID: templateID, Data: data})
	return nil
}

func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	r.messages = nil
	r.mu.Unlock()
}
