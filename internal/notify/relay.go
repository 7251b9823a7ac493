package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"spms/internal/domain"
)

const defaultRelayTimeout = 10 * time.Second

// RelaySender posts emails as JSON to an HTTP email relay.
type RelaySender struct {
	URL     string
	Secret  string
	From    string
	Timeout time.Duration
	Client  *http.Client
	Logger  *zap.Logger
}

type relayRequest struct {
	From       string         `json:"from,omitempty"`
	To         relayContact   `json:"to"`
	TemplateID string         `json:"template_id"`
	Data       map[string]any `json:"data"`
}

type relayContact struct {
	Email  string `json:"email"`
	Name   string `json:"name,omitempty"`
	UserID string `json:"user_id,omitempty"`
}

func (s RelaySender) client() *http.Client {
	if s.Client != nil {
		return s.Client
	}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = defaultRelayTimeout
	}
	return &http.Client{Timeout: timeout}
}

func (s RelaySender) SendEmail(ctx context.Context, to domain.Contact, templateID string, data map[string]any) error {
	if strings.TrimSpace(s.URL) == "" {
		return errors.New("email relay url not configured")
	}
	if strings.TrimSpace(to.Email) == "" {
		return fmt.Errorf("recipient %s has no email", to.UserID)
	}
	if data == nil {
		data = map[string]any{}
	}
	body, err := json.Marshal(relayRequest{
		From:       s.From,
		To:         relayContact{Email: to.Email, Name: to.Name, UserID: to.UserID},
		TemplateID: templateID,
		Data:       data,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Spms-Template", templateID)
	if strings.TrimSpace(s.Secret) != "" {
		req.Header.Set("X-Spms-Secret", s.Secret)
	}
	res, err := s.client().Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("relay status %d: %s", res.StatusCode, strings.TrimSpace(string(msg)))
	}
	_, _ = io.Copy(io.Discard, res.Body)
	if s.Logger != nil {
		s.Logger.Debug("email relayed", zap.String("to", to.Email), zap.String("template", templateID))
	}
	return nil
}
