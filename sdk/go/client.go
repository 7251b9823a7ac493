package spmssdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal SPMS HTTP API client.
type Client struct {
	BaseURL     string
	ProjectID   string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, projectID string) *Client {
	return &Client{
		BaseURL:   baseURL,
		ProjectID: projectID,
		Timeout:   10 * time.Second,
	}
}

// Document is the API document model.
type Document struct {
	ID             string `json:"id"`
	ProjectID      string `json:"project_id"`
	Kind           string `json:"kind"`
	Stage          int    `json:"stage"`
	ApprovalStatus string `json:"approval_status"`
	Version        int64  `json:"version"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

// Feedback is a reviewer comment attached when a document moves back.
type Feedback struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
	Stage      int    `json:"stage"`
	Action     string `json:"action"`
	AuthorID   string `json:"author_id"`
	HTML       string `json:"html"`
	CreatedAt  string `json:"created_at"`
}

type Contact struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
}

// Notification describes who a transition notified, or who was missing.
type Notification struct {
	RecipientRole string    `json:"recipient_role"`
	Recipients    []Contact `json:"recipients"`
	ShouldSend    bool      `json:"should_send"`
	Diagnostic    string    `json:"diagnostic"`
}

// ActionRequest applies a review action. Stage and Version, when set, must
// match the stored document or the server answers with stale_version.
type ActionRequest struct {
	Action          string `json:"action"`
	Stage           int    `json:"stage,omitempty"`
	Version         int64  `json:"version,omitempty"`
	ShouldSendEmail *bool  `json:"should_send_email,omitempty"`
	FeedbackHTML    string `json:"feedback_html,omitempty"`
}

// Transition is the outcome of a successful action.
type Transition struct {
	OK                bool         `json:"ok"`
	DocumentID        string       `json:"document_id"`
	Action            string       `json:"action"`
	PreviousStage     int          `json:"previous_stage"`
	NewStage          int          `json:"new_stage"`
	NewApprovalStatus string       `json:"new_approval_status"`
	Version           int64        `json:"version"`
	DocumentDeleted   bool         `json:"document_deleted"`
	ProjectStatus     string       `json:"project_status"`
	Successor         *Document    `json:"successor"`
	Notification      Notification `json:"notification"`
	Warnings          []string     `json:"warnings"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	ProjectID  string         `json:"project_id"`
	EntityID   string         `json:"entity_id"`
	EntityKind string         `json:"entity_kind"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError wraps non-2xx responses. Code carries the workflow error kind for
// rejected transitions, e.g. "unauthorized" or "missing_recipient".
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// IsKind reports whether err is an APIError with the given code.
func IsKind(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// Documents lists the project's documents.
func (c *Client) Documents(ctx context.Context) ([]Document, error) {
	var resp struct {
		Items []Document `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, c.projectPath("documents"), nil, &resp)
	return resp.Items, err
}

// Document fetches one document.
func (c *Client) Document(ctx context.Context, id string) (Document, error) {
	var resp Document
	err := c.do(ctx, http.MethodGet, c.projectPath("documents/"+url.PathEscape(id)), nil, &resp)
	return resp, err
}

// Act applies an action to a document.
func (c *Client) Act(ctx context.Context, documentID string, req ActionRequest) (Transition, error) {
	var resp Transition
	endpoint := c.projectPath(fmt.Sprintf("documents/%s/actions", url.PathEscape(documentID)))
	err := c.do(ctx, http.MethodPost, endpoint, req, &resp)
	return resp, err
}

// Approve approves the document at the version the caller last read.
func (c *Client) Approve(ctx context.Context, doc Document) (Transition, error) {
	return c.Act(ctx, doc.ID, ActionRequest{Action: "approve", Stage: doc.Stage, Version: doc.Version})
}

// SendBack returns the document one stage with reviewer feedback.
func (c *Client) SendBack(ctx context.Context, doc Document, feedbackHTML string) (Transition, error) {
	return c.Act(ctx, doc.ID, ActionRequest{Action: "send_back", Stage: doc.Stage, Version: doc.Version, FeedbackHTML: feedbackHTML})
}

// Feedback lists reviewer comments on a document.
func (c *Client) Feedback(ctx context.Context, documentID string) ([]Feedback, error) {
	var resp []Feedback
	endpoint := c.projectPath(fmt.Sprintf("documents/%s/feedback", url.PathEscape(documentID)))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := c.projectPath("events")
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var envelope struct {
			Error struct {
				Code    string         `json:"code"`
				Message string         `json:"message"`
				Details map[string]any `json:"details"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &envelope) == nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
			apiErr.Details = envelope.Error.Details
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) projectPath(p string) string {
	project := url.PathEscape(c.ProjectID)
	return fmt.Sprintf("v0/projects/%s/%s", project, strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
