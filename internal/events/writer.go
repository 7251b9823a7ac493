package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"spms/internal/domain"
)

const (
	UserCreated          = "user.created"
	UserUpdated          = "user.updated"
	AreaCreated          = "business_area.created"
	AreaLeaderSet        = "business_area.leader_set"
	DirectorateAdded     = "directorate.member_added"
	DirectorateRemoved   = "directorate.member_removed"
	ProjectCreated       = "project.created"
	ProjectUpdated       = "project.updated"
	ProjectMemberAdded   = "project.member_added"
	ProjectMemberRemoved = "project.member_removed"
	ProjectStatusChanged = "project.status_changed"
	ProjectClosed        = "project.closed"
	ProjectReopened      = "project.reopened"
	DocumentCreated      = "document.created"
	DocumentApproved     = "document.approved"
	DocumentRecalled     = "document.recalled"
	DocumentSentBack     = "document.sent_back"
	DocumentDeleted      = "document.deleted"
	DocumentSuccessor    = "document.successor_created"
	FeedbackAdded        = "document.feedback_added"
	NotificationSent     = "notification.sent"
	NotificationSkipped  = "notification.skipped"
	NotificationFailed   = "notification.failed"
	ConfigUpdated        = "config.updated"
	APIKeyCreated        = "api_key.created"
	APIKeyRevoked        = "api_key.revoked"
)

// ForAction names the event recorded for a document action.
func ForAction(a domain.Action) string {
	switch a {
	case domain.ActionApprove:
		return DocumentApproved
	case domain.ActionRecall:
		return DocumentRecalled
	case domain.ActionSendBack:
		return DocumentSentBack
	case domain.ActionReopen:
		return DocumentDeleted
	}
	return "document." + string(a)
}

type Writer struct {
	Now func() time.Time
}

type EventPayload map[string]any

// Append writes an event inside the caller's transaction so it commits with the change it describes.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, projectID, entityKind, entityID, actorID string, payload EventPayload) error {
	now := w.Now
	if now == nil {
		now = time.Now
	}
	ts := now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,project_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		ts, evtType, nullable(projectID), entityKind, nullable(entityID), actorID, string(data))
	if err != nil {
		return fmt.Errorf("append %s event: %w", evtType, err)
	}
	return nil
}

// AppendStandalone writes an event in its own transaction, for facts recorded after a commit.
func (w Writer) AppendStandalone(ctx context.Context, db *sql.DB, evtType, projectID, entityKind, entityID, actorID string, payload EventPayload) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := w.Append(ctx, tx, evtType, projectID, entityKind, entityID, actorID, payload); err != nil {
		return err
	}
	return tx.Commit()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
