package server

import (
	"encoding/json"

	"spms/internal/domain"
	"spms/internal/engine"
	"spms/internal/workflow"
)

// Request payloads

type CreateUserRequest struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name,omitempty"`
	Email       string `json:"email,omitempty"`
	IsSuperuser bool   `json:"is_superuser,omitempty"`
}

type UpdateUserRequest struct {
	DisplayName *string `json:"display_name,omitempty"`
	Email       *string `json:"email,omitempty"`
	IsSuperuser *bool   `json:"is_superuser,omitempty"`
}

type CreateBusinessAreaRequest struct {
	Name     string  `json:"name"`
	LeaderID *string `json:"leader_id,omitempty"`
}

type SetLeaderRequest struct {
	LeaderID *string `json:"leader_id,omitempty"`
}

type DirectorateMemberRequest struct {
	UserID string `json:"user_id"`
}

type CreateProjectRequest struct {
	ID              string `json:"id,omitempty"`
	Title           string `json:"title"`
	Kind            string `json:"kind,omitempty" enum:"science,student,external,core_function"`
	BusinessAreaID  string `json:"business_area_id,omitempty"`
	LeadID          string `json:"lead_id,omitempty"`
	InitialDocument string `json:"initial_document,omitempty" enum:"concept,projectplan,progressreport,studentreport,projectclosure"`
}

type UpdateProjectRequest struct {
	Title          *string `json:"title,omitempty"`
	BusinessAreaID *string `json:"business_area_id,omitempty" doc:"Empty string detaches the project from its business area"`
}

type SetProjectStatusRequest struct {
	Status string `json:"status" enum:"new,pending,active,updating,closure_requested,closed,terminated,suspended"`
}

type AddMemberRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role,omitempty" enum:"lead,member"`
}

type CreateDocumentRequest struct {
	Kind string `json:"kind" enum:"concept,projectplan,progressreport,studentreport,projectclosure"`
}

// DocumentActionRequest is the caller contract for a transition. Kind, stage and
// version are what the caller last saw; a mismatch is reported instead of applied.
type DocumentActionRequest struct {
	Action          string `json:"action" enum:"approve,recall,send_back,reopen"`
	Kind            string `json:"kind,omitempty" enum:"concept,projectplan,progressreport,studentreport,projectclosure"`
	Stage           int    `json:"stage,omitempty" minimum:"0" maximum:"4"`
	Version         int64  `json:"version,omitempty" minimum:"0"`
	ShouldSendEmail *bool  `json:"should_send_email,omitempty" doc:"Only administrators may set this to false"`
	FeedbackHTML    string `json:"feedback_html,omitempty"`
}

type DevLoginRequest struct {
	UserID string `json:"user_id"`
}

type CreateAPIKeyRequest struct {
	UserID string `json:"user_id,omitempty"`
	Name   string `json:"name,omitempty"`
}

// ConfigDocument carries the system config as spms.yml text.
type ConfigDocument struct {
	YAML string `json:"yaml"`
}

// Responses

type MeResponse struct {
	User        domain.User `json:"user"`
	IsSuperuser bool        `json:"is_superuser"`
	Source      string      `json:"source"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type CreateAPIKeyResponse struct {
	Key    string         `json:"key" doc:"Shown once"`
	APIKey APIKeyResponse `json:"api_key"`
}

type paginatedProjects struct {
	Items      []domain.Project `json:"items"`
	NextCursor string           `json:"next_cursor,omitempty"`
}

type paginatedDocuments struct {
	Items      []domain.Document `json:"items"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

type EventResponse struct {
	ID         int64           `json:"id"`
	TS         string          `json:"ts" format:"date-time"`
	Type       string          `json:"type"`
	ProjectID  string          `json:"project_id,omitempty"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id,omitempty"`
	ActorID    string          `json:"actor_id"`
	Payload    json.RawMessage `json:"payload"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// TransitionResponse mirrors engine.Result for successful transitions.
type TransitionResponse struct {
	OK                bool                        `json:"ok"`
	DocumentID        string                      `json:"document_id"`
	ProjectID         string                      `json:"project_id"`
	Action            domain.Action               `json:"action"`
	PreviousStage     domain.Stage                `json:"previous_stage"`
	NewStage          domain.Stage                `json:"new_stage"`
	NewApprovalStatus domain.ApprovalStatus       `json:"new_approval_status"`
	Version           int64                       `json:"version"`
	DocumentDeleted   bool                        `json:"document_deleted,omitempty"`
	ProjectStatus     domain.ProjectStatus        `json:"project_status"`
	Successor         *domain.Document            `json:"successor,omitempty"`
	Retracted         string                      `json:"retracted_successor,omitempty"`
	Notification      workflow.NotificationIntent `json:"notification"`
	Warnings          []string                    `json:"warnings"`
}

func transitionResponse(r engine.Result) TransitionResponse {
	return TransitionResponse{
		OK:                r.OK,
		DocumentID:        r.DocumentID,
		ProjectID:         r.ProjectID,
		Action:            r.Action,
		PreviousStage:     r.PreviousStage,
		NewStage:          r.NewStage,
		NewApprovalStatus: r.NewApprovalStatus,
		Version:           r.Version,
		DocumentDeleted:   r.DocumentDeleted,
		ProjectStatus:     r.ProjectStatus,
		Successor:         r.Successor,
		Retracted:         r.RetractedSuccessor,
		Notification:      r.Notification,
		Warnings:          nonNilSlice(r.Warnings),
	}
}

func apiKeyResponse(k domain.APIKey) APIKeyResponse {
	return APIKeyResponse{ID: k.ID, UserID: k.UserID, Name: k.Name, CreatedAt: k.CreatedAt}
}

func eventResponse(evt domain.Event) EventResponse {
	payload := json.RawMessage("{}")
	if evt.Payload != "" && json.Valid([]byte(evt.Payload)) {
		payload = json.RawMessage(evt.Payload)
	}
	return EventResponse{
		ID:         evt.ID,
		TS:         evt.TS,
		Type:       evt.Type,
		ProjectID:  evt.ProjectID,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		ActorID:    evt.ActorID,
		Payload:    payload,
	}
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
