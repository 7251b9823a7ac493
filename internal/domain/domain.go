package domain

import (
	"fmt"
	"strings"
)

// DocumentKind names one of the lifecycle documents a project moves through.
type DocumentKind string

const (
	KindConcept        DocumentKind = "concept"
	KindProjectPlan    DocumentKind = "projectplan"
	KindProgressReport DocumentKind = "progressreport"
	KindStudentReport  DocumentKind = "studentreport"
	KindProjectClosure DocumentKind = "projectclosure"
)

var documentKinds = []DocumentKind{KindConcept, KindProjectPlan, KindProgressReport, KindStudentReport, KindProjectClosure}

// DocumentKinds lists every known kind in lifecycle order.
func DocumentKinds() []DocumentKind {
	out := make([]DocumentKind, len(documentKinds))
	copy(out, documentKinds)
	return out
}

func (k DocumentKind) Valid() bool {
	for _, known := range documentKinds {
		if k == known {
			return true
		}
	}
	return false
}

func ParseDocumentKind(s string) (DocumentKind, error) {
	k := DocumentKind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("invalid document kind %q", s)
	}
	return k, nil
}

// Stage is the review step a document currently sits at.
// StageApproved marks a document that passed all three stages.
type Stage int

const (
	StageLead         Stage = 1
	StageBusinessArea Stage = 2
	StageDirectorate  Stage = 3
	StageApproved     Stage = 4
)

func (s Stage) Valid() bool {
	return s >= StageLead && s <= StageApproved
}

// Terminal reports whether the document has completed the review chain.
func (s Stage) Terminal() bool { return s == StageApproved }

func (s Stage) String() string {
	switch s {
	case StageLead:
		return "lead"
	case StageBusinessArea:
		return "business_area"
	case StageDirectorate:
		return "directorate"
	case StageApproved:
		return "approved"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

type ApprovalStatus string

const (
	ApprovalRequired ApprovalStatus = "required"
	ApprovalGranted  ApprovalStatus = "granted"
)

func (a ApprovalStatus) Valid() bool {
	return a == ApprovalRequired || a == ApprovalGranted
}

type Action string

const (
	ActionApprove  Action = "approve"
	ActionRecall   Action = "recall"
	ActionSendBack Action = "send_back"
	ActionReopen   Action = "reopen"
)

func (a Action) Valid() bool {
	switch a {
	case ActionApprove, ActionRecall, ActionSendBack, ActionReopen:
		return true
	}
	return false
}

func ParseAction(s string) (Action, error) {
	a := Action(strings.ToLower(strings.TrimSpace(s)))
	if a == "send-back" || a == "sendback" {
		a = ActionSendBack
	}
	if !a.Valid() {
		return "", fmt.Errorf("invalid action %q", s)
	}
	return a, nil
}

// Role is an actor's relation to a project.
type Role string

const (
	RoleLead              Role = "lead"
	RoleBusinessAreaLead  Role = "business_area_lead"
	RoleDirectorateMember Role = "directorate_member"
	RoleSuperuser         Role = "superuser"
)

func (r Role) Valid() bool {
	switch r {
	case RoleLead, RoleBusinessAreaLead, RoleDirectorateMember, RoleSuperuser:
		return true
	}
	return false
}

func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("invalid role %q", s)
	}
	return r, nil
}

// Label is the human readable name used in denial messages.
func (r Role) Label() string {
	switch r {
	case RoleLead:
		return "project lead"
	case RoleBusinessAreaLead:
		return "business area lead"
	case RoleDirectorateMember:
		return "directorate"
	case RoleSuperuser:
		return "administrator"
	default:
		return string(r)
	}
}

type ProjectStatus string

const (
	ProjectNew              ProjectStatus = "new"
	ProjectPending          ProjectStatus = "pending"
	ProjectActive           ProjectStatus = "active"
	ProjectUpdating         ProjectStatus = "updating"
	ProjectClosureRequested ProjectStatus = "closure_requested"
	ProjectClosed           ProjectStatus = "closed"
	ProjectTerminated       ProjectStatus = "terminated"
	ProjectSuspended        ProjectStatus = "suspended"
)

func (s ProjectStatus) Valid() bool {
	switch s {
	case ProjectNew, ProjectPending, ProjectActive, ProjectUpdating, ProjectClosureRequested,
		ProjectClosed, ProjectTerminated, ProjectSuspended:
		return true
	}
	return false
}

const (
	MemberRoleLead   = "lead"
	MemberRoleMember = "member"
)

type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email,omitempty"`
	IsSuperuser bool   `json:"is_superuser"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

// Contact returns the addressable form of the user.
func (u User) Contact() Contact {
	return Contact{UserID: u.ID, Name: u.DisplayName, Email: u.Email}
}

type BusinessArea struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	LeaderID  *string `json:"leader_id,omitempty"`
	CreatedAt string  `json:"created_at" format:"date-time"`
}

type Project struct {
	ID             string        `json:"id"`
	Title          string        `json:"title"`
	Kind           string        `json:"kind" enum:"science,student,external,core_function"`
	Status         ProjectStatus `json:"status"`
	BusinessAreaID *string       `json:"business_area_id,omitempty"`
	CreatedAt      string        `json:"created_at" format:"date-time"`
	UpdatedAt      string        `json:"updated_at" format:"date-time"`
}

type ProjectMember struct {
	ProjectID string `json:"project_id"`
	UserID    string `json:"user_id"`
	Role      string `json:"role" enum:"lead,member"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Document struct {
	ID             string         `json:"id"`
	ProjectID      string         `json:"project_id"`
	Kind           DocumentKind   `json:"kind"`
	Stage          Stage          `json:"stage"`
	ApprovalStatus ApprovalStatus `json:"approval_status"`
	Version        int64          `json:"version"`
	CreatedAt      string         `json:"created_at" format:"date-time"`
	UpdatedAt      string         `json:"updated_at" format:"date-time"`
}

// DocumentTransition is a conditional stage/status update keyed on the version the caller read.
type DocumentTransition struct {
	DocumentID     string
	FromVersion    int64
	Stage          Stage
	ApprovalStatus ApprovalStatus
	UpdatedAt      string
}

// ApprovalEffects is what a document's final approval changed outside the
// document: the successor it started and the project status it set. Zero
// fields mean the approval did not do that.
type ApprovalEffects struct {
	SuccessorID string
	StatusFrom  ProjectStatus
	StatusTo    ProjectStatus
}

type Feedback struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
	ProjectID  string `json:"project_id"`
	Stage      Stage  `json:"stage"`
	Action     Action `json:"action"`
	AuthorID   string `json:"author_id"`
	HTML       string `json:"html"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

// Contact is where a notification can be delivered.
type Contact struct {
	UserID string `json:"user_id"`
	Name   string `json:"name,omitempty"`
	Email  string `json:"email"`
}

// Recipients are the people a project's documents can notify.
type Recipients struct {
	Lead             *Contact  `json:"lead,omitempty"`
	BusinessAreaLead *Contact  `json:"business_area_lead,omitempty"`
	Directorate      []Contact `json:"directorate"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
