package workflow

import (
	"fmt"

	"spms/internal/domain"
)

// AuthRequest is the actor context evaluated by Authorize.
// ClosureFinal is set when the document is a project closure that finished review.
type AuthRequest struct {
	Role         domain.Role
	IsSuperuser  bool
	Stage        domain.Stage
	Action       domain.Action
	ClosureFinal bool
}

// Decision is a value, never an error: denied requests carry a reason to display.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

func allow() Decision { return Decision{Allowed: true} }

func deny(format string, args ...any) Decision {
	return Decision{Allowed: false, Reason: fmt.Sprintf(format, args...)}
}

var stageReviewer = map[domain.Stage]domain.Role{
	domain.StageLead:         domain.RoleLead,
	domain.StageBusinessArea: domain.RoleBusinessAreaLead,
	domain.StageDirectorate:  domain.RoleDirectorateMember,
}

// ReviewerFor returns the role that acts on documents at the given stage.
func ReviewerFor(stage domain.Stage) (domain.Role, bool) {
	r, ok := stageReviewer[stage]
	return r, ok
}

// Authorize decides whether one role may take action at stage.
func Authorize(req AuthRequest) Decision {
	if req.IsSuperuser || req.Role == domain.RoleSuperuser {
		return allow()
	}
	if req.Action == domain.ActionReopen && req.ClosureFinal {
		switch req.Role {
		case domain.RoleLead, domain.RoleBusinessAreaLead:
			return allow()
		}
		return deny("only the project lead, business area lead or an administrator can reopen a closed project")
	}
	want, ok := stageReviewer[req.Stage]
	if !ok {
		return deny("no reviewer is defined for %s", req.Stage)
	}
	if req.Role != want {
		return deny("%s at the %s stage requires the %s", actionLabel(req.Action), req.Stage, want.Label())
	}
	return allow()
}

// AuthorizeAny allows the request if any of the actor's roles is allowed.
// An actor without roles is denied with the reason for the stage's reviewer.
func AuthorizeAny(roles []domain.Role, isSuperuser bool, stage domain.Stage, action domain.Action, closureFinal bool) Decision {
	req := AuthRequest{IsSuperuser: isSuperuser, Stage: stage, Action: action, ClosureFinal: closureFinal}
	if len(roles) == 0 {
		return Authorize(req)
	}
	var first Decision
	for i, role := range roles {
		req.Role = role
		d := Authorize(req)
		if d.Allowed {
			return d
		}
		if i == 0 {
			first = d
		}
	}
	return first
}

func actionLabel(a domain.Action) string {
	switch a {
	case domain.ActionApprove:
		return "approval"
	case domain.ActionRecall:
		return "recall"
	case domain.ActionSendBack:
		return "sending back"
	case domain.ActionReopen:
		return "reopening"
	default:
		return string(a)
	}
}
