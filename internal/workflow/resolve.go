package workflow

import "spms/internal/domain"

// OutcomeKind describes what a transition does beyond moving the document.
type OutcomeKind string

const (
	OutcomeAdvance         OutcomeKind = "advance"
	OutcomeRevert          OutcomeKind = "revert"
	OutcomeClose           OutcomeKind = "close"
	OutcomeCreateSuccessor OutcomeKind = "create_successor"
	OutcomeReopen          OutcomeKind = "reopen"
)

// Outcome is the next document state for a (kind, stage, action) triple.
type Outcome struct {
	Kind           OutcomeKind           `json:"kind"`
	Stage          domain.Stage          `json:"stage"`
	ApprovalStatus domain.ApprovalStatus `json:"approval_status"`
	// AttachFeedback marks actions whose feedback is kept in the history.
	AttachFeedback bool `json:"attach_feedback"`
	// ReopenClosedProject is set when recalling a closure reopens a closed project.
	ReopenClosedProject bool `json:"reopen_closed_project,omitempty"`
	// DeleteDocument removes the closure document on reopen.
	DeleteDocument bool `json:"delete_document,omitempty"`
}

type transitionKey struct {
	stage  domain.Stage
	action domain.Action
}

var transitions = map[transitionKey]Outcome{
	{domain.StageLead, domain.ActionApprove}: {
		Kind: OutcomeAdvance, Stage: domain.StageBusinessArea, ApprovalStatus: domain.ApprovalGranted,
	},
	{domain.StageLead, domain.ActionRecall}: {
		Kind: OutcomeRevert, Stage: domain.StageLead, ApprovalStatus: domain.ApprovalRequired, AttachFeedback: true,
	},
	{domain.StageBusinessArea, domain.ActionApprove}: {
		Kind: OutcomeAdvance, Stage: domain.StageDirectorate, ApprovalStatus: domain.ApprovalGranted,
	},
	{domain.StageBusinessArea, domain.ActionRecall}: {
		Kind: OutcomeRevert, Stage: domain.StageLead, ApprovalStatus: domain.ApprovalRequired, AttachFeedback: true,
	},
	{domain.StageBusinessArea, domain.ActionSendBack}: {
		Kind: OutcomeRevert, Stage: domain.StageLead, ApprovalStatus: domain.ApprovalRequired, AttachFeedback: true,
	},
	{domain.StageDirectorate, domain.ActionApprove}: {
		Kind: OutcomeCreateSuccessor, Stage: domain.StageApproved, ApprovalStatus: domain.ApprovalGranted,
	},
	{domain.StageDirectorate, domain.ActionRecall}: {
		Kind: OutcomeRevert, Stage: domain.StageBusinessArea, ApprovalStatus: domain.ApprovalRequired, AttachFeedback: true,
	},
	{domain.StageDirectorate, domain.ActionSendBack}: {
		Kind: OutcomeRevert, Stage: domain.StageBusinessArea, ApprovalStatus: domain.ApprovalRequired, AttachFeedback: true,
	},
}

// Resolve computes the next state. It is a pure lookup; unlisted pairs are InvalidTransition.
func Resolve(kind domain.DocumentKind, stage domain.Stage, action domain.Action) (Outcome, error) {
	if !kind.Valid() {
		return Outcome{}, Errorf(InvalidTransition, "unknown document kind %q", kind)
	}
	if !action.Valid() {
		return Outcome{}, Errorf(InvalidTransition, "unknown action %q", action)
	}
	if stage < domain.StageLead || stage > domain.StageDirectorate {
		return Outcome{}, Errorf(InvalidTransition, "%s is not a review stage", stage)
	}
	if action == domain.ActionReopen {
		if kind != domain.KindProjectClosure {
			return Outcome{}, Errorf(InvalidTransition, "only project closure documents can be reopened")
		}
		return Outcome{
			Kind:           OutcomeReopen,
			Stage:          domain.StageLead,
			ApprovalStatus: domain.ApprovalRequired,
			DeleteDocument: true,
		}, nil
	}
	out, ok := transitions[transitionKey{stage: stage, action: action}]
	if !ok {
		return Outcome{}, Errorf(InvalidTransition, "cannot %s a %s document at the %s stage", action, kind, stage)
	}
	if kind == domain.KindProjectClosure {
		switch {
		case stage == domain.StageDirectorate && action == domain.ActionApprove:
			out.Kind = OutcomeClose
		case stage == domain.StageDirectorate && action == domain.ActionRecall:
			out.ReopenClosedProject = true
		}
	}
	return out, nil
}

// ActingStage maps a stored stage to the review stage an action is evaluated at.
// Approved documents only accept recall (by the directorate) and reopen.
func ActingStage(stored domain.Stage, action domain.Action) (domain.Stage, error) {
	if !stored.Valid() {
		return 0, Errorf(InvalidTransition, "document is at unknown %s", stored)
	}
	if !stored.Terminal() {
		return stored, nil
	}
	switch action {
	case domain.ActionRecall, domain.ActionReopen:
		return domain.StageDirectorate, nil
	}
	return 0, Errorf(InvalidTransition, "document is already approved; cannot %s", action)
}
