package workflow

import (
	"strings"

	"spms/internal/domain"
)

// NotificationInput is everything BuildNotification needs. ShouldSend is the caller's
// request; it only takes effect for superusers.
type NotificationInput struct {
	Kind         domain.DocumentKind
	Stage        domain.Stage
	Action       domain.Action
	IsSuperuser  bool
	ShouldSend   bool
	FeedbackHTML string
	Recipients   domain.Recipients
}

// NotificationIntent describes an email that should go out after a transition commits.
type NotificationIntent struct {
	RecipientRole domain.Role      `json:"recipient_role,omitempty"`
	Recipients    []domain.Contact `json:"recipients,omitempty"`
	FeedbackHTML  string           `json:"feedback_html,omitempty"`
	ShouldSend    bool             `json:"should_send"`
	Diagnostic    ErrorKind        `json:"diagnostic,omitempty"`
}

// Err returns the blocking error for an intent with a diagnostic.
func (n NotificationIntent) Err() error {
	if n.Diagnostic == "" {
		return nil
	}
	role := n.RecipientRole.Label()
	return Errorf(n.Diagnostic, "no %s with an email address is set up to receive this notification", role)
}

// RecipientRole returns who is told about an action taken at stage, and false when nobody is.
func RecipientRole(stage domain.Stage, action domain.Action) (domain.Role, bool) {
	if action == domain.ActionReopen {
		return domain.RoleBusinessAreaLead, true
	}
	switch stage {
	case domain.StageLead:
		switch action {
		case domain.ActionApprove, domain.ActionRecall:
			return domain.RoleBusinessAreaLead, true
		}
	case domain.StageBusinessArea:
		switch action {
		case domain.ActionApprove, domain.ActionRecall:
			return domain.RoleDirectorateMember, true
		case domain.ActionSendBack:
			return domain.RoleLead, true
		}
	case domain.StageDirectorate:
		switch action {
		case domain.ActionRecall:
			return domain.RoleDirectorateMember, true
		case domain.ActionSendBack:
			return domain.RoleBusinessAreaLead, true
		}
	}
	return "", false
}

// BuildNotification selects recipients and feedback for a transition.
func BuildNotification(in NotificationInput) NotificationIntent {
	var intent NotificationIntent
	if in.Action == domain.ActionSendBack || in.Action == domain.ActionRecall {
		if fb := SanitizeFeedback(in.FeedbackHTML); !IsEmptyMarkup(fb) {
			intent.FeedbackHTML = fb
		}
	}

	role, ok := RecipientRole(in.Stage, in.Action)
	if !ok {
		return intent
	}
	intent.RecipientRole = role

	send := in.ShouldSend || !in.IsSuperuser
	if !send {
		return intent
	}

	contacts := contactsFor(role, in.Recipients)
	if len(contacts) == 0 {
		intent.Diagnostic = MissingRecipient
		return intent
	}
	intent.Recipients = contacts
	intent.ShouldSend = true
	return intent
}

func contactsFor(role domain.Role, r domain.Recipients) []domain.Contact {
	var candidates []domain.Contact
	switch role {
	case domain.RoleLead:
		if r.Lead != nil {
			candidates = append(candidates, *r.Lead)
		}
	case domain.RoleBusinessAreaLead:
		if r.BusinessAreaLead != nil {
			candidates = append(candidates, *r.BusinessAreaLead)
		}
	case domain.RoleDirectorateMember:
		candidates = append(candidates, r.Directorate...)
	}
	out := make([]domain.Contact, 0, len(candidates))
	seen := map[string]bool{}
	for _, c := range candidates {
		email := strings.TrimSpace(c.Email)
		if email == "" || seen[strings.ToLower(email)] {
			continue
		}
		seen[strings.ToLower(email)] = true
		c.Email = email
		out = append(out, c)
	}
	return out
}
