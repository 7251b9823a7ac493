package workflow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spms/internal/domain"
)

var (
	allStages  = []domain.Stage{domain.StageLead, domain.StageBusinessArea, domain.StageDirectorate}
	allActions = []domain.Action{domain.ActionApprove, domain.ActionRecall, domain.ActionSendBack, domain.ActionReopen}
	allRoles   = []domain.Role{domain.RoleLead, domain.RoleBusinessAreaLead, domain.RoleDirectorateMember}
)

func TestResolveTable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		kind   domain.DocumentKind
		stage  domain.Stage
		action domain.Action
		want   Outcome
	}{
		{"lead approve", domain.KindConcept, 1, domain.ActionApprove,
			Outcome{Kind: OutcomeAdvance, Stage: 2, ApprovalStatus: domain.ApprovalGranted}},
		{"lead recall", domain.KindConcept, 1, domain.ActionRecall,
			Outcome{Kind: OutcomeRevert, Stage: 1, ApprovalStatus: domain.ApprovalRequired, AttachFeedback: true}},
		{"ba approve", domain.KindProjectPlan, 2, domain.ActionApprove,
			Outcome{Kind: OutcomeAdvance, Stage: 3, ApprovalStatus: domain.ApprovalGranted}},
		{"ba recall", domain.KindProjectPlan, 2, domain.ActionRecall,
			Outcome{Kind: OutcomeRevert, Stage: 1, ApprovalStatus: domain.ApprovalRequired, AttachFeedback: true}},
		{"ba send back", domain.KindProgressReport, 2, domain.ActionSendBack,
			Outcome{Kind: OutcomeRevert, Stage: 1, ApprovalStatus: domain.ApprovalRequired, AttachFeedback: true}},
		{"directorate approve concept", domain.KindConcept, 3, domain.ActionApprove,
			Outcome{Kind: OutcomeCreateSuccessor, Stage: domain.StageApproved, ApprovalStatus: domain.ApprovalGranted}},
		{"directorate approve closure", domain.KindProjectClosure, 3, domain.ActionApprove,
			Outcome{Kind: OutcomeClose, Stage: domain.StageApproved, ApprovalStatus: domain.ApprovalGranted}},
		{"directorate recall", domain.KindStudentReport, 3, domain.ActionRecall,
			Outcome{Kind: OutcomeRevert, Stage: 2, ApprovalStatus: domain.ApprovalRequired, AttachFeedback: true}},
		{"directorate recall closure", domain.KindProjectClosure, 3, domain.ActionRecall,
			Outcome{Kind: OutcomeRevert, Stage: 2, ApprovalStatus: domain.ApprovalRequired, AttachFeedback: true, ReopenClosedProject: true}},
		{"directorate send back", domain.KindConcept, 3, domain.ActionSendBack,
			Outcome{Kind: OutcomeRevert, Stage: 2, ApprovalStatus: domain.ApprovalRequired, AttachFeedback: true}},
		{"reopen closure", domain.KindProjectClosure, 3, domain.ActionReopen,
			Outcome{Kind: OutcomeReopen, Stage: 1, ApprovalStatus: domain.ApprovalRequired, DeleteDocument: true}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Resolve(tt.kind, tt.stage, tt.action)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveRejectsUnlistedPairs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		kind   domain.DocumentKind
		stage  domain.Stage
		action domain.Action
	}{
		{"send back at lead stage", domain.KindConcept, 1, domain.ActionSendBack},
		{"reopen non closure", domain.KindConcept, 3, domain.ActionReopen},
		{"stage zero", domain.KindConcept, 0, domain.ActionApprove},
		{"approved is not a review stage", domain.KindConcept, domain.StageApproved, domain.ActionApprove},
		{"unknown action", domain.KindConcept, 1, domain.Action("archive")},
		{"unknown kind", domain.DocumentKind("memo"), 1, domain.ActionApprove},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Resolve(tt.kind, tt.stage, tt.action)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidTransition))
			assert.Equal(t, InvalidTransition, KindOf(err))
		})
	}
}

func TestResolveIsDeterministicOverTheWholeDomain(t *testing.T) {
	t.Parallel()
	for _, kind := range domain.DocumentKinds() {
		for _, stage := range allStages {
			for _, action := range allActions {
				first, firstErr := Resolve(kind, stage, action)
				second, secondErr := Resolve(kind, stage, action)
				assert.Equal(t, first, second)
				assert.Equal(t, firstErr == nil, secondErr == nil)
				if firstErr != nil {
					assert.Equal(t, InvalidTransition, KindOf(firstErr))
				}
			}
		}
	}
}

func TestApproveThenSendBackRoundTrip(t *testing.T) {
	t.Parallel()
	up, err := Resolve(domain.KindConcept, domain.StageLead, domain.ActionApprove)
	require.NoError(t, err)
	require.Equal(t, domain.StageBusinessArea, up.Stage)

	back, err := Resolve(domain.KindConcept, up.Stage, domain.ActionSendBack)
	require.NoError(t, err)
	assert.Equal(t, domain.StageLead, back.Stage)
	assert.Equal(t, domain.ApprovalRequired, back.ApprovalStatus)
}

func TestActingStage(t *testing.T) {
	t.Parallel()

	s, err := ActingStage(domain.StageBusinessArea, domain.ActionApprove)
	require.NoError(t, err)
	assert.Equal(t, domain.StageBusinessArea, s)

	s, err = ActingStage(domain.StageApproved, domain.ActionRecall)
	require.NoError(t, err)
	assert.Equal(t, domain.StageDirectorate, s)

	s, err = ActingStage(domain.StageApproved, domain.ActionReopen)
	require.NoError(t, err)
	assert.Equal(t, domain.StageDirectorate, s)

	_, err = ActingStage(domain.StageApproved, domain.ActionApprove)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = ActingStage(domain.Stage(9), domain.ActionApprove)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestAuthorizeSuperuserAlwaysAllowed(t *testing.T) {
	t.Parallel()
	for _, stage := range allStages {
		for _, action := range allActions {
			for _, role := range append([]domain.Role{""}, allRoles...) {
				d := Authorize(AuthRequest{Role: role, IsSuperuser: true, Stage: stage, Action: action})
				assert.True(t, d.Allowed, "stage %d action %s role %q", stage, action, role)
			}
		}
	}
	d := Authorize(AuthRequest{Role: domain.RoleSuperuser, Stage: domain.StageDirectorate, Action: domain.ActionApprove})
	assert.True(t, d.Allowed)
}

func TestAuthorizeStageRequiresItsReviewer(t *testing.T) {
	t.Parallel()
	want := map[domain.Stage]domain.Role{
		domain.StageLead:         domain.RoleLead,
		domain.StageBusinessArea: domain.RoleBusinessAreaLead,
		domain.StageDirectorate:  domain.RoleDirectorateMember,
	}
	for _, stage := range allStages {
		for _, action := range []domain.Action{domain.ActionApprove, domain.ActionRecall, domain.ActionSendBack} {
			for _, role := range allRoles {
				d := Authorize(AuthRequest{Role: role, Stage: stage, Action: action})
				if role == want[stage] {
					assert.True(t, d.Allowed, "stage %d role %s", stage, role)
					assert.Empty(t, d.Reason)
				} else {
					assert.False(t, d.Allowed, "stage %d role %s", stage, role)
					assert.NotEmpty(t, d.Reason)
				}
			}
		}
	}
}

func TestAuthorizeDeniesLeadAtBusinessAreaStage(t *testing.T) {
	t.Parallel()
	d := Authorize(AuthRequest{Role: domain.RoleLead, Stage: domain.StageBusinessArea, Action: domain.ActionApprove})
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "business area lead")
}

func TestAuthorizeReopenClosedProject(t *testing.T) {
	t.Parallel()
	for _, stage := range allStages {
		lead := Authorize(AuthRequest{Role: domain.RoleLead, Stage: stage, Action: domain.ActionReopen, ClosureFinal: true})
		ba := Authorize(AuthRequest{Role: domain.RoleBusinessAreaLead, Stage: stage, Action: domain.ActionReopen, ClosureFinal: true})
		dir := Authorize(AuthRequest{Role: domain.RoleDirectorateMember, Stage: stage, Action: domain.ActionReopen, ClosureFinal: true})
		assert.True(t, lead.Allowed)
		assert.True(t, ba.Allowed)
		assert.False(t, dir.Allowed)
	}
}

func TestAuthorizeAny(t *testing.T) {
	t.Parallel()
	d := AuthorizeAny([]domain.Role{domain.RoleLead, domain.RoleBusinessAreaLead}, false, domain.StageBusinessArea, domain.ActionApprove, false)
	assert.True(t, d.Allowed)

	d = AuthorizeAny(nil, false, domain.StageLead, domain.ActionApprove, false)
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "project lead")

	d = AuthorizeAny(nil, true, domain.StageDirectorate, domain.ActionApprove, false)
	assert.True(t, d.Allowed)
}

func contact(id string) *domain.Contact {
	return &domain.Contact{UserID: id, Name: id, Email: id + "@example.org"}
}

func fullRecipients() domain.Recipients {
	return domain.Recipients{
		Lead:             contact("lead"),
		BusinessAreaLead: contact("ba"),
		Directorate:      []domain.Contact{*contact("dir1"), *contact("dir2")},
	}
}

func TestBuildNotificationRecipients(t *testing.T) {
	t.Parallel()

	tests := []struct {
		stage  domain.Stage
		action domain.Action
		role   domain.Role
		emails []string
	}{
		{1, domain.ActionApprove, domain.RoleBusinessAreaLead, []string{"ba@example.org"}},
		{1, domain.ActionRecall, domain.RoleBusinessAreaLead, []string{"ba@example.org"}},
		{2, domain.ActionApprove, domain.RoleDirectorateMember, []string{"dir1@example.org", "dir2@example.org"}},
		{2, domain.ActionRecall, domain.RoleDirectorateMember, []string{"dir1@example.org", "dir2@example.org"}},
		{2, domain.ActionSendBack, domain.RoleLead, []string{"lead@example.org"}},
		{3, domain.ActionRecall, domain.RoleDirectorateMember, []string{"dir1@example.org", "dir2@example.org"}},
		{3, domain.ActionSendBack, domain.RoleBusinessAreaLead, []string{"ba@example.org"}},
		{3, domain.ActionReopen, domain.RoleBusinessAreaLead, []string{"ba@example.org"}},
	}
	for _, tt := range tests {
		intent := BuildNotification(NotificationInput{
			Kind: domain.KindConcept, Stage: tt.stage, Action: tt.action, Recipients: fullRecipients(),
		})
		require.True(t, intent.ShouldSend, "stage %d %s", tt.stage, tt.action)
		assert.Equal(t, tt.role, intent.RecipientRole)
		var emails []string
		for _, c := range intent.Recipients {
			emails = append(emails, c.Email)
		}
		assert.Equal(t, tt.emails, emails)
		assert.Empty(t, intent.Diagnostic)
	}
}

func TestBuildNotificationFinalApprovalHasNoRecipient(t *testing.T) {
	t.Parallel()
	intent := BuildNotification(NotificationInput{
		Kind: domain.KindProjectClosure, Stage: 3, Action: domain.ActionApprove, Recipients: fullRecipients(),
	})
	assert.False(t, intent.ShouldSend)
	assert.Empty(t, intent.Diagnostic)
	assert.Empty(t, intent.Recipients)
}

func TestBuildNotificationForcesSendForNonSuperusers(t *testing.T) {
	t.Parallel()
	intent := BuildNotification(NotificationInput{
		Kind: domain.KindConcept, Stage: 1, Action: domain.ActionApprove,
		IsSuperuser: false, ShouldSend: false, Recipients: fullRecipients(),
	})
	assert.True(t, intent.ShouldSend)

	intent = BuildNotification(NotificationInput{
		Kind: domain.KindConcept, Stage: 1, Action: domain.ActionApprove,
		IsSuperuser: true, ShouldSend: false, Recipients: fullRecipients(),
	})
	assert.False(t, intent.ShouldSend)
	assert.Empty(t, intent.Diagnostic)

	intent = BuildNotification(NotificationInput{
		Kind: domain.KindConcept, Stage: 1, Action: domain.ActionApprove,
		IsSuperuser: true, ShouldSend: true, Recipients: fullRecipients(),
	})
	assert.True(t, intent.ShouldSend)
}

func TestBuildNotificationMissingRecipient(t *testing.T) {
	t.Parallel()
	r := fullRecipients()
	r.BusinessAreaLead = nil
	intent := BuildNotification(NotificationInput{
		Kind: domain.KindConcept, Stage: 1, Action: domain.ActionApprove, ShouldSend: true, Recipients: r,
	})
	assert.False(t, intent.ShouldSend)
	assert.Equal(t, MissingRecipient, intent.Diagnostic)
	assert.ErrorIs(t, intent.Err(), ErrMissingRecipient)

	r = fullRecipients()
	r.Directorate = []domain.Contact{{UserID: "dir1", Email: "  "}}
	intent = BuildNotification(NotificationInput{
		Kind: domain.KindConcept, Stage: 2, Action: domain.ActionApprove, Recipients: r,
	})
	assert.Equal(t, MissingRecipient, intent.Diagnostic)
}

func TestBuildNotificationSuperuserSuppressionSkipsDiagnostic(t *testing.T) {
	t.Parallel()
	intent := BuildNotification(NotificationInput{
		Kind: domain.KindConcept, Stage: 1, Action: domain.ActionApprove,
		IsSuperuser: true, ShouldSend: false, Recipients: domain.Recipients{},
	})
	assert.False(t, intent.ShouldSend)
	assert.Empty(t, intent.Diagnostic)
	assert.NoError(t, intent.Err())
}

func TestBuildNotificationFeedback(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		action   domain.Action
		stage    domain.Stage
		feedback string
		want     string
	}{
		{"send back keeps feedback", domain.ActionSendBack, 2, "<p>Needs budget</p>", "<p>Needs budget</p>"},
		{"recall keeps feedback", domain.ActionRecall, 1, "<p>Wrong file</p>", "<p>Wrong file</p>"},
		{"approve drops feedback", domain.ActionApprove, 1, "<p>Looks good</p>", ""},
		{"empty paragraph dropped", domain.ActionSendBack, 2, "<p><br></p>", ""},
		{"whitespace paragraph dropped", domain.ActionSendBack, 2, "<p> &nbsp; </p>", ""},
		{"script stripped", domain.ActionSendBack, 2, "<script>alert(1)</script>", ""},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			intent := BuildNotification(NotificationInput{
				Kind: domain.KindConcept, Stage: tt.stage, Action: tt.action,
				FeedbackHTML: tt.feedback, Recipients: fullRecipients(),
			})
			assert.Equal(t, tt.want, intent.FeedbackHTML)
		})
	}
}

func TestIsEmptyMarkup(t *testing.T) {
	t.Parallel()
	empty := []string{"", "   ", "<p></p>", "<p><br></p>", "<div><p><br/></p></div>", "<p> </p>", "<!-- note -->"}
	for _, s := range empty {
		assert.True(t, IsEmptyMarkup(s), "%q", s)
	}
	content := []string{"hello", "<p>x</p>", `<p><img src="https://example.org/a.png"></p>`, "<ul><li>one</li></ul>"}
	for _, s := range content {
		assert.False(t, IsEmptyMarkup(s), "%q", s)
	}
}

func TestErrorFormatting(t *testing.T) {
	t.Parallel()
	err := Wrap(PersistenceFailure, "save document", errors.New("disk full"))
	assert.Equal(t, "persistence_failure: save document: disk full", err.Error())
	assert.ErrorIs(t, err, ErrPersistenceFailure)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "save document", MessageOf(err))
	assert.Equal(t, ErrorKind(""), KindOf(errors.New("plain")))
}
