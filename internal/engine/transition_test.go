package engine_test

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spms/internal/domain"
	"spms/internal/engine"
	"spms/internal/repo"
	"spms/internal/workflow"
)

func (env testEnv) act(t *testing.T, docID string, action domain.Action, actor string) engine.Result {
	t.Helper()
	res, err := env.Engine.Transition(env.Ctx, engine.TransitionRequest{DocumentID: docID, Action: action, ActorID: actor})
	require.NoError(t, err, "%s by %s", action, actor)
	require.True(t, res.OK)
	return res
}

func (env testEnv) document(t *testing.T, id string) domain.Document {
	t.Helper()
	d, err := env.Engine.Repo.GetDocument(env.Ctx, id)
	require.NoError(t, err)
	return d
}

func (env testEnv) eventTypes(t *testing.T, projectID string) []string {
	t.Helper()
	evs, err := env.Engine.Repo.LatestEvents(env.Ctx, repo.EventFilters{ProjectID: projectID, Limit: 200})
	require.NoError(t, err)
	var out []string
	for _, e := range evs {
		out = append(out, e.Type)
	}
	return out
}

func recipients(msgs []domainMessage) []string {
	var out []string
	for _, m := range msgs {
		out = append(out, m.email)
	}
	return out
}

type domainMessage struct {
	email    string
	template string
}

func (env testEnv) sent() []domainMessage {
	var out []domainMessage
	for _, m := range env.Mail.Messages() {
		out = append(out, domainMessage{email: m.To.Email, template: m.TemplateID})
	}
	return out
}

func TestConceptApprovalChain(t *testing.T) {
	env := newTestEnv(t)
	doc := env.newProject(t, "p1", domain.KindConcept)

	res := env.act(t, doc.ID, domain.ActionApprove, "lee")
	assert.Equal(t, domain.StageBusinessArea, res.NewStage)
	assert.Equal(t, domain.ApprovalGranted, res.NewApprovalStatus)
	assert.Equal(t, domain.RoleBusinessAreaLead, res.Notification.RecipientRole)
	assert.Equal(t, int64(2), res.Version)
	assert.Equal(t, []domainMessage{{email: "bea@example.org", template: "document_approved"}}, env.sent())

	env.Mail.Reset()
	res = env.act(t, doc.ID, domain.ActionApprove, "bea")
	assert.Equal(t, domain.StageDirectorate, res.NewStage)
	assert.Equal(t, domain.ApprovalGranted, res.NewApprovalStatus)
	assert.ElementsMatch(t, []string{"dina@example.org", "dan@example.org"}, recipients(env.sent()))

	env.Mail.Reset()
	res = env.act(t, doc.ID, domain.ActionApprove, "dina")
	assert.Equal(t, domain.StageApproved, res.NewStage)
	assert.False(t, res.Notification.ShouldSend)
	assert.Empty(t, env.sent())
	assert.Equal(t, domain.ProjectPending, res.ProjectStatus)
	require.NotNil(t, res.Successor)
	assert.Equal(t, domain.KindProjectPlan, res.Successor.Kind)
	assert.Equal(t, domain.StageLead, res.Successor.Stage)
	assert.Equal(t, domain.ApprovalRequired, res.Successor.ApprovalStatus)

	stored := env.document(t, doc.ID)
	assert.Equal(t, domain.StageApproved, stored.Stage)
	assert.Equal(t, int64(4), stored.Version)
	assert.Equal(t, domain.ProjectPending, env.project(t, "p1").Status)

	types := env.eventTypes(t, "p1")
	assert.Contains(t, types, "document.approved")
	assert.Contains(t, types, "document.successor_created")
	assert.Contains(t, types, "project.status_changed")
	assert.Contains(t, types, "notification.sent")
	assert.Contains(t, types, "notification.skipped")

	_, err := env.Engine.Transition(env.Ctx, engine.TransitionRequest{DocumentID: doc.ID, Action: domain.ActionApprove, ActorID: "dina"})
	assert.True(t, errors.Is(err, workflow.ErrInvalidTransition))
}

func TestProjectPlanApprovalActivatesProject(t *testing.T) {
	env := newTestEnv(t)
	doc := env.newProject(t, "p1", domain.KindProjectPlan)
	env.act(t, doc.ID, domain.ActionApprove, "lee")
	env.act(t, doc.ID, domain.ActionApprove, "bea")
	res := env.act(t, doc.ID, domain.ActionApprove, "dan")
	assert.Nil(t, res.Successor)
	assert.Equal(t, domain.ProjectActive, env.project(t, "p1").Status)
}

func TestUnauthorizedRecall(t *testing.T) {
	env := newTestEnv(t)
	doc := env.newProject(t, "p1", domain.KindConcept)
	env.act(t, doc.ID, domain.ActionApprove, "lee")
	env.Mail.Reset()

	res, err := env.Engine.Transition(env.Ctx, engine.TransitionRequest{DocumentID: doc.ID, Action: domain.ActionRecall, ActorID: "lee"})
	require.Error(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, workflow.Unauthorized, res.ErrorKind)
	assert.Contains(t, res.Message, "business area lead")
	assert.Empty(t, env.sent())

	stored := env.document(t, doc.ID)
	assert.Equal(t, domain.StageBusinessArea, stored.Stage)
	assert.Equal(t, domain.ApprovalGranted, stored.ApprovalStatus)
}

func TestOutsiderIsUnauthorizedAtEveryStage(t *testing.T) {
	env := newTestEnv(t)
	doc := env.newProject(t, "p1", domain.KindConcept)
	for _, actor := range []string{"otto", "bea", "dina", "ghost"} {
		_, err := env.Engine.Transition(env.Ctx, engine.TransitionRequest{DocumentID: doc.ID, Action: domain.ActionApprove, ActorID: actor})
		assert.True(t, errors.Is(err, workflow.ErrUnauthorized), actor)
	}
	assert.Equal(t, int64(1), env.document(t, doc.ID).Version)
}

func TestSendBackRoundTripKeepsFeedback(t *testing.T) {
	env := newTestEnv(t)
	doc := env.newProject(t, "p1", domain.KindConcept)
	env.act(t, doc.ID, domain.ActionApprove, "lee")
	env.Mail.Reset()

	res, err := env.Engine.Transition(env.Ctx, engine.TransitionRequest{
		DocumentID:   doc.ID,
		Action:       domain.ActionSendBack,
		ActorID:      "bea",
		FeedbackHTML: `<p>Please add a <b>budget</b></p><script>alert(1)</script>`,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StageLead, res.NewStage)
	assert.Equal(t, domain.ApprovalRequired, res.NewApprovalStatus)

	stored := env.document(t, doc.ID)
	assert.Equal(t, domain.StageLead, stored.Stage)
	assert.Equal(t, domain.ApprovalRequired, stored.ApprovalStatus)
	assert.Equal(t, doc.Kind, stored.Kind)

	msgs := env.Mail.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "lee@example.org", msgs[0].To.Email)
	assert.Equal(t, "document_sent_back", msgs[0].TemplateID)
	fb, _ := msgs[0].Data["feedback_html"].(string)
	assert.Contains(t, fb, "<b>budget</b>")
	assert.NotContains(t, fb, "script")

	history, err := env.Engine.Repo.ListFeedback(env.Ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.StageBusinessArea, history[0].Stage)
	assert.Equal(t, domain.ActionSendBack, history[0].Action)
	assert.Equal(t, "bea", history[0].AuthorID)

	// The document can go round again.
	res = env.act(t, doc.ID, domain.ActionApprove, "lee")
	assert.Equal(t, domain.StageBusinessArea, res.NewStage)
}

func TestEmptyFeedbackIsDropped(t *testing.T) {
	env := newTestEnv(t)
	doc := env.newProject(t, "p1", domain.KindConcept)
	env.act(t, doc.ID, domain.ActionApprove, "lee")

	res, err := env.Engine.Transition(env.Ctx, engine.TransitionRequest{
		DocumentID: doc.ID, Action: domain.ActionSendBack, ActorID: "bea", FeedbackHTML: "<p><br></p>",
	})
	require.NoError(t, err)
	assert.Empty(t, res.Notification.FeedbackHTML)
	history, err := env.Engine.Repo.ListFeedback(env.Ctx, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestSendBackAtLeadStageIsInvalid(t *testing.T) {
	env := newTestEnv(t)
	doc := env.newProject(t, "p1", domain.KindConcept)
	res, err := env.Engine.Transition(env.Ctx, engine.TransitionRequest{DocumentID: doc.ID, Action: domain.ActionSendBack, ActorID: "lee"})
	assert.True(t, errors.Is(err, workflow.ErrInvalidTransition))
	assert.Equal(t, workflow.InvalidTransition, res.ErrorKind)
}

func TestRecallAtLeadStageNeedsGrant(t *testing.T) {
	env := newTestEnv(t)
	doc := env.newProject(t, "p1", domain.KindConcept)
	_, err := env.Engine.Transition(env.Ctx, engine.TransitionRequest{DocumentID: doc.ID, Action: domain.ActionRecall, ActorID: "lee"})
	assert.True(t, errors.Is(err, workflow.ErrInvalidTransition))

	_, err = env.Engine.DB.ExecContext(env.Ctx, `UPDATE documents SET approval_status='granted' WHERE id=?`, doc.ID)
	require.NoError(t, err)
	res := env.act(t, doc.ID, domain.ActionRecall, "lee")
	assert.Equal(t, domain.StageLead, res.NewStage)
	assert.Equal(t, domain.ApprovalRequired, res.NewApprovalStatus)
	assert.Equal(t, []string{"bea@example.org"}, recipients(env.sent()))
}

func TestGrantedLeadStageApproves(t *testing.T) {
	env := newTestEnv(t)
	doc := env.newProject(t, "p1", domain.KindConcept)
	_, err := env.Engine.DB.ExecContext(env.Ctx, `UPDATE documents SET approval_status='granted' WHERE id=?`, doc.ID)
	require.NoError(t, err)

	res := env.act(t, doc.ID, domain.ActionApprove, "lee")
	assert.Equal(t, domain.StageBusinessArea, res.NewStage)
	assert.Equal(t, domain.ApprovalGranted, res.NewApprovalStatus)
	assert.Equal(t, domain.RoleBusinessAreaLead, res.Notification.RecipientRole)
}

func TestDirectorateRecallRevertsToBusinessArea(t *testing.T) {
	env := newTestEnv(t)
	doc := env.newProject(t, "p1", domain.KindProgressReport)
	env.act(t, doc.ID, domain.ActionApprove, "lee")
	env.act(t, doc.ID, domain.ActionApprove, "bea")
	env.Mail.Reset()

	res, err := env.Engine.Transition(env.Ctx, engine.TransitionRequest{
		DocumentID: doc.ID, Action: domain.ActionRecall, ActorID: "dina", FeedbackHTML: "<p>wrong figures</p>",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StageBusinessArea, res.NewStage)
	assert.Equal(t, domain.ApprovalRequired, res.NewApprovalStatus)
	assert.ElementsMatch(t, []string{"dina@example.org", "dan@example.org"}, recipients(env.sent()))
	for _, m := range env.Mail.Messages() {
		assert.Equal(t, "<p>wrong figures</p>", m.Data["feedback_html"])
	}
}

func TestRecallOfApprovedConceptWithdrawsSuccessor(t *testing.T) {
	env := newTestEnv(t)
	doc := env.newProject(t, "p1", domain.KindConcept)
	env.act(t, doc.ID, domain.ActionApprove, "lee")
	env.act(t, doc.ID, domain.ActionApprove, "bea")
	approved := env.act(t, doc.ID, domain.ActionApprove, "dina")
	require.NotNil(t, approved.Successor)
	plan := approved.Successor.ID
	require.Equal(t, domain.ProjectPending, env.project(t, "p1").Status)

	res := env.act(t, doc.ID, domain.ActionRecall, "dina")
	assert.Equal(t, domain.StageBusinessArea, res.NewStage)
	assert.Equal(t, plan, res.RetractedSuccessor)
	assert.Equal(t, domain.ProjectNew, res.ProjectStatus)
	assert.Equal(t, domain.ProjectNew, env.project(t, "p1").Status)
	_, err := env.Engine.Repo.GetDocument(env.Ctx, plan)
	assert.ErrorIs(t, err, repo.ErrNotFound)

	env.act(t, doc.ID, domain.ActionApprove, "bea")
	again := env.act(t, doc.ID, domain.ActionApprove, "dan")
	require.NotNil(t, again.Successor)
	assert.NotEqual(t, plan, again.Successor.ID)
	assert.Equal(t, domain.ProjectPending, env.project(t, "p1").Status)
}

func TestRecallRefusedOnceSuccessorIsUnderReview(t *testing.T) {
	env := newTestEnv(t)
	doc := env.newProject(t, "p1", domain.KindConcept)
	env.act(t, doc.ID, domain.ActionApprove, "lee")
	env.act(t, doc.ID, domain.ActionApprove, "bea")
	approved := env.act(t, doc.ID, domain.ActionApprove, "dina")
	require.NotNil(t, approved.Successor)
	env.act(t, approved.Successor.ID, domain.ActionApprove, "lee")

	_, err := env.Engine.Transition(env.Ctx, engine.TransitionRequest{DocumentID: doc.ID, Action: domain.ActionRecall, ActorID: "dina"})
	assert.True(t, errors.Is(err, workflow.ErrInvalidTransition))

	stored := env.document(t, doc.ID)
	assert.Equal(t, domain.StageApproved, stored.Stage)
	assert.Equal(t, int64(4), stored.Version)
	assert.Equal(t, domain.StageBusinessArea, env.document(t, approved.Successor.ID).Stage)
	assert.Equal(t, domain.ProjectPending, env.project(t, "p1").Status)
}

func TestMissingBusinessAreaLeadBlocksBeforePersisting(t *testing.T) {
	env := newTestEnv(t)
	doc := env.newProject(t, "p1", domain.KindConcept)
	_, err := env.Engine.SetBusinessAreaLeader(env.Ctx, env.AreaID, nil, "admin")
	require.NoError(t, err)

	res, err := env.Engine.Transition(env.Ctx, engine.TransitionRequest{
		DocumentID: doc.ID, Action: domain.ActionApprove, ActorID: "lee", ShouldSendEmail: true,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, workflow.ErrMissingRecipient))
	assert.False(t, res.OK)
	assert.Equal(t, workflow.MissingRecipient, res.ErrorKind)
	assert.False(t, res.Notification.ShouldSend)
	assert.Equal(t, workflow.MissingRecipient, res.Notification.Diagnostic)

	stored := env.document(t, doc.ID)
	assert.Equal(t, domain.StageLead, stored.Stage)
	assert.Equal(t, int64(1), stored.Version)
	assert.NotContains(t, env.eventTypes(t, "p1"), "document.approved")
	assert.Empty(t, env.sent())
}

func TestLeaderWithoutEmailIsMissingRecipient(t *testing.T) {
	env := newTestEnv(t)
	doc := env.newProject(t, "p1", domain.KindConcept)
	empty := ""
	_, err := env.Engine.UpdateUser(env.Ctx, engine.UserUpdateOptions{ID: "bea", Email: &empty, ActorID: "admin"})
	require.NoError(t, err)

	_, err = env.Engine.Transition(env.Ctx, engine.TransitionRequest{DocumentID: doc.ID, Action: domain.ActionApprove, ActorID: "lee"})
	assert.True(t, errors.Is(err, workflow.ErrMissingRecipient))
}

func TestSuperuserSuppressesEmail(t *testing.T) {
	env := newTestEnv(t)
	doc := env.newProject(t, "p1", domain.KindConcept)
	// Suppression must not trip over the missing leader.
	_, err := env.Engine.SetBusinessAreaLeader(env.Ctx, env.AreaID, nil, "admin")
	require.NoError(t, err)

	res, err := env.Engine.Transition(env.Ctx, engine.TransitionRequest{
		DocumentID: doc.ID, Action: domain.ActionApprove, ActorID: "admin", ShouldSendEmail: false,
	})
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.False(t, res.Notification.ShouldSend)
	assert.Empty(t, res.Notification.Diagnostic)
	assert.Empty(t, env.sent())
	assert.Contains(t, env.eventTypes(t, "p1"), "notification.skipped")
}

func TestNonSuperuserCannotSuppressEmail(t *testing.T) {
	env := newTestEnv(t)
	doc := env.newProject(t, "p1", domain.KindConcept)
	res, err := env.Engine.Transition(env.Ctx, engine.TransitionRequest{
		DocumentID: doc.ID, Action: domain.ActionApprove, ActorID: "lee", ShouldSendEmail: false,
	})
	require.NoError(t, err)
	assert.True(t, res.Notification.ShouldSend)
	assert.Len(t, env.sent(), 1)
}

func TestNotificationFailureIsAWarning(t *testing.T) {
	env := newTestEnv(t)
	doc := env.newProject(t, "p1", domain.KindConcept)
	env.Mail.Fail = errors.New("relay down")

	res, err := env.Engine.Transition(env.Ctx, engine.TransitionRequest{DocumentID: doc.ID, Action: domain.ActionApprove, ActorID: "lee"})
	require.NoError(t, err)
	assert.True(t, res.OK)
	require.Len(t, res.Warnings, 1)
	assert.True(t, strings.HasPrefix(res.Warnings[0], string(workflow.NotificationFailure)))
	assert.Contains(t, res.Warnings[0], "relay down")

	assert.Equal(t, domain.StageBusinessArea, env.document(t, doc.ID).Stage)
	types := env.eventTypes(t, "p1")
	assert.Contains(t, types, "notification.failed")
	assert.NotContains(t, types, "notification.sent")
}

// failingStore fails one persistence call.
type failingStore struct {
	engine.Store
	err error
}

func (s failingStore) SaveDocumentTransition(context.Context, *sql.Tx, domain.DocumentTransition) (int64, error) {
	return 0, s.err
}

func TestPersistenceFailureSendsNothing(t *testing.T) {
	env := newTestEnv(t)
	doc := env.newProject(t, "p1", domain.KindConcept)
	env.Engine.Store = failingStore{Store: env.Engine.Repo, err: errors.New("disk full")}

	res, err := env.Engine.Transition(env.Ctx, engine.TransitionRequest{DocumentID: doc.ID, Action: domain.ActionApprove, ActorID: "lee"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, workflow.ErrPersistenceFailure))
	assert.Equal(t, workflow.PersistenceFailure, res.ErrorKind)
	assert.Empty(t, env.sent())

	stored := env.document(t, doc.ID)
	assert.Equal(t, domain.StageLead, stored.Stage)
	assert.Equal(t, int64(1), stored.Version)
	assert.NotContains(t, env.eventTypes(t, "p1"), "document.approved")
}

// closeFailingStore lets the document move and then fails closing the project.
type closeFailingStore struct {
	engine.Store
}

func (closeFailingStore) CloseProject(context.Context, *sql.Tx, string, string) error {
	return errors.New("constraint")
}

func TestLateFailureRollsBackDocument(t *testing.T) {
	env := newTestEnv(t)
	doc := env.newProject(t, "p1", domain.KindProjectClosure)
	env.act(t, doc.ID, domain.ActionApprove, "lee")
	env.act(t, doc.ID, domain.ActionApprove, "bea")
	env.Engine.Store = closeFailingStore{Store: env.Engine.Repo}

	_, err := env.Engine.Transition(env.Ctx, engine.TransitionRequest{DocumentID: doc.ID, Action: domain.ActionApprove, ActorID: "dina"})
	assert.True(t, errors.Is(err, workflow.ErrPersistenceFailure))
	assert.Equal(t, domain.StageDirectorate, env.document(t, doc.ID).Stage)
	assert.Equal(t, domain.ProjectClosureRequested, env.project(t, "p1").Status)
}

// racingStore bumps the version under the transition, as a concurrent writer would.
type racingStore struct {
	engine.Store
}

func (s racingStore) SaveDocumentTransition(ctx context.Context, tx *sql.Tx, t domain.DocumentTransition) (int64, error) {
	if _, err := tx.ExecContext(ctx, `UPDATE documents SET version=version+1 WHERE id=?`, t.DocumentID); err != nil {
		return 0, err
	}
	return s.Store.SaveDocumentTransition(ctx, tx, t)
}

func TestConcurrentWriterIsStale(t *testing.T) {
	env := newTestEnv(t)
	doc := env.newProject(t, "p1", domain.KindConcept)
	env.Engine.Store = racingStore{Store: env.Engine.Repo}

	res, err := env.Engine.Transition(env.Ctx, engine.TransitionRequest{DocumentID: doc.ID, Action: domain.ActionApprove, ActorID: "lee"})
	assert.True(t, errors.Is(err, workflow.ErrStaleVersion))
	assert.Equal(t, workflow.StaleVersion, res.ErrorKind)
	assert.Empty(t, env.sent())
	assert.Equal(t, int64(1), env.document(t, doc.ID).Version)
}

func TestExpectationsMustMatch(t *testing.T) {
	env := newTestEnv(t)
	doc := env.newProject(t, "p1", domain.KindConcept)
	env.act(t, doc.ID, domain.ActionApprove, "lee")

	cases := []struct {
		name string
		req  engine.TransitionRequest
		kind workflow.ErrorKind
	}{
		{"old version", engine.TransitionRequest{Version: 1}, workflow.StaleVersion},
		{"old stage", engine.TransitionRequest{Stage: domain.StageLead}, workflow.StaleVersion},
		{"other project", engine.TransitionRequest{ProjectID: "p2"}, workflow.NotFound},
		{"other kind", engine.TransitionRequest{Kind: domain.KindProjectPlan}, workflow.InvalidTransition},
		{"unknown document", engine.TransitionRequest{DocumentID: "nope"}, workflow.NotFound},
		{"unknown action", engine.TransitionRequest{Action: "publish"}, workflow.InvalidTransition},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := tc.req
			if req.DocumentID == "" {
				req.DocumentID = doc.ID
			}
			if req.Action == "" {
				req.Action = domain.ActionApprove
			}
			req.ActorID = "bea"
			res, err := env.Engine.Transition(env.Ctx, req)
			require.Error(t, err)
			assert.Equal(t, tc.kind, res.ErrorKind)
			assert.Equal(t, tc.kind, workflow.KindOf(err))
		})
	}

	res, err := env.Engine.Transition(env.Ctx, engine.TransitionRequest{
		ProjectID: "p1", DocumentID: doc.ID, Kind: domain.KindConcept, Stage: domain.StageBusinessArea, Version: 2,
		Action: domain.ActionApprove, ActorID: "bea",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Version)
}

func TestClosureLifecycle(t *testing.T) {
	env := newTestEnv(t)
	env.newProject(t, "p1", domain.KindConcept)
	closure, err := env.Engine.CreateDocument(env.Ctx, "p1", domain.KindProjectClosure, "lee")
	require.NoError(t, err)
	assert.Equal(t, domain.ProjectClosureRequested, env.project(t, "p1").Status)

	env.act(t, closure.ID, domain.ActionApprove, "lee")
	env.act(t, closure.ID, domain.ActionApprove, "bea")
	res := env.act(t, closure.ID, domain.ActionApprove, "dina")
	assert.Equal(t, domain.StageApproved, res.NewStage)
	assert.Equal(t, domain.ProjectClosed, res.ProjectStatus)
	assert.Nil(t, res.Successor)
	assert.Equal(t, domain.ProjectClosed, env.project(t, "p1").Status)
	assert.Contains(t, env.eventTypes(t, "p1"), "project.closed")

	// The directorate recalls its approval: the project leaves closed.
	res = env.act(t, closure.ID, domain.ActionRecall, "dan")
	assert.Equal(t, domain.StageBusinessArea, res.NewStage)
	assert.Equal(t, domain.ApprovalRequired, res.NewApprovalStatus)
	assert.Equal(t, domain.ProjectClosureRequested, env.project(t, "p1").Status)

	env.act(t, closure.ID, domain.ActionApprove, "bea")
	env.act(t, closure.ID, domain.ActionApprove, "dina")
	assert.Equal(t, domain.ProjectClosed, env.project(t, "p1").Status)

	_, err = env.Engine.Transition(env.Ctx, engine.TransitionRequest{DocumentID: closure.ID, Action: domain.ActionReopen, ActorID: "dina"})
	assert.True(t, errors.Is(err, workflow.ErrUnauthorized))

	env.Mail.Reset()
	res = env.act(t, closure.ID, domain.ActionReopen, "lee")
	assert.True(t, res.DocumentDeleted)
	assert.Equal(t, domain.ProjectUpdating, res.ProjectStatus)
	assert.Equal(t, domain.ProjectUpdating, env.project(t, "p1").Status)
	_, err = env.Engine.Repo.GetDocument(env.Ctx, closure.ID)
	assert.True(t, errors.Is(err, repo.ErrNotFound))
	assert.Equal(t, []domainMessage{{email: "bea@example.org", template: "project_reopened"}}, env.sent())
	assert.Contains(t, env.eventTypes(t, "p1"), "project.reopened")

	// A new closure can be started after reopening.
	_, err = env.Engine.CreateDocument(env.Ctx, "p1", domain.KindProjectClosure, "lee")
	require.NoError(t, err)
}

func TestReopenIsOnlyForClosures(t *testing.T) {
	env := newTestEnv(t)
	doc := env.newProject(t, "p1", domain.KindConcept)
	_, err := env.Engine.Transition(env.Ctx, engine.TransitionRequest{DocumentID: doc.ID, Action: domain.ActionReopen, ActorID: "lee"})
	assert.True(t, errors.Is(err, workflow.ErrInvalidTransition))
}

func TestPendingClosureCanBeWithdrawn(t *testing.T) {
	env := newTestEnv(t)
	closure := env.newProject(t, "p1", domain.KindProjectClosure)
	env.act(t, closure.ID, domain.ActionApprove, "lee")

	res := env.act(t, closure.ID, domain.ActionReopen, "admin")
	assert.True(t, res.DocumentDeleted)
	assert.Equal(t, domain.ProjectUpdating, env.project(t, "p1").Status)
}
