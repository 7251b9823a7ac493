package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"spms/internal/config"
	"spms/internal/domain"
	"spms/internal/events"
	"spms/internal/repo"
	"spms/internal/workflow"
)

// Store is the persistence a transition runs against. Every call shares the
// transition's transaction. repo.Repo implements it.
type Store interface {
	LoadDocument(ctx context.Context, tx *sql.Tx, id string) (domain.Document, error)
	LoadProject(ctx context.Context, tx *sql.Tx, id string) (domain.Project, error)
	LoadRecipients(ctx context.Context, tx *sql.Tx, projectID string) (domain.Recipients, error)
	SaveDocumentTransition(ctx context.Context, tx *sql.Tx, t domain.DocumentTransition) (int64, error)
	AppendFeedback(ctx context.Context, tx *sql.Tx, f domain.Feedback) error
	CloseProject(ctx context.Context, tx *sql.Tx, id, now string) error
	ReopenProject(ctx context.Context, tx *sql.Tx, id string, status domain.ProjectStatus, now string) error
	SetProjectStatus(ctx context.Context, tx *sql.Tx, id string, status domain.ProjectStatus, now string) error
	DeleteDocument(ctx context.Context, tx *sql.Tx, id string, version int64) error
	CreateSuccessorDocument(ctx context.Context, tx *sql.Tx, projectID string, kind domain.DocumentKind, now string) (domain.Document, bool, error)
	ApprovalEffects(ctx context.Context, tx *sql.Tx, projectID, documentID string) (domain.ApprovalEffects, error)
}

var _ Store = repo.Repo{}

// TransitionRequest asks to apply Action to a document. Kind, Stage and Version
// are optional expectations: when set they must match the stored document.
type TransitionRequest struct {
	ProjectID       string
	DocumentID      string
	Kind            domain.DocumentKind
	Stage           domain.Stage
	Version         int64
	Action          domain.Action
	ActorID         string
	ShouldSendEmail bool
	FeedbackHTML    string
}

// Result is the caller-facing outcome of a transition.
type Result struct {
	OK                 bool                        `json:"ok"`
	DocumentID         string                      `json:"document_id"`
	ProjectID          string                      `json:"project_id"`
	Action             domain.Action               `json:"action"`
	PreviousStage      domain.Stage                `json:"previous_stage"`
	NewStage           domain.Stage                `json:"new_stage"`
	NewApprovalStatus  domain.ApprovalStatus       `json:"new_approval_status"`
	Version            int64                       `json:"version"`
	DocumentDeleted    bool                        `json:"document_deleted,omitempty"`
	ProjectStatus      domain.ProjectStatus        `json:"project_status"`
	Successor          *domain.Document            `json:"successor,omitempty"`
	RetractedSuccessor string                      `json:"retracted_successor,omitempty"`
	Notification       workflow.NotificationIntent `json:"notification"`
	Warnings           []string                    `json:"warnings,omitempty"`
	ErrorKind          workflow.ErrorKind          `json:"error_kind,omitempty"`
	Message            string                      `json:"message,omitempty"`
}

func failed(err error) (Result, error) {
	return Result{OK: false, ErrorKind: workflow.KindOf(err), Message: workflow.MessageOf(err)}, err
}

func persistenceError(msg string, err error) error {
	if errors.Is(err, repo.ErrStaleVersion) {
		return workflow.Wrap(workflow.StaleVersion, "document was changed by someone else; reload and try again", err)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return workflow.Wrap(workflow.NotFound, msg, err)
	}
	return workflow.Wrap(workflow.PersistenceFailure, msg, err)
}

// Transition runs one document action: authorize, resolve, build the notification,
// persist everything in a single transaction, then notify. Nothing is written when
// any step before the commit fails, and nothing is sent unless the commit succeeded.
func (e Engine) Transition(ctx context.Context, req TransitionRequest) (Result, error) {
	if !req.Action.Valid() {
		return failed(workflow.Errorf(workflow.InvalidTransition, "unknown action %q", req.Action))
	}
	cfg := e.CurrentConfig(ctx)
	store := e.store()
	log := e.logger().With(zap.String("document_id", req.DocumentID), zap.String("action", string(req.Action)), zap.String("actor_id", req.ActorID))

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return failed(workflow.Wrap(workflow.PersistenceFailure, "begin transaction", err))
	}
	defer tx.Rollback()

	doc, err := store.LoadDocument(ctx, tx, req.DocumentID)
	if err != nil {
		return failed(persistenceError(fmt.Sprintf("document %s not found", req.DocumentID), err))
	}
	if req.ProjectID != "" && req.ProjectID != doc.ProjectID {
		return failed(workflow.Errorf(workflow.NotFound, "document %s not found in project %s", doc.ID, req.ProjectID))
	}
	if req.Kind != "" && req.Kind != doc.Kind {
		return failed(workflow.Errorf(workflow.InvalidTransition, "document %s is a %s, not a %s", doc.ID, doc.Kind, req.Kind))
	}
	if req.Stage != 0 && req.Stage != doc.Stage {
		return failed(workflow.Errorf(workflow.StaleVersion, "document is now at the %s stage, not %s; reload and try again", doc.Stage, req.Stage))
	}
	if req.Version != 0 && req.Version != doc.Version {
		return failed(workflow.Errorf(workflow.StaleVersion, "document is at version %d, not %d; reload and try again", doc.Version, req.Version))
	}
	project, err := store.LoadProject(ctx, tx, doc.ProjectID)
	if err != nil {
		return failed(persistenceError("load project", err))
	}

	stage, err := workflow.ActingStage(doc.Stage, req.Action)
	if err != nil {
		return failed(err)
	}
	actor, err := e.actorContext(ctx, tx, doc.ProjectID, req.ActorID)
	if err != nil {
		return failed(workflow.Wrap(workflow.PersistenceFailure, "load actor roles", err))
	}
	closureFinal := doc.Kind == domain.KindProjectClosure && doc.Stage.Terminal()
	decision := workflow.AuthorizeAny(actor.Roles, actor.IsSuperuser, stage, req.Action, closureFinal)
	if !decision.Allowed {
		return failed(workflow.Errorf(workflow.Unauthorized, "%s", decision.Reason))
	}

	outcome, err := workflow.Resolve(doc.Kind, stage, req.Action)
	if err != nil {
		return failed(err)
	}
	if req.Action == domain.ActionRecall && doc.Stage == domain.StageLead && doc.ApprovalStatus != domain.ApprovalGranted {
		return failed(workflow.Errorf(workflow.InvalidTransition, "nothing to recall: the lead stage has not been granted"))
	}

	recipients, err := store.LoadRecipients(ctx, tx, doc.ProjectID)
	if err != nil {
		return failed(workflow.Wrap(workflow.PersistenceFailure, "load recipients", err))
	}
	intent := workflow.BuildNotification(workflow.NotificationInput{
		Kind:         doc.Kind,
		Stage:        stage,
		Action:       req.Action,
		IsSuperuser:  actor.IsSuperuser,
		ShouldSend:   req.ShouldSendEmail,
		FeedbackHTML: req.FeedbackHTML,
		Recipients:   recipients,
	})
	if err := intent.Err(); err != nil {
		res, err := failed(err)
		res.Notification = intent
		return res, err
	}

	res, err := e.applyOutcome(ctx, tx, cfg, doc, project, stage, outcome, intent, req)
	if err != nil {
		return failed(err)
	}
	if err := tx.Commit(); err != nil {
		return failed(workflow.Wrap(workflow.PersistenceFailure, "commit transition", err))
	}
	log.Info("document transition",
		zap.String("project_id", doc.ProjectID),
		zap.Int("from_stage", int(doc.Stage)),
		zap.Int("to_stage", int(res.NewStage)),
		zap.String("outcome", string(outcome.Kind)),
	)

	res.Warnings = append(res.Warnings, e.deliver(ctx, cfg, doc, project, stage, req, intent, res)...)
	return res, nil
}

// applyOutcome writes the resolved transition and its side effects inside tx.
func (e Engine) applyOutcome(
	ctx context.Context,
	tx *sql.Tx,
	cfg *config.Config,
	doc domain.Document,
	project domain.Project,
	stage domain.Stage,
	outcome workflow.Outcome,
	intent workflow.NotificationIntent,
	req TransitionRequest,
) (Result, error) {
	store := e.store()
	now := e.stamp()
	res := Result{
		OK:                true,
		DocumentID:        doc.ID,
		ProjectID:         doc.ProjectID,
		Action:            req.Action,
		PreviousStage:     doc.Stage,
		NewStage:          outcome.Stage,
		NewApprovalStatus: outcome.ApprovalStatus,
		ProjectStatus:     project.Status,
		Notification:      intent,
	}

	if outcome.DeleteDocument {
		if err := store.DeleteDocument(ctx, tx, doc.ID, doc.Version); err != nil {
			return res, persistenceError("delete closure document", err)
		}
		res.DocumentDeleted = true
		res.Version = doc.Version
	} else {
		version, err := store.SaveDocumentTransition(ctx, tx, domain.DocumentTransition{
			DocumentID:     doc.ID,
			FromVersion:    doc.Version,
			Stage:          outcome.Stage,
			ApprovalStatus: outcome.ApprovalStatus,
			UpdatedAt:      now,
		})
		if err != nil {
			return res, persistenceError("save document", err)
		}
		res.Version = version
	}

	if outcome.AttachFeedback && intent.FeedbackHTML != "" {
		if err := store.AppendFeedback(ctx, tx, domain.Feedback{
			DocumentID: doc.ID,
			ProjectID:  doc.ProjectID,
			Stage:      stage,
			Action:     req.Action,
			AuthorID:   req.ActorID,
			HTML:       intent.FeedbackHTML,
			CreatedAt:  now,
		}); err != nil {
			return res, persistenceError("save feedback", err)
		}
	}

	if err := e.Events.Append(ctx, tx, events.ForAction(req.Action), doc.ProjectID, "document", doc.ID, req.ActorID, events.EventPayload{
		"kind":            doc.Kind,
		"from_stage":      doc.Stage,
		"to_stage":        outcome.Stage,
		"approval_status": outcome.ApprovalStatus,
		"version":         res.Version,
		"feedback":        outcome.AttachFeedback && intent.FeedbackHTML != "",
		"deleted":         res.DocumentDeleted,
	}); err != nil {
		return res, persistenceError("append event", err)
	}

	setStatus := func(evt string, status domain.ProjectStatus, apply func() error) error {
		if err := apply(); err != nil {
			return persistenceError("update project status", err)
		}
		if err := e.Events.Append(ctx, tx, evt, doc.ProjectID, "project", doc.ProjectID, req.ActorID, events.EventPayload{
			"from": res.ProjectStatus, "to": status, "document_id": doc.ID,
		}); err != nil {
			return persistenceError("append event", err)
		}
		res.ProjectStatus = status
		return nil
	}

	switch outcome.Kind {
	case workflow.OutcomeClose:
		if err := setStatus(events.ProjectClosed, domain.ProjectClosed, func() error {
			return store.CloseProject(ctx, tx, doc.ProjectID, now)
		}); err != nil {
			return res, err
		}
	case workflow.OutcomeCreateSuccessor:
		if status, ok := cfg.ProjectStatusOnApproval(doc.Kind); ok && status != project.Status {
			if err := setStatus(events.ProjectStatusChanged, status, func() error {
				return store.SetProjectStatus(ctx, tx, doc.ProjectID, status, now)
			}); err != nil {
				return res, err
			}
		}
		if next, ok := cfg.SuccessorFor(doc.Kind); ok {
			succ, created, err := store.CreateSuccessorDocument(ctx, tx, doc.ProjectID, next, now)
			if err != nil {
				return res, persistenceError("create successor document", err)
			}
			res.Successor = &succ
			if created {
				if err := e.Events.Append(ctx, tx, events.DocumentSuccessor, doc.ProjectID, "document", succ.ID, req.ActorID, events.EventPayload{
					"kind": succ.Kind, "predecessor_id": doc.ID,
				}); err != nil {
					return res, persistenceError("append event", err)
				}
			}
		}
	case workflow.OutcomeReopen:
		if err := setStatus(events.ProjectReopened, domain.ProjectUpdating, func() error {
			return store.ReopenProject(ctx, tx, doc.ProjectID, domain.ProjectUpdating, now)
		}); err != nil {
			return res, err
		}
	}
	if req.Action == domain.ActionRecall && doc.Stage.Terminal() && doc.Kind != domain.KindProjectClosure {
		if err := e.unwindApproval(ctx, tx, doc, req.ActorID, now, &res); err != nil {
			return res, err
		}
	}
	if outcome.ReopenClosedProject && project.Status == domain.ProjectClosed {
		if err := setStatus(events.ProjectReopened, domain.ProjectClosureRequested, func() error {
			return store.ReopenProject(ctx, tx, doc.ProjectID, domain.ProjectClosureRequested, now)
		}); err != nil {
			return res, err
		}
	}
	return res, nil
}

// unwindApproval undoes what the document's final approval did to its project.
// The successor is removed only while nobody has acted on it; once it has moved
// the recall is refused. The project status is put back unless something else
// has changed it since.
func (e Engine) unwindApproval(ctx context.Context, tx *sql.Tx, doc domain.Document, actorID, now string, res *Result) error {
	store := e.store()
	fx, err := store.ApprovalEffects(ctx, tx, doc.ProjectID, doc.ID)
	if err != nil {
		return persistenceError("load approval effects", err)
	}
	if fx.SuccessorID != "" {
		succ, err := store.LoadDocument(ctx, tx, fx.SuccessorID)
		switch {
		case errors.Is(err, repo.ErrNotFound):
		case err != nil:
			return persistenceError("load successor document", err)
		case succ.Stage != domain.StageLead || succ.ApprovalStatus != domain.ApprovalRequired || succ.Version != 1:
			return workflow.Errorf(workflow.InvalidTransition,
				"the %s started by this approval is already under review; it must be withdrawn before %s can be recalled", succ.Kind, doc.Kind)
		default:
			if err := store.DeleteDocument(ctx, tx, succ.ID, succ.Version); err != nil {
				return persistenceError("delete successor document", err)
			}
			if err := e.Events.Append(ctx, tx, events.DocumentDeleted, doc.ProjectID, "document", succ.ID, actorID, events.EventPayload{
				"kind": succ.Kind, "predecessor_id": doc.ID, "reason": "predecessor recalled",
			}); err != nil {
				return persistenceError("append event", err)
			}
			res.RetractedSuccessor = succ.ID
		}
	}
	if fx.StatusTo != "" && fx.StatusFrom != "" && res.ProjectStatus == fx.StatusTo {
		if err := store.SetProjectStatus(ctx, tx, doc.ProjectID, fx.StatusFrom, now); err != nil {
			return persistenceError("restore project status", err)
		}
		if err := e.Events.Append(ctx, tx, events.ProjectStatusChanged, doc.ProjectID, "project", doc.ProjectID, actorID, events.EventPayload{
			"from": fx.StatusTo, "to": fx.StatusFrom, "document_id": doc.ID,
		}); err != nil {
			return persistenceError("append event", err)
		}
		res.ProjectStatus = fx.StatusFrom
	}
	return nil
}

// deliver sends the committed transition's emails. Failures become warnings and a
// notification.failed event; the transition itself stands.
func (e Engine) deliver(
	ctx context.Context,
	cfg *config.Config,
	doc domain.Document,
	project domain.Project,
	stage domain.Stage,
	req TransitionRequest,
	intent workflow.NotificationIntent,
	res Result,
) []string {
	log := e.logger().With(zap.String("document_id", doc.ID), zap.String("project_id", doc.ProjectID))
	record := func(evt string, payload events.EventPayload) {
		if err := e.Events.AppendStandalone(ctx, e.DB, evt, doc.ProjectID, "document", doc.ID, req.ActorID, payload); err != nil {
			log.Warn("record notification outcome", zap.String("event", evt), zap.Error(err))
		}
	}
	if !intent.ShouldSend {
		reason := "no recipient for this action"
		if intent.RecipientRole != "" {
			reason = "suppressed by administrator"
		}
		record(events.NotificationSkipped, events.EventPayload{"reason": reason})
		return nil
	}

	template := cfg.TemplateFor(doc.Kind, req.Action)
	var (
		sent     []string
		warnings []string
		errs     []error
	)
	for _, to := range intent.Recipients {
		data := map[string]any{
			"project_id":      doc.ProjectID,
			"project_title":   project.Title,
			"document_id":     doc.ID,
			"document_kind":   doc.Kind,
			"action":          req.Action,
			"stage":           int(stage),
			"new_stage":       int(res.NewStage),
			"approval_status": res.NewApprovalStatus,
			"actor_id":        req.ActorID,
			"recipient_name":  to.Name,
			"base_url":        cfg.System.BaseURL,
		}
		if intent.FeedbackHTML != "" {
			data["feedback_html"] = intent.FeedbackHTML
		}
		if err := e.sender().SendEmail(ctx, to, template, data); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", to.Email, err))
			warnings = append(warnings, fmt.Sprintf("%s: email to %s failed: %v", workflow.NotificationFailure, to.Email, err))
			continue
		}
		sent = append(sent, to.Email)
	}
	if len(errs) > 0 {
		err := errors.Join(errs...)
		log.Warn("notification failed", zap.String("template", template), zap.Error(err))
		record(events.NotificationFailed, events.EventPayload{"template": template, "error": err.Error(), "sent": sent})
	}
	if len(sent) > 0 {
		record(events.NotificationSent, events.EventPayload{"template": template, "recipients": sent, "role": intent.RecipientRole})
	}
	return warnings
}
