package engine

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"spms/internal/config"
	"spms/internal/domain"
	"spms/internal/engine/auth"
	"spms/internal/events"
	"spms/internal/notify"
	"spms/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Store  Store
	Auth   auth.Service
	Events events.Writer
	Config *config.Config
	Sender notify.Sender
	Logger *zap.Logger
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	r := repo.Repo{DB: db}
	return Engine{
		DB:     db,
		Repo:   r,
		Store:  r,
		Auth:   auth.Service{Repo: r},
		Events: events.Writer{},
		Config: cfg,
		Sender: notify.LogSender{},
		Logger: zap.NewNop(),
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) stamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) logger() *zap.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return zap.NewNop()
}

func (e Engine) store() Store {
	if e.Store != nil {
		return e.Store
	}
	return e.Repo
}

func (e Engine) sender() notify.Sender {
	if e.Sender != nil {
		return e.Sender
	}
	return notify.LogSender{Logger: e.logger()}
}

// Bootstrap creates the first superuser when the user table is empty. It is a no-op otherwise.
func (e Engine) Bootstrap(ctx context.Context, userID, displayName, email string) (bool, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return false, errors.New("user id is required")
	}
	n, err := e.Repo.CountUsers(ctx)
	if err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}
	if displayName == "" {
		displayName = userID
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()
	u := domain.User{ID: userID, DisplayName: displayName, Email: email, IsSuperuser: true, CreatedAt: e.stamp()}
	if err := e.Repo.InsertUser(ctx, tx, u); err != nil {
		return false, fmt.Errorf("insert user: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.UserCreated, "", "user", u.ID, u.ID, events.EventPayload{"superuser": true, "bootstrap": true}); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

type UserCreateOptions struct {
	ID          string
	DisplayName string
	Email       string
	IsSuperuser bool
	ActorID     string
}

func (e Engine) CreateUser(ctx context.Context, opts UserCreateOptions) (domain.User, error) {
	opts.ID = strings.TrimSpace(opts.ID)
	if opts.ID == "" {
		return domain.User{}, errors.New("user id is required")
	}
	if strings.TrimSpace(opts.DisplayName) == "" {
		opts.DisplayName = opts.ID
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()
	if err := e.Auth.RequireSuperuser(ctx, tx, opts.ActorID); err != nil {
		return domain.User{}, err
	}
	u := domain.User{
		ID:          opts.ID,
		DisplayName: strings.TrimSpace(opts.DisplayName),
		Email:       strings.TrimSpace(opts.Email),
		IsSuperuser: opts.IsSuperuser,
		CreatedAt:   e.stamp(),
	}
	if err := e.Repo.InsertUser(ctx, tx, u); err != nil {
		return domain.User{}, err
	}
	if err := e.Events.Append(ctx, tx, events.UserCreated, "", "user", u.ID, opts.ActorID, events.EventPayload{"superuser": u.IsSuperuser}); err != nil {
		return domain.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

type UserUpdateOptions struct {
	ID          string
	DisplayName *string
	Email       *string
	IsSuperuser *bool
	ActorID     string
}

// UpdateUser lets superusers edit anyone and users edit their own name and email.
func (e Engine) UpdateUser(ctx context.Context, opts UserUpdateOptions) (domain.User, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()
	if opts.ActorID != opts.ID || opts.IsSuperuser != nil {
		if err := e.Auth.RequireSuperuser(ctx, tx, opts.ActorID); err != nil {
			return domain.User{}, err
		}
	}
	if opts.DisplayName != nil && strings.TrimSpace(*opts.DisplayName) == "" {
		return domain.User{}, errors.New("display name is required")
	}
	if err := e.Repo.UpdateUser(ctx, tx, opts.ID, opts.DisplayName, opts.Email, opts.IsSuperuser); err != nil {
		return domain.User{}, err
	}
	payload := events.EventPayload{}
	if opts.Email != nil {
		payload["email_changed"] = true
	}
	if opts.IsSuperuser != nil {
		payload["superuser"] = *opts.IsSuperuser
	}
	if err := e.Events.Append(ctx, tx, events.UserUpdated, "", "user", opts.ID, opts.ActorID, payload); err != nil {
		return domain.User{}, err
	}
	u, err := e.Repo.GetUser(ctx, tx, opts.ID)
	if err != nil {
		return domain.User{}, err
	}
	return u, tx.Commit()
}

func (e Engine) CreateBusinessArea(ctx context.Context, name string, leaderID *string, actorID string) (domain.BusinessArea, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.BusinessArea{}, errors.New("business area name is required")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.BusinessArea{}, err
	}
	defer tx.Rollback()
	if err := e.Auth.RequireSuperuser(ctx, tx, actorID); err != nil {
		return domain.BusinessArea{}, err
	}
	if leaderID != nil && *leaderID != "" {
		if _, err := e.Repo.GetUser(ctx, tx, *leaderID); err != nil {
			return domain.BusinessArea{}, fmt.Errorf("leader %s: %w", *leaderID, err)
		}
	}
	a := domain.BusinessArea{ID: uuid.NewString(), Name: name, LeaderID: leaderID, CreatedAt: e.stamp()}
	if err := e.Repo.InsertBusinessArea(ctx, tx, a); err != nil {
		return domain.BusinessArea{}, err
	}
	if err := e.Events.Append(ctx, tx, events.AreaCreated, "", "business_area", a.ID, actorID, events.EventPayload{"name": a.Name, "leader_id": a.LeaderID}); err != nil {
		return domain.BusinessArea{}, err
	}
	return a, tx.Commit()
}

// SetBusinessAreaLeader assigns or clears (nil) the stage-two reviewer of an area.
func (e Engine) SetBusinessAreaLeader(ctx context.Context, areaID string, leaderID *string, actorID string) (domain.BusinessArea, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.BusinessArea{}, err
	}
	defer tx.Rollback()
	if err := e.Auth.RequireSuperuser(ctx, tx, actorID); err != nil {
		return domain.BusinessArea{}, err
	}
	if leaderID != nil && *leaderID != "" {
		if _, err := e.Repo.GetUser(ctx, tx, *leaderID); err != nil {
			return domain.BusinessArea{}, fmt.Errorf("leader %s: %w", *leaderID, err)
		}
	}
	if err := e.Repo.SetBusinessAreaLeader(ctx, tx, areaID, leaderID); err != nil {
		return domain.BusinessArea{}, err
	}
	if err := e.Events.Append(ctx, tx, events.AreaLeaderSet, "", "business_area", areaID, actorID, events.EventPayload{"leader_id": leaderID}); err != nil {
		return domain.BusinessArea{}, err
	}
	a, err := e.Repo.GetBusinessArea(ctx, tx, areaID)
	if err != nil {
		return domain.BusinessArea{}, err
	}
	return a, tx.Commit()
}

func (e Engine) AddDirectorateMember(ctx context.Context, userID, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Auth.RequireSuperuser(ctx, tx, actorID); err != nil {
		return err
	}
	if _, err := e.Repo.GetUser(ctx, tx, userID); err != nil {
		return fmt.Errorf("user %s: %w", userID, err)
	}
	if err := e.Repo.AddDirectorateMember(ctx, tx, userID, e.stamp()); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, events.DirectorateAdded, "", "user", userID, actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) RemoveDirectorateMember(ctx context.Context, userID, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Auth.RequireSuperuser(ctx, tx, actorID); err != nil {
		return err
	}
	if err := e.Repo.RemoveDirectorateMember(ctx, tx, userID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, events.DirectorateRemoved, "", "user", userID, actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// ProjectCreateOptions are parameters for creating a project.
type ProjectCreateOptions struct {
	ID              string
	Title           string
	Kind            string
	BusinessAreaID  string
	LeadID          string
	InitialDocument domain.DocumentKind
	ActorID         string
}

var projectKinds = map[string]bool{"science": true, "student": true, "external": true, "core_function": true}

// CreateProject registers a project with its lead. Any known user may create one;
// the lead defaults to the creator.
func (e Engine) CreateProject(ctx context.Context, opts ProjectCreateOptions) (domain.Project, error) {
	opts.Title = strings.TrimSpace(opts.Title)
	if opts.Title == "" {
		return domain.Project{}, errors.New("project title is required")
	}
	if opts.Kind == "" {
		opts.Kind = "science"
	}
	if !projectKinds[opts.Kind] {
		return domain.Project{}, fmt.Errorf("invalid project kind %q", opts.Kind)
	}
	if opts.InitialDocument != "" && !opts.InitialDocument.Valid() {
		return domain.Project{}, fmt.Errorf("invalid document kind %q", opts.InitialDocument)
	}
	if opts.LeadID == "" {
		opts.LeadID = opts.ActorID
	}
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	now := e.stamp()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()
	if _, err := e.Repo.GetUser(ctx, tx, opts.ActorID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Project{}, auth.ForbiddenError{Requirement: "registered user"}
		}
		return domain.Project{}, err
	}
	if opts.LeadID != opts.ActorID {
		if err := e.Auth.RequireSuperuser(ctx, tx, opts.ActorID); err != nil {
			return domain.Project{}, err
		}
		if _, err := e.Repo.GetUser(ctx, tx, opts.LeadID); err != nil {
			return domain.Project{}, fmt.Errorf("lead %s: %w", opts.LeadID, err)
		}
	}
	var area *string
	if opts.BusinessAreaID != "" {
		if _, err := e.Repo.GetBusinessArea(ctx, tx, opts.BusinessAreaID); err != nil {
			return domain.Project{}, fmt.Errorf("business area %s: %w", opts.BusinessAreaID, err)
		}
		area = &opts.BusinessAreaID
	}
	p := domain.Project{
		ID:             opts.ID,
		Title:          opts.Title,
		Kind:           opts.Kind,
		Status:         domain.ProjectNew,
		BusinessAreaID: area,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := e.Repo.InsertProject(ctx, tx, p); err != nil {
		return domain.Project{}, err
	}
	if err := e.Repo.UpsertProjectMember(ctx, tx, domain.ProjectMember{ProjectID: p.ID, UserID: opts.LeadID, Role: domain.MemberRoleLead, CreatedAt: now}); err != nil {
		return domain.Project{}, err
	}
	if err := e.Events.Append(ctx, tx, events.ProjectCreated, p.ID, "project", p.ID, opts.ActorID, events.EventPayload{
		"title": p.Title, "kind": p.Kind, "lead_id": opts.LeadID, "business_area_id": area,
	}); err != nil {
		return domain.Project{}, err
	}
	if opts.InitialDocument != "" {
		if _, err := e.insertDocument(ctx, tx, p, opts.InitialDocument, opts.ActorID, now); err != nil {
			return domain.Project{}, err
		}
	}
	return p, tx.Commit()
}

// SetProjectStatus is the administrative override for suspending, terminating or restoring a project.
func (e Engine) SetProjectStatus(ctx context.Context, projectID string, status domain.ProjectStatus, actorID string) (domain.Project, error) {
	if !status.Valid() {
		return domain.Project{}, fmt.Errorf("invalid project status %q", status)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()
	if err := e.Auth.RequireSuperuser(ctx, tx, actorID); err != nil {
		return domain.Project{}, err
	}
	p, err := e.Repo.GetProject(ctx, tx, projectID)
	if err != nil {
		return domain.Project{}, err
	}
	if err := e.Repo.SetProjectStatus(ctx, tx, projectID, status, e.stamp()); err != nil {
		return domain.Project{}, err
	}
	if err := e.Events.Append(ctx, tx, events.ProjectStatusChanged, projectID, "project", projectID, actorID, events.EventPayload{"from": p.Status, "to": status}); err != nil {
		return domain.Project{}, err
	}
	p, err = e.Repo.GetProject(ctx, tx, projectID)
	if err != nil {
		return domain.Project{}, err
	}
	return p, tx.Commit()
}

// ProjectUpdateOptions are parameters for editing a project. Nil fields are left
// unchanged; an empty BusinessAreaID detaches the project from its area.
type ProjectUpdateOptions struct {
	ID             string
	Title          *string
	BusinessAreaID *string
	ActorID        string
}

// UpdateProject edits title or business area. Moving a project between areas
// changes who reviews its documents at the business area stage.
func (e Engine) UpdateProject(ctx context.Context, opts ProjectUpdateOptions) (domain.Project, error) {
	if opts.Title != nil {
		t := strings.TrimSpace(*opts.Title)
		if t == "" {
			return domain.Project{}, errors.New("project title is required")
		}
		opts.Title = &t
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()
	before, err := e.Repo.GetProject(ctx, tx, opts.ID)
	if err != nil {
		return domain.Project{}, err
	}
	if err := e.Auth.RequireProjectRole(ctx, tx, opts.ID, opts.ActorID, domain.RoleLead); err != nil {
		return domain.Project{}, err
	}
	if opts.BusinessAreaID != nil && *opts.BusinessAreaID != "" {
		if _, err := e.Repo.GetBusinessArea(ctx, tx, *opts.BusinessAreaID); err != nil {
			return domain.Project{}, fmt.Errorf("business area %s: %w", *opts.BusinessAreaID, err)
		}
	}
	if err := e.Repo.UpdateProject(ctx, tx, opts.ID, opts.Title, opts.BusinessAreaID, e.stamp()); err != nil {
		return domain.Project{}, err
	}
	after, err := e.Repo.GetProject(ctx, tx, opts.ID)
	if err != nil {
		return domain.Project{}, err
	}
	payload := events.EventPayload{}
	if before.Title != after.Title {
		payload["title"] = after.Title
	}
	if opts.BusinessAreaID != nil {
		payload["business_area_id"] = after.BusinessAreaID
	}
	if err := e.Events.Append(ctx, tx, events.ProjectUpdated, opts.ID, "project", opts.ID, opts.ActorID, payload); err != nil {
		return domain.Project{}, err
	}
	return after, tx.Commit()
}

// AddProjectMember adds or re-roles a member. Only the lead or a superuser may do this.
func (e Engine) AddProjectMember(ctx context.Context, projectID, userID, role, actorID string) (domain.ProjectMember, error) {
	if role == "" {
		role = domain.MemberRoleMember
	}
	if role != domain.MemberRoleLead && role != domain.MemberRoleMember {
		return domain.ProjectMember{}, fmt.Errorf("invalid member role %q", role)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ProjectMember{}, err
	}
	defer tx.Rollback()
	if _, err := e.Repo.GetProject(ctx, tx, projectID); err != nil {
		return domain.ProjectMember{}, err
	}
	if err := e.Auth.RequireProjectRole(ctx, tx, projectID, actorID, domain.RoleLead); err != nil {
		return domain.ProjectMember{}, err
	}
	if _, err := e.Repo.GetUser(ctx, tx, userID); err != nil {
		return domain.ProjectMember{}, fmt.Errorf("user %s: %w", userID, err)
	}
	m := domain.ProjectMember{ProjectID: projectID, UserID: userID, Role: role, CreatedAt: e.stamp()}
	if err := e.Repo.UpsertProjectMember(ctx, tx, m); err != nil {
		return domain.ProjectMember{}, err
	}
	if err := e.Events.Append(ctx, tx, events.ProjectMemberAdded, projectID, "user", userID, actorID, events.EventPayload{"role": role}); err != nil {
		return domain.ProjectMember{}, err
	}
	return m, tx.Commit()
}

// RemoveProjectMember drops a member. The lead cannot be removed; promote
// someone else to lead first.
func (e Engine) RemoveProjectMember(ctx context.Context, projectID, userID, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := e.Repo.GetProject(ctx, tx, projectID); err != nil {
		return err
	}
	if err := e.Auth.RequireProjectRole(ctx, tx, projectID, actorID, domain.RoleLead); err != nil {
		return err
	}
	isLead, err := e.Repo.IsProjectLead(ctx, tx, projectID, userID)
	if err != nil {
		return err
	}
	if isLead {
		return fmt.Errorf("%s leads project %s: %w", userID, projectID, repo.ErrConflict)
	}
	if err := e.Repo.RemoveProjectMember(ctx, tx, projectID, userID); err != nil {
		return fmt.Errorf("member %s: %w", userID, err)
	}
	if err := e.Events.Append(ctx, tx, events.ProjectMemberRemoved, projectID, "user", userID, actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// CreateDocument starts a document of kind for the project at the lead stage.
func (e Engine) CreateDocument(ctx context.Context, projectID string, kind domain.DocumentKind, actorID string) (domain.Document, error) {
	if !kind.Valid() {
		return domain.Document{}, fmt.Errorf("invalid document kind %q", kind)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Document{}, err
	}
	defer tx.Rollback()
	p, err := e.Repo.GetProject(ctx, tx, projectID)
	if err != nil {
		return domain.Document{}, err
	}
	if err := e.Auth.RequireProjectRole(ctx, tx, projectID, actorID, domain.RoleLead); err != nil {
		return domain.Document{}, err
	}
	switch p.Status {
	case domain.ProjectClosed, domain.ProjectTerminated:
		return domain.Document{}, fmt.Errorf("project %s is %s; documents cannot be added", p.ID, p.Status)
	}
	now := e.stamp()
	d, err := e.insertDocument(ctx, tx, p, kind, actorID, now)
	if err != nil {
		return domain.Document{}, err
	}
	return d, tx.Commit()
}

func (e Engine) insertDocument(ctx context.Context, tx *sql.Tx, p domain.Project, kind domain.DocumentKind, actorID, now string) (domain.Document, error) {
	d := domain.Document{
		ID:             uuid.NewString(),
		ProjectID:      p.ID,
		Kind:           kind,
		Stage:          domain.StageLead,
		ApprovalStatus: domain.ApprovalRequired,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := e.Repo.InsertDocument(ctx, tx, d); err != nil {
		return domain.Document{}, err
	}
	if err := e.Events.Append(ctx, tx, events.DocumentCreated, p.ID, "document", d.ID, actorID, events.EventPayload{"kind": kind}); err != nil {
		return domain.Document{}, err
	}
	if kind == domain.KindProjectClosure && p.Status != domain.ProjectClosureRequested {
		if err := e.Repo.SetProjectStatus(ctx, tx, p.ID, domain.ProjectClosureRequested, now); err != nil {
			return domain.Document{}, err
		}
		if err := e.Events.Append(ctx, tx, events.ProjectStatusChanged, p.ID, "project", p.ID, actorID, events.EventPayload{
			"from": p.Status, "to": domain.ProjectClosureRequested,
		}); err != nil {
			return domain.Document{}, err
		}
	}
	return d, nil
}

// ActorContext is what the workflow knows about a user on a project.
type ActorContext struct {
	UserID      string        `json:"user_id"`
	Roles       []domain.Role `json:"roles"`
	IsSuperuser bool          `json:"is_superuser"`
}

func (e Engine) ActorContext(ctx context.Context, projectID, userID string) (ActorContext, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return ActorContext{}, err
	}
	defer tx.Rollback()
	return e.actorContext(ctx, tx, projectID, userID)
}

func (e Engine) actorContext(ctx context.Context, tx *sql.Tx, projectID, userID string) (ActorContext, error) {
	out := ActorContext{UserID: userID}
	su, err := e.Auth.IsSuperuser(ctx, tx, userID)
	if err != nil {
		return out, err
	}
	out.IsSuperuser = su
	if projectID != "" {
		roles, err := e.Auth.ProjectRoles(ctx, tx, projectID, userID)
		if err != nil {
			return out, err
		}
		out.Roles = roles
	}
	return out, nil
}

// CreateAPIKey issues a key for userID. Users may issue their own keys; superusers any.
// The plaintext key is only returned here.
func (e Engine) CreateAPIKey(ctx context.Context, userID, name, actorID string) (string, domain.APIKey, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return "", domain.APIKey{}, err
	}
	defer tx.Rollback()
	if userID != actorID {
		if err := e.Auth.RequireSuperuser(ctx, tx, actorID); err != nil {
			return "", domain.APIKey{}, err
		}
	}
	if _, err := e.Repo.GetUser(ctx, tx, userID); err != nil {
		return "", domain.APIKey{}, fmt.Errorf("user %s: %w", userID, err)
	}
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", domain.APIKey{}, err
	}
	plain := "spms_" + hex.EncodeToString(raw)
	key := domain.APIKey{ID: uuid.NewString(), UserID: userID, Name: name, KeyHash: repo.HashAPIKey(plain), CreatedAt: e.stamp()}
	if err := e.Repo.InsertAPIKey(ctx, tx, key); err != nil {
		return "", domain.APIKey{}, err
	}
	if err := e.Events.Append(ctx, tx, events.APIKeyCreated, "", "api_key", key.ID, actorID, events.EventPayload{"user_id": userID, "name": name}); err != nil {
		return "", domain.APIKey{}, err
	}
	return plain, key, tx.Commit()
}

// RevokeAPIKey deletes a key. Owners may revoke their own keys; superusers any.
func (e Engine) RevokeAPIKey(ctx context.Context, id, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	key, err := e.Repo.GetAPIKey(ctx, tx, id)
	if err != nil {
		return fmt.Errorf("api key %s: %w", id, err)
	}
	if key.UserID != actorID {
		if err := e.Auth.RequireSuperuser(ctx, tx, actorID); err != nil {
			return err
		}
	}
	if err := e.Repo.DeleteAPIKey(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, events.APIKeyRevoked, "", "api_key", id, actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// UpdateConfig validates and stores a new system config. Running engines pick it up
// on their next transition.
func (e Engine) UpdateConfig(ctx context.Context, cfg *config.Config, actorID string) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Auth.RequireSuperuser(ctx, tx, actorID); err != nil {
		return err
	}
	if err := e.Repo.UpsertSystemConfig(ctx, tx, cfg); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, events.ConfigUpdated, "", "config", "system", actorID, events.EventPayload{"webhooks": len(cfg.Webhooks)}); err != nil {
		return err
	}
	return tx.Commit()
}

// CurrentConfig prefers the stored config so updates apply without a restart.
func (e Engine) CurrentConfig(ctx context.Context) *config.Config {
	if cfg, err := e.Repo.GetSystemConfig(ctx); err == nil {
		return cfg
	} else if !errors.Is(err, repo.ErrNotFound) {
		e.logger().Warn("load system config", zap.Error(err))
	}
	if e.Config != nil {
		return e.Config
	}
	return config.Default()
}
