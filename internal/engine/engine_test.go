package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spms/internal/config"
	"spms/internal/db"
	"spms/internal/domain"
	"spms/internal/engine"
	"spms/internal/engine/auth"
	"spms/internal/migrate"
	"spms/internal/notify"
	"spms/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
	Mail   *notify.Recorder
	AreaID string
}

// newTestEnv seeds an administrator, a project lead (lee), a business area led by
// bea and a two-person directorate (dina, dan).
func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	mail := &notify.Recorder{}
	eng := engine.New(conn, config.Default())
	eng.Sender = mail
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	if _, err := eng.Bootstrap(ctx, "admin", "Admin", "admin@example.org"); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	for _, u := range []engine.UserCreateOptions{
		{ID: "lee", DisplayName: "Lee", Email: "lee@example.org"},
		{ID: "bea", DisplayName: "Bea", Email: "bea@example.org"},
		{ID: "dina", DisplayName: "Dina", Email: "dina@example.org"},
		{ID: "dan", DisplayName: "Dan", Email: "dan@example.org"},
		{ID: "otto", DisplayName: "Otto", Email: "otto@example.org"},
	} {
		u.ActorID = "admin"
		if _, err := eng.CreateUser(ctx, u); err != nil {
			t.Fatalf("create user %s: %v", u.ID, err)
		}
	}
	bea := "bea"
	area, err := eng.CreateBusinessArea(ctx, "Ecosystem Science", &bea, "admin")
	if err != nil {
		t.Fatalf("create area: %v", err)
	}
	for _, id := range []string{"dina", "dan"} {
		if err := eng.AddDirectorateMember(ctx, id, "admin"); err != nil {
			t.Fatalf("add directorate %s: %v", id, err)
		}
	}
	return testEnv{Engine: eng, Ctx: ctx, Mail: mail, AreaID: area.ID}
}

// newProject creates a project led by lee in the seeded area with one document of kind.
func (env testEnv) newProject(t *testing.T, id string, kind domain.DocumentKind) domain.Document {
	t.Helper()
	_, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{
		ID:              id,
		Title:           "Project " + id,
		BusinessAreaID:  env.AreaID,
		LeadID:          "lee",
		InitialDocument: kind,
		ActorID:         "admin",
	})
	require.NoError(t, err)
	doc, err := env.Engine.Repo.GetDocumentByKind(env.Ctx, nil, id, kind)
	require.NoError(t, err)
	return doc
}

func (env testEnv) project(t *testing.T, id string) domain.Project {
	t.Helper()
	p, err := env.Engine.Repo.GetProject(env.Ctx, nil, id)
	require.NoError(t, err)
	return p
}

func TestBootstrapOnlyOnce(t *testing.T) {
	env := newTestEnv(t)
	created, err := env.Engine.Bootstrap(env.Ctx, "someone", "", "")
	require.NoError(t, err)
	assert.False(t, created)
}

func TestCreateUserRequiresSuperuser(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateUser(env.Ctx, engine.UserCreateOptions{ID: "eve", ActorID: "lee"})
	var forbidden auth.ForbiddenError
	require.True(t, errors.As(err, &forbidden))

	_, err = env.Engine.CreateUser(env.Ctx, engine.UserCreateOptions{ID: "lee", ActorID: "admin"})
	assert.True(t, errors.Is(err, repo.ErrConflict))
}

func TestUpdateUserSelfService(t *testing.T) {
	env := newTestEnv(t)
	email := "lee@new.example.org"
	u, err := env.Engine.UpdateUser(env.Ctx, engine.UserUpdateOptions{ID: "lee", Email: &email, ActorID: "lee"})
	require.NoError(t, err)
	assert.Equal(t, email, u.Email)

	su := true
	_, err = env.Engine.UpdateUser(env.Ctx, engine.UserUpdateOptions{ID: "lee", IsSuperuser: &su, ActorID: "lee"})
	var forbidden auth.ForbiddenError
	assert.True(t, errors.As(err, &forbidden))
}

func TestProjectRolesAreDerived(t *testing.T) {
	env := newTestEnv(t)
	env.newProject(t, "p1", domain.KindConcept)

	cases := map[string][]domain.Role{
		"lee":   {domain.RoleLead},
		"bea":   {domain.RoleBusinessAreaLead},
		"dina":  {domain.RoleDirectorateMember},
		"admin": {domain.RoleSuperuser},
		"otto":  nil,
	}
	for user, want := range cases {
		actor, err := env.Engine.ActorContext(env.Ctx, "p1", user)
		require.NoError(t, err, user)
		assert.Equal(t, want, actor.Roles, user)
		assert.Equal(t, user == "admin", actor.IsSuperuser, user)
	}
}

func TestCreateProjectDefaults(t *testing.T) {
	env := newTestEnv(t)
	p, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{Title: "Mine", ActorID: "lee"})
	require.NoError(t, err)
	assert.Equal(t, domain.ProjectNew, p.Status)
	assert.Equal(t, "science", p.Kind)
	assert.Nil(t, p.BusinessAreaID)

	lead, err := env.Engine.Repo.ProjectLead(env.Ctx, nil, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "lee", lead.ID)

	_, err = env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{Title: "x", ActorID: "ghost"})
	var forbidden auth.ForbiddenError
	assert.True(t, errors.As(err, &forbidden))

	_, err = env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{Title: "x", LeadID: "bea", ActorID: "lee"})
	assert.True(t, errors.As(err, &forbidden))
}

func TestCreateDocumentRules(t *testing.T) {
	env := newTestEnv(t)
	env.newProject(t, "p1", domain.KindConcept)

	_, err := env.Engine.CreateDocument(env.Ctx, "p1", domain.KindConcept, "lee")
	assert.True(t, errors.Is(err, repo.ErrConflict))

	_, err = env.Engine.CreateDocument(env.Ctx, "p1", domain.KindProgressReport, "otto")
	var forbidden auth.ForbiddenError
	assert.True(t, errors.As(err, &forbidden))

	closure, err := env.Engine.CreateDocument(env.Ctx, "p1", domain.KindProjectClosure, "lee")
	require.NoError(t, err)
	assert.Equal(t, domain.StageLead, closure.Stage)
	assert.Equal(t, domain.ApprovalRequired, closure.ApprovalStatus)
	assert.Equal(t, domain.ProjectClosureRequested, env.project(t, "p1").Status)

	_, err = env.Engine.SetProjectStatus(env.Ctx, "p1", domain.ProjectTerminated, "admin")
	require.NoError(t, err)
	_, err = env.Engine.CreateDocument(env.Ctx, "p1", domain.KindProgressReport, "lee")
	assert.Error(t, err)
}

func TestAddProjectMember(t *testing.T) {
	env := newTestEnv(t)
	env.newProject(t, "p1", domain.KindConcept)
	m, err := env.Engine.AddProjectMember(env.Ctx, "p1", "otto", "", "lee")
	require.NoError(t, err)
	assert.Equal(t, domain.MemberRoleMember, m.Role)

	_, err = env.Engine.AddProjectMember(env.Ctx, "p1", "dan", "", "otto")
	var forbidden auth.ForbiddenError
	assert.True(t, errors.As(err, &forbidden))

	_, err = env.Engine.AddProjectMember(env.Ctx, "p1", "dan", "owner", "lee")
	assert.Error(t, err)
}

func TestRemoveProjectMember(t *testing.T) {
	env := newTestEnv(t)
	env.newProject(t, "p1", domain.KindConcept)
	_, err := env.Engine.AddProjectMember(env.Ctx, "p1", "otto", "", "lee")
	require.NoError(t, err)

	var forbidden auth.ForbiddenError
	assert.True(t, errors.As(env.Engine.RemoveProjectMember(env.Ctx, "p1", "otto", "dan"), &forbidden))
	assert.ErrorIs(t, env.Engine.RemoveProjectMember(env.Ctx, "p1", "lee", "admin"), repo.ErrConflict)
	require.NoError(t, env.Engine.RemoveProjectMember(env.Ctx, "p1", "otto", "lee"))
	assert.ErrorIs(t, env.Engine.RemoveProjectMember(env.Ctx, "p1", "otto", "lee"), repo.ErrNotFound)

	members, err := env.Engine.Repo.ListProjectMembers(env.Ctx, nil, "p1")
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "lee", members[0].UserID)
}

func TestUpdateProjectMovesBusinessArea(t *testing.T) {
	env := newTestEnv(t)
	env.newProject(t, "p1", domain.KindConcept)

	title := "Renamed"
	p, err := env.Engine.UpdateProject(env.Ctx, engine.ProjectUpdateOptions{ID: "p1", Title: &title, ActorID: "lee"})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", p.Title)
	require.NotNil(t, p.BusinessAreaID)

	ghost := "ghost"
	_, err = env.Engine.UpdateProject(env.Ctx, engine.ProjectUpdateOptions{ID: "p1", BusinessAreaID: &ghost, ActorID: "lee"})
	assert.ErrorIs(t, err, repo.ErrNotFound)

	_, err = env.Engine.UpdateProject(env.Ctx, engine.ProjectUpdateOptions{ID: "p1", Title: &title, ActorID: "otto"})
	var forbidden auth.ForbiddenError
	assert.True(t, errors.As(err, &forbidden))

	detach := ""
	p, err = env.Engine.UpdateProject(env.Ctx, engine.ProjectUpdateOptions{ID: "p1", BusinessAreaID: &detach, ActorID: "lee"})
	require.NoError(t, err)
	assert.Nil(t, p.BusinessAreaID)

	actor, err := env.Engine.ActorContext(env.Ctx, "p1", "bea")
	require.NoError(t, err)
	assert.Empty(t, actor.Roles)
}

func TestBusinessAreaLeaderCanBeCleared(t *testing.T) {
	env := newTestEnv(t)
	a, err := env.Engine.SetBusinessAreaLeader(env.Ctx, env.AreaID, nil, "admin")
	require.NoError(t, err)
	assert.Nil(t, a.LeaderID)

	ghost := "ghost"
	_, err = env.Engine.SetBusinessAreaLeader(env.Ctx, env.AreaID, &ghost, "admin")
	assert.True(t, errors.Is(err, repo.ErrNotFound))
}

func TestAPIKeyLifecycle(t *testing.T) {
	env := newTestEnv(t)
	plain, key, err := env.Engine.CreateAPIKey(env.Ctx, "lee", "laptop", "lee")
	require.NoError(t, err)
	assert.Contains(t, plain, "spms_")

	found, err := env.Engine.Repo.GetAPIKeyByHash(env.Ctx, repo.HashAPIKey(plain))
	require.NoError(t, err)
	assert.Equal(t, key.ID, found.ID)
	assert.Equal(t, "lee", found.UserID)

	_, _, err = env.Engine.CreateAPIKey(env.Ctx, "bea", "", "lee")
	var forbidden auth.ForbiddenError
	assert.True(t, errors.As(err, &forbidden))

	assert.True(t, errors.As(env.Engine.RevokeAPIKey(env.Ctx, key.ID, "bea"), &forbidden))
	require.NoError(t, env.Engine.RevokeAPIKey(env.Ctx, key.ID, "admin"))
	assert.ErrorIs(t, env.Engine.RevokeAPIKey(env.Ctx, key.ID, "lee"), repo.ErrNotFound)
	_, err = env.Engine.Repo.GetAPIKeyByHash(env.Ctx, repo.HashAPIKey(plain))
	assert.True(t, errors.Is(err, repo.ErrNotFound))
}

func TestUpdateConfigIsPickedUp(t *testing.T) {
	env := newTestEnv(t)
	cfg := config.Default()
	cfg.Notifications.Templates["approve"] = "custom_approved"
	require.Error(t, env.Engine.UpdateConfig(env.Ctx, cfg, "lee"))
	require.NoError(t, env.Engine.UpdateConfig(env.Ctx, cfg, "admin"))

	doc := env.newProject(t, "p1", domain.KindConcept)
	_, err := env.Engine.Transition(env.Ctx, engine.TransitionRequest{DocumentID: doc.ID, Action: domain.ActionApprove, ActorID: "lee"})
	require.NoError(t, err)
	msgs := env.Mail.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "custom_approved", msgs[0].TemplateID)
}

func TestEventsRecorded(t *testing.T) {
	env := newTestEnv(t)
	env.newProject(t, "p1", domain.KindConcept)
	evs, err := env.Engine.Repo.LatestEvents(env.Ctx, repo.EventFilters{ProjectID: "p1"})
	require.NoError(t, err)
	var types []string
	for _, e := range evs {
		types = append(types, e.Type)
	}
	assert.Contains(t, types, "project.created")
	assert.Contains(t, types, "document.created")
}
