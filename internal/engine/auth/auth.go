package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"spms/internal/domain"
	"spms/internal/repo"
)

// ForbiddenError indicates the actor lacks a required relation.
type ForbiddenError struct {
	Requirement string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("%s required", e.Requirement)
}

// Service resolves an actor's relations to projects from the database.
type Service struct {
	Repo repo.Repo
}

// IsSuperuser reports whether the user carries the superuser flag. Unknown users are not.
func (s Service) IsSuperuser(ctx context.Context, tx *sql.Tx, userID string) (bool, error) {
	if userID == "" {
		return false, nil
	}
	u, err := s.Repo.GetUser(ctx, tx, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return u.IsSuperuser, nil
}

// ProjectRoles derives every relation userID has to projectID.
func (s Service) ProjectRoles(ctx context.Context, tx *sql.Tx, projectID, userID string) ([]domain.Role, error) {
	if userID == "" {
		return nil, nil
	}
	var roles []domain.Role
	lead, err := s.Repo.IsProjectLead(ctx, tx, projectID, userID)
	if err != nil {
		return nil, err
	}
	if lead {
		roles = append(roles, domain.RoleLead)
	}
	ba, err := s.Repo.IsBusinessAreaLead(ctx, tx, projectID, userID)
	if err != nil {
		return nil, err
	}
	if ba {
		roles = append(roles, domain.RoleBusinessAreaLead)
	}
	dir, err := s.Repo.IsDirectorateMember(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if dir {
		roles = append(roles, domain.RoleDirectorateMember)
	}
	su, err := s.IsSuperuser(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if su {
		roles = append(roles, domain.RoleSuperuser)
	}
	return roles, nil
}

// RequireSuperuser returns ForbiddenError unless userID is a superuser.
func (s Service) RequireSuperuser(ctx context.Context, tx *sql.Tx, userID string) error {
	ok, err := s.IsSuperuser(ctx, tx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ForbiddenError{Requirement: "administrator"}
	}
	return nil
}

// RequireProjectRole passes superusers and actors holding any of roles on the project.
func (s Service) RequireProjectRole(ctx context.Context, tx *sql.Tx, projectID, userID string, roles ...domain.Role) error {
	held, err := s.ProjectRoles(ctx, tx, projectID, userID)
	if err != nil {
		return err
	}
	for _, h := range held {
		if h == domain.RoleSuperuser {
			return nil
		}
		for _, want := range roles {
			if h == want {
				return nil
			}
		}
	}
	req := "project role"
	if len(roles) > 0 {
		req = roles[0].Label()
	}
	return ForbiddenError{Requirement: req}
}
