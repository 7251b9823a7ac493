package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"spms/internal/domain"
)

const projectColumns = `id,title,kind,status,business_area_id,created_at,updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (domain.Project, error) {
	var p domain.Project
	var area sql.NullString
	err := row.Scan(&p.ID, &p.Title, &p.Kind, &p.Status, &area, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	p.BusinessAreaID = stringPtr(area)
	return p, err
}

func (r Repo) InsertProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO projects(`+projectColumns+`) VALUES (?,?,?,?,?,?,?)`,
		p.ID, p.Title, p.Kind, p.Status, nullableStringPtr(p.BusinessAreaID), p.CreatedAt, p.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("project %s: %w", p.ID, ErrConflict)
	}
	return err
}

func (r Repo) GetProject(ctx context.Context, tx *sql.Tx, id string) (domain.Project, error) {
	return scanProject(r.q(tx).QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=?`, id))
}

// LoadProject is GetProject inside a transition transaction.
func (r Repo) LoadProject(ctx context.Context, tx *sql.Tx, id string) (domain.Project, error) {
	return r.GetProject(ctx, tx, id)
}

type ProjectFilters struct {
	Status         string
	BusinessAreaID string
	MemberID       string
	Limit          int
	CursorCreated  string
	CursorID       string
}

func (r Repo) ListProjects(ctx context.Context, f ProjectFilters) ([]domain.Project, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.BusinessAreaID != "" {
		clauses = append(clauses, "business_area_id=?")
		args = append(args, f.BusinessAreaID)
	}
	if f.MemberID != "" {
		clauses = append(clauses, "id IN (SELECT project_id FROM project_members WHERE user_id=?)")
		args = append(args, f.MemberID)
	}
	if f.CursorCreated != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreated, f.CursorCreated, f.CursorID)
	}
	query := `SELECT ` + projectColumns + ` FROM projects WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) SetProjectStatus(ctx context.Context, tx *sql.Tx, id string, status domain.ProjectStatus, now string) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE projects SET status=?, updated_at=? WHERE id=?`, status, now, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CloseProject marks the project closed after its closure document passes the directorate.
func (r Repo) CloseProject(ctx context.Context, tx *sql.Tx, id, now string) error {
	return r.SetProjectStatus(ctx, tx, id, domain.ProjectClosed, now)
}

// ReopenProject moves a project out of closure into status.
func (r Repo) ReopenProject(ctx context.Context, tx *sql.Tx, id string, status domain.ProjectStatus, now string) error {
	return r.SetProjectStatus(ctx, tx, id, status, now)
}

func (r Repo) UpdateProject(ctx context.Context, tx *sql.Tx, id string, title *string, areaID *string, now string) error {
	var (
		fields []string
		args   []any
	)
	if title != nil {
		fields = append(fields, "title=?")
		args = append(args, *title)
	}
	if areaID != nil {
		fields = append(fields, "business_area_id=?")
		args = append(args, nullableStringPtr(areaID))
	}
	if len(fields) == 0 {
		return nil
	}
	fields = append(fields, "updated_at=?")
	args = append(args, now, id)
	res, err := r.q(tx).ExecContext(ctx, fmt.Sprintf(`UPDATE projects SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) UpsertProjectMember(ctx context.Context, tx *sql.Tx, m domain.ProjectMember) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO project_members(project_id,user_id,role,created_at) VALUES (?,?,?,?)
ON CONFLICT(project_id,user_id) DO UPDATE SET role=excluded.role`, m.ProjectID, m.UserID, m.Role, m.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("project %s already has a lead: %w", m.ProjectID, ErrConflict)
	}
	return err
}

func (r Repo) RemoveProjectMember(ctx context.Context, tx *sql.Tx, projectID, userID string) error {
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM project_members WHERE project_id=? AND user_id=?`, projectID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListProjectMembers(ctx context.Context, tx *sql.Tx, projectID string) ([]domain.ProjectMember, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT project_id,user_id,role,created_at FROM project_members WHERE project_id=? ORDER BY role='lead' DESC, created_at, user_id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ProjectMember
	for rows.Next() {
		var m domain.ProjectMember
		if err := rows.Scan(&m.ProjectID, &m.UserID, &m.Role, &m.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

// ProjectLead returns the lead member, or ErrNotFound.
func (r Repo) ProjectLead(ctx context.Context, tx *sql.Tx, projectID string) (domain.User, error) {
	row := r.q(tx).QueryRowContext(ctx, `SELECT `+userColumnsPrefixed("u")+` FROM users u
JOIN project_members m ON m.user_id=u.id WHERE m.project_id=? AND m.role='lead'`, projectID)
	return scanUser(row)
}
