package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"spms/internal/domain"
)

const userColumns = `id,display_name,COALESCE(email,''),is_superuser,created_at`

func userColumnsPrefixed(alias string) string {
	return fmt.Sprintf(`%[1]s.id,%[1]s.display_name,COALESCE(%[1]s.email,''),%[1]s.is_superuser,%[1]s.created_at`, alias)
}

func scanUser(row rowScanner) (domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.DisplayName, &u.Email, &u.IsSuperuser, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	return u, err
}

func scanUsers(rows *sql.Rows) ([]domain.User, error) {
	defer rows.Close()
	var res []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

func (r Repo) InsertUser(ctx context.Context, tx *sql.Tx, u domain.User) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO users(id,display_name,email,is_superuser,created_at) VALUES (?,?,?,?,?)`,
		u.ID, u.DisplayName, nullable(strings.TrimSpace(u.Email)), u.IsSuperuser, u.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("user %s: %w", u.ID, ErrConflict)
	}
	return err
}

// EnsureUser inserts the user if missing and leaves an existing row untouched.
func (r Repo) EnsureUser(ctx context.Context, tx *sql.Tx, u domain.User) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT OR IGNORE INTO users(id,display_name,email,is_superuser,created_at) VALUES (?,?,?,?,?)`,
		u.ID, u.DisplayName, nullable(strings.TrimSpace(u.Email)), u.IsSuperuser, u.CreatedAt)
	return err
}

func (r Repo) GetUser(ctx context.Context, tx *sql.Tx, id string) (domain.User, error) {
	return scanUser(r.q(tx).QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id))
}

func (r Repo) UpdateUser(ctx context.Context, tx *sql.Tx, id string, displayName, email *string, superuser *bool) error {
	var (
		fields []string
		args   []any
	)
	if displayName != nil {
		fields = append(fields, "display_name=?")
		args = append(args, *displayName)
	}
	if email != nil {
		fields = append(fields, "email=?")
		args = append(args, nullable(strings.TrimSpace(*email)))
	}
	if superuser != nil {
		fields = append(fields, "is_superuser=?")
		args = append(args, *superuser)
	}
	if len(fields) == 0 {
		return nil
	}
	args = append(args, id)
	res, err := r.q(tx).ExecContext(ctx, fmt.Sprintf(`UPDATE users SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if isUniqueViolation(err) {
		return fmt.Errorf("user %s email: %w", id, ErrConflict)
	}
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY display_name, id`)
	if err != nil {
		return nil, err
	}
	return scanUsers(rows)
}

func (r Repo) CountUsers(ctx context.Context) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM users`).Scan(&n)
	return n, err
}

func (r Repo) InsertBusinessArea(ctx context.Context, tx *sql.Tx, a domain.BusinessArea) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO business_areas(id,name,leader_id,created_at) VALUES (?,?,?,?)`,
		a.ID, a.Name, nullableStringPtr(a.LeaderID), a.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("business area %s: %w", a.Name, ErrConflict)
	}
	return err
}

func (r Repo) GetBusinessArea(ctx context.Context, tx *sql.Tx, id string) (domain.BusinessArea, error) {
	var a domain.BusinessArea
	var leader sql.NullString
	err := r.q(tx).QueryRowContext(ctx, `SELECT id,name,leader_id,created_at FROM business_areas WHERE id=?`, id).
		Scan(&a.ID, &a.Name, &leader, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	a.LeaderID = stringPtr(leader)
	return a, err
}

func (r Repo) SetBusinessAreaLeader(ctx context.Context, tx *sql.Tx, areaID string, leaderID *string) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE business_areas SET leader_id=? WHERE id=?`, nullableStringPtr(leaderID), areaID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListBusinessAreas(ctx context.Context) ([]domain.BusinessArea, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,leader_id,created_at FROM business_areas ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.BusinessArea
	for rows.Next() {
		var a domain.BusinessArea
		var leader sql.NullString
		if err := rows.Scan(&a.ID, &a.Name, &leader, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.LeaderID = stringPtr(leader)
		res = append(res, a)
	}
	return res, rows.Err()
}

func (r Repo) AddDirectorateMember(ctx context.Context, tx *sql.Tx, userID, now string) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT OR IGNORE INTO directorate_members(user_id,created_at) VALUES (?,?)`, userID, now)
	return err
}

func (r Repo) RemoveDirectorateMember(ctx context.Context, tx *sql.Tx, userID string) error {
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM directorate_members WHERE user_id=?`, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListDirectorate(ctx context.Context, tx *sql.Tx) ([]domain.User, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT `+userColumnsPrefixed("u")+` FROM users u
JOIN directorate_members d ON d.user_id=u.id ORDER BY u.display_name, u.id`)
	if err != nil {
		return nil, err
	}
	return scanUsers(rows)
}

func (r Repo) IsDirectorateMember(ctx context.Context, tx *sql.Tx, userID string) (bool, error) {
	var n int
	err := r.q(tx).QueryRowContext(ctx, `SELECT count(*) FROM directorate_members WHERE user_id=?`, userID).Scan(&n)
	return n > 0, err
}

func (r Repo) IsProjectLead(ctx context.Context, tx *sql.Tx, projectID, userID string) (bool, error) {
	var n int
	err := r.q(tx).QueryRowContext(ctx, `SELECT count(*) FROM project_members WHERE project_id=? AND user_id=? AND role='lead'`, projectID, userID).Scan(&n)
	return n > 0, err
}

// IsBusinessAreaLead reports whether userID leads the business area the project belongs to.
func (r Repo) IsBusinessAreaLead(ctx context.Context, tx *sql.Tx, projectID, userID string) (bool, error) {
	var n int
	err := r.q(tx).QueryRowContext(ctx, `SELECT count(*) FROM projects p JOIN business_areas a ON a.id=p.business_area_id
WHERE p.id=? AND a.leader_id=?`, projectID, userID).Scan(&n)
	return n > 0, err
}

// BusinessAreaLead returns the leader of the project's business area, or ErrNotFound.
func (r Repo) BusinessAreaLead(ctx context.Context, tx *sql.Tx, projectID string) (domain.User, error) {
	row := r.q(tx).QueryRowContext(ctx, `SELECT `+userColumnsPrefixed("u")+` FROM users u
JOIN business_areas a ON a.leader_id=u.id JOIN projects p ON p.business_area_id=a.id WHERE p.id=?`, projectID)
	return scanUser(row)
}

// LoadRecipients collects the contacts a project's document notifications can reach.
func (r Repo) LoadRecipients(ctx context.Context, tx *sql.Tx, projectID string) (domain.Recipients, error) {
	var out domain.Recipients
	lead, err := r.ProjectLead(ctx, tx, projectID)
	switch {
	case err == nil:
		c := lead.Contact()
		out.Lead = &c
	case err != ErrNotFound:
		return out, fmt.Errorf("project lead: %w", err)
	}
	ba, err := r.BusinessAreaLead(ctx, tx, projectID)
	switch {
	case err == nil:
		c := ba.Contact()
		out.BusinessAreaLead = &c
	case err != ErrNotFound:
		return out, fmt.Errorf("business area lead: %w", err)
	}
	roster, err := r.ListDirectorate(ctx, tx)
	if err != nil {
		return out, fmt.Errorf("directorate: %w", err)
	}
	for _, u := range roster {
		out.Directorate = append(out.Directorate, u.Contact())
	}
	return out, nil
}
