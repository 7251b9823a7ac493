package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"spms/internal/domain"
	"spms/internal/events"
)

const documentColumns = `id,project_id,kind,stage,approval_status,version,created_at,updated_at`

func scanDocument(row rowScanner) (domain.Document, error) {
	var d domain.Document
	err := row.Scan(&d.ID, &d.ProjectID, &d.Kind, &d.Stage, &d.ApprovalStatus, &d.Version, &d.CreatedAt, &d.UpdatedAt)
	if err == sql.ErrNoRows {
		return d, ErrNotFound
	}
	return d, err
}

func (r Repo) InsertDocument(ctx context.Context, tx *sql.Tx, d domain.Document) error {
	if d.Version == 0 {
		d.Version = 1
	}
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO documents(`+documentColumns+`) VALUES (?,?,?,?,?,?,?,?)`,
		d.ID, d.ProjectID, d.Kind, d.Stage, d.ApprovalStatus, d.Version, d.CreatedAt, d.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("project %s already has a %s document: %w", d.ProjectID, d.Kind, ErrConflict)
	}
	return err
}

// LoadDocument reads a document inside the caller's transaction.
func (r Repo) LoadDocument(ctx context.Context, tx *sql.Tx, id string) (domain.Document, error) {
	return scanDocument(r.q(tx).QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id=?`, id))
}

func (r Repo) GetDocument(ctx context.Context, id string) (domain.Document, error) {
	return r.LoadDocument(ctx, nil, id)
}

func (r Repo) GetDocumentByKind(ctx context.Context, tx *sql.Tx, projectID string, kind domain.DocumentKind) (domain.Document, error) {
	return scanDocument(r.q(tx).QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE project_id=? AND kind=?`, projectID, kind))
}

type DocumentFilters struct {
	ProjectID      string
	Kind           string
	Stage          int
	ApprovalStatus string
	Limit          int
	CursorCreated  string
	CursorID       string
}

func (r Repo) ListDocuments(ctx context.Context, f DocumentFilters) ([]domain.Document, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.ProjectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, f.ProjectID)
	}
	if f.Kind != "" {
		clauses = append(clauses, "kind=?")
		args = append(args, f.Kind)
	}
	if f.Stage > 0 {
		clauses = append(clauses, "stage=?")
		args = append(args, f.Stage)
	}
	if f.ApprovalStatus != "" {
		clauses = append(clauses, "approval_status=?")
		args = append(args, f.ApprovalStatus)
	}
	if f.CursorCreated != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreated, f.CursorCreated, f.CursorID)
	}
	query := `SELECT ` + documentColumns + ` FROM documents WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

// SaveDocumentTransition applies t only if the stored version still equals t.FromVersion.
// It returns the new version, or ErrStaleVersion when another writer got there first.
func (r Repo) SaveDocumentTransition(ctx context.Context, tx *sql.Tx, t domain.DocumentTransition) (int64, error) {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE documents SET stage=?, approval_status=?, version=version+1, updated_at=?
WHERE id=? AND version=?`, t.Stage, t.ApprovalStatus, t.UpdatedAt, t.DocumentID, t.FromVersion)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, fmt.Errorf("document %s at version %d: %w", t.DocumentID, t.FromVersion, ErrStaleVersion)
	}
	return t.FromVersion + 1, nil
}

// DeleteDocument removes a document only if it is still at version.
func (r Repo) DeleteDocument(ctx context.Context, tx *sql.Tx, id string, version int64) error {
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM documents WHERE id=? AND version=?`, id, version)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("document %s at version %d: %w", id, version, ErrStaleVersion)
	}
	return nil
}

// CreateSuccessorDocument starts the next document of kind for the project.
// An existing document of that kind is returned as is with created=false.
func (r Repo) CreateSuccessorDocument(ctx context.Context, tx *sql.Tx, projectID string, kind domain.DocumentKind, now string) (domain.Document, bool, error) {
	existing, err := r.GetDocumentByKind(ctx, tx, projectID, kind)
	if err == nil {
		return existing, false, nil
	}
	if err != ErrNotFound {
		return domain.Document{}, false, err
	}
	d := domain.Document{
		ID:             uuid.NewString(),
		ProjectID:      projectID,
		Kind:           kind,
		Stage:          domain.StageLead,
		ApprovalStatus: domain.ApprovalRequired,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := r.InsertDocument(ctx, tx, d); err != nil {
		return domain.Document{}, false, err
	}
	return d, true, nil
}

// ApprovalEffects reads back from the event log what the latest final approval
// of documentID did to its project.
func (r Repo) ApprovalEffects(ctx context.Context, tx *sql.Tx, projectID, documentID string) (domain.ApprovalEffects, error) {
	var fx domain.ApprovalEffects
	var succ sql.NullString
	err := r.q(tx).QueryRowContext(ctx, `SELECT entity_id FROM events
WHERE project_id=? AND type=? AND json_extract(payload_json,'$.predecessor_id')=?
ORDER BY id DESC LIMIT 1`, projectID, events.DocumentSuccessor, documentID).Scan(&succ)
	if err != nil && err != sql.ErrNoRows {
		return fx, err
	}
	fx.SuccessorID = succ.String

	var from, to sql.NullString
	err = r.q(tx).QueryRowContext(ctx, `SELECT json_extract(payload_json,'$.from'), json_extract(payload_json,'$.to') FROM events
WHERE project_id=? AND type=? AND json_extract(payload_json,'$.document_id')=?
ORDER BY id DESC LIMIT 1`, projectID, events.ProjectStatusChanged, documentID).Scan(&from, &to)
	if err != nil && err != sql.ErrNoRows {
		return fx, err
	}
	fx.StatusFrom = domain.ProjectStatus(from.String)
	fx.StatusTo = domain.ProjectStatus(to.String)
	return fx, nil
}

func (r Repo) AppendFeedback(ctx context.Context, tx *sql.Tx, f domain.Feedback) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO document_feedback(id,document_id,project_id,stage,action,author_id,html,created_at) VALUES (?,?,?,?,?,?,?,?)`,
		f.ID, f.DocumentID, f.ProjectID, f.Stage, f.Action, f.AuthorID, f.HTML, f.CreatedAt)
	return err
}

func (r Repo) ListFeedback(ctx context.Context, documentID string) ([]domain.Feedback, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,document_id,project_id,stage,action,author_id,html,created_at
FROM document_feedback WHERE document_id=? ORDER BY created_at, id`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Feedback
	for rows.Next() {
		var f domain.Feedback
		if err := rows.Scan(&f.ID, &f.DocumentID, &f.ProjectID, &f.Stage, &f.Action, &f.AuthorID, &f.HTML, &f.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, f)
	}
	return res, rows.Err()
}
