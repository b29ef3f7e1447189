package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"inspectionDispatch/models"
)

// AssignmentRepository persists assignments. Conditional writes take the
// status the caller last observed so concurrent transitions cannot be lost.
type AssignmentRepository struct {
	db DBTX
}

func NewAssignmentRepository(db DBTX) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

func (r *AssignmentRepository) WithTx(tx *sql.Tx) *AssignmentRepository {
	return &AssignmentRepository{db: tx}
}

const assignmentColumns = `id, request_id, inspector_id, status, assigned_at, decline_reason, notes, inspection_start_time, inspection_end_time, updated_at`

// activeStatusArgs renders the non-terminal statuses for an IN (...) clause.
func activeStatusArgs() (string, []any) {
	ph := make([]string, len(models.ActiveAssignmentStatuses))
	args := make([]any, len(models.ActiveAssignmentStatuses))
	for i, s := range models.ActiveAssignmentStatuses {
		ph[i] = "?"
		args[i] = string(s)
	}
	return strings.Join(ph, ","), args
}

// Create inserts an assignment. A second active assignment for the same request
// fails with a unique violation (see IsUniqueViolation).
func (r *AssignmentRepository) Create(ctx context.Context, a *models.Assignment) (*models.Assignment, error) {
	if a == nil {
		return nil, errors.New("assignment is nil")
	}
	if a.Status == "" {
		a.Status = models.AssignmentStatusAssigned
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	res, err := r.db.ExecContext(ctx, `INSERT INTO assignments (request_id, inspector_id, status, assigned_at, decline_reason, notes, inspection_start_time, inspection_end_time, updated_at) VALUES (?,?,?,?,?,?,?,?,?)`,
		a.RequestID, a.InspectorID, string(a.Status), formatTime(a.AssignedAt), a.DeclineReason, a.Notes,
		formatTimePtr(a.InspectionStartTime), formatTimePtr(a.InspectionEndTime), formatTime(a.UpdatedAt))
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	a.ID = id
	return a, nil
}

// GetByID fetches an assignment by its ID.
func (r *AssignmentRepository) GetByID(ctx context.Context, id int64) (*models.Assignment, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	a, err := scanAssignment(r.db.QueryRowContext(ctx, `SELECT `+assignmentColumns+` FROM assignments WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return a, nil
}

// FindActiveByRequest returns the non-terminal assignment of a request, if any.
func (r *AssignmentRepository) FindActiveByRequest(ctx context.Context, requestID int64) (*models.Assignment, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	in, args := activeStatusArgs()
	args = append([]any{requestID}, args...)
	a, err := scanAssignment(r.db.QueryRowContext(ctx,
		`SELECT `+assignmentColumns+` FROM assignments WHERE request_id = ? AND status IN (`+in+`) ORDER BY id DESC LIMIT 1`, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return a, nil
}

// CountActiveByInspector counts non-terminal assignments held by an inspector,
// ignoring excludeID (pass 0 to count all).
func (r *AssignmentRepository) CountActiveByInspector(ctx context.Context, inspectorID, excludeID int64) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	in, args := activeStatusArgs()
	args = append([]any{inspectorID, excludeID}, args...)
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM assignments WHERE inspector_id = ? AND id <> ? AND status IN (`+in+`)`, args...).Scan(&n)
	return n, err
}

// UpdateIfStatus writes status, reason, notes and timestamps only when the row
// still has status `from`. Returns ErrStaleWrite otherwise.
func (r *AssignmentRepository) UpdateIfStatus(ctx context.Context, a *models.Assignment, from models.AssignmentStatus) error {
	if a == nil {
		return errors.New("assignment is nil")
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	res, err := r.db.ExecContext(ctx, `
UPDATE assignments SET status = ?, decline_reason = ?, notes = ?, inspection_start_time = ?, inspection_end_time = ?, updated_at = ?
WHERE id = ? AND status = ?`,
		string(a.Status), a.DeclineReason, a.Notes, formatTimePtr(a.InspectionStartTime), formatTimePtr(a.InspectionEndTime),
		formatTime(a.UpdatedAt), a.ID, string(from))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrStaleWrite
	}
	return nil
}

// Delete removes an assignment. When status is non-empty the row is only
// removed if it still has that status; ErrStaleWrite is returned otherwise.
func (r *AssignmentRepository) Delete(ctx context.Context, id int64, status models.AssignmentStatus) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	var res sql.Result
	var err error
	if status == "" {
		res, err = r.db.ExecContext(ctx, `DELETE FROM assignments WHERE id = ?`, id)
	} else {
		res, err = r.db.ExecContext(ctx, `DELETE FROM assignments WHERE id = ? AND status = ?`, id, string(status))
	}
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrStaleWrite
	}
	return nil
}

// ListByInspector returns an inspector's assignments, newest first.
// activeOnly restricts the result to non-terminal statuses.
func (r *AssignmentRepository) ListByInspector(ctx context.Context, inspectorID int64, activeOnly bool) ([]models.Assignment, error) {
	ctx, cancel := context.WithTimeout(ctx, listTimeout)
	defer cancel()
	query := `SELECT ` + assignmentColumns + ` FROM assignments WHERE inspector_id = ?`
	args := []any{inspectorID}
	if activeOnly {
		in, st := activeStatusArgs()
		query += ` AND status IN (` + in + `)`
		args = append(args, st...)
	}
	query += ` ORDER BY assigned_at DESC, id DESC`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func scanAssignment(s rowScanner) (*models.Assignment, error) {
	var a models.Assignment
	var status, assignedAt, updatedAt string
	var reason, notes, start, end sql.NullString
	if err := s.Scan(&a.ID, &a.RequestID, &a.InspectorID, &status, &assignedAt, &reason, &notes, &start, &end, &updatedAt); err != nil {
		return nil, err
	}
	a.Status = models.AssignmentStatus(status)
	a.DeclineReason = nullString(reason)
	a.Notes = nullString(notes)
	var err error
	if a.AssignedAt, err = parseTime(assignedAt); err != nil {
		return nil, fmt.Errorf("assignment %d assigned_at: %w", a.ID, err)
	}
	if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("assignment %d updated_at: %w", a.ID, err)
	}
	if a.InspectionStartTime, err = parseNullTime(start); err != nil {
		return nil, fmt.Errorf("assignment %d start: %w", a.ID, err)
	}
	if a.InspectionEndTime, err = parseNullTime(end); err != nil {
		return nil, fmt.Errorf("assignment %d end: %w", a.ID, err)
	}
	return &a, nil
}
