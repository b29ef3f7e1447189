package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"inspectionDispatch/models"
)

// LocationRepository stores the one InspectorLocation row per inspector.
type LocationRepository struct {
	db DBTX
}

func NewLocationRepository(db DBTX) *LocationRepository {
	return &LocationRepository{db: db}
}

func (r *LocationRepository) WithTx(tx *sql.Tx) *LocationRepository {
	return &LocationRepository{db: tx}
}

const locationColumns = `inspector_id, lat, lng, address, region, status, updated_at`

// Upsert creates or replaces the inspector's location row.
func (r *LocationRepository) Upsert(ctx context.Context, l *models.InspectorLocation) error {
	if l == nil {
		return errors.New("location is nil")
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	_, err := r.db.ExecContext(ctx, `
INSERT INTO inspector_locations (inspector_id, lat, lng, address, region, status, updated_at)
VALUES (?,?,?,?,?,?,?)
ON CONFLICT(inspector_id) DO UPDATE SET
  lat = excluded.lat,
  lng = excluded.lng,
  address = excluded.address,
  region = excluded.region,
  status = excluded.status,
  updated_at = excluded.updated_at`,
		l.InspectorID, l.Lat, l.Lng, l.Address, l.Region, string(l.Status), formatTime(l.UpdatedAt))
	return err
}

// GetByInspectorID fetches the location of an inspector.
func (r *LocationRepository) GetByInspectorID(ctx context.Context, inspectorID int64) (*models.InspectorLocation, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	row := r.db.QueryRowContext(ctx, `SELECT `+locationColumns+` FROM inspector_locations WHERE inspector_id = ?`, inspectorID)
	l, err := scanLocation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return l, nil
}

// UpdateStatus sets the status and refreshes updated_at.
// Returns sql.ErrNoRows when the inspector has no location row.
func (r *LocationRepository) UpdateStatus(ctx context.Context, inspectorID int64, status models.LocationStatus, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	res, err := r.db.ExecContext(ctx, `UPDATE inspector_locations SET status = ?, updated_at = ? WHERE inspector_id = ?`,
		string(status), formatTime(at), inspectorID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Snap moves the inspector to a site, overwriting coordinates, address and region.
func (r *LocationRepository) Snap(ctx context.Context, inspectorID int64, lat, lng float64, address, region string, status models.LocationStatus, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	res, err := r.db.ExecContext(ctx, `UPDATE inspector_locations SET lat = ?, lng = ?, address = ?, region = ?, status = ?, updated_at = ? WHERE inspector_id = ?`,
		lat, lng, address, region, string(status), formatTime(at), inspectorID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListActive returns every location whose status is not offline, most recent first.
func (r *LocationRepository) ListActive(ctx context.Context) ([]models.InspectorLocation, error) {
	ctx, cancel := context.WithTimeout(ctx, listTimeout)
	defer cancel()
	rows, err := r.db.QueryContext(ctx, `SELECT `+locationColumns+` FROM inspector_locations WHERE status <> ? ORDER BY updated_at DESC, inspector_id ASC`,
		string(models.LocationStatusOffline))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.InspectorLocation
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

// LocatedInspector pairs a location with the inspector's account.
type LocatedInspector struct {
	Inspector models.User
	Location  models.InspectorLocation
}

// ListByStatusWithInspector returns locations in the given status joined with their users.
func (r *LocationRepository) ListByStatusWithInspector(ctx context.Context, status models.LocationStatus) ([]LocatedInspector, error) {
	ctx, cancel := context.WithTimeout(ctx, listTimeout)
	defer cancel()
	rows, err := r.db.QueryContext(ctx, `
SELECT u.id, u.username, u.role, u.full_name, u.phone,
       l.inspector_id, l.lat, l.lng, l.address, l.region, l.status, l.updated_at
FROM inspector_locations l
JOIN users u ON u.id = l.inspector_id
WHERE l.status = ?
ORDER BY l.inspector_id ASC`, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LocatedInspector
	for rows.Next() {
		var li LocatedInspector
		var st, updated string
		u, l := &li.Inspector, &li.Location
		if err := rows.Scan(&u.ID, &u.Username, &u.Role, &u.FullName, &u.Phone,
			&l.InspectorID, &l.Lat, &l.Lng, &l.Address, &l.Region, &st, &updated); err != nil {
			return nil, err
		}
		l.Status = models.LocationStatus(st)
		if l.UpdatedAt, err = parseTime(updated); err != nil {
			return nil, fmt.Errorf("location %d updated_at: %w", l.InspectorID, err)
		}
		out = append(out, li)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLocation(s rowScanner) (*models.InspectorLocation, error) {
	var l models.InspectorLocation
	var status, updated string
	if err := s.Scan(&l.InspectorID, &l.Lat, &l.Lng, &l.Address, &l.Region, &status, &updated); err != nil {
		return nil, err
	}
	l.Status = models.LocationStatus(status)
	t, err := parseTime(updated)
	if err != nil {
		return nil, fmt.Errorf("location %d updated_at: %w", l.InspectorID, err)
	}
	l.UpdatedAt = t
	return &l, nil
}
