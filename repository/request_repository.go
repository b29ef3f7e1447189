package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"inspectionDispatch/models"
)

// RequestRepository reads inspection requests. Intake owns writes; Create exists
// for seeding and for the intake collaborator sharing this database.
type RequestRepository struct {
	db DBTX
}

func NewRequestRepository(db DBTX) *RequestRepository {
	return &RequestRepository{db: db}
}

func (r *RequestRepository) WithTx(tx *sql.Tx) *RequestRepository {
	return &RequestRepository{db: tx}
}

const requestColumns = `id, client_id, property_address, property_city, property_lat, property_lng, property_type, room_count, floor_count, preferred_date, status, created_at`

// Create inserts a new request. Status defaults to 'pending'.
func (r *RequestRepository) Create(ctx context.Context, req *models.InspectionRequest) (*models.InspectionRequest, error) {
	if req == nil {
		return nil, errors.New("request is nil")
	}
	if req.Status == "" {
		req.Status = models.RequestStatusPending
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now()
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `INSERT INTO inspection_requests (client_id, property_address, property_city, property_lat, property_lng, property_type, room_count, floor_count, preferred_date, status, created_at) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		req.ClientID, req.PropertyAddress, req.PropertyCity, req.PropertyLat, req.PropertyLng, req.PropertyType,
		req.RoomCount, req.FloorCount, req.PreferredDate, string(req.Status), formatTime(req.CreatedAt))
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	created, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if created == nil {
		return nil, fmt.Errorf("created request not found: id=%d", id)
	}
	return created, nil
}

// GetByID fetches a request by its ID.
func (r *RequestRepository) GetByID(ctx context.Context, id int64) (*models.InspectionRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var req models.InspectionRequest
	var status, createdAt string
	var lat, lng sql.NullFloat64
	err := r.db.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM inspection_requests WHERE id = ?`, id).
		Scan(&req.ID, &req.ClientID, &req.PropertyAddress, &req.PropertyCity, &lat, &lng, &req.PropertyType,
			&req.RoomCount, &req.FloorCount, &req.PreferredDate, &status, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	req.Status = models.RequestStatus(status)
	if lat.Valid {
		v := lat.Float64
		req.PropertyLat = &v
	}
	if lng.Valid {
		v := lng.Float64
		req.PropertyLng = &v
	}
	if req.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("request %d created_at: %w", id, err)
	}
	return &req, nil
}
