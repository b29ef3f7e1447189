package dispatch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"inspectionDispatch/internal/geo"
	"inspectionDispatch/internal/lock"
	"inspectionDispatch/models"
)

// LocationUpdate is an inspector's location push. Empty Status means "not
// supplied"; nil Address/Region likewise.
type LocationUpdate struct {
	InspectorID int64
	Lat         float64
	Lng         float64
	Status      models.LocationStatus
	Address     *string
	Region      *string
}

// UpsertLocation creates or replaces an inspector's location record.
//
// An omitted status defaults to available. While the inspector still holds a
// non-terminal assignment, available is stored as busy so a GPS push can never
// make a working inspector dispatchable again.
func (s *Service) UpsertLocation(ctx context.Context, u LocationUpdate) (*models.InspectorLocation, error) {
	if !geo.ValidCoordinates(u.Lat, u.Lng) {
		return nil, newError(ErrInvalidInput, map[string]any{"lat": u.Lat, "lng": u.Lng},
			"invalid coordinates (%v, %v)", u.Lat, u.Lng)
	}
	if u.Status != "" && !u.Status.Valid() {
		return nil, invalidInput("unknown location status %q", u.Status)
	}

	unlock, err := s.locker.Lock(ctx, lock.InspectorKey(u.InspectorID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	var out *models.InspectorLocation
	err = s.inTx(ctx, func(r txRepos) error {
		user, err := r.users.GetByID(ctx, u.InspectorID)
		if err != nil {
			return fmt.Errorf("get inspector: %w", err)
		}
		if !user.IsInspector() {
			return notFound("inspector", u.InspectorID)
		}
		status := u.Status
		if status == "" {
			status = models.LocationStatusAvailable
		}
		if status == models.LocationStatusAvailable {
			active, err := r.assignments.CountActiveByInspector(ctx, u.InspectorID, 0)
			if err != nil {
				return fmt.Errorf("count active assignments: %w", err)
			}
			if active > 0 {
				s.log.Warnf("inspector %d reported available with %d active assignment(s); keeping busy", u.InspectorID, active)
				status = models.LocationStatusBusy
			}
		}
		loc := &models.InspectorLocation{
			InspectorID: u.InspectorID,
			Lat:         u.Lat,
			Lng:         u.Lng,
			Status:      status,
			UpdatedAt:   s.now(),
		}
		if u.Address != nil {
			loc.Address = strings.TrimSpace(*u.Address)
		}
		if u.Region != nil && strings.TrimSpace(*u.Region) != "" {
			loc.Region = strings.TrimSpace(*u.Region)
		} else {
			loc.Region = s.regionFor(loc.Address, "")
		}
		if err := r.locations.Upsert(ctx, loc); err != nil {
			return fmt.Errorf("upsert location: %w", err)
		}
		out = loc
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.LocationUpdated(out.Status)
	s.log.Debugw("location updated", map[string]any{
		"inspector_id": out.InspectorID, "lat": out.Lat, "lng": out.Lng, "status": string(out.Status),
	})
	return out, nil
}

// ListActive returns every location whose status is not offline.
func (s *Service) ListActive(ctx context.Context) ([]models.InspectorLocation, error) {
	locs, err := s.locations.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active locations: %w", err)
	}
	return locs, nil
}

// GetLocation returns an inspector's location or a NotFound error.
func (s *Service) GetLocation(ctx context.Context, inspectorID int64) (*models.InspectorLocation, error) {
	loc, err := s.locations.GetByInspectorID(ctx, inspectorID)
	if err != nil {
		return nil, fmt.Errorf("get location: %w", err)
	}
	if loc == nil {
		return nil, notFound("inspector location", inspectorID)
	}
	return loc, nil
}

// SetStatus changes an inspector's availability and refreshes the timestamp.
func (s *Service) SetStatus(ctx context.Context, inspectorID int64, status models.LocationStatus) error {
	if !status.Valid() {
		return invalidInput("unknown location status %q", status)
	}
	unlock, err := s.locker.Lock(ctx, lock.InspectorKey(inspectorID))
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.locations.UpdateStatus(ctx, inspectorID, status, s.now()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return notFound("inspector location", inspectorID)
		}
		return fmt.Errorf("set status: %w", err)
	}
	s.metrics.LocationUpdated(status)
	return nil
}

// setStatusTx is the in-transaction variant used by dispatch and lifecycle code.
// A missing location row is logged, not fatal: the assignment record stays authoritative.
func (s *Service) setStatusTx(ctx context.Context, r txRepos, inspectorID int64, status models.LocationStatus) error {
	if err := r.locations.UpdateStatus(ctx, inspectorID, status, s.now()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.log.Warnf("inspector %d has no location row; status %s not recorded", inspectorID, status)
			return nil
		}
		return fmt.Errorf("update inspector status: %w", err)
	}
	return nil
}

// releaseInspectorTx marks the inspector available unless another non-terminal
// assignment still binds them.
func (s *Service) releaseInspectorTx(ctx context.Context, r txRepos, inspectorID int64) error {
	active, err := r.assignments.CountActiveByInspector(ctx, inspectorID, 0)
	if err != nil {
		return fmt.Errorf("count active assignments: %w", err)
	}
	if active > 0 {
		s.log.Infof("inspector %d still holds %d active assignment(s); staying busy", inspectorID, active)
		return nil
	}
	return s.setStatusTx(ctx, r, inspectorID, models.LocationStatusAvailable)
}

// snapTx moves the inspector onto the property ("location snap") and marks them busy.
// Without property coordinates only the status changes.
func (s *Service) snapTx(ctx context.Context, r txRepos, inspectorID int64, req *models.InspectionRequest) error {
	if !req.HasCoordinates() {
		return s.setStatusTx(ctx, r, inspectorID, models.LocationStatusBusy)
	}
	region := s.regionFor(req.PropertyAddress, req.PropertyCity)
	err := r.locations.Snap(ctx, inspectorID, *req.PropertyLat, *req.PropertyLng, req.PropertyAddress, region,
		models.LocationStatusBusy, s.now())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.log.Warnf("inspector %d has no location row; snap skipped", inspectorID)
			return nil
		}
		return fmt.Errorf("snap inspector location: %w", err)
	}
	return nil
}
