package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"inspectionDispatch/internal/geo"
	"inspectionDispatch/internal/lock"
	"inspectionDispatch/models"
	"inspectionDispatch/repository"
)

// DistanceInfo describes the inspector-to-property distance at assignment time.
// Value is nil when the property has no coordinates.
type DistanceInfo struct {
	Value       *float64 `json:"value"`
	Unit        string   `json:"unit"`
	WithinLimit bool     `json:"within_limit"`
	LimitKm     float64  `json:"limit_km"`
}

// AssignResult is returned by Assign.
type AssignResult struct {
	Assignment *models.Assignment `json:"assignment"`
	Distance   DistanceInfo       `json:"distance"`
}

// Candidate is an available inspector annotated with their distance to a request.
type Candidate struct {
	Inspector   models.User              `json:"inspector"`
	Location    models.InspectorLocation `json:"location"`
	DistanceKm  *float64                 `json:"distance_km"`
	WithinLimit bool                     `json:"within_limit"`
}

// DeleteOptions carries the optional precondition of DeleteAssignment.
type DeleteOptions struct {
	// ExpectedStatus, when set, must match the assignment's current status.
	ExpectedStatus models.AssignmentStatus
}

// Assign validates eligibility of inspectorID for requestID and creates the assignment.
//
// Checks run in this order: inspector location exists, inspector available,
// request exists, request has no active assignment, distance within the limit.
// The checks, the insert and the location snap share one transaction and hold
// the inspector and request locks.
func (s *Service) Assign(ctx context.Context, requestID, inspectorID int64) (*AssignResult, error) {
	res, req, client, err := s.assign(ctx, requestID, inspectorID)
	if err != nil {
		if kind := KindName(err); kind != "internal" {
			s.metrics.AssignRejected(kind)
			s.log.Infof("assign request=%d inspector=%d rejected: %v", requestID, inspectorID, err)
		} else {
			s.log.Errorf("assign request=%d inspector=%d failed: %v", requestID, inspectorID, err)
		}
		return nil, err
	}
	s.metrics.AssignmentCreated()
	s.log.Infof("assignment %d created: request=%d inspector=%d", res.Assignment.ID, requestID, inspectorID)

	payload := newAssignmentPayload(res, req, client)
	if !s.notifier.NotifyUser(ctx, inspectorID, EventNewAssignment, payload) {
		s.log.Debugf("inspector %d offline; %s for assignment %d not delivered", inspectorID, EventNewAssignment, res.Assignment.ID)
	}
	return res, nil
}

func (s *Service) assign(ctx context.Context, requestID, inspectorID int64) (*AssignResult, *models.InspectionRequest, *models.User, error) {
	unlock, err := s.locker.Lock(ctx, lock.InspectorKey(inspectorID), lock.RequestKey(requestID))
	if err != nil {
		return nil, nil, nil, err
	}
	defer unlock()

	var (
		res    *AssignResult
		req    *models.InspectionRequest
		client *models.User
	)
	err = s.inTx(ctx, func(r txRepos) error {
		loc, err := r.locations.GetByInspectorID(ctx, inspectorID)
		if err != nil {
			return fmt.Errorf("get inspector location: %w", err)
		}
		if loc == nil {
			return notFound("inspector location", inspectorID)
		}
		if loc.Status != models.LocationStatusAvailable {
			return newError(ErrNotAvailable,
				map[string]any{"inspector_id": inspectorID, "status": string(loc.Status)},
				"inspector %d is not available (current status: %s)", inspectorID, loc.Status)
		}

		req, err = r.requests.GetByID(ctx, requestID)
		if err != nil {
			return fmt.Errorf("get request: %w", err)
		}
		if req == nil {
			return notFound("inspection request", requestID)
		}

		active, err := r.assignments.FindActiveByRequest(ctx, requestID)
		if err != nil {
			return fmt.Errorf("find active assignment: %w", err)
		}
		if active != nil {
			return alreadyAssigned(requestID, active)
		}

		dist := DistanceInfo{Unit: "km", WithinLimit: true, LimitKm: s.maxDistanceKm}
		if req.HasCoordinates() {
			km := geo.DistanceKm(loc.Lat, loc.Lng, *req.PropertyLat, *req.PropertyLng)
			rounded := geo.RoundKm(km)
			dist.Value = &rounded
			if km > s.maxDistanceKm {
				return newError(ErrOutOfRange, map[string]any{
					"distance_km":       rounded,
					"limit_km":          s.maxDistanceKm,
					"unit":              "km",
					"inspector_address": loc.Address,
					"property_address":  req.PropertyAddress,
				}, "inspector is %.2f km from the property (limit %.0f km): inspector at %q, property at %q",
					rounded, s.maxDistanceKm, loc.Address, req.PropertyAddress)
			}
		}

		now := s.now()
		a, err := r.assignments.Create(ctx, &models.Assignment{
			RequestID:   requestID,
			InspectorID: inspectorID,
			Status:      models.AssignmentStatusAssigned,
			AssignedAt:  now,
			UpdatedAt:   now,
		})
		if err != nil {
			if repository.IsUniqueViolation(err) {
				return alreadyAssigned(requestID, nil)
			}
			return fmt.Errorf("create assignment: %w", err)
		}
		if err := s.snapTx(ctx, r, inspectorID, req); err != nil {
			return err
		}

		client, err = r.users.GetByID(ctx, req.ClientID)
		if err != nil {
			return fmt.Errorf("get client: %w", err)
		}
		res = &AssignResult{Assignment: a, Distance: dist}
		return nil
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return res, req, client, nil
}

func alreadyAssigned(requestID int64, active *models.Assignment) *Error {
	fields := map[string]any{"request_id": requestID}
	if active == nil {
		return newError(ErrAlreadyAssigned, fields, "request %d already has an active assignment", requestID)
	}
	fields["assignment_id"] = active.ID
	fields["inspector_id"] = active.InspectorID
	fields["status"] = string(active.Status)
	return newError(ErrAlreadyAssigned, fields,
		"request %d is already assigned to inspector %d (assignment %d, %s)", requestID, active.InspectorID, active.ID, active.Status)
}

func newAssignmentPayload(res *AssignResult, req *models.InspectionRequest, client *models.User) map[string]any {
	p := map[string]any{
		"assignment_id":    res.Assignment.ID,
		"request_id":       req.ID,
		"property_address": req.PropertyAddress,
		"property_type":    req.PropertyType,
		"inspection_date":  req.PreferredDate,
		"room_count":       req.RoomCount,
		"floor_count":      req.FloorCount,
		"assigned_at":      res.Assignment.AssignedAt.UTC().Format(time.RFC3339),
		"client_name":      "",
		"client_phone":     "",
	}
	if client != nil {
		p["client_name"] = client.FullName
		p["client_phone"] = client.Phone
	}
	if res.Distance.Value != nil {
		p["distance_km"] = *res.Distance.Value
	}
	return p
}

// DeleteAssignment hard-deletes an assignment and frees its inspector.
// When opts.ExpectedStatus is set and differs from the stored status the delete
// is refused with ErrInvalidTransition.
func (s *Service) DeleteAssignment(ctx context.Context, assignmentID int64, opts DeleteOptions) (*models.Assignment, error) {
	current, err := s.assignments.GetByID(ctx, assignmentID)
	if err != nil {
		return nil, fmt.Errorf("get assignment: %w", err)
	}
	if current == nil {
		return nil, notFound("assignment", assignmentID)
	}

	unlock, err := s.locker.Lock(ctx,
		lock.InspectorKey(current.InspectorID), lock.RequestKey(current.RequestID), lock.AssignmentKey(assignmentID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	var deleted *models.Assignment
	err = s.inTx(ctx, func(r txRepos) error {
		a, err := r.assignments.GetByID(ctx, assignmentID)
		if err != nil {
			return fmt.Errorf("get assignment: %w", err)
		}
		if a == nil {
			return notFound("assignment", assignmentID)
		}
		if opts.ExpectedStatus != "" && a.Status != opts.ExpectedStatus {
			return newError(ErrInvalidTransition,
				map[string]any{"current_status": string(a.Status), "expected_status": string(opts.ExpectedStatus)},
				"assignment %d is %s, expected %s", assignmentID, a.Status, opts.ExpectedStatus)
		}
		if err := r.assignments.Delete(ctx, assignmentID, a.Status); err != nil {
			if errors.Is(err, repository.ErrStaleWrite) {
				return newError(ErrInvalidTransition, nil, "assignment %d changed while deleting", assignmentID)
			}
			return fmt.Errorf("delete assignment: %w", err)
		}
		if err := s.releaseInspectorTx(ctx, r, a.InspectorID); err != nil {
			return err
		}
		deleted = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.AssignmentDeleted()
	s.log.Infof("assignment %d deleted (was %s); inspector %d released", deleted.ID, deleted.Status, deleted.InspectorID)
	s.notifier.NotifyUser(ctx, deleted.InspectorID, EventAssignmentRemoved, map[string]any{
		"assignment_id": deleted.ID,
		"request_id":    deleted.RequestID,
		"status":        string(deleted.Status),
	})
	return deleted, nil
}

// ListAvailableWithDistance returns every available inspector with their
// distance to the request's property, nearest first. Inspectors whose distance
// cannot be computed sort last.
func (s *Service) ListAvailableWithDistance(ctx context.Context, requestID int64) ([]Candidate, error) {
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("get request: %w", err)
	}
	if req == nil {
		return nil, notFound("inspection request", requestID)
	}
	located, err := s.locations.ListByStatusWithInspector(ctx, models.LocationStatusAvailable)
	if err != nil {
		return nil, fmt.Errorf("list available inspectors: %w", err)
	}

	out := make([]Candidate, 0, len(located))
	for _, li := range located {
		c := Candidate{Inspector: li.Inspector, Location: li.Location, WithinLimit: true}
		if req.HasCoordinates() {
			km := geo.DistanceKm(li.Location.Lat, li.Location.Lng, *req.PropertyLat, *req.PropertyLng)
			rounded := geo.RoundKm(km)
			c.DistanceKm = &rounded
			// Same raw comparison as Assign; rounding is display only.
			c.WithinLimit = km <= s.maxDistanceKm
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		di, dj := out[i].DistanceKm, out[j].DistanceKm
		switch {
		case di == nil && dj == nil:
			return out[i].Inspector.ID < out[j].Inspector.ID
		case di == nil:
			return false
		case dj == nil:
			return true
		case *di != *dj:
			return *di < *dj
		}
		return out[i].Inspector.ID < out[j].Inspector.ID
	})
	return out, nil
}

// GetAssignment returns an assignment or a NotFound error.
func (s *Service) GetAssignment(ctx context.Context, assignmentID int64) (*models.Assignment, error) {
	a, err := s.assignments.GetByID(ctx, assignmentID)
	if err != nil {
		return nil, fmt.Errorf("get assignment: %w", err)
	}
	if a == nil {
		return nil, notFound("assignment", assignmentID)
	}
	return a, nil
}

// ListAssignmentsForInspector returns an inspector's assignments, newest first.
func (s *Service) ListAssignmentsForInspector(ctx context.Context, inspectorID int64, activeOnly bool) ([]models.Assignment, error) {
	list, err := s.assignments.ListByInspector(ctx, inspectorID, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	return list, nil
}
