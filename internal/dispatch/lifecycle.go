package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"inspectionDispatch/internal/lock"
	"inspectionDispatch/models"
	"inspectionDispatch/repository"
)

var transitions = map[models.AssignmentStatus][]models.AssignmentStatus{
	models.AssignmentStatusAssigned: {
		models.AssignmentStatusInProgress,
		models.AssignmentStatusDeclined,
		models.AssignmentStatusCanceled,
	},
	models.AssignmentStatusInProgress: {
		models.AssignmentStatusPaused,
		models.AssignmentStatusCompleted,
		models.AssignmentStatusCanceled,
	},
	models.AssignmentStatusPaused: {
		models.AssignmentStatusInProgress,
		models.AssignmentStatusCompleted,
		models.AssignmentStatusCanceled,
	},
}

// AllowedTransitions returns the statuses reachable from s. Terminal statuses
// have none.
func AllowedTransitions(s models.AssignmentStatus) []models.AssignmentStatus {
	next := transitions[s]
	out := make([]models.AssignmentStatus, len(next))
	copy(out, next)
	return out
}

// CanTransition reports whether from -> to is in the transition table.
func CanTransition(from, to models.AssignmentStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func knownStatus(s models.AssignmentStatus) bool {
	return s.IsActive() || s.IsTerminal()
}

// TransitionOptions carries the optional fields of a transition.
type TransitionOptions struct {
	DeclineReason string
	Notes         *string
	StartTime     *time.Time
	EndTime       *time.Time
	// ActorID is the user driving the transition; zero when unknown.
	ActorID int64
}

// Transition moves an assignment to status to and applies the matching
// inspector-location effects in the same transaction. Notifications go out
// after commit.
func (s *Service) Transition(ctx context.Context, assignmentID int64, to models.AssignmentStatus, opts TransitionOptions) (*models.Assignment, error) {
	if !knownStatus(to) {
		return nil, newError(ErrInvalidInput, map[string]any{"status": string(to)}, "unknown assignment status %q", to)
	}
	current, err := s.assignments.GetByID(ctx, assignmentID)
	if err != nil {
		return nil, fmt.Errorf("get assignment: %w", err)
	}
	if current == nil {
		return nil, notFound("assignment", assignmentID)
	}

	unlock, err := s.locker.Lock(ctx, lock.InspectorKey(current.InspectorID), lock.AssignmentKey(assignmentID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	var (
		from       models.AssignmentStatus
		updated    *models.Assignment
		req        *models.InspectionRequest
		firstStart bool
	)
	err = s.inTx(ctx, func(r txRepos) error {
		a, err := r.assignments.GetByID(ctx, assignmentID)
		if err != nil {
			return fmt.Errorf("get assignment: %w", err)
		}
		if a == nil {
			return notFound("assignment", assignmentID)
		}
		from = a.Status
		if !CanTransition(from, to) {
			return invalidTransition(a, to)
		}
		reason := strings.TrimSpace(opts.DeclineReason)
		if to == models.AssignmentStatusDeclined && reason == "" {
			return newError(ErrInvalidInput, map[string]any{"field": "decline_reason"},
				"a decline reason is required to decline assignment %d", assignmentID)
		}

		now := s.now()
		next := *a
		next.Status = to
		next.UpdatedAt = now
		if opts.Notes != nil {
			notes := *opts.Notes
			next.Notes = &notes
		}
		if to == models.AssignmentStatusDeclined {
			next.DeclineReason = &reason
		}

		req, err = r.requests.GetByID(ctx, a.RequestID)
		if err != nil {
			return fmt.Errorf("get request: %w", err)
		}

		switch to {
		case models.AssignmentStatusInProgress:
			if a.InspectionStartTime == nil {
				firstStart = true
				start := now
				if opts.StartTime != nil {
					start = *opts.StartTime
				}
				next.InspectionStartTime = &start
			}
		case models.AssignmentStatusCompleted:
			end := now
			if opts.EndTime != nil {
				end = *opts.EndTime
			}
			next.InspectionEndTime = &end
		}

		if err := r.assignments.UpdateIfStatus(ctx, &next, from); err != nil {
			if errors.Is(err, repository.ErrStaleWrite) {
				return invalidTransition(a, to)
			}
			return fmt.Errorf("update assignment: %w", err)
		}

		switch to {
		case models.AssignmentStatusInProgress:
			if firstStart {
				if req == nil {
					s.log.Warnf("request %d missing for assignment %d; snap skipped", a.RequestID, a.ID)
					if err := s.setStatusTx(ctx, r, a.InspectorID, models.LocationStatusBusy); err != nil {
						return err
					}
				} else if err := s.snapTx(ctx, r, a.InspectorID, req); err != nil {
					return err
				}
			} else if err := s.setStatusTx(ctx, r, a.InspectorID, models.LocationStatusBusy); err != nil {
				return err
			}
		case models.AssignmentStatusCompleted, models.AssignmentStatusDeclined, models.AssignmentStatusCanceled:
			if err := s.releaseInspectorTx(ctx, r, a.InspectorID); err != nil {
				return err
			}
		}
		updated = &next
		return nil
	})
	if err != nil {
		if KindName(err) == "internal" {
			s.log.Errorf("transition assignment %d to %s failed: %v", assignmentID, to, err)
		}
		return nil, err
	}

	s.metrics.Transition(from, to)
	s.log.Infof("assignment %d: %s -> %s", updated.ID, from, to)
	s.notifyTransition(ctx, updated, from, req, firstStart, opts.ActorID)
	return updated, nil
}

func invalidTransition(a *models.Assignment, to models.AssignmentStatus) *Error {
	allowed := AllowedTransitions(a.Status)
	names := make([]string, len(allowed))
	for i, s := range allowed {
		names[i] = string(s)
	}
	msg := fmt.Sprintf("cannot move assignment %d from %s to %s", a.ID, a.Status, to)
	if len(names) > 0 {
		msg += " (allowed: " + strings.Join(names, ", ") + ")"
	} else {
		msg += " (status is terminal)"
	}
	return &Error{
		Kind:    ErrInvalidTransition,
		Message: msg,
		Fields: map[string]any{
			"assignment_id":  a.ID,
			"current_status": string(a.Status),
			"requested":      string(to),
			"allowed":        names,
		},
	}
}

func (s *Service) notifyTransition(ctx context.Context, a *models.Assignment, from models.AssignmentStatus,
	req *models.InspectionRequest, firstStart bool, actorID int64) {
	payload := map[string]any{
		"assignment_id": a.ID,
		"request_id":    a.RequestID,
		"inspector_id":  a.InspectorID,
		"from":          string(from),
		"status":        string(a.Status),
		"updated_at":    a.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if req != nil {
		payload["property_address"] = req.PropertyAddress
	}
	if a.Notes != nil {
		payload["notes"] = *a.Notes
	}

	var event string
	switch a.Status {
	case models.AssignmentStatusInProgress:
		event = EventAssignmentResumed
		if from == models.AssignmentStatusAssigned {
			event = EventAssignmentAccepted
		}
		if a.InspectionStartTime != nil {
			payload["inspection_start_time"] = a.InspectionStartTime.UTC().Format(time.RFC3339)
		}
	case models.AssignmentStatusPaused:
		event = EventAssignmentPaused
	case models.AssignmentStatusCompleted:
		event = EventAssignmentCompleted
		if a.InspectionEndTime != nil {
			payload["inspection_end_time"] = a.InspectionEndTime.UTC().Format(time.RFC3339)
		}
	case models.AssignmentStatusDeclined:
		event = EventAssignmentDeclined
		if a.DeclineReason != nil {
			payload["decline_reason"] = *a.DeclineReason
		}
	case models.AssignmentStatusCanceled:
		event = EventAssignmentCanceled
	}
	s.notifier.NotifyRole(ctx, models.RoleDispatcher, event, payload)

	if a.Status == models.AssignmentStatusCanceled && actorID != a.InspectorID {
		s.notifier.NotifyUser(ctx, a.InspectorID, EventAssignmentCanceled, payload)
	}
	if firstStart && req != nil {
		s.notifier.NotifyUser(ctx, req.ClientID, EventInspectorAccepted, map[string]any{
			"assignment_id":    a.ID,
			"request_id":       req.ID,
			"inspector_id":     a.InspectorID,
			"property_address": req.PropertyAddress,
			"started_at":       a.InspectionStartTime.UTC().Format(time.RFC3339),
		})
	}
}
