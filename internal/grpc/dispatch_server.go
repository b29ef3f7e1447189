package grpcserver

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"inspectionDispatch/internal/auth"
	"inspectionDispatch/internal/dispatch"
	"inspectionDispatch/internal/logger"
	"inspectionDispatch/models"
	"inspectionDispatch/repository"
)

// DispatchServer implements DispatchService RPCs on top of dispatch.Service.
type DispatchServer struct {
	Svc   *dispatch.Service
	Users *repository.UserRepository
	Log   logger.Logger
}

func (s *DispatchServer) log() logger.Logger {
	if s.Log == nil {
		return logger.NopLogger{}
	}
	return s.Log
}

// Assign creates an assignment for request_id and inspector_id. Dispatchers only.
func (s *DispatchServer) Assign(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if _, err := auth.RequireDispatcher(ctx, s.Users); err != nil {
		return nil, err
	}
	requestID, err := requiredID(in, "request_id")
	if err != nil {
		return nil, err
	}
	inspectorID, err := requiredID(in, "inspector_id")
	if err != nil {
		return nil, err
	}
	res, err := s.Svc.Assign(ctx, requestID, inspectorID)
	if err != nil {
		return nil, toStatus(s.log(), err)
	}
	return toStruct(res)
}

// ListAvailableWithDistance lists candidate inspectors for request_id. Dispatchers only.
func (s *DispatchServer) ListAvailableWithDistance(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if _, err := auth.RequireDispatcher(ctx, s.Users); err != nil {
		return nil, err
	}
	requestID, err := requiredID(in, "request_id")
	if err != nil {
		return nil, err
	}
	list, err := s.Svc.ListAvailableWithDistance(ctx, requestID)
	if err != nil {
		return nil, toStatus(s.log(), err)
	}
	return toStruct(map[string]any{"candidates": list, "limit_km": s.Svc.MaxDistanceKm()})
}

// Transition drives an assignment through its lifecycle. Inspectors may only
// act on their own assignments and may not cancel; dispatchers may do anything
// the transition table allows.
func (s *DispatchServer) Transition(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	p, err := auth.RequireKind(ctx, models.RoleInspector, models.RoleDispatcher, models.RoleAdmin)
	if err != nil {
		return nil, err
	}
	assignmentID, err := requiredID(in, "assignment_id")
	if err != nil {
		return nil, err
	}
	target, err := stringOrEmpty(in, "status")
	if err != nil {
		return nil, err
	}
	if target == "" {
		return nil, status.Error(codes.InvalidArgument, "status is required")
	}
	opts := dispatch.TransitionOptions{ActorID: p.UserID}
	if opts.DeclineReason, err = stringOrEmpty(in, "decline_reason"); err != nil {
		return nil, err
	}
	if opts.Notes, err = optionalString(in, "notes"); err != nil {
		return nil, err
	}
	if opts.StartTime, err = optionalTime(in, "start_time"); err != nil {
		return nil, err
	}
	if opts.EndTime, err = optionalTime(in, "end_time"); err != nil {
		return nil, err
	}

	to := models.AssignmentStatus(target)
	if p.Kind == models.RoleInspector {
		if to == models.AssignmentStatusCanceled {
			return nil, status.Error(codes.PermissionDenied, "only dispatcher can cancel an assignment")
		}
		if err := s.requireOwnAssignment(ctx, p, assignmentID); err != nil {
			return nil, err
		}
	} else if _, err := auth.RequireDispatcher(ctx, s.Users); err != nil {
		return nil, err
	}

	a, err := s.Svc.Transition(ctx, assignmentID, to, opts)
	if err != nil {
		return nil, toStatus(s.log(), err)
	}
	return toStruct(map[string]any{"assignment": a})
}

// DeleteAssignment hard-deletes assignment_id, optionally guarded by expected_status.
func (s *DispatchServer) DeleteAssignment(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if _, err := auth.RequireDispatcher(ctx, s.Users); err != nil {
		return nil, err
	}
	assignmentID, err := requiredID(in, "assignment_id")
	if err != nil {
		return nil, err
	}
	expected, err := stringOrEmpty(in, "expected_status")
	if err != nil {
		return nil, err
	}
	deleted, err := s.Svc.DeleteAssignment(ctx, assignmentID, dispatch.DeleteOptions{ExpectedStatus: models.AssignmentStatus(expected)})
	if err != nil {
		return nil, toStatus(s.log(), err)
	}
	return toStruct(map[string]any{"deleted": deleted})
}

// UpsertLocation records a location push. Inspectors always write their own
// row; dispatchers must name inspector_id.
func (s *DispatchServer) UpsertLocation(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	p, err := auth.RequireKind(ctx, models.RoleInspector, models.RoleDispatcher, models.RoleAdmin)
	if err != nil {
		return nil, err
	}
	u := dispatch.LocationUpdate{InspectorID: p.UserID}
	if p.Kind != models.RoleInspector {
		if _, err := auth.RequireDispatcher(ctx, s.Users); err != nil {
			return nil, err
		}
		if u.InspectorID, err = requiredID(in, "inspector_id"); err != nil {
			return nil, err
		}
	} else if other, err := optionalID(in, "inspector_id"); err != nil {
		return nil, err
	} else if other != 0 && other != p.UserID {
		return nil, status.Error(codes.PermissionDenied, "inspectors can only update their own location")
	}
	if u.Lat, err = requiredNumber(in, "lat"); err != nil {
		return nil, err
	}
	if u.Lng, err = requiredNumber(in, "lng"); err != nil {
		return nil, err
	}
	st, err := stringOrEmpty(in, "status")
	if err != nil {
		return nil, err
	}
	u.Status = models.LocationStatus(st)
	if u.Address, err = optionalString(in, "address"); err != nil {
		return nil, err
	}
	if u.Region, err = optionalString(in, "region"); err != nil {
		return nil, err
	}

	loc, err := s.Svc.UpsertLocation(ctx, u)
	if err != nil {
		return nil, toStatus(s.log(), err)
	}
	return toStruct(map[string]any{"location": loc})
}

// ListActiveLocations returns every non-offline inspector location. Dispatchers only.
func (s *DispatchServer) ListActiveLocations(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	if _, err := auth.RequireDispatcher(ctx, s.Users); err != nil {
		return nil, err
	}
	locs, err := s.Svc.ListActive(ctx)
	if err != nil {
		return nil, toStatus(s.log(), err)
	}
	return toStruct(map[string]any{"locations": locs})
}

// GetAssignment returns one assignment to a dispatcher or its inspector.
func (s *DispatchServer) GetAssignment(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	p, err := auth.RequireKind(ctx, models.RoleInspector, models.RoleDispatcher, models.RoleAdmin)
	if err != nil {
		return nil, err
	}
	assignmentID, err := requiredID(in, "assignment_id")
	if err != nil {
		return nil, err
	}
	a, err := s.Svc.GetAssignment(ctx, assignmentID)
	if err != nil {
		return nil, toStatus(s.log(), err)
	}
	if p.Kind == models.RoleInspector && a.InspectorID != p.UserID {
		return nil, status.Error(codes.PermissionDenied, "assignment belongs to another inspector")
	}
	return toStruct(map[string]any{"assignment": a})
}

// ListMyAssignments returns the calling inspector's assignments.
func (s *DispatchServer) ListMyAssignments(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	p, err := auth.RequireInspector(ctx)
	if err != nil {
		return nil, err
	}
	list, err := s.Svc.ListAssignmentsForInspector(ctx, p.UserID, optionalBool(in, "active_only"))
	if err != nil {
		return nil, toStatus(s.log(), err)
	}
	return toStruct(map[string]any{"assignments": list})
}

func (s *DispatchServer) requireOwnAssignment(ctx context.Context, p *auth.Principal, assignmentID int64) error {
	a, err := s.Svc.GetAssignment(ctx, assignmentID)
	if err != nil {
		return toStatus(s.log(), err)
	}
	if a.InspectorID != p.UserID {
		return status.Error(codes.PermissionDenied, "assignment belongs to another inspector")
	}
	return nil
}
