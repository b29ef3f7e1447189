package models

import "time"

// AssignmentStatus represents the progress of an inspector on an assignment.
type AssignmentStatus string

const (
	AssignmentStatusAssigned   AssignmentStatus = "assigned"
	AssignmentStatusInProgress AssignmentStatus = "in-progress"
	AssignmentStatusPaused     AssignmentStatus = "paused"
	AssignmentStatusCompleted  AssignmentStatus = "completed"
	AssignmentStatusDeclined   AssignmentStatus = "declined"
	AssignmentStatusCanceled   AssignmentStatus = "canceled"
)

// ActiveAssignmentStatuses lists the non-terminal statuses. At most one assignment
// per request may be in one of them.
var ActiveAssignmentStatuses = []AssignmentStatus{
	AssignmentStatusAssigned,
	AssignmentStatusInProgress,
	AssignmentStatusPaused,
}

// IsTerminal reports whether no further transition is permitted from s.
func (s AssignmentStatus) IsTerminal() bool {
	switch s {
	case AssignmentStatusCompleted, AssignmentStatusDeclined, AssignmentStatusCanceled:
		return true
	}
	return false
}

// IsActive reports whether s is a known non-terminal status.
func (s AssignmentStatus) IsActive() bool {
	for _, a := range ActiveAssignmentStatuses {
		if s == a {
			return true
		}
	}
	return false
}

// Assignment binds one inspector to one inspection request.
type Assignment struct {
	ID                  int64            `db:"id" json:"id"`
	RequestID           int64            `db:"request_id" json:"request_id"`
	InspectorID         int64            `db:"inspector_id" json:"inspector_id"`
	Status              AssignmentStatus `db:"status" json:"status"`
	AssignedAt          time.Time        `db:"assigned_at" json:"assigned_at"`
	DeclineReason       *string          `db:"decline_reason" json:"decline_reason,omitempty"`
	Notes               *string          `db:"notes" json:"notes,omitempty"`
	InspectionStartTime *time.Time       `db:"inspection_start_time" json:"inspection_start_time,omitempty"`
	InspectionEndTime   *time.Time       `db:"inspection_end_time" json:"inspection_end_time,omitempty"`
	UpdatedAt           time.Time        `db:"updated_at" json:"updated_at"`
}
