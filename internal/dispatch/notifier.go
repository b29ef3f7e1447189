package dispatch

import (
	"context"

	"inspectionDispatch/models"
)

// Event names delivered by the notification fan-out.
const (
	EventNewAssignment       = "new_assignment"
	EventAssignmentRemoved   = "assignment_removed"
	EventAssignmentAccepted  = "assignment_accepted"
	EventAssignmentDeclined  = "assignment_declined"
	EventAssignmentCompleted = "assignment_completed"
	EventAssignmentPaused    = "assignment_paused"
	EventAssignmentResumed   = "assignment_resumed"
	EventAssignmentCanceled  = "assignment_canceled"
	EventInspectorAccepted   = "inspector_accepted"
)

// Notifier delivers best-effort real-time messages. Implementations must not
// block on slow consumers; the return value of NotifyUser only reports whether
// a live connection accepted the message.
type Notifier interface {
	NotifyUser(ctx context.Context, userID int64, event string, payload map[string]any) bool
	NotifyRole(ctx context.Context, role string, event string, payload map[string]any)
}

// Recorder receives dispatch metrics.
type Recorder interface {
	AssignmentCreated()
	AssignRejected(kind string)
	AssignmentDeleted()
	Transition(from, to models.AssignmentStatus)
	LocationUpdated(status models.LocationStatus)
}

type nopNotifier struct{}

func (nopNotifier) NotifyUser(context.Context, int64, string, map[string]any) bool { return false }
func (nopNotifier) NotifyRole(context.Context, string, string, map[string]any)     {}

type nopRecorder struct{}

func (nopRecorder) AssignmentCreated()                                          {}
func (nopRecorder) AssignRejected(string)                                       {}
func (nopRecorder) AssignmentDeleted()                                          {}
func (nopRecorder) Transition(models.AssignmentStatus, models.AssignmentStatus) {}
func (nopRecorder) LocationUpdated(models.LocationStatus)                       {}
