// Package metrics exposes dispatch activity as Prometheus counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"inspectionDispatch/models"
)

// PromSink records dispatch, lifecycle and notification events. It satisfies
// dispatch.Recorder and notify.Recorder.
type PromSink struct {
	created       prometheus.Counter
	deleted       prometheus.Counter
	rejections    *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	notifications *prometheus.CounterVec
	locations     *prometheus.CounterVec
}

// NewPromSink registers the collectors on reg (the default registerer when nil).
// Collectors that are already registered are reused.
func NewPromSink(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dispatch_assignments_created_total",
			Help: "Assignments created by the dispatch engine",
		}),
		deleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dispatch_assignments_deleted_total",
			Help: "Assignments hard-deleted by a dispatcher",
		}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_assign_rejections_total",
			Help: "Assign calls refused, by error kind",
		}, []string{"kind"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_assignment_transitions_total",
			Help: "Assignment status transitions",
		}, []string{"from", "to"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_notifications_total",
			Help: "Notification attempts by channel and outcome",
		}, []string{"channel", "outcome"}),
		locations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_location_updates_total",
			Help: "Inspector location writes by resulting status",
		}, []string{"status"}),
	}

	var err error
	if s.created, err = register(reg, s.created); err != nil {
		return nil, err
	}
	if s.deleted, err = register(reg, s.deleted); err != nil {
		return nil, err
	}
	if s.rejections, err = register(reg, s.rejections); err != nil {
		return nil, err
	}
	if s.transitions, err = register(reg, s.transitions); err != nil {
		return nil, err
	}
	if s.notifications, err = register(reg, s.notifications); err != nil {
		return nil, err
	}
	if s.locations, err = register(reg, s.locations); err != nil {
		return nil, err
	}
	return s, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (s *PromSink) AssignmentCreated() { s.created.Inc() }

func (s *PromSink) AssignmentDeleted() { s.deleted.Inc() }

func (s *PromSink) AssignRejected(kind string) { s.rejections.WithLabelValues(kind).Inc() }

func (s *PromSink) Transition(from, to models.AssignmentStatus) {
	s.transitions.WithLabelValues(string(from), string(to)).Inc()
}

func (s *PromSink) LocationUpdated(status models.LocationStatus) {
	s.locations.WithLabelValues(string(status)).Inc()
}

func (s *PromSink) Notification(channel, outcome string) {
	s.notifications.WithLabelValues(channel, outcome).Inc()
}
