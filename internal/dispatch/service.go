// Package dispatch matches inspection requests to field inspectors and drives
// the resulting assignments through their lifecycle.
//
// Every write that touches an inspector's location takes the per-inspector lock
// and runs inside one SQL transaction; notifications are sent only after commit.
package dispatch

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"inspectionDispatch/internal/geo"
	"inspectionDispatch/internal/lock"
	"inspectionDispatch/internal/logger"
	"inspectionDispatch/repository"
)

// Service is the location registry, dispatch engine and assignment lifecycle.
type Service struct {
	db          *sql.DB
	users       *repository.UserRepository
	requests    *repository.RequestRepository
	locations   *repository.LocationRepository
	assignments *repository.AssignmentRepository

	locker        lock.Locker
	notifier      Notifier
	metrics       Recorder
	log           logger.Logger
	maxDistanceKm float64
	defaultRegion string
	now           func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithLocker replaces the in-process KeyedMutex, e.g. with a RedisLocker.
func WithLocker(l lock.Locker) Option { return func(s *Service) { s.locker = l } }

// WithNotifier sets the real-time fan-out.
func WithNotifier(n Notifier) Option { return func(s *Service) { s.notifier = n } }

// WithRecorder sets the metrics sink.
func WithRecorder(r Recorder) Option { return func(s *Service) { s.metrics = r } }

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option { return func(s *Service) { s.log = l } }

// WithMaxDistanceKm overrides the proximity limit.
func WithMaxDistanceKm(km float64) Option { return func(s *Service) { s.maxDistanceKm = km } }

// WithDefaultRegion overrides the region label used for unknown cities.
func WithDefaultRegion(r string) Option { return func(s *Service) { s.defaultRegion = r } }

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// New builds a Service on top of an opened database (see internal/db.Open).
func New(d *sql.DB, opts ...Option) *Service {
	s := &Service{
		db:            d,
		users:         repository.NewUserRepository(d),
		requests:      repository.NewRequestRepository(d),
		locations:     repository.NewLocationRepository(d),
		assignments:   repository.NewAssignmentRepository(d),
		locker:        lock.NewKeyedMutex(),
		notifier:      nopNotifier{},
		metrics:       nopRecorder{},
		log:           logger.NopLogger{},
		maxDistanceKm: geo.DefaultMaxDistanceKm,
		defaultRegion: geo.DefaultRegion,
		now:           time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// MaxDistanceKm returns the configured proximity limit.
func (s *Service) MaxDistanceKm() float64 { return s.maxDistanceKm }

// txRepos are the repositories bound to one transaction.
type txRepos struct {
	users       *repository.UserRepository
	requests    *repository.RequestRepository
	locations   *repository.LocationRepository
	assignments *repository.AssignmentRepository
}

// inTx runs fn inside a transaction. Any error from fn rolls everything back,
// so assignment and location writes succeed or fail together.
func (s *Service) inTx(ctx context.Context, fn func(r txRepos) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	r := txRepos{
		users:       s.users.WithTx(tx),
		requests:    s.requests.WithTx(tx),
		locations:   s.locations.WithTx(tx),
		assignments: s.assignments.WithTx(tx),
	}
	if err := fn(r); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// regionFor maps a property to a region label, using the configured default.
func (s *Service) regionFor(address, city string) string {
	r := geo.RegionFor(address, city)
	if r == geo.DefaultRegion {
		return s.defaultRegion
	}
	return r
}
