package dispatch

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"inspectionDispatch/internal/testutil"
	"inspectionDispatch/models"
)

var (
	colomboLat, colomboLng = 6.9271, 79.8612
	nearLat, nearLng       = 6.9300, 79.8650
	kandyLat, kandyLng     = 7.2906, 80.6337
)

type fakeRecorder struct {
	mu          sync.Mutex
	created     int
	deleted     int
	rejected    map[string]int
	transitions []string
	locations   []models.LocationStatus
}

func (r *fakeRecorder) AssignmentCreated() { r.mu.Lock(); r.created++; r.mu.Unlock() }
func (r *fakeRecorder) AssignmentDeleted() { r.mu.Lock(); r.deleted++; r.mu.Unlock() }
func (r *fakeRecorder) AssignRejected(kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rejected == nil {
		r.rejected = map[string]int{}
	}
	r.rejected[kind]++
}
func (r *fakeRecorder) Transition(from, to models.AssignmentStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, string(from)+"->"+string(to))
}
func (r *fakeRecorder) LocationUpdated(s models.LocationStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.locations = append(r.locations, s)
}

type fixture struct {
	d        *sql.DB
	svc      *Service
	notifier *testutil.RecordingNotifier
	rec      *fakeRecorder
	now      time.Time

	client *models.User
	insp1  *models.User
	insp2  *models.User
}

func newFixture(t *testing.T, name string, opts ...Option) *fixture {
	t.Helper()
	d := testutil.OpenInMemoryDB(t, name)
	f := &fixture{
		d:        d,
		notifier: &testutil.RecordingNotifier{Online: map[int64]bool{}},
		rec:      &fakeRecorder{},
		now:      time.Date(2026, 3, 4, 9, 30, 0, 0, time.UTC),
	}
	f.client = testutil.SeedUser(t, d, "client", models.RoleClient)
	f.insp1 = testutil.SeedUser(t, d, "insp1", models.RoleInspector)
	f.insp2 = testutil.SeedUser(t, d, "insp2", models.RoleInspector)

	base := []Option{
		WithNotifier(f.notifier),
		WithRecorder(f.rec),
		WithClock(func() time.Time { return f.now }),
	}
	f.svc = New(d, append(base, opts...)...)
	return f
}

func (f *fixture) location(t *testing.T, inspectorID int64) *models.InspectorLocation {
	t.Helper()
	loc, err := f.svc.GetLocation(context.Background(), inspectorID)
	if err != nil {
		t.Fatalf("get location: %v", err)
	}
	return loc
}

// nearRequest is a Colombo property about half a kilometre from colomboLat/Lng.
func (f *fixture) nearRequest(t *testing.T) *models.InspectionRequest {
	t.Helper()
	return testutil.SeedRequest(t, f.d, f.client.ID, testutil.Float(nearLat), testutil.Float(nearLng),
		"12 Galle Road, Colombo 03", "Colombo")
}

func (f *fixture) assigned(t *testing.T) (*models.Assignment, *models.InspectionRequest) {
	t.Helper()
	testutil.SeedLocation(t, f.d, f.insp1.ID, colomboLat, colomboLng, models.LocationStatusAvailable, "Fort, Colombo")
	req := f.nearRequest(t)
	res, err := f.svc.Assign(context.Background(), req.ID, f.insp1.ID)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	return res.Assignment, req
}
