package testutil

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	jwt "github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc/metadata"

	"inspectionDispatch/internal/db"
	"inspectionDispatch/models"
	"inspectionDispatch/repository"
)

// OpenInMemoryDB opens an in-memory SQLite database and applies migrations.
// The database is closed via t.Cleanup.
func OpenInMemoryDB(t *testing.T, name string) *sql.DB {
	t.Helper()
	// Shared cache keeps the schema alive across pool connections.
	d, err := db.Open("file:" + name + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// SeedUser inserts a user with the given role.
func SeedUser(t *testing.T, d *sql.DB, username, role string) *models.User {
	t.Helper()
	u, err := repository.NewUserRepository(d).Create(context.Background(), &models.User{
		Username: username,
		Role:     role,
		FullName: username + " full",
		Phone:    "+94 77 123 4567",
	})
	if err != nil {
		t.Fatalf("seed user %s: %v", username, err)
	}
	return u
}

// SeedRequest inserts a pending inspection request. Nil coordinates leave the
// property unlocated.
func SeedRequest(t *testing.T, d *sql.DB, clientID int64, lat, lng *float64, address, city string) *models.InspectionRequest {
	t.Helper()
	r, err := repository.NewRequestRepository(d).Create(context.Background(), &models.InspectionRequest{
		ClientID:        clientID,
		PropertyAddress: address,
		PropertyCity:    city,
		PropertyLat:     lat,
		PropertyLng:     lng,
		PropertyType:    "house",
		RoomCount:       3,
		FloorCount:      2,
		PreferredDate:   "2026-11-02",
	})
	if err != nil {
		t.Fatalf("seed request: %v", err)
	}
	return r
}

// SeedLocation writes an inspector location row directly.
func SeedLocation(t *testing.T, d *sql.DB, inspectorID int64, lat, lng float64, status models.LocationStatus, address string) {
	t.Helper()
	err := repository.NewLocationRepository(d).Upsert(context.Background(), &models.InspectorLocation{
		InspectorID: inspectorID,
		Lat:         lat,
		Lng:         lng,
		Address:     address,
		Region:      "Western",
		Status:      status,
	})
	if err != nil {
		t.Fatalf("seed location: %v", err)
	}
}

// Notified is one call captured by RecordingNotifier.
type Notified struct {
	UserID  int64
	Role    string
	Event   string
	Payload map[string]any
}

// RecordingNotifier captures notifications. Online lists the user ids for which
// NotifyUser reports delivery.
type RecordingNotifier struct {
	mu     sync.Mutex
	Online map[int64]bool
	calls  []Notified
}

func (n *RecordingNotifier) NotifyUser(_ context.Context, userID int64, event string, payload map[string]any) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, Notified{UserID: userID, Event: event, Payload: payload})
	return n.Online[userID]
}

func (n *RecordingNotifier) NotifyRole(_ context.Context, role, event string, payload map[string]any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, Notified{Role: role, Event: event, Payload: payload})
}

// Calls returns a copy of everything recorded so far.
func (n *RecordingNotifier) Calls() []Notified {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Notified, len(n.calls))
	copy(out, n.calls)
	return out
}

// Find returns the first call with the given event.
func (n *RecordingNotifier) Find(event string) (Notified, bool) {
	for _, c := range n.Calls() {
		if c.Event == event {
			return c, true
		}
	}
	return Notified{}, false
}

// GenerateJWTHS256 returns a signed JWT string with the claims used by the app.
func GenerateJWTHS256(t *testing.T, secret string, uid int64, name, kind string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"uid":  uid,
		"name": name,
		"kind": kind,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

// CtxWithBearer returns a context containing gRPC metadata Authorization header with the given token.
func CtxWithBearer(ctx context.Context, token string) context.Context {
	md := metadata.Pairs("authorization", "Bearer "+token)
	return metadata.NewIncomingContext(ctx, md)
}
