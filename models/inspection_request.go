package models

import "time"

// RequestStatus represents the intake status of an inspection request.
type RequestStatus string

const (
	RequestStatusPending    RequestStatus = "pending"
	RequestStatusAssigned   RequestStatus = "assigned"
	RequestStatusInProgress RequestStatus = "in-progress"
	RequestStatusCompleted  RequestStatus = "completed"
	RequestStatusCancelled  RequestStatus = "cancelled"
)

// InspectionRequest is a client's property inspection ask. The dispatch core
// only reads it; intake owns its creation and status.
type InspectionRequest struct {
	ID              int64  `db:"id" json:"id"`
	ClientID        int64  `db:"client_id" json:"client_id"`
	PropertyAddress string `db:"property_address" json:"property_address"`
	PropertyCity    string `db:"property_city" json:"property_city,omitempty"`
	// Coordinates are nullable; distance checks are skipped when either is nil.
	PropertyLat   *float64      `db:"property_lat" json:"property_lat,omitempty"`
	PropertyLng   *float64      `db:"property_lng" json:"property_lng,omitempty"`
	PropertyType  string        `db:"property_type" json:"property_type"`
	RoomCount     int           `db:"room_count" json:"room_count"`
	FloorCount    int           `db:"floor_count" json:"floor_count"`
	PreferredDate string        `db:"preferred_date" json:"preferred_date"`
	Status        RequestStatus `db:"status" json:"status"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
}

// HasCoordinates reports whether both property coordinates are known.
func (r *InspectionRequest) HasCoordinates() bool {
	return r != nil && r.PropertyLat != nil && r.PropertyLng != nil
}
