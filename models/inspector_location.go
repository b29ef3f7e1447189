package models

import "time"

// LocationStatus is an inspector's availability for new work.
type LocationStatus string

const (
	LocationStatusAvailable LocationStatus = "available"
	LocationStatusBusy      LocationStatus = "busy"
	LocationStatusOffline   LocationStatus = "offline"
)

// Valid reports whether s is one of the known statuses.
func (s LocationStatus) Valid() bool {
	switch s {
	case LocationStatusAvailable, LocationStatusBusy, LocationStatusOffline:
		return true
	}
	return false
}

// InspectorLocation is the single live position/availability record of an inspector.
// There is exactly one row per inspector (inspector_id is the primary key).
type InspectorLocation struct {
	InspectorID int64          `db:"inspector_id" json:"inspector_id"`
	Lat         float64        `db:"lat" json:"lat"`
	Lng         float64        `db:"lng" json:"lng"`
	Address     string         `db:"address" json:"address"`
	Region      string         `db:"region" json:"region"`
	Status      LocationStatus `db:"status" json:"status"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
}
