package geo

import (
	"math"
	"testing"
)

func TestDistanceKm_ZeroDistance(t *testing.T) {
	d := DistanceKm(6.9271, 79.8612, 6.9271, 79.8612)
	if d != 0 {
		t.Fatalf("zero distance expected, got %v", d)
	}
}

func TestDistanceKm_Symmetric(t *testing.T) {
	pairs := [][4]float64{
		{6.9271, 79.8612, 7.2906, 80.6337},
		{-33.8688, 151.2093, 51.5074, -0.1278},
		{0, 0, 0, 179.9},
	}
	for _, p := range pairs {
		ab := DistanceKm(p[0], p[1], p[2], p[3])
		ba := DistanceKm(p[2], p[3], p[0], p[1])
		if math.Abs(ab-ba) > 1e-9 {
			t.Fatalf("asymmetric distance for %v: %v vs %v", p, ab, ba)
		}
		if ab < 0 {
			t.Fatalf("negative distance for %v: %v", p, ab)
		}
	}
}

func TestDistanceKm_KnownPairs(t *testing.T) {
	// Colombo Fort to a property ~0.5 km away.
	near := DistanceKm(6.9271, 79.8612, 6.9300, 79.8650)
	if near < 0.4 || near > 0.7 {
		t.Fatalf("near distance = %v, want ~0.5", near)
	}
	// Colombo to Kandy is roughly 95 km as the crow flies.
	far := DistanceKm(6.9271, 79.8612, 7.2906, 80.6337)
	if far < 93 || far > 97 {
		t.Fatalf("Colombo-Kandy = %v, want ~95", far)
	}
}

func TestWithinKm_Boundary(t *testing.T) {
	if !WithinKm(6.9271, 79.8612, 6.9300, 79.8650, DefaultMaxDistanceKm) {
		t.Fatalf("expected points to be within %v km", DefaultMaxDistanceKm)
	}
	if WithinKm(6.9271, 79.8612, 7.2906, 80.6337, DefaultMaxDistanceKm) {
		t.Fatalf("expected Colombo-Kandy to exceed %v km", DefaultMaxDistanceKm)
	}
}

func TestValidCoordinates(t *testing.T) {
	cases := []struct {
		lat, lng float64
		ok       bool
	}{
		{6.9, 79.8, true},
		{90, 180, true},
		{-90.0001, 0, false},
		{0, 180.5, false},
		{math.NaN(), 0, false},
		{0, math.Inf(1), false},
	}
	for _, c := range cases {
		if got := ValidCoordinates(c.lat, c.lng); got != c.ok {
			t.Fatalf("ValidCoordinates(%v, %v) = %v, want %v", c.lat, c.lng, got, c.ok)
		}
	}
}

func TestRegionFor(t *testing.T) {
	if got := RegionFor("12 Temple Rd", "Kandy"); got != "Central" {
		t.Fatalf("explicit city: got %q", got)
	}
	if got := RegionFor("45 Galle Rd, Colombo 03", ""); got != "Western" {
		t.Fatalf("city from address: got %q", got)
	}
	if got := RegionFor("1 Main St, Springfield", ""); got != DefaultRegion {
		t.Fatalf("unknown city: got %q", got)
	}
}
