package geo

import (
	"math"
	"testing"
)

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestHaversineIdentities(t *testing.T) {
	points := []LatLon{
		NewLatLon(51.5, -0.1),
		NewLatLon(0, 0),
		NewLatLon(-33.9, 151.2),
		NewLatLon(89.9, 179.9),
	}
	for _, p := range points {
		if d := HaversineDistance(p, p); d != 0 {
			t.Errorf("dist(%v, %v) = %f, want 0", p, p, d)
		}
	}

	a := NewLatLon(51.5, -0.1)
	b := NewLatLon(48.85, 2.35)
	if diff := math.Abs(HaversineDistance(a, b) - HaversineDistance(b, a)); diff > 1e-9 {
		t.Errorf("distance not commutative, diff=%g", diff)
	}
}

func TestBearingCardinals(t *testing.T) {
	p := NewLatLon(45, 0)
	const oneKm = 1000.0

	north := NewLatLon(offsetLat(p, 0, oneKm), p.Longitude)
	_ = north

	cases := []struct {
		name    string
		bearing float64
		want    float64
	}{
		{"north", 0, 0},
		{"east", 90, 90},
		{"south", 180, 180},
		{"west", 270, 270},
	}
	for _, tc := range cases {
		lat2, lon2 := OffsetPoint(p.Latitude, p.Longitude, tc.bearing, oneKm)
		got := InitialBearing(p, NewLatLon(lat2, lon2))
		// Normalize the angular gap onto [-180, 180] before comparing magnitude.
		gap := AngleDifference(tc.want, got)
		if math.Abs(gap) > 0.1 {
			t.Errorf("%s: bearing = %f, want within 0.1 of %f (gap=%f)", tc.name, got, tc.want, gap)
		}
	}
}

func offsetLat(p LatLon, bearing, dist float64) float64 {
	lat, _ := OffsetPoint(p.Latitude, p.Longitude, bearing, dist)
	return lat
}

func TestAngleDifferenceRange(t *testing.T) {
	for a := 0.0; a < 360; a += 37 {
		for b := 0.0; b < 360; b += 53 {
			d := AngleDifference(a, b)
			if d < -180 || d > 180 {
				t.Fatalf("AngleDifference(%f, %f) = %f, out of [-180, 180]", a, b, d)
			}
		}
	}
}

func TestOffsetRoundTrip(t *testing.T) {
	origin := NewLatLon(51.5, -0.1)
	for _, bearing := range []float64{0, 45, 90, 135, 180, 225, 270, 315} {
		for _, dist := range []float64{10, 500, 10000} {
			lat2, lon2 := OffsetPoint(origin.Latitude, origin.Longitude, bearing, dist)
			got := HaversineDistance(origin, NewLatLon(lat2, lon2))
			tolerance := dist * 0.001 // 0.1%
			if math.Abs(got-dist) > tolerance {
				t.Errorf("bearing=%f dist=%f: round-trip distance = %f, want within %f of %f", bearing, dist, got, tolerance, dist)
			}
		}
	}
}

func TestCumulativeDistancesMonotonic(t *testing.T) {
	pts := []Point{
		NewLatLon(51.500, -0.100),
		NewLatLon(51.501, -0.100),
		NewLatLon(51.502, -0.099),
		NewLatLon(51.502, -0.099), // repeated point: zero-length segment
		NewLatLon(51.505, -0.095),
	}
	cum := CumulativeDistances(pts)
	if cum[0] != 0 {
		t.Fatalf("cumulative[0] = %f, want 0", cum[0])
	}
	for i := 1; i < len(cum); i++ {
		if cum[i] < cum[i-1] {
			t.Fatalf("cumulative distances not monotonic at %d: %f < %f", i, cum[i], cum[i-1])
		}
	}
}

func TestCurvatureSignReversal(t *testing.T) {
	p1 := NewLatLon(51.500, -0.100)
	p2 := NewLatLon(51.501, -0.100)
	p3 := NewLatLon(51.502, -0.099) // turn to the right of the p1->p2 heading

	c1 := Curvature(p1, p2, p3)
	if c1 == 0 {
		t.Fatal("expected non-zero curvature for a non-collinear triple")
	}

	// Mirror p3 across the p1->p2 line (which runs due north, i.e. constant
	// longitude): negate the longitude offset from that line.
	mirroredLon := p1.Longitude - (p3.Longitude - p1.Longitude)
	mirrored := NewLatLon(p3.Latitude, mirroredLon)

	c2 := Curvature(p1, p2, mirrored)
	if math.Signbit(c1) == math.Signbit(c2) {
		t.Fatalf("expected opposite signs, got c1=%f c2=%f", c1, c2)
	}
	if !almostEqual(math.Abs(c1), math.Abs(c2), math.Abs(c1)*0.05+1e-6) {
		t.Fatalf("expected similar magnitude, got c1=%f c2=%f", c1, c2)
	}
}

func TestCurvatureCollinearIsZero(t *testing.T) {
	p1 := NewLatLon(51.500, -0.100)
	p2 := NewLatLon(51.501, -0.100)
	p3 := NewLatLon(51.502, -0.100)
	if c := Curvature(p1, p2, p3); c != 0 {
		t.Errorf("collinear curvature = %f, want 0", c)
	}
}

func TestClosestPointOnSegmentDegenerate(t *testing.T) {
	a := NewLatLon(51.5, -0.1)
	b := NewLatLon(51.5, -0.1) // degenerate: zero length
	p := NewLatLon(51.501, -0.099)

	pt, tVal := ClosestPointOnSegment(p, a, b)
	if tVal != 0 {
		t.Errorf("t = %f, want 0 for degenerate segment", tVal)
	}
	if pt.Lat() != a.Lat() || pt.Lon() != a.Lon() {
		t.Errorf("closest point = %v, want %v", pt, a)
	}
}

func TestClosestPointOnSegmentMidpoint(t *testing.T) {
	a := NewLatLon(51.500, -0.100)
	b := NewLatLon(51.502, -0.100)
	p := NewLatLon(51.501, -0.105) // off to the side, level with the midpoint

	_, tVal := ClosestPointOnSegment(p, a, b)
	if !almostEqual(tVal, 0.5, 0.05) {
		t.Errorf("t = %f, want close to 0.5", tVal)
	}
}
