// Package geo provides pure geometry primitives used by the
// map store, path projector, and corner detector: great-circle distance,
// bearings, closest-point and three-point curvature calculations over
// geographic coordinates.
//
// Every function is capability-based rather than tied to a concrete type: it
// accepts anything that can report a (lat, lon) pair, so the same code works
// over raw coordinate pairs and over richer records such as a projected
// path's PathPoint.
package geo

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// EarthRadiusMeters is the mean Earth radius used throughout the engine.
const EarthRadiusMeters = 6371000.0

// Point is the minimal capability every geometry function needs: something
// that can report its latitude and longitude in degrees.
type Point interface {
	Lat() float64
	Lon() float64
}

// LatLon is a plain (lat, lon) pair implementing Point. It is the concrete
// type geometry helpers return and the type literals are constructed from.
type LatLon struct {
	Latitude  float64
	Longitude float64
}

func (p LatLon) Lat() float64 { return p.Latitude }
func (p LatLon) Lon() float64 { return p.Longitude }

// NewLatLon is a convenience constructor.
func NewLatLon(lat, lon float64) LatLon {
	return LatLon{Latitude: lat, Longitude: lon}
}

func toRad(deg float64) float64 { return deg * math.Pi / 180 }
func toDeg(rad float64) float64 { return rad * 180 / math.Pi }

// HaversineDistance returns the great-circle distance between a and b in
// metres. It is commutative and zero for coincident points.
func HaversineDistance(a, b Point) float64 {
	lat1, lon1 := toRad(a.Lat()), toRad(a.Lon())
	lat2, lon2 := toRad(b.Lat()), toRad(b.Lon())

	dLat := lat2 - lat1
	dLon := lon2 - lon1

	sinDLat := math.Sin(dLat / 2)
	sinDLon := math.Sin(dLon / 2)

	h := sinDLat*sinDLat + math.Cos(lat1)*math.Cos(lat2)*sinDLon*sinDLon
	h = math.Min(1, math.Max(0, h))

	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusMeters * c
}

// InitialBearing returns the forward azimuth from a to b in degrees, in
// [0, 360). Coincident points have no well-defined bearing and return 0.
func InitialBearing(a, b Point) float64 {
	lat1, lon1 := toRad(a.Lat()), toRad(a.Lon())
	lat2, lon2 := toRad(b.Lat()), toRad(b.Lon())

	if a.Lat() == b.Lat() && a.Lon() == b.Lon() {
		return 0
	}

	dLon := lon2 - lon1
	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)

	theta := math.Atan2(y, x)
	deg := math.Mod(toDeg(theta)+360, 360)
	return deg
}

// AngleDifference returns the smallest signed rotation in degrees, in
// [-180, 180], that takes bearing a to bearing b.
func AngleDifference(a, b float64) float64 {
	diff := math.Mod(b-a+540, 360) - 180
	return diff
}

// OffsetPoint returns the point reached by travelling distanceMeters along
// bearingDeg from (lat, lon), computed as a forward geodesic on a sphere.
func OffsetPoint(lat, lon, bearingDeg, distanceMeters float64) (float64, float64) {
	angDist := distanceMeters / EarthRadiusMeters
	bearing := toRad(bearingDeg)
	lat1 := toRad(lat)
	lon1 := toRad(lon)

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(angDist) + math.Cos(lat1)*math.Sin(angDist)*math.Cos(bearing))
	lon2 := lon1 + math.Atan2(
		math.Sin(bearing)*math.Sin(angDist)*math.Cos(lat1),
		math.Cos(angDist)-math.Sin(lat1)*math.Sin(lat2),
	)

	lon2 = math.Mod(lon2+3*math.Pi, 2*math.Pi) - math.Pi
	return toDeg(lat2), toDeg(lon2)
}

// planarXY projects p into a locally linearised metric plane (metres) around
// origin, with longitude scaled by cos(origin.Lat) so the plane is locally
// equidistant in both axes.
func planarXY(origin, p Point) (x, y float64) {
	latRad := toRad(origin.Lat())
	x = (p.Lon() - origin.Lon()) * EarthRadiusMeters * math.Cos(latRad) * math.Pi / 180
	y = (p.Lat() - origin.Lat()) * EarthRadiusMeters * math.Pi / 180
	return x, y
}

// ClosestPointOnSegment returns the closest point to p on segment [a, b] and
// the parametric position t in [0, 1] along that segment. The computation is
// performed in a locally linearised metric plane centred on p. A degenerate
// (zero-length) segment returns (a, 0).
func ClosestPointOnSegment(p, a, b Point) (LatLon, float64) {
	ax, ay := planarXY(p, a)
	bx, by := planarXY(p, b)

	dx := bx - ax
	dy := by - ay

	lenSq := dx*dx + dy*dy
	if lenSq < 1e-12 {
		return LatLon{Latitude: a.Lat(), Longitude: a.Lon()}, 0
	}

	// p is the origin of the plane, i.e. at (0, 0).
	t := -(ax*dx + ay*dy) / lenSq
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}

	lat := a.Lat() + t*(b.Lat()-a.Lat())
	lon := a.Lon() + t*(b.Lon()-a.Lon())
	return LatLon{Latitude: lat, Longitude: lon}, t
}

// Curvature returns the signed curvature (1/metres) of the circle through
// p1, p2, p3, computed via the circumscribed-circle formula in a locally
// linearised metric plane centred on p1. Positive values indicate the turn
// at p2 is geometrically to the left (anti-clockwise in lat/lon space).
// Collinear or sub-millimetre triangles, and radii below 0.1m, return 0.
func Curvature(p1, p2, p3 Point) float64 {
	x1, y1 := 0.0, 0.0
	x2, y2 := planarXY(p1, p2)
	x3, y3 := planarXY(p1, p3)

	// Twice the signed area of the triangle; its sign gives turn direction.
	area2 := (x2-x1)*(y3-y1) - (x3-x1)*(y2-y1)

	a := math.Hypot(x2-x1, y2-y1)
	b := math.Hypot(x3-x2, y3-y2)
	c := math.Hypot(x3-x1, y3-y1)

	if math.Abs(area2) < 1e-9 || a < 1e-6 || b < 1e-6 || c < 1e-6 {
		return 0
	}

	// Circumradius R = (a*b*c) / (4 * area), area = |area2| / 2.
	area := math.Abs(area2) / 2
	radius := (a * b * c) / (4 * area)
	if radius < 0.1 {
		return 0
	}

	curvature := 1 / radius
	if area2 < 0 {
		curvature = -curvature
	}
	return curvature
}

// CumulativeDistances returns the running great-circle distance along the
// polyline pts, starting with 0 for the first point. The result is always
// non-decreasing.
func CumulativeDistances(pts []Point) []float64 {
	if len(pts) == 0 {
		return nil
	}
	segments := make([]float64, len(pts))
	segments[0] = 0
	for i := 1; i < len(pts); i++ {
		segments[i] = HaversineDistance(pts[i-1], pts[i])
	}
	cumulative := make([]float64, len(segments))
	copy(cumulative, segments)
	floats.CumSum(cumulative, cumulative)
	return cumulative
}
