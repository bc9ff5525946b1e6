package corner

import (
	"math"
	"testing"

	"github.com/banshee-data/copilot/internal/geo"
)

// arcPoints builds points along a circle of radius r (metres) centred at
// the origin, sweeping from startDeg to endDeg in stepDeg increments,
// traversed in the direction of increasing angle. Because lat/lon near the
// equator are locally near-orthonormal at this scale, this also exercises
// geo.Curvature's real formula rather than a synthetic value.
func arcPoints(r float64, startDeg, endDeg, stepDeg float64) []geo.Point {
	const metresPerDegree = 111000.0
	rDeg := r / metresPerDegree

	var pts []geo.Point
	for a := startDeg; a <= endDeg+1e-9; a += stepDeg {
		rad := a * math.Pi / 180
		lon := rDeg * math.Cos(rad)
		lat := rDeg * math.Sin(rad)
		pts = append(pts, geo.NewLatLon(lat, lon))
	}
	return pts
}

// reversePoints returns pts traversed in the opposite order, turning a
// counter-clockwise sweep into a clockwise one (or vice versa).
func reversePoints(pts []geo.Point) []geo.Point {
	out := make([]geo.Point, len(pts))
	for i, p := range pts {
		out[len(pts)-1-i] = p
	}
	return out
}

func straightPoints(n int, stepMetres float64) []geo.Point {
	const metresPerDegree = 111000.0
	stepDeg := stepMetres / metresPerDegree
	var pts []geo.Point
	for i := 0; i < n; i++ {
		pts = append(pts, geo.NewLatLon(float64(i)*stepDeg, 0))
	}
	return pts
}

// TestDetectCornersPhysicallyLeftTurnCallsLeft proves the curvature sign
// convention decision end to end: a driver travelling east and curving
// around to head north (a real left turn, not just a sign in isolation)
// must be classified Direction == Left.
func TestDetectCornersPhysicallyLeftTurnCallsLeft(t *testing.T) {
	// Counter-clockwise sweep: tangent at the start heads east, tangent at
	// the end heads north. A driver following this path turns left.
	pts := arcPoints(100, -90, 0, 15)

	corners := DetectCorners(pts, 0, DefaultParams(), false)
	if len(corners) == 0 {
		t.Fatal("expected at least one corner on a 100m-radius quarter-circle arc")
	}
	if corners[0].Direction != Left {
		t.Errorf("Direction = %v, want Left for a physically-left turn", corners[0].Direction)
	}
}

func TestDetectCornersPhysicallyRightTurnCallsRight(t *testing.T) {
	// The same quarter-circle as the left-turn test, traversed in reverse:
	// tangent at the start heads east, tangent at the end heads south. A
	// driver following this path turns right.
	pts := reversePoints(arcPoints(100, 0, 90, 15))

	corners := DetectCorners(pts, 0, DefaultParams(), false)
	if len(corners) == 0 {
		t.Fatal("expected at least one corner on a 100m-radius quarter-circle arc")
	}
	if corners[0].Direction != Right {
		t.Errorf("Direction = %v, want Right for a physically-right turn", corners[0].Direction)
	}
}

func TestDetectCornersStraightRoadHasNoCorners(t *testing.T) {
	pts := straightPoints(20, 20)

	corners := DetectCorners(pts, 0, DefaultParams(), false)
	if len(corners) != 0 {
		t.Errorf("expected no corners on a straight road, got %d", len(corners))
	}
}

func TestDetectCornersTooFewPointsReturnsNil(t *testing.T) {
	pts := straightPoints(3, 20)
	if corners := DetectCorners(pts, 0, DefaultParams(), false); corners != nil {
		t.Errorf("expected nil for < 5 points, got %v", corners)
	}
}

// TestPeakCutsDetectsBoundaryIndices proves peakCuts checks every interior
// index (1..len-2), including the two nearest the ends of a 5-point
// curvature slice, the smallest input DetectCorners accepts, where a
// narrower loop range can silently never reach a boundary peak.
func TestPeakCutsDetectsBoundaryIndices(t *testing.T) {
	const tau = 0.005

	t.Run("peak at index 1", func(t *testing.T) {
		curvature := []float64{0, 2.0, 0.1, 0.1, 0}
		cuts := peakCuts(curvature, tau)
		if !containsInt(cuts, 1) {
			t.Errorf("peakCuts(%v) = %v, want index 1 included", curvature, cuts)
		}
	})

	t.Run("peak at index len-2", func(t *testing.T) {
		curvature := []float64{0, 0.1, 0.1, 2.0, 0}
		cuts := peakCuts(curvature, tau)
		if !containsInt(cuts, 3) {
			t.Errorf("peakCuts(%v) = %v, want index 3 included", curvature, cuts)
		}
	})
}

func containsInt(vals []int, target int) bool {
	for _, v := range vals {
		if v == target {
			return true
		}
	}
	return false
}

func TestSeverityFromRadiusBuckets(t *testing.T) {
	cases := []struct {
		radius float64
		want   Severity
	}{
		{10, SeverityHairpin},
		{29, Severity2},
		{49, Severity3},
		{79, Severity4},
		{119, Severity5},
		{199, Severity6},
		{500, SeverityKink},
	}
	for _, c := range cases {
		if got := severityFromRadius(c.radius); got != c.want {
			t.Errorf("severityFromRadius(%f) = %d, want %d", c.radius, got, c.want)
		}
	}
}

func TestDetectCornersTightHairpinSeverity(t *testing.T) {
	// A very tight radius (10m) quarter circle should be a severity-1
	// hairpin.
	pts := arcPoints(10, -90, 0, 10)

	corners := DetectCorners(pts, 0, DefaultParams(), false)
	if len(corners) == 0 {
		t.Fatal("expected a corner on a 10m-radius arc")
	}
	if corners[0].Severity != SeverityHairpin {
		t.Errorf("Severity = %d, want %d (hairpin)", corners[0].Severity, SeverityHairpin)
	}
}

func TestMergeChicanesCombinesOppositeDirectionPair(t *testing.T) {
	a := Corner{EntryDistance: 0, ApexDistance: 20, ExitDistance: 40, Direction: Left, MinRadius: 50, TotalAngle: 30}
	b := Corner{EntryDistance: 45, ApexDistance: 60, ExitDistance: 80, Direction: Right, MinRadius: 40, TotalAngle: 35}

	merged := MergeChicanes([]Corner{a, b}, DefaultParams())
	if len(merged) != 1 {
		t.Fatalf("expected chicane pair to merge into 1 corner, got %d", len(merged))
	}
	c := merged[0]
	if !c.IsChicane {
		t.Error("expected IsChicane = true")
	}
	if c.Direction != Left || c.ExitDirection != Right {
		t.Errorf("Direction/ExitDirection = %v/%v, want Left/Right", c.Direction, c.ExitDirection)
	}
	if c.MinRadius != 40 {
		t.Errorf("MinRadius = %f, want 40 (min of the two)", c.MinRadius)
	}
}

func TestMergeChicanesLeavesNonAdjacentPairAlone(t *testing.T) {
	a := Corner{EntryDistance: 0, ApexDistance: 20, ExitDistance: 40, Direction: Left, MinRadius: 50}
	b := Corner{EntryDistance: 200, ApexDistance: 220, ExitDistance: 240, Direction: Right, MinRadius: 40}

	merged := MergeChicanes([]Corner{a, b}, DefaultParams())
	if len(merged) != 2 {
		t.Fatalf("expected corners too far apart to stay separate, got %d merged entries", len(merged))
	}
}

func TestDefaultOrchestratorParamsTightensDMin(t *testing.T) {
	lib := DefaultParams()
	orch := DefaultOrchestratorParams()
	if orch.DMin >= lib.DMin {
		t.Errorf("orchestrator DMin = %f, want < library DMin %f", orch.DMin, lib.DMin)
	}
}
