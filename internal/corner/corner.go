// Package corner segments a polyline into straights and corners by
// curvature, classifies each corner's severity and tightens/opens/long
// modifiers, and optionally merges same-direction runs and chicanes.
package corner

import (
	"math"
	"sort"

	"github.com/banshee-data/copilot/internal/geo"
)

// Direction is the driver-relative turn direction of a corner.
type Direction string

const (
	Left  Direction = "left"
	Right Direction = "right"
)

// Severity buckets a corner by its minimum radius; 1 is the tightest
// (hairpin), 7 the loosest (kink).
type Severity int

const (
	SeverityHairpin Severity = 1
	Severity2       Severity = 2
	Severity3       Severity = 3
	Severity4       Severity = 4
	Severity5       Severity = 5
	Severity6       Severity = 6
	SeverityKink    Severity = 7
)

// Params tunes the five-phase segmentation and classification. Use
// DefaultParams for the library defaults, or DefaultOrchestratorParams for
// the orchestrator's tighter minimum cut distance.
type Params struct {
	Tau            float64 // curvature peak threshold
	DMin           float64 // minimum cut separation, metres
	DFill          float64 // straight-fill interval, metres
	ThetaMin       float64 // minimum corner angle, degrees
	RMin           float64 // minimum corner radius, metres
	ChicaneMaxGap  float64 // metres
	ChicaneMaxSpan float64 // metres
}

// DefaultParams returns the library's standalone defaults (d_min = 15 m).
func DefaultParams() Params {
	return Params{
		Tau:            0.005,
		DMin:           15,
		DFill:          100,
		ThetaMin:       10,
		RMin:           300,
		ChicaneMaxGap:  15,
		ChicaneMaxSpan: 100,
	}
}

// DefaultOrchestratorParams is DefaultParams with d_min tightened to 10 m,
// the value the live update cycle uses.
func DefaultOrchestratorParams() Params {
	p := DefaultParams()
	p.DMin = 10
	return p
}

// Corner is one classified segment of the polyline.
type Corner struct {
	EntryDistance float64
	ApexDistance  float64
	ExitDistance  float64

	// ApexLat/ApexLon are the apex's absolute position, independent of
	// the vehicle's current offset along the path. Callers that need a
	// dedup/cache key stable for the same physical corner across
	// cycles (the polyline is re-walked from the vehicle's position
	// every cycle, so ApexDistance shifts each time) key off these
	// instead of ApexDistance.
	ApexLat float64
	ApexLon float64

	Direction     Direction
	ExitDirection Direction // only meaningful when IsChicane

	MinRadius float64 // metres; math.Inf(1) when the segment is effectively straight
	TotalAngle float64 // degrees, total turned angle across the segment
	Severity  Severity

	Tightens bool
	Opens    bool
	Long     bool

	IsChicane bool
}

// segment is an internal working record before corner/straight
// classification and severity assignment.
type segment struct {
	startIdx, endIdx int // indices into the points/distances/curvature slices
	isCorner         bool
}

// DetectCorners segments points (≥ 5, offset-distance-labelled starting at
// startOffset) into corners and straights, returning only the corners.
// mergeSameDirection enables the optional same-direction merge pass (off by
// default in the orchestrator, on in standalone library use).
func DetectCorners(points []geo.Point, startOffset float64, p Params, mergeSameDirection bool) []Corner {
	n := len(points)
	if n < 5 {
		return nil
	}

	distances := cumulativeWithOffset(points, startOffset)
	curvature := pointCurvatures(points)

	cuts := peakCuts(curvature, p.Tau)
	cuts = reduceByDistance(cuts, distances, p.DMin)
	cuts = straightFill(cuts, n-1, distances, p.DFill)
	cuts = signChangeCuts(curvature, distances, cuts, p.DMin)
	cuts = reduceByDistance(cuts, distances, p.DMin)

	boundaries := append([]int{0}, cuts...)
	boundaries = append(boundaries, n-1)
	boundaries = dedupeSortedInts(boundaries)

	var segs []segment
	for i := 0; i+1 < len(boundaries); i++ {
		start, end := boundaries[i], boundaries[i+1]
		if start == end {
			continue
		}
		segs = append(segs, classifySegment(start, end, curvature, distances, p))
	}

	corners := buildCorners(segs, points, curvature, distances, p)

	if mergeSameDirection {
		corners = mergeSameDirectionRuns(corners, segs, curvature, distances, p)
	}

	return corners
}

func cumulativeWithOffset(points []geo.Point, offset float64) []float64 {
	cum := geo.CumulativeDistances(points)
	out := make([]float64, len(cum))
	for i, d := range cum {
		out[i] = d + offset
	}
	return out
}

// pointCurvatures computes the three-point signed curvature at every
// interior point; the first and last points have no defined curvature and
// are left at 0.
func pointCurvatures(points []geo.Point) []float64 {
	n := len(points)
	c := make([]float64, n)
	for i := 1; i < n-1; i++ {
		c[i] = geo.Curvature(points[i-1], points[i], points[i+1])
	}
	return c
}

// peakCuts finds interior indices where |curvature| is a strict local
// maximum and exceeds tau.
func peakCuts(curvature []float64, tau float64) []int {
	var cuts []int
	for i := 1; i < len(curvature)-1; i++ {
		abs := math.Abs(curvature[i])
		if abs <= tau {
			continue
		}
		if abs > math.Abs(curvature[i-1]) && abs > math.Abs(curvature[i+1]) {
			cuts = append(cuts, i)
		}
	}
	return cuts
}

// reduceByDistance groups cuts whose along-path separation is < dMin,
// replacing each group with its median member.
func reduceByDistance(cuts []int, distances []float64, dMin float64) []int {
	if len(cuts) == 0 {
		return cuts
	}
	sorted := append([]int(nil), cuts...)
	sort.Ints(sorted)

	var out []int
	group := []int{sorted[0]}
	for i := 1; i < len(sorted); i++ {
		if distances[sorted[i]]-distances[group[len(group)-1]] < dMin {
			group = append(group, sorted[i])
			continue
		}
		out = append(out, medianOf(group))
		group = []int{sorted[i]}
	}
	out = append(out, medianOf(group))
	return out
}

func medianOf(group []int) int {
	sorted := append([]int(nil), group...)
	sort.Ints(sorted)
	return sorted[len(sorted)/2]
}

// straightFill inserts equidistant filler cuts into any gap (from the
// start, between consecutive cuts, or to lastIdx) exceeding 1.5*dFill.
func straightFill(cuts []int, lastIdx int, distances []float64, dFill float64) []int {
	bounds := append([]int{0}, cuts...)
	bounds = append(bounds, lastIdx)
	bounds = dedupeSortedInts(bounds)

	out := append([]int(nil), cuts...)
	for i := 0; i+1 < len(bounds); i++ {
		a, b := bounds[i], bounds[i+1]
		gap := distances[b] - distances[a]
		if gap <= 1.5*dFill {
			continue
		}
		subSegments := int(math.Round(gap / dFill))
		if subSegments < 2 {
			continue
		}
		for k := 1; k < subSegments; k++ {
			targetDist := distances[a] + gap*float64(k)/float64(subSegments)
			out = append(out, nearestIndex(distances, a, b, targetDist))
		}
	}
	return dedupeSortedInts(out)
}

func nearestIndex(distances []float64, lo, hi int, target float64) int {
	best := lo
	bestDiff := math.Abs(distances[lo] - target)
	for i := lo + 1; i <= hi; i++ {
		diff := math.Abs(distances[i] - target)
		if diff < bestDiff {
			best, bestDiff = i, diff
		}
	}
	return best
}

// signChangeCuts finds, between each pair of consecutive existing cuts, an
// index where curvature changes sign (ignoring magnitudes below 0.001),
// provided it sits at least dMin from both surrounding cuts.
func signChangeCuts(curvature []float64, distances []float64, cuts []int, dMin float64) []int {
	bounds := append([]int{0}, cuts...)
	bounds = append(bounds, len(curvature)-1)
	bounds = dedupeSortedInts(bounds)

	out := append([]int(nil), cuts...)
	for i := 0; i+1 < len(bounds); i++ {
		a, b := bounds[i], bounds[i+1]
		for j := a + 1; j < b; j++ {
			if math.Abs(curvature[j-1]) < 0.001 || math.Abs(curvature[j]) < 0.001 {
				continue
			}
			if sign(curvature[j-1]) == sign(curvature[j]) {
				continue
			}
			if distances[j]-distances[a] < dMin || distances[b]-distances[j] < dMin {
				continue
			}
			out = append(out, j)
			break
		}
	}
	return dedupeSortedInts(out)
}

func sign(v float64) int {
	if v < 0 {
		return -1
	}
	return 1
}

func dedupeSortedInts(vals []int) []int {
	if len(vals) == 0 {
		return vals
	}
	sorted := append([]int(nil), vals...)
	sort.Ints(sorted)
	out := sorted[:1]
	for _, v := range sorted[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}

// classifySegment computes a segment's average curvature, min radius,
// total turned angle, and corner/straight classification per §4.5.2.
func classifySegment(start, end int, curvature, distances []float64, p Params) segment {
	totalAngleDeg, maxAbs, sum, count := segmentAngleAndCurvature(start, end, curvature, distances)
	_ = sum
	_ = count

	minRadius := math.Inf(1)
	if maxAbs >= 1e-4 {
		minRadius = 1 / maxAbs
	}

	isCorner := (totalAngleDeg >= p.ThetaMin && minRadius <= p.RMin) ||
		(totalAngleDeg >= 5 && minRadius < 250) ||
		minRadius < 150 ||
		totalAngleDeg >= 30

	return segment{startIdx: start, endIdx: end, isCorner: isCorner}
}

// segmentAngleAndCurvature returns the total turned angle in degrees, the
// maximum absolute curvature, and the plain signed sum of curvature[start..end]
// together with its point count.
func segmentAngleAndCurvature(start, end int, curvature, distances []float64) (totalAngleDeg, maxAbs, weightedSum, weightCount float64) {
	totalAngleRad := 0.0
	for i := start; i < end; i++ {
		c := curvature[i]
		abs := math.Abs(c)
		if abs > maxAbs {
			maxAbs = abs
		}
		delta := distances[i+1] - distances[i]
		totalAngleRad += abs * delta
	}
	for i := start; i <= end; i++ {
		weightedSum += curvature[i]
		weightCount++
	}
	return totalAngleRad * 180 / math.Pi, maxAbs, weightedSum, weightCount
}

// buildCorners converts the corner-classified segments into Corner
// records: direction, apex, severity, and modifiers.
func buildCorners(segs []segment, points []geo.Point, curvature, distances []float64, p Params) []Corner {
	var corners []Corner
	for _, s := range segs {
		if !s.isCorner {
			continue
		}
		corners = append(corners, cornerFromSegment(s.startIdx, s.endIdx, points, curvature, distances))
	}
	return corners
}

func cornerFromSegment(start, end int, points []geo.Point, curvature, distances []float64) Corner {
	apexIdx := start
	maxAbs := 0.0
	avgSum := 0.0
	for i := start; i <= end; i++ {
		abs := math.Abs(curvature[i])
		avgSum += curvature[i]
		if abs > maxAbs {
			maxAbs, apexIdx = abs, i
		}
	}

	avg := avgSum / float64(end-start+1)
	direction := Right
	if avg > 0 {
		direction = Left
	}

	minRadius := math.Inf(1)
	if maxAbs >= 1e-4 {
		minRadius = 1 / maxAbs
	}

	totalAngleDeg, _, _, _ := segmentAngleAndCurvature(start, end, curvature, distances)

	entryAvg := meanAbsCurvature(curvature, start, apexIdx)
	exitAvg := meanAbsCurvature(curvature, apexIdx, end)

	tightens := false
	opens := false
	if entryAvg > 1e-6 {
		ratio := exitAvg / entryAvg
		tightens = ratio > 1.5
		opens = ratio < 0.67
	}

	length := distances[end] - distances[start]

	return Corner{
		EntryDistance: distances[start],
		ApexDistance:  distances[apexIdx],
		ExitDistance:  distances[end],
		ApexLat:       points[apexIdx].Lat(),
		ApexLon:       points[apexIdx].Lon(),
		Direction:     direction,
		MinRadius:     minRadius,
		TotalAngle:    totalAngleDeg,
		Severity:      severityFromRadius(minRadius),
		Tightens:      tightens,
		Opens:         opens,
		Long:          length > 50,
	}
}

func meanAbsCurvature(curvature []float64, from, to int) float64 {
	if from == to {
		return math.Abs(curvature[from])
	}
	lo, hi := from, to
	if lo > hi {
		lo, hi = hi, lo
	}
	sum := 0.0
	for i := lo; i <= hi; i++ {
		sum += math.Abs(curvature[i])
	}
	return sum / float64(hi-lo+1)
}

func severityFromRadius(minRadius float64) Severity {
	switch {
	case minRadius < 15:
		return SeverityHairpin
	case minRadius < 30:
		return Severity2
	case minRadius < 50:
		return Severity3
	case minRadius < 80:
		return Severity4
	case minRadius < 120:
		return Severity5
	case minRadius < 200:
		return Severity6
	default:
		return SeverityKink
	}
}

// mergeSameDirectionRuns merges consecutive same-direction corner segments,
// possibly bridged by one straight segment no longer than 30m, when the
// combined span is ≤ 80m, per §4.5.3.
func mergeSameDirectionRuns(corners []Corner, segs []segment, curvature, distances []float64, p Params) []Corner {
	if len(corners) < 2 {
		return corners
	}

	straightLengths := straightBridgeLengths(segs, distances)

	var merged []Corner
	i := 0
	for i < len(corners) {
		cur := corners[i]
		j := i + 1
		for j < len(corners) && corners[j].Direction == cur.Direction {
			bridgeLen, hasBridge := straightLengths[bridgeKey(cur.ExitDistance, corners[j].EntryDistance)]
			if hasBridge && bridgeLen > 30 {
				break
			}
			span := corners[j].ExitDistance - cur.EntryDistance
			if span > 80 {
				break
			}
			cur = combineCorners(cur, corners[j])
			j++
		}
		merged = append(merged, cur)
		i = j
	}
	return merged
}

// straightBridgeLengths maps (exitDistance, entryDistance) pairs of
// adjacent straight segments to their length, so mergeSameDirectionRuns can
// check the ≤30m bridging rule without re-deriving segment boundaries.
func straightBridgeLengths(segs []segment, distances []float64) map[[2]float64]float64 {
	out := make(map[[2]float64]float64)
	for _, s := range segs {
		if s.isCorner {
			continue
		}
		out[bridgeKey(distances[s.startIdx], distances[s.endIdx])] = distances[s.endIdx] - distances[s.startIdx]
	}
	return out
}

func bridgeKey(a, b float64) [2]float64 { return [2]float64{a, b} }

func combineCorners(a, b Corner) Corner {
	apex := a
	if b.MinRadius < a.MinRadius {
		apex = b
	}
	minRadius := math.Min(a.MinRadius, b.MinRadius)
	return Corner{
		EntryDistance: a.EntryDistance,
		ApexDistance:  apex.ApexDistance,
		ExitDistance:  b.ExitDistance,
		ApexLat:       apex.ApexLat,
		ApexLon:       apex.ApexLon,
		Direction:     a.Direction,
		MinRadius:     minRadius,
		TotalAngle:    a.TotalAngle + b.TotalAngle,
		Severity:      severityFromRadius(minRadius),
		Tightens:      apex.Tightens,
		Opens:         apex.Opens,
		Long:          (b.ExitDistance - a.EntryDistance) > 50,
	}
}

// MergeChicanes is the optional §4.5.4 post-pass: consecutive corners of
// opposite direction with a short enough gap and total span are combined
// into one chicane Corner.
func MergeChicanes(corners []Corner, p Params) []Corner {
	if len(corners) < 2 {
		return corners
	}

	var out []Corner
	i := 0
	for i < len(corners) {
		if i+1 < len(corners) && isChicanePair(corners[i], corners[i+1], p) {
			out = append(out, chicaneFrom(corners[i], corners[i+1]))
			i += 2
			continue
		}
		out = append(out, corners[i])
		i++
	}
	return out
}

func isChicanePair(a, b Corner, p Params) bool {
	if a.Direction == b.Direction {
		return false
	}
	gap := b.EntryDistance - a.ExitDistance
	span := b.ExitDistance - a.EntryDistance
	return gap <= p.ChicaneMaxGap && span <= p.ChicaneMaxSpan
}

func chicaneFrom(a, b Corner) Corner {
	apex := a
	if b.MinRadius < a.MinRadius {
		apex = b
	}
	minRadius := math.Min(a.MinRadius, b.MinRadius)
	return Corner{
		EntryDistance: a.EntryDistance,
		ApexDistance:  apex.ApexDistance,
		ExitDistance:  b.ExitDistance,
		ApexLat:       apex.ApexLat,
		ApexLon:       apex.ApexLon,
		Direction:     a.Direction,
		ExitDirection: b.Direction,
		MinRadius:     minRadius,
		TotalAngle:    a.TotalAngle + b.TotalAngle,
		Severity:      severityFromRadius(minRadius),
		IsChicane:     true,
	}
}
