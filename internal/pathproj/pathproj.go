// Package pathproj projects a driving path forward along the road graph
// from a GPS fix: it finds the road the driver is currently on, then walks
// the graph out to a lookahead distance, collecting a polyline and the
// features (junctions, bridges, surface changes, hazards) encountered
// along the way.
package pathproj

import (
	"fmt"
	"math"

	"github.com/banshee-data/copilot/internal/geo"
	"github.com/banshee-data/copilot/internal/mapstore"
)

// RoadClassPriority ranks road classes for current-way scoring: lower is
// more major. Road classes absent from this table (unrecognised tags) get
// the lowest priority, one worse than "service".
var RoadClassPriority = map[string]int{
	"motorway":       1,
	"motorway_link":  1,
	"trunk":          2,
	"trunk_link":     2,
	"primary":        3,
	"primary_link":   3,
	"secondary":      4,
	"secondary_link": 4,
	"tertiary":       5,
	"tertiary_link":  5,
	"unclassified":   6,
	"residential":    7,
	"living_street":  8,
	"service":        9,
}

func roadClassPriority(class string) int {
	if p, ok := RoadClassPriority[class]; ok {
		return p
	}
	return 10
}

// FeatureKind tags the payload carried by a FeatureAhead.
type FeatureKind int

const (
	FeatureJunction FeatureKind = iota
	FeatureBridge
	FeatureTunnel
	FeatureFord
	FeatureSpeedBump
	FeatureNarrow
	FeatureSurfaceChange
	FeatureRailwayCrossing
	FeatureBarrier
)

func (k FeatureKind) String() string {
	switch k {
	case FeatureJunction:
		return "junction"
	case FeatureBridge:
		return "bridge"
	case FeatureTunnel:
		return "tunnel"
	case FeatureFord:
		return "ford"
	case FeatureSpeedBump:
		return "speed_bump"
	case FeatureNarrow:
		return "narrow"
	case FeatureSurfaceChange:
		return "surface_change"
	case FeatureRailwayCrossing:
		return "railway_crossing"
	case FeatureBarrier:
		return "barrier"
	default:
		return "unknown"
	}
}

// JunctionPayload carries the extra detail recorded for a FeatureJunction.
type JunctionPayload struct {
	NodeID           int64
	IsTJunction      bool
	OutgoingBearings []float64
	ChosenBearing    float64
	TurnDirection    string // "left", "right", "straight"
}

// NarrowPayload carries the way width for a FeatureNarrow.
type NarrowPayload struct{ WidthMeters float64 }

// SurfaceChangePayload carries the new surface tag for a FeatureSurfaceChange.
type SurfaceChangePayload struct{ Surface string }

// BarrierPayload carries the barrier kind for a FeatureBarrier.
type BarrierPayload struct{ Kind string }

// TrafficCalmingPayload carries the traffic-calming tag for a FeatureSpeedBump.
type TrafficCalmingPayload struct{ Kind string }

// FeatureAhead is one feature encountered while walking the graph, tagged by
// Kind with a kind-specific Payload rather than living in its own parallel
// list.
type FeatureAhead struct {
	Kind     FeatureKind
	Distance float64
	Position geo.LatLon
	WayID    int64 // set for way-keyed features (bridge/tunnel/ford/narrow/surface)
	NodeID   int64 // set for node-keyed features (junction/crossing/barrier)
	Payload  interface{}
}

// PathPoint is one emitted polyline vertex, distance measured from the
// projection's start.
type PathPoint struct {
	Distance float64
	Position geo.LatLon
}

func (p PathPoint) Lat() float64 { return p.Position.Lat() }
func (p PathPoint) Lon() float64 { return p.Position.Lon() }

// ProjectedPath is the result of walking the graph out to a lookahead
// distance: an ordered polyline plus the features collected along the way.
type ProjectedPath struct {
	Points      []PathPoint
	Features    []FeatureAhead
	TotalLength float64
}

// Candidate is a scored current-way match from FindCurrentWay.
type Candidate struct {
	WayID     int64
	NodeIndex int // index of the segment's start node within the way
	Forward   bool
	Score     float64
	Distance  float64 // perpendicular distance to the driver, metres
}

// FindCurrentWay scores every way passing within searchRadius of (lat, lon)
// and returns the best match.
func FindCurrentWay(net *mapstore.RoadNetwork, lat, lon, heading, searchRadius, headingTolerance float64) (Candidate, bool) {
	query := geo.NewLatLon(lat, lon)

	var aligned, fallback []Candidate

	for wayID, way := range net.Ways {
		if len(way.NodeIDs) < 2 {
			continue
		}
		for i := 0; i < len(way.NodeIDs)-1; i++ {
			a, aok := net.Nodes[way.NodeIDs[i]]
			b, bok := net.Nodes[way.NodeIDs[i+1]]
			if !aok || !bok {
				continue
			}

			closest, _ := geo.ClosestPointOnSegment(query, a, b)
			perp := geo.HaversineDistance(query, closest)
			if perp > searchRadius {
				continue
			}

			segBearing := geo.InitialBearing(a, b)
			diff := geo.AngleDifference(heading, segBearing)
			forward := math.Abs(diff) < 90

			var angularError float64
			if forward {
				angularError = math.Abs(diff)
			} else {
				angularError = 180 - math.Abs(diff)
			}

			score := float64(roadClassPriority(way.RoadClass))*50 + perp
			cand := Candidate{WayID: wayID, NodeIndex: i, Forward: forward, Score: score, Distance: perp}

			if angularError > headingTolerance {
				fallback = append(fallback, cand)
			} else {
				aligned = append(aligned, cand)
			}
		}
	}

	if best, ok := lowestScore(aligned); ok {
		return best, true
	}

	var nearFallback []Candidate
	for _, c := range fallback {
		if c.Distance < 30 {
			nearFallback = append(nearFallback, c)
		}
	}
	return lowestScore(nearFallback)
}

func lowestScore(cands []Candidate) (Candidate, bool) {
	if len(cands) == 0 {
		return Candidate{}, false
	}
	best := cands[0]
	for _, c := range cands[1:] {
		if c.Score < best.Score {
			best = c
		}
	}
	return best, true
}

// walkState tracks mutable context carried across the graph walk.
type walkState struct {
	net            *mapstore.RoadNetwork
	visitedWays    map[int64]bool
	currentSurface string
	firstWay       bool
	distAccum      float64
	points         []PathPoint
	features       []FeatureAhead
}

// WalkGraph walks the road graph starting at (wayID, nodeIndex) in the given
// direction, out to lookaheadMeters. route, if non-nil, is an externally
// supplied route polyline used to pick the junction exit that stays on
// route rather than the one the heading tolerance alone would choose.
func WalkGraph(net *mapstore.RoadNetwork, wayID int64, nodeIndex int, forward bool, lookaheadMeters, headingTolerance float64, route []geo.LatLon) (*ProjectedPath, error) {
	way, ok := net.Ways[wayID]
	if !ok {
		return nil, fmt.Errorf("pathproj: unknown starting way %d", wayID)
	}
	startNodeID := way.NodeIDs[nodeIndex]
	startNode, ok := net.Nodes[startNodeID]
	if !ok {
		return nil, fmt.Errorf("pathproj: unknown starting node %d", startNodeID)
	}

	st := &walkState{
		net:         net,
		visitedWays: make(map[int64]bool),
		firstWay:    true,
		points:      []PathPoint{{Distance: 0, Position: geo.NewLatLon(startNode.Lat(), startNode.Lon())}},
	}

	curWayID := wayID
	curIdx := nodeIndex
	curForward := forward

	for st.distAccum < lookaheadMeters {
		way := net.Ways[curWayID]
		st.emitWayStartFeatures(curWayID, way)

		endIdx, stoppedShort := st.walkWay(way, curIdx, curForward, lookaheadMeters)
		if stoppedShort {
			break
		}

		endNodeID := way.NodeIDs[endIdx]
		nextWayID, nextIdx, nextForward, terminal := st.chooseContinuation(way, endNodeID, curForward, headingTolerance, route)
		if terminal {
			break
		}
		if st.visitedWays[nextWayID] {
			break
		}
		curWayID, curIdx, curForward = nextWayID, nextIdx, nextForward
	}

	st.trimToLookahead(lookaheadMeters)

	return &ProjectedPath{
		Points:      st.points,
		Features:    st.features,
		TotalLength: st.distAccum,
	}, nil
}

// emitWayStartFeatures records bridge/tunnel/ford/traffic-calming/narrow and
// surface-change features the first time a way is entered.
func (st *walkState) emitWayStartFeatures(wayID int64, way *mapstore.Way) {
	if st.visitedWays[wayID] {
		return
	}
	st.visitedWays[wayID] = true

	startNode := st.net.Nodes[way.NodeIDs[0]]
	pos := geo.NewLatLon(startNode.Lat(), startNode.Lon())

	if way.Bridge {
		st.features = append(st.features, FeatureAhead{Kind: FeatureBridge, Distance: st.distAccum, Position: pos, WayID: wayID})
	}
	if way.Tunnel {
		st.features = append(st.features, FeatureAhead{Kind: FeatureTunnel, Distance: st.distAccum, Position: pos, WayID: wayID})
	}
	if way.Ford {
		st.features = append(st.features, FeatureAhead{Kind: FeatureFord, Distance: st.distAccum, Position: pos, WayID: wayID})
	}
	if way.TrafficCalming != "" {
		st.features = append(st.features, FeatureAhead{Kind: FeatureSpeedBump, Distance: st.distAccum, Position: pos, WayID: wayID, Payload: TrafficCalmingPayload{Kind: way.TrafficCalming}})
	}
	if way.Narrow {
		st.features = append(st.features, FeatureAhead{Kind: FeatureNarrow, Distance: st.distAccum, Position: pos, WayID: wayID, Payload: NarrowPayload{WidthMeters: way.Width}})
	}

	if !st.firstWay && way.Surface != st.currentSurface {
		st.features = append(st.features, FeatureAhead{Kind: FeatureSurfaceChange, Distance: st.distAccum, Position: pos, WayID: wayID, Payload: SurfaceChangePayload{Surface: way.Surface}})
	}
	st.currentSurface = way.Surface
	st.firstWay = false
}

// walkWay advances node by node along way from startIdx in the given
// direction, accumulating distance and emitting PathPoints and node-keyed
// hazard features, until either the way ends (returns the end index) or the
// lookahead distance is reached (stoppedShort = true).
func (st *walkState) walkWay(way *mapstore.Way, startIdx int, forward bool, lookaheadMeters float64) (endIdx int, stoppedShort bool) {
	step := 1
	if !forward {
		step = -1
	}

	i := startIdx
	for {
		next := i + step
		if next < 0 || next >= len(way.NodeIDs) {
			return i, false
		}

		a := st.net.Nodes[way.NodeIDs[i]]
		b := st.net.Nodes[way.NodeIDs[next]]
		st.distAccum += geo.HaversineDistance(a, b)
		pos := geo.NewLatLon(b.Lat(), b.Lon())
		st.points = append(st.points, PathPoint{Distance: st.distAccum, Position: pos})

		nodeID := way.NodeIDs[next]
		if _, ok := st.net.RailwayCrossings[nodeID]; ok {
			st.features = append(st.features, FeatureAhead{Kind: FeatureRailwayCrossing, Distance: st.distAccum, Position: pos, NodeID: nodeID})
		}
		if barrier, ok := st.net.Barriers[nodeID]; ok {
			st.features = append(st.features, FeatureAhead{Kind: FeatureBarrier, Distance: st.distAccum, Position: pos, NodeID: nodeID, Payload: BarrierPayload{Kind: barrier.Kind}})
		}

		i = next
		if st.distAccum >= lookaheadMeters {
			return i, true
		}
	}
}

// chooseContinuation picks which way to continue onto at a junction or way
// join, preferring the route polyline's direction when one is supplied and
// falling back to the straightest heading-tolerant exit otherwise. terminal
// is true when the walk cannot proceed further (a true T-junction or a dead
// end).
func (st *walkState) chooseContinuation(way *mapstore.Way, endNodeID int64, arrivalForward bool, headingTolerance float64, route []geo.LatLon) (nextWayID int64, nextIdx int, nextForward bool, terminal bool) {
	incidentWays := uniqueWayIDs(st.net.NodeWays[endNodeID])

	arrivalBearing := st.arrivalBearing(way, endNodeID, arrivalForward)

	if junction, ok := st.net.Junctions[endNodeID]; ok && len(incidentWays) >= 2 {
		outgoing := st.outgoingBearingsAt(endNodeID, way.ID, incidentWays)

		var chosenWayID int64
		var chosenBearing float64
		var turn string
		var found bool

		if len(route) > 0 {
			chosenWayID, chosenBearing, turn, found = st.routeGuidedExit(endNodeID, arrivalBearing, outgoing, route)
		}
		if !found {
			chosenWayID, chosenBearing, turn, found = st.sameRoadExit(way, endNodeID, arrivalBearing, outgoing, headingTolerance)
		}
		if !found {
			chosenWayID, chosenBearing, turn, found = st.straightOnExit(endNodeID, arrivalBearing, outgoing, headingTolerance)
		}

		bearings := make([]float64, 0, len(outgoing))
		for _, o := range outgoing {
			bearings = append(bearings, o.bearing)
		}
		st.features = append(st.features, FeatureAhead{
			Kind: FeatureJunction, Distance: st.distAccum,
			Position: nodePos(st.net, endNodeID), NodeID: endNodeID,
			Payload: JunctionPayload{
				NodeID: endNodeID, IsTJunction: junction.IsTJunction,
				OutgoingBearings: bearings, ChosenBearing: chosenBearing, TurnDirection: turn,
			},
		})

		if !found {
			return 0, 0, false, true
		}
		idx, fwd := nodeIndexAndDirection(st.net.Ways[chosenWayID], endNodeID, chosenBearing, arrivalBearing)
		return chosenWayID, idx, fwd, false
	}

	// Non-junction join of exactly two ways: continue onto the other one.
	for _, wid := range incidentWays {
		if wid == way.ID {
			continue
		}
		other := st.net.Ways[wid]
		idx, fwd := nodeIndexAndDirection(other, endNodeID, 0, arrivalBearing)
		return wid, idx, fwd, false
	}

	return 0, 0, false, true
}

type outgoingBearing struct {
	wayID   int64
	bearing float64
}

// outgoingBearingsAt computes, for each incident way other than arrivingWayID,
// the bearing leaving nodeID along that way.
func (st *walkState) outgoingBearingsAt(nodeID, arrivingWayID int64, incidentWays []int64) []outgoingBearing {
	var out []outgoingBearing
	for _, wid := range incidentWays {
		if wid == arrivingWayID {
			continue
		}
		w := st.net.Ways[wid]
		idx := indexOf(w.NodeIDs, nodeID)
		if idx < 0 {
			continue
		}
		var neighborIdx int
		if idx+1 < len(w.NodeIDs) {
			neighborIdx = idx + 1
		} else if idx-1 >= 0 {
			neighborIdx = idx - 1
		} else {
			continue
		}
		a := st.net.Nodes[nodeID]
		b := st.net.Nodes[w.NodeIDs[neighborIdx]]
		out = append(out, outgoingBearing{wayID: wid, bearing: geo.InitialBearing(a, b)})
	}
	return out
}

func (st *walkState) arrivalBearing(way *mapstore.Way, endNodeID int64, forward bool) float64 {
	idx := indexOf(way.NodeIDs, endNodeID)
	var prevIdx int
	if forward {
		prevIdx = idx - 1
	} else {
		prevIdx = idx + 1
	}
	if prevIdx < 0 || prevIdx >= len(way.NodeIDs) {
		return 0
	}
	a := st.net.Nodes[way.NodeIDs[prevIdx]]
	b := st.net.Nodes[endNodeID]
	return geo.InitialBearing(a, b)
}

// sameRoadExit implements §4.4.2's same-road continuation: preferred only
// when endNodeID is at the current way's extremity (not a mid-way node).
func (st *walkState) sameRoadExit(way *mapstore.Way, endNodeID int64, arrivalBearing float64, outgoing []outgoingBearing, headingTolerance float64) (wayID int64, bearing float64, turn string, ok bool) {
	idx := indexOf(way.NodeIDs, endNodeID)
	isExtremity := idx == 0 || idx == len(way.NodeIDs)-1
	if !isExtremity {
		return 0, 0, "", false
	}

	best := -1.0
	found := false
	var bestOut outgoingBearing
	for _, o := range outgoing {
		other := st.net.Ways[o.wayID]
		sameName := way.Name != "" && other.Name == way.Name
		sameClassUnnamed := way.Name == "" && other.Name == "" && other.RoadClass == way.RoadClass
		if !sameName && !sameClassUnnamed {
			continue
		}
		diff := math.Abs(geo.AngleDifference(arrivalBearing, o.bearing))
		if diff > headingTolerance {
			continue
		}
		if !found || diff < best {
			best, bestOut, found = diff, o, true
		}
	}
	if !found {
		return 0, 0, "", false
	}
	return bestOut.wayID, bestOut.bearing, "straight", true
}

// straightOnExit implements §4.4.2's straight-on continuation: the outgoing
// bearing with the smallest angular deviation from the arrival bearing.
func (st *walkState) straightOnExit(_ int64, arrivalBearing float64, outgoing []outgoingBearing, headingTolerance float64) (wayID int64, bearing float64, turn string, ok bool) {
	best := -1.0
	found := false
	var bestOut outgoingBearing
	for _, o := range outgoing {
		diff := math.Abs(geo.AngleDifference(arrivalBearing, o.bearing))
		if !found || diff < best {
			best, bestOut, found = diff, o, true
		}
	}
	if !found || best > headingTolerance {
		return 0, 0, "", false
	}
	return bestOut.wayID, bestOut.bearing, "straight", true
}

// routeGuidedExit implements §4.4.3.
func (st *walkState) routeGuidedExit(nodeID int64, arrivalBearing float64, outgoing []outgoingBearing, route []geo.LatLon) (wayID int64, bearing float64, turn string, ok bool) {
	if len(route) == 0 || len(outgoing) == 0 {
		return 0, 0, "", false
	}
	junctionPos := nodePos(st.net, nodeID)

	closestIdx := 0
	closestDist := geo.HaversineDistance(junctionPos, route[0])
	for i := 1; i < len(route); i++ {
		d := geo.HaversineDistance(junctionPos, route[i])
		if d < closestDist {
			closestDist, closestIdx = d, i
		}
	}

	target := closestIdx
	accumDist := 0.0
	for i := closestIdx; i < len(route)-1; i++ {
		accumDist += geo.HaversineDistance(route[i], route[i+1])
		if accumDist > 50 {
			target = i + 1
			break
		}
		target = i + 1
	}
	if target >= len(route) {
		target = len(route) - 1
	}
	if target == closestIdx && closestIdx+1 < len(route) {
		target = closestIdx + 1
	}

	routeBearing := geo.InitialBearing(junctionPos, route[target])

	best := -1.0
	found := false
	var bestOut outgoingBearing
	for _, o := range outgoing {
		diff := math.Abs(geo.AngleDifference(routeBearing, o.bearing))
		if !found || diff < best {
			best, bestOut, found = diff, o, true
		}
	}
	if !found || best > 60 {
		return 0, 0, "", false
	}

	turnDiff := geo.AngleDifference(arrivalBearing, bestOut.bearing)
	switch {
	case math.Abs(turnDiff) < 30:
		turn = "straight"
	case turnDiff < 0:
		turn = "left"
	default:
		turn = "right"
	}
	return bestOut.wayID, bestOut.bearing, turn, true
}

// trimToLookahead drops any points emitted past lookaheadMeters so the
// projected path's total length never exceeds D.
func (st *walkState) trimToLookahead(lookaheadMeters float64) {
	if st.distAccum <= lookaheadMeters {
		return
	}
	cut := len(st.points)
	for i, p := range st.points {
		if p.Distance > lookaheadMeters {
			cut = i
			break
		}
	}
	if cut < len(st.points) {
		st.points = st.points[:cut]
	}
	if len(st.points) > 0 {
		st.distAccum = st.points[len(st.points)-1].Distance
	}
}

func indexOf(ids []int64, id int64) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}

func uniqueWayIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func nodePos(net *mapstore.RoadNetwork, nodeID int64) geo.LatLon {
	n := net.Nodes[nodeID]
	return geo.NewLatLon(n.Lat(), n.Lon())
}

// nodeIndexAndDirection locates nodeID within way and picks a direction of
// travel from its position alone; the two bearing arguments are unused.
func nodeIndexAndDirection(way *mapstore.Way, nodeID int64, _ float64, _ float64) (idx int, forward bool) {
	idx = indexOf(way.NodeIDs, nodeID)
	if idx < 0 {
		return 0, true
	}
	// From either extremity, continue toward the far end of the way. A
	// mid-way join always continues forward, toward the way's last node,
	// whichever direction the walk arrived from.
	if idx == 0 {
		return idx, true
	}
	if idx == len(way.NodeIDs)-1 {
		return idx, false
	}
	return idx, true
}
