// Package copilot orchestrates GPS, the road graph, path projection, corner
// detection, and pacenote generation into a fixed-interval update loop,
// publishing an immutable Snapshot each cycle for UI and debug consumers.
package copilot

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/copilot/internal/config"
	"github.com/banshee-data/copilot/internal/corner"
	"github.com/banshee-data/copilot/internal/geo"
	"github.com/banshee-data/copilot/internal/gpssource"
	"github.com/banshee-data/copilot/internal/mapstore"
	"github.com/banshee-data/copilot/internal/monitoring"
	"github.com/banshee-data/copilot/internal/pacenote"
	"github.com/banshee-data/copilot/internal/pathproj"
	"github.com/banshee-data/copilot/internal/timeutil"

	audiopkg "github.com/banshee-data/copilot/internal/audio"
)

// Status is the orchestrator's coarse state, exposed in Snapshot.
type Status string

const (
	StatusNoGPS  Status = "no-gps"
	StatusNoMap  Status = "no-map"
	StatusNoPath Status = "no-path"
	StatusActive Status = "active"
)

// Mode selects whether junction exits are chosen by heading alone or guided
// by an externally supplied route.
type Mode string

const (
	ModeJustDrive   Mode = "just-drive"
	ModeRouteFollow Mode = "route-follow"
)

// shutdownTimeout bounds how long Run waits for the audio worker to drain
// once the orchestrator loop itself has stopped.
const shutdownTimeout = time.Second

// RouteSource is satisfied by gpssource.GPXRoute or any equivalent track
// centreline.
type RouteSource interface {
	UpcomingWaypoints(lat, lon, maxDistance float64) []geo.LatLon
}

// RoadLoader is satisfied by *maploader.Loader; tests substitute a fake to
// avoid standing up a real map store file.
type RoadLoader interface {
	LoadRegion(lat, lon, radiusM float64) (*mapstore.RoadNetwork, error)
}

// CalloutEvent is one dispatched pacenote, retained for the debug timeline.
type CalloutEvent struct {
	Text     string
	At       time.Time
	Distance float64
}

// Snapshot is the immutable record published at the end of every update
// cycle.
type Snapshot struct {
	Status Status

	Lat      float64
	Lon      float64
	SpeedMPS float64
	Heading  float64

	LastCallout   string
	LastCalloutAt time.Time

	CornersAhead int

	NextCornerDistance  float64
	NextCornerDirection string
	NextCornerSeverity  int

	PathDistance float64

	Mode      Mode
	RouteName string
}

type loadResult struct {
	id      uuid.UUID
	network *mapstore.RoadNetwork
	pos     gpssource.Position
}

// CoPilot is the main application orchestrator: it owns the GPS source,
// map loader, and audio worker, runs the update cycle, and publishes the
// resulting Snapshot.
type CoPilot struct {
	gps            gpssource.Source
	loader         RoadLoader
	audio          *audiopkg.Player
	cfg            *config.TuningConfig
	clock          timeutil.Clock
	simulationMode bool

	cornerParams corner.Params
	pacenoteGen  *pacenote.Generator

	network      atomic.Pointer[mapstore.RoadNetwork]
	lastFetchPos atomic.Pointer[gpssource.Position]

	loadMu        sync.Mutex
	loadInFlight  bool
	currentLoadID uuid.UUID
	loadResultCh  chan loadResult

	routeMu   sync.Mutex
	route     RouteSource
	routeName string
	mode      Mode

	injectMu sync.Mutex
	injected *gpssource.Position

	snapMu         sync.Mutex
	snapshot       Snapshot
	recentCallouts []CalloutEvent

	stopped atomic.Bool
}

// maxRecentCallouts bounds the in-memory callout history kept for the
// debug timeline.
const maxRecentCallouts = 50

// New builds a CoPilot. player may be nil to run with audio disabled
// (useful for bench testing and the plotting tool).
func New(gps gpssource.Source, loader RoadLoader, cfg *config.TuningConfig, player *audiopkg.Player, clock timeutil.Clock, simulationMode bool) *CoPilot {
	c := &CoPilot{
		gps:            gps,
		loader:         loader,
		audio:          player,
		cfg:            cfg,
		clock:          clock,
		simulationMode: simulationMode,
		cornerParams:   corner.DefaultOrchestratorParams(),
		pacenoteGen:    pacenote.NewGenerator(cfg, pacenote.NewCalloutMemory(cfg.GetCalloutMemoryBound())),
		loadResultCh:   make(chan loadResult, 1),
		mode:           ModeJustDrive,
		snapshot:       Snapshot{Status: StatusNoGPS},
	}
	return c
}

// LoadRoute loads a GPX route and makes it available for route-follow
// mode, without itself changing the mode.
func (c *CoPilot) LoadRoute(path string) error {
	route, err := gpssource.LoadGPXRoute(path)
	if err != nil {
		return fmt.Errorf("copilot: load route: %w", err)
	}
	c.routeMu.Lock()
	c.route = route
	c.routeName = route.Name
	c.routeMu.Unlock()
	return nil
}

// ClearRoute discards the loaded route and falls back to just-drive mode.
func (c *CoPilot) ClearRoute() {
	c.routeMu.Lock()
	c.route = nil
	c.routeName = ""
	c.mode = ModeJustDrive
	c.routeMu.Unlock()
}

// SetMode switches between just-drive and route-follow.
func (c *CoPilot) SetMode(m Mode) {
	c.routeMu.Lock()
	c.mode = m
	c.routeMu.Unlock()
}

func (c *CoPilot) currentRoute() (Mode, string, RouteSource) {
	c.routeMu.Lock()
	defer c.routeMu.Unlock()
	return c.mode, c.routeName, c.route
}

// InjectFix queues a synthetic position that the next update cycle
// consumes in place of gps.ReadPosition(), for the admin debug route.
func (c *CoPilot) InjectFix(pos gpssource.Position) {
	c.injectMu.Lock()
	c.injected = &pos
	c.injectMu.Unlock()
}

func (c *CoPilot) takeInjectedFix() (gpssource.Position, bool) {
	c.injectMu.Lock()
	defer c.injectMu.Unlock()
	if c.injected == nil {
		return gpssource.Position{}, false
	}
	pos := *c.injected
	c.injected = nil
	return pos, true
}

// Snapshot returns the most recently published immutable snapshot.
func (c *CoPilot) Snapshot() Snapshot {
	c.snapMu.Lock()
	defer c.snapMu.Unlock()
	return c.snapshot
}

// RecentCallouts returns a copy of the bounded callout history, oldest
// first, for the debug timeline.
func (c *CoPilot) RecentCallouts() []CalloutEvent {
	c.snapMu.Lock()
	defer c.snapMu.Unlock()
	out := make([]CalloutEvent, len(c.recentCallouts))
	copy(out, c.recentCallouts)
	return out
}

func (c *CoPilot) publishSnapshot(snap Snapshot) {
	c.snapMu.Lock()
	c.snapshot = snap
	c.snapMu.Unlock()
}

func (c *CoPilot) recordCallout(ev CalloutEvent) {
	c.snapMu.Lock()
	c.recentCallouts = append(c.recentCallouts, ev)
	if len(c.recentCallouts) > maxRecentCallouts {
		c.recentCallouts = c.recentCallouts[len(c.recentCallouts)-maxRecentCallouts:]
	}
	c.snapMu.Unlock()
}

// Run connects the GPS source and audio worker, executes update cycles at
// cfg.GetUpdateInterval() using the orchestrator's timeutil.Clock, and
// shuts both down in reverse order when ctx is cancelled.
func (c *CoPilot) Run(ctx context.Context) error {
	if err := c.gps.Connect(); err != nil {
		return fmt.Errorf("copilot: connect gps: %w", err)
	}
	if c.audio != nil {
		c.audio.Start()
	}

	ticker := c.clock.NewTicker(c.cfg.GetUpdateInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.stopped.Store(true)
			if c.audio != nil {
				c.audio.Stop(shutdownTimeout)
			}
			if err := c.gps.Disconnect(); err != nil {
				monitoring.Logf("copilot: disconnect gps: %v", err)
			}
			return nil
		case <-ticker.C():
			c.updateCycle()
		}
	}
}

func (c *CoPilot) updateCycle() {
	pos, ok := c.takeInjectedFix()
	if !ok {
		readPos, err := c.gps.ReadPosition()
		if err != nil {
			c.publishSnapshot(Snapshot{Status: StatusNoGPS})
			return
		}
		pos = readPos
	}

	c.applyPendingLoad()

	if c.shouldRefetch(pos) {
		if c.network.Load() == nil {
			c.fetchRoadsSync(pos)
		} else {
			c.fetchRoadsAsync(pos)
		}
	}

	net := c.network.Load()
	if net == nil {
		c.publishSnapshot(Snapshot{Status: StatusNoMap, Lat: pos.Lat, Lon: pos.Lon, SpeedMPS: pos.Speed, Heading: pos.Heading})
		return
	}

	mode, routeName, route := c.currentRoute()
	var routeWaypoints []geo.LatLon
	if mode == ModeRouteFollow && route != nil {
		routeWaypoints = route.UpcomingWaypoints(pos.Lat, pos.Lon, c.cfg.GetLookaheadMeters())
	}

	cand, ok := pathproj.FindCurrentWay(net, pos.Lat, pos.Lon, pos.Heading, c.cfg.GetSearchRadiusMeters(), c.cfg.GetHeadingToleranceDeg())
	if !ok {
		c.publishSnapshot(Snapshot{Status: StatusNoPath, Lat: pos.Lat, Lon: pos.Lon, SpeedMPS: pos.Speed, Heading: pos.Heading, Mode: mode, RouteName: routeName})
		return
	}

	path, err := pathproj.WalkGraph(net, cand.WayID, cand.NodeIndex, cand.Forward, c.cfg.GetLookaheadMeters(), c.cfg.GetHeadingToleranceDeg(), routeWaypoints)
	if err != nil || len(path.Points) < 5 {
		c.publishSnapshot(Snapshot{Status: StatusNoPath, Lat: pos.Lat, Lon: pos.Lon, SpeedMPS: pos.Speed, Heading: pos.Heading, Mode: mode, RouteName: routeName})
		return
	}

	points := make([]geo.Point, len(path.Points))
	for i, p := range path.Points {
		points[i] = p
	}

	corners := corner.DetectCorners(points, 0, c.cornerParams, c.cfg.GetMergeSameDirection())
	corners = corner.MergeChicanes(corners, c.cornerParams)

	notes := c.pacenoteGen.Generate(corners, path.Features)

	prev := c.Snapshot()
	snap := Snapshot{
		Status:        StatusActive,
		Lat:           pos.Lat,
		Lon:           pos.Lon,
		SpeedMPS:      pos.Speed,
		Heading:       pos.Heading,
		CornersAhead:  len(corners),
		PathDistance:  path.TotalLength,
		Mode:          mode,
		RouteName:     routeName,
		LastCallout:   prev.LastCallout,
		LastCalloutAt: prev.LastCalloutAt,
	}

	for _, note := range notes {
		should, filtered := c.pacenoteGen.ShouldCall(note, pos.Speed)
		if !should || filtered == nil {
			continue
		}
		if c.audio != nil {
			c.audio.Say(filtered.Text)
		}
		now := c.clock.Now()
		snap.LastCallout = filtered.Text
		snap.LastCalloutAt = now
		c.recordCallout(CalloutEvent{Text: filtered.Text, At: now, Distance: filtered.Distance})
	}

	if next, ok := nearestCorner(corners); ok {
		snap.NextCornerDistance = next.EntryDistance
		snap.NextCornerDirection = string(next.Direction)
		snap.NextCornerSeverity = int(next.Severity)
	}

	c.publishSnapshot(snap)
}

// nearestCorner returns the corner with the smallest entry distance, i.e.
// the next one the driver will reach.
func nearestCorner(corners []corner.Corner) (corner.Corner, bool) {
	if len(corners) == 0 {
		return corner.Corner{}, false
	}
	best := corners[0]
	for _, c := range corners[1:] {
		if c.EntryDistance < best.EntryDistance {
			best = c
		}
	}
	return best, true
}

// shouldRefetch decides whether the road network needs reloading: never
// while a load is already in flight, always before the first load, and
// otherwise once the vehicle has moved far enough from the last load
// centre.
func (c *CoPilot) shouldRefetch(pos gpssource.Position) bool {
	c.loadMu.Lock()
	inFlight := c.loadInFlight
	c.loadMu.Unlock()
	if inFlight {
		return false
	}

	last := c.lastFetchPos.Load()
	if c.network.Load() == nil || last == nil {
		return true
	}

	dist := geo.HaversineDistance(geo.NewLatLon(last.Lat, last.Lon), geo.NewLatLon(pos.Lat, pos.Lon))
	threshold := c.cfg.GetRefetchThresholdMeters()
	if c.simulationMode {
		threshold = c.cfg.GetSimRefetchThreshold()
	}
	return dist > threshold
}

func (c *CoPilot) loadRadius() float64 {
	if c.simulationMode {
		return c.cfg.GetSimRoadLoadRadius()
	}
	return c.cfg.GetRoadLoadRadiusMeters()
}

// fetchRoadsSync blocks the update cycle to obtain the first road network,
// since the orchestrator has nothing useful to do until it has one.
func (c *CoPilot) fetchRoadsSync(pos gpssource.Position) {
	net, err := c.loader.LoadRegion(pos.Lat, pos.Lon, c.loadRadius())
	if err != nil {
		monitoring.Logf("copilot: sync road load near %.4f,%.4f failed: %v", pos.Lat, pos.Lon, err)
		return
	}
	c.network.Store(net)
	c.lastFetchPos.Store(&pos)
	monitoring.Logf("copilot: loaded %d ways, %d junctions near %.4f,%.4f", len(net.Ways), len(net.Junctions), pos.Lat, pos.Lon)
}

// fetchRoadsAsync starts a background load tagged with a fresh uuid.UUID so
// that a result discarded because the orchestrator shut down (or was
// otherwise superseded) can be identified in logs rather than silently
// applied.
func (c *CoPilot) fetchRoadsAsync(pos gpssource.Position) {
	c.loadMu.Lock()
	if c.loadInFlight {
		c.loadMu.Unlock()
		return
	}
	id := uuid.New()
	c.loadInFlight = true
	c.currentLoadID = id
	c.loadMu.Unlock()

	radius := c.loadRadius()
	go func() {
		net, err := c.loader.LoadRegion(pos.Lat, pos.Lon, radius)

		c.loadMu.Lock()
		c.loadInFlight = false
		stillCurrent := c.currentLoadID == id
		c.loadMu.Unlock()

		if err != nil {
			monitoring.Logf("copilot: async road load %s near %.4f,%.4f failed: %v", id, pos.Lat, pos.Lon, err)
			return
		}
		if c.stopped.Load() || !stillCurrent {
			monitoring.Logf("copilot: discarding async road load %s (superseded or orchestrator stopped)", id)
			return
		}

		select {
		case c.loadResultCh <- loadResult{id: id, network: net, pos: pos}:
		default:
			monitoring.Logf("copilot: discarding async road load %s (result channel full)", id)
		}
	}()
}

// applyPendingLoad picks up at most one background load result per cycle.
func (c *CoPilot) applyPendingLoad() {
	select {
	case res := <-c.loadResultCh:
		c.loadMu.Lock()
		current := c.currentLoadID == res.id
		c.loadMu.Unlock()
		if !current {
			monitoring.Logf("copilot: dropping stale road load %s", res.id)
			return
		}
		c.network.Store(res.network)
		c.lastFetchPos.Store(&res.pos)
		monitoring.Logf("copilot: applied async road load %s: %d ways, %d junctions", res.id, len(res.network.Ways), len(res.network.Junctions))
	default:
	}
}
