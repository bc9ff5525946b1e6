package copilot

import (
	"errors"
	"sync"

	"github.com/banshee-data/copilot/internal/gpssource"
	"github.com/banshee-data/copilot/internal/mapstore"
)

// sixNodeNetwork extends pathproj's single-way straightNetwork fixture to
// six nodes spaced ~100m apart, long enough that WalkGraph emits at least
// five PathPoints within a generous lookahead.
func sixNodeNetwork() *mapstore.RoadNetwork {
	nodes := map[int64]mapstore.Node{
		1: {ID: 1, Latitude: 51.5000, Longitude: -0.1000},
		2: {ID: 2, Latitude: 51.5009, Longitude: -0.1000},
		3: {ID: 3, Latitude: 51.5018, Longitude: -0.1000},
		4: {ID: 4, Latitude: 51.5027, Longitude: -0.1000},
		5: {ID: 5, Latitude: 51.5036, Longitude: -0.1000},
		6: {ID: 6, Latitude: 51.5045, Longitude: -0.1000},
	}
	way := &mapstore.Way{ID: 10, RoadClass: "residential", Name: "North Street", Surface: "asphalt", NodeIDs: []int64{1, 2, 3, 4, 5, 6}}
	return &mapstore.RoadNetwork{
		Nodes:            nodes,
		Ways:             map[int64]*mapstore.Way{10: way},
		Junctions:        map[int64]*mapstore.Junction{},
		RailwayCrossings: map[int64]mapstore.PointFeature{},
		Barriers:         map[int64]mapstore.PointFeature{},
		NodeWays:         map[int64][]int64{1: {10}, 2: {10}, 3: {10}, 4: {10}, 5: {10}, 6: {10}},
	}
}

var errFakeNoFix = errors.New("fake: no fix queued")

// fakeGPS is a gpssource.Source test double whose fixes are fed from a
// queue, one per ReadPosition call; once exhausted it reports errFakeNoFix.
type fakeGPS struct {
	mu          sync.Mutex
	fixes       []gpssource.Position
	connectErr  error
	connectHits int
	disconnects int
}

func (f *fakeGPS) Connect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectHits++
	return f.connectErr
}

func (f *fakeGPS) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	return nil
}

func (f *fakeGPS) ReadPosition() (gpssource.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.fixes) == 0 {
		return gpssource.Position{}, errFakeNoFix
	}
	pos := f.fixes[0]
	f.fixes = f.fixes[1:]
	return pos, nil
}

// fakeLoader is a RoadLoader test double. When block is non-nil, LoadRegion
// waits on it before returning, letting tests control async load timing.
type fakeLoader struct {
	mu      sync.Mutex
	network *mapstore.RoadNetwork
	err     error
	calls   int
	block   chan struct{}
}

func (f *fakeLoader) LoadRegion(lat, lon, radiusM float64) (*mapstore.RoadNetwork, error) {
	f.mu.Lock()
	f.calls++
	block := f.block
	net, err := f.network, f.err
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	return net, err
}

func (f *fakeLoader) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
