// Package maploader owns one or more mapstore.Store files and answers
// region queries against whichever on-disk layout it finds: a single store
// file, a directory of region files, or a raw source file needing a
// one-off ingest.
package maploader

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/banshee-data/copilot/internal/geo"
	"github.com/banshee-data/copilot/internal/mapstore"
	"github.com/banshee-data/copilot/internal/monitoring"
)

// boundaryPreloadMeters is how far past a region's own bounds a query may
// still match that region, so a driver near a region seam gets results
// merged from its neighbour before crossing into it.
const boundaryPreloadMeters = 5000.0

// storeSuffix is the extension mapstore.Store files are recognised by.
const storeSuffix = ".roads.db"

// Layout identifies which of the three on-disk shapes a path resolved to.
type Layout int

const (
	LayoutSingleFile Layout = iota
	LayoutRegionDirectory
	LayoutRawSource
)

// region is one entry in a directory-layout index: a name and the store's
// cached bounds.
type region struct {
	name   string
	store  *mapstore.Store
	bounds mapstore.Bounds
}

// cacheEntry is the loader's last (centre, radius, network) result, reused
// whenever a new request falls inside it.
type cacheEntry struct {
	lat, lon float64
	radius   float64
	network  *mapstore.RoadNetwork
}

// Loader resolves a configured path to one of the three supported layouts
// and answers LoadRegion queries against it, caching the most recent
// result.
type Loader struct {
	layout  Layout
	path    string
	single  *mapstore.Store
	regions []region
	cache   *cacheEntry
}

// Ingester creates a mapstore.Store at dstPath from a raw source file, for
// layout 3's one-off ingest step. Supplied by the caller because the
// specific source format (e.g. an OSM extract) is outside this package's
// concern.
type Ingester func(srcPath, dstPath string) error

// Open inspects path and returns a Loader for whichever layout it
// represents. If path is a raw source file (not itself a valid store and
// not a directory of stores), ingest is invoked once to build a sibling
// store file before Open returns.
func Open(path string, ingest Ingester) (*Loader, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("maploader: stat %s: %w", path, err)
	}

	if info.IsDir() {
		return openRegionDirectory(path)
	}

	if strings.HasSuffix(path, storeSuffix) {
		s, err := mapstore.Open(path)
		if err != nil {
			return nil, fmt.Errorf("maploader: open store %s: %w", path, err)
		}
		monitoring.Logf("maploader: opened single store %s", path)
		return &Loader{layout: LayoutSingleFile, path: path, single: s}, nil
	}

	return openRawSource(path, ingest)
}

func openRawSource(path string, ingest Ingester) (*Loader, error) {
	if ingest == nil {
		return nil, fmt.Errorf("maploader: %s is not a store file and no ingester was provided", path)
	}

	dstPath := strings.TrimSuffix(path, filepath.Ext(path)) + storeSuffix
	if _, err := os.Stat(dstPath); err != nil {
		monitoring.Logf("maploader: ingesting raw source %s -> %s", path, dstPath)
		if err := ingest(path, dstPath); err != nil {
			return nil, fmt.Errorf("maploader: ingest %s: %w", path, err)
		}
	}

	s, err := mapstore.Open(dstPath)
	if err != nil {
		return nil, fmt.Errorf("maploader: open ingested store %s: %w", dstPath, err)
	}
	return &Loader{layout: LayoutSingleFile, path: dstPath, single: s}, nil
}

func openRegionDirectory(dir string) (*Loader, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("maploader: read dir %s: %w", dir, err)
	}

	var regions []region
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), storeSuffix) {
			continue
		}
		full := filepath.Join(dir, e.Name())
		s, err := mapstore.Open(full)
		if err != nil {
			return nil, fmt.Errorf("maploader: open region %s: %w", full, err)
		}
		bounds, ok, err := s.GetBounds()
		if err != nil {
			return nil, fmt.Errorf("maploader: bounds for %s: %w", full, err)
		}
		if !ok {
			monitoring.Logf("maploader: region %s has no cached bounds, skipping", full)
			s.Close()
			continue
		}
		name := strings.TrimSuffix(e.Name(), storeSuffix)
		regions = append(regions, region{name: name, store: s, bounds: bounds})
	}

	if len(regions) == 0 {
		return nil, fmt.Errorf("maploader: no region stores found in %s", dir)
	}

	sort.Slice(regions, func(i, j int) bool { return regions[i].name < regions[j].name })

	monitoring.Logf("maploader: indexed %d regions under %s", len(regions), dir)
	return &Loader{layout: LayoutRegionDirectory, path: dir, regions: regions}, nil
}

// Layout reports which on-disk shape this Loader resolved to.
func (l *Loader) Layout() Layout { return l.layout }

// PrimaryStore returns the single mapstore.Store backing a LayoutSingleFile
// loader, for admin routes that want to mount its tailsql console. A
// region-directory loader has no single store to expose this way, so it
// returns nil.
func (l *Loader) PrimaryStore() *mapstore.Store {
	return l.single
}

// Close releases every store this Loader owns.
func (l *Loader) Close() error {
	if l.single != nil {
		return l.single.Close()
	}
	var firstErr error
	for _, r := range l.regions {
		if err := r.store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// LoadRegion answers a bounding-box query, serving from the last-result
// cache when the new centre falls within radius/2 of the cached centre and
// the new radius is no larger than the cached one.
func (l *Loader) LoadRegion(lat, lon, radiusM float64) (*mapstore.RoadNetwork, error) {
	if l.cache != nil && l.servedFromCache(lat, lon, radiusM) {
		return l.cache.network, nil
	}

	net, err := l.loadRegionUncached(lat, lon, radiusM)
	if err != nil {
		return nil, err
	}

	l.cache = &cacheEntry{lat: lat, lon: lon, radius: radiusM, network: net}
	return net, nil
}

func (l *Loader) servedFromCache(lat, lon, radiusM float64) bool {
	c := l.cache
	dist := geo.HaversineDistance(geo.NewLatLon(lat, lon), geo.NewLatLon(c.lat, c.lon))
	return dist <= c.radius/2 && radiusM <= c.radius
}

func (l *Loader) loadRegionUncached(lat, lon, radiusM float64) (*mapstore.RoadNetwork, error) {
	switch l.layout {
	case LayoutSingleFile:
		return l.single.LoadRegion(lat, lon, radiusM)
	case LayoutRegionDirectory:
		return l.loadAcrossRegions(lat, lon, radiusM)
	default:
		return nil, fmt.Errorf("maploader: unknown layout %d", l.layout)
	}
}

// loadAcrossRegions locates every region whose bounds (expanded by the
// boundary preload band) contain or come within radiusM of (lat, lon), and
// merges their LoadRegion results.
func (l *Loader) loadAcrossRegions(lat, lon, radiusM float64) (*mapstore.RoadNetwork, error) {
	merged := &mapstore.RoadNetwork{
		Nodes:            map[int64]mapstore.Node{},
		Ways:             map[int64]*mapstore.Way{},
		Junctions:        map[int64]*mapstore.Junction{},
		RailwayCrossings: map[int64]mapstore.PointFeature{},
		Barriers:         map[int64]mapstore.PointFeature{},
		NodeWays:         map[int64][]int64{},
	}

	matched := 0
	for _, r := range l.regions {
		if !withinPreloadBand(r.bounds, lat, lon, radiusM) {
			continue
		}
		matched++

		net, err := r.store.LoadRegion(lat, lon, radiusM)
		if err != nil {
			return nil, fmt.Errorf("maploader: load region %s: %w", r.name, err)
		}
		mergeNetwork(merged, net)
	}

	if matched == 0 {
		monitoring.Logf("maploader: (%f, %f) not within any known region's boundary preload band", lat, lon)
	}

	return merged, nil
}

// withinPreloadBand reports whether (lat, lon) falls inside bounds, or
// within boundaryPreloadMeters plus the query radius of it.
func withinPreloadBand(b mapstore.Bounds, lat, lon, radiusM float64) bool {
	band := boundaryPreloadMeters + radiusM
	if lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon {
		return true
	}

	corner := closestCorner(b, lat, lon)
	return geo.HaversineDistance(geo.NewLatLon(lat, lon), corner) <= band
}

func closestCorner(b mapstore.Bounds, lat, lon float64) geo.LatLon {
	clampedLat := clamp(lat, b.MinLat, b.MaxLat)
	clampedLon := clamp(lon, b.MinLon, b.MaxLon)
	return geo.NewLatLon(clampedLat, clampedLon)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// mergeNetwork folds src into dst, keyed by id so overlapping regions
// deduplicate rather than double-counting shared nodes/ways.
func mergeNetwork(dst, src *mapstore.RoadNetwork) {
	for id, n := range src.Nodes {
		dst.Nodes[id] = n
	}
	for id, w := range src.Ways {
		dst.Ways[id] = w
	}
	for id, j := range src.Junctions {
		dst.Junctions[id] = j
	}
	for id, f := range src.RailwayCrossings {
		dst.RailwayCrossings[id] = f
	}
	for id, f := range src.Barriers {
		dst.Barriers[id] = f
	}
	for id, ways := range src.NodeWays {
		existing := dst.NodeWays[id]
		seen := make(map[int64]bool, len(existing))
		for _, w := range existing {
			seen[w] = true
		}
		for _, w := range ways {
			if !seen[w] {
				existing = append(existing, w)
				seen[w] = true
			}
		}
		dst.NodeWays[id] = existing
	}
}
