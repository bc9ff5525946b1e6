// Package mapstore persists one region's road network in a SQLite file and
// answers bounding-box queries without loading the whole file into memory.
// A store is opened lazily, per process, and the schema is created or
// migrated to the current version on first use.
package mapstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"

	"github.com/banshee-data/copilot/internal/monitoring"
)

// metresPerDegreeLat approximates the length of one degree of latitude.
const metresPerDegreeLat = 111000.0

// rtreeChunkSize keeps "id IN (...)" queries under SQLite's bound-parameter
// limit (around 999 for modernc.org/sqlite's default build).
const rtreeChunkSize = 500

// Node is a single graph vertex. It implements geo.Point.
type Node struct {
	ID        int64
	Latitude  float64
	Longitude float64
}

func (n Node) Lat() float64 { return n.Latitude }
func (n Node) Lon() float64 { return n.Longitude }

// Way is an ordered chain of node ids carrying road attributes.
type Way struct {
	ID             int64
	RoadClass      string
	Name           string
	SpeedLimit     int
	OneWay         bool
	Bridge         bool
	Tunnel         bool
	Ford           bool
	Surface        string
	TrafficCalming string
	Width          float64
	Narrow         bool
	NodeIDs        []int64
}

// Junction is a precomputed node where two or more ways meet.
type Junction struct {
	NodeID      int64
	IsTJunction bool
	WayIDs      []int64
}

// PointFeature is a single-node feature keyed by its node id: a railway
// level crossing or a barrier (gate, gap, gompound, cattle grid, ...).
type PointFeature struct {
	NodeID    int64
	Latitude  float64
	Longitude float64
	Kind      string // empty for railway crossings, barrier kind otherwise
}

func (p PointFeature) Lat() float64 { return p.Latitude }
func (p PointFeature) Lon() float64 { return p.Longitude }

// RoadNetwork is the in-memory result of a LoadRegion query: everything a
// path projector needs to walk the graph around one point, with no further
// trips to the database required.
type RoadNetwork struct {
	Nodes            map[int64]Node
	Ways             map[int64]*Way
	Junctions        map[int64]*Junction
	RailwayCrossings map[int64]PointFeature
	Barriers         map[int64]PointFeature

	// NodeWays is the reverse index: node id -> ids of ways referencing it,
	// restricted to the ways loaded into this network.
	NodeWays map[int64][]int64
}

// Bounds is an inclusive bounding box in degrees.
type Bounds struct {
	MinLat, MinLon, MaxLat, MaxLon float64
}

// Store owns one SQLite connection for one region file.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (and if necessary creates or migrates) the spatial database at
// path. The connection is safe for concurrent reads; modernc.org/sqlite
// serializes writers internally.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("mapstore: open %s: %w", path, err)
	}

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db, path: path}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := s.schemaVersion(); err != nil {
		db.Close()
		return nil, fmt.Errorf("mapstore: %s: %w", path, err)
	}

	return s, nil
}

// applyPragmas sets the pragma-equivalent concurrency and performance
// settings required of every map store connection: WAL journaling, a large
// page cache, memory-mapped I/O, and RAM temp tables.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA cache_size = -100000", // ~100MB, negative sizes are KiB
		"PRAGMA mmap_size = 1073741824",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("mapstore: pragma %q: %w", p, err)
		}
	}
	return nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the filesystem path this store was opened from.
func (s *Store) Path() string { return s.path }

// GetBounds returns the bounding box of all data in the store. The result is
// cached in the metadata table; a cache miss recomputes it from the node
// R-tree and persists it for next time. A store with no nodes returns
// (Bounds{}, false, nil).
func (s *Store) GetBounds() (Bounds, bool, error) {
	if b, ok, err := s.cachedBounds(); err != nil {
		return Bounds{}, false, err
	} else if ok {
		return b, true, nil
	}

	var minLat, maxLat, minLon, maxLon sql.NullFloat64
	row := s.db.QueryRow(`SELECT MIN(min_lat), MAX(max_lat), MIN(min_lon), MAX(max_lon) FROM nodes_rtree`)
	if err := row.Scan(&minLat, &maxLat, &minLon, &maxLon); err != nil {
		return Bounds{}, false, fmt.Errorf("mapstore: compute bounds: %w", err)
	}
	if !minLat.Valid {
		return Bounds{}, false, nil
	}

	b := Bounds{MinLat: minLat.Float64, MaxLat: maxLat.Float64, MinLon: minLon.Float64, MaxLon: maxLon.Float64}
	if err := s.cacheBounds(b); err != nil {
		return Bounds{}, false, err
	}
	return b, true, nil
}

func (s *Store) cachedBounds() (Bounds, bool, error) {
	var raw string
	err := s.db.QueryRow(`SELECT value FROM metadata WHERE key = 'bounds'`).Scan(&raw)
	if err == sql.ErrNoRows {
		return Bounds{}, false, nil
	}
	if err != nil {
		return Bounds{}, false, fmt.Errorf("mapstore: read cached bounds: %w", err)
	}
	var b Bounds
	if err := json.Unmarshal([]byte(raw), &b); err != nil {
		return Bounds{}, false, fmt.Errorf("mapstore: decode cached bounds: %w", err)
	}
	return b, true, nil
}

func (s *Store) cacheBounds(b Bounds) error {
	raw, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("mapstore: encode bounds: %w", err)
	}
	_, err = s.db.Exec(`INSERT INTO metadata (key, value) VALUES ('bounds', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, string(raw))
	if err != nil {
		return fmt.Errorf("mapstore: cache bounds: %w", err)
	}
	return nil
}

// boundingBox computes the query bounding box for a point and radius: a
// fixed metres-per-degree approximation for latitude, scaled by cos(lat)
// for longitude.
func boundingBox(lat, lon, radiusM float64) (minLat, maxLat, minLon, maxLon float64) {
	latDelta := radiusM / metresPerDegreeLat
	lonDelta := radiusM / (metresPerDegreeLat * math.Cos(lat*math.Pi/180))
	return lat - latDelta, lat + latDelta, lon - lonDelta, lon + lonDelta
}

// LoadRegion loads the road network within radiusM metres of (lat, lon).
// Ways that straddle the bounding box are loaded whole, including nodes
// outside the box, so the graph stays walkable at the query's edge.
func (s *Store) LoadRegion(lat, lon, radiusM float64) (*RoadNetwork, error) {
	minLat, maxLat, minLon, maxLon := boundingBox(lat, lon, radiusM)

	nodeIDs, err := s.nodeIDsInBox("nodes_rtree", minLat, maxLat, minLon, maxLon)
	if err != nil {
		return nil, fmt.Errorf("mapstore: node rtree query: %w", err)
	}

	wayIDs, err := s.wayIDsForNodes(nodeIDs)
	if err != nil {
		return nil, fmt.Errorf("mapstore: way lookup: %w", err)
	}

	ways, err := s.loadWays(wayIDs)
	if err != nil {
		return nil, fmt.Errorf("mapstore: load ways: %w", err)
	}

	loadedNodeIDs := make([]int64, 0)
	nodeWays := make(map[int64][]int64)
	for _, w := range ways {
		for _, id := range w.NodeIDs {
			if _, seen := nodeWays[id]; !seen {
				loadedNodeIDs = append(loadedNodeIDs, id)
			}
			nodeWays[id] = append(nodeWays[id], w.ID)
		}
	}

	nodes, err := s.loadNodes(loadedNodeIDs)
	if err != nil {
		return nil, fmt.Errorf("mapstore: load nodes: %w", err)
	}

	junctionIDs := make([]int64, 0)
	for id, wids := range nodeWays {
		if len(uniqueInt64s(wids)) >= 2 {
			junctionIDs = append(junctionIDs, id)
		}
	}
	junctions, err := s.loadJunctions(junctionIDs)
	if err != nil {
		return nil, fmt.Errorf("mapstore: load junctions: %w", err)
	}

	crossings, err := s.loadPointFeatures("railway_crossings_rtree", "railway_crossings", minLat, maxLat, minLon, maxLon, nodeWays, false)
	if err != nil {
		return nil, fmt.Errorf("mapstore: load railway crossings: %w", err)
	}
	barriers, err := s.loadPointFeatures("barriers_rtree", "barriers", minLat, maxLat, minLon, maxLon, nodeWays, true)
	if err != nil {
		return nil, fmt.Errorf("mapstore: load barriers: %w", err)
	}

	return &RoadNetwork{
		Nodes:            nodes,
		Ways:             ways,
		Junctions:        junctions,
		RailwayCrossings: crossings,
		Barriers:         barriers,
		NodeWays:         nodeWays,
	}, nil
}

func uniqueInt64s(in []int64) []int64 {
	seen := make(map[int64]struct{}, len(in))
	out := make([]int64, 0, len(in))
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func (s *Store) nodeIDsInBox(rtreeTable string, minLat, maxLat, minLon, maxLon float64) ([]int64, error) {
	q := fmt.Sprintf(`SELECT id FROM %s WHERE min_lat <= ? AND max_lat >= ? AND min_lon <= ? AND max_lon >= ?`, rtreeTable)
	rows, err := s.db.Query(q, maxLat, minLat, maxLon, minLon)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) wayIDsForNodes(nodeIDs []int64) ([]int64, error) {
	seen := make(map[int64]struct{})
	var ids []int64
	err := s.chunkInt64Query(nodeIDs, func(chunk []int64) error {
		q := fmt.Sprintf(`SELECT DISTINCT way_id FROM way_nodes WHERE node_id IN (%s)`, placeholders(len(chunk)))
		rows, err := s.db.Query(q, int64SliceToArgs(chunk)...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				return err
			}
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
		return rows.Err()
	})
	return ids, err
}

func (s *Store) loadWays(wayIDs []int64) (map[int64]*Way, error) {
	ways := make(map[int64]*Way, len(wayIDs))
	err := s.chunkInt64Query(wayIDs, func(chunk []int64) error {
		q := fmt.Sprintf(`SELECT id, road_class, name, speed_limit, one_way, bridge, tunnel, ford, surface, traffic_calming, width, narrow
			FROM ways WHERE id IN (%s)`, placeholders(len(chunk)))
		rows, err := s.db.Query(q, int64SliceToArgs(chunk)...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			w := &Way{}
			var oneWay, bridge, tunnel, ford, narrow int
			if err := rows.Scan(&w.ID, &w.RoadClass, &w.Name, &w.SpeedLimit, &oneWay, &bridge, &tunnel, &ford, &w.Surface, &w.TrafficCalming, &w.Width, &narrow); err != nil {
				return err
			}
			w.OneWay, w.Bridge, w.Tunnel, w.Ford, w.Narrow = oneWay != 0, bridge != 0, tunnel != 0, ford != 0, narrow != 0
			ways[w.ID] = w
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	err = s.chunkInt64Query(wayIDs, func(chunk []int64) error {
		q := fmt.Sprintf(`SELECT way_id, node_id FROM way_nodes WHERE way_id IN (%s) ORDER BY way_id, seq`, placeholders(len(chunk)))
		rows, err := s.db.Query(q, int64SliceToArgs(chunk)...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var wayID, nodeID int64
			if err := rows.Scan(&wayID, &nodeID); err != nil {
				return err
			}
			if w, ok := ways[wayID]; ok {
				w.NodeIDs = append(w.NodeIDs, nodeID)
			}
		}
		return rows.Err()
	})
	return ways, err
}

func (s *Store) loadNodes(nodeIDs []int64) (map[int64]Node, error) {
	nodes := make(map[int64]Node, len(nodeIDs))
	err := s.chunkInt64Query(nodeIDs, func(chunk []int64) error {
		q := fmt.Sprintf(`SELECT id, lat, lon FROM nodes WHERE id IN (%s)`, placeholders(len(chunk)))
		rows, err := s.db.Query(q, int64SliceToArgs(chunk)...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var n Node
			if err := rows.Scan(&n.ID, &n.Latitude, &n.Longitude); err != nil {
				return err
			}
			nodes[n.ID] = n
		}
		return rows.Err()
	})
	return nodes, err
}

func (s *Store) loadJunctions(nodeIDs []int64) (map[int64]*Junction, error) {
	junctions := make(map[int64]*Junction, len(nodeIDs))
	err := s.chunkInt64Query(nodeIDs, func(chunk []int64) error {
		q := fmt.Sprintf(`SELECT node_id, is_t_junction FROM junctions WHERE node_id IN (%s)`, placeholders(len(chunk)))
		rows, err := s.db.Query(q, int64SliceToArgs(chunk)...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var j Junction
			var isT int
			if err := rows.Scan(&j.NodeID, &isT); err != nil {
				return err
			}
			j.IsTJunction = isT != 0
			junctions[j.NodeID] = &j
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	err = s.chunkInt64Query(nodeIDs, func(chunk []int64) error {
		q := fmt.Sprintf(`SELECT node_id, way_id FROM junction_ways WHERE node_id IN (%s)`, placeholders(len(chunk)))
		rows, err := s.db.Query(q, int64SliceToArgs(chunk)...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var nodeID, wayID int64
			if err := rows.Scan(&nodeID, &wayID); err != nil {
				return err
			}
			if j, ok := junctions[nodeID]; ok {
				j.WayIDs = append(j.WayIDs, wayID)
			}
		}
		return rows.Err()
	})
	return junctions, err
}

// loadPointFeatures loads railway crossings or barriers within the query box,
// keeping only those whose node id lies on a loaded way.
func (s *Store) loadPointFeatures(rtreeTable, table string, minLat, maxLat, minLon, maxLon float64, nodeWays map[int64][]int64, hasKind bool) (map[int64]PointFeature, error) {
	ids, err := s.nodeIDsInBox(rtreeTable, minLat, maxLat, minLon, maxLon)
	if err != nil {
		return nil, err
	}

	var onLoadedWays []int64
	for _, id := range ids {
		if _, ok := nodeWays[id]; ok {
			onLoadedWays = append(onLoadedWays, id)
		}
	}
	if len(onLoadedWays) == 0 {
		return map[int64]PointFeature{}, nil
	}

	kinds := make(map[int64]string)
	if hasKind {
		err := s.chunkInt64Query(onLoadedWays, func(chunk []int64) error {
			q := fmt.Sprintf(`SELECT node_id, kind FROM %s WHERE node_id IN (%s)`, table, placeholders(len(chunk)))
			rows, err := s.db.Query(q, int64SliceToArgs(chunk)...)
			if err != nil {
				return err
			}
			defer rows.Close()
			for rows.Next() {
				var id int64
				var kind string
				if err := rows.Scan(&id, &kind); err != nil {
					return err
				}
				kinds[id] = kind
			}
			return rows.Err()
		})
		if err != nil {
			return nil, err
		}
	}

	nodes, err := s.loadNodes(onLoadedWays)
	if err != nil {
		return nil, err
	}

	out := make(map[int64]PointFeature, len(onLoadedWays))
	for _, id := range onLoadedWays {
		n, ok := nodes[id]
		if !ok {
			continue
		}
		out[id] = PointFeature{NodeID: id, Latitude: n.Latitude, Longitude: n.Longitude, Kind: kinds[id]}
	}
	return out, nil
}

// chunkInt64Query partitions ids into rtreeChunkSize-sized slices and calls f
// for each, so "IN (...)" clauses stay well under the driver's bound
// parameter limit.
func (s *Store) chunkInt64Query(ids []int64, f func(chunk []int64) error) error {
	for start := 0; start < len(ids); start += rtreeChunkSize {
		end := start + rtreeChunkSize
		if end > len(ids) {
			end = len(ids)
		}
		if err := f(ids[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func int64SliceToArgs(ids []int64) []interface{} {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

// AttachAdminRoutes mounts a live SQL debug console for this store under the
// given mux's /debug/ tree.
func (s *Store) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql-map/",
	})
	if err != nil {
		monitoring.Logf("mapstore: failed to create tailsql server: %v", err)
		return
	}
	tsql.SetDB(fmt.Sprintf("sqlite://%s", s.path), s.db, &tailsql.DBOptions{
		Label: "CoPilot map store",
	})
	debug.Handle("tailsql-map/", "Map store SQL live debugging", tsql.NewMux())
}
