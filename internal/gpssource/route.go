package gpssource

import (
	"encoding/xml"
	"fmt"
	"os"

	"github.com/banshee-data/copilot/internal/geo"
)

// GPXRoute is a loaded GPX track or route, consumed by the orchestrator's
// route-follow mode: parse once on load, then answer UpcomingWaypoints by
// finding the closest route point to the current position and walking
// forward along the route up to maxDistance.
type GPXRoute struct {
	Name   string
	Points []geo.LatLon
}

// gpxFile mirrors just enough of the GPX 1.1 schema to pull out track and
// route points. GPX is a small, fixed-schema format that encoding/xml's
// struct tags describe directly, so there's no need to reach for a
// general-purpose XML query library here.
type gpxFile struct {
	XMLName xml.Name `xml:"gpx"`
	Tracks  []struct {
		Name     string `xml:"name"`
		Segments []struct {
			Points []gpxPoint `xml:"trkpt"`
		} `xml:"trkseg"`
	} `xml:"trk"`
	Routes []struct {
		Name   string     `xml:"name"`
		Points []gpxPoint `xml:"rtept"`
	} `xml:"rte"`
}

type gpxPoint struct {
	Lat float64 `xml:"lat,attr"`
	Lon float64 `xml:"lon,attr"`
}

// LoadGPXRoute parses path as a GPX 1.1 document. It prefers track points
// (trk/trkseg/trkpt); if the file has none, it falls back to route points
// (rte/rtept), matching the original loader's fallback order.
func LoadGPXRoute(path string) (*GPXRoute, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("gpssource: failed to read GPX file: %w", err)
	}

	var doc gpxFile
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("gpssource: failed to parse GPX file: %w", err)
	}

	route := &GPXRoute{}
	for _, trk := range doc.Tracks {
		if route.Name == "" {
			route.Name = trk.Name
		}
		for _, seg := range trk.Segments {
			for _, p := range seg.Points {
				route.Points = append(route.Points, geo.NewLatLon(p.Lat, p.Lon))
			}
		}
	}

	if len(route.Points) == 0 {
		for _, rte := range doc.Routes {
			if route.Name == "" {
				route.Name = rte.Name
			}
			for _, p := range rte.Points {
				route.Points = append(route.Points, geo.NewLatLon(p.Lat, p.Lon))
			}
		}
	}

	if len(route.Points) == 0 {
		return nil, fmt.Errorf("gpssource: GPX file %s contains no track or route points", path)
	}

	return route, nil
}

// Bounds returns the route's (minLat, maxLat, minLon, maxLon), and false
// if the route has no points.
func (r *GPXRoute) Bounds() (minLat, maxLat, minLon, maxLon float64, ok bool) {
	if len(r.Points) == 0 {
		return 0, 0, 0, 0, false
	}
	minLat, maxLat = r.Points[0].Latitude, r.Points[0].Latitude
	minLon, maxLon = r.Points[0].Longitude, r.Points[0].Longitude
	for _, p := range r.Points[1:] {
		if p.Latitude < minLat {
			minLat = p.Latitude
		}
		if p.Latitude > maxLat {
			maxLat = p.Latitude
		}
		if p.Longitude < minLon {
			minLon = p.Longitude
		}
		if p.Longitude > maxLon {
			maxLon = p.Longitude
		}
	}
	return minLat, maxLat, minLon, maxLon, true
}

// UpcomingWaypoints returns the route points ahead of (lat, lon) along
// the route, up to maxDistance metres: the closest route point is found
// first, then points are accumulated forward from there by cumulative
// haversine distance until maxDistance is exceeded.
func (r *GPXRoute) UpcomingWaypoints(lat, lon, maxDistance float64) []geo.LatLon {
	if len(r.Points) == 0 {
		return nil
	}

	here := geo.NewLatLon(lat, lon)
	closestIdx := 0
	minDist := geo.HaversineDistance(here, r.Points[0])
	for i, p := range r.Points[1:] {
		d := geo.HaversineDistance(here, p)
		if d < minDist {
			minDist = d
			closestIdx = i + 1
		}
	}

	var waypoints []geo.LatLon
	total := 0.0
	prev := here
	for i := closestIdx; i < len(r.Points); i++ {
		p := r.Points[i]
		total += geo.HaversineDistance(prev, p)
		if total > maxDistance {
			break
		}
		waypoints = append(waypoints, p)
		prev = p
	}
	return waypoints
}
