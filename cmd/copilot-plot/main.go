// Command copilot-plot renders a captured projected path and its detected
// corners to PNG, for eyeballing the corner detector's behaviour against a
// recorded fixture without wiring up a GPS receiver or a live map store.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"image/color"
	"log"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/copilot/internal/corner"
	"github.com/banshee-data/copilot/internal/geo"
	"github.com/banshee-data/copilot/internal/pathproj"
	"github.com/banshee-data/copilot/internal/security"
)

var (
	fixturePath = flag.String("fixture", "", "path to a JSON fixture holding a projected path and its detected corners")
	outDir      = flag.String("out", "plots", "directory PNG files are written to")
)

// fixture is the on-disk shape produced by dumping a pathproj.ProjectedPath
// and its corner.DetectCorners result side by side. Both types marshal with
// their Go field names since neither carries json tags.
type fixture struct {
	Path    pathproj.ProjectedPath `json:"path"`
	Corners []corner.Corner        `json:"corners"`
}

func main() {
	flag.Parse()

	if *fixturePath == "" {
		log.Fatal("-fixture is required")
	}

	fx, err := loadFixture(*fixturePath)
	if err != nil {
		log.Fatalf("load fixture: %v", err)
	}

	if err := security.ValidateExportPath(*outDir); err != nil {
		log.Fatalf("output dir: %v", err)
	}
	if err := os.MkdirAll(*outDir, 0755); err != nil {
		log.Fatalf("create output dir: %v", err)
	}

	if err := plotRoute(fx, filepath.Join(*outDir, "route.png")); err != nil {
		log.Fatalf("plot route: %v", err)
	}
	if err := plotRadiusProfile(fx, filepath.Join(*outDir, "radius_profile.png")); err != nil {
		log.Fatalf("plot radius profile: %v", err)
	}

	log.Printf("wrote %d points and %d corners to %s", len(fx.Path.Points), len(fx.Corners), *outDir)
}

func loadFixture(path string) (*fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var fx fixture
	if err := json.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &fx, nil
}

// plotRoute draws the polyline in (longitude, latitude) space with a marker
// at each corner's apex, coloured by severity.
func plotRoute(fx *fixture, outPath string) error {
	p := plot.New()
	p.Title.Text = "Projected path"
	p.X.Label.Text = "Longitude"
	p.Y.Label.Text = "Latitude"

	routePts := make(plotter.XYs, len(fx.Path.Points))
	for i, pt := range fx.Path.Points {
		routePts[i] = plotter.XY{X: pt.Position.Lon(), Y: pt.Position.Lat()}
	}
	if len(routePts) > 0 {
		line, err := plotter.NewLine(routePts)
		if err != nil {
			return err
		}
		line.Width = vg.Points(1.5)
		p.Add(line)
		p.Legend.Add("path", line)
	}

	for _, sev := range severityOrder {
		var pts plotter.XYs
		for _, c := range fx.Corners {
			if c.Severity != sev {
				continue
			}
			pos, ok := positionAtDistance(fx.Path, c.ApexDistance)
			if !ok {
				continue
			}
			pts = append(pts, plotter.XY{X: pos.Lon(), Y: pos.Lat()})
		}
		if len(pts) == 0 {
			continue
		}
		scatter, err := plotter.NewScatter(pts)
		if err != nil {
			return err
		}
		scatter.Color = severityColor(sev)
		scatter.Radius = vg.Points(3)
		p.Add(scatter)
		p.Legend.Add(severityLabel(sev), scatter)
	}

	p.Legend.Top = true
	return p.Save(10*vg.Inch, 8*vg.Inch, outPath)
}

// plotRadiusProfile draws each corner's minimum radius against its distance
// along the path, so a tightening or widening sequence is visible at a
// glance. Straights (MinRadius == +Inf) are left out.
func plotRadiusProfile(fx *fixture, outPath string) error {
	p := plot.New()
	p.Title.Text = "Corner minimum radius by distance"
	p.X.Label.Text = "Distance (m)"
	p.Y.Label.Text = "Minimum radius (m)"

	pts := make(plotter.XYs, 0, len(fx.Corners))
	for _, c := range fx.Corners {
		if math.IsInf(c.MinRadius, 1) {
			continue
		}
		pts = append(pts, plotter.XY{X: c.ApexDistance, Y: c.MinRadius})
	}
	if len(pts) == 0 {
		return p.Save(10*vg.Inch, 6*vg.Inch, outPath)
	}

	scatter, err := plotter.NewScatter(pts)
	if err != nil {
		return err
	}
	scatter.Radius = vg.Points(3)
	p.Add(scatter)

	return p.Save(10*vg.Inch, 6*vg.Inch, outPath)
}

// positionAtDistance finds the path point nearest to targetDistance, a
// cheap stand-in for interpolating between the two bracketing points.
func positionAtDistance(path pathproj.ProjectedPath, targetDistance float64) (pos geo.LatLon, ok bool) {
	if len(path.Points) == 0 {
		return geo.LatLon{}, false
	}
	best := path.Points[0]
	bestDiff := math.Abs(best.Distance - targetDistance)
	for _, pt := range path.Points[1:] {
		diff := math.Abs(pt.Distance - targetDistance)
		if diff < bestDiff {
			best, bestDiff = pt, diff
		}
	}
	return best.Position, true
}

var severityOrder = []corner.Severity{
	corner.SeverityHairpin,
	corner.Severity2,
	corner.Severity3,
	corner.Severity4,
	corner.Severity5,
	corner.Severity6,
	corner.SeverityKink,
}

func severityLabel(s corner.Severity) string {
	if s == corner.SeverityKink {
		return "kink"
	}
	return fmt.Sprintf("%d", int(s))
}

// severityColor spreads severities across a hue wheel, tightest corners
// (hairpins) rendered hottest.
func severityColor(s corner.Severity) color.Color {
	const maxSeverity = float64(corner.SeverityKink)
	hue := (float64(s) - 1) / maxSeverity
	r, g, b := hslToRGB(hue, 0.75, 0.5)
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

func hslToRGB(h, s, l float64) (r, g, b uint8) {
	var rf, gf, bf float64
	if s == 0 {
		rf, gf, bf = l, l, l
	} else {
		var q float64
		if l < 0.5 {
			q = l * (1 + s)
		} else {
			q = l + s - l*s
		}
		p := 2*l - q
		rf = hueToRGB(p, q, h+1.0/3.0)
		gf = hueToRGB(p, q, h)
		bf = hueToRGB(p, q, h-1.0/3.0)
	}
	return uint8(rf * 255), uint8(gf * 255), uint8(bf * 255)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t += 1
	}
	if t > 1 {
		t -= 1
	}
	switch {
	case t < 1.0/6.0:
		return p + (q-p)*6*t
	case t < 1.0/2.0:
		return q
	case t < 2.0/3.0:
		return p + (q-p)*(2.0/3.0-t)*6
	default:
		return p
	}
}
