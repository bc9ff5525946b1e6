package copilot

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"tailscale.com/tsweb"

	"github.com/banshee-data/copilot/internal/gpssource"
	"github.com/banshee-data/copilot/internal/mapstore"
)

var injectFixTemplate = template.Must(template.New("inject-fix").Parse(`<!DOCTYPE html>
<html><head><title>CoPilot: inject GPS fix</title></head>
<body>
<h1>Inject a synthetic GPS fix</h1>
<form method="post" action="inject-fix-api">
  <label>lat <input type="text" name="lat" value="0"></label><br>
  <label>lon <input type="text" name="lon" value="0"></label><br>
  <label>heading (deg) <input type="text" name="heading" value="0"></label><br>
  <label>speed (m/s) <input type="text" name="speed" value="0"></label><br>
  <input type="submit" value="Inject">
</form>
</body></html>`))

// AttachAdminRoutes mounts the orchestrator's /debug/ surface: a tailsql SQL
// console over the currently loaded map store, an echarts timeline of
// recent callouts, and an inject-fix page used to feed the orchestrator a
// synthetic position for bench testing.
func (c *CoPilot) AttachAdminRoutes(mux *http.ServeMux, store *mapstore.Store) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("inject-fix", "inject a synthetic GPS fix into the orchestrator", func(w http.ResponseWriter, r *http.Request) {
		buf := bytes.NewBuffer(nil)
		if err := injectFixTemplate.Execute(buf, nil); err != nil {
			http.Error(w, "failed to render template", http.StatusInternalServerError)
			return
		}
		w.Write(buf.Bytes())
	})

	debug.HandleSilentFunc("inject-fix-api", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		pos, err := parsePositionForm(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		c.InjectFix(pos)
		fmt.Fprintf(w, "injected fix lat=%.5f lon=%.5f heading=%.1f speed=%.1f", pos.Lat, pos.Lon, pos.Heading, pos.Speed)
	})

	debug.HandleFunc("timeline", "recent pacenote callouts", c.handleTimeline)

	// The currently loaded map store's own tailsql console covers the SQL
	// debugging surface; mount it here too so everything lives under one
	// mux regardless of which package owns the store.
	if store != nil {
		store.AttachAdminRoutes(mux)
	}
}

func parsePositionForm(r *http.Request) (gpssource.Position, error) {
	lat, err := strconv.ParseFloat(r.FormValue("lat"), 64)
	if err != nil {
		return gpssource.Position{}, fmt.Errorf("invalid lat: %w", err)
	}
	lon, err := strconv.ParseFloat(r.FormValue("lon"), 64)
	if err != nil {
		return gpssource.Position{}, fmt.Errorf("invalid lon: %w", err)
	}
	heading, err := strconv.ParseFloat(r.FormValue("heading"), 64)
	if err != nil {
		return gpssource.Position{}, fmt.Errorf("invalid heading: %w", err)
	}
	speed, err := strconv.ParseFloat(r.FormValue("speed"), 64)
	if err != nil {
		return gpssource.Position{}, fmt.Errorf("invalid speed: %w", err)
	}
	return gpssource.Position{Lat: lat, Lon: lon, Heading: heading, Speed: speed}, nil
}

// handleTimeline renders the recent callout history as an echarts bar chart
// (distance at which each callout was announced, against the order
// dispatched). Like the rest of the debug surface, it carries no auth: it
// is meant for bench use only, never exposed past the local network.
func (c *CoPilot) handleTimeline(w http.ResponseWriter, r *http.Request) {
	events := c.RecentCallouts()

	x := make([]string, 0, len(events))
	y := make([]opts.BarData, 0, len(events))
	for _, ev := range events {
		x = append(x, ev.At.Format(time.TimeOnly))
		y = append(y, opts.BarData{Value: ev.Distance, Name: ev.Text})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Recent callouts", Subtitle: fmt.Sprintf("count=%d", len(events))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).AddSeries("callout distance (m)", y,
		charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
	)

	var buf bytes.Buffer
	if err := bar.Render(&buf); err != nil {
		http.Error(w, fmt.Sprintf("render error: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}
