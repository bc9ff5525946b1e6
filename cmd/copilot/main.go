// Command copilot runs the rally co-driver engine: it polls a GPS source,
// keeps a road-network window loaded around the vehicle, and announces
// upcoming corners and hazards through the audio worker.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/copilot/internal/config"
	"github.com/banshee-data/copilot/internal/copilot"
	"github.com/banshee-data/copilot/internal/gpssource"
	"github.com/banshee-data/copilot/internal/maploader"
	"github.com/banshee-data/copilot/internal/timeutil"
	"github.com/banshee-data/copilot/internal/version"

	audiopkg "github.com/banshee-data/copilot/internal/audio"
)

const shutdownTimeout = 5 * time.Second

var (
	mapPath       = flag.String("map-path", "", "path to a roads.db store file, a directory of region stores, or a raw source to ingest")
	gpsPort       = flag.String("gps-port", "/dev/ttyACM0", "serial port the GPS receiver is attached to")
	gpsBaud       = flag.Int("gps-baud", gpssource.DefaultBaudRate, "GPS receiver baud rate")
	disableGPS    = flag.Bool("disable-gps", false, "run without a GPS receiver; fixes can be injected via the debug route")
	replayPath    = flag.String("replay", "", "replay a recorded JSON fixture (an array of positions) instead of reading a live GPS receiver")
	replayLoop    = flag.Bool("replay-loop", false, "loop the replay fixture instead of stopping at the end")
	replayTick    = flag.Duration("replay-tick", 500*time.Millisecond, "interval between replayed fixture positions")
	routePath     = flag.String("route", "", "optional GPX route to follow (switches to route-follow mode once loaded)")
	simulation    = flag.Bool("simulation", false, "use the wider simulation refetch threshold and load radius")
	listenAddr    = flag.String("listen", ":8090", "debug HTTP listen address")
	configFile    = flag.String("config", config.DefaultConfigPath, "path to JSON tuning configuration file")
	versionFlag   = flag.Bool("version", false, "print version information and exit")
	versionShort  = flag.Bool("v", false, "print version information and exit (shorthand)")
)

func main() {
	flag.Parse()

	if *versionFlag || *versionShort {
		fmt.Printf("copilot v%s (git SHA: %s)\n", version.Version, version.GitSHA)
		return
	}

	log.Printf("copilot v%s (git SHA: %s)", version.Version, version.GitSHA)

	cfg, err := config.LoadTuningConfig(*configFile)
	if err != nil {
		log.Fatalf("failed to load tuning config: %v", err)
	}

	gps, err := buildGPSSource()
	if err != nil {
		log.Fatalf("failed to build GPS source: %v", err)
	}

	if *mapPath == "" {
		log.Fatal("-map-path is required")
	}
	loader, err := maploader.Open(*mapPath, nil)
	if err != nil {
		log.Fatalf("failed to open map store at %s: %v", *mapPath, err)
	}
	defer loader.Close()

	player, err := audiopkg.NewPlayer(cfg)
	if err != nil {
		log.Fatalf("failed to start audio player: %v", err)
	}

	engine := copilot.New(gps, loader, cfg, player, timeutil.RealClock{}, *simulation)

	if *routePath != "" {
		if err := engine.LoadRoute(*routePath); err != nil {
			log.Fatalf("failed to load route %s: %v", *routePath, err)
		}
		engine.SetMode(copilot.ModeRouteFollow)
		log.Printf("loaded route %s, starting in route-follow mode", *routePath)
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := engine.Run(ctx); err != nil {
			log.Printf("orchestrator error: %v", err)
		}
		log.Print("orchestrator terminated")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		mux := http.NewServeMux()
		engine.AttachAdminRoutes(mux, loader.PrimaryStore())

		server := &http.Server{Addr: *listenAddr, Handler: mux}
		errCh := make(chan error, 1)
		go func() { errCh <- server.ListenAndServe() }()

		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Printf("debug server shutdown error: %v", err)
			}
		case err := <-errCh:
			if err != nil && err != http.ErrServerClosed {
				log.Printf("debug server error: %v", err)
			}
		}
	}()

	wg.Wait()
	log.Print("graceful shutdown complete")
}

func buildGPSSource() (gpssource.Source, error) {
	switch {
	case *disableGPS:
		return gpssource.NewNoOpSource(), nil
	case *replayPath != "":
		fixture, err := loadReplayFixture(*replayPath)
		if err != nil {
			return nil, err
		}
		return gpssource.NewReplayGPSSource(fixture, *replayTick, *replayLoop), nil
	default:
		return gpssource.NewSerialGPSSource(*gpsPort, *gpsBaud), nil
	}
}

func loadReplayFixture(path string) ([]gpssource.Position, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read replay fixture: %w", err)
	}
	var fixture []gpssource.Position
	if err := json.Unmarshal(data, &fixture); err != nil {
		return nil, fmt.Errorf("decode replay fixture: %w", err)
	}
	return fixture, nil
}
