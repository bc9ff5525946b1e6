// Package config loads and validates the CoPilot tuning configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for tuning parameters.
// Every knob from the engine's §6.6 configuration surface lives here so the
// same JSON document can seed the orchestrator at startup and be replayed in
// tests.
type TuningConfig struct {
	// Cycle and load geometry.
	LookaheadMeters        *float64 `json:"lookahead_meters,omitempty"`
	UpdateInterval         *string  `json:"update_interval,omitempty"` // duration string like "500ms"
	RoadLoadRadiusMeters   *float64 `json:"road_load_radius_meters,omitempty"`
	SimRoadLoadRadius      *float64 `json:"sim_road_load_radius_meters,omitempty"`
	RefetchThresholdMeters *float64 `json:"refetch_threshold_meters,omitempty"`
	SimRefetchThreshold    *float64 `json:"sim_refetch_threshold_meters,omitempty"`
	BoundaryPreloadMeters  *float64 `json:"boundary_preload_meters,omitempty"`

	// Path projector.
	HeadingToleranceDeg *float64 `json:"heading_tolerance_deg,omitempty"`
	SearchRadiusMeters  *float64 `json:"search_radius_meters,omitempty"`

	// Corner detector.
	CurvaturePeakThreshold *float64 `json:"curvature_peak_threshold,omitempty"`
	MinCutDistanceMeters   *float64 `json:"min_cut_distance_meters,omitempty"`
	StraightFillInterval   *float64 `json:"straight_fill_interval_meters,omitempty"`
	MinCornerAngleDeg      *float64 `json:"min_corner_angle_deg,omitempty"`
	MinCornerRadiusMeters  *float64 `json:"min_corner_radius_meters,omitempty"`
	ChicaneMaxGapMeters    *float64 `json:"chicane_max_gap_meters,omitempty"`
	ChicaneMaxLengthMeters *float64 `json:"chicane_max_length_meters,omitempty"`
	MergeSameDirection     *bool    `json:"merge_same_direction,omitempty"`

	// Pacenote generator.
	CalloutDistanceMeters *float64 `json:"callout_distance_meters,omitempty"`
	MergeDistanceMeters   *float64 `json:"merge_distance_meters,omitempty"`
	JunctionWarnMeters    *float64 `json:"junction_warn_meters,omitempty"`
	MinWarningSeconds     *float64 `json:"min_warning_seconds,omitempty"`
	MinWarningSpeedMPS    *float64 `json:"min_warning_speed_mps,omitempty"`
	BlockMediumBrackets   *bool    `json:"block_medium_brackets,omitempty"`
	CalloutMemoryBound    *int     `json:"callout_memory_bound,omitempty"`

	// Audio.
	Voice            *string `json:"voice,omitempty"`
	SpeechWPM        *int    `json:"speech_wpm,omitempty"`
	EffectsEnabled   *bool   `json:"effects_enabled,omitempty"`
	SampleDir        *string `json:"sample_dir,omitempty"`
	AudioQueueDepth  *int    `json:"audio_queue_depth,omitempty"`
	RenderTimeout    *string `json:"render_timeout,omitempty"` // duration string like "2s"
	DisplayUnits     *string `json:"display_units,omitempty"`
}

// Helper functions to create pointers.
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the
// max file size. Fields omitted from the JSON file retain their default
// values, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,
		"../../../" + DefaultConfigPath,
		"../../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are self-consistent.
func (c *TuningConfig) Validate() error {
	if c.LookaheadMeters != nil && *c.LookaheadMeters <= 0 {
		return fmt.Errorf("lookahead_meters must be positive, got %f", *c.LookaheadMeters)
	}
	if c.UpdateInterval != nil && *c.UpdateInterval != "" {
		if _, err := time.ParseDuration(*c.UpdateInterval); err != nil {
			return fmt.Errorf("invalid update_interval %q: %w", *c.UpdateInterval, err)
		}
	}
	if c.RenderTimeout != nil && *c.RenderTimeout != "" {
		if _, err := time.ParseDuration(*c.RenderTimeout); err != nil {
			return fmt.Errorf("invalid render_timeout %q: %w", *c.RenderTimeout, err)
		}
	}
	if c.MinCornerAngleDeg != nil && (*c.MinCornerAngleDeg < 0 || *c.MinCornerAngleDeg > 180) {
		return fmt.Errorf("min_corner_angle_deg must be between 0 and 180, got %f", *c.MinCornerAngleDeg)
	}
	if c.CalloutMemoryBound != nil && *c.CalloutMemoryBound <= 0 {
		return fmt.Errorf("callout_memory_bound must be positive, got %d", *c.CalloutMemoryBound)
	}
	if c.DisplayUnits != nil && *c.DisplayUnits != "" {
		switch *c.DisplayUnits {
		case "mps", "mph", "kmph", "kph":
		default:
			return fmt.Errorf("invalid display_units %q", *c.DisplayUnits)
		}
	}
	return nil
}

// GetUpdateInterval parses and returns UpdateInterval as a time.Duration.
func (c *TuningConfig) GetUpdateInterval() time.Duration {
	if c.UpdateInterval == nil || *c.UpdateInterval == "" {
		return 500 * time.Millisecond
	}
	d, err := time.ParseDuration(*c.UpdateInterval)
	if err != nil {
		return 500 * time.Millisecond
	}
	return d
}

// GetRenderTimeout parses and returns RenderTimeout as a time.Duration.
func (c *TuningConfig) GetRenderTimeout() time.Duration {
	if c.RenderTimeout == nil || *c.RenderTimeout == "" {
		return 2 * time.Second
	}
	d, err := time.ParseDuration(*c.RenderTimeout)
	if err != nil {
		return 2 * time.Second
	}
	return d
}

func (c *TuningConfig) GetLookaheadMeters() float64 {
	if c.LookaheadMeters == nil {
		return 1000
	}
	return *c.LookaheadMeters
}

func (c *TuningConfig) GetRoadLoadRadiusMeters() float64 {
	if c.RoadLoadRadiusMeters == nil {
		return 2000
	}
	return *c.RoadLoadRadiusMeters
}

func (c *TuningConfig) GetSimRoadLoadRadius() float64 {
	if c.SimRoadLoadRadius == nil {
		return 5000
	}
	return *c.SimRoadLoadRadius
}

func (c *TuningConfig) GetRefetchThresholdMeters() float64 {
	if c.RefetchThresholdMeters == nil {
		return 500
	}
	return *c.RefetchThresholdMeters
}

func (c *TuningConfig) GetSimRefetchThreshold() float64 {
	if c.SimRefetchThreshold == nil {
		return 2500
	}
	return *c.SimRefetchThreshold
}

func (c *TuningConfig) GetBoundaryPreloadMeters() float64 {
	if c.BoundaryPreloadMeters == nil {
		return 5000
	}
	return *c.BoundaryPreloadMeters
}

func (c *TuningConfig) GetHeadingToleranceDeg() float64 {
	if c.HeadingToleranceDeg == nil {
		return 30
	}
	return *c.HeadingToleranceDeg
}

func (c *TuningConfig) GetSearchRadiusMeters() float64 {
	if c.SearchRadiusMeters == nil {
		return 30
	}
	return *c.SearchRadiusMeters
}

func (c *TuningConfig) GetCurvaturePeakThreshold() float64 {
	if c.CurvaturePeakThreshold == nil {
		return 0.005
	}
	return *c.CurvaturePeakThreshold
}

func (c *TuningConfig) GetMinCutDistanceMeters() float64 {
	if c.MinCutDistanceMeters == nil {
		return 10
	}
	return *c.MinCutDistanceMeters
}

func (c *TuningConfig) GetStraightFillInterval() float64 {
	if c.StraightFillInterval == nil {
		return 100
	}
	return *c.StraightFillInterval
}

func (c *TuningConfig) GetMinCornerAngleDeg() float64 {
	if c.MinCornerAngleDeg == nil {
		return 10
	}
	return *c.MinCornerAngleDeg
}

func (c *TuningConfig) GetMinCornerRadiusMeters() float64 {
	if c.MinCornerRadiusMeters == nil {
		return 300
	}
	return *c.MinCornerRadiusMeters
}

func (c *TuningConfig) GetChicaneMaxGapMeters() float64 {
	if c.ChicaneMaxGapMeters == nil {
		return 15
	}
	return *c.ChicaneMaxGapMeters
}

func (c *TuningConfig) GetChicaneMaxLengthMeters() float64 {
	if c.ChicaneMaxLengthMeters == nil {
		return 100
	}
	return *c.ChicaneMaxLengthMeters
}

func (c *TuningConfig) GetMergeSameDirection() bool {
	if c.MergeSameDirection == nil {
		return false // default OFF in the orchestrator
	}
	return *c.MergeSameDirection
}

func (c *TuningConfig) GetCalloutDistanceMeters() float64 {
	if c.CalloutDistanceMeters == nil {
		return 100
	}
	return *c.CalloutDistanceMeters
}

func (c *TuningConfig) GetMergeDistanceMeters() float64 {
	if c.MergeDistanceMeters == nil {
		return 10
	}
	return *c.MergeDistanceMeters
}

func (c *TuningConfig) GetJunctionWarnMeters() float64 {
	if c.JunctionWarnMeters == nil {
		return 200
	}
	return *c.JunctionWarnMeters
}

func (c *TuningConfig) GetMinWarningSeconds() float64 {
	if c.MinWarningSeconds == nil {
		return 5
	}
	return *c.MinWarningSeconds
}

func (c *TuningConfig) GetMinWarningSpeedMPS() float64 {
	if c.MinWarningSpeedMPS == nil {
		return 20
	}
	return *c.MinWarningSpeedMPS
}

func (c *TuningConfig) GetBlockMediumBrackets() bool {
	if c.BlockMediumBrackets == nil {
		return false // default blocks only the _500/_1000 brackets
	}
	return *c.BlockMediumBrackets
}

func (c *TuningConfig) GetCalloutMemoryBound() int {
	if c.CalloutMemoryBound == nil {
		return 100
	}
	return *c.CalloutMemoryBound
}

func (c *TuningConfig) GetVoice() string {
	if c.Voice == nil || *c.Voice == "" {
		return "default"
	}
	return *c.Voice
}

func (c *TuningConfig) GetSpeechWPM() int {
	if c.SpeechWPM == nil {
		return 190
	}
	return *c.SpeechWPM
}

func (c *TuningConfig) GetEffectsEnabled() bool {
	if c.EffectsEnabled == nil {
		return true
	}
	return *c.EffectsEnabled
}

func (c *TuningConfig) GetSampleDir() string {
	if c.SampleDir == nil {
		return ""
	}
	return *c.SampleDir
}

func (c *TuningConfig) GetAudioQueueDepth() int {
	if c.AudioQueueDepth == nil {
		return 4
	}
	return *c.AudioQueueDepth
}

func (c *TuningConfig) GetDisplayUnits() string {
	if c.DisplayUnits == nil || *c.DisplayUnits == "" {
		return "mph"
	}
	return *c.DisplayUnits
}
