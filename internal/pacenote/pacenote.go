// Package pacenote converts detected corners and path features into
// spoken callout text, applying the distance-bracket, deduplication, and
// adjacent-note-merge rules that keep a rally co-driver's calls stable
// across update cycles instead of flickering or repeating.
package pacenote

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/banshee-data/copilot/internal/config"
	"github.com/banshee-data/copilot/internal/corner"
	"github.com/banshee-data/copilot/internal/pathproj"
)

// NoteType classifies a Pacenote for bracket and priority purposes.
type NoteType int

const (
	NoteCorner NoteType = iota
	NoteJunction
	NoteBridge
	NoteTunnel
	NoteRailway
	NoteFord
	NoteSpeedBump
	NoteSurface
	NoteBarrier
	NoteNarrow
)

// Pacenote is one spoken callout.
type Pacenote struct {
	Text     string
	Distance float64
	Type     NoteType
	Priority int // 1 = most urgent
	Key      string
}

// cornerCallDistances is the corner bracket family, checked in this order;
// see bracketForCorner.
var cornerCallDistances = []float64{1000, 500, 300, 200, 100}

// hazardCallDistances is the multi-callout hazard bracket family.
var hazardCallDistances = []float64{500, 300, 100}

// distanceCalls maps a callout anchor to its spoken word. Entries are
// scanned top to bottom and the first anchor within ±25m wins, so where
// two windows overlap the longer anchor listed first shadows the shorter
// one, even when the shorter one is closer.
var distanceCalls = []struct {
	meters float64
	word   string
}{
	{1000, "one thousand"},
	{500, "five hundred"},
	{400, "four hundred"},
	{300, "three hundred"},
	{200, "two hundred"},
	{150, "one fifty"},
	{100, "one hundred"},
	{80, "eighty"},
	{50, "fifty"},
	{30, "thirty"},
}

var severityNames = []string{
	"", // 0 unused
	"hairpin",
	"two",
	"three",
	"four",
	"five",
	"six",
	"flat",
}

// surfaceCallouts maps OSM surface tags to the callout word spoken for
// "onto {word}".
var surfaceCallouts = map[string]string{
	"asphalt": "tarmac",
	"paved":   "tarmac",
	"concrete": "concrete",
	"gravel":   "gravel",
	"unpaved":  "gravel",
	"dirt":     "gravel",
	"ground":   "gravel",
	"grass":    "gravel",
	"sand":     "gravel",
	"mud":      "gravel",
}

// minCalloutDistance is the closest a corner is ever called at (the 100m
// bracket's lower bound).
const minCalloutDistance = 20.0

// CalloutMemory tracks already-spoken keys and cached corner descriptor
// text, bounded so it can't grow without limit across a long stage.
type CalloutMemory struct {
	called      map[string]struct{}
	cornerCache map[string]string
	bound       int
}

// NewCalloutMemory creates an empty memory bounded at maxEntries; once the
// called-key set exceeds this bound, both it and the corner descriptor
// cache are cleared together.
func NewCalloutMemory(maxEntries int) *CalloutMemory {
	return &CalloutMemory{
		called:      make(map[string]struct{}),
		cornerCache: make(map[string]string),
		bound:       maxEntries,
	}
}

func (m *CalloutMemory) has(key string) bool {
	_, ok := m.called[key]
	return ok
}

func (m *CalloutMemory) add(key string) {
	m.called[key] = struct{}{}
	if len(m.called) > m.bound {
		m.called = make(map[string]struct{})
		m.cornerCache = make(map[string]string)
	}
}

// Generator produces Pacenotes from corners and path features for one
// update cycle.
type Generator struct {
	cfg    *config.TuningConfig
	memory *CalloutMemory
}

// NewGenerator builds a Generator reading its tunables from cfg and
// recording dedup state in memory.
func NewGenerator(cfg *config.TuningConfig, memory *CalloutMemory) *Generator {
	return &Generator{cfg: cfg, memory: memory}
}

// Generate runs the full §4.6.4 pipeline: convert, sort, block-filter,
// merge, return — in that exact order.
func (g *Generator) Generate(corners []corner.Corner, features []pathproj.FeatureAhead) []Pacenote {
	var notes []Pacenote

	for _, c := range corners {
		if c.EntryDistance > g.cfg.GetLookaheadMeters() {
			continue
		}
		if note, ok := g.cornerToNote(c); ok {
			notes = append(notes, note)
		}
	}

	for _, f := range features {
		if f.Distance > g.cfg.GetLookaheadMeters() && f.Kind != pathproj.FeatureJunction {
			continue
		}
		note, ok := g.featureToNote(f)
		if ok {
			notes = append(notes, note)
		}
	}

	sort.SliceStable(notes, func(i, j int) bool { return notes[i].Distance < notes[j].Distance })

	notes = g.blockLongRangeCorners(notes, corners)
	notes = g.mergeAdjacent(notes)

	return notes
}

// bracketForCorner returns the matching corner bracket, or (0, false) if
// distance falls in none of them, per §4.6.1's explicit per-bracket
// windows.
func bracketForCorner(distance float64) (float64, bool) {
	switch {
	case distance >= 900 && distance <= 1025:
		return 1000, true
	case distance >= 400 && distance <= 525:
		return 500, true
	case distance >= 250 && distance <= 325:
		return 300, true
	case distance >= 150 && distance <= 225:
		return 200, true
	case distance >= minCalloutDistance && distance <= 150:
		return 100, true
	default:
		return 0, false
	}
}

// bracketForHazard returns the matching hazard bracket: B matches distance
// in [max(0, B-100), B+25].
func bracketForHazard(distance float64) (float64, bool) {
	for _, b := range hazardCallDistances {
		lower := math.Max(0, b-100)
		if distance >= lower && distance <= b+25 {
			return b, true
		}
	}
	return 0, false
}

// distanceWord returns the spoken distance prefix for distance: the word of
// the first distanceCalls anchor within ±25m of it.
func distanceWord(distance float64) (string, bool) {
	for _, d := range distanceCalls {
		if distance >= d.meters-25 && distance <= d.meters+25 {
			return d.word, true
		}
	}
	return "", false
}

func (g *Generator) cornerToNote(c corner.Corner) (Pacenote, bool) {
	bracket, ok := bracketForCorner(c.EntryDistance)
	if !ok {
		return Pacenote{}, false
	}

	positionKey := CornerPositionKeyFromLatLon(c.ApexLat, c.ApexLon)
	uniqueKey := fmt.Sprintf("%s_%.0f", positionKey, bracket)

	descriptor, cached := g.memory.cornerCache[positionKey]
	if !cached {
		descriptor = cornerDescriptor(c)
		g.memory.cornerCache[positionKey] = descriptor
	}

	text := descriptor
	if word, ok := distanceWord(bracket); ok {
		text = word + " " + descriptor
	}

	return Pacenote{
		Text:     text,
		Distance: c.EntryDistance,
		Type:     NoteCorner,
		Priority: cornerPriority(c),
		Key:      uniqueKey,
	}, true
}

// CornerPositionKeyFromLatLon builds the corner cache key from the apex's
// absolute position, rounded to 4 decimal places (~11m). Keying on the
// apex's own lat/lon rather than its along-path distance keeps the same
// physical corner's key stable across cycles even though the polyline is
// re-walked from the vehicle's current position every cycle, which shifts
// every along-path distance measurement.
func CornerPositionKeyFromLatLon(apexLat, apexLon float64) string {
	return fmt.Sprintf("%.4f,%.4f", apexLat, apexLon)
}

func cornerDescriptor(c corner.Corner) string {
	var parts []string

	if c.IsChicane {
		parts = append(parts, fmt.Sprintf("chicane %s %s", c.Direction, c.ExitDirection))
		return strings.Join(parts, " ")
	}

	severity := severityNames[c.Severity]
	isSquare := c.Severity <= 2 && math.Abs(c.TotalAngle) >= 60 && math.Abs(c.TotalAngle) <= 120

	switch {
	case isSquare:
		parts = append(parts, fmt.Sprintf("square %s", c.Direction))
	case c.Severity == corner.SeverityHairpin || c.Severity == corner.SeverityKink:
		parts = append(parts, fmt.Sprintf("%s %s", severity, c.Direction))
	default:
		parts = append(parts, fmt.Sprintf("%s %s", c.Direction, severity))
	}

	if c.Tightens {
		parts = append(parts, "tightens")
	}
	if c.Opens {
		parts = append(parts, "opens")
	}
	if c.Long {
		parts = append(parts, "long")
	}

	return strings.Join(parts, " ")
}

// cornerPriority mirrors the original tighter-and-closer-is-more-urgent
// formula: severity number plus a coarse distance bucket.
func cornerPriority(c corner.Corner) int {
	distanceFactor := int(c.EntryDistance / 100)
	if distanceFactor < 1 {
		distanceFactor = 1
	}
	return int(c.Severity) + distanceFactor
}

func (g *Generator) featureToNote(f pathproj.FeatureAhead) (Pacenote, bool) {
	switch f.Kind {
	case pathproj.FeatureJunction:
		return g.junctionToNote(f)
	case pathproj.FeatureBridge:
		return singleBracketNote(f, "over bridge", NoteBridge, 5, fmt.Sprintf("bridge_%d", f.WayID)), true
	case pathproj.FeatureTunnel:
		return multiBracketWayNote(f, "tunnel", NoteTunnel, 4, "tunnel")
	case pathproj.FeatureRailwayCrossing:
		return multiBracketNodeNote(f, "over rails", NoteRailway, 3, "railway")
	case pathproj.FeatureFord:
		return multiBracketWayNote(f, "water", NoteFord, 3, "ford")
	case pathproj.FeatureSpeedBump:
		return g.speedBumpToNote(f)
	case pathproj.FeatureSurfaceChange:
		return g.surfaceChangeToNote(f)
	case pathproj.FeatureBarrier:
		return g.barrierToNote(f)
	case pathproj.FeatureNarrow:
		return multiBracketWayNote(f, "narrows", NoteNarrow, 4, "narrow")
	default:
		return Pacenote{}, false
	}
}

func (g *Generator) junctionToNote(f pathproj.FeatureAhead) (Pacenote, bool) {
	if f.Distance > g.cfg.GetJunctionWarnMeters() {
		return Pacenote{}, false
	}
	payload, _ := f.Payload.(pathproj.JunctionPayload)

	shouldWarn := payload.TurnDirection == "" ||
		(payload.TurnDirection != "" && payload.TurnDirection != "straight")
	if !shouldWarn {
		return Pacenote{}, false
	}

	body := "junction"
	if payload.TurnDirection != "" && payload.TurnDirection != "straight" {
		body = "junction " + payload.TurnDirection
	}

	text := body
	if word, ok := distanceWord(f.Distance); ok {
		text = word + " " + body
	}

	return Pacenote{
		Text:     text,
		Distance: f.Distance,
		Type:     NoteJunction,
		Priority: 1,
		Key:      fmt.Sprintf("%d", f.NodeID),
	}, true
}

func singleBracketNote(f pathproj.FeatureAhead, body string, t NoteType, priority int, key string) Pacenote {
	text := body
	if word, ok := distanceWord(f.Distance); ok {
		text = word + " " + body
	}
	return Pacenote{Text: text, Distance: f.Distance, Type: t, Priority: priority, Key: key}
}

func multiBracketWayNote(f pathproj.FeatureAhead, body string, t NoteType, priority int, keyPrefix string) (Pacenote, bool) {
	bracket, ok := bracketForHazard(f.Distance)
	if !ok {
		return Pacenote{}, false
	}
	key := fmt.Sprintf("%s_%d_%.0f", keyPrefix, f.WayID, bracket)
	return singleBracketNote(f, body, t, priority, key), true
}

func multiBracketNodeNote(f pathproj.FeatureAhead, body string, t NoteType, priority int, keyPrefix string) (Pacenote, bool) {
	bracket, ok := bracketForHazard(f.Distance)
	if !ok {
		return Pacenote{}, false
	}
	key := fmt.Sprintf("%s_%d_%.0f", keyPrefix, f.NodeID, bracket)
	return singleBracketNote(f, body, t, priority, key), true
}

func (g *Generator) speedBumpToNote(f pathproj.FeatureAhead) (Pacenote, bool) {
	bracket, ok := bracketForHazard(f.Distance)
	if !ok {
		return Pacenote{}, false
	}
	payload, _ := f.Payload.(pathproj.TrafficCalmingPayload)
	body := "bump"
	if payload.Kind == "table" || payload.Kind == "hump" {
		body = "bumps"
	}
	key := fmt.Sprintf("bump_%d_%.0f", f.WayID, bracket)
	return singleBracketNote(f, body, NoteSpeedBump, 4, key), true
}

func (g *Generator) surfaceChangeToNote(f pathproj.FeatureAhead) (Pacenote, bool) {
	bracket, ok := bracketForHazard(f.Distance)
	if !ok {
		return Pacenote{}, false
	}
	payload, _ := f.Payload.(pathproj.SurfaceChangePayload)
	word, known := surfaceCallouts[payload.Surface]
	if !known {
		return Pacenote{}, false
	}
	key := fmt.Sprintf("surface_%d_%.0f", f.WayID, bracket)
	return singleBracketNote(f, "onto "+word, NoteSurface, 4, key), true
}

func (g *Generator) barrierToNote(f pathproj.FeatureAhead) (Pacenote, bool) {
	bracket, ok := bracketForHazard(f.Distance)
	if !ok {
		return Pacenote{}, false
	}
	payload, _ := f.Payload.(pathproj.BarrierPayload)
	var body string
	switch payload.Kind {
	case "cattle_grid":
		body = "cattle grid"
	case "gate":
		body = "gate"
	default:
		return Pacenote{}, false
	}
	key := fmt.Sprintf("barrier_%d_%.0f", f.NodeID, bracket)
	return singleBracketNote(f, body, NoteBarrier, 3, key), true
}

// blockLongRangeCorners removes any corner note whose bracket is 500 or
// 1000 (plus 300/200 if configured) when a closer corner — from the full
// §4.5 corner list, not just in-bracket notes — exists more than the merge
// distance closer. The 100m bracket is never blocked.
func (g *Generator) blockLongRangeCorners(notes []Pacenote, allCorners []corner.Corner) []Pacenote {
	if len(notes) == 0 {
		return notes
	}

	cornerDistances := make([]float64, len(allCorners))
	for i, c := range allCorners {
		cornerDistances[i] = c.EntryDistance
	}
	sort.Float64s(cornerDistances)

	mergeDistance := g.cfg.GetMergeDistanceMeters()
	blockMedium := g.cfg.GetBlockMediumBrackets()

	var out []Pacenote
	for _, note := range notes {
		if note.Type != NoteCorner || !isFilterableBracketKey(note.Key, blockMedium) {
			out = append(out, note)
			continue
		}

		blocked := false
		for _, cd := range cornerDistances {
			if cd >= note.Distance {
				break
			}
			if note.Distance-cd > mergeDistance {
				blocked = true
				break
			}
		}
		if !blocked {
			out = append(out, note)
		}
	}
	return out
}

func isFilterableBracketKey(key string, blockMedium bool) bool {
	if strings.HasSuffix(key, "_100") {
		return false
	}
	if strings.HasSuffix(key, "_500") || strings.HasSuffix(key, "_1000") {
		return true
	}
	if blockMedium && (strings.HasSuffix(key, "_300") || strings.HasSuffix(key, "_200")) {
		return true
	}
	return false
}

// mergeAdjacent collapses runs of notes within merge distance into one
// "into"-joined note, per §4.6.4 step 4.
func (g *Generator) mergeAdjacent(notes []Pacenote) []Pacenote {
	if len(notes) < 2 {
		return notes
	}
	mergeDistance := g.cfg.GetMergeDistanceMeters()

	var merged []Pacenote
	i := 0
	for i < len(notes) {
		cur := notes[i]
		texts := []string{stripDistancePrefix(cur.Text)}
		keys := []string{cur.Key}
		priority := cur.Priority

		j := i + 1
		for j < len(notes) && notes[j].Distance-cur.Distance <= mergeDistance {
			texts = append(texts, stripDistancePrefix(notes[j].Text))
			keys = append(keys, notes[j].Key)
			if notes[j].Priority < priority {
				priority = notes[j].Priority
			}
			j++
		}

		if len(texts) > 1 {
			body := strings.Join(texts, " into ")
			text := body
			if word, ok := distanceWord(cur.Distance); ok {
				text = word + " " + body
			}
			merged = append(merged, Pacenote{
				Text:     text,
				Distance: cur.Distance,
				Type:     cur.Type,
				Priority: priority,
				Key:      strings.Join(keys, "|"),
			})
		} else {
			merged = append(merged, cur)
		}
		i = j
	}
	return merged
}

func stripDistancePrefix(text string) string {
	for _, d := range distanceCalls {
		if strings.HasPrefix(text, d.word+" ") {
			return text[len(d.word)+1:]
		}
	}
	return text
}

// ShouldCall decides whether note should be spoken now, applying the
// maximum/minimum distance gates, speed-scaled timing, and the
// CalloutMemory key gate (including the merged-note partial-emit case).
func (g *Generator) ShouldCall(note Pacenote, speedMPS float64) (bool, *Pacenote) {
	maxDistance := g.maxDistanceFor(note.Type)

	if speedMPS > g.cfg.GetMinWarningSpeedMPS() {
		minDistanceForTime := speedMPS * g.cfg.GetMinWarningSeconds()
		maxDistance = math.Max(maxDistance, minDistanceForTime)
	}

	if note.Distance > maxDistance {
		return false, nil
	}
	if note.Distance < minCalloutDistance {
		return false, nil
	}

	key := note.Key
	if key == "" {
		key = note.Text
	}

	if strings.Contains(key, "|") {
		return g.shouldCallMerged(note, key)
	}

	if g.memory.has(key) {
		return false, nil
	}
	g.memory.add(key)
	return true, &note
}

func (g *Generator) maxDistanceFor(t NoteType) float64 {
	switch t {
	case NoteCorner:
		return 1025
	case NoteTunnel, NoteRailway, NoteFord, NoteSpeedBump, NoteSurface, NoteBarrier, NoteNarrow:
		return 525
	default:
		return g.cfg.GetCalloutDistanceMeters()
	}
}

func (g *Generator) shouldCallMerged(note Pacenote, key string) (bool, *Pacenote) {
	componentKeys := strings.Split(key, "|")

	text := note.Text
	for _, d := range distanceCalls {
		if strings.HasPrefix(text, d.word+" ") {
			text = text[len(d.word)+1:]
			break
		}
	}
	textParts := strings.Split(text, " into ")

	var newKeys, newTexts []string
	for i, k := range componentKeys {
		if g.memory.has(k) {
			continue
		}
		newKeys = append(newKeys, k)
		if i < len(textParts) {
			newTexts = append(newTexts, textParts[i])
		}
	}

	if len(newKeys) == 0 {
		return false, nil
	}
	for _, k := range newKeys {
		g.memory.add(k)
	}

	if len(newKeys) < len(componentKeys) {
		filteredText := strings.Join(newTexts, " into ")
		if word, ok := distanceWord(note.Distance); ok {
			filteredText = word + " " + filteredText
		}
		filtered := Pacenote{
			Text:     filteredText,
			Distance: note.Distance,
			Type:     note.Type,
			Priority: note.Priority,
			Key:      strings.Join(newKeys, "|"),
		}
		return true, &filtered
	}

	return true, &note
}
