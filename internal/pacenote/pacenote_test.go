package pacenote

import (
	"strings"
	"testing"

	"github.com/banshee-data/copilot/internal/config"
	"github.com/banshee-data/copilot/internal/corner"
	"github.com/banshee-data/copilot/internal/pathproj"
)

func newTestGenerator() *Generator {
	cfg := config.EmptyTuningConfig()
	mem := NewCalloutMemory(cfg.GetCalloutMemoryBound())
	return NewGenerator(cfg, mem)
}

func TestBracketForCornerWindows(t *testing.T) {
	cases := []struct {
		distance float64
		want     float64
		ok       bool
	}{
		{950, 1000, true},
		{1025, 1000, true},
		{1026, 0, false},
		{525, 500, true},
		{399, 0, false},
		{300, 300, true},
		{200, 200, true},
		{140, 100, true},
		{19, 0, false},
	}
	for _, c := range cases {
		got, ok := bracketForCorner(c.distance)
		if ok != c.ok || (ok && got != c.want) {
			t.Errorf("bracketForCorner(%v) = (%v, %v), want (%v, %v)", c.distance, got, ok, c.want, c.ok)
		}
	}
}

func TestBracketForHazardWindows(t *testing.T) {
	cases := []struct {
		distance float64
		want     float64
		ok       bool
	}{
		{500, 500, true},
		{401, 500, true},
		{400, 500, true}, // also within [200,325] of 300 bracket; first match wins (500)
		{300, 300, true},
		{100, 100, true},
		{0, 100, true},
		{526, 0, false},
	}
	for _, c := range cases {
		got, ok := bracketForHazard(c.distance)
		if ok != c.ok || (ok && got != c.want) {
			t.Errorf("bracketForHazard(%v) = (%v, %v), want (%v, %v)", c.distance, got, ok, c.want, c.ok)
		}
	}
}

func TestDistanceWordProximity(t *testing.T) {
	cases := []struct {
		distance float64
		want     string
		ok       bool
	}{
		{1000, "one thousand", true},
		{990, "one thousand", true},
		{100, "one hundred", true},
		{115, "one hundred", true},
		{15, "thirty", true}, // 50's ±25 window also covers 25-75, so only 5-24 uniquely resolves to "thirty"
		{2, "", false},
	}
	for _, c := range cases {
		got, ok := distanceWord(c.distance)
		if ok != c.ok || got != c.want {
			t.Errorf("distanceWord(%v) = (%q, %v), want (%q, %v)", c.distance, got, ok, c.want, c.ok)
		}
	}
}

func TestCornerDescriptorRegular(t *testing.T) {
	c := corner.Corner{Direction: corner.Left, Severity: corner.Severity3, TotalAngle: 45}
	if got := cornerDescriptor(c); got != "left three" {
		t.Errorf("cornerDescriptor() = %q, want %q", got, "left three")
	}
}

func TestCornerDescriptorHairpinException(t *testing.T) {
	c := corner.Corner{Direction: corner.Right, Severity: corner.SeverityHairpin, TotalAngle: 170}
	if got := cornerDescriptor(c); got != "hairpin right" {
		t.Errorf("cornerDescriptor() = %q, want %q", got, "hairpin right")
	}
}

func TestCornerDescriptorKinkException(t *testing.T) {
	c := corner.Corner{Direction: corner.Left, Severity: corner.SeverityKink, TotalAngle: 20}
	if got := cornerDescriptor(c); got != "flat left" {
		t.Errorf("cornerDescriptor() = %q, want %q", got, "flat left")
	}
}

func TestCornerDescriptorSquareRule(t *testing.T) {
	c := corner.Corner{Direction: corner.Right, Severity: corner.Severity2, TotalAngle: 90}
	if got := cornerDescriptor(c); got != "square right" {
		t.Errorf("cornerDescriptor() = %q, want %q", got, "square right")
	}
}

func TestCornerDescriptorModifiers(t *testing.T) {
	c := corner.Corner{Direction: corner.Left, Severity: corner.Severity4, TotalAngle: 45, Tightens: true, Long: true}
	want := "left four tightens long"
	if got := cornerDescriptor(c); got != want {
		t.Errorf("cornerDescriptor() = %q, want %q", got, want)
	}
}

func TestCornerDescriptorChicane(t *testing.T) {
	c := corner.Corner{IsChicane: true, Direction: corner.Left, ExitDirection: corner.Right}
	if got := cornerDescriptor(c); got != "chicane left right" {
		t.Errorf("cornerDescriptor() = %q, want %q", got, "chicane left right")
	}
}

func TestSurfaceCalloutsMapping(t *testing.T) {
	cases := map[string]string{
		"asphalt": "tarmac",
		"paved":   "tarmac",
		"gravel":  "gravel",
		"dirt":    "gravel",
		"mud":     "gravel",
	}
	for surface, want := range cases {
		if got := surfaceCallouts[surface]; got != want {
			t.Errorf("surfaceCallouts[%q] = %q, want %q", surface, got, want)
		}
	}
	if _, ok := surfaceCallouts["cobblestone"]; ok {
		t.Error("expected unmapped surface to be absent")
	}
}

func TestGeneratorSurfaceChangeUnmappedSurfaceProducesNoNote(t *testing.T) {
	g := newTestGenerator()
	f := pathproj.FeatureAhead{
		Kind: pathproj.FeatureSurfaceChange, Distance: 300, WayID: 7,
		Payload: pathproj.SurfaceChangePayload{Surface: "cobblestone"},
	}
	if _, ok := g.surfaceChangeToNote(f); ok {
		t.Error("expected no note for an unmapped surface")
	}
}

func TestGeneratorSurfaceChangeMappedSurface(t *testing.T) {
	g := newTestGenerator()
	f := pathproj.FeatureAhead{
		Kind: pathproj.FeatureSurfaceChange, Distance: 300, WayID: 7,
		Payload: pathproj.SurfaceChangePayload{Surface: "gravel"},
	}
	note, ok := g.surfaceChangeToNote(f)
	if !ok {
		t.Fatal("expected a note for a mapped surface")
	}
	if !strings.Contains(note.Text, "gravel") {
		t.Errorf("Text = %q, want it to mention gravel", note.Text)
	}
	if note.Key != "surface_7_300" {
		t.Errorf("Key = %q, want surface_7_300", note.Key)
	}
}

func TestCornerPositionKeyStableAsApexDistanceShrinksCycleToCycle(t *testing.T) {
	// The same physical corner is re-detected on successive cycles with a
	// shrinking ApexDistance (the vehicle is getting closer), as it is
	// walked fresh from the vehicle's current position every cycle. The
	// cache key must stay identical across every cycle even though
	// ApexDistance never repeats.
	apexLat, apexLon := 51.50012, -0.10034
	distancesByCycle := []float64{812.3, 640.9, 401.2, 188.0}

	var keys []string
	for _, apexDistance := range distancesByCycle {
		c := corner.Corner{ApexDistance: apexDistance, ApexLat: apexLat, ApexLon: apexLon}
		keys = append(keys, CornerPositionKeyFromLatLon(c.ApexLat, c.ApexLon))
	}
	for i := 1; i < len(keys); i++ {
		if keys[i] != keys[0] {
			t.Errorf("cycle %d key = %q, want %q (stable across shrinking ApexDistance)", i, keys[i], keys[0])
		}
	}
}

func TestCornerPositionKeyFromLatLon(t *testing.T) {
	got := CornerPositionKeyFromLatLon(51.50001234, -0.12345678)
	want := "51.5000,-0.1235"
	if got != want {
		t.Errorf("CornerPositionKeyFromLatLon() = %q, want %q", got, want)
	}
}

func TestGeneratorCornerCacheReusedAcrossBrackets(t *testing.T) {
	g := newTestGenerator()
	const apexLat, apexLon = 51.50012, -0.10034
	c := corner.Corner{EntryDistance: 950, ApexDistance: 1000, ApexLat: apexLat, ApexLon: apexLon, Direction: corner.Left, Severity: corner.Severity3, TotalAngle: 45}

	note1, ok := g.cornerToNote(c)
	if !ok {
		t.Fatal("expected a note in the 1000 bracket")
	}
	if !strings.Contains(note1.Text, "one thousand") {
		t.Errorf("Text = %q, want the one-thousand prefix", note1.Text)
	}

	// A later cycle re-detects the same physical corner (same apex
	// lat/lon) with every along-path distance shrunk, since the polyline
	// is re-walked fresh from the vehicle's new, closer position.
	cCloser := c
	cCloser.EntryDistance = 420
	cCloser.ApexDistance = 470
	note2, ok := g.cornerToNote(cCloser)
	if !ok {
		t.Fatal("expected a note in the 500 bracket")
	}
	if !strings.Contains(note2.Text, "five hundred") {
		t.Errorf("Text = %q, want the five-hundred prefix", note2.Text)
	}
	if !strings.Contains(note2.Text, "left three") {
		t.Errorf("Text = %q, want the cached descriptor reused", note2.Text)
	}
}

func TestGenerateSortsByDistance(t *testing.T) {
	g := newTestGenerator()
	corners := []corner.Corner{
		{EntryDistance: 130, ApexDistance: 150, Direction: corner.Left, Severity: corner.Severity3, TotalAngle: 45},
		{EntryDistance: 30, ApexDistance: 50, Direction: corner.Right, Severity: corner.Severity4, TotalAngle: 40},
	}
	notes := g.Generate(corners, nil)
	if len(notes) != 2 {
		t.Fatalf("expected 2 notes, got %d", len(notes))
	}
	if notes[0].Distance > notes[1].Distance {
		t.Errorf("expected notes sorted ascending by distance, got %v then %v", notes[0].Distance, notes[1].Distance)
	}
}

func TestGenerateBlocksLongRangeCornerWhenCloserCornerExists(t *testing.T) {
	g := newTestGenerator()
	// A corner at 950m (1000 bracket) and a much closer raw corner at 120m;
	// the 1000-bracket note should be blocked since a closer corner exists.
	corners := []corner.Corner{
		{EntryDistance: 950, ApexDistance: 980, Direction: corner.Left, Severity: corner.Severity3, TotalAngle: 45},
		{EntryDistance: 120, ApexDistance: 140, Direction: corner.Right, Severity: corner.Severity4, TotalAngle: 40},
	}
	notes := g.Generate(corners, nil)
	for _, n := range notes {
		if strings.HasSuffix(n.Key, "_1000") {
			t.Errorf("expected the 1000-bracket note to be blocked by a closer corner, got %+v", n)
		}
	}
}

func TestGenerateDoesNotBlock100Bracket(t *testing.T) {
	g := newTestGenerator()
	corners := []corner.Corner{
		{EntryDistance: 950, ApexDistance: 980, Direction: corner.Left, Severity: corner.Severity3, TotalAngle: 45},
		{EntryDistance: 120, ApexDistance: 140, Direction: corner.Right, Severity: corner.Severity4, TotalAngle: 40},
	}
	notes := g.Generate(corners, nil)
	found100 := false
	for _, n := range notes {
		if strings.HasSuffix(n.Key, "_100") {
			found100 = true
		}
	}
	if !found100 {
		t.Error("expected the 100-bracket note to survive the long-range block filter")
	}
}

func TestGenerateMergesAdjacentNotes(t *testing.T) {
	g := newTestGenerator()
	corners := []corner.Corner{
		{EntryDistance: 100, ApexDistance: 110, Direction: corner.Left, Severity: corner.Severity3, TotalAngle: 45},
		{EntryDistance: 105, ApexDistance: 140, Direction: corner.Right, Severity: corner.Severity4, TotalAngle: 40},
	}
	notes := g.Generate(corners, nil)
	if len(notes) != 1 {
		t.Fatalf("expected adjacent notes within merge distance to merge into 1, got %d: %+v", len(notes), notes)
	}
	if !strings.Contains(notes[0].Text, "into") {
		t.Errorf("Text = %q, want it to contain the merge joiner", notes[0].Text)
	}
	if !strings.Contains(notes[0].Key, "|") {
		t.Errorf("Key = %q, want a pipe-joined merged key", notes[0].Key)
	}
}

func TestGenerateJunctionFeature(t *testing.T) {
	g := newTestGenerator()
	f := pathproj.FeatureAhead{
		Kind: pathproj.FeatureJunction, Distance: 150, NodeID: 42,
		Payload: pathproj.JunctionPayload{NodeID: 42, TurnDirection: "left"},
	}
	notes := g.Generate(nil, []pathproj.FeatureAhead{f})
	if len(notes) != 1 {
		t.Fatalf("expected 1 junction note, got %d", len(notes))
	}
	if notes[0].Key != "42" {
		t.Errorf("Key = %q, want the node id", notes[0].Key)
	}
	if !strings.Contains(notes[0].Text, "junction left") {
		t.Errorf("Text = %q, want it to mention junction left", notes[0].Text)
	}
}

func TestJunctionStraightOnSuppressed(t *testing.T) {
	g := newTestGenerator()
	f := pathproj.FeatureAhead{
		Kind: pathproj.FeatureJunction, Distance: 150, NodeID: 42,
		Payload: pathproj.JunctionPayload{NodeID: 42, TurnDirection: "straight"},
	}
	notes := g.Generate(nil, []pathproj.FeatureAhead{f})
	if len(notes) != 0 {
		t.Errorf("expected no note for a straight-on junction, got %+v", notes)
	}
}

func TestShouldCallMaxDistanceGate(t *testing.T) {
	g := newTestGenerator()
	note := Pacenote{Text: "left three", Distance: 1100, Type: NoteCorner, Key: "k1"}
	ok, _ := g.ShouldCall(note, 10)
	if ok {
		t.Error("expected a corner note beyond 1025m to be suppressed")
	}
}

func TestShouldCallMinDistanceGate(t *testing.T) {
	g := newTestGenerator()
	note := Pacenote{Text: "left three", Distance: 10, Type: NoteCorner, Key: "k1"}
	ok, _ := g.ShouldCall(note, 10)
	if ok {
		t.Error("expected a corner note closer than 20m to be suppressed")
	}
}

func TestShouldCallKeyGatePreventsRepeat(t *testing.T) {
	g := newTestGenerator()
	note := Pacenote{Text: "left three", Distance: 100, Type: NoteCorner, Key: "k1"}
	ok1, _ := g.ShouldCall(note, 10)
	if !ok1 {
		t.Fatal("expected first call to succeed")
	}
	ok2, _ := g.ShouldCall(note, 10)
	if ok2 {
		t.Error("expected the same key to be suppressed on a second call")
	}
}

func TestShouldCallSpeedScalesMaxDistance(t *testing.T) {
	g := newTestGenerator()
	// A hazard note (max 525m) at 700m should be allowed once speed exceeds
	// the threshold and the timing-based distance exceeds 700m.
	note := Pacenote{Text: "water", Distance: 700, Type: NoteFord, Key: "ford_1_500"}
	ok, _ := g.ShouldCall(note, 150) // 150 m/s * 5s = 750m > 700
	if !ok {
		t.Error("expected speed scaling to extend the max distance enough to allow this call")
	}
}

func TestShouldCallMergedNoteSplitsOnPartialRepeat(t *testing.T) {
	g := newTestGenerator()
	merged := Pacenote{
		Text:     "one hundred left three into right four",
		Distance: 100,
		Type:     NoteCorner,
		Key:      "k1|k2",
	}
	// Mark k1 already called.
	g.memory.add("k1")

	ok, result := g.ShouldCall(merged, 10)
	if !ok {
		t.Fatal("expected the still-uncalled component to be spoken")
	}
	if result == nil {
		t.Fatal("expected a non-nil filtered result")
	}
	if strings.Contains(result.Text, "left three") {
		t.Errorf("Text = %q, want the already-called component stripped", result.Text)
	}
	if !strings.Contains(result.Text, "right four") {
		t.Errorf("Text = %q, want the uncalled component retained", result.Text)
	}
	if result.Key != "k2" {
		t.Errorf("Key = %q, want just the uncalled component key", result.Key)
	}
}

func TestShouldCallMergedNoteFullySuppressedWhenAllCalled(t *testing.T) {
	g := newTestGenerator()
	merged := Pacenote{Text: "one hundred left three into right four", Distance: 100, Type: NoteCorner, Key: "k1|k2"}
	g.memory.add("k1")
	g.memory.add("k2")

	ok, _ := g.ShouldCall(merged, 10)
	if ok {
		t.Error("expected a fully-called merged note to be suppressed entirely")
	}
}

func TestCalloutMemoryClearsAtBound(t *testing.T) {
	mem := NewCalloutMemory(2)
	mem.add("a")
	mem.add("b")
	mem.add("c") // exceeds bound, clears
	if mem.has("a") {
		t.Error("expected memory to have cleared once the bound was exceeded")
	}
}

func TestGenerateBridgeFeatureAlwaysPresent(t *testing.T) {
	g := newTestGenerator()
	f := pathproj.FeatureAhead{Kind: pathproj.FeatureBridge, Distance: 50, WayID: 9}
	notes := g.Generate(nil, []pathproj.FeatureAhead{f})
	if len(notes) != 1 {
		t.Fatalf("expected 1 bridge note, got %d", len(notes))
	}
	if notes[0].Key != "bridge_9" {
		t.Errorf("Key = %q, want bridge_9", notes[0].Key)
	}
}
