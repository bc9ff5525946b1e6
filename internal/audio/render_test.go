package audio

import (
	"os"
	"path/filepath"
	"testing"
)

func makeSampleDir(t *testing.T, folders ...string) string {
	t.Helper()
	root := t.TempDir()
	for _, f := range folders {
		dir := filepath.Join(root, f)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("MkdirAll: %v", err)
		}
		if err := os.WriteFile(filepath.Join(dir, "1.wav"), []byte("RIFF"), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}
	return root
}

func TestRenderSamplesSuccess(t *testing.T) {
	root := makeSampleDir(t, "number_100", "corner_3_left", "detail_into")
	lib := NewSampleLibrary(root)
	mock := NewMockCommandBuilder()
	r := &renderer{builder: mock, library: lib, tools: toolchain{concat: "sox"}, tempDir: t.TempDir()}

	path := r.render([]string{"one hundred left three"})
	if path == "" {
		t.Fatal("expected a rendered path")
	}
	last := mock.LastCommand()
	if last == nil || last.Name != "sox" {
		t.Fatalf("expected a sox command, got %+v", last)
	}
}

func TestRenderSamplesFallsBackWhenKeyUnresolved(t *testing.T) {
	root := makeSampleDir(t, "number_100") // corner_3_left folder missing
	lib := NewSampleLibrary(root)
	mock := NewMockCommandBuilder()
	r := &renderer{builder: mock, library: lib, tools: toolchain{concat: "sox", synth: "espeak-ng"}, tempDir: t.TempDir()}

	path := r.render([]string{"one hundred left three"})
	if path == "" {
		t.Fatal("expected a fallback speech render")
	}
	foundSynth := false
	for _, c := range mock.Commands {
		if c.Name == "espeak-ng" {
			foundSynth = true
		}
	}
	if !foundSynth {
		t.Error("expected a fallback synthesis command")
	}
}

func TestRenderSamplesChainInsertsIntoSample(t *testing.T) {
	root := makeSampleDir(t, "number_100", "corner_3_left", "corner_4_right", "detail_into")
	lib := NewSampleLibrary(root)
	mock := NewMockCommandBuilder()
	r := &renderer{builder: mock, library: lib, tools: toolchain{concat: "sox"}, tempDir: t.TempDir()}

	path := r.render([]string{"one hundred left three", "right four"})
	if path == "" {
		t.Fatal("expected a rendered path")
	}
	last := mock.LastCommand()
	if last == nil {
		t.Fatal("expected a recorded command")
	}
	found := false
	for _, a := range last.Args {
		if filepath.Dir(a) == filepath.Join(root, "detail_into") {
			found = true
		}
	}
	if !found {
		t.Error("expected the into-sample to be spliced between chained sub-texts")
	}
}

func TestExpandChainSplitsPreMergedInto(t *testing.T) {
	got := expandChain([]string{"left three into right four"})
	want := []string{"left three", "right four"}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("expandChain() = %v, want %v", got, want)
	}
}

func TestApplyEffectsChainIncludesShapingFilters(t *testing.T) {
	mock := NewMockCommandBuilder()
	r := &renderer{builder: mock, tools: toolchain{concat: "sox"}}
	if !r.applyEffects("in.wav", "out.wav") {
		t.Fatal("expected applyEffects to succeed")
	}
	last := mock.LastCommand()
	wantArgs := []string{"in.wav", "out.wav", "highpass", "400", "lowpass", "3200"}
	for _, w := range wantArgs {
		found := false
		for _, a := range last.Args {
			if a == w {
				found = true
			}
		}
		if !found {
			t.Errorf("expected applyEffects args to contain %q, got %v", w, last.Args)
		}
	}
}

func TestPlayUsesDashQOnNonDarwin(t *testing.T) {
	mock := NewMockCommandBuilder()
	r := &renderer{builder: mock, tools: toolchain{play: "aplay", darwin: false}}
	r.play("clip.wav")
	last := mock.LastCommand()
	if last == nil || last.Name != "aplay" || len(last.Args) != 2 || last.Args[0] != "-q" {
		t.Errorf("expected aplay -q clip.wav, got %+v", last)
	}
}

func TestPlayOmitsDashQOnDarwin(t *testing.T) {
	mock := NewMockCommandBuilder()
	r := &renderer{builder: mock, tools: toolchain{play: "afplay", darwin: true}}
	r.play("clip.wav")
	last := mock.LastCommand()
	if last == nil || last.Name != "afplay" || len(last.Args) != 1 || last.Args[0] != "clip.wav" {
		t.Errorf("expected afplay clip.wav, got %+v", last)
	}
}

func TestPlayNoopWithoutPlayTool(t *testing.T) {
	mock := NewMockCommandBuilder()
	r := &renderer{builder: mock, tools: toolchain{}}
	r.play("clip.wav")
	if len(mock.Commands) != 0 {
		t.Errorf("expected no command when no playback tool is available, got %+v", mock.Commands)
	}
}
