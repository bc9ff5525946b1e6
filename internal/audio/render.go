package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// renderer owns everything needed to turn a chained utterance into a
// playable WAV file: the sample library, the detected toolchain, a scratch
// directory, and the command builder used to invoke external tools.
type renderer struct {
	builder CommandBuilder
	library *SampleLibrary
	tools   toolchain
	tempDir string

	voice          string
	speechWPM      int
	effectsEnabled bool
}

// expandChain splits any pre-merged " into " text apart, so a chain that
// already contains merged pacenote text is treated the same as several
// distinct items arriving back to back.
func expandChain(items []string) []string {
	var expanded []string
	for _, item := range items {
		if strings.Contains(item, " into ") {
			expanded = append(expanded, strings.Split(item, " into ")...)
		} else {
			expanded = append(expanded, item)
		}
	}
	return expanded
}

// render produces a playable WAV file for the chain, trying the sample
// library first and falling back to synthesised speech. It returns the
// path to play, or "" if every strategy failed.
func (r *renderer) render(chain []string) string {
	expanded := expandChain(chain)

	if r.library != nil && r.tools.concat != "" {
		if path, ok := r.renderSamples(expanded); ok {
			return path
		}
	}

	combined := strings.Join(expanded, " into ")
	return r.renderSpeech(combined)
}

// renderSamples parses each sub-text into sample keys, resolves every key
// to a WAV, splices "detail_into" between chained sub-texts, and
// concatenates. Any missing key or folder aborts the whole attempt so the
// caller can fall back to speech.
func (r *renderer) renderSamples(subtexts []string) (string, bool) {
	var wavs []string

	for i, text := range subtexts {
		if i > 0 {
			if into, ok := r.library.Pick("detail_into"); ok {
				wavs = append(wavs, into)
			}
		}

		keys := SampleKeys(text)
		if len(keys) == 0 {
			return "", false
		}
		resolved, ok := r.library.resolveKeys(keys)
		if !ok {
			return "", false
		}
		wavs = append(wavs, resolved...)
	}

	if len(wavs) == 0 {
		return "", false
	}

	out := filepath.Join(r.tempDir, "chain.wav")
	args := append(append([]string{}, wavs...), out)
	if _, err := r.builder.BuildCommand(r.tools.concat, args...).Run(); err != nil {
		return "", false
	}
	return out, true
}

// renderSpeech synthesises the combined text, then optionally applies the
// intercom shaping filter chain.
func (r *renderer) renderSpeech(text string) string {
	if r.tools.synth == "" {
		return ""
	}

	raw := filepath.Join(r.tempDir, "raw.wav")
	if !r.synthesize(text, raw) {
		return ""
	}

	if !r.effectsEnabled || r.tools.concat == "" {
		return raw
	}

	processed := filepath.Join(r.tempDir, "processed.wav")
	if !r.applyEffects(raw, processed) {
		return raw
	}
	return processed
}

func (r *renderer) synthesize(text, outPath string) bool {
	switch r.tools.synth {
	case "say":
		aiff := strings.TrimSuffix(outPath, ".wav") + ".aiff"
		if _, err := r.builder.BuildCommand("say", "-v", r.voice, "-r", fmt.Sprintf("%d", r.speechWPM), "-o", aiff, text).Run(); err != nil {
			return false
		}
		if r.tools.concat == "" {
			return false
		}
		_, err := r.builder.BuildCommand(r.tools.concat, aiff, outPath).Run()
		return err == nil
	case "espeak-ng", "espeak":
		_, err := r.builder.BuildCommand(r.tools.synth, "-v", "en-gb", "-s", fmt.Sprintf("%d", r.speechWPM), "-w", outPath, text).Run()
		return err == nil
	default:
		return false
	}
}

// applyEffects runs the §4.7 shaping filter chain (high-pass ~400Hz,
// low-pass ~3200Hz, compression, overdrive, -5dB gain) to emulate an
// intercom.
func (r *renderer) applyEffects(inPath, outPath string) bool {
	_, err := r.builder.BuildCommand(
		r.tools.concat, inPath, outPath,
		"highpass", "400",
		"lowpass", "3200",
		"compand", "0.1,0.3", "-70,-60,-20", "-8", "-90", "0.1",
		"overdrive", "3",
		"gain", "-5",
	).Run()
	return err == nil
}

// play invokes the platform playback tool on path. A missing playback tool
// or a failing invocation is swallowed: the callout is lost, not the loop.
func (r *renderer) play(path string) {
	if path == "" || r.tools.play == "" {
		return
	}
	if r.tools.darwin {
		r.builder.BuildCommand(r.tools.play, path).Run()
		return
	}
	r.builder.BuildCommand(r.tools.play, "-q", path).Run()
}

func mkTempDir() (string, error) {
	return os.MkdirTemp("", "copilot-audio-")
}
