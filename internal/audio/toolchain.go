package audio

import (
	"os/exec"
	"runtime"
)

// toolchain records which external audio executables were found on PATH at
// startup, so the render pipeline never has to re-probe per callout.
type toolchain struct {
	concat string // sox: sample concatenation and the filter chain
	synth  string // say (darwin) or espeak-ng/espeak (elsewhere)
	play   string // afplay (darwin) or aplay (elsewhere)
	darwin bool
}

func detectToolchain() toolchain {
	t := toolchain{darwin: runtime.GOOS == "darwin"}

	if _, err := exec.LookPath("sox"); err == nil {
		t.concat = "sox"
	}

	if t.darwin {
		if _, err := exec.LookPath("say"); err == nil {
			t.synth = "say"
		}
		if _, err := exec.LookPath("afplay"); err == nil {
			t.play = "afplay"
		}
	}

	if t.synth == "" {
		if _, err := exec.LookPath("espeak-ng"); err == nil {
			t.synth = "espeak-ng"
		} else if _, err := exec.LookPath("espeak"); err == nil {
			t.synth = "espeak"
		}
	}

	if t.play == "" {
		if _, err := exec.LookPath("aplay"); err == nil {
			t.play = "aplay"
		}
	}

	return t
}
