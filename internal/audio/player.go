package audio

import (
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/copilot/internal/config"
	"github.com/banshee-data/copilot/internal/monitoring"
)

// commandTimeout bounds every sample-concatenation and synthesis
// invocation so a stuck subprocess cannot lock the worker permanently.
const commandTimeout = 3 * time.Second

// Player is the audio worker: it owns a bounded FIFO of pending callout
// texts and a single background goroutine that renders and plays them,
// coalescing anything queued during the previous playback.
type Player struct {
	queue    *Queue
	renderer *renderer
	tempDir  string

	stop chan struct{}
	done chan struct{}
}

// NewPlayer builds a Player from cfg. sampleDir may be empty, in which case
// every callout falls back to synthesised speech.
func NewPlayer(cfg *config.TuningConfig) (*Player, error) {
	tempDir, err := mkTempDir()
	if err != nil {
		return nil, err
	}

	var library *SampleLibrary
	if dir := cfg.GetSampleDir(); dir != "" {
		library = NewSampleLibrary(dir)
	}

	p := &Player{
		queue: NewQueue(cfg.GetAudioQueueDepth()),
		renderer: &renderer{
			builder:        NewRealCommandBuilder(commandTimeout),
			library:        library,
			tools:          detectToolchain(),
			tempDir:        tempDir,
			voice:          cfg.GetVoice(),
			speechWPM:      cfg.GetSpeechWPM(),
			effectsEnabled: cfg.GetEffectsEnabled(),
		},
		tempDir: tempDir,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	return p, nil
}

// Say enqueues text to be spoken. It never blocks; under queue pressure the
// oldest pending callout is dropped.
func (p *Player) Say(text string) {
	p.queue.Push(text)
}

// Start launches the worker goroutine.
func (p *Player) Start() {
	go p.run()
}

// Stop signals the worker to exit after its current render, waits up to
// timeout for it to do so, and removes the scratch directory.
func (p *Player) Stop(timeout time.Duration) {
	close(p.stop)
	select {
	case <-p.done:
	case <-time.After(timeout):
	}
	os.RemoveAll(p.tempDir)
}

func (p *Player) run() {
	defer close(p.done)

	for {
		text, ok := p.nextChain()
		if !ok {
			return
		}

		// Each dispatched chain gets its own id so a render failure or a
		// fallback-to-speech decision can be correlated back to the FIFO
		// push that produced it in the debug logs.
		id := uuid.New()
		monitoring.Logf("audio: dispatching render job %s (%d sub-texts)", id, len(text))

		path := p.renderer.render(text)
		if path == "" {
			monitoring.Logf("audio: render job %s produced no playable output", id)
			continue
		}
		monitoring.Logf("audio: render job %s playing %s", id, path)
		p.renderer.play(path)
	}
}

// nextChain blocks for the next item (while still watching for shutdown),
// then immediately drains anything else already queued so it can be
// chained into the same utterance.
func (p *Player) nextChain() ([]string, bool) {
	text, ok := p.queue.BlockingPop(p.stop)
	if !ok {
		return nil, false
	}
	chain := append([]string{text}, p.queue.DrainNonBlocking()...)
	return chain, true
}
