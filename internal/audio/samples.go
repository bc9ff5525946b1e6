package audio

import (
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// SampleLibrary resolves a sample key to a random WAV file from a
// CrewChief/Janne Laahanen-style pack: one sub-directory per folder name,
// each holding one or more .wav files.
type SampleLibrary struct {
	root string

	mu    sync.RWMutex
	cache map[string][]string // folder name -> wav paths
}

// NewSampleLibrary scans root once, recording which folders carry at least
// one WAV. A missing root is tolerated: the library simply reports no
// samples, and every render falls back to speech.
func NewSampleLibrary(root string) *SampleLibrary {
	lib := &SampleLibrary{root: root, cache: make(map[string][]string)}
	lib.scan()
	return lib
}

func (l *SampleLibrary) scan() {
	if l.root == "" {
		return
	}
	entries, err := os.ReadDir(l.root)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		folder := filepath.Join(l.root, entry.Name())
		wavs, err := filepath.Glob(filepath.Join(folder, "*.wav"))
		if err != nil || len(wavs) == 0 {
			continue
		}
		l.cache[entry.Name()] = wavs
	}
}

// Pick returns a random WAV path from the given folder, or false if the
// folder is absent or empty.
func (l *SampleLibrary) Pick(folder string) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	wavs, ok := l.cache[folder]
	if !ok || len(wavs) == 0 {
		return "", false
	}
	return wavs[rand.Intn(len(wavs))], true
}

// HasFolder reports whether folder was found during the scan.
func (l *SampleLibrary) HasFolder(folder string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.cache[folder]
	return ok
}

// resolveKeys maps each sample key to a WAV file via its folder, stopping
// and reporting failure the moment any key lacks a non-empty folder.
func (l *SampleLibrary) resolveKeys(keys []string) ([]string, bool) {
	var files []string
	for _, key := range keys {
		folder := FolderForKey(key)
		if folder == "" {
			return nil, false
		}
		wav, ok := l.Pick(folder)
		if !ok {
			return nil, false
		}
		files = append(files, wav)
	}
	return files, true
}
