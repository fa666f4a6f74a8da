package audio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileSource treats every new audio file dropped into dir as one utterance.
// Processed files are renamed with a .processed suffix.
type FileSource struct {
	dir       string
	poll      time.Duration
	processed map[string]bool
	mu        sync.Mutex
}

func NewFileSource(dir string) *FileSource {
	return &FileSource{
		dir:       dir,
		poll:      500 * time.Millisecond,
		processed: make(map[string]bool),
	}
}

func (f *FileSource) Name() string {
	return "file"
}

func (f *FileSource) Start(_ context.Context) error {
	if err := os.MkdirAll(f.dir, 0755); err != nil {
		return fmt.Errorf("creating audio dir: %w", err)
	}
	return nil
}

func (f *FileSource) Stop() error {
	return nil
}

// Capture waits for the next file. Levels are reported for WAV input only.
func (f *FileSource) Capture(ctx context.Context, onLevel func(rms float64)) ([]byte, error) {
	ticker := time.NewTicker(f.poll)
	defer ticker.Stop()

	for {
		audio, err := f.checkForNewFile()
		if err != nil {
			return nil, err
		}
		if audio != nil {
			reportLevels(audio, onLevel)
			return audio, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func reportLevels(wav []byte, onLevel func(float64)) {
	if onLevel == nil {
		return
	}
	samples := decodePCM(wav)
	for len(samples) > 0 {
		n := min(len(samples), 1024)
		onLevel(Level(samples[:n]))
		samples = samples[n:]
	}
}

func (f *FileSource) checkForNewFile() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("reading dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		ext := filepath.Ext(entry.Name())
		if ext != ".wav" && ext != ".mp3" && ext != ".m4a" && ext != ".webm" {
			continue
		}

		path := filepath.Join(f.dir, entry.Name())
		if f.processed[path] {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading file %s: %w", path, err)
		}

		f.processed[path] = true
		os.Rename(path, path+".processed")

		return data, nil
	}

	return nil, nil
}
