package audio_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"voice-assist/internal/infra/audio"
)

func TestFileSource_LoadFromDirectory(t *testing.T) {
	tmpDir := t.TempDir()

	testCases := []struct {
		filename string
		content  []byte
	}{
		{"command1.wav", []byte("RIFF....WAVEfmt audio data 1")},
		{"command2.wav", []byte("RIFF....WAVEfmt audio data 2")},
		{"notes.txt", []byte("ignored")},
	}

	for _, tc := range testCases {
		path := filepath.Join(tmpDir, tc.filename)
		if err := os.WriteFile(path, tc.content, 0644); err != nil {
			t.Fatalf("writing test file: %v", err)
		}
	}

	source := audio.NewFileSource(tmpDir)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := source.Start(ctx); err != nil {
		t.Fatalf("starting source: %v", err)
	}

	audio1, err := source.Capture(ctx, nil)
	if err != nil {
		t.Fatalf("reading first utterance: %v", err)
	}

	audio2, err := source.Capture(ctx, nil)
	if err != nil {
		t.Fatalf("reading second utterance: %v", err)
	}

	if len(audio1) == 0 || len(audio2) == 0 || bytes.Equal(audio1, audio2) {
		t.Errorf("expected two distinct utterances, got %q and %q", audio1, audio2)
	}

	if _, err := os.Stat(filepath.Join(tmpDir, "command1.wav.processed")); err != nil {
		t.Errorf("processed file not renamed: %v", err)
	}

	short, cancelShort := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancelShort()
	if _, err := source.Capture(short, nil); err == nil {
		t.Error("expected context error once the directory is drained")
	}
}

func TestFileSource_ReportsLevels(t *testing.T) {
	tmpDir := t.TempDir()

	samples := make([]int16, 2048)
	for i := range samples {
		samples[i] = 8000
	}
	if err := os.WriteFile(filepath.Join(tmpDir, "loud.wav"), audio.EncodeWAV(samples, 16000), 0644); err != nil {
		t.Fatalf("writing test file: %v", err)
	}

	source := audio.NewFileSource(tmpDir)
	var levels []float64
	_, err := source.Capture(context.Background(), func(rms float64) {
		levels = append(levels, rms)
	})
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}

	if len(levels) != 2 {
		t.Fatalf("levels = %v, want 2 frames", levels)
	}
	if levels[0] <= 0 {
		t.Errorf("level = %v, want positive for loud input", levels[0])
	}
}
