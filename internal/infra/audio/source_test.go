package audio_test

import (
	"encoding/binary"
	"testing"

	"voice-assist/internal/infra/audio"
)

func TestEncodeWAV(t *testing.T) {
	wav := audio.EncodeWAV([]int16{1, -1, 300}, 16000)

	if len(wav) != 44+6 {
		t.Fatalf("length = %d, want 50", len(wav))
	}
	if string(wav[:4]) != "RIFF" || string(wav[8:12]) != "WAVE" || string(wav[36:40]) != "data" {
		t.Errorf("bad header: %q", wav[:44])
	}
	if rate := binary.LittleEndian.Uint32(wav[24:28]); rate != 16000 {
		t.Errorf("sample rate = %d", rate)
	}
	if size := binary.LittleEndian.Uint32(wav[40:44]); size != 6 {
		t.Errorf("data size = %d, want 6", size)
	}
}

func TestLevel(t *testing.T) {
	if got := audio.Level(make([]int16, 512)); got != -2 {
		t.Errorf("silence level = %v, want -2", got)
	}

	full := make([]int16, 512)
	for i := range full {
		full[i] = 32767
	}
	if got := audio.Level(full); got != 10 {
		t.Errorf("full-scale level = %v, want 10", got)
	}

	quiet := make([]int16, 512)
	loud := make([]int16, 512)
	for i := range quiet {
		quiet[i] = 100
		loud[i] = 5000
	}
	if audio.Level(quiet) >= audio.Level(loud) {
		t.Error("louder input should report a higher level")
	}
}
