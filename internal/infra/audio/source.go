package audio

import (
	"bytes"
	"encoding/binary"
	"math"
	"time"
)

type MicrophoneConfig struct {
	SampleRate int

	// SilenceThreshold is the absolute sample value below which a frame counts as silent.
	SilenceThreshold int16

	// CompleteSilence ends an utterance once speech has been heard.
	CompleteSilence time.Duration

	// NoSpeechTimeout ends the capture with no audio when nobody speaks.
	NoSpeechTimeout time.Duration

	MaxUtterance time.Duration
}

func DefaultMicrophoneConfig() MicrophoneConfig {
	return MicrophoneConfig{
		SampleRate:       16000,
		SilenceThreshold: 500,
		CompleteSilence:  1500 * time.Millisecond,
		NoSpeechTimeout:  5 * time.Second,
		MaxUtterance:     10 * time.Second,
	}
}

// Level converts a frame of 16-bit samples to a loudness value on the scale
// speech recognizers report RMS in (roughly -2 to 10 dB above the noise floor).
func Level(samples []int16) float64 {
	if len(samples) == 0 {
		return -2
	}
	var sum float64
	for _, s := range samples {
		f := float64(s)
		sum += f * f
	}
	rms := math.Sqrt(sum / float64(len(samples)))
	if rms < 1 {
		return -2
	}
	dbfs := 20 * math.Log10(rms/math.MaxInt16)
	level := (dbfs + 60) / 6
	return math.Max(-2, math.Min(level, 10))
}

func isSilent(frame []int16, threshold int16) bool {
	for _, s := range frame {
		if s > threshold || s < -threshold {
			return false
		}
	}
	return true
}

// EncodeWAV wraps mono 16-bit PCM samples in a WAV container.
func EncodeWAV(samples []int16, sampleRate int) []byte {
	var buf bytes.Buffer

	dataSize := len(samples) * 2
	fileSize := 36 + dataSize

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, int32(fileSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, int32(16))
	binary.Write(&buf, binary.LittleEndian, int16(1))
	binary.Write(&buf, binary.LittleEndian, int16(1))
	binary.Write(&buf, binary.LittleEndian, int32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, int32(sampleRate*2))
	binary.Write(&buf, binary.LittleEndian, int16(2))
	binary.Write(&buf, binary.LittleEndian, int16(16))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, int32(dataSize))
	binary.Write(&buf, binary.LittleEndian, samples)

	return buf.Bytes()
}

// decodePCM returns the samples of a canonical 44-byte-header WAV file, or nil.
func decodePCM(wav []byte) []int16 {
	if len(wav) < 44 || string(wav[:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return nil
	}
	data := wav[44:]
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[2*i:]))
	}
	return samples
}
