package domain

import "fmt"

// ErrorKind classifies a failure reported by the speech recognizer.
type ErrorKind string

const (
	ErrorAudio                   ErrorKind = "audio"
	ErrorClient                  ErrorKind = "client"
	ErrorInsufficientPermissions ErrorKind = "insufficient_permissions"
	ErrorNetwork                 ErrorKind = "network"
	ErrorNetworkTimeout          ErrorKind = "network_timeout"
	ErrorNoMatch                 ErrorKind = "no_match"
	ErrorRecognizerBusy          ErrorKind = "recognizer_busy"
	ErrorServer                  ErrorKind = "server"
	ErrorSpeechTimeout           ErrorKind = "speech_timeout"
	ErrorUnknown                 ErrorKind = "unknown"
)

type EventType string

const (
	EventReadyForSpeech EventType = "ready_for_speech"
	EventAudioLevel     EventType = "audio_level"
	EventEndOfSpeech    EventType = "end_of_speech"
	EventFinalResult    EventType = "final_result"
	EventError          EventType = "error"
)

// RecognizerEvent is a lifecycle signal delivered by a recognizer handle.
// Level is set for EventAudioLevel, Text for EventFinalResult and Kind for EventError.
type RecognizerEvent struct {
	Type  EventType
	Level float64
	Text  string
	Kind  ErrorKind
}

func ReadyForSpeech() RecognizerEvent { return RecognizerEvent{Type: EventReadyForSpeech} }

func AudioLevel(rms float64) RecognizerEvent {
	return RecognizerEvent{Type: EventAudioLevel, Level: rms}
}

func EndOfSpeech() RecognizerEvent { return RecognizerEvent{Type: EventEndOfSpeech} }

func FinalResult(text string) RecognizerEvent {
	return RecognizerEvent{Type: EventFinalResult, Text: text}
}

func RecognizerError(kind ErrorKind) RecognizerEvent {
	return RecognizerEvent{Type: EventError, Kind: kind}
}

func (e RecognizerEvent) String() string {
	switch e.Type {
	case EventError:
		return fmt.Sprintf("error(%s)", e.Kind)
	case EventFinalResult:
		return fmt.Sprintf("final_result(%q)", e.Text)
	case EventAudioLevel:
		return fmt.Sprintf("audio_level(%.1f)", e.Level)
	default:
		return string(e.Type)
	}
}

// ScaleAudioLevel maps a recognizer RMS value in dB to a 0-100 meter reading.
func ScaleAudioLevel(rms float64) int {
	v := int(rms * 10)
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
