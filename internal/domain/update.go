package domain

type UpdateKind string

const (
	UpdateTranscript UpdateKind = "transcript"
	UpdateProcessing UpdateKind = "processing"
	UpdateError      UpdateKind = "error"
	UpdateListening  UpdateKind = "listening"
	UpdateAudioLevel UpdateKind = "audio_level"
)

// Update is one value on the presentation stream. Only the field matching Kind is meaningful.
type Update struct {
	Kind       UpdateKind `json:"kind"`
	Transcript []Message  `json:"transcript,omitempty"`
	Processing bool       `json:"processing"`
	Error      string     `json:"error,omitempty"`
	Listening  bool       `json:"listening"`
	AudioLevel int        `json:"audio_level,omitempty"`
}
