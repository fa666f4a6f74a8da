package application

import "context"

// UtteranceSource captures one utterance at a time. Capture reports input
// loudness through onLevel and returns the recorded audio once trailing silence
// ends the utterance. An empty result means nothing was said.
type UtteranceSource interface {
	Start(ctx context.Context) error
	Stop() error
	Capture(ctx context.Context, onLevel func(rms float64)) ([]byte, error)
	Name() string
}
