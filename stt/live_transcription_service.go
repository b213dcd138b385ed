package stt

import (
	"context"
)

// Alternative is one candidate transcription of an audio segment.
type Alternative struct {
	Transcript string
	Confidence float64
}

// Result is a single element of the recognizer's response stream. A
// result may carry zero alternatives; IsFinal marks results the
// recognizer will not revise.
type Result struct {
	Alternatives []Alternative
	IsFinal      bool
}

// Config is the first element of every recognition request stream.
type Config struct {
	Encoding                   string
	SampleRateHz               int
	LanguageCode               string
	EnableAutomaticPunctuation bool
	InterimResults             bool
}

// LiveSession is one open bidirectional recognition stream. The
// Receive channel closes when the stream ends; Err reports why.
type LiveSession interface {
	SendAudio(data []byte) error
	Receive() <-chan Result
	Err() error
	Stop() error
}

type Recognizer interface {
	Start(ctx context.Context, cfg Config) (LiveSession, error)
}
