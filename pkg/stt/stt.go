// Package stt turns 16 kHz mono PCM into text.
package stt

import (
	"context"
	"errors"
	"time"
)

var ErrNoAudio = errors.New("no audio samples provided")

// Transcriber is implemented by the local whisper.cpp engine and the OpenAI
// transcription API. pcm16k must be mono at 16 kHz, float32 in [-1, 1].
type Transcriber interface {
	TranscribePCM(ctx context.Context, pcm16k []float32, opt Options) (Result, error)
}

type Options struct {
	Language        string        // e.g. "auto", "en", "ru"
	TranslateToEn   bool          // if true, translate non-EN -> EN
	Threads         int           // <=0 => NumCPU()
	InitialPrompt   string        // optional system/prefix prompt
	TokenTimestamps bool          // include per-token timestamps
	MaxTokens       uint          // 0 = no limit
	MaxSegmentChars uint          // 0 = default
	BeamSize        int           // 0 = default (greedy); >0 enables beam search
	AudioCtx        uint          // encoder audio ctx size; 0 = default
	SplitOnWord     bool          // split on word boundaries
	EntropyThold    float32       // 0 = default
	TokenSumThold   float32       // 0 = default
	Temperature     float32       // 0 = default
	TemperatureStep float32       // 0 = default
	Offset          time.Duration // start offset (optional)
	Duration        time.Duration // max duration (optional)
}

type Segment struct {
	Text     string
	StartSec float64
	EndSec   float64
}

type Result struct {
	Text     string
	Segments []Segment
	Language string // detected or forced
}
