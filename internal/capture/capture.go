package capture

import (
	"context"
	"errors"
	log "log/slog"
	"regexp"
	"strings"
	"time"

	"voxpro/internal/apperr"
	"voxpro/internal/audio"
	"voxpro/pkg/audioconv"
	"voxpro/pkg/stt"
)

const (
	msgNothingHeard = "Sorry, I didn't hear anything. Please try again."
	msgMicrophone   = "Sorry, the microphone is not available."
)

type Recorder interface {
	RecordAuto(ctx context.Context) ([]float32, error)
}

type Ducker interface {
	Duck(ctx context.Context) error
	Restore(ctx context.Context) error
}

type Notifier interface {
	Listening(ctx context.Context)
}

type MicrophoneConfig struct {
	Recorder    Recorder
	Ducker      Ducker // optional
	Notifier    Notifier
	Transcriber stt.Transcriber
	Options     stt.Options
}

// Microphone records one utterance from the default input and transcribes it.
type Microphone struct {
	cfg MicrophoneConfig
}

func NewMicrophone(cfg MicrophoneConfig) *Microphone {
	return &Microphone{cfg: cfg}
}

// Listen returns the recognised text. Every failure is an *apperr.Error.
func (m *Microphone) Listen(ctx context.Context) (string, error) {
	const op = "capture.listen"

	if m.cfg.Notifier != nil {
		m.cfg.Notifier.Listening(ctx)
	}

	if m.cfg.Ducker != nil {
		if err := m.cfg.Ducker.Duck(ctx); err != nil {
			log.Warn("Failed to duck other streams", "err", err)
		}
		defer func() {
			restoreCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := m.cfg.Ducker.Restore(restoreCtx); err != nil {
				log.Warn("Failed to restore other streams", "err", err)
			}
		}()
	}

	log.Info("Starting listening")

	pcm, err := m.cfg.Recorder.RecordAuto(ctx)
	switch {
	case errors.Is(err, audio.ErrNoSpeech):
		return "", apperr.New(apperr.RecognitionFailure, op, msgNothingHeard, err)
	case err != nil:
		return "", apperr.New(apperr.RecognitionFailure, op, msgMicrophone, err)
	}

	log.Info("Recorded", "samples", len(pcm))

	return transcribe(ctx, op, m.cfg.Transcriber, pcm, m.cfg.Options)
}

// File transcribes recordings from disk.
type File struct {
	Transcriber stt.Transcriber
	Options     stt.Options
	MaxDuration time.Duration
}

func (f *File) Transcribe(ctx context.Context, path string) (string, error) {
	const op = "capture.file"

	opt := audioconv.Options{}
	if f.MaxDuration > 0 {
		opt.MaxSamples = int(f.MaxDuration.Seconds() * audioconv.TargetRate)
	}

	pcm, err := audioconv.DecodeFile(ctx, path, opt)
	if err != nil {
		return "", apperr.New(apperr.RecognitionFailure, op, "Sorry, I couldn't read that audio file.", err)
	}

	return transcribe(ctx, op, f.Transcriber, pcm, f.Options)
}

// whisper marks non-speech as [BLANK_AUDIO], (music), etc.
var nonSpeechRe = regexp.MustCompile(`\[[^\]]*\]|\([^)]*\)`)

func transcribe(ctx context.Context, op string, tr stt.Transcriber, pcm []float32, opt stt.Options) (string, error) {
	if len(pcm) == 0 {
		return "", apperr.New(apperr.RecognitionFailure, op, msgNothingHeard, stt.ErrNoAudio)
	}

	res, err := tr.TranscribePCM(ctx, pcm, opt)
	if err != nil {
		if apperr.KindOf(err) == apperr.UnreachableService {
			return "", apperr.New(apperr.UnreachableService, op, "Sorry, speech recognition is not reachable right now.", err)
		}
		return "", apperr.New(apperr.RecognitionFailure, op, "", err)
	}

	text := strings.Join(strings.Fields(nonSpeechRe.ReplaceAllString(res.Text, " ")), " ")
	if text == "" {
		return "", apperr.New(apperr.RecognitionFailure, op, "", errors.New("empty transcription"))
	}

	log.Info("Transcribed", "text", text, "language", res.Language)
	return text, nil
}
