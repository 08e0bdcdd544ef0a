package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"
	"sync"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

// Whisper runs a local whisper.cpp model. A model context is not safe for
// concurrent use, so calls are serialised.
type Whisper struct {
	model whisper.Model
	mu    sync.Mutex
}

func NewWhisper(modelPath string) (*Whisper, error) {
	if modelPath == "" {
		return nil, errors.New("empty model path")
	}
	m, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	return &Whisper{model: m}, nil
}

func (t *Whisper) Close() error {
	if t.model == nil {
		return nil
	}
	return t.model.Close()
}

func (t *Whisper) TranscribePCM(ctx context.Context, pcm16k []float32, opt Options) (Result, error) {
	if t.model == nil {
		return Result{}, errors.New("nil model")
	}
	if len(pcm16k) == 0 {
		return Result{}, ErrNoAudio
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	wctx, err := t.model.NewContext()
	if err != nil {
		return Result{}, fmt.Errorf("new context: %w", err)
	}

	if err := applyOptions(wctx, opt); err != nil {
		return Result{}, err
	}

	if err := wctx.Process(pcm16k, nil, nil, nil); err != nil {
		return Result{}, fmt.Errorf("process: %w", err)
	}

	segs, err := collectSegments(ctx, wctx)
	if err != nil {
		return Result{}, err
	}

	texts := make([]string, 0, len(segs))
	for _, seg := range segs {
		if text := strings.TrimSpace(seg.Text); text != "" {
			texts = append(texts, text)
		}
	}

	lang := wctx.DetectedLanguage()
	if lang == "" {
		lang = wctx.Language()
	}

	return Result{
		Text:     strings.Join(texts, " "),
		Segments: segs,
		Language: lang,
	}, nil
}

func collectSegments(ctx context.Context, wctx whisper.Context) ([]Segment, error) {
	var segs []Segment
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		s, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			return segs, nil
		}
		if err != nil {
			return nil, fmt.Errorf("next segment: %w", err)
		}
		segs = append(segs, Segment{
			Text:     s.Text,
			StartSec: s.Start.Seconds(),
			EndSec:   s.End.Seconds(),
		})
	}
}

// applyOptions leaves zero-valued options at the model defaults.
func applyOptions(wctx whisper.Context, opt Options) error {
	lang := opt.Language
	if lang == "" {
		lang = "auto"
	}
	if err := wctx.SetLanguage(lang); err != nil {
		return fmt.Errorf("set language %q: %w", lang, err)
	}
	wctx.SetTranslate(opt.TranslateToEn)

	threads := opt.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	wctx.SetThreads(uint(threads))

	if opt.Offset > 0 {
		wctx.SetOffset(opt.Offset)
	}
	if opt.Duration > 0 {
		wctx.SetDuration(opt.Duration)
	}

	wctx.SetSplitOnWord(opt.SplitOnWord)
	wctx.SetTokenTimestamps(opt.TokenTimestamps)

	if opt.MaxTokens > 0 {
		wctx.SetMaxTokensPerSegment(opt.MaxTokens)
	}
	if opt.MaxSegmentChars > 0 {
		wctx.SetMaxSegmentLength(opt.MaxSegmentChars)
	}
	if opt.AudioCtx > 0 {
		wctx.SetAudioCtx(opt.AudioCtx)
	}
	if opt.BeamSize > 0 {
		wctx.SetBeamSize(opt.BeamSize)
	}

	// sampling thresholds
	if opt.EntropyThold != 0 {
		wctx.SetEntropyThold(opt.EntropyThold)
	}
	if opt.TokenSumThold != 0 {
		wctx.SetTokenSumThreshold(opt.TokenSumThold)
	}
	if opt.Temperature != 0 {
		wctx.SetTemperature(opt.Temperature)
	}
	if opt.TemperatureStep != 0 {
		wctx.SetTemperatureFallback(opt.TemperatureStep)
	}

	if opt.InitialPrompt != "" {
		wctx.SetInitialPrompt(opt.InitialPrompt)
	}
	return nil
}
