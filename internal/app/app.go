package app

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"net/http"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"voxpro/internal/assistant"
	"voxpro/internal/audio"
	"voxpro/internal/capture"
	"voxpro/internal/config"
	"voxpro/internal/handlers"
	"voxpro/internal/history"
	"voxpro/internal/nlu"
	"voxpro/internal/notify"
	"voxpro/internal/proxy"
	"voxpro/internal/tts"
	"voxpro/pkg/stt"
)

type Options struct {
	Config *config.Config
	// Proxy is a SOCKS5 address for every outbound call. Empty means direct.
	Proxy string
	// Microphone opens the default input device for voice requests.
	Microphone bool
	// Transcriber loads speech recognition even without a microphone.
	Transcriber bool
	// Sound replaces the listening tone with an mp3.
	Sound string
}

// App is everything a front end needs, built once from configuration.
type App struct {
	Assistant   *assistant.Assistant
	History     *history.Recorder
	Transcriber stt.Transcriber
	HTTPClient  *http.Client
	Config      *config.Config

	closers []func() error
}

func Build(ctx context.Context, opt Options) (*App, error) {
	cfg := opt.Config
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}

	a := &App{Config: cfg}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	hc, err := proxy.NewClient(opt.Proxy, proxy.DefaultTimeout)
	if err != nil {
		return nil, fmt.Errorf("socks proxy %s: %w", opt.Proxy, err)
	}
	a.HTTPClient = hc
	log.Debug("Loaded http client", "proxy", opt.Proxy)

	var oa *openai.Client
	if oacfg, present := cfg.OpenAI.Get(); present {
		opts := []option.RequestOption{
			option.WithAPIKey(oacfg.APIKey),
			option.WithHTTPClient(hc),
		}
		if cfg.Endpoints.OpenAI != "" {
			opts = append(opts, option.WithBaseURL(cfg.Endpoints.OpenAI))
		}
		client := openai.NewClient(opts...)
		oa = &client
	}

	speaker, err := newSpeaker(cfg, oa)
	if err != nil {
		return nil, err
	}

	store := history.Open(ctx, cfg, hc)
	a.History = history.NewRecorder(store)
	a.closers = append(a.closers, a.History.Close)

	acfg := assistant.Config{
		Registry: handlers.NewRegistry(cfg, hc, time.Now),
		Speaker:  speaker,
		History:  a.History,
	}

	if cfg.LLMFallback {
		if oa == nil {
			log.Warn("llm_fallback needs OPENAI_API_KEY, keyword routing only")
		} else {
			acfg.Classifier = nlu.NewClassifier(*oa, "")
		}
	}

	if opt.Microphone || opt.Transcriber {
		tr, err := a.newTranscriber(cfg, oa)
		if err != nil {
			return nil, err
		}
		a.Transcriber = tr
	}

	if opt.Microphone {
		mic, err := a.newMicrophone(cfg, opt.Sound)
		if err != nil {
			return nil, err
		}
		acfg.Microphone = mic
	}

	a.Assistant = assistant.New(acfg)
	ok = true
	return a, nil
}

func newSpeaker(cfg *config.Config, oa *openai.Client) (tts.Speaker, error) {
	topt := tts.Options{Backend: cfg.Speech, Language: cfg.Language}
	if oa != nil {
		topt.OpenAI = &tts.OpenAIConfig{Client: *oa}
	}

	speaker, err := tts.New(topt)
	if err != nil {
		return nil, fmt.Errorf("speech: %w", err)
	}
	log.Debug("Loaded speech output", "backend", cfg.Speech)
	return speaker, nil
}

func (a *App) newTranscriber(cfg *config.Config, oa *openai.Client) (stt.Transcriber, error) {
	switch strings.ToLower(cfg.STT) {
	case "openai":
		if oa == nil {
			return nil, errors.New("openai transcription needs OPENAI_API_KEY")
		}
		log.Debug("Loaded openai transcription")
		return stt.NewOpenAI(*oa, ""), nil

	case "", "whisper":
		w, err := stt.NewWhisper(cfg.WhisperModel)
		if err != nil {
			return nil, fmt.Errorf("whisper model %s: %w", cfg.WhisperModel, err)
		}
		a.closers = append(a.closers, w.Close)
		log.Debug("Loaded whisper", "model", cfg.WhisperModel)
		return w, nil

	default:
		return nil, fmt.Errorf("unknown stt backend %q", cfg.STT)
	}
}

func (a *App) newMicrophone(cfg *config.Config, sound string) (*capture.Microphone, error) {
	rec := audio.NewRecorder(audio.DefaultRecorderConfig())
	if err := rec.Init(); err != nil {
		return nil, fmt.Errorf("init audio: %w", err)
	}
	a.closers = append(a.closers, func() error {
		rec.Close()
		return nil
	})
	log.Debug("Loaded recorder")

	mcfg := capture.MicrophoneConfig{
		Recorder:    rec,
		Notifier:    notify.Notifier{Sound: sound, Desktop: true},
		Transcriber: a.Transcriber,
		Options:     stt.Options{Language: cfg.Language},
	}
	if cfg.Duck {
		if audio.Available() {
			mcfg.Ducker = audio.NewDucker(audio.DefaultDuckerConfig())
		} else {
			log.Warn("pactl not found, other streams will not be ducked")
		}
	}

	return capture.NewMicrophone(mcfg), nil
}

// FileTranscriber transcribes recordings on disk. Build with Transcriber set.
func (a *App) FileTranscriber() (*capture.File, error) {
	if a.Transcriber == nil {
		return nil, errors.New("speech recognition not loaded")
	}
	return &capture.File{
		Transcriber: a.Transcriber,
		Options:     stt.Options{Language: a.Config.Language},
		MaxDuration: 10 * time.Minute,
	}, nil
}

// Close releases resources in reverse order of acquisition and drains
// pending history writes.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
