package assistant

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"sync"
	"time"

	"voxpro/internal/history"
	"voxpro/internal/models"
	"voxpro/internal/nlu"
	"voxpro/internal/tts"
)

var (
	ErrNoMicrophone  = errors.New("microphone not configured")
	ErrUnknownAction = errors.New("unknown quick action")
)

type Request struct {
	Text   string
	Source models.Source
	// Mute skips speech output for this request.
	Mute bool
}

type Classifier interface {
	Classify(ctx context.Context, utterance string) (nlu.Intent, error)
}

type Listener interface {
	Listen(ctx context.Context) (string, error)
}

// History is satisfied by *history.Recorder.
type History interface {
	Record(rec models.Record)
	Recent(ctx context.Context, limit int) ([]models.Record, error)
	Enabled() bool
}

type Config struct {
	Registry   nlu.Registry
	Speaker    tts.Speaker // nil disables speech
	History    History     // nil disables history
	Microphone Listener    // nil disables voice input
	Classifier Classifier  // consulted for Unknown utterances when set
	Now        func() time.Time
}

// Assistant runs one request at a time through route, dispatch, speech and
// history, and fans finished interactions out to subscribers.
type Assistant struct {
	cfg    Config
	speaks bool

	mu sync.Mutex

	subsMu  sync.Mutex
	subs    map[int]chan models.Interaction
	nextSub int
}

func New(cfg Config) *Assistant {
	if cfg.Registry == nil {
		cfg.Registry = nlu.Registry{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	_, nop := cfg.Speaker.(tts.Nop)
	speaks := cfg.Speaker != nil && !nop

	return &Assistant{
		cfg:    cfg,
		speaks: speaks,
		subs:   make(map[int]chan models.Interaction),
	}
}

// Process handles one text request.
func (a *Assistant) Process(ctx context.Context, req Request) models.Interaction {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.process(ctx, req)
}

func (a *Assistant) process(ctx context.Context, req Request) models.Interaction {
	intent := nlu.Route(req.Text)
	log.Info("Routed", "command", intent.Command, "arg", intent.Arg, "source", req.Source)

	if intent.Command == nlu.Unknown && intent.Utterance != "" && a.cfg.Classifier != nil {
		intent = a.classify(ctx, intent)
	}

	resp := a.cfg.Registry.Dispatch(ctx, intent)
	return a.complete(ctx, req, intent, resp)
}

func (a *Assistant) classify(ctx context.Context, intent nlu.Intent) nlu.Intent {
	classified, err := a.cfg.Classifier.Classify(ctx, intent.Utterance)
	if err != nil {
		log.Warn("Classifier failed", "err", err)
		return intent
	}
	if classified.Command == nlu.Unknown {
		return intent
	}

	log.Info("Classified", "command", classified.Command, "arg", classified.Arg)
	classified.Utterance = intent.Utterance
	return classified
}

// Listen captures one utterance from the microphone and processes it.
// Recognition failures still produce an answered, recorded interaction.
func (a *Assistant) Listen(ctx context.Context) (models.Interaction, error) {
	if a.cfg.Microphone == nil {
		return models.Interaction{}, ErrNoMicrophone
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	text, err := a.cfg.Microphone.Listen(ctx)
	if err != nil {
		log.Warn("Voice capture failed", "err", err)
		req := Request{Source: models.SourceVoice}
		return a.complete(ctx, req, nlu.Intent{Command: nlu.Unknown}, models.Failure(err)), nil
	}

	return a.process(ctx, Request{Text: text, Source: models.SourceVoice}), nil
}

var quickActions = map[string]nlu.Command{
	"time":    nlu.Time,
	"date":    nlu.Date,
	"weather": nlu.Weather,
	"search":  nlu.Search,
}

// Quick runs a preset command without routing. arg may be empty.
func (a *Assistant) Quick(ctx context.Context, action, arg string) (models.Interaction, error) {
	cmd, ok := quickActions[action]
	if !ok {
		return models.Interaction{}, fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	input := action
	if arg != "" {
		input += " " + arg
	}

	intent := nlu.Intent{Command: cmd, Arg: nlu.Normalize(arg), Utterance: input}
	resp := a.cfg.Registry.Dispatch(ctx, intent)
	return a.complete(ctx, Request{Text: input, Source: models.SourceQuick}, intent, resp), nil
}

// complete speaks, records and publishes a finished interaction. It is the
// only place history is written.
func (a *Assistant) complete(ctx context.Context, req Request, intent nlu.Intent, resp models.Response) models.Interaction {
	now := a.cfg.Now()

	it := models.Interaction{
		Record: models.Record{
			ID:        history.NewID(now),
			Timestamp: now,
			Input:     req.Text,
			Response:  resp.Text,
			Command:   intent.Command.String(),
			Success:   resp.OK,
			Source:    req.Source,
		},
		Arg:  intent.Arg,
		Kind: resp.Kind,
	}

	log.Info("Answer", "command", it.Command, "ok", it.Success, "text", it.Response)

	if a.speaks && !req.Mute {
		if err := a.cfg.Speaker.Speak(ctx, resp.Text); err != nil {
			log.Warn("Failed to speak", "err", err)
		} else {
			it.Spoken = true
		}
	}

	if a.cfg.History != nil {
		a.cfg.History.Record(it.Record)
	}

	a.broadcast(it)
	return it
}

func (a *Assistant) Recent(ctx context.Context, limit int) ([]models.Record, error) {
	if a.cfg.History == nil {
		return nil, nil
	}
	return a.cfg.History.Recent(ctx, limit)
}

// Subscribe returns a channel of finished interactions and a function that
// ends the subscription. Slow subscribers miss interactions.
func (a *Assistant) Subscribe() (<-chan models.Interaction, func()) {
	a.subsMu.Lock()
	defer a.subsMu.Unlock()

	id := a.nextSub
	a.nextSub++
	ch := make(chan models.Interaction, 16)
	a.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			a.subsMu.Lock()
			defer a.subsMu.Unlock()
			delete(a.subs, id)
			close(ch)
		})
	}
}

func (a *Assistant) broadcast(it models.Interaction) {
	a.subsMu.Lock()
	defer a.subsMu.Unlock()

	for id, ch := range a.subs {
		select {
		case ch <- it:
		default:
			log.Warn("Subscriber is lagging, dropping interaction", "subscriber", id)
		}
	}
}

type Status struct {
	Services   map[string]bool `json:"services"`
	History    bool            `json:"history"`
	Speech     bool            `json:"speech"`
	Microphone bool            `json:"microphone"`
	Fallback   bool            `json:"fallback_search"`
}

func (a *Assistant) Status() Status {
	services := make(map[string]bool)
	for _, cmd := range []nlu.Command{nlu.Weather, nlu.Knowledge, nlu.Music, nlu.Search, nlu.Time, nlu.Date, nlu.Greeting} {
		services[cmd.String()] = a.cfg.Registry.Enabled(cmd)
	}

	return Status{
		Services:   services,
		History:    a.cfg.History != nil && a.cfg.History.Enabled(),
		Speech:     a.speaks,
		Microphone: a.cfg.Microphone != nil,
		Fallback:   a.cfg.Registry.Enabled(nlu.Unknown),
	}
}
