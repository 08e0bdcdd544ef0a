package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	log "log/slog"
	"sync"
	"time"

	"voxpro/internal/models"
)

// Kind tags every frame on the interaction feed.
type Kind string

const (
	KindHello       Kind = "hello"
	KindInteraction Kind = "interaction"
	KindPing        Kind = "ping"
	KindPong        Kind = "pong"
)

type Event struct {
	Kind        Kind                `json:"kind"`
	Client      string              `json:"client,omitempty"`
	Interaction *models.Interaction `json:"interaction,omitempty"`
}

func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

func Parse(frame []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(frame, &e); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}

	switch e.Kind {
	case KindHello, KindPing, KindPong:
	case KindInteraction:
		if e.Interaction == nil {
			return Event{}, errors.New("interaction event without payload")
		}
	case "":
		return Event{}, errors.New("event without kind")
	default:
		return Event{}, fmt.Errorf("unknown event kind %q", e.Kind)
	}

	return e, nil
}

type FeedConfig struct {
	URL    string
	Reconn time.Duration
	// Emit receives every event except pongs. It runs on the read loop.
	Emit func(Event)
}

// Feed follows a daemon's interaction stream and reconnects when the
// connection drops.
type Feed struct {
	ws   *WebSocket
	emit func(Event)

	waiterMu sync.Mutex
	waiter   chan Event
}

func NewFeed(ctx context.Context, cfg FeedConfig) (*Feed, error) {
	ws, err := NewWebSocket(ctx, cfg.URL, cfg.Reconn)
	if err != nil {
		return nil, err
	}

	return &Feed{ws: ws, emit: cfg.Emit}, nil
}

// Ping sends a ping and waits for the matching pong. Run must be active.
func (f *Feed) Ping(ctx context.Context) error {
	w := f.installWaiter()
	defer f.clearWaiter()

	if err := f.transmit(Event{Kind: KindPing}); err != nil {
		return err
	}

	select {
	case <-w:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *Feed) transmit(e Event) error {
	payload, err := e.Encode()
	if err != nil {
		return err
	}
	if err := f.ws.Write(payload); err != nil {
		log.Error("Failed to transmit", "kind", e.Kind, "err", err)
		return err
	}
	return nil
}

// Run reads until ctx is done.
func (f *Feed) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { f.ws.Close() })
	defer stop()

	for {
		in := f.ws.Read()
		if ctx.Err() != nil {
			return nil
		}

		switch in.kind {
		case ConnClose, ReadFailure:
			log.Warn("Feed connection lost, reconnecting", "url", f.ws.url, "err", in.err)
			if err := f.ws.TryReconn(ctx); err != nil {
				return nil
			}
			log.Info("Reconnected to feed", "url", f.ws.url)

		case ReadOK:
			e, err := Parse(in.msg)
			if err != nil {
				log.Warn("Failed to parse event", "err", err)
				continue
			}

			if e.Kind == KindPong {
				if w := f.currentWaiter(); w != nil {
					select {
					case w <- e:
					default:
					}
				}
				continue
			}

			if f.emit != nil {
				f.emit(e)
			}
		}
	}
}

func (f *Feed) Close() error {
	return f.ws.Close()
}

func (f *Feed) installWaiter() chan Event {
	f.waiterMu.Lock()
	defer f.waiterMu.Unlock()
	f.waiter = make(chan Event, 1)
	return f.waiter
}

func (f *Feed) clearWaiter() {
	f.waiterMu.Lock()
	defer f.waiterMu.Unlock()
	f.waiter = nil
}

func (f *Feed) currentWaiter() chan Event {
	f.waiterMu.Lock()
	defer f.waiterMu.Unlock()
	return f.waiter
}
