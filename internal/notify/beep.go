package notify

import (
	"context"
	"fmt"
	log "log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"

	"voxpro/internal/audio"
)

const toneRate = beep.SampleRate(44100)

// Notifier tells the user the assistant started listening.
type Notifier struct {
	// Sound is an mp3 played instead of the built-in tone.
	Sound   string
	Desktop bool
}

func (n Notifier) Listening(ctx context.Context) {
	if n.Desktop {
		if err := Desktop(ctx, "voxpro", "Listening..."); err != nil {
			log.Debug("Desktop notification failed", "err", err)
		}
	}
	if err := Beep(ctx, n.Sound); err != nil {
		log.Warn("Failed to play beep", "err", err)
	}
}

// Beep plays path, or a short 880 Hz tone when path is empty.
func Beep(ctx context.Context, path string) error {
	if path == "" {
		format := beep.Format{SampleRate: toneRate, NumChannels: 2, Precision: 2}
		return audio.Play(ctx, audio.Tone(toneRate, 880, 150*time.Millisecond), format)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open beep: %w", err)
	}

	streamer, format, err := mp3.Decode(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("decode beep: %w", err)
	}
	defer streamer.Close()

	return audio.Play(ctx, streamer, format)
}

// Desktop shows a notification through notify-send.
func Desktop(ctx context.Context, title, body string) error {
	return exec.CommandContext(ctx, "notify-send", "-a", "voxpro", "-t", "2000", title, body).Run()
}
