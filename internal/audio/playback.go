package audio

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"
)

var output struct {
	mu   sync.Mutex
	rate beep.SampleRate
}

// Play blocks until s is drained or ctx is done. The speaker is
// (re)initialised whenever the sample rate changes.
func Play(ctx context.Context, s beep.Streamer, format beep.Format) error {
	output.mu.Lock()
	defer output.mu.Unlock()

	if output.rate != format.SampleRate {
		if err := speaker.Init(format.SampleRate, format.SampleRate.N(time.Second/10)); err != nil {
			return err
		}
		output.rate = format.SampleRate
	}

	done := make(chan struct{})
	speaker.Play(beep.Seq(s, beep.Callback(func() {
		close(done)
	})))

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		speaker.Clear()
		return ctx.Err()
	}
}

// Tone is a sine wave with short linear fades at both ends.
func Tone(rate beep.SampleRate, freq float64, d time.Duration) beep.Streamer {
	total := rate.N(d)
	fade := min(rate.N(10*time.Millisecond), total/2)
	pos := 0

	return beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		if pos >= total {
			return 0, false
		}
		n := 0
		for i := range samples {
			if pos >= total {
				break
			}
			gain := 0.4
			switch {
			case pos < fade:
				gain *= float64(pos) / float64(fade)
			case pos > total-fade:
				gain *= float64(total-pos) / float64(fade)
			}
			v := gain * math.Sin(2*math.Pi*freq*float64(pos)/float64(rate))
			samples[i][0], samples[i][1] = v, v
			pos++
			n++
		}
		return n, true
	})
}
