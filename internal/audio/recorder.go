package audio

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
)

// ErrNoSpeech means the microphone produced nothing above the silence
// threshold.
var ErrNoSpeech = errors.New("no speech detected")

type RecorderConfig struct {
	SampleRate   int
	FrameSize    int
	SilenceRMS   float64       // frames below this RMS count as silence
	SilenceAfter time.Duration // stop after this much trailing silence
	StartTimeout time.Duration // give up if nobody speaks
	MaxLength    time.Duration
}

func DefaultRecorderConfig() RecorderConfig {
	return RecorderConfig{
		SampleRate:   16000,
		FrameSize:    320, // 20ms
		SilenceRMS:   0.015,
		SilenceAfter: 600 * time.Millisecond,
		StartTimeout: 5 * time.Second,
		MaxLength:    10 * time.Second,
	}
}

// Recorder captures mono float32 PCM from the default input device.
type Recorder struct {
	cfg RecorderConfig
	mu  sync.Mutex
}

func NewRecorder(cfg RecorderConfig) *Recorder {
	def := DefaultRecorderConfig()
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = def.SampleRate
	}
	if cfg.FrameSize <= 0 {
		cfg.FrameSize = def.FrameSize
	}
	if cfg.SilenceRMS <= 0 {
		cfg.SilenceRMS = def.SilenceRMS
	}
	if cfg.SilenceAfter <= 0 {
		cfg.SilenceAfter = def.SilenceAfter
	}
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = def.MaxLength
	}
	return &Recorder{cfg: cfg}
}

func (r *Recorder) Init() error {
	return portaudio.Initialize()
}

func (r *Recorder) Close() {
	portaudio.Terminate()
}

func (r *Recorder) SampleRate() int {
	return r.cfg.SampleRate
}

// RecordAuto records one utterance and stops on trailing silence, on
// StartTimeout without speech, on MaxLength or when ctx is done.
func (r *Recorder) RecordAuto(ctx context.Context) ([]float32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	buf := make([]float32, r.cfg.FrameSize)

	stream, err := portaudio.OpenDefaultStream(1, 0, float64(r.cfg.SampleRate), len(buf), buf)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return nil, err
	}
	defer stream.Stop()

	det := newDetector(r.cfg)
	maxFrames := r.cfg.frames(r.cfg.MaxLength)

	for i := 0; i < maxFrames; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := stream.Read(); err != nil {
			return nil, err
		}
		if det.push(buf) {
			break
		}
	}

	return det.result()
}

// RecordUntil records until stop fires, maxDur passes or ctx is done.
func (r *Recorder) RecordUntil(ctx context.Context, stop <-chan struct{}, maxDur time.Duration) ([]float32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if maxDur <= 0 {
		maxDur = 15 * time.Second
	}

	buf := make([]float32, 1024)

	stream, err := portaudio.OpenDefaultStream(1, 0, float64(r.cfg.SampleRate), len(buf), buf)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return nil, err
	}
	defer stream.Stop()

	deadline := time.Now().Add(maxDur)
	out := make([]float32, 0, int(float64(r.cfg.SampleRate)*maxDur.Seconds()))

	for time.Now().Before(deadline) {
		select {
		case <-stop:
			return out, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if err := stream.Read(); err != nil {
			return nil, err
		}
		out = append(out, buf...)
	}

	if len(out) == 0 {
		return nil, ErrNoSpeech
	}
	return out, nil
}

func (c RecorderConfig) frames(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	n := int(d.Seconds() * float64(c.SampleRate) / float64(c.FrameSize))
	return max(n, 1)
}

// detector is a frame-energy voice activity detector.
type detector struct {
	threshold  float64
	maxSilence int
	maxWait    int

	speaking bool
	silence  int
	waited   int
	out      []float32
}

func newDetector(cfg RecorderConfig) *detector {
	return &detector{
		threshold:  cfg.SilenceRMS,
		maxSilence: cfg.frames(cfg.SilenceAfter),
		maxWait:    cfg.frames(cfg.StartTimeout),
		out:        make([]float32, 0, cfg.SampleRate*3),
	}
}

// push consumes one frame and reports whether recording should stop.
func (d *detector) push(frame []float32) bool {
	if frameRMS(frame) > d.threshold {
		d.speaking = true
		d.silence = 0
		d.out = append(d.out, frame...)
		return false
	}

	if !d.speaking {
		d.waited++
		return d.maxWait > 0 && d.waited >= d.maxWait
	}

	d.silence++
	d.out = append(d.out, frame...)
	return d.silence >= d.maxSilence
}

func (d *detector) result() ([]float32, error) {
	if !d.speaking || len(d.out) == 0 {
		return nil, ErrNoSpeech
	}
	return d.out, nil
}

func frameRMS(f []float32) float64 {
	if len(f) == 0 {
		return 0
	}
	var s float64
	for _, x := range f {
		s += float64(x * x)
	}
	return math.Sqrt(s / float64(len(f)))
}
