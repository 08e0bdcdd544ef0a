package audio

import (
	"context"
	"fmt"
	"math"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

var percentRe = regexp.MustCompile(`(\d+)\s*%`)

const maxVolume = 150

type streamInfo struct {
	ID      int
	Volume  int
	AppName string
}

type fadeTarget struct {
	id   int
	from int
	to   int
}

type DuckerConfig struct {
	SelfNames []string // application.name values that are never ducked
	MinVolume int      // floor in percent
	Factor    float64  // ducked = current * Factor
	Fade      time.Duration
}

func DefaultDuckerConfig() DuckerConfig {
	return DuckerConfig{
		SelfNames: []string{"voxpro", "ALSA plug-in [voxpro-daemon]"},
		MinVolume: 10,
		Factor:    0.3,
		Fade:      200 * time.Millisecond,
	}
}

// Ducker lowers the volume of other PulseAudio sink inputs while the
// assistant listens and restores them afterwards. It shells out to pactl.
type Ducker struct {
	mu          sync.Mutex
	cfg         DuckerConfig
	active      bool
	originalVol map[int]int // sink input id -> volume before ducking
}

func NewDucker(cfg DuckerConfig) *Ducker {
	cfg.MinVolume = max(0, min(cfg.MinVolume, maxVolume))
	if cfg.Factor <= 0 || cfg.Factor > 1 {
		cfg.Factor = DefaultDuckerConfig().Factor
	}

	return &Ducker{
		cfg:         cfg,
		originalVol: make(map[int]int),
	}
}

// Available reports whether pactl is on PATH.
func Available() bool {
	_, err := exec.LookPath("pactl")
	return err == nil
}

func (d *Ducker) Duck(ctx context.Context) error {
	return d.DuckOthers(ctx, d.cfg.Factor, d.cfg.Fade)
}

func (d *Ducker) Restore(ctx context.Context) error {
	return d.UnduckOthers(ctx, d.cfg.Fade)
}

// DuckOthers fades every foreign stream to current*factor, never below
// MinVolume.
func (d *Ducker) DuckOthers(ctx context.Context, factor float64, duration time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.active {
		return nil
	}

	streams, err := listStreams(ctx)
	if err != nil {
		return err
	}

	d.originalVol = make(map[int]int)
	targets := d.duckTargets(streams, factor)
	for _, t := range targets {
		d.originalVol[t.id] = t.from
	}

	if err := fadeInputs(ctx, targets, duration); err != nil {
		return err
	}

	d.active = true
	return nil
}

func (d *Ducker) duckTargets(streams []streamInfo, factor float64) []fadeTarget {
	var targets []fadeTarget
	for _, s := range streams {
		if d.isSelfStream(s) {
			continue
		}
		to := math.Round(float64(s.Volume) * factor)
		to = math.Max(to, float64(d.cfg.MinVolume))
		to = math.Min(to, maxVolume)

		targets = append(targets, fadeTarget{id: s.ID, from: s.Volume, to: int(to)})
	}
	return targets
}

// UnduckOthers fades foreign streams back to the volume they had before
// DuckOthers. Streams that appeared in between are left alone.
func (d *Ducker) UnduckOthers(ctx context.Context, duration time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.active {
		return nil
	}

	streams, err := listStreams(ctx)
	if err != nil {
		return err
	}

	var targets []fadeTarget
	for _, s := range streams {
		if d.isSelfStream(s) {
			continue
		}
		if orig, ok := d.originalVol[s.ID]; ok {
			targets = append(targets, fadeTarget{id: s.ID, from: s.Volume, to: orig})
		}
	}

	if err := fadeInputs(ctx, targets, duration); err != nil {
		return err
	}

	d.originalVol = make(map[int]int)
	d.active = false
	return nil
}

func (d *Ducker) isSelfStream(s streamInfo) bool {
	for _, name := range d.cfg.SelfNames {
		if s.AppName == name {
			return true
		}
	}
	return false
}

// fadeInputs steps every target from its start to its end volume.
func fadeInputs(ctx context.Context, targets []fadeTarget, duration time.Duration) error {
	if len(targets) == 0 {
		return nil
	}

	if duration <= 0 {
		for _, t := range targets {
			if err := setSinkInputVolume(ctx, t.id, t.to); err != nil {
				return fmt.Errorf("set volume id=%d: %w", t.id, err)
			}
		}
		return nil
	}

	const minStepDuration = 10 * time.Millisecond

	steps := max(int(duration/minStepDuration), 1)
	stepDuration := duration / time.Duration(steps)

	for i := 0; i <= steps; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		frac := float64(i) / float64(steps)
		for _, t := range targets {
			v := int(math.Round(float64(t.from) + float64(t.to-t.from)*frac))
			if err := setSinkInputVolume(ctx, t.id, v); err != nil {
				return fmt.Errorf("set volume id=%d: %w", t.id, err)
			}
		}

		if i < steps {
			time.Sleep(stepDuration)
		}
	}

	return nil
}

func listStreams(ctx context.Context) ([]streamInfo, error) {
	out, err := exec.CommandContext(ctx, "pactl", "list", "sink-inputs").Output()
	if err != nil {
		return nil, fmt.Errorf("pactl list sink-inputs: %w", err)
	}
	return parseSinkInputs(string(out)), nil
}

// parseSinkInputs reads the human readable `pactl list sink-inputs` output.
func parseSinkInputs(text string) []streamInfo {
	parts := strings.Split(text, "Sink Input #")

	var res []streamInfo
	for _, block := range parts[1:] {
		newline := strings.IndexByte(block, '\n')
		if newline <= 0 {
			continue
		}

		id, err := strconv.Atoi(strings.TrimSpace(block[:newline]))
		if err != nil {
			continue
		}

		s := streamInfo{ID: id}
		for _, line := range strings.Split(block[newline+1:], "\n") {
			line = strings.TrimSpace(line)

			if strings.HasPrefix(line, "Volume:") && s.Volume == 0 {
				if m := percentRe.FindStringSubmatch(line); len(m) >= 2 {
					if v, err := strconv.Atoi(m[1]); err == nil {
						s.Volume = v
					}
				}
			}

			// application.name = "Firefox"
			if strings.HasPrefix(line, "application.name =") && s.AppName == "" {
				if _, quoted, ok := strings.Cut(line, "\""); ok {
					s.AppName, _, _ = strings.Cut(quoted, "\"")
				}
			}
		}

		if s.Volume == 0 && s.AppName == "" {
			continue
		}
		res = append(res, s)
	}

	return res
}

func setSinkInputVolume(ctx context.Context, id int, percent int) error {
	percent = max(0, min(percent, maxVolume))
	arg := fmt.Sprintf("%d%%", percent)
	return exec.CommandContext(ctx, "pactl", "set-sink-input-volume", strconv.Itoa(id), arg).Run()
}
