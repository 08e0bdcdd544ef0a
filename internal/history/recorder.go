package history

import (
	"context"
	log "log/slog"
	"sync"
	"time"

	"github.com/gammazero/workerpool"

	"voxpro/internal/models"
)

const writeTimeout = 15 * time.Second

// Recorder writes records in the background, one at a time and in
// submission order. Write failures are logged and dropped.
type Recorder struct {
	store Store
	pool  *workerpool.WorkerPool

	mu     sync.Mutex
	closed bool
}

func NewRecorder(store Store) *Recorder {
	return &Recorder{
		store: store,
		pool:  workerpool.New(1),
	}
}

// Record queues exactly one write attempt for rec and returns immediately.
// Records arriving after Close are dropped.
func (r *Recorder) Record(rec models.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		log.Warn("History closed, dropping interaction", "id", rec.ID)
		return
	}

	r.pool.Submit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()

		if err := r.store.Append(ctx, rec); err != nil {
			log.Warn("Failed to save interaction", "id", rec.ID, "err", err)
			return
		}
		log.Debug("Saved interaction", "id", rec.ID, "command", rec.Command)
	})
}

func (r *Recorder) Recent(ctx context.Context, limit int) ([]models.Record, error) {
	return r.store.Recent(ctx, limit)
}

// Enabled is false when history is switched off.
func (r *Recorder) Enabled() bool {
	_, nop := r.store.(Nop)
	return !nop
}

// Close waits for queued writes, then closes the store.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	r.pool.StopWait()
	return r.store.Close()
}
