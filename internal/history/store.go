package history

import (
	"context"
	"fmt"
	log "log/slog"
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"

	"voxpro/internal/config"
	"voxpro/internal/models"
)

// Store persists interaction records. Records are appended once and never
// updated.
type Store interface {
	Append(ctx context.Context, rec models.Record) error
	// Recent returns at most limit records, newest first.
	Recent(ctx context.Context, limit int) ([]models.Record, error)
	Close() error
}

// NewID returns a lexically sortable id for a record created at t.
func NewID(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), ulid.DefaultEntropy()).String()
}

// Open picks the first configured backend: S3, SQL, file, none. A backend
// that fails its startup check is logged and skipped.
func Open(ctx context.Context, cfg *config.Config, hc *http.Client) Store {
	if s3cfg, ok := cfg.S3.Get(); ok {
		store, err := NewS3Store(ctx, S3Config{
			S3Config:   s3cfg,
			Endpoint:   cfg.Endpoints.S3,
			HTTPClient: hc,
		})
		if err == nil {
			err = store.Check(ctx)
		}
		if err == nil {
			log.Info("History stored in S3", "bucket", s3cfg.Bucket)
			return store
		}
		log.Warn("S3 history unavailable", "bucket", s3cfg.Bucket, "err", err)
	}

	if dsn, ok := cfg.DatabaseURL.Get(); ok {
		store, err := OpenSQL(ctx, dsn)
		if err == nil {
			log.Info("History stored in database", "driver", store.Driver())
			return store
		}
		log.Warn("Database history unavailable", "err", err)
	}

	if path, ok := cfg.HistoryFile.Get(); ok {
		log.Info("History stored in file", "path", path)
		return NewFileStore(path)
	}

	log.Warn("History disabled")
	return Nop{}
}

// Nop drops every record.
type Nop struct{}

func (Nop) Append(context.Context, models.Record) error { return nil }

func (Nop) Recent(context.Context, int) ([]models.Record, error) { return nil, nil }

func (Nop) Close() error { return nil }

func clampLimit(limit int) int {
	if limit <= 0 {
		return 5
	}
	return limit
}

func recordError(op string, rec models.Record, err error) error {
	return fmt.Errorf("%s %s: %w", op, rec.ID, err)
}
