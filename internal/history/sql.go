package history

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	// database/sql drivers for the two supported DSN schemes
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"voxpro/internal/models"
)

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

const createInteractions = `CREATE TABLE IF NOT EXISTS interactions (
	id         TEXT PRIMARY KEY,
	created_at TIMESTAMP NOT NULL,
	input      TEXT NOT NULL,
	response   TEXT NOT NULL,
	command    TEXT NOT NULL,
	success    BOOLEAN NOT NULL,
	source     TEXT NOT NULL
)`

var interactionColumns = []string{
	"id",
	"created_at",
	"input",
	"response",
	"command",
	"success",
	"source",
}

// SQLStore keeps history in an interactions table, on SQLite or PostgreSQL.
type SQLStore struct {
	db     *sqlx.DB
	driver string
}

// OpenSQL connects to dsn. postgres:// and postgresql:// URLs use lib/pq,
// everything else is a SQLite path (an optional sqlite:// prefix is dropped).
func OpenSQL(ctx context.Context, dsn string) (*SQLStore, error) {
	driver, source := splitDSN(dsn)

	db, err := sqlx.ConnectContext(ctx, driver, source)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}
	if driver == "sqlite" {
		// one writer at a time
		db.SetMaxOpenConns(1)
	}

	if _, err := db.ExecContext(ctx, createInteractions); err != nil {
		db.Close()
		return nil, fmt.Errorf("create interactions table: %w", err)
	}

	return &SQLStore{db: db, driver: driver}, nil
}

func splitDSN(dsn string) (driver, source string) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return "postgres", dsn
	case strings.HasPrefix(dsn, "sqlite://"):
		return "sqlite", strings.TrimPrefix(dsn, "sqlite://")
	default:
		return "sqlite", dsn
	}
}

func (s *SQLStore) Driver() string {
	return s.driver
}

func (s *SQLStore) Append(ctx context.Context, rec models.Record) error {
	rec.Timestamp = rec.Timestamp.UTC()

	query := fmt.Sprintf(`INSERT INTO interactions (%s) VALUES (:%s)`,
		strings.Join(interactionColumns, ", "),
		strings.Join(interactionColumns, ", :"),
	)
	if _, err := s.db.NamedExecContext(ctx, query, rec); err != nil {
		return recordError("insert interaction", rec, err)
	}
	return nil
}

func (s *SQLStore) Recent(ctx context.Context, limit int) ([]models.Record, error) {
	query := s.db.Rebind(fmt.Sprintf(
		`SELECT %s FROM interactions ORDER BY created_at DESC, id DESC LIMIT ?`,
		strings.Join(interactionColumns, ", "),
	))

	var records []models.Record
	if err := s.db.SelectContext(ctx, &records, query, clampLimit(limit)); err != nil {
		return nil, fmt.Errorf("select interactions: %w", err)
	}
	return records, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
