// Package postgres stores the patient summary access trail in PostgreSQL.
package postgres

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/drfirst/go-summaryview/internal/audit"
)

//go:embed schema.sql
var schema string

// NewPool connects to PostgreSQL and verifies the connection.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 4

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// AccessLog writes access events to summary_access_log.
type AccessLog struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	tracer trace.Tracer
}

// NewAccessLog creates an AccessLog over pool.
func NewAccessLog(pool *pgxpool.Pool, logger *zap.Logger) *AccessLog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccessLog{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("access-log"),
	}
}

// EnsureSchema creates the access log table when missing.
func (l *AccessLog) EnsureSchema(ctx context.Context) error {
	if _, err := l.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create access log schema: %w", err)
	}
	return nil
}

// Name implements audit.Sink.
func (l *AccessLog) Name() string { return "postgres" }

// Write inserts ev. Replays of the same event id are ignored.
func (l *AccessLog) Write(ctx context.Context, ev *audit.AccessEvent) error {
	ctx, span := l.tracer.Start(ctx, "access_log_write",
		trace.WithAttributes(attribute.String("event_id", ev.ID)))
	defer span.End()

	query := `
		INSERT INTO summary_access_log
			(id, request_id, session_id, subject, patient_id, outcome, status_code,
			 allergies, medications, channel, accessed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := l.pool.Exec(ctx, query,
		ev.ID,
		nullable(ev.RequestID),
		nullable(ev.SessionID),
		nullable(ev.Subject),
		ev.PatientID,
		ev.Outcome,
		nullableInt(ev.StatusCode),
		ev.Allergies,
		ev.Medications,
		ev.Channel,
		ev.At,
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("insert access event: %w", err)
	}

	l.logger.Debug("access event stored",
		zap.String("event_id", ev.ID),
		zap.String("patient_id", ev.PatientID))
	return nil
}

// Recent returns the latest access events for a patient, newest first.
func (l *AccessLog) Recent(ctx context.Context, patientID string, limit int) ([]audit.AccessEvent, error) {
	query := `
		SELECT id::text, COALESCE(request_id, ''), COALESCE(session_id, ''), COALESCE(subject, ''),
		       patient_id, outcome, COALESCE(status_code, 0), allergies, medications,
		       channel, accessed_at
		FROM summary_access_log
		WHERE patient_id = $1
		ORDER BY accessed_at DESC
		LIMIT $2
	`
	rows, err := l.pool.Query(ctx, query, patientID, limit)
	if err != nil {
		return nil, fmt.Errorf("query access events: %w", err)
	}

	events, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (audit.AccessEvent, error) {
		var ev audit.AccessEvent
		err := row.Scan(&ev.ID, &ev.RequestID, &ev.SessionID, &ev.Subject,
			&ev.PatientID, &ev.Outcome, &ev.StatusCode, &ev.Allergies, &ev.Medications,
			&ev.Channel, &ev.At)
		return ev, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan access events: %w", err)
	}
	return events, nil
}

// Purge deletes events older than retention and returns the count removed.
func (l *AccessLog) Purge(ctx context.Context, retention time.Duration) (int64, error) {
	tag, err := l.pool.Exec(ctx,
		"DELETE FROM summary_access_log WHERE accessed_at < $1",
		time.Now().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("purge access events: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Ping checks the database connection.
func (l *AccessLog) Ping(ctx context.Context) error {
	return l.pool.Ping(ctx)
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullableInt(n int) *int {
	if n == 0 {
		return nil
	}
	return &n
}
