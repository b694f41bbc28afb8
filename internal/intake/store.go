// internal/intake/store.go
package intake

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/crissins/admit-care/internal/common/errors"
	"github.com/crissins/admit-care/internal/common/logger"
	"github.com/crissins/admit-care/internal/common/metrics"
	"github.com/crissins/admit-care/internal/models"
)

// Sink persists a finalized intake record. Implementations must be safe for
// concurrent use across sessions.
type Sink interface {
	Store(ctx context.Context, record *models.IntakeRecord, raw json.RawMessage) error
}

// Finalize fills the gateway-owned fields of a validated record: admission
// and patient identifiers, creation timestamp and author. The model's
// placeholder values for these fields are always overwritten.
func Finalize(record *models.IntakeRecord, now time.Time) {
	record.AdmissionID = uuid.NewString()
	record.Metadata.PatientID = uuid.NewString()
	record.Metadata.CreatedAt = now.UTC().Format(time.RFC3339)
	record.Metadata.CreatedBy = models.CreatedByBot
}

// ==========================
// Postgres sink
// ==========================

// PostgresSink writes each record as a jsonb row keyed by admission id.
type PostgresSink struct {
	db  *sql.DB
	log logger.Logger
}

func NewPostgresSink(db *sql.DB, log logger.Logger) *PostgresSink {
	return &PostgresSink{db: db, log: log}
}

const insertAdmissionQuery = `
	INSERT INTO admissions (admission_id, patient_id, created_at, record)
	VALUES ($1, $2, $3, $4)`

func (s *PostgresSink) Store(ctx context.Context, record *models.IntakeRecord, _ json.RawMessage) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return errors.NewIntakePersistFailedError(fmt.Errorf("marshal record: %w", err))
	}

	createdAt, err := time.Parse(time.RFC3339, record.Metadata.CreatedAt)
	if err != nil {
		createdAt = time.Now().UTC()
	}

	if _, err := s.db.ExecContext(ctx, insertAdmissionQuery,
		record.AdmissionID, record.Metadata.PatientID, createdAt, payload); err != nil {
		return errors.NewIntakePersistFailedError(fmt.Errorf("insert admission: %w", err))
	}

	s.log.Info("admission stored in postgres", map[string]interface{}{
		"admission_id": record.AdmissionID,
	})
	return nil
}

// ==========================
// Redis sink
// ==========================

// RedisSink pushes each record onto a work queue consumed by downstream
// staff tooling.
type RedisSink struct {
	client   *redis.Client
	queueKey string
	log      logger.Logger
}

func NewRedisSink(client *redis.Client, queueKey string, log logger.Logger) *RedisSink {
	return &RedisSink{client: client, queueKey: queueKey, log: log}
}

func (s *RedisSink) Store(ctx context.Context, record *models.IntakeRecord, _ json.RawMessage) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return errors.NewIntakePersistFailedError(fmt.Errorf("marshal record: %w", err))
	}

	if err := s.client.LPush(ctx, s.queueKey, payload).Err(); err != nil {
		return errors.NewIntakePersistFailedError(fmt.Errorf("lpush %s: %w", s.queueKey, err))
	}

	s.log.Info("admission queued in redis", map[string]interface{}{
		"admission_id": record.AdmissionID,
		"queue":        s.queueKey,
	})
	return nil
}

// ==========================
// File sink
// ==========================

// FileSink writes one JSON file per admission under a local directory.
// Used in development when no database is available.
type FileSink struct {
	dir string
	log logger.Logger
}

func NewFileSink(dir string, log logger.Logger) *FileSink {
	return &FileSink{dir: dir, log: log}
}

func (s *FileSink) Store(_ context.Context, record *models.IntakeRecord, _ json.RawMessage) error {
	payload, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return errors.NewIntakePersistFailedError(fmt.Errorf("marshal record: %w", err))
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return errors.NewIntakePersistFailedError(fmt.Errorf("create dir %s: %w", s.dir, err))
	}

	path := filepath.Join(s.dir, record.AdmissionID+".json")
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return errors.NewIntakePersistFailedError(fmt.Errorf("write %s: %w", path, err))
	}

	s.log.Info("admission written to file", map[string]interface{}{
		"admission_id": record.AdmissionID,
		"path":         path,
	})
	return nil
}

// ==========================
// Composite sink
// ==========================

// MultiSink fans a record out to every configured sink. The first failure
// aborts the store; earlier sinks are not rolled back.
type MultiSink struct {
	sinks []Sink
}

func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (s *MultiSink) Store(ctx context.Context, record *models.IntakeRecord, raw json.RawMessage) error {
	for _, sink := range s.sinks {
		if err := sink.Store(ctx, record, raw); err != nil {
			return err
		}
	}
	metrics.RecordsStoredTotal.Inc()
	return nil
}
