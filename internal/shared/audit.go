package shared

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditLog represents a record stored in audit_logs.
type AuditLog struct {
	ActorID   int64
	Operation string
	Entity    string
	EntityID  string
	Before    any
	After     any
	At        time.Time
}

// AuditLogger writes before/after snapshots into audit_logs.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

const auditInsertSQL = `INSERT INTO audit_logs (actor_id, operation, entity, entity_id, before, after, occurred_at) VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()))`

// Record persists the log entry outside any transaction.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil {
		return errors.New("audit logger not initialised")
	}
	before, after, err := marshalSnapshots(log)
	if err != nil {
		return err
	}
	_, err = l.pool.Exec(ctx, auditInsertSQL, log.ActorID, log.Operation, log.Entity, log.EntityID, before, after, log.At)
	return err
}

// RecordTx persists the log entry inside the caller's transaction, so the
// audit trail commits or rolls back together with the mutation it describes.
func (l *AuditLogger) RecordTx(ctx context.Context, tx pgx.Tx, log AuditLog) error {
	if l == nil {
		return errors.New("audit logger not initialised")
	}
	before, after, err := marshalSnapshots(log)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, auditInsertSQL, log.ActorID, log.Operation, log.Entity, log.EntityID, before, after, log.At)
	return err
}

// RecordAuditTx writes the log entry through an existing transaction without
// an AuditLogger, for repositories that carry their own pgx.Tx.
func RecordAuditTx(ctx context.Context, tx pgx.Tx, log AuditLog) error {
	before, after, err := marshalSnapshots(log)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, auditInsertSQL, log.ActorID, log.Operation, log.Entity, log.EntityID, before, after, log.At)
	return err
}

func marshalSnapshots(log AuditLog) ([]byte, []byte, error) {
	if log.Operation == "" || log.Entity == "" || log.EntityID == "" {
		return nil, nil, errors.New("audit log requires operation/entity/entity_id")
	}
	before, err := json.Marshal(log.Before)
	if err != nil {
		return nil, nil, err
	}
	after, err := json.Marshal(log.After)
	if err != nil {
		return nil, nil, err
	}
	return before, after, nil
}
