package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var (
	// ErrIdempotencyMismatch is returned when a key is reused with a different payload.
	ErrIdempotencyMismatch = errors.New("idempotency key reuse with different request body")
	// ErrIdempotencyInFlight is returned while another request holds the key.
	ErrIdempotencyInFlight = errors.New("idempotency key is already being processed")
)

// statusPending marks a reserved key whose request has not finished.
const statusPending = 0

// Effect statuses.
const (
	StatusApplied = "applied"
	StatusFailed  = "failed"
)

// Store persists dispatched effects, idempotency keys and the audit log.
type Store struct {
	db    *sql.DB
	nowFn func() time.Time
}

// Open opens (and migrates) the sqlite database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	store := &Store{db: db, nowFn: time.Now}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) init() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS effects (
            id TEXT PRIMARY KEY,
            operation_id TEXT NOT NULL,
            operation TEXT NOT NULL,
            sequence INTEGER NOT NULL,
            kind TEXT NOT NULL,
            contract TEXT NOT NULL,
            attributes TEXT NOT NULL,
            status TEXT NOT NULL,
            error TEXT,
            created_at TIMESTAMP NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS effects_status ON effects(status, created_at);`,
		`CREATE TABLE IF NOT EXISTS idempotency_keys (
            subject TEXT NOT NULL,
            idempotency_key TEXT NOT NULL,
            request_hash TEXT NOT NULL,
            response_status INTEGER NOT NULL,
            response_body BLOB NOT NULL,
            created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
            PRIMARY KEY(subject, idempotency_key)
        );`,
		`CREATE TABLE IF NOT EXISTS audit_log (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            occurred_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
            subject TEXT,
            method TEXT NOT NULL,
            path TEXT NOT NULL,
            request_body BLOB,
            response_status INTEGER,
            response_body BLOB
        );`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// EffectRecord is a journaled collaborator call.
type EffectRecord struct {
	ID          string            `json:"id"`
	OperationID string            `json:"operationId"`
	Operation   string            `json:"operation"`
	Sequence    int               `json:"sequence"`
	Kind        string            `json:"kind"`
	Contract    string            `json:"contract"`
	Attributes  map[string]string `json:"attributes"`
	Status      string            `json:"status"`
	Error       string            `json:"error,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
}

// NewOperationID returns an identifier grouping the effects of one call.
func NewOperationID() string {
	return uuid.NewString()
}

// RecordEffects stores the records in one transaction, assigning ids and
// timestamps when missing.
func (s *Store) RecordEffects(ctx context.Context, records []EffectRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	const stmt = `INSERT INTO effects(id, operation_id, operation, sequence, kind, contract, attributes, status, error, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := s.nowFn().UTC()
	for i := range records {
		rec := &records[i]
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = now
		}
		attrs, err := json.Marshal(rec.Attributes)
		if err != nil {
			return fmt.Errorf("encode attributes: %w", err)
		}
		if _, err := tx.ExecContext(ctx, stmt, rec.ID, rec.OperationID, rec.Operation, rec.Sequence, rec.Kind, rec.Contract, string(attrs), rec.Status, rec.Error, rec.CreatedAt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListEffects returns the most recent effects, newest first. With failedOnly
// only failed calls are returned.
func (s *Store) ListEffects(ctx context.Context, limit int, failedOnly bool) ([]EffectRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := `SELECT id, operation_id, operation, sequence, kind, contract, attributes, status, COALESCE(error, ''), created_at FROM effects`
	args := []any{}
	if failedOnly {
		query += ` WHERE status = ?`
		args = append(args, StatusFailed)
	}
	query += ` ORDER BY created_at DESC, operation_id, sequence LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []EffectRecord
	for rows.Next() {
		var rec EffectRecord
		var attrs string
		if err := rows.Scan(&rec.ID, &rec.OperationID, &rec.Operation, &rec.Sequence, &rec.Kind, &rec.Contract, &attrs, &rec.Status, &rec.Error, &rec.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(attrs), &rec.Attributes); err != nil {
			return nil, fmt.Errorf("decode attributes: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// StoredResponse represents a cached response for an idempotency key.
type StoredResponse struct {
	Status int
	Body   []byte
}

// ReserveIdempotency claims (subject, key) for a request before it runs.
// It returns nil, nil when the caller now owns the key and must finish it
// with CompleteIdempotency or ReleaseIdempotency. A completed key returns
// its stored response; a key still being processed returns
// ErrIdempotencyInFlight.
func (s *Store) ReserveIdempotency(ctx context.Context, subject, key, requestHash string) (*StoredResponse, error) {
	const reserve = `INSERT INTO idempotency_keys(subject, idempotency_key, request_hash, response_status, response_body, created_at)
        VALUES (?, ?, ?, ?, ?, ?)
        ON CONFLICT(subject, idempotency_key) DO NOTHING`
	res, err := s.db.ExecContext(ctx, reserve, subject, key, requestHash, statusPending, []byte{}, s.nowFn().UTC())
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, err
	} else if n == 1 {
		return nil, nil
	}

	const query = `SELECT response_status, response_body, request_hash FROM idempotency_keys WHERE subject = ? AND idempotency_key = ?`
	var status int
	var body []byte
	var storedHash string
	if err := s.db.QueryRowContext(ctx, query, subject, key).Scan(&status, &body, &storedHash); err != nil {
		return nil, err
	}
	if storedHash != requestHash {
		return nil, ErrIdempotencyMismatch
	}
	if status == statusPending {
		return nil, ErrIdempotencyInFlight
	}
	return &StoredResponse{Status: status, Body: body}, nil
}

// CompleteIdempotency stores the response for a reserved key.
func (s *Store) CompleteIdempotency(ctx context.Context, subject, key string, status int, body []byte) error {
	const stmt = `UPDATE idempotency_keys SET response_status = ?, response_body = ? WHERE subject = ? AND idempotency_key = ? AND response_status = ?`
	res, err := s.db.ExecContext(ctx, stmt, status, body, subject, key, statusPending)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n != 1 {
		return fmt.Errorf("idempotency key %q is not reserved", key)
	}
	return nil
}

// ReleaseIdempotency drops a reservation whose request failed so the key
// can be retried.
func (s *Store) ReleaseIdempotency(ctx context.Context, subject, key string) error {
	const stmt = `DELETE FROM idempotency_keys WHERE subject = ? AND idempotency_key = ? AND response_status = ?`
	_, err := s.db.ExecContext(ctx, stmt, subject, key, statusPending)
	return err
}

// AuditEntry captures one mutating HTTP request.
type AuditEntry struct {
	Subject        string
	Method         string
	Path           string
	RequestBody    []byte
	ResponseStatus int
	ResponseBody   []byte
	Timestamp      time.Time
}

func (s *Store) InsertAuditLog(ctx context.Context, entry AuditEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.nowFn().UTC()
	}
	const stmt = `INSERT INTO audit_log(subject, method, path, request_body, response_status, response_body, occurred_at) VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, stmt, entry.Subject, entry.Method, entry.Path, entry.RequestBody, entry.ResponseStatus, entry.ResponseBody, entry.Timestamp)
	return err
}

// CountAudit returns the number of audit rows, optionally for one subject.
func (s *Store) CountAudit(ctx context.Context, subject string) (int, error) {
	query := `SELECT COUNT(*) FROM audit_log`
	args := []any{}
	if subject != "" {
		query += ` WHERE subject = ?`
		args = append(args, subject)
	}
	var n int
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&n)
	return n, err
}
