// Package logstore implements domain.LogConnector over the same SQLite
// handle family as internal/storage/sqlite, storing the append-only
// request records the surrounding proxy writes and the engine only
// reads.
package logstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/relaymesh/skillengine/internal/domain"
)

// DB wraps a SQLite handle and implements domain.LogConnector.
type DB struct {
	db *sql.DB
}

var _ domain.LogConnector = (*DB)(nil)

// Open opens (or creates) a SQLite-backed log store and applies its
// schema migration. It opens its own handle; skillenginectl points it at
// a separate file (--logdb) from internal/storage/sqlite.DB, and the two
// are kept as separate connectors so either side can move to its own
// backend.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("apply migration: %w", err)
	}
	return &DB{db: sqlDB}, nil
}

func (db *DB) Close() error { return db.db.Close() }

const schema = `
CREATE TABLE IF NOT EXISTS request_records (
	id              TEXT PRIMARY KEY,
	skill_id        TEXT NOT NULL,
	partition_id    TEXT NOT NULL DEFAULT '',
	arm_id          TEXT NOT NULL DEFAULT '',
	function_name   TEXT NOT NULL DEFAULT '',
	input_messages  TEXT NOT NULL DEFAULT '[]',
	constraints     TEXT NOT NULL DEFAULT '{}',
	response        TEXT NOT NULL DEFAULT '',
	embedding       TEXT,
	created_at      TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
	duration_ms     INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_request_records_skill ON request_records(skill_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_request_records_partition ON request_records(partition_id, created_at DESC);
`

// Append inserts one completed request record. This is the write side
// the surrounding proxy owns; it exists here so in-process callers such
// as this package's tests can populate the log.
func (db *DB) Append(ctx context.Context, r domain.RequestRecord) error {
	messagesJSON, err := json.Marshal(r.InputMessages)
	if err != nil {
		return fmt.Errorf("marshal input messages: %w", err)
	}
	constraintsJSON, err := json.Marshal(r.Constraints)
	if err != nil {
		return fmt.Errorf("marshal constraints: %w", err)
	}
	var embeddingJSON sql.NullString
	if r.Embedding != nil {
		b, err := json.Marshal(r.Embedding)
		if err != nil {
			return fmt.Errorf("marshal embedding: %w", err)
		}
		embeddingJSON = sql.NullString{String: string(b), Valid: true}
	}
	if r.ID == "" {
		r.ID = newID()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	_, err = db.db.ExecContext(ctx, `
		INSERT INTO request_records
			(id, skill_id, partition_id, arm_id, function_name, input_messages, constraints, response, embedding, created_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.SkillID, r.PartitionID, r.ArmID, string(r.FunctionName), string(messagesJSON), string(constraintsJSON),
		r.Response, embeddingJSON, r.CreatedAt.Format(time.RFC3339Nano), r.DurationMs)
	if err != nil {
		return fmt.Errorf("append request record: %w", err)
	}
	return nil
}

// GetLogs implements domain.LogConnector.GetLogs:
// getLogs({skill_id, partition_id?, embedding_not_null?, limit}).
func (db *DB) GetLogs(ctx context.Context, q domain.LogQuery) ([]domain.RequestRecord, error) {
	query, args := buildLogQuery(q, false)
	rows, err := db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get logs: %w", err)
	}
	defer rows.Close()

	var out []domain.RequestRecord
	for rows.Next() {
		var r domain.RequestRecord
		var functionName, messagesJSON, constraintsJSON, createdAt string
		var embeddingJSON sql.NullString
		if err := rows.Scan(&r.ID, &r.SkillID, &r.PartitionID, &r.ArmID, &functionName,
			&messagesJSON, &constraintsJSON, &r.Response, &embeddingJSON, &createdAt, &r.DurationMs); err != nil {
			return nil, fmt.Errorf("scan request record: %w", err)
		}
		r.FunctionName = domain.FunctionName(functionName)
		_ = json.Unmarshal([]byte(messagesJSON), &r.InputMessages)
		_ = json.Unmarshal([]byte(constraintsJSON), &r.Constraints)
		if embeddingJSON.Valid {
			_ = json.Unmarshal([]byte(embeddingJSON.String), &r.Embedding)
		}
		r.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

// CountLogs implements domain.LogConnector.CountLogs, used by the rubric
// bootstrap trigger check).
func (db *DB) CountLogs(ctx context.Context, q domain.LogQuery) (int, error) {
	query, args := buildLogQuery(q, true)
	var count int
	if err := db.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count logs: %w", err)
	}
	return count, nil
}

func buildLogQuery(q domain.LogQuery, countOnly bool) (string, []any) {
	var b strings.Builder
	if countOnly {
		b.WriteString("SELECT COUNT(*) FROM request_records WHERE skill_id = ?")
	} else {
		b.WriteString(`SELECT id, skill_id, partition_id, arm_id, function_name, input_messages, constraints,
			response, embedding, created_at, duration_ms FROM request_records WHERE skill_id = ?`)
	}
	args := []any{q.SkillID}
	if q.PartitionID != "" {
		b.WriteString(" AND partition_id = ?")
		args = append(args, q.PartitionID)
	}
	if q.EmbeddingNotNull {
		b.WriteString(" AND embedding IS NOT NULL")
	}
	if !countOnly {
		b.WriteString(" ORDER BY created_at DESC")
		if q.Limit > 0 {
			b.WriteString(" LIMIT ?")
			args = append(args, q.Limit)
		}
	}
	return b.String(), args
}
