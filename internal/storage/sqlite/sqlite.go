// Package sqlite implements domain.StorageConnector over a pure-Go
// SQLite driver (modernc.org/sqlite, no cgo): plain hand-written SQL,
// WAL journaling, and row-level single-statement updates for every
// counter and stat the engine mutates concurrently.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/relaymesh/skillengine/internal/domain"
)

// DB wraps a SQLite handle and implements domain.StorageConnector.
type DB struct {
	db  *sql.DB
	now func() time.Time
}

var _ domain.StorageConnector = (*DB)(nil)

// Open opens (or creates) a SQLite-backed store and applies the schema
// migration. Use ":memory:" for an in-memory database.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	// A single writer connection means every CAS transaction and row-level
	// update in this package (lock acquisition, RecordArmReward) is
	// serialized by database/sql's pool rather than racing SQLITE_BUSY
	// against a second connection; busy_timeout is kept as a second line of
	// defense for any reader connections opened elsewhere against this file.
	sqlDB.SetMaxOpenConns(1)
	if _, err := sqlDB.Exec("PRAGMA busy_timeout=5000"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := sqlDB.Exec("PRAGMA foreign_keys=ON"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	for _, stmt := range migrations() {
		if _, err := sqlDB.Exec(stmt); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("apply migration: %w", err)
		}
	}
	return &DB{db: sqlDB, now: time.Now}, nil
}

// Close releases the underlying handle.
func (db *DB) Close() error { return db.db.Close() }

// ─── Schema ─────────────────────────────────────────────────────────────────

func migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS skills (
			id                          TEXT PRIMARY KEY,
			agent_id                    TEXT NOT NULL,
			agent_description           TEXT NOT NULL DEFAULT '',
			description                 TEXT NOT NULL DEFAULT '',
			partition_count             INTEGER NOT NULL DEFAULT 1,
			min_pulls_per_arm           INTEGER NOT NULL DEFAULT 1,
			system_prompt_variants      INTEGER NOT NULL DEFAULT 1,
			embedding_model             TEXT NOT NULL DEFAULT '',
			embedding_dim               INTEGER NOT NULL DEFAULT 0,
			exploration_constant        REAL NOT NULL DEFAULT 1.0,
			reflection_lock_holder      TEXT,
			reflection_lock_at          TEXT,
			evaluation_lock_holder      TEXT,
			evaluation_lock_at          TEXT,
			evaluations_regenerated_at  TEXT,
			total_requests              INTEGER NOT NULL DEFAULT 0,
			created_at                  TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		)`,

		`CREATE TABLE IF NOT EXISTS partitions (
			id             TEXT PRIMARY KEY,
			skill_id       TEXT NOT NULL REFERENCES skills(id),
			idx            INTEGER NOT NULL,
			centroid       TEXT NOT NULL DEFAULT '[]',
			total_steps    INTEGER NOT NULL DEFAULT 0,
			total_requests INTEGER NOT NULL DEFAULT 0,
			UNIQUE(skill_id, idx)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_partitions_skill ON partitions(skill_id)`,

		`CREATE TABLE IF NOT EXISTS arms (
			id              TEXT PRIMARY KEY,
			partition_id    TEXT NOT NULL REFERENCES partitions(id),
			model_id        TEXT NOT NULL DEFAULT '',
			system_prompt   TEXT NOT NULL DEFAULT '',
			sampling_params TEXT NOT NULL DEFAULT '{}',
			n               INTEGER NOT NULL DEFAULT 0,
			mean            REAL NOT NULL DEFAULT 0,
			n2              REAL NOT NULL DEFAULT 0,
			total_reward    REAL NOT NULL DEFAULT 0,
			created_at      TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_arms_partition ON arms(partition_id)`,

		`CREATE TABLE IF NOT EXISTS evaluations (
			id       TEXT PRIMARY KEY,
			skill_id TEXT NOT NULL REFERENCES skills(id),
			method   TEXT NOT NULL,
			weight   REAL NOT NULL DEFAULT 1.0,
			params   TEXT NOT NULL DEFAULT '{}'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_evaluations_skill ON evaluations(skill_id)`,
	}
}

// ─── Skill Operations ───────────────────────────────────────────────────────

func (db *DB) GetSkill(ctx context.Context, id string) (*domain.Skill, error) {
	row := db.db.QueryRowContext(ctx, `
		SELECT agent_id, agent_description, description, partition_count, min_pulls_per_arm,
		       system_prompt_variants, embedding_model, embedding_dim, exploration_constant,
		       reflection_lock_holder, reflection_lock_at, evaluation_lock_holder, evaluation_lock_at,
		       evaluations_regenerated_at, total_requests, created_at
		FROM skills WHERE id = ?`, id)

	var s domain.Skill
	s.ID = id
	var reflHolder, reflAt, evalHolder, evalAt, regenAt sql.NullString
	var createdAt string
	if err := row.Scan(&s.AgentID, &s.AgentDescription, &s.Description, &s.PartitionCount, &s.MinPullsPerArm,
		&s.SystemPromptVariants, &s.EmbeddingModel, &s.EmbeddingDim, &s.ExplorationConstant,
		&reflHolder, &reflAt, &evalHolder, &evalAt, &regenAt, &s.TotalRequests, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrSkillNotFound
		}
		return nil, fmt.Errorf("get skill %s: %w", id, err)
	}

	s.ReflectionLock = lockFromColumns(reflHolder, reflAt)
	s.EvaluationLock = lockFromColumns(evalHolder, evalAt)
	s.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	if regenAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, regenAt.String)
		if err == nil {
			s.EvaluationsRegeneratedAt = &t
		}
	}
	return &s, nil
}

// CreateSkill inserts a new skill row. Skill lifecycle (create/delete) is
// a gateway CRUD concern out of the engine's scope,
// so this sits outside domain.StorageConnector; it exists only so
// standalone tooling (cmd/skillenginectl simulate) can provision a skill
// to exercise the engine against.
func (db *DB) CreateSkill(ctx context.Context, s domain.Skill) error {
	_, err := db.db.ExecContext(ctx, `
		INSERT INTO skills (id, agent_id, agent_description, description, partition_count,
			min_pulls_per_arm, system_prompt_variants, embedding_model, embedding_dim, exploration_constant)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.AgentID, s.AgentDescription, s.Description, s.PartitionCount,
		s.MinPullsPerArm, s.SystemPromptVariants, s.EmbeddingModel, s.EmbeddingDim, s.ExplorationConstant)
	if err != nil {
		return fmt.Errorf("create skill %s: %w", s.ID, err)
	}
	return nil
}

func (db *DB) UpdateSkill(ctx context.Context, id string, patch domain.SkillPatch) error {
	if patch.Description != nil {
		if _, err := db.db.ExecContext(ctx, `UPDATE skills SET description = ? WHERE id = ?`, *patch.Description, id); err != nil {
			return fmt.Errorf("update skill description: %w", err)
		}
	}
	if patch.PartitionCount != nil {
		if _, err := db.db.ExecContext(ctx, `UPDATE skills SET partition_count = ? WHERE id = ?`, *patch.PartitionCount, id); err != nil {
			return fmt.Errorf("update skill partition_count: %w", err)
		}
	}
	if patch.MinPullsPerArm != nil {
		if _, err := db.db.ExecContext(ctx, `UPDATE skills SET min_pulls_per_arm = ? WHERE id = ?`, *patch.MinPullsPerArm, id); err != nil {
			return fmt.Errorf("update skill min_pulls_per_arm: %w", err)
		}
	}
	if patch.SystemPromptVariants != nil {
		if _, err := db.db.ExecContext(ctx, `UPDATE skills SET system_prompt_variants = ? WHERE id = ?`, *patch.SystemPromptVariants, id); err != nil {
			return fmt.Errorf("update skill system_prompt_variants: %w", err)
		}
	}
	if patch.ExplorationConstant != nil {
		if _, err := db.db.ExecContext(ctx, `UPDATE skills SET exploration_constant = ? WHERE id = ?`, *patch.ExplorationConstant, id); err != nil {
			return fmt.Errorf("update skill exploration_constant: %w", err)
		}
	}
	return nil
}

// IncrementSkillTotalRequests bumps the skill-level lifetime counter.
func (db *DB) IncrementSkillTotalRequests(ctx context.Context, skillID string) error {
	_, err := db.db.ExecContext(ctx, `UPDATE skills SET total_requests = total_requests + 1 WHERE id = ?`, skillID)
	if err != nil {
		return fmt.Errorf("increment total_requests for skill %s: %w", skillID, err)
	}
	return nil
}

// ─── Lock Operations ────────────────────────────────────────────────────────
//
// Both CAS methods implement the double-check-after-write discipline at
// the storage boundary: the swap happens inside one transaction (so it
// is linearizable against other writers), and the value read back inside
// that same transaction is returned as "observed" for the caller
// (internal/lock.Manager) to compare by instant equality.

func (db *DB) CompareAndSwapReflectionLock(ctx context.Context, skillID string, want domain.Lock, staleAfter time.Duration) (bool, domain.Lock, error) {
	return db.casLock(ctx, skillID, "reflection_lock_holder", "reflection_lock_at", want, staleAfter)
}

func (db *DB) CompareAndSwapEvaluationLock(ctx context.Context, skillID string, want domain.Lock, staleAfter time.Duration) (bool, domain.Lock, error) {
	return db.casLock(ctx, skillID, "evaluation_lock_holder", "evaluation_lock_at", want, staleAfter)
}

func (db *DB) casLock(ctx context.Context, skillID, holderCol, atCol string, want domain.Lock, staleAfter time.Duration) (bool, domain.Lock, error) {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return false, domain.Lock{}, fmt.Errorf("begin lock tx: %w", err)
	}
	defer tx.Rollback()

	var holder, at sql.NullString
	err = tx.QueryRowContext(ctx, fmt.Sprintf(`SELECT %s, %s FROM skills WHERE id = ?`, holderCol, atCol), skillID).Scan(&holder, &at)
	if err != nil {
		return false, domain.Lock{}, fmt.Errorf("read lock columns: %w", err)
	}
	current := lockFromColumns(holder, at)
	if current.IsHeld() && !current.Stale(db.now(), staleAfter) {
		return false, current, tx.Commit()
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE skills SET %s = ?, %s = ? WHERE id = ?`, holderCol, atCol),
		want.HolderID, want.AcquiredAt.Format(time.RFC3339Nano), skillID); err != nil {
		return false, domain.Lock{}, fmt.Errorf("write lock columns: %w", err)
	}
	var gotHolder, gotAt sql.NullString
	err = tx.QueryRowContext(ctx, fmt.Sprintf(`SELECT %s, %s FROM skills WHERE id = ?`, holderCol, atCol), skillID).Scan(&gotHolder, &gotAt)
	if err != nil {
		return false, domain.Lock{}, fmt.Errorf("read back lock columns: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, domain.Lock{}, fmt.Errorf("commit lock tx: %w", err)
	}
	return true, lockFromColumns(gotHolder, gotAt), nil
}

func (db *DB) ClearReflectionLock(ctx context.Context, skillID string) error {
	_, err := db.db.ExecContext(ctx, `UPDATE skills SET reflection_lock_holder = NULL, reflection_lock_at = NULL WHERE id = ?`, skillID)
	return err
}

func (db *DB) ClearEvaluationLock(ctx context.Context, skillID string) error {
	_, err := db.db.ExecContext(ctx, `UPDATE skills SET evaluation_lock_holder = NULL, evaluation_lock_at = NULL WHERE id = ?`, skillID)
	return err
}

// SetEvaluationsRegeneratedAndClearLock sets the completion flag and
// clears the evaluation lock in one UPDATE statement, so observers never
// see the flag set while the lock still appears held, or vice versa.
func (db *DB) SetEvaluationsRegeneratedAndClearLock(ctx context.Context, skillID string, at time.Time) error {
	_, err := db.db.ExecContext(ctx, `
		UPDATE skills
		SET evaluations_regenerated_at = ?, evaluation_lock_holder = NULL, evaluation_lock_at = NULL
		WHERE id = ?`, at.Format(time.RFC3339Nano), skillID)
	if err != nil {
		return fmt.Errorf("set evaluations_regenerated_at: %w", err)
	}
	return nil
}

func lockFromColumns(holder, at sql.NullString) domain.Lock {
	if !holder.Valid || !at.Valid {
		return domain.Lock{}
	}
	acquiredAt, err := time.Parse(time.RFC3339Nano, at.String)
	if err != nil {
		return domain.Lock{}
	}
	return domain.Lock{HolderID: holder.String, AcquiredAt: acquiredAt}
}

// ─── Partition Operations ───────────────────────────────────────────────────

func (db *DB) GetPartitions(ctx context.Context, skillID string) ([]domain.Partition, error) {
	rows, err := db.db.QueryContext(ctx, `
		SELECT id, idx, centroid, total_steps, total_requests FROM partitions
		WHERE skill_id = ? ORDER BY idx ASC`, skillID)
	if err != nil {
		return nil, fmt.Errorf("get partitions for skill %s: %w", skillID, err)
	}
	defer rows.Close()

	var out []domain.Partition
	for rows.Next() {
		var p domain.Partition
		var centroidJSON string
		if err := rows.Scan(&p.ID, &p.Index, &centroidJSON, &p.TotalSteps, &p.TotalRequests); err != nil {
			return nil, fmt.Errorf("scan partition: %w", err)
		}
		p.SkillID = skillID
		_ = json.Unmarshal([]byte(centroidJSON), &p.Centroid)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (db *DB) CreatePartitions(ctx context.Context, partitions []domain.Partition) error {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create partitions tx: %w", err)
	}
	defer tx.Rollback()

	for _, p := range partitions {
		centroidJSON, err := json.Marshal(p.Centroid)
		if err != nil {
			return fmt.Errorf("marshal centroid: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO partitions (id, skill_id, idx, centroid, total_steps, total_requests)
			VALUES (?, ?, ?, ?, ?, ?)`,
			p.ID, p.SkillID, p.Index, string(centroidJSON), p.TotalSteps, p.TotalRequests); err != nil {
			return fmt.Errorf("insert partition: %w", err)
		}
	}
	return tx.Commit()
}

func (db *DB) UpdatePartition(ctx context.Context, id string, patch domain.PartitionPatch) error {
	if patch.Centroid != nil {
		centroidJSON, err := json.Marshal(patch.Centroid)
		if err != nil {
			return fmt.Errorf("marshal centroid: %w", err)
		}
		if _, err := db.db.ExecContext(ctx, `UPDATE partitions SET centroid = ? WHERE id = ?`, string(centroidJSON), id); err != nil {
			return fmt.Errorf("update partition centroid: %w", err)
		}
	}
	if patch.TotalSteps != nil {
		if _, err := db.db.ExecContext(ctx, `UPDATE partitions SET total_steps = ? WHERE id = ?`, *patch.TotalSteps, id); err != nil {
			return fmt.Errorf("update partition total_steps: %w", err)
		}
	}
	if patch.TotalRequests != nil {
		if _, err := db.db.ExecContext(ctx, `UPDATE partitions SET total_requests = ? WHERE id = ?`, *patch.TotalRequests, id); err != nil {
			return fmt.Errorf("update partition total_requests: %w", err)
		}
	}
	return nil
}

func (db *DB) DeletePartition(ctx context.Context, id string) error {
	_, err := db.db.ExecContext(ctx, `DELETE FROM partitions WHERE id = ?`, id)
	return err
}

// IncrementPartitionCounters bumps total_steps and total_requests by one
// each as a single row-level delta, avoiding the
// lost-update window a separate read-then-write-back pair would have
// under concurrent RecordOutcome calls on the same partition.
func (db *DB) IncrementPartitionCounters(ctx context.Context, partitionID string) error {
	res, err := db.db.ExecContext(ctx, `
		UPDATE partitions SET total_steps = total_steps + 1, total_requests = total_requests + 1 WHERE id = ?`,
		partitionID)
	if err != nil {
		return fmt.Errorf("increment partition %s counters: %w", partitionID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("increment partition %s counters: %w", partitionID, err)
	}
	if n == 0 {
		return domain.ErrPartitionNotFound
	}
	return nil
}

// ─── Arm Operations ─────────────────────────────────────────────────────────

func (db *DB) GetArmsByPartition(ctx context.Context, partitionID string) ([]domain.Arm, error) {
	rows, err := db.db.QueryContext(ctx, `
		SELECT id, model_id, system_prompt, sampling_params, n, mean, n2, total_reward, created_at
		FROM arms WHERE partition_id = ? ORDER BY created_at ASC, id ASC`, partitionID)
	if err != nil {
		return nil, fmt.Errorf("get arms for partition %s: %w", partitionID, err)
	}
	defer rows.Close()
	return scanArms(rows, partitionID)
}

func (db *DB) GetArmsBySkill(ctx context.Context, skillID string) ([]domain.Arm, error) {
	rows, err := db.db.QueryContext(ctx, `
		SELECT a.id, a.model_id, a.system_prompt, a.sampling_params, a.n, a.mean, a.n2, a.total_reward, a.created_at, a.partition_id
		FROM arms a JOIN partitions p ON a.partition_id = p.id
		WHERE p.skill_id = ? ORDER BY a.created_at ASC, a.id ASC`, skillID)
	if err != nil {
		return nil, fmt.Errorf("get arms for skill %s: %w", skillID, err)
	}
	defer rows.Close()

	var out []domain.Arm
	for rows.Next() {
		var a domain.Arm
		var samplingJSON, createdAt string
		if err := rows.Scan(&a.ID, &a.Params.ModelID, &a.Params.SystemPrompt, &samplingJSON,
			&a.Stats.N, &a.Stats.Mean, &a.Stats.N2, &a.Stats.TotalReward, &createdAt, &a.PartitionID); err != nil {
			return nil, fmt.Errorf("scan arm: %w", err)
		}
		_ = json.Unmarshal([]byte(samplingJSON), &a.Params.SamplingParams)
		a.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanArms(rows *sql.Rows, partitionID string) ([]domain.Arm, error) {
	var out []domain.Arm
	for rows.Next() {
		var a domain.Arm
		var samplingJSON, createdAt string
		if err := rows.Scan(&a.ID, &a.Params.ModelID, &a.Params.SystemPrompt, &samplingJSON,
			&a.Stats.N, &a.Stats.Mean, &a.Stats.N2, &a.Stats.TotalReward, &createdAt); err != nil {
			return nil, fmt.Errorf("scan arm: %w", err)
		}
		a.PartitionID = partitionID
		_ = json.Unmarshal([]byte(samplingJSON), &a.Params.SamplingParams)
		a.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (db *DB) CreateArms(ctx context.Context, arms []domain.Arm) error {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create arms tx: %w", err)
	}
	defer tx.Rollback()

	for i := range arms {
		if arms[i].ID == "" {
			arms[i].ID = newID()
		}
		if arms[i].CreatedAt.IsZero() {
			arms[i].CreatedAt = db.now()
		}
		samplingJSON, err := json.Marshal(arms[i].Params.SamplingParams)
		if err != nil {
			return fmt.Errorf("marshal sampling params: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO arms (id, partition_id, model_id, system_prompt, sampling_params, n, mean, n2, total_reward, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			arms[i].ID, arms[i].PartitionID, arms[i].Params.ModelID, arms[i].Params.SystemPrompt, string(samplingJSON),
			arms[i].Stats.N, arms[i].Stats.Mean, arms[i].Stats.N2, arms[i].Stats.TotalReward,
			arms[i].CreatedAt.Format(time.RFC3339Nano)); err != nil {
			return fmt.Errorf("insert arm: %w", err)
		}
	}
	return tx.Commit()
}

func (db *DB) DeleteArmsForPartition(ctx context.Context, partitionID string) error {
	_, err := db.db.ExecContext(ctx, `DELETE FROM arms WHERE partition_id = ?`, partitionID)
	return err
}

func (db *DB) DeleteArmsForSkill(ctx context.Context, skillID string) error {
	_, err := db.db.ExecContext(ctx, `
		DELETE FROM arms WHERE partition_id IN (SELECT id FROM partitions WHERE skill_id = ?)`, skillID)
	return err
}

// RecordArmReward folds one reward observation into an arm's running
// statistics as a single UPDATE...RETURNING statement: the delta is computed by SQLite itself
// against whatever row is current at execution time, so two concurrent
// callers updating the same arm can never clobber each other's n/
// total_reward the way a read-then-write-back pair could.
func (db *DB) RecordArmReward(ctx context.Context, armID string, reward float64) (domain.ArmStats, error) {
	row := db.db.QueryRowContext(ctx, `
		UPDATE arms SET
			n            = n + 1,
			total_reward = total_reward + ?,
			n2           = n2 + ?,
			mean         = (total_reward + ?) / (n + 1)
		WHERE id = ?
		RETURNING n, mean, n2, total_reward`,
		reward, reward*reward, reward, armID)

	var stats domain.ArmStats
	if err := row.Scan(&stats.N, &stats.Mean, &stats.N2, &stats.TotalReward); err != nil {
		if err == sql.ErrNoRows {
			return domain.ArmStats{}, domain.ErrArmNotFound
		}
		return domain.ArmStats{}, fmt.Errorf("record reward for arm %s: %w", armID, err)
	}
	return stats, nil
}

// UpdateArmParams replaces an arm's params in place and resets its stats
// to zero, preserving the row's ID: the in-place counterpart to
// DeleteArmsForPartition+CreateArms used whenever a replacement keeps the
// arm count unchanged.
func (db *DB) UpdateArmParams(ctx context.Context, armID string, params domain.ArmParams) error {
	samplingJSON, err := json.Marshal(params.SamplingParams)
	if err != nil {
		return fmt.Errorf("marshal sampling params: %w", err)
	}
	res, err := db.db.ExecContext(ctx, `
		UPDATE arms SET model_id = ?, system_prompt = ?, sampling_params = ?,
			n = 0, mean = 0, n2 = 0, total_reward = 0
		WHERE id = ?`,
		params.ModelID, params.SystemPrompt, string(samplingJSON), armID)
	if err != nil {
		return fmt.Errorf("update arm params for %s: %w", armID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update arm params for %s: %w", armID, err)
	}
	if n == 0 {
		return domain.ErrArmNotFound
	}
	return nil
}

// ─── Evaluation Operations ──────────────────────────────────────────────────

func (db *DB) GetEvaluations(ctx context.Context, skillID string) ([]domain.Evaluation, error) {
	rows, err := db.db.QueryContext(ctx, `
		SELECT id, method, weight, params FROM evaluations WHERE skill_id = ?`, skillID)
	if err != nil {
		return nil, fmt.Errorf("get evaluations for skill %s: %w", skillID, err)
	}
	defer rows.Close()

	var out []domain.Evaluation
	for rows.Next() {
		var e domain.Evaluation
		var method, paramsJSON string
		if err := rows.Scan(&e.ID, &method, &e.Weight, &paramsJSON); err != nil {
			return nil, fmt.Errorf("scan evaluation: %w", err)
		}
		e.SkillID = skillID
		e.Method = domain.EvaluationMethod(method)
		_ = json.Unmarshal([]byte(paramsJSON), &e.Params)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (db *DB) CreateEvaluations(ctx context.Context, evaluations []domain.Evaluation) error {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create evaluations tx: %w", err)
	}
	defer tx.Rollback()

	for i := range evaluations {
		if evaluations[i].ID == "" {
			evaluations[i].ID = newID()
		}
		paramsJSON, err := json.Marshal(evaluations[i].Params)
		if err != nil {
			return fmt.Errorf("marshal evaluation params: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO evaluations (id, skill_id, method, weight, params)
			VALUES (?, ?, ?, ?, ?)`,
			evaluations[i].ID, evaluations[i].SkillID, string(evaluations[i].Method), evaluations[i].Weight, string(paramsJSON)); err != nil {
			return fmt.Errorf("insert evaluation: %w", err)
		}
	}
	return tx.Commit()
}

func (db *DB) DeleteEvaluationsForSkill(ctx context.Context, skillID string) error {
	_, err := db.db.ExecContext(ctx, `DELETE FROM evaluations WHERE skill_id = ?`, skillID)
	return err
}

func (db *DB) UpdateEvaluation(ctx context.Context, id string, params map[string]any) error {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal evaluation params: %w", err)
	}
	_, err = db.db.ExecContext(ctx, `UPDATE evaluations SET params = ? WHERE id = ?`, string(paramsJSON), id)
	if err != nil {
		return fmt.Errorf("update evaluation %s: %w", id, err)
	}
	return nil
}
