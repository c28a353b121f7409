// ABOUTME: SQLite-backed durable state store tracking each work item's stage and status.
// ABOUTME: Provides atomic upsert, deterministic resumable listing, and fail-fast corruption detection.

package pipeline

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrStoreCorrupt indicates the state database is corrupted or unreadable.
// Fatal: resuming into corrupted state risks silent duplication or loss.
var ErrStoreCorrupt = errors.New("state store corrupt")

// StateStore is the durable mapping from work-item key to its current stage
// and status. Single-process access; each key is mutated by at most one
// executor invocation at a time.
type StateStore struct {
	db *sql.DB
}

// OpenStateStore opens or creates the state database at the given path. An
// integrity check runs before any schema work; failure aborts with
// ErrStoreCorrupt rather than resuming on unreliable state.
func OpenStateStore(path string) (*StateStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating state store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}

	// WAL keeps readers cheap; synchronous=FULL makes every commit durable
	// before Exec returns, which is the checkpoint contract.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: set WAL mode: %v", ErrStoreCorrupt, err)
	}
	if _, err := db.Exec("PRAGMA synchronous=FULL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: set synchronous: %v", ErrStoreCorrupt, err)
	}

	var check string
	if err := db.QueryRow("PRAGMA quick_check").Scan(&check); err != nil || check != "ok" {
		_ = db.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: integrity check: %v", ErrStoreCorrupt, err)
		}
		return nil, fmt.Errorf("%w: integrity check reported %q", ErrStoreCorrupt, check)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS work_items (
			key TEXT PRIMARY KEY,
			role TEXT NOT NULL,
			question_index INTEGER NOT NULL,
			industry TEXT NOT NULL,
			variant INTEGER NOT NULL,
			question TEXT NOT NULL,
			current_stage TEXT NOT NULL,
			status TEXT NOT NULL,
			attempt_count INTEGER NOT NULL DEFAULT 0,
			last_error TEXT NOT NULL DEFAULT '',
			artifact_refs TEXT NOT NULL DEFAULT '{}',
			updated_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_work_items_status ON work_items (status);`

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: create schema: %v", ErrStoreCorrupt, err)
	}

	return &StateStore{db: db}, nil
}

// Close closes the underlying database.
func (s *StateStore) Close() error {
	return s.db.Close()
}

// Get fetches the record for a key. The second return is false when absent.
func (s *StateStore) Get(key WorkItemKey) (*WorkItemRecord, bool, error) {
	row := s.db.QueryRow(
		`SELECT role, question_index, industry, variant, question, current_stage,
		        status, attempt_count, last_error, artifact_refs, updated_at
		 FROM work_items WHERE key = ?`, key.ID())

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

// GetByID fetches the record for a canonical key string, as used by the
// status API.
func (s *StateStore) GetByID(id string) (*WorkItemRecord, bool, error) {
	row := s.db.QueryRow(
		`SELECT role, question_index, industry, variant, question, current_stage,
		        status, attempt_count, last_error, artifact_refs, updated_at
		 FROM work_items WHERE key = ?`, id)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

// ListAll returns every record ordered by key.
func (s *StateStore) ListAll() ([]*WorkItemRecord, error) {
	rows, err := s.db.Query(
		`SELECT role, question_index, industry, variant, question, current_stage,
		        status, attempt_count, last_error, artifact_refs, updated_at
		 FROM work_items ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("query all: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*WorkItemRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Upsert atomically replaces the record for its key, durable before
// returning. Committed artifact refs are write-once: an upsert that changes
// an existing ref for a stage is rejected, which is the at-most-one-artifact
// invariant enforced at the storage boundary.
func (s *StateStore) Upsert(rec *WorkItemRecord) error {
	existing, found, err := s.Get(rec.Key)
	if err != nil {
		return fmt.Errorf("upsert precheck: %w", err)
	}
	if found {
		for stage, ref := range existing.ArtifactRefs {
			if ref == "" {
				continue
			}
			if newRef, ok := rec.ArtifactRefs[stage]; !ok || newRef != ref {
				return fmt.Errorf("artifact ref for %s/%s is committed and cannot change", rec.Key.ID(), stage)
			}
		}
	}

	refs, err := json.Marshal(rec.ArtifactRefs)
	if err != nil {
		return fmt.Errorf("encode artifact refs: %w", err)
	}

	// The caller owns the timestamp; fill it in only when it was never set.
	updatedAt := rec.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	_, err = s.db.Exec(
		`INSERT INTO work_items (key, role, question_index, industry, variant, question,
		                         current_stage, status, attempt_count, last_error, artifact_refs, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
			current_stage = excluded.current_stage,
			status = excluded.status,
			attempt_count = excluded.attempt_count,
			last_error = excluded.last_error,
			artifact_refs = excluded.artifact_refs,
			updated_at = excluded.updated_at`,
		rec.Key.ID(),
		rec.Key.Role,
		rec.Key.QuestionIndex,
		rec.Key.Industry,
		rec.Key.Variant,
		rec.Question,
		string(rec.CurrentStage),
		string(rec.Status),
		rec.AttemptCount,
		rec.LastError,
		string(refs),
		updatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", rec.Key.ID(), err)
	}
	return nil
}

// ListResumable returns every pending, failed, or in_progress record,
// ordered by key for reproducible run order.
func (s *StateStore) ListResumable() ([]*WorkItemRecord, error) {
	rows, err := s.db.Query(
		`SELECT role, question_index, industry, variant, question, current_stage,
		        status, attempt_count, last_error, artifact_refs, updated_at
		 FROM work_items
		 WHERE status IN (?, ?, ?)
		 ORDER BY key`,
		string(StatusPending), string(StatusFailed), string(StatusInProgress))
	if err != nil {
		return nil, fmt.Errorf("query resumable: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*WorkItemRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ListSucceededKeys returns the set of keys whose records are terminal
// succeeded.
func (s *StateStore) ListSucceededKeys() (map[string]struct{}, error) {
	rows, err := s.db.Query(`SELECT key FROM work_items WHERE status = ?`, string(StatusSucceeded))
	if err != nil {
		return nil, fmt.Errorf("query succeeded keys: %w", err)
	}
	defer func() { _ = rows.Close() }()

	keys := make(map[string]struct{})
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys[key] = struct{}{}
	}
	return keys, rows.Err()
}

// Summary returns record counts per status.
func (s *StateStore) Summary() (map[Status]int, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM work_items GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("query summary: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan summary row: %w", err)
		}
		counts[Status(status)] = n
	}
	return counts, rows.Err()
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*WorkItemRecord, error) {
	var rec WorkItemRecord
	var stage, status, refs, updatedAt string
	if err := row.Scan(
		&rec.Key.Role, &rec.Key.QuestionIndex, &rec.Key.Industry, &rec.Key.Variant,
		&rec.Question, &stage, &status, &rec.AttemptCount, &rec.LastError,
		&refs, &updatedAt,
	); err != nil {
		return nil, err
	}

	rec.CurrentStage = Stage(stage)
	rec.Status = Status(status)
	if err := json.Unmarshal([]byte(refs), &rec.ArtifactRefs); err != nil {
		return nil, fmt.Errorf("%w: decode artifact refs: %v", ErrStoreCorrupt, err)
	}
	if rec.ArtifactRefs == nil {
		rec.ArtifactRefs = make(map[Stage]string)
	}
	if ts, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		rec.UpdatedAt = ts
	}
	return &rec, nil
}
