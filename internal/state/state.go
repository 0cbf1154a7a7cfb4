package state

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/glebarez/sqlite"
)

// DB wraps the sqlite state database: the persisted search cache blob (kv
// table) and the download job history.
type DB struct {
	SQL  *sql.DB
	Path string
}

// Open creates or opens state.db under dataRoot and ensures the schema.
func Open(dataRoot string) (*DB, error) {
	if dataRoot == "" {
		return nil, errors.New("data root required")
	}
	if err := os.MkdirAll(dataRoot, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dataRoot, "state.db")
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout=5000&_pragma=journal_mode(WAL)&_fk=1", path)
	sqldb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db := &DB{SQL: sqldb, Path: path}
	if err := db.InitSchema(); err != nil {
		return nil, err
	}
	return db, nil
}

// OpenMemory opens an in-memory database for tests.
func OpenMemory() (*DB, error) {
	sqldb, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, err
	}
	db := &DB{SQL: sqldb}
	if err := db.InitSchema(); err != nil {
		return nil, err
	}
	return db, nil
}

// InitSchema creates tables if missing.
func (db *DB) InitSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS job_history (
			id TEXT PRIMARY KEY,
			repo_id TEXT NOT NULL,
			filename TEXT NOT NULL,
			status TEXT NOT NULL,
			bytes_done INTEGER DEFAULT 0,
			bytes_total INTEGER DEFAULT 0,
			dest TEXT,
			last_error TEXT,
			finished_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_job_history_repo ON job_history(repo_id, filename);`,
		`CREATE INDEX IF NOT EXISTS idx_job_history_finished ON job_history(finished_at);`,
	}
	for _, s := range stmts {
		if _, err := db.SQL.Exec(s); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func (db *DB) Close() error { return db.SQL.Close() }

// Get implements the string KV read used by the search cache.
func (db *DB) Get(key string) (string, bool, error) {
	var v string
	err := db.SQL.QueryRow(`SELECT value FROM kv WHERE key=?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// Set implements the string KV write used by the search cache.
func (db *DB) Set(key, value string) error {
	_, err := db.SQL.Exec(`INSERT INTO kv(key, value, updated_at) VALUES(?,?,?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		key, value, time.Now().Unix())
	return err
}

// JobRow is one terminal download recorded in history. History rows are
// immutable once written.
type JobRow struct {
	ID         string
	RepoID     string
	Filename   string
	Status     string
	BytesDone  int64
	BytesTotal int64
	Dest       string
	LastError  string
	FinishedAt int64
}

// InsertJobHistory records a terminal job. Re-inserting the same id is a
// no-op so duplicate terminal events stay idempotent.
func (db *DB) InsertJobHistory(row JobRow) error {
	if row.FinishedAt == 0 {
		row.FinishedAt = time.Now().Unix()
	}
	_, err := db.SQL.Exec(`INSERT INTO job_history(id, repo_id, filename, status, bytes_done, bytes_total, dest, last_error, finished_at)
		VALUES(?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO NOTHING`,
		row.ID, row.RepoID, row.Filename, row.Status, row.BytesDone, row.BytesTotal, row.Dest, row.LastError, row.FinishedAt)
	return err
}

// ListJobHistory returns history rows, most recently finished first.
func (db *DB) ListJobHistory(limit int) ([]JobRow, error) {
	q := `SELECT id, repo_id, filename, status,
		COALESCE(bytes_done, 0), COALESCE(bytes_total, 0),
		COALESCE(dest, ''), COALESCE(last_error, ''), finished_at
		FROM job_history ORDER BY finished_at DESC`
	var args []any
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := db.SQL.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []JobRow
	for rows.Next() {
		var r JobRow
		if err := rows.Scan(&r.ID, &r.RepoID, &r.Filename, &r.Status, &r.BytesDone, &r.BytesTotal, &r.Dest, &r.LastError, &r.FinishedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// HasJobHistory reports whether a history row exists for repo_id+filename.
// Used to clear optimistic pending markers.
func (db *DB) HasJobHistory(repoID, filename string) (bool, error) {
	var n int
	err := db.SQL.QueryRow(`SELECT COUNT(1) FROM job_history WHERE repo_id=? AND filename=?`, repoID, filename).Scan(&n)
	return n > 0, err
}
