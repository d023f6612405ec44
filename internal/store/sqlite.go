package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/seantiz/compute/internal/model"

	_ "modernc.org/sqlite"
)

const createRunsTable = `
CREATE TABLE IF NOT EXISTS runs (
    id             TEXT PRIMARY KEY,
    workers        INTEGER NOT NULL,
    active_workers INTEGER NOT NULL,
    total          INTEGER NOT NULL,
    succeeded      INTEGER NOT NULL,
    failed         INTEGER NOT NULL,
    not_run        INTEGER NOT NULL,
    aborted        INTEGER NOT NULL,
    degraded       INTEGER NOT NULL,
    duration_ns    INTEGER NOT NULL,
    started_at     DATETIME NOT NULL,
    finished_at    DATETIME NOT NULL
)`

const createResultsTable = `
CREATE TABLE IF NOT EXISTS results (
    run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    task_id     INTEGER NOT NULL,
    kind        TEXT NOT NULL,
    status      TEXT NOT NULL,
    reason      TEXT NOT NULL,
    output      TEXT NOT NULL,
    worker_id   INTEGER NOT NULL,
    duration_ns INTEGER NOT NULL,
    started_at  DATETIME,
    finished_at DATETIME,
    PRIMARY KEY (run_id, task_id)
)`

const createFaultsTable = `
CREATE TABLE IF NOT EXISTS faults (
    run_id    TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    seq       INTEGER NOT NULL,
    worker_id INTEGER NOT NULL,
    task_id   INTEGER NOT NULL,
    reason    TEXT NOT NULL,
    PRIMARY KEY (run_id, seq)
)`

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared across queries.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	for name, stmt := range map[string]string{
		"runs":    createRunsTable,
		"results": createResultsTable,
		"faults":  createFaultsTable,
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("create %s table: %w", name, err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveReport stores a report with its results and faults in one transaction.
func (s *SQLiteStore) SaveReport(ctx context.Context, r *model.Report) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (
			id, workers, active_workers, total, succeeded, failed, not_run,
			aborted, degraded, duration_ns, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Workers, r.ActiveWorkers, r.Total, r.Succeeded, r.Failed, r.NotRun,
		r.Aborted, r.Degraded, int64(r.Duration), r.StartedAt.UTC(), r.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for _, res := range r.Results {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO results (
				run_id, task_id, kind, status, reason, output, worker_id,
				duration_ns, started_at, finished_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.RunID, res.TaskID, res.Kind, res.Status, res.Reason, res.Output, res.WorkerID,
			int64(res.Duration), utcPtr(res.StartedAt), utcPtr(res.FinishedAt),
		)
		if err != nil {
			return fmt.Errorf("insert result %d: %w", res.TaskID, err)
		}
	}

	for i, f := range r.Faults {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO faults (run_id, seq, worker_id, task_id, reason) VALUES (?, ?, ?, ?, ?)`,
			r.RunID, i, f.WorkerID, f.TaskID, f.Reason,
		)
		if err != nil {
			return fmt.Errorf("insert fault %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit report: %w", err)
	}
	return nil
}

// GetReport retrieves a report by run ID.
func (s *SQLiteStore) GetReport(ctx context.Context, runID string) (*model.Report, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	r := &model.Report{}
	var durationNS int64
	err = tx.QueryRowContext(ctx,
		`SELECT id, workers, active_workers, aborted, degraded, duration_ns, started_at, finished_at
		FROM runs WHERE id = ?`, runID,
	).Scan(
		&r.RunID, &r.Workers, &r.ActiveWorkers, &r.Aborted, &r.Degraded,
		&durationNS, &r.StartedAt, &r.FinishedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	r.Duration = time.Duration(durationNS)

	if r.Results, err = queryResults(ctx, tx, runID); err != nil {
		return nil, err
	}
	if r.Faults, err = queryFaults(ctx, tx, runID); err != nil {
		return nil, err
	}

	r.Tally()
	return r, nil
}

func queryResults(ctx context.Context, tx *sql.Tx, runID string) ([]model.Result, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT task_id, kind, status, reason, output, worker_id, duration_ns, started_at, finished_at
		FROM results WHERE run_id = ? ORDER BY task_id`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	results := []model.Result{}
	for rows.Next() {
		var res model.Result
		var durationNS int64
		if err := rows.Scan(
			&res.TaskID, &res.Kind, &res.Status, &res.Reason, &res.Output, &res.WorkerID,
			&durationNS, &res.StartedAt, &res.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		res.Duration = time.Duration(durationNS)
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}
	return results, nil
}

func queryFaults(ctx context.Context, tx *sql.Tx, runID string) ([]model.WorkerFault, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT worker_id, task_id, reason FROM faults WHERE run_id = ? ORDER BY seq`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list faults: %w", err)
	}
	defer rows.Close()

	var faults []model.WorkerFault
	for rows.Next() {
		var f model.WorkerFault
		if err := rows.Scan(&f.WorkerID, &f.TaskID, &f.Reason); err != nil {
			return nil, fmt.Errorf("scan fault: %w", err)
		}
		faults = append(faults, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate faults: %w", err)
	}
	return faults, nil
}

// ListRuns returns at most limit run summaries ordered by started_at DESC.
// A limit of zero or less returns every run.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]model.RunSummary, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, workers, total, succeeded, failed, not_run, aborted, duration_ns, started_at
		FROM runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []model.RunSummary
	for rows.Next() {
		var rs model.RunSummary
		var durationNS int64
		if err := rows.Scan(
			&rs.RunID, &rs.Workers, &rs.Total, &rs.Succeeded, &rs.Failed, &rs.NotRun,
			&rs.Aborted, &durationNS, &rs.StartedAt,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		rs.DurationMS = time.Duration(durationNS).Milliseconds()
		runs = append(runs, rs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
