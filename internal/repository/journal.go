package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/video-insights/constants"
)

// StageRun is one journal row: a single stage execution within a run.
type StageRun struct {
	ID             string
	RunID          string
	Stage          string
	Status         constants.RunStatus
	StartedAt      time.Time
	FinishedAt     *time.Time
	Total          int
	Done           int
	Remaining      int
	ShortCircuited int
	Succeeded      int
	Failed         int
	Error          string
}

// Counts are the per-stage tallies recorded when a stage finishes.
type Counts struct {
	Total          int
	Done           int
	Remaining      int
	ShortCircuited int
	Succeeded      int
	Failed         int
}

type JournalRepository interface {
	Start(ctx context.Context, runID, stage string) (string, error)
	Finish(ctx context.Context, id string, status constants.RunStatus, counts Counts, runErr error) error
	Recent(ctx context.Context, limit int) ([]StageRun, error)
}

const schema = `CREATE TABLE IF NOT EXISTS stage_runs (
	id              TEXT PRIMARY KEY,
	run_id          TEXT NOT NULL,
	stage           TEXT NOT NULL,
	status          TEXT NOT NULL,
	started_at      TEXT NOT NULL,
	finished_at     TEXT,
	total           INTEGER NOT NULL DEFAULT 0,
	done            INTEGER NOT NULL DEFAULT 0,
	remaining       INTEGER NOT NULL DEFAULT 0,
	short_circuited INTEGER NOT NULL DEFAULT 0,
	succeeded       INTEGER NOT NULL DEFAULT 0,
	failed          INTEGER NOT NULL DEFAULT 0,
	error           TEXT NOT NULL DEFAULT ''
)`

type journalRepo struct {
	db  *DB
	log *slog.Logger
	now func() time.Time
}

// NewJournalRepository creates the stage_runs table if needed.
func NewJournalRepository(ctx context.Context, db *DB, log *slog.Logger) (JournalRepository, error) {
	if log == nil {
		log = slog.Default()
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	return &journalRepo{db: db, log: log, now: time.Now}, nil
}

func (r *journalRepo) Start(ctx context.Context, runID, stage string) (string, error) {
	id := uuid.NewString()
	_, err := r.db.ExecContext(ctx, r.db.Rebind(
		`INSERT INTO stage_runs (id, run_id, stage, status, started_at) VALUES (?, ?, ?, ?, ?)`),
		id, runID, stage, string(constants.RunStatusRunning), formatTime(r.now()),
	)
	if err != nil {
		r.log.Error("journal start failed", "run_id", runID, "stage", stage, "err", err)
		return "", err
	}
	r.log.Debug("journal stage started", "id", id, "run_id", runID, "stage", stage)
	return id, nil
}

func (r *journalRepo) Finish(ctx context.Context, id string, status constants.RunStatus, c Counts, runErr error) error {
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE stage_runs
		SET status = ?, finished_at = ?, total = ?, done = ?, remaining = ?,
		    short_circuited = ?, succeeded = ?, failed = ?, error = ?
		WHERE id = ?`),
		string(status), formatTime(r.now()), c.Total, c.Done, c.Remaining,
		c.ShortCircuited, c.Succeeded, c.Failed, msg, id,
	)
	if err != nil {
		r.log.Error("journal finish failed", "id", id, "err", err)
		return err
	}
	return nil
}

func (r *journalRepo) Recent(ctx context.Context, limit int) ([]StageRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, r.db.Rebind(`SELECT id, run_id, stage, status, started_at, finished_at,
		total, done, remaining, short_circuited, succeeded, failed, error
		FROM stage_runs ORDER BY started_at DESC LIMIT ?`), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StageRun
	for rows.Next() {
		var (
			run      StageRun
			status   string
			started  string
			finished sql.NullString
		)
		if err := rows.Scan(&run.ID, &run.RunID, &run.Stage, &status, &started, &finished,
			&run.Total, &run.Done, &run.Remaining, &run.ShortCircuited, &run.Succeeded, &run.Failed, &run.Error); err != nil {
			return nil, err
		}
		run.Status = constants.RunStatus(status)
		run.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		if finished.Valid && finished.String != "" {
			if t, err := time.Parse(time.RFC3339Nano, finished.String); err == nil {
				run.FinishedAt = &t
			}
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// fixed-width UTC so text ordering matches time ordering
func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z07:00")
}

type nopJournal struct{}

// NopJournal records nothing; used when the journal is disabled.
func NopJournal() JournalRepository { return nopJournal{} }

func (nopJournal) Start(context.Context, string, string) (string, error) { return "", nil }
func (nopJournal) Finish(context.Context, string, constants.RunStatus, Counts, error) error {
	return nil
}
func (nopJournal) Recent(context.Context, int) ([]StageRun, error) { return nil, nil }
