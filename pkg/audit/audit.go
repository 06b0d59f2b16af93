// Package audit records executed and failed commands in a SQLite table so
// operators can review who dispatched what.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/armis/armis/pkg/command"
	"github.com/armis/armis/pkg/log"
	"github.com/armis/armis/pkg/types"

	_ "modernc.org/sqlite"
)

// DefaultLimit is the number of entries Recent returns when asked for none.
const DefaultLimit = 50

// Entry is one audited command.
type Entry struct {
	ID         int64     `json:"id"`
	Time       time.Time `json:"time"`
	Type       string    `json:"type"`
	UserID     string    `json:"userId,omitempty"`
	RequestID  string    `json:"requestId,omitempty"`
	Action     string    `json:"action,omitempty"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"durationMs"`
}

// Log is the audit table. All methods are safe for concurrent use.
type Log struct {
	db     *sql.DB
	logger log.Logger
}

// Open opens or creates the audit database at path. ":memory:" keeps it in
// memory.
func Open(path string, logger log.Logger) (*Log, error) {
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}
	// One connection keeps an in-memory database shared and avoids
	// SQLITE_BUSY between writers.
	db.SetMaxOpenConns(1)

	l := &Log{db: db, logger: logger.WithComponent("audit")}
	if err := l.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate audit database: %w", err)
	}
	return l, nil
}

// Close closes the database.
func (l *Log) Close() error {
	return l.db.Close()
}

func (l *Log) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS command_audit (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		ts          TEXT NOT NULL,
		type        TEXT NOT NULL,
		user_id     TEXT NOT NULL DEFAULT '',
		request_id  TEXT NOT NULL DEFAULT '',
		action      TEXT NOT NULL DEFAULT '',
		status      TEXT NOT NULL,
		error       TEXT NOT NULL DEFAULT '',
		duration_ms INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_command_audit_ts ON command_audit (ts);
	`
	_, err := l.db.Exec(schema)
	return err
}

// Record inserts e. A zero Time is set to now.
func (l *Log) Record(ctx context.Context, e Entry) error {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO command_audit (ts, type, user_id, request_id, action, status, error, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Time.UTC().Format(time.RFC3339Nano), e.Type, e.UserID, e.RequestID, e.Action, e.Status, e.Error, e.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("record audit entry: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (l *Log) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, ts, type, user_id, request_id, action, status, error, duration_ms
		 FROM command_audit ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var e Entry
		var ts string
		if err := rows.Scan(&e.ID, &ts, &e.Type, &e.UserID, &e.RequestID, &e.Action, &e.Status, &e.Error, &e.DurationMS); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Time, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse audit timestamp %q: %w", ts, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Prune deletes entries older than before and returns how many went.
func (l *Log) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := l.db.ExecContext(ctx,
		`DELETE FROM command_audit WHERE ts < ?`, before.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("prune audit entries: %w", err)
	}
	return res.RowsAffected()
}

// Attach records every executed and failed command dispatched through reg.
func (l *Log) Attach(reg *command.Registry) {
	record := func(ctx context.Context, ev command.Event) error {
		e := Entry{
			Time:       ev.Time,
			Type:       ev.Type,
			Status:     "ok",
			DurationMS: ev.Duration.Milliseconds(),
		}
		if ev.Context != nil {
			e.UserID = ev.Context.UserID
			e.RequestID = ev.Context.RequestID
			e.Action = ev.Context.Action
		}
		if ev.Err != nil {
			e.Status = string(types.KindOf(ev.Err))
			if e.Status == "" {
				e.Status = "error"
			}
			e.Error = ev.Err.Error()
		}
		// The request may already be cancelled when a failure is reported.
		return l.Record(context.WithoutCancel(ctx), e)
	}
	reg.AddEventListener(command.EventCommandExecuted, record)
	reg.AddEventListener(command.EventCommandFailed, record)
}
