package state

import (
	"database/sql"
	"fmt"
)

type schemaStep struct {
	version    int
	name       string
	statements []string
}

// Steps are applied in order; append only.
var schemaSteps = []schemaStep{
	{
		version: 1,
		name:    "digest state and run log",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS digest_state (
				digest_id  TEXT PRIMARY KEY,
				last_run   TEXT,
				updated_at TEXT DEFAULT (datetime('now'))
			)`,
			`CREATE TABLE IF NOT EXISTS seen_videos (
				digest_id TEXT NOT NULL,
				video_id  TEXT NOT NULL,
				seq       INTEGER NOT NULL,
				PRIMARY KEY (digest_id, video_id)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_seen_videos_seq ON seen_videos(digest_id, seq)`,
			`CREATE TABLE IF NOT EXISTS digest_runs (
				id              TEXT PRIMARY KEY,
				digest_id       TEXT NOT NULL,
				started_at      TEXT NOT NULL,
				finished_at     TEXT NOT NULL,
				outcome         TEXT NOT NULL,
				selected_count  INTEGER DEFAULT 0,
				excluded_count  INTEGER DEFAULT 0,
				delivered_count INTEGER DEFAULT 0,
				failed_count    INTEGER DEFAULT 0,
				error           TEXT,
				subject         TEXT,
				html            TEXT
			)`,
			`CREATE INDEX IF NOT EXISTS idx_digest_runs_digest ON digest_runs(digest_id, started_at)`,
		},
	},
}

func latestVersion() int {
	if len(schemaSteps) == 0 {
		return 0
	}
	return schemaSteps[len(schemaSteps)-1].version
}

func schemaVersion(conn *sql.DB) (int, error) {
	var v int
	if err := conn.QueryRow("PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return v, nil
}

// migrate applies every step newer than PRAGMA user_version. Each step's
// statements run in one transaction; the version is bumped after commit,
// so a crash in between re-runs an idempotent step.
func migrate(conn *sql.DB) error {
	current, err := schemaVersion(conn)
	if err != nil {
		return err
	}

	for _, step := range schemaSteps {
		if step.version <= current {
			continue
		}
		if err := applyStep(conn, step); err != nil {
			return fmt.Errorf("schema v%d (%s): %w", step.version, step.name, err)
		}
		if _, err := conn.Exec(fmt.Sprintf("PRAGMA user_version = %d", step.version)); err != nil {
			return fmt.Errorf("setting schema version %d: %w", step.version, err)
		}
	}
	return nil
}

func applyStep(conn *sql.DB, step schemaStep) error {
	tx, err := conn.Begin()
	if err != nil {
		return err
	}
	for _, stmt := range step.statements {
		if _, err := tx.Exec(stmt); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}
