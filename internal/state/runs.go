package state

import (
	"database/sql"
	"time"
)

// InsertRun stores the record of an attempted digest run.
func (db *DB) InsertRun(r Run) error {
	_, err := db.conn.Exec(
		`INSERT INTO digest_runs
		(id, digest_id, started_at, finished_at, outcome, selected_count, excluded_count,
		 delivered_count, failed_count, error, subject, html)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.DigestID, r.StartedAt.UTC().Format(timeLayout), r.FinishedAt.UTC().Format(timeLayout),
		string(r.Outcome), r.Selected, r.Excluded, r.Delivered, r.Failed,
		nullable(r.Error), nullable(r.Subject), nullable(r.HTML),
	)
	return err
}

// GetRun returns a single run by id, or nil if it does not exist.
func (db *DB) GetRun(id string) (*Run, error) {
	row := db.conn.QueryRow(
		`SELECT id, digest_id, started_at, finished_at, outcome, selected_count, excluded_count,
		delivered_count, failed_count, error, subject, html
		FROM digest_runs WHERE id = ?`, id,
	)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// GetRecentRuns returns the most recent runs across all digests, newest first.
// The archived HTML is not loaded.
func (db *DB) GetRecentRuns(limit int) ([]Run, error) {
	rows, err := db.conn.Query(
		`SELECT id, digest_id, started_at, finished_at, outcome, selected_count, excluded_count,
		delivered_count, failed_count, error, subject, NULL
		FROM digest_runs ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// GetStats returns aggregate database statistics.
func (db *DB) GetStats() (*Stats, error) {
	s := &Stats{}

	queries := []struct {
		sql  string
		dest *int
	}{
		{"SELECT COUNT(*) FROM digest_state", &s.Digests},
		{"SELECT COUNT(*) FROM seen_videos", &s.SeenVideos},
		{"SELECT COUNT(*) FROM digest_runs", &s.Runs},
		{"SELECT COUNT(*) FROM digest_runs WHERE outcome = 'delivered'", &s.DeliveredRuns},
	}

	for _, q := range queries {
		if err := db.conn.QueryRow(q.sql).Scan(q.dest); err != nil {
			return nil, err
		}
	}

	var last sql.NullString
	if err := db.conn.QueryRow(
		"SELECT MAX(finished_at) FROM digest_runs WHERE outcome = 'delivered'",
	).Scan(&last); err != nil {
		return nil, err
	}
	if last.Valid {
		if t, err := time.Parse(timeLayout, last.String); err == nil {
			s.LastDeliveryAt = &t
		}
	}

	return s, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var r Run
	var outcome, started, finished string
	var errText, subject, html sql.NullString
	if err := row.Scan(&r.ID, &r.DigestID, &started, &finished, &outcome,
		&r.Selected, &r.Excluded, &r.Delivered, &r.Failed, &errText, &subject, &html); err != nil {
		return nil, err
	}
	r.Outcome = Outcome(outcome)
	r.StartedAt, _ = time.Parse(timeLayout, started)
	r.FinishedAt, _ = time.Parse(timeLayout, finished)
	r.Error = errText.String
	r.Subject = subject.String
	r.HTML = html.String
	return &r, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
