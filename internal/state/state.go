package state

import (
	"database/sql"
	"fmt"
	"time"
)

const timeLayout = time.RFC3339Nano

// LoadState returns the persisted state of a digest. A digest that has never
// been committed yields an empty state with a nil LastRun.
func (db *DB) LoadState(digestID string) (*DigestState, error) {
	s := &DigestState{DigestID: digestID}

	var lastRun sql.NullString
	err := db.conn.QueryRow(
		"SELECT last_run FROM digest_state WHERE digest_id = ?", digestID,
	).Scan(&lastRun)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("reading state for %s: %w", digestID, err)
	}
	if lastRun.Valid && lastRun.String != "" {
		t, err := time.Parse(timeLayout, lastRun.String)
		if err != nil {
			return nil, fmt.Errorf("parsing last_run for %s: %w", digestID, err)
		}
		s.LastRun = &t
	}

	rows, err := db.conn.Query(
		"SELECT video_id FROM seen_videos WHERE digest_id = ? ORDER BY seq ASC", digestID,
	)
	if err != nil {
		return nil, fmt.Errorf("reading seen videos for %s: %w", digestID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		s.SeenIDs = append(s.SeenIDs, id)
	}
	return s, rows.Err()
}

// CommitState records a successful delivery: last_run becomes lastRun and
// newIDs are appended to the seen set, which is then trimmed to the SeenCap
// most recently added ids. Ids already present keep their original position.
func (db *DB) CommitState(digestID string, lastRun time.Time, newIDs []string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := upsertLastRun(tx, digestID, &lastRun); err != nil {
		return err
	}
	if err := appendSeen(tx, digestID, newIDs); err != nil {
		return err
	}
	if err := trimSeen(tx, digestID); err != nil {
		return err
	}
	return tx.Commit()
}

// ReplaceState overwrites the whole state of a digest. Used by import.
func (db *DB) ReplaceState(s DigestState) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM seen_videos WHERE digest_id = ?", s.DigestID); err != nil {
		return err
	}
	if err := upsertLastRun(tx, s.DigestID, s.LastRun); err != nil {
		return err
	}
	if err := appendSeen(tx, s.DigestID, s.SeenIDs); err != nil {
		return err
	}
	if err := trimSeen(tx, s.DigestID); err != nil {
		return err
	}
	return tx.Commit()
}

// ResetState forgets everything about a digest, so its next run is due and
// may report previously delivered videos again.
func (db *DB) ResetState(digestID string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM seen_videos WHERE digest_id = ?", digestID); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM digest_state WHERE digest_id = ?", digestID); err != nil {
		return err
	}
	return tx.Commit()
}

// ListStates returns the state of every digest that has one, ordered by id.
func (db *DB) ListStates() ([]DigestState, error) {
	rows, err := db.conn.Query(
		`SELECT digest_id FROM digest_state
		UNION SELECT DISTINCT digest_id FROM seen_videos
		ORDER BY digest_id`,
	)
	if err != nil {
		return nil, err
	}

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	states := make([]DigestState, 0, len(ids))
	for _, id := range ids {
		s, err := db.LoadState(id)
		if err != nil {
			return nil, err
		}
		states = append(states, *s)
	}
	return states, nil
}

func upsertLastRun(tx *sql.Tx, digestID string, lastRun *time.Time) error {
	var value any
	if lastRun != nil {
		value = lastRun.UTC().Format(timeLayout)
	}
	_, err := tx.Exec(
		`INSERT INTO digest_state (digest_id, last_run, updated_at)
		VALUES (?, ?, datetime('now'))
		ON CONFLICT(digest_id) DO UPDATE SET last_run = excluded.last_run, updated_at = excluded.updated_at`,
		digestID, value,
	)
	return err
}

func appendSeen(tx *sql.Tx, digestID string, ids []string) error {
	var next int64
	if err := tx.QueryRow(
		"SELECT COALESCE(MAX(seq), 0) FROM seen_videos WHERE digest_id = ?", digestID,
	).Scan(&next); err != nil {
		return err
	}

	stmt, err := tx.Prepare(
		"INSERT OR IGNORE INTO seen_videos (digest_id, video_id, seq) VALUES (?, ?, ?)",
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, id := range ids {
		if id == "" {
			continue
		}
		next++
		if _, err := stmt.Exec(digestID, id, next); err != nil {
			return err
		}
	}
	return nil
}

func trimSeen(tx *sql.Tx, digestID string) error {
	_, err := tx.Exec(
		`DELETE FROM seen_videos WHERE digest_id = ? AND seq NOT IN (
			SELECT seq FROM seen_videos WHERE digest_id = ? ORDER BY seq DESC LIMIT ?
		)`,
		digestID, digestID, SeenCap,
	)
	return err
}
