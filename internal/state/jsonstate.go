package state

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"
)

// jsonEntry is the portable on-disk form of one digest's state:
// {"<digest id>": {"last_run": "<iso8601>", "seen_ids": ["..."]}}.
type jsonEntry struct {
	LastRun *string  `json:"last_run"`
	SeenIDs []string `json:"seen_ids"`
}

// ExportJSON writes every digest's state as an indented JSON document.
func (db *DB) ExportJSON(w io.Writer) error {
	states, err := db.ListStates()
	if err != nil {
		return err
	}

	doc := make(map[string]jsonEntry, len(states))
	for _, s := range states {
		e := jsonEntry{SeenIDs: s.SeenIDs}
		if e.SeenIDs == nil {
			e.SeenIDs = []string{}
		}
		if s.LastRun != nil {
			v := s.LastRun.UTC().Format(time.RFC3339)
			e.LastRun = &v
		}
		doc[s.DigestID] = e
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// ImportJSON replaces the state of every digest named in the document.
// Digests absent from the document are left alone. It returns the number
// of digests imported.
func (db *DB) ImportJSON(r io.Reader) (int, error) {
	var doc map[string]jsonEntry
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return 0, fmt.Errorf("decoding state document: %w", err)
	}

	ids := make([]string, 0, len(doc))
	for id := range doc {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		e := doc[id]
		s := DigestState{DigestID: id, SeenIDs: e.SeenIDs}
		if len(s.SeenIDs) > SeenCap {
			s.SeenIDs = s.SeenIDs[len(s.SeenIDs)-SeenCap:]
		}
		if e.LastRun != nil && *e.LastRun != "" {
			t, err := parseTimestamp(*e.LastRun)
			if err != nil {
				return 0, fmt.Errorf("digest %s: %w", id, err)
			}
			s.LastRun = &t
		}
		if err := db.ReplaceState(s); err != nil {
			return 0, fmt.Errorf("importing digest %s: %w", id, err)
		}
	}
	return len(ids), nil
}

// Timestamps without a zone are taken as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
