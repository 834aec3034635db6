package state

import "time"

// SeenCap bounds the number of delivered video ids remembered per digest.
const SeenCap = 500

// DigestState is what survives between runs of one digest.
type DigestState struct {
	DigestID string
	LastRun  *time.Time
	SeenIDs  []string // oldest first
}

// SeenSet returns SeenIDs as a membership set.
func (s *DigestState) SeenSet() map[string]struct{} {
	set := make(map[string]struct{}, len(s.SeenIDs))
	for _, id := range s.SeenIDs {
		set[id] = struct{}{}
	}
	return set
}

// Outcome classifies how a digest run ended.
type Outcome string

const (
	OutcomeDelivered      Outcome = "delivered"
	OutcomeNoItems        Outcome = "no_items"
	OutcomeDeliveryFailed Outcome = "delivery_failed"
	OutcomeSkipped        Outcome = "skipped"
	OutcomeError          Outcome = "error"
	OutcomeDryRun         Outcome = "dry_run"
)

// Run is the record of one attempted digest run.
type Run struct {
	ID         string
	DigestID   string
	StartedAt  time.Time
	FinishedAt time.Time
	Outcome    Outcome
	Selected   int
	Excluded   int
	Delivered  int
	Failed     int
	Error      string
	Subject    string
	HTML       string
}

// Stats contains aggregate database statistics.
type Stats struct {
	Digests        int
	SeenVideos     int
	Runs           int
	DeliveredRuns  int
	LastDeliveryAt *time.Time
}
