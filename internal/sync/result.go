package sync

// Phase names the pipeline stage a record was skipped in.
type Phase string

const (
	PhaseDetailSync Phase = "detail_sync"
	PhaseAssemble   Phase = "assemble"
)

// SkipReason records one project left out of a run. Skips never abort
// the run; the skipped project stays stale and is retried next run.
type SkipReason struct {
	ProjectID int
	Phase     Phase
	Reason    string
	Err       error
}

// Result summarizes one run. The collection, summary, and state
// artifacts it reports on were all derived from the same listing
// snapshot.
type Result struct {
	RunID          string
	Candidates     int
	Stale          int
	Synced         int
	Features       int
	SummaryEntries int
	Skips          []SkipReason
	ShortCircuited bool
	TilesWritten   bool
}
