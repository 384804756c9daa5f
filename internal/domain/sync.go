package domain

import "time"

// PassState is a step of the synchronization state machine.
type PassState string

const (
	StateIdle        PassState = "idle"
	StateFetching    PassState = "fetching"
	StateNormalizing PassState = "normalizing"
	StateReconciling PassState = "reconciling"
	StateNotifying   PassState = "notifying"
	StateCleaning    PassState = "cleaning"
	StateFailed      PassState = "failed"
)

// SyncStats holds statistics about a sync pass.
type SyncStats struct {
	PartitionKey string
	SearchTerms  int
	Fetched      int
	FetchErrors  int
	Unique       int
	Blacklisted  int
	ArrivalsSent int
	UrgentSent   int
	NotifyErrors int
	Removed      int
	Skipped      bool
	Duration     time.Duration
}

// Status is the observable state of the background worker.
type Status struct {
	Running     bool          `json:"running"`
	State       PassState     `json:"state"`
	LastPassAt  time.Time     `json:"last_pass_at"`
	NextPassETA time.Time     `json:"next_pass_eta"`
	Interval    time.Duration `json:"interval"`
	LastError   string        `json:"last_error,omitempty"`
}
