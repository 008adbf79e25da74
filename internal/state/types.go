package state

import (
	"time"
)

// RunRecord is one install run as stored in the history.
type RunRecord struct {
	ID         string        `json:"id"` // run ID, also in the run log
	Timestamp  time.Time     `json:"timestamp"`
	Project    string        `json:"project"`
	Domain     string        `json:"domain"`
	PHPVersion string        `json:"phpVersion"`
	Method     string        `json:"method"`
	Branch     string        `json:"branch,omitempty"`
	Commit     string        `json:"commit,omitempty"` // short hash of cloned projects
	Status     RunStatus     `json:"status"`
	FailedStep string        `json:"failedStep,omitempty"`
	Error      string        `json:"error,omitempty"`
	Cert       string        `json:"certificate,omitempty"`
	AppURL     string        `json:"appUrl,omitempty"`
	User       string        `json:"user"`
	Host       string        `json:"host"`
	Duration   time.Duration `json:"duration"`
}

// RunStatus represents a run's outcome
type RunStatus string

const (
	StatusSuccess    RunStatus = "success"
	StatusRolledBack RunStatus = "rolled_back"
	StatusFailed     RunStatus = "failed" // failed before anything needed undoing
)

// RunHistory contains all recorded runs on a server
type RunHistory struct {
	Runs        []*RunRecord `json:"runs"`
	LastUpdated time.Time    `json:"lastUpdated"`
}

// HistoryOptions for filtering run history
type HistoryOptions struct {
	Limit   int       // Max number of runs to return
	Status  RunStatus // Filter by status
	Project string    // Filter by project
	Since   time.Time // Only runs after this time
}
