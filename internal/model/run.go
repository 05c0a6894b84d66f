package model

import "time"

// RunStatus represents the state of a report run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is a single report run over one input source.
type Run struct {
	ID        string     `json:"id"`
	Input     string     `json:"input"`
	Mode      string     `json:"mode"`
	Status    RunStatus  `json:"status"`
	Result    *RunResult `json:"result,omitempty"`
	Error     string     `json:"error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// RunStats holds the counters a processor reports for one pass over the input.
type RunStats struct {
	TotalRows             int64 `json:"total_rows"`
	Batches               int64 `json:"batches"`
	PurchasesAttributed   int64 `json:"purchases_attributed"`
	PurchasesUnattributed int64 `json:"purchases_unattributed"`
	Visitors              int64 `json:"visitors"`
}

// RunResult holds the outcome of a completed run.
type RunResult struct {
	Stats        RunStats `json:"stats"`
	Keys         int      `json:"keys"`
	TotalRevenue float64  `json:"total_revenue"`
	Output       string   `json:"output"`
	Processor    string   `json:"processor"`
}
