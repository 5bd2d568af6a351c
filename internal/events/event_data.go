package events

import "time"

// JobProgressInfo contains progress information for a running job
type JobProgressInfo struct {
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Message string `json:"message,omitempty"`

	// Phase identifies the current high-level operation (e.g. "loading_data",
	// "replaying", "batch_3")
	Phase string `json:"phase,omitempty"`

	// Details contains arbitrary key-value metrics for the current phase.
	// Common keys: batch_index, total_batches, completed_combinations,
	// candle_index, best_net_profit.
	Details map[string]interface{} `json:"details,omitempty"`
}

// JobStatusData is the payload for job lifecycle events
type JobStatusData struct {
	JobID     string           `json:"job_id"`
	JobKind   string           `json:"job_kind"` // "single" or "batch"
	Status    string           `json:"status"`   // "started", "progress", "completed", "failed", "aborted"
	Progress  *JobProgressInfo `json:"progress,omitempty"`
	Error     string           `json:"error,omitempty"`
	Duration  float64          `json:"duration_seconds,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// HistoryImportedData is the payload for HistoryImported events
type HistoryImportedData struct {
	Symbol    string `json:"symbol"`
	Timeframe string `json:"timeframe"`
	Imported  int    `json:"imported"`
}
