package domain

// JobStatus is the lifecycle state of a background job. Batch jobs move
// IDLE -> RUNNING -> DONE or ABORTED; single runs use FAILED instead of
// ABORTED when the run itself errors.
type JobStatus string

const (
	JobIdle    JobStatus = "IDLE"
	JobRunning JobStatus = "RUNNING"
	JobAborted JobStatus = "ABORTED"
	JobDone    JobStatus = "DONE"
	JobFailed  JobStatus = "FAILED"
)

// Terminal reports whether the status can no longer change
func (s JobStatus) Terminal() bool {
	return s == JobAborted || s == JobDone || s == JobFailed
}

// JobKind separates the two job slots the engine tracks
type JobKind string

const (
	JobKindSingle JobKind = "single"
	JobKindBatch  JobKind = "batch"
)
