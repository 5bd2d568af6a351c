package jobs

import (
	"database/sql"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/crucible/internal/domain"
	"github.com/aristath/crucible/internal/modules/backtest"
	"github.com/aristath/crucible/internal/modules/optimization"
)

// Record summarizes one finished job. The snapshot holds the msgpack-encoded
// result payload: a run result for single jobs, the rankings for batches.
type Record struct {
	ID            string           `json:"id"`
	Kind          domain.JobKind   `json:"kind"`
	Status        domain.JobStatus `json:"status"`
	Symbol        string           `json:"symbol"`
	Strategies    []string         `json:"strategies"`
	Timeframe     string           `json:"timeframe"`
	TotalRuns     int              `json:"total_runs"`
	CompletedRuns int              `json:"completed_runs"`
	ErrorCount    int              `json:"error_count"`
	ExecutionMS   int64            `json:"execution_ms"`
	Snapshot      []byte           `json:"-"`
	CreatedAt     time.Time        `json:"created_at"`
	FinishedAt    time.Time        `json:"finished_at"`
}

// RecordStore persists finished jobs in the results database
type RecordStore struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRecordStore creates a record store
func NewRecordStore(db *sql.DB, log zerolog.Logger) *RecordStore {
	return &RecordStore{
		db:  db,
		log: log.With().Str("component", "job_records").Logger(),
	}
}

// Insert writes one finished job row. Resubmitting the same ID replaces it.
func (s *RecordStore) Insert(rec *Record) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO job_records
			(id, kind, status, symbol, strategies, timeframe,
			 total_runs, completed_runs, error_count, execution_ms,
			 snapshot, created_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, string(rec.Kind), string(rec.Status), rec.Symbol,
		strings.Join(rec.Strategies, ","), rec.Timeframe,
		rec.TotalRuns, rec.CompletedRuns, rec.ErrorCount, rec.ExecutionMS,
		rec.Snapshot, rec.CreatedAt.Unix(), rec.FinishedAt.Unix())
	if err != nil {
		return err
	}

	s.log.Debug().
		Str("job_id", rec.ID).
		Str("kind", string(rec.Kind)).
		Str("status", string(rec.Status)).
		Msg("Job record written")
	return nil
}

// Recent returns up to limit finished jobs, newest first, without snapshots
func (s *RecordStore) Recent(limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`
		SELECT id, kind, status, symbol, strategies, timeframe,
		       total_runs, completed_runs, error_count, execution_ms,
		       created_at, finished_at
		FROM job_records
		ORDER BY finished_at DESC, id
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows, false)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// Get returns one record with its snapshot, or nil when the ID is unknown
func (s *RecordStore) Get(id string) (*Record, error) {
	row := s.db.QueryRow(`
		SELECT id, kind, status, symbol, strategies, timeframe,
		       total_runs, completed_runs, error_count, execution_ms,
		       snapshot, created_at, finished_at
		FROM job_records
		WHERE id = ?`, id)

	rec, err := scanRecord(row, true)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Prune deletes records finished before the cutoff and returns the count
func (s *RecordStore) Prune(olderThan time.Time) (int64, error) {
	result, err := s.db.Exec(`DELETE FROM job_records WHERE finished_at < ?`, olderThan.Unix())
	if err != nil {
		return 0, err
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		s.log.Info().Int64("deleted", deleted).Time("older_than", olderThan).Msg("Pruned job records")
	}
	return deleted, nil
}

// Count returns the number of stored records
func (s *RecordStore) Count() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM job_records`).Scan(&count)
	return count, err
}

// scanner covers both sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner, withSnapshot bool) (*Record, error) {
	var (
		rec        Record
		kind       string
		status     string
		strategies string
		createdAt  int64
		finishedAt int64
	)

	var err error
	if withSnapshot {
		err = row.Scan(&rec.ID, &kind, &status, &rec.Symbol, &strategies, &rec.Timeframe,
			&rec.TotalRuns, &rec.CompletedRuns, &rec.ErrorCount, &rec.ExecutionMS,
			&rec.Snapshot, &createdAt, &finishedAt)
	} else {
		err = row.Scan(&rec.ID, &kind, &status, &rec.Symbol, &strategies, &rec.Timeframe,
			&rec.TotalRuns, &rec.CompletedRuns, &rec.ErrorCount, &rec.ExecutionMS,
			&createdAt, &finishedAt)
	}
	if err != nil {
		return nil, err
	}

	rec.Kind = domain.JobKind(kind)
	rec.Status = domain.JobStatus(status)
	if strategies != "" {
		rec.Strategies = strings.Split(strategies, ",")
	}
	rec.CreatedAt = time.Unix(createdAt, 0).UTC()
	rec.FinishedAt = time.Unix(finishedAt, 0).UTC()
	return &rec, nil
}

// EncodeSnapshot packs a result payload for storage
func EncodeSnapshot(v interface{}) ([]byte, error) {
	return msgpack.Marshal(v)
}

// DecodeSingleSnapshot unpacks a single-run record snapshot
func DecodeSingleSnapshot(data []byte) (*backtest.RunResult, error) {
	var result backtest.RunResult
	if err := msgpack.Unmarshal(data, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DecodeBatchSnapshot unpacks a batch record snapshot
func DecodeBatchSnapshot(data []byte) (*optimization.Results, error) {
	var results optimization.Results
	if err := msgpack.Unmarshal(data, &results); err != nil {
		return nil, err
	}
	return &results, nil
}
