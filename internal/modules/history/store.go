package history

import (
	"database/sql"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/crucible/internal/apperr"
)

// Store reads and writes candle series in the history database
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewStore creates a history store
func NewStore(db *sql.DB, log zerolog.Logger) *Store {
	return &Store{
		db:  db,
		log: log.With().Str("component", "history_store").Logger(),
	}
}

// GetCandles returns the candles for a series between from and to inclusive,
// ascending by time. An empty window is an error: replaying nothing would
// silently produce a flat result, so the caller gets DATA_UNAVAILABLE instead.
func (s *Store) GetCandles(symbol string, timeframe Timeframe, from, to time.Time) ([]Candle, error) {
	rows, err := s.db.Query(`
		SELECT time, open, high, low, close
		FROM candles
		WHERE symbol = ? AND timeframe = ? AND time >= ? AND time <= ?
		ORDER BY time ASC`,
		symbol, string(timeframe), from.Unix(), to.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candles []Candle
	for rows.Next() {
		var c Candle
		var ts int64
		if err := rows.Scan(&ts, &c.Open, &c.High, &c.Low, &c.Close); err != nil {
			return nil, err
		}
		c.Time = time.Unix(ts, 0).UTC()
		candles = append(candles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(candles) == 0 {
		return nil, apperr.DataUnavailable("no candles for %s %s in requested range", symbol, timeframe).
			WithContext("symbol", symbol).
			WithContext("timeframe", string(timeframe)).
			WithContext("from", from.UTC().Format(time.RFC3339)).
			WithContext("to", to.UTC().Format(time.RFC3339))
	}

	return candles, nil
}

// CountCandles returns the number of stored candles for a series
func (s *Store) CountCandles(symbol string, timeframe Timeframe) (int, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM candles WHERE symbol = ? AND timeframe = ?`,
		symbol, string(timeframe)).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// ListSymbols returns metadata for every known symbol, sorted by symbol
func (s *Store) ListSymbols() ([]SymbolInfo, error) {
	rows, err := s.db.Query(`
		SELECT symbol, description, pip_size, pip_value_per_lot, digits
		FROM symbols
		ORDER BY symbol ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var symbols []SymbolInfo
	for rows.Next() {
		var info SymbolInfo
		if err := rows.Scan(&info.Symbol, &info.Description, &info.PipSize, &info.PipValuePerLot, &info.Digits); err != nil {
			return nil, err
		}
		symbols = append(symbols, info)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return symbols, nil
}

// GetSymbol returns metadata for one symbol, or nil when unknown
func (s *Store) GetSymbol(symbol string) (*SymbolInfo, error) {
	var info SymbolInfo
	err := s.db.QueryRow(`
		SELECT symbol, description, pip_size, pip_value_per_lot, digits
		FROM symbols
		WHERE symbol = ?`, symbol).
		Scan(&info.Symbol, &info.Description, &info.PipSize, &info.PipValuePerLot, &info.Digits)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// Summary returns per-series coverage: candle counts and the covered range
func (s *Store) Summary() ([]SeriesSummary, error) {
	rows, err := s.db.Query(`
		SELECT symbol, timeframe, COUNT(*), MIN(time), MAX(time)
		FROM candles
		GROUP BY symbol, timeframe
		ORDER BY symbol ASC, timeframe ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []SeriesSummary
	for rows.Next() {
		var sm SeriesSummary
		var tf string
		var first, last int64
		if err := rows.Scan(&sm.Symbol, &tf, &sm.Candles, &first, &last); err != nil {
			return nil, err
		}
		sm.Timeframe = Timeframe(tf)
		sm.FirstTime = time.Unix(first, 0).UTC()
		sm.LastTime = time.Unix(last, 0).UTC()
		summaries = append(summaries, sm)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return summaries, nil
}

// UpsertSymbol inserts or replaces symbol metadata
func (s *Store) UpsertSymbol(info SymbolInfo) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO symbols (symbol, description, pip_size, pip_value_per_lot, digits)
		VALUES (?, ?, ?, ?, ?)`,
		info.Symbol, info.Description, info.PipSize, info.PipValuePerLot, info.Digits)
	return err
}

// EnsureSymbol creates a metadata row with built-in defaults when the symbol
// is not yet known. Existing rows are left untouched.
func (s *Store) EnsureSymbol(symbol string) error {
	info := DefaultSymbolInfo(symbol)
	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO symbols (symbol, description, pip_size, pip_value_per_lot, digits)
		VALUES (?, ?, ?, ?, ?)`,
		info.Symbol, info.Description, info.PipSize, info.PipValuePerLot, info.Digits)
	return err
}

// InsertCandles bulk-upserts candles for a series inside one transaction.
// Re-importing an overlapping file is safe: the (symbol, timeframe, time)
// key makes the operation idempotent.
func (s *Store) InsertCandles(symbol string, timeframe Timeframe, candles []Candle) error {
	if len(candles) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO candles (symbol, timeframe, time, open, high, low, close)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range candles {
		if _, err := stmt.Exec(symbol, string(timeframe), c.Time.Unix(), c.Open, c.High, c.Low, c.Close); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	s.log.Info().
		Str("symbol", symbol).
		Str("timeframe", string(timeframe)).
		Int("candles", len(candles)).
		Msg("Inserted candles")

	return nil
}
