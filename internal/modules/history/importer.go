package history

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/crucible/internal/apperr"
	"github.com/aristath/crucible/internal/events"
)

// Importer loads candle CSV files from the data directory into the store
type Importer struct {
	store  *Store
	bus    *events.Bus
	csvDir string
	log    zerolog.Logger
}

// NewImporter creates a CSV importer reading from csvDir
func NewImporter(store *Store, bus *events.Bus, csvDir string, log zerolog.Logger) *Importer {
	return &Importer{
		store:  store,
		bus:    bus,
		csvDir: csvDir,
		log:    log.With().Str("component", "history_importer").Logger(),
	}
}

// Import parses one CSV file and upserts its candles under the given series.
// Expected columns are time,open,high,low,close; a header row is detected and
// skipped, extra trailing columns are ignored. The filename is resolved
// relative to the CSV directory and must not escape it.
func (i *Importer) Import(symbol string, timeframe Timeframe, filename string) (int, error) {
	if filename == "" || strings.Contains(filename, "..") || strings.ContainsAny(filename, "/\\") {
		return 0, apperr.Configuration("invalid import filename").WithContext("filename", filename)
	}

	path := filepath.Join(i.csvDir, filename)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, apperr.DataUnavailable("import file not found").WithContext("filename", filename)
		}
		return 0, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return 0, apperr.Configuration("malformed CSV: %v", err).WithContext("filename", filename)
	}

	candles := make([]Candle, 0, len(records))
	for idx, record := range records {
		if len(record) < 5 {
			return 0, apperr.Configuration("row %d has %d columns, need at least 5", idx+1, len(record)).
				WithContext("filename", filename)
		}

		ts, err := parseCandleTime(strings.TrimSpace(record[0]))
		if err != nil {
			if idx == 0 {
				// Header row
				continue
			}
			return 0, apperr.Configuration("row %d has unparseable time %q", idx+1, record[0]).
				WithContext("filename", filename)
		}

		c := Candle{Time: ts}
		for fi, dst := range []*float64{&c.Open, &c.High, &c.Low, &c.Close} {
			v, err := strconv.ParseFloat(strings.TrimSpace(record[fi+1]), 64)
			if err != nil {
				return 0, apperr.Configuration("row %d has unparseable price %q", idx+1, record[fi+1]).
					WithContext("filename", filename)
			}
			*dst = v
		}
		candles = append(candles, c)
	}

	if len(candles) == 0 {
		return 0, apperr.DataUnavailable("no candle rows in file").WithContext("filename", filename)
	}

	if err := i.store.EnsureSymbol(symbol); err != nil {
		return 0, err
	}
	if err := i.store.InsertCandles(symbol, timeframe, candles); err != nil {
		return 0, err
	}

	i.log.Info().
		Str("symbol", symbol).
		Str("timeframe", string(timeframe)).
		Str("file", filename).
		Int("imported", len(candles)).
		Msg("Imported candle CSV")

	if i.bus != nil {
		i.bus.Emit(events.HistoryImported, "history", events.HistoryImportedData{
			Symbol:    symbol,
			Timeframe: string(timeframe),
			Imported:  len(candles),
		})
	}

	return len(candles), nil
}

// parseCandleTime accepts unix seconds or a small set of datetime layouts
func parseCandleTime(s string) (time.Time, error) {
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, strconv.ErrSyntax
}
