package reliability

import (
	"archive/tar"
	"compress/gzip"
	"database/sql"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/crucible/internal/database"
	testingpkg "github.com/aristath/crucible/internal/testing"
)

func TestArchiveService_SnapshotDatabase(t *testing.T) {
	resultsDB, cleanup := testingpkg.NewTestDB(t, "results")
	defer cleanup()

	_, err := resultsDB.Conn().Exec(
		`INSERT INTO job_records (id, kind, status, symbol, strategies, timeframe, created_at, finished_at)
		 VALUES ('snap-1', 'batch', 'DONE', 'XAUUSD', 'smc', 'H1', 1704153600, 1704157200)`,
	)
	require.NoError(t, err)

	service := NewArchiveService(nil, map[string]*database.DB{
		"results": resultsDB,
	}, t.TempDir(), zerolog.Nop())

	t.Run("produces a verified copy with the data", func(t *testing.T) {
		snapshotPath := filepath.Join(t.TempDir(), "results.db")
		require.NoError(t, service.snapshotDatabase("results", snapshotPath))

		snapshot, err := sql.Open("sqlite", snapshotPath)
		require.NoError(t, err)
		defer snapshot.Close()

		var count int
		require.NoError(t, snapshot.QueryRow("SELECT COUNT(*) FROM job_records").Scan(&count))
		assert.Equal(t, 1, count)
	})

	t.Run("rejects unknown database names", func(t *testing.T) {
		err := service.snapshotDatabase("ledger", filepath.Join(t.TempDir(), "ledger.db"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown database")
	})
}

func TestVerifySnapshot_DetectsCorruption(t *testing.T) {
	corruptPath := filepath.Join(t.TempDir(), "corrupt.db")
	require.NoError(t, os.WriteFile(corruptPath, []byte("not a sqlite file"), 0644))

	assert.Error(t, verifySnapshot(corruptPath))
}

func TestFileChecksum(t *testing.T) {
	dir := t.TempDir()

	pathA := filepath.Join(dir, "a.db")
	pathB := filepath.Join(dir, "b.db")
	require.NoError(t, os.WriteFile(pathA, []byte("candle data"), 0644))
	require.NoError(t, os.WriteFile(pathB, []byte("other data"), 0644))

	sumA, err := fileChecksum(pathA)
	require.NoError(t, err)
	assert.Contains(t, sumA, "sha256:")

	// Same content hashes identically, different content does not
	sumAgain, err := fileChecksum(pathA)
	require.NoError(t, err)
	assert.Equal(t, sumA, sumAgain)

	sumB, err := fileChecksum(pathB)
	require.NoError(t, err)
	assert.NotEqual(t, sumA, sumB)
}

func TestCreateArchive_RoundTrip(t *testing.T) {
	stagingDir := t.TempDir()

	contents := map[string]string{
		"history.db": "history snapshot bytes",
		"results.db": "results snapshot bytes",
	}
	for name, body := range contents {
		require.NoError(t, os.WriteFile(filepath.Join(stagingDir, name), []byte(body), 0644))
	}

	archivePath := filepath.Join(t.TempDir(), "bundle.tar.gz")
	require.NoError(t, createArchive(archivePath, stagingDir, []string{"history.db", "results.db"}))

	// Unpack and compare entry by entry
	archiveFile, err := os.Open(archivePath)
	require.NoError(t, err)
	defer archiveFile.Close()

	gzipReader, err := gzip.NewReader(archiveFile)
	require.NoError(t, err)
	defer gzipReader.Close()

	tarReader := tar.NewReader(gzipReader)
	found := map[string]string{}
	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)

		body, err := io.ReadAll(tarReader)
		require.NoError(t, err)
		found[header.Name] = string(body)
	}

	assert.Equal(t, contents, found)
}

func TestWriteMetadata_RoundTrip(t *testing.T) {
	metadataPath := filepath.Join(t.TempDir(), "archive-metadata.json")

	written := ArchiveMetadata{
		Timestamp: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		Version:   archiveFormatVersion,
		Databases: []DatabaseSnapshot{
			{Name: "results", Filename: "results.db", SizeBytes: 4096, Checksum: "sha256:abc"},
		},
	}
	require.NoError(t, writeMetadata(metadataPath, written))

	body, err := os.ReadFile(metadataPath)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"version": "`+archiveFormatVersion+`"`)
	assert.Contains(t, string(body), `"sha256:abc"`)
}
