package archive

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/hdd-momentum-service/internal/domain"
)

var testNow = time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustKey(t *testing.T, s string) domain.Key {
	t.Helper()
	k, err := domain.ParseKey(s)
	require.NoError(t, err)
	return k
}

func seriesOf(v float64) []float64 {
	s := make([]float64, domain.Horizon)
	for i := range s {
		s[i] = v
	}
	return s
}

func testRecord(t *testing.T, key string, v float64) Record {
	t.Helper()
	return Record{
		SchemaVersion:      CurrentSchemaVersion,
		ID:                 "rec-" + key,
		Key:                mustKey(t, key),
		CapturedAt:         testNow,
		WeightTableVersion: "test",
		Baseline:           domain.DefaultBaseline,
		Horizon:            domain.Horizon,
		Series:             map[string][]float64{"a": seriesOf(v)},
	}
}

// backends runs each test against both storage implementations.
func backends(t *testing.T) map[string]func(t *testing.T) Archive {
	t.Helper()
	return map[string]func(t *testing.T) Archive{
		"file": func(t *testing.T) Archive {
			return NewFileArchive(filepath.Join(t.TempDir(), "archive.json"), clockwork.NewFakeClockAt(testNow), discardLogger())
		},
		"file-gzip": func(t *testing.T) Archive {
			return NewFileArchive(filepath.Join(t.TempDir(), "archive.json.gz"), clockwork.NewFakeClockAt(testNow), discardLogger())
		},
		"sqlite": func(t *testing.T) Archive {
			a := NewSQLiteArchive(context.Background(), filepath.Join(t.TempDir(), "archive.db"), clockwork.NewFakeClockAt(testNow), discardLogger())
			t.Cleanup(func() { _ = a.Close() })
			return a
		},
	}
}

func TestArchive_PutGetRoundTrip(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			a := open(t)

			rec := testRecord(t, "2024-01-10/00z", 7.5)
			rec.Missing = []string{"b"}
			require.NoError(t, a.Put(ctx, rec))

			got, ok, err := a.Get(ctx, rec.Key)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, rec.Key, got.Key)
			assert.Equal(t, rec.Series, got.Series)
			assert.Equal(t, []string{"b"}, got.Missing)
			assert.Equal(t, "test", got.WeightTableVersion)
			assert.True(t, rec.CapturedAt.Equal(got.CapturedAt))

			assert.Equal(t, 1, a.Status().Records)
			assert.False(t, a.Status().Corrupt)
		})
	}
}

func TestArchive_PutOverwrites(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			a := open(t)

			require.NoError(t, a.Put(ctx, testRecord(t, "2024-01-10/00z", 1)))
			require.NoError(t, a.Put(ctx, testRecord(t, "2024-01-10/00z", 2)))

			got, ok, err := a.Get(ctx, mustKey(t, "2024-01-10/00z"))
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, seriesOf(2), got.Series["a"])
			assert.Equal(t, 1, a.Status().Records)
		})
	}
}

func TestArchive_GetMissing(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := open(t).Get(context.Background(), mustKey(t, "2024-01-10/00z"))
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestArchive_LatestBefore(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			a := open(t)

			_, ok, err := a.LatestBefore(ctx, mustKey(t, "2024-01-10/12z"))
			require.NoError(t, err)
			assert.False(t, ok, "empty archive has no reference")

			for _, k := range []string{"2024-01-08/12z", "2024-01-10/00z", "2024-01-09/00z", "2024-01-11/00z"} {
				require.NoError(t, a.Put(ctx, testRecord(t, k, 1)))
			}

			tests := []struct {
				query    string
				expected string
				found    bool
			}{
				{"2024-01-10/12z", "2024-01-10/00z", true},
				{"2024-01-10/00z", "2024-01-09/00z", true},
				{"2024-01-09/12z", "2024-01-09/00z", true},
				{"2024-01-08/12z", "", false},
				{"2024-02-01/00z", "2024-01-11/00z", true},
			}
			for _, tt := range tests {
				got, ok, err := a.LatestBefore(ctx, mustKey(t, tt.query))
				require.NoError(t, err)
				require.Equal(t, tt.found, ok, "query %s", tt.query)
				if tt.found {
					assert.Equal(t, tt.expected, got.Key.String(), "query %s", tt.query)
				}
			}
		})
	}
}

func TestFileArchive_SchemaEvolutionDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.json")
	legacy := `{
  "version": 1,
  "records": {
    "2024-01-09/12z": {
      "key": {"date": "2024-01-09", "cycle": "12z"},
      "series": {"a": [1,1,1,1,1,1,1,1,1,1,1,1,1,1]}
    },
    "2024-01-09/00z": {
      "series": {"a": [2,2,2,2,2,2,2,2,2,2,2,2,2,2]}
    }
  }
}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o600))

	a := NewFileArchive(path, clockwork.NewFakeClockAt(testNow), discardLogger())
	ctx := context.Background()

	got, ok, err := a.Get(ctx, mustKey(t, "2024-01-09/12z"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, got.SchemaVersion)
	assert.Equal(t, "legacy", got.WeightTableVersion)
	assert.InDelta(t, 65.0, got.Baseline, 1e-9)
	assert.Equal(t, 14, got.Horizon)

	keyless, ok, err := a.Get(ctx, mustKey(t, "2024-01-09/00z"))
	require.NoError(t, err)
	require.True(t, ok, "key is recovered from the map entry")
	assert.Equal(t, seriesOf(2), keyless.Series["a"])
}

func TestFileArchive_CorruptFileDegradesToEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "archive.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	clock := clockwork.NewFakeClockAt(testNow)
	a := NewFileArchive(path, clock, discardLogger())

	status := a.Status()
	assert.True(t, status.Corrupt)
	assert.NotEmpty(t, status.Detail)

	ctx := context.Background()
	_, ok, err := a.LatestBefore(ctx, mustKey(t, "2024-01-10/12z"))
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, a.Put(ctx, testRecord(t, "2024-01-10/00z", 3)))
	assert.False(t, a.Status().Corrupt)

	got, ok, err := a.Get(ctx, mustKey(t, "2024-01-10/00z"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, seriesOf(3), got.Series["a"])

	moved, err := filepath.Glob(filepath.Join(dir, "archive.json.corrupt-*"))
	require.NoError(t, err)
	assert.Len(t, moved, 1, "corrupt file is kept aside")
}

func TestSQLiteArchive_CorruptDatabaseRecoversOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "archive.db")
	require.NoError(t, os.WriteFile(path, []byte("this is not a sqlite database, just junk bytes"), 0o600))

	ctx := context.Background()
	a := NewSQLiteArchive(ctx, path, clockwork.NewFakeClockAt(testNow), discardLogger())
	t.Cleanup(func() { _ = a.Close() })
	require.True(t, a.Status().Corrupt)

	_, ok, err := a.LatestBefore(ctx, mustKey(t, "2024-01-10/12z"))
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, a.Put(ctx, testRecord(t, "2024-01-10/00z", 3)))
	require.NoError(t, a.Put(ctx, testRecord(t, "2024-01-10/12z", 4)))
	assert.False(t, a.Status().Corrupt)
	assert.Equal(t, 2, a.Status().Records)

	got, ok, err := a.Get(ctx, mustKey(t, "2024-01-10/00z"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, seriesOf(3), got.Series["a"])

	moved, err := filepath.Glob(filepath.Join(dir, "archive.db.corrupt-*"))
	require.NoError(t, err)
	assert.Len(t, moved, 1, "corrupt database is kept aside")
}

func TestSQLiteArchive_LatestBeforeSkipsUnreadableRow(t *testing.T) {
	ctx := context.Background()
	a := NewSQLiteArchive(ctx, filepath.Join(t.TempDir(), "archive.db"), clockwork.NewFakeClockAt(testNow), discardLogger())
	t.Cleanup(func() { _ = a.Close() })

	require.NoError(t, a.Put(ctx, testRecord(t, "2024-01-09/12z", 2)))
	require.NoError(t, a.Put(ctx, testRecord(t, "2024-01-10/00z", 3)))
	_, err := a.db.ExecContext(ctx, `UPDATE archive_records SET payload = '{broken' WHERE key = ?`, "2024-01-10/00z")
	require.NoError(t, err)

	got, ok, err := a.LatestBefore(ctx, mustKey(t, "2024-01-10/12z"))
	require.NoError(t, err)
	require.True(t, ok, "older readable row is used")
	assert.Equal(t, mustKey(t, "2024-01-09/12z"), got.Key)
}

func TestSQLiteArchive_ConcurrentPutAndStatus(t *testing.T) {
	ctx := context.Background()
	a := NewSQLiteArchive(ctx, filepath.Join(t.TempDir(), "archive.db"), clockwork.NewFakeClockAt(testNow), discardLogger())
	t.Cleanup(func() { _ = a.Close() })

	var recs []Record
	for i, k := range []string{"2024-01-08/00z", "2024-01-08/12z", "2024-01-09/00z", "2024-01-09/12z"} {
		recs = append(recs, testRecord(t, k, float64(i)))
	}

	var wg sync.WaitGroup
	for _, rec := range recs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, a.Put(ctx, rec))
			_ = a.Status()
		}()
	}
	wg.Wait()

	assert.Equal(t, len(recs), a.Status().Records)
}

func TestFileArchive_GzipOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.json.gz")
	a := NewFileArchive(path, clockwork.NewFakeClockAt(testNow), discardLogger())
	require.NoError(t, a.Put(context.Background(), testRecord(t, "2024-01-10/00z", 1)))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	zr, err := gzip.NewReader(f)
	require.NoError(t, err, "archive should be gzip-compressed")
	data, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"2024-01-10/00z"`)
}

func TestArchive_PutRejectsMissingKey(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			err := open(t).Put(context.Background(), Record{Series: map[string][]float64{}})
			assert.Error(t, err)
		})
	}
}

func TestNewRecord_SplitsUsableAndMissing(t *testing.T) {
	reg, err := domain.NewRegistry("v1", []domain.Location{
		{ID: "a", Lat: 1, Lon: 1, Weight: 0.5},
		{ID: "b", Lat: 2, Lon: 2, Weight: 0.3},
		{ID: "c", Lat: 3, Lon: 3, Weight: 0.2},
	})
	require.NoError(t, err)

	series := map[string]domain.LocationSeries{
		"a": {Series: seriesOf(4), Status: domain.SeriesOK},
		"b": {Status: domain.SeriesMissing},
	}
	rec := NewRecord(mustKey(t, "2024-01-10/00z"), reg, 65, series, testNow)

	assert.Equal(t, CurrentSchemaVersion, rec.SchemaVersion)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "v1", rec.WeightTableVersion)
	assert.Equal(t, []string{"b", "c"}, rec.Missing)
	assert.Equal(t, seriesOf(4), rec.Series["a"])

	series["a"].Series[0] = 99
	assert.InDelta(t, 4.0, rec.Series["a"][0], 1e-9, "record holds a copy")

	back := rec.LocationSeries()
	assert.True(t, back["a"].Usable())
	assert.False(t, back["b"].Usable())
	assert.False(t, back["c"].Usable())
}
