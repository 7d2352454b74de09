package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/klauspost/compress/gzip"

	"github.com/couchcryptid/hdd-momentum-service/internal/domain"
)

const fileFormatVersion = 1

// fileDocument is the on-disk layout. Records stay raw until decoded one by
// one so a single bad record does not take the others down with it.
type fileDocument struct {
	Version int                        `json:"version"`
	Records map[string]json.RawMessage `json:"records"`
}

// FileArchive keeps every record in one JSON document, gzip-compressed when
// the path ends in ".gz".
type FileArchive struct {
	path   string
	gzip   bool
	clock  clockwork.Clock
	logger *slog.Logger

	mu     sync.Mutex
	status Status
}

// NewFileArchive opens (or prepares to create) the archive at path. A corrupt
// file is reported through Status, never as an error.
func NewFileArchive(path string, clock clockwork.Clock, logger *slog.Logger) *FileArchive {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	a := &FileArchive{
		path:   path,
		gzip:   strings.HasSuffix(path, ".gz"),
		clock:  clock,
		logger: logger,
	}
	a.mu.Lock()
	a.loadTolerant()
	a.mu.Unlock()
	return a
}

// Put overwrites the record stored under rec.Key. The whole document is
// re-read and rewritten; see the package docs for the concurrency contract.
func (a *FileArchive) Put(_ context.Context, rec Record) error {
	if err := validateRecord(rec); err != nil {
		return fmt.Errorf("put record: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	records, corrupt := a.loadTolerant()
	if corrupt {
		a.quarantine()
	}

	records[rec.Key.String()] = rec
	if err := a.write(records); err != nil {
		return fmt.Errorf("write archive %s: %w", a.path, err)
	}

	a.status = Status{Backend: "file", Records: len(records), CheckedAt: a.clock.Now()}
	return nil
}

// Get returns the record stored under key.
func (a *FileArchive) Get(_ context.Context, key domain.Key) (Record, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	records, _ := a.loadTolerant()
	rec, ok := records[key.String()]
	return rec, ok, nil
}

// LatestBefore returns the newest record strictly earlier than key.
func (a *FileArchive) LatestBefore(_ context.Context, key domain.Key) (Record, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	records, _ := a.loadTolerant()

	var (
		best  Record
		found bool
	)
	for _, rec := range records {
		if !rec.Key.Before(key) {
			continue
		}
		if !found || best.Key.Before(rec.Key) {
			best, found = rec, true
		}
	}
	return best, found, nil
}

// Status reports the result of the most recent load or write.
func (a *FileArchive) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// Close is a no-op; the file is only open during individual operations.
func (a *FileArchive) Close() error { return nil }

// loadTolerant reads the archive, degrading any read or parse failure to an
// empty archive. It returns true when the file on disk is corrupt.
func (a *FileArchive) loadTolerant() (map[string]Record, bool) {
	records, err := a.load()
	now := a.clock.Now()
	if err != nil {
		a.logger.Warn("archive unreadable, continuing with empty archive",
			"path", a.path,
			"error", err,
		)
		a.status = Status{Backend: "file", Corrupt: true, Detail: err.Error(), CheckedAt: now}
		return map[string]Record{}, true
	}
	a.status = Status{Backend: "file", Records: len(records), CheckedAt: now}
	return records, false
}

func (a *FileArchive) load() (map[string]Record, error) {
	data, err := a.readFile()
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", domain.ErrArchiveCorrupt, a.path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return map[string]Record{}, nil
	}

	var doc fileDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", domain.ErrArchiveCorrupt, a.path, err)
	}

	records := make(map[string]Record, len(doc.Records))
	for k, raw := range doc.Records {
		rec, err := decodeRecord(raw)
		if err != nil {
			a.logger.Warn("skipping unreadable archive record", "key", k, "error", err)
			continue
		}
		if rec.Key.IsZero() {
			// Older documents only carried the key in the map.
			key, err := domain.ParseKey(k)
			if err != nil {
				a.logger.Warn("skipping archive record with invalid key", "key", k, "error", err)
				continue
			}
			rec.Key = key
		}
		records[rec.Key.String()] = rec
	}
	return records, nil
}

func (a *FileArchive) readFile() ([]byte, error) {
	f, err := os.Open(a.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if a.gzip {
		zr, err := gzip.NewReader(f)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		r = zr
	}
	return io.ReadAll(r)
}

// write replaces the archive atomically via a temp file and rename.
func (a *FileArchive) write(records map[string]Record) error {
	doc := fileDocument{
		Version: fileFormatVersion,
		Records: make(map[string]json.RawMessage, len(records)),
	}
	for k, rec := range records {
		raw, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode record %s: %w", k, err)
		}
		doc.Records[k] = raw
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode archive: %w", err)
	}

	dir := filepath.Dir(a.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(a.path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // already renamed on success

	if err := a.encodeTo(tmp, data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), a.path)
}

func (a *FileArchive) encodeTo(w io.Writer, data []byte) error {
	if !a.gzip {
		_, err := w.Write(data)
		return err
	}
	zw := gzip.NewWriter(w)
	if _, err := zw.Write(data); err != nil {
		return err
	}
	return zw.Close()
}

// quarantine moves a corrupt file aside so the next write does not destroy it.
func (a *FileArchive) quarantine() {
	dest := fmt.Sprintf("%s.corrupt-%d", a.path, a.clock.Now().Unix())
	if err := os.Rename(a.path, dest); err != nil && !errors.Is(err, fs.ErrNotExist) {
		a.logger.Warn("could not move corrupt archive aside", "path", a.path, "error", err)
		return
	}
	a.logger.Warn("corrupt archive moved aside", "path", a.path, "moved_to", dest)
}
