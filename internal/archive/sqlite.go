package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"

	"github.com/jonboulle/clockwork"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/couchcryptid/hdd-momentum-service/internal/domain"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS archive_records (
	key         TEXT PRIMARY KEY,
	date        TEXT NOT NULL,
	cycle       TEXT NOT NULL,
	payload     TEXT NOT NULL,
	captured_at TEXT NOT NULL
)`

// SQLiteArchive stores one row per cycle key. Keys render as
// "YYYY-MM-DD/00z", so lexical order is chronological order.
type SQLiteArchive struct {
	path   string
	clock  clockwork.Clock
	logger *slog.Logger

	mu     sync.Mutex // guards db and status
	db     *sql.DB
	status Status
}

// NewSQLiteArchive opens path and ensures the schema exists. If the database
// cannot be opened the archive starts in a corrupt state: reads return no
// records, and the next write moves the bad file aside and starts a fresh
// database.
func NewSQLiteArchive(ctx context.Context, path string, clock clockwork.Clock, logger *slog.Logger) *SQLiteArchive {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	a := &SQLiteArchive{path: path, clock: clock, logger: logger}

	db, err := openSQLite(ctx, path)
	if err != nil {
		logger.Warn("sqlite archive unavailable, continuing with empty archive", "path", path, "error", err)
		a.status = Status{Backend: "sqlite", Corrupt: true, Detail: err.Error(), CheckedAt: clock.Now()}
		return a
	}
	a.db = db
	a.refreshStatus(ctx)
	return a
}

// reopen quarantines the unreadable database file and opens a new one at the
// same path. Callers hold a.mu.
func (a *SQLiteArchive) reopen(ctx context.Context) error {
	dest := fmt.Sprintf("%s.corrupt-%d", a.path, a.clock.Now().Unix())
	if err := os.Rename(a.path, dest); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: move %s aside: %v", domain.ErrArchiveCorrupt, a.path, err)
	}
	a.logger.Warn("corrupt archive moved aside", "path", a.path, "moved_to", dest)

	db, err := openSQLite(ctx, a.path)
	if err != nil {
		return err
	}
	a.db = db
	return nil
}

func (a *SQLiteArchive) handle() *sql.DB {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.db
}

func openSQLite(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", domain.ErrArchiveCorrupt, path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: init schema %s: %v", domain.ErrArchiveCorrupt, path, err)
	}
	return db, nil
}

// Put upserts the record under its key.
func (a *SQLiteArchive) Put(ctx context.Context, rec Record) error {
	if err := validateRecord(rec); err != nil {
		return fmt.Errorf("put record: %w", err)
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.db == nil {
		if err := a.reopen(ctx); err != nil {
			return fmt.Errorf("put record: %w", err)
		}
	}

	_, err = a.db.ExecContext(ctx, `
		INSERT INTO archive_records (key, date, cycle, payload, captured_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			payload = excluded.payload,
			captured_at = excluded.captured_at`,
		rec.Key.String(), rec.Key.Date, string(rec.Key.Cycle), string(payload), rec.CapturedAt.Format("2006-01-02T15:04:05.999999999Z07:00"),
	)
	if err != nil {
		return fmt.Errorf("upsert record %s: %w", rec.Key, err)
	}
	a.refreshStatus(ctx)
	return nil
}

// Get returns the record stored under key.
func (a *SQLiteArchive) Get(ctx context.Context, key domain.Key) (Record, bool, error) {
	return a.firstReadable(ctx, `SELECT key, payload FROM archive_records WHERE key = ?`, key.String())
}

// LatestBefore returns the newest readable record strictly earlier than key.
// Unreadable rows are skipped in favour of older ones.
func (a *SQLiteArchive) LatestBefore(ctx context.Context, key domain.Key) (Record, bool, error) {
	return a.firstReadable(ctx, `SELECT key, payload FROM archive_records WHERE key < ? ORDER BY key DESC`, key.String())
}

func (a *SQLiteArchive) firstReadable(ctx context.Context, query string, arg string) (Record, bool, error) {
	db := a.handle()
	if db == nil {
		return Record{}, false, nil
	}

	rows, err := db.QueryContext(ctx, query, arg)
	if err != nil {
		return Record{}, false, fmt.Errorf("query archive: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, payload string
		if err := rows.Scan(&key, &payload); err != nil {
			return Record{}, false, fmt.Errorf("scan archive row: %w", err)
		}
		rec, err := decodeRecord([]byte(payload))
		if err != nil {
			a.logger.Warn("skipping unreadable archive row", "key", key, "error", err)
			continue
		}
		return rec, true, nil
	}
	if err := rows.Err(); err != nil {
		return Record{}, false, fmt.Errorf("query archive: %w", err)
	}
	return Record{}, false, nil
}

// Status reports the result of the most recent open or write.
func (a *SQLiteArchive) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// Close closes the database.
func (a *SQLiteArchive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

// refreshStatus recounts the rows. Callers hold a.mu, except the constructor.
func (a *SQLiteArchive) refreshStatus(ctx context.Context) {
	var n int
	if err := a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM archive_records`).Scan(&n); err != nil {
		a.status = Status{Backend: "sqlite", Corrupt: true, Detail: err.Error(), CheckedAt: a.clock.Now()}
		return
	}
	a.status = Status{Backend: "sqlite", Records: n, CheckedAt: a.clock.Now()}
}
