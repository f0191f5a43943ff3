package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"mailcss/internal"
)

const timeLayout = "2006-01-02 15:04:05"

type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS css_cache (
  url TEXT PRIMARY KEY,
  body TEXT NOT NULL,
  etag TEXT,
  contentType TEXT,
  fetchedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS drafts (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  provider TEXT NOT NULL,
  draftId TEXT NOT NULL,
  messageId TEXT,
  subject TEXT,
  hash TEXT NOT NULL,
  status TEXT NOT NULL,
  error TEXT,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(provider, hash)
);
CREATE INDEX IF NOT EXISTS idx_drafts_status ON drafts(status);

CREATE TABLE IF NOT EXISTS runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  traceId TEXT NOT NULL,
  draftId INTEGER,
  timingsJson TEXT NOT NULL,
  countsJson TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(draftId) REFERENCES drafts(id)
);

CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

	_, err := d.conn.Exec(schema)
	return err
}

func (d *DB) GetCSSCache(url string) (*internal.CSSCacheEntry, error) {
	var e internal.CSSCacheEntry
	err := d.conn.QueryRow(`
SELECT url, body, etag, contentType, fetchedAt FROM css_cache WHERE url = ?
`, url).Scan(&e.URL, &e.Body, &e.ETag, &e.ContentType, &e.FetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (d *DB) PutCSSCache(url, body string, etag, contentType *string) error {
	_, err := d.conn.Exec(`
INSERT INTO css_cache (url, body, etag, contentType) VALUES (?, ?, ?, ?)
ON CONFLICT(url) DO UPDATE SET
  body=excluded.body,
  etag=excluded.etag,
  contentType=excluded.contentType,
  fetchedAt=CURRENT_TIMESTAMP
`, url, body, etag, contentType)
	return err
}

// TouchCSSCache refreshes fetchedAt of an entry confirmed by a 304 response.
func (d *DB) TouchCSSCache(url string) error {
	_, err := d.conn.Exec(`UPDATE css_cache SET fetchedAt = CURRENT_TIMESTAMP WHERE url = ?`, url)
	return err
}

// PurgeCSSCache deletes entries fetched before cutoff and returns how many
// were removed.
func (d *DB) PurgeCSSCache(cutoff time.Time) (int64, error) {
	res, err := d.conn.Exec(`DELETE FROM css_cache WHERE fetchedAt < ?`, cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CSSCacheAge reports how long ago entry was fetched.
func CSSCacheAge(e internal.CSSCacheEntry, now time.Time) (time.Duration, error) {
	fetched, err := time.ParseInLocation(timeLayout, e.FetchedAt, time.UTC)
	if err != nil {
		return 0, fmt.Errorf("parse fetchedAt %q: %w", e.FetchedAt, err)
	}
	return now.Sub(fetched), nil
}

func (d *DB) UpsertDraft(provider, draftID, messageID, subject, hash string, status internal.DraftStatus, errText *string) (internal.DraftRow, error) {
	_, err := d.conn.Exec(`
INSERT INTO drafts (provider, draftId, messageId, subject, hash, status, error)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(provider, hash) DO UPDATE SET
  draftId=excluded.draftId,
  messageId=excluded.messageId,
  subject=excluded.subject,
  status=excluded.status,
  error=excluded.error,
  updatedAt=CURRENT_TIMESTAMP
`, provider, draftID, messageID, subject, hash, string(status), errText)
	if err != nil {
		return internal.DraftRow{}, err
	}

	row, err := d.GetDraftByHash(provider, hash)
	if err != nil {
		return internal.DraftRow{}, err
	}
	if row == nil {
		return internal.DraftRow{}, errors.New("failed to upsert draft")
	}
	return *row, nil
}

func (d *DB) GetDraftByHash(provider, hash string) (*internal.DraftRow, error) {
	var row internal.DraftRow
	err := d.conn.QueryRow(`
SELECT id, provider, draftId, messageId, subject, hash, status, error, createdAt
FROM drafts WHERE provider = ? AND hash = ?
`, provider, hash).Scan(
		&row.ID, &row.Provider, &row.DraftID, &row.MessageID, &row.Subject, &row.Hash, &row.Status, &row.Error, &row.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) ListDraftsByStatus(status internal.DraftStatus, limit int) ([]internal.DraftRow, error) {
	rows, err := d.conn.Query(`
SELECT id, provider, draftId, messageId, subject, hash, status, error, createdAt
FROM drafts WHERE status = ? ORDER BY id ASC LIMIT ?
`, string(status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.DraftRow
	for rows.Next() {
		var row internal.DraftRow
		if err := rows.Scan(&row.ID, &row.Provider, &row.DraftID, &row.MessageID, &row.Subject, &row.Hash, &row.Status, &row.Error, &row.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) InsertRun(traceID string, draftID *int, timings map[string]float64, counts map[string]int) error {
	timingsJSON, _ := json.Marshal(timings)
	countsJSON, _ := json.Marshal(counts)
	_, err := d.conn.Exec(`INSERT INTO runs (traceId, draftId, timingsJson, countsJson) VALUES (?, ?, ?, ?)`, traceID, draftID, string(timingsJSON), string(countsJSON))
	return err
}

func (d *DB) ListRuns(limit int) ([]internal.RunRow, error) {
	rows, err := d.conn.Query(`
SELECT id, traceId, draftId, timingsJson, countsJson, createdAt
FROM runs ORDER BY id DESC LIMIT ?
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.RunRow
	for rows.Next() {
		var row internal.RunRow
		if err := rows.Scan(&row.ID, &row.TraceID, &row.DraftID, &row.TimingsJSON, &row.CountsJSON, &row.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) SetMetadata(key, value string) error {
	_, err := d.conn.Exec(`
INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = CURRENT_TIMESTAMP
`, key, value)
	return err
}

func (d *DB) GetMetadata(key string) (*string, error) {
	var value string
	err := d.conn.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}
