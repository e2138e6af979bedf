package registry

import (
	"bytes"
	"database/sql"
	"encoding/gob"
	"fmt"
	"os"

	_ "modernc.org/sqlite"

	"github.com/pixnet/pixnetd/internal/pxnt"
)

// ManifestCache persists decoded pages in a local sqlite database, keyed by
// content file path and modification time, so unchanged files on a cold
// start don't pay the zlib-inflate and parse cost of pxnt.Decode again.
type ManifestCache struct {
	db *sql.DB
}

// OpenManifestCache opens (creating if necessary) the sqlite database at
// path and ensures its schema exists.
func OpenManifestCache(path string) (*ManifestCache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open manifest cache %q: %w", path, err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS manifest (
			path       TEXT PRIMARY KEY,
			mtime_unix INTEGER NOT NULL,
			page_gob   BLOB NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create manifest schema: %w", err)
	}
	return &ManifestCache{db: db}, nil
}

// Close closes the underlying database handle.
func (c *ManifestCache) Close() error {
	return c.db.Close()
}

// Lookup returns the cached page for path if its stored mtime still
// matches the file on disk.
func (c *ManifestCache) Lookup(path string) (*pxnt.Page, bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, false, err
	}

	var mtimeUnix int64
	var blob []byte
	row := c.db.QueryRow(`SELECT mtime_unix, page_gob FROM manifest WHERE path = ?`, path)
	if err := row.Scan(&mtimeUnix, &blob); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, err
	}
	if mtimeUnix != info.ModTime().Unix() {
		return nil, false, nil
	}

	var page pxnt.Page
	if err := gob.NewDecoder(bytes.NewReader(blob)).Decode(&page); err != nil {
		return nil, false, fmt.Errorf("decode cached page: %w", err)
	}
	return &page, true, nil
}

// Store saves page's decoded form under path, tagged with path's current
// modification time.
func (c *ManifestCache) Store(path string, page *pxnt.Page) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(page); err != nil {
		return fmt.Errorf("encode page for cache: %w", err)
	}

	_, err = c.db.Exec(`
		INSERT INTO manifest (path, mtime_unix, page_gob) VALUES (?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET mtime_unix = excluded.mtime_unix, page_gob = excluded.page_gob
	`, path, info.ModTime().Unix(), buf.Bytes())
	return err
}
