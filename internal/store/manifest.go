package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure Go SQLite driver, no CGO

	"github.com/angeless/travelcs/internal/chunk"
	kberrors "github.com/angeless/travelcs/internal/errors"
)

// DocumentRecord is the manifest's view of an indexed document. SourceHash
// is what change detection compares against the live source.
type DocumentRecord struct {
	DocID      string
	DocType    chunk.DocType
	SourceHash string
	ChunkCount int
	IndexedAt  time.Time
}

// ChunkRecord maps a chunk back to its document for cleanup on re-index.
type ChunkRecord struct {
	ChunkID      string
	DocID        string
	Index        int
	TokenCount   int
	SectionTitle string
}

// Manifest persists document and chunk bookkeeping in SQLite. It is the
// source of truth for what has been indexed, at which content hash, and
// under which version.
type Manifest struct {
	mu     sync.Mutex
	db     *sql.DB
	path   string
	closed bool
}

// NewManifest opens or creates the manifest database. An empty path uses
// an in-memory database for testing.
func NewManifest(path string) (*Manifest, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, kberrors.New(kberrors.CodeManifest, "create manifest directory", err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, kberrors.New(kberrors.CodeManifest, "open manifest database", err)
	}

	// Single writer; SQLite serializes writes anyway and this avoids
	// lock contention between the indexer and the sweeper.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// WAL must be set via PRAGMA, modernc ignores DSN params.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, kberrors.New(kberrors.CodeManifest, "set pragma", err)
		}
	}

	m := &Manifest{db: db, path: path}
	if err := m.initSchema(); err != nil {
		_ = db.Close()
		return nil, kberrors.New(kberrors.CodeManifest, "initialize manifest schema", err)
	}
	return m, nil
}

func (m *Manifest) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS documents (
		doc_id      TEXT PRIMARY KEY,
		doc_type    TEXT NOT NULL,
		source_hash TEXT NOT NULL,
		chunk_count INTEGER NOT NULL DEFAULT 0,
		indexed_at  TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chunks (
		chunk_id      TEXT PRIMARY KEY,
		doc_id        TEXT NOT NULL REFERENCES documents(doc_id) ON DELETE CASCADE,
		idx           INTEGER NOT NULL,
		token_count   INTEGER NOT NULL,
		section_title TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_doc ON chunks(doc_id);

	CREATE TABLE IF NOT EXISTS versions (
		version_id  TEXT PRIMARY KEY,
		parent_id   TEXT NOT NULL DEFAULT '',
		status      TEXT NOT NULL,
		created_at  TIMESTAMP NOT NULL,
		promoted_at TIMESTAMP,
		chunk_count INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS state (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`
	_, err := m.db.Exec(schema)
	return err
}

// Snapshot returns all document records keyed by document ID.
func (m *Manifest) Snapshot(ctx context.Context) (map[string]DocumentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, kberrors.New(kberrors.CodeStoreClosed, "manifest is closed", nil)
	}

	rows, err := m.db.QueryContext(ctx,
		`SELECT doc_id, doc_type, source_hash, chunk_count, indexed_at FROM documents`)
	if err != nil {
		return nil, kberrors.New(kberrors.CodeManifest, "query documents", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]DocumentRecord)
	for rows.Next() {
		var rec DocumentRecord
		var docType string
		if err := rows.Scan(&rec.DocID, &docType, &rec.SourceHash, &rec.ChunkCount, &rec.IndexedAt); err != nil {
			return nil, kberrors.New(kberrors.CodeManifest, "scan document row", err)
		}
		rec.DocType = chunk.DocType(docType)
		out[rec.DocID] = rec
	}
	return out, rows.Err()
}

// UpsertDocument records a document and replaces its chunk rows in one
// transaction, so the manifest never shows a half-indexed document.
func (m *Manifest) UpsertDocument(ctx context.Context, rec DocumentRecord, chunks []ChunkRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return kberrors.New(kberrors.CodeStoreClosed, "manifest is closed", nil)
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return kberrors.New(kberrors.CodeManifest, "begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (doc_id, doc_type, source_hash, chunk_count, indexed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(doc_id) DO UPDATE SET
			doc_type = excluded.doc_type,
			source_hash = excluded.source_hash,
			chunk_count = excluded.chunk_count,
			indexed_at = excluded.indexed_at`,
		rec.DocID, string(rec.DocType), rec.SourceHash, len(chunks), rec.IndexedAt)
	if err != nil {
		return kberrors.New(kberrors.CodeManifest, "upsert document", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE doc_id = ?`, rec.DocID); err != nil {
		return kberrors.New(kberrors.CodeManifest, "clear old chunks", err)
	}
	for _, c := range chunks {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO chunks (chunk_id, doc_id, idx, token_count, section_title)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(chunk_id) DO UPDATE SET doc_id = excluded.doc_id, idx = excluded.idx`,
			c.ChunkID, c.DocID, c.Index, c.TokenCount, c.SectionTitle)
		if err != nil {
			return kberrors.New(kberrors.CodeManifest, "insert chunk", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return kberrors.New(kberrors.CodeManifest, "commit transaction", err)
	}
	return nil
}

// DeleteDocument removes a document and, via cascade, its chunk rows.
func (m *Manifest) DeleteDocument(ctx context.Context, docID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return kberrors.New(kberrors.CodeStoreClosed, "manifest is closed", nil)
	}

	if _, err := m.db.ExecContext(ctx, `DELETE FROM documents WHERE doc_id = ?`, docID); err != nil {
		return kberrors.New(kberrors.CodeManifest, "delete document", err)
	}
	return nil
}

// ChunksByDocument returns the chunk records of a document, in chunk order.
func (m *Manifest) ChunksByDocument(ctx context.Context, docID string) ([]ChunkRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, kberrors.New(kberrors.CodeStoreClosed, "manifest is closed", nil)
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT chunk_id, doc_id, idx, token_count, section_title
		FROM chunks WHERE doc_id = ? ORDER BY idx`, docID)
	if err != nil {
		return nil, kberrors.New(kberrors.CodeManifest, "query chunks", err)
	}
	defer func() { _ = rows.Close() }()

	var out []ChunkRecord
	for rows.Next() {
		var c ChunkRecord
		if err := rows.Scan(&c.ChunkID, &c.DocID, &c.Index, &c.TokenCount, &c.SectionTitle); err != nil {
			return nil, kberrors.New(kberrors.CodeManifest, "scan chunk row", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SaveVersion records or updates an index version.
func (m *Manifest) SaveVersion(ctx context.Context, v IndexVersion) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return kberrors.New(kberrors.CodeStoreClosed, "manifest is closed", nil)
	}

	var promotedAt any
	if !v.PromotedAt.IsZero() {
		promotedAt = v.PromotedAt
	}
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO versions (version_id, parent_id, status, created_at, promoted_at, chunk_count)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(version_id) DO UPDATE SET
			status = excluded.status,
			promoted_at = excluded.promoted_at,
			chunk_count = excluded.chunk_count`,
		v.ID, v.ParentID, string(v.Status), v.CreatedAt, promotedAt, v.ChunkCount)
	if err != nil {
		return kberrors.New(kberrors.CodeManifest, "save version", err)
	}
	return nil
}

// ListVersions returns all recorded versions, oldest first.
func (m *Manifest) ListVersions(ctx context.Context) ([]IndexVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, kberrors.New(kberrors.CodeStoreClosed, "manifest is closed", nil)
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT version_id, parent_id, status, created_at, promoted_at, chunk_count
		FROM versions ORDER BY created_at`)
	if err != nil {
		return nil, kberrors.New(kberrors.CodeManifest, "query versions", err)
	}
	defer func() { _ = rows.Close() }()

	var out []IndexVersion
	for rows.Next() {
		var v IndexVersion
		var status string
		var promotedAt sql.NullTime
		if err := rows.Scan(&v.ID, &v.ParentID, &status, &v.CreatedAt, &promotedAt, &v.ChunkCount); err != nil {
			return nil, kberrors.New(kberrors.CodeManifest, "scan version row", err)
		}
		v.Status = VersionStatus(status)
		if promotedAt.Valid {
			v.PromotedAt = promotedAt.Time
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// GetState reads a state value, returning "" when the key is absent.
func (m *Manifest) GetState(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return "", kberrors.New(kberrors.CodeStoreClosed, "manifest is closed", nil)
	}

	var value string
	err := m.db.QueryRowContext(ctx, `SELECT value FROM state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", kberrors.New(kberrors.CodeManifest, "get state", err)
	}
	return value, nil
}

// SetState writes a state value.
func (m *Manifest) SetState(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return kberrors.New(kberrors.CodeStoreClosed, "manifest is closed", nil)
	}

	_, err := m.db.ExecContext(ctx, `
		INSERT INTO state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return kberrors.New(kberrors.CodeManifest, "set state", err)
	}
	return nil
}

// DocumentCount returns the number of indexed documents.
func (m *Manifest) DocumentCount(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, kberrors.New(kberrors.CodeStoreClosed, "manifest is closed", nil)
	}

	var n int
	if err := m.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n); err != nil {
		return 0, kberrors.New(kberrors.CodeManifest, "count documents", err)
	}
	return n, nil
}

// Close closes the database.
func (m *Manifest) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	return m.db.Close()
}
