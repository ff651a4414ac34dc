// Package sqlite is the durable vector store. Chunks, their embeddings and
// the index metadata live in one SQLite file so that a reindex can replace
// everything inside a single transaction.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"documind/internal/domain"
	"documind/internal/vectorstore"
)

// FileName is the database file created inside the index directory.
const FileName = "index.sqlite"

const schema = `
CREATE TABLE IF NOT EXISTS chunks (
	seq          INTEGER PRIMARY KEY,
	id           TEXT NOT NULL,
	source_path  TEXT NOT NULL,
	start_offset INTEGER,
	chunk_index  INTEGER NOT NULL,
	text         TEXT NOT NULL,
	metadata     TEXT,
	embedding    BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS index_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);`

// Storage keeps the index in SQLite and searches an in-memory copy that is
// reloaded after every Replace.
type Storage struct {
	db   *sql.DB
	path string

	mu      sync.RWMutex
	loaded  bool
	chunks  []domain.Chunk
	vectors [][]float32
}

// Open creates dir if needed and opens (or creates) the index database.
func Open(dir string) (*Storage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}
	path := filepath.Join(dir, FileName)
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Storage{db: db, path: path}, nil
}

// Path returns the database file location.
func (s *Storage) Path() string { return s.path }

// Replace deletes the previous index and writes the new one in one
// transaction. On any error the previous index is left untouched.
func (s *Storage) Replace(ctx context.Context, chunks []domain.Chunk, vectors [][]float32, meta vectorstore.Meta) error {
	dim, err := vectorstore.Validate(chunks, vectors)
	if err != nil {
		return err
	}
	meta.Dimension = dim
	meta.Count = len(chunks)
	if meta.BuiltAt.IsZero() {
		meta.BuiltAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks`); err != nil {
		return fmt.Errorf("clear chunks: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO chunks(seq, id, source_path, start_offset, chunk_index, text, metadata, embedding) VALUES(?,?,?,?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, c := range chunks {
		var offset any
		if c.HasOffset {
			offset = c.StartOffset
		}
		md, err := encodeMetadata(c.Metadata)
		if err != nil {
			return fmt.Errorf("chunk %s metadata: %w", c.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, i, c.ID, c.SourcePath, offset, c.Index, c.Text, md, encodeVector(vectors[i])); err != nil {
			return fmt.Errorf("insert chunk %s: %w", c.ID, err)
		}
	}

	for k, v := range map[string]string{
		"model":     meta.Model,
		"dimension": fmt.Sprint(meta.Dimension),
		"count":     fmt.Sprint(meta.Count),
		"built_at":  meta.BuiltAt.Format(time.RFC3339Nano),
	} {
		if _, err := tx.ExecContext(ctx, `INSERT INTO index_meta(key, value) VALUES(?, ?) ON CONFLICT(key) DO UPDATE SET value=excluded.value`, k, v); err != nil {
			return fmt.Errorf("write meta %s: %w", k, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.chunks = append([]domain.Chunk(nil), chunks...)
	s.vectors = make([][]float32, len(vectors))
	for i, v := range vectors {
		s.vectors[i] = append([]float32(nil), v...)
	}
	s.loaded = true
	return nil
}

// Search ranks the stored chunks by cosine similarity.
func (s *Storage) Search(ctx context.Context, vector []float32, topK int) ([]domain.SearchResult, error) {
	if err := s.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return vectorstore.Rank(s.chunks, s.vectors, vector, topK)
}

// Meta returns the metadata of the last committed index.
func (s *Storage) Meta(ctx context.Context) (vectorstore.Meta, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM index_meta`)
	if err != nil {
		return vectorstore.Meta{}, false, err
	}
	defer rows.Close()

	values := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return vectorstore.Meta{}, false, err
		}
		values[k] = v
	}
	if err := rows.Err(); err != nil {
		return vectorstore.Meta{}, false, err
	}
	builtAt, ok := values["built_at"]
	if !ok {
		return vectorstore.Meta{}, false, nil
	}

	var meta vectorstore.Meta
	meta.Model = values["model"]
	_, _ = fmt.Sscan(values["dimension"], &meta.Dimension)
	_, _ = fmt.Sscan(values["count"], &meta.Count)
	meta.BuiltAt, err = time.Parse(time.RFC3339Nano, builtAt)
	if err != nil {
		return vectorstore.Meta{}, false, fmt.Errorf("parse built_at: %w", err)
	}
	return meta, true, nil
}

// Close closes the database.
func (s *Storage) Close() error { return s.db.Close() }

func (s *Storage) ensureLoaded(ctx context.Context) error {
	s.mu.RLock()
	loaded := s.loaded
	s.mu.RUnlock()
	if loaded {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, source_path, start_offset, chunk_index, text, metadata, embedding FROM chunks ORDER BY seq`)
	if err != nil {
		return fmt.Errorf("load chunks: %w", err)
	}
	defer rows.Close()

	var chunks []domain.Chunk
	var vectors [][]float32
	for rows.Next() {
		var (
			c      domain.Chunk
			offset sql.NullInt64
			md     sql.NullString
			blob   []byte
		)
		if err := rows.Scan(&c.ID, &c.SourcePath, &offset, &c.Index, &c.Text, &md, &blob); err != nil {
			return fmt.Errorf("scan chunk: %w", err)
		}
		if offset.Valid {
			c.StartOffset, c.HasOffset = int(offset.Int64), true
		}
		if md.Valid && md.String != "" {
			if err := json.Unmarshal([]byte(md.String), &c.Metadata); err != nil {
				return fmt.Errorf("chunk %s metadata: %w", c.ID, err)
			}
		}
		v, err := decodeVector(blob)
		if err != nil {
			return fmt.Errorf("chunk %s: %w", c.ID, err)
		}
		chunks = append(chunks, c)
		vectors = append(vectors, v)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	s.chunks, s.vectors, s.loaded = chunks, vectors, true
	return nil
}

func encodeMetadata(m map[string]any) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, errors.New("corrupt embedding blob")
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}
