// Package index implements the durable document index backing retrieval:
// a SQLite store of (id, content, metadata, embedding, created_at) rows with
// cosine-similarity search. Writes are atomic and last-committed-wins per id;
// readers are never exposed to partial rows.
package index

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	_ "modernc.org/sqlite"

	"rangecraft/internal/embedding"
	"rangecraft/internal/logging"
)

// ErrInvalidTopK is returned by Search when topK is not positive.
var ErrInvalidTopK = errors.New("topK must be positive")

// Document is one stored entry. Owned exclusively by the index; immutable
// once stored except by an explicit same-id overwrite.
type Document struct {
	ID        string            `json:"id"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata"`
	Embedding []float32         `json:"-"`
	CreatedAt time.Time         `json:"created_at"`
}

// ScoredDocument pairs a document with its similarity to a query.
type ScoredDocument struct {
	Document Document
	Score    float64
}

// Entry is the input to Add and AddBatch.
type Entry struct {
	ID       string // optional; derived from content when empty
	Content  string
	Metadata map[string]string
}

// Index is the SQLite-backed document index.
type Index struct {
	db     *sql.DB
	mu     sync.RWMutex
	path   string
	engine embedding.Engine
}

// Open initializes the index database at the given path (":memory:" for
// tests) with the embedding engine used for both index-time and query-time
// vectors.
func Open(path string, engine embedding.Engine) (*Index, error) {
	timer := logging.StartTimer(logging.CategoryIndex, "Open")
	defer timer.Stop()

	if engine == nil {
		return nil, fmt.Errorf("embedding engine required")
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create index directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open index database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.IndexDebug("Failed to set busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.IndexDebug("Failed to set journal_mode=WAL: %v", err)
	}

	ix := &Index{db: db, path: path, engine: engine}
	if err := ix.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logging.Index("Document index ready at %s (engine=%s, dims=%d)",
		path, engine.Name(), engine.Dimensions())
	return ix, nil
}

func (ix *Index) initialize() error {
	table := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		metadata TEXT NOT NULL,
		embedding BLOB NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	if _, err := ix.db.Exec(table); err != nil {
		return fmt.Errorf("failed to create documents table: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (ix *Index) Close() error {
	return ix.db.Close()
}

// deriveID returns a stable content-addressed id: a sha256 prefix, so
// re-adding identical content overwrites rather than duplicating.
func deriveID(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])[:16]
}

// Add stores one document and returns its id. An existing id is overwritten
// atomically: content, metadata, and embedding change together or not at all.
func (ix *Index) Add(ctx context.Context, content string, metadata map[string]string) (string, error) {
	return ix.AddWithID(ctx, "", content, metadata)
}

// AddWithID stores one document under an explicit id (derived from content
// when empty).
func (ix *Index) AddWithID(ctx context.Context, id, content string, metadata map[string]string) (string, error) {
	if id == "" {
		id = deriveID(content)
	}

	vec, err := ix.engine.Embed(ctx, content)
	if err != nil {
		return "", fmt.Errorf("failed to embed document: %w", err)
	}

	metaJSON, err := json.Marshal(orEmpty(metadata))
	if err != nil {
		return "", fmt.Errorf("failed to serialize metadata: %w", err)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	// ON CONFLICT keeps the original rowid, preserving insertion order for
	// search tie-breaking across overwrites.
	_, err = ix.db.ExecContext(ctx, `
		INSERT INTO documents (id, content, metadata, embedding)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			metadata = excluded.metadata,
			embedding = excluded.embedding`,
		id, content, string(metaJSON), encodeVector(vec))
	if err != nil {
		return "", fmt.Errorf("failed to store document: %w", err)
	}

	logging.IndexDebug("Stored document %s (%d chars)", id, len(content))
	return id, nil
}

// AddBatch stores multiple documents in one transaction. Embeddings are
// computed concurrently; the write itself is atomic, so a reader either sees
// none of the batch or all of it.
func (ix *Index) AddBatch(ctx context.Context, entries []Entry) ([]string, error) {
	timer := logging.StartTimer(logging.CategoryIndex, "AddBatch")
	defer timer.Stop()

	if len(entries) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i := range entries {
		g.Go(func() error {
			vec, err := ix.engine.Embed(gctx, entries[i].Content)
			if err != nil {
				return fmt.Errorf("failed to embed entry %d: %w", i, err)
			}
			vectors[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin batch: %w", err)
	}
	defer tx.Rollback()

	ids := make([]string, len(entries))
	for i, entry := range entries {
		id := entry.ID
		if id == "" {
			id = deriveID(entry.Content)
		}
		metaJSON, err := json.Marshal(orEmpty(entry.Metadata))
		if err != nil {
			return nil, fmt.Errorf("failed to serialize metadata for entry %d: %w", i, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO documents (id, content, metadata, embedding)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				content = excluded.content,
				metadata = excluded.metadata,
				embedding = excluded.embedding`,
			id, entry.Content, string(metaJSON), encodeVector(vectors[i])); err != nil {
			return nil, fmt.Errorf("failed to store entry %d: %w", i, err)
		}
		ids[i] = id
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit batch: %w", err)
	}

	logging.Index("Indexed batch of %d documents", len(entries))
	return ids, nil
}

// Search embeds the query with the index-time engine and returns up to topK
// documents ranked by cosine similarity, descending. Ties break by insertion
// order, earlier first. topK larger than the corpus returns the full corpus
// ranked.
func (ix *Index) Search(ctx context.Context, query string, topK int) ([]ScoredDocument, error) {
	timer := logging.StartTimer(logging.CategoryIndex, "Search")
	defer timer.Stop()

	if topK <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidTopK, topK)
	}

	queryVec, err := ix.engine.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	rows, err := ix.db.QueryContext(ctx,
		"SELECT id, content, metadata, embedding, created_at FROM documents ORDER BY rowid")
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var results []ScoredDocument
	for rows.Next() {
		var doc Document
		var metaJSON string
		var blob []byte
		if err := rows.Scan(&doc.ID, &doc.Content, &metaJSON, &blob, &doc.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		doc.Embedding = decodeVector(blob)
		if err := json.Unmarshal([]byte(metaJSON), &doc.Metadata); err != nil {
			doc.Metadata = map[string]string{}
		}

		score, err := embedding.CosineSimilarity(queryVec, doc.Embedding)
		if err != nil {
			// Stored vector dimensionality disagrees with the query engine.
			// That is a deployment configuration error, not a skippable row.
			return nil, fmt.Errorf("document %s: %w", doc.ID, err)
		}
		results = append(results, ScoredDocument{Document: doc, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Stable sort preserves rowid (insertion) order among equal scores.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > topK {
		results = results[:topK]
	}

	logging.IndexDebug("Search %q returned %d results", query, len(results))
	return results, nil
}

// Count returns the number of stored documents.
func (ix *Index) Count(ctx context.Context) (int64, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var count int64
	err := ix.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents").Scan(&count)
	return count, err
}

// Clear removes all documents.
func (ix *Index) Clear(ctx context.Context) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	_, err := ix.db.ExecContext(ctx, "DELETE FROM documents")
	if err == nil {
		logging.Index("Index cleared")
	}
	return err
}

// IndexStats summarizes index contents for diagnostics.
type IndexStats struct {
	Documents  int64  `json:"documents"`
	Engine     string `json:"engine"`
	Dimensions int    `json:"dimensions"`
	Path       string `json:"path"`
}

// Stats returns index statistics for diagnostics.
func (ix *Index) Stats(ctx context.Context) (IndexStats, error) {
	count, err := ix.Count(ctx)
	if err != nil {
		return IndexStats{}, err
	}
	return IndexStats{
		Documents:  count,
		Engine:     ix.engine.Name(),
		Dimensions: ix.engine.Dimensions(),
		Path:       ix.path,
	}, nil
}

func orEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

// encodeVector serializes a float32 vector as little-endian bytes.
func encodeVector(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeVector deserializes little-endian bytes into a float32 vector.
func decodeVector(buf []byte) []float32 {
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}
