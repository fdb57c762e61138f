package vectorstore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver

	"github.com/haasonsaas/qaevaluator/pkg/models"
)

// SQLite stores chunks and embeddings in a SQLite table and scores them with
// cosine similarity at query time.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens a SQLite-backed store at path. An empty path uses a
// private in-memory database.
func OpenSQLite(path string) (*SQLite, error) {
	if path == "" {
		path = ":memory:"
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Each connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS chunks (
			idx INTEGER PRIMARY KEY,
			content TEXT NOT NULL,
			embedding BLOB NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create chunks table: %w", err)
	}
	return nil
}

// Add indexes entries in a single transaction.
func (s *SQLite) Add(ctx context.Context, entries []Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO chunks (idx, content, embedding) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.Index, e.Text, encodeEmbedding(e.Embedding)); err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", e.Index, err)
		}
	}
	return tx.Commit()
}

// Search scans all rows and returns the k nearest.
func (s *SQLite) Search(ctx context.Context, query []float32, k int) ([]models.Passage, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT idx, content, embedding FROM chunks`)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	var passages []models.Passage
	for rows.Next() {
		var (
			p    models.Passage
			blob []byte
		)
		if err := rows.Scan(&p.Index, &p.Text, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		p.Score = Cosine(query, decodeEmbedding(blob))
		passages = append(passages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return topK(passages, k), nil
}

// Len returns the number of stored chunks.
func (s *SQLite) Len(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n)
	return n, err
}

// Close releases the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// encodeEmbedding stores each float32 as 4 little-endian bytes.
func encodeEmbedding(embedding []float32) []byte {
	data := make([]byte, len(embedding)*4)
	for i, f := range embedding {
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(f))
	}
	return data
}

func decodeEmbedding(data []byte) []float32 {
	if len(data)%4 != 0 {
		return nil
	}
	embedding := make([]float32, len(data)/4)
	for i := range embedding {
		embedding[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return embedding
}
