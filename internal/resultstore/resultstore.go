// Package resultstore persists graded results so runs can be inspected after
// the stream has been consumed.
package resultstore

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"    // Postgres driver
	_ "modernc.org/sqlite" // Pure-Go SQLite driver

	"github.com/haasonsaas/qaevaluator/pkg/models"
)

// Store saves graded results keyed by run and slot index.
type Store interface {
	Save(ctx context.Context, runID string, index int, result models.GradedResult) error
	ListRun(ctx context.Context, runID string) ([]Record, error)
	Close() error
}

// Record is a persisted result.
type Record struct {
	RunID     string
	Index     int
	Result    models.GradedResult
	CreatedAt time.Time
}

// Config holds connection pool settings.
type Config struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
}

// DefaultConfig returns default pool settings.
func DefaultConfig() *Config {
	return &Config{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

// SQLStore implements Store on database/sql for SQLite and Postgres.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	now     func() time.Time
}

// Open connects to driver ("sqlite" or "postgres"), pings the database and
// creates the results table if needed.
func Open(driver, dsn string, config *Config) (*SQLStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("dsn is required")
	}
	if config == nil {
		config = DefaultConfig()
	}

	var d dialect
	switch strings.ToLower(driver) {
	case "sqlite":
		d = dialectSQLite
	case "postgres":
		d = dialectPostgres
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}

	db, err := sql.Open(strings.ToLower(driver), dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if d == dialectSQLite {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(config.MaxOpenConns)
		db.SetMaxIdleConns(config.MaxIdleConns)
		db.SetConnMaxLifetime(config.ConnMaxLifetime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := newSQLStore(db, d)
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func newSQLStore(db *sql.DB, d dialect) *SQLStore {
	return &SQLStore{db: db, dialect: d, now: time.Now}
}

func (s *SQLStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS graded_results (
			run_id TEXT NOT NULL,
			idx INTEGER NOT NULL,
			question TEXT NOT NULL,
			answer TEXT NOT NULL,
			result TEXT NOT NULL,
			retrieved_text TEXT NOT NULL,
			answer_correct BOOLEAN NOT NULL,
			retrieval_relevant BOOLEAN NOT NULL,
			latency_seconds DOUBLE PRECISION NOT NULL,
			created_at TIMESTAMP NOT NULL,
			PRIMARY KEY (run_id, idx)
		)
	`)
	if err != nil {
		return fmt.Errorf("create graded_results table: %w", err)
	}
	return nil
}

// Save stores one result.
func (s *SQLStore) Save(ctx context.Context, runID string, index int, r models.GradedResult) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO graded_results (run_id, idx, question, answer, result, retrieved_text,
			answer_correct, retrieval_relevant, latency_seconds, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`),
		runID,
		index,
		r.Question,
		r.Answer,
		r.Result,
		r.RetrievedText,
		r.AnswerCorrect,
		r.RetrievalRelevant,
		r.LatencySeconds,
		s.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	return nil
}

// ListRun returns the results of runID ordered by slot index.
func (s *SQLStore) ListRun(ctx context.Context, runID string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT run_id, idx, question, answer, result, retrieved_text,
			answer_correct, retrieval_relevant, latency_seconds, created_at
		FROM graded_results
		WHERE run_id = ?
		ORDER BY idx
	`), runID)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(
			&rec.RunID,
			&rec.Index,
			&rec.Result.Question,
			&rec.Result.Answer,
			&rec.Result.Result,
			&rec.Result.RetrievedText,
			&rec.Result.AnswerCorrect,
			&rec.Result.RetrievalRelevant,
			&rec.Result.LatencySeconds,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	return records, nil
}

// Close releases database resources.
func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// rebind rewrites ? placeholders to $n for Postgres.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
