package resultstore

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/haasonsaas/qaevaluator/pkg/models"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

var sample = models.GradedResult{
	Question:          "What is the capital of France?",
	Answer:            "Paris",
	Result:            "Paris is the capital.",
	RetrievedText:     "Doc 1: Paris is the capital of France. ",
	AnswerCorrect:     true,
	RetrievalRelevant: false,
	LatencySeconds:    1.25,
}

func setupMockDB(t *testing.T, d dialect) (sqlmock.Sqlmock, *SQLStore) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store := newSQLStore(db, d)
	store.now = func() time.Time { return fixedNow }
	return mock, store
}

func TestSQLStore_Save(t *testing.T) {
	tests := []struct {
		name        string
		setupMock   func(sqlmock.Sqlmock)
		wantErr     bool
		errContains string
	}{
		{
			name: "successful save",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(regexp.QuoteMeta("VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)")).
					WithArgs("run-1", 2, sample.Question, sample.Answer, sample.Result, sample.RetrievedText,
						true, false, 1.25, fixedNow).
					WillReturnResult(sqlmock.NewResult(1, 1))
			},
		},
		{
			name: "database error",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("INSERT INTO graded_results").
					WillReturnError(errors.New("connection refused"))
			},
			wantErr:     true,
			errContains: "save result",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, store := setupMockDB(t, dialectPostgres)
			tt.setupMock(mock)

			err := store.Save(context.Background(), "run-1", 2, sample)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Save() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.errContains != "" && !strings.Contains(err.Error(), tt.errContains) {
				t.Errorf("error %q should contain %q", err, tt.errContains)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unfulfilled expectations: %v", err)
			}
		})
	}
}

func TestSQLStore_ListRun(t *testing.T) {
	columns := []string{"run_id", "idx", "question", "answer", "result", "retrieved_text",
		"answer_correct", "retrieval_relevant", "latency_seconds", "created_at"}

	t.Run("returns rows in order", func(t *testing.T) {
		mock, store := setupMockDB(t, dialectPostgres)
		mock.ExpectQuery(regexp.QuoteMeta("WHERE run_id = $1")).
			WithArgs("run-1").
			WillReturnRows(sqlmock.NewRows(columns).
				AddRow("run-1", 0, "q0", "a0", "r0", "d0", true, true, 0.5, fixedNow).
				AddRow("run-1", 1, "q1", "a1", "r1", "d1", false, true, 0.75, fixedNow))

		records, err := store.ListRun(context.Background(), "run-1")
		if err != nil {
			t.Fatalf("ListRun() error = %v", err)
		}
		if len(records) != 2 {
			t.Fatalf("len = %d, want 2", len(records))
		}
		if records[1].Index != 1 || records[1].Result.AnswerCorrect || records[1].Result.LatencySeconds != 0.75 {
			t.Errorf("record = %+v", records[1])
		}
		if !records[0].CreatedAt.Equal(fixedNow) {
			t.Errorf("CreatedAt = %v", records[0].CreatedAt)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unfulfilled expectations: %v", err)
		}
	})

	t.Run("query error", func(t *testing.T) {
		mock, store := setupMockDB(t, dialectPostgres)
		mock.ExpectQuery("SELECT run_id").WillReturnError(errors.New("timeout"))

		if _, err := store.ListRun(context.Background(), "run-1"); err == nil || !strings.Contains(err.Error(), "list results") {
			t.Fatalf("ListRun() error = %v", err)
		}
	})
}

func TestRebind(t *testing.T) {
	pg := &SQLStore{dialect: dialectPostgres}
	if got := pg.rebind("a = ? AND b = ?"); got != "a = $1 AND b = $2" {
		t.Errorf("postgres rebind = %q", got)
	}
	lite := &SQLStore{dialect: dialectSQLite}
	if got := lite.rebind("a = ?"); got != "a = ?" {
		t.Errorf("sqlite rebind = %q", got)
	}
}

func TestOpenSQLite(t *testing.T) {
	ctx := context.Background()
	store, err := Open("sqlite", filepath.Join(t.TempDir(), "results.db"), nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer store.Close()

	for i := range 3 {
		r := sample
		r.Question = sample.Question + strings.Repeat("?", i)
		if err := store.Save(ctx, "run-a", i, r); err != nil {
			t.Fatalf("Save(%d) error = %v", i, err)
		}
	}
	if err := store.Save(ctx, "run-b", 0, sample); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := store.Save(ctx, "run-a", 0, sample); err == nil {
		t.Error("duplicate (run, index) should fail")
	}

	records, err := store.ListRun(ctx, "run-a")
	if err != nil {
		t.Fatalf("ListRun() error = %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("len = %d, want 3", len(records))
	}
	for i, rec := range records {
		if rec.Index != i || rec.RunID != "run-a" {
			t.Errorf("record %d = %+v", i, rec)
		}
	}
	if records[0].Result != sample {
		t.Errorf("round trip = %+v, want %+v", records[0].Result, sample)
	}
}

func TestOpenErrors(t *testing.T) {
	if _, err := Open("sqlite", "", nil); err == nil {
		t.Error("empty dsn should fail")
	}
	if _, err := Open("mysql", "dsn", nil); err == nil {
		t.Error("unknown driver should fail")
	}
}
