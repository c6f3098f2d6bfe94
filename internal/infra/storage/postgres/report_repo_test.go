package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/vietddude/pdfmend/internal/core/domain"
	"github.com/vietddude/pdfmend/internal/infra/storage"
)

var reportRowColumns = []string{
	"id", "source", "digest", "level", "tier", "health", "success",
	"errors_encountered", "errors_recovered", "input_size", "output_size", "payload", "created_at",
}

func newMockRepo(t *testing.T) (*ReportRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewReportRepo(&DB{DB: sqlx.NewDb(db, "postgres")}), mock
}

func TestReportRepo_Save(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now()
	rec := &domain.ReportRecord{
		ID:        "r1",
		Digest:    "abc",
		Level:     "moderate",
		Tier:      "repaired",
		Health:    domain.HealthPartiallyRecovered,
		Success:   true,
		InputSize: 10,
		CreatedAt: now,
	}

	mock.ExpectExec("INSERT INTO recovery_reports").
		WithArgs("r1", "", "abc", "moderate", "repaired", int(domain.HealthPartiallyRecovered), true,
			0, 0, int64(10), int64(0), []byte(nil), now).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.Save(context.Background(), rec); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestReportRepo_SaveError(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec("INSERT INTO recovery_reports").WillReturnError(sql.ErrConnDone)

	if err := repo.Save(context.Background(), &domain.ReportRecord{ID: "r1"}); err == nil {
		t.Error("expected error")
	}
}

func TestReportRepo_Get(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name    string
		setup   func(mock sqlmock.Sqlmock)
		wantErr error
	}{
		{
			name: "found",
			setup: func(mock sqlmock.Sqlmock) {
				rows := sqlmock.NewRows(reportRowColumns).
					AddRow("r1", "in.pdf", "abc", "moderate", "repaired", int64(2), true, int64(3), int64(3), int64(100), int64(120), []byte("x"), now)
				mock.ExpectQuery("SELECT (.+) FROM recovery_reports WHERE id").WithArgs("r1").WillReturnRows(rows)
			},
		},
		{
			name: "not found",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT (.+) FROM recovery_reports WHERE id").WithArgs("r1").WillReturnError(sql.ErrNoRows)
			},
			wantErr: storage.ErrReportNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newMockRepo(t)
			tt.setup(mock)

			rec, err := repo.Get(context.Background(), "r1")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if rec.Health != domain.HealthPartiallyRecovered || rec.Source != "in.pdf" || rec.OutputSize != 120 {
				t.Errorf("unexpected record %+v", rec)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unfulfilled expectations: %v", err)
			}
		})
	}
}

func TestReportRepo_ListByDigest(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now()
	rows := sqlmock.NewRows(reportRowColumns).
		AddRow("r2", "", "abc", "moderate", "clean", int64(3), true, int64(0), int64(0), int64(5), int64(5), nil, now).
		AddRow("r1", "", "abc", "moderate", "repaired", int64(2), true, int64(1), int64(1), int64(5), int64(6), nil, now.Add(-time.Minute))
	mock.ExpectQuery("SELECT (.+) FROM recovery_reports WHERE digest = \\$1 ORDER BY created_at DESC LIMIT \\$2").
		WithArgs("abc", 2).
		WillReturnRows(rows)

	recs, err := repo.ListByDigest(context.Background(), "abc", 2)
	if err != nil {
		t.Fatalf("ListByDigest failed: %v", err)
	}
	if len(recs) != 2 || recs[0].ID != "r2" {
		t.Errorf("unexpected records %+v", recs)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestReportRepo_Count(t *testing.T) {
	repo, mock := newMockRepo(t)
	rows := sqlmock.NewRows([]string{"tier", "n"}).
		AddRow("clean", int64(4)).
		AddRow("salvaged", int64(1))
	mock.ExpectQuery("SELECT tier, COUNT").WillReturnRows(rows)

	counts, err := repo.Count(context.Background())
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if counts["clean"] != 4 || counts["salvaged"] != 1 {
		t.Errorf("unexpected counts %v", counts)
	}
}
