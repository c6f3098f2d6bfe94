package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vietddude/pdfmend/internal/core/domain"
	"github.com/vietddude/pdfmend/internal/infra/storage"
)

const reportColumns = `id, source, digest, level, tier, health, success,
	errors_encountered, errors_recovered, input_size, output_size, payload, created_at`

// ReportRepo implements storage.ReportRepository using PostgreSQL.
type ReportRepo struct {
	db *DB
}

// NewReportRepo creates a new PostgreSQL report repository.
func NewReportRepo(db *DB) *ReportRepo {
	return &ReportRepo{db: db}
}

// Save upserts a report.
func (r *ReportRepo) Save(ctx context.Context, rec *domain.ReportRecord) error {
	query := `
		INSERT INTO recovery_reports (` + reportColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			source = EXCLUDED.source,
			digest = EXCLUDED.digest,
			level = EXCLUDED.level,
			tier = EXCLUDED.tier,
			health = EXCLUDED.health,
			success = EXCLUDED.success,
			errors_encountered = EXCLUDED.errors_encountered,
			errors_recovered = EXCLUDED.errors_recovered,
			input_size = EXCLUDED.input_size,
			output_size = EXCLUDED.output_size,
			payload = EXCLUDED.payload
	`
	_, err := r.db.ExecContext(
		ctx,
		query,
		rec.ID,
		rec.Source,
		rec.Digest,
		rec.Level,
		rec.Tier,
		int(rec.Health),
		rec.Success,
		rec.ErrorsEncountered,
		rec.ErrorsRecovered,
		rec.InputSize,
		rec.OutputSize,
		rec.Payload,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}
	return nil
}

// Get retrieves a report by id.
func (r *ReportRepo) Get(ctx context.Context, id string) (*domain.ReportRecord, error) {
	query := `SELECT ` + reportColumns + ` FROM recovery_reports WHERE id = $1`

	var rec domain.ReportRecord
	if err := r.db.GetContext(ctx, &rec, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrReportNotFound
		}
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	return &rec, nil
}

// ListByDigest returns the reports for one digest, newest first.
func (r *ReportRepo) ListByDigest(
	ctx context.Context,
	digest string,
	limit int,
) ([]*domain.ReportRecord, error) {
	query := `
		SELECT ` + reportColumns + `
		FROM recovery_reports
		WHERE digest = $1
		ORDER BY created_at DESC
	`
	args := []any{digest}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	var recs []*domain.ReportRecord
	if err := r.db.SelectContext(ctx, &recs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	return recs, nil
}

// Count returns the number of reports per tier.
func (r *ReportRepo) Count(ctx context.Context) (map[string]int, error) {
	query := `SELECT tier, COUNT(*) AS n FROM recovery_reports GROUP BY tier`

	var rows []struct {
		Tier string `db:"tier"`
		N    int    `db:"n"`
	}
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to count reports: %w", err)
	}

	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.Tier] = row.N
	}
	return counts, nil
}
