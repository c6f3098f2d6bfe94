package storage

import (
	"context"
	"errors"

	"github.com/vietddude/pdfmend/internal/core/domain"
)

var (
	// ErrReportNotFound is returned when no report has the requested id
	ErrReportNotFound = errors.New("report not found")
)

// ReportRepository archives recovery reports
type ReportRepository interface {
	// Save stores a report, replacing any report with the same id
	Save(ctx context.Context, rec *domain.ReportRecord) error

	// Get retrieves a report by id
	Get(ctx context.Context, id string) (*domain.ReportRecord, error)

	// ListByDigest returns the reports for one input digest, newest first
	ListByDigest(ctx context.Context, digest string, limit int) ([]*domain.ReportRecord, error)

	// Count returns the number of reports per tier
	Count(ctx context.Context) (map[string]int, error)
}
