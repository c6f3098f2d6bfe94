package control

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vietddude/pdfmend/internal/core/config"
	"github.com/vietddude/pdfmend/internal/core/document"
	"github.com/vietddude/pdfmend/internal/core/domain"
	"github.com/vietddude/pdfmend/internal/infra/cos"
	"github.com/vietddude/pdfmend/internal/infra/storage"
	"github.com/vietddude/pdfmend/internal/repair/diagnostics"
	"github.com/vietddude/pdfmend/internal/repair/metrics"
	"github.com/vietddude/pdfmend/internal/repair/reconstruct"
	"github.com/vietddude/pdfmend/internal/repair/recovery"
)

// Outcome is a recovery run together with its archive record.
type Outcome struct {
	*recovery.Result
	Digest   string
	Record   *domain.ReportRecord
	Archived bool
}

// Service runs recoveries and diagnostics and archives their reports.
type Service struct {
	parsers      map[recovery.Level]*recovery.Parser
	defaultLevel recovery.Level
	strict       *cos.Parser
	recon        *reconstruct.Reconstructor
	diag         *diagnostics.Diagnostics
	repo         storage.ReportRepository
	backend      string
	storePayload bool
	log          *slog.Logger
}

// NewService builds one parser per recovery level from cfg. repo may be nil,
// in which case nothing is archived.
func NewService(cfg *config.AppConfig, repo storage.ReportRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	strict := cos.New()
	recon := reconstruct.New(cfg.Reconstruction, strict, logger)
	diag := diagnostics.New(cfg.Diagnostics, logger)

	parsers := make(map[recovery.Level]*recovery.Parser)
	for _, level := range recovery.Levels() {
		rc := cfg.Recovery
		rc.Level = level
		parsers[level] = recovery.NewParser(rc, strict, recon, diag, logger)
	}

	backend := cfg.Archive.Backend
	if repo == nil {
		backend = config.BackendNone
	}
	return &Service{
		parsers:      parsers,
		defaultLevel: cfg.Recovery.Level,
		strict:       strict,
		recon:        recon,
		diag:         diag,
		repo:         repo,
		backend:      backend,
		storePayload: cfg.Archive.StorePayload,
		log:          logger.With("component", "service"),
	}
}

// Digest returns the hex SHA-256 of data.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Recover runs the recovery pipeline at level, or at the configured level
// when level is nil, and archives the report. The outcome is always set; the
// error only reports an archive failure.
func (s *Service) Recover(
	ctx context.Context,
	source string,
	data []byte,
	level *recovery.Level,
) (*Outcome, error) {
	lvl := s.defaultLevel
	if level != nil {
		lvl = *level
	}
	parser, ok := s.parsers[lvl]
	if !ok {
		parser = s.parsers[s.defaultLevel]
	}

	res := parser.Recover(ctx, data)
	rep := res.Report
	out := &Outcome{
		Result: res,
		Digest: Digest(data),
	}
	out.Record = &domain.ReportRecord{
		ID:                rep.ID,
		Source:            source,
		Digest:            out.Digest,
		Level:             rep.Level.String(),
		Tier:              string(rep.Tier),
		Health:            rep.Health,
		Success:           rep.Success,
		ErrorsEncountered: rep.Statistics.ErrorsEncountered,
		ErrorsRecovered:   rep.Statistics.ErrorsRecovered,
		InputSize:         int64(len(data)),
		OutputSize:        int64(len(res.Data)),
		CreatedAt:         time.Now().UTC(),
	}
	if s.storePayload {
		out.Record.Payload = res.Data
	}

	s.log.Info("Document recovered",
		"id", rep.ID,
		"source", source,
		"tier", rep.Tier,
		"health", rep.Health,
	)

	if s.repo == nil {
		return out, nil
	}
	if err := s.archive("save", func() error { return s.repo.Save(ctx, out.Record) }); err != nil {
		return out, fmt.Errorf("failed to archive report %s: %w", rep.ID, err)
	}
	out.Archived = true
	return out, nil
}

// Diagnose reports the health of data without repairing it. Input the strict
// parser rejects is diagnosed through a fragment reconstruction.
func (s *Service) Diagnose(ctx context.Context, data []byte) *diagnostics.HealthReport {
	var doc *document.Document
	if len(data) > 0 {
		parsed, err := s.strict.Parse(data)
		if err != nil {
			s.log.Debug("Strict parse failed, diagnosing reconstruction", "error", err)
			parsed = s.recon.Reconstruct(ctx, data).Document
		}
		doc = parsed
	}
	return s.diag.Diagnose(ctx, doc, data)
}

// Report fetches an archived report.
func (s *Service) Report(ctx context.Context, id string) (*domain.ReportRecord, error) {
	if s.repo == nil {
		return nil, storage.ErrReportNotFound
	}
	var rec *domain.ReportRecord
	err := s.archive("get", func() (err error) {
		rec, err = s.repo.Get(ctx, id)
		return err
	})
	return rec, err
}

// History lists archived reports for an input digest, newest first.
func (s *Service) History(ctx context.Context, digest string, limit int) ([]*domain.ReportRecord, error) {
	if s.repo == nil {
		return nil, nil
	}
	var recs []*domain.ReportRecord
	err := s.archive("list", func() (err error) {
		recs, err = s.repo.ListByDigest(ctx, digest, limit)
		return err
	})
	return recs, err
}

// Counts returns the number of archived reports per tier.
func (s *Service) Counts(ctx context.Context) (map[string]int, error) {
	if s.repo == nil {
		return map[string]int{}, nil
	}
	var counts map[string]int
	err := s.archive("count", func() (err error) {
		counts, err = s.repo.Count(ctx)
		return err
	})
	return counts, err
}

// Backend names the archive backend in use.
func (s *Service) Backend() string {
	return s.backend
}

func (s *Service) archive(op string, fn func() error) error {
	err := fn()
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrReportNotFound):
		outcome = "not_found"
	default:
		outcome = "error"
		s.log.Warn("Archive operation failed", "backend", s.backend, "operation", op, "error", err)
	}
	metrics.ArchiveOperations.WithLabelValues(s.backend, op, outcome).Inc()
	return err
}
