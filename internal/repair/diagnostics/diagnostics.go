package diagnostics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/pdfmend/internal/core/document"
	"github.com/vietddude/pdfmend/internal/core/domain"
	"github.com/vietddude/pdfmend/internal/repair/metrics"
)

// Diagnostics runs the checkers and scores document health.
type Diagnostics struct {
	cfg Config
	log *slog.Logger
}

// New creates a diagnostics runner.
func New(cfg Config, logger *slog.Logger) *Diagnostics {
	if logger == nil {
		logger = slog.Default()
	}
	return &Diagnostics{cfg: cfg, log: logger.With("component", "diagnostics")}
}

func (d *Diagnostics) checkers() []checker {
	list := []checker{headerChecker{}, structureChecker{}, referenceChecker{}}
	if d.cfg.CheckStreams {
		list = append(list, streamChecker{})
	}
	if d.cfg.CheckIntegrity {
		list = append(list, integrityChecker{cfg: d.cfg})
	}
	return list
}

// Diagnose inspects doc and the bytes it came from. doc may be nil. Checkers
// run concurrently; those that start after ctx is done report Skipped.
func (d *Diagnostics) Diagnose(ctx context.Context, doc *document.Document, data []byte) *HealthReport {
	start := time.Now()
	a := analyze(d.cfg, doc, data)

	checkers := d.checkers()
	findings := make([]Finding, len(checkers))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range checkers {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					findings[i] = Finding{Status: StatusError, Message: fmt.Sprintf("checker panicked: %v", r)}
				}
				findings[i].Checker = c.Name()
			}()
			if gctx.Err() != nil {
				findings[i] = Finding{Status: StatusSkipped, Message: "cancelled"}
				return nil
			}
			findings[i] = c.Check(gctx, a)
			return nil
		})
	}
	_ = g.Wait()

	indicators, integrity := a.indicators(d.cfg)
	score := a.score(integrity, indicators)
	report := &HealthReport{
		Health:          a.health(score),
		Score:           score,
		IntegrityScore:  integrity,
		Structure:       a.flags,
		Indicators:      indicators,
		Recommendations: recommend(indicators),
		Findings:        findings,
		Statistics:      a.stats,
		Elapsed:         time.Since(start),
	}

	for _, f := range findings {
		metrics.DiagnosticChecks.WithLabelValues(f.Checker, string(f.Status)).Inc()
	}
	d.log.Debug("Diagnostics complete",
		"health", report.Health,
		"score", score,
		"indicators", len(indicators),
	)
	return report
}

// QuickHealth classifies health without running the checkers.
func (d *Diagnostics) QuickHealth(doc *document.Document, data []byte) domain.DocumentHealth {
	a := analyze(d.cfg, doc, data)
	indicators, integrity := a.indicators(d.cfg)
	return a.health(a.score(integrity, indicators))
}
