package recovery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/pdfmend/internal/core/document"
	"github.com/vietddude/pdfmend/internal/core/domain"
	"github.com/vietddude/pdfmend/internal/infra/cos"
	"github.com/vietddude/pdfmend/internal/repair/diagnostics"
	"github.com/vietddude/pdfmend/internal/repair/metrics"
	"github.com/vietddude/pdfmend/internal/repair/reconstruct"
)

// surroundingSize is how many bytes from the error offset are kept in the log.
const surroundingSize = 64

// StructuralParser is the strict grammar-level parser.
type StructuralParser interface {
	Parse(data []byte) (*document.Document, error)
	ParseObject(data []byte) (document.Value, *document.Reference, error)
}

// Reconstructor rebuilds a document from fragments when repair fails.
type Reconstructor interface {
	Reconstruct(ctx context.Context, data []byte) *reconstruct.Result
}

// Diagnoser scores the health of a document.
type Diagnoser interface {
	Diagnose(ctx context.Context, doc *document.Document, data []byte) *diagnostics.HealthReport
}

// Parser runs the recovery pipeline.
type Parser struct {
	cfg        Config
	structural StructuralParser
	recon      Reconstructor
	diag       Diagnoser
	strategies []Strategy
	log        *slog.Logger
}

// NewParser creates a recovery parser. Nil collaborators are replaced by the
// default implementations.
func NewParser(
	cfg Config,
	structural StructuralParser,
	recon Reconstructor,
	diag Diagnoser,
	logger *slog.Logger,
) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	if structural == nil {
		structural = cos.New()
	}
	if recon == nil {
		rc := reconstruct.DefaultConfig()
		rc.PreserveUnknownObjects = cfg.PreservePartialObjects
		rc.SkipCorruptedObjects = cfg.SkipCorruptedObjects
		recon = reconstruct.New(rc, structural, logger)
	}
	if diag == nil {
		diag = diagnostics.New(diagnostics.DefaultConfig(), logger)
	}
	return &Parser{
		cfg:        cfg,
		structural: structural,
		recon:      recon,
		diag:       diag,
		strategies: StrategiesFor(cfg),
		log:        logger.With("component", "recovery"),
	}
}

// Strategies returns the names of the strategies the parser applies, in order.
func (p *Parser) Strategies() []string {
	names := make([]string, len(p.strategies))
	for i, s := range p.strategies {
		names[i] = s.Name()
	}
	return names
}

// run holds the mutable state of one Recover call.
type run struct {
	machine *machine
	report  *Report
	stats   Statistics
	applied []Strategy
	log     *slog.Logger
}

func (r *run) move(to State, reason string) {
	if err := r.machine.transition(to, reason); err != nil {
		r.log.Error("State transition rejected", "err", err)
	}
}

func (r *run) logError(e RecoveryError, maxErrors int) {
	r.stats.ErrorsEncountered++
	r.report.Errors = append(r.report.Errors, e)
	if maxErrors > 0 && len(r.report.Errors) > maxErrors {
		drop := len(r.report.Errors) - maxErrors
		r.report.Errors = append([]RecoveryError(nil), r.report.Errors[drop:]...)
		r.report.ErrorsDropped += drop
	}
}

// Recover parses data, repairing or reconstructing it as needed. It never
// fails: the result always carries a document and a report.
func (p *Parser) Recover(ctx context.Context, data []byte) *Result {
	start := time.Now()
	r := &run{
		machine: newMachine(),
		report:  &Report{ID: uuid.NewString(), Level: p.cfg.Level},
	}
	r.log = p.log.With("run", r.report.ID)

	final := data
	r.move(StateNormalParse, "strict parse of input")
	doc, err := p.structural.Parse(data)
	switch {
	case err == nil:
		r.report.Tier = TierClean
		r.move(StateDiagnosticsRun, "input parsed cleanly")
	case len(data) == 0:
		r.logError(classify(err, data), p.cfg.MaxErrors)
		r.move(StateFallback, "empty input")
		doc = p.fallback(ctx, r, data)
		r.move(StateDiagnosticsRun, "fallback document built")
	default:
		r.logError(classify(err, data), p.cfg.MaxErrors)
		r.log.Debug("Strict parse failed, starting recovery", "err", err)
		r.move(StateRecoveryInProgress, err.Error())

		final = p.pipeline(ctx, r, data)
		r.move(StatePipelineApplied, fmt.Sprintf("%d strategies applied", len(r.report.Actions)))

		r.move(StateFinalParse, "strict parse of repaired buffer")
		doc, err = p.structural.Parse(final)
		if err == nil {
			r.report.Tier = TierRepaired
			p.attribute(r)
			r.move(StateDiagnosticsRun, "repaired buffer parsed")
		} else {
			r.logError(classify(err, final), p.cfg.MaxErrors)
			r.move(StateFallback, err.Error())
			doc = p.fallback(ctx, r, final)
			r.move(StateDiagnosticsRun, "fallback document built")
		}
	}

	hr := p.diag.Diagnose(ctx, doc, final)
	health := hr.Health
	if r.report.Tier == TierReconstructed || r.report.Tier == TierSalvaged {
		health = domain.WorstHealth(health, domain.HealthDamaged)
	}
	r.move(StateDone, "report assembled")

	r.stats.Elapsed = time.Since(start)
	rep := r.report
	rep.Success = rep.Tier == TierClean || rep.Tier == TierRepaired
	rep.Statistics = r.stats
	rep.SuccessRate = r.stats.SuccessRate()
	rep.Health = health
	rep.Diagnostics = hr
	rep.Transitions = r.machine.trace

	metrics.RecoveryRuns.WithLabelValues(string(rep.Tier), health.String()).Inc()
	metrics.RecoveryDuration.Observe(r.stats.Elapsed.Seconds())
	r.log.Info("Recovery complete",
		"tier", rep.Tier,
		"health", health,
		"errors", r.stats.ErrorsEncountered,
		"recovered", r.stats.ErrorsRecovered,
		"elapsed", r.stats.Elapsed,
	)
	return &Result{Document: doc, Data: final, Report: rep}
}

// pipeline applies every strategy once, in order, threading the buffer.
// The timeout only bounds this stage; strategies left when it expires are
// recorded as skipped.
func (p *Parser) pipeline(ctx context.Context, r *run, data []byte) []byte {
	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	buf := bytes.Clone(data)
	var best *document.Document
	for _, s := range p.strategies {
		if err := ctx.Err(); err != nil {
			r.report.Actions = append(r.report.Actions, Action{
				Strategy:    s.Name(),
				Type:        ActionSkipped,
				Description: "not applied",
				Error:       err.Error(),
			})
			metrics.StrategyApplications.WithLabelValues(s.Name(), "skipped").Inc()
			continue
		}

		c := &Context{
			Original: data,
			Current:  buf,
			Document: best,
			Config:   p.cfg,
			Errors:   append([]RecoveryError(nil), r.report.Errors...),
		}
		started := time.Now()
		res, err := apply(s, c)
		elapsed := time.Since(started)
		metrics.StrategyDuration.WithLabelValues(s.Name()).Observe(elapsed.Seconds())

		if err == nil && !res.Success {
			err = errors.New("strategy reported failure")
		}
		if err != nil {
			r.log.Warn("Strategy failed", "strategy", s.Name(), "err", err)
			r.report.Actions = append(r.report.Actions, Action{
				Strategy:    s.Name(),
				Type:        ActionFailed,
				Description: res.Description,
				Error:       err.Error(),
				Duration:    elapsed,
			})
			metrics.StrategyApplications.WithLabelValues(s.Name(), "failed").Inc()
			continue
		}

		changed := res.Data != nil
		r.report.Actions = append(r.report.Actions, Action{
			Strategy:    s.Name(),
			Type:        res.Action,
			Success:     true,
			Changed:     changed,
			Fixes:       res.Fixes,
			Description: res.Description,
			Duration:    elapsed,
		})
		switch res.Action {
		case ActionHeuristicPatch:
			r.stats.HeuristicFixes += res.Fixes
		case ActionFuzzyMatch:
			r.stats.FuzzyMatches += res.Fixes
		}
		outcome := "unchanged"
		if changed {
			outcome = "changed"
			buf = res.Data
			r.applied = append(r.applied, s)
		}
		if res.Document != nil {
			best = res.Document
		}
		metrics.StrategyApplications.WithLabelValues(s.Name(), outcome).Inc()
		r.log.Debug("Strategy applied", "strategy", s.Name(), "changed", changed, "fixes", res.Fixes)
	}
	return buf
}

// apply runs one strategy, turning a panic into an error.
func apply(s Strategy, c *Context) (res StrategyResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("strategy panicked: %v", rec)
		}
	}()
	return s.Apply(c)
}

// attribute marks logged errors as recovered after a successful repaired
// parse. Each error is credited to the first buffer-changing strategy that
// handles its kind, or to the last one that changed the buffer.
func (p *Parser) attribute(r *run) {
	if len(r.applied) == 0 {
		return
	}
	last := r.applied[len(r.applied)-1]
	for i := range r.report.Errors {
		e := &r.report.Errors[i]
		credit := last
		for _, s := range r.applied {
			if s.CanHandle(e.Kind) {
				credit = s
				break
			}
		}
		e.Attempt = &RecoveryAttempt{Strategy: credit.Name(), Success: true}
	}
	r.stats.ErrorsRecovered = r.stats.ErrorsEncountered
}

func (p *Parser) fallback(ctx context.Context, r *run, data []byte) *document.Document {
	if p.cfg.AttemptStructureReconstruction {
		res := p.recon.Reconstruct(ctx, data)
		r.report.Tier = TierReconstructed
		r.report.Reconstruction = &ReconstructionSummary{
			FragmentsProcessed: res.Stats.FragmentsProcessed,
			ObjectsRecovered:   res.Stats.ObjectsRecovered,
			ObjectsSkipped:     res.Stats.ObjectsSkipped,
			Confidence:         res.Confidence,
			Assembled:          res.Assembled,
			Events:             len(res.Events),
		}
		r.stats.ObjectsReconstructed += res.Stats.ObjectsRecovered
		r.stats.ObjectsSkipped += res.Stats.ObjectsSkipped
		r.log.Info("Document reconstructed from fragments",
			"fragments", res.Stats.FragmentsProcessed,
			"objects", res.Stats.ObjectsRecovered,
			"confidence", res.Confidence,
		)
		return res.Document
	}

	doc, kept, skipped := salvage(data, p.structural, p.cfg, r.log)
	r.report.Tier = TierSalvaged
	r.stats.ObjectsReconstructed += kept
	r.stats.ObjectsSkipped += skipped
	r.log.Info("Salvaged objects into best-effort document", "objects", kept, "skipped", skipped)
	return doc
}

// classify turns a parse error into a log entry.
func classify(err error, data []byte) RecoveryError {
	e := RecoveryError{
		Kind:     domain.ErrorKindParse,
		Severity: domain.SeverityError,
		Message:  err.Error(),
		Context:  ErrorContext{Hints: map[string]string{}},
	}

	var se *cos.SyntaxError
	switch {
	case len(data) == 0 || errors.Is(err, cos.ErrEmptyInput):
		e.Kind = domain.ErrorKindUnknownFormat
		e.Severity = domain.SeverityFatal
		e.Location.Context = "empty input"
		return e
	case errors.As(err, &se):
		e.Kind = kindOf(se.Category)
		e.Location.Offset = min(max(se.Offset, 0), len(data))
		if se.Object >= 0 {
			n := se.Object
			e.Location.Object = &n
		}
		if se.Expected != "" {
			e.Severity = domain.SeverityCritical
			e.Context.Hints[HintExpectedContent] = se.Expected
		}
	}

	off := e.Location.Offset
	e.Location.Line = bytes.Count(data[:off], []byte{'\n'}) + 1
	e.Location.Context = excerpt(data, off)
	e.Context.Surrounding = bytes.Clone(data[off:min(off+surroundingSize, len(data))])
	return e
}

func kindOf(c cos.Category) domain.ErrorKind {
	switch c {
	case cos.CategoryHeader:
		return domain.ErrorKindUnknownFormat
	case cos.CategoryXref, cos.CategoryTrailer, cos.CategoryEOF:
		return domain.ErrorKindStructural
	case cos.CategoryStream:
		return domain.ErrorKindStream
	case cos.CategoryReference:
		return domain.ErrorKindReference
	default:
		return domain.ErrorKindParse
	}
}

// excerpt renders up to 24 bytes on each side of off, with unprintable
// bytes shown as '.'.
func excerpt(data []byte, off int) string {
	from := max(off-24, 0)
	to := min(off+24, len(data))
	out := make([]byte, 0, to-from)
	for _, b := range data[from:to] {
		if b < 0x20 || b > 0x7e {
			b = '.'
		}
		out = append(out, b)
	}
	return string(out)
}
