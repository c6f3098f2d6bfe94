package storage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/vietddude/pdfmend/internal/core/domain"
)

// RetryConfig defines retry behavior for archive calls.
type RetryConfig struct {
	MaxAttempts     int           `yaml:"max_attempts"`
	InitialDelay    time.Duration `yaml:"initial_delay"`
	MaxDelay        time.Duration `yaml:"max_delay"`
	BackoffMultiple float64       `yaml:"backoff_multiple"`
}

// DefaultRetryConfig provides sensible defaults.
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:     3,
	InitialDelay:    100 * time.Millisecond,
	MaxDelay:        2 * time.Second,
	BackoffMultiple: 2.0,
}

// retryable reports whether err may succeed on a later attempt.
func retryable(err error) bool {
	return !errors.Is(err, ErrReportNotFound) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}

func calculateBackoff(attempt int, config RetryConfig) time.Duration {
	delay := float64(config.InitialDelay) * math.Pow(config.BackoffMultiple, float64(attempt))
	if delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}
	return time.Duration(delay)
}

// callWithRetry executes fn with exponential backoff.
func callWithRetry(ctx context.Context, config RetryConfig, fn func() error) error {
	attempts := max(config.MaxAttempts, 1)
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable(err) {
			return err
		}
		if attempt == attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(calculateBackoff(attempt, config)):
		}
	}

	if attempts == 1 {
		return lastErr
	}
	return fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}

// RetryingRepository retries transient failures of another repository.
type RetryingRepository struct {
	next   ReportRepository
	config RetryConfig
}

// WithRetry wraps repo so that failed calls are retried with backoff.
func WithRetry(repo ReportRepository, config RetryConfig) *RetryingRepository {
	return &RetryingRepository{next: repo, config: config}
}

func (r *RetryingRepository) Save(ctx context.Context, rec *domain.ReportRecord) error {
	return callWithRetry(ctx, r.config, func() error { return r.next.Save(ctx, rec) })
}

func (r *RetryingRepository) Get(ctx context.Context, id string) (*domain.ReportRecord, error) {
	var rec *domain.ReportRecord
	err := callWithRetry(ctx, r.config, func() (err error) {
		rec, err = r.next.Get(ctx, id)
		return err
	})
	return rec, err
}

func (r *RetryingRepository) ListByDigest(
	ctx context.Context,
	digest string,
	limit int,
) ([]*domain.ReportRecord, error) {
	var recs []*domain.ReportRecord
	err := callWithRetry(ctx, r.config, func() (err error) {
		recs, err = r.next.ListByDigest(ctx, digest, limit)
		return err
	})
	return recs, err
}

func (r *RetryingRepository) Count(ctx context.Context) (map[string]int, error) {
	var counts map[string]int
	err := callWithRetry(ctx, r.config, func() (err error) {
		counts, err = r.next.Count(ctx)
		return err
	})
	return counts, err
}
