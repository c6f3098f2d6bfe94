package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/pdfmend/internal/core/domain"
	"github.com/vietddude/pdfmend/internal/infra/storage"
)

// ReportRepo implements storage.ReportRepository using Redis. Reports are
// JSON values, each digest indexes its report ids in a sorted set scored by
// creation time and a hash keeps per-tier counters.
type ReportRepo struct {
	client *Client
}

// NewReportRepo creates a new Redis-backed report repository.
func NewReportRepo(client *Client) *ReportRepo {
	return &ReportRepo{client: client}
}

// Save stores a report and updates the digest index and tier counters.
func (r *ReportRepo) Save(ctx context.Context, rec *domain.ReportRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	old, err := r.Get(ctx, rec.ID)
	if err != nil && !errors.Is(err, storage.ErrReportNotFound) {
		return err
	}

	rdb := r.client.rdb
	_, err = rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if old != nil {
			pipe.ZRem(ctx, digestKey(old.Digest), old.ID)
			pipe.HIncrBy(ctx, tierCountsKey, old.Tier, -1)
		}
		pipe.Set(ctx, reportKey(rec.ID), data, r.client.ttl)
		pipe.ZAdd(ctx, digestKey(rec.Digest), redis.Z{
			Score:  float64(rec.CreatedAt.UnixNano()),
			Member: rec.ID,
		})
		pipe.HIncrBy(ctx, tierCountsKey, rec.Tier, 1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}
	return nil
}

// Get retrieves a report by id.
func (r *ReportRepo) Get(ctx context.Context, id string) (*domain.ReportRecord, error) {
	data, err := r.client.rdb.Get(ctx, reportKey(id)).Bytes()
	if err == redis.Nil {
		return nil, storage.ErrReportNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}

	var rec domain.ReportRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report: %w", err)
	}
	return &rec, nil
}

// ListByDigest returns the reports for one digest, newest first. Ids whose
// report has expired are skipped.
func (r *ReportRepo) ListByDigest(
	ctx context.Context,
	digest string,
	limit int,
) ([]*domain.ReportRecord, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	ids, err := r.client.rdb.ZRevRange(ctx, digestKey(digest), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("zrevrange failed: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = reportKey(id)
	}
	values, err := r.client.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget failed: %w", err)
	}

	recs := make([]*domain.ReportRecord, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var rec domain.ReportRecord
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal report: %w", err)
		}
		recs = append(recs, &rec)
	}
	return recs, nil
}

// Count returns the per-tier counters. Counters are not decremented when a
// report expires.
func (r *ReportRepo) Count(ctx context.Context) (map[string]int, error) {
	raw, err := r.client.rdb.HGetAll(ctx, tierCountsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall failed: %w", err)
	}

	counts := make(map[string]int, len(raw))
	for tier, v := range raw {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid count for tier %s: %w", tier, err)
		}
		if n > 0 {
			counts[tier] = n
		}
	}
	return counts, nil
}
