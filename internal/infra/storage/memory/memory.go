package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vietddude/pdfmend/internal/core/domain"
	"github.com/vietddude/pdfmend/internal/infra/storage"
)

type MemoryStorage struct {
	reports  map[string]*domain.ReportRecord
	byDigest map[string][]string
	mu       sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		reports:  make(map[string]*domain.ReportRecord),
		byDigest: make(map[string][]string),
	}
}

// -----------------------------------------------------------------------------
// Report Repository
// -----------------------------------------------------------------------------

type ReportRepo struct {
	store *MemoryStorage
}

func NewReportRepo(store *MemoryStorage) *ReportRepo {
	return &ReportRepo{store: store}
}

func (r *ReportRepo) Save(ctx context.Context, rec *domain.ReportRecord) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cp := *rec
	if old, ok := r.store.reports[rec.ID]; ok {
		r.store.byDigest[old.Digest] = remove(r.store.byDigest[old.Digest], rec.ID)
	}
	r.store.reports[rec.ID] = &cp
	r.store.byDigest[rec.Digest] = append(r.store.byDigest[rec.Digest], rec.ID)
	return nil
}

func (r *ReportRepo) Get(ctx context.Context, id string) (*domain.ReportRecord, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	rec, ok := r.store.reports[id]
	if !ok {
		return nil, storage.ErrReportNotFound
	}
	cp := *rec
	return &cp, nil
}

func (r *ReportRepo) ListByDigest(ctx context.Context, digest string, limit int) ([]*domain.ReportRecord, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	ids := r.store.byDigest[digest]
	out := make([]*domain.ReportRecord, 0, len(ids))
	for _, id := range ids {
		cp := *r.store.reports[id]
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *ReportRepo) Count(ctx context.Context) (map[string]int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	counts := make(map[string]int)
	for _, rec := range r.store.reports {
		counts[rec.Tier]++
	}
	return counts, nil
}

func remove(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
