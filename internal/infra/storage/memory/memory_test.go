package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vietddude/pdfmend/internal/core/domain"
	"github.com/vietddude/pdfmend/internal/infra/storage"
)

func record(id, digest, tier string, at time.Time) *domain.ReportRecord {
	return &domain.ReportRecord{ID: id, Digest: digest, Tier: tier, CreatedAt: at}
}

func TestReportRepo_SaveAndGet(t *testing.T) {
	repo := NewReportRepo(NewMemoryStorage())
	ctx := context.Background()

	rec := record("a", "d1", "clean", time.Now())
	if err := repo.Save(ctx, rec); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	rec.Tier = "mutated"

	got, err := repo.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Tier != "clean" {
		t.Errorf("stored record shares memory with caller: tier %q", got.Tier)
	}

	if _, err := repo.Get(ctx, "missing"); !errors.Is(err, storage.ErrReportNotFound) {
		t.Errorf("expected ErrReportNotFound, got %v", err)
	}
}

func TestReportRepo_ListByDigest(t *testing.T) {
	repo := NewReportRepo(NewMemoryStorage())
	ctx := context.Background()
	base := time.Now()

	_ = repo.Save(ctx, record("old", "d1", "clean", base))
	_ = repo.Save(ctx, record("new", "d1", "repaired", base.Add(time.Minute)))
	_ = repo.Save(ctx, record("other", "d2", "clean", base))

	list, err := repo.ListByDigest(ctx, "d1", 0)
	if err != nil {
		t.Fatalf("ListByDigest failed: %v", err)
	}
	if len(list) != 2 || list[0].ID != "new" || list[1].ID != "old" {
		t.Errorf("unexpected order: %+v", list)
	}

	list, _ = repo.ListByDigest(ctx, "d1", 1)
	if len(list) != 1 || list[0].ID != "new" {
		t.Errorf("limit not applied: %+v", list)
	}
}

func TestReportRepo_ResaveMovesDigest(t *testing.T) {
	repo := NewReportRepo(NewMemoryStorage())
	ctx := context.Background()

	_ = repo.Save(ctx, record("a", "d1", "clean", time.Now()))
	_ = repo.Save(ctx, record("a", "d2", "clean", time.Now()))

	if list, _ := repo.ListByDigest(ctx, "d1", 0); len(list) != 0 {
		t.Errorf("stale digest index: %+v", list)
	}
	if list, _ := repo.ListByDigest(ctx, "d2", 0); len(list) != 1 {
		t.Errorf("expected 1 report under d2, got %d", len(list))
	}
}

func TestReportRepo_Count(t *testing.T) {
	repo := NewReportRepo(NewMemoryStorage())
	ctx := context.Background()

	_ = repo.Save(ctx, record("a", "d1", "clean", time.Now()))
	_ = repo.Save(ctx, record("b", "d1", "clean", time.Now()))
	_ = repo.Save(ctx, record("c", "d2", "salvaged", time.Now()))

	counts, err := repo.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if counts["clean"] != 2 || counts["salvaged"] != 1 {
		t.Errorf("unexpected counts %v", counts)
	}
}
