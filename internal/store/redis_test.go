package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/classstock/trading-engine/internal/model"
)

func newCachedEnv(t *testing.T) (*CachedStore, *MemoryStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	primary := NewMemoryStore()
	return NewCachedStore(primary, rdb, time.Minute), primary
}

func seedCachedStudent(t *testing.T, primary *MemoryStore) *model.StudentAccount {
	t.Helper()
	acct := &model.StudentAccount{
		ID:       "s1",
		Nickname: "mina",
		ClassID:  "c1",
		Cash:     decimal.NewFromInt(1_000_000),
		Holdings: map[string]model.Holding{},
	}
	if err := primary.CreateStudent(context.Background(), acct); err != nil {
		t.Fatal(err)
	}
	return acct
}

func TestCachedStore_StudentReadThrough(t *testing.T) {
	cached, primary := newCachedEnv(t)
	seedCachedStudent(t, primary)
	ctx := context.Background()

	// First read populates the cache.
	acct, err := cached.GetStudent(ctx, "s1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !acct.Cash.Equal(decimal.NewFromInt(1_000_000)) {
		t.Errorf("cash = %s", acct.Cash)
	}

	// Removing the row from the primary proves the next read is a
	// cache hit.
	if err := primary.DeleteStudent(ctx, "s1"); err != nil {
		t.Fatal(err)
	}
	if _, err := cached.GetStudent(ctx, "s1"); err != nil {
		t.Errorf("expected cache hit after primary delete, got %v", err)
	}
}

func TestCachedStore_UpdateStudentInvalidates(t *testing.T) {
	cached, primary := newCachedEnv(t)
	acct := seedCachedStudent(t, primary)
	ctx := context.Background()

	if _, err := cached.GetStudent(ctx, "s1"); err != nil {
		t.Fatalf("priming read failed: %v", err)
	}

	acct.Cash = decimal.NewFromInt(250_000)
	if err := cached.UpdateStudent(ctx, acct); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	// The stale cached copy must be gone.
	got, err := cached.GetStudent(ctx, "s1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !got.Cash.Equal(decimal.NewFromInt(250_000)) {
		t.Errorf("cash = %s, want 250000 (stale cache served)", got.Cash)
	}
}

func TestCachedStore_DeleteStudentInvalidates(t *testing.T) {
	cached, primary := newCachedEnv(t)
	seedCachedStudent(t, primary)
	ctx := context.Background()

	if _, err := cached.GetStudent(ctx, "s1"); err != nil {
		t.Fatalf("priming read failed: %v", err)
	}
	if err := cached.DeleteStudent(ctx, "s1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	if _, err := cached.GetStudent(ctx, "s1"); err == nil {
		t.Error("deleted student still served from cache")
	}
}

func TestCachedStore_UpdateClassInvalidates(t *testing.T) {
	cached, primary := newCachedEnv(t)
	ctx := context.Background()

	class := &model.ClassConfig{
		ID:            "c1",
		Name:          "Grade 6 Class 2",
		ActivityStart: "2026-03-01",
		ActivityEnd:   "2026-07-31",
		SeedMoney:     decimal.NewFromInt(1_000_000),
		AllowedStocks: []string{},
	}
	if err := primary.CreateClass(ctx, class); err != nil {
		t.Fatal(err)
	}
	if _, err := cached.GetClass(ctx, "c1"); err != nil {
		t.Fatalf("priming read failed: %v", err)
	}

	class.AllowedStocks = []string{"005930"}
	if err := cached.UpdateClass(ctx, class); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	got, err := cached.GetClass(ctx, "c1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if len(got.AllowedStocks) != 1 || got.AllowedStocks[0] != "005930" {
		t.Errorf("allowed stocks = %v (stale cache served)", got.AllowedStocks)
	}
}
