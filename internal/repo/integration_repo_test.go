package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/tbourn/go-feedback-pipeline/internal/domain"
)

func TestUpsertIntegration_CreateThenReplace(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := UpsertIntegration(ctx, db, "t1", domain.SourceZendesk, "s1", true); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := UpsertIntegration(ctx, db, "t1", domain.SourceZendesk, "s2", false); err != nil {
		t.Fatalf("replace: %v", err)
	}

	in, err := GetIntegration(ctx, db, "t1", domain.SourceZendesk)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if in.Secret != "s2" || in.Active {
		t.Fatalf("got secret=%q active=%v", in.Secret, in.Active)
	}

	var n int64
	db.Model(&domain.Integration{}).Count(&n)
	if n != 1 {
		t.Fatalf("expected one row, got %d", n)
	}

	if _, err := GetIntegration(ctx, db, "t1", domain.SourceIntercom); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestReserveUsage_Limit(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := ReserveUsage(ctx, db, "t1", "feedback", "2026-10", 3)
		if err != nil || !ok {
			t.Fatalf("reserve %d: ok=%v err=%v", i, ok, err)
		}
	}
	ok, err := ReserveUsage(ctx, db, "t1", "feedback", "2026-10", 3)
	if err != nil || ok {
		t.Fatalf("fourth reserve should be denied: ok=%v err=%v", ok, err)
	}
	// New period starts from zero.
	if ok, _ := ReserveUsage(ctx, db, "t1", "feedback", "2026-11", 3); !ok {
		t.Fatalf("new period should be allowed")
	}

	used, err := GetUsage(ctx, db, "t1", "feedback", "2026-10")
	if err != nil || used != 3 {
		t.Fatalf("used = %d err=%v", used, err)
	}
}

func TestReserveUsage_Unlimited(t *testing.T) {
	db := newTestDB(t)
	for i := 0; i < 5; i++ {
		if ok, err := ReserveUsage(context.Background(), db, "t1", "feedback", "2026-10", 0); !ok || err != nil {
			t.Fatalf("unlimited reserve %d: ok=%v err=%v", i, ok, err)
		}
	}
	used, _ := GetUsage(context.Background(), db, "t1", "feedback", "2026-10")
	if used != 5 {
		t.Fatalf("used = %d", used)
	}
}
