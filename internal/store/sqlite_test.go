package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/avolkov/maildigest/internal/model"
	"github.com/avolkov/maildigest/tests/testutil"
)

func TestCursorMonotonicAdvance(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	for _, v := range []uint32{10, 5, 10, 42, 42, 7} {
		if err := s.AdvanceCursor(ctx, "INBOX", v); err != nil {
			t.Fatalf("AdvanceCursor(%d): %v", v, err)
		}
	}

	c, err := s.GetCursor(ctx, "INBOX")
	if err != nil {
		t.Fatalf("GetCursor: %v", err)
	}
	if c.LastUID != 42 {
		t.Errorf("last_uid = %d; want max of all advances (42)", c.LastUID)
	}
}

func TestCursorMissingFolderIsZero(t *testing.T) {
	s := testutil.NewTestStore(t)

	c, err := s.GetCursor(context.Background(), "never-seen")
	if err != nil {
		t.Fatalf("GetCursor: %v", err)
	}
	if c.LastUID != 0 || c.UIDValidity != "" {
		t.Errorf("fresh cursor = %+v; want zero values", c)
	}
	if c.Folder != "never-seen" {
		t.Errorf("folder = %q", c.Folder)
	}
}

func TestReconcileKeepsFloorOnMatch(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	if _, err := s.Reconcile(ctx, "INBOX", "epoch-1"); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if err := s.AdvanceCursor(ctx, "INBOX", 100); err != nil {
		t.Fatalf("AdvanceCursor: %v", err)
	}

	floor, err := s.Reconcile(ctx, "INBOX", "epoch-1")
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if floor != 100 {
		t.Errorf("floor = %d; want 100", floor)
	}
}

func TestReconcileResetsOnNewToken(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	if _, err := s.Reconcile(ctx, "INBOX", "epoch-1"); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if err := s.AdvanceCursor(ctx, "INBOX", 500); err != nil {
		t.Fatalf("AdvanceCursor: %v", err)
	}

	floor, err := s.Reconcile(ctx, "INBOX", "epoch-2")
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if floor != 0 {
		t.Errorf("floor after reset = %d; want 0", floor)
	}

	c, err := s.GetCursor(ctx, "INBOX")
	if err != nil {
		t.Fatalf("GetCursor: %v", err)
	}
	if c.UIDValidity != "epoch-2" {
		t.Errorf("uidvalidity = %q; want new token persisted", c.UIDValidity)
	}
	if c.LastUID != 0 {
		t.Errorf("last_uid = %d; want 0 after reset", c.LastUID)
	}
}

func TestPausedFlag(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	paused, err := s.GetPaused(ctx)
	if err != nil {
		t.Fatalf("GetPaused: %v", err)
	}
	if paused {
		t.Error("fresh store reports paused")
	}

	if err := s.SetPaused(ctx, true); err != nil {
		t.Fatalf("SetPaused: %v", err)
	}
	if paused, _ = s.GetPaused(ctx); !paused {
		t.Error("pause flag not persisted")
	}

	if err := s.SetPaused(ctx, false); err != nil {
		t.Fatalf("SetPaused: %v", err)
	}
	if paused, _ = s.GetPaused(ctx); paused {
		t.Error("resume not persisted")
	}
}

func TestRunHistory(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	if last, err := s.LastRun(ctx, "INBOX"); err != nil || last != nil {
		t.Fatalf("LastRun on empty store = %v, %v", last, err)
	}

	base := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	for i, total := range []int{3, 7} {
		err := s.RecordRun(ctx, model.RunRecord{
			Folder:     "INBOX",
			StartedAt:  base.Add(time.Duration(i) * time.Hour),
			FinishedAt: base.Add(time.Duration(i)*time.Hour + time.Minute),
			Total:      total,
			Failed:     i,
		})
		if err != nil {
			t.Fatalf("RecordRun: %v", err)
		}
	}

	last, err := s.LastRun(ctx, "INBOX")
	if err != nil {
		t.Fatalf("LastRun: %v", err)
	}
	if last == nil || last.Total != 7 || last.Failed != 1 {
		t.Errorf("LastRun = %+v; want most recent run", last)
	}
	if last.ID == "" {
		t.Error("run ID was not filled in")
	}
}
