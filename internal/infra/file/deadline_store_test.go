package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDeadlineStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "deadlines.yaml")
	ctx := context.Background()
	deadline := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)

	if err := NewDeadlineStore(path).SaveDeadline(ctx, "attempt:d1:u1", deadline); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := NewDeadlineStore(path).SaveDeadline(ctx, "attempt:d2:u1", deadline.Add(time.Hour)); err != nil {
		t.Fatalf("save second: %v", err)
	}

	reopened := NewDeadlineStore(path)
	got, ok, err := reopened.LoadDeadline(ctx, "attempt:d1:u1")
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if !got.Equal(deadline) {
		t.Fatalf("expected %s, got %s", deadline, got)
	}

	if err := reopened.ClearDeadline(ctx, "attempt:d1:u1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, ok, _ := NewDeadlineStore(path).LoadDeadline(ctx, "attempt:d1:u1"); ok {
		t.Fatalf("expected cleared deadline")
	}
	if _, ok, _ := NewDeadlineStore(path).LoadDeadline(ctx, "attempt:d2:u1"); !ok {
		t.Fatalf("expected other attempt untouched")
	}
}

func TestDeadlineStoreMissingFile(t *testing.T) {
	store := NewDeadlineStore(filepath.Join(t.TempDir(), "none.yaml"))
	if _, ok, err := store.LoadDeadline(context.Background(), "k"); ok || err != nil {
		t.Fatalf("expected empty store, got ok=%v err=%v", ok, err)
	}
	if err := store.ClearDeadline(context.Background(), "k"); err != nil {
		t.Fatalf("clear on empty store: %v", err)
	}
}

func TestDeadlineStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deadlines.yaml")
	if err := os.WriteFile(path, []byte("deadlines: [not, a, map"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, _, err := NewDeadlineStore(path).LoadDeadline(context.Background(), "k"); err == nil {
		t.Fatalf("expected decode error")
	}
}
