package audit

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"
)

func TestNoteAndTrail(t *testing.T) {
	repo := NewMemoryRepo(100)
	now := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	svc := NewService(repo, slog.New(slog.NewTextHandler(io.Discard, nil))).
		WithClock(func() time.Time { return now })
	ctx := context.Background()

	svc.Note(ctx, "lead-1", "CAc", "bridge-attempted", "commands issued", map[string]any{"room": "lead-room-CAs"})
	svc.Note(ctx, "lead-1", "CAc", "bridge-completed", "both joined", nil)
	svc.Note(ctx, "lead-2", "CAx", "machine-detected", "amd", nil)

	trail, err := svc.Trail(ctx, "lead-1")
	if err != nil {
		t.Fatalf("trail: %v", err)
	}
	if len(trail) != 2 {
		t.Fatalf("expected 2 events, got %d", len(trail))
	}
	if trail[0].Kind != "bridge-attempted" || trail[1].Kind != "bridge-completed" {
		t.Fatalf("wrong order: %+v", trail)
	}
	if trail[0].At != now || trail[0].ID == "" {
		t.Fatalf("event not stamped: %+v", trail[0])
	}
}

func TestMemoryRepo_Bounded(t *testing.T) {
	repo := NewMemoryRepo(3)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := repo.Append(ctx, Event{LeadID: "lead-1", Kind: "k"}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	got, err := repo.ByLead(ctx, "lead-1")
	if err != nil {
		t.Fatalf("by lead: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("trail should be bounded to 3, got %d", len(got))
	}
}
