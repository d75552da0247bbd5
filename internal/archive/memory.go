package archive

import (
	"context"
	"errors"
	"sync"

	"leadbridge/internal/leads"
)

var ErrNotFound = errors.New("archive: snapshot not found")

// MemoryRepo stores snapshots in memory. For tests and local runs; also the
// reporting service's source when no database is configured.
type MemoryRepo struct {
	mu    sync.Mutex
	snaps map[string]leads.Snapshot
	order []string
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{snaps: make(map[string]leads.Snapshot)}
}

// SaveSnapshot implements leads.Archive. First write per lead wins.
func (r *MemoryRepo) SaveSnapshot(ctx context.Context, snap leads.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.snaps[snap.LeadID]; ok {
		return nil
	}
	r.snaps[snap.LeadID] = snap
	r.order = append(r.order, snap.LeadID)
	return nil
}

// GetSnapshot loads one archived lead.
func (r *MemoryRepo) GetSnapshot(ctx context.Context, leadID string) (leads.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap, ok := r.snaps[leadID]
	if !ok {
		return leads.Snapshot{}, ErrNotFound
	}
	return snap, nil
}

// ListSnapshots returns all snapshots in insertion order.
func (r *MemoryRepo) ListSnapshots(ctx context.Context) ([]leads.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]leads.Snapshot, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.snaps[id])
	}
	return out, nil
}
