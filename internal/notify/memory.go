package notify

import (
	"context"
	"sync"

	"leadbridge/internal/leads"
)

// MemoryPublisher collects snapshots in memory. For tests and local runs
// without a broker.
type MemoryPublisher struct {
	mu    sync.Mutex
	snaps []leads.Snapshot
}

func NewMemoryPublisher() *MemoryPublisher { return &MemoryPublisher{} }

func (p *MemoryPublisher) LeadFinished(ctx context.Context, snap leads.Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snaps = append(p.snaps, snap)
	return nil
}

// Published returns a copy of everything published so far.
func (p *MemoryPublisher) Published() []leads.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]leads.Snapshot(nil), p.snaps...)
}
