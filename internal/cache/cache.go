package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"medshelf/backend/internal/alert"
)

// AlertCache keeps the per-owner alert summary between stock mutations.
// Entries are keyed by owner and reference date so a new day never reuses a
// stale classification.
//
// Every owner has a generation that Invalidate bumps. Get reports the
// generation it looked under, and Set only stores for that generation, so a
// summary computed before a mutation can never be served after it.
type AlertCache interface {
	Get(ctx context.Context, ownerID int64, asOf string) (*alert.Summary, int64, bool, error)
	Set(ctx context.Context, ownerID int64, generation int64, value *alert.Summary, ttl time.Duration) error
	Invalidate(ctx context.Context, ownerID int64) error
}

// PurgeGate lets at most one opportunistic purge per owner through within a
// window. Acquire reports true when the caller should run the sweep.
type PurgeGate interface {
	Acquire(ctx context.Context, ownerID int64, window time.Duration) (bool, error)
}

type NoopAlertCache struct{}

func (NoopAlertCache) Get(_ context.Context, _ int64, _ string) (*alert.Summary, int64, bool, error) {
	return nil, 0, false, nil
}

func (NoopAlertCache) Set(_ context.Context, _ int64, _ int64, _ *alert.Summary, _ time.Duration) error {
	return nil
}

func (NoopAlertCache) Invalidate(_ context.Context, _ int64) error {
	return nil
}

// LocalPurgeGate is the single-process gate used when Redis is not configured.
type LocalPurgeGate struct {
	mu   sync.Mutex
	now  func() time.Time
	next map[int64]time.Time
}

func NewLocalPurgeGate() *LocalPurgeGate {
	return &LocalPurgeGate{now: time.Now, next: make(map[int64]time.Time)}
}

func (g *LocalPurgeGate) Acquire(_ context.Context, ownerID int64, window time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if until, ok := g.next[ownerID]; ok && now.Before(until) {
		return false, nil
	}
	g.next[ownerID] = now.Add(window)
	return true, nil
}

func alertKey(ownerID int64, generation int64) string {
	return fmt.Sprintf("medshelf:alerts:%d:%d", ownerID, generation)
}

func generationKey(ownerID int64) string {
	return fmt.Sprintf("medshelf:alerts:gen:%d", ownerID)
}

func purgeKey(ownerID int64) string {
	return fmt.Sprintf("medshelf:purge:%d", ownerID)
}
