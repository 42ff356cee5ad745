package provider

import (
	"context"
	"sync"
	"time"

	"shard/internal/logger"
	"shard/internal/sss"
	"shard/internal/store"
)

// Scheduler proactively rotates every stored share on a fixed interval:
// each round generates exactly one RefreshKey per key, applies it to the
// local copy, then asks every other known provider of that key to apply
// the identical key to its own copy. Reusing one RefreshKey across the
// whole round is the invariant that keeps every provider's share valid
// against the same reconstructed secret; regenerating it per peer would
// silently desynchronize the set.
type Scheduler struct {
	provider *Provider
	interval time.Duration
	log      *logger.Logger

	mu      sync.Mutex
	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

// NewScheduler builds a Scheduler that ticks every interval.
func NewScheduler(p *Provider, interval time.Duration, log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.Default()
	}
	return &Scheduler{
		provider: p,
		interval: interval,
		log:      log.With("component", "refresh_scheduler"),
	}
}

// Start runs the scheduler's tick loop in a background goroutine until
// Stop is called or ctx is canceled.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.running = true
	s.mu.Unlock()

	go s.loop(ctx)
}

// Stop halts the tick loop and waits for the in-flight round, if any, to
// finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	stopCh := s.stopCh
	doneCh := s.doneCh
	s.mu.Unlock()

	close(stopCh)
	<-doneCh
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.runRound(ctx)
		}
	}
}

// runRound refreshes every key this node stores. One failed key does
// not stop the others.
func (s *Scheduler) runRound(ctx context.Context) {
	entries, err := s.provider.store.GetAll(ctx)
	if err != nil {
		s.log.Error("failed to list stored shares for refresh round", "error", err)
		return
	}

	for _, entry := range entries {
		if time.Since(entry.UpdatedAt) < s.interval {
			continue
		}
		if err := s.refreshKey(ctx, entry); err != nil {
			s.log.Error("refresh round failed for key", "key", entry.Key, "error", err)
		}
	}
}

// refreshKey performs one key's refresh round: generate a single
// RefreshKey, look up the key's providers (skipping the key when there is
// no DHT, the lookup fails, or it finds none), apply the key locally,
// then propagate it verbatim to every other provider found.
func (s *Scheduler) refreshKey(ctx context.Context, entry store.ShareEntry) error {
	refreshKey, err := sss.GenerateRefreshKey(entry.Threshold, len(entry.Share.Y))
	if err != nil {
		return err
	}

	if s.provider.dht == nil {
		return nil
	}

	providers, err := s.provider.dht.FindProviders(ctx, entry.Key)
	if err != nil {
		s.log.Warn("failed to find co-providers for refresh", "key", entry.Key, "error", err)
		return nil
	}
	if len(providers) == 0 {
		s.log.Warn("no providers found, skipping refresh", "key", entry.Key)
		return nil
	}

	if _, err := s.provider.RefreshShareLocal(ctx, entry.Key, refreshKey); err != nil {
		return err
	}
	s.log.Info("refreshed local share", "key", entry.Key)

	for _, info := range providers {
		if info.ID == s.provider.selfID {
			continue
		}
		ok, err := s.provider.client.RequestRefreshShare(ctx, info.ID, entry.Key, refreshKey)
		if err != nil {
			s.log.Warn("refresh request failed", "key", entry.Key, "peer", info.ID, "error", err)
			continue
		}
		if !ok {
			s.log.Warn("peer declined refresh", "key", entry.Key, "peer", info.ID)
			continue
		}
		s.log.Info("refreshed remote share", "key", entry.Key, "peer", info.ID)
	}
	return nil
}
