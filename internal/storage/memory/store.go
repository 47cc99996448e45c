// Package memory provides an in-memory Store for tests and local
// development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cardstock/stockwatch/internal/monitor"
)

// Store keeps all monitoring state in process memory. Safe for concurrent
// use.
type Store struct {
	mu sync.Mutex

	targets map[string]monitor.Target
	// variant id per target, created lazily
	variants map[string]string
	stores   map[string]monitor.StoreRecord // keyed retailerID/storeCode
	avail    map[string]storeAvailRow       // keyed variantID/storeID

	snapshots map[string][]monitor.Snapshot   // variantID -> append-only
	events    map[string][]monitor.StockEvent // variantID -> append-only

	seq int
}

type storeAvailRow struct {
	avail  monitor.StoreAvail
	seenAt time.Time
}

// New builds an empty Store.
func New() *Store {
	return &Store{
		targets:   make(map[string]monitor.Target),
		variants:  make(map[string]string),
		stores:    make(map[string]monitor.StoreRecord),
		avail:     make(map[string]storeAvailRow),
		snapshots: make(map[string][]monitor.Snapshot),
		events:    make(map[string][]monitor.StockEvent),
	}
}

// AddTarget registers a target, standing in for the external registration
// flow.
func (s *Store) AddTarget(t monitor.Target) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.targets[t.ID] = t
}

// GetTarget looks up one target.
func (s *Store) GetTarget(_ context.Context, id string) (monitor.Target, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.targets[id]
	if !ok {
		return monitor.Target{}, monitor.ErrTargetNotFound
	}
	return t, nil
}

// ListTargets returns targets matching the filter, ordered by id.
func (s *Store) ListTargets(_ context.Context, filter monitor.TargetFilter) ([]monitor.Target, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]monitor.Target, 0, len(s.targets))
	for _, t := range s.targets {
		if filter.Platform != "" && t.RetailerPlatform != filter.Platform {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// EnsureVariant returns the target's variant id, creating it on first use.
func (s *Store) EnsureVariant(_ context.Context, targetID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.targets[targetID]; !ok {
		return "", monitor.ErrTargetNotFound
	}
	if id, ok := s.variants[targetID]; ok {
		return id, nil
	}
	s.seq++
	id := fmt.Sprintf("variant-%d", s.seq)
	s.variants[targetID] = id
	return id, nil
}

// UpsertStore creates or refreshes a physical store row.
func (s *Store) UpsertStore(_ context.Context, retailerID, storeCode, name string) (monitor.StoreRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := retailerID + "/" + storeCode
	if rec, ok := s.stores[key]; ok {
		rec.Name = name
		s.stores[key] = rec
		return rec, nil
	}
	s.seq++
	rec := monitor.StoreRecord{
		ID:         fmt.Sprintf("store-%d", s.seq),
		RetailerID: retailerID,
		StoreCode:  storeCode,
		Name:       name,
	}
	s.stores[key] = rec
	return rec, nil
}

// UpsertStoreAvailability stores the latest per-store signal.
func (s *Store) UpsertStoreAvailability(_ context.Context, variantID, storeID string, avail monitor.StoreAvail, seenAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.avail[variantID+"/"+storeID] = storeAvailRow{avail: avail, seenAt: seenAt}
	return nil
}

// LatestSnapshot returns the most recent snapshot for the variant.
func (s *Store) LatestSnapshot(_ context.Context, variantID string) (monitor.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snaps := s.snapshots[variantID]
	if len(snaps) == 0 {
		return monitor.Snapshot{}, monitor.ErrNoSnapshot
	}
	return snaps[len(snaps)-1], nil
}

// AppendChange appends the snapshot and event together.
func (s *Store) AppendChange(_ context.Context, snap monitor.Snapshot, event monitor.StockEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snap.VariantID] = append(s.snapshots[snap.VariantID], snap)
	s.events[event.VariantID] = append(s.events[event.VariantID], event)
	return nil
}

// Snapshots returns the append-only snapshot history for a variant.
func (s *Store) Snapshots(variantID string) []monitor.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]monitor.Snapshot(nil), s.snapshots[variantID]...)
}

// Events returns the append-only event history for a variant.
func (s *Store) Events(variantID string) []monitor.StockEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]monitor.StockEvent(nil), s.events[variantID]...)
}
