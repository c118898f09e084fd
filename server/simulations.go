package server

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chazu/dml/vm"
)

// simulation is a server-side system started from an open document.
type simulation struct {
	id       string
	uri      string
	system   *vm.System
	created  time.Time
	lastUsed time.Time
}

// SimulationStore maps opaque string IDs to running systems. The store is
// safe for concurrent use; the systems themselves are only touched on the
// worker goroutine.
type SimulationStore struct {
	mu     sync.RWMutex
	sims   map[string]*simulation
	nextID atomic.Uint64
}

// NewSimulationStore creates an empty store.
func NewSimulationStore() *SimulationStore {
	return &SimulationStore{sims: make(map[string]*simulation)}
}

// Create registers sys, started from uri, and returns its ID.
func (s *SimulationStore) Create(uri string, sys *vm.System) string {
	id := fmt.Sprintf("sim-%d", s.nextID.Add(1))

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.sims[id] = &simulation{
		id:       id,
		uri:      uri,
		system:   sys,
		created:  now,
		lastUsed: now,
	}
	return id
}

// Lookup returns the system for id.
func (s *SimulationStore) Lookup(id string) (*vm.System, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sim, ok := s.sims[id]
	if !ok {
		return nil, false
	}
	sim.lastUsed = time.Now()
	return sim.system, true
}

// Len returns the number of live simulations.
func (s *SimulationStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sims)
}

// Release drops a simulation.
func (s *SimulationStore) Release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sims, id)
}

// ReleaseDocument drops every simulation started from uri.
func (s *SimulationStore) ReleaseDocument(uri string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, sim := range s.sims {
		if sim.uri == uri {
			delete(s.sims, id)
		}
	}
}

// Sweep removes simulations that haven't been used within the TTL.
func (s *SimulationStore) Sweep(ttl time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-ttl)
	removed := 0
	for id, sim := range s.sims {
		if sim.lastUsed.Before(cutoff) {
			delete(s.sims, id)
			removed++
		}
	}
	if removed > 0 {
		log.Debugf("swept %d idle simulation(s)", removed)
	}
	return removed
}

// StartSweeper runs periodic TTL sweeps in the background.
// Returns a stop function.
func (s *SimulationStore) StartSweeper(interval, ttl time.Duration) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				s.Sweep(ttl)
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()
	return func() { close(done) }
}
