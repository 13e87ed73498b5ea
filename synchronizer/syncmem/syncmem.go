// Package syncmem is a single-process reference StateSynchronizer,
// grounded on weed/cluster/lock_manager.LockManager's shape: an
// RWMutex-guarded map standing in for the replicated register, with the
// same "fetch snapshot, then compare-and-set" discipline the real
// backend would enforce over the network. It is the implementation unit
// tests and single-binary demos of the coordinator use.
package syncmem

import (
	"context"
	"sync"

	"github.com/golang/glog"

	"github.com/anirudhkovuru/pravega/state"
	"github.com/anirudhkovuru/pravega/synchronizer"
)

// Synchronizer is an in-process StateSynchronizer. The zero value is not
// usable; use New.
type Synchronizer struct {
	mu       sync.RWMutex
	current  *state.State
	revision synchronizer.Revision
}

// New returns a synchronizer with no committed state; the first write
// must be a state.ReaderGroupStateInit applied via UpdateUnconditionally.
func New() *Synchronizer {
	return &Synchronizer{}
}

func (s *Synchronizer) Fetch(ctx context.Context) (*state.State, synchronizer.Revision, error) {
	return s.FetchLatest(ctx)
}

func (s *Synchronizer) FetchLatest(_ context.Context) (*state.State, synchronizer.Revision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil, 0, nil
	}
	return s.current.Clone(), s.revision, nil
}

func (s *Synchronizer) UpdateConditionally(_ context.Context, expected synchronizer.Revision, update state.Update) (*state.State, synchronizer.Revision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.revision != expected {
		glog.V(2).Infof("syncmem: conditional update rejected, have revision %d want %d", s.revision, expected)
		return nil, 0, synchronizer.ErrConflict
	}
	next, err := update.Apply(s.current)
	if err != nil {
		return nil, 0, err
	}
	s.current = next
	s.revision++
	return s.current.Clone(), s.revision, nil
}

func (s *Synchronizer) UpdateUnconditionally(_ context.Context, update state.Update) (*state.State, synchronizer.Revision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := update.Apply(s.current)
	if err != nil {
		return nil, 0, err
	}
	s.current = next
	s.revision++
	return s.current.Clone(), s.revision, nil
}
