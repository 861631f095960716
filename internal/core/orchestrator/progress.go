// Package orchestrator owns the two cross-cutting orchestration concerns
// that don't belong to any one pipeline stage: progress broadcast with
// pause/cancel semantics (ProgressManager), and the fixed-size concurrent
// batch scheduler (ParallelHandler). Grounded on the teacher's ad hoc
// LogCallback/ProgressCallback fields generalized into a registry keyed by
// batch id, and on the worker-pool's per-job stop/semaphore bookkeeping.
package orchestrator

import (
	"context"
	"sync"

	"github.com/lsilvatti/modtranslate/internal/core/domain"
	"github.com/lsilvatti/modtranslate/internal/core/eventbus"
)

// batchState is the single-writer state for one batch's progress stream.
// Every mutation happens under ProgressManager.mu; subscribers only ever
// read off their own channel.
type batchState struct {
	progress    domain.Progress
	subscribers map[int]chan domain.Progress
	nextSubID   int
	paused      bool
	resumeCh    chan struct{}
	cancelled   bool
	cancelCh    chan struct{}
}

// ProgressManager is a registry of batch progress state keyed by batch id.
// One mutex guards all state; broadcasting never blocks on a slow
// subscriber because each subscriber channel is buffered and writes are
// non-blocking (a full channel drops the new update — the subscriber
// keeps what is already buffered and sees later updates once it has room).
type ProgressManager struct {
	mu      sync.Mutex
	batches map[string]*batchState
	bus     *eventbus.EventBus
}

// NewProgressManager creates an empty registry. Pause/Resume/Cancel publish
// nothing until SetEventBus is called.
func NewProgressManager() *ProgressManager {
	return &ProgressManager{batches: make(map[string]*batchState)}
}

// SetEventBus attaches the bus Pause/Resume/Cancel publish batch lifecycle
// events to. A nil bus (the default) makes those publishes no-ops.
func (m *ProgressManager) SetEventBus(bus *eventbus.EventBus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bus = bus
}

// publish is a no-op when no bus is attached. Callers hold m.mu already.
func (m *ProgressManager) publish(evt eventbus.Event) {
	if m.bus != nil {
		m.bus.Publish(evt)
	}
}

// Start registers a new batch and returns its initial progress snapshot.
func (m *ProgressManager) Start(batchID string, totalUnits int) domain.Progress {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := &batchState{
		progress: domain.Progress{
			BatchID:      batchID,
			CurrentPhase: domain.PhaseTmExactLookup,
			TotalUnits:   totalUnits,
		},
		subscribers: make(map[int]chan domain.Progress),
		resumeCh:    make(chan struct{}),
		cancelCh:    make(chan struct{}),
	}
	m.batches[batchID] = st
	return st.progress.Clone()
}

// Subscribe returns a channel of progress snapshots for batchID and an
// unsubscribe function the caller must call when done listening.
func (m *ProgressManager) Subscribe(batchID string) (<-chan domain.Progress, func(), bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.batches[batchID]
	if !ok {
		return nil, func() {}, false
	}

	ch := make(chan domain.Progress, 16)
	id := st.nextSubID
	st.nextSubID++
	st.subscribers[id] = ch

	unsubscribe := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if cur, ok := m.batches[batchID]; ok {
			delete(cur.subscribers, id)
		}
	}

	return ch, unsubscribe, true
}

// UpdateProgress applies mutate to the batch's progress snapshot and
// broadcasts the result to every current subscriber.
func (m *ProgressManager) UpdateProgress(batchID string, mutate func(*domain.Progress)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.batches[batchID]
	if !ok {
		return
	}

	mutate(&st.progress)
	snapshot := st.progress.Clone()
	for _, ch := range st.subscribers {
		select {
		case ch <- snapshot:
		default:
			// subscriber is behind; drop rather than block the writer
		}
	}
}

// Pause marks the batch paused; AwaitCheckpoint calls will block until
// Resume or Cancel.
func (m *ProgressManager) Pause(batchID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.batches[batchID]
	if !ok || st.cancelled {
		return false
	}
	st.paused = true
	st.progress.CurrentPhase = domain.PhasePaused
	m.publish(eventbus.Event{Type: eventbus.BatchPaused, BatchID: batchID})
	return true
}

// Resume un-pauses the batch, releasing any AwaitCheckpoint callers.
func (m *ProgressManager) Resume(batchID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.batches[batchID]
	if !ok || !st.paused {
		return false
	}
	st.paused = false
	close(st.resumeCh)
	st.resumeCh = make(chan struct{})
	m.publish(eventbus.Event{Type: eventbus.BatchResumed, BatchID: batchID})
	return true
}

// Cancel marks the batch cancelled; all current and future
// AwaitCheckpoint calls return ErrCancelled.
func (m *ProgressManager) Cancel(batchID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.batches[batchID]
	if !ok || st.cancelled {
		return false
	}
	st.cancelled = true
	st.progress.CurrentPhase = domain.PhaseCancelled
	close(st.cancelCh)
	m.publish(eventbus.Event{Type: eventbus.BatchCancelled, BatchID: batchID})
	return true
}

// AwaitCheckpoint is the suspension point every pipeline stage calls
// between units of work. It returns ErrCancelled if the batch has been (or
// becomes) cancelled, ctx.Err() if the context is done first, and blocks
// while the batch is paused.
func (m *ProgressManager) AwaitCheckpoint(ctx context.Context, batchID string) error {
	m.mu.Lock()
	st, ok := m.batches[batchID]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	if st.cancelled {
		m.mu.Unlock()
		return ErrCancelled
	}
	if !st.paused {
		m.mu.Unlock()
		return nil
	}
	resumeCh := st.resumeCh
	cancelCh := st.cancelCh
	m.mu.Unlock()

	select {
	case <-resumeCh:
		return m.AwaitCheckpoint(ctx, batchID)
	case <-cancelCh:
		return ErrCancelled
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns the current progress for batchID.
func (m *ProgressManager) Snapshot(batchID string) (domain.Progress, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.batches[batchID]
	if !ok {
		return domain.Progress{}, false
	}
	return st.progress.Clone(), true
}

// Cleanup removes a batch's state and closes every subscriber channel.
func (m *ProgressManager) Cleanup(batchID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.batches[batchID]
	if !ok {
		return
	}
	for _, ch := range st.subscribers {
		close(ch)
	}
	delete(m.batches, batchID)
}
