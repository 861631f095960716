package orchestrator

import (
	"context"
	"sync"
)

// BatchRunner executes a single batch end to end. It is supplied by the
// caller (the orchestrator wiring layer) and typically closes over a
// tmlookup.Handler, llmtranslate processors, and a validation.Handler.
type BatchRunner func(ctx context.Context, batchID string) error

// slotRequest is one FIFO ticket waiting for a free execution slot.
type slotRequest struct {
	granted chan struct{}
}

// ParallelHandler runs a fixed number of batches concurrently, queuing the
// rest in FIFO order behind a small semaphore. Grounded on the worker
// pool's buffered-channel-as-semaphore shape, generalized from a fixed
// worker count to a fixed concurrent-batch count with an explicit queue
// so callers can observe how many batches are still waiting.
type ParallelHandler struct {
	progress *ProgressManager

	mu      sync.Mutex
	slots   int // free slots
	waiters []*slotRequest

	activeMu sync.Mutex
	active   map[string]context.CancelFunc
}

const (
	defaultParallelBatches = 3
	minParallelBatches     = 1
	maxParallelBatches     = 20
)

// ClampParallelBatches enforces the [1,20] bound on a requested
// concurrency, substituting the default when n is 0 or negative.
func ClampParallelBatches(n int) int {
	if n <= 0 {
		return defaultParallelBatches
	}
	if n < minParallelBatches {
		return minParallelBatches
	}
	if n > maxParallelBatches {
		return maxParallelBatches
	}
	return n
}

// NewParallelHandler creates a handler allowing up to concurrency batches
// to run at once. concurrency is clamped via ClampParallelBatches.
func NewParallelHandler(progress *ProgressManager, concurrency int) *ParallelHandler {
	return &ParallelHandler{
		progress: progress,
		slots:    ClampParallelBatches(concurrency),
		active:   make(map[string]context.CancelFunc),
	}
}

// acquire blocks until a slot is free or ctx is done, honoring FIFO order
// among concurrent callers.
func (h *ParallelHandler) acquire(ctx context.Context) error {
	h.mu.Lock()
	if h.slots > 0 && len(h.waiters) == 0 {
		h.slots--
		h.mu.Unlock()
		return nil
	}
	req := &slotRequest{granted: make(chan struct{})}
	h.waiters = append(h.waiters, req)
	h.mu.Unlock()

	select {
	case <-req.granted:
		return nil
	case <-ctx.Done():
		h.cancelWaiter(req)
		return ctx.Err()
	}
}

func (h *ParallelHandler) cancelWaiter(req *slotRequest) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, w := range h.waiters {
		if w == req {
			h.waiters = append(h.waiters[:i], h.waiters[i+1:]...)
			return
		}
	}
}

func (h *ParallelHandler) release() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.waiters) == 0 {
		h.slots++
		return
	}
	next := h.waiters[0]
	h.waiters = h.waiters[1:]
	close(next.granted)
}

// Run executes batchIDs through runner with up to the handler's configured
// concurrency in flight, admitting queued batches in batchIDs order. Run
// does not merge progress: each batch's progress is read from the
// ProgressManager through Subscribe. Cancelling ctx propagates to every
// batch still running or queued. Run returns once all batches have
// finished, been cancelled, or ctx was cancelled first.
func (h *ParallelHandler) Run(ctx context.Context, batchIDs []string, runner BatchRunner) []error {
	errs := make([]error, len(batchIDs))
	var wg sync.WaitGroup

	for i, batchID := range batchIDs {
		i, batchID := i, batchID
		// Slots are requested one batch at a time, in list order.
		if err := h.acquire(ctx); err != nil {
			errs[i] = err
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer h.release()

			batchCtx, cancel := context.WithCancel(ctx)
			h.activeMu.Lock()
			h.active[batchID] = cancel
			h.activeMu.Unlock()
			defer func() {
				h.activeMu.Lock()
				delete(h.active, batchID)
				h.activeMu.Unlock()
				cancel()
			}()

			errs[i] = runner(batchCtx, batchID)
		}()
	}

	wg.Wait()
	return errs
}

// CancelAll cancels every batch currently running under this handler. It
// does not affect queued batches that have not yet acquired a slot — those
// observe ctx.Done() (the parent context passed to Run) instead.
func (h *ParallelHandler) CancelAll() {
	h.activeMu.Lock()
	defer h.activeMu.Unlock()
	for _, cancel := range h.active {
		cancel()
	}
}

// QueueDepth reports how many batches are currently waiting for a slot.
func (h *ParallelHandler) QueueDepth() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.waiters)
}
