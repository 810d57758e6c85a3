package runtime

import (
	"context"
	"sync"

	"github.com/tcmartin/dagrunner/pkg/logging"
	"github.com/tcmartin/dagrunner/pkg/models"
	"github.com/tcmartin/dagrunner/pkg/storage"
)

// persister saves snapshots in the background. Only the latest pending
// snapshot is kept; older ones are dropped when a newer one arrives before the
// worker gets to them. Failures are logged and never returned.
type persister struct {
	adapter storage.Adapter
	logger  logging.Logger

	mu      sync.Mutex
	pending *models.ExecutionState
	closed  bool

	saveMu  sync.Mutex
	wake    chan struct{}
	quit    chan struct{}
	stopped chan struct{}
}

func newPersister(adapter storage.Adapter, logger logging.Logger) *persister {
	p := &persister{
		adapter: adapter,
		logger:  logger,
		wake:    make(chan struct{}, 1),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go p.run()
	return p
}

// enqueue replaces the pending snapshot. The snapshot must not be modified afterwards.
func (p *persister) enqueue(state *models.ExecutionState) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.pending = state
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *persister) run() {
	defer close(p.stopped)
	for {
		select {
		case <-p.wake:
			p.flush()
		case <-p.quit:
			p.flush()
			return
		}
	}
}

// flush saves the pending snapshot. The pending slot is read after saveMu is
// acquired so a snapshot is never written after a newer synchronous save.
func (p *persister) flush() {
	p.saveMu.Lock()
	defer p.saveMu.Unlock()

	p.mu.Lock()
	state := p.pending
	p.pending = nil
	p.mu.Unlock()

	if state != nil {
		p.saveLocked(context.Background(), state)
	}
}

// save writes a snapshot immediately. Saves are serialized with the worker.
func (p *persister) save(ctx context.Context, state *models.ExecutionState) {
	p.saveMu.Lock()
	defer p.saveMu.Unlock()
	p.saveLocked(ctx, state)
}

func (p *persister) saveLocked(ctx context.Context, state *models.ExecutionState) {
	if err := p.adapter.Save(ctx, state); err != nil {
		p.logger.Warn("failed to persist execution state",
			logging.F("pipeline_id", state.PipelineID),
			logging.F("execution_id", state.ExecutionID),
			logging.F("status", string(state.Status)),
			logging.Err(err),
		)
	}
}

// close stops accepting snapshots and waits for the pending one to be written
func (p *persister) close(ctx context.Context) error {
	p.mu.Lock()
	already := p.closed
	p.closed = true
	p.mu.Unlock()

	if !already {
		close(p.quit)
	}

	select {
	case <-p.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
