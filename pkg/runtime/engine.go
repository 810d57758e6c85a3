// Package runtime executes pipelines: a Scheduler advances one run over its
// dependency graph and an Engine manages the run lifecycle around it.
package runtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/tcmartin/dagrunner/pkg/logging"
	"github.com/tcmartin/dagrunner/pkg/models"
	"github.com/tcmartin/dagrunner/pkg/registry"
	"github.com/tcmartin/dagrunner/pkg/storage"
	"github.com/tcmartin/dagrunner/pkg/toposort"
)

// Listener receives a snapshot of the execution state after every change.
// The snapshot is shared between listeners and must not be modified.
// Listeners run synchronously and must not call Start, Resume, Reset or
// Subscribe on the same engine; doing so deadlocks.
type Listener func(state *models.ExecutionState)

// Option configures an Engine
type Option func(*Engine)

// WithAdapter persists every state change through adapter
func WithAdapter(adapter storage.Adapter) Option {
	return func(e *Engine) {
		e.adapter = adapter
	}
}

// WithLogger sets the engine logger
func WithLogger(logger logging.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithIDGenerator overrides how execution ids are created
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) {
		e.newID = fn
	}
}

type subscription struct {
	id       int
	listener Listener
}

// Engine owns one pipeline and its current execution state
type Engine struct {
	registry registry.StrategyRegistry
	adapter  storage.Adapter
	logger   logging.Logger
	newID    func() string

	// mu guards the fields below and every ExecutionState the engine or its
	// schedulers have created.
	mu        sync.Mutex
	pipeline  *models.Pipeline
	state     *models.ExecutionState
	scheduler *Scheduler
	cancel    context.CancelFunc
	active    int
	idle      chan struct{}

	emitMu sync.Mutex

	subsMu  sync.Mutex
	subs    []subscription
	nextSub int

	persister *persister
}

// NewEngine creates an engine that resolves node types through reg
func NewEngine(reg registry.StrategyRegistry, opts ...Option) *Engine {
	e := &Engine{
		registry: reg,
		logger:   logging.NewNopLogger(),
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.adapter != nil {
		e.persister = newPersister(e.adapter, e.logger)
	}
	return e
}

// SetPipeline replaces the loaded pipeline. A run in progress keeps the
// pipeline it was started with.
func (e *Engine) SetPipeline(pipeline *models.Pipeline) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pipeline = pipeline
}

// Pipeline returns the loaded pipeline, or nil
func (e *Engine) Pipeline() *models.Pipeline {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pipeline
}

// State returns a copy of the current execution state, or nil before the first run
func (e *Engine) State() *models.ExecutionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Clone()
}

// Start begins a fresh run with initialContext as the shared context. ctx
// supplies values only; the run outlives it. Use Cancel to stop a run.
func (e *Engine) Start(ctx context.Context, initialContext map[string]interface{}) error {
	e.mu.Lock()
	if e.pipeline == nil {
		e.mu.Unlock()
		return fmt.Errorf("cannot start: %w", ErrConfiguration)
	}
	pipeline := e.pipeline
	if _, err := toposort.Sort(pipeline); err != nil {
		e.mu.Unlock()
		return err
	}

	e.stopLocked()
	state := models.NewExecutionState(e.newID(), pipeline, models.RunRunning, models.CopyMap(initialContext))
	e.state = state
	sched := e.newSchedulerLocked(ctx, pipeline, state)
	e.mu.Unlock()

	e.logger.LogRunEvent(pipeline.ID, state.ExecutionID, "started", map[string]interface{}{
		"nodes": len(pipeline.Nodes),
	})
	e.emitChange()
	sched.Start()
	return nil
}

// Resume adopts a previously saved state. A RUNNING state continues from where
// it stopped: completed nodes are not executed again. Other states are adopted
// without scheduling anything.
func (e *Engine) Resume(ctx context.Context, saved *models.ExecutionState) error {
	e.mu.Lock()
	if e.pipeline == nil {
		e.mu.Unlock()
		return fmt.Errorf("cannot resume: %w", ErrConfiguration)
	}
	if saved == nil {
		e.mu.Unlock()
		return fmt.Errorf("cannot resume: saved state is nil")
	}
	pipeline := e.pipeline
	if saved.PipelineID != pipeline.ID {
		e.mu.Unlock()
		return &StateMismatchError{Expected: pipeline.ID, Actual: saved.PipelineID}
	}
	if _, err := toposort.Sort(pipeline); err != nil {
		e.mu.Unlock()
		return err
	}

	e.stopLocked()
	state := saved.Clone()
	if state.NodeStates == nil {
		state.NodeStates = make(map[string]*models.NodeState)
	}
	if state.Context == nil {
		state.Context = make(map[string]interface{})
	}
	e.state = state

	var sched *Scheduler
	if state.Status == models.RunRunning {
		sched = e.newSchedulerLocked(ctx, pipeline, state)
	}
	e.mu.Unlock()

	e.logger.LogRunEvent(pipeline.ID, state.ExecutionID, "resumed", map[string]interface{}{
		"status": string(state.Status),
	})
	e.emitChange()
	if sched != nil {
		sched.Start()
	}
	return nil
}

// Reset stops dispatching new nodes for the current run and replaces the state
// with a fresh IDLE one. Nodes already executing are not interrupted; their
// results land on the discarded state. The fresh state is persisted before
// Reset returns.
func (e *Engine) Reset(ctx context.Context) error {
	e.mu.Lock()
	if e.pipeline == nil {
		e.mu.Unlock()
		return nil
	}
	pipeline := e.pipeline
	e.stopLocked()
	state := models.NewExecutionState(e.newID(), pipeline, models.RunIdle, nil)
	e.state = state
	snapshot := state.Clone()
	e.mu.Unlock()

	e.logger.LogRunEvent(pipeline.ID, state.ExecutionID, "reset", nil)
	e.emitChange()

	if e.persister != nil {
		e.persister.save(ctx, snapshot)
	}
	return nil
}

// LoadSaved reads the persisted state of pipelineID through the engine's adapter
func (e *Engine) LoadSaved(ctx context.Context, pipelineID string) (*models.ExecutionState, error) {
	if e.adapter == nil {
		return nil, ErrNoAdapter
	}
	return e.adapter.Load(ctx, pipelineID)
}

// Cancel cancels the context handed to the strategies of the current run.
// Strategies that honor it return early and their nodes fail, which fails the run.
func (e *Engine) Cancel() {
	e.mu.Lock()
	cancel := e.cancel
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Wait blocks until every scheduler started by the engine, including ones
// retired by Reset, has no node left executing.
func (e *Engine) Wait(ctx context.Context) error {
	e.mu.Lock()
	idle := e.idle
	e.mu.Unlock()

	if idle == nil {
		return nil
	}

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe registers listener. It is called immediately with the current
// state when one exists, then after every change until unsubscribed.
func (e *Engine) Subscribe(listener Listener) func() {
	e.emitMu.Lock()
	defer e.emitMu.Unlock()

	e.subsMu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subs = append(e.subs, subscription{id: id, listener: listener})
	e.subsMu.Unlock()

	if snapshot := e.State(); snapshot != nil {
		listener(snapshot)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			e.subsMu.Lock()
			defer e.subsMu.Unlock()
			for i, sub := range e.subs {
				if sub.id == id {
					e.subs = append(e.subs[:i:i], e.subs[i+1:]...)
					break
				}
			}
		})
	}
}

// Close waits for pending snapshots to be persisted. The engine keeps running
// but stops persisting.
func (e *Engine) Close(ctx context.Context) error {
	if e.persister == nil {
		return nil
	}
	return e.persister.close(ctx)
}

// stopLocked flips a RUNNING state to IDLE and wakes its scheduler so the loop
// exits. In-flight nodes continue. The caller must hold mu.
func (e *Engine) stopLocked() {
	if e.state != nil && e.state.Status == models.RunRunning {
		e.state.Status = models.RunIdle
	}
	if e.scheduler != nil {
		e.scheduler.signal()
	}
	e.scheduler = nil
	e.cancel = nil
}

// newSchedulerLocked binds a scheduler to state and tracks it until its last
// node goroutine returns. The caller must hold mu.
func (e *Engine) newSchedulerLocked(ctx context.Context, pipeline *models.Pipeline, state *models.ExecutionState) *Scheduler {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sched := newScheduler(runCtx, pipeline, state, &e.mu, e.registry, e.emitChange, e.logger)

	e.scheduler = sched
	e.cancel = cancel
	if e.active == 0 {
		e.idle = make(chan struct{})
	}
	e.active++

	go func() {
		sched.Wait()
		cancel()

		e.mu.Lock()
		defer e.mu.Unlock()
		e.active--
		if e.active == 0 {
			close(e.idle)
		}
	}()

	return sched
}

// emitChange delivers a snapshot of the current state to every subscriber and
// queues it for persistence. Emits are serialized so subscribers observe
// snapshots in order.
func (e *Engine) emitChange() {
	e.emitMu.Lock()
	defer e.emitMu.Unlock()

	snapshot := e.State()
	if snapshot == nil {
		return
	}

	e.subsMu.Lock()
	subs := make([]subscription, len(e.subs))
	copy(subs, e.subs)
	e.subsMu.Unlock()

	for _, sub := range subs {
		sub.listener(snapshot)
	}

	if e.persister != nil {
		e.persister.enqueue(snapshot)
	}
}
