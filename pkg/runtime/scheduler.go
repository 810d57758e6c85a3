package runtime

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/tcmartin/dagrunner/pkg/logging"
	"github.com/tcmartin/dagrunner/pkg/models"
	"github.com/tcmartin/dagrunner/pkg/registry"
)

// Scheduler owns the live dependency graph of one run. It is bound to a single
// ExecutionState object and mutates it only while holding mu, which it shares
// with the Engine.
//
// Progress is driven by one loop goroutine that calls tick whenever a node
// finishes. Each ready node runs on its own goroutine.
type Scheduler struct {
	ctx      context.Context
	pipeline *models.Pipeline
	state    *models.ExecutionState
	mu       *sync.Mutex
	registry registry.StrategyRegistry
	notify   func()
	logger   logging.Logger

	inDegree   map[string]int
	dependents map[string][]string
	running    map[string]bool
	completed  map[string]bool
	failed     map[string]bool

	wake chan struct{}
	wg   sync.WaitGroup
}

// newScheduler builds the graph for pipeline and seeds it from state. Nodes
// already COMPLETED release their dependents; nodes already FAILED stay failed.
// The caller must hold mu.
func newScheduler(
	ctx context.Context,
	pipeline *models.Pipeline,
	state *models.ExecutionState,
	mu *sync.Mutex,
	reg registry.StrategyRegistry,
	notify func(),
	logger logging.Logger,
) *Scheduler {
	s := &Scheduler{
		ctx:        ctx,
		pipeline:   pipeline,
		state:      state,
		mu:         mu,
		registry:   reg,
		notify:     notify,
		logger:     logger,
		inDegree:   make(map[string]int, len(pipeline.Nodes)),
		dependents: make(map[string][]string, len(pipeline.Nodes)),
		running:    make(map[string]bool),
		completed:  make(map[string]bool),
		failed:     make(map[string]bool),
		wake:       make(chan struct{}, 1),
	}
	// Held by the loop until it exits, so Wait cannot return before Start.
	s.wg.Add(1)

	for _, n := range pipeline.Nodes {
		s.inDegree[n.ID] = 0
	}
	for _, e := range pipeline.Edges {
		if _, ok := s.inDegree[e.Source]; !ok {
			continue
		}
		if _, ok := s.inDegree[e.Target]; !ok {
			continue
		}
		s.dependents[e.Source] = append(s.dependents[e.Source], e.Target)
		s.inDegree[e.Target]++
	}

	for _, n := range pipeline.Nodes {
		switch state.NodeStatusOf(n.ID) {
		case models.NodeCompleted:
			s.completed[n.ID] = true
			s.release(n.ID)
		case models.NodeFailed:
			s.failed[n.ID] = true
		}
	}

	return s
}

// release decrements the in-degree of every dependent of id
func (s *Scheduler) release(id string) {
	for _, dep := range s.dependents[id] {
		if s.inDegree[dep] > 0 {
			s.inDegree[dep]--
		}
	}
}

// Start performs the first tick and, unless the run is already finished,
// starts the loop goroutine. It must be called exactly once.
func (s *Scheduler) Start() {
	if s.safeTick() {
		s.wg.Done()
		return
	}
	go s.loop()
}

// Wait blocks until the loop and every dispatched node goroutine have returned
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) loop() {
	defer s.wg.Done()
	for range s.wake {
		if s.safeTick() {
			return
		}
	}
}

// signal wakes the loop without blocking
func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// safeTick runs tick and converts a panic into a failed run
func (s *Scheduler) safeTick() (done bool) {
	defer func() {
		if r := recover(); r != nil {
			s.mu.Lock()
			s.state.Status = models.RunFailed
			s.mu.Unlock()
			s.logger.Error("scheduler panic",
				logging.F("pipeline_id", s.pipeline.ID),
				logging.F("execution_id", s.state.ExecutionID),
				logging.F("panic", fmt.Sprint(r)),
			)
			s.notify()
			done = true
		}
	}()
	return s.tick()
}

// tick dispatches every ready node and detects the end of the run. It returns
// true once the run is no longer RUNNING and the loop should exit.
func (s *Scheduler) tick() bool {
	s.mu.Lock()
	if s.state.Status != models.RunRunning {
		s.mu.Unlock()
		return true
	}

	ready := s.claimReadyLocked()

	finished := false
	if len(ready) == 0 {
		switch {
		case len(s.completed)+len(s.failed) == len(s.pipeline.Nodes):
			if len(s.failed) > 0 {
				s.state.Status = models.RunFailed
			} else {
				s.state.Status = models.RunCompleted
			}
			finished = true
		case len(s.running) == 0:
			// Nothing running and nothing ready: the remaining nodes wait on
			// failed dependencies and can never start.
			s.state.Status = models.RunFailed
			finished = true
		}
	}
	status := s.state.Status
	executionID := s.state.ExecutionID
	completed, failed := len(s.completed), len(s.failed)

	for _, n := range ready {
		s.wg.Add(1)
		go s.executeNode(n)
	}
	s.mu.Unlock()

	if finished {
		s.logger.LogRunEvent(s.pipeline.ID, executionID, "finished", map[string]interface{}{
			"status":    string(status),
			"completed": completed,
			"failed":    failed,
		})
		s.notify()
	}
	return finished
}

// claimReadyLocked returns the nodes whose dependencies are satisfied and that
// have not started, in declaration order, and marks them running.
func (s *Scheduler) claimReadyLocked() []models.Node {
	var ready []models.Node
	for _, n := range s.pipeline.Nodes {
		if s.inDegree[n.ID] != 0 || s.running[n.ID] || s.completed[n.ID] || s.failed[n.ID] {
			continue
		}
		s.running[n.ID] = true
		ready = append(ready, n)
	}
	return ready
}

// executeNode runs one node's strategy and records the outcome
func (s *Scheduler) executeNode(node models.Node) {
	defer s.wg.Done()
	defer s.signal()

	s.mu.Lock()
	ns := s.state.NodeStates[node.ID]
	if ns == nil {
		ns = &models.NodeState{}
		s.state.NodeStates[node.ID] = ns
	}
	ns.Status = models.NodeRunning
	ns.StartTime = models.NowMillis()
	ns.EndTime = 0
	ns.Error = ""
	ns.Output = nil
	input := models.CopyMap(s.state.Context)
	execCtx := models.CopyMap(s.state.Context)
	baseline := models.CopyMap(s.state.Context)
	executionID := s.state.ExecutionID
	s.mu.Unlock()

	s.logger.LogNodeEvent(s.pipeline.ID, executionID, node.ID, "started", map[string]interface{}{
		"type": node.Type,
	})
	s.notify()

	output, err := s.invoke(node, input, execCtx)
	if err != nil {
		s.fail(node, ns, executionID, err)
		return
	}

	s.mu.Lock()
	mergeContextWrites(s.state.Context, baseline, execCtx)
	if m, ok := output.(map[string]interface{}); ok {
		for k, v := range m {
			s.state.Context[k] = models.CopyValue(v)
		}
	}
	ns.Status = models.NodeCompleted
	ns.Output = output
	ns.EndTime = models.NowMillis()
	delete(s.running, node.ID)
	s.completed[node.ID] = true
	s.release(node.ID)
	duration := ns.EndTime - ns.StartTime
	s.mu.Unlock()

	s.logger.LogNodeEvent(s.pipeline.ID, executionID, node.ID, "completed", map[string]interface{}{
		"duration_ms": duration,
	})
	s.notify()
}

// invoke looks up and calls the node's strategy, converting panics into errors
func (s *Scheduler) invoke(node models.Node, input, execCtx map[string]interface{}) (output interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("strategy panic: %v", r)
		}
	}()

	strategy, err := s.registry.GetStrategy(node.Type)
	if err != nil {
		return nil, err
	}
	return strategy.Execute(s.ctx, node, input, execCtx)
}

func (s *Scheduler) fail(node models.Node, ns *models.NodeState, executionID string, err error) {
	s.mu.Lock()
	ns.Status = models.NodeFailed
	ns.Error = err.Error()
	ns.EndTime = models.NowMillis()
	delete(s.running, node.ID)
	s.failed[node.ID] = true
	s.state.Status = models.RunFailed
	s.mu.Unlock()

	s.logger.Error("node execution failed",
		logging.F("pipeline_id", s.pipeline.ID),
		logging.F("execution_id", executionID),
		logging.F("node_id", node.ID),
		logging.Err(&NodeExecutionError{NodeID: node.ID, Err: err}),
	)
	s.notify()
}

// mergeContextWrites applies the keys a strategy set, changed or deleted in
// its context map to the shared context. Keys it left untouched keep whatever
// concurrent nodes wrote meanwhile. The caller must hold mu.
func mergeContextWrites(shared, baseline, written map[string]interface{}) {
	for k, v := range written {
		if old, ok := baseline[k]; ok && reflect.DeepEqual(old, v) {
			continue
		}
		shared[k] = models.CopyValue(v)
	}
	for k := range baseline {
		if _, ok := written[k]; !ok {
			delete(shared, k)
		}
	}
}
