package runtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tcmartin/dagrunner/pkg/models"
	"github.com/tcmartin/dagrunner/pkg/registry"
)

func node(id, nodeType string) models.Node {
	return models.Node{ID: id, Type: nodeType, Label: id, Data: map[string]interface{}{}}
}

func sleepNode(id string, ms int) models.Node {
	n := node(id, "sleep")
	n.Data["ms"] = ms
	return n
}

func pipelineOf(id string, nodes []models.Node, edges ...[2]string) *models.Pipeline {
	p := &models.Pipeline{ID: id, Name: id, Nodes: nodes, Version: models.DefaultPipelineVersion}
	for _, e := range edges {
		p.Edges = append(p.Edges, models.Edge{ID: e[0] + "-" + e[1], Source: e[0], Target: e[1]})
	}
	return p
}

// counter records how many times each node was executed
type counter struct {
	mu     sync.Mutex
	counts map[string]int
	order  []string
}

func newCounter() *counter {
	return &counter{counts: make(map[string]int)}
}

func (c *counter) wrap(s registry.Strategy) registry.Strategy {
	return registry.StrategyFunc(func(ctx context.Context, n models.Node, input, execCtx map[string]interface{}) (interface{}, error) {
		c.mu.Lock()
		c.counts[n.ID]++
		c.order = append(c.order, n.ID)
		c.mu.Unlock()
		return s.Execute(ctx, n, input, execCtx)
	})
}

func (c *counter) count(id string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[id]
}

func echoStrategy() registry.Strategy {
	return registry.StrategyFunc(func(ctx context.Context, n models.Node, input, execCtx map[string]interface{}) (interface{}, error) {
		return map[string]interface{}{n.ID: "done"}, nil
	})
}

func sleepStrategy() registry.Strategy {
	return registry.StrategyFunc(func(ctx context.Context, n models.Node, input, execCtx map[string]interface{}) (interface{}, error) {
		ms, _ := n.Data["ms"].(int)
		select {
		case <-time.After(time.Duration(ms) * time.Millisecond):
			return map[string]interface{}{n.ID: "done"}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
}

func failStrategy() registry.Strategy {
	return registry.StrategyFunc(func(ctx context.Context, n models.Node, input, execCtx map[string]interface{}) (interface{}, error) {
		return nil, errors.New("boom")
	})
}

// testRegistry registers echo, sleep and fail, each counted by c
func testRegistry(c *counter) *registry.Registry {
	reg := registry.New()
	reg.Register("echo", c.wrap(echoStrategy()))
	reg.Register("sleep", c.wrap(sleepStrategy()))
	reg.Register("fail", c.wrap(failStrategy()))
	return reg
}

func waitDone(t *testing.T, e *Engine) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, e.Wait(ctx))
}
