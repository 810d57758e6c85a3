// Package toposort validates that a pipeline is acyclic and produces a linear ordering of its nodes.
package toposort

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tcmartin/dagrunner/pkg/models"
)

// ErrCycleDetected is returned (wrapped in a CycleError) when a pipeline is not a DAG
var ErrCycleDetected = errors.New("cycle detected")

// CycleError lists every node that could not be ordered
type CycleError struct {
	NodeIDs []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%s: pipeline contains a cycle involving nodes [%s]", ErrCycleDetected.Error(), strings.Join(e.NodeIDs, ", "))
}

func (e *CycleError) Unwrap() error { return ErrCycleDetected }

// Sort orders the pipeline's node ids so that every edge source precedes its target.
// Ties are broken by node declaration order. Edges whose endpoints are not
// declared nodes are ignored.
func Sort(pipeline *models.Pipeline) ([]string, error) {
	inDegree := make(map[string]int, len(pipeline.Nodes))
	adjList := make(map[string][]string, len(pipeline.Nodes))

	for _, node := range pipeline.Nodes {
		inDegree[node.ID] = 0
		adjList[node.ID] = nil
	}

	for _, edge := range pipeline.Edges {
		// Edges to or from undeclared nodes have no effect on ordering
		if _, ok := inDegree[edge.Source]; !ok {
			continue
		}
		if _, ok := inDegree[edge.Target]; !ok {
			continue
		}
		adjList[edge.Source] = append(adjList[edge.Source], edge.Target)
		inDegree[edge.Target]++
	}

	queue := make([]string, 0, len(pipeline.Nodes))
	for _, node := range pipeline.Nodes {
		if inDegree[node.ID] == 0 {
			queue = append(queue, node.ID)
		}
	}

	sorted := make([]string, 0, len(pipeline.Nodes))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		sorted = append(sorted, current)

		for _, neighbor := range adjList[current] {
			inDegree[neighbor]--
			if inDegree[neighbor] == 0 {
				queue = append(queue, neighbor)
			}
		}
	}

	if len(sorted) < len(pipeline.Nodes) {
		return nil, &CycleError{NodeIDs: unsorted(pipeline, sorted)}
	}

	return sorted, nil
}

// unsorted returns the node ids missing from sorted, in declaration order
func unsorted(pipeline *models.Pipeline, sorted []string) []string {
	done := make(map[string]bool, len(sorted))
	for _, id := range sorted {
		done[id] = true
	}

	stuck := make([]string, 0, len(pipeline.Nodes)-len(sorted))
	for _, node := range pipeline.Nodes {
		if !done[node.ID] {
			stuck = append(stuck, node.ID)
		}
	}
	return stuck
}
