package toposort

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tcmartin/dagrunner/pkg/models"
)

func pipelineOf(ids []string, edges [][2]string) *models.Pipeline {
	p := &models.Pipeline{ID: "test"}
	for _, id := range ids {
		p.Nodes = append(p.Nodes, models.Node{ID: id, Type: "log"})
	}
	for i, e := range edges {
		p.Edges = append(p.Edges, models.Edge{ID: fmt.Sprintf("e%d", i), Source: e[0], Target: e[1]})
	}
	return p
}

func assertValidOrder(t *testing.T, p *models.Pipeline, order []string) {
	t.Helper()
	require.ElementsMatch(t, p.NodeIDs(), order)

	position := make(map[string]int, len(order))
	for i, id := range order {
		position[id] = i
	}
	for _, e := range p.Edges {
		assert.Less(t, position[e.Source], position[e.Target], "edge %s -> %s out of order", e.Source, e.Target)
	}
}

func TestSortLinearChain(t *testing.T) {
	p := pipelineOf([]string{"a", "b", "c", "d"}, [][2]string{{"a", "b"}, {"b", "c"}, {"c", "d"}})

	order, err := Sort(p)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d"}, order)
}

func TestSortUsesDeclarationOrderForTies(t *testing.T) {
	p := pipelineOf([]string{"z", "y", "x", "join"}, [][2]string{{"z", "join"}, {"y", "join"}, {"x", "join"}})

	order, err := Sort(p)
	require.NoError(t, err)
	assert.Equal(t, []string{"z", "y", "x", "join"}, order)
}

func TestSortDiamond(t *testing.T) {
	p := pipelineOf([]string{"d", "c", "b", "a"}, [][2]string{{"a", "b"}, {"a", "c"}, {"b", "d"}, {"c", "d"}})

	order, err := Sort(p)
	require.NoError(t, err)
	assertValidOrder(t, p, order)
	assert.Equal(t, []string{"a", "b", "c", "d"}, order)
}

func TestSortEmptyPipeline(t *testing.T) {
	order, err := Sort(&models.Pipeline{ID: "empty"})
	require.NoError(t, err)
	assert.Empty(t, order)
}

func TestSortRandomDAGs(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for round := 0; round < 50; round++ {
		n := 2 + rng.Intn(12)
		ids := make([]string, n)
		for i := range ids {
			ids[i] = fmt.Sprintf("n%d", i)
		}
		// Edges only go from lower to higher rank, then ids are shuffled
		var edges [][2]string
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				if rng.Intn(3) == 0 {
					edges = append(edges, [2]string{ids[i], ids[j]})
				}
			}
		}
		rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })

		p := pipelineOf(ids, edges)
		order, err := Sort(p)
		require.NoError(t, err)
		assertValidOrder(t, p, order)
	}
}

func TestSortTwoNodeCycle(t *testing.T) {
	p := pipelineOf([]string{"A", "B"}, [][2]string{{"A", "B"}, {"B", "A"}})

	_, err := Sort(p)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCycleDetected))

	var cycleErr *CycleError
	require.True(t, errors.As(err, &cycleErr))
	assert.Equal(t, []string{"A", "B"}, cycleErr.NodeIDs)
	assert.Contains(t, err.Error(), "A, B")
}

func TestSortCycleReportsDownstreamNodes(t *testing.T) {
	// root is fine; b <-> c cycle; d depends only on the cycle
	p := pipelineOf([]string{"root", "b", "c", "d"}, [][2]string{{"root", "b"}, {"b", "c"}, {"c", "b"}, {"c", "d"}})

	_, err := Sort(p)
	var cycleErr *CycleError
	require.True(t, errors.As(err, &cycleErr))
	assert.Equal(t, []string{"b", "c", "d"}, cycleErr.NodeIDs)
}

func TestSortSelfLoop(t *testing.T) {
	p := pipelineOf([]string{"a"}, [][2]string{{"a", "a"}})

	_, err := Sort(p)
	var cycleErr *CycleError
	require.True(t, errors.As(err, &cycleErr))
	assert.Equal(t, []string{"a"}, cycleErr.NodeIDs)
}

func TestSortIgnoresEdgesToUndeclaredNodes(t *testing.T) {
	p := pipelineOf([]string{"a", "b"}, [][2]string{{"ghost", "b"}, {"a", "b"}, {"b", "nowhere"}})

	order, err := Sort(p)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, order)
}
