package explore

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeffa5/toy-crdt/awset"
	"github.com/jeffa5/toy-crdt/check"
	"github.com/jeffa5/toy-crdt/model"
)

func initialState(t *testing.T, sem awset.Semantics, sc model.Scenario, d model.Discipline) model.Global {
	t.Helper()
	g, err := model.Initial(sem, sc, d, false)
	require.NoError(t, err)
	return g
}

// remoteRemoveScenario has the removal issued by a replica that learned of the
// add second-hand, with a third replica only observing. Per-sender ordering
// cannot relate the remove to the add it depends on, so the observer may see
// them reversed.
func remoteRemoveScenario() model.Scenario {
	return model.Scenario{
		Servers: 3,
		Ops: [][]awset.Op{
			{awset.Add("k")},
			{awset.Remove("k")},
			nil,
		},
	}
}

func requireSettledViolation(t *testing.T, outcome Outcome) {
	t.Helper()
	require.Equal(t, OutcomeViolation, outcome.Kind)
	require.NotEmpty(t, outcome.Path)
	assert.Empty(t, outcome.Path[0].Label, "the path must start at the initial state")
	final := outcome.Path[len(outcome.Path)-1].State
	assert.True(t, final.Drained() && final.Quiescent(), "violations only count once settled")
	assert.False(t, check.Safe(final))
	assert.NotEmpty(t, check.Explain(final))
}

func TestContextFreeTwoReplicasViolates(t *testing.T) {
	init := initialState(t, awset.ContextFree, model.DefaultScenario(2, 2, 2, "k"), model.FIFO)

	bfs, err := Search(context.Background(), init, Options{Strategy: BFS, Validate: true})
	require.NoError(t, err)
	requireSettledViolation(t, bfs)

	dfs, err := Search(context.Background(), init, Options{Strategy: DFS, Validate: true})
	require.NoError(t, err)
	requireSettledViolation(t, dfs)

	assert.LessOrEqual(t, bfs.PathLength(), dfs.PathLength(),
		"breadth-first counterexamples are minimal")
}

func TestContextAwareTwoReplicasHolds(t *testing.T) {
	init := initialState(t, awset.ContextAware, model.DefaultScenario(2, 2, 2, "k"), model.FIFO)
	outcome, err := Search(context.Background(), init, Options{Strategy: BFS, Validate: true})
	require.NoError(t, err)
	assert.Equal(t, OutcomeOK, outcome.Kind)
	assert.Empty(t, outcome.Path)
	assert.Greater(t, outcome.Explored, 1)
}

func TestSingleReplicaAlwaysHolds(t *testing.T) {
	for _, sem := range []awset.Semantics{awset.ContextAware, awset.ContextFree} {
		init := initialState(t, sem, model.DefaultScenario(1, 1, 1, "k"), model.FIFO)
		outcome, err := Search(context.Background(), init, Options{Strategy: BFS, Validate: true})
		require.NoError(t, err)
		assert.Equal(t, OutcomeOK, outcome.Kind, sem.Name())
	}
}

// Even the corrected semantics needs causal delivery once a removal can be
// issued by a replica other than the adder: under per-sender ordering alone,
// the observer can apply the remove before the add and resurrect the element.
func TestContextAwareThreeReplicasFIFOViolates(t *testing.T) {
	init := initialState(t, awset.ContextAware, remoteRemoveScenario(), model.FIFO)
	outcome, err := Search(context.Background(), init, Options{Strategy: BFS, Validate: true})
	require.NoError(t, err)
	requireSettledViolation(t, outcome)
}

func TestContextAwareThreeReplicasCausalHolds(t *testing.T) {
	init := initialState(t, awset.ContextAware, remoteRemoveScenario(), model.Causal)
	outcome, err := Search(context.Background(), init, Options{Strategy: BFS, Validate: true})
	require.NoError(t, err)
	assert.Equal(t, OutcomeOK, outcome.Kind)
}

func TestUnorderedDuplicationConvergesForAdds(t *testing.T) {
	init, err := model.Initial(awset.ContextAware, model.DefaultScenario(2, 1, 0, "k"), model.Unordered, true)
	require.NoError(t, err)
	outcome, searchErr := Search(context.Background(), init, Options{Strategy: BFS, Validate: true})
	require.NoError(t, searchErr)
	assert.Equal(t, OutcomeOK, outcome.Kind)
}

func TestTinyBoundIsInconclusive(t *testing.T) {
	init := initialState(t, awset.ContextFree, model.DefaultScenario(2, 2, 2, "k"), model.FIFO)
	outcome, err := Search(context.Background(), init, Options{Strategy: BFS, MaxStates: 3})
	require.NoError(t, err)
	assert.Equal(t, OutcomeInconclusive, outcome.Kind)
	assert.Empty(t, outcome.Path)
}

func TestParallelMatchesSequential(t *testing.T) {
	cases := []struct {
		name string
		sem  awset.Semantics
	}{
		{"violating", awset.ContextFree},
		{"holding", awset.ContextAware},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			init := initialState(t, tc.sem, model.DefaultScenario(2, 2, 2, "k"), model.FIFO)
			seq, err := Search(context.Background(), init, Options{Strategy: BFS})
			require.NoError(t, err)
			par, err := SearchParallel(context.Background(), init, Options{Workers: 4})
			require.NoError(t, err)
			assert.Equal(t, seq.Kind, par.Kind)
			assert.Equal(t, seq.PathLength(), par.PathLength(),
				"level-synchronous merging preserves minimal counterexample depth")
		})
	}
}

func TestSearchHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	init := initialState(t, awset.ContextAware, model.DefaultScenario(2, 2, 2, "k"), model.FIFO)
	_, err := Search(ctx, init, Options{Strategy: BFS})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBuildGraphRecordsViolationPath(t *testing.T) {
	init := initialState(t, awset.ContextFree, model.DefaultScenario(2, 2, 2, "k"), model.FIFO)
	graph, err := BuildGraph(context.Background(), init, Options{Validate: true})
	require.NoError(t, err)

	assert.NotEmpty(t, graph.RunID)
	assert.Equal(t, "context-free", graph.Semantics)
	assert.Equal(t, "fifo", graph.Discipline)
	assert.False(t, graph.Truncated)
	require.NotEmpty(t, graph.Nodes)
	require.NotEmpty(t, graph.Edges)
	require.NotEmpty(t, graph.ViolationPath)
	assert.Equal(t, 0, graph.ViolationPath[0], "the path starts at the initial state")
	last := graph.Nodes[graph.ViolationPath[len(graph.ViolationPath)-1]]
	assert.True(t, last.Violating)

	for _, e := range graph.Edges {
		assert.Less(t, e.From, len(graph.Nodes))
		assert.Less(t, e.To, len(graph.Nodes))
	}
}

func TestBuildGraphDeterministicUpToRunID(t *testing.T) {
	init := initialState(t, awset.ContextFree, model.DefaultScenario(2, 2, 2, "k"), model.FIFO)
	first, err := BuildGraph(context.Background(), init, Options{})
	require.NoError(t, err)
	second, err := BuildGraph(context.Background(), init, Options{})
	require.NoError(t, err)
	first.RunID, second.RunID = "", ""
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("graphs differ between runs (-first +second):\n%s", diff)
	}
}

func TestWriteDOT(t *testing.T) {
	init := initialState(t, awset.ContextFree, model.DefaultScenario(2, 1, 1, "k"), model.FIFO)
	graph, err := BuildGraph(context.Background(), init, Options{})
	require.NoError(t, err)

	b := &strings.Builder{}
	require.NoError(t, graph.WriteDOT(b))
	dot := b.String()
	assert.Contains(t, dot, "digraph states")
	assert.Contains(t, dot, "->")
}
