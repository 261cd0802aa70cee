package check

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeffa5/toy-crdt/awset"
	"github.com/jeffa5/toy-crdt/model"
)

func settledState(t *testing.T, servers int) model.Global {
	t.Helper()
	sc := model.Scenario{Servers: servers, Ops: make([][]awset.Op, servers)}
	g, err := model.Initial(awset.ContextAware, sc, model.FIFO, false)
	require.NoError(t, err)
	return g
}

func withEntry(s awset.State, tag awset.Tag) awset.State {
	return awset.ContextAware.ReceiveAdd(s, awset.Message{
		Kind: awset.MsgAdd,
		Elem: "k",
		Tag:  tag,
	})
}

func TestSafeOnAgreeingSettledState(t *testing.T) {
	g := settledState(t, 2)
	tag := awset.Tag{Seq: 1, Origin: 0}
	g.Replicas[0] = withEntry(g.Replicas[0], tag)
	g.Replicas[1] = withEntry(g.Replicas[1], tag)

	assert.True(t, Converged(g))
	assert.True(t, NoResurrection(g))
	assert.True(t, Safe(g))
	assert.Empty(t, Explain(g))
}

func TestConvergedFailsOnDisagreement(t *testing.T) {
	g := settledState(t, 2)
	g.Replicas[1] = withEntry(g.Replicas[1], awset.Tag{Seq: 1, Origin: 1})

	assert.False(t, Converged(g))
	assert.False(t, Safe(g))
	assert.Contains(t, Explain(g), "disagree")
}

func TestNoResurrectionFailsOnRemovedTag(t *testing.T) {
	g := settledState(t, 2)
	tag := awset.Tag{Seq: 1, Origin: 0}
	g.Replicas[0] = withEntry(g.Replicas[0], tag)
	g.Replicas[1] = withEntry(g.Replicas[1], tag)
	g.Removed = []awset.Tag{tag}

	assert.True(t, Converged(g))
	assert.False(t, NoResurrection(g))
	assert.False(t, Safe(g))
	assert.Contains(t, Explain(g), "removed with full context")
}

// Divergence is excused while operations or messages are still outstanding.
func TestPredicatesVacuousBeforeSettling(t *testing.T) {
	sc := model.DefaultScenario(2, 1, 0, "k")
	g, err := model.Initial(awset.ContextAware, sc, model.FIFO, false)
	require.NoError(t, err)
	g.Replicas[1] = withEntry(g.Replicas[1], awset.Tag{Seq: 1, Origin: 1})
	g.Removed = []awset.Tag{{Seq: 1, Origin: 1}}

	assert.True(t, Converged(g))
	assert.True(t, NoResurrection(g))
	assert.True(t, Safe(g))
	assert.Empty(t, Explain(g))
}

func TestAndShortCircuits(t *testing.T) {
	calls := 0
	trueProp := Property(func(model.Global) bool { calls++; return true })
	falseProp := Property(func(model.Global) bool { calls++; return false })

	g := settledState(t, 1)
	assert.False(t, And(trueProp, falseProp, trueProp)(g))
	assert.Equal(t, 2, calls)
	assert.True(t, And()(g))
}
