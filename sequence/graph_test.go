package sequence

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allbin/go-valve"
)

func step(p valve.Position, secs float64) Step {
	return Step{Position: p, Duration: time.Duration(math.Round(secs*1000)) * time.Millisecond}
}

func positions(run Run) string {
	out := make([]byte, len(run.Nodes))
	for i, n := range run.Nodes {
		out[i] = byte(n.Step.Position)
	}
	return string(out)
}

func TestResolveChain(t *testing.T) {
	s := New()
	// Layout order is the reverse of the chain so only the links can explain the result
	a := s.Add(step('A', 0.5), 0, 2)
	b := s.Add(step('B', 1.0), 0, 1)
	c := s.Add(step('C', 0.3), 0, 0)
	require.NoError(t, s.Connect(a, b))
	require.NoError(t, s.Connect(b, c))

	run, err := s.ResolveOrder()
	require.NoError(t, err)
	assert.Equal(t, ModeChain, run.Mode)
	assert.Equal(t, "ABC", positions(run))
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second, 300 * time.Millisecond},
		[]time.Duration{run.Steps()[0].Duration, run.Steps()[1].Duration, run.Steps()[2].Duration})
}

func TestResolveLayoutByVerticalPosition(t *testing.T) {
	s := New()
	s.Add(step('C', 1), 0, 30)
	s.Add(step('A', 1), 0, 10)
	s.Add(step('B', 1), 0, 20)

	run, err := s.ResolveOrder()
	require.NoError(t, err)
	assert.Equal(t, ModeLayout, run.Mode)
	assert.Equal(t, "ABC", positions(run))
}

func TestResolveLayoutTieBreaks(t *testing.T) {
	s := New()
	s.Add(step('B', 1), 5, 0)
	s.Add(step('A', 1), 1, 0)
	s.Add(step('C', 1), 5, 0)

	run, err := s.ResolveOrder()
	require.NoError(t, err)
	assert.Equal(t, "ABC", positions(run), "same row sorts by X, then insertion order")
}

func TestResolvePartialChainFallsBack(t *testing.T) {
	s := New()
	a := s.Add(step('A', 1), 0, 0)
	b := s.Add(step('B', 1), 0, 2)
	s.Add(step('C', 1), 0, 1)
	require.NoError(t, s.Connect(b, a))

	run, err := s.ResolveOrder()
	require.NoError(t, err)
	assert.Equal(t, ModeLayout, run.Mode)
	assert.Equal(t, "ACB", positions(run))
}

func TestResolveEmpty(t *testing.T) {
	_, err := New().ResolveOrder()
	assert.ErrorIs(t, err, ErrEmptySequence)
}

func TestConnectRejectsTwoNodeCycle(t *testing.T) {
	s := New()
	a := s.Append(step('A', 1))
	b := s.Append(step('B', 1))
	require.NoError(t, s.Connect(a, b))

	err := s.Connect(b, a)
	assert.ErrorIs(t, err, ErrCycle)
	assert.Equal(t, []Edge{{From: a, To: b}}, s.Edges())
}

func TestConnectRejectsLongCycle(t *testing.T) {
	s := New()
	a := s.Append(step('A', 1))
	b := s.Append(step('B', 1))
	c := s.Append(step('A', 1))
	require.NoError(t, s.Connect(a, b))
	require.NoError(t, s.Connect(b, c))

	assert.ErrorIs(t, s.Connect(c, a), ErrCycle)
	assert.Len(t, s.Edges(), 2)
}

func TestConnectRules(t *testing.T) {
	s := New()
	a := s.Append(step('A', 1))
	b := s.Append(step('B', 1))
	c := s.Append(step('A', 1))

	assert.ErrorIs(t, s.Connect(a, a), ErrSelfLoop)
	assert.ErrorIs(t, s.Connect(a, 99), ErrUnknownNode)
	assert.ErrorIs(t, s.Connect(99, a), ErrUnknownNode)

	require.NoError(t, s.Connect(a, b))
	require.NoError(t, s.Connect(a, b), "re-issuing the same link is a no-op")
	assert.ErrorIs(t, s.Connect(c, b), ErrDuplicateIncoming)

	// a already leads to b; connecting it to c moves the link
	require.NoError(t, s.Connect(a, c))
	assert.Equal(t, []Edge{{From: a, To: c}}, s.Edges())
	require.NoError(t, s.Connect(b, a), "b is free again")
}

func TestDisconnect(t *testing.T) {
	s := New()
	a := s.Append(step('A', 1))
	b := s.Append(step('B', 1))
	require.NoError(t, s.Connect(a, b))

	require.NoError(t, s.Disconnect(a))
	assert.Empty(t, s.Edges())
	require.NoError(t, s.Disconnect(a), "nothing to remove is fine")
	assert.ErrorIs(t, s.Disconnect(42), ErrUnknownNode)
	require.NoError(t, s.Connect(b, a))
}

func TestRemoveDropsLinks(t *testing.T) {
	s := New()
	a := s.Append(step('A', 1))
	b := s.Append(step('B', 1))
	c := s.Append(step('A', 1))
	require.NoError(t, s.Connect(a, b))
	require.NoError(t, s.Connect(b, c))

	require.NoError(t, s.Remove(b))
	assert.Empty(t, s.Edges())
	assert.Equal(t, 2, s.Len())
	require.NoError(t, s.Connect(a, c))
	assert.ErrorIs(t, s.Remove(b), ErrUnknownNode)

	d := s.Append(step('B', 1))
	assert.Greater(t, int(d), int(c), "IDs are not reused")
}

func TestUpdateAndMove(t *testing.T) {
	s := New()
	a := s.Append(step('A', 1))
	require.NoError(t, s.Update(a, step('B', 2)))
	require.NoError(t, s.Move(a, 3, 4))

	n, ok := s.Node(a)
	require.True(t, ok)
	assert.Equal(t, valve.PositionB, n.Step.Position)
	assert.Equal(t, 3.0, n.X)
	assert.Equal(t, 4.0, n.Y)

	assert.ErrorIs(t, s.Update(7, step('A', 1)), ErrUnknownNode)
	assert.ErrorIs(t, s.Move(7, 0, 0), ErrUnknownNode)
}

func TestMoveUpDown(t *testing.T) {
	s := New()
	a := s.Append(step('A', 1))
	b := s.Append(step('B', 1))
	c := s.Append(step('C', 1))

	require.NoError(t, s.MoveUp(c))
	run, _ := s.ResolveOrder()
	assert.Equal(t, "ACB", positions(run))

	require.NoError(t, s.MoveDown(a))
	run, _ = s.ResolveOrder()
	assert.Equal(t, "CAB", positions(run))

	require.NoError(t, s.MoveUp(c), "first row stays put")
	require.NoError(t, s.MoveDown(b), "last row stays put")
	run, _ = s.ResolveOrder()
	assert.Equal(t, "CAB", positions(run))
}

func TestLoadDemo(t *testing.T) {
	s := New()
	s.Append(step('C', 1))
	s.LoadDemo()

	run, err := s.ResolveOrder()
	require.NoError(t, err)
	assert.Equal(t, "ABAB", positions(run))
	assert.Equal(t, []Step{
		{Position: 'A', Duration: time.Second},
		{Position: 'B', Duration: time.Second},
		{Position: 'A', Duration: 500 * time.Millisecond},
		{Position: 'B', Duration: 500 * time.Millisecond},
	}, run.Steps())
}

func TestCloneIsIndependent(t *testing.T) {
	s := New()
	a := s.Append(step('A', 1))
	b := s.Append(step('B', 1))

	c := s.Clone()
	require.NoError(t, c.Connect(a, b))
	require.NoError(t, c.Update(a, step('C', 1)))

	assert.Empty(t, s.Edges())
	n, _ := s.Node(a)
	assert.Equal(t, valve.PositionA, n.Step.Position)
}
