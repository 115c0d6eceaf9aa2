package components

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allbin/go-valve"
	"github.com/allbin/go-valve/sequence"
)

func demoSequence(t *testing.T) (*sequence.Sequence, []sequence.NodeID) {
	t.Helper()
	seq := sequence.New()
	var ids []sequence.NodeID
	for _, p := range []valve.Position{valve.PositionA, valve.PositionB, valve.PositionCenter} {
		ids = append(ids, seq.Append(sequence.Step{Position: p, Duration: time.Second}))
	}
	return seq, ids
}

func TestSequenceTableSelection(t *testing.T) {
	seq, ids := demoSequence(t)
	st := NewSequenceTable(5)

	_, ok := st.Selected()
	assert.False(t, ok)

	st.SetSequence(seq)
	assert.Equal(t, 3, st.Len())
	assert.Equal(t, "layout", st.Mode())

	sel, ok := st.Selected()
	require.True(t, ok)
	assert.Equal(t, ids[0], sel)
	next, ok := st.Following()
	require.True(t, ok)
	assert.Equal(t, ids[1], next)

	st.MoveDown()
	st.MoveDown()
	st.MoveDown()
	sel, _ = st.Selected()
	assert.Equal(t, ids[2], sel, "cursor is clamped to the last row")
	_, ok = st.Following()
	assert.False(t, ok)

	st.MoveUp()
	sel, _ = st.Selected()
	assert.Equal(t, ids[1], sel)
}

func TestSequenceTableKeepsSelectionAcrossEdits(t *testing.T) {
	seq, ids := demoSequence(t)
	st := NewSequenceTable(5)
	st.SetSequence(seq)
	st.Select(ids[2])

	require.NoError(t, seq.MoveUp(ids[2]))
	st.SetSequence(seq)
	sel, _ := st.Selected()
	assert.Equal(t, ids[2], sel)

	require.NoError(t, seq.Remove(ids[2]))
	st.SetSequence(seq)
	sel, ok := st.Selected()
	require.True(t, ok)
	assert.Equal(t, ids[0], sel, "falls back to the first row")
}

func TestSequenceTableChainMode(t *testing.T) {
	seq, ids := demoSequence(t)
	require.NoError(t, seq.Connect(ids[2], ids[0]))
	require.NoError(t, seq.Connect(ids[0], ids[1]))

	st := NewSequenceTable(5)
	st.SetSequence(seq)
	assert.Equal(t, "chain", st.Mode())
	assert.Contains(t, st.View(), "chain order")

	st.SetActive(ids[1])
	assert.Contains(t, st.View(), "▶")
	st.SetActive(0)
	assert.NotContains(t, st.View(), "▶")
}

func TestSequenceTableEmpty(t *testing.T) {
	st := NewSequenceTable(5)
	st.SetSequence(sequence.New())
	assert.Equal(t, 0, st.Len())
	assert.Equal(t, "-", st.Mode())
	assert.Contains(t, st.View(), "Sequence is empty")
}
