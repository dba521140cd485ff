package catmodel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestYear_AddEvent_DefaultEvent(t *testing.T) {
	// S1 — empty Year defaults
	y := NewYear()
	err := y.AddEvent(1, NewEvent(), 1, 0, true)
	require.NoError(t, err)

	assert.Equal(t, 1, y.Size())
	e := y.Event(1)
	require.NotNil(t, e)
	assert.Equal(t, 0.0, e.Loss)
	assert.Equal(t, 0.0, e.LossNetOfRip())
}

func TestYear_AddEvent_SameSeqID_MergesFields(t *testing.T) {
	// S2, restated at Year granularity
	y := NewYear()
	require.NoError(t, y.AddEvent(1, Event{EventID: 0, Loss: 7, ReinstatementPrem: 1}, 1, 0, true))
	require.NoError(t, y.AddEvent(1, Event{EventID: 0, Loss: 1, ReinstatementPrem: 1}, 1, 0, true))

	e := y.Event(1)
	assert.Equal(t, 8.0, e.Loss)
	assert.Equal(t, 2.0, e.ReinstatementPrem)
	assert.Equal(t, 6.0, e.LossNetOfRip())
}

func TestYear_AddAndSub_RoundTrips(t *testing.T) {
	// S3 — Year += and -=
	a := NewYear()
	b := NewYear()
	for i := 0; i < 4; i++ {
		require.NoError(t, a.AddEvent(i, Event{Loss: float64(i+1) * 10, ReinstatementPrem: float64(i + 1)}, 1, 0, true))
		require.NoError(t, b.AddEvent(i, Event{Loss: float64(i+1) * 100, ReinstatementPrem: float64(i+1) * 0.1}, 1, 0, true))
	}
	require.NoError(t, b.AddEvent(4, Event{Loss: 4, ReinstatementPrem: 4}, 1, 0, true))

	require.NoError(t, a.Add(b))
	assert.Equal(t, 5, a.Size())
	for i := 0; i < 4; i++ {
		e := a.Event(i)
		assert.InDelta(t, float64(i+1)*110, e.Loss, 1e-9)
		assert.InDelta(t, float64(i+1)*1.1, e.ReinstatementPrem, 1e-9)
	}
	assert.Equal(t, 4.0, a.Event(4).Loss)
	assert.Equal(t, 4.0, a.Event(4).ReinstatementPrem)

	require.NoError(t, a.Sub(b))
	assert.Equal(t, 5, a.Size())
	for i := 0; i < 4; i++ {
		e := a.Event(i)
		assert.InDelta(t, float64(i+1)*10, e.Loss, 1e-9)
		assert.InDelta(t, float64(i+1), e.ReinstatementPrem, 1e-9)
	}
	assert.Equal(t, -4.0, a.Event(4).Loss)
	assert.Equal(t, -4.0, a.Event(4).ReinstatementPrem)
}

func TestYear_AddEvent_NoncatCollision_ReassignsSlot(t *testing.T) {
	y := NewYear()
	require.NoError(t, y.AddEvent(1000, Event{RiskGroup: "Noncat-A", Loss: 1}, 1, 0, true))
	require.NoError(t, y.AddEvent(1000, Event{RiskGroup: "Noncat-B", Loss: 2}, 1, 0, true))

	// Second event must have moved to slot 1000-1000%1000+501 = 1501
	moved := y.Event(1501)
	require.NotNil(t, moved)
	assert.Equal(t, 2.0, moved.Loss)
	assert.Equal(t, 1.0, y.Event(1000).Loss)
}

func TestYear_AddEvent_NoncatSameGroup_Merges(t *testing.T) {
	y := NewYear()
	require.NoError(t, y.AddEvent(1000, Event{RiskGroup: "Noncat-A", Loss: 1}, 1, 0, true))
	require.NoError(t, y.AddEvent(1000, Event{RiskGroup: "Noncat-A", Loss: 2}, 1, 0, true))

	assert.Equal(t, 1, y.Size())
	assert.Equal(t, 3.0, y.Event(1000).Loss)
}

func TestYear_AddEvent_NoncatSlotOverflow_IsFatal(t *testing.T) {
	y := NewYear()
	require.NoError(t, y.AddEvent(1000, Event{RiskGroup: "Noncat-base"}, 1, 0, true))
	for c := 501; c < 999; c++ {
		require.NoError(t, y.AddEvent(1000, Event{RiskGroup: "Noncat-distinct"}, 1, 0, true))
	}
	err := y.AddEvent(1000, Event{RiskGroup: "Noncat-final"}, 1, 0, true)
	assert.Error(t, err)
}

func TestYear_MergeForward_DrainsHeadList(t *testing.T) {
	src := NewYear()
	src.IterID = 42
	require.NoError(t, src.AddEvent(1, Event{Loss: 5}, 1, 42, true))
	require.NoError(t, src.AddEvent(2, Event{Loss: 6}, 1, 42, true))

	dst := NewYear()
	require.NoError(t, dst.MergeForward(src))

	assert.Equal(t, 2, dst.Size())
	assert.Empty(t, src.head)
}

func TestYear_TotalLoss(t *testing.T) {
	y := NewYear()
	require.NoError(t, y.AddEvent(1, Event{Loss: 10, ReinstatementPrem: 2}, 1, 0, true))
	require.NoError(t, y.AddEvent(2, Event{Loss: 20, ReinstatementPrem: 5}, 1, 0, true))

	assert.Equal(t, 30.0, y.TotalLoss(false))
	assert.Equal(t, 23.0, y.TotalLoss(true))
}

func TestYear_FilterOut_RemovesBelowThreshold(t *testing.T) {
	y := NewYear()
	require.NoError(t, y.AddEvent(1, Event{RiskGroup: "Risk1", ReinstatementPrem: 0.5}, 1, 0, true))
	require.NoError(t, y.AddEvent(2, Event{RiskGroup: "Risk1", ReinstatementPrem: 5}, 1, 0, true))
	require.NoError(t, y.AddEvent(3, Event{RiskGroup: "Risk2", ReinstatementPrem: 0.1}, 1, 0, true))

	y.FilterOut(1, "Risk1")

	assert.Nil(t, y.Event(1))
	assert.NotNil(t, y.Event(2))
	assert.NotNil(t, y.Event(3), "other risk groups untouched")
}
