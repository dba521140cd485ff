package lossseries

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riskmodels/catagg/internal/catmodel"
)

func TestFromSimulation_FoldsYearsToScalarLoss(t *testing.T) {
	sim := catmodel.NewSimulation(2)
	require.NoError(t, sim.Iteration(1).AddEvent(1, catmodel.Event{Loss: 10, ReinstatementPrem: 2}, 1, 1, true))
	require.NoError(t, sim.Iteration(2).AddEvent(1, catmodel.Event{Loss: 5}, 1, 2, true))

	ls := FromSimulation(sim, false)
	assert.Equal(t, 10.0, ls.AnnualLoss(1))
	assert.Equal(t, 5.0, ls.AnnualLoss(2))

	lsRip := FromSimulation(sim, true)
	assert.Equal(t, 8.0, lsRip.AnnualLoss(1))
}

func TestLossSeries_ExpectedLoss_IncludesImplicitZeroIterations(t *testing.T) {
	ls := New(4)
	ls.SetAnnualLoss(1, 100)
	ls.SetAnnualLoss(2, 100)
	// iterations 3 and 4 implicit zero

	assert.InDelta(t, 50.0, ls.ExpectedLoss(), 1e-9)
}

func TestLossSeries_MutationInvalidatesSortCache(t *testing.T) {
	ls := New(3)
	ls.SetAnnualLoss(1, 10)
	ls.SetAnnualLoss(2, 20)
	ls.SetAnnualLoss(3, 30)

	contributor := New(3)
	contributor.SetAnnualLoss(1, 1)
	contributor.SetAnnualLoss(2, 2)
	contributor.SetAnnualLoss(3, 3)

	_ = ls.AllocatedTVaR(contributor, []float64{0.5}, false)
	assert.True(t, ls.sortedValid)

	ls.AddConstant(1)
	assert.False(t, ls.sortedValid)
}

func TestLossSeries_AllocatedTVaR_ContributorEqualsBase_ReturnsOne(t *testing.T) {
	// testable property 5: allocating a series to itself returns ~1
	ls := New(5)
	for i := int64(1); i <= 5; i++ {
		ls.SetAnnualLoss(i, float64(i)*100)
	}

	got := ls.AllocatedTVaR(ls, []float64{0.2, 0.4}, false)
	assert.InDelta(t, 1.0, got, 1e-6)
}

func TestLossSeries_AllocatedTVaR_ZeroContributor_ReturnsZero(t *testing.T) {
	// testable property 6: a contributor with no loss allocates to 0
	ls := New(5)
	for i := int64(1); i <= 5; i++ {
		ls.SetAnnualLoss(i, float64(i)*100)
	}
	zero := New(5)

	got := ls.AllocatedTVaR(zero, []float64{0.2, 0.4}, false)
	assert.InDelta(t, 0.0, got, 1e-9)
}

func TestLossSeries_AllocatedTVaR_SplitContributors_SumToOne(t *testing.T) {
	ls := New(4)
	a := New(4)
	b := New(4)
	for i := int64(1); i <= 4; i++ {
		loss := float64(i) * 50
		ls.SetAnnualLoss(i, loss)
		a.SetAnnualLoss(i, loss*0.6)
		b.SetAnnualLoss(i, loss*0.4)
	}

	probs := []float64{0.25, 0.5}
	allocA := ls.AllocatedTVaR(a, probs, false)
	allocB := ls.AllocatedTVaR(b, probs, false)

	assert.InDelta(t, 1.0, allocA+allocB, 1e-6)
}

func TestLossSeries_AllocatedTVaRCorrected_SelfAllocationStillReturnsOne(t *testing.T) {
	ls := New(10)
	for i := int64(1); i <= 10; i++ {
		ls.SetAnnualLoss(i, float64(i))
	}
	contributor := New(10)
	for i := int64(1); i <= 10; i++ {
		contributor.SetAnnualLoss(i, float64(i))
	}

	// Both allocate a series to itself, so both return ~1 regardless of
	// which index formula is used; this test only confirms neither panics
	// and both stay well-formed on a small n.
	got := ls.AllocatedTVaR(contributor, []float64{0.1}, false)
	assert.InDelta(t, 1.0, got, 1e-6)

	ls.AddConstant(0) // invalidate cache before switching formula
	gotCorrected := ls.AllocatedTVaRCorrected(contributor, []float64{0.1}, false)
	assert.InDelta(t, 1.0, gotCorrected, 1e-6)
}

func TestProbabilityToIndex_DocumentedFormula(t *testing.T) {
	// n=100, p=0.1 -> round(10)=10 -> min(1,10)=1 -> index 99
	assert.Equal(t, 99, probabilityToIndex(100, 0.1))
	// n=100, p=0 -> round(0)=0 -> min(1,0)=0 -> index 100
	assert.Equal(t, 100, probabilityToIndex(100, 0))
}

func TestProbabilityToIndexCorrected_ReturnsTailCountFlooredAtOne(t *testing.T) {
	assert.Equal(t, 10, probabilityToIndexCorrected(100, 0.1))
	assert.Equal(t, 1, probabilityToIndexCorrected(100, 0))
}
