// Package lossseries implements the per-iteration scalar loss view over a
// Simulation and the allocated Tail-Value-at-Risk (TVaR) computation.
package lossseries

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/riskmodels/catagg/internal/catmodel"
)

// sortedEntry pairs a negated loss with its iteration id, ascending by
// this pair order puts the largest losses first (spec §4.7).
type sortedEntry struct {
	negLoss float64
	iterID  int64
}

// LossSeries is a per-iteration scalar loss snapshot with a lazily
// rebuilt sort cache for TVaR allocation queries.
type LossSeries struct {
	NumIter int

	lossByIter  map[int64]float64
	grossByIter map[int64]float64

	sortedLosses []sortedEntry
	meanBase     float64
	baseWeightedTVaR float64
	sortedValid  bool
}

// New returns an empty LossSeries for numIter iterations.
func New(numIter int) *LossSeries {
	return &LossSeries{
		NumIter:    numIter,
		lossByIter: make(map[int64]float64),
	}
}

// FromSimulation folds each Year in sim to a scalar total loss.
func FromSimulation(sim *catmodel.Simulation, includeRip bool) *LossSeries {
	ls := New(sim.NumIter)
	for iterID, y := range sim.Iterations() {
		ls.lossByIter[iterID] = y.TotalLoss(includeRip)
	}
	return ls
}

// invalidate clears the sort cache, per spec §3's dirty-flag invariant.
func (ls *LossSeries) invalidate() { ls.sortedValid = false }

// AddAnnualLoss adds x to iterID's loss. The gross series is left
// untouched; AddAnnualLossWithGross also updates it.
func (ls *LossSeries) AddAnnualLoss(iterID int64, x float64) {
	ls.lossByIter[iterID] += x
	ls.invalidate()
}

// AddAnnualLossWithGross is the two-value variant tracking a parallel
// gross series.
func (ls *LossSeries) AddAnnualLossWithGross(iterID int64, x, y float64) {
	ls.lossByIter[iterID] += x
	if ls.grossByIter == nil {
		ls.grossByIter = make(map[int64]float64)
	}
	ls.grossByIter[iterID] += y
	ls.invalidate()
}

// SetAnnualLoss overwrites iterID's loss.
func (ls *LossSeries) SetAnnualLoss(iterID int64, x float64) {
	ls.lossByIter[iterID] = x
	ls.invalidate()
}

// AnnualLoss returns iterID's loss, or 0 if absent.
func (ls *LossSeries) AnnualLoss(iterID int64) float64 {
	return ls.lossByIter[iterID]
}

// Size returns the number of iterations with a stored (possibly zero)
// loss value.
func (ls *LossSeries) Size() int { return len(ls.lossByIter) }

// Empty reports whether the series has no stored iterations.
func (ls *LossSeries) Empty() bool { return len(ls.lossByIter) == 0 }

// Scale multiplies every stored loss by factor.
func (ls *LossSeries) Scale(factor float64) {
	for k, v := range ls.lossByIter {
		ls.lossByIter[k] = v * factor
	}
	ls.invalidate()
}

// AddConstant adds x to every stored loss.
func (ls *LossSeries) AddConstant(x float64) {
	for k, v := range ls.lossByIter {
		ls.lossByIter[k] = v + x
	}
	ls.invalidate()
}

// ExpectedLoss returns the mean loss across NumIter iterations.
func (ls *LossSeries) ExpectedLoss() float64 {
	if ls.NumIter == 0 {
		return 0
	}
	values := make([]float64, 0, len(ls.lossByIter))
	for _, v := range ls.lossByIter {
		values = append(values, v)
	}
	return stat.Sum(values) / float64(ls.NumIter)
}

// ExpectedAndSD returns (mean, sd) matching catmodel.Simulation's
// population-variance definition, over the stored losses only (zero
// iterations beyond the stored map are implicit, same convention as
// catmodel.Simulation.ExpectedAndSD).
func (ls *LossSeries) ExpectedAndSD() (float64, float64) {
	if ls.NumIter == 0 {
		return 0, 0
	}
	var sum, sumSq float64
	for _, v := range ls.lossByIter {
		sum += v
		sumSq += v * v
	}
	n := float64(ls.NumIter)
	mean := sum / n
	variance := math.Max(0, sumSq/n-mean*mean)
	return mean, math.Sqrt(variance)
}

// rebuildSortCache implements spec §4.7 step 1: build sortedLosses over
// all stored iterations, ascending by (-loss, iterID) so the largest
// losses sort first, and reset the TVaR accumulator.
func (ls *LossSeries) rebuildSortCache(removeMean bool) {
	ls.sortedLosses = make([]sortedEntry, 0, len(ls.lossByIter))
	for iterID, loss := range ls.lossByIter {
		ls.sortedLosses = append(ls.sortedLosses, sortedEntry{negLoss: -loss, iterID: iterID})
	}
	sort.Slice(ls.sortedLosses, func(i, j int) bool {
		if ls.sortedLosses[i].negLoss != ls.sortedLosses[j].negLoss {
			return ls.sortedLosses[i].negLoss < ls.sortedLosses[j].negLoss
		}
		return ls.sortedLosses[i].iterID < ls.sortedLosses[j].iterID
	})
	if removeMean {
		ls.meanBase = ls.ExpectedLoss()
	} else {
		ls.meanBase = 0
	}
	ls.baseWeightedTVaR = 0
	ls.sortedValid = true
}

// probabilityToIndex implements spec §4.7's documented formula, bug and
// all: n - min(1, round(n*p)). This collapses to n-1 whenever
// round(n*p) >= 1 — almost certainly not the intended "max(1, round(n*p))
// tail count" (spec §4.7/§9), but it is the formula the source computes
// and faithful rewrites must preserve it.
func probabilityToIndex(n int, p float64) int {
	nReverse := int(math.Round(float64(n)*p + 0)) // explicit round, no +0.5 hack
	return n - minInt(1, nReverse)
}

// probabilityToIndexCorrected is the opt-in corrected formula offered
// per spec §9 ("offer an opt-in corrected formula"): max(1, round(n*p)),
// selecting a tail count rather than n-1 always.
func probabilityToIndexCorrected(n int, p float64) int {
	nReverse := int(math.Round(float64(n) * p))
	return maxInt(1, nReverse)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func clampIndex(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

// AllocatedTVaR computes contributor's share of self's weighted TVaR at
// the given exceedance probabilities, per spec §4.7. The sort cache is
// rebuilt on first call after any mutation.
func (ls *LossSeries) AllocatedTVaR(contributor *LossSeries, probs []float64, removeMean bool) float64 {
	return ls.allocatedTVaR(contributor, probs, removeMean, probabilityToIndex)
}

// AllocatedTVaRCorrected is the opt-in corrected variant (spec §9).
func (ls *LossSeries) AllocatedTVaRCorrected(contributor *LossSeries, probs []float64, removeMean bool) float64 {
	return ls.allocatedTVaR(contributor, probs, removeMean, probabilityToIndexCorrected)
}

func (ls *LossSeries) allocatedTVaR(contributor *LossSeries, probs []float64, removeMean bool, indexFn func(int, float64) int) float64 {
	builtThisCall := !ls.sortedValid
	if builtThisCall {
		ls.rebuildSortCache(removeMean)
	}

	var meanContrib float64
	if removeMean {
		meanContrib = contributor.ExpectedLoss()
	}

	sorted := append([]float64(nil), probs...)
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))

	i := 0
	var baseAccum, contribAccum float64
	var contribWeightedTVaR float64
	n := len(ls.sortedLosses)

	for _, p := range sorted {
		nPos := indexFn(ls.NumIter, p)
		nPos = clampIndex(nPos, 1, n)

		var thresholdLoss float64
		if nPos >= 1 && nPos <= n {
			thresholdLoss = -ls.sortedLosses[nPos-1].negLoss
		}

		for i < n && -ls.sortedLosses[i].negLoss >= thresholdLoss-1e-8 {
			if builtThisCall {
				baseAccum += -ls.sortedLosses[i].negLoss - ls.meanBase
			}
			contribLoss := contributor.AnnualLoss(ls.sortedLosses[i].iterID)
			contribAccum += contribLoss - meanContrib
			i++
		}

		if builtThisCall {
			ls.baseWeightedTVaR += p * baseAccum / float64(nPos)
		}
		contribWeightedTVaR += p * contribAccum / float64(nPos)
	}

	if math.Abs(ls.baseWeightedTVaR) <= 1e-5 {
		return 0
	}
	return contribWeightedTVaR / ls.baseWeightedTVaR
}

// BaseWeightedTVaR exposes the cached base-weighted TVaR accumulator
// built by the most recent AllocatedTVaR call (valid only after at least
// one call since the last mutation).
func (ls *LossSeries) BaseWeightedTVaR() float64 { return ls.baseWeightedTVaR }
