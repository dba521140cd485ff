package catmodel

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/riskmodels/catagg/internal/errs"
)

// Simulation maps iteration id to Year, alongside the total iteration
// count (including zero-loss iterations, which are not stored) and the
// set of observed risk groups.
type Simulation struct {
	NumIter int

	iterations map[int64]*Year
	riskGroups map[string]struct{}
}

// NewSimulation returns an empty Simulation with the given iteration
// count.
func NewSimulation(numIter int) *Simulation {
	return &Simulation{
		NumIter:    numIter,
		iterations: make(map[int64]*Year),
		riskGroups: make(map[string]struct{}),
	}
}

// NewSimulationFilteredByRiskGroup returns a new Simulation containing
// only (include=true) or excluding (include=false) events whose risk
// group equals riskGroup, preserving src's NumIter. Grounded on
// original_source/GPUPricing/Simulation.h's filtering constructor
// (SPEC_FULL.md "Supplemented features").
func NewSimulationFilteredByRiskGroup(src *Simulation, riskGroup string, include bool) *Simulation {
	out := NewSimulation(src.NumIter)
	for iterID, year := range src.iterations {
		for seqID, e := range year.events {
			match := e.RiskGroup == riskGroup
			if match != include {
				continue
			}
			out.Iteration(iterID).AddEvent(seqID, *e, 1, iterID, true)
			out.riskGroups[e.RiskGroup] = struct{}{}
		}
	}
	return out
}

// Iteration returns the Year for iterID, creating and storing an empty
// one if absent.
func (s *Simulation) Iteration(iterID int64) *Year {
	y, ok := s.iterations[iterID]
	if !ok {
		y = NewYear()
		y.IterID = iterID
		s.iterations[iterID] = y
	}
	return y
}

// IterationIfPresent returns the Year for iterID without creating one,
// and reports whether it was present.
func (s *Simulation) IterationIfPresent(iterID int64) (*Year, bool) {
	y, ok := s.iterations[iterID]
	return y, ok
}

// Iterations returns the underlying iteration map. Callers must not
// retain it across further mutation of s.
func (s *Simulation) Iterations() map[int64]*Year { return s.iterations }

// RiskGroups returns the set of observed risk groups.
func (s *Simulation) RiskGroups() map[string]struct{} { return s.riskGroups }

// AddRiskGroup records rg as observed.
func (s *Simulation) AddRiskGroup(rg string) { s.riskGroups[rg] = struct{}{} }

// Empty reports whether the Simulation has no non-empty iterations.
func (s *Simulation) Empty() bool { return len(s.iterations) == 0 }

// reconcileNumIter implements spec §4.3's num_iter_reconcile: if s has
// no iteration count, adopt other's; if other is empty, keep s's; if
// both are non-zero and differ, it's a fatal IterCountMismatchError.
func (s *Simulation) reconcileNumIter(other *Simulation) error {
	if s.NumIter == other.NumIter {
		return nil
	}
	if s.NumIter == 0 {
		s.NumIter = other.NumIter
		return nil
	}
	if other.Empty() {
		return nil
	}
	return &errs.IterCountMismatchError{Self: s.NumIter, Other: other.NumIter}
}

// Add reconciles NumIter, then for each iteration in other, ensures a
// Year exists in s and adds it, unioning risk groups.
func (s *Simulation) Add(other *Simulation) error {
	if err := s.reconcileNumIter(other); err != nil {
		return err
	}
	for iterID := range other.iterations {
		s.Iteration(iterID)
	}
	for iterID, y := range s.iterations {
		if otherYear, ok := other.iterations[iterID]; ok {
			if err := y.Add(otherYear); err != nil {
				return err
			}
		}
	}
	for rg := range other.riskGroups {
		s.riskGroups[rg] = struct{}{}
	}
	return nil
}

// Sub reconciles NumIter, then for each iteration in other not in s,
// inserts its negation; for those present in s, subtracts.
func (s *Simulation) Sub(other *Simulation) error {
	if err := s.reconcileNumIter(other); err != nil {
		return err
	}
	for iterID, otherYear := range other.iterations {
		if existing, ok := s.iterations[iterID]; ok {
			if err := existing.Sub(otherYear); err != nil {
				return err
			}
		} else {
			s.iterations[iterID] = otherYear.Negated()
		}
	}
	return nil
}

// Scale multiplies every Year by factor, short-circuiting when factor is
// within 1e-5 of 1.
func (s *Simulation) Scale(factor float64) {
	if math.Abs(factor-1) < 1e-5 {
		return
	}
	for _, y := range s.iterations {
		y.Scale(factor)
	}
}

// CountEvents sums Year.Size() across all iterations.
func (s *Simulation) CountEvents() int {
	total := 0
	for _, y := range s.iterations {
		total += y.Size()
	}
	return total
}

// ExpectedAndSD returns (mean, sd) of per-iteration total loss across
// NumIter iterations (including the implicit zero-loss iterations not
// stored in the map). The mean comes from gonum's stat.Mean; the
// variance is the one-pass population form sum(x^2)/n - mean^2, guarded
// against a slightly-negative result from float error.
func (s *Simulation) ExpectedAndSD(includeRip bool) (float64, float64) {
	if s.NumIter == 0 {
		return 0, 0
	}
	totals := make([]float64, 0, len(s.iterations))
	for _, y := range s.iterations {
		totals = append(totals, y.TotalLoss(includeRip))
	}
	zeroIters := s.NumIter - len(totals)
	for i := 0; i < zeroIters; i++ {
		totals = append(totals, 0)
	}
	mean := stat.Mean(totals, nil)
	var sumSq float64
	for _, t := range totals {
		sumSq += t * t
	}
	// spec §4.3 divides by NumIter (population variance, not gonum's
	// default sample variance), and guards against float error driving
	// the result slightly negative.
	variance := math.Max(0, sumSq/float64(len(totals))-mean*mean)
	return mean, math.Sqrt(variance)
}
