// Package catmodel implements the simulation algebra over loss events:
// Event, Year, and Simulation, per the aggregation engine's core data
// model.
package catmodel

import (
	"math"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/riskmodels/catagg/internal/errs"
)

// Event is a single loss occurrence within one iteration. Events are
// owned by exactly one Year; RipBase is an unused auxiliary field kept
// only for layout compatibility with the source format.
type Event struct {
	EventID            int
	SequenceID         int
	Loss               float64
	ReinstatementPrem  float64
	FullRip            float64
	RiskGroup          string
	RipBase            float64
}

// NewEvent builds a default event, matching the source's zero-value
// constructor (RiskGroup defaults to "NA").
func NewEvent() Event {
	return Event{RiskGroup: "NA"}
}

// LossNetOfRip returns Loss minus ReinstatementPrem.
func (e Event) LossNetOfRip() float64 { return e.Loss - e.ReinstatementPrem }

// LossNetOfFullRip returns Loss minus FullRip.
func (e Event) LossNetOfFullRip() float64 { return e.Loss - e.FullRip }

// Scale multiplies Loss and ReinstatementPrem by factor. FullRip is left
// untouched by design; use ScaleFullRip to rescale it.
func (e *Event) Scale(factor float64) {
	e.Loss *= factor
	e.ReinstatementPrem *= factor
}

// ScaleWithRiskGroup applies Scale iff rg is "ALL" or equals e.RiskGroup.
func (e *Event) ScaleWithRiskGroup(factor float64, rg string) {
	if rg == "ALL" || rg == e.RiskGroup {
		e.Scale(factor)
	}
}

// ScaleWithRiskGroupSet applies Scale iff e.RiskGroup is a member of rgs.
func (e *Event) ScaleWithRiskGroupSet(factor float64, rgs map[string]struct{}) {
	if _, ok := rgs[e.RiskGroup]; ok {
		e.Scale(factor)
	}
}

// ScaleRip multiplies ReinstatementPrem by factor, then clamps
// |ReinstatementPrem| <= |Loss|, snapping to Loss while preserving the
// sign of the pre-clamp value.
func (e *Event) ScaleRip(factor float64) {
	e.ReinstatementPrem *= factor
	if math.Abs(e.ReinstatementPrem) > math.Abs(e.Loss) {
		e.ReinstatementPrem = math.Copysign(math.Abs(e.Loss), e.ReinstatementPrem)
	}
}

// ScaleFullRip is the analogous clamp for FullRip.
func (e *Event) ScaleFullRip(factor float64) {
	e.FullRip *= factor
	if math.Abs(e.FullRip) > math.Abs(e.Loss) {
		e.FullRip = math.Copysign(math.Abs(e.Loss), e.FullRip)
	}
}

// CombineRipIntoLoss folds ReinstatementPrem into Loss and zeroes it.
func (e *Event) CombineRipIntoLoss() {
	e.Loss -= e.ReinstatementPrem
	e.ReinstatementPrem = 0
}

// MergeAdd sums Loss, ReinstatementPrem, and FullRip from other into e.
// A mismatched EventID is logged and otherwise ignored unless other's
// risk group (case-insensitively) ends in "TERR", in which case the
// mismatch is expected (terrorism risk groups are intentionally
// aggregated across event ids) and nothing is logged.
func (e *Event) MergeAdd(other Event) {
	if e.EventID != other.EventID {
		rg := strings.ToUpper(other.RiskGroup)
		if !strings.HasSuffix(rg, "TERR") {
			logrus.Warnf("%v", &errs.EventIdMismatchError{A: e.EventID, B: other.EventID, RiskGroup: other.RiskGroup})
		}
	}
	e.Loss += other.Loss
	e.ReinstatementPrem += other.ReinstatementPrem
	e.FullRip += other.FullRip
}

// Negate returns a copy of e with Loss, ReinstatementPrem, and FullRip
// negated.
func (e Event) Negate() Event {
	e.Loss = -e.Loss
	e.ReinstatementPrem = -e.ReinstatementPrem
	e.FullRip = -e.FullRip
	return e
}

// isNoncatSynthetic reports whether rg is a "Noncat-<mfid>" synthetic
// risk group produced by multi-tenant ingestion (spec §4.6).
func isNoncatSynthetic(rg string) bool {
	return strings.HasPrefix(rg, "Noncat-")
}
