package catmodel

import (
	"sort"

	"github.com/riskmodels/catagg/internal/errs"
)

// Year is one simulated iteration's event collection, keyed by sequence
// id. The head list records events first inserted into this Year (as
// opposed to events that arrived via MergeForward from another Year's
// head list); it is drained by the next MergeForward so a worker-built
// Year can be folded into an accumulator without re-visiting events the
// accumulator already owns.
type Year struct {
	IterID int64

	events map[int]*Event
	head   []*Event
}

// NewYear returns an empty Year.
func NewYear() *Year {
	return &Year{events: make(map[int]*Event)}
}

// Size returns the number of events in the Year.
func (y *Year) Size() int { return len(y.events) }

// Event returns the event stored at seqID, or nil if absent.
func (y *Year) Event(seqID int) *Event {
	return y.events[seqID]
}

// Events returns the underlying sequence-id-keyed event map. Callers
// must not retain it across further mutation of y.
func (y *Year) Events() map[int]*Event { return y.events }

// SortedSequenceIDs returns the Year's sequence ids in ascending order,
// for deterministic iteration where callers need it (spec §4.2: "iteration
// order ... preserved for deterministic iteration when possible").
func (y *Year) SortedSequenceIDs() []int {
	ids := make([]int, 0, len(y.events))
	for id := range y.events {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// AddEvent scales e by factor and inserts it at seqID, applying the
// merge-collision rules from spec §4.2. ownerIterID becomes the Year's
// IterID. When recordInHead is true and the slot was empty, e is also
// appended to the head list for later MergeForward draining.
func (y *Year) AddEvent(seqID int, e Event, factor float64, ownerIterID int64, recordInHead bool) error {
	y.IterID = ownerIterID
	e.Scale(factor)

	existing, ok := y.events[seqID]
	if !ok {
		e.SequenceID = seqID
		stored := e
		y.events[seqID] = &stored
		if recordInHead {
			y.head = append(y.head, &stored)
		}
		return nil
	}

	if existing.RiskGroup == e.RiskGroup || !isNoncatSynthetic(e.RiskGroup) {
		existing.MergeAdd(e)
		return nil
	}

	// Collision between distinct Noncat-<mfid> synthetic groups: find the
	// next free slot within the same thousand-block.
	block := seqID - seqID%1000
	for c := 501; c < 999; c++ {
		candidate := block + c
		if _, taken := y.events[candidate]; !taken {
			e.SequenceID = candidate
			stored := e
			y.events[candidate] = &stored
			return nil
		}
	}
	return &errs.NoncatSlotOverflowError{SeqID: seqID}
}

// MergeForward drains other's head list, inserting each event into y via
// AddEvent with factor 1 and recordInHead false. other's head list is
// left empty.
func (y *Year) MergeForward(other *Year) error {
	for _, e := range other.head {
		if err := y.AddEvent(e.SequenceID, *e, 1, other.IterID, false); err != nil {
			return err
		}
	}
	other.head = nil
	return nil
}

// Add folds other's full event map into y with factor +1.
func (y *Year) Add(other *Year) error {
	return y.combine(other, 1)
}

// Sub folds other's full event map into y with factor -1.
func (y *Year) Sub(other *Year) error {
	return y.combine(other, -1)
}

func (y *Year) combine(other *Year, factor float64) error {
	for seqID, e := range other.events {
		if err := y.AddEvent(seqID, *e, factor, 0, false); err != nil {
			return err
		}
	}
	return nil
}

// Negated returns a new Year with every event's Loss/ReinstatementPrem/
// FullRip negated, preserving IterID.
func (y *Year) Negated() *Year {
	res := NewYear()
	for seqID, e := range y.events {
		// AddEvent error is impossible here: negation never creates a
		// Noncat-synthetic collision on a fresh Year.
		_ = res.AddEvent(seqID, *e, -1, y.IterID, false)
	}
	res.IterID = y.IterID
	return res
}

// Scale multiplies every event's Loss and ReinstatementPrem by factor.
func (y *Year) Scale(factor float64) {
	for _, e := range y.events {
		e.Scale(factor)
	}
}

// TotalLoss sums each event's Loss (includeRip=false) or LossNetOfRip
// (includeRip=true).
func (y *Year) TotalLoss(includeRip bool) float64 {
	var total float64
	for _, e := range y.events {
		if includeRip {
			total += e.LossNetOfRip()
		} else {
			total += e.Loss
		}
	}
	return total
}

// FilterOut removes every event in riskGroup whose |ReinstatementPrem|
// falls below threshold. Preserved for interface compatibility with
// downstream pricing code (spec §4.2).
func (y *Year) FilterOut(threshold float64, riskGroup string) {
	for seqID, e := range y.events {
		if e.RiskGroup != riskGroup {
			continue
		}
		rip := e.ReinstatementPrem
		if rip < 0 {
			rip = -rip
		}
		if rip < threshold {
			delete(y.events, seqID)
		}
	}
}
