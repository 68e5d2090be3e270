package usecases

import (
	"errors"
	"sync"

	"github.com/tsig-uy/mapgate/internal/core/domain"
)

// ErrNoCandidateSet is returned when selecting or listing without an
// open candidate set.
var ErrNoCandidateSet = errors.New("no candidate set is open")

// ErrCandidateNotFound is returned when the selection does not match
// any held candidate.
var ErrCandidateNotFound = errors.New("candidate not found in the open set")

// Disambiguator holds the candidate set of an ambiguous click. Sets of
// zero or one candidates never open it; two or more are held until the
// user selects exactly one or dismisses the set. Candidates keep their
// source feature type, so a stop and a line under the same click
// tolerance coexist.
type Disambiguator struct {
	mu   sync.Mutex
	held []domain.FeatureCandidate
}

// NewDisambiguator creates an empty disambiguator.
func NewDisambiguator() *Disambiguator {
	return &Disambiguator{}
}

// Offer hands a click's candidates to the disambiguator. With zero or
// one candidates it stays inert and returns the single candidate (if
// any) for direct consumption. With two or more it replaces any
// previously held set and reports held=true.
func (d *Disambiguator) Offer(candidates []domain.FeatureCandidate) (direct *domain.FeatureCandidate, held bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch len(candidates) {
	case 0:
		d.held = nil
		return nil, false
	case 1:
		d.held = nil
		c := candidates[0]
		return &c, false
	default:
		d.held = make([]domain.FeatureCandidate, len(candidates))
		copy(d.held, candidates)
		return nil, true
	}
}

// Select resolves the open set to exactly one candidate and closes it.
// The remaining candidates are discarded.
func (d *Disambiguator) Select(featureType domain.FeatureType, id string) (*domain.FeatureCandidate, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.held) == 0 {
		return nil, ErrNoCandidateSet
	}
	for _, c := range d.held {
		if c.Type == featureType && c.ID == id {
			d.held = nil
			picked := c
			return &picked, nil
		}
	}
	return nil, ErrCandidateNotFound
}

// Dismiss discards the open set without a selection. Dismissing an
// empty disambiguator is a no-op.
func (d *Disambiguator) Dismiss() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.held = nil
}

// Active returns a copy of the currently held candidates, if any.
func (d *Disambiguator) Active() []domain.FeatureCandidate {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.held) == 0 {
		return nil
	}
	out := make([]domain.FeatureCandidate, len(d.held))
	copy(out, d.held)
	return out
}
