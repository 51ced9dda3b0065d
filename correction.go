/*
Copyright © 2024 the ARTMIPStandardizer authors.
This file is part of ARTMIPStandardizer.

ARTMIPStandardizer is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

ARTMIPStandardizer is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with ARTMIPStandardizer.  If not, see <http://www.gnu.org/licenses/>.
*/

package artmip

// A Correction detects and fixes one specific structural or metadata
// inconsistency between a candidate dataset (the detection algorithm's
// output) and the reference dataset the algorithm was run on.
//
// Determine inspects both datasets and reports whether the candidate
// deviates from the reference in the way this correction addresses. It
// must not modify either dataset, and it must return a named error rather
// than guess when it cannot unambiguously classify the pair.
//
// Apply returns a new candidate dataset with the deviation resolved. It is
// only called when Determine returned true for the same pair. Applying a
// correction once must be sufficient: Determine on the result must return
// false.
type Correction interface {
	Name() string
	// Description is a short imperative phrase recorded in the output
	// provenance attribute when the correction is applied.
	Description() string
	Determine(candidate, reference *Dataset) (bool, error)
	Apply(candidate, reference *Dataset) (*Dataset, error)
}

// A Registry is an ordered collection of corrections. Registration order
// determines both the order in which corrections are determined and the
// order in which they are applied.
type Registry struct {
	order []Correction
	index map[string]int
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{index: make(map[string]int)}
}

// Register adds a correction to the registry. It returns a
// MalformedCorrectionError when the correction is nil, has an empty name
// or description, or reuses a name that is already registered.
func (r *Registry) Register(c Correction) error {
	if c == nil {
		return &MalformedCorrectionError{Reason: "correction is nil"}
	}
	if c.Name() == "" {
		return &MalformedCorrectionError{Reason: "correction has no name"}
	}
	if c.Description() == "" {
		return &MalformedCorrectionError{Name: c.Name(), Reason: "correction has no description"}
	}
	if _, ok := r.index[c.Name()]; ok {
		return &MalformedCorrectionError{Name: c.Name(), Reason: "correction is already registered"}
	}
	r.index[c.Name()] = len(r.order)
	r.order = append(r.order, c)
	return nil
}

// Corrections returns the registered corrections in registration order.
func (r *Registry) Corrections() []Correction {
	return append([]Correction{}, r.order...)
}

// Len returns the number of registered corrections.
func (r *Registry) Len() int { return len(r.order) }

// Plan runs the determination phase of every registered correction, in
// registration order, and returns the subset that needs to be applied to
// this candidate/reference pair. Any determination error aborts planning.
func (r *Registry) Plan(candidate, reference *Dataset) ([]Correction, error) {
	var plan []Correction
	for _, c := range r.order {
		needed, err := c.Determine(candidate, reference)
		if err != nil {
			return nil, err
		}
		if needed {
			plan = append(plan, c)
		}
	}
	return plan, nil
}

// DefaultRegistry returns a registry holding the standard ARTMIP
// corrections in their canonical application order.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, c := range []Correction{
		swapLonConvention{},
		rotateLongitudes{},
		insertMissingTimes{},
		overrideTimeMetadata{},
		overrideCoordMetadata{},
	} {
		if err := r.Register(c); err != nil {
			panic(err) // the standard set is checked at startup
		}
	}
	return r
}
