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

import (
	"fmt"

	"github.com/ctessum/sparse"
	"github.com/gonum/floats"
)

// floatTol is the tolerance for coordinate value comparisons.
const floatTol = 1.e-6

func valuesClose(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	return floats.EqualApprox(a, b, floatTol)
}

func valueClose(a, b float64) bool {
	return floats.EqualWithinAbsOrRel(a, b, floatTol, floatTol)
}

// lonIs0360 classifies a longitude coordinate as using the 0–360
// convention (minimum value ≥ 0) as opposed to signed ±180.
func lonIs0360(values []float64) bool {
	return floats.Min(values) >= 0
}

// flipLonConvention remaps longitude values to the opposite convention.
func flipLonConvention(values []float64) []float64 {
	o := make([]float64, len(values))
	if lonIs0360(values) {
		for i, v := range values {
			if v > 180 {
				v -= 360
			}
			o[i] = v
		}
	} else {
		for i, v := range values {
			if v < 0 {
				v += 360
			}
			o[i] = v
		}
	}
	return o
}

// indexOfZero returns the position of the value 0 in a coordinate.
func indexOfZero(values []float64) (int, bool) {
	for i, v := range values {
		if v == 0 {
			return i, true
		}
	}
	return 0, false
}

// rollFloats cyclically shifts a slice n positions to the right (negative
// n shifts left), matching the semantics of a coordinate roll.
func rollFloats(values []float64, n int) []float64 {
	l := len(values)
	o := make([]float64, l)
	for i, v := range values {
		o[((i+n)%l+l)%l] = v
	}
	return o
}

// rollDense cyclically shifts an array n positions along the given axis.
func rollDense(a *sparse.DenseArray, axis, n int) *sparse.DenseArray {
	o := sparse.ZerosDense(a.Shape...)
	l := a.Shape[axis]
	inner := 1
	for _, s := range a.Shape[axis+1:] {
		inner *= s
	}
	outer := len(a.Elements) / (l * inner)
	for i := 0; i < outer; i++ {
		for j := 0; j < l; j++ {
			jj := ((j+n)%l + l) % l
			src := (i*l + j) * inner
			dst := (i*l + jj) * inner
			copy(o.Elements[dst:dst+inner], a.Elements[src:src+inner])
		}
	}
	return o
}

// swapLonConvention swaps the candidate's longitude convention between
// signed ±180 and 0–360 to match the reference. Only the coordinate values
// change; data stay paired with their original physical longitudes.
type swapLonConvention struct{}

func (swapLonConvention) Name() string { return "swap_lon_convention" }
func (swapLonConvention) Description() string {
	return "Swap the longitude convention from -180-180 or 0-360."
}

func (swapLonConvention) Determine(candidate, reference *Dataset) (bool, error) {
	candLon, err := candidate.Coord("lon")
	if err != nil {
		return false, err
	}
	refLon, err := reference.Coord("lon")
	if err != nil {
		return false, err
	}
	if valuesClose(refLon.Values, candLon.Values) {
		return false, nil
	}
	if lonIs0360(candLon.Values) == lonIs0360(refLon.Values) {
		// Same convention but different values: the deviation cannot be
		// attributed to this correction.
		return false, &ConventionMismatchError{
			CandidateLon: candLon.Values,
			ReferenceLon: refLon.Values,
		}
	}
	return true, nil
}

func (swapLonConvention) Apply(candidate, reference *Dataset) (*Dataset, error) {
	o := candidate.Copy()
	lon, err := o.Coord("lon")
	if err != nil {
		return nil, err
	}
	lon.Values = flipLonConvention(lon.Values)
	return o, nil
}

// rotateLongitudes cyclically rotates the candidate through the longitude
// dimension so its grid starts where the reference grid starts, using the
// position of longitude 0 in both datasets as the alignment anchor.
type rotateLongitudes struct{}

func (rotateLongitudes) Name() string { return "rotate_longitudes" }
func (rotateLongitudes) Description() string {
	return "Rotate through the longitude dimension to match the reference dataset."
}

// rollOffset computes the rotation needed to align the candidate's
// longitude 0 with the reference's.
func (rotateLongitudes) rollOffset(candidate, reference *Dataset) (int, error) {
	candLon, err := candidate.Coord("lon")
	if err != nil {
		return 0, err
	}
	refLon, err := reference.Coord("lon")
	if err != nil {
		return 0, err
	}
	i0Cand, ok := indexOfZero(candLon.Values)
	if !ok {
		return 0, &ReferenceIndexNotFoundError{Dataset: "candidate"}
	}
	i0Ref, ok := indexOfZero(refLon.Values)
	if !ok {
		return 0, &ReferenceIndexNotFoundError{Dataset: "reference"}
	}
	return i0Ref - i0Cand, nil
}

func (r rotateLongitudes) Determine(candidate, reference *Dataset) (bool, error) {
	candLon, err := candidate.Coord("lon")
	if err != nil {
		return false, err
	}
	refLon, err := reference.Coord("lon")
	if err != nil {
		return false, err
	}
	if valuesClose(refLon.Values, candLon.Values) {
		return false, nil
	}
	nroll, err := r.rollOffset(candidate, reference)
	if err != nil {
		return false, err
	}
	if nroll == 0 {
		// Longitude 0 already overlaps; any remaining difference belongs
		// to the convention swap.
		return false, nil
	}
	rolled := rollFloats(candLon.Values, nroll)
	if !valuesClose(refLon.Values, rolled) {
		// Rolling alone was not enough; try a convention swap on the
		// rolled values before giving up.
		rolled = flipLonConvention(rolled)
	}
	if !valuesClose(refLon.Values, rolled) {
		return false, &UnresolvableLongitudeMismatchError{
			RolledLon:    rolled,
			ReferenceLon: refLon.Values,
		}
	}
	return true, nil
}

func (r rotateLongitudes) Apply(candidate, reference *Dataset) (*Dataset, error) {
	nroll, err := r.rollOffset(candidate, reference)
	if err != nil {
		return nil, err
	}
	o := candidate.Copy()
	lon, err := o.Coord("lon")
	if err != nil {
		return nil, err
	}
	lon.Values = rollFloats(lon.Values, nroll)
	for _, name := range o.VarNames {
		v := o.Vars[name]
		if ax := v.axis("lon"); ax >= 0 {
			v.Data = rollDense(v.Data, ax, nroll)
		}
	}
	return o, nil
}

// insertMissingTimes reindexes the candidate onto the reference's full
// time coordinate when timesteps are missing. New timesteps are filled
// with zero for every data variable, not with the fill value: "no AR
// detected" is represented as 0, not as missing data.
type insertMissingTimes struct{}

func (insertMissingTimes) Name() string { return "insert_missing_times" }
func (insertMissingTimes) Description() string {
	return "Insert missing timesteps (filled with zeros)."
}

// refTimeIndex maps each candidate timestep to its position in the
// reference time coordinate, failing when a candidate time value has no
// reference match.
func (insertMissingTimes) refTimeIndex(candTime, refTime []float64) ([]int, error) {
	idx := make([]int, len(candTime))
	for i, ct := range candTime {
		found := false
		for j, rt := range refTime {
			if valueClose(ct, rt) {
				idx[i] = j
				found = true
				break
			}
		}
		if !found {
			return nil, &TimeDomainMismatchError{Value: ct}
		}
	}
	return idx, nil
}

func (c insertMissingTimes) Determine(candidate, reference *Dataset) (bool, error) {
	candTime, err := candidate.Coord("time")
	if err != nil {
		return false, err
	}
	refTime, err := reference.Coord("time")
	if err != nil {
		return false, err
	}
	if len(candTime.Values) == len(refTime.Values) {
		return false, nil
	}
	// Reindexing is only safe when the candidate times are a subset of
	// the reference times.
	if _, err := c.refTimeIndex(candTime.Values, refTime.Values); err != nil {
		return false, err
	}
	return true, nil
}

func (c insertMissingTimes) Apply(candidate, reference *Dataset) (*Dataset, error) {
	candTime, err := candidate.Coord("time")
	if err != nil {
		return nil, err
	}
	refTime, err := reference.Coord("time")
	if err != nil {
		return nil, err
	}
	idx, err := c.refTimeIndex(candTime.Values, refTime.Values)
	if err != nil {
		return nil, err
	}

	o := NewDataset()
	for k, v := range candidate.Attrs {
		o.Attrs[k] = v
	}
	newTime := candTime.copy()
	newTime.Values = append([]float64{}, refTime.Values...)
	if err := o.AddCoord(newTime); err != nil {
		return nil, err
	}
	for _, name := range candidate.CoordNames {
		if name == "time" {
			continue
		}
		if err := o.AddCoord(candidate.Coords[name].copy()); err != nil {
			return nil, err
		}
	}

	nt := len(refTime.Values)
	for _, name := range candidate.VarNames {
		v := candidate.Vars[name]
		ax := v.axis("time")
		if ax < 0 {
			if err := o.AddVar(v.copy()); err != nil {
				return nil, err
			}
			continue
		}
		if ax != 0 {
			return nil, fmt.Errorf("artmip: variable %s must have time as its leading dimension", name)
		}
		shape := append([]int{nt}, v.Data.Shape[1:]...)
		data := sparse.ZerosDense(shape...)
		block := 1
		for _, s := range v.Data.Shape[1:] {
			block *= s
		}
		for i, j := range idx {
			copy(data.Elements[j*block:(j+1)*block], v.Data.Elements[i*block:(i+1)*block])
		}
		nv := v.copy()
		nv.Data = data
		if err := o.AddVar(nv); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// overrideTimeMetadata replaces the candidate's time coordinate values and
// metadata with the reference's.
type overrideTimeMetadata struct{}

var timeCheckAttrs = []string{"long_name", "units", "calendar", "standard_name"}

func (overrideTimeMetadata) Name() string { return "override_time_values_and_metadata" }
func (overrideTimeMetadata) Description() string {
	return "Override the time values and metadata with those from the reference dataset."
}

func (overrideTimeMetadata) Determine(candidate, reference *Dataset) (bool, error) {
	candTime, err := candidate.Coord("time")
	if err != nil {
		return false, err
	}
	refTime, err := reference.Coord("time")
	if err != nil {
		return false, err
	}
	// A length mismatch is handled by insert_missing_times; the value
	// check only applies when the lengths already agree.
	if len(candTime.Values) == len(refTime.Values) &&
		!valuesClose(refTime.Values, candTime.Values) {
		return true, nil
	}
	return attrsDiffer(candTime.Attrs, refTime.Attrs, timeCheckAttrs), nil
}

func (overrideTimeMetadata) Apply(candidate, reference *Dataset) (*Dataset, error) {
	refTime, err := reference.Coord("time")
	if err != nil {
		return nil, err
	}
	o := candidate.Copy()
	candTime, err := o.Coord("time")
	if err != nil {
		return nil, err
	}
	if len(candTime.Values) != len(refTime.Values) {
		return nil, fmt.Errorf("artmip: cannot override time values while lengths differ "+
			"(candidate %d, reference %d); missing timesteps must be inserted first",
			len(candTime.Values), len(refTime.Values))
	}
	candTime.Values = append([]float64{}, refTime.Values...)
	candTime.Attrs = make(map[string]string)
	for k, v := range refTime.Attrs {
		candTime.Attrs[k] = v
	}
	return o, nil
}

// overrideCoordMetadata copies the lat/lon coordinate metadata from the
// reference, leaving the coordinate values untouched.
type overrideCoordMetadata struct{}

var (
	checkCoords     = []string{"lat", "lon"}
	coordCheckAttrs = []string{"long_name", "units", "standard_name"}
)

func (overrideCoordMetadata) Name() string { return "override_coordinate_metadata" }
func (overrideCoordMetadata) Description() string {
	return "Override the lat/lon coordinate metadata with that from the reference dataset."
}

func (overrideCoordMetadata) Determine(candidate, reference *Dataset) (bool, error) {
	for _, coord := range checkCoords {
		candCoord, err := candidate.Coord(coord)
		if err != nil {
			return false, err
		}
		refCoord, err := reference.Coord(coord)
		if err != nil {
			return false, err
		}
		if attrsDiffer(candCoord.Attrs, refCoord.Attrs, coordCheckAttrs) {
			return true, nil
		}
	}
	return false, nil
}

func (overrideCoordMetadata) Apply(candidate, reference *Dataset) (*Dataset, error) {
	o := candidate.Copy()
	for _, coord := range checkCoords {
		candCoord, err := o.Coord(coord)
		if err != nil {
			return nil, err
		}
		refCoord, err := reference.Coord(coord)
		if err != nil {
			return nil, err
		}
		for _, att := range coordCheckAttrs {
			if val, ok := refCoord.Attrs[att]; ok {
				candCoord.Attrs[att] = val
			} else {
				delete(candCoord.Attrs, att)
			}
		}
	}
	return o, nil
}

// attrsDiffer reports whether any of the named attributes is present on
// one side but not the other, or present on both with different values.
func attrsDiffer(cand, ref map[string]string, names []string) bool {
	for _, att := range names {
		refVal, refHas := ref[att]
		candVal, candHas := cand[att]
		if refHas != candHas || (refHas && refVal != candVal) {
			return true
		}
	}
	return false
}
