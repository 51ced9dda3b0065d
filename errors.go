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

import "fmt"

// MalformedCorrectionError is returned when a correction that does not
// satisfy the registration contract (non-empty name and description, both
// phases implemented, unique name) is registered.
type MalformedCorrectionError struct {
	Name   string
	Reason string
}

func (e *MalformedCorrectionError) Error() string {
	return fmt.Sprintf("artmip: malformed correction %q: %s", e.Name, e.Reason)
}

// ConventionMismatchError is returned when the candidate and reference
// longitudes differ even though both datasets use the same longitude
// convention, so the difference cannot be attributed to a convention swap.
type ConventionMismatchError struct {
	CandidateLon []float64
	ReferenceLon []float64
}

func (e *ConventionMismatchError) Error() string {
	return fmt.Sprintf("artmip: longitudes are not identical, but both datasets "+
		"use the same longitude convention: candidate lon = %v, reference lon = %v",
		e.CandidateLon, e.ReferenceLon)
}

// ReferenceIndexNotFoundError is returned when longitude 0, which anchors
// the rotation alignment, is absent from one of the datasets.
type ReferenceIndexNotFoundError struct {
	Dataset string // "candidate" or "reference"
}

func (e *ReferenceIndexNotFoundError) Error() string {
	return fmt.Sprintf("artmip: longitude 0 does not exist in the %s dataset; "+
		"it is not clear how to proceed", e.Dataset)
}

// UnresolvableLongitudeMismatchError is returned when neither rotation nor
// rotation plus a convention swap reproduces the reference longitudes.
type UnresolvableLongitudeMismatchError struct {
	RolledLon    []float64
	ReferenceLon []float64
}

func (e *UnresolvableLongitudeMismatchError) Error() string {
	return fmt.Sprintf("artmip: longitudes are not identical, but rolling the "+
		"longitude dimension did not fix the problem: rolled lon = %v, reference lon = %v",
		e.RolledLon, e.ReferenceLon)
}

// TimeDomainMismatchError is returned when the candidate time values are not
// a subset of the reference time values, so the candidate cannot safely be
// reindexed onto the reference time coordinate.
type TimeDomainMismatchError struct {
	Value float64 // the first candidate time value with no reference match
}

func (e *TimeDomainMismatchError) Error() string {
	return fmt.Sprintf("artmip: candidate time value %g does not match any "+
		"reference time value; cannot determine how to sensibly modify the time "+
		"dimension of the candidate dataset", e.Value)
}

// WriteNotReadyError is returned when the output writer is invoked before
// corrections have produced a final dataset.
type WriteNotReadyError struct{}

func (e *WriteNotReadyError) Error() string {
	return "artmip: corrections must be applied prior to writing"
}

// NoInputFilesError is returned when a file specification resolves to zero
// input files.
type NoInputFilesError struct {
	Spec string
}

func (e *NoInputFilesError) Error() string {
	return fmt.Sprintf("artmip: no input files match %q", e.Spec)
}
