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
	"os"
	"path/filepath"
	"sort"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
)

// A FileSpec identifies a set of input files, either by glob pattern or by
// explicit list. When both are set the explicit list wins.
type FileSpec struct {
	Pattern string
	Paths   []string
}

// Resolve returns the file paths the specification matches, sorted when
// resolved from a glob. It returns a NoInputFilesError when nothing
// matches.
func (s FileSpec) Resolve() ([]string, error) {
	if len(s.Paths) > 0 {
		return s.Paths, nil
	}
	if s.Pattern == "" {
		return nil, &NoInputFilesError{Spec: s.Pattern}
	}
	paths, err := filepath.Glob(s.Pattern)
	if err != nil {
		return nil, fmt.Errorf("artmip: resolving file pattern %q: %v", s.Pattern, err)
	}
	if len(paths) == 0 {
		return nil, &NoInputFilesError{Spec: s.Pattern}
	}
	sort.Strings(paths)
	return paths, nil
}

// LoadOptions control how an input dataset is assembled from its files.
type LoadOptions struct {
	// DecodeSeparately decodes each file's time coordinate against that
	// file's own units and calendar before concatenation, converting all
	// values to the first file's encoding. It is needed for sources whose
	// files use inconsistent time encodings, at some load-time cost.
	DecodeSeparately bool

	// Metadata maps variable name to attribute name to value; the
	// overrides are applied to each file immediately after it is read,
	// before any decoding or concatenation.
	Metadata map[string]map[string]string
}

// LoadDataset opens all files a specification resolves to and concatenates
// them along the time dimension. Time values are kept in their raw,
// undecoded form.
func LoadDataset(spec FileSpec, opts LoadOptions) (*Dataset, error) {
	paths, err := spec.Resolve()
	if err != nil {
		return nil, err
	}

	parts := make([]*Dataset, len(paths))
	for i, path := range paths {
		if parts[i], err = OpenDataset(path); err != nil {
			return nil, err
		}
		parts[i].ApplyMetadata(opts.Metadata)
	}

	if opts.DecodeSeparately {
		if err := alignTimeEncodings(parts); err != nil {
			return nil, err
		}
	}
	return ConcatTime(parts)
}

// OpenDataset reads a single NetCDF file into memory.
func OpenDataset(path string) (*Dataset, error) {
	ff, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("artmip: opening input file: %v", err)
	}
	defer ff.Close()
	f, err := cdf.Open(ff)
	if err != nil {
		return nil, fmt.Errorf("artmip: reading NetCDF file %s: %v", path, err)
	}
	d, err := readDataset(f)
	if err != nil {
		return nil, fmt.Errorf("artmip: reading NetCDF file %s: %v", path, err)
	}
	return d, nil
}

// alignTimeEncodings rewrites the time values of every dataset after the
// first into the first dataset's time encoding, decoding each value under
// its own file's units and calendar. All files must use the same calendar.
func alignTimeEncodings(parts []*Dataset) error {
	if len(parts) < 2 {
		return nil
	}
	target, err := timeEncodingOf(parts[0])
	if err != nil {
		return err
	}
	for _, p := range parts[1:] {
		enc, err := timeEncodingOf(p)
		if err != nil {
			return err
		}
		if enc.calendar != target.calendar {
			return fmt.Errorf("artmip: cannot combine files with calendars %q and %q",
				enc.calendar, target.calendar)
		}
		tc, err := p.Coord("time")
		if err != nil {
			return err
		}
		for i, v := range tc.Values {
			tc.Values[i] = target.encode(enc.decode(v))
		}
		tc.Attrs["units"] = parts[0].Coords["time"].Attrs["units"]
	}
	return nil
}

// ConcatTime concatenates datasets along the time dimension, in order.
// Non-time dimensions, coordinates, and time-independent variables must be
// consistent across the datasets; the first dataset's copies are kept.
func ConcatTime(parts []*Dataset) (*Dataset, error) {
	if len(parts) == 0 {
		return nil, fmt.Errorf("artmip: no datasets to concatenate")
	}
	out := parts[0].Copy()
	if len(parts) == 1 {
		return out, nil
	}
	tc, err := out.Coord("time")
	if err != nil {
		return nil, err
	}

	elements := make(map[string][]float64)
	for _, name := range out.VarNames {
		if out.Vars[name].axis("time") == 0 {
			elements[name] = append([]float64{}, out.Vars[name].Data.Elements...)
		}
	}

	for _, p := range parts[1:] {
		ptc, err := p.Coord("time")
		if err != nil {
			return nil, err
		}
		tc.Values = append(tc.Values, ptc.Values...)

		for _, name := range out.VarNames {
			v := out.Vars[name]
			ax := v.axis("time")
			if ax < 0 {
				continue
			}
			if ax != 0 {
				return nil, fmt.Errorf("artmip: variable %s must have time as its leading dimension", name)
			}
			pv, err := p.Var(name)
			if err != nil {
				return nil, err
			}
			for i := 1; i < len(v.Data.Shape); i++ {
				if pv.Data.Shape[i] != v.Data.Shape[i] {
					return nil, fmt.Errorf("artmip: variable %s has inconsistent shapes across input files", name)
				}
			}
			elements[name] = append(elements[name], pv.Data.Elements...)
		}
	}

	out.DimLengths["time"] = len(tc.Values)
	for name, els := range elements {
		v := out.Vars[name]
		shape := append([]int{len(tc.Values)}, v.Data.Shape[1:]...)
		data := sparse.ZerosDense(shape...)
		copy(data.Elements, els)
		v.Data = data
	}
	return out, nil
}
