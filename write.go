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
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ctessum/cdf"
	"github.com/klauspost/pgzip"
)

// An Encoding describes how one variable is stored on disk.
type Encoding struct {
	// Dtype is the on-disk type ("int8", "int16", "int32", "float32", or
	// "float64").
	Dtype string
	// Complevel is the compression level recorded for the variable.
	Complevel int
	// FillValue is written as the variable's _FillValue attribute when
	// non-nil; a nil FillValue suppresses any default fill value.
	FillValue *float64
	// Units and Calendar override the time coordinate's encoding so that
	// all output partitions share one time origin.
	Units, Calendar string
}

// encodings computes the per-variable storage encoding for the output
// dataset: every variable carries the configured compression level with
// default fill values suppressed, the three coordinate variables are
// pinned to the reference dataset's on-disk types, the AR tag variable is
// pinned to a single-byte integer type, and the time encoding propagates
// the reference's units and calendar.
func (s *Standardizer) encodings() (map[string]Encoding, error) {
	if s.reference == nil {
		return nil, fmt.Errorf("artmip: reference dataset must be loaded to compute output encodings")
	}
	encs := make(map[string]Encoding)

	for _, name := range s.output.CoordNames {
		e := Encoding{
			Dtype:     s.output.Coords[name].Dtype,
			Complevel: s.cfg.CompressionLevel,
		}
		if rc, ok := s.reference.Coords[name]; ok {
			e.Dtype = rc.Dtype
		}
		if name == "time" {
			tc := s.output.Coords[name]
			units, ok := tc.Attrs["units"]
			if !ok {
				return nil, fmt.Errorf("artmip: output time coordinate has no units attribute")
			}
			e.Units = units
			e.Calendar = tc.Attrs["calendar"]
		}
		encs[name] = e
	}

	for _, name := range s.output.VarNames {
		e := Encoding{
			Dtype:     s.output.Vars[name].Dtype,
			Complevel: s.cfg.CompressionLevel,
		}
		if name == TagVariable {
			e.Dtype = "int8"
			e.FillValue = s.cfg.TagFillValue
		}
		encs[name] = e
	}
	return encs, nil
}

// Write records the provenance attribute on the output dataset, partitions
// it by calendar year, and persists one file per year at the path the
// template produces for that year. Parent directories are created as
// needed. Partitions already written stay on disk if a later partition
// fails; each individual file is written to a temporary name and renamed
// into place, so no partition is ever visible half-written.
func (s *Standardizer) Write() error {
	if s.output == nil {
		return &WriteNotReadyError{}
	}
	s.output.Attrs[ProvenanceAttribute] = s.Provenance()

	encs, err := s.encodings()
	if err != nil {
		return err
	}
	tenc, err := parseTimeEncoding(encs["time"].Units, encs["time"].Calendar)
	if err != nil {
		return err
	}

	tc, err := s.output.Coord("time")
	if err != nil {
		return err
	}
	byYear := make(map[int][]int)
	var years []int
	for i, v := range tc.Values {
		y := tenc.yearOf(v)
		if _, ok := byYear[y]; !ok {
			years = append(years, y)
		}
		byYear[y] = append(byYear[y], i)
	}
	sort.Ints(years)

	for _, year := range years {
		part, err := s.output.SelectTime(byYear[year])
		if err != nil {
			return err
		}
		path := strings.Replace(s.cfg.OutputTemplate, YearToken, fmt.Sprintf("%04d", year), -1)
		if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
			return fmt.Errorf("artmip: creating output directory: %v", err)
		}
		s.msg("writing %s (%d timesteps)", path, len(byYear[year]))
		if err := writePartition(part, path, encs, s.cfg.CompressionLevel); err != nil {
			return err
		}
	}
	return nil
}

// writePartition persists one per-year partition as a NetCDF file with
// time as the unlimited dimension. When the destination path ends in ".gz"
// and the gzip level is positive, the file is compressed at that level.
func writePartition(ds *Dataset, path string, encs map[string]Encoding, gzipLevel int) error {
	dimLens := make([]int, len(ds.DimNames))
	for i, name := range ds.DimNames {
		if name == "time" {
			dimLens[i] = 0 // unlimited
		} else {
			dimLens[i] = ds.DimLengths[name]
		}
	}
	h := cdf.NewHeader(ds.DimNames, dimLens)

	for _, name := range ds.CoordNames {
		c := ds.Coords[name]
		e := encs[name]
		proto, err := protoFor(e.Dtype)
		if err != nil {
			return fmt.Errorf("artmip: coordinate %s: %v", name, err)
		}
		h.AddVariable(name, []string{name}, proto)
		for _, att := range sortedKeys(c.Attrs) {
			val := c.Attrs[att]
			if name == "time" && att == "units" && e.Units != "" {
				val = e.Units
			}
			if name == "time" && att == "calendar" && e.Calendar != "" {
				val = e.Calendar
			}
			h.AddAttribute(name, att, val)
		}
	}

	for _, name := range ds.VarNames {
		v := ds.Vars[name]
		e := encs[name]
		proto, err := protoFor(e.Dtype)
		if err != nil {
			return fmt.Errorf("artmip: variable %s: %v", name, err)
		}
		h.AddVariable(name, v.Dims, proto)
		for _, att := range sortedKeys(v.Attrs) {
			h.AddAttribute(name, att, v.Attrs[att])
		}
		if e.FillValue != nil {
			fill, err := typedValues(e.Dtype, []float64{*e.FillValue})
			if err != nil {
				return fmt.Errorf("artmip: variable %s fill value: %v", name, err)
			}
			h.AddAttribute(name, "_FillValue", fill)
		}
	}

	for _, att := range sortedKeys(ds.Attrs) {
		h.AddAttribute("", att, ds.Attrs[att])
	}

	h.Define()
	for _, err := range h.Check() {
		return fmt.Errorf("artmip: invalid output NetCDF header for %s: %v", path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp")
	if err != nil {
		return fmt.Errorf("artmip: creating output file: %v", err)
	}
	defer os.Remove(tmp.Name())

	f, err := cdf.Create(tmp, h)
	if err != nil {
		tmp.Close()
		return fmt.Errorf("artmip: creating output NetCDF file %s: %v", path, err)
	}

	for _, name := range ds.CoordNames {
		if err := writeValues(f, name, []int{len(ds.Coords[name].Values)},
			encs[name].Dtype, ds.Coords[name].Values); err != nil {
			tmp.Close()
			return fmt.Errorf("artmip: writing coordinate %s to %s: %v", name, path, err)
		}
	}
	for _, name := range ds.VarNames {
		v := ds.Vars[name]
		if err := writeValues(f, name, v.Data.Shape, encs[name].Dtype, v.Data.Elements); err != nil {
			tmp.Close()
			return fmt.Errorf("artmip: writing variable %s to %s: %v", name, path, err)
		}
	}
	if err := cdf.UpdateNumRecs(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("artmip: finalizing output NetCDF file %s: %v", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("artmip: closing output file %s: %v", path, err)
	}

	if gzipLevel > 0 && strings.HasSuffix(path, ".gz") {
		return gzipFile(tmp.Name(), path, gzipLevel)
	}
	return os.Rename(tmp.Name(), path)
}

func writeValues(f *cdf.File, name string, shape []int, dtype string, values []float64) error {
	begin := make([]int, len(shape))
	buf, err := typedValues(dtype, values)
	if err != nil {
		return err
	}
	w := f.Writer(name, begin, shape)
	if _, err := w.Write(buf); err != nil {
		return err
	}
	return nil
}

// gzipFile compresses src into dst and removes src.
func gzipFile(src, dst string, level int) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("artmip: compressing output: %v", err)
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("artmip: compressing output: %v", err)
	}
	zw, err := pgzip.NewWriterLevel(out, level)
	if err != nil {
		out.Close()
		return fmt.Errorf("artmip: compressing output: %v", err)
	}
	if _, err := io.Copy(zw, in); err != nil {
		zw.Close()
		out.Close()
		return fmt.Errorf("artmip: compressing output to %s: %v", dst, err)
	}
	if err := zw.Close(); err != nil {
		out.Close()
		return fmt.Errorf("artmip: compressing output to %s: %v", dst, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("artmip: compressing output to %s: %v", dst, err)
	}
	return os.Remove(src)
}

func protoFor(dtype string) (interface{}, error) {
	switch dtype {
	case "int8":
		return []int8{0}, nil
	case "int16":
		return []int16{0}, nil
	case "int32":
		return []int32{0}, nil
	case "float32":
		return []float32{0}, nil
	case "float64", "":
		return []float64{0}, nil
	}
	return nil, fmt.Errorf("unsupported on-disk type %q", dtype)
}

func typedValues(dtype string, values []float64) (interface{}, error) {
	switch dtype {
	case "int8":
		o := make([]int8, len(values))
		for i, v := range values {
			o[i] = int8(v)
		}
		return o, nil
	case "int16":
		o := make([]int16, len(values))
		for i, v := range values {
			o[i] = int16(v)
		}
		return o, nil
	case "int32":
		o := make([]int32, len(values))
		for i, v := range values {
			o[i] = int32(v)
		}
		return o, nil
	case "float32":
		o := make([]float32, len(values))
		for i, v := range values {
			o[i] = float32(v)
		}
		return o, nil
	case "float64", "":
		return append([]float64{}, values...), nil
	}
	return nil, fmt.Errorf("unsupported on-disk type %q", dtype)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
