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

// Package artmip standardizes the output of ARTMIP atmospheric-river
// detection algorithms against the reference dataset the algorithms were
// run on. It loads both datasets from NetCDF files, determines and applies
// a sequence of structural and metadata corrections to the detection
// output, and writes the result back out as one NetCDF file per calendar
// year with a provenance attribute recording the corrections applied.
package artmip

import (
	"fmt"
	"strconv"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
)

// TagVariable is the name of the primary AR detection variable in ARTMIP
// contributions.
const TagVariable = "ar_binary_tag"

// A Coord is a coordinate variable: the values labeling one dimension,
// plus its metadata attributes and the type it is stored as on disk.
type Coord struct {
	Name   string
	Values []float64
	Attrs  map[string]string
	Dtype  string
}

// A DataVar is a data variable defined over one or more dimensions.
type DataVar struct {
	Name      string
	Dims      []string
	Data      *sparse.DenseArray
	Attrs     map[string]string
	Dtype     string
	FillValue *float64
}

// A Dataset is a named collection of dimensions, coordinate variables, and
// data variables, mirroring the structure of a NetCDF file.
type Dataset struct {
	DimNames   []string
	DimLengths map[string]int
	CoordNames []string
	Coords     map[string]*Coord
	VarNames   []string
	Vars       map[string]*DataVar
	Attrs      map[string]string
}

// NewDataset returns an empty dataset.
func NewDataset() *Dataset {
	return &Dataset{
		DimLengths: make(map[string]int),
		Coords:     make(map[string]*Coord),
		Vars:       make(map[string]*DataVar),
		Attrs:      make(map[string]string),
	}
}

func (d *Dataset) addDim(name string, length int) error {
	if l, ok := d.DimLengths[name]; ok {
		if l != length {
			return fmt.Errorf("artmip: dimension %s redeclared with length %d (have %d)", name, length, l)
		}
		return nil
	}
	d.DimNames = append(d.DimNames, name)
	d.DimLengths[name] = length
	return nil
}

// AddCoord adds a coordinate variable, declaring its dimension if it does
// not exist yet.
func (d *Dataset) AddCoord(c *Coord) error {
	if err := d.addDim(c.Name, len(c.Values)); err != nil {
		return err
	}
	if len(c.Values) != d.DimLengths[c.Name] {
		return fmt.Errorf("artmip: coordinate %s has %d values but dimension length is %d",
			c.Name, len(c.Values), d.DimLengths[c.Name])
	}
	if c.Attrs == nil {
		c.Attrs = make(map[string]string)
	}
	if _, ok := d.Coords[c.Name]; !ok {
		d.CoordNames = append(d.CoordNames, c.Name)
	}
	d.Coords[c.Name] = c
	return nil
}

// AddVar adds a data variable. Every dimension the variable is defined
// over must already exist in the dataset, and the array shape must match
// the dimension lengths.
func (d *Dataset) AddVar(v *DataVar) error {
	if len(v.Dims) != len(v.Data.Shape) {
		return fmt.Errorf("artmip: variable %s has %d dimensions but array rank %d",
			v.Name, len(v.Dims), len(v.Data.Shape))
	}
	for i, dim := range v.Dims {
		l, ok := d.DimLengths[dim]
		if !ok {
			return fmt.Errorf("artmip: variable %s uses undeclared dimension %s", v.Name, dim)
		}
		if v.Data.Shape[i] != l {
			return fmt.Errorf("artmip: variable %s axis %d has length %d but dimension %s has length %d",
				v.Name, i, v.Data.Shape[i], dim, l)
		}
	}
	if v.Attrs == nil {
		v.Attrs = make(map[string]string)
	}
	if _, ok := d.Vars[v.Name]; !ok {
		d.VarNames = append(d.VarNames, v.Name)
	}
	d.Vars[v.Name] = v
	return nil
}

// Coord returns the named coordinate variable.
func (d *Dataset) Coord(name string) (*Coord, error) {
	c, ok := d.Coords[name]
	if !ok {
		return nil, fmt.Errorf("artmip: dataset has no %s coordinate", name)
	}
	return c, nil
}

// Var returns the named data variable.
func (d *Dataset) Var(name string) (*DataVar, error) {
	v, ok := d.Vars[name]
	if !ok {
		return nil, fmt.Errorf("artmip: dataset has no variable %s", name)
	}
	return v, nil
}

// Copy returns a deep copy of the dataset.
func (d *Dataset) Copy() *Dataset {
	o := NewDataset()
	o.DimNames = append([]string{}, d.DimNames...)
	for k, v := range d.DimLengths {
		o.DimLengths[k] = v
	}
	o.CoordNames = append([]string{}, d.CoordNames...)
	for _, name := range d.CoordNames {
		o.Coords[name] = d.Coords[name].copy()
	}
	o.VarNames = append([]string{}, d.VarNames...)
	for _, name := range d.VarNames {
		o.Vars[name] = d.Vars[name].copy()
	}
	for k, v := range d.Attrs {
		o.Attrs[k] = v
	}
	return o
}

func (c *Coord) copy() *Coord {
	o := &Coord{
		Name:   c.Name,
		Values: append([]float64{}, c.Values...),
		Attrs:  make(map[string]string),
		Dtype:  c.Dtype,
	}
	for k, v := range c.Attrs {
		o.Attrs[k] = v
	}
	return o
}

func (v *DataVar) copy() *DataVar {
	o := &DataVar{
		Name:  v.Name,
		Dims:  append([]string{}, v.Dims...),
		Data:  copyDense(v.Data),
		Attrs: make(map[string]string),
		Dtype: v.Dtype,
	}
	if v.FillValue != nil {
		fv := *v.FillValue
		o.FillValue = &fv
	}
	for k, val := range v.Attrs {
		o.Attrs[k] = val
	}
	return o
}

func copyDense(a *sparse.DenseArray) *sparse.DenseArray {
	o := sparse.ZerosDense(a.Shape...)
	copy(o.Elements, a.Elements)
	return o
}

// axis returns the position of dimension dim in the variable's dimension
// list, or -1 if the variable is not defined over dim.
func (v *DataVar) axis(dim string) int {
	for i, d := range v.Dims {
		if d == dim {
			return i
		}
	}
	return -1
}

// ApplyMetadata sets attribute values on named coordinate and data
// variables, creating attributes that do not exist. Unknown variable names
// are ignored, matching the permissive behavior of metadata override maps
// in driver configurations.
func (d *Dataset) ApplyMetadata(overrides map[string]map[string]string) {
	for name, attrs := range overrides {
		if c, ok := d.Coords[name]; ok {
			for att, val := range attrs {
				c.Attrs[att] = val
			}
			continue
		}
		if v, ok := d.Vars[name]; ok {
			for att, val := range attrs {
				v.Attrs[att] = val
			}
		}
	}
}

// SelectTime returns a new dataset containing only the given time indices,
// in the given order. Variables without a time dimension are copied
// unchanged. Time must be the leading dimension of every variable that
// carries it.
func (d *Dataset) SelectTime(indices []int) (*Dataset, error) {
	tc, err := d.Coord("time")
	if err != nil {
		return nil, err
	}
	o := NewDataset()
	for k, v := range d.Attrs {
		o.Attrs[k] = v
	}

	newTime := tc.copy()
	newTime.Values = make([]float64, len(indices))
	for i, idx := range indices {
		if idx < 0 || idx >= len(tc.Values) {
			return nil, fmt.Errorf("artmip: time index %d out of range [0,%d)", idx, len(tc.Values))
		}
		newTime.Values[i] = tc.Values[idx]
	}
	if err := o.AddCoord(newTime); err != nil {
		return nil, err
	}
	for _, name := range d.CoordNames {
		if name == "time" {
			continue
		}
		if err := o.AddCoord(d.Coords[name].copy()); err != nil {
			return nil, err
		}
	}

	for _, name := range d.VarNames {
		v := d.Vars[name]
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
		shape := append([]int{len(indices)}, v.Data.Shape[1:]...)
		data := sparse.ZerosDense(shape...)
		block := len(v.Data.Elements) / v.Data.Shape[0]
		for i, idx := range indices {
			copy(data.Elements[i*block:(i+1)*block], v.Data.Elements[idx*block:(idx+1)*block])
		}
		nv := v.copy()
		nv.Data = data
		if err := o.AddVar(nv); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// readDataset reads all dimensions, coordinates, variables, and attributes
// from an open NetCDF file into memory. A variable is treated as a
// coordinate when its only dimension shares its name.
func readDataset(f *cdf.File) (*Dataset, error) {
	d := NewDataset()

	for _, att := range f.Header.Attributes("") {
		if s, ok := attrString(f.Header.GetAttribute("", att)); ok {
			d.Attrs[att] = s
		}
	}

	for _, name := range f.Header.Variables() {
		dims := f.Header.Dimensions(name)
		values, dtype, err := readVariable(f, name)
		if err != nil {
			return nil, err
		}
		lens := f.Header.Lengths(name)
		if len(lens) > 0 && lens[0] == 0 { // unlimited dimension
			n := 1
			for _, l := range lens[1:] {
				n *= l
			}
			lens[0] = len(values) / n
		}

		attrs := make(map[string]string)
		var fill *float64
		for _, att := range f.Header.Attributes(name) {
			val := f.Header.GetAttribute(name, att)
			if att == "_FillValue" {
				if fv, ok := attrFloat(val); ok {
					fill = &fv
				}
				continue
			}
			if s, ok := attrString(val); ok {
				attrs[att] = s
			}
		}

		if len(dims) == 1 && dims[0] == name {
			err = d.AddCoord(&Coord{Name: name, Values: values, Attrs: attrs, Dtype: dtype})
		} else {
			for i, dim := range dims {
				if addErr := d.addDim(dim, lens[i]); addErr != nil {
					return nil, addErr
				}
			}
			data := sparse.ZerosDense(lens...)
			copy(data.Elements, values)
			err = d.AddVar(&DataVar{
				Name: name, Dims: dims, Data: data,
				Attrs: attrs, Dtype: dtype, FillValue: fill,
			})
		}
		if err != nil {
			return nil, err
		}
	}
	return d, nil
}

// readVariable reads the full contents of a variable as float64 values,
// reporting the type it is stored as on disk.
func readVariable(f *cdf.File, name string) ([]float64, string, error) {
	r := f.Reader(name, nil, nil)
	buf := r.Zero(-1)
	if _, err := r.Read(buf); err != nil {
		return nil, "", fmt.Errorf("artmip: reading NetCDF variable %s: %v", name, err)
	}
	switch b := buf.(type) {
	case []int8:
		return toFloat64(b), "int8", nil
	case []int16:
		return toFloat64(b), "int16", nil
	case []int32:
		return toFloat64(b), "int32", nil
	case []float32:
		return toFloat64(b), "float32", nil
	case []float64:
		return append([]float64{}, b...), "float64", nil
	}
	return nil, "", fmt.Errorf("artmip: NetCDF variable %s has unsupported type %T", name, buf)
}

func toFloat64[T int8 | int16 | int32 | float32](b []T) []float64 {
	o := make([]float64, len(b))
	for i, v := range b {
		o[i] = float64(v)
	}
	return o
}

// attrString converts a NetCDF attribute value to a string. Numeric
// attributes of length one are formatted; longer numeric attributes are
// not representable as metadata strings and are skipped.
func attrString(val interface{}) (string, bool) {
	switch v := val.(type) {
	case string:
		return v, true
	case nil:
		return "", false
	}
	if f, ok := attrFloat(val); ok {
		return strconv.FormatFloat(f, 'g', -1, 64), true
	}
	return "", false
}

func attrFloat(val interface{}) (float64, bool) {
	switch v := val.(type) {
	case []int8:
		if len(v) == 1 {
			return float64(v[0]), true
		}
	case []int16:
		if len(v) == 1 {
			return float64(v[0]), true
		}
	case []int32:
		if len(v) == 1 {
			return float64(v[0]), true
		}
	case []float32:
		if len(v) == 1 {
			return float64(v[0]), true
		}
	case []float64:
		if len(v) == 1 {
			return v[0], true
		}
	}
	return 0, false
}
