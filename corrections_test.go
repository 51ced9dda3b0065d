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
	"errors"
	"reflect"
	"testing"

	"github.com/ctessum/sparse"
)

// testDataset builds a dataset with the given time and lon values, a lat
// coordinate of [-45, 45], and an ar_binary_tag variable whose element at
// (t, la, lo) is 100*t + 10*la + lo, so provenance of every element is
// visible after rearrangements.
func testDataset(t *testing.T, times, lons []float64) *Dataset {
	t.Helper()
	d := NewDataset()
	lats := []float64{-45, 45}
	if err := d.AddCoord(&Coord{Name: "time", Values: times, Dtype: "float64",
		Attrs: map[string]string{
			"long_name":     "time",
			"units":         "days since 0001-01-01 00:00:00",
			"calendar":      "365_day",
			"standard_name": "time",
		}}); err != nil {
		t.Fatal(err)
	}
	if err := d.AddCoord(&Coord{Name: "lat", Values: lats, Dtype: "float64",
		Attrs: map[string]string{
			"long_name":     "latitude",
			"units":         "degrees_north",
			"standard_name": "latitude",
		}}); err != nil {
		t.Fatal(err)
	}
	if err := d.AddCoord(&Coord{Name: "lon", Values: lons, Dtype: "float64",
		Attrs: map[string]string{
			"long_name":     "longitude",
			"units":         "degrees_east",
			"standard_name": "longitude",
		}}); err != nil {
		t.Fatal(err)
	}
	data := sparse.ZerosDense(len(times), len(lats), len(lons))
	for ti := range times {
		for la := range lats {
			for lo := range lons {
				data.Elements[ti*len(lats)*len(lons)+la*len(lons)+lo] =
					float64(100*ti + 10*la + lo)
			}
		}
	}
	if err := d.AddVar(&DataVar{
		Name: TagVariable,
		Dims: []string{"time", "lat", "lon"},
		Data: data, Dtype: "float64",
	}); err != nil {
		t.Fatal(err)
	}
	return d
}

func TestRollFloats(t *testing.T) {
	have := rollFloats([]float64{1, 2, 3, 4}, 2)
	want := []float64{3, 4, 1, 2}
	if !reflect.DeepEqual(have, want) {
		t.Errorf("have %v, want %v", have, want)
	}
	have = rollFloats([]float64{1, 2, 3, 4}, -1)
	want = []float64{2, 3, 4, 1}
	if !reflect.DeepEqual(have, want) {
		t.Errorf("have %v, want %v", have, want)
	}
}

func TestRollDense(t *testing.T) {
	a := sparse.ZerosDense(2, 3)
	copy(a.Elements, []float64{0, 1, 2, 10, 11, 12})
	have := rollDense(a, 1, 1).Elements
	want := []float64{2, 0, 1, 12, 10, 11}
	if !reflect.DeepEqual(have, want) {
		t.Errorf("have %v, want %v", have, want)
	}
}

func TestFlipLonConvention(t *testing.T) {
	have := flipLonConvention([]float64{0, 90, 180, 270})
	want := []float64{0, 90, 180, -90}
	if !reflect.DeepEqual(have, want) {
		t.Errorf("0-360 to signed: have %v, want %v", have, want)
	}
	have = flipLonConvention([]float64{-180, -90, 0, 90})
	want = []float64{180, 270, 0, 90}
	if !reflect.DeepEqual(have, want) {
		t.Errorf("signed to 0-360: have %v, want %v", have, want)
	}
}

func TestSwapLonConvention(t *testing.T) {
	times := []float64{0.25, 0.5}
	cand := testDataset(t, times, []float64{180, 270, 0, 90})
	ref := testDataset(t, times, []float64{180, -90, 0, 90})
	c := swapLonConvention{}

	needed, err := c.Determine(cand, ref)
	if err != nil {
		t.Fatal(err)
	}
	if !needed {
		t.Fatal("correction should be needed")
	}

	out, err := c.Apply(cand, ref)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(out.Coords["lon"].Values, ref.Coords["lon"].Values) {
		t.Errorf("have lon %v, want %v", out.Coords["lon"].Values, ref.Coords["lon"].Values)
	}
	// Only the coordinate changes; data are not reordered.
	if !reflect.DeepEqual(out.Vars[TagVariable].Data.Elements, cand.Vars[TagVariable].Data.Elements) {
		t.Error("data should not be reordered by a convention swap")
	}

	needed, err = c.Determine(out, ref)
	if err != nil {
		t.Fatal(err)
	}
	if needed {
		t.Error("correction should not be needed after one application")
	}
}

func TestSwapLonConventionMismatch(t *testing.T) {
	times := []float64{0.25}
	cand := testDataset(t, times, []float64{0, 90, 180, 270})
	ref := testDataset(t, times, []float64{0, 90, 180, 271})
	_, err := swapLonConvention{}.Determine(cand, ref)
	var want *ConventionMismatchError
	if !errors.As(err, &want) {
		t.Fatalf("have %v, want a ConventionMismatchError", err)
	}
}

func TestSwapLonConventionNotNeeded(t *testing.T) {
	times := []float64{0.25}
	cand := testDataset(t, times, []float64{0, 90, 180, 270})
	ref := testDataset(t, times, []float64{0, 90, 180, 270})
	needed, err := swapLonConvention{}.Determine(cand, ref)
	if err != nil {
		t.Fatal(err)
	}
	if needed {
		t.Error("identical longitudes should not need correction")
	}
}

func TestRotateLongitudes(t *testing.T) {
	times := []float64{0.25, 0.5}
	cand := testDataset(t, times, []float64{0, 90, 180, 270})
	ref := testDataset(t, times, []float64{180, 270, 0, 90})
	c := rotateLongitudes{}

	needed, err := c.Determine(cand, ref)
	if err != nil {
		t.Fatal(err)
	}
	if !needed {
		t.Fatal("correction should be needed")
	}

	out, err := c.Apply(cand, ref)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(out.Coords["lon"].Values, ref.Coords["lon"].Values) {
		t.Errorf("have lon %v, want %v", out.Coords["lon"].Values, ref.Coords["lon"].Values)
	}

	// Each data value must stay paired with its original physical
	// longitude.
	candLon := cand.Coords["lon"].Values
	outLon := out.Coords["lon"].Values
	candData := cand.Vars[TagVariable].Data
	outData := out.Vars[TagVariable].Data
	nt, nlat, nlon := 2, 2, 4
	for ti := 0; ti < nt; ti++ {
		for la := 0; la < nlat; la++ {
			for lo := 0; lo < nlon; lo++ {
				phys := candLon[lo]
				var loOut int
				for i, v := range outLon {
					if v == phys {
						loOut = i
					}
				}
				havev := outData.Elements[ti*nlat*nlon+la*nlon+loOut]
				wantv := candData.Elements[ti*nlat*nlon+la*nlon+lo]
				if havev != wantv {
					t.Errorf("longitude %g: have %g, want %g", phys, havev, wantv)
				}
			}
		}
	}

	needed, err = c.Determine(out, ref)
	if err != nil {
		t.Fatal(err)
	}
	if needed {
		t.Error("correction should not be needed after one application")
	}
}

func TestRotateLongitudesNoZero(t *testing.T) {
	times := []float64{0.25}
	cand := testDataset(t, times, []float64{45, 135, 225, 315})
	ref := testDataset(t, times, []float64{180, 270, 0, 90})
	_, err := rotateLongitudes{}.Determine(cand, ref)
	var want *ReferenceIndexNotFoundError
	if !errors.As(err, &want) {
		t.Fatalf("have %v, want a ReferenceIndexNotFoundError", err)
	}
	if want.Dataset != "candidate" {
		t.Errorf("have %q, want %q", want.Dataset, "candidate")
	}
}

func TestRotateLongitudesUnresolvable(t *testing.T) {
	times := []float64{0.25}
	cand := testDataset(t, times, []float64{0, 90, 180, 270})
	ref := testDataset(t, times, []float64{45, 135, 0, 90})
	_, err := rotateLongitudes{}.Determine(cand, ref)
	var want *UnresolvableLongitudeMismatchError
	if !errors.As(err, &want) {
		t.Fatalf("have %v, want an UnresolvableLongitudeMismatchError", err)
	}
}

func TestInsertMissingTimes(t *testing.T) {
	lons := []float64{0, 90, 180, 270}
	cand := testDataset(t, []float64{0.25, 0.75, 1.25}, lons)
	ref := testDataset(t, []float64{0.25, 0.5, 0.75, 1.0, 1.25}, lons)
	c := insertMissingTimes{}

	needed, err := c.Determine(cand, ref)
	if err != nil {
		t.Fatal(err)
	}
	if !needed {
		t.Fatal("correction should be needed")
	}

	out, err := c.Apply(cand, ref)
	if err != nil {
		t.Fatal(err)
	}
	haveTime := out.Coords["time"].Values
	wantTime := ref.Coords["time"].Values
	if !reflect.DeepEqual(haveTime, wantTime) {
		t.Errorf("have time %v, want %v", haveTime, wantTime)
	}

	// The original timesteps keep their values; the inserted ones are
	// zero for every data variable, not the fill value.
	candData := cand.Vars[TagVariable].Data
	outData := out.Vars[TagVariable].Data
	block := 2 * 4 // lat × lon
	for i, candStep := range []int{0, -1, 1, -1, 2} {
		have := outData.Elements[i*block : (i+1)*block]
		if candStep < 0 {
			for _, v := range have {
				if v != 0 {
					t.Errorf("inserted timestep %d should be all zero, have %v", i, have)
					break
				}
			}
			continue
		}
		want := candData.Elements[candStep*block : (candStep+1)*block]
		if !reflect.DeepEqual(have, want) {
			t.Errorf("timestep %d: have %v, want %v", i, have, want)
		}
	}

	needed, err = c.Determine(out, ref)
	if err != nil {
		t.Fatal(err)
	}
	if needed {
		t.Error("correction should not be needed after one application")
	}
}

func TestInsertMissingTimesDomainMismatch(t *testing.T) {
	lons := []float64{0, 90, 180, 270}
	cand := testDataset(t, []float64{0.25, 0.6, 1.25}, lons)
	ref := testDataset(t, []float64{0.25, 0.5, 0.75, 1.0, 1.25}, lons)
	_, err := insertMissingTimes{}.Determine(cand, ref)
	var want *TimeDomainMismatchError
	if !errors.As(err, &want) {
		t.Fatalf("have %v, want a TimeDomainMismatchError", err)
	}
	if want.Value != 0.6 {
		t.Errorf("have mismatched value %g, want %g", want.Value, 0.6)
	}
}

func TestOverrideTimeMetadata(t *testing.T) {
	lons := []float64{0, 90, 180, 270}
	cand := testDataset(t, []float64{0.25, 0.5}, lons)
	ref := testDataset(t, []float64{0.25, 0.5}, lons)
	cand.Coords["time"].Attrs["units"] = "day as %Y%m%d.%f"
	delete(cand.Coords["time"].Attrs, "calendar")
	c := overrideTimeMetadata{}

	needed, err := c.Determine(cand, ref)
	if err != nil {
		t.Fatal(err)
	}
	if !needed {
		t.Fatal("correction should be needed")
	}

	out, err := c.Apply(cand, ref)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(out.Coords["time"].Attrs, ref.Coords["time"].Attrs) {
		t.Errorf("have time attrs %v, want %v", out.Coords["time"].Attrs, ref.Coords["time"].Attrs)
	}
	if !reflect.DeepEqual(out.Coords["time"].Values, ref.Coords["time"].Values) {
		t.Errorf("have time values %v, want %v", out.Coords["time"].Values, ref.Coords["time"].Values)
	}

	needed, err = c.Determine(out, ref)
	if err != nil {
		t.Fatal(err)
	}
	if needed {
		t.Error("correction should not be needed after one application")
	}
}

func TestOverrideTimeMetadataSkipsLengthMismatch(t *testing.T) {
	lons := []float64{0, 90, 180, 270}
	cand := testDataset(t, []float64{0.25, 0.75, 1.25}, lons)
	ref := testDataset(t, []float64{0.25, 0.5, 0.75, 1.0, 1.25}, lons)
	// Attributes match, lengths differ: the length mismatch belongs to
	// insert_missing_times, not to this correction.
	needed, err := overrideTimeMetadata{}.Determine(cand, ref)
	if err != nil {
		t.Fatal(err)
	}
	if needed {
		t.Error("correction should not be needed when only the lengths differ")
	}
}

func TestOverrideCoordinateMetadata(t *testing.T) {
	lons := []float64{0, 90, 180, 270}
	cand := testDataset(t, []float64{0.25}, lons)
	ref := testDataset(t, []float64{0.25}, lons)
	cand.Coords["lat"].Attrs["units"] = "degrees"
	delete(cand.Coords["lon"].Attrs, "standard_name")
	c := overrideCoordMetadata{}

	needed, err := c.Determine(cand, ref)
	if err != nil {
		t.Fatal(err)
	}
	if !needed {
		t.Fatal("correction should be needed")
	}

	out, err := c.Apply(cand, ref)
	if err != nil {
		t.Fatal(err)
	}
	for _, coord := range []string{"lat", "lon"} {
		for _, att := range []string{"long_name", "units", "standard_name"} {
			have := out.Coords[coord].Attrs[att]
			want := ref.Coords[coord].Attrs[att]
			if have != want {
				t.Errorf("%s:%s: have %q, want %q", coord, att, have, want)
			}
		}
		// Coordinate values stay untouched.
		if !reflect.DeepEqual(out.Coords[coord].Values, cand.Coords[coord].Values) {
			t.Errorf("%s values should not change", coord)
		}
	}

	needed, err = c.Determine(out, ref)
	if err != nil {
		t.Fatal(err)
	}
	if needed {
		t.Error("correction should not be needed after one application")
	}
}
