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
	"math"
	"testing"
)

func TestParseTimeEncoding(t *testing.T) {
	enc, err := parseTimeEncoding("days since 0001-01-01 00:00:00", "noleap")
	if err != nil {
		t.Fatal(err)
	}
	if enc.unitSeconds != 86400 {
		t.Errorf("have unit length %g s, want 86400", enc.unitSeconds)
	}
	if enc.origin.year != 1 || enc.origin.month != 1 || enc.origin.day != 1 {
		t.Errorf("have origin %+v, want year 1 January 1", enc.origin)
	}
	if enc.calendar != "noleap" {
		t.Errorf("have calendar %q, want %q", enc.calendar, "noleap")
	}

	enc, err = parseTimeEncoding("hours since 1900-06-15 12:00:00", "gregorian")
	if err != nil {
		t.Fatal(err)
	}
	if enc.unitSeconds != 3600 {
		t.Errorf("have unit length %g s, want 3600", enc.unitSeconds)
	}
	if enc.origin.seconds != 43200 {
		t.Errorf("have origin seconds %g, want 43200", enc.origin.seconds)
	}
	if enc.calendar != "standard" {
		t.Errorf("have calendar %q, want %q", enc.calendar, "standard")
	}
}

func TestParseTimeEncodingErrors(t *testing.T) {
	tests := []struct {
		units, calendar string
	}{
		{"day as %Y%m%d.%f", "noleap"},
		{"fortnights since 0001-01-01", "noleap"},
		{"days since yesterday", "noleap"},
		{"days since 0001-01-01", "julian"},
	}
	for _, test := range tests {
		if _, err := parseTimeEncoding(test.units, test.calendar); err == nil {
			t.Errorf("units %q calendar %q: want an error", test.units, test.calendar)
		}
	}
}

func TestYearOf(t *testing.T) {
	tests := []struct {
		units, calendar string
		value           float64
		want            int
	}{
		// The noleap year boundary is at day 365.
		{"days since 0001-01-01 00:00:00", "noleap", 364.75, 1},
		{"days since 0001-01-01 00:00:00", "noleap", 365.0, 2},
		{"days since 0001-01-01 00:00:00", "365_day", 2*365 + 10, 3},
		// The 360_day year boundary is at day 360.
		{"days since 0001-01-01 00:00:00", "360_day", 359.75, 1},
		{"days since 0001-01-01 00:00:00", "360_day", 360.0, 2},
		// 1900 is not a leap year in the Gregorian calendar.
		{"days since 1900-01-01 00:00:00", "standard", 364.5, 1900},
		{"days since 1900-01-01 00:00:00", "standard", 365.0, 1901},
		{"hours since 0201-01-01 00:00:00", "noleap", 365 * 24, 202},
	}
	for _, test := range tests {
		enc, err := parseTimeEncoding(test.units, test.calendar)
		if err != nil {
			t.Fatal(err)
		}
		if have := enc.yearOf(test.value); have != test.want {
			t.Errorf("%s (%s) value %g: have year %d, want %d",
				test.units, test.calendar, test.value, have, test.want)
		}
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, calendar := range []string{"noleap", "360_day", "standard"} {
		enc, err := parseTimeEncoding("days since 0201-01-01 00:00:00", calendar)
		if err != nil {
			t.Fatal(err)
		}
		for _, value := range []float64{0, 0.25, 100.5, 365, 10000.75} {
			have := enc.encode(enc.decode(value))
			if math.Abs(have-value) > 1e-6 {
				t.Errorf("%s: have round trip %g, want %g", calendar, have, value)
			}
		}
	}
}

func TestEncodeAcrossEncodings(t *testing.T) {
	// A date decoded under one origin must encode to a shifted value under
	// another origin of the same calendar.
	a, err := parseTimeEncoding("days since 0001-01-01 00:00:00", "noleap")
	if err != nil {
		t.Fatal(err)
	}
	b, err := parseTimeEncoding("days since 0002-01-01 00:00:00", "noleap")
	if err != nil {
		t.Fatal(err)
	}
	have := b.encode(a.decode(400.25))
	want := 400.25 - 365
	if math.Abs(have-want) > 1e-6 {
		t.Errorf("have %g, want %g", have, want)
	}
}

func TestGregorianDays(t *testing.T) {
	tests := []struct {
		year, month, day int
		want             int
	}{
		{1970, 1, 1, 0},
		{1970, 1, 2, 1},
		{1969, 12, 31, -1},
		{2000, 3, 1, 11017},
	}
	for _, test := range tests {
		have := gregorianDays(test.year, test.month, test.day)
		if have != test.want {
			t.Errorf("%04d-%02d-%02d: have day %d, want %d",
				test.year, test.month, test.day, have, test.want)
		}
	}
}

func TestEncodeLongSpan(t *testing.T) {
	// Spans beyond ~292 years would overflow a time.Duration; encoding
	// must stay exact over millennia.
	enc, err := parseTimeEncoding("days since 0001-01-01 00:00:00", "standard")
	if err != nil {
		t.Fatal(err)
	}
	d := calDate{year: 2001, month: 1, day: 1}
	have := enc.encode(d)
	// 2000 Gregorian years of 146097 days per 400 years.
	want := 5.0 * 146097
	if math.Abs(have-want) > 1e-6 {
		t.Errorf("have %g days, want %g", have, want)
	}
}

func TestTimeEncodingOf(t *testing.T) {
	d := testDataset(t, []float64{0.25, 0.5}, []float64{0, 90, 180, 270})
	enc, err := timeEncodingOf(d)
	if err != nil {
		t.Fatal(err)
	}
	if enc.calendar != "noleap" {
		t.Errorf("have calendar %q, want %q", enc.calendar, "noleap")
	}

	delete(d.Coords["time"].Attrs, "units")
	if _, err := timeEncodingOf(d); err == nil {
		t.Error("want an error when the time coordinate has no units")
	}
}
