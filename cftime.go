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
	"math"
	"strconv"
	"strings"
	"time"
)

// timeEncoding describes how numeric time values in a dataset map to model
// calendar dates, following the CF conventions ("<unit> since <date>" plus
// a calendar name).
type timeEncoding struct {
	unitSeconds float64 // length of one time unit in seconds
	origin      calDate
	calendar    string // normalized: "standard", "noleap", or "360_day"
}

// calDate is a date in a model calendar. It is only meaningful together
// with the calendar it was decoded under.
type calDate struct {
	year, month, day int
	seconds          float64 // seconds since midnight
}

var unitLengths = map[string]float64{
	"seconds": 1,
	"minutes": 60,
	"hours":   3600,
	"days":    86400,
}

// noleap month lengths and cumulative day offsets.
var monthDays365 = []int{31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}

func normalizeCalendar(calendar string) (string, error) {
	switch strings.ToLower(calendar) {
	case "", "standard", "gregorian", "proleptic_gregorian":
		return "standard", nil
	case "noleap", "365_day":
		return "noleap", nil
	case "360_day":
		return "360_day", nil
	}
	return "", fmt.Errorf("artmip: unsupported calendar %q", calendar)
}

// parseTimeEncoding parses a CF units string such as
// "days since 0001-01-01 00:00:00" together with a calendar name.
func parseTimeEncoding(units, calendar string) (timeEncoding, error) {
	var enc timeEncoding
	fields := strings.Fields(units)
	if len(fields) < 3 || strings.ToLower(fields[1]) != "since" {
		return enc, fmt.Errorf("artmip: cannot parse time units %q", units)
	}
	unit, ok := unitLengths[strings.ToLower(fields[0])]
	if !ok {
		return enc, fmt.Errorf("artmip: unsupported time unit %q in %q", fields[0], units)
	}
	enc.unitSeconds = unit

	datePart := strings.Split(fields[2], "-")
	if len(datePart) != 3 {
		return enc, fmt.Errorf("artmip: cannot parse origin date in time units %q", units)
	}
	var err error
	if enc.origin.year, err = strconv.Atoi(datePart[0]); err != nil {
		return enc, fmt.Errorf("artmip: cannot parse origin year in time units %q", units)
	}
	if enc.origin.month, err = strconv.Atoi(datePart[1]); err != nil {
		return enc, fmt.Errorf("artmip: cannot parse origin month in time units %q", units)
	}
	if enc.origin.day, err = strconv.Atoi(datePart[2]); err != nil {
		return enc, fmt.Errorf("artmip: cannot parse origin day in time units %q", units)
	}
	if len(fields) >= 4 {
		clock := strings.Split(fields[3], ":")
		for i, c := range clock {
			v, err := strconv.ParseFloat(c, 64)
			if err != nil {
				return enc, fmt.Errorf("artmip: cannot parse origin time in time units %q", units)
			}
			enc.origin.seconds += v * math.Pow(60, float64(2-i))
		}
	}
	if enc.calendar, err = normalizeCalendar(calendar); err != nil {
		return enc, err
	}
	return enc, nil
}

// dayNumber returns the number of days between year 1 January 1 and the
// given date in a fixed-length (noleap or 360_day) calendar.
func dayNumber(d calDate, calendar string) float64 {
	var days int
	switch calendar {
	case "360_day":
		days = (d.year-1)*360 + (d.month-1)*30 + d.day - 1
	default: // noleap
		days = (d.year - 1) * 365
		for m := 0; m < d.month-1; m++ {
			days += monthDays365[m]
		}
		days += d.day - 1
	}
	return float64(days) + d.seconds/86400
}

// decode converts a numeric time value to a calendar date.
func (enc timeEncoding) decode(value float64) calDate {
	if enc.calendar == "standard" {
		origin := time.Date(enc.origin.year, time.Month(enc.origin.month),
			enc.origin.day, 0, 0, 0, 0, time.UTC)
		totalSec := enc.origin.seconds + value*enc.unitSeconds
		days := math.Floor(totalSec / 86400)
		rem := totalSec - days*86400
		t := origin.AddDate(0, 0, int(days)).Add(time.Duration(rem * float64(time.Second)))
		return calDate{
			year:    t.Year(),
			month:   int(t.Month()),
			day:     t.Day(),
			seconds: float64(t.Hour()*3600+t.Minute()*60+t.Second()) + float64(t.Nanosecond())/1e9,
		}
	}

	total := dayNumber(enc.origin, enc.calendar) + value*enc.unitSeconds/86400
	days := int(math.Floor(total))
	seconds := (total - math.Floor(total)) * 86400

	var d calDate
	d.seconds = seconds
	switch enc.calendar {
	case "360_day":
		d.year = days/360 + 1
		days %= 360
		d.month = days/30 + 1
		d.day = days%30 + 1
	default: // noleap
		d.year = days/365 + 1
		days %= 365
		d.month = 1
		for days >= monthDays365[d.month-1] {
			days -= monthDays365[d.month-1]
			d.month++
		}
		d.day = days + 1
	}
	return d
}

// encode converts a calendar date back to a numeric time value under this
// encoding. The date must have been decoded under the same calendar.
func (enc timeEncoding) encode(d calDate) float64 {
	if enc.calendar == "standard" {
		days := float64(gregorianDays(d.year, d.month, d.day) -
			gregorianDays(enc.origin.year, enc.origin.month, enc.origin.day))
		sec := days*86400 + d.seconds - enc.origin.seconds
		return sec / enc.unitSeconds
	}
	days := dayNumber(d, enc.calendar) - dayNumber(enc.origin, enc.calendar)
	return days * 86400 / enc.unitSeconds
}

// gregorianDays returns the day number of a proleptic Gregorian date
// counted from 1970-01-01, using only integer arithmetic so that
// multi-millennium spans (e.g. "days since 0001-01-01") cannot overflow
// the way a time.Duration would.
func gregorianDays(year, month, day int) int {
	y := year
	if month <= 2 {
		y--
	}
	era := y / 400
	if y < 0 && y%400 != 0 {
		era--
	}
	yoe := y - era*400
	m := month + 9
	if month > 2 {
		m = month - 3
	}
	doy := (153*m+2)/5 + day - 1
	doe := yoe*365 + yoe/4 - yoe/100 + doy
	return era*146097 + doe - 719468
}

// yearOf returns the calendar year of a numeric time value.
func (enc timeEncoding) yearOf(value float64) int {
	return enc.decode(value).year
}

// timeEncodingOf extracts the time encoding from a dataset's time
// coordinate attributes.
func timeEncodingOf(ds *Dataset) (timeEncoding, error) {
	tc, err := ds.Coord("time")
	if err != nil {
		return timeEncoding{}, err
	}
	units, ok := tc.Attrs["units"]
	if !ok {
		return timeEncoding{}, fmt.Errorf("artmip: time coordinate has no units attribute")
	}
	return parseTimeEncoding(units, tc.Attrs["calendar"])
}
