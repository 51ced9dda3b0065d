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

package artmiputil

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Experiments are the ARTMIP Tier 2 Paleo experiments.
var Experiments = []string{"PreIndust", "PI_21ka-CO2", "10ka-Orbital"}

// Algorithms are the AR detection algorithms that contributed to the
// ARTMIP Tier 2 Paleo campaign. The list is alphabetical except that
// Guan_Waliser_v2 is last: its contributions were compressed at level 9
// and take substantially longer to process than the others.
var Algorithms = []string{
	"ARCONNECT_v2",
	"Brands_v1.1",
	"IDL_v2b.perc_PreIndust",
	"IDL_v2b.perc_PI_21ka-CO2",
	"IDL_v2b.perc_10ka-Orbital",
	"IPART_v1",
	"Lora_v2",
	"Mundhenk_v3",
	"Reid250",
	"Reid500",
	"Shields_v1",
	"teca_bard_v1.0.1",
	"TE_v2.1",
	"Guan_Waliser_v2",
}

// A WorkItem is one (experiment, algorithm) standardization to run.
type WorkItem struct {
	Experiment string
	Algorithm  string
	// CandidatePattern matches the algorithm's contribution files.
	CandidatePattern string
	// ReferencePattern matches the reference IVT files for the
	// experiment.
	ReferencePattern string
	// OutputTemplate contains the year placeholder.
	OutputTemplate string
	// TimeUnits is the time units string enforced on both datasets for
	// this experiment.
	TimeUnits string
}

// TimeUnitsFor returns the time units enforced for an experiment. The
// 10ka-Orbital runs use a different epoch than the other experiments.
func TimeUnitsFor(experiment string) string {
	if experiment == "10ka-Orbital" {
		return "days since 0201-01-01 00:00:00"
	}
	return "days since 0001-01-01 00:00:00"
}

// CoordOverrides returns the time, lat, and lon attributes enforced on
// every dataset for an experiment.
func CoordOverrides(experiment string) map[string]map[string]string {
	return map[string]map[string]string{
		"time": {
			"long_name":     "time",
			"units":         TimeUnitsFor(experiment),
			"calendar":      "365_day",
			"standard_name": "time",
		},
		"lat": {
			"long_name":     "latitude",
			"units":         "degrees_north",
			"standard_name": "latitude",
		},
		"lon": {
			"long_name":     "longitude",
			"units":         "degrees_east",
			"standard_name": "longitude",
		},
	}
}

// globCount is replaced in tests; it reports how many files match a
// pattern.
var globCount = func(pattern string) int {
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return 0
	}
	return len(paths)
}

// candidatePattern returns the glob pattern matching an algorithm's
// contribution files for an experiment. Several algorithms delivered
// their files under nonstandard directory layouts or misspelled
// experiment names; the fix-ups below mirror the on-disk state of the
// Tier 2 Paleo archive. If the resulting pattern matches nothing, a flat
// layout is tried before giving up.
func candidatePattern(inputBase, alg, experiment string) (string, error) {
	pattern := fmt.Sprintf("%s/%s/%s/*ar_tag*.nc4", inputBase, alg, experiment)

	switch {
	case alg == "IPART_v1":
		exp := experiment
		if experiment == "10ka-Orbital" {
			exp = "10ka_Orbital" // misspelled in the archive
		}
		pattern = fmt.Sprintf("%s/IPART/%s/*ar_tag*.nc4", inputBase, exp)
	case alg == "TE_v2.1":
		exp := experiment
		if experiment == "10ka-Orbital" {
			exp = "10ka-Orbitak" // misspelled in the archive
		}
		pattern = fmt.Sprintf("%s/Tempest/%s/*ar_tag*.nc4", inputBase, exp)
	case alg == "Shields_v1":
		pattern = fmt.Sprintf("%s/shields/%s*ar_tag*.nc4", inputBase, experiment)
	case alg == "Brands_v1.1":
		pattern = fmt.Sprintf("%s/Brands/brands_v1.1/%s/*ar_tag*.nc4", inputBase, experiment)
	case alg == "Guan_Waliser_v2":
		pattern = fmt.Sprintf("%s/Guan_Waliser/Paleo/%s*ar_tag*.nc4", inputBase, experiment)
	case strings.Contains(alg, "Reid"):
		pattern = fmt.Sprintf("%s/Reid/%s/*ar_tag.%s.*.nc4", inputBase, experiment, alg)
	case strings.HasPrefix(alg, "IDL"):
		pattern = fmt.Sprintf("%s/IDL/%s.ar_tag.%s*.nc4", inputBase, experiment, alg)
	}

	if globCount(pattern) == 0 {
		// Fall back to a flat layout.
		pattern = fmt.Sprintf("%s/%s/%s*ar_tag*.nc4", inputBase, alg, experiment)
	}
	if globCount(pattern) == 0 {
		return "", fmt.Errorf("artmiputil: algorithm %q, experiment %q has no files", alg, experiment)
	}
	return pattern, nil
}

// validateSelection checks that every requested name appears in the
// catalog, returning the catalog itself when the request is empty.
func validateSelection(requested, catalog []string, kind string) ([]string, error) {
	if len(requested) == 0 {
		return catalog, nil
	}
	valid := make(map[string]bool, len(catalog))
	for _, c := range catalog {
		valid[c] = true
	}
	for _, r := range requested {
		if !valid[r] {
			return nil, fmt.Errorf("artmiputil: %s %q is not in the list of valid %ss", kind, r, kind)
		}
	}
	return requested, nil
}

// BuildWorkPlan constructs the full list of (experiment, algorithm) work
// items for the requested subsets, in experiment-major order. The
// reference template and output template use the [EXPERIMENT] and
// [ALGORITHM] placeholders; the output template additionally keeps the
// [YEAR] placeholder for the writer.
func BuildWorkPlan(inputBase, referenceTemplate, outputTemplate string, exps, algs []string) ([]WorkItem, error) {
	exps, err := validateSelection(exps, Experiments, "experiment")
	if err != nil {
		return nil, err
	}
	algs, err = validateSelection(algs, Algorithms, "algorithm")
	if err != nil {
		return nil, err
	}

	var items []WorkItem
	for _, exp := range exps {
		for _, alg := range algs {
			pattern, err := candidatePattern(inputBase, alg, exp)
			if err != nil {
				return nil, err
			}
			items = append(items, WorkItem{
				Experiment:       exp,
				Algorithm:        alg,
				CandidatePattern: pattern,
				ReferencePattern: expandTemplate(referenceTemplate, exp, alg),
				OutputTemplate:   expandTemplate(outputTemplate, exp, alg),
				TimeUnits:        TimeUnitsFor(exp),
			})
		}
	}
	return items, nil
}

func expandTemplate(template, experiment, algorithm string) string {
	o := strings.Replace(template, "[EXPERIMENT]", experiment, -1)
	return strings.Replace(o, "[ALGORITHM]", algorithm, -1)
}
