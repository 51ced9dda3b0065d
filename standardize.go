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
	"strings"
)

// YearToken is the placeholder in output path templates that is replaced
// with the four-digit calendar year of each output partition.
const YearToken = "[YEAR]"

// ProvenanceAttribute is the dataset-level attribute recording the
// descriptions of all applied corrections, in application order.
const ProvenanceAttribute = "quality_control_operations"

// Config holds the settings for one standardization run.
type Config struct {
	// CandidateFiles are the detection-algorithm output files to
	// standardize, combined along the time dimension.
	CandidateFiles FileSpec
	// ReferenceFiles are the files of the dataset the detection algorithm
	// was originally run on, used as ground truth for coordinates and
	// metadata.
	ReferenceFiles FileSpec
	// OutputTemplate is the output path pattern. It must contain the
	// YearToken placeholder.
	OutputTemplate string

	// CompressionLevel is the gzip level for output partitions written to
	// ".gz" paths. Zero disables compression.
	CompressionLevel int

	// CandidateMetadata and ReferenceMetadata map variable name to
	// attribute name to value; they are applied to the corresponding
	// dataset immediately after loading, before any correction runs.
	CandidateMetadata map[string]map[string]string
	ReferenceMetadata map[string]map[string]string

	// TagFillValue, when non-nil, is written as the fill value of the AR
	// tag variable. When nil no fill value is written.
	TagFillValue *float64

	// DecodeFilesSeparately decodes each candidate file's time coordinate
	// independently before concatenation (for sources with inconsistent
	// per-file time encodings).
	DecodeFilesSeparately bool

	// AutoLoad, AutoCorrect, and AutoWrite control which phases run when
	// the standardizer is constructed.
	AutoLoad    bool
	AutoCorrect bool
	AutoWrite   bool

	// Progress, when non-nil, receives human-readable progress messages.
	Progress chan string
	// Verbose enables progress reporting.
	Verbose bool
}

// DefaultConfig returns the configuration used by the ARTMIP production
// drivers: all phases automatic and compression level 4.
func DefaultConfig() Config {
	return Config{
		CompressionLevel: 4,
		AutoLoad:         true,
		AutoCorrect:      true,
		AutoWrite:        true,
		Verbose:          true,
	}
}

// A Standardizer runs one standardization: it loads a candidate and a
// reference dataset, determines which corrections apply, applies them in
// order, and writes the corrected dataset as per-year output files.
//
// A Standardizer is not safe for concurrent use, and no internal operation
// is concurrent: the underlying NetCDF layer is not safe under concurrent
// access within one process. Run independent work items in separate
// processes instead.
type Standardizer struct {
	cfg      Config
	registry *Registry

	candidate *Dataset
	reference *Dataset
	plan      []Correction
	applied   []string
	output    *Dataset
}

// New creates a Standardizer and runs the phases enabled by the
// configuration's Auto flags in order: load, correct, write. Any error is
// fatal to the run; nothing is retried and nothing is partially applied.
func New(cfg Config, registry *Registry) (*Standardizer, error) {
	if !strings.Contains(cfg.OutputTemplate, YearToken) {
		return nil, fmt.Errorf("artmip: output template %q does not contain the %s placeholder",
			cfg.OutputTemplate, YearToken)
	}
	if registry == nil {
		registry = DefaultRegistry()
	}
	s := &Standardizer{cfg: cfg, registry: registry}

	if cfg.AutoLoad {
		if err := s.Load(); err != nil {
			return nil, err
		}
	}
	if cfg.AutoCorrect {
		if err := s.DetermineCorrections(); err != nil {
			return nil, err
		}
		if err := s.ApplyCorrections(); err != nil {
			return nil, err
		}
	}
	if cfg.AutoWrite {
		if err := s.Write(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Standardizer) msg(format string, args ...interface{}) {
	if s.cfg.Verbose && s.cfg.Progress != nil {
		s.cfg.Progress <- fmt.Sprintf(format, args...)
	}
}

// Load reads and concatenates the candidate and reference datasets and
// applies the configured metadata overrides to each.
func (s *Standardizer) Load() error {
	s.msg("loading candidate files %s", s.cfg.CandidateFiles.Pattern)
	candidate, err := LoadDataset(s.cfg.CandidateFiles, LoadOptions{
		DecodeSeparately: s.cfg.DecodeFilesSeparately,
		Metadata:         s.cfg.CandidateMetadata,
	})
	if err != nil {
		return err
	}
	s.msg("loading reference files %s", s.cfg.ReferenceFiles.Pattern)
	reference, err := LoadDataset(s.cfg.ReferenceFiles, LoadOptions{
		Metadata: s.cfg.ReferenceMetadata,
	})
	if err != nil {
		return err
	}
	s.candidate, s.reference = candidate, reference
	return nil
}

// SetInputs supplies already-loaded candidate and reference datasets,
// bypassing file loading. It is intended for callers that assemble
// datasets themselves.
func (s *Standardizer) SetInputs(candidate, reference *Dataset) {
	s.candidate, s.reference = candidate, reference
}

// DetermineCorrections runs every registered correction's determination
// phase, in registration order, building the plan for this run.
func (s *Standardizer) DetermineCorrections() error {
	if s.candidate == nil || s.reference == nil {
		return fmt.Errorf("artmip: datasets must be loaded before determining corrections")
	}
	plan, err := s.registry.Plan(s.candidate, s.reference)
	if err != nil {
		return err
	}
	s.plan = plan
	for _, c := range plan {
		s.msg("will apply correction %s", c.Name())
	}
	return nil
}

// ApplyCorrections applies the plan in order, threading each correction's
// output into the next correction's input, and records the description of
// every applied correction for the output provenance.
func (s *Standardizer) ApplyCorrections() error {
	if s.candidate == nil {
		return fmt.Errorf("artmip: datasets must be loaded before applying corrections")
	}
	current := s.candidate
	s.applied = s.applied[:0]
	for _, c := range s.plan {
		s.msg("applying correction %s", c.Name())
		next, err := c.Apply(current, s.reference)
		if err != nil {
			return err
		}
		current = next
		s.applied = append(s.applied, c.Description())
	}
	s.output = current
	return nil
}

// Plan returns the corrections selected for this run, in application
// order.
func (s *Standardizer) Plan() []Correction {
	return append([]Correction{}, s.plan...)
}

// Output returns the corrected dataset, or nil if corrections have not
// been applied yet.
func (s *Standardizer) Output() *Dataset {
	return s.output
}

// Provenance returns the provenance string recorded on the output
// dataset: the descriptions of all applied corrections joined with "; ".
func (s *Standardizer) Provenance() string {
	parts := make([]string, len(s.applied))
	for i, d := range s.applied {
		parts[i] = strings.TrimSpace(d)
	}
	return strings.Join(parts, "; ")
}
